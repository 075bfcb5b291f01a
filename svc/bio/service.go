package bio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/biogen/core"
	"github.com/dmitrymomot/biogen/pkg/ratelimit"
)

const systemInstruction = `You are a world-class copywriter specializing in creating highly optimized, attention-grabbing bios for professional and social media platforms. Your task is to generate five distinct bio options based on the user's request.
- Analyze the user's prompt to infer the desired tone, target platform, length constraints, and key goals.
- If no length is specified, default to a short bio (around 160 characters).
- Format: Output must be a numbered list (1., 2., 3., 4., 5.).
- CRITICAL: Do NOT include any introductory text, concluding text, or any conversational filler. Only output the numbered list of bios.`

const (
	bioTemperature   = 0.8
	titleTemperature = 0.2
)

// EntitlementChecker answers whether a user currently holds Pro.
type EntitlementChecker interface {
	IsEntitled(ctx context.Context, userID string) bool
}

// GenerateResult is the outcome of a generation request. ChatID is set only
// when a new chat was started.
type GenerateResult struct {
	Text   string `json:"text"`
	ChatID string `json:"chatId,omitempty"`
}

// Service orchestrates a generation request: gate, entitlement, rate limit,
// sanitize, generate, persist.
type Service struct {
	policy       GatePolicy
	entitlements EntitlementChecker
	limiter      *ratelimit.Limiter
	generator    Generator
	chats        *ChatStore
	log          *slog.Logger
}

// NewService creates the bio generation service.
func NewService(policy GatePolicy, entitlements EntitlementChecker, limiter *ratelimit.Limiter, generator Generator, chats *ChatStore, log *slog.Logger) *Service {
	if entitlements == nil || generator == nil || chats == nil {
		panic("bio: entitlements, generator, and chat store are required")
	}
	if limiter == nil {
		panic("bio: rate limiter is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		policy:       policy,
		entitlements: entitlements,
		limiter:      limiter,
		generator:    generator,
		chats:        chats,
		log:          log,
	}
}

// Generate produces bio options for the user's prompt.
func (s *Service) Generate(ctx context.Context, userID, clientIP string, req GenerateRequest) (*GenerateResult, error) {
	if err := s.policy.Validate(req); err != nil {
		return nil, err
	}

	requiresPro := s.policy.RequiresPro(req)
	if requiresPro && !s.entitlements.IsEntitled(ctx, userID) {
		return nil, core.ErrProRequired
	}

	if err := s.limiter.CheckAndConsume(ctx, userID, clientIP); err != nil {
		return nil, err
	}

	prompt := s.policy.Sanitize(req.Prompt)

	isNewChat := req.ChatID == ""
	chatID := req.ChatID
	if isNewChat {
		chatID = s.chats.NewChatID()
	}

	if err := s.chats.AppendMessage(ctx, userID, chatID, "user", prompt); err != nil {
		return nil, fmt.Errorf("bio: failed to persist message: %w", err)
	}

	// The entitlement may have been revoked between the fast check and now;
	// re-check right before the billable call.
	if requiresPro && !s.entitlements.IsEntitled(ctx, userID) {
		return nil, core.ErrProRequired
	}

	text, err := s.generator.Generate(ctx, prompt, systemInstruction, bioTemperature)
	if err != nil {
		return nil, err
	}

	if err := s.chats.AppendMessage(ctx, userID, chatID, "ai", text); err != nil {
		s.log.ErrorContext(ctx, "failed to persist model reply",
			slog.String("chat_id", chatID), slog.Any("error", err))
	}

	title := ""
	if isNewChat {
		title = s.chatTitle(ctx, prompt)
	}
	if err := s.chats.Touch(ctx, userID, chatID, prompt, title); err != nil {
		s.log.ErrorContext(ctx, "failed to update chat summary",
			slog.String("chat_id", chatID), slog.Any("error", err))
	}

	result := &GenerateResult{Text: text}
	if isNewChat {
		result.ChatID = chatID
	}
	return result, nil
}

// chatTitle asks the model for a short thread title, falling back to a
// prompt prefix when the call fails. Titles are cosmetic: errors never
// propagate.
func (s *Service) chatTitle(ctx context.Context, prompt string) string {
	titlePrompt := fmt.Sprintf("Generate a concise, 5-word-or-less title for a chat that starts with this user prompt: %q", prompt)
	title, err := s.generator.Generate(ctx, titlePrompt, "", titleTemperature)
	if err != nil {
		s.log.WarnContext(ctx, "title generation failed", slog.Any("error", err))
		if short := truncateRunes(prompt, 30); short != prompt {
			return short + "..."
		}
		return prompt
	}
	return strings.TrimSpace(strings.NewReplacer(`"`, "", "'", "").Replace(title))
}
