package bio

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/biogen/core"
)

// GenerateRequest is the client's generation request. Platform and length
// options are structured so gating decisions never depend on parsing prose.
type GenerateRequest struct {
	Prompt       string `json:"prompt"`
	ChatID       string `json:"chatId,omitempty"`
	Platform     string `json:"platform,omitempty"`
	LengthTier   string `json:"lengthTier,omitempty"`
	CustomLength int    `json:"customLength,omitempty"`
}

// GatePolicy is the server-side table deciding which option values require
// Pro. The client renders the same table for UX but is never trusted: every
// request is classified here.
type GatePolicy struct {
	// FreePlatforms may be requested without an entitlement. Anything not
	// listed here or in ProPlatforms is rejected as invalid.
	FreePlatforms []string `yaml:"free_platforms"`
	ProPlatforms  []string `yaml:"pro_platforms"`

	// FreeLengthTiers and ProLengthTiers partition the named tiers.
	FreeLengthTiers []string `yaml:"free_length_tiers"`
	ProLengthTiers  []string `yaml:"pro_length_tiers"`

	// ProKeywords gates free-text prompts that ask for a Pro capability by
	// name instead of through the structured options.
	ProKeywords []string `yaml:"pro_keywords"`

	// MaxCustomLength bounds the custom length value; any custom length is
	// itself a Pro feature.
	MaxCustomLength int `yaml:"max_custom_length"`

	// MaxPromptLength caps prompt size before sanitization.
	MaxPromptLength int `yaml:"max_prompt_length"`
}

// DefaultGatePolicy returns the built-in policy table.
func DefaultGatePolicy() GatePolicy {
	return GatePolicy{
		FreePlatforms:   []string{"", "generic", "website", "email"},
		ProPlatforms:    []string{"linkedin", "instagram", "twitter", "x", "tiktok", "youtube", "upwork", "fiverr", "freelancer", "medium"},
		FreeLengthTiers: []string{"", "short"},
		ProLengthTiers:  []string{"medium", "long", "custom"},
		ProKeywords:     []string{"linkedin", "instagram", "twitter", "x.com", "tiktok", "youtube", "upwork", "fiverr", "freelancer", "medium", "long", "500 characters", "300 characters", "custom length"},
		MaxCustomLength: 1000,
		MaxPromptLength: 2000,
	}
}

// LoadGatePolicy reads a policy table from a YAML file, falling back to the
// defaults for any field the file leaves unset.
func LoadGatePolicy(path string) (GatePolicy, error) {
	policy := DefaultGatePolicy()

	raw, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return policy, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	if policy.MaxCustomLength <= 0 || policy.MaxPromptLength <= 0 {
		return policy, fmt.Errorf("%w: length bounds must be positive", ErrInvalidPolicy)
	}
	return policy, nil
}

// Validate checks the request against the policy and returns field-level
// errors safe to show to the client.
func (p GatePolicy) Validate(req GenerateRequest) error {
	verr := core.NewValidationError()

	if strings.TrimSpace(req.Prompt) == "" {
		verr.Add("prompt", "prompt is required")
	}

	platform := strings.ToLower(req.Platform)
	if !slices.Contains(p.FreePlatforms, platform) && !slices.Contains(p.ProPlatforms, platform) {
		verr.Add("platform", "unknown platform")
	}

	tier := strings.ToLower(req.LengthTier)
	if !slices.Contains(p.FreeLengthTiers, tier) && !slices.Contains(p.ProLengthTiers, tier) {
		verr.Add("lengthTier", "unknown length tier")
	}

	if req.CustomLength < 0 || req.CustomLength > p.MaxCustomLength {
		verr.Add("customLength", fmt.Sprintf("must be between 0 and %d", p.MaxCustomLength))
	}
	if req.CustomLength > 0 && tier != "custom" {
		verr.Add("customLength", "requires the custom length tier")
	}

	if verr.IsEmpty() {
		return nil
	}
	return verr
}

// RequiresPro classifies a request against the policy table. It is a pure
// function: no I/O, no entitlement lookup.
func (p GatePolicy) RequiresPro(req GenerateRequest) bool {
	if slices.Contains(p.ProPlatforms, strings.ToLower(req.Platform)) {
		return true
	}
	if slices.Contains(p.ProLengthTiers, strings.ToLower(req.LengthTier)) {
		return true
	}
	if req.CustomLength > 0 {
		return true
	}

	prompt := strings.ToLower(req.Prompt)
	for _, kw := range p.ProKeywords {
		if strings.Contains(prompt, kw) {
			return true
		}
	}
	return false
}

// Sanitize strips angle brackets, trims whitespace, and caps the prompt at
// the policy's maximum length.
func (p GatePolicy) Sanitize(prompt string) string {
	prompt = strings.NewReplacer("<", "", ">", "").Replace(prompt)
	prompt = strings.TrimSpace(prompt)
	return truncateRunes(prompt, p.MaxPromptLength)
}

// truncateRunes caps s at n runes without splitting a multi-byte character.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
