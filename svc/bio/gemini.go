package bio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Generator produces text for a prompt. Implementations may fail transiently
// and are expected to be retried by the caller on availability errors only.
type Generator interface {
	Generate(ctx context.Context, prompt, systemInstruction string, temperature float64) (string, error)
}

// GeminiConfig configures the Gemini text-generation client.
type GeminiConfig struct {
	APIKey     string        `env:"GEMINI_API_KEY,required"`
	Model      string        `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	BaseURL    string        `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	Timeout    time.Duration `env:"GEMINI_TIMEOUT" envDefault:"60s"`
	MaxRetries int           `env:"GEMINI_MAX_RETRIES" envDefault:"3"`
}

// Gemini is an HTTP client for the Gemini generateContent API.
type Gemini struct {
	cfg  GeminiConfig
	http *http.Client
}

// NewGemini creates a Gemini client.
func NewGemini(cfg GeminiConfig) *Gemini {
	return &Gemini{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate calls the model, retrying on availability errors with exponential
// backoff. Content-policy failures, client errors, and empty completions are
// never retried.
func (g *Gemini) Generate(ctx context.Context, prompt, systemInstruction string, temperature float64) (string, error) {
	var lastErr error
	for attempt := 0; attempt < g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Second << (attempt - 1)):
			}
		}

		text, err := g.generateOnce(ctx, prompt, systemInstruction, temperature)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isTransient(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %w", ErrGenerationUnavailable, lastErr)
}

func (g *Gemini) generateOnce(ctx context.Context, prompt, systemInstruction string, temperature float64) (string, error) {
	payload := geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenConfig{Temperature: temperature},
	}
	if systemInstruction != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemInstruction}}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.cfg.BaseURL, g.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.cfg.APIKey)

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var decoded geminiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("bio: unexpected model response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if decoded.Error != nil {
			msg = decoded.Error.Message
		}
		if resp.StatusCode == http.StatusServiceUnavailable || strings.Contains(strings.ToLower(msg), "unavailable") {
			return "", fmt.Errorf("%w: %s", ErrGenerationUnavailable, msg)
		}
		return "", fmt.Errorf("bio: model request failed: %s", msg)
	}

	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(decoded.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if strings.Contains(err.Error(), "503") {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unavailable")
}
