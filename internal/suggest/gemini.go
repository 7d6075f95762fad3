package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const maxResponseBytes = 1 << 20

// Generator produces a text answer for prompt from the named model.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	Model      string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model %s: status %d", e.Model, e.StatusCode)
}

// RateLimited reports whether the API rejected the call with 429.
func (e *StatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Gemini API request/response structures
type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text    string `json:"text"`
	Thought bool   `json:"thought,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature     float64              `json:"temperature"`
	MaxOutputTokens int                  `json:"maxOutputTokens"`
	ThinkingConfig  geminiThinkingConfig `json:"thinkingConfig"`
}

type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiCandidate struct {
	Content geminiContent `json:"content"`
}

// GeminiClient calls the generateContent endpoint of the Gemini API.
type GeminiClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewGeminiClient creates a client. Deadlines come from the caller's context.
func NewGeminiClient(apiKey, baseURL string, client *http.Client) *GeminiClient {
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &GeminiClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Generate implements Generator.
func (g *GeminiClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0,
			MaxOutputTokens: 256,
			ThinkingConfig:  geminiThinkingConfig{ThinkingBudget: 0},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, url.PathEscape(model), url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which carries the key
		if ue, ok := err.(*url.Error); ok {
			return "", fmt.Errorf("send request: %w", ue.Err)
		}
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return "", &StatusError{Model: model, StatusCode: resp.StatusCode}
	}

	var decoded geminiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return answerText(decoded), nil
}

// answerText drops thought parts of the first candidate and returns the last remaining part, trimmed.
func answerText(resp geminiResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var last *geminiPart
	for i, part := range resp.Candidates[0].Content.Parts {
		if part.Thought {
			continue
		}
		last = &resp.Candidates[0].Content.Parts[i]
	}
	if last == nil {
		return ""
	}
	return strings.TrimSpace(last.Text)
}
