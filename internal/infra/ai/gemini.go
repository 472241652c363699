package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/NehoraiHadad/podcasto-engine/internal/metrics"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.0-flash"
)

// GeminiClient calls the Google Generative Language API for text and image
// generation.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// NewGeminiClient creates a Gemini client from provider config.
func NewGeminiClient(cfg ProviderConfig) *GeminiClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiClient{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(cfg.Timeout),
	}
}

func (c *GeminiClient) Name() string { return "gemini" }

// GenerateText generates script text from a prompt.
func (c *GeminiClient) GenerateText(ctx context.Context, req TextRequest) (*TextResult, error) {
	body := map[string]any{
		"contents": []any{
			map[string]any{"parts": []any{map[string]any{"text": req.Prompt}}},
		},
	}
	if req.SystemPrompt != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []any{map[string]any{"text": req.SystemPrompt}},
		}
	}
	if req.MaxTokens > 0 {
		body["generationConfig"] = map[string]any{"maxOutputTokens": req.MaxTokens}
	}

	raw, err := c.post(ctx, fmt.Sprintf("/models/%s:generateContent", c.model), "generate_text", body)
	if err != nil {
		return nil, err
	}

	text := gjson.GetBytes(raw, "candidates.0.content.parts.0.text").String()
	if text == "" {
		return nil, &APIError{Provider: c.Name(), StatusCode: 200, Message: "empty completion"}
	}

	return &TextResult{
		Text:  text,
		Usage: geminiUsage(raw),
	}, nil
}

// GenerateImage generates one image from a prompt.
func (c *GeminiClient) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	body := map[string]any{
		"contents": []any{
			map[string]any{"parts": []any{map[string]any{"text": req.Prompt}}},
		},
		"generationConfig": map[string]any{
			"responseModalities": []string{"IMAGE", "TEXT"},
		},
	}

	raw, err := c.post(ctx, fmt.Sprintf("/models/%s:generateContent", c.model), "generate_image", body)
	if err != nil {
		return nil, err
	}

	var result *ImageResult
	gjson.GetBytes(raw, "candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
		encoded := part.Get("inlineData.data").String()
		if encoded == "" {
			return true
		}
		data, decodeErr := base64.StdEncoding.DecodeString(encoded)
		if decodeErr != nil {
			return true
		}
		result = &ImageResult{
			Data:     data,
			MimeType: part.Get("inlineData.mimeType").String(),
		}
		return false
	})
	if result == nil {
		return nil, &APIError{Provider: c.Name(), StatusCode: 200, Message: "no image in response"}
	}

	result.Usage = geminiUsage(raw)
	result.Usage.Images = 1
	return result, nil
}

func geminiUsage(raw []byte) Usage {
	return Usage{
		PromptTokens:     gjson.GetBytes(raw, "usageMetadata.promptTokenCount").Int(),
		CompletionTokens: gjson.GetBytes(raw, "usageMetadata.candidatesTokenCount").Int(),
		TotalTokens:      gjson.GetBytes(raw, "usageMetadata.totalTokenCount").Int(),
	}
}

func (c *GeminiClient) post(ctx context.Context, path, operation string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s%s?key=%s", c.baseURL, path, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	metrics.ProviderCallsTotal.WithLabelValues(c.Name(), operation).Inc()
	start := time.Now()
	resp, err := c.http.Do(httpReq)
	metrics.ProviderLatency.WithLabelValues(c.Name(), operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderErrorsTotal.WithLabelValues(c.Name(), "network").Inc()
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := newAPIError(c.Name(), resp.StatusCode, raw)
		metrics.ProviderErrorsTotal.WithLabelValues(c.Name(), Classify(apiErr).String()).Inc()
		return nil, apiErr
	}

	return raw, nil
}

// newAPIError adapts a vendor error body to the normalized APIError shape.
func newAPIError(provider string, status int, body []byte) *APIError {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "error.status").String()
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	return &APIError{Provider: provider, StatusCode: status, Message: msg}
}
