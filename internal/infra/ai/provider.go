package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// APIError is the normalized error shape returned by every provider adapter.
// Classification consults StatusCode and Message instead of poking at
// vendor-specific error bodies.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Usage carries the billable quantities a provider reported for one call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
	Characters       int64
	Images           int64
}

// TextRequest asks a provider to generate text from a prompt.
type TextRequest struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
}

// TextResult is the generated text plus usage metadata.
type TextResult struct {
	Text  string
	Usage Usage
}

// ImageRequest asks a provider to generate one image from a prompt.
type ImageRequest struct {
	Prompt string
}

// ImageResult is the generated image bytes plus usage metadata.
type ImageResult struct {
	Data     []byte
	MimeType string
	Usage    Usage
}

// SpeechRequest asks a provider to synthesize speech from text.
type SpeechRequest struct {
	Text         string
	Voice        string
	LanguageCode string
}

// SpeechResult is the synthesized audio plus usage metadata.
type SpeechResult struct {
	Audio    []byte
	MimeType string
	Usage    Usage
}

// TextGenerator generates episode script text.
type TextGenerator interface {
	Name() string
	GenerateText(ctx context.Context, req TextRequest) (*TextResult, error)
}

// ImageGenerator generates episode cover images.
type ImageGenerator interface {
	Name() string
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error)
}

// SpeechSynthesizer turns script text into audio.
type SpeechSynthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error)
}

// ProviderConfig holds settings for one hosted AI API.
type ProviderConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Voice   string        `yaml:"voice"`
	Timeout time.Duration `yaml:"timeout"`
}

// UnmarshalYAML decodes the timeout field from duration strings like "60s".
func (c *ProviderConfig) UnmarshalYAML(unmarshal func(any) error) error {
	var raw struct {
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
		Voice   string `yaml:"voice"`
		Timeout string `yaml:"timeout"`
	}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	c.APIKey = raw.APIKey
	c.Model = raw.Model
	c.BaseURL = raw.BaseURL
	c.Voice = raw.Voice
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return err
		}
		c.Timeout = d
	}
	return nil
}

// Config holds settings for all AI providers. Fallbacks are tried in order
// after the primary exhausts its retries.
type Config struct {
	Gemini          ProviderConfig   `yaml:"gemini"`
	GeminiFallbacks []ProviderConfig `yaml:"gemini_fallbacks"`
	TTS             ProviderConfig   `yaml:"tts"`
	TTSFallbacks    []ProviderConfig `yaml:"tts_fallbacks"`
	Retry           Policy           `yaml:"retry"`
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
