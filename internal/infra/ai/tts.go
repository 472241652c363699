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
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/NehoraiHadad/podcasto-engine/internal/metrics"
)

const (
	defaultTTSBaseURL  = "https://texttospeech.googleapis.com/v1"
	defaultTTSVoice    = "en-US-Neural2-C"
	defaultTTSLanguage = "en-US"
)

// GoogleTTSClient calls the Google Cloud Text-to-Speech API.
type GoogleTTSClient struct {
	apiKey  string
	voice   string
	baseURL string
	http    *http.Client
}

// NewGoogleTTSClient creates a TTS client from provider config.
func NewGoogleTTSClient(cfg ProviderConfig) *GoogleTTSClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTTSBaseURL
	}
	voice := cfg.Voice
	if voice == "" {
		voice = defaultTTSVoice
	}
	return &GoogleTTSClient{
		apiKey:  cfg.APIKey,
		voice:   voice,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    newHTTPClient(cfg.Timeout),
	}
}

func (c *GoogleTTSClient) Name() string { return "google-tts" }

// Synthesize turns script text into MP3 audio. Billable quantity is the
// character count of the input text.
func (c *GoogleTTSClient) Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error) {
	voice := req.Voice
	if voice == "" {
		voice = c.voice
	}
	language := req.LanguageCode
	if language == "" {
		language = defaultTTSLanguage
	}

	body := map[string]any{
		"input": map[string]any{"text": req.Text},
		"voice": map[string]any{
			"languageCode": language,
			"name":         voice,
		},
		"audioConfig": map[string]any{"audioEncoding": "MP3"},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text:synthesize?key=%s", c.baseURL, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	metrics.ProviderCallsTotal.WithLabelValues(c.Name(), "synthesize").Inc()
	start := time.Now()
	resp, err := c.http.Do(httpReq)
	metrics.ProviderLatency.WithLabelValues(c.Name(), "synthesize").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderErrorsTotal.WithLabelValues(c.Name(), "network").Inc()
		return nil, fmt.Errorf("tts request failed: %w", err)
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

	encoded := gjson.GetBytes(raw, "audioContent").String()
	if encoded == "" {
		return nil, &APIError{Provider: c.Name(), StatusCode: 200, Message: "empty audio content"}
	}
	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio: %w", err)
	}

	return &SpeechResult{
		Audio:    audio,
		MimeType: "audio/mpeg",
		Usage: Usage{
			Characters: int64(utf8.RuneCountInString(req.Text)),
		},
	}, nil
}
