package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-voice/internal/config"
	"github.com/lexiqai/interview-voice/internal/httputil"
)

// SarvamClient implements Client using Sarvam's speech-to-text API
type SarvamClient struct {
	apiKey     string
	apiURL     string
	model      string
	language   string
	httpClient *http.Client
	logger     zerolog.Logger
}

type sarvamResponse struct {
	Transcript string `json:"transcript"`
}

// NewSarvamClient creates a new Sarvam STT client
func NewSarvamClient(cfg *config.Config, logger zerolog.Logger) *SarvamClient {
	return &SarvamClient{
		apiKey:     cfg.SarvamAPIKey,
		apiURL:     cfg.SarvamSTTURL,
		model:      cfg.SarvamSTTModel,
		language:   cfg.SarvamLanguage,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.With().Str("provider", config.ProviderSarvam).Logger(),
	}
}

// Name returns the provider name
func (c *SarvamClient) Name() string {
	return config.ProviderSarvam
}

// IsAvailable reports whether an API key is configured
func (c *SarvamClient) IsAvailable() bool {
	return c.apiKey != ""
}

// Transcribe uploads the utterance as multipart form data
func (c *SarvamClient) Transcribe(ctx context.Context, wav []byte) (string, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", "user_audio.wav")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	if err := w.WriteField("model", c.model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if err := w.WriteField("language_code", c.language); err != nil {
		return "", fmt.Errorf("failed to write language field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("api-subscription-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TranscriptionError{
			Provider:   config.ProviderSarvam,
			StatusCode: resp.StatusCode,
			Message:    httputil.ReadErrorBody(resp.Body),
			Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	var result sarvamResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &TranscriptionError{Provider: config.ProviderSarvam, Message: "invalid response body", Err: err}
	}

	c.logger.Debug().Int("audio_bytes", len(wav)).Int("chars", len(result.Transcript)).Msg("transcription complete")
	return result.Transcript, nil
}
