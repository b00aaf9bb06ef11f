package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lexiqai/interview-voice/internal/config"
	"github.com/lexiqai/interview-voice/internal/httputil"
)

const maxAudioURLBytes = 16 << 20

// SarvamClient implements Client using Sarvam's text-to-speech API
type SarvamClient struct {
	apiKey     string
	apiURL     string
	language   string
	speaker    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// SarvamRequest is the request payload for Sarvam TTS
type SarvamRequest struct {
	Text               string `json:"text"`
	TargetLanguageCode string `json:"target_language_code"`
	Speaker            string `json:"speaker"`
}

// SarvamResponse is the success payload. Older deployments answer with a
// single audio_url instead of inline audios.
type SarvamResponse struct {
	Audios   []string `json:"audios"`
	AudioURL string   `json:"audio_url"`
}

// NewSarvamClient creates a new Sarvam TTS client
func NewSarvamClient(cfg *config.Config, logger zerolog.Logger) *SarvamClient {
	return &SarvamClient{
		apiKey:     cfg.SarvamAPIKey,
		apiURL:     cfg.SarvamTTSURL,
		language:   cfg.SarvamLanguage,
		speaker:    cfg.SarvamSpeaker,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    newLimiter(cfg.TTSRequestsPerSecond, cfg.TTSConcurrency),
		logger:     logger.With().Str("provider", config.ProviderSarvam).Logger(),
	}
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Name returns the provider name
func (c *SarvamClient) Name() string {
	return config.ProviderSarvam
}

// IsAvailable reports whether an API key is configured
func (c *SarvamClient) IsAvailable() bool {
	return c.apiKey != ""
}

// Synthesize requests audio for one text chunk
func (c *SarvamClient) Synthesize(ctx context.Context, text string) ([][]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(SarvamRequest{
		Text:               text,
		TargetLanguageCode: c.language,
		Speaker:            c.speaker,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-subscription-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SynthesisError{
			Provider:   config.ProviderSarvam,
			StatusCode: resp.StatusCode,
			Message:    httputil.ReadErrorBody(resp.Body),
			Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	var result SarvamResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &SynthesisError{Provider: config.ProviderSarvam, Message: "invalid response body", Err: err}
	}

	if len(result.Audios) > 0 {
		payloads := make([][]byte, 0, len(result.Audios))
		for i, encoded := range result.Audios {
			data, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, &SynthesisError{
					Provider: config.ProviderSarvam,
					Message:  fmt.Sprintf("audio %d is not valid base64", i),
					Err:      err,
				}
			}
			if len(data) == 0 {
				continue
			}
			payloads = append(payloads, data)
		}
		if len(payloads) == 0 {
			return nil, &SynthesisError{Provider: config.ProviderSarvam, Err: ErrEmptyAudio}
		}
		return payloads, nil
	}

	if result.AudioURL != "" {
		data, err := c.fetchAudioURL(ctx, result.AudioURL)
		if err != nil {
			return nil, err
		}
		return [][]byte{data}, nil
	}

	return nil, &SynthesisError{Provider: config.ProviderSarvam, Message: "no audio or audio_url in response", Err: ErrEmptyAudio}
}

func (c *SarvamClient) fetchAudioURL(ctx context.Context, url string) ([]byte, error) {
	c.logger.Debug().Str("audio_url", url).Msg("fetching legacy audio_url payload")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio_url request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audio_url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &SynthesisError{
			Provider:   config.ProviderSarvam,
			StatusCode: resp.StatusCode,
			Message:    "audio_url fetch failed",
			Retryable:  resp.StatusCode >= 500,
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioURLBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read audio_url body: %w", err)
	}
	if len(data) == 0 {
		return nil, &SynthesisError{Provider: config.ProviderSarvam, Err: ErrEmptyAudio}
	}
	return data, nil
}
