package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-voice/internal/config"
)

// DeepgramClient implements Client using Deepgram's pre-recorded API
type DeepgramClient struct {
	apiKey   string
	model    string
	language string
	logger   zerolog.Logger
	dg       *api.Client
}

// deepgramResult is the subset of the pre-recorded response we read
type deepgramResult struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// NewDeepgramClient creates a new Deepgram transcription client
func NewDeepgramClient(cfg *config.Config, logger zerolog.Logger) *DeepgramClient {
	c := &DeepgramClient{
		apiKey:   cfg.DeepgramAPIKey,
		model:    cfg.DeepgramModel,
		language: cfg.DeepgramLanguage,
		logger:   logger.With().Str("provider", config.ProviderDeepgram).Logger(),
	}
	if c.apiKey != "" {
		c.dg = api.New(listenClient.NewREST(c.apiKey, &interfaces.ClientOptions{}))
	}
	return c
}

// Name returns the provider name
func (d *DeepgramClient) Name() string {
	return config.ProviderDeepgram
}

// IsAvailable reports whether an API key is configured
func (d *DeepgramClient) IsAvailable() bool {
	return d.dg != nil
}

// Transcribe sends the utterance as a single pre-recorded request
func (d *DeepgramClient) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if d.dg == nil {
		return "", &TranscriptionError{Provider: config.ProviderDeepgram, Message: "DEEPGRAM_API_KEY not configured"}
	}

	res, err := d.dg.FromStream(ctx, bytes.NewReader(wav), &interfaces.PreRecordedTranscriptionOptions{
		Model:     d.model,
		Language:  d.language,
		Punctuate: true,
	})
	if err != nil {
		return "", &TranscriptionError{
			Provider:  config.ProviderDeepgram,
			Err:       err,
			Retryable: isTransientDeepgramError(err),
		}
	}

	// Re-read through JSON so only the fields used here are bound
	raw, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("failed to encode deepgram response: %w", err)
	}
	var result deepgramResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", &TranscriptionError{Provider: config.ProviderDeepgram, Message: "invalid response body", Err: err}
	}

	transcript := ""
	if len(result.Results.Channels) > 0 && len(result.Results.Channels[0].Alternatives) > 0 {
		alt := result.Results.Channels[0].Alternatives[0]
		transcript = alt.Transcript
		d.logger.Debug().Float64("confidence", alt.Confidence).Int("chars", len(transcript)).Msg("transcription complete")
	}
	return transcript, nil
}

func isTransientDeepgramError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "503") || strings.Contains(msg, "502")
}
