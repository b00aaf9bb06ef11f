package stt

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-voice/internal/config"
)

// NewClient returns the transcription client selected by STT_PROVIDER
func NewClient(cfg *config.Config, logger zerolog.Logger) (Client, error) {
	switch cfg.STTProvider {
	case config.ProviderSarvam, "":
		return NewSarvamClient(cfg, logger), nil
	case config.ProviderDeepgram:
		return NewDeepgramClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", cfg.STTProvider)
	}
}
