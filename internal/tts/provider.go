package tts

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-voice/internal/config"
)

// NewClient returns the synthesis client selected by TTS_PROVIDER
func NewClient(cfg *config.Config, logger zerolog.Logger) (Client, error) {
	switch cfg.TTSProvider {
	case config.ProviderSarvam, "":
		return NewSarvamClient(cfg, logger), nil
	case config.ProviderCartesia:
		return NewCartesiaClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown TTS provider %q", cfg.TTSProvider)
	}
}
