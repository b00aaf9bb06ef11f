package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Speech provider identifiers
const (
	ProviderSarvam   = "sarvam"
	ProviderDeepgram = "deepgram"
	ProviderCartesia = "cartesia"
)

// Config holds all configuration for the interview voice service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Public base URL for this service, used only for logging the WebSocket endpoint.
	PublicURL string `envconfig:"PUBLIC_URL" default:""`

	// Interview backend (session API)
	InterviewAPIURL     string `envconfig:"INTERVIEW_API_URL" default:"http://127.0.0.1:8000/api/v1"`
	InterviewAPITimeout int    `envconfig:"INTERVIEW_API_TIMEOUT" default:"60"` // seconds

	// Provider selection
	STTProvider string `envconfig:"STT_PROVIDER" default:"sarvam"` // sarvam, deepgram
	TTSProvider string `envconfig:"TTS_PROVIDER" default:"sarvam"` // sarvam, cartesia

	// Sarvam speech API configuration
	SarvamAPIKey   string `envconfig:"SARVAM_API_KEY"`
	SarvamSTTURL   string `envconfig:"SARVAM_STT_URL" default:"https://api.sarvam.ai/speech-to-text"`
	SarvamTTSURL   string `envconfig:"SARVAM_TTS_URL" default:"https://api.sarvam.ai/text-to-speech"`
	SarvamSTTModel string `envconfig:"SARVAM_STT_MODEL" default:"saarika:v2.5"`
	SarvamLanguage string `envconfig:"SARVAM_LANGUAGE" default:"en-IN"`
	SarvamSpeaker  string `envconfig:"SARVAM_SPEAKER" default:"vidya"`

	// Deepgram STT API configuration
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY"`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Cartesia TTS API configuration
	CartesiaAPIKey  string `envconfig:"CARTESIA_API_KEY"`
	CartesiaVoiceID string `envconfig:"CARTESIA_VOICE_ID" default:"sonic-english"`
	CartesiaModelID string `envconfig:"CARTESIA_MODEL_ID" default:"sonic"`

	// Synthesis configuration
	TTSMaxChunkChars     int     `envconfig:"TTS_MAX_CHUNK_CHARS" default:"150"`
	TTSConcurrency       int     `envconfig:"TTS_CONCURRENCY" default:"3"`         // Parallel chunk requests
	TTSRequestsPerSecond float64 `envconfig:"TTS_REQUESTS_PER_SECOND" default:"5"` // Chunk request rate limit

	// Capture configuration
	InitialSpeechTimeoutMs int `envconfig:"INITIAL_SPEECH_TIMEOUT_MS" default:"7000"`
	SilenceTimeoutMs       int `envconfig:"SILENCE_TIMEOUT_MS" default:"5000"`
	MicSampleRate          int `envconfig:"MIC_SAMPLE_RATE" default:"16000"`
	STTSampleRate          int `envconfig:"STT_SAMPLE_RATE" default:"16000"`

	// Voice activity gate for device microphones
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"` // RMS energy threshold
	VADPrerollMs       int     `envconfig:"VAD_PREROLL_MS" default:"300"`         // Audio kept ahead of speech onset

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that the keys required by the selected providers are present
func (c *Config) Validate() error {
	switch c.STTProvider {
	case ProviderSarvam:
		if c.SarvamAPIKey == "" {
			return fmt.Errorf("SARVAM_API_KEY is required for STT_PROVIDER=%s", c.STTProvider)
		}
	case ProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required for STT_PROVIDER=%s", c.STTProvider)
		}
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q", c.STTProvider)
	}

	switch c.TTSProvider {
	case ProviderSarvam:
		if c.SarvamAPIKey == "" {
			return fmt.Errorf("SARVAM_API_KEY is required for TTS_PROVIDER=%s", c.TTSProvider)
		}
	case ProviderCartesia:
		if c.CartesiaAPIKey == "" {
			return fmt.Errorf("CARTESIA_API_KEY is required for TTS_PROVIDER=%s", c.TTSProvider)
		}
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider)
	}

	if c.TTSMaxChunkChars <= 0 {
		return fmt.Errorf("TTS_MAX_CHUNK_CHARS must be positive")
	}
	if c.InitialSpeechTimeoutMs <= 0 || c.SilenceTimeoutMs <= 0 {
		return fmt.Errorf("capture timeouts must be positive")
	}

	return nil
}

// InitialSpeechTimeout returns the initial-speech deadline as a duration
func (c *Config) InitialSpeechTimeout() time.Duration {
	return time.Duration(c.InitialSpeechTimeoutMs) * time.Millisecond
}

// SilenceTimeout returns the inter-utterance silence deadline as a duration
func (c *Config) SilenceTimeout() time.Duration {
	return time.Duration(c.SilenceTimeoutMs) * time.Millisecond
}

// APITimeout returns the interview backend request timeout
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.InterviewAPITimeout) * time.Second
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
