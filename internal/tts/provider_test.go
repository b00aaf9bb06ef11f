package tts

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-voice/internal/config"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		provider string
		want     string
		wantErr  bool
	}{
		{provider: config.ProviderSarvam, want: config.ProviderSarvam},
		{provider: "", want: config.ProviderSarvam},
		{provider: config.ProviderCartesia, want: config.ProviderCartesia},
		{provider: "polly", wantErr: true},
	}

	for _, tt := range tests {
		client, err := NewClient(&config.Config{TTSProvider: tt.provider}, zerolog.Nop())
		if tt.wantErr {
			if err == nil {
				t.Errorf("Expected error for provider %q", tt.provider)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NewClient(%q) failed: %v", tt.provider, err)
		}
		if client.Name() != tt.want {
			t.Errorf("Expected provider %s, got %s", tt.want, client.Name())
		}
		if client.IsAvailable() {
			t.Errorf("Expected %s to be unavailable without an API key", tt.want)
		}
	}
}
