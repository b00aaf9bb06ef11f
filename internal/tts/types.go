package tts

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyAudio is returned when a provider answers without any audio payload
	ErrEmptyAudio = errors.New("synthesis returned no audio")

	// ErrNoChunks is returned when every chunk of an utterance failed to synthesize
	ErrNoChunks = errors.New("no chunk could be synthesized")

	// ErrPlaybackStopped is the completion error of a handle stopped by Stop
	ErrPlaybackStopped = errors.New("playback stopped")
)

// Client turns one text chunk into encoded (WAV) audio payloads.
// Payloads are returned in playback order.
type Client interface {
	Synthesize(ctx context.Context, text string) ([][]byte, error)

	// IsAvailable reports whether the provider is configured for use
	IsAvailable() bool

	Name() string
}

// SynthesisError describes a failed synthesis request or utterance
type SynthesisError struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *SynthesisError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s tts: status %d: %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s tts: %s", e.Provider, msg)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// SpeakCallbacks receive the lifecycle of one utterance. OnEnd fires exactly
// once per Speak, after OnError when the utterance failed.
type SpeakCallbacks struct {
	OnStart func()
	OnEnd   func()
	OnError func(err error)
}
