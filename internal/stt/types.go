package stt

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMicrophoneUnavailable is returned when the microphone cannot be opened
var ErrMicrophoneUnavailable = errors.New("microphone unavailable")

// Client transcribes one captured utterance (a WAV payload)
type Client interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)

	// IsAvailable reports whether the provider is configured for use
	IsAvailable() bool

	Name() string
}

// Stream is an open microphone track delivering PCM16 mono frames
type Stream interface {
	// Data is closed when the track ends
	Data() <-chan []int16
	SampleRate() int

	// Close releases the track. Frames already queued on Data may still be
	// read once it returns.
	Close() error
}

// Microphone acquires a capture stream. Open may block while the user grants access.
type Microphone interface {
	Open(ctx context.Context) (Stream, error)
}

// TranscriptionError describes a failed transcription request
type TranscriptionError struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *TranscriptionError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s stt: status %d: %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s stt: %s", e.Provider, msg)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// ListeningState is the capture adapter's externally visible state
type ListeningState string

const (
	StateIdle         ListeningState = "idle"
	StateListening    ListeningState = "listening"
	StateTranscribing ListeningState = "transcribing"
)

// ListenCallbacks receive the outcome of one capture. Exactly one of
// OnFinalResult or OnError fires, followed by OnListeningStateChange(false, idle).
type ListenCallbacks struct {
	OnFinalResult          func(text string)
	OnError                func(err error)
	OnListeningStateChange func(listening bool, state ListeningState)
}

// ListenOptions override the capture deadlines; zero values use the adapter defaults
type ListenOptions struct {
	InitialSpeechTimeout time.Duration
	SilenceTimeout       time.Duration
}

// Default capture deadlines
const (
	DefaultInitialSpeechTimeout = 7000 * time.Millisecond
	DefaultSilenceTimeout       = 5000 * time.Millisecond
)
