package orchestrator

import (
	"github.com/lexiqai/interview-voice/internal/backend"
	"github.com/lexiqai/interview-voice/internal/stt"
)

// Event is an input to the state machine. Adapter events carry the ID of the
// activity that produced them; events for a finished activity are ignored.
type Event interface {
	EventName() string
}

// StartRequested bootstraps the session from a resume or an existing session
type StartRequested struct {
	ServicesReady bool
	Resume        *backend.Resume
	SessionID     string
	Message       string
	Phase         string
}

// SessionStarted is the backend's answer to StartSession
type SessionStarted struct {
	Request   uint64
	SessionID string
	Message   string
	Phase     string
}

// SessionStartFailed reports a failed StartSession
type SessionStartFailed struct {
	Request uint64
	Err     error
}

// SpeechFailed is delivered before SpeechEnded when an utterance fails
type SpeechFailed struct {
	Speech uint64
	Err    error
}

// SpeechEnded fires once per Speak, however the utterance ended
type SpeechEnded struct {
	Speech uint64
}

// ListeningChanged mirrors the capture adapter's state notifications
type ListeningChanged struct {
	Capture   uint64
	Listening bool
	State     stt.ListeningState
}

// CaptureResult carries the final transcript of a capture, possibly empty
type CaptureResult struct {
	Capture uint64
	Text    string
}

// CaptureFailed reports a microphone or transcription failure
type CaptureFailed struct {
	Capture uint64
	Err     error
}

// BackendReplied carries the AI's next message
type BackendReplied struct {
	Request        uint64
	Message        string
	Phase          string
	ElapsedMinutes *float64
}

// BackendFailed reports a failed SubmitResponse
type BackendFailed struct {
	Request uint64
	Err     error
}

// ToggleRequested is the user pressing the talk button
type ToggleRequested struct{}

// LeaveRequested is the user leaving the interview
type LeaveRequested struct{}

func (StartRequested) EventName() string     { return "start_requested" }
func (SessionStarted) EventName() string     { return "session_started" }
func (SessionStartFailed) EventName() string { return "session_start_failed" }
func (SpeechFailed) EventName() string       { return "speech_failed" }
func (SpeechEnded) EventName() string        { return "speech_ended" }
func (ListeningChanged) EventName() string   { return "listening_changed" }
func (CaptureResult) EventName() string      { return "capture_result" }
func (CaptureFailed) EventName() string      { return "capture_failed" }
func (BackendReplied) EventName() string     { return "backend_replied" }
func (BackendFailed) EventName() string      { return "backend_failed" }
func (ToggleRequested) EventName() string    { return "toggle_requested" }
func (LeaveRequested) EventName() string     { return "leave_requested" }

// Effect is a command the runtime performs on behalf of the state machine
type Effect interface {
	EffectName() string
}

// StartSession asks the backend to open a session for the resume
type StartSession struct {
	Request uint64
	Resume  backend.Resume
}

// Speak starts synthesis of text
type Speak struct {
	Speech uint64
	Text   string
}

// CancelSpeech stops the active utterance
type CancelSpeech struct {
	Speech uint64
}

// Listen arms the capture adapter
type Listen struct {
	Capture uint64
}

// StopListening ends the active capture through the normal transcribe path
type StopListening struct {
	Capture uint64
}

// AbortCapture discards the active capture without callbacks
type AbortCapture struct {
	Capture uint64
}

// SubmitResponse sends the user's answer to the backend
type SubmitResponse struct {
	Request   uint64
	SessionID string
	Text      string
}

func (StartSession) EffectName() string   { return "start_session" }
func (Speak) EffectName() string          { return "speak" }
func (CancelSpeech) EffectName() string   { return "cancel_speech" }
func (Listen) EffectName() string         { return "listen" }
func (StopListening) EffectName() string  { return "stop_listening" }
func (AbortCapture) EffectName() string   { return "abort_capture" }
func (SubmitResponse) EffectName() string { return "submit_response" }
