package orchestrator

import (
	"github.com/lexiqai/interview-voice/internal/backend"
	"github.com/lexiqai/interview-voice/internal/stt"
)

// State is the turn-taking state of an interview session
type State string

const (
	StateInitializing      State = "initializing"
	StateAwaitingBackend   State = "awaiting_backend"
	StateAISpeaking        State = "ai_speaking"
	StateUserListening     State = "user_listening"
	StateUserTranscribing  State = "user_transcribing"
	StateBackendProcessing State = "backend_processing"
	StateReporting         State = "reporting"
	StateError             State = "error"
	StateIdle              State = "idle" // capture failed or the user left
)

// Phase is the interview stage, as reported by the backend once a session exists
type Phase string

const (
	PhaseInitializing    Phase = "initializing"
	PhaseAwaitingSession Phase = "awaiting_session"
	PhaseInProgress      Phase = backend.PhaseInProgress
	PhaseReporting       Phase = backend.PhaseReporting
	PhaseFinished        Phase = backend.PhaseFinished
	PhaseError           Phase = "error"
)

// Terminal reports whether listening must no longer be armed
func (p Phase) Terminal() bool {
	return backend.IsTerminalPhase(string(p))
}

func phaseOf(s string) Phase {
	if s == "" {
		return PhaseInProgress
	}
	return Phase(s)
}

// Speaker identifies who produced a turn
type Speaker string

const (
	SpeakerAI   Speaker = "ai"
	SpeakerUser Speaker = "user"
)

// Turn is one utterance in the transcript
type Turn struct {
	Speaker  Speaker `json:"speaker"`
	Text     string  `json:"text"`
	Position int     `json:"position"`
}

// ErrorKind classifies session failures
type ErrorKind string

const (
	InitializationError ErrorKind = "initialization"
	SessionError        ErrorKind = "session"
	CaptureError        ErrorKind = "capture"
	SynthesisError      ErrorKind = "synthesis"
	BackendError        ErrorKind = "backend"
)

// Failure is the last error surfaced to the user. Fatal failures end the session.
type Failure struct {
	Kind    ErrorKind
	Message string
	Fatal   bool
}

func (f *Failure) Error() string {
	return f.Message
}

// User-facing messages
const (
	msgInitFailed     = "Failed to initialize speech services. Please try again later."
	msgStartFailed    = "Failed to start interview"
	msgNoSession      = "No interview session found. Please start a new interview."
	msgSpeechNotReady = "Speech synthesis not ready."
)

func apology(detail string) string {
	return "Sorry, I encountered an issue: " + detail + ". Could you try again?"
}

// Snapshot is the read-only view of a session pushed to the UI
type Snapshot struct {
	State          State              `json:"state"`
	Phase          Phase              `json:"phase"`
	SessionID      string             `json:"session_id,omitempty"`
	Turns          []Turn             `json:"turns"`
	ElapsedMinutes float64            `json:"elapsed_minutes"`
	Speaking       bool               `json:"speaking"`
	Listening      stt.ListeningState `json:"listening"`
	Processing     bool               `json:"processing"`
	LastError      string             `json:"last_error,omitempty"`
	ErrorKind      ErrorKind          `json:"error_kind,omitempty"`
	Fatal          bool               `json:"fatal"`
	Closed         bool               `json:"closed"`
}

// Control describes the talk button for the current snapshot
type Control struct {
	Label    string `json:"label"`
	Disabled bool   `json:"disabled"`
	ShowMic  bool   `json:"show_mic"`
}

// Control returns the talk button label and whether it can be pressed
func (s Snapshot) Control() Control {
	switch {
	case s.Speaking:
		return Control{Label: "AI Speaking...", Disabled: true}
	case s.Processing:
		return Control{Label: "Processing...", Disabled: true}
	case s.Listening == stt.StateTranscribing:
		return Control{Label: "Transcribing...", Disabled: true}
	case s.Listening == stt.StateListening:
		return Control{Label: "Stop Listening", ShowMic: true}
	default:
		return Control{Label: "Start Listening", ShowMic: true}
	}
}
