package server

import (
	"github.com/lexiqai/interview-voice/internal/orchestrator"
)

// Client to server events
const (
	EventStart         = "start"
	EventToggle        = "toggle"
	EventLeave         = "leave"
	EventMicReady      = "mic_ready"
	EventMicDenied     = "mic_denied"
	EventMedia         = "media"
	EventPlaybackEnded = "playback_ended"
	EventPlaybackError = "playback_error"
)

// Server to client events
const (
	EventState        = "state"
	EventMicOpen      = "mic_open"
	EventMicClose     = "mic_close"
	EventPlay         = "play"
	EventStopPlayback = "stop_playback"
)

// ClientMessage is a JSON frame sent by the browser
type ClientMessage struct {
	Event string `json:"event"`

	// start
	ResumeID  string `json:"resume_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
	Phase     string `json:"phase,omitempty"`

	// media: base64 PCM16 LE mono
	Payload    string `json:"payload,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`

	// playback_ended, playback_error
	PlaybackID string `json:"playback_id,omitempty"`

	// mic_denied, playback_error
	Error string `json:"error,omitempty"`
}

// ServerMessage is a JSON frame sent to the browser
type ServerMessage struct {
	Event      string     `json:"event"`
	State      *StateView `json:"state,omitempty"`
	PlaybackID string     `json:"playback_id,omitempty"`
	Payload    string     `json:"payload,omitempty"` // base64 WAV
}

// StateView is the session snapshot together with the talk button state
type StateView struct {
	orchestrator.Snapshot
	Control orchestrator.Control `json:"control"`
}

func stateMessage(s orchestrator.Snapshot) ServerMessage {
	return ServerMessage{Event: EventState, State: &StateView{Snapshot: s, Control: s.Control()}}
}
