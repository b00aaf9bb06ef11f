package backend

import (
	"fmt"
)

// Interview phases reported by the backend
const (
	PhaseInProgress = "in_progress"
	PhaseReporting  = "reporting"
	PhaseFinished   = "finished"
)

// Resume is an uploaded resume file
type Resume struct {
	Filename    string
	ContentType string
	Data        []byte
}

// StartResponse is returned when a session is created
type StartResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Phase     string `json:"phase"`
}

// ContinueResponse is the AI's reply to a user turn
type ContinueResponse struct {
	SessionID          string   `json:"session_id,omitempty"`
	Message            string   `json:"message"`
	Phase              string   `json:"phase"`
	ElapsedTimeMinutes *float64 `json:"elapsed_time_minutes,omitempty"`
}

type continueRequest struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

// StartError is returned when a session could not be started
type StartError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *StartError) Error() string {
	return describe(e.Detail, "Failed to start interview", e.StatusCode, e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// ContinueError is returned when a user turn could not be submitted
type ContinueError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *ContinueError) Error() string {
	return describe(e.Detail, "Failed to continue interview", e.StatusCode, e.Err)
}

func (e *ContinueError) Unwrap() error {
	return e.Err
}

func describe(detail, fallback string, status int, cause error) string {
	switch {
	case detail != "":
		return detail
	case status == 0 && cause != nil:
		return fmt.Sprintf("%s: %v", fallback, cause)
	default:
		return fallback
	}
}

// IsTerminalPhase reports whether no further user turns are expected
func IsTerminalPhase(phase string) bool {
	return phase == PhaseReporting || phase == PhaseFinished
}
