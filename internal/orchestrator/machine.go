package orchestrator

import (
	"strings"

	"github.com/lexiqai/interview-voice/internal/stt"
)

// Machine is the interview session state. It is a value: Transition returns
// a new Machine and leaves its input untouched.
type Machine struct {
	state          State
	phase          Phase
	sessionID      string
	turns          []Turn
	elapsedMinutes float64
	failure        *Failure
	closed         bool

	// In-flight activity IDs; zero when idle. At most one of speech and
	// capture is ever non-zero.
	speech  uint64
	capture uint64
	request uint64
	lastID  uint64
}

// NewMachine returns a machine in the initializing state
func NewMachine() Machine {
	return Machine{state: StateInitializing, phase: PhaseInitializing}
}

// State returns the current turn-taking state
func (m Machine) State() State {
	return m.state
}

// Snapshot returns the UI view of the machine
func (m Machine) Snapshot() Snapshot {
	s := Snapshot{
		State:          m.state,
		Phase:          m.phase,
		SessionID:      m.sessionID,
		Turns:          append(make([]Turn, 0, len(m.turns)), m.turns...),
		ElapsedMinutes: m.elapsedMinutes,
		Speaking:       m.state == StateAISpeaking,
		Listening:      stt.StateIdle,
		Processing:     m.state == StateBackendProcessing || m.state == StateAwaitingBackend,
		Closed:         m.closed,
	}
	switch m.state {
	case StateUserListening:
		s.Listening = stt.StateListening
	case StateUserTranscribing:
		s.Listening = stt.StateTranscribing
	}
	if m.failure != nil {
		s.LastError = m.failure.Message
		s.ErrorKind = m.failure.Kind
		s.Fatal = m.failure.Fatal
	}
	return s
}

// Transition applies ev and returns the next machine and the effects to run.
// Speech and capture are only ever started from the completion of the
// previous activity, so the two never overlap.
func Transition(m Machine, ev Event) (Machine, []Effect) {
	if m.closed {
		return m, nil
	}

	switch ev := ev.(type) {
	case StartRequested:
		return m.start(ev)

	case SessionStarted:
		if m.state != StateAwaitingBackend || ev.Request != m.request {
			return m, nil
		}
		m.request = 0
		if ev.SessionID == "" || ev.Message == "" {
			return m.fail(SessionError, msgNoSession, true), nil
		}
		return m.begin(ev.SessionID, ev.Message, ev.Phase)

	case SessionStartFailed:
		if m.state != StateAwaitingBackend || ev.Request != m.request {
			return m, nil
		}
		m.request = 0
		msg := msgStartFailed
		if ev.Err != nil && ev.Err.Error() != "" {
			msg = ev.Err.Error()
		}
		return m.fail(InitializationError, msg, true), nil

	case SpeechFailed:
		if ev.Speech == 0 || ev.Speech != m.speech {
			return m, nil
		}
		msg := "TTS error"
		if ev.Err != nil {
			msg = "TTS error: " + ev.Err.Error()
		}
		return m.fail(SynthesisError, msg, false), nil

	case SpeechEnded:
		if ev.Speech == 0 || ev.Speech != m.speech {
			return m, nil
		}
		m.speech = 0
		return m.afterSpeech()

	case ListeningChanged:
		if ev.Capture == 0 || ev.Capture != m.capture {
			return m, nil
		}
		if ev.State == stt.StateTranscribing && m.state == StateUserListening {
			m.state = StateUserTranscribing
		}
		return m, nil

	case CaptureResult:
		if ev.Capture == 0 || ev.Capture != m.capture {
			return m, nil
		}
		m.capture = 0
		text := strings.TrimSpace(ev.Text)
		if text == "" {
			return m.listen()
		}
		m.failure = nil
		m = m.appendTurn(SpeakerUser, text)
		m.state = StateBackendProcessing
		m.request = m.nextID()
		return m, []Effect{SubmitResponse{Request: m.request, SessionID: m.sessionID, Text: text}}

	case CaptureFailed:
		if ev.Capture == 0 || ev.Capture != m.capture {
			return m, nil
		}
		m.capture = 0
		m.state = StateIdle
		msg := "STT error"
		if ev.Err != nil {
			msg = "STT error: " + ev.Err.Error()
		}
		return m.fail(CaptureError, msg, false), nil

	case BackendReplied:
		if m.state != StateBackendProcessing || ev.Request != m.request {
			return m, nil
		}
		m.request = 0
		m.phase = phaseOf(ev.Phase)
		if ev.ElapsedMinutes != nil && *ev.ElapsedMinutes > m.elapsedMinutes {
			m.elapsedMinutes = *ev.ElapsedMinutes
		}
		return m.speak(ev.Message)

	case BackendFailed:
		if m.state != StateBackendProcessing || ev.Request != m.request {
			return m, nil
		}
		m.request = 0
		detail := "Failed to get AI response."
		if ev.Err != nil && ev.Err.Error() != "" {
			detail = ev.Err.Error()
		}
		var effects []Effect
		m, effects = m.speak(apology(detail))
		return m.fail(BackendError, detail, false), effects

	case ToggleRequested:
		return m.toggle()

	case LeaveRequested:
		return m.leave()
	}

	return m, nil
}

func (m Machine) start(ev StartRequested) (Machine, []Effect) {
	if m.state != StateInitializing {
		return m, nil
	}
	if !ev.ServicesReady {
		return m.fail(InitializationError, msgInitFailed, true), nil
	}
	if ev.SessionID == "" && ev.Resume != nil {
		m.state = StateAwaitingBackend
		m.phase = PhaseAwaitingSession
		m.request = m.nextID()
		return m, []Effect{StartSession{Request: m.request, Resume: *ev.Resume}}
	}
	if ev.SessionID == "" || ev.Message == "" {
		return m.fail(SessionError, msgNoSession, true), nil
	}
	return m.begin(ev.SessionID, ev.Message, ev.Phase)
}

// begin records a newly established session and speaks its first message
func (m Machine) begin(sessionID, message, phase string) (Machine, []Effect) {
	m.sessionID = sessionID
	m.phase = phaseOf(phase)
	return m.speak(message)
}

// speak appends an AI turn and starts synthesizing it. Callers guarantee no
// capture is active.
func (m Machine) speak(text string) (Machine, []Effect) {
	text = strings.TrimSpace(text)
	if text == "" {
		return m.afterSpeech()
	}
	m.failure = nil
	m = m.appendTurn(SpeakerAI, text)
	m.state = StateAISpeaking
	m.speech = m.nextID()
	return m, []Effect{Speak{Speech: m.speech, Text: text}}
}

// afterSpeech arms listening unless the interview has moved to reporting
func (m Machine) afterSpeech() (Machine, []Effect) {
	if m.phase.Terminal() {
		m.state = StateReporting
		return m, nil
	}
	return m.listen()
}

func (m Machine) listen() (Machine, []Effect) {
	if m.speech != 0 || m.capture != 0 {
		return m, nil
	}
	m.state = StateUserListening
	m.capture = m.nextID()
	return m, []Effect{Listen{Capture: m.capture}}
}

func (m Machine) toggle() (Machine, []Effect) {
	switch m.state {
	case StateAISpeaking:
		// SpeechEnded decides what comes next
		return m, []Effect{CancelSpeech{Speech: m.speech}}
	case StateUserListening:
		return m, []Effect{StopListening{Capture: m.capture}}
	case StateIdle:
		if m.sessionID == "" || m.phase.Terminal() {
			return m, nil
		}
		m.failure = nil
		return m.listen()
	}
	return m, nil
}

func (m Machine) leave() (Machine, []Effect) {
	var effects []Effect
	if m.speech != 0 {
		effects = append(effects, CancelSpeech{Speech: m.speech})
	}
	if m.capture != 0 {
		effects = append(effects, AbortCapture{Capture: m.capture})
	}
	m.speech, m.capture, m.request = 0, 0, 0
	m.state = StateIdle
	m.closed = true
	return m, effects
}

func (m Machine) fail(kind ErrorKind, msg string, fatal bool) Machine {
	m.failure = &Failure{Kind: kind, Message: msg, Fatal: fatal}
	if fatal {
		m.state = StateError
		m.phase = PhaseError
	}
	return m
}

func (m Machine) appendTurn(speaker Speaker, text string) Machine {
	n := len(m.turns)
	m.turns = append(m.turns[:n:n], Turn{Speaker: speaker, Text: text, Position: n})
	return m
}

func (m *Machine) nextID() uint64 {
	m.lastID++
	return m.lastID
}
