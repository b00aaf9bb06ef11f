package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-voice/internal/backend"
	"github.com/lexiqai/interview-voice/internal/observability"
	"github.com/lexiqai/interview-voice/internal/stt"
	"github.com/lexiqai/interview-voice/internal/tts"
)

// Speech is the synthesis side of the session (tts.Synthesizer)
type Speech interface {
	IsAvailable() bool
	Speak(text string, cb tts.SpeakCallbacks)
	Cancel()
}

// Listener is the capture side of the session (stt.Capture)
type Listener interface {
	IsAvailable() bool
	StartListening(cb stt.ListenCallbacks, opts stt.ListenOptions)
	StopListening()
	Abort()
}

// Backend is the interview session API (backend.Client)
type Backend interface {
	StartInterview(ctx context.Context, resume backend.Resume) (*backend.StartResponse, error)
	ContinueInterview(ctx context.Context, sessionID, response string) (*backend.ContinueResponse, error)
}

// Options configures an Orchestrator
type Options struct {
	Listen  stt.ListenOptions
	Logger  zerolog.Logger
	Metrics *observability.Metrics

	// OnChange receives every new snapshot. It runs on the event loop and
	// must not block; it may call Toggle or Leave.
	OnChange func(Snapshot)
}

// StartParams selects how a session is bootstrapped: from a resume, or from
// a session a previous step already opened.
type StartParams struct {
	Resume    *backend.Resume
	SessionID string
	Message   string
	Phase     string
}

// Orchestrator runs one interview session. Events from the adapters are
// queued and applied to the Machine one at a time; effects run outside the
// lock, so adapter callbacks fired synchronously by an effect are simply
// queued behind it.
type Orchestrator struct {
	speech   Speech
	listener Listener
	api      Backend
	opts     Options
	logger   zerolog.Logger
	metrics  *observability.Metrics

	ctx      context.Context
	cancel   context.CancelFunc
	stopLink func() bool

	mu       sync.Mutex
	machine  Machine
	queue    []Event
	draining bool

	done     chan struct{}
	doneOnce sync.Once
}

// New creates an orchestrator for one session
func New(speech Speech, listener Listener, api Backend, opts Options) *Orchestrator {
	if opts.Metrics == nil {
		opts.Metrics = observability.NewSessionMetrics("")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		speech:   speech,
		listener: listener,
		api:      api,
		opts:     opts,
		logger:   observability.WithComponent(opts.Logger, "orchestrator"),
		metrics:  opts.Metrics,
		ctx:      ctx,
		cancel:   cancel,
		machine:  NewMachine(),
		done:     make(chan struct{}),
	}
}

// Start checks the speech services and bootstraps the session. Cancelling
// ctx has the same effect as Leave.
func (o *Orchestrator) Start(ctx context.Context, params StartParams) {
	o.mu.Lock()
	if o.stopLink == nil {
		o.stopLink = context.AfterFunc(ctx, o.Leave)
	}
	o.mu.Unlock()

	ready := o.speech != nil && o.speech.IsAvailable() &&
		o.listener != nil && o.listener.IsAvailable()
	if !ready {
		o.logger.Error().Msg("speech services unavailable")
	}

	o.dispatch(StartRequested{
		ServicesReady: ready,
		Resume:        params.Resume,
		SessionID:     params.SessionID,
		Message:       params.Message,
		Phase:         params.Phase,
	})
}

// Toggle is the talk button: it interrupts the AI, stops listening, or starts listening
func (o *Orchestrator) Toggle() {
	o.dispatch(ToggleRequested{})
}

// Leave ends the session, cancelling speech and discarding any capture
func (o *Orchestrator) Leave() {
	o.dispatch(LeaveRequested{})
	o.cancel()

	o.mu.Lock()
	stop := o.stopLink
	o.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Snapshot returns the current session view
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.machine.Snapshot()
}

// Done is closed once the session can make no further progress: the user
// left, a fatal error occurred, or the interview reached reporting.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

func (o *Orchestrator) dispatch(ev Event) {
	o.mu.Lock()
	o.queue = append(o.queue, ev)
	if o.draining {
		o.mu.Unlock()
		return
	}
	o.draining = true

	for len(o.queue) > 0 {
		ev := o.queue[0]
		o.queue = o.queue[1:]

		prev := o.machine
		next, effects := Transition(prev, ev)
		o.machine = next
		o.mu.Unlock()

		o.observe(ev, prev, next, effects)
		for _, eff := range effects {
			o.perform(eff)
		}

		o.mu.Lock()
	}

	o.draining = false
	o.mu.Unlock()
}

func (o *Orchestrator) observe(ev Event, prev, next Machine, effects []Effect) {
	if prev.state != next.state {
		o.logger.Debug().
			Str("event", ev.EventName()).
			Str("from", string(prev.state)).
			Str("to", string(next.state)).
			Int("effects", len(effects)).
			Msg("state transition")
	}

	if prev.sessionID == "" && next.sessionID != "" {
		o.metrics.RecordSessionStart()
		o.logger.Info().Str("session_id", next.sessionID).Str("phase", string(next.phase)).Msg("interview session established")
	}
	for _, t := range next.turns[len(prev.turns):] {
		o.metrics.RecordTurn(string(t.Speaker))
	}
	if next.failure != nil && next.failure != prev.failure {
		o.metrics.RecordError(string(next.failure.Kind), "orchestrator")
		entry := o.logger.Warn()
		if next.failure.Fatal {
			entry = o.logger.Error()
		}
		entry.Str("kind", string(next.failure.Kind)).Str("message", next.failure.Message).Msg("session error")
	}
	if next.closed && !prev.closed {
		if prev.sessionID != "" {
			o.metrics.RecordSessionEnd()
		}
		o.logger.Info().Str("session_id", next.sessionID).Int("turns", len(next.turns)).Msg("left interview")
	}

	if next.closed || next.state == StateError || next.state == StateReporting {
		o.doneOnce.Do(func() { close(o.done) })
	}

	if o.opts.OnChange != nil && (prev.state != next.state || len(prev.turns) != len(next.turns) ||
		prev.failure != next.failure || prev.phase != next.phase || prev.closed != next.closed ||
		prev.elapsedMinutes != next.elapsedMinutes) {
		o.opts.OnChange(next.Snapshot())
	}
}

func (o *Orchestrator) perform(eff Effect) {
	switch eff := eff.(type) {
	case StartSession:
		go o.startSession(eff)
	case Speak:
		o.speak(eff)
	case CancelSpeech:
		o.speech.Cancel()
	case Listen:
		o.listener.StartListening(o.listenCallbacks(eff.Capture), o.opts.Listen)
	case StopListening:
		o.listener.StopListening()
	case AbortCapture:
		o.listener.Abort()
	case SubmitResponse:
		go o.submit(eff)
	default:
		o.logger.Warn().Str("effect", eff.EffectName()).Msg("unhandled effect")
	}
}

func (o *Orchestrator) startSession(eff StartSession) {
	resp, err := o.api.StartInterview(o.ctx, eff.Resume)
	if err != nil {
		o.dispatch(SessionStartFailed{Request: eff.Request, Err: err})
		return
	}
	o.dispatch(SessionStarted{
		Request:   eff.Request,
		SessionID: resp.SessionID,
		Message:   resp.Message,
		Phase:     resp.Phase,
	})
}

func (o *Orchestrator) submit(eff SubmitResponse) {
	resp, err := o.api.ContinueInterview(o.ctx, eff.SessionID, eff.Text)
	if err != nil {
		o.dispatch(BackendFailed{Request: eff.Request, Err: err})
		return
	}
	o.dispatch(BackendReplied{
		Request:        eff.Request,
		Message:        resp.Message,
		Phase:          resp.Phase,
		ElapsedMinutes: resp.ElapsedTimeMinutes,
	})
}

func (o *Orchestrator) speak(eff Speak) {
	id := eff.Speech
	if !o.speech.IsAvailable() {
		o.dispatch(SpeechFailed{Speech: id, Err: errors.New(msgSpeechNotReady)})
		o.dispatch(SpeechEnded{Speech: id})
		return
	}
	o.speech.Speak(eff.Text, tts.SpeakCallbacks{
		OnError: func(err error) { o.dispatch(SpeechFailed{Speech: id, Err: err}) },
		OnEnd:   func() { o.dispatch(SpeechEnded{Speech: id}) },
	})
}

func (o *Orchestrator) listenCallbacks(id uint64) stt.ListenCallbacks {
	return stt.ListenCallbacks{
		OnFinalResult: func(text string) { o.dispatch(CaptureResult{Capture: id, Text: text}) },
		OnError:       func(err error) { o.dispatch(CaptureFailed{Capture: id, Err: err}) },
		OnListeningStateChange: func(listening bool, state stt.ListeningState) {
			o.dispatch(ListeningChanged{Capture: id, Listening: listening, State: state})
		},
	}
}
