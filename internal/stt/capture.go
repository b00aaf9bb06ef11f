package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-voice/internal/audio"
	"github.com/lexiqai/interview-voice/internal/observability"
	"github.com/lexiqai/interview-voice/internal/resilience"
)

// CaptureOptions configures a Capture adapter
type CaptureOptions struct {
	InitialSpeechTimeout time.Duration
	SilenceTimeout       time.Duration
	STTSampleRate        int // captured audio is resampled to this rate before upload
	Retry                *resilience.RetryConfig
	Clock                clock.Clock
	Logger               zerolog.Logger
	Metrics              *observability.Metrics
}

// Capture records one user utterance at a time from a microphone, ends it on
// an initial-speech or silence deadline (or on request), and transcribes it.
type Capture struct {
	client  Client
	mic     Microphone
	opts    CaptureOptions
	clock   clock.Clock
	logger  zerolog.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	current *captureSession
	nextID  uint64
}

// sessionPhase extends ListeningState with the microphone acquisition step,
// which is reported as idle.
type sessionPhase int

const (
	phaseAcquiring sessionPhase = iota
	phaseListening
	phaseTranscribing
)

type captureSession struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc
	cb     ListenCallbacks
	opts   ListenOptions

	phase         sessionPhase
	stopRequested bool
	stream        Stream
	sampleRate    int
	samples       []int16

	timer    *clock.Timer
	timerSeq uint64

	halt   chan struct{} // closed by stop; the pump drains what is queued and exits
	pumped chan struct{} // closed when the pump has exited
}

// NewCapture creates a capture adapter
func NewCapture(client Client, mic Microphone, opts CaptureOptions) *Capture {
	if opts.InitialSpeechTimeout <= 0 {
		opts.InitialSpeechTimeout = DefaultInitialSpeechTimeout
	}
	if opts.SilenceTimeout <= 0 {
		opts.SilenceTimeout = DefaultSilenceTimeout
	}
	if opts.Retry == nil {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewSessionMetrics("")
	}
	return &Capture{
		client:  client,
		mic:     mic,
		opts:    opts,
		clock:   opts.Clock,
		logger:  observability.WithComponent(opts.Logger, "capture"),
		metrics: opts.Metrics,
	}
}

// IsAvailable reports whether a microphone and transcription provider are configured
func (c *Capture) IsAvailable() bool {
	return c.mic != nil && c.client != nil && c.client.IsAvailable()
}

// State returns the current listening state
func (c *Capture) State() ListeningState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return StateIdle
	}
	switch c.current.phase {
	case phaseListening:
		return StateListening
	case phaseTranscribing:
		return StateTranscribing
	default:
		return StateIdle
	}
}

// StartListening acquires the microphone and begins buffering audio. Any
// capture still in progress is aborted without callbacks.
func (c *Capture) StartListening(cb ListenCallbacks, opts ListenOptions) {
	if opts.InitialSpeechTimeout <= 0 {
		opts.InitialSpeechTimeout = c.opts.InitialSpeechTimeout
	}
	if opts.SilenceTimeout <= 0 {
		opts.SilenceTimeout = c.opts.SilenceTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	prev := c.detachLocked()
	c.nextID++
	s := &captureSession{
		id:     c.nextID,
		ctx:    ctx,
		cancel: cancel,
		cb:     cb,
		opts:   opts,
		halt:   make(chan struct{}),
		pumped: make(chan struct{}),
	}
	c.current = s
	c.mu.Unlock()

	if prev != nil {
		c.logger.Warn().Uint64("capture", prev.id).Msg("aborting capture superseded by a new one")
		release(prev)
	}

	go c.acquire(s)
}

// StopListening ends the current capture and transcribes what was buffered.
// It is a no-op unless the adapter is listening or acquiring the microphone.
func (c *Capture) StopListening() {
	c.mu.Lock()
	s := c.current
	if s == nil {
		c.mu.Unlock()
		return
	}
	if s.phase == phaseAcquiring {
		s.stopRequested = true
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.stop(s, "manual")
}

// Abort tears down any capture in progress without invoking its callbacks
func (c *Capture) Abort() {
	c.mu.Lock()
	s := c.detachLocked()
	c.mu.Unlock()

	if s != nil {
		c.logger.Debug().Uint64("capture", s.id).Msg("capture aborted")
		release(s)
	}
}

// detachLocked clears the current session and its timer. Caller holds mu.
func (c *Capture) detachLocked() *captureSession {
	s := c.current
	if s == nil {
		return nil
	}
	c.current = nil
	s.stopTimerLocked()
	return s
}

func release(s *captureSession) {
	s.cancel()
	if s.stream != nil {
		_ = s.stream.Close()
	}
}

func (c *Capture) acquire(s *captureSession) {
	stream, err := c.mic.Open(s.ctx)

	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		if stream != nil {
			_ = stream.Close()
		}
		return
	}
	if err != nil {
		c.current = nil
		c.mu.Unlock()
		s.cancel()

		c.logger.Warn().Err(err).Msg("microphone unavailable")
		c.metrics.RecordError("capture", "microphone")
		if s.cb.OnError != nil {
			s.cb.OnError(fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err))
		}
		notify(s, false, StateIdle)
		return
	}
	s.stream = stream
	s.sampleRate = stream.SampleRate()
	c.mu.Unlock()

	notify(s, true, StateListening)

	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}
	s.phase = phaseListening
	stopRequested := s.stopRequested
	if !stopRequested {
		c.armLocked(s, s.opts.InitialSpeechTimeout, "initial_speech")
	}
	c.mu.Unlock()

	c.logger.Debug().Uint64("capture", s.id).Int("sample_rate", s.sampleRate).Msg("listening")
	go c.pump(s)
	if stopRequested {
		c.stop(s, "manual")
	}
}

// armLocked replaces the session's deadline. Caller holds mu.
func (c *Capture) armLocked(s *captureSession, d time.Duration, reason string) {
	s.stopTimerLocked()
	s.timerSeq++
	seq := s.timerSeq
	s.timer = c.clock.AfterFunc(d, func() {
		c.mu.Lock()
		stale := c.current != s || s.timerSeq != seq || s.phase != phaseListening
		c.mu.Unlock()
		if stale {
			return
		}
		c.logger.Debug().Uint64("capture", s.id).Str("reason", reason).Msg("capture deadline reached")
		c.stop(s, reason)
	})
}

func (s *captureSession) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerSeq++
}

// pump buffers frames until the stream ends, the session is torn down, or
// stop halts it. A halted pump first takes every frame already queued.
func (c *Capture) pump(s *captureSession) {
	ended := c.collect(s)
	close(s.pumped)
	if ended {
		c.stop(s, "stream_closed")
	}
}

// collect reports whether the stream itself ended
func (c *Capture) collect(s *captureSession) bool {
	data := s.stream.Data()
	for {
		select {
		case <-s.ctx.Done():
			return false
		case <-s.halt:
			c.drain(s, data)
			return false
		case frame, ok := <-data:
			if !ok {
				return true
			}
			if !c.buffer(s, frame) {
				return false
			}
		}
	}
}

func (c *Capture) drain(s *captureSession, data <-chan []int16) {
	for {
		select {
		case frame, ok := <-data:
			if !ok || !c.buffer(s, frame) {
				return
			}
		default:
			return
		}
	}
}

// buffer appends one frame, restarting the silence deadline while listening.
// It returns false once the session is no longer current.
func (c *Capture) buffer(s *captureSession, frame []int16) bool {
	if len(frame) == 0 {
		return true
	}
	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return false
	}
	s.samples = append(s.samples, frame...)
	if s.phase == phaseListening {
		c.armLocked(s, s.opts.SilenceTimeout, "silence")
	}
	c.mu.Unlock()
	c.metrics.RecordAudioBytes("in", int64(len(frame)*2))
	return true
}

// stop moves a listening session to transcribing, releases the microphone
// and transcribes everything delivered up to that point.
func (c *Capture) stop(s *captureSession, reason string) {
	c.mu.Lock()
	if c.current != s || s.phase != phaseListening {
		c.mu.Unlock()
		return
	}
	s.phase = phaseTranscribing
	s.stopTimerLocked()
	stream := s.stream
	c.mu.Unlock()

	_ = stream.Close()
	close(s.halt)
	<-s.pumped

	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}
	samples := s.samples
	s.samples = nil
	c.mu.Unlock()

	c.logger.Debug().
		Uint64("capture", s.id).
		Str("reason", reason).
		Int("samples", len(samples)).
		Msg("capture stopped")

	notify(s, false, StateTranscribing)
	go c.transcribe(s, samples)
}

func (c *Capture) transcribe(s *captureSession, samples []int16) {
	if len(samples) == 0 {
		c.finish(s, "", nil)
		return
	}

	rate := s.sampleRate
	if target := c.opts.STTSampleRate; target > 0 && rate > 0 && target != rate {
		samples = audio.Resample(samples, rate, target)
		rate = target
	}
	wav := audio.EncodeWAV(audio.Buffer{Channels: 1, SampleRate: rate, Samples: samples})

	c.metrics.RecordSTTStart()
	var text string
	err := resilience.Retry(s.ctx, func(ctx context.Context) error {
		var err error
		text, err = c.client.Transcribe(ctx, wav)
		return err
	}, c.opts.Retry, isRetryableTranscription)
	c.metrics.RecordSTTEnd(err == nil)

	if err != nil && s.ctx.Err() != nil {
		return
	}
	c.finish(s, text, err)
}

func isRetryableTranscription(err error) bool {
	var te *TranscriptionError
	if errors.As(err, &te) {
		return te.Retryable
	}
	return resilience.IsRetryableNetworkError(err)
}

func (c *Capture) finish(s *captureSession, text string, err error) {
	c.mu.Lock()
	if c.current != s {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.mu.Unlock()
	s.cancel()

	if err != nil {
		c.logger.Error().Err(err).Uint64("capture", s.id).Msg("transcription failed")
		c.metrics.RecordError("capture", "stt")
		if s.cb.OnError != nil {
			s.cb.OnError(err)
		}
	} else if s.cb.OnFinalResult != nil {
		s.cb.OnFinalResult(text)
	}
	notify(s, false, StateIdle)
}

func notify(s *captureSession, listening bool, state ListeningState) {
	if s.cb.OnListeningStateChange != nil {
		s.cb.OnListeningStateChange(listening, state)
	}
}
