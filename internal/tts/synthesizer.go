package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/interview-voice/internal/audio"
	"github.com/lexiqai/interview-voice/internal/observability"
	"github.com/lexiqai/interview-voice/internal/resilience"
)

// SynthesizerOptions tunes chunking and request fan-out
type SynthesizerOptions struct {
	MaxChunkChars int
	Concurrency   int
	Retry         *resilience.RetryConfig
	Logger        zerolog.Logger
	Metrics       *observability.Metrics
}

// Synthesizer speaks one utterance at a time: it chunks the text, synthesizes
// chunks concurrently, joins the decoded audio in source order and plays it.
type Synthesizer struct {
	client      Client
	speaker     Speaker
	maxChars    int
	concurrency int
	retry       *resilience.RetryConfig
	logger      zerolog.Logger
	metrics     *observability.Metrics

	mu     sync.Mutex
	active *utterance
	nextID uint64
}

type utterance struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc
	cb     SpeakCallbacks

	mu     sync.Mutex
	handle *PlaybackHandle

	endOnce sync.Once
}

// NewSynthesizer creates a synthesizer that plays through speaker
func NewSynthesizer(client Client, speaker Speaker, opts SynthesizerOptions) *Synthesizer {
	if opts.MaxChunkChars <= 0 {
		opts.MaxChunkChars = DefaultMaxChunkChars
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Retry == nil {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewSessionMetrics("")
	}
	return &Synthesizer{
		client:      client,
		speaker:     speaker,
		maxChars:    opts.MaxChunkChars,
		concurrency: opts.Concurrency,
		retry:       opts.Retry,
		logger:      observability.WithComponent(opts.Logger, "synthesizer"),
		metrics:     opts.Metrics,
	}
}

// IsAvailable reports whether the underlying provider can be used
func (s *Synthesizer) IsAvailable() bool {
	return s.client != nil && s.client.IsAvailable() && s.speaker != nil
}

// Speak stops any utterance in progress and starts speaking text. OnStart is
// invoked before Speak returns; OnEnd fires exactly once when the utterance
// completes, fails or is cancelled.
func (s *Synthesizer) Speak(text string, cb SpeakCallbacks) {
	s.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.nextID++
	u := &utterance{id: s.nextID, ctx: ctx, cancel: cancel, cb: cb}
	s.active = u
	s.mu.Unlock()

	s.metrics.RecordTTSStart()
	if cb.OnStart != nil {
		cb.OnStart()
	}

	go s.run(u, text)
}

// Cancel stops the active utterance, if any. Its OnEnd has fired by the time
// Cancel returns. Safe to call when nothing is playing.
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	u := s.active
	s.active = nil
	s.mu.Unlock()

	if u == nil {
		return
	}

	u.cancel()
	u.mu.Lock()
	handle := u.handle
	u.mu.Unlock()
	if handle != nil {
		handle.Stop()
	}

	s.logger.Debug().Uint64("utterance", u.id).Msg("utterance cancelled")
	s.end(u, nil)
}

// Active reports whether an utterance is being synthesized or played
func (s *Synthesizer) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

func (s *Synthesizer) run(u *utterance, text string) {
	logger := s.logger.With().Uint64("utterance", u.id).Logger()

	chunks := ChunkText(text, s.maxChars)
	if len(chunks) == 0 {
		logger.Debug().Msg("nothing to speak")
		s.finish(u, nil)
		return
	}

	buf, err := s.render(u.ctx, logger, chunks)
	if u.ctx.Err() != nil {
		return
	}
	if err != nil {
		logger.Error().Err(err).Int("chunks", len(chunks)).Msg("utterance synthesis failed")
		s.finish(u, err)
		return
	}

	handle, err := s.speaker.Play(u.ctx, buf)
	if err != nil {
		if u.ctx.Err() != nil {
			return
		}
		logger.Error().Err(err).Msg("playback failed to start")
		s.finish(u, fmt.Errorf("playback: %w", err))
		return
	}

	u.mu.Lock()
	u.handle = handle
	u.mu.Unlock()

	// Cancel may have run between Play returning and the handle being stored
	if u.ctx.Err() != nil {
		handle.Stop()
		return
	}

	logger.Debug().
		Str("playback_id", handle.ID()).
		Str("kind", handle.Kind().String()).
		Dur("duration", buf.Duration()).
		Msg("playback started")

	select {
	case <-handle.Done():
	case <-u.ctx.Done():
		return
	}

	if err := handle.Err(); err != nil && !errors.Is(err, ErrPlaybackStopped) {
		logger.Error().Err(err).Msg("playback error")
		s.finish(u, fmt.Errorf("playback: %w", err))
		return
	}
	s.finish(u, nil)
}

// render synthesizes every chunk and joins the results in chunk order.
// Failed chunks are skipped; no successful chunk is an error.
func (s *Synthesizer) render(ctx context.Context, logger zerolog.Logger, chunks []string) (audio.Buffer, error) {
	results := make([]*audio.Buffer, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			buf, err := s.renderChunk(gctx, chunk)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				if errors.Is(err, audio.ErrFormatMismatch) {
					return err
				}
				logger.Warn().Err(err).Int("chunk_index", i).Int("chars", len(chunk)).Msg("skipping chunk")
				s.metrics.RecordTTSChunkFailure()
				return nil
			}
			results[i] = &buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return audio.Buffer{}, &SynthesisError{Provider: s.client.Name(), Message: "format mismatch between chunks", Err: err}
	}

	decoded := make([]audio.Buffer, 0, len(results))
	for _, r := range results {
		if r != nil {
			decoded = append(decoded, *r)
		}
	}
	if len(decoded) == 0 {
		return audio.Buffer{}, &SynthesisError{Provider: s.client.Name(), Err: ErrNoChunks}
	}

	joined, err := audio.Concat(decoded...)
	if err != nil {
		return audio.Buffer{}, &SynthesisError{Provider: s.client.Name(), Message: "format mismatch between chunks", Err: err}
	}

	logger.Debug().
		Int("chunks", len(chunks)).
		Int("rendered", len(decoded)).
		Int("sample_rate", joined.SampleRate).
		Msg("utterance rendered")
	return joined, nil
}

func (s *Synthesizer) renderChunk(ctx context.Context, text string) (audio.Buffer, error) {
	var payloads [][]byte
	err := resilience.Retry(ctx, func(ctx context.Context) error {
		var err error
		payloads, err = s.client.Synthesize(ctx, text)
		return err
	}, s.retry, isRetryableSynthesis)
	if err != nil {
		return audio.Buffer{}, err
	}

	bufs := make([]audio.Buffer, 0, len(payloads))
	for _, p := range payloads {
		buf, err := audio.DecodeWAV(p)
		if err != nil {
			return audio.Buffer{}, err
		}
		if len(buf.Samples) == 0 {
			continue
		}
		bufs = append(bufs, buf)
	}
	if len(bufs) == 0 {
		return audio.Buffer{}, ErrEmptyAudio
	}
	return audio.Concat(bufs...)
}

func isRetryableSynthesis(err error) bool {
	var se *SynthesisError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return resilience.IsRetryableNetworkError(err)
}

// finish completes an utterance from the worker goroutine
func (s *Synthesizer) finish(u *utterance, err error) {
	s.mu.Lock()
	if s.active == u {
		s.active = nil
	}
	s.mu.Unlock()
	s.end(u, err)
}

func (s *Synthesizer) end(u *utterance, err error) {
	u.endOnce.Do(func() {
		u.cancel()
		s.metrics.RecordTTSEnd(err == nil)
		if err != nil {
			s.metrics.RecordError("synthesis", "tts")
			if u.cb.OnError != nil {
				u.cb.OnError(err)
			}
		}
		if u.cb.OnEnd != nil {
			u.cb.OnEnd()
		}
	})
}
