package tts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/interview-voice/internal/audio"
	"github.com/lexiqai/interview-voice/internal/resilience"
)

type fakeClient struct {
	synthesize func(ctx context.Context, text string) ([][]byte, error)
	calls      atomic.Int32
}

func (f *fakeClient) Synthesize(ctx context.Context, text string) ([][]byte, error) {
	f.calls.Add(1)
	return f.synthesize(ctx, text)
}

func (f *fakeClient) IsAvailable() bool { return true }

func (f *fakeClient) Name() string { return "fake" }

type fakeSpeaker struct {
	autoFinish bool
	finishErr  error
	playErr    error

	mu      sync.Mutex
	played  []audio.Buffer
	handles []*PlaybackHandle
	stops   atomic.Int32
}

func (f *fakeSpeaker) Play(ctx context.Context, buf audio.Buffer) (*PlaybackHandle, error) {
	if f.playErr != nil {
		return nil, f.playErr
	}
	h := NewPlaybackHandle(BufferedSource, func() { f.stops.Add(1) })
	f.mu.Lock()
	f.played = append(f.played, buf)
	f.handles = append(f.handles, h)
	f.mu.Unlock()
	if f.autoFinish {
		go h.Finish(f.finishErr)
	}
	return h, nil
}

func (f *fakeSpeaker) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.played)
}

type recorder struct {
	starts atomic.Int32
	ends   atomic.Int32
	errs   atomic.Int32

	mu      sync.Mutex
	lastErr error
}

func (r *recorder) callbacks() SpeakCallbacks {
	return SpeakCallbacks{
		OnStart: func() { r.starts.Add(1) },
		OnEnd:   func() { r.ends.Add(1) },
		OnError: func(err error) {
			r.mu.Lock()
			r.lastErr = err
			r.mu.Unlock()
			r.errs.Add(1)
		},
	}
}

func (r *recorder) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func wavOf(rate int, samples ...int16) []byte {
	return audio.EncodeWAV(audio.Buffer{Channels: 1, SampleRate: rate, Samples: samples})
}

func newTestSynthesizer(client Client, speaker Speaker) *Synthesizer {
	return NewSynthesizer(client, speaker, SynthesizerOptions{
		MaxChunkChars: 5,
		Concurrency:   3,
		Retry:         &resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1},
		Logger:        zerolog.Nop(),
	})
}

var chunkValues = map[string]int16{"One.": 1, "Two.": 2, "Three.": 3}

func TestSynthesizer_AssemblesChunksInSourceOrder(t *testing.T) {
	delays := map[string]time.Duration{"One.": 40 * time.Millisecond, "Two.": 20 * time.Millisecond, "Three.": 0}
	client := &fakeClient{synthesize: func(ctx context.Context, text string) ([][]byte, error) {
		time.Sleep(delays[text])
		v := chunkValues[text]
		return [][]byte{wavOf(22050, v, v)}, nil
	}}
	speaker := &fakeSpeaker{autoFinish: true}
	rec := &recorder{}

	s := newTestSynthesizer(client, speaker)
	s.Speak("One. Two. Three.", rec.callbacks())

	require.Eventually(t, func() bool { return rec.ends.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), rec.starts.Load())
	assert.Equal(t, int32(0), rec.errs.Load())
	assert.Equal(t, int32(3), client.calls.Load())

	require.Equal(t, 1, speaker.playCount())
	assert.Equal(t, []int16{1, 1, 2, 2, 3, 3}, speaker.played[0].Samples)
	assert.Equal(t, 22050, speaker.played[0].SampleRate)
	assert.False(t, s.Active())
}

func TestSynthesizer_SkipsFailedChunk(t *testing.T) {
	client := &fakeClient{synthesize: func(ctx context.Context, text string) ([][]byte, error) {
		if text == "Two." {
			return nil, &SynthesisError{Provider: "fake", StatusCode: 400, Message: "bad chunk"}
		}
		v := chunkValues[text]
		return [][]byte{wavOf(22050, v)}, nil
	}}
	speaker := &fakeSpeaker{autoFinish: true}
	rec := &recorder{}

	s := newTestSynthesizer(client, speaker)
	s.Speak("One. Two. Three.", rec.callbacks())

	require.Eventually(t, func() bool { return rec.ends.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), rec.errs.Load())
	require.Equal(t, 1, speaker.playCount())
	assert.Equal(t, []int16{1, 3}, speaker.played[0].Samples)
}

func TestSynthesizer_EmptyPayloadSkipsChunk(t *testing.T) {
	client := &fakeClient{synthesize: func(ctx context.Context, text string) ([][]byte, error) {
		if text == "One." {
			return [][]byte{wavOf(22050)}, nil
		}
		v := chunkValues[text]
		return [][]byte{wavOf(22050, v)}, nil
	}}
	speaker := &fakeSpeaker{autoFinish: true}
	rec := &recorder{}

	s := newTestSynthesizer(client, speaker)
	s.Speak("One. Two. Three.", rec.callbacks())

	require.Eventually(t, func() bool { return rec.ends.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, speaker.playCount())
	assert.Equal(t, []int16{2, 3}, speaker.played[0].Samples)
}

func TestSynthesizer_AllChunksFail(t *testing.T) {
	client := &fakeClient{synthesize: func(ctx context.Context, text string) ([][]byte, error) {
		return nil, errors.New("network down")
	}}
	speaker := &fakeSpeaker{autoFinish: true}
	rec := &recorder{}

	s := newTestSynthesizer(client, speaker)
	s.Speak("One. Two.", rec.callbacks())

	require.Eventually(t, func() bool { return rec.ends.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), rec.errs.Load())
	assert.ErrorIs(t, rec.err(), ErrNoChunks)
	var se *SynthesisError
	assert.ErrorAs(t, rec.err(), &se)
	assert.Equal(t, 0, speaker.playCount())
}

func TestSynthesizer_FormatMismatchIsFatal(t *testing.T) {
	client := &fakeClient{synthesize: func(ctx context.Context, text string) ([][]byte, error) {
		if text == "Two." {
			return [][]byte{wavOf(16000, 2)}, nil
		}
		return [][]byte{wavOf(22050, chunkValues[text])}, nil
	}}
	speaker := &fakeSpeaker{autoFinish: true}
	rec := &recorder{}

	s := newTestSynthesizer(client, speaker)
	s.Speak("One. Two.", rec.callbacks())

	require.Eventually(t, func() bool { return rec.ends.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), rec.errs.Load())
	assert.ErrorIs(t, rec.err(), audio.ErrFormatMismatch)
	assert.Equal(t, 0, speaker.playCount())
}

func TestSynthesizer_RetriesRetryableChunk(t *testing.T) {
	var attempts atomic.Int32
	client := &fakeClient{synthesize: func(ctx context.Context, text string) ([][]byte, error) {
		if attempts.Add(1) == 1 {
			return nil, &SynthesisError{Provider: "fake", StatusCode: 503, Retryable: true}
		}
		return [][]byte{wavOf(22050, 9)}, nil
	}}
	speaker := &fakeSpeaker{autoFinish: true}
	rec := &recorder{}

	s := NewSynthesizer(client, speaker, SynthesizerOptions{
		Retry:  &resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1},
		Logger: zerolog.Nop(),
	})
	s.Speak("Hi.", rec.callbacks())

	require.Eventually(t, func() bool { return rec.ends.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), rec.errs.Load())
	assert.Equal(t, int32(2), attempts.Load())
}

func TestSynthesizer_PlaybackError(t *testing.T) {
	client := &fakeClient{synthesize: func(ctx context.Context, text string) ([][]byte, error) {
		return [][]byte{wavOf(22050, 1)}, nil
	}}
	speaker := &fakeSpeaker{autoFinish: true, finishErr: errors.New("device lost")}
	rec := &recorder{}

	s := newTestSynthesizer(client, speaker)
	s.Speak("Hi.", rec.callbacks())

	require.Eventually(t, func() bool { return rec.ends.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), rec.errs.Load())
	assert.ErrorContains(t, rec.err(), "device lost")
}

func TestSynthesizer_PlayStartError(t *testing.T) {
	client := &fakeClient{synthesize: func(ctx context.Context, text string) ([][]byte, error) {
		return [][]byte{wavOf(22050, 1)}, nil
	}}
	speaker := &fakeSpeaker{playErr: errors.New("no output device")}
	rec := &recorder{}

	s := newTestSynthesizer(client, speaker)
	s.Speak("Hi.", rec.callbacks())

	require.Eventually(t, func() bool { return rec.ends.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), rec.errs.Load())
}

func TestSynthesizer_EmptyText(t *testing.T) {
	client := &fakeClient{synthesize: func(ctx context.Context, text string) ([][]byte, error) {
		return nil, errors.New("unexpected call")
	}}
	speaker := &fakeSpeaker{autoFinish: true}
	rec := &recorder{}

	s := newTestSynthesizer(client, speaker)
	s.Speak("   ", rec.callbacks())

	require.Eventually(t, func() bool { return rec.ends.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), rec.starts.Load())
	assert.Equal(t, int32(0), rec.errs.Load())
	assert.Equal(t, int32(0), client.calls.Load())
}

func TestSynthesizer_SpeakThenCancelEndsOnce(t *testing.T) {
	for i := 0; i < 50; i++ {
		client := &fakeClient{synthesize: func(ctx context.Context, text string) ([][]byte, error) {
			return [][]byte{wavOf(22050, 1)}, nil
		}}
		speaker := &fakeSpeaker{autoFinish: i%2 == 0}
		rec := &recorder{}

		s := newTestSynthesizer(client, speaker)
		s.Speak("One. Two. Three.", rec.callbacks())
		s.Cancel()

		assert.Equal(t, int32(1), rec.ends.Load(), "OnEnd must have fired when Cancel returns")

		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(1), rec.ends.Load())
		assert.LessOrEqual(t, rec.errs.Load(), int32(1))
		assert.False(t, s.Active())
	}
}

func TestSynthesizer_CancelDuringPlayback(t *testing.T) {
	client := &fakeClient{synthesize: func(ctx context.Context, text string) ([][]byte, error) {
		return [][]byte{wavOf(22050, 1)}, nil
	}}
	speaker := &fakeSpeaker{}
	rec := &recorder{}

	s := newTestSynthesizer(client, speaker)
	s.Speak("Hi.", rec.callbacks())
	require.Eventually(t, func() bool { return speaker.playCount() == 1 }, time.Second, 5*time.Millisecond)
	// Give the worker time to store the handle
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.active == nil {
			return false
		}
		s.active.mu.Lock()
		defer s.active.mu.Unlock()
		return s.active.handle != nil
	}, time.Second, 5*time.Millisecond)

	s.Cancel()

	assert.Equal(t, int32(1), rec.ends.Load())
	assert.Equal(t, int32(0), rec.errs.Load())
	assert.Equal(t, int32(1), speaker.stops.Load())
	assert.ErrorIs(t, speaker.handles[0].Err(), ErrPlaybackStopped)
}

func TestSynthesizer_CancelWhenIdle(t *testing.T) {
	s := newTestSynthesizer(&fakeClient{}, &fakeSpeaker{})
	s.Cancel()
	s.Cancel()
	assert.False(t, s.Active())
}

func TestSynthesizer_SpeakReplacesActiveUtterance(t *testing.T) {
	client := &fakeClient{synthesize: func(ctx context.Context, text string) ([][]byte, error) {
		return [][]byte{wavOf(22050, 1)}, nil
	}}
	speaker := &fakeSpeaker{}
	first := &recorder{}
	second := &recorder{}

	s := newTestSynthesizer(client, speaker)
	s.Speak("First.", first.callbacks())
	s.Speak("Second.", second.callbacks())

	assert.Equal(t, int32(1), first.ends.Load())
	assert.Equal(t, int32(0), second.ends.Load())
	assert.True(t, s.Active())

	s.Cancel()
	assert.Equal(t, int32(1), first.ends.Load())
	assert.Equal(t, int32(1), second.ends.Load())
}

func TestPlaybackHandle(t *testing.T) {
	var stops int
	h := NewPlaybackHandle(StreamedElement, func() { stops++ })

	assert.NotEmpty(t, h.ID())
	assert.Equal(t, StreamedElement, h.Kind())
	assert.NoError(t, h.Err())

	h.Finish(nil)
	h.Stop()
	h.Stop()

	<-h.Done()
	assert.Equal(t, 1, stops)
	assert.NoError(t, h.Err(), "first completion wins")
}
