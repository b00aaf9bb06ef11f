package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-voice/internal/audio"
	"github.com/lexiqai/interview-voice/internal/device"
	"github.com/lexiqai/interview-voice/internal/stt"
	"github.com/lexiqai/interview-voice/internal/tts"
)

// ErrDisconnected finishes playbacks still pending when the browser goes away
var ErrDisconnected = errors.New("client disconnected")

type sendFunc func(ServerMessage) error

// browserMicrophone is an stt.Microphone backed by the browser's getUserMedia
// track. Open asks the page for the microphone and waits for its answer;
// media frames are then fed through a voice activity gate.
type browserMicrophone struct {
	send       sendFunc
	sampleRate int
	vad        *audio.VADConfig
	preroll    int
	logger     zerolog.Logger

	mu      sync.Mutex
	pending chan micAnswer
	frames  chan []int16
}

type micAnswer struct {
	frames chan []int16
	rate   int
	err    error
}

func newBrowserMicrophone(send sendFunc, sampleRate int, threshold float64, prerollMs int, logger zerolog.Logger) *browserMicrophone {
	return &browserMicrophone{
		send:       send,
		sampleRate: sampleRate,
		vad:        audio.NewVADConfig(threshold, sampleRate),
		preroll:    sampleRate * prerollMs / 1000,
		logger:     logger,
	}
}

// Open requests the microphone and blocks until the page grants or denies it
func (m *browserMicrophone) Open(ctx context.Context) (stt.Stream, error) {
	answer := make(chan micAnswer, 1)
	m.mu.Lock()
	m.pending = answer
	m.mu.Unlock()

	if err := m.send(ServerMessage{Event: EventMicOpen}); err != nil {
		m.clearPending(answer)
		return nil, err
	}

	var a micAnswer
	select {
	case a = <-answer:
	case <-ctx.Done():
		m.clearPending(answer)
		return nil, ctx.Err()
	}
	if a.err != nil {
		return nil, a.err
	}

	frames, rate := a.frames, a.rate
	vad := *m.vad
	vad.FrameSize = rate / 50
	gate := audio.NewGate(&vad, rate*m.preroll/max(m.sampleRate, 1))

	closeFn := func() error {
		m.mu.Lock()
		if m.frames == frames {
			m.frames = nil
			close(frames)
		}
		m.mu.Unlock()
		return m.send(ServerMessage{Event: EventMicClose})
	}
	return device.NewGatedStream(frames, rate, gate, closeFn, m.logger), nil
}

func (m *browserMicrophone) clearPending(ch chan micAnswer) {
	m.mu.Lock()
	if m.pending == ch {
		m.pending = nil
	}
	m.mu.Unlock()
}

// answer delivers mic_ready or mic_denied to a waiting Open. On mic_ready
// the frame channel is installed right away so media that follows in the
// same read loop is not lost.
func (m *browserMicrophone) answer(sampleRate int, err error) {
	m.mu.Lock()
	ch := m.pending
	m.pending = nil
	if ch == nil {
		m.mu.Unlock()
		return
	}
	a := micAnswer{err: err}
	if err == nil {
		a.rate = sampleRate
		if a.rate <= 0 {
			a.rate = m.sampleRate
		}
		a.frames = make(chan []int16, 64)
		m.frames = a.frames
	}
	m.mu.Unlock()
	ch <- a
}

// push forwards one media frame to the open stream, if any. Frames are
// dropped when the stream is not keeping up.
func (m *browserMicrophone) push(samples []int16) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frames == nil {
		return false
	}
	select {
	case m.frames <- samples:
		return true
	default:
		return false
	}
}

// browserSpeaker plays utterances through an audio element on the page
type browserSpeaker struct {
	send   sendFunc
	logger zerolog.Logger

	mu      sync.Mutex
	handles map[string]*tts.PlaybackHandle
}

func newBrowserSpeaker(send sendFunc, logger zerolog.Logger) *browserSpeaker {
	return &browserSpeaker{
		send:    send,
		logger:  logger,
		handles: make(map[string]*tts.PlaybackHandle),
	}
}

// Play sends buf to the page as a WAV file. The handle finishes on playback_ended.
func (s *browserSpeaker) Play(ctx context.Context, buf audio.Buffer) (*tts.PlaybackHandle, error) {
	var handle *tts.PlaybackHandle
	handle = tts.NewPlaybackHandle(tts.StreamedElement, func() {
		s.forget(handle.ID())
		if err := s.send(ServerMessage{Event: EventStopPlayback, PlaybackID: handle.ID()}); err != nil {
			s.logger.Debug().Err(err).Msg("failed to send stop_playback")
		}
	})

	s.mu.Lock()
	s.handles[handle.ID()] = handle
	s.mu.Unlock()

	payload := base64.StdEncoding.EncodeToString(audio.EncodeWAV(buf))
	if err := s.send(ServerMessage{Event: EventPlay, PlaybackID: handle.ID(), Payload: payload}); err != nil {
		s.forget(handle.ID())
		return nil, fmt.Errorf("failed to send audio: %w", err)
	}
	return handle, nil
}

// ended completes the playback reported by the page
func (s *browserSpeaker) ended(id string, err error) {
	s.mu.Lock()
	handle := s.handles[id]
	delete(s.handles, id)
	s.mu.Unlock()
	if handle != nil {
		handle.Finish(err)
	}
}

func (s *browserSpeaker) forget(id string) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}

// closeAll fails every pending playback
func (s *browserSpeaker) closeAll() {
	s.mu.Lock()
	handles := s.handles
	s.handles = make(map[string]*tts.PlaybackHandle)
	s.mu.Unlock()
	for _, h := range handles {
		h.Finish(ErrDisconnected)
	}
}
