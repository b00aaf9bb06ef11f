// Package device connects the capture and synthesis adapters to local audio
// hardware.
package device

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-voice/internal/audio"
)

// GatedStream turns a raw microphone frame source into an stt.Stream that
// only delivers audio while the voice activity gate is open.
type GatedStream struct {
	sampleRate int
	gate       *audio.Gate
	closeFn    func() error
	logger     zerolog.Logger

	data      chan []int16
	quit      chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup

	forwarded int
	dropped   int
}

// NewGatedStream starts forwarding frames from src. closeFn releases the
// underlying device and runs once, on Close.
func NewGatedStream(src <-chan []int16, sampleRate int, gate *audio.Gate, closeFn func() error, logger zerolog.Logger) *GatedStream {
	s := &GatedStream{
		sampleRate: sampleRate,
		gate:       gate,
		closeFn:    closeFn,
		logger:     logger,
		data:       make(chan []int16, 64),
		quit:       make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run(src)
	return s
}

func (s *GatedStream) run(src <-chan []int16) {
	defer s.wg.Done()
	defer close(s.data)

	for {
		select {
		case <-s.quit:
			s.flush(src)
			return
		case frame, ok := <-src:
			if !ok {
				return
			}
			s.forward(frame)
		}
	}
}

// flush passes frames already queued on src through the gate so speech
// delivered just before Close still reaches the reader.
func (s *GatedStream) flush(src <-chan []int16) {
	for {
		select {
		case frame, ok := <-src:
			if !ok {
				return
			}
			s.forward(frame)
		default:
			return
		}
	}
}

func (s *GatedStream) forward(frame []int16) {
	out := s.gate.Process(frame)
	if len(out) == 0 {
		return
	}
	select {
	case s.data <- out:
		s.forwarded++
	default:
		s.dropped++
	}
}

// Data is closed when the source ends or the stream is closed. Frames
// forwarded before Close stay readable after it returns.
func (s *GatedStream) Data() <-chan []int16 {
	return s.data
}

// SampleRate returns the capture rate of the frames
func (s *GatedStream) SampleRate() int {
	return s.sampleRate
}

// Close flushes frames already received from the device, stops forwarding
// and releases the device
func (s *GatedStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		if s.closeFn != nil {
			s.closeErr = s.closeFn()
		}
		s.wg.Wait()
		s.logger.Debug().
			Int("forwarded", s.forwarded).
			Int("dropped", s.dropped).
			Msg("microphone stream closed")
	})
	return s.closeErr
}
