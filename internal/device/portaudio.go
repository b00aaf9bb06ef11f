//go:build portaudio

package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-voice/internal/audio"
	"github.com/lexiqai/interview-voice/internal/config"
	"github.com/lexiqai/interview-voice/internal/stt"
	"github.com/lexiqai/interview-voice/internal/tts"
)

// PortAudio owns the PortAudio library lifetime and hands out the default
// input and output devices.
type PortAudio struct {
	sampleRate     int
	vad            *audio.VADConfig
	prerollSamples int
	logger         zerolog.Logger
}

// InitPortAudio initializes PortAudio. Close must be called on shutdown.
func InitPortAudio(cfg *config.Config, logger zerolog.Logger) (*PortAudio, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudio{
		sampleRate:     cfg.MicSampleRate,
		vad:            audio.NewVADConfig(cfg.VADEnergyThreshold, cfg.MicSampleRate),
		prerollSamples: cfg.MicSampleRate * cfg.VADPrerollMs / 1000,
		logger:         logger.With().Str("component", "portaudio").Logger(),
	}, nil
}

// Close terminates PortAudio
func (p *PortAudio) Close() error {
	return portaudio.Terminate()
}

// Microphone returns the default input device
func (p *PortAudio) Microphone() stt.Microphone {
	return &paMicrophone{pa: p}
}

// Speaker returns the default output device
func (p *PortAudio) Speaker() tts.Speaker {
	return &paSpeaker{logger: p.logger}
}

type paMicrophone struct {
	pa *PortAudio
}

// Open starts the default input stream; frames are 20ms so they line up with the VAD
func (m *paMicrophone) Open(ctx context.Context) (stt.Stream, error) {
	rate := m.pa.sampleRate
	in := make([]int16, m.pa.vad.FrameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(rate), len(in), in)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}

	frames := make(chan []int16, 16)
	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(frames)
		for {
			select {
			case <-quit:
				return
			case <-ctx.Done():
				return
			default:
			}
			if err := stream.Read(); err != nil {
				select {
				case <-quit:
					return
				default:
				}
				// Input overflow; keep reading
				continue
			}
			frame := make([]int16, len(in))
			copy(frame, in)
			select {
			case frames <- frame:
			default:
			}
		}
	}()

	var closeOnce sync.Once
	closeFn := func() error {
		var err error
		closeOnce.Do(func() {
			close(quit)
			_ = stream.Stop()
			wg.Wait()
			err = stream.Close()
		})
		return err
	}

	gate := audio.NewGate(m.pa.vad, m.pa.prerollSamples)
	m.pa.logger.Debug().Int("sample_rate", rate).Int("frame_size", len(in)).Msg("microphone opened")
	return NewGatedStream(frames, rate, gate, closeFn, m.pa.logger), nil
}

type paSpeaker struct {
	logger zerolog.Logger
}

// Play writes buf to the default output device in 40ms blocks
func (s *paSpeaker) Play(ctx context.Context, buf audio.Buffer) (*tts.PlaybackHandle, error) {
	channels := buf.Channels
	if channels <= 0 {
		channels = 1
	}
	framesPerBuffer := buf.SampleRate / 25
	out := make([]int16, framesPerBuffer*channels)

	stream, err := portaudio.OpenDefaultStream(0, channels, float64(buf.SampleRate), framesPerBuffer, out)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start output stream: %w", err)
	}

	var stopped atomic.Bool
	handle := tts.NewPlaybackHandle(tts.BufferedSource, func() { stopped.Store(true) })

	go func() {
		defer stream.Close()
		samples := buf.Samples
		for len(samples) > 0 {
			if stopped.Load() || ctx.Err() != nil {
				_ = stream.Abort()
				return
			}
			n := copy(out, samples)
			for i := n; i < len(out); i++ {
				out[i] = 0
			}
			samples = samples[n:]
			if err := stream.Write(); err != nil {
				s.logger.Warn().Err(err).Str("playback_id", handle.ID()).Msg("output write failed")
				_ = stream.Abort()
				handle.Finish(fmt.Errorf("output write: %w", err))
				return
			}
		}
		_ = stream.Stop()
		handle.Finish(nil)
	}()

	return handle, nil
}
