package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrFormatMismatch is returned when buffers with different channel counts or
// sample rates are joined.
var ErrFormatMismatch = errors.New("audio format mismatch")

// Buffer is decoded PCM16 audio. Samples are interleaved when Channels > 1.
type Buffer struct {
	Channels   int
	SampleRate int
	Samples    []int16
}

// Frames returns the number of sample frames (samples per channel)
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length of the buffer
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// SameFormat reports whether two buffers share channel count and sample rate
func (b Buffer) SameFormat(other Buffer) bool {
	return b.Channels == other.Channels && b.SampleRate == other.SampleRate
}

// Concat joins buffers in the given order into one continuous buffer.
// All buffers must share the format of the first one.
func Concat(bufs ...Buffer) (Buffer, error) {
	if len(bufs) == 0 {
		return Buffer{}, errors.New("no buffers to concatenate")
	}

	first := bufs[0]
	total := 0
	for i, b := range bufs {
		if !first.SameFormat(b) {
			return Buffer{}, fmt.Errorf("%w: buffer %d is %dch/%dHz, expected %dch/%dHz",
				ErrFormatMismatch, i, b.Channels, b.SampleRate, first.Channels, first.SampleRate)
		}
		total += len(b.Samples)
	}

	out := Buffer{
		Channels:   first.Channels,
		SampleRate: first.SampleRate,
		Samples:    make([]int16, 0, total),
	}
	for _, b := range bufs {
		out.Samples = append(out.Samples, b.Samples...)
	}
	return out, nil
}

// RingBuffer is a thread-safe ring of PCM samples. Writes past capacity
// overwrite the oldest samples, so it always holds the most recent audio.
type RingBuffer struct {
	buffer []int16
	size   int
	start  int
	count  int
	mu     sync.Mutex
}

// NewRingBuffer creates a new ring buffer holding up to size samples
func NewRingBuffer(size int) *RingBuffer {
	if size < 0 {
		size = 0
	}
	return &RingBuffer{
		buffer: make([]int16, size),
		size:   size,
	}
}

// Write appends samples, dropping the oldest ones when full.
// Returns the number of samples overwritten.
func (rb *RingBuffer) Write(samples []int16) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 {
		return len(samples)
	}

	dropped := 0
	for _, s := range samples {
		end := (rb.start + rb.count) % rb.size
		rb.buffer[end] = s
		if rb.count == rb.size {
			rb.start = (rb.start + 1) % rb.size
			dropped++
		} else {
			rb.count++
		}
	}
	return dropped
}

// Drain returns the buffered samples oldest-first and empties the ring
func (rb *RingBuffer) Drain() []int16 {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]int16, rb.count)
	for i := 0; i < rb.count; i++ {
		out[i] = rb.buffer[(rb.start+i)%rb.size]
	}
	rb.start = 0
	rb.count = 0
	return out
}

// Clear clears the buffer
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.start = 0
	rb.count = 0
}
