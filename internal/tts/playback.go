package tts

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/lexiqai/interview-voice/internal/audio"
)

// PlaybackKind tags how a playback handle is driven
type PlaybackKind int

const (
	// StreamedElement is playback owned by an outside element (browser audio tag, player process)
	StreamedElement PlaybackKind = iota
	// BufferedSource is a locally rendered buffer (sound card stream)
	BufferedSource
)

func (k PlaybackKind) String() string {
	if k == BufferedSource {
		return "buffered_source"
	}
	return "streamed_element"
}

// Speaker starts playback of a decoded buffer
type Speaker interface {
	Play(ctx context.Context, buf audio.Buffer) (*PlaybackHandle, error)
}

// PlaybackHandle is a running playback with a uniform Stop/Done surface for
// every kind.
type PlaybackHandle struct {
	kind   PlaybackKind
	id     string
	stopFn func()

	stopOnce sync.Once
	doneOnce sync.Once
	done     chan struct{}
	err      error
}

// NewPlaybackHandle creates a handle. stop is invoked at most once, by Stop.
// The speaker calls Finish when playback ends on its own.
func NewPlaybackHandle(kind PlaybackKind, stop func()) *PlaybackHandle {
	return &PlaybackHandle{
		kind:   kind,
		id:     uuid.NewString(),
		stopFn: stop,
		done:   make(chan struct{}),
	}
}

// Kind returns the playback variant
func (h *PlaybackHandle) Kind() PlaybackKind {
	return h.kind
}

// ID identifies the playback to remote elements
func (h *PlaybackHandle) ID() string {
	return h.id
}

// Stop halts playback. Safe to call more than once and after completion.
func (h *PlaybackHandle) Stop() {
	h.stopOnce.Do(func() {
		if h.stopFn != nil {
			h.stopFn()
		}
	})
	h.Finish(ErrPlaybackStopped)
}

// Finish marks playback complete. Only the first call has effect.
func (h *PlaybackHandle) Finish(err error) {
	h.doneOnce.Do(func() {
		h.err = err
		close(h.done)
	})
}

// Done is closed when playback has ended
func (h *PlaybackHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns the completion error once Done is closed
func (h *PlaybackHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}
