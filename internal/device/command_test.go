package device

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/interview-voice/internal/audio"
	"github.com/lexiqai/interview-voice/internal/tts"
)

func TestCommandSpeaker_PlaysToCompletion(t *testing.T) {
	speaker, err := NewCommandSpeaker("cat", zerolog.Nop())
	require.NoError(t, err)

	handle, err := speaker.Play(context.Background(), audio.Buffer{Channels: 1, SampleRate: 16000, Samples: frame(160, 100)})
	require.NoError(t, err)
	assert.Equal(t, tts.StreamedElement, handle.Kind())

	select {
	case <-handle.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("player did not exit")
	}
	assert.NoError(t, handle.Err())
}

func TestCommandSpeaker_Stop(t *testing.T) {
	speaker, err := NewCommandSpeaker("sleep 30", zerolog.Nop())
	require.NoError(t, err)

	handle, err := speaker.Play(context.Background(), audio.Buffer{Channels: 1, SampleRate: 16000})
	require.NoError(t, err)

	handle.Stop()
	<-handle.Done()
	assert.ErrorIs(t, handle.Err(), tts.ErrPlaybackStopped)
}

func TestNewCommandSpeaker_Invalid(t *testing.T) {
	_, err := NewCommandSpeaker("   ", zerolog.Nop())
	assert.Error(t, err)

	_, err = NewCommandSpeaker("definitely-not-a-player-binary", zerolog.Nop())
	assert.Error(t, err)
}
