package device

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/interview-voice/internal/audio"
)

func frame(n int, value int16) []int16 {
	f := make([]int16, n)
	for i := range f {
		f[i] = value
	}
	return f
}

func TestGatedStream_ForwardsOnlySpeech(t *testing.T) {
	src := make(chan []int16, 8)
	closed := 0
	gate := audio.NewGate(audio.NewVADConfig(500, 16000), 160)
	s := NewGatedStream(src, 16000, gate, func() error { closed++; return nil }, zerolog.Nop())

	src <- frame(320, 0)
	src <- frame(320, 0)
	src <- frame(320, 4000)
	close(src)

	var got [][]int16
	for f := range s.Data() {
		got = append(got, f)
	}

	require.Len(t, got, 1)
	// Pre-roll (160 samples of silence) is flushed ahead of the speech frame
	assert.Len(t, got[0], 160+320)
	assert.Equal(t, int16(0), got[0][0])
	assert.Equal(t, int16(4000), got[0][len(got[0])-1])
	assert.Equal(t, 16000, s.SampleRate())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, closed)
}

func TestGatedStream_CloseEndsData(t *testing.T) {
	src := make(chan []int16)
	gate := audio.NewGate(audio.DefaultVADConfig(), 0)
	s := NewGatedStream(src, 16000, gate, nil, zerolog.Nop())

	require.NoError(t, s.Close())
	_, ok := <-s.Data()
	assert.False(t, ok)
}
