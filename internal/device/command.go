package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interview-voice/internal/audio"
	"github.com/lexiqai/interview-voice/internal/tts"
)

// DefaultPlayerCommand plays a WAV stream from stdin with ALSA
const DefaultPlayerCommand = "aplay -q -"

// CommandSpeaker plays each utterance by piping a WAV file into an external
// player process.
type CommandSpeaker struct {
	name   string
	args   []string
	logger zerolog.Logger
}

// NewCommandSpeaker parses a player command line such as "aplay -q -"
func NewCommandSpeaker(command string, logger zerolog.Logger) (*CommandSpeaker, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("player command is empty")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("player %q not found: %w", fields[0], err)
	}
	return &CommandSpeaker{
		name:   fields[0],
		args:   fields[1:],
		logger: logger.With().Str("component", "command_speaker").Logger(),
	}, nil
}

// Play starts the player. The handle finishes when the process exits.
func (c *CommandSpeaker) Play(ctx context.Context, buf audio.Buffer) (*tts.PlaybackHandle, error) {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Stdin = bytes.NewReader(audio.EncodeWAV(buf))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start player: %w", err)
	}

	handle := tts.NewPlaybackHandle(tts.StreamedElement, func() {
		_ = cmd.Process.Kill()
	})
	c.logger.Debug().Str("playback_id", handle.ID()).Int("pid", cmd.Process.Pid).Msg("player started")

	go func() {
		err := cmd.Wait()
		if err != nil {
			err = fmt.Errorf("player exited: %w", err)
		}
		handle.Finish(err)
	}()
	return handle, nil
}
