package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
	wavHeaderSize       = 44
)

// ErrInvalidWAV is returned for payloads that are not decodable PCM WAV
var ErrInvalidWAV = errors.New("invalid wav payload")

// DecodeWAV decodes a RIFF/WAVE payload into a PCM16 buffer. 8, 16, 24 and
// 32-bit integer PCM are accepted.
func DecodeWAV(data []byte) (Buffer, error) {
	if len(data) == 0 {
		return Buffer{}, fmt.Errorf("%w: empty payload", ErrInvalidWAV)
	}

	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return Buffer{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return Buffer{}, fmt.Errorf("%w: unsupported encoding %d", ErrInvalidWAV, d.WavAudioFormat)
	}

	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if pcm == nil || pcm.Format == nil {
		return Buffer{}, fmt.Errorf("%w: no format chunk", ErrInvalidWAV)
	}

	samples, err := toPCM16(pcm, int(d.BitDepth))
	if err != nil {
		return Buffer{}, err
	}

	return Buffer{
		Channels:   pcm.Format.NumChannels,
		SampleRate: pcm.Format.SampleRate,
		Samples:    samples,
	}, nil
}

func toPCM16(pcm *goaudio.IntBuffer, bitDepth int) ([]int16, error) {
	out := make([]int16, len(pcm.Data))
	switch bitDepth {
	case 8:
		// 8-bit WAV is unsigned
		for i, v := range pcm.Data {
			out[i] = int16((v - 128) << 8)
		}
	case 16:
		for i, v := range pcm.Data {
			out[i] = int16(v)
		}
	case 24:
		for i, v := range pcm.Data {
			out[i] = int16(v >> 8)
		}
	case 32:
		for i, v := range pcm.Data {
			out[i] = int16(v >> 16)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrInvalidWAV, bitDepth)
	}
	return out, nil
}

// EncodeWAV wraps the buffer in a canonical 44-byte PCM16 WAV header
func EncodeWAV(buf Buffer) []byte {
	channels := buf.Channels
	if channels <= 0 {
		channels = 1
	}
	dataSize := len(buf.Samples) * 2
	byteRate := buf.SampleRate * channels * 2
	blockAlign := channels * 2

	out := make([]byte, wavHeaderSize, wavHeaderSize+dataSize)
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+dataSize))
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(buf.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], 16)

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(dataSize))

	return append(out, SamplesToBytes(buf.Samples)...)
}
