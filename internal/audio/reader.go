package audio

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
)

var ErrInvalidWav = errors.New("invalid or unsupported wav file")

// Clip is a decoded WAV file with samples normalised to [-1, 1].
type Clip struct {
	Channels   [][]float64
	SampleRate int
	BitDepth   int
}

// NumChannels returns the number of channels in the clip
func (c *Clip) NumChannels() int { return len(c.Channels) }

// Len returns the number of frames per channel
func (c *Clip) Len() int {
	if len(c.Channels) == 0 {
		return 0
	}
	return len(c.Channels[0])
}

// Duration returns the playback length of the clip
func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(c.Len()) / float64(c.SampleRate) * float64(time.Second))
}

// Mono averages all channels into one
func (c *Clip) Mono() []float64 {
	if len(c.Channels) == 1 {
		return c.Channels[0]
	}
	out := make([]float64, c.Len())
	for _, ch := range c.Channels {
		for i, v := range ch {
			out[i] += v
		}
	}
	n := float64(len(c.Channels))
	for i := range out {
		out[i] /= n
	}
	return out
}

type WavInfo struct {
	Channels   int
	SampleRate int
	BitDepth   int
	Duration   time.Duration
}

// Info reads only the WAV headers.
func Info(path string) (*WavInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: %w", path, ErrInvalidWav)
	}
	dur, err := dec.Duration()
	if err != nil {
		return nil, fmt.Errorf("%s: reading duration: %w", path, err)
	}
	return &WavInfo{
		Channels:   int(dec.NumChans),
		SampleRate: int(dec.SampleRate),
		BitDepth:   int(dec.BitDepth),
		Duration:   dur,
	}, nil
}

// ReadWav decodes an integer PCM WAV file (8, 16, 24 or 32 bit).
func ReadWav(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: %w", path, ErrInvalidWav)
	}
	if dec.WavAudioFormat != formatPCM && dec.WavAudioFormat != formatExtensible {
		return nil, fmt.Errorf("%s: audio format %d: %w", path, dec.WavAudioFormat, ErrInvalidWav)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: decoding pcm: %w", path, err)
	}

	numChans := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	frames := len(buf.Data) / numChans

	var offset, scale float64
	switch bitDepth {
	case 8:
		offset, scale = 128, 128
	case 16:
		scale = 1 << 15
	case 24:
		scale = 1 << 23
	case 32:
		scale = 1 << 31
	default:
		return nil, fmt.Errorf("%s: unsupported bit depth %d: %w", path, bitDepth, ErrInvalidWav)
	}

	channels := make([][]float64, numChans)
	for ch := range channels {
		channels[ch] = make([]float64, frames)
	}
	for i := 0; i < frames*numChans; i++ {
		channels[i%numChans][i/numChans] = (float64(buf.Data[i]) - offset) / scale
	}

	return &Clip{Channels: channels, SampleRate: int(dec.SampleRate), BitDepth: bitDepth}, nil
}

// ReadWavAsFloat64 reads a WAV file and returns a mono mixdown with its sample rate.
func ReadWavAsFloat64(path string) ([]float64, int, error) {
	clip, err := ReadWav(path)
	if err != nil {
		return nil, 0, err
	}
	return clip.Mono(), clip.SampleRate, nil
}
