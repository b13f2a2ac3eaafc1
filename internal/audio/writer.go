package audio

import (
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWav encodes clip as 16-bit PCM.
func WriteWav(path string, clip *Clip) error {
	if clip.NumChannels() == 0 {
		return fmt.Errorf("write wav: clip has no channels")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}

	numChans := clip.NumChannels()
	frames := clip.Len()
	data := make([]int, frames*numChans)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < numChans; ch++ {
			v := math.Max(-1, math.Min(1, clip.Channels[ch][i]))
			data[i*numChans+ch] = int(math.Round(v * math.MaxInt16))
		}
	}

	enc := wav.NewEncoder(f, clip.SampleRate, 16, numChans, formatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: numChans, SampleRate: clip.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalise wav: %w", err)
	}
	return f.Close()
}

// Sine generates a mono tone, mostly useful for fixtures and demos.
func Sine(freq float64, sampleRate int, seconds, amplitude float64) *Clip {
	n := int(float64(sampleRate) * seconds)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return &Clip{Channels: [][]float64{samples}, SampleRate: sampleRate, BitDepth: 16}
}
