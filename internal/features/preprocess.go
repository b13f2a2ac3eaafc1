package features

import (
	"fmt"

	"github.com/himanishpuri/AcousticLab/internal/audio"
)

// Extractor turns clips into mel spectrogram tensors. The filterbank and
// window are built once and reused, so an Extractor is safe to share between
// goroutines.
type Extractor struct {
	cfg    Config
	window []float64
	fb     [][]float64
}

func NewExtractor(cfg Config) (*Extractor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	wf, _ := windowFunc(cfg.Window)
	return &Extractor{
		cfg:    cfg,
		window: wf(cfg.NFFT),
		fb:     MelFilterbank(cfg.NMels, cfg.NFFT, cfg.SampleRate, cfg.FMin, cfg.fmax()),
	}, nil
}

func (e *Extractor) Config() Config { return e.cfg }

// Clip conforms a decoded clip to the configured rate, channel count and
// duration, then computes a log-mel spectrogram per channel.
func (e *Extractor) Clip(clip *audio.Clip) (*Tensor, error) {
	if clip.NumChannels() == 0 || clip.Len() == 0 {
		return nil, fmt.Errorf("empty clip")
	}
	c := audio.Conform(clip, e.cfg.SampleRate, e.cfg.Channels, e.cfg.Samples())

	t := NewTensor(e.cfg.Channels, e.cfg.NMels, e.cfg.Frames())
	for ch, samples := range c.Channels {
		spec, err := STFT(samples, e.cfg.NFFT, e.cfg.HopLength, e.window)
		if err != nil {
			return nil, fmt.Errorf("stft channel %d: %w", ch, err)
		}
		mel := ApplyFilterbank(spec, e.fb)
		PowerToDB(mel, e.cfg.TopDB)
		for m, row := range mel {
			copy(t.Row(ch, m), row)
		}
	}
	return t, nil
}

// File reads a WAV file and runs Clip on it.
func (e *Extractor) File(path string) (*Tensor, error) {
	clip, err := audio.ReadWav(path)
	if err != nil {
		return nil, err
	}
	t, err := e.Clip(clip)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// PreprocessFile loads a WAV file and returns its 3-D log-mel tensor
// (channels x mels x frames).
func PreprocessFile(path string, cfg Config) (*Tensor, error) {
	e, err := NewExtractor(cfg)
	if err != nil {
		return nil, err
	}
	return e.File(path)
}
