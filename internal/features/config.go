package features

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("invalid feature config")

// Config controls how a clip is conformed and turned into a mel spectrogram.
type Config struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	DurationMs int     `json:"duration_ms"`
	NFFT       int     `json:"n_fft"`
	HopLength  int     `json:"hop_length"`
	NMels      int     `json:"n_mels"`
	FMin       float64 `json:"f_min"`
	FMax       float64 `json:"f_max"` // 0 means Nyquist
	TopDB      float64 `json:"top_db"`
	Window     string  `json:"window"` // hann, hamming, blackman, rect
}

func DefaultConfig() Config {
	return Config{
		SampleRate: 22050,
		Channels:   1,
		DurationMs: 4000,
		NFFT:       1024,
		HopLength:  512,
		NMels:      64,
		TopDB:      80,
		Window:     "hann",
	}
}

func (c Config) Validate() error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate)
	case c.Channels <= 0:
		return fmt.Errorf("%w: channels %d", ErrInvalidConfig, c.Channels)
	case c.DurationMs <= 0:
		return fmt.Errorf("%w: duration %dms", ErrInvalidConfig, c.DurationMs)
	case c.NFFT <= 0 || c.NFFT&(c.NFFT-1) != 0:
		return fmt.Errorf("%w: n_fft %d must be a power of two", ErrInvalidConfig, c.NFFT)
	case c.HopLength <= 0:
		return fmt.Errorf("%w: hop length %d", ErrInvalidConfig, c.HopLength)
	case c.NMels <= 0:
		return fmt.Errorf("%w: n_mels %d", ErrInvalidConfig, c.NMels)
	case c.FMax != 0 && c.FMax <= c.FMin:
		return fmt.Errorf("%w: f_max %.1f <= f_min %.1f", ErrInvalidConfig, c.FMax, c.FMin)
	case c.FMax > float64(c.SampleRate)/2:
		return fmt.Errorf("%w: f_max %.1f above nyquist", ErrInvalidConfig, c.FMax)
	}
	if _, err := windowFunc(c.Window); err != nil {
		return err
	}
	return nil
}

// Samples is the number of samples per channel after conforming.
func (c Config) Samples() int {
	return c.SampleRate * c.DurationMs / 1000
}

// Frames is the number of STFT frames a conformed clip yields.
func (c Config) Frames() int {
	return 1 + c.Samples()/c.HopLength
}

func (c Config) fmax() float64 {
	if c.FMax == 0 {
		return float64(c.SampleRate) / 2
	}
	return c.FMax
}
