package features

import (
	"errors"
	"fmt"
	"math/cmplx"
	"strings"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

func windowFunc(name string) (func(int) []float64, error) {
	switch strings.ToLower(name) {
	case "", "hann":
		return window.Hann, nil
	case "hamming":
		return window.Hamming, nil
	case "blackman":
		return window.Blackman, nil
	case "rect", "rectangular":
		return window.Rectangular, nil
	}
	return nil, fmt.Errorf("%w: unknown window %q", ErrInvalidConfig, name)
}

// FFTReal wraps the go-dsp FFT function and returns a complex spectrum.
func FFTReal(frame []float64) []complex128 {
	return fft.FFTReal(frame)
}

// PowerSpectrum returns |X|^2 for the non-negative frequency bins (n/2+1 values).
func PowerSpectrum(spectrum []complex128) []float64 {
	bins := len(spectrum)/2 + 1
	pow := make([]float64, bins)
	for i := 0; i < bins; i++ {
		a := cmplx.Abs(spectrum[i])
		pow[i] = a * a
	}
	return pow
}

// STFT computes a time-major power spectrogram: spec[frame][bin].
// The signal is zero-padded by nfft/2 on both sides so frame t is centred on
// sample t*hop.
func STFT(samples []float64, nfft, hop int, win []float64) ([][]float64, error) {
	if len(win) != nfft {
		return nil, errors.New("window length must equal n_fft")
	}
	if hop <= 0 {
		return nil, errors.New("hop length must be positive")
	}
	if len(samples) == 0 {
		return nil, errors.New("no samples")
	}

	pad := nfft / 2
	padded := make([]float64, len(samples)+2*pad)
	copy(padded[pad:], samples)

	frames := 1 + len(samples)/hop
	spec := make([][]float64, 0, frames)
	frame := make([]float64, nfft)
	for t := 0; t < frames; t++ {
		start := t * hop
		for i := 0; i < nfft; i++ {
			frame[i] = padded[start+i] * win[i]
		}
		spec = append(spec, PowerSpectrum(FFTReal(frame)))
	}
	return spec, nil
}
