package features

import (
	"fmt"
	"image"
	"image/draw"
	"path/filepath"

	"github.com/eligwz/spectrogram"
	"github.com/himanishpuri/AcousticLab/internal/audio"
	"github.com/himanishpuri/AcousticLab/pkg/utils"
)

type RenderOptions struct {
	Width  int
	Height int
	Log10  bool
}

func DefaultRenderOptions() RenderOptions {
	return RenderOptions{Width: 2048, Height: 512}
}

// RenderPNG draws a spectrogram image of a WAV file to outPath.
func RenderPNG(wavPath, outPath string, opts RenderOptions) error {
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("render: invalid size %dx%d", opts.Width, opts.Height)
	}

	samples, sr, err := audio.ReadWavAsFloat64(wavPath)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return fmt.Errorf("render: %s has no samples", wavPath)
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, opts.Width, opts.Height))
	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// Hamming window, FFT, magnitude
	spectrogram.Drawfft(
		img,
		samples,
		uint32(sr),
		uint32(opts.Height),
		false,
		false,
		true,
		opts.Log10,
	)

	if err := utils.MakeDir(filepath.Dir(outPath)); err != nil {
		return err
	}
	if err := spectrogram.SavePng(img, outPath); err != nil {
		return fmt.Errorf("render: saving %s: %w", outPath, err)
	}
	return nil
}
