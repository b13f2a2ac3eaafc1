package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/himanishpuri/AcousticLab/pkg/utils"
)

type ConvertWAVConfig struct {
	SampleRate int // e.g. 22050, 44100
	Timeout    time.Duration
	// OutputName overrides the output file name (without directory).
	OutputName string
}

// FFmpegAvailable reports whether an ffmpeg binary is on PATH.
func FFmpegAvailable() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// ConvertToMonoWAV converts an audio file (mp3/ogg previews, other containers)
// to mono 16-bit PCM WAV and saves it to outputDir.
func ConvertToMonoWAV(
	ctx context.Context,
	inputPath string,
	outputDir string,
	cfg ConvertWAVConfig,
) (string, error) {

	if cfg.SampleRate == 0 {
		cfg.SampleRate = 22050
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if err := utils.MakeDir(outputDir); err != nil {
		return "", err
	}

	name := cfg.OutputName
	if name == "" {
		base := filepath.Base(inputPath)
		name = strings.TrimSuffix(base, filepath.Ext(base)) + ".wav"
	}
	outputPath := filepath.Join(outputDir, name)

	tmpPath := outputPath + ".tmp.wav"
	defer os.Remove(tmpPath)

	cmd := exec.CommandContext(
		ctx,
		"ffmpeg",
		"-y",
		"-v", "quiet",
		"-i", inputPath,
		"-ac", "1", // mono
		"-ar", fmt.Sprintf("%d", cfg.SampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}

	if err := utils.MoveFile(tmpPath, outputPath); err != nil {
		return "", err
	}

	return outputPath, nil
}
