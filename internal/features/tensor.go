package features

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Tensor is a dense channels x mels x frames array stored row-major.
type Tensor struct {
	Channels int
	Mels     int
	Frames   int
	Data     []float64
}

func NewTensor(channels, mels, frames int) *Tensor {
	return &Tensor{
		Channels: channels,
		Mels:     mels,
		Frames:   frames,
		Data:     make([]float64, channels*mels*frames),
	}
}

// Shape returns the three dimensions in order.
func (t *Tensor) Shape() []int { return []int{t.Channels, t.Mels, t.Frames} }

// NDim is always 3.
func (t *Tensor) NDim() int { return 3 }

func (t *Tensor) index(c, m, f int) int {
	return (c*t.Mels+m)*t.Frames + f
}

func (t *Tensor) At(c, m, f int) float64 { return t.Data[t.index(c, m, f)] }

func (t *Tensor) Set(c, m, f int, v float64) { t.Data[t.index(c, m, f)] = v }

// Row returns the time series of one mel band, sharing storage with the tensor.
func (t *Tensor) Row(c, m int) []float64 {
	i := t.index(c, m, 0)
	return t.Data[i : i+t.Frames]
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor[%d x %d x %d]", t.Channels, t.Mels, t.Frames)
}

// Summarize collapses the time axis: for every channel and mel band it emits
// the mean followed by the standard deviation, giving a fixed-length vector of
// 2*Channels*Mels values.
func Summarize(t *Tensor) []float64 {
	out := make([]float64, 0, 2*t.Channels*t.Mels)
	for c := 0; c < t.Channels; c++ {
		for m := 0; m < t.Mels; m++ {
			mean, std := stat.MeanStdDev(t.Row(c, m), nil)
			if t.Frames < 2 {
				std = 0
			}
			out = append(out, mean, std)
		}
	}
	return out
}

// SummaryLen is the length of Summarize's output for cfg.
func SummaryLen(cfg Config) int {
	return 2 * cfg.Channels * cfg.NMels
}
