package classifier

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler standardises each feature to zero mean and unit variance.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes per-column statistics of X. Constant columns get a
// standard deviation of 1 so they map to zero.
func FitScaler(X *mat.Dense) *Scaler {
	rows, cols := X.Dims()
	s := &Scaler{Mean: make([]float64, cols), Std: make([]float64, cols)}
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, X)
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || rows < 2 {
			std = 1
		}
		s.Mean[j], s.Std[j] = mean, std
	}
	return s
}

// Transform returns a standardised copy of X.
func (s *Scaler) Transform(X *mat.Dense) (*mat.Dense, error) {
	_, cols := X.Dims()
	if cols != len(s.Mean) {
		return nil, fmt.Errorf("scaler: expected %d features, got %d", len(s.Mean), cols)
	}
	out := mat.DenseCopyOf(X)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Std[j]
	}, out)
	return out, nil
}

// TransformVec standardises a single sample.
func (s *Scaler) TransformVec(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("scaler: expected %d features, got %d", len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out, nil
}
