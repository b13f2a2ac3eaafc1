package classifier

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Synthetic generates n samples of d Gaussian features spread over the given
// number of classes. Each class is a blob around its own random centre, so the
// data is learnable; it lets the training loop run without any downloads.
func Synthetic(n, d, classes int, seed uint64) (*mat.Dense, []string) {
	rng := newRand(seed)

	centres := make([][]float64, classes)
	for c := range centres {
		centres[c] = make([]float64, d)
		for j := range centres[c] {
			centres[c][j] = rng.NormFloat64() * 3
		}
	}

	X := mat.NewDense(n, d, nil)
	labels := make([]string, n)
	for i := 0; i < n; i++ {
		c := i % classes
		row := X.RawRowView(i)
		for j := range row {
			row[j] = centres[c][j] + rng.NormFloat64()
		}
		labels[i] = fmt.Sprintf("class_%d", c)
	}
	return X, labels
}
