package classifier

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
)

// DefaultTestFraction is the share of samples held out for evaluation.
const DefaultTestFraction = 0.2

var ErrTooFewSamples = errors.New("too few samples")

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// TrainTestSplit shuffles the indices 0..n-1 and splits them. The test set
// holds ceil(n*testFraction) indices and both sets are non-empty.
func TrainTestSplit(n int, testFraction float64, seed uint64) (train, test []int, err error) {
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: need at least 2, have %d", ErrTooFewSamples, n)
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction %.2f outside (0, 1)", testFraction)
	}

	nTest := int(math.Ceil(float64(n) * testFraction))
	nTest = min(max(nTest, 1), n-1)

	idx := newRand(seed).Perm(n)
	test = slices.Clone(idx[:nTest])
	train = slices.Clone(idx[nTest:])
	return train, test, nil
}
