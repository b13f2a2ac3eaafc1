package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// TrainConfig holds the optimiser settings for MLP.Fit.
type TrainConfig struct {
	Hidden       int     `json:"hidden"`
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	Momentum     float64 `json:"momentum"`
	L2           float64 `json:"l2"`
	Seed         uint64  `json:"seed"`
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Hidden:       64,
		Epochs:       150,
		BatchSize:    32,
		LearningRate: 0.05,
		Momentum:     0.9,
		L2:           1e-4,
		Seed:         42,
	}
}

func (c TrainConfig) validate() error {
	switch {
	case c.Hidden <= 0:
		return errors.New("hidden units must be positive")
	case c.Epochs <= 0:
		return errors.New("epochs must be positive")
	case c.BatchSize <= 0:
		return errors.New("batch size must be positive")
	case c.LearningRate <= 0:
		return errors.New("learning rate must be positive")
	case c.Momentum < 0 || c.Momentum >= 1:
		return errors.New("momentum must be in [0, 1)")
	}
	return nil
}

// MLP is a one-hidden-layer perceptron: ReLU hidden units, softmax output,
// trained with cross-entropy loss and mini-batch SGD with momentum.
type MLP struct {
	W1 *mat.Dense // in x hidden
	B1 []float64
	W2 *mat.Dense // hidden x out
	B2 []float64
}

// NewMLP initialises weights with He-normal scaling.
func NewMLP(in, hidden, out int, seed uint64) *MLP {
	rng := newRand(seed)
	he := func(r, c int) *mat.Dense {
		scale := math.Sqrt(2 / float64(r))
		data := make([]float64, r*c)
		for i := range data {
			data[i] = rng.NormFloat64() * scale
		}
		return mat.NewDense(r, c, data)
	}
	return &MLP{
		W1: he(in, hidden),
		B1: make([]float64, hidden),
		W2: he(hidden, out),
		B2: make([]float64, out),
	}
}

func (n *MLP) Inputs() int {
	r, _ := n.W1.Dims()
	return r
}

func (n *MLP) Hidden() int {
	_, c := n.W1.Dims()
	return c
}

func (n *MLP) Outputs() int {
	_, c := n.W2.Dims()
	return c
}

func addBias(m *mat.Dense, b []float64) {
	m.Apply(func(_, j int, v float64) float64 { return v + b[j] }, m)
}

func softmaxRows(m *mat.Dense) {
	rows, _ := m.Dims()
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)
		peak := floats.Max(row)
		var sum float64
		for j, v := range row {
			row[j] = math.Exp(v - peak)
			sum += row[j]
		}
		floats.Scale(1/sum, row)
	}
}

// forward returns the hidden activations and output probabilities for X.
func (n *MLP) forward(X mat.Matrix) (*mat.Dense, *mat.Dense) {
	var h mat.Dense
	h.Mul(X, n.W1)
	addBias(&h, n.B1)
	h.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, &h)

	var p mat.Dense
	p.Mul(&h, n.W2)
	addBias(&p, n.B2)
	softmaxRows(&p)
	return &h, &p
}

// PredictProba returns one row of class probabilities per sample.
func (n *MLP) PredictProba(X mat.Matrix) *mat.Dense {
	_, p := n.forward(X)
	return p
}

func (n *MLP) Predict(X mat.Matrix) []int {
	p := n.PredictProba(X)
	rows, _ := p.Dims()
	out := make([]int, rows)
	for i := range out {
		out[i] = floats.MaxIdx(p.RawRowView(i))
	}
	return out
}

func crossEntropy(p *mat.Dense, y []int) float64 {
	var loss float64
	for i, c := range y {
		loss -= math.Log(math.Max(p.At(i, c), 1e-12))
	}
	return loss / float64(len(y))
}

// Fit trains the network on X (samples x features) with class indices y and
// returns the mean training loss of every epoch.
func (n *MLP) Fit(X *mat.Dense, y []int, cfg TrainConfig) ([]float64, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if rows != len(y) {
		return nil, fmt.Errorf("mlp: %d samples but %d labels", rows, len(y))
	}
	if rows == 0 {
		return nil, ErrTooFewSamples
	}
	if cols != n.Inputs() {
		return nil, fmt.Errorf("mlp: expected %d features, got %d", n.Inputs(), cols)
	}
	for _, c := range y {
		if c < 0 || c >= n.Outputs() {
			return nil, fmt.Errorf("mlp: label %d outside [0, %d)", c, n.Outputs())
		}
	}

	rng := newRand(cfg.Seed)
	hidden, out := n.Hidden(), n.Outputs()
	vW1 := mat.NewDense(cols, hidden, nil)
	vW2 := mat.NewDense(hidden, out, nil)
	vB1 := make([]float64, hidden)
	vB2 := make([]float64, out)

	history := make([]float64, 0, cfg.Epochs)
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		order := rng.Perm(rows)
		var epochLoss float64

		for start := 0; start < rows; start += cfg.BatchSize {
			end := min(start+cfg.BatchSize, rows)
			bs := end - start

			xb := mat.NewDense(bs, cols, nil)
			yb := make([]int, bs)
			for i := 0; i < bs; i++ {
				xb.SetRow(i, X.RawRowView(order[start+i]))
				yb[i] = y[order[start+i]]
			}

			h, p := n.forward(xb)
			epochLoss += crossEntropy(p, yb) * float64(bs)

			// dZ = (P - Y) / bs
			dz := mat.DenseCopyOf(p)
			for i, c := range yb {
				dz.Set(i, c, dz.At(i, c)-1)
			}
			dz.Scale(1/float64(bs), dz)

			var dW2 mat.Dense
			dW2.Mul(h.T(), dz)
			dB2 := colSums(dz)

			var dh mat.Dense
			dh.Mul(dz, n.W2.T())
			dh.Apply(func(i, j int, v float64) float64 {
				if h.At(i, j) <= 0 {
					return 0
				}
				return v
			}, &dh)

			var dW1 mat.Dense
			dW1.Mul(xb.T(), &dh)
			dB1 := colSums(&dh)

			step(n.W1, vW1, &dW1, cfg)
			step(n.W2, vW2, &dW2, cfg)
			stepVec(n.B1, vB1, dB1, cfg)
			stepVec(n.B2, vB2, dB2, cfg)
		}

		loss := epochLoss / float64(rows)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return history, fmt.Errorf("mlp: loss diverged at epoch %d", epoch+1)
		}
		history = append(history, loss)
	}
	return history, nil
}

func colSums(m *mat.Dense) []float64 {
	rows, cols := m.Dims()
	out := make([]float64, cols)
	for i := 0; i < rows; i++ {
		floats.Add(out, m.RawRowView(i))
	}
	return out
}

// step applies v = momentum*v - lr*(grad + l2*w); w += v.
func step(w, v, grad *mat.Dense, cfg TrainConfig) {
	v.Apply(func(i, j int, vv float64) float64 {
		return cfg.Momentum*vv - cfg.LearningRate*(grad.At(i, j)+cfg.L2*w.At(i, j))
	}, v)
	w.Add(w, v)
}

func stepVec(w, v, grad []float64, cfg TrainConfig) {
	for i := range w {
		v[i] = cfg.Momentum*v[i] - cfg.LearningRate*grad[i]
		w[i] += v[i]
	}
}

type denseJSON struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

func toDenseJSON(m *mat.Dense) denseJSON {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	return denseJSON{Rows: r, Cols: c, Data: data}
}

func (d denseJSON) dense() (*mat.Dense, error) {
	if d.Rows <= 0 || d.Cols <= 0 || len(d.Data) != d.Rows*d.Cols {
		return nil, fmt.Errorf("bad matrix %dx%d with %d values", d.Rows, d.Cols, len(d.Data))
	}
	return mat.NewDense(d.Rows, d.Cols, d.Data), nil
}

type mlpJSON struct {
	W1 denseJSON `json:"w1"`
	B1 []float64 `json:"b1"`
	W2 denseJSON `json:"w2"`
	B2 []float64 `json:"b2"`
}

func (n *MLP) MarshalJSON() ([]byte, error) {
	return json.Marshal(mlpJSON{
		W1: toDenseJSON(n.W1),
		B1: n.B1,
		W2: toDenseJSON(n.W2),
		B2: n.B2,
	})
}

func (n *MLP) UnmarshalJSON(data []byte) error {
	var raw mlpJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	w1, err := raw.W1.dense()
	if err != nil {
		return fmt.Errorf("w1: %w", err)
	}
	w2, err := raw.W2.dense()
	if err != nil {
		return fmt.Errorf("w2: %w", err)
	}
	_, hidden := w1.Dims()
	r2, out := w2.Dims()
	if r2 != hidden || len(raw.B1) != hidden || len(raw.B2) != out {
		return errors.New("mlp: inconsistent layer sizes")
	}
	n.W1, n.B1, n.W2, n.B2 = w1, raw.B1, w2, raw.B2
	return nil
}
