package classifier

import (
	"compress/lzw"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/himanishpuri/AcousticLab/internal/features"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Model bundles everything needed to classify a new clip.
type Model struct {
	Encoder   *LabelEncoder   `json:"encoder"`
	Scaler    *Scaler         `json:"scaler"`
	Net       *MLP            `json:"net"`
	Features  features.Config `json:"features"`
	Train     TrainConfig     `json:"train"`
	Accuracy  float64         `json:"accuracy"`
	CreatedAt time.Time       `json:"created_at"`
}

// Result summarises a Fit call.
type Result struct {
	Samples   int
	TrainSize int
	TestSize  int
	Accuracy  float64
	Loss      []float64
	Confusion [][]int
}

// Fit splits the data, standardises it on the training part, trains the
// network and evaluates it on the held-out part.
func Fit(X *mat.Dense, labels []string, testFraction float64, cfg TrainConfig) (*Model, *Result, error) {
	rows, cols := X.Dims()
	if rows != len(labels) {
		return nil, nil, fmt.Errorf("%d samples but %d labels", rows, len(labels))
	}
	enc := NewLabelEncoder(labels)
	if enc.Len() < 2 {
		return nil, nil, fmt.Errorf("%w: need at least 2 classes, have %d", ErrTooFewSamples, enc.Len())
	}
	y, err := enc.Transform(labels)
	if err != nil {
		return nil, nil, err
	}

	trainIdx, testIdx, err := TrainTestSplit(rows, testFraction, cfg.Seed)
	if err != nil {
		return nil, nil, err
	}
	xTrain, yTrain := subset(X, y, trainIdx)
	xTest, yTest := subset(X, y, testIdx)

	scaler := FitScaler(xTrain)
	if xTrain, err = scaler.Transform(xTrain); err != nil {
		return nil, nil, err
	}
	if xTest, err = scaler.Transform(xTest); err != nil {
		return nil, nil, err
	}

	net := NewMLP(cols, cfg.Hidden, enc.Len(), cfg.Seed)
	loss, err := net.Fit(xTrain, yTrain, cfg)
	if err != nil {
		return nil, nil, err
	}

	pred := net.Predict(xTest)
	acc := Accuracy(yTest, pred)

	model := &Model{
		Encoder:   enc,
		Scaler:    scaler,
		Net:       net,
		Train:     cfg,
		Accuracy:  acc,
		CreatedAt: time.Now().UTC(),
	}
	res := &Result{
		Samples:   rows,
		TrainSize: len(trainIdx),
		TestSize:  len(testIdx),
		Accuracy:  acc,
		Loss:      loss,
		Confusion: ConfusionMatrix(yTest, pred, enc.Len()),
	}
	return model, res, nil
}

func subset(X *mat.Dense, y []int, idx []int) (*mat.Dense, []int) {
	_, cols := X.Dims()
	out := mat.NewDense(len(idx), cols, nil)
	ys := make([]int, len(idx))
	for i, j := range idx {
		out.SetRow(i, X.RawRowView(j))
		ys[i] = y[j]
	}
	return out, ys
}

// Classify returns the most likely label for one raw feature vector together
// with every class probability.
func (m *Model) Classify(x []float64) (string, map[string]float64, error) {
	xs, err := m.Scaler.TransformVec(x)
	if err != nil {
		return "", nil, err
	}
	p := m.Net.PredictProba(mat.NewDense(1, len(xs), xs))
	row := p.RawRowView(0)
	probs := make(map[string]float64, len(row))
	for i, v := range row {
		probs[m.Encoder.Decode(i)] = v
	}
	return m.Encoder.Decode(floats.MaxIdx(row)), probs, nil
}

func (m *Model) validate() error {
	if m.Encoder == nil || m.Scaler == nil || m.Net == nil || m.Net.W1 == nil {
		return errors.New("model is incomplete")
	}
	m.Encoder.build()
	if m.Net.Inputs() != len(m.Scaler.Mean) || m.Net.Outputs() != m.Encoder.Len() {
		return errors.New("model layer sizes do not match encoder and scaler")
	}
	return nil
}

// Write encodes the model as LZW-compressed JSON.
func (m *Model) Write(w io.Writer) error {
	lw := lzw.NewWriter(w, lzw.LSB, 8)
	if err := json.NewEncoder(lw).Encode(m); err != nil {
		lw.Close()
		return err
	}
	return lw.Close()
}

// Save writes the model to path (conventionally *.json.lzw).
func (m *Model) Save(path string) error {
	if err := m.validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating model dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	err = m.Write(file)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	return err
}

func Read(r io.Reader) (*Model, error) {
	lr := lzw.NewReader(r, lzw.LSB, 8)
	defer lr.Close()

	var m Model
	if err := json.NewDecoder(lr).Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding model: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func Load(path string) (*Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Read(file)
}
