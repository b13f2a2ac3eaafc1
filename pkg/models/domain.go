package models

import "time"

// Clip is a downloaded sound as tracked by the catalog store.
type Clip struct {
	ID           int       `json:"id"` // Freesound sound id
	Name         string    `json:"name"`
	Username     string    `json:"username,omitempty"`
	License      string    `json:"license,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Path         string    `json:"path"` // local wav file
	Channels     int       `json:"channels"`
	Filesize     int64     `json:"filesize"`
	Bitrate      float64   `json:"bitrate"`
	Bitdepth     int       `json:"bitdepth"`
	Duration     float64   `json:"duration"` // seconds
	Samplerate   float64   `json:"samplerate"`
	Label        string    `json:"label,omitempty"` // instrument name, empty when unknown
	DownloadedAt time.Time `json:"downloaded_at"`
}

// TrainingRun summarises one classifier training execution.
type TrainingRun struct {
	ID        string    `json:"id"` // UUID
	Samples   int       `json:"samples"`
	TrainSize int       `json:"train_size"`
	TestSize  int       `json:"test_size"`
	Classes   []string  `json:"classes"`
	Epochs    int       `json:"epochs"`
	FinalLoss float64   `json:"final_loss"`
	Accuracy  float64   `json:"accuracy"` // test-set accuracy in [0,1]
	ModelPath string    `json:"model_path,omitempty"`
	Synthetic bool      `json:"synthetic"`
	CreatedAt time.Time `json:"created_at"`
}

// Prediction is the classifier's answer for a single clip.
type Prediction struct {
	Label         string             `json:"label"`
	Confidence    float64            `json:"confidence"`
	Probabilities map[string]float64 `json:"probabilities"`
}
