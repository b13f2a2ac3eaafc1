package main

import (
	"github.com/himanishpuri/AcousticLab/pkg/models"
)

// MaxUploadSize bounds multipart uploads to /api/predict.
const MaxUploadSize = 32 << 20

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type MetricsResponse struct {
	Status       string         `json:"status"`
	DatabasePath string         `json:"database_path"`
	ModelPath    string         `json:"model_path"`
	ModelReady   bool           `json:"model_ready"`
	ClipCount    int            `json:"clip_count"`
	Labels       map[string]int `json:"labels"`
}

type ListClipsResponse struct {
	Clips []models.Clip `json:"clips"`
	Count int           `json:"count"`
}

type ListRunsResponse struct {
	Runs  []models.TrainingRun `json:"runs"`
	Count int                  `json:"count"`
}

type PredictResponse struct {
	Filename string `json:"filename"`
	models.Prediction
}
