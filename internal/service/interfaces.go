package service

import (
	"context"

	"github.com/himanishpuri/AcousticLab/internal/catalog"
	"github.com/himanishpuri/AcousticLab/internal/download"
	"github.com/himanishpuri/AcousticLab/pkg/models"
)

// Pipeline is what the CLI and HTTP server drive.
type Pipeline interface {
	Download(ctx context.Context, req download.Request) (download.Report, error)
	BuildCatalog(ctx context.Context, root, outDir string) ([]catalog.Record, string, error)
	Train(ctx context.Context, req TrainRequest) (*TrainResult, error)
	Predict(ctx context.Context, modelPath, wavPath string) (*models.Prediction, error)
	ListClips(label string) ([]models.Clip, error)
	LabelCounts() (map[string]int, error)
	ListRuns(limit int) ([]models.TrainingRun, error)
	Close() error
}

type Storage interface {
	UpsertClip(clip models.Clip) error
	SetLabel(id int, label string) error
	GetClip(id int) (*models.Clip, error)
	ListClips(label string) ([]models.Clip, error)
	LabelCounts() (map[string]int, error)
	DeleteClip(id int) error
	RecordRun(run *models.TrainingRun) error
	ListRuns(limit int) ([]models.TrainingRun, error)
	GetRun(id string) (*models.TrainingRun, error)
	Close() error
}

var _ Pipeline = (*Service)(nil)
