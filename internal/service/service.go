package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/himanishpuri/AcousticLab/internal/audio"
	"github.com/himanishpuri/AcousticLab/internal/catalog"
	"github.com/himanishpuri/AcousticLab/internal/classifier"
	"github.com/himanishpuri/AcousticLab/internal/download"
	"github.com/himanishpuri/AcousticLab/internal/features"
	"github.com/himanishpuri/AcousticLab/internal/parallel"
	"github.com/himanishpuri/AcousticLab/internal/storage"
	"github.com/himanishpuri/AcousticLab/pkg/logger"
	"github.com/himanishpuri/AcousticLab/pkg/models"
	"gonum.org/v1/gonum/mat"
)

var ErrNoClient = errors.New("no freesound client configured")

// maxCachedModels bounds the loaded-model cache; the oldest entry goes first.
const maxCachedModels = 8

type Service struct {
	storage Storage
	log     *logger.Logger
	config  *Config

	mu     sync.Mutex
	models map[string]*classifier.Model
	order  []string
}

func NewService(opts ...Option) (*Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if err := cfg.Features.Validate(); err != nil {
		return nil, err
	}

	stor := cfg.Storage
	if stor == nil {
		db, err := storage.NewDBClientWithPath(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
		stor = db
	}

	return &Service{
		storage: stor,
		log:     cfg.Logger,
		config:  cfg,
		models:  make(map[string]*classifier.Model),
	}, nil
}

func (s *Service) Config() Config { return *s.config }

// Download harvests search results into the clip root.
func (s *Service) Download(ctx context.Context, req download.Request) (download.Report, error) {
	if s.config.Client == nil {
		return download.Report{}, ErrNoClient
	}
	conv := s.config.Converter
	if conv == nil && s.config.Mode == download.ModePreview {
		conv = download.FFmpegConverter(s.config.Features.SampleRate)
	}
	d := &download.Downloader{
		Client:    s.config.Client,
		Root:      s.config.ClipRoot,
		Mode:      s.config.Mode,
		Converter: conv,
		Logger:    s.log.Named("download"),
		Store:     s.storage,
	}
	return d.Run(ctx, req)
}

// BuildCatalog labels every clip directory under root (the clip root when
// empty), writes the dataset to outDir and stores the labels.
func (s *Service) BuildCatalog(ctx context.Context, root, outDir string) ([]catalog.Record, string, error) {
	if root == "" {
		root = s.config.ClipRoot
	}
	if outDir == "" {
		outDir = root
	}
	p := catalog.NewProcessor(nil, s.log.Named("catalog"))
	p.FuzzyTags = s.config.FuzzyTags
	records, path, err := p.Process(ctx, root, outDir)
	if err != nil {
		return nil, "", err
	}

	for _, r := range records {
		clip := r.Clip()
		if err := s.storage.UpsertClip(clip); err != nil {
			s.log.Warnf("Failed to store clip %d: %v", r.ID, err)
		}
	}
	s.log.Infof("Catalogued %d labelled clips", len(records))
	return records, path, nil
}

type TrainRequest struct {
	// Dataset is a music_info.json written by BuildCatalog.
	Dataset string
	// Synthetic trains on generated data instead of Dataset.
	Synthetic        bool
	SyntheticSamples int
	SyntheticClasses int

	ModelPath    string
	TestFraction float64
	// Train overrides the service's training config when non-zero.
	Train classifier.TrainConfig
}

type TrainResult struct {
	Run     models.TrainingRun
	Result  *classifier.Result
	Classes []string
	// Skipped counts clips whose features could not be extracted.
	Skipped int
}

// Train extracts features for every record of the dataset, fits the
// classifier, saves the model and records the run.
func (s *Service) Train(ctx context.Context, req TrainRequest) (*TrainResult, error) {
	cfg := req.Train
	if cfg.Epochs == 0 {
		cfg = s.config.Train
	}
	if req.TestFraction == 0 {
		req.TestFraction = classifier.DefaultTestFraction
	}
	if req.ModelPath == "" {
		req.ModelPath = s.config.ModelPath
	}

	var (
		X       *mat.Dense
		labels  []string
		skipped int
		err     error
	)
	if req.Synthetic {
		n, k := req.SyntheticSamples, req.SyntheticClasses
		if n == 0 {
			n = 500
		}
		if k == 0 {
			k = 4
		}
		s.log.Infof("Generating %d synthetic samples over %d classes", n, k)
		X, labels = classifier.Synthetic(n, features.SummaryLen(s.config.Features), k, cfg.Seed)
	} else {
		X, labels, skipped, err = s.featurize(ctx, req.Dataset)
		if err != nil {
			return nil, err
		}
	}

	start := time.Now()
	model, res, err := classifier.Fit(X, labels, req.TestFraction, cfg)
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}
	model.Features = s.config.Features
	s.log.Infof("Trained on %d samples in %s, test accuracy %.2f%%",
		res.TrainSize, time.Since(start).Round(time.Millisecond), res.Accuracy*100)

	if err := model.Save(req.ModelPath); err != nil {
		return nil, fmt.Errorf("saving model: %w", err)
	}
	s.mu.Lock()
	s.cacheModel(req.ModelPath, model)
	s.mu.Unlock()

	run := models.TrainingRun{
		Samples:   res.Samples,
		TrainSize: res.TrainSize,
		TestSize:  res.TestSize,
		Classes:   model.Encoder.Classes,
		Epochs:    cfg.Epochs,
		Accuracy:  res.Accuracy,
		ModelPath: req.ModelPath,
		Synthetic: req.Synthetic,
	}
	if len(res.Loss) > 0 {
		run.FinalLoss = res.Loss[len(res.Loss)-1]
	}
	if err := s.storage.RecordRun(&run); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}

	return &TrainResult{
		Run:     run,
		Result:  res,
		Classes: model.Encoder.Classes,
		Skipped: skipped,
	}, nil
}

// featurize loads the dataset and summarises each clip's spectrogram on a
// bounded pool of workers. Clips that fail are logged and left out.
func (s *Service) featurize(ctx context.Context, dataset string) (*mat.Dense, []string, int, error) {
	records, err := catalog.Load(dataset)
	if err != nil {
		return nil, nil, 0, err
	}
	ext, err := features.NewExtractor(s.config.Features)
	if err != nil {
		return nil, nil, 0, err
	}
	s.log.Infof("Extracting features for %d clips with %d workers", len(records), s.config.Workers)

	base := filepath.Dir(dataset)
	rows := make([][]float64, len(records))
	err = parallel.ForEachContext(ctx, len(records), s.config.Workers, func(i int) {
		path := resolvePath(base, records[i].RelativePath)
		t, err := ext.File(path)
		if err != nil {
			s.log.Warnf("Skipping clip %d: %v", records[i].ID, err)
			return
		}
		rows[i] = features.Summarize(t)
	})
	if err != nil {
		return nil, nil, 0, err
	}

	width := features.SummaryLen(s.config.Features)
	var data []float64
	var labels []string
	for i, row := range rows {
		if row == nil {
			continue
		}
		data = append(data, row...)
		labels = append(labels, records[i].InstrumentName)
	}
	skipped := len(records) - len(labels)
	if len(labels) == 0 {
		return nil, nil, skipped, fmt.Errorf("no usable clips in %s: %w", dataset, catalog.ErrEmptyDataset)
	}
	return mat.NewDense(len(labels), width, data), labels, skipped, nil
}

// resolvePath returns p as stored when it exists, else p relative to base.
func resolvePath(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return filepath.Join(base, p)
}

func (s *Service) model(modelPath string) (*classifier.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.models[modelPath]; ok {
		return m, nil
	}
	m, err := classifier.Load(modelPath)
	if err != nil {
		return nil, fmt.Errorf("loading model: %w", err)
	}
	s.cacheModel(modelPath, m)
	return m, nil
}

// cacheModel must be called with s.mu held.
func (s *Service) cacheModel(path string, m *classifier.Model) {
	if _, ok := s.models[path]; !ok {
		s.order = append(s.order, path)
	}
	s.models[path] = m
	for len(s.order) > maxCachedModels {
		delete(s.models, s.order[0])
		s.order = s.order[1:]
	}
}

// Predict classifies one audio file. Non-WAV input is converted with ffmpeg
// into the temp dir first.
func (s *Service) Predict(ctx context.Context, modelPath, wavPath string) (*models.Prediction, error) {
	if modelPath == "" {
		modelPath = s.config.ModelPath
	}
	m, err := s.model(modelPath)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(filepath.Ext(wavPath), ".wav") {
		converted, err := audio.ConvertToMonoWAV(ctx, wavPath, s.config.TempDir, audio.ConvertWAVConfig{
			SampleRate: m.Features.SampleRate,
		})
		if err != nil {
			return nil, fmt.Errorf("audio conversion failed: %w", err)
		}
		defer os.Remove(converted)
		wavPath = converted
	}

	ext, err := features.NewExtractor(m.Features)
	if err != nil {
		return nil, err
	}
	t, err := ext.File(wavPath)
	if err != nil {
		return nil, err
	}
	label, probs, err := m.Classify(features.Summarize(t))
	if err != nil {
		return nil, err
	}
	return &models.Prediction{
		Label:         label,
		Confidence:    probs[label],
		Probabilities: probs,
	}, nil
}

func (s *Service) ListClips(label string) ([]models.Clip, error) {
	return s.storage.ListClips(label)
}

func (s *Service) LabelCounts() (map[string]int, error) {
	return s.storage.LabelCounts()
}

func (s *Service) ListRuns(limit int) ([]models.TrainingRun, error) {
	return s.storage.ListRuns(limit)
}

func (s *Service) Close() error {
	return s.storage.Close()
}
