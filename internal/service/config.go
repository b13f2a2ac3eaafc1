package service

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/himanishpuri/AcousticLab/internal/classifier"
	"github.com/himanishpuri/AcousticLab/internal/download"
	"github.com/himanishpuri/AcousticLab/internal/features"
	"github.com/himanishpuri/AcousticLab/internal/storage"
	"github.com/himanishpuri/AcousticLab/pkg/logger"
)

const (
	DefaultClipRoot  = "clips"
	DefaultModelFile = "model.json.lzw"
)

type Config struct {
	DBPath    string
	ClipRoot  string
	TempDir   string
	ModelPath string
	Workers   int
	FuzzyTags bool
	Features  features.Config
	Train     classifier.TrainConfig
	Mode      download.Mode
	Converter download.ConvertFunc
	Logger    *logger.Logger
	Storage   Storage
	Client    download.API
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithClipRoot(dir string) Option {
	return func(c *Config) {
		c.ClipRoot = dir
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

// WithModelPath sets where Train saves and Predict loads the model by default.
func WithModelPath(path string) Option {
	return func(c *Config) {
		c.ModelPath = path
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

// WithFuzzyTags lets the catalog fall back to tags when a clip name names no
// instrument.
func WithFuzzyTags(on bool) Option {
	return func(c *Config) {
		c.FuzzyTags = on
	}
}

func WithFeatureConfig(cfg features.Config) Option {
	return func(c *Config) {
		c.Features = cfg
	}
}

func WithTrainConfig(cfg classifier.TrainConfig) Option {
	return func(c *Config) {
		c.Train = cfg
	}
}

// WithDownloadMode selects original files (OAuth2) or converted previews.
func WithDownloadMode(mode download.Mode) Option {
	return func(c *Config) {
		c.Mode = mode
	}
}

func WithConverter(fn download.ConvertFunc) Option {
	return func(c *Config) {
		c.Converter = fn
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithStorage(s Storage) Option {
	return func(c *Config) {
		c.Storage = s
	}
}

func WithClient(client download.API) Option {
	return func(c *Config) {
		c.Client = client
	}
}

func defaultConfig() *Config {
	return &Config{
		DBPath:    storage.DefaultDBFile,
		ClipRoot:  DefaultClipRoot,
		TempDir:   os.TempDir(),
		ModelPath: filepath.Join("models", DefaultModelFile),
		Workers:   runtime.NumCPU(),
		Features:  features.DefaultConfig(),
		Train:     classifier.DefaultTrainConfig(),
		Mode:      download.ModeOriginal,
	}
}
