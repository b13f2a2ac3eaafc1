package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/himanishpuri/AcousticLab/internal/freesound"
	"github.com/himanishpuri/AcousticLab/pkg/logger"
	"github.com/himanishpuri/AcousticLab/pkg/models"
)

const (
	// MetadataFile sits next to every downloaded clip.
	MetadataFile = "sound_metadata.json"
	// DatasetFile is the cleaned catalog written by Save.
	DatasetFile = "music_info.json"
)

var ErrEmptyDataset = errors.New("dataset is empty")

// Record describes one clip directory.
type Record struct {
	ID             int      `json:"id"`
	Name           string   `json:"name"`
	Username       string   `json:"username,omitempty"`
	License        string   `json:"license,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	RelativePath   string   `json:"relative_path"`
	Channels       int      `json:"channels"`
	Filesize       int64    `json:"filesize"`
	Bitrate        float64  `json:"bitrate"`
	Bitdepth       int      `json:"bitdepth"`
	Duration       float64  `json:"duration"`
	Samplerate     float64  `json:"samplerate"`
	InstrumentName string   `json:"instrument_name"`
}

func (r Record) Clip() models.Clip {
	return models.Clip{
		ID:         r.ID,
		Name:       r.Name,
		Username:   r.Username,
		License:    r.License,
		Tags:       r.Tags,
		Path:       r.RelativePath,
		Channels:   r.Channels,
		Filesize:   r.Filesize,
		Bitrate:    r.Bitrate,
		Bitdepth:   r.Bitdepth,
		Duration:   r.Duration,
		Samplerate: r.Samplerate,
		Label:      r.InstrumentName,
	}
}

// WriteMetadata stores the sound's API metadata in dir.
func WriteMetadata(dir string, s *freesound.Sound) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, MetadataFile), data, 0o644)
}

func ReadMetadata(path string) (*freesound.Sound, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s freesound.Sound
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &s, nil
}

// Processor builds labelled records from downloaded clip directories.
type Processor struct {
	Instruments []string

	// FuzzyTags enables a fallback that labels clips whose name names no
	// instrument from their tags, allowing one typo.
	FuzzyTags bool

	log *logger.Logger
}

func NewProcessor(instruments []string, log *logger.Logger) *Processor {
	if len(instruments) == 0 {
		instruments = DefaultInstruments
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Processor{Instruments: instruments, log: log}
}

// CreateRecord returns nil without error when dir has no wav, no metadata or
// more than one wav file.
func (p *Processor) CreateRecord(dir string) (*Record, error) {
	hasWav, err := HasWavFiles(dir)
	if err != nil {
		return nil, err
	}
	metaPath := filepath.Join(dir, MetadataFile)
	hasMeta, err := HasMetadata(metaPath)
	if err != nil {
		return nil, err
	}
	if !hasWav {
		p.log.Warnf("No wav files found in %s", dir)
		return nil, nil
	}
	if !hasMeta {
		p.log.Warnf("No metadata file found in %s", dir)
		return nil, nil
	}
	wav, err := SingleWavFile(dir)
	if err != nil {
		return nil, err
	}
	if wav == "" {
		p.log.Warnf("Multiple wav files found in %s, skipping", dir)
		return nil, nil
	}

	meta, err := ReadMetadata(metaPath)
	if err != nil {
		return nil, err
	}

	return &Record{
		ID:             meta.ID,
		Name:           meta.Name,
		Username:       meta.Username,
		License:        meta.License,
		Tags:           meta.Tags,
		RelativePath:   wav,
		Channels:       meta.Channels,
		Filesize:       meta.Filesize,
		Bitrate:        meta.Bitrate,
		Bitdepth:       meta.Bitdepth,
		Duration:       meta.Duration,
		Samplerate:     meta.Samplerate,
		InstrumentName: p.Label(meta.Name, meta.Tags),
	}, nil
}

// Label picks the instrument named in the sound name. Names mentioning zero or
// several instruments get "" unless the tag fallback finds a unique match.
func (p *Processor) Label(name string, tags []string) string {
	found := FindMatchingStrings(p.Instruments, name)
	if len(found) == 1 {
		return found[0]
	}
	if p.FuzzyTags && len(found) == 0 {
		return fuzzyTagMatch(p.Instruments, tags)
	}
	return ""
}

// CreateSet builds records for dirs, skipping directories that yield none.
func (p *Processor) CreateSet(ctx context.Context, dirs []string) ([]Record, error) {
	var out []Record
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := p.CreateRecord(dir)
		if err != nil {
			p.log.Errorf("Failed to process %s: %v", dir, err)
			continue
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// Clean drops records without an instrument label.
func (p *Processor) Clean(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.InstrumentName != "" {
			out = append(out, r)
		}
	}
	removed := len(records) - len(out)
	pct := 0.0
	if len(records) > 0 {
		pct = 100 * float64(removed) / float64(len(records))
	}
	p.log.Infof("Removed %d of %d records without an instrument label (%.1f%%)", removed, len(records), pct)
	return out
}

// Save writes records to outDir/music_info.json and returns the file path.
func (p *Processor) Save(records []Record, outDir string) (string, error) {
	if len(records) == 0 {
		return "", ErrEmptyDataset
	}
	info, err := os.Stat(outDir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%s: %w", outDir, ErrNotDirectory)
	}

	doc := struct {
		CreatedAt time.Time `json:"created_at"`
		Records   []Record  `json:"records"`
	}{time.Now().UTC(), records}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(outDir, DatasetFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing dataset: %w", err)
	}
	p.log.Infof("Saved %d records to %s", len(records), path)
	return path, nil
}

// Load reads a dataset written by Save.
func Load(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Records []Record `json:"records"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	if len(doc.Records) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyDataset)
	}
	return doc.Records, nil
}

// ClipDirs lists every directory below root (root itself excluded), sorted.
// Directories without their own metadata file are skipped later by
// CreateRecord, so root may be any ancestor of the clip store.
func ClipDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Process catalogs every clip directory under root, cleans the result and
// saves it to outDir.
func (p *Processor) Process(ctx context.Context, root, outDir string) ([]Record, string, error) {
	dirs, err := ClipDirs(root)
	if err != nil {
		return nil, "", fmt.Errorf("listing clip dirs: %w", err)
	}
	p.log.Infof("Found %d clip directories in %s", len(dirs), root)

	records, err := p.CreateSet(ctx, dirs)
	if err != nil {
		return nil, "", err
	}
	records = p.Clean(records)

	path, err := p.Save(records, outDir)
	if err != nil {
		return nil, "", err
	}
	return records, path, nil
}
