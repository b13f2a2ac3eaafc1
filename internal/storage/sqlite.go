package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/himanishpuri/AcousticLab/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "acousticlab.sqlite3"
const errDBClientNil = "db client is nil"

var ErrNotFound = errors.New("not found")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

type Clip struct {
	ID           int    `gorm:"primaryKey;autoIncrement:false"`
	Name         string `gorm:"index:idx_clip_name"`
	Username     string
	License      string
	Tags         string // comma separated
	Path         string
	Channels     int
	Filesize     int64
	Bitrate      float64
	Bitdepth     int
	Duration     float64
	Samplerate   float64
	Label        string `gorm:"index:idx_clip_label"`
	DownloadedAt time.Time
	UpdatedAt    time.Time
}

type TrainingRun struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Samples   int
	TrainSize int
	TestSize  int
	Classes   string // comma separated, in class-index order
	Epochs    int
	FinalLoss float64
	Accuracy  float64
	ModelPath string
	Synthetic bool
	CreatedAt time.Time `gorm:"index:idx_run_created"`
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv("ACOUSTIC_DB_PATH")
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=busy_timeout(5000)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Clip{}, &TrainingRun{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *DBClient) ready() error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return nil
}

// UpsertClip inserts or replaces a clip. Empty attribution, label, path or
// download time on the incoming clip keeps the stored value, so a re-download
// does not erase a catalog label and a catalog pass does not erase the
// attribution recorded at download time.
func (c *DBClient) UpsertClip(clip models.Clip) error {
	if err := c.ready(); err != nil {
		return err
	}
	row := clipRow(clip)

	return c.DB.Transaction(func(tx *gorm.DB) error {
		var existing Clip
		err := tx.First(&existing, "id = ?", row.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if row.DownloadedAt.IsZero() {
				row.DownloadedAt = time.Now()
			}
			return tx.Create(&row).Error
		}
		if err != nil {
			return fmt.Errorf("querying clip %d: %w", row.ID, err)
		}

		if row.Username == "" {
			row.Username = existing.Username
		}
		if row.License == "" {
			row.License = existing.License
		}
		if row.Label == "" {
			row.Label = existing.Label
		}
		if row.Path == "" {
			row.Path = existing.Path
		}
		if row.DownloadedAt.IsZero() {
			row.DownloadedAt = existing.DownloadedAt
		}
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("updating clip %d: %w", row.ID, err)
		}
		return nil
	})
}

// SetLabel overwrites the label of a stored clip; an empty label clears it.
func (c *DBClient) SetLabel(id int, label string) error {
	if err := c.ready(); err != nil {
		return err
	}
	res := c.DB.Model(&Clip{}).Where("id = ?", id).Update("label", label)
	if res.Error != nil {
		return fmt.Errorf("setting label on clip %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("clip %d: %w", id, ErrNotFound)
	}
	return nil
}

func (c *DBClient) GetClip(id int) (*models.Clip, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var row Clip
	if err := c.DB.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("clip %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("querying clip %d: %w", id, err)
	}
	clip := row.toModel()
	return &clip, nil
}

// ListClips returns clips ordered by id, optionally filtered by label.
func (c *DBClient) ListClips(label string) ([]models.Clip, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	q := c.DB.Order("id")
	if label != "" {
		q = q.Where("label = ?", strings.ToLower(label))
	}
	var rows []Clip
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing clips: %w", err)
	}
	out := make([]models.Clip, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// LabelCounts counts clips per non-empty label.
func (c *DBClient) LabelCounts() (map[string]int, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var rows []struct {
		Label string
		N     int
	}
	err := c.DB.Model(&Clip{}).
		Select("label, count(*) as n").
		Where("label <> ''").
		Group("label").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("counting labels: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Label] = r.N
	}
	return out, nil
}

func (c *DBClient) DeleteClip(id int) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.DB.Where("id = ?", id).Delete(&Clip{}).Error
}

// RecordRun stores a training run, assigning an id and timestamp when unset.
func (c *DBClient) RecordRun(run *models.TrainingRun) error {
	if err := c.ready(); err != nil {
		return err
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	row := TrainingRun{
		ID:        run.ID,
		Samples:   run.Samples,
		TrainSize: run.TrainSize,
		TestSize:  run.TestSize,
		Classes:   strings.Join(run.Classes, ","),
		Epochs:    run.Epochs,
		FinalLoss: run.FinalLoss,
		Accuracy:  run.Accuracy,
		ModelPath: run.ModelPath,
		Synthetic: run.Synthetic,
		CreatedAt: run.CreatedAt,
	}
	if err := c.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first; limit <= 0 returns all.
func (c *DBClient) ListRuns(limit int) ([]models.TrainingRun, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	q := c.DB.Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []TrainingRun
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	out := make([]models.TrainingRun, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (c *DBClient) GetRun(id string) (*models.TrainingRun, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	var row TrainingRun
	if err := c.DB.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("querying run %s: %w", id, err)
	}
	run := row.toModel()
	return &run, nil
}

func clipRow(c models.Clip) Clip {
	return Clip{
		ID:           c.ID,
		Name:         c.Name,
		Username:     c.Username,
		License:      c.License,
		Tags:         strings.Join(c.Tags, ","),
		Path:         c.Path,
		Channels:     c.Channels,
		Filesize:     c.Filesize,
		Bitrate:      c.Bitrate,
		Bitdepth:     c.Bitdepth,
		Duration:     c.Duration,
		Samplerate:   c.Samplerate,
		Label:        strings.ToLower(c.Label),
		DownloadedAt: c.DownloadedAt,
	}
}

func (r Clip) toModel() models.Clip {
	return models.Clip{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username,
		License:      r.License,
		Tags:         splitList(r.Tags),
		Path:         r.Path,
		Channels:     r.Channels,
		Filesize:     r.Filesize,
		Bitrate:      r.Bitrate,
		Bitdepth:     r.Bitdepth,
		Duration:     r.Duration,
		Samplerate:   r.Samplerate,
		Label:        r.Label,
		DownloadedAt: r.DownloadedAt,
	}
}

func (r TrainingRun) toModel() models.TrainingRun {
	return models.TrainingRun{
		ID:        r.ID,
		Samples:   r.Samples,
		TrainSize: r.TrainSize,
		TestSize:  r.TestSize,
		Classes:   splitList(r.Classes),
		Epochs:    r.Epochs,
		FinalLoss: r.FinalLoss,
		Accuracy:  r.Accuracy,
		ModelPath: r.ModelPath,
		Synthetic: r.Synthetic,
		CreatedAt: r.CreatedAt,
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
