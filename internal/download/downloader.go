package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/himanishpuri/AcousticLab/internal/audio"
	"github.com/himanishpuri/AcousticLab/internal/catalog"
	"github.com/himanishpuri/AcousticLab/internal/freesound"
	"github.com/himanishpuri/AcousticLab/pkg/logger"
	"github.com/himanishpuri/AcousticLab/pkg/models"
	"github.com/himanishpuri/AcousticLab/pkg/utils"
)

// Mode selects which file of a sound is fetched.
type Mode string

const (
	// ModeOriginal fetches the uploaded file; needs OAuth2.
	ModeOriginal Mode = "original"
	// ModePreview fetches the mp3 preview and converts it to WAV with ffmpeg.
	ModePreview Mode = "preview"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeOriginal, ModePreview:
		return Mode(s), nil
	case "":
		return ModeOriginal, nil
	}
	return "", fmt.Errorf("unknown download mode %q (want original or preview)", s)
}

// DefaultFilter restricts searches to short WAV uploads.
const DefaultFilter = "type:wav duration:[0 TO 10]"

// restrictToWAV adds a type:wav clause to filter unless it names a type.
func restrictToWAV(filter string) string {
	for _, f := range strings.Fields(filter) {
		if strings.HasPrefix(f, "type:") {
			return filter
		}
	}
	return strings.TrimSpace("type:wav " + filter)
}

func isWAV(s *freesound.Sound) bool {
	return s.Type == "" || strings.EqualFold(s.Type, "wav")
}

// API is the part of the Freesound client the downloader needs.
type API interface {
	SearchAll(ctx context.Context, params freesound.SearchParams, fn func(freesound.Sound) error) (int, error)
	Download(ctx context.Context, id int, w io.Writer) (int64, error)
	DownloadPreview(ctx context.Context, s *freesound.Sound, w io.Writer) (int64, error)
}

// ConvertFunc turns a downloaded preview into a WAV file in outDir.
type ConvertFunc func(ctx context.Context, in, outDir, outName string) (string, error)

// FFmpegConverter converts with audio.ConvertToMonoWAV at the given sample rate.
func FFmpegConverter(sampleRate int) ConvertFunc {
	return func(ctx context.Context, in, outDir, outName string) (string, error) {
		return audio.ConvertToMonoWAV(ctx, in, outDir, audio.ConvertWAVConfig{
			SampleRate: sampleRate,
			OutputName: outName,
		})
	}
}

// ClipStore records downloaded clips.
type ClipStore interface {
	UpsertClip(clip models.Clip) error
}

type Request struct {
	Query      string
	Filter     string
	Sort       string
	PageSize   int
	MaxResults int
	Overwrite  bool
}

type Report struct {
	Seen       int
	Downloaded int
	Skipped    int
	Failed     int
	Bytes      int64
	Elapsed    time.Duration
}

func (r Report) String() string {
	return fmt.Sprintf("%d seen, %d downloaded (%s), %d skipped, %d failed in %s",
		r.Seen, r.Downloaded, humanize.Bytes(uint64(r.Bytes)), r.Skipped, r.Failed, r.Elapsed.Round(time.Millisecond))
}

// Downloader stores every search hit under Root/<id>/<name>.wav together
// with its metadata.
type Downloader struct {
	Client    API
	Root      string
	Mode      Mode
	Converter ConvertFunc
	Logger    *logger.Logger
	Store     ClipStore
}

func (d *Downloader) log() *logger.Logger {
	if d.Logger == nil {
		return logger.GetLogger()
	}
	return d.Logger
}

// ClipDir is the directory a sound is stored in.
func ClipDir(root string, id int) string {
	return filepath.Join(root, strconv.Itoa(id))
}

// ClipPath is the WAV path a sound is stored at.
func ClipPath(root string, s *freesound.Sound) string {
	return filepath.Join(ClipDir(root, s.ID), utils.SanitizeFilename(s.Name)+".wav")
}

// Exists reports whether both the WAV and metadata of s are already on disk.
func Exists(root string, s *freesound.Sound) bool {
	return utils.FileExists(ClipPath(root, s)) &&
		utils.FileExists(filepath.Join(ClipDir(root, s.ID), catalog.MetadataFile))
}

// Run pages through the search results and fetches every sound. Per-sound
// failures are logged and counted; cancellation and authentication errors
// abort the run. Originals that are not WAV are converted when a Converter
// is set; without one the search is restricted to WAV and any other type is
// skipped.
func (d *Downloader) Run(ctx context.Context, req Request) (Report, error) {
	start := time.Now()
	var rep Report

	if d.Client == nil {
		return rep, errors.New("download: no client")
	}
	mode := d.Mode
	if mode == "" {
		mode = ModeOriginal
	}
	if mode == ModePreview && d.Converter == nil {
		return rep, errors.New("download: preview mode needs a converter")
	}
	if err := utils.MakeDir(d.Root); err != nil {
		return rep, fmt.Errorf("creating clip root: %w", err)
	}
	if req.Filter == "" {
		req.Filter = DefaultFilter
	}
	if mode == ModeOriginal && d.Converter == nil {
		req.Filter = restrictToWAV(req.Filter)
	}

	log := d.log()
	log.Infof("Searching freesound for %q (%s), mode %s", req.Query, req.Filter, mode)

	params := freesound.SearchParams{
		Query:      req.Query,
		Filter:     req.Filter,
		Sort:       req.Sort,
		PageSize:   req.PageSize,
		MaxResults: req.MaxResults,
	}

	_, err := d.Client.SearchAll(ctx, params, func(s freesound.Sound) error {
		rep.Seen++
		if mode == ModeOriginal && !isWAV(&s) && d.Converter == nil {
			log.Warnf("[%d] %s is %s, not wav, skipping", s.ID, s.Name, s.Type)
			rep.Skipped++
			return nil
		}
		if !req.Overwrite && Exists(d.Root, &s) {
			log.Debugf("[%d] %s already present, skipping", s.ID, s.Name)
			rep.Skipped++
			return nil
		}

		n, err := d.fetch(ctx, &s, mode)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, freesound.ErrUnauthorized) || errors.Is(err, freesound.ErrOAuthRequired) {
				return err
			}
			log.Errorf("[%d] %s: %v", s.ID, s.Name, err)
			rep.Failed++
			return nil
		}
		rep.Downloaded++
		rep.Bytes += n
		log.Infof("[%d] %s (%s)", s.ID, s.Name, humanize.Bytes(uint64(n)))
		return nil
	})
	rep.Elapsed = time.Since(start)
	if err != nil {
		return rep, err
	}
	log.Infof("Download finished: %s", rep)
	return rep, nil
}

// fetch downloads one sound into place and returns the bytes received.
func (d *Downloader) fetch(ctx context.Context, s *freesound.Sound, mode Mode) (int64, error) {
	dir := ClipDir(d.Root, s.ID)
	if err := utils.MakeDir(dir); err != nil {
		return 0, err
	}
	final := ClipPath(d.Root, s)

	tmp, err := os.CreateTemp(dir, ".partial-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	var n int64
	switch mode {
	case ModePreview:
		n, err = d.Client.DownloadPreview(ctx, s, tmp)
	default:
		n, err = d.Client.Download(ctx, s.ID, tmp)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}

	if mode == ModePreview || !isWAV(s) {
		if _, err := d.Converter(ctx, tmpPath, dir, filepath.Base(final)); err != nil {
			return 0, fmt.Errorf("converting %s: %w", mode, err)
		}
	} else if err := utils.MoveFile(tmpPath, final); err != nil {
		return 0, err
	}

	if err := catalog.WriteMetadata(dir, s); err != nil {
		return 0, fmt.Errorf("writing metadata: %w", err)
	}

	if d.Store != nil {
		clip := models.Clip{
			ID:           s.ID,
			Name:         s.Name,
			Username:     s.Username,
			License:      s.License,
			Tags:         s.Tags,
			Path:         final,
			Channels:     s.Channels,
			Filesize:     s.Filesize,
			Bitrate:      s.Bitrate,
			Bitdepth:     s.Bitdepth,
			Duration:     s.Duration,
			Samplerate:   s.Samplerate,
			DownloadedAt: time.Now(),
		}
		if err := d.Store.UpsertClip(clip); err != nil {
			d.log().Warnf("[%d] recording clip: %v", s.ID, err)
		}
	}
	return n, nil
}
