package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/AcousticLab/internal/audio"
	"github.com/himanishpuri/AcousticLab/internal/catalog"
	"github.com/himanishpuri/AcousticLab/internal/classifier"
	"github.com/himanishpuri/AcousticLab/internal/download"
	"github.com/himanishpuri/AcousticLab/internal/features"
	"github.com/himanishpuri/AcousticLab/internal/freesound"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFeatures() features.Config {
	cfg := features.DefaultConfig()
	cfg.SampleRate = 8000
	cfg.DurationMs = 500
	cfg.NFFT = 256
	cfg.HopLength = 128
	cfg.NMels = 16
	return cfg
}

func testTrain() classifier.TrainConfig {
	cfg := classifier.DefaultTrainConfig()
	cfg.Hidden = 16
	cfg.Epochs = 40
	cfg.BatchSize = 8
	return cfg
}

// setupTestService creates a service with a temporary database and clip root.
func setupTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()

	tmpDir := t.TempDir()
	base := []Option{
		WithDBPath(filepath.Join(tmpDir, "test_service.sqlite3")),
		WithClipRoot(filepath.Join(tmpDir, "clips")),
		WithTempDir(tmpDir),
		WithModelPath(filepath.Join(tmpDir, "models", DefaultModelFile)),
		WithFeatureConfig(testFeatures()),
		WithTrainConfig(testTrain()),
		WithWorkers(4),
	}
	svc, err := NewService(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

// writeClip lays out one downloaded clip the way the downloader does.
func writeClip(t *testing.T, root string, id int, name string, freq float64) {
	t.Helper()
	dir := filepath.Join(root, fmt.Sprint(id))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, audio.WriteWav(filepath.Join(dir, "clip.wav"), audio.Sine(freq, 8000, 0.5, 0.6)))
	require.NoError(t, catalog.WriteMetadata(dir, &freesound.Sound{ID: id, Name: name, Channels: 1, Samplerate: 8000}))
}

func writeDataset(t *testing.T, root string) {
	t.Helper()
	for i := 0; i < 12; i++ {
		writeClip(t, root, 100+i, fmt.Sprintf("Cello note %d", i), 180+float64(i)*10)
		writeClip(t, root, 200+i, fmt.Sprintf("Flute note %d", i), 2000+float64(i)*50)
	}
	// unlabelled, dropped by the catalog
	writeClip(t, root, 300, "field recording", 440)
}

func TestBuildCatalogStoresLabels(t *testing.T) {
	svc := setupTestService(t)
	root := svc.Config().ClipRoot
	writeDataset(t, root)

	records, path, err := svc.BuildCatalog(context.Background(), "", "")
	require.NoError(t, err)
	assert.Len(t, records, 24)
	assert.Equal(t, filepath.Join(root, catalog.DatasetFile), path)

	counts, err := svc.LabelCounts()
	require.NoError(t, err)
	assert.Equal(t, 12, counts["cello"])
	assert.Equal(t, 12, counts["flute"])

	clips, err := svc.ListClips("flute")
	require.NoError(t, err)
	assert.Len(t, clips, 12)
}

func TestTrainAndPredict(t *testing.T) {
	svc := setupTestService(t)
	root := svc.Config().ClipRoot
	writeDataset(t, root)

	_, dataset, err := svc.BuildCatalog(context.Background(), root, root)
	require.NoError(t, err)

	res, err := svc.Train(context.Background(), TrainRequest{Dataset: dataset, TestFraction: 0.25})
	require.NoError(t, err)
	assert.Equal(t, []string{"cello", "flute"}, res.Classes)
	assert.Equal(t, 24, res.Run.Samples)
	assert.Equal(t, 6, res.Run.TestSize)
	assert.Zero(t, res.Skipped)
	assert.GreaterOrEqual(t, res.Run.Accuracy, 0.8)
	assert.FileExists(t, svc.Config().ModelPath)

	runs, err := svc.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.Run.ID, runs[0].ID)
	assert.False(t, runs[0].Synthetic)

	query := filepath.Join(t.TempDir(), "query.wav")
	require.NoError(t, audio.WriteWav(query, audio.Sine(2100, 8000, 0.5, 0.5)))

	// a fresh service has to load the model from disk
	other := setupTestService(t)
	pred, err := other.Predict(context.Background(), svc.Config().ModelPath, query)
	require.NoError(t, err)
	assert.Equal(t, "flute", pred.Label)
	assert.Equal(t, pred.Probabilities["flute"], pred.Confidence)
	assert.InDelta(t, 1.0, pred.Probabilities["cello"]+pred.Probabilities["flute"], 1e-9)
}

func TestTrainSkipsUnreadableClips(t *testing.T) {
	svc := setupTestService(t)
	root := svc.Config().ClipRoot
	writeDataset(t, root)

	_, dataset, err := svc.BuildCatalog(context.Background(), root, root)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "100", "clip.wav"), []byte("junk"), 0o644))

	res, err := svc.Train(context.Background(), TrainRequest{Dataset: dataset})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 23, res.Run.Samples)
}

func TestTrainSynthetic(t *testing.T) {
	svc := setupTestService(t)

	res, err := svc.Train(context.Background(), TrainRequest{
		Synthetic:        true,
		SyntheticSamples: 120,
		SyntheticClasses: 3,
	})
	require.NoError(t, err)
	assert.True(t, res.Run.Synthetic)
	assert.Len(t, res.Classes, 3)
	assert.Equal(t, 120, res.Run.Samples)
	assert.NotEmpty(t, res.Run.ID)
}

func TestTrainMissingDataset(t *testing.T) {
	svc := setupTestService(t)
	_, err := svc.Train(context.Background(), TrainRequest{Dataset: filepath.Join(t.TempDir(), "nope.json")})
	assert.Error(t, err)
}

func TestPredictMissingModel(t *testing.T) {
	svc := setupTestService(t)
	_, err := svc.Predict(context.Background(), "", "whatever.wav")
	assert.Error(t, err)
}

func TestModelCacheIsBounded(t *testing.T) {
	svc := setupTestService(t)
	dir := t.TempDir()

	var first string
	for i := 0; i < maxCachedModels+3; i++ {
		path := filepath.Join(dir, fmt.Sprintf("m%d.json.lzw", i))
		_, err := svc.Train(context.Background(), TrainRequest{
			Synthetic:        true,
			SyntheticSamples: 40,
			SyntheticClasses: 2,
			ModelPath:        path,
		})
		require.NoError(t, err)
		if i == 0 {
			first = path
		}
	}
	assert.Len(t, svc.models, maxCachedModels)
	assert.NotContains(t, svc.models, first)

	_, err := svc.model(first)
	require.NoError(t, err)
	assert.Contains(t, svc.models, first)
	assert.Len(t, svc.models, maxCachedModels)
}

type stubAPI struct{ sounds []freesound.Sound }

func (s *stubAPI) SearchAll(_ context.Context, _ freesound.SearchParams, fn func(freesound.Sound) error) (int, error) {
	for _, snd := range s.sounds {
		if err := fn(snd); err != nil {
			return 0, err
		}
	}
	return len(s.sounds), nil
}

func (s *stubAPI) Download(_ context.Context, id int, w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, "sound-%d", id)
	return int64(n), err
}

func (s *stubAPI) DownloadPreview(ctx context.Context, snd *freesound.Sound, w io.Writer) (int64, error) {
	return s.Download(ctx, snd.ID, w)
}

func TestDownloadRecordsClips(t *testing.T) {
	api := &stubAPI{sounds: []freesound.Sound{{ID: 7, Name: "oboe swell"}, {ID: 8, Name: "oboe trill"}}}
	svc := setupTestService(t, WithClient(api))

	rep, err := svc.Download(context.Background(), download.Request{Query: "oboe"})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Downloaded)

	clips, err := svc.ListClips("")
	require.NoError(t, err)
	assert.Len(t, clips, 2)
	assert.FileExists(t, clips[0].Path)
}

func TestCatalogKeepsDownloadAttribution(t *testing.T) {
	api := &stubAPI{sounds: []freesound.Sound{
		{ID: 7, Name: "oboe swell", Type: "wav", Username: "alice", License: "CC-BY-4.0"},
	}}
	svc := setupTestService(t, WithClient(api))

	_, err := svc.Download(context.Background(), download.Request{Query: "oboe"})
	require.NoError(t, err)

	records, _, err := svc.BuildCatalog(context.Background(), "", "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "alice", records[0].Username)

	clips, err := svc.ListClips("oboe")
	require.NoError(t, err)
	require.Len(t, clips, 1)
	assert.Equal(t, "alice", clips[0].Username)
	assert.Equal(t, "CC-BY-4.0", clips[0].License)
}

func TestDownloadWithoutClient(t *testing.T) {
	svc := setupTestService(t)
	_, err := svc.Download(context.Background(), download.Request{Query: "oboe"})
	assert.ErrorIs(t, err, ErrNoClient)
}
