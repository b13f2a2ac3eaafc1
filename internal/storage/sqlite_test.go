package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/himanishpuri/AcousticLab/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to create a temporary test database
func setupTestDB(t *testing.T) (*DBClient, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test_acoustic.sqlite3")
	t.Setenv("ACOUSTIC_DB_PATH", dbPath)

	client, err := NewDBClient()
	if err != nil {
		t.Fatalf("Failed to create test DB client: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
	})

	return client, dbPath
}

func TestNewDBClient(t *testing.T) {
	client, dbPath := setupTestDB(t)

	if client.DB == nil {
		t.Fatal("Expected non-nil GORM DB handle")
	}
	if client.db == nil {
		t.Fatal("Expected non-nil sql.DB handle")
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("Database file was not created at %s", dbPath)
	}
}

func TestNewDBClientWithCustomPath(t *testing.T) {
	customPath := filepath.Join(t.TempDir(), "subdir", "custom.db")

	client, err := NewDBClientWithPath(customPath)
	require.NoError(t, err)
	defer client.Close()

	assert.FileExists(t, customPath)
}

func TestNilClient(t *testing.T) {
	var c *DBClient
	assert.NoError(t, c.Close())
	assert.Error(t, c.UpsertClip(models.Clip{ID: 1}))
	_, err := c.ListClips("")
	assert.Error(t, err)
}

func sampleClip(id int, name, label string) models.Clip {
	return models.Clip{
		ID:         id,
		Name:       name,
		Username:   "player",
		License:    "http://creativecommons.org/publicdomain/zero/1.0/",
		Tags:       []string{"music", "note"},
		Path:       filepath.Join("freesound", name+".wav"),
		Channels:   1,
		Filesize:   1024,
		Bitrate:    1411,
		Bitdepth:   16,
		Duration:   2.5,
		Samplerate: 44100,
		Label:      label,
	}
}

func TestUpsertAndGetClip(t *testing.T) {
	client, _ := setupTestDB(t)

	require.NoError(t, client.UpsertClip(sampleClip(10, "Violin A4", "Violin")))

	got, err := client.GetClip(10)
	require.NoError(t, err)
	assert.Equal(t, "Violin A4", got.Name)
	assert.Equal(t, "violin", got.Label, "labels are stored lowercase")
	assert.Equal(t, []string{"music", "note"}, got.Tags)
	assert.False(t, got.DownloadedAt.IsZero())

	_, err = client.GetClip(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertKeepsLabelOnRedownload(t *testing.T) {
	client, _ := setupTestDB(t)

	first := sampleClip(5, "cello long", "cello")
	first.DownloadedAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, client.UpsertClip(first))

	again := sampleClip(5, "cello long (edit)", "")
	again.Path = ""
	require.NoError(t, client.UpsertClip(again))

	got, err := client.GetClip(5)
	require.NoError(t, err)
	assert.Equal(t, "cello long (edit)", got.Name)
	assert.Equal(t, "cello", got.Label)
	assert.Equal(t, first.Path, got.Path)
	assert.True(t, got.DownloadedAt.Equal(first.DownloadedAt))
}

func TestUpsertKeepsAttributionOnRelabel(t *testing.T) {
	client, _ := setupTestDB(t)

	require.NoError(t, client.UpsertClip(models.Clip{ID: 100, Name: "cello D3", Username: "alice", License: "CC-BY-4.0"}))
	require.NoError(t, client.UpsertClip(models.Clip{ID: 100, Name: "cello D3", Path: "100/cello_D3.wav", Label: "cello"}))

	got, err := client.GetClip(100)
	require.NoError(t, err)
	assert.Equal(t, "cello", got.Label)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "CC-BY-4.0", got.License)
}

func TestListClipsAndLabelCounts(t *testing.T) {
	client, _ := setupTestDB(t)

	for _, c := range []models.Clip{
		sampleClip(3, "flute 1", "flute"),
		sampleClip(1, "flute 2", "flute"),
		sampleClip(2, "oboe 1", "oboe"),
		sampleClip(4, "mystery", ""),
	} {
		require.NoError(t, client.UpsertClip(c))
	}

	all, err := client.ListClips("")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, 1, all[0].ID, "clips are ordered by id")

	flutes, err := client.ListClips("Flute")
	require.NoError(t, err)
	assert.Len(t, flutes, 2)

	counts, err := client.LabelCounts()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"flute": 2, "oboe": 1}, counts)

	require.NoError(t, client.SetLabel(4, "oboe"))
	counts, err = client.LabelCounts()
	require.NoError(t, err)
	assert.Equal(t, 2, counts["oboe"])
	assert.ErrorIs(t, client.SetLabel(77, "oboe"), ErrNotFound)

	require.NoError(t, client.DeleteClip(3))
	all, err = client.ListClips("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRecordAndListRuns(t *testing.T) {
	client, _ := setupTestDB(t)

	older := &models.TrainingRun{
		Samples: 10, TrainSize: 8, TestSize: 2,
		Classes: []string{"cello", "flute"}, Epochs: 5, Accuracy: 0.5,
		CreatedAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, client.RecordRun(older))
	assert.Len(t, older.ID, 36)

	newer := &models.TrainingRun{Samples: 20, Classes: []string{"a"}, Accuracy: 0.9, Synthetic: true}
	require.NoError(t, client.RecordRun(newer))

	runs, err := client.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.True(t, runs[0].Synthetic)
	assert.Equal(t, []string{"cello", "flute"}, runs[1].Classes)

	runs, err = client.ListRuns(1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	got, err := client.GetRun(older.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.Accuracy, 1e-9)

	_, err = client.GetRun("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
