package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/himanishpuri/AcousticLab/internal/catalog"
	"github.com/himanishpuri/AcousticLab/internal/freesound"
	"github.com/himanishpuri/AcousticLab/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	sounds    []freesound.Sound
	bodies    map[int]string
	failIDs   map[int]error
	downloads []int
	previews  []int
	params    freesound.SearchParams
}

func (f *fakeAPI) SearchAll(ctx context.Context, p freesound.SearchParams, fn func(freesound.Sound) error) (int, error) {
	f.params = p
	n := 0
	for _, s := range f.sounds {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		n++
		if err := fn(s); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (f *fakeAPI) write(id int, w io.Writer) (int64, error) {
	if err := f.failIDs[id]; err != nil {
		return 0, err
	}
	n, err := io.WriteString(w, f.bodies[id])
	return int64(n), err
}

func (f *fakeAPI) Download(_ context.Context, id int, w io.Writer) (int64, error) {
	f.downloads = append(f.downloads, id)
	return f.write(id, w)
}

func (f *fakeAPI) DownloadPreview(_ context.Context, s *freesound.Sound, w io.Writer) (int64, error) {
	f.previews = append(f.previews, s.ID)
	return f.write(s.ID, w)
}

type memStore struct{ clips map[int]models.Clip }

func (m *memStore) UpsertClip(c models.Clip) error {
	m.clips[c.ID] = c
	return nil
}

func newFake() *fakeAPI {
	return &fakeAPI{
		sounds: []freesound.Sound{
			{ID: 101, Name: "Violin A4.wav", Tags: []string{"violin"}},
			{ID: 102, Name: "cello low C", Tags: []string{"cello"}},
		},
		bodies: map[int]string{
			101: "RIFF-violin-bytes",
			102: "RIFF-cello-bytes-longer",
		},
		failIDs: map[int]error{},
	}
}

func TestRunDownloadsEverySound(t *testing.T) {
	root := t.TempDir()
	api := newFake()
	store := &memStore{clips: map[int]models.Clip{}}
	d := &Downloader{Client: api, Root: root, Store: store}

	rep, err := d.Run(context.Background(), Request{Query: "violin", MaxResults: 10})
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Seen)
	assert.Equal(t, 2, rep.Downloaded)
	assert.Equal(t, 0, rep.Failed)
	assert.Equal(t, int64(len(api.bodies[101])+len(api.bodies[102])), rep.Bytes)
	assert.Equal(t, DefaultFilter, api.params.Filter)
	assert.Equal(t, 10, api.params.MaxResults)

	for _, s := range api.sounds {
		data, err := os.ReadFile(ClipPath(root, &s))
		require.NoError(t, err)
		assert.Equal(t, api.bodies[s.ID], string(data))

		meta, err := catalog.ReadMetadata(filepath.Join(ClipDir(root, s.ID), catalog.MetadataFile))
		require.NoError(t, err)
		assert.Equal(t, s.Name, meta.Name)

		assert.Equal(t, ClipPath(root, &s), store.clips[s.ID].Path)
	}
	assert.Equal(t, filepath.Join(root, "101", "Violin_A4.wav"), ClipPath(root, &api.sounds[0]))

	entries, err := os.ReadDir(ClipDir(root, 101))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no partial files left behind")
}

func TestRunSkipsExistingClips(t *testing.T) {
	root := t.TempDir()
	api := newFake()
	d := &Downloader{Client: api, Root: root}

	_, err := d.Run(context.Background(), Request{Query: "x"})
	require.NoError(t, err)
	api.downloads = nil

	rep, err := d.Run(context.Background(), Request{Query: "x"})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, 0, rep.Downloaded)
	assert.Empty(t, api.downloads)

	rep, err = d.Run(context.Background(), Request{Query: "x", Overwrite: true})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Downloaded)
}

func TestRunCountsFailures(t *testing.T) {
	root := t.TempDir()
	api := newFake()
	api.failIDs[101] = fmt.Errorf("sound 101: %w", freesound.ErrIncomplete)
	d := &Downloader{Client: api, Root: root}

	rep, err := d.Run(context.Background(), Request{Query: "x"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Downloaded)
	assert.False(t, Exists(root, &api.sounds[0]))
	assert.True(t, Exists(root, &api.sounds[1]))
}

func TestRunAbortsOnAuthFailure(t *testing.T) {
	api := newFake()
	api.failIDs[101] = freesound.ErrOAuthRequired
	d := &Downloader{Client: api, Root: t.TempDir()}

	rep, err := d.Run(context.Background(), Request{Query: "x"})
	assert.ErrorIs(t, err, freesound.ErrOAuthRequired)
	assert.Equal(t, 1, rep.Seen)
	assert.Empty(t, api.downloads[1:])
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &Downloader{Client: newFake(), Root: t.TempDir()}

	_, err := d.Run(ctx, Request{Query: "x"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPreviewModeConverts(t *testing.T) {
	root := t.TempDir()
	api := newFake()
	var converted []string
	d := &Downloader{
		Client: api,
		Root:   root,
		Mode:   ModePreview,
		Converter: func(_ context.Context, in, outDir, outName string) (string, error) {
			data, err := os.ReadFile(in)
			if err != nil {
				return "", err
			}
			out := filepath.Join(outDir, outName)
			converted = append(converted, out)
			return out, os.WriteFile(out, data, 0o644)
		},
	}

	rep, err := d.Run(context.Background(), Request{Query: "x"})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Downloaded)
	assert.Equal(t, []int{101, 102}, api.previews)
	assert.Empty(t, api.downloads)
	assert.Equal(t, []string{ClipPath(root, &api.sounds[0]), ClipPath(root, &api.sounds[1])}, converted)

	d.Converter = nil
	_, err = d.Run(context.Background(), Request{Query: "x"})
	assert.Error(t, err)
}

func copyConverter(converted *[]string) ConvertFunc {
	return func(_ context.Context, in, outDir, outName string) (string, error) {
		data, err := os.ReadFile(in)
		if err != nil {
			return "", err
		}
		out := filepath.Join(outDir, outName)
		*converted = append(*converted, out)
		return out, os.WriteFile(out, append([]byte("RIFF-"), data...), 0o644)
	}
}

func TestRunRestrictsOriginalsToWAV(t *testing.T) {
	root := t.TempDir()
	api := newFake()
	api.sounds = append(api.sounds, freesound.Sound{ID: 7, Name: "trumpet D5", Type: "mp3"})
	api.bodies[7] = "ID3\x04mp3-bytes"
	d := &Downloader{Client: api, Root: root}

	rep, err := d.Run(context.Background(), Request{Query: "trumpet", Filter: "duration:[0 TO 5]"})
	require.NoError(t, err)

	assert.Equal(t, "type:wav duration:[0 TO 5]", api.params.Filter)
	assert.Equal(t, 2, rep.Downloaded)
	assert.Equal(t, 1, rep.Skipped)
	assert.NotContains(t, api.downloads, 7)
	assert.NoFileExists(t, ClipPath(root, &api.sounds[2]))
	assert.Empty(t, d.Mode, "Run leaves the caller's mode alone")

	_, err = d.Run(context.Background(), Request{Query: "trumpet", Filter: "type:aiff"})
	require.NoError(t, err)
	assert.Equal(t, "type:aiff", api.params.Filter)
}

func TestRunConvertsNonWAVOriginals(t *testing.T) {
	root := t.TempDir()
	api := newFake()
	api.sounds = append(api.sounds, freesound.Sound{ID: 7, Name: "trumpet D5", Type: "mp3"})
	api.bodies[7] = "mp3-bytes"
	var converted []string
	d := &Downloader{Client: api, Root: root, Converter: copyConverter(&converted)}

	rep, err := d.Run(context.Background(), Request{Query: "trumpet", Filter: "duration:[0 TO 5]"})
	require.NoError(t, err)

	assert.Equal(t, "duration:[0 TO 5]", api.params.Filter)
	assert.Equal(t, 3, rep.Downloaded)
	assert.Equal(t, []int{101, 102, 7}, api.downloads)
	assert.Equal(t, []string{ClipPath(root, &api.sounds[2])}, converted)

	data, err := os.ReadFile(ClipPath(root, &api.sounds[2]))
	require.NoError(t, err)
	assert.Equal(t, "RIFF-mp3-bytes", string(data))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeOriginal, m)

	m, err = ParseMode("preview")
	require.NoError(t, err)
	assert.Equal(t, ModePreview, m)

	_, err = ParseMode("lossless")
	assert.Error(t, err)
}
