package freesound

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/himanishpuri/AcousticLab/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func quietLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})
	require.NoError(t, err)
	return l
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	base := []Option{
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithBackoff(time.Millisecond),
		WithLogger(quietLogger(t)),
	}
	return NewClient(append(base, opts...)...)
}

// fakeSearch serves total sounds in pages, with absolute next links.
func fakeSearch(t *testing.T, total int, hits *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		size, _ := strconv.Atoi(q.Get("page_size"))
		assert.NotZero(t, size)

		start := (page - 1) * size
		var results []Sound
		for i := start; i < start+size && i < total; i++ {
			results = append(results, Sound{ID: i + 1, Name: fmt.Sprintf("sound %d", i+1)})
		}
		resp := SearchPage{Count: total, Results: results}
		if start+size < total {
			next := q
			next.Set("page", strconv.Itoa(page+1))
			u := "http://" + r.Host + r.URL.Path + "?" + next.Encode()
			resp.Next = &u
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func TestSearchAll_VisitsEveryPageOnce(t *testing.T) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/search/text/", fakeSearch(t, 7, &hits))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv, WithAPIKey("secret"))

	var ids []int
	n, err := c.SearchAll(context.Background(), SearchParams{Query: "violin", PageSize: 3}, func(s Sound) error {
		ids = append(ids, s.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, ids)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestSearchAll_MaxResultsAndStop(t *testing.T) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/search/text/", fakeSearch(t, 50, &hits))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestClient(t, srv)

	n, err := c.SearchAll(context.Background(), SearchParams{Query: "x", PageSize: 4, MaxResults: 6}, func(Sound) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "no page beyond MaxResults is fetched")

	n, err = c.SearchAll(context.Background(), SearchParams{Query: "x", PageSize: 4}, func(s Sound) error {
		if s.ID == 2 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	boom := fmt.Errorf("boom")
	_, err = c.SearchAll(context.Background(), SearchParams{Query: "x"}, func(Sound) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestSearch_QueryParameters(t *testing.T) {
	var got http.Header
	var query map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		query = r.URL.Query()
		w.Write([]byte(`{"count":0,"next":null,"previous":null,"results":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithAPIKey("abc123"))
	page, err := c.Search(context.Background(), SearchParams{
		Query:    "cello",
		Filter:   "type:wav",
		PageSize: 1000,
	}, 0)
	require.NoError(t, err)
	assert.False(t, page.HasNext())

	assert.Equal(t, "Token abc123", got.Get("Authorization"))
	assert.Equal(t, []string{"cello"}, query["query"])
	assert.Equal(t, []string{"type:wav"}, query["filter"])
	assert.Equal(t, []string{strconv.Itoa(MaxPageSize)}, query["page_size"])
	assert.Equal(t, []string{"1"}, query["page"])
	assert.Contains(t, query["fields"][0], "previews")
}

func TestRetryOn429HonoursRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"detail":"Request was throttled"}`))
			return
		}
		w.Write([]byte(`{"id":42,"name":"oboe.wav"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	s, err := c.GetSound(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "oboe.wav", s.Name)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetryExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"detail":"slow down"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithMaxRetries(2))
	_, err := c.GetSound(context.Background(), 1)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "slow down", apiErr.Detail)
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"detail":"nope"}`))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).GetSound(context.Background(), 1)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "nope", apiErr.Detail)
			assert.False(t, IsRetryable(err))
		})
	}
}

func TestContextCancelDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := newTestClient(t, srv).GetSound(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDownload_RequiresOAuth(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestClient(t, srv, WithAPIKey("k")).Download(context.Background(), 1, io.Discard)
	assert.ErrorIs(t, err, ErrOAuthRequired)
}

func TestDownload_BearerAndBytes(t *testing.T) {
	payload := strings.Repeat("RIFF", 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sounds/7/download/", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-1", TokenType: "Bearer"})
	c := newTestClient(t, srv, WithTokenSource(ts))

	var sb strings.Builder
	n, err := c.Download(context.Background(), 7, &sb)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, sb.String())
}

func TestDownload_ShortBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4000")
		w.Write([]byte(strings.Repeat("RIFF", 250)))
	}))
	defer srv.Close()

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-1", TokenType: "Bearer"})
	c := newTestClient(t, srv, WithTokenSource(ts))

	var sb strings.Builder
	n, err := c.Download(context.Background(), 7, &sb)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Less(t, n, int64(4000))
	assert.Equal(t, n, int64(sb.Len()))
}

func TestDownloadPreview(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/previews/1-hq.mp3", r.URL.Path)
		w.Write([]byte("ID3"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithAPIKey("k"))

	s := &Sound{ID: 1, Previews: map[string]string{PreviewHQMP3: srv.URL + "/previews/1-hq.mp3"}}
	var sb strings.Builder
	n, err := c.DownloadPreview(context.Background(), s, &sb)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = c.DownloadPreview(context.Background(), &Sound{ID: 2}, &sb)
	assert.ErrorIs(t, err, ErrNoPreview)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	d, ok := parseRetryAfter("5", now)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, d)

	d, ok = parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now)
	assert.True(t, ok)
	assert.Equal(t, 90*time.Second, d)

	_, ok = parseRetryAfter("soon", now)
	assert.False(t, ok)
}
