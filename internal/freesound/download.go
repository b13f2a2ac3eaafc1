package freesound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Download streams the original uploaded file of a sound to w. It needs an
// OAuth2 token. When the server announces a Content-Length the byte count is
// checked against it.
func (c *Client) Download(ctx context.Context, id int, w io.Writer) (int64, error) {
	if !c.HasOAuth() {
		return 0, ErrOAuthRequired
	}
	resp, err := c.get(ctx, fmt.Sprintf("/sounds/%d/download/", id), true)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return copyChecked(resp, w)
}

// DownloadPreview streams the best preview of s to w. Token auth is enough.
func (c *Client) DownloadPreview(ctx context.Context, s *Sound, w io.Writer) (int64, error) {
	u := s.PreviewURL()
	if u == "" {
		return 0, fmt.Errorf("sound %d: %w", s.ID, ErrNoPreview)
	}
	resp, err := c.get(ctx, u, false)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return copyChecked(resp, w)
}

func copyChecked(resp *http.Response, w io.Writer) (int64, error) {
	n, err := io.Copy(w, resp.Body)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return n, fmt.Errorf("%w: got %d of %d bytes: %w", ErrIncomplete, n, resp.ContentLength, err)
	}
	if err != nil {
		return n, fmt.Errorf("reading body: %w", err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("%w: got %d of %d bytes", ErrIncomplete, n, resp.ContentLength)
	}
	return n, nil
}
