package freesound

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/AcousticLab/pkg/logger"
	"golang.org/x/oauth2"
)

const (
	defaultMaxRetries = 3
	defaultBackoff    = time.Second
	maxRetryDelay     = time.Minute
)

// Client talks to the Freesound v2 REST API.
//
// Requests are authorised with an OAuth2 bearer token when a token source is
// configured, otherwise with the API key ("Token" auth). Original file
// downloads always need the bearer token.
type Client struct {
	baseURL    string
	http       *http.Client
	apiKey     string
	tokens     oauth2.TokenSource
	maxRetries int
	backoff    time.Duration
	userAgent  string
	log        *logger.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithAPIKey sets the client secret / API key used for token authentication.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBackoff sets the base delay used when a retryable response carries no
// Retry-After header. The delay doubles on every attempt.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) { c.backoff = d }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		http:       &http.Client{Timeout: 5 * time.Minute},
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		userAgent:  "AcousticLab/1.0",
		log:        logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasOAuth reports whether the client can make bearer-authenticated calls.
func (c *Client) HasOAuth() bool { return c.tokens != nil }

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

func (c *Client) authorize(req *http.Request, requireOAuth bool) error {
	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		tok.SetAuthHeader(req)
		return nil
	}
	if requireOAuth {
		return ErrOAuthRequired
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Token "+c.apiKey)
	}
	return nil
}

// get issues a GET with retries on 429 and 5xx. The caller must close the
// body of the returned response, which always has a 2xx status.
func (c *Client) get(ctx context.Context, path string, requireOAuth bool) (*http.Response, error) {
	url := c.resolve(path)

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")
		if err := c.authorize(req, requireOAuth); err != nil {
			return nil, err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("GET %s: %w", url, err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		apiErr := newAPIError(resp, body)

		if !apiErr.Temporary() {
			return nil, apiErr
		}
		if attempt >= c.maxRetries {
			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, fmt.Errorf("%w after %d attempts: %w", ErrRateLimited, attempt+1, apiErr)
			}
			return nil, apiErr
		}

		delay := c.retryDelay(resp, attempt)
		c.log.Warnf("freesound: %s (attempt %d/%d), retrying in %s", resp.Status, attempt+1, c.maxRetries+1, delay)
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (c *Client) retryDelay(resp *http.Response, attempt int) time.Duration {
	if d, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
		return min(d, maxRetryDelay)
	}
	return min(c.backoff<<attempt, maxRetryDelay)
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsRetryable reports whether err came from a temporary API condition.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return errors.Is(err, ErrRateLimited)
}
