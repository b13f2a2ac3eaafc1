package freesound

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrUnauthorized  = errors.New("freesound: unauthorized")
	ErrNotFound      = errors.New("freesound: not found")
	ErrRateLimited   = errors.New("freesound: rate limited")
	ErrOAuthRequired = errors.New("freesound: oauth2 access token required")
	ErrNoPreview     = errors.New("freesound: sound has no preview")
	ErrIncomplete    = errors.New("freesound: incomplete download")

	// ErrStop may be returned from a SearchAll callback to end paging early
	// without error.
	ErrStop = errors.New("stop iteration")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Status     string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("freesound API error: %s", e.Status)
	}
	return fmt.Sprintf("freesound API error: %s - %s", e.Status, e.Detail)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status}

	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		apiErr.Detail = payload.Detail
	} else {
		apiErr.Detail = strings.TrimSpace(string(body))
	}
	if len(apiErr.Detail) > 512 {
		apiErr.Detail = apiErr.Detail[:512]
	}
	return apiErr
}
