package freesound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/oauth2"
)

// DefaultRedirectURL is the callback Freesound shows the authorization code
// on, for apps registered without their own redirect endpoint.
const DefaultRedirectURL = "https://freesound.org/home/app_permissions/permission_granted/"

var ErrNoToken = errors.New("freesound: no saved token")

// OAuthEndpoint returns the authorize and token endpoints under baseURL
// (DefaultBaseURL when empty). Freesound expects client credentials in the
// request body.
func OAuthEndpoint(baseURL string) oauth2.Endpoint {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	return oauth2.Endpoint{
		AuthURL:   baseURL + "/oauth2/authorize/",
		TokenURL:  baseURL + "/oauth2/access_token/",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// OAuthConfig builds the OAuth2 config for the public Freesound endpoints.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if redirectURL == "" {
		redirectURL = DefaultRedirectURL
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     OAuthEndpoint(""),
		RedirectURL:  redirectURL,
	}
}

// Authenticator runs the authorization-code flow and hands out refreshing
// token sources.
type Authenticator struct {
	Config *oauth2.Config

	// HTTPClient is used for token requests; nil means http.DefaultClient.
	HTTPClient *http.Client
}

func NewAuthenticator(cfg *oauth2.Config) *Authenticator {
	return &Authenticator{Config: cfg}
}

func (a *Authenticator) ctx(ctx context.Context) context.Context {
	if a.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, a.HTTPClient)
}

// AuthorizeURL is the page the user visits to grant access.
func (a *Authenticator) AuthorizeURL(state string) string {
	return a.Config.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token.
func (a *Authenticator) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", ErrUnauthorized)
	}
	tok, err := a.Config.Exchange(a.ctx(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}
	return tok, nil
}

// TokenSource returns a source that refreshes tok when it expires.
func (a *Authenticator) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return a.Config.TokenSource(a.ctx(ctx), tok)
}

// PersistentTokenSource loads the token saved at path and writes it back
// whenever it is refreshed.
func (a *Authenticator) PersistentTokenSource(ctx context.Context, path string) (oauth2.TokenSource, error) {
	tok, err := LoadToken(path)
	if err != nil {
		return nil, err
	}
	return &savingTokenSource{
		src:  a.TokenSource(ctx, tok),
		path: path,
		last: tok.AccessToken,
	}, nil
}

type savingTokenSource struct {
	mu   sync.Mutex
	src  oauth2.TokenSource
	path string
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := SaveToken(s.path, tok); err != nil {
			return nil, err
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}

// SaveToken writes tok as JSON readable only by the current user.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token dir: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("saving token: %w", err)
	}
	return nil
}

func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNoToken, path)
		}
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decoding token %s: %w", path, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w at %s", ErrNoToken, path)
	}
	return &tok, nil
}
