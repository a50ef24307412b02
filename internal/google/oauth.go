package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ErrNoToken is returned when no token file exists yet.
var ErrNoToken = errors.New("no Google OAuth token found, run 'inboxlabeler auth url' first")

// LoadOAuthConfig reads an OAuth client definition downloaded from the Google
// Cloud console.
func LoadOAuthConfig(credentialsFile string, scopes ...string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}
	conf, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return conf, nil
}

// AuthURL returns the consent URL for offline access.
func AuthURL(conf *oauth2.Config, state string) string {
	return conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// SaveToken exchanges an authorization code for tokens and saves them
func SaveToken(ctx context.Context, conf *oauth2.Config, authCode, tokenFile string) error {
	t, err := conf.Exchange(ctx, authCode)
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}
	return WriteToken(tokenFile, t)
}

// HasToken reports whether a token file exists.
func HasToken(tokenFile string) bool {
	_, err := os.Stat(tokenFile)
	return err == nil
}

// ReadToken loads a token written by WriteToken.
func ReadToken(tokenFile string) (*oauth2.Token, error) {
	data, err := os.ReadFile(tokenFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var t oauth2.Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("invalid token file: %w", err)
	}
	if t.AccessToken == "" && t.RefreshToken == "" {
		return nil, fmt.Errorf("invalid token file: no access or refresh token")
	}
	return &t, nil
}

// WriteToken stores t as JSON with owner-only permissions.
func WriteToken(tokenFile string, t *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(tokenFile), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(tokenFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

// persistingTokenSource writes refreshed tokens back to disk.
type persistingTokenSource struct {
	base      oauth2.TokenSource
	tokenFile string

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t.AccessToken != s.last {
		if err := WriteToken(s.tokenFile, t); err != nil {
			return nil, err
		}
		s.last = t.AccessToken
	}
	return t, nil
}

// FileTokenSource returns a token source backed by tokenFile. Refreshed
// tokens are written back to the same file.
func FileTokenSource(ctx context.Context, conf *oauth2.Config, tokenFile string) (oauth2.TokenSource, error) {
	t, err := ReadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	return oauth2.ReuseTokenSource(t, &persistingTokenSource{
		base:      conf.TokenSource(ctx, t),
		tokenFile: tokenFile,
		last:      t.AccessToken,
	}), nil
}

// HTTPClient returns an HTTP client that authenticates with ts. base, if
// non-nil, is used as the underlying transport.
func HTTPClient(ctx context.Context, ts oauth2.TokenSource, base http.RoundTripper) *http.Client {
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: base})
	}
	return oauth2.NewClient(ctx, ts)
}
