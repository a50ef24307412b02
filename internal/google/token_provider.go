package google

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/oauth2"
)

// TokenProvider is an interface for providing OAuth token sources for Google APIs
type TokenProvider interface {
	TokenSource(ctx context.Context) (oauth2.TokenSource, error)
}

// FileTokenProvider provides tokens from a token file on disk.
type FileTokenProvider struct {
	conf      *oauth2.Config
	tokenFile string

	mu sync.Mutex
	ts oauth2.TokenSource
}

// NewFileTokenProvider creates a new file-based token provider
func NewFileTokenProvider(conf *oauth2.Config, tokenFile string) *FileTokenProvider {
	return &FileTokenProvider{conf: conf, tokenFile: tokenFile}
}

// TokenSource loads the token file on first use and reuses the source after.
func (p *FileTokenProvider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ts != nil {
		return p.ts, nil
	}
	if p.conf == nil {
		return nil, errors.New("no OAuth client configured")
	}
	// The refreshing source outlives the caller's request.
	ts, err := FileTokenSource(context.WithoutCancel(ctx), p.conf, p.tokenFile)
	if err != nil {
		return nil, err
	}
	p.ts = ts
	return ts, nil
}

type requestTokenKey struct{}

// WithRequestToken attaches a bearer token supplied by the caller of a relay
// request.
func WithRequestToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, requestTokenKey{}, token)
}

// RequestToken returns the bearer token attached with WithRequestToken.
func RequestToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(requestTokenKey{}).(string)
	return token, ok && token != ""
}

// RequestTokenProvider prefers a request token and otherwise delegates to
// Fallback. A nil Fallback makes the request token mandatory.
type RequestTokenProvider struct {
	Fallback TokenProvider
}

// ErrNoRequestToken is returned when neither a request token nor a fallback
// is available.
var ErrNoRequestToken = errors.New("no OAuth token supplied")

func (p RequestTokenProvider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if token, ok := RequestToken(ctx); ok {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}), nil
	}
	if p.Fallback == nil {
		return nil, ErrNoRequestToken
	}
	return p.Fallback.TokenSource(ctx)
}
