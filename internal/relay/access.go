package relay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/teemow/inboxlabeler/internal/logging"
)

const (
	verifiedTokenCacheSize = 128
	verifiedTokenTTL       = 5 * time.Minute
)

var (
	// ErrTokenRequired is returned to callers on other hosts that send no
	// Authorization bearer token.
	ErrTokenRequired = errors.New("requests from other hosts need an Authorization bearer token")

	// ErrTokenRejected is returned when the verifier refuses a token.
	ErrTokenRejected = errors.New("bearer token rejected")
)

// TokenVerifier decides whether a bearer token presented by a caller on
// another host may use the relay.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) error
}

// TokenVerifierFunc adapts a function to TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, token string) error

// VerifyToken calls f.
func (f TokenVerifierFunc) VerifyToken(ctx context.Context, token string) error {
	return f(ctx, token)
}

// Guard keeps the relay's stored Gmail credentials and the open page to the
// local host. Loopback callers pass through. Everyone else must send an
// Authorization bearer token the verifier accepts; accepted tokens are
// remembered for a few minutes.
//
// A reverse proxy on the same host makes every caller look local.
type Guard struct {
	verifier TokenVerifier
	verified *expirable.LRU[string, struct{}]
	logger   *slog.Logger
}

// NewGuard returns a Guard that checks remote tokens with verifier. A nil
// verifier rejects every remote request.
func NewGuard(verifier TokenVerifier, logger *slog.Logger) *Guard {
	return &Guard{
		verifier: verifier,
		verified: expirable.NewLRU[string, struct{}](verifiedTokenCacheSize, nil, verifiedTokenTTL),
		logger:   logging.WithComponent(logger, "relay-guard"),
	}
}

// Wrap returns next behind the guard.
func (g *Guard) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsLoopback(r) {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r)
		if token == "" {
			g.reject(w, r, ErrTokenRequired, nil)
			return
		}
		if err := g.verify(r.Context(), token); err != nil {
			g.reject(w, r, ErrTokenRejected, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Guard) verify(ctx context.Context, token string) error {
	sum := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])
	if _, ok := g.verified.Get(key); ok {
		return nil
	}
	if g.verifier == nil {
		return fmt.Errorf("no token verifier configured")
	}
	if err := g.verifier.VerifyToken(ctx, token); err != nil {
		return err
	}
	g.verified.Add(key, struct{}{})
	return nil
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request, reason, cause error) {
	g.logger.Warn("refused remote relay request",
		slog.String("remote", r.RemoteAddr),
		slog.String("path", r.URL.Path),
		slog.String("reason", reason.Error()),
		logging.Err(cause))
	w.Header().Set("WWW-Authenticate", `Bearer realm="inboxlabeler"`)
	writeJSON(w, http.StatusUnauthorized, errorResponse(reason))
}

// IsLoopback reports whether r arrived from the local host.
func IsLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
