package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/teemow/inboxlabeler/internal/google"
)

// errForeignAccount is returned for a valid token of a different account.
var errForeignAccount = errors.New("token belongs to a different Gmail account")

// gmailTokenVerifier accepts bearer tokens that Gmail honours for the account
// of the stored token. Without a stored token no remote caller is accepted,
// since the open page cannot be tied to an account.
type gmailTokenVerifier struct {
	client gmailClientFunc

	mu      sync.Mutex
	account string
}

func newGmailTokenVerifier(client gmailClientFunc) *gmailTokenVerifier {
	return &gmailTokenVerifier{client: client}
}

// VerifyToken implements relay.TokenVerifier.
func (v *gmailTokenVerifier) VerifyToken(ctx context.Context, token string) error {
	want, err := v.storedAccount(ctx)
	if err != nil {
		return fmt.Errorf("remote access needs a stored token to identify the account: %w", err)
	}
	c, err := v.client(google.WithRequestToken(ctx, token))
	if err != nil {
		return err
	}
	got, err := c.Profile(ctx)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, want) {
		return errForeignAccount
	}
	return nil
}

// storedAccount looks up the stored token's address once it succeeds.
func (v *gmailTokenVerifier) storedAccount(ctx context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.account != "" {
		return v.account, nil
	}
	c, err := v.client(ctx)
	if err != nil {
		return "", err
	}
	email, err := c.Profile(ctx)
	if err != nil {
		return "", err
	}
	if email == "" {
		return "", errors.New("stored token has no email address")
	}
	v.account = email
	return email, nil
}
