package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxlabeler/internal/browser/browsertest"
	"github.com/teemow/inboxlabeler/internal/classifier"
	"github.com/teemow/inboxlabeler/internal/config"
	"github.com/teemow/inboxlabeler/internal/gmail"
	"github.com/teemow/inboxlabeler/internal/gmail/gmailtest"
	"github.com/teemow/inboxlabeler/internal/google"
	"github.com/teemow/inboxlabeler/internal/instrumentation"
	"github.com/teemow/inboxlabeler/internal/labeler"
	"github.com/teemow/inboxlabeler/internal/relay"
	"github.com/teemow/inboxlabeler/internal/server"
)

type nopClassifier struct{}

func (nopClassifier) Predict(context.Context, string) (classifier.Prediction, error) {
	return classifier.Prediction{}, nil
}

func (nopClassifier) Train(context.Context, string, string) error { return nil }

func TestLoadServeEnvVars(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
		want ServeConfig
	}{
		{
			name: "defaults",
			want: ServeConfig{HTTPAddr: "127.0.0.1:8080", Metrics: MetricsConfig{Enabled: true, Addr: server.DefaultMetricsAddr}},
		},
		{
			name: "env overrides defaults",
			env:  map[string]string{"METRICS_ENABLED": "false", "METRICS_ADDR": ":9999", "HTTP_ADDR": ":7000"},
			want: ServeConfig{HTTPAddr: ":7000", Metrics: MetricsConfig{Enabled: false, Addr: ":9999"}},
		},
		{
			name: "flags win over env",
			env:  map[string]string{"METRICS_ADDR": ":9999", "HTTP_ADDR": ":7000"},
			args: []string{"--metrics-addr", ":1111", "--http-addr", ":2222"},
			want: ServeConfig{HTTPAddr: ":2222", Metrics: MetricsConfig{Enabled: true, Addr: ":1111"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"METRICS_ENABLED", "METRICS_ADDR", "HTTP_ADDR"} {
				t.Setenv(k, tt.env[k])
			}

			cmd := newServeCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))

			addr, _ := cmd.Flags().GetString("http-addr")
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
			enabled, _ := cmd.Flags().GetBool("metrics-enabled")
			got := ServeConfig{HTTPAddr: addr, Metrics: MetricsConfig{Enabled: enabled, Addr: metricsAddr}}

			loadServeEnvVars(cmd, &got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBearerTokenContext(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{name: "bearer token", header: "Bearer ya29.abc", want: "ya29.abc", ok: true},
		{name: "no header"},
		{name: "other scheme", header: "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			token, ok := google.RequestToken(bearerTokenContext(context.Background(), r))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, token)
		})
	}
}

func TestNewHTTPMux(t *testing.T) {
	page, err := browsertest.New("https://mail.google.com/mail/u/0/#inbox", `<html><body></body></html>`)
	require.NoError(t, err)
	svc := labeler.New(page, func(context.Context) (labeler.GmailAPI, error) {
		return nil, labeler.ErrAuthentication
	}, nopClassifier{})

	sc, err := server.NewServerContext(context.Background(), svc)
	require.NoError(t, err)
	defer func() { _ = sc.Shutdown() }()

	mux := newHTTPMux(mcpserver.NewMCPServer("inboxlabeler-test", "0.0.0"), sc, relay.NewGuard(nil, nil))

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		remoteAddr string
		wantStatus int
	}{
		{
			name:       "relay from loopback",
			method:     http.MethodPost,
			path:       "/relay",
			body:       `{"action":"ping"}`,
			remoteAddr: "127.0.0.1:40000",
			wantStatus: http.StatusOK,
		},
		{
			name:       "relay from another host",
			method:     http.MethodPost,
			path:       "/relay",
			body:       `{"action":"getEmailContent"}`,
			remoteAddr: "10.1.2.3:5555",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "mcp from another host",
			method:     http.MethodPost,
			path:       "/mcp",
			body:       `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
			remoteAddr: "10.1.2.3:5555",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "liveness from another host",
			method:     http.MethodGet,
			path:       "/healthz",
			remoteAddr: "10.1.2.3:5555",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.RemoteAddr = tt.remoteAddr
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK && tt.path == "/relay" {
				assert.JSONEq(t, `{"pong":true}`, rec.Body.String())
			}
		})
	}
}

func TestGmailTokenVerifier(t *testing.T) {
	srv := gmailtest.NewServer()
	defer srv.Close()
	srv.AddAccount("ya29.owner", "ME@example.com")
	srv.AddAccount("ya29.stranger", "someone@example.org")

	v := newGmailTokenVerifier(fakeGmailClients(srv))

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "token of the stored account", token: "ya29.owner"},
		{name: "token of another account", token: "ya29.stranger", wantErr: errForeignAccount},
		{name: "token gmail rejects", token: "ya29.expired", wantErr: &gmail.APIError{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.VerifyToken(context.Background(), tt.token)
			switch want := tt.wantErr.(type) {
			case nil:
				assert.NoError(t, err)
			case *gmail.APIError:
				var apiErr *gmail.APIError
				require.ErrorAs(t, err, &apiErr)
				assert.True(t, apiErr.Unauthorized())
			default:
				assert.ErrorIs(t, err, want)
			}
		})
	}
}

func TestGmailTokenVerifier_NoStoredAccount(t *testing.T) {
	srv := gmailtest.NewServer()
	defer srv.Close()
	srv.AddAccount("ya29.owner", gmailtest.DefaultAccount)
	srv.Fail(gmailtest.EndpointProfile, http.StatusUnauthorized, "Invalid Credentials")

	err := newGmailTokenVerifier(fakeGmailClients(srv)).VerifyToken(context.Background(), "ya29.owner")
	assert.ErrorContains(t, err, "stored token")
}

// fakeGmailClients builds clients for srv. Requests without a request token
// stand in for the stored token and reach srv unauthenticated.
func fakeGmailClients(srv *gmailtest.Server) gmailClientFunc {
	return func(ctx context.Context) (*gmail.Client, error) {
		hc := srv.Client()
		if token, ok := google.RequestToken(ctx); ok {
			hc = google.HTTPClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}), srv.Client().Transport)
		}
		return gmail.NewClient(ctx, hc, srv.Endpoint())
	}
}

func TestPageSourceKind(t *testing.T) {
	tests := []struct {
		name    string
		browser config.BrowserConfig
		want    string
	}{
		{name: "none", want: instrumentation.PageSourceNone},
		{name: "chrome", browser: config.BrowserConfig{CDPURL: "http://127.0.0.1:9222"}, want: instrumentation.PageSourceChrome},
		{name: "snapshot", browser: config.BrowserConfig{Snapshot: "inbox.html"}, want: instrumentation.PageSourceSnapshot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pageSourceKind(&config.Config{Browser: tt.browser}))
		})
	}
}

func TestNoPageSource(t *testing.T) {
	cfg := &config.Config{}
	assert.False(t, hasPageSource(cfg))

	src, closeSource, err := newPageSource(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closeSource()

	_, err = src.Snapshot(context.Background())
	assert.ErrorIs(t, err, errNoPageSource)
	assert.ErrorIs(t, src.Refresh(context.Background()), errNoPageSource)
}

func TestWithCLIToken(t *testing.T) {
	t.Setenv("INBOXLABELER_TOKEN", "from-env")

	token, ok := google.RequestToken(withCLIToken(context.Background(), ""))
	assert.True(t, ok)
	assert.Equal(t, "from-env", token)

	token, _ = google.RequestToken(withCLIToken(context.Background(), "from-flag"))
	assert.Equal(t, "from-flag", token)
}
