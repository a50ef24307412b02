package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxlabeler/internal/config"
	"github.com/teemow/inboxlabeler/internal/google"
	"github.com/teemow/inboxlabeler/internal/instrumentation"
	"github.com/teemow/inboxlabeler/internal/logging"
	"github.com/teemow/inboxlabeler/internal/observer"
	"github.com/teemow/inboxlabeler/internal/relay"
	"github.com/teemow/inboxlabeler/internal/server"
)

// DefaultHTTPAddr keeps the relay on the local host.
const DefaultHTTPAddr = "127.0.0.1:8080"

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (default: 127.0.0.1:9090)
	Addr string
}

// ServeConfig holds the serve command settings.
type ServeConfig struct {
	Transport  string
	HTTPAddr   string
	NoObserver bool
	Metrics    MetricsConfig
}

func newServeCmd() *cobra.Command {
	var (
		transport      string
		httpAddr       string
		noObserver     bool
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP relay",
		Long: `Start the Model Context Protocol (MCP) relay between a UI surface and the
Gmail page.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport on /mcp, plus the plain JSON
    relay on /relay and health checks on /healthz and /readyz

Authentication:
  Requests may carry a Gmail OAuth access token (the "token" argument, or an
  "Authorization: Bearer" header over HTTP). Without one the token stored by
  'inboxlabeler auth' is used.

  The HTTP transport listens on 127.0.0.1 by default. When --http-addr exposes
  it, callers on other hosts must send an "Authorization: Bearer" token for
  the same Gmail account as the stored token; everyone else gets 401.

When a page source is configured (browser.cdp_url or browser.snapshot) the
page observer runs in the background and, with observer.auto_classify,
labels new emails as they appear.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			serveCfg := ServeConfig{
				Transport:  transport,
				HTTPAddr:   httpAddr,
				NoObserver: noObserver,
				Metrics:    MetricsConfig{Enabled: metricsEnabled, Addr: metricsAddr},
			}
			loadServeEnvVars(cmd, &serveCfg)
			return runServe(cfg, serveCfg)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", DefaultHTTPAddr, "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&noObserver, "no-observer", false, "Do not run the page observer")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// loadServeEnvVars fills settings whose flags were not given explicitly.
func loadServeEnvVars(cmd *cobra.Command, c *ServeConfig) {
	if !cmd.Flags().Changed("metrics-enabled") {
		if v := os.Getenv("METRICS_ENABLED"); v != "" {
			c.Metrics.Enabled = v == "true"
		}
	}
	if !cmd.Flags().Changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			c.Metrics.Addr = addr
		}
	}
	if !cmd.Flags().Changed("http-addr") {
		if addr := os.Getenv("HTTP_ADDR"); addr != "" {
			c.HTTPAddr = addr
		}
	}
}

func runServe(cfg *config.Config, serveCfg ServeConfig) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	instrConfig.Labeler = instrumentation.LabelerInfo{
		ClassifierURL: cfg.Classifier.URL,
		PageSource:    pageSourceKind(cfg),
		Transport:     serveCfg.Transport,
	}

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			slog.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	// Start metrics server if enabled and not in stdio mode
	if serveCfg.Transport != "stdio" && serveCfg.Metrics.Enabled && provider.Enabled() {
		metricsServer, err := startMetricsServer(serveCfg.Metrics.Addr, provider)
		switch {
		case errors.Is(err, server.ErrNoGatherer):
			slog.Info("metrics are pushed, not serving a scrape endpoint", "exporter", instrConfig.MetricsExporter)
		case err != nil:
			return err
		default:
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := metricsServer.Shutdown(ctx); err != nil {
					slog.Warn("error during metrics server shutdown", logging.Err(err))
				}
			}()
		}
	}

	var metrics *instrumentation.Metrics
	var auditLogger *instrumentation.AuditLogger
	if provider.Enabled() {
		metrics = provider.Metrics()
		auditLogger = instrumentation.NewAuditLogger(slog.Default(), instrConfig.AuditLogging)
	}

	a, err := newApp(shutdownCtx, cfg, metrics)
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithClassifier(a.classifier),
		server.WithHistory(a.history),
		server.WithMetrics(metrics),
		server.WithAuditLogger(auditLogger),
		server.WithCloser(a.closeSource),
	}
	if hasPageSource(cfg) && !serveCfg.NoObserver {
		obs, err := newObserver(cfg, a, metrics)
		if err != nil {
			a.Close()
			return err
		}
		opts = append(opts, server.WithObserver(obs))
	}

	serverContext, err := server.NewServerContext(shutdownCtx, a.labeler, opts...)
	if err != nil {
		a.Close()
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			slog.Warn("error during server context shutdown", logging.Err(err))
		}
	}()

	mcpSrv := mcpserver.NewMCPServer("inboxlabeler", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
	)
	if err := relay.RegisterTools(mcpSrv, serverContext.Dispatcher(), serverContext.Classifier()); err != nil {
		return fmt.Errorf("failed to register relay tools: %w", err)
	}

	serverContext.StartObserver()

	switch serveCfg.Transport {
	case "stdio":
		return runStdioServer(mcpSrv)
	case "streamable-http":
		guard := relay.NewGuard(newGmailTokenVerifier(a.gmailClient), a.logger)
		return runStreamableHTTPServer(shutdownCtx, newHTTPMux(mcpSrv, serverContext, guard), serveCfg.HTTPAddr)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", serveCfg.Transport)
	}
}

func startMetricsServer(addr string, provider *instrumentation.Provider) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(addr, provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}
	if err := metricsServer.Listen(); err != nil {
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	}
	go func() {
		if err := metricsServer.Serve(); err != nil {
			slog.Error("metrics server stopped", logging.Err(err))
		}
	}()
	return metricsServer, nil
}

func newObserver(cfg *config.Config, a *app, metrics *instrumentation.Metrics) (*observer.Observer, error) {
	var handler observer.Handler
	if cfg.Observer.AutoClassify {
		handler = observer.ClassifyHandler(a.labeler, a.logger)
	}
	return observer.New(a.labeler, handler,
		observer.WithCacheSize(cfg.Observer.CacheSize),
		observer.WithInterval(cfg.Observer.Interval),
		observer.WithMetrics(metrics),
		observer.WithLogger(a.logger),
	)
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// newHTTPMux builds the streamable-http routes. The relay surfaces sit
// behind guard; health endpoints do not.
func newHTTPMux(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, guard *relay.Guard) *http.ServeMux {
	streamable := mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath("/mcp"),
		mcpserver.WithHTTPContextFunc(bearerTokenContext),
	)

	mux := http.NewServeMux()
	mux.Handle("/mcp", guard.Wrap(streamable))
	mux.Handle("/relay", guard.Wrap(sc.RelayHandler()))
	server.NewHealthChecker(sc).RegisterHealthEndpoints(mux)
	return mux
}

// bearerTokenContext forwards an Authorization bearer token to the Gmail
// client of the tool call.
func bearerTokenContext(ctx context.Context, r *http.Request) context.Context {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return google.WithRequestToken(ctx, strings.TrimSpace(token))
	}
	return ctx
}

func runStreamableHTTPServer(ctx context.Context, handler http.Handler, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		slog.Info("starting inboxlabeler relay", "transport", "streamable-http", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping relay")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
		return nil
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	}
}
