package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/teemow/inboxlabeler/internal/instrumentation"
	"github.com/teemow/inboxlabeler/internal/logging"
)

// ErrUnavailable means the service could not be reached.
var ErrUnavailable = errors.New("classification service unavailable")

// StatusCheckText is the text the service answers with a liveness reply
// instead of a prediction.
const StatusCheckText = "test"

// maxErrorBody bounds how much of an error reply is read.
const maxErrorBody = 64 << 10

// ServiceError is a non-2xx reply, or a 2xx reply carrying an error field.
type ServiceError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("classifier %s failed (%d): %s", e.Endpoint, e.StatusCode, e.Message)
}

// Prediction is the service's answer for one text.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Meets reports whether the prediction names a label with at least the given
// confidence.
func (p Prediction) Meets(threshold float64) bool {
	return p.Label != "" && p.Confidence >= threshold
}

// Client talks to the prediction service.
type Client struct {
	baseURL string
	hc      *http.Client
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default traced HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

// WithTimeout bounds every request. Zero leaves requests bounded only by the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

// WithMetrics records requests on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for the service at baseURL, e.g. http://localhost:5050.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithComponent(c.logger, "classifier")
	return c
}

// BaseURL returns the service address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Predict classifies text.
func (c *Client) Predict(ctx context.Context, text string) (Prediction, error) {
	var p Prediction
	err := c.call(ctx, instrumentation.EndpointPredict, "/predict", map[string]string{"text": text}, &p)
	return p, err
}

// Train teaches the model that text belongs to label.
func (c *Client) Train(ctx context.Context, text, label string) error {
	var resp struct {
		Status string `json:"status"`
	}
	return c.call(ctx, instrumentation.EndpointTrain, "/train", map[string]string{"text": text, "label": label}, &resp)
}

// Reset discards all training data and returns the service's message.
func (c *Client) Reset(ctx context.Context) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.call(ctx, instrumentation.EndpointReset, "/reset", nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Status checks that the service is up by sending StatusCheckText to
// /predict. Any 2xx reply counts as up.
func (c *Client) Status(ctx context.Context) error {
	var resp json.RawMessage
	return c.call(ctx, instrumentation.EndpointStatus, "/predict", map[string]string{"text": StatusCheckText}, &resp)
}

func (c *Client) call(ctx context.Context, endpoint, path string, body any, out any) (err error) {
	ctx, span := instrumentation.StartClassifierSpan(ctx, endpoint)
	start := time.Now()
	defer func() {
		instrumentation.EndSpan(span, err)
		status := instrumentation.StatusSuccess
		if err != nil {
			status = instrumentation.StatusError
		}
		c.metrics.RecordClassifierRequest(ctx, endpoint, status, time.Since(start))
		c.logger.Debug("classifier request",
			slog.String("endpoint", endpoint),
			logging.Status(status),
			slog.Duration(logging.KeyDuration, time.Since(start)),
			logging.Err(err))
	}()

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", endpoint, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	if msg := errorField(data); resp.StatusCode < 200 || resp.StatusCode > 299 || msg != "" {
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &ServiceError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: msg}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// errorField extracts {"error": "..."} from a reply body.
func errorField(data []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) != nil {
		return ""
	}
	return payload.Error
}
