package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inboxlabeler/internal/instrumentation"
	"github.com/teemow/inboxlabeler/internal/logging"
)

// Client wraps the Gmail Users service
type Client struct {
	svc     *gmail.UsersService
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records every API call on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Gmail client on top of an authenticated HTTP client.
// endpoint overrides the API base URL; leave empty for Google's.
func NewClient(ctx context.Context, hc *http.Client, endpoint string, opts ...Option) (*Client, error) {
	clientOpts := []option.ClientOption{option.WithHTTPClient(hc)}
	if endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(endpoint))
	}

	svc, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	c := &Client{svc: svc.Users}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithComponent(c.logger, "gmail")
	return c, nil
}

// ListLabels lists all Gmail labels for the user
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	var labels []Label
	err := c.observe(ctx, instrumentation.OperationListLabels, "", func(ctx context.Context) error {
		resp, err := c.svc.Labels.List(userID).Context(ctx).Do()
		if err != nil {
			return newAPIError("failed to fetch labels", err)
		}
		labels = make([]Label, 0, len(resp.Labels))
		for _, l := range resp.Labels {
			labels = append(labels, Label{ID: l.Id, Name: l.Name, Type: l.Type})
		}
		return nil
	})
	return labels, err
}

// CreateLabel creates a visible user label.
func (c *Client) CreateLabel(ctx context.Context, name string) (Label, error) {
	var created Label
	err := c.observe(ctx, instrumentation.OperationCreateLabel, "", func(ctx context.Context) error {
		l, err := c.svc.Labels.Create(userID, &gmail.Label{
			Name:                  name,
			LabelListVisibility:   LabelListVisibility,
			MessageListVisibility: MessageListVisibility,
			Type:                  LabelTypeUser,
		}).Context(ctx).Do()
		if err != nil {
			return newAPIError("failed to create label", err)
		}
		created = Label{ID: l.Id, Name: l.Name, Type: l.Type}
		return nil
	})
	return created, err
}

// ModifyThread adds labels to every message of a thread.
func (c *Client) ModifyThread(ctx context.Context, threadID string, addLabelIDs []string) error {
	return c.observe(ctx, instrumentation.OperationModifyThread, threadID, func(ctx context.Context) error {
		_, err := c.svc.Threads.Modify(userID, threadID, &gmail.ModifyThreadRequest{
			AddLabelIds: addLabelIDs,
		}).Context(ctx).Do()
		if err != nil {
			return newAPIError("failed to apply label", err)
		}
		return nil
	})
}

// ModifyMessage adds labels to a single message.
func (c *Client) ModifyMessage(ctx context.Context, messageID string, addLabelIDs []string) error {
	return c.observe(ctx, instrumentation.OperationModifyMessage, messageID, func(ctx context.Context) error {
		_, err := c.svc.Messages.Modify(userID, messageID, &gmail.ModifyMessageRequest{
			AddLabelIds: addLabelIDs,
		}).Context(ctx).Do()
		if err != nil {
			return newAPIError("failed to apply label to message", err)
		}
		return nil
	})
}

// Profile returns the email address of the account the client acts for.
func (c *Client) Profile(ctx context.Context) (string, error) {
	var email string
	err := c.observe(ctx, instrumentation.OperationGetProfile, "", func(ctx context.Context) error {
		p, err := c.svc.GetProfile(userID).Context(ctx).Do()
		if err != nil {
			return newAPIError("failed to fetch profile", err)
		}
		email = p.EmailAddress
		return nil
	})
	return email, err
}

// observe wraps an API call in a span, a metrics sample and a debug log line.
func (c *Client) observe(ctx context.Context, op, target string, fn func(context.Context) error) (err error) {
	ctx, span := instrumentation.StartGmailSpan(ctx, op,
		instrumentation.NewSpanAttributeBuilder().WithThread(target).Build()...)
	defer func() { instrumentation.EndSpan(span, err) }()

	start := time.Now()
	err = fn(ctx)
	duration := time.Since(start)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGmailOperation(ctx, op, status, duration)
	c.logger.Debug("gmail api call",
		logging.Operation(op),
		logging.Status(status),
		slog.Duration(logging.KeyDuration, duration),
		logging.Err(err))
	return err
}
