package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxlabeler/internal/batch"
	"github.com/teemow/inboxlabeler/internal/google"
	"github.com/teemow/inboxlabeler/internal/instrumentation"
	"github.com/teemow/inboxlabeler/internal/labeler"
	"github.com/teemow/inboxlabeler/internal/logging"
)

// NotificationMethod is the MCP method used for batch training events.
const NotificationMethod = "notifications/message"

// ClassifierAdmin exposes classification service maintenance.
type ClassifierAdmin interface {
	Status(ctx context.Context) error
	Reset(ctx context.Context) (string, error)
}

type toolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// RegisterTools registers the relay actions and the classifier utilities with
// the MCP server. admin may be nil, in which case the classifier maintenance
// tools are not registered.
func RegisterTools(s *mcpserver.MCPServer, d *Dispatcher, admin ClassifierAdmin) error {
	if s == nil || d == nil {
		return fmt.Errorf("mcp server and dispatcher are required")
	}

	getEmailContentTool := mcp.NewTool("get_email_content",
		mcp.WithDescription("Get the thread id, subject and body of the email open in the Gmail tab"),
		mcp.WithString("token",
			mcp.Description("OAuth access token for Gmail (default: stored token)"),
		),
	)
	s.AddTool(getEmailContentTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return d.callAction(ctx, request, ActionGetEmailContent)
	})

	applyLabelTool := mcp.NewTool("apply_label",
		mcp.WithDescription("Apply a label to the email open in the Gmail tab, creating the label if needed"),
		mcp.WithString("label",
			mcp.Required(),
			mcp.Description("Label name"),
		),
		mcp.WithString("token",
			mcp.Description("OAuth access token for Gmail (default: stored token)"),
		),
	)
	s.AddTool(applyLabelTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return d.callAction(ctx, request, ActionApplyLabel)
	})

	getVisibleEmailsTool := mcp.NewTool("get_visible_emails",
		mcp.WithDescription("List the email rows visible in the Gmail tab"),
		mcp.WithBoolean("selectedOnly",
			mcp.Description("Only return rows whose checkbox is selected (default: false)"),
		),
	)
	s.AddTool(getVisibleEmailsTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return d.callAction(ctx, request, ActionGetAllVisibleEmails)
	})

	applyLabelToEmailTool := mcp.NewTool("apply_label_to_email",
		mcp.WithDescription("Apply a label to one or more threads, or to a single message"),
		mcp.WithString("threadId",
			mcp.Required(),
			mcp.Description("Thread ID or array of thread IDs"),
		),
		mcp.WithString("messageId",
			mcp.Description("Label only this message instead of the thread (single thread only)"),
		),
		mcp.WithString("label",
			mcp.Required(),
			mcp.Description("Label name"),
		),
		mcp.WithString("token",
			mcp.Description("OAuth access token for Gmail (default: stored token)"),
		),
	)
	s.AddTool(applyLabelToEmailTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return d.handleApplyLabelToEmail(ctx, request)
	})

	batchTrainTool := mcp.NewTool("batch_train",
		mcp.WithDescription("Train the classifier on the selected rows with a label and apply the label. Returns immediately; progress is sent as notifications"),
		mcp.WithString("label",
			mcp.Required(),
			mcp.Description("Label name"),
		),
		mcp.WithNumber("batchSize",
			mcp.Description("Emails per chunk (default: configured batch size)"),
		),
		mcp.WithString("token",
			mcp.Description("OAuth access token for Gmail (default: stored token)"),
		),
	)
	s.AddTool(batchTrainTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return d.callAction(ctx, request, ActionBatchTrain)
	})

	pingTool := mcp.NewTool("ping",
		mcp.WithDescription("Check that the relay is alive"),
	)
	s.AddTool(pingTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return d.callAction(ctx, request, ActionPing)
	})

	predictTool := mcp.NewTool("predict_and_apply",
		mcp.WithDescription("Classify the open email and apply the predicted label when the confidence is high enough"),
		mcp.WithString("token",
			mcp.Description("OAuth access token for Gmail (default: stored token)"),
		),
	)
	s.AddTool(predictTool, d.instrumented("predict_and_apply", func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		outcome, err := d.svc.PredictAndApply(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to predict: %v", err)), nil
		}
		return jsonResult(outcome)
	}))

	trainTool := mcp.NewTool("train_and_apply",
		mcp.WithDescription("Train the classifier on the open email with a label and apply the label"),
		mcp.WithString("label",
			mcp.Required(),
			mcp.Description("Label name"),
		),
		mcp.WithString("token",
			mcp.Description("OAuth access token for Gmail (default: stored token)"),
		),
	)
	s.AddTool(trainTool, d.instrumented("train_and_apply", func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		label, _ := request.GetArguments()["label"].(string)
		if label == "" {
			return mcp.NewToolResultError("label is required"), nil
		}
		res, err := d.svc.TrainAndApply(ctx, label)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to train: %v", err)), nil
		}
		return jsonResult(res)
	}))

	classifyTool := mcp.NewTool("classify_visible",
		mcp.WithDescription("Classify every visible row and apply labels predicted with high confidence"),
		mcp.WithString("token",
			mcp.Description("OAuth access token for Gmail (default: stored token)"),
		),
	)
	s.AddTool(classifyTool, d.instrumented("classify_visible", func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		report, err := d.svc.ClassifyVisible(ctx, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to classify emails: %v", err)), nil
		}
		return mcp.NewToolResultText(batch.FormatResults(report)), nil
	}))

	testTool := mcp.NewTool("test_prediction",
		mcp.WithDescription("Classify arbitrary text without labeling anything"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Text to classify"),
		),
	)
	s.AddTool(testTool, d.instrumented("test_prediction", func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, _ := request.GetArguments()["text"].(string)
		pred, err := d.svc.TestPrediction(ctx, text)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to predict: %v", err)), nil
		}
		return jsonResult(pred)
	}))

	if admin == nil {
		return nil
	}

	statusTool := mcp.NewTool("classifier_status",
		mcp.WithDescription("Check whether the classification service is reachable"),
	)
	s.AddTool(statusTool, d.instrumented("classifier_status", func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := admin.Status(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("classifier is not available: %v", err)), nil
		}
		return mcp.NewToolResultText("classifier is running"), nil
	}))

	resetTool := mcp.NewTool("reset_model",
		mcp.WithDescription("Reset the classification model, discarding everything it has learned"),
	)
	s.AddTool(resetTool, d.instrumented("reset_model", func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		msg, err := admin.Reset(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to reset model: %v", err)), nil
		}
		return mcp.NewToolResultText(msg), nil
	}))

	return nil
}

// callAction runs a relay action built from the tool arguments.
func (d *Dispatcher) callAction(ctx context.Context, request mcp.CallToolRequest, action string) (*mcp.CallToolResult, error) {
	req := requestFromArgs(action, request.GetArguments())
	resp := d.Handle(ctx, req, mcpNotifier(ctx, d))
	if resp.Failed() {
		if msg, ok := resp["error"].(string); ok {
			return mcp.NewToolResultError(msg), nil
		}
		return mcp.NewToolResultError("action failed"), nil
	}
	return jsonResult(resp)
}

// handleApplyLabelToEmail labels every thread in threadId. A single thread is
// answered with the relay response; several produce a batch report.
func (d *Dispatcher) handleApplyLabelToEmail(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	threadIDs, err := batch.ParseStringOrArray(args["threadId"], "threadId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(threadIDs) == 1 {
		return d.callAction(ctx, request, ActionApplyLabelToEmail)
	}
	if msgID, _ := args["messageId"].(string); msgID != "" {
		return mcp.NewToolResultError("messageId can only be used with a single threadId"), nil
	}

	base := requestFromArgs(ActionApplyLabelToEmail, args)
	report := &batch.Report{Total: len(threadIDs), Chunks: 1}
	for _, id := range threadIDs {
		req := base
		req.ThreadID = id
		resp := d.Handle(ctx, req, nil)
		if resp.Failed() {
			msg, _ := resp["error"].(string)
			report.Add(batch.Result{ID: id, Outcome: batch.OutcomeFailed, Label: req.Label, Error: msg})
			continue
		}
		report.Add(batch.Result{ID: id, Outcome: batch.OutcomeLabeled, Label: req.Label})
	}
	return mcp.NewToolResultText(batch.FormatResults(report)), nil
}

// instrumented wraps a tool that is not a relay action with tracing and audit
// logging.
func (d *Dispatcher) instrumented(name string, handler toolHandler) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if token, _ := args["token"].(string); token != "" {
			ctx = google.WithRequestToken(ctx, token)
		}
		ctx = labeler.WithSource(ctx, d.source)

		label, _ := args["label"].(string)
		ctx, span := instrumentation.StartSpan(ctx, "tool."+name,
			instrumentation.NewSpanAttributeBuilder().WithLabel(label).Build()...)
		invocation := instrumentation.NewActionInvocation(name, d.source).
			WithTarget("", label).
			WithSpanContext(ctx)
		start := time.Now()

		result, err := handler(ctx, request)

		var failure error
		if err != nil {
			failure = err
		} else if result != nil && result.IsError {
			failure = fmt.Errorf("%s", toolResultText(result))
		}
		instrumentation.EndSpan(span, failure)
		d.audit.LogAction(invocation.Complete(failure))
		d.logger.Debug("tool handled", logging.Action(name), "duration", time.Since(start), logging.Err(failure))
		return result, err
	}
}

// mcpNotifier forwards batch training events to the calling MCP client.
func mcpNotifier(ctx context.Context, d *Dispatcher) Notifier {
	srv := mcpserver.ServerFromContext(ctx)
	if srv == nil {
		return nil
	}
	// The session must outlive the tool call that started the job.
	sessionCtx := context.WithoutCancel(ctx)
	return func(_ context.Context, event Response) {
		err := srv.SendNotificationToClient(sessionCtx, NotificationMethod, map[string]any{
			"level":  "info",
			"logger": "inboxlabeler",
			"data":   event,
		})
		if err != nil {
			d.logger.Debug("failed to send notification", logging.Err(err))
		}
	}
}

func requestFromArgs(action string, args map[string]interface{}) Request {
	req := Request{Action: action}
	req.Label, _ = args["label"].(string)
	req.MessageID, _ = args["messageId"].(string)
	req.Token, _ = args["token"].(string)
	req.SelectedOnly, _ = args["selectedOnly"].(bool)
	if ids, err := batch.ParseStringOrArray(args["threadId"], "threadId"); err == nil && len(ids) > 0 {
		req.ThreadID = ids[0]
	}
	switch v := args["batchSize"].(type) {
	case float64:
		req.BatchSize = int(v)
	case int:
		req.BatchSize = v
	}
	return req
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func toolResultText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if t, ok := c.(mcp.TextContent); ok {
			return t.Text
		}
	}
	return "tool failed"
}
