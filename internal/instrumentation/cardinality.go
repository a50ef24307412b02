package instrumentation

// Cardinality management helpers for metrics.
//
// Relay actions arrive as free-form strings from MCP and HTTP callers. Recording
// them verbatim would let any client create unbounded metric series.

// knownActions mirrors the relay's fixed action set.
var knownActions = map[string]bool{
	"getEmailContent":     true,
	"applyLabel":          true,
	"getAllVisibleEmails": true,
	"applyLabelToEmail":   true,
	"batchTrain":          true,
	"ping":                true,
}

// NormalizeAction returns action if it is a known relay action, "unknown" otherwise.
//
// Example:
//
//	NormalizeAction("ping")        // "ping"
//	NormalizeAction("dropTables")  // "unknown"
func NormalizeAction(action string) string {
	if knownActions[action] {
		return action
	}
	return StatusUnknown
}

// Gmail API operation names.
const (
	OperationListLabels    = "list_labels"
	OperationCreateLabel   = "create_label"
	OperationModifyThread  = "modify_thread"
	OperationModifyMessage = "modify_message"
	OperationGetProfile    = "get_profile"
)

// Classification service endpoints.
const (
	EndpointPredict = "predict"
	EndpointTrain   = "train"
	EndpointReset   = "reset"
	EndpointStatus  = "status"
)
