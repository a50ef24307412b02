// Package relay is the request/response bridge between a UI surface and the
// labeling logic.
//
// A request is an action-tagged JSON object; the reply is a JSON object, or
// {"success": false, "error": "..."} on failure. The action set is fixed:
//
//   - getEmailContent: the open email, or null
//   - applyLabel: label the open email
//   - getAllVisibleEmails: list rows, optionally only the selected ones
//   - applyLabelToEmail: label a thread (or a single message)
//   - batchTrain: train on the selected rows; replies "started" immediately
//     and reports progress and completion through a Notifier
//   - ping: liveness
//
// The Dispatcher is exposed over HTTP (Handler) and as MCP tools
// (RegisterTools). The MCP surface also carries the classifier utilities.
// Guard keeps both HTTP surfaces to the local host unless a caller brings a
// token for the relay's own Gmail account.
package relay
