// Package cmd implements the command-line interface for inboxlabeler.
//
// This package provides the following commands:
//   - serve: Start the MCP relay (stdio or streamable-http) with health and metrics endpoints
//   - label: Apply a label to the open email or a given thread
//   - classify: Predict and apply labels for the open email or all visible emails
//   - train: Train the classifier on the selected emails (or the open one) and apply the label
//   - test, status, reset: Classification service utilities
//   - watch: Run the page observer in the foreground
//   - history: Show recorded label applications
//   - auth: Run the Google OAuth code flow
//   - version: Display version information
package cmd
