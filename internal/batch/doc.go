// Package batch runs a per-item function over a list of emails in
// fixed-size chunks.
//
// Items within a chunk run concurrently. The coordinator waits for the whole
// chunk, pauses, then starts the next one, so at most Size items are in
// flight. Progress is reported after every item and a failing item never
// stops the run.
//
// The package also keeps the parameter helpers shared by the relay tools:
//   - ParseStringOrArray accepts a single id, an array, or a JSON-encoded array
//   - FormatResults renders a Report for tool output
package batch
