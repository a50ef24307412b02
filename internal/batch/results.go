package batch

import (
	"encoding/json"
)

// Outcome is what happened to one item.
type Outcome string

const (
	OutcomeLabeled Outcome = "labeled"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Result represents the result of a single item in a batch
type Result struct {
	ID         string  `json:"id"`
	Outcome    Outcome `json:"outcome"`
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Totals counts results per outcome.
type Totals struct {
	Labeled int `json:"labeled"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (t *Totals) add(o Outcome) {
	switch o {
	case OutcomeLabeled:
		t.Labeled++
	case OutcomeSkipped:
		t.Skipped++
	default:
		t.Failed++
	}
}

// Sum returns the number of counted items.
func (t Totals) Sum() int {
	return t.Labeled + t.Skipped + t.Failed
}

// Report represents the aggregated results of a batch run
type Report struct {
	Total     int      `json:"total"`
	Processed int      `json:"processedCount"`
	Chunks    int      `json:"chunks"`
	Results   Totals   `json:"results"`
	Items     []Result `json:"items"`
}

// NewLabeledResult creates a labeled result
func NewLabeledResult(id, label string, confidence float64) Result {
	return Result{ID: id, Outcome: OutcomeLabeled, Label: label, Confidence: confidence}
}

// NewSkippedResult creates a skipped result
func NewSkippedResult(id, reason string, confidence float64) Result {
	return Result{ID: id, Outcome: OutcomeSkipped, Reason: reason, Confidence: confidence}
}

// NewErrorResult creates a failed result
func NewErrorResult(id string, err error) Result {
	return Result{ID: id, Outcome: OutcomeFailed, Error: err.Error()}
}

// FormatResults creates a formatted JSON string from a report
func FormatResults(r *Report) string {
	jsonBytes, _ := json.MarshalIndent(r, "", "  ")
	return string(jsonBytes)
}

// Add appends res to the report and counts it as processed.
func (r *Report) Add(res Result) {
	r.Items = append(r.Items, res)
	r.Results.add(res.Outcome)
	r.Processed++
}
