// Package display provides terminal formatting for inboxlabeler output.
package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/teemow/inboxlabeler/internal/batch"
	"github.com/teemow/inboxlabeler/internal/classifier"
	"github.com/teemow/inboxlabeler/internal/history"
	"github.com/teemow/inboxlabeler/internal/labeler"
	"github.com/teemow/inboxlabeler/internal/locator"
)

var (
	// Styles
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	Warning  = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
	LabelTag = lipgloss.NewStyle().Foreground(lipgloss.Color("#2563eb")).Bold(true)
)

// OutcomeDot returns a colored marker for a batch outcome.
func OutcomeDot(outcome batch.Outcome) string {
	switch outcome {
	case batch.OutcomeLabeled:
		return Success.Render("●")
	case batch.OutcomeSkipped:
		return Warning.Render("○")
	case batch.OutcomeFailed:
		return ErrStyle.Render("✗")
	default:
		return Dim.Render("·")
	}
}

// Confidence formats a confidence as a percentage, green when it reaches
// threshold.
func Confidence(c, threshold float64) string {
	s := fmt.Sprintf("%5.1f%%", c*100)
	if c >= threshold {
		return Success.Render(s)
	}
	return Dim.Render(s)
}

// Truncate shortens a string to maxLen runes, adding ellipsis if needed.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// SuccessMsg prints a green checkmark + message.
func SuccessMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, Success.Render("✓")+" "+fmt.Sprintf(format, args...))
}

// ErrorMsg prints a red X + message.
func ErrorMsg(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, ErrStyle.Render("✗")+" "+fmt.Sprintf(format, args...))
}

// Header prints a section header.
func Header(w io.Writer, title string) {
	fmt.Fprintln(w, Bold.Render(title))
}

// Applied prints the result of a single label application.
func Applied(w io.Writer, res *labeler.ApplyResult) {
	target := res.ThreadID
	if res.MessageID != "" {
		target = "message " + res.MessageID
	}
	SuccessMsg(w, "Labeled %s as %s", target, LabelTag.Render(res.Label))
}

// PredictionOutcome prints the result of predict-and-apply.
func PredictionOutcome(w io.Writer, out *labeler.PredictionOutcome, threshold float64) {
	switch out.Status {
	case labeler.StatusLabeled:
		SuccessMsg(w, "Labeled %s as %s (%s)", out.ThreadID, LabelTag.Render(out.Label), Confidence(out.Confidence, threshold))
	default:
		fmt.Fprintf(w, "%s Skipped %s: %s", Warning.Render("○"), out.ThreadID, out.Reason)
		if out.Label != "" {
			fmt.Fprintf(w, " (%s %s)", out.Label, Confidence(out.Confidence, threshold))
		}
		fmt.Fprintln(w)
	}
}

// Prediction prints a test prediction.
func Prediction(w io.Writer, p classifier.Prediction, threshold float64) {
	verdict := Dim.Render("below threshold")
	if p.Meets(threshold) {
		verdict = Success.Render("would apply")
	}
	fmt.Fprintf(w, "%s  %s  %s\n", LabelTag.Render(p.Label), Confidence(p.Confidence, threshold), verdict)
}

// Report prints a batch report: one line per item and a totals footer.
func Report(w io.Writer, title string, r *batch.Report, threshold float64) {
	Header(w, title)
	for _, it := range r.Items {
		line := fmt.Sprintf("  %s %s", OutcomeDot(it.Outcome), Muted.Render(Truncate(it.ID, 20)))
		if it.Label != "" {
			line += "  " + LabelTag.Render(it.Label)
		}
		if it.Confidence > 0 {
			line += "  " + Confidence(it.Confidence, threshold)
		}
		switch {
		case it.Error != "":
			line += "  " + ErrStyle.Render(Truncate(it.Error, 60))
		case it.Reason != "":
			line += "  " + Dim.Render(it.Reason)
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "%s labeled · %s skipped · %s failed  %s\n",
		Success.Render(fmt.Sprint(r.Results.Labeled)),
		Warning.Render(fmt.Sprint(r.Results.Skipped)),
		ErrStyle.Render(fmt.Sprint(r.Results.Failed)),
		Dim.Render(fmt.Sprintf("(%d/%d in %d chunks)", r.Processed, r.Total, r.Chunks)))
}

// TrainReport prints a batch training summary.
func TrainReport(w io.Writer, r *labeler.TrainReport) {
	Header(w, "Batch training "+LabelTag.Render(r.Label))
	fmt.Fprintf(w, "  processed %d · trained %d · labeled %d\n", r.Processed, r.SuccessCount, r.LabelAppliedCount)
	if r.Batch == nil {
		return
	}
	for _, it := range r.Batch.Items {
		if it.Outcome == batch.OutcomeFailed {
			fmt.Fprintf(w, "  %s %s  %s\n", OutcomeDot(it.Outcome), Muted.Render(it.ID), ErrStyle.Render(Truncate(it.Error, 60)))
		}
	}
}

// Emails prints visible rows as subject lines.
func Emails(w io.Writer, emails []locator.VisibleEmail) {
	for _, e := range emails {
		subject, body := e.Split()
		id := Muted.Render(fmt.Sprintf("%-18s", Truncate(e.ThreadID, 18)))
		fmt.Fprintf(w, "%s %s %s\n", id, Bold.Render(Truncate(subject, 60)), Dim.Render(Truncate(strings.TrimSpace(body), 40)))
	}
}

// History prints recorded label applications, newest first.
func History(w io.Writer, entries []history.Entry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, Dim.Render("No label applications recorded."))
		return
	}
	for _, e := range entries {
		dot := OutcomeDot(batch.Outcome(e.Outcome))
		when := Dim.Render(fmt.Sprintf("%-9s", TimeAgo(e.AppliedAt, now)))
		line := fmt.Sprintf("%s %s %-18s %s  %s", dot, when, Truncate(e.ThreadID, 18), LabelTag.Render(e.Label), Muted.Render(e.Source))
		if e.Confidence != nil {
			line += fmt.Sprintf("  %.0f%%", *e.Confidence*100)
		}
		if e.Error != "" {
			line += "  " + ErrStyle.Render(Truncate(e.Error, 50))
		}
		fmt.Fprintln(w, line)
	}
}

// TimeAgo formats t relative to now.
func TimeAgo(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}
