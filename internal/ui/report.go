package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/splitdex/internal/async"
	"github.com/Aman-CERP/splitdex/internal/engine"
)

// ReportRenderer writes run reports.
type ReportRenderer struct {
	out    io.Writer
	styles Styles
}

// NewReportRenderer creates a renderer. Color is used only when noColor is false.
func NewReportRenderer(out io.Writer, noColor bool) *ReportRenderer {
	return &ReportRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes the report in the given format.
func (r *ReportRenderer) Render(report *engine.Report, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(r.out, report)
	case FormatYAML:
		return writeYAML(r.out, report)
	default:
		return r.renderText(report)
	}
}

func (r *ReportRenderer) renderText(rep *engine.Report) error {
	_, _ = fmt.Fprintf(r.out, "%s %s\n\n",
		r.styles.Header.Render("Split report: "+rep.SourceIndex),
		r.styles.Dim.Render("(run "+rep.RunID+")"))

	r.field("State", r.renderState(rep.State))
	r.field("Duration", rep.Duration().Round(time.Millisecond).String())
	r.field("Scanned", fmt.Sprint(rep.Scanned))
	r.field("Written", fmt.Sprint(rep.Written))
	r.field("Failed", r.count(rep.Failed, r.styles.Error))
	r.field("Invalid", fmt.Sprintf("%s (written %d, failed %d)",
		r.count(rep.Invalid, r.styles.Warning), rep.InvalidWritten, rep.InvalidFailed))
	r.field("Batches", fmt.Sprintf("%d flushed, %s failed",
		rep.BatchesFlushed, r.count(int64(rep.BatchesFailed), r.styles.Error)))
	if rep.Unflushed > 0 {
		r.field("Unflushed", r.styles.Warning.Render(fmt.Sprint(rep.Unflushed)))
	}

	if len(rep.Indices) > 0 {
		width := 0
		for _, s := range rep.Indices {
			width = max(width, len(s.Index))
		}
		_, _ = fmt.Fprintf(r.out, "\n  %s\n", r.styles.Section.Render("Destinations:"))
		for _, s := range rep.Indices {
			line := fmt.Sprintf("    %-*s  written %-8d failed %-8d batches %d", width, s.Index, s.Written, s.Failed, s.Batches)
			if s.FailedBatches > 0 {
				line += r.styles.Error.Render(fmt.Sprintf(" (%d failed)", s.FailedBatches))
			}
			_, _ = fmt.Fprintln(r.out, line)
		}
	}

	if rep.AbortCause != "" {
		_, _ = fmt.Fprintf(r.out, "\n  %s %s\n", r.styles.Error.Render("Aborted:"), rep.AbortCause)
	}
	return nil
}

func (r *ReportRenderer) field(label, value string) {
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.styles.Label.Render(fmt.Sprintf("%-10s", label+":")), value)
}

func (r *ReportRenderer) count(n int64, style lipgloss.Style) string {
	if n == 0 {
		return "0"
	}
	return style.Render(fmt.Sprint(n))
}

func (r *ReportRenderer) renderState(s async.State) string {
	switch s {
	case async.StateDone:
		return r.styles.Success.Render(string(s))
	case async.StateAborted:
		return r.styles.Error.Render(string(s))
	default:
		return string(s)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(out io.Writer, v any) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
