package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/Aman-CERP/splitdex/internal/async"
)

// StatusRenderer writes one progress line per snapshot while a run is live.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes a single status line for s.
func (r *StatusRenderer) Render(s async.RunProgressSnapshot) {
	line := fmt.Sprintf("%s %s scanned, %s written",
		r.renderState(s.State),
		FormatCount(s.Scanned),
		FormatCount(s.Written))
	if s.Failed > 0 {
		line += ", " + r.styles.Error.Render(FormatCount(s.Failed)+" failed")
	}
	if s.Invalid > 0 {
		line += ", " + r.styles.Warning.Render(FormatCount(s.Invalid)+" invalid")
	}
	line += r.styles.Dim.Render(fmt.Sprintf(" | %d indices | %.0f docs/s | %s",
		s.Buckets, s.DocsPerSecond, FormatElapsed(time.Duration(s.ElapsedSeconds)*time.Second)))
	_, _ = fmt.Fprintln(r.out, line)
}

func (r *StatusRenderer) renderState(state string) string {
	label := fmt.Sprintf("[%s]", state)
	switch async.State(state) {
	case async.StateDone:
		return r.styles.Success.Render(label)
	case async.StateAborted:
		return r.styles.Error.Render(label)
	default:
		return r.styles.Label.Render(label)
	}
}

// FormatElapsed renders a duration as 45s, 3m05s or 2h07m.
func FormatElapsed(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// FormatCount formats a document count with k/M suffixes.
func FormatCount(n int64) string {
	const (
		K = 1000
		M = 1000 * K
	)

	switch {
	case n >= M:
		return fmt.Sprintf("%.1fM", float64(n)/float64(M))
	case n >= 10*K:
		return fmt.Sprintf("%.1fk", float64(n)/float64(K))
	default:
		return fmt.Sprintf("%d", n)
	}
}
