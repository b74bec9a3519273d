// File: internal/console/lines.go
// Brief: Plain scrolling event output for non-TTY runs.

package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/example/gantry/internal/pipeline"
)

// LinePrinter writes one line per pipeline event, suitable for logs and CI
// output where in-place repainting would garble the stream.
type LinePrinter struct {
	mu       sync.Mutex
	w        io.Writer
	colorize bool
}

// NewLinePrinter wraps a writer. The caller keeps ownership of the writer.
func NewLinePrinter(w io.Writer, colorize bool) *LinePrinter {
	return &LinePrinter{w: w, colorize: colorize}
}

// ObserveEvent implements pipeline.EventObserver.
func (p *LinePrinter) ObserveEvent(ev pipeline.Event) {
	if p == nil || p.w == nil {
		return
	}
	line := p.formatEvent(ev)
	if line == "" {
		return
	}
	p.mu.Lock()
	fmt.Fprintln(p.w, line)
	p.mu.Unlock()
}

func (p *LinePrinter) formatEvent(ev pipeline.Event) string {
	switch ev.Type {
	case pipeline.EventRunStarted:
		return p.paint(color.FgCyan, "▸ run started") + " session=" + ev.SessionID
	case pipeline.EventPhaseStarted:
		return p.paint(color.FgHiBlack, "  "+phaseTitleCaser.String(ev.Phase)+"...")
	case pipeline.EventPhaseCompleted:
		label := phaseTitleCaser.String(ev.Phase)
		if ev.Status == "failed" {
			return p.paint(color.FgRed, fmt.Sprintf("  ✖ %s failed (%.1fs)", label, ev.ElapsedSeconds))
		}
		return p.paint(color.FgGreen, fmt.Sprintf("  ● %s ok (%.1fs)", label, ev.ElapsedSeconds))
	case pipeline.EventRunCompleted:
		status := strings.ToLower(ev.Status)
		if status == string(pipeline.StatusCompleted) {
			return p.paint(color.FgGreen, fmt.Sprintf("▸ run completed (%.1fs)", ev.ElapsedSeconds))
		}
		line := fmt.Sprintf("▸ run %s (%.1fs)", status, ev.ElapsedSeconds)
		if ev.Message != "" {
			line += ": " + ev.Message
		}
		return p.paint(color.FgRed, line)
	}
	return ""
}

func (p *LinePrinter) paint(attr color.Attribute, s string) string {
	if !p.colorize {
		return s
	}
	return color.New(attr).Sprint(s)
}
