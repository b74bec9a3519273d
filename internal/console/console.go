// File: internal/console/console.go
// Brief: In-place TTY rendering of deployment pipeline progress.

package console

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	runewidth "github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/example/gantry/internal/pipeline"
)

var phaseTitleCaser = cases.Title(language.Und, cases.NoLower)

// phaseOrder fixes the chip layout; phases render in pipeline order even
// when events for later phases never arrive.
var phaseOrder = []string{
	pipeline.PhaseDetect,
	pipeline.PhaseBuild,
	pipeline.PhaseProvision,
	pipeline.PhaseDeploy,
}

// Options controls the run console surface.
type Options struct {
	// Enabled gates all output; a disabled console ignores every event.
	Enabled bool
	// Width caps line length. Zero falls back to 120 columns.
	Width int
	// Color toggles ANSI styling.
	Color bool
}

type phaseBadge struct {
	Name    string
	State   string
	Elapsed float64
}

type section struct {
	name  string
	lines []string
}

// RunConsole renders pipeline events into a single in-place updating TTY
// view: one header line, one phase chip row, and a failure line when a phase
// fails. It implements pipeline.EventObserver.
type RunConsole struct {
	out  io.Writer
	opts Options

	mu         sync.Mutex
	repoPath   string
	sessionID  string
	finalState string
	failure    string
	startedAt  time.Time
	phases     map[string]phaseBadge
	sections   []section
	totalLines int
}

// NewRunConsole builds a console for one run against repoPath.
func NewRunConsole(out io.Writer, repoPath string, opts Options) *RunConsole {
	phases := make(map[string]phaseBadge, len(phaseOrder))
	for _, name := range phaseOrder {
		phases[name] = phaseBadge{Name: name, State: "pending"}
	}
	return &RunConsole{
		out:      out,
		opts:     opts,
		repoPath: repoPath,
		phases:   phases,
	}
}

// ObserveEvent folds one pipeline event into the surface and repaints.
func (c *RunConsole) ObserveEvent(ev pipeline.Event) {
	if c == nil || !c.opts.Enabled {
		return
	}
	c.mu.Lock()
	c.applyEventLocked(ev)
	c.renderLocked()
	c.mu.Unlock()
}

// Done finalizes the surface, leaving the last frame on screen followed by a
// blank line.
func (c *RunConsole) Done() {
	if c == nil || !c.opts.Enabled {
		return
	}
	c.mu.Lock()
	c.renderLocked()
	if c.totalLines > 0 {
		fmt.Fprint(c.out, "\x1b[K\n")
		c.totalLines++
	}
	c.mu.Unlock()
}

func (c *RunConsole) applyEventLocked(ev pipeline.Event) {
	if ev.SessionID != "" {
		c.sessionID = ev.SessionID
	}
	switch ev.Type {
	case pipeline.EventRunStarted:
		if c.startedAt.IsZero() {
			c.startedAt = time.Now()
		}
	case pipeline.EventPhaseStarted:
		c.setPhaseLocked(ev.Phase, "running", 0)
	case pipeline.EventPhaseCompleted:
		state := "succeeded"
		if ev.Status == "failed" {
			state = "failed"
		}
		c.setPhaseLocked(ev.Phase, state, ev.ElapsedSeconds)
	case pipeline.EventRunCompleted:
		c.finalState = ev.Status
		if ev.Message != "" {
			c.failure = ev.Message
		}
	}
}

func (c *RunConsole) setPhaseLocked(name, state string, elapsed float64) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	badge := c.phases[key]
	badge.Name = key
	badge.State = state
	if elapsed > 0 {
		badge.Elapsed = elapsed
	}
	c.phases[key] = badge
}

func (c *RunConsole) renderLocked() {
	if !c.opts.Enabled || c.out == nil {
		return
	}
	newSections := c.buildSectionsLocked()
	c.applyDiffLocked(newSections)
}

func (c *RunConsole) buildSectionsLocked() []section {
	sections := []section{
		{name: "header", lines: []string{c.renderHeaderLocked()}},
		{name: "phases", lines: []string{c.renderPhasesLocked()}},
	}
	if c.failure != "" {
		sections = append(sections, section{name: "failure", lines: []string{c.renderFailureLocked()}})
	}
	return sections
}

// applyDiffLocked repaints only from the first changed section down, so an
// unchanged header never flickers.
func (c *RunConsole) applyDiffLocked(newSections []section) {
	newTotal := countLines(newSections)
	if len(c.sections) == 0 {
		c.writeSections(newSections)
		c.sections = cloneSections(newSections)
		c.totalLines = newTotal
		return
	}
	idx := diffIndex(c.sections, newSections)
	if idx == -1 && newTotal == c.totalLines {
		return
	}
	if idx == -1 {
		idx = len(newSections)
	}
	startLine := countLines(c.sections[:idx])
	linesBelow := c.totalLines - startLine
	if linesBelow > 0 {
		fmt.Fprintf(c.out, "\x1b[%dF", linesBelow)
	}
	fmt.Fprint(c.out, "\x1b[J")
	c.writeSections(newSections[idx:])
	c.sections = cloneSections(newSections)
	c.totalLines = newTotal
}

func (c *RunConsole) writeSections(sections []section) {
	for _, s := range sections {
		for _, line := range s.lines {
			fmt.Fprintf(c.out, "%s\x1b[K\n", line)
		}
	}
	if len(sections) == 0 {
		fmt.Fprint(c.out, "\x1b[K\n")
	}
}

func (c *RunConsole) renderHeaderLocked() string {
	parts := []string{"Deploying " + c.repoPath}
	if c.sessionID != "" {
		parts = append(parts, "session "+c.sessionID)
	}
	if !c.startedAt.IsZero() {
		parts = append(parts, "elapsed "+time.Since(c.startedAt).Round(100*time.Millisecond).String())
	}
	if c.finalState != "" {
		parts = append(parts, strings.ToUpper(c.finalState))
	}
	title := trimToWidth(strings.Join(parts, " | "), c.width())
	if !c.opts.Color {
		return title
	}
	return color.New(color.Bold).Sprint(title)
}

func (c *RunConsole) renderPhasesLocked() string {
	chips := make([]string, 0, len(phaseOrder))
	for _, name := range phaseOrder {
		badge, ok := c.phases[name]
		if !ok {
			badge = phaseBadge{Name: name, State: "pending"}
		}
		chips = append(chips, c.renderPhaseChip(badge))
	}
	return "Phases: " + strings.Join(chips, "  ")
}

func (c *RunConsole) renderPhaseChip(badge phaseBadge) string {
	state := strings.ToLower(strings.TrimSpace(badge.State))
	label := phaseTitleCaser.String(strings.TrimSpace(badge.Name))
	if label == "" {
		label = "Phase"
	}
	var glyph string
	painter := color.New(color.FgHiBlack)
	switch state {
	case "succeeded":
		glyph = "●"
		painter = color.New(color.FgGreen)
	case "running":
		glyph = "⟳"
		painter = color.New(color.FgYellow)
	case "failed":
		glyph = "✖"
		painter = color.New(color.FgRed)
	default:
		glyph = "○"
	}
	text := fmt.Sprintf("%s %s", glyph, label)
	if c.opts.Color {
		text = painter.Sprint(text)
	}
	if badge.Elapsed > 0 && state != "pending" {
		text = fmt.Sprintf("%s (%.1fs)", text, badge.Elapsed)
	}
	return text
}

func (c *RunConsole) renderFailureLocked() string {
	line := trimToWidth("Failure: "+c.failure, c.width())
	if !c.opts.Color {
		return line
	}
	return color.New(color.FgRed, color.Bold).Sprint(line)
}

func (c *RunConsole) width() int {
	if c.opts.Width > 0 {
		return c.opts.Width
	}
	return 120
}

// trimToWidth cuts s to at most width display columns, ellipsizing when
// truncated. Widths are measured in terminal cells, not bytes.
func trimToWidth(s string, width int) string {
	s = strings.TrimSpace(s)
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 1 {
		out := []rune(s)
		if len(out) == 0 {
			return ""
		}
		return string(out[:1])
	}
	limit := width - 1
	var out []rune
	w := 0
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if rw == 0 {
			rw = 1
		}
		if w+rw > limit {
			break
		}
		out = append(out, r)
		w += rw
	}
	return string(out) + "…"
}

func countLines(sections []section) int {
	total := 0
	for _, s := range sections {
		total += len(s.lines)
	}
	return total
}

func diffIndex(oldSections, newSections []section) int {
	max := len(oldSections)
	if len(newSections) < max {
		max = len(newSections)
	}
	for i := 0; i < max; i++ {
		if oldSections[i].name != newSections[i].name {
			return i
		}
		if len(oldSections[i].lines) != len(newSections[i].lines) {
			return i
		}
		for j := range oldSections[i].lines {
			if oldSections[i].lines[j] != newSections[i].lines[j] {
				return i
			}
		}
	}
	if len(oldSections) != len(newSections) {
		return max
	}
	return -1
}

func cloneSections(sections []section) []section {
	out := make([]section, 0, len(sections))
	for _, s := range sections {
		out = append(out, section{name: s.name, lines: append([]string(nil), s.lines...)})
	}
	return out
}
