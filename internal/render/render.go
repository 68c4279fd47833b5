// Package render formats patch results, diff previews and failure reports for
// the terminal.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/asynkron/applypatch/pkg/patch"
)

const (
	diffStyle = "monokai"
	wrapWidth = 100
)

// Renderer writes styled output when the destination supports color and
// plain text otherwise.
type Renderer struct {
	color  bool
	lip    *lipgloss.Renderer
	status map[string]lipgloss.Style
	muted  lipgloss.Style
	bold   lipgloss.Style
}

// New builds a renderer for w. mode is auto, always or never; auto asks
// termenv what the writer and environment support.
func New(w io.Writer, mode string) *Renderer {
	profile := termenv.Ascii
	switch mode {
	case "always":
		profile = termenv.ANSI256
	case "never":
	default:
		profile = termenv.NewOutput(w).EnvColorProfile()
	}

	lip := lipgloss.NewRenderer(w)
	lip.SetColorProfile(profile)
	lip.SetHasDarkBackground(true)

	r := &Renderer{
		color: profile != termenv.Ascii,
		lip:   lip,
		muted: lip.NewStyle().Foreground(lipgloss.Color("244")),
		bold:  lip.NewStyle().Bold(true),
	}
	r.status = map[string]lipgloss.Style{
		string(patch.StatusAdded):     lip.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		string(patch.StatusModified):  lip.NewStyle().Foreground(lipgloss.Color("33")).Bold(true),
		string(patch.StatusDeleted):   lip.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		string(patch.StatusMoved):     lip.NewStyle().Foreground(lipgloss.Color("129")).Bold(true),
		string(patch.StatusUnchanged): lip.NewStyle().Foreground(lipgloss.Color("240")),
	}
	return r
}

// Color reports whether output is styled.
func (r *Renderer) Color() bool {
	return r.color
}

// Status renders one line per changed file, for example "M src/app.go" or
// "R old.go -> new.go".
func (r *Renderer) Status(status, path, from string) string {
	label := status
	if style, ok := r.status[status]; ok && r.color {
		label = style.Render(status)
	}
	if from != "" {
		arrow := " -> "
		if r.color {
			arrow = r.muted.Render(arrow)
		}
		return fmt.Sprintf("%s %s%s%s", label, from, arrow, path)
	}
	return fmt.Sprintf("%s %s", label, path)
}

// Results renders committed results followed by the summary line.
func (r *Renderer) Results(results []patch.Result, operations int) string {
	var b strings.Builder
	for _, res := range results {
		b.WriteString(r.Status(res.Status, res.Path, res.From))
		b.WriteString("\n")
	}
	summary := patch.Summary(operations)
	if r.color {
		summary = r.bold.Render(summary)
	}
	b.WriteString(summary)
	b.WriteString("\n")
	return b.String()
}

// Diff highlights a unified diff with chroma. Without color the text is
// returned untouched.
func (r *Renderer) Diff(text string) string {
	if !r.color || text == "" {
		return text
	}
	var buf bytes.Buffer
	if err := quick.Highlight(&buf, text, "diff", "terminal256", diffStyle); err != nil {
		return text
	}
	return buf.String()
}

// Changes renders the preview of a staged changeset.
func (r *Renderer) Changes(changes []patch.Change) string {
	var b strings.Builder
	for _, change := range changes {
		if change.Status == patch.StatusUnchanged {
			continue
		}
		b.WriteString(r.Status(string(change.Status), change.Path, change.MoveFrom))
		b.WriteString("\n")
		b.WriteString(r.Diff(change.Diff()))
		b.WriteString("\n")
	}
	return b.String()
}

// Error renders a failure. Patch failures carry the full FormatError report;
// with color the report is rendered through glamour.
func (r *Renderer) Error(err error) string {
	if err == nil {
		return ""
	}
	var pe *patch.Error
	if !errors.As(err, &pe) {
		return "error: " + err.Error() + "\n"
	}
	report := patch.FormatError(pe)
	if !r.color {
		return "error: " + report + "\n"
	}

	md := fmt.Sprintf("**Patch failed** `%s`\n\n```\n%s\n```\n", pe.Code, report)
	term, termErr := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(wrapWidth),
	)
	if termErr != nil {
		return "error: " + report + "\n"
	}
	out, renderErr := term.Render(md)
	if renderErr != nil {
		return "error: " + report + "\n"
	}
	return out
}
