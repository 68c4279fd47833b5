// Package tui implements the interactive review screen shown by
// `applypatch apply --review`: one staged change at a time, committed only
// when the user accepts.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/asynkron/applypatch/internal/render"
	"github.com/asynkron/applypatch/pkg/patch"
)

// CommitFunc writes the reviewed changeset.
type CommitFunc func(ctx context.Context) ([]patch.Result, error)

// Outcome reports what happened in the review.
type Outcome struct {
	Applied bool
	Results []patch.Result
	Err     error
}

type commitDoneMsg struct {
	results []patch.Result
	err     error
}

type model struct {
	ctx     context.Context
	changes []patch.Change
	index   int
	commit  CommitFunc
	render  *render.Renderer

	vp     viewport.Model
	spin   spinner.Model
	width  int
	height int
	ready  bool

	committing bool
	outcome    Outcome
	done       bool

	header lipgloss.Style
	footer lipgloss.Style
	border lipgloss.Style
}

func newModel(ctx context.Context, changes []patch.Change, r *render.Renderer, commit CommitFunc) *model {
	visible := make([]patch.Change, 0, len(changes))
	for _, change := range changes {
		if change.Status != patch.StatusUnchanged {
			visible = append(visible, change)
		}
	}

	sp := spinner.New()
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))

	m := &model{
		ctx:     ctx,
		changes: visible,
		commit:  commit,
		render:  r,
		vp:      viewport.New(80, 20),
		spin:    sp,
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")),
		footer:  lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		border:  lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240")),
	}
	m.refresh()
	return m
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) current() (patch.Change, bool) {
	if m.index < 0 || m.index >= len(m.changes) {
		return patch.Change{}, false
	}
	return m.changes[m.index], true
}

// refresh loads the current change into the viewport.
func (m *model) refresh() {
	change, ok := m.current()
	if !ok {
		m.vp.SetContent("No changes to apply.")
		return
	}
	m.vp.SetContent(m.render.Diff(change.Diff()))
	m.vp.GotoTop()
}

func (m *model) recalcLayout() {
	// header line, footer line and the two border rows
	height := m.height - 4
	if height < 1 {
		height = 1
	}
	width := m.width - 2
	if width < 1 {
		width = 1
	}
	m.vp.Width = width
	m.vp.Height = height
}

func (m *model) commitCmd() tea.Cmd {
	ctx, commit := m.ctx, m.commit
	return func() tea.Msg {
		results, err := commit(ctx)
		return commitDoneMsg{results: results, err: err}
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		m.ready = true
		return m, nil

	case spinner.TickMsg:
		if !m.committing {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case commitDoneMsg:
		m.committing = false
		m.done = true
		m.outcome = Outcome{Applied: msg.err == nil, Results: msg.results, Err: msg.err}
		return m, tea.Quit

	case tea.KeyMsg:
		if m.committing {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.done = true
			return m, tea.Quit
		case "n", "right", "tab":
			if m.index < len(m.changes)-1 {
				m.index++
				m.refresh()
			}
			return m, nil
		case "p", "left", "shift+tab":
			if m.index > 0 {
				m.index--
				m.refresh()
			}
			return m, nil
		case "a", "enter":
			if len(m.changes) == 0 {
				m.done = true
				return m, tea.Quit
			}
			m.committing = true
			return m, tea.Batch(m.spin.Tick, m.commitCmd())
		}
	}

	var cmd tea.Cmd
	m.vp, cmd = m.vp.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	if change, ok := m.current(); ok {
		title := fmt.Sprintf("[%d/%d] %s", m.index+1, len(m.changes),
			m.render.Status(string(change.Status), change.Path, change.MoveFrom))
		b.WriteString(m.header.Render(title))
	} else {
		b.WriteString(m.header.Render("Nothing to review"))
	}
	b.WriteString("\n")
	b.WriteString(m.border.Render(m.vp.View()))
	b.WriteString("\n")
	if m.committing {
		b.WriteString(m.spin.View() + " Applying patch…")
	} else {
		b.WriteString(m.footer.Render("n/p: next/previous  ↑/↓: scroll  a/enter: apply  q/esc: cancel"))
	}
	return b.String()
}

// Options configures Review.
type Options struct {
	Input  io.Reader
	Output io.Writer
	// AltScreen runs the review in the terminal's alternate screen.
	AltScreen bool
}

// Review shows the changes and calls commit if the user accepts them.
func Review(ctx context.Context, changes []patch.Change, r *render.Renderer, commit CommitFunc, opts Options) (Outcome, error) {
	programOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if opts.AltScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}
	if opts.Input != nil {
		programOpts = append(programOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		programOpts = append(programOpts, tea.WithOutput(opts.Output))
	}

	p := tea.NewProgram(newModel(ctx, changes, r, commit), programOpts...)
	final, err := p.Run()
	if err != nil {
		return Outcome{}, fmt.Errorf("tui error: %w", err)
	}
	m, ok := final.(*model)
	if !ok {
		return Outcome{}, fmt.Errorf("tui error: unexpected model %T", final)
	}
	return m.outcome, nil
}
