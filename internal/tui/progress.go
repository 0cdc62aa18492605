// Package tui renders engine runs in the terminal.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nikbrunner/bmsort/internal/engine"
)

type progressMsg engine.Progress

// resultMsg carries the outcome of the run function.
type resultMsg struct{ err error }

// closedMsg signals that the subscription ended.
type closedMsg struct{}

// Model follows one engine run on a progress bar.
type Model struct {
	title    string
	styles   Styles
	bar      progress.Model
	events   <-chan engine.Progress
	last     engine.Progress
	finished bool
	err      error
	quitting bool
	width    int
}

// ModelParams holds parameters for creating a new Model.
type ModelParams struct {
	Title  string
	Events <-chan engine.Progress
	Styles *Styles // optional, uses default if nil
}

// NewModel creates a progress view reading from params.Events.
func NewModel(params ModelParams) Model {
	styles := DefaultStyles()
	if params.Styles != nil {
		styles = *params.Styles
	}
	bar := progress.New(progress.WithSolidFill(styles.BarColor), progress.WithoutPercentage())
	bar.Width = 40
	return Model{
		title:  params.Title,
		styles: styles,
		bar:    bar,
		events: params.Events,
		last:   engine.Progress{Status: engine.StatusRunning},
		width:  80,
	}
}

func waitFor(events <-chan engine.Progress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return progressMsg(p)
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return waitFor(m.events)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(10, min(60, msg.Width-12))
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case progressMsg:
		m.last = engine.Progress(msg)
		return m, waitFor(m.events)

	case resultMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit

	case closedMsg:
		return m, nil
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render(m.title))
	b.WriteString("\n\n")

	percent := m.last.Percent
	if m.finished && m.err == nil {
		percent = 100
	}
	b.WriteString(m.bar.ViewAs(float64(percent) / 100))
	fmt.Fprintf(&b, " %3d%%\n", percent)

	switch {
	case m.err != nil:
		b.WriteString(m.styles.Error.Render("failed: " + m.err.Error()))
	case m.finished:
		b.WriteString(m.styles.Done.Render("done"))
	case m.last.Phase != "":
		b.WriteString(m.styles.Phase.Render(m.last.Phase + "..."))
	default:
		b.WriteString(m.styles.Phase.Render("starting..."))
	}

	if !m.finished {
		b.WriteString(m.styles.Help.Render("esc to hide progress"))
	}
	b.WriteString("\n")
	return m.styles.App.Render(b.String())
}

// Err returns the run error once the run has finished.
func (m Model) Err() error { return m.err }

// Finished reports whether the run function returned.
func (m Model) Finished() bool { return m.finished }

// Run executes fn while showing its progress from e. fn never sees ctx
// cancelled: esc or the end of ctx only hides the progress view, and Run
// still waits for fn and returns its error.
func Run(ctx context.Context, e *engine.Engine, title string, out io.Writer, fn func(context.Context) error) error {
	events, unsubscribe := e.Subscribe()
	defer unsubscribe()

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if out != nil {
		opts = append(opts, tea.WithOutput(out), tea.WithInput(nil))
	} else {
		out = os.Stderr
	}
	p := tea.NewProgram(NewModel(ModelParams{Title: title, Events: events}), opts...)

	done := make(chan error, 1)
	go func() {
		err := fn(context.WithoutCancel(ctx))
		done <- err
		p.Send(resultMsg{err: err})
	}()

	final, viewErr := p.Run()
	if m, ok := final.(Model); viewErr != nil || (ok && !m.Finished()) {
		unsubscribe()
		fmt.Fprintf(out, "%s continues without progress, waiting for it to finish...\n", title)
	}
	return <-done
}
