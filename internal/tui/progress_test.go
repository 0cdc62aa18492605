package tui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/nikbrunner/bmsort/internal/ai"
	"github.com/nikbrunner/bmsort/internal/engine"
	"github.com/nikbrunner/bmsort/internal/model"
	"github.com/nikbrunner/bmsort/internal/storage"
)

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestModel_FollowsProgress(t *testing.T) {
	events := make(chan engine.Progress, 1)
	m := NewModel(ModelParams{Title: "Analyzing", Events: events})

	assert.Check(t, is.Contains(m.View(), "starting..."))
	assert.Check(t, is.Contains(m.View(), "  0%"))

	m, cmd := update(t, m, progressMsg{Status: engine.StatusRunning, Phase: engine.PhaseClassifying, Percent: 45})
	assert.Check(t, cmd != nil, "expected to keep listening")
	assert.Check(t, is.Contains(m.View(), "classifying..."))
	assert.Check(t, is.Contains(m.View(), " 45%"))

	events <- engine.Progress{Status: engine.StatusRunning, Phase: engine.PhaseClassifying, Percent: 60}
	msg := cmd()
	assert.Equal(t, msg, tea.Msg(progressMsg{Status: engine.StatusRunning, Phase: engine.PhaseClassifying, Percent: 60}))

	close(events)
	assert.Equal(t, cmd(), tea.Msg(closedMsg{}))
}

func TestModel_Finished(t *testing.T) {
	m := NewModel(ModelParams{Title: "Organizing", Events: make(chan engine.Progress)})

	m, cmd := update(t, m, resultMsg{})
	assert.Check(t, cmd != nil, "expected quit command")
	assert.Check(t, m.Finished())
	assert.NilError(t, m.Err())

	view := m.View()
	assert.Check(t, is.Contains(view, "100%"))
	assert.Check(t, is.Contains(view, "done"))
	assert.Check(t, !strings.Contains(view, "esc to hide progress"))
}

func TestModel_Failed(t *testing.T) {
	m := NewModel(ModelParams{Title: "Analyzing", Events: make(chan engine.Progress)})
	m, _ = update(t, m, progressMsg{Status: engine.StatusRunning, Phase: engine.PhaseClassifying, Percent: 30})
	m, _ = update(t, m, resultMsg{err: errors.New("boom")})

	view := m.View()
	assert.Check(t, is.Contains(view, "failed: boom"))
	assert.Check(t, is.Contains(view, " 30%"))
	assert.Check(t, is.ErrorContains(m.Err(), "boom"))
}

func TestModel_Detach(t *testing.T) {
	m := NewModel(ModelParams{Title: "Analyzing", Events: make(chan engine.Progress)})
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	assert.Check(t, m.quitting)
	assert.Check(t, cmd != nil, "expected quit command")
	assert.Check(t, !m.Finished())
}

func TestRun_HiddenViewLetsRunFinish(t *testing.T) {
	ctx := context.Background()
	live := storage.NewLive(nil, nil)
	b, err := live.Create(ctx, model.BarID, "Go", "https://go.dev")
	assert.NilError(t, err)
	e := engine.New(engine.Params{Store: live, Logger: zerolog.Nop()})

	cm := model.NewCategoryMap()
	cm.Append("Dev", model.Bookmark{ID: b.ID})

	viewCtx, hide := context.WithCancel(ctx)
	var runCancelled bool
	var out bytes.Buffer
	err = Run(viewCtx, e, "Organizing", &out, func(runCtx context.Context) error {
		hide()
		time.Sleep(100 * time.Millisecond)
		runCancelled = runCtx.Err() != nil
		_, err := e.Organize(runCtx, cm)
		return err
	})
	assert.NilError(t, err)
	assert.Check(t, !runCancelled)
	assert.Check(t, is.Contains(out.String(), "Organizing continues without progress"))

	state := e.State()
	assert.Equal(t, state.Status, engine.StatusIdle)
	assert.Assert(t, state.Report != nil)
	assert.Equal(t, state.Report.Filed, 1)
}

func TestModel_WindowResize(t *testing.T) {
	m := NewModel(ModelParams{Events: make(chan engine.Progress)})

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 200, Height: 40})
	assert.Equal(t, m.bar.Width, 60)

	m, _ = update(t, m, tea.WindowSizeMsg{Width: 15, Height: 40})
	assert.Equal(t, m.bar.Width, 10)
}

func TestRun_ReturnsRunError(t *testing.T) {
	e := engine.New(engine.Params{
		Store: storage.NewLive(nil, nil),
		Gateway: ai.GatewayFunc(func(context.Context, ai.Prompt, ai.Config) (string, error) {
			return "{}", nil
		}),
		Settings: storage.DefaultSettings(),
		Logger:   zerolog.Nop(),
	})

	var out bytes.Buffer
	err := Run(context.Background(), e, "Analyzing", &out, func(ctx context.Context) error {
		_, err := e.Analyze(ctx)
		return err
	})
	assert.Check(t, is.ErrorIs(err, engine.ErrNoBookmarks))
	assert.Check(t, is.Contains(out.String(), "Analyzing"))
	assert.Equal(t, e.State().Status, engine.StatusError)
}
