package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"gotest.tools/v3/assert"

	"github.com/nikbrunner/bmsort/internal/ai"
	"github.com/nikbrunner/bmsort/internal/backup"
	"github.com/nikbrunner/bmsort/internal/engine"
	"github.com/nikbrunner/bmsort/internal/metrics"
	"github.com/nikbrunner/bmsort/internal/model"
	"github.com/nikbrunner/bmsort/internal/storage"
)

type fixture struct {
	store   *storage.Live
	engine  *engine.Engine
	metrics *metrics.Metrics
	ids     map[string]string
}

// replyByTitle classifies every bookmark in the prompt by the first word of
// its title.
func replyByTitle(_ context.Context, p ai.Prompt, _ ai.Config) (string, error) {
	_, list, _ := strings.Cut(p.User, "Bookmarks:\n")
	var items []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(list), &items); err != nil {
		return "", err
	}
	out := map[string][]string{}
	for _, it := range items {
		word, _, _ := strings.Cut(it.Title, " ")
		out[word+"/Links"] = append(out[word+"/Links"], it.ID)
	}
	b, err := json.Marshal(out)
	return string(b), err
}

func newFixture(t *testing.T, g ai.GatewayFunc) *fixture {
	t.Helper()
	ctx := context.Background()
	live := storage.NewLive(nil, nil)
	ids := map[string]string{}

	mk := func(name, parent, url string) {
		n, err := live.Create(ctx, parent, name, url)
		assert.NilError(t, err)
		ids[name] = n.ID
	}
	mk("Old", model.BarID, "")
	mk("Dev go", ids["Old"], "https://go.dev")
	mk("Dev rust", model.BarID, "https://rust-lang.org")
	mk("News hn", model.OtherID, "https://news.ycombinator.com")
	mk("Private", model.BarID, "")
	mk("Bank login", ids["Private"], "https://bank.test")

	settings := storage.DefaultSettings()
	settings.APIKey = "sk-test"
	settings.IgnoreFolders = []string{ids["Private"]}

	m := metrics.New(nil)
	e := engine.New(engine.Params{
		Store:    live,
		Gateway:  g,
		Settings: settings,
		Logger:   zerolog.Nop(),
		Metrics:  m,
		Now:      func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	return &fixture{store: live, engine: e, metrics: m, ids: ids}
}

func collect(ch <-chan engine.Progress) func() []engine.Progress {
	var mu sync.Mutex
	var got []engine.Progress
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range ch {
			mu.Lock()
			got = append(got, p)
			mu.Unlock()
		}
	}()
	return func() []engine.Progress {
		<-done
		mu.Lock()
		defer mu.Unlock()
		return got
	}
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t, replyByTitle)
	ch, unsubscribe := f.engine.Subscribe()
	wait := collect(ch)

	cm, err := f.engine.Analyze(context.Background())
	assert.NilError(t, err)
	unsubscribe()

	assert.DeepEqual(t, cm.Paths(), []string{"Dev/Links", "News/Links"})
	assert.Equal(t, cm.Total(), 3, "ignored folder contents are not classified")

	state := f.engine.State()
	assert.Equal(t, state.Status, engine.StatusCompleted)
	assert.Equal(t, state.Progress, 100)
	assert.Equal(t, state.Result, cm)

	events := wait()
	assert.Assert(t, len(events) >= 4)
	assert.Equal(t, events[0].Status, engine.StatusRunning)
	last := events[len(events)-1]
	assert.Equal(t, last.Status, engine.StatusCompleted)
	assert.Equal(t, last.Percent, 100)

	assert.Equal(t, testutil.ToFloat64(f.metrics.ClassifierRequestsTotal.WithLabelValues("success")), 1.0)
	assert.Equal(t, testutil.ToFloat64(f.metrics.RunsTotal.WithLabelValues("analyze", "success")), 1.0)
}

func TestAnalyze_NoBookmarks(t *testing.T) {
	live := storage.NewLive(nil, nil)
	e := engine.New(engine.Params{
		Store:    live,
		Gateway:  ai.GatewayFunc(replyByTitle),
		Settings: storage.Settings{APIKey: "k"},
		Logger:   zerolog.Nop(),
	})

	_, err := e.Analyze(context.Background())
	assert.Assert(t, errors.Is(err, engine.ErrNoBookmarks))

	state := e.State()
	assert.Equal(t, state.Status, engine.StatusError)
	assert.Equal(t, state.Error, engine.ErrNoBookmarks.Error())
}

func TestAnalyze_ClassifierErrorSetsErrorState(t *testing.T) {
	f := newFixture(t, func(context.Context, ai.Prompt, ai.Config) (string, error) {
		return "", ai.ErrAPIRequest
	})

	_, err := f.engine.Analyze(context.Background())
	assert.Assert(t, errors.Is(err, ai.ErrAPIRequest))
	assert.Equal(t, f.engine.State().Status, engine.StatusError)
	assert.Equal(t, testutil.ToFloat64(f.metrics.ClassifierRequestsTotal.WithLabelValues("error")), 1.0)

	// A fresh run may start after an error.
	f.engine.ClearState()
	assert.Equal(t, f.engine.State().Status, engine.StatusIdle)
}

func TestAnalyze_SingleFlight(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	f := newFixture(t, func(ctx context.Context, p ai.Prompt, c ai.Config) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return replyByTitle(ctx, p, c)
	})

	const callers = 4
	results := make([]any, callers)
	var wg sync.WaitGroup
	run := func(i int) {
		defer wg.Done()
		cm, err := f.engine.Analyze(context.Background())
		assert.Check(t, err)
		results[i] = cm
	}

	wg.Add(1)
	go run(0)
	<-started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go run(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, calls.Load(), int32(1))
	for i := 1; i < callers; i++ {
		assert.Equal(t, results[i], results[0])
	}
}

func TestOrganize_AppliesLastAnalysis(t *testing.T) {
	f := newFixture(t, replyByTitle)
	ctx := context.Background()

	_, err := f.engine.Organize(ctx, nil)
	assert.Assert(t, errors.Is(err, engine.ErrNoPlan))

	_, err = f.engine.Analyze(ctx)
	assert.NilError(t, err)

	report, err := f.engine.Organize(ctx, nil)
	assert.NilError(t, err)
	assert.Equal(t, report.Filed, 3)

	state := f.engine.State()
	assert.Equal(t, state.Status, engine.StatusIdle)
	assert.Assert(t, state.Result == nil)

	folders, err := f.engine.Folders(ctx)
	assert.NilError(t, err)
	var paths []string
	for _, r := range folders {
		paths = append(paths, r.Path)
	}
	assert.DeepEqual(t, paths, []string{"Private", "Dev", "Dev/Links", "News", "News/Links"})

	stats, err := f.engine.Stats(ctx)
	assert.NilError(t, err)
	assert.Equal(t, stats.TotalBookmarks, 4)
	assert.Equal(t, testutil.ToFloat64(f.metrics.BookmarksFiled), 3.0)
}

func TestOrganize_BusyWhileRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	f := newFixture(t, func(ctx context.Context, p ai.Prompt, c ai.Config) (string, error) {
		close(started)
		<-release
		return replyByTitle(ctx, p, c)
	})

	done := make(chan error)
	go func() {
		_, err := f.engine.Analyze(context.Background())
		done <- err
	}()
	<-started

	_, err := f.engine.Organize(context.Background(), model.NewCategoryMap())
	assert.Assert(t, errors.Is(err, engine.ErrBusy))

	close(release)
	assert.NilError(t, <-done)
}

type brokenStore struct{ *storage.Live }

func (brokenStore) Create(context.Context, string, string, string) (*model.Node, error) {
	return nil, errors.New("disk full")
}

func TestOrganize_FailureSetsErrorState(t *testing.T) {
	live := storage.NewLive(nil, nil)
	b, err := live.Create(context.Background(), model.BarID, "x", "https://x.test")
	assert.NilError(t, err)

	e := engine.New(engine.Params{Store: brokenStore{live}, Gateway: ai.GatewayFunc(replyByTitle), Logger: zerolog.Nop()})
	cm := model.NewCategoryMap()
	cm.Append("A", model.Bookmark{ID: b.ID})

	_, err = e.Organize(context.Background(), cm)
	assert.ErrorContains(t, err, "disk full")

	state := e.State()
	assert.Equal(t, state.Status, engine.StatusError)
	assert.Assert(t, strings.Contains(state.Error, "disk full"))
}

func TestBackupRestore(t *testing.T) {
	f := newFixture(t, replyByTitle)
	ctx := context.Background()

	doc, err := f.engine.Backup(ctx)
	assert.NilError(t, err)
	assert.Equal(t, doc.ExportDate, "2024-01-02T03:04:05.000Z")

	empty := engine.New(engine.Params{Store: storage.NewLive(nil, nil), Gateway: ai.GatewayFunc(replyByTitle), Logger: zerolog.Nop()})
	res, err := empty.Restore(ctx, doc)
	assert.NilError(t, err)
	assert.Equal(t, res, backup.Result{Created: 4, Folders: 2})

	res, err = empty.Restore(ctx, doc)
	assert.NilError(t, err)
	assert.Equal(t, res, backup.Result{Skipped: 4})

	want, err := f.engine.Folders(ctx)
	assert.NilError(t, err)
	got, err := empty.Folders(ctx)
	assert.NilError(t, err)
	assert.Equal(t, len(got), len(want))
}

// slowStore widens the window between a restore's lookups and its writes.
type slowStore struct{ *storage.Live }

func (s slowStore) Search(ctx context.Context, url string) ([]*model.Node, error) {
	time.Sleep(time.Millisecond)
	return s.Live.Search(ctx, url)
}

func (s slowStore) Children(ctx context.Context, parentID string) ([]*model.Node, error) {
	time.Sleep(time.Millisecond)
	return s.Live.Children(ctx, parentID)
}

func TestRestore_ConcurrentCallsDoNotInterleave(t *testing.T) {
	ctx := context.Background()
	folder := backup.Node{Title: "Reading"}
	for i := 0; i < 50; i++ {
		u := fmt.Sprintf("https://example.test/%d", i)
		folder.Children = append(folder.Children, backup.Node{Title: u, URL: u})
	}
	doc := backup.Document{Version: "1.0", Bookmarks: []backup.Node{{Children: []backup.Node{
		{Title: "Bookmarks bar", Children: []backup.Node{folder}},
	}}}}

	e := engine.New(engine.Params{Store: slowStore{storage.NewLive(nil, nil)}, Gateway: ai.GatewayFunc(replyByTitle), Logger: zerolog.Nop()})

	const callers = 4
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Restore(ctx, doc)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.Check(t, errors.Is(err, engine.ErrBusy), "unexpected error: %v", err)
	}
	assert.Check(t, succeeded >= 1)

	stats, err := e.Stats(ctx)
	assert.NilError(t, err)
	assert.Equal(t, stats.TotalBookmarks, 50)
	folders, err := e.Folders(ctx)
	assert.NilError(t, err)
	assert.Equal(t, len(folders), 1)
	assert.Equal(t, e.State().Status, engine.StatusIdle)
}

func TestRestore_BusyDuringAnalyze(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f := newFixture(t, func(ctx context.Context, p ai.Prompt, c ai.Config) (string, error) {
		once.Do(func() { close(started) })
		<-release
		return replyByTitle(ctx, p, c)
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.Analyze(context.Background())
		done <- err
	}()
	<-started

	_, err := f.engine.Restore(context.Background(), backup.Document{})
	assert.Assert(t, errors.Is(err, engine.ErrBusy))
	_, err = f.engine.Import(context.Background(), strings.NewReader("<DL></DL>"), model.BarID)
	assert.Assert(t, errors.Is(err, engine.ErrBusy))
	_, err = f.engine.RemoveBookmarks(context.Background(), []string{f.ids["Dev rust"]})
	assert.Assert(t, errors.Is(err, engine.ErrBusy))

	close(release)
	assert.NilError(t, <-done)
	assert.Equal(t, f.engine.State().Status, engine.StatusCompleted)
}

func TestImportAndRemove(t *testing.T) {
	f := newFixture(t, replyByTitle)
	ctx := context.Background()

	page := `<DL><p><DT><A HREF="https://zig.test">Zig</A><DT><A HREF="https://go.dev">Go</A></DL>`
	res, err := f.engine.Import(ctx, strings.NewReader(page), model.OtherID)
	assert.NilError(t, err)
	assert.Equal(t, res, backup.Result{Created: 1, Skipped: 1})

	removed, err := f.engine.RemoveBookmarks(ctx, []string{f.ids["Dev rust"], "missing"})
	assert.Equal(t, removed, 1)
	assert.ErrorContains(t, err, "remove missing")
	assert.Equal(t, f.engine.State().Status, engine.StatusError)

	found, err := f.store.Search(ctx, "https://rust-lang.org")
	assert.NilError(t, err)
	assert.Equal(t, len(found), 0)
}

func TestUpdateSettings_Persists(t *testing.T) {
	path := t.TempDir() + "/config.yaml"
	e := engine.New(engine.Params{Store: storage.NewLive(nil, nil), Gateway: ai.GatewayFunc(replyByTitle), SettingsPath: path, Logger: zerolog.Nop()})

	s := storage.DefaultSettings()
	s.MaxRootCategories = 4
	assert.NilError(t, e.UpdateSettings(s))
	assert.Equal(t, e.Settings().MaxRootCategories, 4)

	loaded, err := storage.LoadSettings(path)
	assert.NilError(t, err)
	assert.Equal(t, loaded.MaxRootCategories, 4)
}

func TestSubscribe_UnsubscribeCloses(t *testing.T) {
	f := newFixture(t, replyByTitle)
	ch, unsubscribe := f.engine.Subscribe()
	unsubscribe()
	unsubscribe()

	_, ok := <-ch
	assert.Assert(t, !ok)
	f.engine.ClearState()
}
