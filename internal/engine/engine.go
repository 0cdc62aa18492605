// Package engine orchestrates analysis and organization runs over a live
// bookmark store and publishes their progress.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/nikbrunner/bmsort/internal/ai"
	"github.com/nikbrunner/bmsort/internal/backup"
	"github.com/nikbrunner/bmsort/internal/categorize"
	"github.com/nikbrunner/bmsort/internal/importer"
	"github.com/nikbrunner/bmsort/internal/metrics"
	"github.com/nikbrunner/bmsort/internal/model"
	"github.com/nikbrunner/bmsort/internal/reconcile"
	"github.com/nikbrunner/bmsort/internal/storage"
	"github.com/nikbrunner/bmsort/internal/tree"
)

var (
	ErrNoBookmarks = errors.New("no bookmarks to categorize")
	ErrBusy        = errors.New("another run is in progress")
	ErrNoPlan      = errors.New("no completed analysis to apply")
)

// Status is the run state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Phase labels published while analyzing, merging or removing. Organize
// runs publish the reconcile phases.
const (
	PhaseReading     = "reading"
	PhaseClassifying = "classifying"
	PhaseRestoring   = "restoring"
	PhaseImporting   = "importing"
	PhaseRemoving    = "removing"
)

// Progress is one notification on a subscription.
type Progress struct {
	Status  Status `json:"status"`
	Phase   string `json:"phase"`
	Percent int    `json:"progress"`
}

// StateSnapshot is a copy of the run state.
type StateSnapshot struct {
	Status   Status             `json:"status"`
	Progress int                `json:"progress"`
	Phase    string             `json:"phase,omitempty"`
	Result   *model.CategoryMap `json:"result,omitempty"`
	Report   *reconcile.Report  `json:"report,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Params holds dependencies for an Engine.
type Params struct {
	Store    storage.BookmarkStore
	Gateway  ai.Gateway
	Settings storage.Settings
	// SettingsPath, when set, is where UpdateSettings persists.
	SettingsPath string
	Logger       zerolog.Logger
	// Metrics defaults to collectors on a private registry.
	Metrics *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Engine owns the run state. Store mutations are issued one at a time: at
// most one analyze, organize, restore, import or remove run is active and
// the others fail with ErrBusy.
type Engine struct {
	store        storage.BookmarkStore
	gateway      ai.Gateway
	settingsPath string
	log          zerolog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time

	flight singleflight.Group

	mu       sync.Mutex // guards everything below
	settings storage.Settings
	state    StateSnapshot
	subs     map[int]chan Progress
	nextSub  int
}

// New creates an Engine in the idle state.
func New(params Params) *Engine {
	m := params.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	e := &Engine{
		store:        params.Store,
		settingsPath: params.SettingsPath,
		log:          params.Logger,
		metrics:      m,
		now:          now,
		settings:     params.Settings,
		state:        StateSnapshot{Status: StatusIdle},
		subs:         make(map[int]chan Progress),
	}
	e.gateway = &instrumentedGateway{next: params.Gateway, metrics: m, log: params.Logger}
	return e
}

// State returns a copy of the current run state.
func (e *Engine) State() StateSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// ClearState resets the run state to idle and drops any stored result.
func (e *Engine) ClearState() {
	e.mu.Lock()
	e.state = StateSnapshot{Status: StatusIdle}
	e.mu.Unlock()
	e.publish(Progress{Status: StatusIdle})
}

// Settings returns the current settings.
func (e *Engine) Settings() storage.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// UpdateSettings replaces the settings and persists them when the engine
// was given a settings path.
func (e *Engine) UpdateSettings(s storage.Settings) error {
	if e.settingsPath != "" {
		if err := storage.SaveSettings(e.settingsPath, &s); err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
	}
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()
	return nil
}

// Analyze categorizes every bookmark outside the ignored folders. Calls made
// while a run is in flight wait for it and share its result.
func (e *Engine) Analyze(ctx context.Context) (*model.CategoryMap, error) {
	v, err, _ := e.flight.Do("analyze", func() (any, error) {
		return e.analyze(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.CategoryMap), nil
}

func (e *Engine) analyze(ctx context.Context) (cm *model.CategoryMap, err error) {
	if err := e.begin(PhaseReading); err != nil {
		return nil, err
	}
	start := e.now()
	defer func() {
		e.metrics.RecordRun("analyze", err, e.now().Sub(start))
		if err != nil {
			e.fail(err)
		}
	}()

	settings := e.Settings()
	root, err := e.store.Tree(ctx)
	if err != nil {
		return nil, fmt.Errorf("read tree: %w", err)
	}
	items := tree.FlattenExcluding(root, model.NewIgnoreSet(settings.IgnoreFolders...))
	if len(items) == 0 {
		return nil, ErrNoBookmarks
	}
	e.progress(PhaseReading, 10)

	e.log.Info().Int("bookmarks", len(items)).Str("model", settings.Model).Msg("categorizing")
	e.progress(PhaseClassifying, 30)

	c := categorize.New(categorize.Params{
		Gateway: e.gateway,
		Config: ai.Config{
			Endpoint:    settings.APIEndpoint,
			APIKey:      settings.APIKey,
			Model:       settings.Model,
			Temperature: settings.Temperature,
		},
		Logger: e.log,
		OnBatch: func(done, total int) {
			e.progress(PhaseClassifying, 30+done*60/total)
		},
	})
	cm, err = c.Categorize(ctx, items, categorize.Policy{
		MaxRootCategories: settings.MaxRootCategories,
		Hints:             settings.CustomCategories,
		BatchSize:         settings.BatchSize,
		Language:          settings.Language,
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.state = StateSnapshot{Status: StatusCompleted, Progress: 100, Result: cm}
	e.mu.Unlock()
	e.metrics.RunProgress.Set(100)
	e.publish(Progress{Status: StatusCompleted, Percent: 100})
	e.log.Info().Int("paths", cm.Len()).Int("bookmarks", cm.Total()).Msg("analysis complete")
	return cm, nil
}

// Organize applies cm to the store. A nil cm applies the result of the last
// completed analysis. On success the state returns to idle.
func (e *Engine) Organize(ctx context.Context, cm *model.CategoryMap) (report reconcile.Report, err error) {
	if cm == nil {
		s := e.State()
		if s.Status != StatusCompleted || s.Result == nil {
			return report, ErrNoPlan
		}
		cm = s.Result
	}
	if err := e.begin(reconcile.PhaseEvacuate); err != nil {
		return report, err
	}
	start := e.now()
	defer func() {
		e.metrics.RecordRun("organize", err, e.now().Sub(start))
		e.metrics.BookmarksFiled.Add(float64(report.Filed))
		for _, f := range report.Failures {
			e.metrics.CleanupFailures.WithLabelValues(f.Phase).Inc()
		}
		if err != nil {
			e.fail(err)
		}
	}()

	settings := e.Settings()
	r := reconcile.New(e.store, e.log)
	report, err = r.Apply(ctx, cm, model.NewIgnoreSet(settings.IgnoreFolders...), e.progress)
	if err != nil {
		return report, err
	}

	e.idle(&report)
	return report, nil
}

// Stats summarizes the current tree.
func (e *Engine) Stats(ctx context.Context) (tree.Stats, error) {
	root, err := e.store.Tree(ctx)
	if err != nil {
		return tree.Stats{}, err
	}
	return tree.ComputeStats(root), nil
}

// Folders lists every non-reserved folder with its path.
func (e *Engine) Folders(ctx context.Context) ([]tree.FolderRecord, error) {
	root, err := e.store.Tree(ctx)
	if err != nil {
		return nil, err
	}
	return tree.ListFolders(root), nil
}

// Tree returns a snapshot of the store.
func (e *Engine) Tree(ctx context.Context) (*model.Node, error) {
	return e.store.Tree(ctx)
}

// Backup serializes the whole store.
func (e *Engine) Backup(ctx context.Context) (backup.Document, error) {
	root, err := e.store.Tree(ctx)
	if err != nil {
		return backup.Document{}, err
	}
	return backup.Serialize(root, e.now()), nil
}

// Restore merges doc into the store. The backup's top-level folders map
// onto the bookmarks bar and other bookmarks by position.
func (e *Engine) Restore(ctx context.Context, doc backup.Document) (backup.Result, error) {
	return e.merge("restore", PhaseRestoring, func() (backup.Result, error) {
		return backup.Restore(ctx, e.store, doc, model.RootID)
	})
}

// Import merges a Netscape bookmark file under parentID.
func (e *Engine) Import(ctx context.Context, r io.Reader, parentID string) (backup.Result, error) {
	return e.merge("import", PhaseImporting, func() (backup.Result, error) {
		return importer.Import(ctx, e.store, r, parentID)
	})
}

func (e *Engine) merge(op, phase string, fn func() (backup.Result, error)) (res backup.Result, err error) {
	if err := e.begin(phase); err != nil {
		return res, err
	}
	start := e.now()
	defer func() {
		e.metrics.RecordRun(op, err, e.now().Sub(start))
		if err != nil {
			e.fail(err)
		}
	}()

	if res, err = fn(); err != nil {
		return res, err
	}
	e.idle(nil)
	e.log.Info().Str("op", op).Int("created", res.Created).Int("skipped", res.Skipped).Int("folders", res.Folders).Msg("merge complete")
	return res, nil
}

// RemoveBookmarks removes each id and returns how many were removed. Ids
// that fail are reported together and do not stop the rest.
func (e *Engine) RemoveBookmarks(ctx context.Context, ids []string) (removed int, err error) {
	if err := e.begin(PhaseRemoving); err != nil {
		return 0, err
	}
	start := e.now()
	defer func() {
		e.metrics.RecordRun("remove", err, e.now().Sub(start))
		if err != nil {
			e.fail(err)
		}
	}()

	var errs []error
	for i, id := range ids {
		if err := e.store.Remove(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", id, err))
		} else {
			removed++
		}
		e.progress(PhaseRemoving, (i+1)*100/len(ids))
	}
	if err := errors.Join(errs...); err != nil {
		return removed, err
	}
	e.idle(nil)
	return removed, nil
}

// Subscribe returns a channel of progress notifications and a function that
// detaches it. Notifications are dropped for subscribers that fall behind.
func (e *Engine) Subscribe() (<-chan Progress, func()) {
	ch := make(chan Progress, 16)
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs, id)
			e.mu.Unlock()
			close(ch)
		})
	}
}

func (e *Engine) begin(phase string) error {
	e.mu.Lock()
	if e.state.Status == StatusRunning {
		e.mu.Unlock()
		return ErrBusy
	}
	e.state = StateSnapshot{Status: StatusRunning, Phase: phase}
	e.mu.Unlock()
	e.metrics.RunProgress.Set(0)
	e.publish(Progress{Status: StatusRunning, Phase: phase})
	return nil
}

// idle ends a successful mutating run. Any stored analysis is dropped since
// the tree it was computed from has changed.
func (e *Engine) idle(report *reconcile.Report) {
	e.mu.Lock()
	e.state = StateSnapshot{Status: StatusIdle, Report: report}
	e.mu.Unlock()
	e.metrics.RunProgress.Set(0)
	e.publish(Progress{Status: StatusIdle, Phase: reconcile.PhaseDone, Percent: 100})
}

func (e *Engine) progress(phase string, percent int) {
	e.mu.Lock()
	e.state.Phase = phase
	e.state.Progress = percent
	e.mu.Unlock()
	e.metrics.RunProgress.Set(float64(percent))
	e.publish(Progress{Status: StatusRunning, Phase: phase, Percent: percent})
}

func (e *Engine) fail(err error) {
	e.mu.Lock()
	e.state.Status = StatusError
	e.state.Error = err.Error()
	progress := e.state.Progress
	phase := e.state.Phase
	e.mu.Unlock()
	e.log.Error().Err(err).Str("phase", phase).Msg("run failed")
	e.publish(Progress{Status: StatusError, Phase: phase, Percent: progress})
}

func (e *Engine) publish(p Progress) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

// instrumentedGateway records latency and outcome of every classifier call.
type instrumentedGateway struct {
	next    ai.Gateway
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func (g *instrumentedGateway) Request(ctx context.Context, prompt ai.Prompt, cfg ai.Config) (string, error) {
	start := time.Now()
	reply, err := g.next.Request(ctx, prompt, cfg)
	g.metrics.RecordClassifierRequest(err, time.Since(start))
	g.log.Debug().Err(err).Dur("took", time.Since(start)).Int("reply_bytes", len(reply)).Msg("classifier request")
	return reply, err
}
