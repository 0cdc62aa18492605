// Package reconcile rewrites the live bookmark tree to match a category map.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/nikbrunner/bmsort/internal/model"
	"github.com/nikbrunner/bmsort/internal/tree"
)

// Phase labels reported through ProgressFunc.
const (
	PhaseEvacuate = "evacuate"
	PhaseClear    = "clear"
	PhaseBuild    = "build"
	PhaseDone     = "done"
)

// ErrEmptyPath is returned when a category path has no segments.
var ErrEmptyPath = errors.New("empty category path")

// Store is the subset of the bookmark store the reconciler mutates.
type Store interface {
	Tree(ctx context.Context) (*model.Node, error)
	Children(ctx context.Context, parentID string) ([]*model.Node, error)
	Create(ctx context.Context, parentID, title, url string) (*model.Node, error)
	Move(ctx context.Context, id, parentID string) error
	RemoveTree(ctx context.Context, id string) error
}

// ProgressFunc receives a phase label and a percentage from 0 to 100.
type ProgressFunc func(phase string, percent int)

// Failure is a swallowed error from a cleanup phase.
type Failure struct {
	Phase string `json:"phase"`
	ID    string `json:"id"`
	Err   error  `json:"-"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Phase, f.ID, f.Err)
}

// Report summarizes an Apply run.
type Report struct {
	Evacuated int       `json:"evacuated"`
	Removed   int       `json:"removed"`
	Created   int       `json:"created"`
	Filed     int       `json:"filed"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Reconciler applies category maps to a store. Mutations are issued one at a
// time; find-or-create is not atomic.
type Reconciler struct {
	store Store
	log   zerolog.Logger
}

// New creates a Reconciler.
func New(store Store, logger zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, log: logger}
}

// Apply evacuates bookmarks to the default container, clears every
// non-ignored folder, then builds each category path and files its
// bookmarks. Cleanup failures are recorded in the report; a failure while
// building or filing aborts the run.
func (r *Reconciler) Apply(ctx context.Context, cm *model.CategoryMap, ignore model.IgnoreSet, progress ProgressFunc) (Report, error) {
	if progress == nil {
		progress = func(string, int) {}
	}
	var report Report

	root, err := r.store.Tree(ctx)
	if err != nil {
		return report, fmt.Errorf("read tree: %w", err)
	}

	r.evacuate(ctx, root, ignore, &report)
	progress(PhaseEvacuate, 5)

	root, err = r.store.Tree(ctx)
	if err != nil {
		return report, fmt.Errorf("read tree: %w", err)
	}
	r.clear(ctx, root, ignore, &report)
	progress(PhaseClear, 10)

	total := 0
	for _, p := range cm.Paths() {
		total += len(cm.Get(p))
	}

	processed := 0
	for _, path := range cm.Paths() {
		items := cm.Get(path)
		if len(items) == 0 {
			continue
		}
		folderID, created, err := r.resolvePath(ctx, path)
		report.Created += created
		if err != nil {
			return report, fmt.Errorf("resolve %q: %w", path, err)
		}
		for _, b := range items {
			if err := r.store.Move(ctx, b.ID, folderID); err != nil {
				return report, fmt.Errorf("file %q into %q: %w", b.ID, path, err)
			}
			report.Filed++
			processed++
			progress(PhaseBuild, 10+int(math.Round(float64(processed)/float64(total)*90)))
		}
	}

	progress(PhaseDone, 100)
	r.log.Info().
		Int("evacuated", report.Evacuated).
		Int("removed", report.Removed).
		Int("created", report.Created).
		Int("filed", report.Filed).
		Int("failures", len(report.Failures)).
		Msg("reconcile complete")
	return report, nil
}

// ResolvePath finds or creates each segment of path under the default
// container and returns the leaf folder id.
func (r *Reconciler) ResolvePath(ctx context.Context, path string) (string, error) {
	id, _, err := r.resolvePath(ctx, path)
	return id, err
}

func (r *Reconciler) resolvePath(ctx context.Context, path string) (string, int, error) {
	segments := model.SplitPath(path)
	if len(segments) == 0 {
		return "", 0, ErrEmptyPath
	}
	created := 0
	parentID := model.BarID
	for _, title := range segments {
		children, err := r.store.Children(ctx, parentID)
		if err != nil {
			return "", created, err
		}
		var found string
		for _, c := range children {
			if c.IsFolder() && c.Title == title {
				found = c.ID
				break
			}
		}
		if found == "" {
			node, err := r.store.Create(ctx, parentID, title, "")
			if err != nil {
				return "", created, err
			}
			found = node.ID
			created++
		}
		parentID = found
	}
	return parentID, created, nil
}

// evacuate moves every bookmark outside ignored subtrees to the default
// container.
func (r *Reconciler) evacuate(ctx context.Context, root *model.Node, ignore model.IgnoreSet, report *Report) {
	for _, b := range tree.FlattenExcluding(root, ignore) {
		if b.ParentID == model.BarID {
			continue
		}
		if err := r.store.Move(ctx, b.ID, model.BarID); err != nil {
			r.fail(report, PhaseEvacuate, b.ID, err)
			continue
		}
		report.Evacuated++
	}
}

// clear removes every non-reserved folder that is not ignored and holds no
// ignored folder beneath it. Folders that do are descended into instead.
func (r *Reconciler) clear(ctx context.Context, root *model.Node, ignore model.IgnoreSet, report *Report) {
	var walk func(n *model.Node)
	walk = func(n *model.Node) {
		for _, c := range n.Children {
			if !c.IsFolder() || ignore.Has(c.ID) {
				continue
			}
			if model.IsReserved(c.ID) || containsIgnored(c, ignore) {
				walk(c)
				continue
			}
			if err := r.store.RemoveTree(ctx, c.ID); err != nil {
				r.fail(report, PhaseClear, c.ID, err)
				continue
			}
			report.Removed++
		}
	}
	walk(root)
}

func (r *Reconciler) fail(report *Report, phase, id string, err error) {
	report.Failures = append(report.Failures, Failure{Phase: phase, ID: id, Err: err})
	r.log.Warn().Err(err).Str("phase", phase).Str("id", id).Msg("cleanup step failed")
}

func containsIgnored(n *model.Node, ignore model.IgnoreSet) bool {
	for _, c := range n.Children {
		if !c.IsFolder() {
			continue
		}
		if ignore.Has(c.ID) || containsIgnored(c, ignore) {
			return true
		}
	}
	return false
}
