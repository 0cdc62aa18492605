package backup

import (
	"context"
	"fmt"

	"github.com/nikbrunner/bmsort/internal/model"
)

// Store is the subset of the bookmark store a restore writes to.
type Store interface {
	Children(ctx context.Context, parentID string) ([]*model.Node, error)
	Create(ctx context.Context, parentID, title, url string) (*model.Node, error)
	Search(ctx context.Context, url string) ([]*model.Node, error)
}

// Result counts what a restore did.
type Result struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Folders int `json:"folders"`
}

func (r *Result) add(o Result) {
	r.Created += o.Created
	r.Skipped += o.Skipped
	r.Folders += o.Folders
}

// Restore writes the children of every top-level wrapper in doc under
// targetID. Bookmarks whose URL already exists anywhere in the store are
// skipped and folders are matched by exact title one level at a time, so
// restoring the same document twice creates nothing the second time.
//
// When targetID is the root, nothing is created there. The wrapper's
// top-level folders map onto the containers by position: the first merges
// into the bookmarks bar, the second into other bookmarks, and any further
// ones are restored as folders inside other bookmarks. Loose top-level
// bookmarks land in the bar.
func Restore(ctx context.Context, store Store, doc Document, targetID string) (Result, error) {
	var res Result
	for _, wrapper := range doc.Bookmarks {
		var (
			r   Result
			err error
		)
		if targetID == model.RootID {
			r, err = restoreContainers(ctx, store, wrapper.Children)
		} else {
			r, err = RestoreNodes(ctx, store, wrapper.Children, targetID)
		}
		res.add(r)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

func restoreContainers(ctx context.Context, store Store, nodes []Node) (Result, error) {
	var res Result
	folders := 0
	for _, n := range nodes {
		var (
			r   Result
			err error
		)
		switch {
		case !n.IsFolder():
			r, err = RestoreNodes(ctx, store, []Node{n}, model.BarID)
		case folders == 0:
			r, err = RestoreNodes(ctx, store, n.Children, model.BarID)
		case folders == 1:
			r, err = RestoreNodes(ctx, store, n.Children, model.OtherID)
		default:
			r, err = RestoreNodes(ctx, store, []Node{n}, model.OtherID)
		}
		if n.IsFolder() {
			folders++
		}
		res.add(r)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

// RestoreNodes writes nodes under parentID with the same rules as Restore.
func RestoreNodes(ctx context.Context, store Store, nodes []Node, parentID string) (Result, error) {
	var res Result
	for _, n := range nodes {
		if !n.IsFolder() {
			existing, err := store.Search(ctx, n.URL)
			if err != nil {
				return res, fmt.Errorf("search %q: %w", n.URL, err)
			}
			if len(existing) > 0 {
				res.Skipped++
				continue
			}
			title := n.Title
			if title == "" {
				title = n.URL
			}
			if _, err := store.Create(ctx, parentID, title, n.URL); err != nil {
				return res, fmt.Errorf("create %q: %w", n.URL, err)
			}
			res.Created++
			continue
		}

		folderID, created, err := findOrCreateFolder(ctx, store, parentID, n.Title)
		if err != nil {
			return res, err
		}
		if created {
			res.Folders++
		}
		r, err := RestoreNodes(ctx, store, n.Children, folderID)
		res.add(r)
		if err != nil {
			return res, err
		}
	}
	return res, nil
}

func findOrCreateFolder(ctx context.Context, store Store, parentID, title string) (string, bool, error) {
	children, err := store.Children(ctx, parentID)
	if err != nil {
		return "", false, fmt.Errorf("list %s: %w", parentID, err)
	}
	for _, c := range children {
		if c.IsFolder() && c.Title == title {
			return c.ID, false, nil
		}
	}
	node, err := store.Create(ctx, parentID, title, "")
	if err != nil {
		return "", false, fmt.Errorf("create folder %q: %w", title, err)
	}
	return node.ID, true, nil
}
