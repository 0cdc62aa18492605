// Package tree provides read-only views over a bookmark tree snapshot.
package tree

import (
	"github.com/nikbrunner/bmsort/internal/model"
)

// FolderRecord describes one user folder in a flat listing.
type FolderRecord struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Path          string `json:"path"`
	ParentID      string `json:"parentId"`
	Depth         int    `json:"depth"`
	HasSubfolders bool   `json:"hasChildren"`
}

// Stats summarizes a snapshot.
type Stats struct {
	TotalBookmarks int `json:"totalBookmarks"`
	TotalFolders   int `json:"totalFolders"`
	Uncategorized  int `json:"uncategorized"`
}

// Flatten collects every bookmark depth-first in native child order.
func Flatten(root *model.Node) []model.Bookmark {
	return FlattenExcluding(root, nil)
}

// FlattenExcluding is Flatten, but skips the whole subtree of every folder
// whose id is in ignore.
func FlattenExcluding(root *model.Node, ignore model.IgnoreSet) []model.Bookmark {
	var out []model.Bookmark
	var walk func(n *model.Node)
	walk = func(n *model.Node) {
		if n.IsFolder() && ignore.Has(n.ID) {
			return
		}
		if !n.IsFolder() {
			out = append(out, n.Bookmark())
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

// ListFolders lists every non-reserved folder with its title path. Reserved
// containers are traversed but never emitted and add nothing to the path.
func ListFolders(root *model.Node) []FolderRecord {
	var out []FolderRecord
	var walk func(nodes []*model.Node, path string, depth int)
	walk = func(nodes []*model.Node, path string, depth int) {
		for _, n := range nodes {
			if !n.IsFolder() {
				continue
			}
			if model.IsReserved(n.ID) {
				walk(n.Children, path, depth)
				continue
			}
			current := n.Title
			if path != "" {
				current = path + model.PathSeparator + n.Title
			}
			out = append(out, FolderRecord{
				ID:            n.ID,
				Title:         n.Title,
				Path:          current,
				ParentID:      n.ParentID,
				Depth:         depth,
				HasSubfolders: hasSubfolders(n),
			})
			walk(n.Children, current, depth+1)
		}
	}
	if root != nil {
		walk([]*model.Node{root}, "", 0)
	}
	return out
}

// ComputeStats counts bookmarks, user folders and bookmarks sitting directly
// in one of the two top-level containers.
func ComputeStats(root *model.Node) Stats {
	var s Stats
	var walk func(n *model.Node)
	walk = func(n *model.Node) {
		if !n.IsFolder() {
			s.TotalBookmarks++
			if n.ParentID == model.BarID || n.ParentID == model.OtherID {
				s.Uncategorized++
			}
			return
		}
		if !model.IsReserved(n.ID) {
			s.TotalFolders++
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return s
}

// Uncategorized returns the bookmarks directly under a top-level container.
func Uncategorized(root *model.Node) []model.Bookmark {
	var out []model.Bookmark
	if root == nil {
		return out
	}
	for _, id := range []string{model.BarID, model.OtherID} {
		container := root.Find(id)
		if container == nil {
			continue
		}
		for _, c := range container.Children {
			if !c.IsFolder() {
				out = append(out, c.Bookmark())
			}
		}
	}
	return out
}

// FolderTree returns the user folders as a nested tree without bookmarks.
// Reserved containers are dissolved and their folders lifted to the top.
func FolderTree(root *model.Node) []*model.Node {
	var build func(nodes []*model.Node) []*model.Node
	build = func(nodes []*model.Node) []*model.Node {
		result := []*model.Node{}
		for _, n := range nodes {
			if !n.IsFolder() {
				continue
			}
			if model.IsReserved(n.ID) {
				result = append(result, build(n.Children)...)
				continue
			}
			result = append(result, &model.Node{
				ID:        n.ID,
				Title:     n.Title,
				ParentID:  n.ParentID,
				DateAdded: n.DateAdded,
				Children:  build(n.Children),
			})
		}
		return result
	}
	if root == nil {
		return []*model.Node{}
	}
	return build([]*model.Node{root})
}

func hasSubfolders(n *model.Node) bool {
	for _, c := range n.Children {
		if c.IsFolder() {
			return true
		}
	}
	return false
}
