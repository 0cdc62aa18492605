package model

import "time"

// Node is one entry of a tree snapshot. A node with a URL is a bookmark;
// anything else is a folder, even when it has no children.
type Node struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	ParentID  string    `json:"parentId,omitempty"`
	DateAdded time.Time `json:"dateAdded"`
	Children  []*Node   `json:"children,omitempty"`
}

// IsFolder reports whether the node is a folder.
func (n *Node) IsFolder() bool {
	return n.URL == ""
}

// Bookmark projects a bookmark node to its item value.
func (n *Node) Bookmark() Bookmark {
	return Bookmark{
		ID:        n.ID,
		Title:     n.Title,
		URL:       n.URL,
		ParentID:  n.ParentID,
		DateAdded: n.DateAdded,
	}
}

// Find returns the node with the given ID in the subtree, or nil.
func (n *Node) Find(id string) *Node {
	if n.ID == id {
		return n
	}
	for _, c := range n.Children {
		if found := c.Find(id); found != nil {
			return found
		}
	}
	return nil
}

// IgnoreSet is a set of folder IDs whose subtrees are left untouched.
type IgnoreSet map[string]struct{}

// NewIgnoreSet builds an IgnoreSet from folder IDs.
func NewIgnoreSet(ids ...string) IgnoreSet {
	s := make(IgnoreSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set. A nil set contains nothing.
func (s IgnoreSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}
