package model

import (
	"errors"
	"sort"
)

var (
	ErrNotFound      = errors.New("node not found")
	ErrReserved      = errors.New("reserved node cannot be modified")
	ErrNotEmpty      = errors.New("folder is not empty")
	ErrInvalidParent = errors.New("invalid parent folder")
	ErrEmptyURL      = errors.New("bookmark URL is empty")
)

// Store holds all bookmarks and folders as flat lists linked by ParentID.
type Store struct {
	Folders   []Folder   `json:"folders"`
	Bookmarks []Bookmark `json:"bookmarks"`
}

// NewStore creates a Store containing only the reserved folders.
func NewStore() *Store {
	s := &Store{
		Folders:   []Folder{},
		Bookmarks: []Bookmark{},
	}
	s.EnsureReserved()
	return s
}

// EnsureReserved adds any missing reserved folder.
func (s *Store) EnsureReserved() {
	reserved := []Folder{
		{ID: RootID, Title: "", ParentID: "", Index: 0},
		{ID: BarID, Title: BarTitle, ParentID: RootID, Index: 0},
		{ID: OtherID, Title: OtherTitle, ParentID: RootID, Index: 1},
	}
	for _, f := range reserved {
		if s.GetFolderByID(f.ID) == nil {
			s.Folders = append(s.Folders, f)
		}
	}
}

// GetFolderByID finds a folder by ID, returns nil if not found.
func (s *Store) GetFolderByID(id string) *Folder {
	for i := range s.Folders {
		if s.Folders[i].ID == id {
			return &s.Folders[i]
		}
	}
	return nil
}

// GetBookmarkByID finds a bookmark by ID, returns nil if not found.
func (s *Store) GetBookmarkByID(id string) *Bookmark {
	for i := range s.Bookmarks {
		if s.Bookmarks[i].ID == id {
			return &s.Bookmarks[i]
		}
	}
	return nil
}

// HasBookmarkURL checks if a bookmark with the given URL exists anywhere.
func (s *Store) HasBookmarkURL(url string) bool {
	return len(s.FindByURL(url)) > 0
}

// FindByURL returns every bookmark whose URL matches exactly.
func (s *Store) FindByURL(url string) []Bookmark {
	var result []Bookmark
	for _, b := range s.Bookmarks {
		if b.URL == url {
			result = append(result, b)
		}
	}
	return result
}

// Children returns snapshot nodes for the direct children of parentID,
// in index order. Folder children are returned without their subtrees.
func (s *Store) Children(parentID string) ([]*Node, error) {
	if s.GetFolderByID(parentID) == nil {
		return nil, ErrNotFound
	}
	var nodes []indexedNode
	for _, f := range s.Folders {
		if f.ParentID == parentID && f.ID != RootID {
			nodes = append(nodes, indexedNode{index: f.Index, node: folderNode(f)})
		}
	}
	for _, b := range s.Bookmarks {
		if b.ParentID == parentID {
			nodes = append(nodes, indexedNode{index: b.Index, node: bookmarkNode(b)})
		}
	}
	return sortNodes(nodes), nil
}

// Tree builds a snapshot of the whole store rooted at the root folder.
func (s *Store) Tree() *Node {
	byParent := make(map[string][]indexedNode)
	var root *Node
	for _, f := range s.Folders {
		n := folderNode(f)
		if f.ID == RootID {
			root = n
			continue
		}
		byParent[f.ParentID] = append(byParent[f.ParentID], indexedNode{index: f.Index, node: n})
	}
	for _, b := range s.Bookmarks {
		byParent[b.ParentID] = append(byParent[b.ParentID], indexedNode{index: b.Index, node: bookmarkNode(b)})
	}
	if root == nil {
		root = &Node{ID: RootID, Children: []*Node{}}
	}

	var attach func(n *Node)
	attach = func(n *Node) {
		n.Children = sortNodes(byParent[n.ID])
		for _, c := range n.Children {
			if c.IsFolder() {
				attach(c)
			}
		}
	}
	attach(root)
	return root
}

// AddFolder creates a folder at the end of parentID's children.
func (s *Store) AddFolder(parentID, title string) (Folder, error) {
	if parentID == RootID {
		return Folder{}, ErrReserved
	}
	if s.GetFolderByID(parentID) == nil {
		return Folder{}, ErrInvalidParent
	}
	f := NewFolder(NewFolderParams{Title: title, ParentID: parentID})
	f.Index = s.nextIndex(parentID)
	s.Folders = append(s.Folders, f)
	return f, nil
}

// AddBookmark creates a bookmark at the end of parentID's children.
func (s *Store) AddBookmark(parentID, title, url string) (Bookmark, error) {
	if url == "" {
		return Bookmark{}, ErrEmptyURL
	}
	if parentID == RootID {
		return Bookmark{}, ErrReserved
	}
	if s.GetFolderByID(parentID) == nil {
		return Bookmark{}, ErrInvalidParent
	}
	b := NewBookmark(NewBookmarkParams{Title: title, URL: url, ParentID: parentID})
	b.Index = s.nextIndex(parentID)
	s.Bookmarks = append(s.Bookmarks, b)
	return b, nil
}

// Move re-parents a node, appending it to the new parent's children.
func (s *Store) Move(id, parentID string) error {
	if IsReserved(id) {
		return ErrReserved
	}
	if parentID == RootID || s.GetFolderByID(parentID) == nil {
		return ErrInvalidParent
	}
	if b := s.GetBookmarkByID(id); b != nil {
		b.Index = s.nextIndex(parentID)
		b.ParentID = parentID
		return nil
	}
	f := s.GetFolderByID(id)
	if f == nil {
		return ErrNotFound
	}
	// Refuse to move a folder underneath itself.
	for cur := parentID; cur != ""; {
		if cur == id {
			return ErrInvalidParent
		}
		p := s.GetFolderByID(cur)
		if p == nil {
			break
		}
		cur = p.ParentID
	}
	f.Index = s.nextIndex(parentID)
	f.ParentID = parentID
	return nil
}

// Remove deletes a bookmark or an empty folder.
func (s *Store) Remove(id string) error {
	if IsReserved(id) {
		return ErrReserved
	}
	for i := range s.Bookmarks {
		if s.Bookmarks[i].ID == id {
			s.Bookmarks = append(s.Bookmarks[:i], s.Bookmarks[i+1:]...)
			return nil
		}
	}
	if s.GetFolderByID(id) == nil {
		return ErrNotFound
	}
	if s.hasChildren(id) {
		return ErrNotEmpty
	}
	s.removeFolders(map[string]bool{id: true})
	return nil
}

// RemoveTree deletes a folder together with everything beneath it.
func (s *Store) RemoveTree(id string) error {
	if IsReserved(id) {
		return ErrReserved
	}
	if s.GetBookmarkByID(id) != nil {
		return s.Remove(id)
	}
	if s.GetFolderByID(id) == nil {
		return ErrNotFound
	}

	doomed := map[string]bool{id: true}
	for grew := true; grew; {
		grew = false
		for _, f := range s.Folders {
			if !doomed[f.ID] && doomed[f.ParentID] {
				doomed[f.ID] = true
				grew = true
			}
		}
	}

	kept := s.Bookmarks[:0]
	for _, b := range s.Bookmarks {
		if !doomed[b.ParentID] {
			kept = append(kept, b)
		}
	}
	s.Bookmarks = kept
	s.removeFolders(doomed)
	return nil
}

func (s *Store) removeFolders(ids map[string]bool) {
	kept := s.Folders[:0]
	for _, f := range s.Folders {
		if !ids[f.ID] {
			kept = append(kept, f)
		}
	}
	s.Folders = kept
}

func (s *Store) hasChildren(id string) bool {
	for _, f := range s.Folders {
		if f.ParentID == id {
			return true
		}
	}
	for _, b := range s.Bookmarks {
		if b.ParentID == id {
			return true
		}
	}
	return false
}

func (s *Store) nextIndex(parentID string) int {
	next := 0
	for _, f := range s.Folders {
		if f.ParentID == parentID && f.ID != RootID && f.Index >= next {
			next = f.Index + 1
		}
	}
	for _, b := range s.Bookmarks {
		if b.ParentID == parentID && b.Index >= next {
			next = b.Index + 1
		}
	}
	return next
}

type indexedNode struct {
	index int
	node  *Node
}

func sortNodes(nodes []indexedNode) []*Node {
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].index < nodes[j].index })
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.node
	}
	return out
}

func folderNode(f Folder) *Node {
	return &Node{
		ID:        f.ID,
		Title:     f.Title,
		ParentID:  f.ParentID,
		DateAdded: f.DateAdded,
		Children:  []*Node{},
	}
}

func bookmarkNode(b Bookmark) *Node {
	return &Node{
		ID:        b.ID,
		Title:     b.Title,
		URL:       b.URL,
		ParentID:  b.ParentID,
		DateAdded: b.DateAdded,
	}
}

// NodeFromFolder and NodeFromBookmark expose the snapshot projections to
// other store implementations.
func NodeFromFolder(f Folder) *Node { return folderNode(f) }

func NodeFromBookmark(b Bookmark) *Node { return bookmarkNode(b) }
