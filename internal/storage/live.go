package storage

import (
	"context"
	"sync"

	"github.com/nikbrunner/bmsort/internal/model"
)

// Live is an in-memory BookmarkStore. When a persist function is set, the
// whole store is written out after every successful mutation.
type Live struct {
	mu      sync.Mutex
	data    *model.Store
	persist func(*model.Store) error
}

// NewLive wraps data. A nil data starts with only the reserved folders and a
// nil persist keeps everything in memory.
func NewLive(data *model.Store, persist func(*model.Store) error) *Live {
	if data == nil {
		data = model.NewStore()
	}
	data.EnsureReserved()
	return &Live{data: data, persist: persist}
}

// OpenLive loads s and persists every mutation back to it.
func OpenLive(s Storage) (*Live, error) {
	data, err := s.Load()
	if err != nil {
		return nil, err
	}
	return NewLive(data, s.Save), nil
}

// Load returns a copy of the current store.
func (l *Live) Load() (*model.Store, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &model.Store{
		Folders:   append([]model.Folder{}, l.data.Folders...),
		Bookmarks: append([]model.Bookmark{}, l.data.Bookmarks...),
	}, nil
}

// Save replaces the whole store.
func (l *Live) Save(store *model.Store) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data = &model.Store{
		Folders:   append([]model.Folder{}, store.Folders...),
		Bookmarks: append([]model.Bookmark{}, store.Bookmarks...),
	}
	l.data.EnsureReserved()
	return l.flush()
}

// Close is a no-op; Live holds no external resources.
func (l *Live) Close() error { return nil }

// Tree returns a snapshot of the whole tree.
func (l *Live) Tree(ctx context.Context) (*model.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.data.Tree(), nil
}

// Children returns the direct children of parentID in order.
func (l *Live) Children(ctx context.Context, parentID string) ([]*model.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.data.Children(parentID)
}

// Move re-parents id under parentID, appending it to the end.
func (l *Live) Move(ctx context.Context, id, parentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.data.Move(id, parentID); err != nil {
		return mutationErr("move", id, err)
	}
	return mutationErr("move", id, l.flush())
}

// Create adds a bookmark under parentID, or a folder when url is empty.
func (l *Live) Create(ctx context.Context, parentID, title, url string) (*model.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var node *model.Node
	if url == "" {
		f, err := l.data.AddFolder(parentID, title)
		if err != nil {
			return nil, mutationErr("create", parentID, err)
		}
		node = model.NodeFromFolder(f)
	} else {
		b, err := l.data.AddBookmark(parentID, title, url)
		if err != nil {
			return nil, mutationErr("create", parentID, err)
		}
		node = model.NodeFromBookmark(b)
	}
	if err := l.flush(); err != nil {
		return nil, mutationErr("create", node.ID, err)
	}
	return node, nil
}

// Remove deletes a bookmark or an empty folder.
func (l *Live) Remove(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.data.Remove(id); err != nil {
		return mutationErr("remove", id, err)
	}
	return mutationErr("remove", id, l.flush())
}

// RemoveTree deletes a folder and everything under it.
func (l *Live) RemoveTree(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.data.RemoveTree(id); err != nil {
		return mutationErr("remove tree", id, err)
	}
	return mutationErr("remove tree", id, l.flush())
}

// Search returns every bookmark whose URL equals url.
func (l *Live) Search(ctx context.Context, url string) ([]*model.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*model.Node
	for _, b := range l.data.FindByURL(url) {
		out = append(out, model.NodeFromBookmark(b))
	}
	return out, nil
}

// flush must be called with mu held.
func (l *Live) flush() error {
	if l.persist == nil {
		return nil
	}
	return l.persist(l.data)
}
