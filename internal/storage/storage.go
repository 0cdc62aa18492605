package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nikbrunner/bmsort/internal/model"
)

var (
	ErrNotFound = model.ErrNotFound
	ErrReserved = model.ErrReserved
)

// Storage defines the interface for persisting a whole bookmark store.
type Storage interface {
	Load() (*model.Store, error)
	Save(store *model.Store) error
}

// BookmarkStore is the live, mutable bookmark tree. Every read returns a
// fresh snapshot; every mutation is applied immediately.
type BookmarkStore interface {
	Tree(ctx context.Context) (*model.Node, error)
	Children(ctx context.Context, parentID string) ([]*model.Node, error)
	Move(ctx context.Context, id, parentID string) error
	// Create adds a folder when url is empty, otherwise a bookmark.
	Create(ctx context.Context, parentID, title, url string) (*model.Node, error)
	Remove(ctx context.Context, id string) error
	RemoveTree(ctx context.Context, id string) error
	Search(ctx context.Context, url string) ([]*model.Node, error)
}

// MutationError reports a failed store mutation.
type MutationError struct {
	Op  string
	ID  string
	Err error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

func mutationErr(op, id string, err error) error {
	if err == nil {
		return nil
	}
	return &MutationError{Op: op, ID: id, Err: err}
}

// JSONStorage implements Storage using a JSON file.
type JSONStorage struct {
	path string
}

// NewJSONStorage creates a new JSONStorage with the given file path.
func NewJSONStorage(path string) *JSONStorage {
	return &JSONStorage{path: path}
}

// Path returns the storage file path.
func (s *JSONStorage) Path() string {
	return s.path
}

// Load reads the store from the JSON file.
// Returns a store with only the reserved folders if the file doesn't exist.
func (s *JSONStorage) Load() (*model.Store, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.NewStore(), nil
		}
		return nil, err
	}

	var store model.Store
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, err
	}

	if store.Folders == nil {
		store.Folders = []model.Folder{}
	}
	if store.Bookmarks == nil {
		store.Bookmarks = []model.Bookmark{}
	}
	store.EnsureReserved()

	return &store, nil
}

// Save writes the store to the JSON file.
// Creates the directory if it doesn't exist.
func (s *JSONStorage) Save(store *model.Store) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0644)
}

// DefaultDataPath returns the default JSON store path: ~/.config/bmsort/bookmarks.json
func DefaultDataPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "bmsort", "bookmarks.json"), nil
}

// OpenParams selects a storage backend.
type OpenParams struct {
	// SQLitePath forces the SQLite backend when set.
	SQLitePath string
	// JSONPath overrides the default JSON file location.
	JSONPath string
}

// Backend is an opened BookmarkStore that may need closing.
type Backend interface {
	BookmarkStore
	Storage
	Close() error
}

// Open opens the appropriate live store.
// Prefers SQLite if a database path is given or the default database exists,
// otherwise falls back to a JSON-backed Live store.
func Open(params OpenParams) (Backend, error) {
	sqlitePath := params.SQLitePath
	if sqlitePath == "" {
		defaultPath, err := DefaultSQLitePath()
		if err != nil {
			return nil, err
		}
		if _, err := os.Stat(defaultPath); err == nil {
			sqlitePath = defaultPath
		}
	}
	if sqlitePath != "" {
		return NewSQLiteStorage(sqlitePath)
	}

	jsonPath := params.JSONPath
	if jsonPath == "" {
		var err error
		if jsonPath, err = DefaultDataPath(); err != nil {
			return nil, err
		}
	}
	return OpenLive(NewJSONStorage(jsonPath))
}
