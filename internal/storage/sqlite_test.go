package storage_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nikbrunner/bmsort/internal/model"
	"github.com/nikbrunner/bmsort/internal/storage"
)

func newSQLite(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	s, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "bookmarks.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStorage_SaveAndLoad(t *testing.T) {
	s := newSQLite(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	store := &model.Store{
		Folders: []model.Folder{
			{ID: model.RootID, DateAdded: now},
			{ID: model.BarID, Title: model.BarTitle, ParentID: model.RootID, DateAdded: now},
			{ID: model.OtherID, Title: model.OtherTitle, ParentID: model.RootID, Index: 1, DateAdded: now},
			{ID: "f1", Title: "Development", ParentID: model.BarID, DateAdded: now},
		},
		Bookmarks: []model.Bookmark{
			{ID: "b1", Title: "Test", URL: "https://example.com", ParentID: "f1", DateAdded: now},
		},
	}

	if err := s.Save(store); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if len(loaded.Folders) != 4 {
		t.Errorf("expected 4 folders, got %d", len(loaded.Folders))
	}
	if len(loaded.Bookmarks) != 1 {
		t.Fatalf("expected 1 bookmark, got %d", len(loaded.Bookmarks))
	}
	b := loaded.Bookmarks[0]
	if b.ParentID != "f1" {
		t.Errorf("expected bookmark parent 'f1', got %q", b.ParentID)
	}
	if !b.DateAdded.Equal(now) {
		t.Errorf("expected date %v, got %v", now, b.DateAdded)
	}
	if root := loaded.GetFolderByID(model.RootID); root == nil || root.ParentID != "" {
		t.Error("expected root folder without parent")
	}
}

func TestSQLiteStorage_EmptyDatabaseHasReservedFolders(t *testing.T) {
	s := newSQLite(t)

	store, err := s.Load()
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if len(store.Folders) != 3 {
		t.Errorf("expected the 3 reserved folders, got %d", len(store.Folders))
	}
	if len(store.Bookmarks) != 0 {
		t.Errorf("expected no bookmarks, got %d", len(store.Bookmarks))
	}

	version, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != 2 {
		t.Errorf("expected schema version 2, got %d", version)
	}
}

func TestSQLiteStorage_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "bookmarks.db")

	s, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store := model.NewStore()
	if _, err := store.AddBookmark(model.OtherID, "x", "https://x.test"); err != nil {
		t.Fatalf("AddBookmark: %v", err)
	}
	if err := s.Save(store); err != nil {
		t.Fatalf("save: %v", err)
	}
	s.Close()

	s, err = storage.NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	loaded, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.HasBookmarkURL("https://x.test") {
		t.Error("expected bookmark to survive reopen")
	}
	if len(loaded.Folders) != 3 {
		t.Errorf("migration re-seeded folders: got %d", len(loaded.Folders))
	}
}
