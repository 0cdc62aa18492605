package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nikbrunner/bmsort/internal/model"
)

const currentSchemaVersion = 2

// SQLiteStorage implements Storage and BookmarkStore using a SQLite database.
type SQLiteStorage struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewSQLiteStorage creates a new SQLiteStorage with the given database path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	s := &SQLiteStorage{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the schema version recorded in the database.
func (s *SQLiteStorage) SchemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	return version, err
}

// migrate runs database migrations.
func (s *SQLiteStorage) migrate() error {
	version, err := s.SchemaVersion()
	if err != nil {
		// Table doesn't exist or is empty, start fresh
		version = 0
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	if version < currentSchemaVersion {
		if err := s.migrateV2(); err != nil {
			return err
		}
	}

	return nil
}

// migrateV1 creates the initial schema.
func (s *SQLiteStorage) migrateV1() error {
	schema := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS folders (
			id TEXT PRIMARY KEY NOT NULL,
			title TEXT NOT NULL,
			parent_id TEXT,
			idx INTEGER NOT NULL DEFAULT 0,
			date_added TEXT NOT NULL,
			FOREIGN KEY (parent_id) REFERENCES folders(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_folders_parent_id ON folders(parent_id);

		CREATE TABLE IF NOT EXISTS bookmarks (
			id TEXT PRIMARY KEY NOT NULL,
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			parent_id TEXT NOT NULL,
			idx INTEGER NOT NULL DEFAULT 0,
			date_added TEXT NOT NULL,
			FOREIGN KEY (parent_id) REFERENCES folders(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_bookmarks_parent_id ON bookmarks(parent_id);
		CREATE INDEX IF NOT EXISTS idx_bookmarks_url ON bookmarks(url);

		INSERT OR REPLACE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// migrateV2 seeds the reserved root and top-level containers.
func (s *SQLiteStorage) migrateV2() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := seedReserved(tx); err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE schema_version SET version = 2"); err != nil {
		return err
	}
	return tx.Commit()
}

func seedReserved(tx *sql.Tx) error {
	now := formatTime(time.Now())
	_, err := tx.Exec(`
		INSERT OR IGNORE INTO folders (id, title, parent_id, idx, date_added) VALUES
			(?, '', NULL, 0, ?),
			(?, ?, ?, 0, ?),
			(?, ?, ?, 1, ?)
	`,
		model.RootID, now,
		model.BarID, model.BarTitle, model.RootID, now,
		model.OtherID, model.OtherTitle, model.RootID, now,
	)
	return err
}

// Load reads the store from the SQLite database.
func (s *SQLiteStorage) Load() (*model.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(context.Background())
}

func (s *SQLiteStorage) load(ctx context.Context) (*model.Store, error) {
	store := &model.Store{
		Folders:   []model.Folder{},
		Bookmarks: []model.Bookmark{},
	}

	// Load folders
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, parent_id, idx, date_added
		FROM folders
		ORDER BY idx
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var f model.Folder
		var parentID sql.NullString
		var dateAdded string

		if err := rows.Scan(&f.ID, &f.Title, &parentID, &f.Index, &dateAdded); err != nil {
			return nil, err
		}
		f.ParentID = parentID.String
		f.DateAdded = parseTime(dateAdded)

		store.Folders = append(store.Folders, f)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Load bookmarks
	rows, err = s.db.QueryContext(ctx, `
		SELECT id, title, url, parent_id, idx, date_added
		FROM bookmarks
		ORDER BY idx
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var b model.Bookmark
		var dateAdded string

		if err := rows.Scan(&b.ID, &b.Title, &b.URL, &b.ParentID, &b.Index, &dateAdded); err != nil {
			return nil, err
		}
		b.DateAdded = parseTime(dateAdded)

		store.Bookmarks = append(store.Bookmarks, b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return store, nil
}

// Save writes the store to the SQLite database.
// Uses a transaction for atomicity - all or nothing.
func (s *SQLiteStorage) Save(store *model.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Folders may reference parents that haven't been inserted yet.
	// PRAGMA foreign_keys cannot be changed inside a transaction.
	if _, err := s.db.Exec("PRAGMA foreign_keys = OFF"); err != nil {
		return err
	}
	defer s.db.Exec("PRAGMA foreign_keys = ON")

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM bookmarks"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM folders"); err != nil {
		return err
	}

	folderStmt, err := tx.Prepare(`
		INSERT INTO folders (id, title, parent_id, idx, date_added)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer folderStmt.Close()

	for _, f := range store.Folders {
		var parentID any
		if f.ParentID != "" {
			parentID = f.ParentID
		}
		if _, err := folderStmt.Exec(f.ID, f.Title, parentID, f.Index, formatTime(f.DateAdded)); err != nil {
			return err
		}
	}

	bookmarkStmt, err := tx.Prepare(`
		INSERT INTO bookmarks (id, title, url, parent_id, idx, date_added)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer bookmarkStmt.Close()

	for _, b := range store.Bookmarks {
		if _, err := bookmarkStmt.Exec(b.ID, b.Title, b.URL, b.ParentID, b.Index, formatTime(b.DateAdded)); err != nil {
			return err
		}
	}

	if err := seedReserved(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// Tree returns a snapshot of the whole tree.
func (s *SQLiteStorage) Tree(ctx context.Context) (*model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	store, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return store.Tree(), nil
}

// Children returns the direct children of parentID in order.
func (s *SQLiteStorage) Children(ctx context.Context, parentID string) ([]*model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.folderExists(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, '' AS url, parent_id, idx, date_added FROM folders WHERE parent_id = ?
		UNION ALL
		SELECT id, title, url, parent_id, idx, date_added FROM bookmarks WHERE parent_id = ?
		ORDER BY idx
	`, parentID, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nodes := []*model.Node{}
	for rows.Next() {
		var id, title, url, parent, dateAdded string
		var idx int
		if err := rows.Scan(&id, &title, &url, &parent, &idx, &dateAdded); err != nil {
			return nil, err
		}
		if url == "" {
			nodes = append(nodes, model.NodeFromFolder(model.Folder{
				ID: id, Title: title, ParentID: parent, Index: idx, DateAdded: parseTime(dateAdded),
			}))
			continue
		}
		nodes = append(nodes, model.NodeFromBookmark(model.Bookmark{
			ID: id, Title: title, URL: url, ParentID: parent, Index: idx, DateAdded: parseTime(dateAdded),
		}))
	}
	return nodes, rows.Err()
}

// Move re-parents id under parentID, appending it to the end.
func (s *SQLiteStorage) Move(ctx context.Context, id, parentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if model.IsReserved(id) {
		return mutationErr("move", id, ErrReserved)
	}
	if parentID == model.RootID {
		return mutationErr("move", id, model.ErrInvalidParent)
	}
	ok, err := s.folderExists(ctx, parentID)
	if err != nil {
		return mutationErr("move", id, err)
	}
	if !ok {
		return mutationErr("move", id, model.ErrInvalidParent)
	}
	next, err := s.nextIndex(ctx, parentID)
	if err != nil {
		return mutationErr("move", id, err)
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE bookmarks SET parent_id = ?, idx = ? WHERE id = ?", parentID, next, id)
	if err != nil {
		return mutationErr("move", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	// Refuse to move a folder underneath itself.
	var cycles int
	err = s.db.QueryRowContext(ctx, `
		WITH RECURSIVE ancestors(id, parent_id) AS (
			SELECT id, parent_id FROM folders WHERE id = ?
			UNION ALL
			SELECT f.id, f.parent_id FROM folders f JOIN ancestors a ON f.id = a.parent_id
		)
		SELECT COUNT(*) FROM ancestors WHERE id = ?
	`, parentID, id).Scan(&cycles)
	if err != nil {
		return mutationErr("move", id, err)
	}
	if cycles > 0 {
		return mutationErr("move", id, model.ErrInvalidParent)
	}

	res, err = s.db.ExecContext(ctx,
		"UPDATE folders SET parent_id = ?, idx = ? WHERE id = ?", parentID, next, id)
	if err != nil {
		return mutationErr("move", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mutationErr("move", id, ErrNotFound)
	}
	return nil
}

// Create adds a bookmark under parentID, or a folder when url is empty.
func (s *SQLiteStorage) Create(ctx context.Context, parentID, title, url string) (*model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if parentID == model.RootID {
		return nil, mutationErr("create", parentID, ErrReserved)
	}
	ok, err := s.folderExists(ctx, parentID)
	if err != nil {
		return nil, mutationErr("create", parentID, err)
	}
	if !ok {
		return nil, mutationErr("create", parentID, model.ErrInvalidParent)
	}
	next, err := s.nextIndex(ctx, parentID)
	if err != nil {
		return nil, mutationErr("create", parentID, err)
	}

	if url == "" {
		f := model.NewFolder(model.NewFolderParams{Title: title, ParentID: parentID})
		f.Index = next
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO folders (id, title, parent_id, idx, date_added) VALUES (?, ?, ?, ?, ?)
		`, f.ID, f.Title, f.ParentID, f.Index, formatTime(f.DateAdded))
		if err != nil {
			return nil, mutationErr("create", parentID, err)
		}
		return model.NodeFromFolder(f), nil
	}

	b := model.NewBookmark(model.NewBookmarkParams{Title: title, URL: url, ParentID: parentID})
	b.Index = next
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (id, title, url, parent_id, idx, date_added) VALUES (?, ?, ?, ?, ?, ?)
	`, b.ID, b.Title, b.URL, b.ParentID, b.Index, formatTime(b.DateAdded))
	if err != nil {
		return nil, mutationErr("create", parentID, err)
	}
	return model.NodeFromBookmark(b), nil
}

// Remove deletes a bookmark or an empty folder.
func (s *SQLiteStorage) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if model.IsReserved(id) {
		return mutationErr("remove", id, ErrReserved)
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM bookmarks WHERE id = ?", id)
	if err != nil {
		return mutationErr("remove", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	ok, err := s.folderExists(ctx, id)
	if err != nil {
		return mutationErr("remove", id, err)
	}
	if !ok {
		return mutationErr("remove", id, ErrNotFound)
	}
	var children int
	err = s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM folders WHERE parent_id = ?) +
		       (SELECT COUNT(*) FROM bookmarks WHERE parent_id = ?)
	`, id, id).Scan(&children)
	if err != nil {
		return mutationErr("remove", id, err)
	}
	if children > 0 {
		return mutationErr("remove", id, model.ErrNotEmpty)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM folders WHERE id = ?", id); err != nil {
		return mutationErr("remove", id, err)
	}
	return nil
}

// RemoveTree deletes a folder and everything under it.
func (s *SQLiteStorage) RemoveTree(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if model.IsReserved(id) {
		return mutationErr("remove tree", id, ErrReserved)
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM bookmarks WHERE id = ?", id)
	if err != nil {
		return mutationErr("remove tree", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mutationErr("remove tree", id, err)
	}
	defer tx.Rollback()

	const subtree = `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM folders WHERE id = ?
			UNION ALL
			SELECT f.id FROM folders f JOIN subtree s ON f.parent_id = s.id
		)
	`
	if _, err := tx.ExecContext(ctx, subtree+"DELETE FROM bookmarks WHERE parent_id IN subtree", id); err != nil {
		return mutationErr("remove tree", id, err)
	}
	res, err = tx.ExecContext(ctx, subtree+"DELETE FROM folders WHERE id IN subtree", id)
	if err != nil {
		return mutationErr("remove tree", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mutationErr("remove tree", id, ErrNotFound)
	}
	return mutationErr("remove tree", id, tx.Commit())
}

// Search returns every bookmark whose URL equals url.
func (s *SQLiteStorage) Search(ctx context.Context, url string) ([]*model.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, url, parent_id, idx, date_added FROM bookmarks WHERE url = ?
	`, url)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Node
	for rows.Next() {
		var b model.Bookmark
		var dateAdded string
		if err := rows.Scan(&b.ID, &b.Title, &b.URL, &b.ParentID, &b.Index, &dateAdded); err != nil {
			return nil, err
		}
		b.DateAdded = parseTime(dateAdded)
		out = append(out, model.NodeFromBookmark(b))
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) folderExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM folders WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStorage) nextIndex(ctx context.Context, parentID string) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(idx) + 1, 0) FROM (
			SELECT idx FROM folders WHERE parent_id = ?
			UNION ALL
			SELECT idx FROM bookmarks WHERE parent_id = ?
		)
	`, parentID, parentID).Scan(&next)
	return next, err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// DefaultSQLitePath returns the default SQLite database path: ~/.config/bmsort/bookmarks.db
func DefaultSQLitePath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "bmsort", "bookmarks.db"), nil
}
