package model

import (
	"time"

	"github.com/google/uuid"
)

// Reserved node IDs. The root and its two permanent containers always exist
// and are never created, renamed, moved or removed.
const (
	RootID  = "0"
	BarID   = "1" // default container
	OtherID = "2"
)

// Titles of the reserved containers.
const (
	BarTitle   = "Bookmarks Bar"
	OtherTitle = "Other Bookmarks"
)

// IsReserved reports whether id is one of the three reserved node IDs.
func IsReserved(id string) bool {
	return id == RootID || id == BarID || id == OtherID
}

// Bookmark is a saved URL. Values handed out by a snapshot are read-only
// projections; the live store is the only source of truth.
type Bookmark struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	ParentID  string    `json:"parentId"`
	Index     int       `json:"index"`
	DateAdded time.Time `json:"dateAdded"`
}

// Folder is a container for bookmarks and other folders.
type Folder struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ParentID  string    `json:"parentId"` // empty only for the root
	Index     int       `json:"index"`
	DateAdded time.Time `json:"dateAdded"`
}

// NewBookmarkParams holds parameters for creating a new Bookmark.
type NewBookmarkParams struct {
	Title    string
	URL      string
	ParentID string
}

// NewBookmark creates a Bookmark with a generated ID and timestamp.
func NewBookmark(params NewBookmarkParams) Bookmark {
	return Bookmark{
		ID:        GenerateID(),
		Title:     params.Title,
		URL:       params.URL,
		ParentID:  params.ParentID,
		DateAdded: time.Now(),
	}
}

// NewFolderParams holds parameters for creating a new Folder.
type NewFolderParams struct {
	Title    string
	ParentID string
}

// NewFolder creates a Folder with a generated ID and timestamp.
func NewFolder(params NewFolderParams) Folder {
	return Folder{
		ID:        GenerateID(),
		Title:     params.Title,
		ParentID:  params.ParentID,
		DateAdded: time.Now(),
	}
}

// GenerateID creates a new store-assigned node ID.
func GenerateID() string {
	return uuid.New().String()
}
