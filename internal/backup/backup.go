// Package backup serializes bookmark trees to a portable JSON document and
// restores them into a live store.
package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nikbrunner/bmsort/internal/model"
)

// Version is written to every document.
const Version = "1.0"

// ErrInvalidBackup is returned when a document has no bookmark list.
var ErrInvalidBackup = errors.New("invalid backup format")

// Document is the backup file.
type Document struct {
	Version    string `json:"version"`
	ExportDate string `json:"exportDate"`
	Bookmarks  []Node `json:"bookmarks"`
}

// Node is a bookmark (URL set) or a folder (URL empty). DateAdded is in Unix
// milliseconds.
type Node struct {
	Title     string `json:"title"`
	DateAdded int64  `json:"dateAdded,omitempty"`
	URL       string `json:"url,omitempty"`
	Children  []Node `json:"children,omitempty"`
}

// IsFolder reports whether n is a folder.
func (n Node) IsFolder() bool { return n.URL == "" }

// MarshalJSON writes url for bookmarks and children for folders, never both.
func (n Node) MarshalJSON() ([]byte, error) {
	if !n.IsFolder() {
		return json.Marshal(struct {
			Title     string `json:"title"`
			DateAdded int64  `json:"dateAdded,omitempty"`
			URL       string `json:"url"`
		}{n.Title, n.DateAdded, n.URL})
	}
	children := n.Children
	if children == nil {
		children = []Node{}
	}
	return json.Marshal(struct {
		Title     string `json:"title"`
		DateAdded int64  `json:"dateAdded,omitempty"`
		Children  []Node `json:"children"`
	}{n.Title, n.DateAdded, children})
}

// Serialize copies the whole tree under root, reserved containers included.
// The root itself becomes the single top-level wrapper.
func Serialize(root *model.Node, now time.Time) Document {
	doc := Document{
		Version:    Version,
		ExportDate: now.UTC().Format("2006-01-02T15:04:05.000Z"),
		Bookmarks:  []Node{},
	}
	if root != nil {
		doc.Bookmarks = append(doc.Bookmarks, fromModel(root))
	}
	return doc
}

func fromModel(n *model.Node) Node {
	out := Node{Title: n.Title, URL: n.URL}
	if !n.DateAdded.IsZero() {
		out.DateAdded = n.DateAdded.UnixMilli()
	}
	if n.IsFolder() {
		out.Children = make([]Node, 0, len(n.Children))
		for _, c := range n.Children {
			out.Children = append(out.Children, fromModel(c))
		}
	}
	return out
}

// Encode writes doc as indented JSON.
func Encode(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Decode reads a document. The bookmark list is taken from "bookmarks", or
// from "tree" for documents written by older exporters, and must be an array.
func Decode(r io.Reader) (Document, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrInvalidBackup, err)
	}

	list, ok := raw["bookmarks"]
	if !ok {
		list, ok = raw["tree"]
	}
	list = bytes.TrimSpace(list)
	if !ok || len(list) == 0 || list[0] != '[' {
		return Document{}, fmt.Errorf("%w: bookmarks must be a list", ErrInvalidBackup)
	}

	var doc Document
	if err := json.Unmarshal(list, &doc.Bookmarks); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrInvalidBackup, err)
	}
	if v, ok := raw["version"]; ok {
		_ = json.Unmarshal(v, &doc.Version)
	}
	if d, ok := raw["exportDate"]; ok {
		_ = json.Unmarshal(d, &doc.ExportDate)
	}
	return doc, nil
}

// DefaultPath returns ~/Downloads/bookmarks-backup-YYYY-MM-DD.json.
func DefaultPath(now time.Time) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("bookmarks-backup-%s.json", now.Format("2006-01-02"))
	return filepath.Join(home, "Downloads", filename), nil
}
