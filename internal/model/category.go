package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PathSeparator joins the segments of a category path.
const PathSeparator = "/"

// MaxPathDepth is the deepest category path the classifier is asked for.
const MaxPathDepth = 3

// ErrNotObject is returned when a JSON document is not an object.
var ErrNotObject = errors.New("json value is not an object")

// SplitPath splits a category path into trimmed, non-empty segments.
func SplitPath(path string) []string {
	var segments []string
	for _, p := range strings.Split(path, PathSeparator) {
		if p = strings.TrimSpace(p); p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// NormalizePath rejoins the trimmed segments of path. It returns an empty
// string when path has no segments.
func NormalizePath(path string) string {
	return strings.Join(SplitPath(path), PathSeparator)
}

// RootSegment returns the text before the first separator.
func RootSegment(path string) string {
	root, _, _ := strings.Cut(path, PathSeparator)
	return root
}

// CategoryMap maps category paths to bookmarks. Paths keep the order in
// which they were first added.
type CategoryMap struct {
	paths []string
	items map[string][]Bookmark
}

// NewCategoryMap creates an empty CategoryMap.
func NewCategoryMap() *CategoryMap {
	return &CategoryMap{items: make(map[string][]Bookmark)}
}

// Append adds bookmarks under path, creating the entry if necessary.
func (m *CategoryMap) Append(path string, bookmarks ...Bookmark) {
	if m.items == nil {
		m.items = make(map[string][]Bookmark)
	}
	existing, ok := m.items[path]
	if !ok {
		m.paths = append(m.paths, path)
		existing = []Bookmark{}
	}
	m.items[path] = append(existing, bookmarks...)
}

// Merge appends every entry of other, in other's order.
func (m *CategoryMap) Merge(other *CategoryMap) {
	if other == nil {
		return
	}
	for _, p := range other.paths {
		m.Append(p, other.items[p]...)
	}
}

// Paths returns the paths in insertion order.
func (m *CategoryMap) Paths() []string {
	out := make([]string, len(m.paths))
	copy(out, m.paths)
	return out
}

// Get returns the bookmarks filed under path.
func (m *CategoryMap) Get(path string) []Bookmark {
	return m.items[path]
}

// Has reports whether path has an entry.
func (m *CategoryMap) Has(path string) bool {
	_, ok := m.items[path]
	return ok
}

// Len returns the number of paths.
func (m *CategoryMap) Len() int {
	return len(m.paths)
}

// Total returns the number of bookmarks across all paths.
func (m *CategoryMap) Total() int {
	total := 0
	for _, items := range m.items {
		total += len(items)
	}
	return total
}

// Roots returns the distinct root segments in first-seen order.
func (m *CategoryMap) Roots() []string {
	seen := make(map[string]bool)
	var roots []string
	for _, p := range m.paths {
		r := RootSegment(p)
		if !seen[r] {
			seen[r] = true
			roots = append(roots, r)
		}
	}
	return roots
}

// MarshalJSON encodes the map as an object whose keys keep insertion order.
func (m *CategoryMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range m.paths {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.items[p])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of path to bookmark list, keeping key order.
func (m *CategoryMap) UnmarshalJSON(data []byte) error {
	*m = CategoryMap{items: make(map[string][]Bookmark)}
	return ForEachField(data, func(key string, raw json.RawMessage) error {
		var items []Bookmark
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("category %q: %w", key, err)
		}
		m.Append(key, items...)
		return nil
	})
}

// ForEachField walks the members of a JSON object in document order.
// encoding/json maps lose key order, which the category tie-break relies on.
func ForEachField(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return ErrNotObject
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
