package categorize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nikbrunner/bmsort/internal/model"
)

// ParseResponse decodes a classifier reply into a category map. Ids are
// resolved against batch only; unknown ids are dropped and an id claimed by
// several paths stays with the first one. Paths left without items are
// omitted.
func ParseResponse(raw string, batch []model.Bookmark) (*model.CategoryMap, error) {
	obj := ExtractObject(raw)
	if obj == "" {
		return nil, fmt.Errorf("%w: no JSON object found", ErrParse)
	}

	index := make(map[string]model.Bookmark, len(batch))
	for _, b := range batch {
		index[b.ID] = b
	}
	claimed := make(map[string]bool)

	cm := model.NewCategoryMap()
	err := model.ForEachField([]byte(obj), func(key string, value json.RawMessage) error {
		path := model.NormalizePath(key)
		if path == "" {
			return fmt.Errorf("%w: empty category path %q", ErrParse, key)
		}
		ids, err := decodeIDs(value)
		if err != nil {
			return fmt.Errorf("%w: category %q: %v", ErrParse, key, err)
		}
		var items []model.Bookmark
		for _, id := range ids {
			b, ok := index[id]
			if !ok || claimed[id] {
				continue
			}
			claimed[id] = true
			items = append(items, b)
		}
		if len(items) > 0 {
			cm.Append(path, items...)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrParse) {
			err = fmt.Errorf("%w: %v", ErrParse, err)
		}
		return nil, err
	}
	return cm, nil
}

var errNotIDArray = errors.New("expected an array of ids")

// decodeIDs accepts an array whose elements are strings or numbers.
func decodeIDs(value json.RawMessage) ([]string, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(value, &elems); err != nil || elems == nil {
		return nil, errNotIDArray
	}
	ids := make([]string, 0, len(elems))
	for _, e := range elems {
		if bytes.Equal(bytes.TrimSpace(e), []byte("null")) {
			return nil, errors.New("id is null")
		}
		var s string
		if err := json.Unmarshal(e, &s); err == nil {
			ids = append(ids, s)
			continue
		}
		var n json.Number
		dec := json.NewDecoder(bytes.NewReader(e))
		dec.UseNumber()
		if err := dec.Decode(&n); err == nil {
			ids = append(ids, n.String())
			continue
		}
		return nil, fmt.Errorf("id %s is neither a string nor a number", string(e))
	}
	return ids, nil
}

// ExtractObject returns the first balanced JSON object in s, honoring string
// literals. When the braces never balance it falls back to the span from
// the first '{' to the last '}'. It returns "" when s has no object.
func ExtractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	end := strings.LastIndexByte(s, '}')
	if end <= start {
		return ""
	}
	return s[start : end+1]
}
