package search

import (
	"github.com/sahilm/fuzzy"

	"github.com/nikbrunner/bmsort/internal/tree"
)

// Result represents a fuzzy folder match.
type Result struct {
	Folder         tree.FolderRecord
	MatchedIndexes []int // byte offsets into Folder.Path
	Score          int
}

// folderPaths implements fuzzy.Source over folder paths.
type folderPaths []tree.FolderRecord

func (fp folderPaths) String(i int) string {
	return fp[i].Path
}

func (fp folderPaths) Len() int {
	return len(fp)
}

// Folders searches folders by path using fuzzy matching.
// Returns results sorted by match score (best first). An empty query returns
// every folder in its original order.
func Folders(folders []tree.FolderRecord, query string) []Result {
	if query == "" {
		results := make([]Result, len(folders))
		for i, f := range folders {
			results[i] = Result{Folder: f}
		}
		return results
	}

	matches := fuzzy.FindFrom(query, folderPaths(folders))

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{
			Folder:         folders[m.Index],
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		}
	}
	return results
}
