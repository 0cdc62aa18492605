package categorize

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/nikbrunner/bmsort/internal/ai"
	"github.com/nikbrunner/bmsort/internal/model"
)

const systemPrompt = "You are a bookmark organization assistant. You sort bookmarks into a clean, " +
	"multi-level folder hierarchy and always answer with a single JSON object."

// suggestedRoots is shown to the classifier when the user gave no hints.
var suggestedRoots = []string{
	"Development", "Learning", "News", "Social", "Shopping", "Entertainment",
	"Productivity", "Lifestyle", "Finance", "Design", OtherRoot,
}

type promptItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// BuildPrompt renders the classification request for one batch.
func BuildPrompt(batch []model.Bookmark, policy Policy) ai.Prompt {
	policy = policy.withDefaults()

	items := make([]promptItem, len(batch))
	for i, b := range batch {
		items[i] = promptItem{ID: b.ID, Title: b.Title, URL: b.URL}
	}
	// Marshaling plain strings cannot fail.
	itemsJSON, _ := json.Marshal(items)

	var sb strings.Builder
	sb.WriteString("Categorize the following bookmarks into a folder hierarchy.\n\n")

	if len(policy.Hints) > 0 {
		roots := HintRoots(policy.Hints)
		if !slices.Contains(roots, OtherRoot) {
			roots = append(roots, OtherRoot)
		}
		fmt.Fprintf(&sb, "Allowed top-level categories: %s.\n", strings.Join(roots, ", "))
		sb.WriteString("Preferred category paths:\n")
		for _, h := range policy.Hints {
			if p := model.NormalizePath(h); p != "" {
				fmt.Fprintf(&sb, "- %s\n", p)
			}
		}
		sb.WriteString("\nRules:\n")
		sb.WriteString("- Every path must start with one of the allowed top-level categories. Never introduce another top-level category.\n")
		fmt.Fprintf(&sb, "- Put bookmarks that fit none of them under %q.\n", OtherRoot)
	} else {
		fmt.Fprintf(&sb, "Suggested top-level categories (adapt them when useful): %s.\n", strings.Join(suggestedRoots, ", "))
		sb.WriteString("\nRules:\n")
		fmt.Fprintf(&sb, "- Use at most %d top-level categories.\n", policy.MaxRootCategories)
	}

	fmt.Fprintf(&sb, "- Paths have 2 to %d levels separated by \"/\", for example \"Development/Go/Tools\".\n", model.MaxPathDepth)
	sb.WriteString("- Each bookmark belongs to exactly one path.\n")
	sb.WriteString("- Merge categories with fewer than 3 bookmarks into their parent category.\n")
	fmt.Fprintf(&sb, "- Write category names in %s.\n", policy.Language)
	sb.WriteString("- Return only a JSON object mapping each path to an array of bookmark ids, with no other text.\n\n")
	sb.WriteString(`Example: {"Development/Go":["12","15"],"News/Tech":["3","7","9"]}`)
	sb.WriteString("\n\nBookmarks:\n")
	sb.Write(itemsJSON)

	return ai.Prompt{System: systemPrompt, User: sb.String()}
}

// HintRoots returns the distinct first segments of the hint paths.
func HintRoots(hints []string) []string {
	seen := make(map[string]bool)
	var roots []string
	for _, h := range hints {
		segments := model.SplitPath(h)
		if len(segments) == 0 || seen[segments[0]] {
			continue
		}
		seen[segments[0]] = true
		roots = append(roots, segments[0])
	}
	return roots
}
