package categorize_test

import (
	"fmt"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/nikbrunner/bmsort/internal/categorize"
	"github.com/nikbrunner/bmsort/internal/model"
)

func bm(id string) model.Bookmark { return model.Bookmark{ID: id} }

func TestCapRoots_Overflow(t *testing.T) {
	cm := model.NewCategoryMap()
	cm.Append("A/x", bm("b1"), bm("b2"))
	cm.Append("B/y", bm("b3"))
	cm.Append("C/z", bm("b4"))

	got := categorize.CapRoots(cm, 2)

	assert.DeepEqual(t, got.Paths(), []string{"A/x", "Other/B/y", "Other/C/z"})
	assert.DeepEqual(t, ids(got.Get("A/x")), []string{"b1", "b2"})
	assert.DeepEqual(t, ids(got.Get("Other/B/y")), []string{"b3"})
	assert.DeepEqual(t, ids(got.Get("Other/C/z")), []string{"b4"})
	assert.DeepEqual(t, got.Roots(), []string{"A", "Other"})
}

func TestCapRoots_RanksByPathCount(t *testing.T) {
	cm := model.NewCategoryMap()
	cm.Append("A/x", bm("1"), bm("2"), bm("3"))
	cm.Append("B/y", bm("4"))
	cm.Append("B/z", bm("5"))
	cm.Append("C/w", bm("6"))
	cm.Append("Other/q", bm("7"))

	got := categorize.CapRoots(cm, 3)

	// B holds two paths and ranks first despite fewer bookmarks; A wins the
	// tie against C and Other by order of appearance.
	assert.DeepEqual(t, got.Roots(), []string{"A", "B", "Other"})
	assert.Check(t, got.Has("Other/C/w"))
	assert.Check(t, got.Has("Other/q"), "paths already under Other stay as they are")
	assert.Equal(t, got.Total(), 7)
}

func TestCapRoots_MergesIntoExistingOtherPath(t *testing.T) {
	cm := model.NewCategoryMap()
	cm.Append("Other/B/y", bm("1"))
	cm.Append("A/x", bm("2"))
	cm.Append("A/z", bm("3"))
	cm.Append("B/y", bm("4"))

	got := categorize.CapRoots(cm, 2)

	assert.DeepEqual(t, ids(got.Get("Other/B/y")), []string{"1", "4"})
}

func TestRehome_NeverNestsOther(t *testing.T) {
	cm := model.NewCategoryMap()
	cm.Append("Other", bm("1"))
	cm.Append("Other/Misc", bm("2"))
	cm.Append("Travel/Japan", bm("3"))
	cm.Append("Work", bm("4"))

	capped := categorize.CapRoots(cm, 2)
	confined := categorize.ConfineRoots(cm, []string{"Work"})

	for _, got := range []*model.CategoryMap{capped, confined} {
		assert.Check(t, got.Has("Other"))
		assert.Check(t, got.Has("Other/Misc"))
		assert.Check(t, got.Has("Other/Travel/Japan"))
		for _, p := range got.Paths() {
			assert.Check(t, !strings.HasPrefix(p, "Other/Other"), p)
		}
		assert.Equal(t, got.Total(), 4)
	}
}

func TestCapRoots_UnderLimitUnchanged(t *testing.T) {
	cm := model.NewCategoryMap()
	cm.Append("A/x", bm("1"))
	cm.Append("B/y", bm("2"))

	assert.Equal(t, categorize.CapRoots(cm, 2), cm)
}

func TestCapRoots_Bound(t *testing.T) {
	cm := model.NewCategoryMap()
	for i := 0; i < 40; i++ {
		cm.Append(fmt.Sprintf("R%d/sub%d", i%13, i), bm(fmt.Sprint(i)))
	}

	for n := 1; n <= 15; n++ {
		got := categorize.CapRoots(cm, n)
		assert.Assert(t, len(got.Roots()) <= n, "max %d produced roots %v", n, got.Roots())
		assert.Equal(t, got.Total(), 40)
	}
}

func TestConfineRoots(t *testing.T) {
	cm := model.NewCategoryMap()
	cm.Append("Work/a", bm("1"))
	cm.Append("Play/b", bm("2"))

	got := categorize.ConfineRoots(cm, []string{"Work"})
	assert.DeepEqual(t, got.Paths(), []string{"Work/a", "Other/Play/b"})

	same := categorize.ConfineRoots(cm, []string{"Work", "Play"})
	assert.Equal(t, same, cm)
}

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":["1"]}`, `{"a":["1"]}`},
		{"prose around", `Here: {"a":["1"]} Hope it helps {:}`, `{"a":["1"]}`},
		{"braces in strings", `{"a}{":["1"],"b":["\"}"]}`, `{"a}{":["1"],"b":["\"}"]}`},
		{"nested", `x {"a":{"b":1}} y`, `{"a":{"b":1}}`},
		{"unbalanced", `{"a":["1"] } }`, `{"a":["1"] }`},
		{"unterminated", `{"a":["1"]`, ``},
		{"none", `no json here`, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, categorize.ExtractObject(tt.in), tt.want)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	batch := []model.Bookmark{{ID: "7", Title: "Go", URL: "https://go.dev", ParentID: model.BarID}}

	p := categorize.BuildPrompt(batch, categorize.Policy{MaxRootCategories: 7})
	assert.Check(t, p.System != "")
	assert.Check(t, is.Contains(p.User, "Use at most 7 top-level categories."))
	assert.Check(t, is.Contains(p.User, "Development"))
	assert.Check(t, is.Contains(p.User, `[{"id":"7","title":"Go","url":"https://go.dev"}]`))
	assert.Check(t, !strings.Contains(p.User, "parentId"), "only id, title and url are sent")

	p = categorize.BuildPrompt(batch, categorize.Policy{MaxRootCategories: 7, Hints: []string{"Other/Misc", "Tech"}})
	assert.Check(t, is.Contains(p.User, "Allowed top-level categories: Other, Tech."))
	assert.Check(t, !strings.Contains(p.User, "Use at most"))
}

func TestHintRoots(t *testing.T) {
	got := categorize.HintRoots([]string{"Work/Projects", " Work / Admin", "", "Home"})
	assert.DeepEqual(t, got, []string{"Work", "Home"})
}

func TestTokenBudget(t *testing.T) {
	assert.Equal(t, categorize.TokenBudget(1), 1000)
	assert.Equal(t, categorize.TokenBudget(50), 2000)
}
