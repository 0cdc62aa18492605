package categorize

import (
	"sort"

	"github.com/nikbrunner/bmsort/internal/model"
)

// CapRoots bounds the number of distinct root segments to max. Roots are
// ranked by how many distinct paths they hold, ties going to the root seen
// first. The top max-1 roots are kept and every other path is re-homed under
// OtherRoot with its sub-structure intact.
func CapRoots(cm *model.CategoryMap, max int) *model.CategoryMap {
	if max < 1 {
		max = 1
	}
	roots := cm.Roots()
	if len(roots) <= max {
		return cm
	}

	pathCount := make(map[string]int, len(roots))
	for _, p := range cm.Paths() {
		pathCount[model.RootSegment(p)]++
	}
	ranked := append([]string(nil), roots...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return pathCount[ranked[i]] > pathCount[ranked[j]]
	})

	keep := make(map[string]bool, max)
	for _, r := range ranked[:max-1] {
		keep[r] = true
	}
	return rehome(cm, keep)
}

// ConfineRoots re-homes under OtherRoot every path whose root is not in
// allowed. OtherRoot itself is always allowed.
func ConfineRoots(cm *model.CategoryMap, allowed []string) *model.CategoryMap {
	keep := make(map[string]bool, len(allowed))
	for _, r := range allowed {
		keep[r] = true
	}
	for _, r := range cm.Roots() {
		if !keep[r] && r != OtherRoot {
			return rehome(cm, keep)
		}
	}
	return cm
}

// rehome prefixes non-kept paths with OtherRoot. Paths already under
// OtherRoot stay put, so no "Other/Other" path is ever produced.
func rehome(cm *model.CategoryMap, keep map[string]bool) *model.CategoryMap {
	out := model.NewCategoryMap()
	for _, p := range cm.Paths() {
		root := model.RootSegment(p)
		if keep[root] || root == OtherRoot {
			out.Append(p, cm.Get(p)...)
			continue
		}
		out.Append(OtherRoot+model.PathSeparator+p, cm.Get(p)...)
	}
	return out
}
