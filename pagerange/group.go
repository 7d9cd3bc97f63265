package pagerange

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Group is a maximal run of consecutive zero-based page indices.
type Group []int

// First returns the first page index of the group.
func (g Group) First() int { return g[0] }

// Last returns the last page index of the group.
func (g Group) Last() int { return g[len(g)-1] }

// Len returns the number of pages in the group.
func (g Group) Len() int { return len(g) }

// Pages returns a copy of the zero-based page indices.
func (g Group) Pages() []int {
	out := make([]int, len(g))
	copy(out, g)
	return out
}

// PageNumbers returns the one-based page numbers of the group.
func (g Group) PageNumbers() []int {
	out := make([]int, len(g))
	for i, p := range g {
		out[i] = p + 1
	}
	return out
}

// Label formats the group as a one-based range, e.g. "1-3" or "5".
func (g Group) Label() string {
	if len(g) == 0 {
		return ""
	}
	if len(g) == 1 {
		return fmt.Sprintf("%d", g.First()+1)
	}
	return fmt.Sprintf("%d-%d", g.First()+1, g.Last()+1)
}

// GroupConsecutive partitions an ascending, duplicate-free list of page
// indices into maximal runs where each element is exactly one greater than
// the previous. An empty input yields no groups.
func GroupConsecutive(pages []int) []Group {
	groups := make([]Group, 0)
	if len(pages) == 0 {
		return groups
	}

	current := Group{pages[0]}
	for _, p := range pages[1:] {
		if p == current.Last()+1 {
			current = append(current, p)
			continue
		}
		groups = append(groups, current)
		current = Group{p}
	}
	return append(groups, current)
}

// Flatten concatenates groups back into a single list of page indices.
func Flatten(groups []Group) []int {
	var n int
	for _, g := range groups {
		n += len(g)
	}
	out := make([]int, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Labels returns the one-based label of every group joined by commas. It is
// the canonical form of the expression the groups were resolved from.
func Labels(groups []Group) string {
	labels := make([]string, len(groups))
	for i, g := range groups {
		labels[i] = g.Label()
	}
	return strings.Join(labels, ",")
}

// ParseList interprets a page selection the way upload forms send it: the
// literal "all" (or an empty value), a JSON array of one-based page numbers,
// or a range expression. Entries outside the document are dropped. The
// result is ascending and duplicate-free.
func ParseList(raw string, totalPages int) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "all") {
		return All(totalPages), nil
	}

	if strings.HasPrefix(raw, "[") {
		var numbers []int
		if err := json.Unmarshal([]byte(raw), &numbers); err != nil {
			return nil, fmt.Errorf("pages must be \"all\" or an array of page numbers: %w", err)
		}
		set := make(map[int]struct{}, len(numbers))
		for _, n := range numbers {
			if n >= 1 && n <= totalPages {
				set[n-1] = struct{}{}
			}
		}
		return slices.Sorted(maps.Keys(set)), nil
	}

	return Resolve(raw, totalPages), nil
}
