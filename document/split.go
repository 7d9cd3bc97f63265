package document

import (
	"io"
	"slices"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joeychilson/pdfworks/pagerange"
)

// Extract returns a single document with the given zero-based pages in
// ascending order. Out-of-range indices are ignored.
func Extract(rs io.ReadSeeker, pages []int) ([]byte, error) {
	ctx, err := load(rs)
	if err != nil {
		return nil, err
	}

	numbers := make([]int, 0, len(pages))
	for _, p := range pages {
		if p >= 0 && p < ctx.PageCount {
			numbers = append(numbers, p+1)
		}
	}
	slices.Sort(numbers)
	return extract(ctx, slices.Compact(numbers))
}

// SplitEvery cuts the document into consecutive chunks of pagesPerSplit
// pages. The final chunk may be shorter. Values below one are treated as one.
func SplitEvery(rs io.ReadSeeker, pagesPerSplit int) ([]Part, error) {
	ctx, err := load(rs)
	if err != nil {
		return nil, err
	}
	if ctx.PageCount == 0 {
		return nil, ErrNoPages
	}

	pagesPerSplit = max(pagesPerSplit, 1)

	var groups []pagerange.Group
	for start := 0; start < ctx.PageCount; start += pagesPerSplit {
		end := min(start+pagesPerSplit, ctx.PageCount)
		group := make(pagerange.Group, 0, end-start)
		for p := start; p < end; p++ {
			group = append(group, p)
		}
		groups = append(groups, group)
	}

	return splitGroups(ctx, groups)
}

// SplitByRanges resolves expr against the document and writes one document
// per run of consecutive selected pages. It returns ErrNoPages when the
// expression selects nothing.
func SplitByRanges(rs io.ReadSeeker, expr string) ([]Part, error) {
	return SplitByRangesWithPolicy(rs, expr, pagerange.Lenient)
}

// SplitByRangesWithPolicy is SplitByRanges with an explicit policy for
// malformed tokens.
func SplitByRangesWithPolicy(rs io.ReadSeeker, expr string, policy pagerange.Policy) ([]Part, error) {
	ctx, err := load(rs)
	if err != nil {
		return nil, err
	}

	pages, err := pagerange.ResolveWithPolicy(expr, ctx.PageCount, policy)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}

	return splitGroups(ctx, pagerange.GroupConsecutive(pages))
}

func splitGroups(ctx *model.Context, groups []pagerange.Group) ([]Part, error) {
	parts := make([]Part, 0, len(groups))
	for i, g := range groups {
		data, err := extract(ctx, g.PageNumbers())
		if err != nil {
			return nil, err
		}
		parts = append(parts, Part{
			Index: i,
			Pages: g.Pages(),
			Label: g.Label(),
			Data:  data,
		})
	}
	return parts, nil
}
