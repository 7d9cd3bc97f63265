package pagerange

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		total int
		want  []int
	}{
		{"empty expression", "", 10, []int{}},
		{"whitespace only", "   ", 10, []int{}},
		{"only commas", ",,, ,", 10, []int{}},
		{"single page", "3", 5, []int{2}},
		{"unsorted singles", "3,1,2", 5, []int{0, 1, 2}},
		{"mixed ranges", "1-3,5,7-9", 10, []int{0, 1, 2, 4, 6, 7, 8}},
		{"overlapping ranges", "1-3,2-4", 10, []int{0, 1, 2, 3}},
		{"duplicate singles", "2,2,2", 5, []int{1}},
		{"descending range", "5-2", 10, []int{}},
		{"end clamped to total", "1-100", 5, []int{0, 1, 2, 3, 4}},
		{"start clamped to one", "0-2", 5, []int{0, 1}},
		{"open ended range selects start", "3-", 5, []int{2}},
		{"open ended beyond total", "7-", 5, []int{}},
		{"non numeric skipped", "abc,2", 5, []int{1}},
		{"trailing characters ignored", "3abc,1", 5, []int{0, 2}},
		{"decimal truncated", "2.5", 5, []int{1}},
		{"explicit plus sign", "+3", 5, []int{2}},
		{"single out of range high", "6", 5, []int{}},
		{"single zero", "0", 5, []int{}},
		{"negative single", "-3", 5, []int{}},
		{"range fully outside", "8-10", 5, []int{}},
		{"spaces around tokens and hyphen", " 1 - 2 , 4 ", 5, []int{0, 1, 3}},
		{"bad range end", "2-x,4", 5, []int{3}},
		{"zero total", "1-3,1", 0, []int{}},
		{"single page document", "1-1", 1, []int{0}},
		{"extra hyphen segment ignored", "1-2-3", 5, []int{0, 1}},
		{"empty second segment selects start", "3--1", 5, []int{2}},
		{"blank end segment", "1- -2", 5, []int{}},
		{"end overflowing int clamped", "1-99999999999999999999", 5, []int{0, 1, 2, 3, 4}},
		{"start overflowing int", "99999999999999999999-100000000000000000000", 5, []int{}},
		{"single overflowing int", "99999999999999999999", 5, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.expr, tt.total)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveProperties(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for i := range 200 {
		total := rng.IntN(30)
		expr := randomExpr(rng, total)

		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			pages := Resolve(expr, total)

			assert.True(t, slices.IsSorted(pages), "expr %q not sorted: %v", expr, pages)
			assert.Equal(t, len(pages), len(slices.Compact(slices.Clone(pages))), "expr %q has duplicates", expr)
			for _, p := range pages {
				assert.True(t, p >= 0 && p < total, "expr %q produced %d for total %d", expr, p, total)
			}

			assert.Equal(t, pages, Resolve(expr, total), "resolve must be deterministic")

			groups := GroupConsecutive(pages)
			assert.Equal(t, pages, Flatten(groups))
			for _, g := range groups {
				require.NotEmpty(t, g)
				for j := 1; j < len(g); j++ {
					assert.Equal(t, g[j-1]+1, g[j])
				}
			}
			for j := 1; j < len(groups); j++ {
				assert.Greater(t, groups[j].First(), groups[j-1].Last()+1, "groups must be maximal")
			}
		})
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"42", 42, true},
		{"  7", 7, true},
		{"7  ", 7, true},
		{"12px", 12, true},
		{"-4", -4, true},
		{"+4", 4, true},
		{"99999999999999999999", math.MaxInt, true},
		{"-99999999999999999999", -math.MaxInt, true},
		{"", 0, false},
		{"  ", 0, false},
		{"+", 0, false},
		{"x1", 0, false},
		{".5", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveIsIdempotentThroughLabels(t *testing.T) {
	pages := Resolve("9-12, 1-3, 5, 2", 20)
	canonical := Labels(GroupConsecutive(pages))

	assert.Equal(t, "1-3,5,9-12", canonical)
	assert.Equal(t, pages, Resolve(canonical, 20))
}

func TestResolveStrict(t *testing.T) {
	t.Run("valid expression has no error", func(t *testing.T) {
		pages, err := ResolveStrict("1-3,5", 10)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2, 4}, pages)
	})

	t.Run("reports every rejected token", func(t *testing.T) {
		pages, err := ResolveStrict("1,abc,5-2,20,2", 10)
		require.Error(t, err)

		var syntaxErr *SyntaxError
		require.True(t, errors.As(err, &syntaxErr))
		assert.Equal(t, []int{0, 1}, pages)

		tokens := make([]string, len(syntaxErr.Tokens))
		for i, tok := range syntaxErr.Tokens {
			tokens[i] = tok.Token
		}
		assert.Equal(t, []string{"abc", "5-2", "20"}, tokens)
		assert.Contains(t, err.Error(), `"abc" (not a number)`)
		assert.Contains(t, err.Error(), `"5-2" (descending range)`)
		assert.Contains(t, err.Error(), `"20" (out of range)`)
	})

	t.Run("selection matches lenient resolve", func(t *testing.T) {
		expr := "x,1-4,9,3-"
		strictPages, _ := ResolveStrict(expr, 8)
		assert.Equal(t, Resolve(expr, 8), strictPages)
	})
}

func TestResolveWithPolicy(t *testing.T) {
	pages, err := ResolveWithPolicy("1,zz", 3, Lenient)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, pages)

	_, err = ResolveWithPolicy("1,zz", 3, Strict)
	assert.Error(t, err)
}

func TestPolicyString(t *testing.T) {
	assert.Equal(t, "lenient", Lenient.String())
	assert.Equal(t, "strict", Strict.String())
	assert.Equal(t, "unknown", Policy(42).String())
}

func TestAll(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, All(3))
	assert.Empty(t, All(0))
	assert.Empty(t, All(-1))
}

func TestResolveConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				assert.Equal(t, []int{0, 1, 2, 4}, Resolve("1-3,5", 10))
			}
		}()
	}
	wg.Wait()
}

func randomExpr(rng *rand.Rand, total int) string {
	tokens := []string{}
	for range rng.IntN(6) {
		switch rng.IntN(5) {
		case 0:
			tokens = append(tokens, fmt.Sprintf("%d", rng.IntN(total+3)))
		case 1:
			a, b := rng.IntN(total+3), rng.IntN(total+3)
			tokens = append(tokens, fmt.Sprintf("%d-%d", a, b))
		case 2:
			tokens = append(tokens, fmt.Sprintf(" %d - %d ", rng.IntN(total+2), rng.IntN(total+40)))
		case 3:
			tokens = append(tokens, "junk")
		default:
			tokens = append(tokens, "")
		}
	}
	expr := ""
	for i, tok := range tokens {
		if i > 0 {
			expr += ","
		}
		expr += tok
	}
	return expr
}
