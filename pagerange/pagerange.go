// Package pagerange turns user-supplied page range expressions such as
// "1-5,7,9-12" into sorted, duplicate-free page selections and splits those
// selections into runs of consecutive pages.
//
// Page numbers in expressions are one-based. Every value returned by this
// package is a zero-based page index unless the function name says otherwise.
package pagerange

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode"
)

// Policy controls what happens to tokens that cannot be interpreted.
type Policy int

const (
	// Lenient drops malformed or unsatisfiable tokens and keeps going.
	Lenient Policy = iota
	// Strict collects every rejected token and reports them as a *SyntaxError.
	Strict
)

// String returns the string representation of the policy.
func (p Policy) String() string {
	switch p {
	case Lenient:
		return "lenient"
	case Strict:
		return "strict"
	default:
		return "unknown"
	}
}

// SyntaxError lists the tokens a strict resolve rejected.
type SyntaxError struct {
	Expr   string
	Tokens []RejectedToken
}

// RejectedToken is a single token that did not select any page.
type RejectedToken struct {
	Token  string
	Reason string
}

func (e *SyntaxError) Error() string {
	parts := make([]string, 0, len(e.Tokens))
	for _, t := range e.Tokens {
		parts = append(parts, fmt.Sprintf("%q (%s)", t.Token, t.Reason))
	}
	return fmt.Sprintf("invalid page range %q: %s", e.Expr, strings.Join(parts, ", "))
}

// Resolve converts expr into the ascending, duplicate-free list of zero-based
// page indices it selects within a document of totalPages pages.
//
// Numbers are read from the leading digits of each part, so "3abc" selects
// page 3. Tokens with no digits, descending ranges and tokens entirely
// outside the document are skipped. Resolve never fails and returns
// an empty slice when nothing is selected.
func Resolve(expr string, totalPages int) []int {
	pages, _ := resolve(expr, totalPages, Lenient)
	return pages
}

// ResolveStrict behaves like Resolve but returns a *SyntaxError naming every
// token that was rejected. The pages selected by the valid tokens are
// returned alongside the error.
func ResolveStrict(expr string, totalPages int) ([]int, error) {
	return resolve(expr, totalPages, Strict)
}

// ResolveWithPolicy dispatches to Resolve or ResolveStrict.
func ResolveWithPolicy(expr string, totalPages int, policy Policy) ([]int, error) {
	return resolve(expr, totalPages, policy)
}

func resolve(expr string, totalPages int, policy Policy) ([]int, error) {
	set := make(map[int]struct{})
	var rejected []RejectedToken

	for _, raw := range strings.Split(expr, ",") {
		token := strings.TrimSpace(raw)
		if token == "" {
			continue
		}

		var reason string
		if strings.Contains(token, "-") {
			reason = addRange(set, token, totalPages)
		} else {
			reason = addSingle(set, token, totalPages)
		}

		if reason != "" {
			rejected = append(rejected, RejectedToken{Token: token, Reason: reason})
		}
	}

	pages := make([]int, 0, len(set))
	for p := range set {
		pages = append(pages, p)
	}
	slices.Sort(pages)

	if policy == Strict && len(rejected) > 0 {
		return pages, &SyntaxError{Expr: expr, Tokens: rejected}
	}
	return pages, nil
}

// addRange handles a "start-end" token. Only the first two hyphen-separated
// segments count, and an empty end ("5-") selects start only. The returned
// reason is empty when the token was accepted.
func addRange(set map[int]struct{}, token string, totalPages int) string {
	segments := strings.Split(token, "-")
	startStr, endStr := segments[0], segments[1]

	start, ok := parseNumber(startStr)
	if !ok {
		return "bad start"
	}
	start = max(start, 1)

	end := start
	if endStr != "" {
		end, ok = parseNumber(endStr)
		if !ok {
			return "bad end"
		}
	}
	end = min(end, totalPages)

	if start > end {
		if start > totalPages {
			return "out of range"
		}
		return "descending range"
	}

	for i := start; i <= end; i++ {
		set[i-1] = struct{}{}
	}
	return ""
}

func addSingle(set map[int]struct{}, token string, totalPages int) string {
	n, ok := parseNumber(token)
	if !ok {
		return "not a number"
	}
	if n < 1 || n > totalPages {
		return "out of range"
	}
	set[n-1] = struct{}{}
	return ""
}

// parseNumber reads the optionally signed decimal prefix of s after leading
// whitespace, so "3abc" is 3 and "2.5" is 2. Values beyond the int range
// saturate. It fails only when no digit follows the sign.
func parseNumber(s string) (int, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)

	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	n, digits := 0, 0
	for ; digits < len(s) && s[digits] >= '0' && s[digits] <= '9'; digits++ {
		d := int(s[digits] - '0')
		if n > (math.MaxInt-d)/10 {
			n = math.MaxInt
			continue
		}
		n = n*10 + d
	}
	if digits == 0 {
		return 0, false
	}
	if neg {
		return -n, true
	}
	return n, true
}

// All returns every page index of a document with totalPages pages.
func All(totalPages int) []int {
	pages := make([]int, 0, max(totalPages, 0))
	for i := range totalPages {
		pages = append(pages, i)
	}
	return pages
}
