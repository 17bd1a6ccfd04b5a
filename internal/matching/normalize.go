package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// NormalizeCaseNumber folds width variants, drops whitespace and restores the
// full-width parentheses used by the court numbering convention, so that
// "(2024)粤0106民初12345号" and "（2024）粤 0106 民初 12345 号" compare equal.
func NormalizeCaseNumber(raw string) string {
	folded := width.Fold.String(raw)
	var b strings.Builder
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r):
			continue
		case r == '(' || r == '[' || r == '〔':
			b.WriteRune('（')
		case r == ')' || r == ']' || r == '〕':
			b.WriteRune('）')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeCaseNumbers normalizes and de-duplicates, keeping first-seen order.
func NormalizeCaseNumbers(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, n := range raw {
		norm := NormalizeCaseNumber(n)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

// DistinctNames trims and de-duplicates party names.
func DistinctNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
