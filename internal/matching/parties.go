package matching

import (
	"strings"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"

	"court-intake-service/internal/models"
)

// minContainedRunes keeps single characters from matching every party.
const minContainedRunes = 2

// ResolveParties maps extracted names onto known, non-staff parties. Direct
// matches (equal or one name containing the other) win; only when no name
// matched directly does each name fall back to its best fuzzy candidate.
func ResolveParties(names []string, known []models.Party) []string {
	candidates := make([]string, 0, len(known))
	for _, p := range known {
		if p.IsStaff || strings.TrimSpace(p.Name) == "" {
			continue
		}
		candidates = append(candidates, p.Name)
	}
	names = DistinctNames(names)
	if len(names) == 0 || len(candidates) == 0 {
		return nil
	}

	matched := newNameSet()
	for _, n := range names {
		for _, c := range candidates {
			if directMatch(n, c) {
				matched.add(c)
			}
		}
	}
	if matched.len() > 0 {
		return matched.list()
	}

	for _, n := range names {
		results := fuzzy.Find(n, candidates)
		if len(results) == 0 {
			continue
		}
		matched.add(results[0].Str)
	}
	return matched.list()
}

func directMatch(name, party string) bool {
	if name == party {
		return true
	}
	if utf8.RuneCountInString(party) >= minContainedRunes && strings.Contains(name, party) {
		return true
	}
	return utf8.RuneCountInString(name) >= minContainedRunes && strings.Contains(party, name)
}

type nameSet struct {
	order []string
	seen  map[string]struct{}
}

func newNameSet() *nameSet {
	return &nameSet{seen: map[string]struct{}{}}
}

func (s *nameSet) add(n string) {
	if _, ok := s.seen[n]; ok {
		return
	}
	s.seen[n] = struct{}{}
	s.order = append(s.order, n)
}

func (s *nameSet) len() int { return len(s.order) }

func (s *nameSet) list() []string { return s.order }

// sameSet reports whether a and b contain exactly the same names.
func sameSet(a, b []string) bool {
	sa := make(map[string]struct{}, len(a))
	for _, n := range a {
		sa[strings.TrimSpace(n)] = struct{}{}
	}
	sb := make(map[string]struct{}, len(b))
	for _, n := range b {
		sb[strings.TrimSpace(n)] = struct{}{}
	}
	if len(sa) != len(sb) {
		return false
	}
	for n := range sa {
		if _, ok := sb[n]; !ok {
			return false
		}
	}
	return true
}
