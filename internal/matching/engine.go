package matching

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"court-intake-service/internal/logging"
	"court-intake-service/internal/models"
)

// Directory is the read side of the case directory the engine needs.
type Directory interface {
	FindByCaseNumber(ctx context.Context, number string) ([]models.Case, error)
	FindByParties(ctx context.Context, names []string, status models.CaseStatus) ([]models.Case, error)
	GetPartyNames(ctx context.Context, caseID int64) ([]string, error)
	KnownParties(ctx context.Context) ([]models.Party, error)
}

// DocumentIntel extracts identifying data from downloaded documents.
type DocumentIntel interface {
	ExtractCaseNumbers(ctx context.Context, path string) ([]string, error)
	ExtractPartyNames(ctx context.Context, path string) ([]string, error)
}

type Tier string

const (
	TierNone       Tier = ""
	TierCaseNumber Tier = "case_number"
	TierParties    Tier = "parties"
	TierNarrowing  Tier = "narrowing"
)

// Result explains how a match was, or was not, reached.
type Result struct {
	Case   *models.Case
	Tier   Tier
	Reason string
}

// Engine resolves a message to exactly one case or to none.
type Engine struct {
	dir    Directory
	intel  DocumentIntel
	logger *logging.Logger
}

func NewEngine(dir Directory, intel DocumentIntel, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{dir: dir, intel: intel, logger: logger}
}

// Match returns the single case the inputs resolve to, or nil.
func (e *Engine) Match(ctx context.Context, caseNumbers, partyNames, documentPaths []string) (*models.Case, error) {
	res, err := e.Resolve(ctx, caseNumbers, partyNames, documentPaths)
	if err != nil {
		return nil, err
	}
	return res.Case, nil
}

// Resolve runs the tiers in order; the first tier that decides wins.
func (e *Engine) Resolve(ctx context.Context, caseNumbers, partyNames, documentPaths []string) (Result, error) {
	numbers := NormalizeCaseNumbers(caseNumbers)

	c, reason, err := e.byCaseNumber(ctx, numbers)
	if err != nil {
		return Result{}, err
	}
	if c != nil {
		return Result{Case: c, Tier: TierCaseNumber, Reason: reason}, nil
	}
	reasons := []string{reason}

	candidates, reason, err := e.byParties(ctx, partyNames, documentPaths)
	if err != nil {
		return Result{}, err
	}
	switch len(candidates) {
	case 0:
		reasons = append(reasons, reason)
		return Result{Tier: TierNone, Reason: strings.Join(reasons, "; ")}, nil
	case 1:
		return Result{Case: &candidates[0], Tier: TierParties, Reason: reason}, nil
	}

	picked, reason := Narrow(candidates, numbers)
	return Result{Case: picked, Tier: TierNarrowing, Reason: reason}, nil
}

func (e *Engine) byCaseNumber(ctx context.Context, numbers []string) (*models.Case, string, error) {
	if len(numbers) == 0 {
		return nil, "no case numbers", nil
	}
	hits, err := e.casesForNumbers(ctx, numbers)
	if err != nil {
		return nil, "", err
	}
	if len(hits) == 0 {
		return nil, "no case carries " + strings.Join(numbers, ","), nil
	}
	var active []models.Case
	for _, c := range hits {
		if c.Status == models.CaseActive {
			active = append(active, c)
		}
	}
	switch len(active) {
	case 0:
		return nil, fmt.Sprintf("%d case(s) carry the number but none is active", len(hits)), nil
	case 1:
		return &active[0], "unique active case by number", nil
	}
	return nil, fmt.Sprintf("%d active cases share the number", len(active)), nil
}

func (e *Engine) casesForNumbers(ctx context.Context, numbers []string) ([]models.Case, error) {
	seen := map[int64]struct{}{}
	var hits []models.Case
	for _, n := range numbers {
		cases, err := e.dir.FindByCaseNumber(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("failed to look up case number %s: %w", n, err)
		}
		for _, c := range cases {
			if _, ok := seen[c.ID]; ok {
				continue
			}
			seen[c.ID] = struct{}{}
			hits = append(hits, c)
		}
	}
	return hits, nil
}

func (e *Engine) byParties(ctx context.Context, partyNames, documentPaths []string) ([]models.Case, string, error) {
	names := DistinctNames(partyNames)
	if len(names) < 2 {
		if extracted := e.namesFromDocuments(ctx, documentPaths); len(extracted) > 0 {
			names = extracted
		}
	}
	if len(names) == 0 {
		return nil, "no party names", nil
	}

	known, err := e.dir.KnownParties(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load known parties: %w", err)
	}
	matched := ResolveParties(names, known)
	if len(matched) == 0 {
		return nil, "no known party matches " + strings.Join(names, ","), nil
	}

	cases, err := e.dir.FindByParties(ctx, matched, models.CaseActive)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find cases by parties: %w", err)
	}
	var exact []models.Case
	for _, c := range cases {
		if c.Status != models.CaseActive {
			continue
		}
		caseParties, err := e.dir.GetPartyNames(ctx, c.ID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load parties of case %d: %w", c.ID, err)
		}
		if sameSet(caseParties, matched) {
			exact = append(exact, c)
		}
	}
	if len(exact) == 0 {
		return nil, "no active case has exactly parties " + strings.Join(matched, ","), nil
	}
	return exact, fmt.Sprintf("%d active case(s) with parties %s", len(exact), strings.Join(matched, ",")), nil
}

func (e *Engine) namesFromDocuments(ctx context.Context, paths []string) []string {
	if e.intel == nil {
		return nil
	}
	for _, p := range paths {
		names, err := e.intel.ExtractPartyNames(ctx, p)
		if err != nil {
			e.logger.Warnf("extract party names from %s: %v", p, err)
			continue
		}
		if names = DistinctNames(names); len(names) > 0 {
			return names
		}
	}
	return nil
}

// Narrow reduces several candidates to one using the markers in numbers. Each
// filter is kept only if it leaves at least one candidate. When more than one
// remains the most recently created candidate (highest id) is chosen.
func Narrow(candidates []models.Case, numbers []string) (*models.Case, string) {
	if len(candidates) == 0 {
		return nil, "no candidates"
	}
	cls := Classify(numbers)
	pool := candidates
	var applied []string

	if cls.Bankruptcy {
		pool, applied = keepIfAny(pool, applied, "bankruptcy", func(c models.Case) bool {
			return strings.Contains(c.Name, bankruptcyNameMarker)
		})
	}
	if cls.Type != "" {
		pool, applied = keepIfAny(pool, applied, "type "+string(cls.Type), func(c models.Case) bool {
			return c.Type == cls.Type
		})
	}
	if cls.Stage != "" {
		pool, applied = keepIfAny(pool, applied, "stage "+string(cls.Stage), func(c models.Case) bool {
			return c.Stage == cls.Stage
		})
	}

	filters := "no filters"
	if len(applied) > 0 {
		filters = strings.Join(applied, ", ")
	}
	if len(pool) == 1 {
		picked := pool[0]
		return &picked, "narrowed by " + filters
	}

	sorted := append([]models.Case(nil), pool...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID > sorted[j].ID })
	picked := sorted[0]
	return &picked, fmt.Sprintf("%d candidates after %s; chose most recent case %d", len(pool), filters, picked.ID)
}

func keepIfAny(pool []models.Case, applied []string, label string, keep func(models.Case) bool) ([]models.Case, []string) {
	var kept []models.Case
	for _, c := range pool {
		if keep(c) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return pool, applied
	}
	return kept, append(applied, label)
}

// ClosedCandidates lists closed cases carrying any of the numbers. It is a
// reviewer aid only; callers log the result.
func (e *Engine) ClosedCandidates(ctx context.Context, caseNumbers []string) ([]models.Case, error) {
	hits, err := e.casesForNumbers(ctx, NormalizeCaseNumbers(caseNumbers))
	if err != nil {
		return nil, err
	}
	var closed []models.Case
	for _, c := range hits {
		if c.Status == models.CaseClosed {
			closed = append(closed, c)
		}
	}
	return closed, nil
}
