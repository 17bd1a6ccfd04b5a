package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"court-intake-service/internal/models"
)

type fakeDirectory struct {
	cases   []models.Case
	parties []models.Party
}

func (f *fakeDirectory) FindByCaseNumber(_ context.Context, number string) ([]models.Case, error) {
	var out []models.Case
	for _, c := range f.cases {
		for _, n := range c.CaseNumbers {
			if n == number {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeDirectory) FindByParties(_ context.Context, names []string, status models.CaseStatus) ([]models.Case, error) {
	var out []models.Case
	for _, c := range f.cases {
		if status != "" && c.Status != status {
			continue
		}
		if overlaps(c.PartyNames, names) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeDirectory) GetPartyNames(_ context.Context, caseID int64) ([]string, error) {
	for _, c := range f.cases {
		if c.ID == caseID {
			return c.PartyNames, nil
		}
	}
	return nil, nil
}

func (f *fakeDirectory) KnownParties(context.Context) ([]models.Party, error) {
	return f.parties, nil
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

type fakeIntel struct {
	parties map[string][]string
}

func (f *fakeIntel) ExtractCaseNumbers(context.Context, string) ([]string, error) { return nil, nil }

func (f *fakeIntel) ExtractPartyNames(_ context.Context, path string) ([]string, error) {
	return f.parties[path], nil
}

func partiesOf(names ...string) []models.Party {
	out := make([]models.Party, len(names))
	for i, n := range names {
		out[i] = models.Party{ID: int64(i + 1), Name: n}
	}
	return out
}

func TestMatchUniqueActiveCaseNumberIgnoresParties(t *testing.T) {
	dir := &fakeDirectory{cases: []models.Case{
		{ID: 1, Status: models.CaseActive, CaseNumbers: []string{"（2024）粤0106民初12345号"}, PartyNames: []string{"张三"}},
		{ID: 2, Status: models.CaseActive, CaseNumbers: []string{"（2024）粤0106民初99999号"}},
	}}
	e := NewEngine(dir, nil, nil)

	c, err := e.Match(context.Background(), []string{"(2024)粤0106民初12345号"}, []string{"完全无关"}, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(1), c.ID)
}

func TestMatchClosedCaseNumberFallsThrough(t *testing.T) {
	dir := &fakeDirectory{cases: []models.Case{
		{ID: 1, Status: models.CaseClosed, CaseNumbers: []string{"（2023）京01民终1号"}},
	}}
	e := NewEngine(dir, nil, nil)

	res, err := e.Resolve(context.Background(), []string{"（2023）京01民终1号"}, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Case)
	assert.Contains(t, res.Reason, "none is active")

	closed, err := e.ClosedCandidates(context.Background(), []string{"（2023）京01民终1号"})
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, int64(1), closed[0].ID)
}

func TestMatchOneActiveAmongSeveralHits(t *testing.T) {
	num := "（2024）沪0101民初7号"
	dir := &fakeDirectory{cases: []models.Case{
		{ID: 1, Status: models.CaseClosed, CaseNumbers: []string{num}},
		{ID: 2, Status: models.CaseActive, CaseNumbers: []string{num}},
	}}
	c, err := NewEngine(dir, nil, nil).Match(context.Background(), []string{num}, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(2), c.ID)
}

func TestMatchTwoActiveCasesAndUnknownPartiesIsAmbiguous(t *testing.T) {
	num := "（2024）沪0101民初7号"
	dir := &fakeDirectory{
		cases: []models.Case{
			{ID: 1, Status: models.CaseActive, CaseNumbers: []string{num}, PartyNames: []string{"张三", "甲公司"}},
			{ID: 2, Status: models.CaseActive, CaseNumbers: []string{num}, PartyNames: []string{"王五", "乙公司"}},
		},
		parties: partiesOf("张三", "甲公司", "王五", "乙公司"),
	}
	c, err := NewEngine(dir, nil, nil).Match(context.Background(), []string{num}, []string{"李四", "赵六"}, nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestMatchBidirectionalPartySetWithoutCaseNumbers(t *testing.T) {
	dir := &fakeDirectory{
		cases: []models.Case{
			{ID: 1, Status: models.CaseActive, PartyNames: []string{"张三", "某公司"}},
			// superset: shares parties but is not set-equal
			{ID: 2, Status: models.CaseActive, PartyNames: []string{"张三", "某公司", "王五"}},
			{ID: 3, Status: models.CaseClosed, PartyNames: []string{"张三", "某公司"}},
		},
		parties: partiesOf("张三", "某公司", "王五"),
	}
	c, err := NewEngine(dir, nil, nil).Match(context.Background(), nil, []string{"张三", "某公司"}, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(1), c.ID)
}

func TestMatchExcludesStaffFromPartyResolution(t *testing.T) {
	dir := &fakeDirectory{
		cases: []models.Case{
			{ID: 1, Status: models.CaseActive, PartyNames: []string{"张三", "某公司"}},
		},
		parties: []models.Party{
			{ID: 1, Name: "张三"},
			{ID: 2, Name: "某公司"},
			{ID: 3, Name: "刘律师", IsStaff: true},
		},
	}
	c, err := NewEngine(dir, nil, nil).Match(context.Background(), nil, []string{"张三", "某公司", "刘律师"}, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(1), c.ID)
}

func TestMatchPartyNamesFromDocumentWhenRecordHasFewerThanTwo(t *testing.T) {
	dir := &fakeDirectory{
		cases:   []models.Case{{ID: 4, Status: models.CaseActive, PartyNames: []string{"张三", "某公司"}}},
		parties: partiesOf("张三", "某公司"),
	}
	intel := &fakeIntel{parties: map[string][]string{
		"/docs/empty.pdf": nil,
		"/docs/ruling.pdf": {"张三", "某公司"},
	}}
	c, err := NewEngine(dir, intel, nil).Match(context.Background(), nil, []string{"张三"},
		[]string{"/docs/empty.pdf", "/docs/ruling.pdf"})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(4), c.ID)
}

func TestMatchNarrowsByStageWhenTypeIsInsufficient(t *testing.T) {
	parties := []string{"张三", "某公司"}
	dir := &fakeDirectory{
		cases: []models.Case{
			{ID: 10, Status: models.CaseActive, Type: models.CaseTypeCriminal, Stage: models.StageFirstTrial, PartyNames: parties},
			{ID: 11, Status: models.CaseActive, Type: models.CaseTypeCriminal, Stage: models.StageSecondTrial, PartyNames: parties},
		},
		parties: partiesOf(parties...),
	}
	e := NewEngine(dir, nil, nil)

	res, err := e.Resolve(context.Background(), []string{"（2024）粤01刑初5号"}, parties, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Case)
	assert.Equal(t, int64(10), res.Case.ID)
	assert.Equal(t, TierNarrowing, res.Tier)

	res, err = e.Resolve(context.Background(), []string{"（2024）粤01刑终5号"}, parties, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Case)
	assert.Equal(t, int64(11), res.Case.ID)
}

func TestMatchUnresolvedNarrowingPicksHighestID(t *testing.T) {
	parties := []string{"张三", "某公司"}
	dir := &fakeDirectory{
		cases: []models.Case{
			{ID: 10, Status: models.CaseActive, Type: models.CaseTypeCriminal, Stage: models.StageFirstTrial, PartyNames: parties},
			{ID: 12, Status: models.CaseActive, Type: models.CaseTypeCriminal, Stage: models.StageFirstTrial, PartyNames: parties},
		},
		parties: partiesOf(parties...),
	}
	c, err := NewEngine(dir, nil, nil).Match(context.Background(), []string{"（2024）粤01刑初5号"}, parties, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(12), c.ID)
}

func TestMatchNothingKnown(t *testing.T) {
	res, err := NewEngine(&fakeDirectory{}, nil, nil).Resolve(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Case)
	assert.Contains(t, res.Reason, "no case numbers")
	assert.Contains(t, res.Reason, "no party names")
}

func TestNarrowBankruptcyFirst(t *testing.T) {
	candidates := []models.Case{
		{ID: 1, Name: "甲公司破产清算案", Type: models.CaseTypeCivil},
		{ID: 2, Name: "甲公司买卖合同纠纷", Type: models.CaseTypeCivil},
	}
	c, reason := Narrow(candidates, []string{"（2024）粤03破12号"})
	require.NotNil(t, c)
	assert.Equal(t, int64(1), c.ID)
	assert.Contains(t, reason, "bankruptcy")
}

func TestNarrowKeepsFilterThatWouldEmptyPool(t *testing.T) {
	candidates := []models.Case{
		{ID: 1, Type: models.CaseTypeCivil, Stage: models.StageFirstTrial},
		{ID: 2, Type: models.CaseTypeCivil, Stage: models.StageSecondTrial},
	}
	// criminal marker eliminates everything, so only the stage filter applies
	c, reason := Narrow(candidates, []string{"（2024）粤01刑终5号"})
	require.NotNil(t, c)
	assert.Equal(t, int64(2), c.ID)
	assert.NotContains(t, reason, "CRIMINAL")
}

func TestNarrowUnknownConventionUsesMostRecent(t *testing.T) {
	candidates := []models.Case{{ID: 3}, {ID: 9}, {ID: 5}}
	c, reason := Narrow(candidates, []string{"CV-2024-0001"})
	require.NotNil(t, c)
	assert.Equal(t, int64(9), c.ID)
	assert.Contains(t, reason, "no filters")
}
