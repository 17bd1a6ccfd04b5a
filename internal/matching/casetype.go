package matching

import (
	"strings"

	"court-intake-service/internal/models"
)

// Markers of the local case-numbering convention, e.g. （2024）粤0106民初12345号.
const (
	markerCriminal       = "刑"
	markerAdministrative = "行"
	markerCivil          = "民"
	markerBankruptcy     = "破"
	markerFirstTrial     = "初"
	markerSecondTrial    = "终"
	markerEnforcement    = "执"
	markerPreservation   = "执保"

	// Cases in bankruptcy proceedings carry this in their display name.
	bankruptcyNameMarker = "破产"
)

// Classification is what the numbering convention reveals about a case.
type Classification struct {
	Type       models.CaseType
	Stage      models.CaseStage
	Bankruptcy bool
}

// Classify inspects case numbers for type and stage markers. Type markers are
// ranked criminal > administrative > civil across all numbers; the stage comes
// from the first number that carries one. Empty fields mean no marker was found.
func Classify(numbers []string) Classification {
	var c Classification
	rank := 0
	for _, n := range numbers {
		if strings.Contains(n, markerBankruptcy) {
			c.Bankruptcy = true
		}
		if t, r := detectType(n); r > rank {
			c.Type, rank = t, r
		}
		if c.Stage == "" {
			c.Stage = detectStage(n)
		}
	}
	return c
}

func detectType(n string) (models.CaseType, int) {
	switch {
	case strings.Contains(n, markerCriminal):
		return models.CaseTypeCriminal, 3
	// 执行 is an enforcement phrase, not an administrative marker.
	case strings.Contains(strings.ReplaceAll(n, "执行", ""), markerAdministrative):
		return models.CaseTypeAdministrative, 2
	case strings.Contains(n, markerCivil):
		return models.CaseTypeCivil, 1
	}
	return "", 0
}

func detectStage(n string) models.CaseStage {
	switch {
	case strings.Contains(n, markerEnforcement):
		if strings.Contains(n, markerPreservation) {
			return ""
		}
		return models.StageEnforcement
	case strings.Contains(n, markerSecondTrial):
		return models.StageSecondTrial
	case strings.Contains(n, markerFirstTrial):
		return models.StageFirstTrial
	}
	return ""
}
