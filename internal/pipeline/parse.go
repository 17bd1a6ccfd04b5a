package pipeline

import (
	"context"
	"fmt"

	"court-intake-service/internal/matching"
	"court-intake-service/internal/models"
)

// parse classifies the message and extracts links, case numbers and party
// names. A record that was parsed before keeps its fields.
func (p *Processor) parse(ctx context.Context, rec *models.Record) error {
	namesKnown := rec.Parsed() && len(rec.PartyNames) > 0
	if !rec.Parsed() {
		res, err := p.Parser.Parse(ctx, rec.Content)
		if err != nil {
			return p.fail(ctx, rec, models.StatusPending, fmt.Errorf("parse: %w", err))
		}
		kind := res.Kind
		if kind == "" {
			kind = models.KindInfo
		}
		rec.Kind = &kind
		rec.DownloadLinks = res.DownloadLinks
		rec.CaseNumbers = matching.NormalizeCaseNumbers(res.CaseNumbers)
		rec.PartyNames = matching.DistinctNames(res.PartyNames)
	}
	if err := p.transition(ctx, rec, models.StatusPending, models.StatusParsing); err != nil {
		return err
	}
	return p.coordinateDownload(ctx, rec, namesKnown)
}
