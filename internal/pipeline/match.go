package pipeline

import (
	"context"
	"fmt"
	"strings"

	"court-intake-service/internal/matching"
	"court-intake-service/internal/models"
)

// match resolves a MATCHING record to a case, or parks it for manual review.
func (p *Processor) match(ctx context.Context, rec *models.Record) error {
	log := p.logger.ForRecord(rec.ID)
	p.enrichFromDocuments(ctx, rec)

	res, err := p.Matcher.Resolve(ctx, rec.CaseNumbers, rec.PartyNames, rec.Files)
	if err != nil {
		return p.fail(ctx, rec, models.StatusMatching, fmt.Errorf("match: %w", err))
	}
	p.reloadFiles(ctx, rec)

	if res.Case == nil {
		rec.SetError(fmt.Sprintf("no unique case match: %s", res.Reason))
		if closed, err := p.Matcher.ClosedCandidates(ctx, rec.CaseNumbers); err != nil {
			log.Warnf("Closed case lookup failed: %v", err)
		} else if len(closed) > 0 {
			ids := make([]string, 0, len(closed))
			for _, c := range closed {
				ids = append(ids, fmt.Sprintf("%d", c.ID))
			}
			log.Infof("Case numbers belong to closed cases: %s", strings.Join(ids, ", "))
		}
		return p.transition(ctx, rec, models.StatusMatching, models.StatusPendingManual)
	}

	log.Infof("Matched case %d via %s (%s)", res.Case.ID, res.Tier, res.Reason)
	rec.CaseID = &res.Case.ID
	rec.ErrorMessage = nil
	if err := p.transition(ctx, rec, models.StatusMatching, models.StatusRenaming); err != nil {
		return err
	}
	p.Scheduler.Enqueue(Job{RecordID: rec.ID, Stage: StageRename}, 0)
	return nil
}

// reloadFiles picks up files a download event stored while matching ran.
func (p *Processor) reloadFiles(ctx context.Context, rec *models.Record) {
	if len(rec.Files) > 0 {
		return
	}
	cur, err := p.Store.GetRecord(ctx, rec.ID)
	if err != nil {
		p.logger.ForRecord(rec.ID).Warnf("Reload files: %v", err)
		return
	}
	rec.Files = cur.Files
}

// enrichFromDocuments fills empty case numbers or party names from the
// downloaded documents. The first document that yields data wins.
func (p *Processor) enrichFromDocuments(ctx context.Context, rec *models.Record) {
	if p.Intel == nil || len(rec.Files) == 0 {
		return
	}
	log := p.logger.ForRecord(rec.ID)
	if len(rec.CaseNumbers) == 0 {
		for _, f := range rec.Files {
			nums, err := p.Intel.ExtractCaseNumbers(ctx, f)
			if err != nil {
				log.Warnf("Extract case numbers from %s: %v", f, err)
				continue
			}
			if nums = matching.NormalizeCaseNumbers(nums); len(nums) > 0 {
				rec.CaseNumbers = nums
				break
			}
		}
	}
	if len(rec.PartyNames) == 0 {
		for _, f := range rec.Files {
			names, err := p.Intel.ExtractPartyNames(ctx, f)
			if err != nil {
				log.Warnf("Extract party names from %s: %v", f, err)
				continue
			}
			if names = matching.DistinctNames(names); len(names) > 0 {
				rec.PartyNames = names
				break
			}
		}
	}
}
