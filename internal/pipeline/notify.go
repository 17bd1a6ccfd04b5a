package pipeline

import (
	"context"
	"errors"
	"fmt"

	"court-intake-service/internal/models"
)

// notify posts the message and its documents to the case's channel.
func (p *Processor) notify(ctx context.Context, rec *models.Record) error {
	if rec.CaseID == nil {
		return p.fail(ctx, rec, models.StatusNotifying, errors.New("no case linked for notification"))
	}
	docs := rec.RenamedFiles
	if len(docs) == 0 {
		docs = rec.Files
	}

	res, err := p.Messenger.PostDocumentNotification(ctx, *rec.CaseID, rec.Content, docs)
	if err == nil && !res.Success {
		err = errors.New(res.Message)
	}
	if err != nil {
		msg := err.Error()
		rec.NotifyError = &msg
		return p.fail(ctx, rec, models.StatusNotifying, fmt.Errorf("notify: %w", err))
	}

	sent := p.now()
	rec.SentAt = &sent
	rec.NotifyError = nil
	if err := p.transition(ctx, rec, models.StatusNotifying, models.StatusCompleted); err != nil {
		return err
	}
	p.logger.ForRecord(rec.ID).Infof("Notified case %d with %d documents", *rec.CaseID, len(docs))

	// Files that landed while renaming or notifying were left for here.
	if len(docs) == 0 {
		if files := p.finishedDownload(ctx, rec); len(files) > 0 {
			return p.fileLateDownload(ctx, rec, files)
		}
	}
	return nil
}
