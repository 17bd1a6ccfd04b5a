package pipeline

import (
	"context"
	"errors"
	"fmt"

	"court-intake-service/internal/models"
)

// coordinateDownload starts document acquisition for a PARSING record. The
// record suspends in DOWNLOADING unless namesKnown says party names were
// already on the record before this parse pass, in which case matching goes
// ahead while the download runs.
func (p *Processor) coordinateDownload(ctx context.Context, rec *models.Record, namesKnown bool) error {
	log := p.logger.ForRecord(rec.ID)
	if len(rec.DownloadLinks) == 0 {
		if err := p.transition(ctx, rec, models.StatusParsing, models.StatusMatching); err != nil {
			return err
		}
		p.Scheduler.Enqueue(Job{RecordID: rec.ID, Stage: StageMatch}, 0)
		return nil
	}

	jobID, err := p.Acquirer.CreateJob(ctx, rec.ID, rec.DownloadLinks[0])
	if err != nil {
		rec.SetError(fmt.Sprintf("create download job: %v", err))
		if err := p.transition(ctx, rec, models.StatusParsing, models.StatusDownloadFailed); err != nil {
			return err
		}
		return p.handleDownloadFailure(ctx, rec)
	}
	rec.DownloadTaskID = &jobID
	if len(rec.DownloadLinks) > 1 {
		log.Infof("Only the first of %d links is downloaded", len(rec.DownloadLinks))
	}

	if namesKnown && len(rec.PartyNames) > 0 {
		log.Infof("Download %s started, matching on known party names meanwhile", jobID)
		if err := p.transition(ctx, rec, models.StatusParsing, models.StatusMatching); err != nil {
			return err
		}
		p.Scheduler.Enqueue(Job{RecordID: rec.ID, Stage: StageMatch}, 0)
		return nil
	}

	log.Infof("Waiting for download %s", jobID)
	return p.transition(ctx, rec, models.StatusParsing, models.StatusDownloading)
}

// HandleDownloadEvent resumes the record waiting on a finished download job.
func (p *Processor) HandleDownloadEvent(ctx context.Context, ev models.DownloadEvent) error {
	rec, err := RunIsolated(ctx, p.opts.IsolatedTimeout, (*models.Record)(nil), func(ctx context.Context) (*models.Record, error) {
		return p.Store.GetRecordByDownloadTask(ctx, ev.JobID)
	})
	if err != nil {
		return fmt.Errorf("find record for download %s: %w", ev.JobID, err)
	}
	return p.applyDownload(ctx, rec, ev)
}

// checkDownload polls the acquirer for a DOWNLOADING record whose event may
// have been lost.
func (p *Processor) checkDownload(ctx context.Context, rec *models.Record) error {
	if rec.DownloadTaskID == nil {
		return p.fail(ctx, rec, models.StatusDownloading, errors.New("downloading without a download task"))
	}
	task, err := p.Acquirer.Status(ctx, *rec.DownloadTaskID)
	if err != nil {
		return fmt.Errorf("download status %s: %w", *rec.DownloadTaskID, err)
	}
	if task.Outcome == models.DownloadPending {
		return nil
	}
	return p.applyDownload(ctx, rec, models.DownloadEvent{
		JobID:   task.JobID,
		Outcome: task.Outcome,
		Files:   task.Files,
		Error:   task.Error,
	})
}

func (p *Processor) applyDownload(ctx context.Context, rec *models.Record, ev models.DownloadEvent) error {
	log := p.logger.ForRecord(rec.ID)
	ok := ev.Outcome == models.DownloadSuccess

	switch rec.Status {
	case models.StatusDownloading:
		if ok {
			rec.Files = ev.Files
			if err := p.transition(ctx, rec, models.StatusDownloading, models.StatusMatching); err != nil {
				return err
			}
			p.Scheduler.Enqueue(Job{RecordID: rec.ID, Stage: StageMatch}, 0)
			return nil
		}
		rec.SetError(fmt.Sprintf("download failed: %s", ev.Error))
		if err := p.transition(ctx, rec, models.StatusDownloading, models.StatusDownloadFailed); err != nil {
			return err
		}
		return p.handleDownloadFailure(ctx, rec)

	case models.StatusMatching:
		if !ok {
			log.Warnf("Download %s failed (%s), continuing without documents", ev.JobID, ev.Error)
			return nil
		}
		return p.storeFiles(ctx, rec, ev.Files)

	case models.StatusPendingManual, models.StatusFailed:
		if ok && len(rec.Files) == 0 {
			return p.storeFiles(ctx, rec, ev.Files)
		}

	case models.StatusCompleted:
		if ok && len(rec.RenamedFiles) == 0 {
			return p.fileLateDownload(ctx, rec, ev.Files)
		}
	}

	log.Infof("Ignoring download %s (%s), record is %s", ev.JobID, ev.Outcome, rec.Status)
	return nil
}

// storeFiles writes only the files column so a stage working on the same
// record keeps its own fields.
func (p *Processor) storeFiles(ctx context.Context, rec *models.Record, files []string) error {
	if err := p.Store.SaveFiles(ctx, rec.ID, files, nil, rec.Status); err != nil {
		return fmt.Errorf("store downloaded files: %w", err)
	}
	rec.Files = files
	p.logger.ForRecord(rec.ID).Infof("Stored %d downloaded files while %s", len(files), rec.Status)
	return nil
}

// fileLateDownload attaches documents that finished after a COMPLETED record
// was renamed to the case log it is bound to. They are not posted again.
func (p *Processor) fileLateDownload(ctx context.Context, rec *models.Record, files []string) error {
	log := p.logger.ForRecord(rec.ID)
	if rec.CaseID == nil || rec.CaseLogID == nil {
		log.Warnf("Late download of %d files, but the record has no case log", len(files))
		return nil
	}
	renamed := p.fileDocuments(ctx, rec, p.caseName(ctx, *rec.CaseID), files)
	log.Infof("Filed %d late downloaded files into case log %d", len(renamed), *rec.CaseLogID)
	if err := p.Store.SaveFiles(ctx, rec.ID, files, renamed, models.StatusCompleted); err != nil {
		return fmt.Errorf("store late files: %w", err)
	}
	rec.Files, rec.RenamedFiles = files, renamed
	return nil
}

// handleDownloadFailure consumes one unit of retry budget for a
// DOWNLOAD_FAILED record, or fails it when the budget is spent.
func (p *Processor) handleDownloadFailure(ctx context.Context, rec *models.Record) error {
	if rec.RetryCount >= p.opts.MaxRetries {
		cause := "download failed"
		if rec.ErrorMessage != nil {
			cause = *rec.ErrorMessage
		}
		return p.fail(ctx, rec, models.StatusDownloadFailed, fmt.Errorf("%s after %d retries", cause, rec.RetryCount))
	}
	rec.RetryCount++
	rec.DownloadTaskID = nil
	if err := p.transition(ctx, rec, models.StatusDownloadFailed, models.StatusPending); err != nil {
		return err
	}
	p.logger.ForRecord(rec.ID).Infof("Download retry %d/%d in %s", rec.RetryCount, p.opts.MaxRetries, p.opts.RetryDelay)
	p.Scheduler.Enqueue(Job{RecordID: rec.ID, Stage: StageParse}, p.opts.RetryDelay)
	return nil
}
