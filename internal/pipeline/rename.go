package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"court-intake-service/internal/matching"
	"court-intake-service/internal/models"
	"court-intake-service/internal/naming"
)

// rename files the downloaded documents under the matched case. Every
// failure here is logged and the record always advances to NOTIFYING.
func (p *Processor) rename(ctx context.Context, rec *models.Record) error {
	log := p.logger.ForRecord(rec.ID)
	if rec.CaseID == nil {
		log.Warn("No case linked, skipping rename")
		return p.advanceToNotify(ctx, rec)
	}
	caseID := *rec.CaseID

	c, err := p.Directory.GetCase(ctx, caseID)
	if err != nil {
		log.Warnf("Load case %d: %v", caseID, err)
	}
	caseName := fmt.Sprintf("case-%d", caseID)
	if c != nil && c.Name != "" {
		caseName = c.Name
	}

	if rec.CaseLogID == nil {
		if logID, err := p.CaseLog.CreateLog(ctx, caseID, rec.Content); err != nil {
			log.Warnf("Create case log: %v", err)
		} else {
			rec.CaseLogID = &logID
		}
	}

	if len(rec.Files) == 0 {
		rec.Files = p.finishedDownload(ctx, rec)
	}
	rec.RenamedFiles = p.fileDocuments(ctx, rec, caseName, rec.Files)

	if len(rec.CaseNumbers) == 0 && p.Intel != nil {
		for _, f := range rec.RenamedFiles {
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
	if c != nil {
		known := make(map[string]bool, len(c.CaseNumbers))
		for _, n := range c.CaseNumbers {
			known[matching.NormalizeCaseNumber(n)] = true
		}
		for _, n := range rec.CaseNumbers {
			if known[n] {
				continue
			}
			if err := p.Directory.AddCaseNumber(ctx, caseID, n); err != nil {
				log.Warnf("Add case number %s to case %d: %v", n, caseID, err)
				continue
			}
			log.Infof("Added case number %s to case %d", n, caseID)
		}
	}

	return p.advanceToNotify(ctx, rec)
}

// finishedDownload returns the files of the record's download job when it
// succeeded after matching went ahead without it.
func (p *Processor) finishedDownload(ctx context.Context, rec *models.Record) []string {
	if rec.DownloadTaskID == nil {
		return nil
	}
	jobID := *rec.DownloadTaskID
	task, err := RunIsolated(ctx, p.opts.IsolatedTimeout, models.DownloadTask{}, func(ctx context.Context) (models.DownloadTask, error) {
		return p.Acquirer.Status(ctx, jobID)
	})
	log := p.logger.ForRecord(rec.ID)
	switch {
	case err != nil:
		log.Warnf("Download status %s: %v", jobID, err)
	case task.Outcome == models.DownloadSuccess:
		log.Infof("Using %d files from download %s", len(task.Files), jobID)
		return task.Files
	case task.Outcome == models.DownloadPending:
		log.Infof("Download %s still running, late files go to the case log", jobID)
	}
	return nil
}

// fileDocuments copies files into the case folder under normalised names and
// attaches them to the record's case log. It returns the new paths.
func (p *Processor) fileDocuments(ctx context.Context, rec *models.Record, caseName string, files []string) []string {
	if len(files) == 0 || rec.CaseID == nil {
		return nil
	}
	log := p.logger.ForRecord(rec.ID)
	dir := filepath.Join(p.opts.DocumentDir, fmt.Sprintf("%d", *rec.CaseID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Warnf("Create document folder %s: %v", dir, err)
	}
	var renamed []string
	for _, src := range files {
		title, err := p.Namer.ProposeTitle(ctx, src)
		if err != nil {
			title = naming.FallbackTitle(src)
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
			}
			log.Debugf("No title from %s (%v), using %q", src, err, title)
		}
		dst := p.Namer.Filename(title, caseName, rec.ReceivedAt, dir, filepath.Ext(src))
		if err := copyFile(src, dst); err != nil {
			log.Warnf("Copy %s to %s: %v", src, dst, err)
			continue
		}
		renamed = append(renamed, dst)
		if rec.CaseLogID != nil {
			if err := p.CaseLog.Attach(ctx, *rec.CaseLogID, dst); err != nil {
				log.Warnf("Attach %s: %v", dst, err)
			}
		}
	}
	return renamed
}

func (p *Processor) caseName(ctx context.Context, caseID int64) string {
	c, err := p.Directory.GetCase(ctx, caseID)
	if err != nil || c.Name == "" {
		return fmt.Sprintf("case-%d", caseID)
	}
	return c.Name
}

func (p *Processor) advanceToNotify(ctx context.Context, rec *models.Record) error {
	if err := p.transition(ctx, rec, models.StatusRenaming, models.StatusNotifying); err != nil {
		return err
	}
	p.Scheduler.Enqueue(Job{RecordID: rec.ID, Stage: StageNotify}, 0)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
