package pipeline

import (
	"context"
	"fmt"
	"time"

	"court-intake-service/internal/db"
	"court-intake-service/internal/logging"
	"court-intake-service/internal/models"
)

type MonitorOptions struct {
	Interval        time.Duration
	StuckTimeout    time.Duration
	Lookback        time.Duration
	IsolatedTimeout time.Duration
}

// Monitor periodically resets stuck records, expires stalled downloads and
// re-drives recoverable ones.
type Monitor struct {
	store     Store
	acquirer  Acquirer
	scheduler Scheduler
	observer  Observer
	opts      MonitorOptions
	logger    *logging.Logger
	now       func() time.Time
}

// SweepReport counts what one sweep did.
type SweepReport struct {
	Reset     int
	Requeued  int
	Unchanged int
}

func NewMonitor(store Store, acquirer Acquirer, scheduler Scheduler, observer Observer, opts MonitorOptions, logger *logging.Logger) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.IsolatedTimeout <= 0 {
		opts.IsolatedTimeout = 10 * time.Second
	}
	return &Monitor{
		store:     store,
		acquirer:  acquirer,
		scheduler: scheduler,
		observer:  observer,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Run sweeps immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()
	for {
		if rep, err := m.Sweep(ctx); err != nil {
			m.logger.Errorf("Recovery sweep failed: %v", err)
		} else if rep.Reset+rep.Requeued > 0 {
			m.logger.Infof("Recovery sweep: reset=%d requeued=%d unchanged=%d", rep.Reset, rep.Requeued, rep.Unchanged)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep runs stuck detection, download expiry and then the recovery pass once.
func (m *Monitor) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	now := m.now()

	stuck, err := m.store.ListRecords(ctx, db.RecordFilter{
		Statuses:      models.InFlightStatuses,
		UpdatedBefore: now.Add(-m.opts.StuckTimeout),
	})
	if err != nil {
		return rep, fmt.Errorf("list stuck records: %w", err)
	}
	reset := make(map[string]bool, len(stuck))
	for i := range stuck {
		rec := &stuck[i]
		from := rec.Status
		rec.SetError(fmt.Sprintf("reset after being stuck in %s since %s", from, rec.UpdatedAt.Format(time.RFC3339)))
		rec.Status = models.StatusPending
		if err := m.store.SaveRecord(ctx, rec, from); err != nil {
			m.logger.ForRecord(rec.ID).Warnf("Reset stuck record: %v", err)
			continue
		}
		m.logger.ForRecord(rec.ID).Warnf("Reset record stuck in %s", from)
		if m.observer != nil {
			m.observer.RecordChanged(*rec)
		}
		m.scheduler.Enqueue(Job{RecordID: rec.ID, Stage: StageParse}, 0)
		reset[rec.ID] = true
		rep.Reset++
	}

	stalled, err := m.store.ListRecords(ctx, db.RecordFilter{
		Statuses:      []models.Status{models.StatusDownloading},
		UpdatedBefore: now.Add(-m.opts.StuckTimeout),
	})
	if err != nil {
		return rep, fmt.Errorf("list stalled downloads: %w", err)
	}
	for i := range stalled {
		rec := &stalled[i]
		reset[rec.ID] = true
		if m.downloadFinished(ctx, *rec) {
			m.scheduler.Enqueue(Job{RecordID: rec.ID, Stage: StageAwaitDownload}, 0)
			rep.Requeued++
			continue
		}
		// An expired download spends retry budget like a failed one.
		rec.SetError(fmt.Sprintf("download still pending after %s", m.opts.StuckTimeout))
		rec.Status = models.StatusDownloadFailed
		if err := m.store.SaveRecord(ctx, rec, models.StatusDownloading); err != nil {
			m.logger.ForRecord(rec.ID).Warnf("Expire stalled download: %v", err)
			continue
		}
		m.logger.ForRecord(rec.ID).Warnf("Download expired after %s", m.opts.StuckTimeout)
		if m.observer != nil {
			m.observer.RecordChanged(*rec)
		}
		m.scheduler.Enqueue(Job{RecordID: rec.ID, Stage: StageDownloadFailed}, 0)
		rep.Reset++
	}

	recoverable, err := m.store.ListRecords(ctx, db.RecordFilter{
		Statuses:     []models.Status{models.StatusPending, models.StatusDownloading, models.StatusDownloadFailed},
		CreatedAfter: now.Add(-m.opts.Lookback),
	})
	if err != nil {
		return rep, fmt.Errorf("list recoverable records: %w", err)
	}
	for _, rec := range recoverable {
		if reset[rec.ID] {
			continue
		}
		switch rec.Status {
		case models.StatusPending:
			m.scheduler.Enqueue(Job{RecordID: rec.ID, Stage: StageParse}, 0)
			rep.Requeued++
		case models.StatusDownloadFailed:
			m.scheduler.Enqueue(Job{RecordID: rec.ID, Stage: StageDownloadFailed}, 0)
			rep.Requeued++
		case models.StatusDownloading:
			if m.downloadFinished(ctx, rec) {
				m.scheduler.Enqueue(Job{RecordID: rec.ID, Stage: StageAwaitDownload}, 0)
				rep.Requeued++
			} else {
				rep.Unchanged++
			}
		}
	}
	return rep, nil
}

// downloadFinished asks the acquirer whether the record's job is done. An
// unresponsive acquirer counts as done so the record gets re-examined.
func (m *Monitor) downloadFinished(ctx context.Context, rec models.Record) bool {
	if rec.DownloadTaskID == nil {
		return true
	}
	done, err := RunIsolated(ctx, m.opts.IsolatedTimeout, true, func(ctx context.Context) (bool, error) {
		task, err := m.acquirer.Status(ctx, *rec.DownloadTaskID)
		if err != nil {
			return true, err
		}
		return task.Outcome != models.DownloadPending, nil
	})
	if err != nil {
		m.logger.ForRecord(rec.ID).Warnf("Download status check: %v", err)
	}
	return done
}
