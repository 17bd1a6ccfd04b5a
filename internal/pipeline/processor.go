package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"court-intake-service/internal/db"
	"court-intake-service/internal/logging"
	"court-intake-service/internal/matching"
	"court-intake-service/internal/models"
)

// Options tune retry and isolation behaviour of the processor.
type Options struct {
	MaxRetries      int
	RetryDelay      time.Duration
	IsolatedTimeout time.Duration
	DocumentDir     string
}

// Deps are the collaborators every stage talks to.
type Deps struct {
	Store     Store
	Parser    Parser
	Acquirer  Acquirer
	Matcher   Matcher
	Directory CaseDirectory
	CaseLog   CaseLog
	Namer     Namer
	Intel     matching.DocumentIntel
	Messenger Messenger
	Scheduler Scheduler
	Observer  Observer
}

// Processor drives notification records through the intake state machine.
type Processor struct {
	Deps
	opts   Options
	logger *logging.Logger
	now    func() time.Time
}

func New(deps Deps, opts Options, logger *logging.Logger) *Processor {
	if opts.IsolatedTimeout <= 0 {
		opts.IsolatedTimeout = 10 * time.Second
	}
	return &Processor{Deps: deps, opts: opts, logger: logger, now: time.Now}
}

// Submit creates a PENDING record for content and schedules parsing.
func (p *Processor) Submit(ctx context.Context, content string, receivedAt *time.Time) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	now := p.now()
	rec := &models.Record{
		ID:         uuid.NewString(),
		Content:    content,
		ReceivedAt: now,
		Status:     models.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if receivedAt != nil && !receivedAt.IsZero() {
		rec.ReceivedAt = *receivedAt
	}
	if err := p.Store.CreateRecord(ctx, rec); err != nil {
		return "", fmt.Errorf("create record: %w", err)
	}
	p.logger.ForRecord(rec.ID).Info("Record submitted")
	p.observe(rec)
	p.Scheduler.Enqueue(Job{RecordID: rec.ID, Stage: StageParse}, 0)
	return rec.ID, nil
}

// Get returns the current state of a record.
func (p *Processor) Get(ctx context.Context, id string) (*models.Record, error) {
	return p.Store.GetRecord(ctx, id)
}

// Run executes one scheduled stage. A record that has moved past the stage
// the job was scheduled for is left alone.
func (p *Processor) Run(ctx context.Context, job Job) error {
	want, ok := expectedStatus[job.Stage]
	if !ok {
		return fmt.Errorf("unknown stage %q", job.Stage)
	}
	rec, err := p.Store.GetRecord(ctx, job.RecordID)
	if err != nil {
		return fmt.Errorf("load record %s: %w", job.RecordID, err)
	}
	if rec.Status != want {
		p.logger.ForRecord(rec.ID).Debugf("Skipping %s stage, record is %s", job.Stage, rec.Status)
		return nil
	}
	return p.handle(ctx, rec)
}

// Process drives a record from whatever state it currently holds.
func (p *Processor) Process(ctx context.Context, id string) error {
	rec, err := p.Store.GetRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("load record %s: %w", id, err)
	}
	return p.handle(ctx, rec)
}

func (p *Processor) handle(ctx context.Context, rec *models.Record) (err error) {
	from := rec.Status
	defer func() {
		if r := recover(); r != nil {
			p.logger.ForRecord(rec.ID).Errorf("Stage for %s panicked: %v", from, r)
			err = p.fail(ctx, rec, rec.Status, fmt.Errorf("internal error: %v", r))
		}
	}()

	switch from {
	case models.StatusPending:
		return p.parse(ctx, rec)
	case models.StatusParsing:
		return p.coordinateDownload(ctx, rec, len(rec.PartyNames) > 0)
	case models.StatusDownloading:
		return p.checkDownload(ctx, rec)
	case models.StatusDownloadFailed:
		return p.handleDownloadFailure(ctx, rec)
	case models.StatusMatching:
		return p.match(ctx, rec)
	case models.StatusRenaming:
		return p.rename(ctx, rec)
	case models.StatusNotifying:
		return p.notify(ctx, rec)
	}
	return nil
}

// AssignCase links a record that automatic matching could not place, or
// that failed, to caseID and resumes at the rename stage.
func (p *Processor) AssignCase(ctx context.Context, id string, caseID int64) error {
	rec, err := p.Store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	from := rec.Status
	if from != models.StatusPendingManual && from != models.StatusFailed {
		return fmt.Errorf("%w: cannot assign a case to a %s record", ErrInvalidState, from)
	}
	c, err := p.Directory.GetCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrCaseNotFound, caseID)
		}
		return fmt.Errorf("load case %d: %w", caseID, err)
	}
	rec.CaseID = &c.ID
	rec.CaseLogID = nil
	rec.ErrorMessage = nil
	rec.NotifyError = nil
	if err := p.transition(ctx, rec, from, models.StatusRenaming); err != nil {
		return err
	}
	if logID, err := p.CaseLog.CreateLog(ctx, c.ID, rec.Content); err != nil {
		p.logger.ForRecord(rec.ID).Warnf("Create case log: %v", err)
	} else {
		rec.CaseLogID = &logID
		if err := p.Store.SaveRecord(ctx, rec, models.StatusRenaming); err != nil {
			p.logger.ForRecord(rec.ID).Warnf("Store case log %d: %v", logID, err)
		}
	}
	p.logger.ForRecord(rec.ID).Infof("Manually assigned to case %d", c.ID)
	p.Scheduler.Enqueue(Job{RecordID: rec.ID, Stage: StageRename}, 0)
	return nil
}

// Retry restarts a FAILED record from the beginning. Parsed fields are kept;
// everything produced after parsing is cleared.
func (p *Processor) Retry(ctx context.Context, id string) error {
	rec, err := p.Store.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != models.StatusFailed {
		return fmt.Errorf("%w: only FAILED records can be retried, record is %s", ErrInvalidState, rec.Status)
	}
	rec.ClearLinks()
	rec.RetryCount++
	if err := p.transition(ctx, rec, models.StatusFailed, models.StatusPending); err != nil {
		return err
	}
	p.logger.ForRecord(rec.ID).Infof("Manual retry #%d", rec.RetryCount)
	p.Scheduler.Enqueue(Job{RecordID: rec.ID, Stage: StageParse}, 0)
	return nil
}

// transition persists rec in status to, provided the stored record is still in from.
func (p *Processor) transition(ctx context.Context, rec *models.Record, from, to models.Status) error {
	rec.Status = to
	if err := p.Store.SaveRecord(ctx, rec, from); err != nil {
		rec.Status = from
		if errors.Is(err, db.ErrStateConflict) {
			p.logger.ForRecord(rec.ID).Warnf("Transition %s -> %s lost a race, leaving record alone", from, to)
		}
		return fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}
	p.logger.ForRecord(rec.ID).WithFields(logrus.Fields{"from": from, "to": to}).Info("Transition")
	p.observe(rec)
	return nil
}

// fail moves rec to FAILED with err as its message.
func (p *Processor) fail(ctx context.Context, rec *models.Record, from models.Status, cause error) error {
	rec.SetError(cause.Error())
	p.logger.ForRecord(rec.ID).Errorf("Failed in %s: %v", from, cause)
	return p.transition(ctx, rec, from, models.StatusFailed)
}

func (p *Processor) observe(rec *models.Record) {
	if p.Observer != nil {
		p.Observer.RecordChanged(*rec)
	}
}
