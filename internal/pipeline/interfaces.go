package pipeline

import (
	"context"
	"time"

	"court-intake-service/internal/db"
	"court-intake-service/internal/matching"
	"court-intake-service/internal/models"
)

// Store persists notification records. SaveRecord and SaveFiles must only
// apply while the stored status equals expected and report
// db.ErrStateConflict otherwise. SaveFiles leaves renamed files untouched
// when renamed is nil.
type Store interface {
	CreateRecord(ctx context.Context, r *models.Record) error
	GetRecord(ctx context.Context, id string) (*models.Record, error)
	GetRecordByDownloadTask(ctx context.Context, taskID string) (*models.Record, error)
	SaveRecord(ctx context.Context, r *models.Record, expected models.Status) error
	SaveFiles(ctx context.Context, id string, files, renamed []string, expected models.Status) error
	ListRecords(ctx context.Context, f db.RecordFilter) ([]models.Record, error)
}

// Parser is the text parsing service.
type Parser interface {
	Parse(ctx context.Context, content string) (models.ParseResult, error)
}

// Acquirer is the document acquisition service.
type Acquirer interface {
	CreateJob(ctx context.Context, recordID, link string) (string, error)
	Status(ctx context.Context, jobID string) (models.DownloadTask, error)
}

// CaseDirectory is the part of the case directory the stages mutate or read directly.
type CaseDirectory interface {
	GetCase(ctx context.Context, caseID int64) (*models.Case, error)
	AddCaseNumber(ctx context.Context, caseID int64, number string) error
}

type CaseLog interface {
	CreateLog(ctx context.Context, caseID int64, content string) (int64, error)
	Attach(ctx context.Context, logID int64, filePath string) error
}

// Namer is the document naming service.
type Namer interface {
	ProposeTitle(ctx context.Context, path string) (string, error)
	Filename(title, caseName string, date time.Time, dir, ext string) string
}

type Messenger interface {
	PostDocumentNotification(ctx context.Context, caseID int64, text string, attachments []string) (models.MessageResult, error)
}

type Matcher interface {
	Resolve(ctx context.Context, caseNumbers, partyNames, documentPaths []string) (matching.Result, error)
	ClosedCandidates(ctx context.Context, caseNumbers []string) ([]models.Case, error)
}

// Scheduler dispatches stage jobs in the background, optionally after a delay.
type Scheduler interface {
	Enqueue(job Job, delay time.Duration)
}

// Observer is told about every persisted transition.
type Observer interface {
	RecordChanged(rec models.Record)
}
