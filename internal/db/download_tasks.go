package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"court-intake-service/internal/models"
)

func (d *DB) CreateDownloadTask(ctx context.Context, t models.DownloadTask) error {
	rid, err := uuid.Parse(t.RecordID)
	if err != nil {
		return fmt.Errorf("invalid record id %q: %w", t.RecordID, err)
	}
	now := time.Now().UTC()
	_, err = d.Pool.Exec(ctx, `
	INSERT INTO download_tasks (job_id, record_id, link, outcome, files, error, created_at, updated_at)
	VALUES ($1, $2, $3, $4, '{}', '', $5, $5)`,
		t.JobID, rid, t.Link, string(models.DownloadPending), now)
	if err != nil {
		return fmt.Errorf("failed to create download task: %w", err)
	}
	return nil
}

// CompleteDownloadTask stores the outcome reported by a completion event.
func (d *DB) CompleteDownloadTask(ctx context.Context, ev models.DownloadEvent) error {
	tag, err := d.Pool.Exec(ctx, `
	UPDATE download_tasks SET outcome = $1, files = $2, error = $3, updated_at = $4
	WHERE job_id = $5`,
		string(ev.Outcome), nonNil(ev.Files), ev.Error, time.Now().UTC(), ev.JobID)
	if err != nil {
		return fmt.Errorf("failed to complete download task %s: %w", ev.JobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("download task %s: %w", ev.JobID, ErrNotFound)
	}
	return nil
}

func (d *DB) GetDownloadTask(ctx context.Context, jobID string) (models.DownloadTask, error) {
	var (
		t       models.DownloadTask
		outcome string
		rid     pgtype.UUID
	)
	err := d.Pool.QueryRow(ctx, `
	SELECT job_id, record_id, link, outcome, files, error, created_at, updated_at
	FROM download_tasks WHERE job_id = $1`, jobID).Scan(
		&t.JobID, &rid, &t.Link, &outcome, &t.Files, &t.Error, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.DownloadTask{}, fmt.Errorf("download task %s: %w", jobID, ErrNotFound)
	}
	if err != nil {
		return models.DownloadTask{}, fmt.Errorf("failed to get download task %s: %w", jobID, err)
	}
	t.RecordID = uuid.UUID(rid.Bytes).String()
	t.Outcome = models.DownloadOutcome(outcome)
	return t, nil
}
