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

const recordColumns = `
	id, content, received_at, kind, download_links, case_numbers, party_names,
	status, error_message, retry_count, download_task_id, files, renamed_files,
	case_id, case_log_id, sent_at, notify_error, created_at, updated_at`

// RecordFilter narrows ListRecords. Zero values are ignored.
type RecordFilter struct {
	Statuses      []models.Status
	UpdatedBefore time.Time
	CreatedAfter  time.Time
	Limit         int
	Offset        int
}

func (d *DB) CreateRecord(ctx context.Context, r *models.Record) error {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return fmt.Errorf("invalid record id %q: %w", r.ID, err)
	}
	query := `
	INSERT INTO intake_records (` + recordColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err = d.Pool.Exec(ctx, query,
		id, r.Content, r.ReceivedAt, kindParam(r.Kind), nonNil(r.DownloadLinks), nonNil(r.CaseNumbers),
		nonNil(r.PartyNames), string(r.Status), r.ErrorMessage, r.RetryCount, r.DownloadTaskID,
		nonNil(r.Files), nonNil(r.RenamedFiles), r.CaseID, r.CaseLogID, r.SentAt, r.NotifyError,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

func (d *DB) GetRecord(ctx context.Context, id string) (*models.Record, error) {
	rid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid record id %q: %w", id, ErrNotFound)
	}
	row := d.Pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM intake_records WHERE id = $1`, rid)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return rec, nil
}

// GetRecordByDownloadTask finds the record waiting on a download job.
func (d *DB) GetRecordByDownloadTask(ctx context.Context, taskID string) (*models.Record, error) {
	row := d.Pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM intake_records WHERE download_task_id = $1 ORDER BY updated_at DESC LIMIT 1`,
		taskID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("record for download task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record for download task %s: %w", taskID, err)
	}
	return rec, nil
}

// SaveRecord writes every mutable field, but only while the stored status
// still equals expected. It returns ErrStateConflict otherwise.
func (d *DB) SaveRecord(ctx context.Context, r *models.Record, expected models.Status) error {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return fmt.Errorf("invalid record id %q: %w", r.ID, err)
	}
	r.UpdatedAt = time.Now().UTC()
	query := `
	UPDATE intake_records
	SET kind = $1, download_links = $2, case_numbers = $3, party_names = $4,
	    status = $5, error_message = $6, retry_count = $7, download_task_id = $8,
	    files = $9, renamed_files = $10, case_id = $11, case_log_id = $12,
	    sent_at = $13, notify_error = $14, updated_at = $15
	WHERE id = $16 AND status = $17`
	tag, err := d.Pool.Exec(ctx, query,
		kindParam(r.Kind), nonNil(r.DownloadLinks), nonNil(r.CaseNumbers), nonNil(r.PartyNames),
		string(r.Status), r.ErrorMessage, r.RetryCount, r.DownloadTaskID,
		nonNil(r.Files), nonNil(r.RenamedFiles), r.CaseID, r.CaseLogID,
		r.SentAt, r.NotifyError, r.UpdatedAt, id, string(expected),
	)
	if err != nil {
		return fmt.Errorf("failed to save record %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s no longer %s: %w", r.ID, expected, ErrStateConflict)
	}
	return nil
}

// SaveFiles updates the downloaded and, unless renamed is nil, the renamed
// files of a record that is still in expected. Other columns are left alone.
func (d *DB) SaveFiles(ctx context.Context, id string, files, renamed []string, expected models.Status) error {
	rid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid record id %q: %w", id, err)
	}
	var renamedParam interface{}
	if renamed != nil {
		renamedParam = renamed
	}
	query := `
	UPDATE intake_records
	SET files = $1, renamed_files = COALESCE($2::text[], renamed_files), updated_at = $3
	WHERE id = $4 AND status = $5`
	tag, err := d.Pool.Exec(ctx, query, nonNil(files), renamedParam, time.Now().UTC(), rid, string(expected))
	if err != nil {
		return fmt.Errorf("failed to save files of record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s no longer %s: %w", id, expected, ErrStateConflict)
	}
	return nil
}

func (d *DB) ListRecords(ctx context.Context, f RecordFilter) ([]models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM intake_records WHERE TRUE`
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		query += " AND status = ANY(" + arg(statuses) + ")"
	}
	if !f.UpdatedBefore.IsZero() {
		query += " AND updated_at < " + arg(f.UpdatedBefore)
	}
	if !f.CreatedAfter.IsZero() {
		query += " AND created_at > " + arg(f.CreatedAfter)
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var list []models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

func scanRecord(row pgx.Row) (*models.Record, error) {
	var (
		r      models.Record
		id     pgtype.UUID
		kind   *string
		status string
	)
	err := row.Scan(
		&id, &r.Content, &r.ReceivedAt, &kind, &r.DownloadLinks, &r.CaseNumbers, &r.PartyNames,
		&status, &r.ErrorMessage, &r.RetryCount, &r.DownloadTaskID, &r.Files, &r.RenamedFiles,
		&r.CaseID, &r.CaseLogID, &r.SentAt, &r.NotifyError, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.ID = uuid.UUID(id.Bytes).String()
	r.Status = models.Status(status)
	if kind != nil {
		k := models.Kind(*kind)
		r.Kind = &k
	}
	return &r, nil
}

func kindParam(k *models.Kind) *string {
	if k == nil {
		return nil
	}
	s := string(*k)
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
