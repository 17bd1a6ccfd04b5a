package db

import (
	"context"
	"fmt"
)

// CreateLog binds message content to a case as a new log entry.
func (d *DB) CreateLog(ctx context.Context, caseID int64, content string) (int64, error) {
	var id int64
	err := d.Pool.QueryRow(ctx,
		`INSERT INTO case_logs (case_id, content, created_at) VALUES ($1, $2, NOW()) RETURNING id`,
		caseID, content).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create log for case %d: %w", caseID, err)
	}
	return id, nil
}

func (d *DB) Attach(ctx context.Context, logID int64, filePath string) error {
	_, err := d.Pool.Exec(ctx,
		`INSERT INTO case_log_attachments (log_id, file_path, created_at) VALUES ($1, $2, NOW())`,
		logID, filePath)
	if err != nil {
		return fmt.Errorf("failed to attach %s to log %d: %w", filePath, logID, err)
	}
	return nil
}
