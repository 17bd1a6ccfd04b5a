package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"court-intake-service/internal/models"
)

const caseSelect = `
	SELECT c.id, c.name, c.status, c.case_type, c.current_stage, c.chat_id, c.created_at,
	       ARRAY(SELECT n.number FROM case_numbers n WHERE n.case_id = c.id ORDER BY n.number),
	       ARRAY(SELECT p.name FROM case_parties cp JOIN parties p ON p.id = cp.party_id
	             WHERE cp.case_id = c.id ORDER BY p.name)
	FROM cases c`

// FindByCaseNumber returns every case, active or closed, carrying number.
func (d *DB) FindByCaseNumber(ctx context.Context, number string) ([]models.Case, error) {
	return d.queryCases(ctx,
		caseSelect+` WHERE c.id IN (SELECT case_id FROM case_numbers WHERE number = $1) ORDER BY c.id`,
		number)
}

// FindByParties returns cases associated with any of names. An empty status matches all.
func (d *DB) FindByParties(ctx context.Context, names []string, status models.CaseStatus) ([]models.Case, error) {
	if len(names) == 0 {
		return nil, nil
	}
	return d.queryCases(ctx, caseSelect+`
	WHERE c.id IN (
		SELECT cp.case_id FROM case_parties cp JOIN parties p ON p.id = cp.party_id
		WHERE p.name = ANY($1)
	) AND ($2 = '' OR c.status = $2)
	ORDER BY c.id`, names, string(status))
}

func (d *DB) GetPartyNames(ctx context.Context, caseID int64) ([]string, error) {
	rows, err := d.Pool.Query(ctx, `
	SELECT p.name FROM case_parties cp JOIN parties p ON p.id = cp.party_id
	WHERE cp.case_id = $1 ORDER BY p.name`, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get party names for case %d: %w", caseID, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan party names for case %d: %w", caseID, err)
	}
	return names, nil
}

// KnownParties lists every party in the directory, staff included.
func (d *DB) KnownParties(ctx context.Context) ([]models.Party, error) {
	rows, err := d.Pool.Query(ctx, `SELECT id, name, is_staff FROM parties ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list parties: %w", err)
	}
	defer rows.Close()

	var parties []models.Party
	for rows.Next() {
		var p models.Party
		if err := rows.Scan(&p.ID, &p.Name, &p.IsStaff); err != nil {
			return nil, fmt.Errorf("failed to scan party: %w", err)
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

func (d *DB) GetCase(ctx context.Context, caseID int64) (*models.Case, error) {
	cases, err := d.queryCases(ctx, caseSelect+` WHERE c.id = $1`, caseID)
	if err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("case %d: %w", caseID, ErrNotFound)
	}
	return &cases[0], nil
}

func (d *DB) AddCaseNumber(ctx context.Context, caseID int64, number string) error {
	_, err := d.Pool.Exec(ctx,
		`INSERT INTO case_numbers (case_id, number) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		caseID, number)
	if err != nil {
		return fmt.Errorf("failed to add case number to case %d: %w", caseID, err)
	}
	return nil
}

// ChatIDForCase resolves the collaboration channel of a case.
func (d *DB) ChatIDForCase(ctx context.Context, caseID int64) (int64, error) {
	var chatID int64
	err := d.Pool.QueryRow(ctx, `SELECT chat_id FROM cases WHERE id = $1`, caseID).Scan(&chatID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("case %d: %w", caseID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get chat for case %d: %w", caseID, err)
	}
	return chatID, nil
}

func (d *DB) queryCases(ctx context.Context, query string, args ...interface{}) ([]models.Case, error) {
	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cases: %w", err)
	}
	defer rows.Close()

	var list []models.Case
	for rows.Next() {
		var (
			c                    models.Case
			status, ctype, stage string
		)
		if err := rows.Scan(&c.ID, &c.Name, &status, &ctype, &stage, &c.ChatID, &c.CreatedAt,
			&c.CaseNumbers, &c.PartyNames); err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		c.Status = models.CaseStatus(status)
		c.Type = models.CaseType(ctype)
		c.Stage = models.CaseStage(stage)
		list = append(list, c)
	}
	return list, rows.Err()
}
