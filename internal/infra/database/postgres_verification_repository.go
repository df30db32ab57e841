package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"partner_tracker/internal/domain/verification"

	"github.com/google/uuid"
)

const verificationColumns = `id, team_id, logged_by, verified, status, created_at, cycle_start, cycle_end`

type PostgresVerificationRepository struct {
	db *sql.DB
}

func NewPostgresVerificationRepository(db *sql.DB) *PostgresVerificationRepository {
	return &PostgresVerificationRepository{db: db}
}

func scanVerification(row rowScanner) (*verification.Verification, error) {
	v := &verification.Verification{}
	var status string
	if err := row.Scan(&v.ID, &v.TeamID, &v.LoggedBy, &v.Verified, &status, &v.CreatedAt, &v.CycleStart, &v.CycleEnd); err != nil {
		return nil, err
	}
	v.Status = verification.Status(status)
	return v, nil
}

// Upsert writes v for its cycle. A row of the same subject and cycle_start is
// replaced only while its cycle is still open.
func (r *PostgresVerificationRepository) Upsert(ctx context.Context, v *verification.Verification) (bool, error) {
	query := `INSERT INTO verifications (team_id, logged_by, verified, status, cycle_start, created_at)
               VALUES ($1, $2, $3, $4, $5, $6)
               ON CONFLICT ON CONSTRAINT verifications_team_subject_cycle_key DO UPDATE
                  SET status = EXCLUDED.status,
                      logged_by = EXCLUDED.logged_by,
                      created_at = EXCLUDED.created_at
                WHERE verifications.cycle_end IS NULL
               RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, v.TeamID, v.LoggedBy, v.Verified, string(v.Status), v.CycleStart, v.CreatedAt).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("error upserting verification: %w", err)
	}
	return true, nil
}

func (r *PostgresVerificationRepository) HasLive(ctx context.Context, teamID, verifierID, subjectID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (
                  SELECT 1 FROM verifications
                   WHERE team_id = $1 AND logged_by = $2 AND verified = $3 AND cycle_end IS NULL
              )`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, teamID, verifierID, subjectID).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking live verification: %w", err)
	}
	return exists, nil
}

func (r *PostgresVerificationRepository) LatestOpen(ctx context.Context, teamID, subjectID uuid.UUID) (*verification.Verification, error) {
	query := `SELECT ` + verificationColumns + `
                FROM verifications
               WHERE team_id = $1 AND verified = $2 AND cycle_end IS NULL
               ORDER BY created_at DESC
               LIMIT 1`
	v, err := scanVerification(r.db.QueryRowContext(ctx, query, teamID, subjectID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, verification.ErrNotFound
		}
		return nil, fmt.Errorf("error getting latest open verification: %w", err)
	}
	return v, nil
}

func (r *PostgresVerificationRepository) ListByTeam(ctx context.Context, teamID uuid.UUID, limit int) ([]*verification.Verification, error) {
	query := `SELECT ` + verificationColumns + `
                FROM verifications
               WHERE team_id = $1
               ORDER BY created_at DESC
               LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, teamID, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing verifications: %w", err)
	}
	defer rows.Close()

	var out []*verification.Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning verification: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating verifications: %w", err)
	}
	return out, nil
}
