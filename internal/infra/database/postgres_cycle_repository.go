package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"partner_tracker/internal/domain/cycle"

	"github.com/google/uuid"
)

type PostgresCycleRepository struct {
	db *sql.DB
}

func NewPostgresCycleRepository(db *sql.DB) *PostgresCycleRepository {
	return &PostgresCycleRepository{db: db}
}

func (r *PostgresCycleRepository) OldestOpenStart(ctx context.Context, teamID uuid.UUID) (time.Time, bool, error) {
	query := `SELECT MIN(cycle_start) FROM (
                  SELECT cycle_start FROM verifications WHERE team_id = $1 AND cycle_end IS NULL
                  UNION ALL
                  SELECT cycle_start FROM goals WHERE team_id = $1 AND cycle_end IS NULL
              ) open_rows`
	var start sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, teamID).Scan(&start); err != nil {
		return time.Time{}, false, fmt.Errorf("error reading oldest open cycle start: %w", err)
	}
	return start.Time, start.Valid, nil
}

// Close runs the store-side close_team_cycle procedure.
func (r *PostgresCycleRepository) Close(ctx context.Context, teamID uuid.UUID, boundary time.Time) (cycle.Closure, error) {
	c := cycle.Closure{TeamID: teamID, Boundary: boundary}
	query := `SELECT verifications_closed, goals_closed FROM close_team_cycle($1, $2)`
	if err := r.db.QueryRowContext(ctx, query, teamID, boundary).Scan(&c.Verifications, &c.Goals); err != nil {
		return c, fmt.Errorf("error closing cycle: %w", err)
	}
	return c, nil
}

func (r *PostgresCycleRepository) ListTeamsWithOpenCycles(ctx context.Context) ([]uuid.UUID, error) {
	query := `SELECT team_id FROM verifications WHERE cycle_end IS NULL
              UNION
              SELECT team_id FROM goals WHERE cycle_end IS NULL`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing teams with open cycles: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning team id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating teams with open cycles: %w", err)
	}
	return ids, nil
}
