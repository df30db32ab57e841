package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"partner_tracker/internal/domain/goal"

	"github.com/google/uuid"
)

type PostgresGoalRepository struct {
	db *sql.DB
}

func NewPostgresGoalRepository(db *sql.DB) *PostgresGoalRepository {
	return &PostgresGoalRepository{db: db}
}

func (r *PostgresGoalRepository) GetLive(ctx context.Context, teamID, userID uuid.UUID) (*goal.Goal, error) {
	query := `SELECT id, team_id, user_id, body, created_at, updated_at, cycle_start, cycle_end
                FROM goals
               WHERE team_id = $1 AND user_id = $2 AND cycle_end IS NULL
               ORDER BY created_at DESC
               LIMIT 1`
	g := &goal.Goal{}
	err := r.db.QueryRowContext(ctx, query, teamID, userID).
		Scan(&g.ID, &g.TeamID, &g.UserID, &g.Body, &g.CreatedAt, &g.UpdatedAt, &g.CycleStart, &g.CycleEnd)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, goal.ErrNotFound
		}
		return nil, fmt.Errorf("error getting live goal: %w", err)
	}
	return g, nil
}

func (r *PostgresGoalRepository) Create(ctx context.Context, g *goal.Goal) error {
	query := `INSERT INTO goals (team_id, user_id, body, cycle_start)
               VALUES ($1, $2, $3, $4)
               RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, g.TeamID, g.UserID, g.Body, g.CycleStart).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "goals_one_live_per_user") {
			return goal.ErrDuplicateLive
		}
		return fmt.Errorf("error creating goal: %w", err)
	}
	return nil
}

// UpdateBody rewrites a goal that is still live.
func (r *PostgresGoalRepository) UpdateBody(ctx context.Context, id int64, body string) (time.Time, error) {
	query := `UPDATE goals SET body = $2, updated_at = NOW()
               WHERE id = $1 AND cycle_end IS NULL
               RETURNING updated_at`
	var updatedAt time.Time
	if err := r.db.QueryRowContext(ctx, query, id, body).Scan(&updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, goal.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("error updating goal: %w", err)
	}
	return updatedAt, nil
}

func (r *PostgresGoalRepository) HasClosed(ctx context.Context, teamID, userID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (
                  SELECT 1 FROM goals WHERE team_id = $1 AND user_id = $2 AND cycle_end IS NOT NULL
              )`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, teamID, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("error checking closed goals: %w", err)
	}
	return exists, nil
}
