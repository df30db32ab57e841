package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"partner_tracker/internal/domain/schedule"
	"partner_tracker/internal/domain/team"

	"github.com/google/uuid"
)

const teamColumns = `id, member_a, member_b, category, frequency, reset_day, created_at, ended_at, ended_by`

type PostgresTeamRepository struct {
	db *sql.DB
}

func NewPostgresTeamRepository(db *sql.DB) *PostgresTeamRepository {
	return &PostgresTeamRepository{db: db}
}

func scanTeam(row rowScanner) (*team.Team, error) {
	t := &team.Team{}
	var (
		kind string
		day  sql.NullString
	)
	if err := row.Scan(&t.ID, &t.MemberA, &t.MemberB, &t.Category, &kind, &day, &t.CreatedAt, &t.EndedAt, &t.EndedBy); err != nil {
		return nil, err
	}
	t.Frequency = schedule.Frequency{Kind: schedule.Kind(kind), Day: day.String}
	return t, nil
}

func (r *PostgresTeamRepository) Create(ctx context.Context, t *team.Team) error {
	query := `INSERT INTO teams (id, member_a, member_b, category, frequency, reset_day)
               VALUES ($1, $2, $3, $4, $5, $6)
               RETURNING created_at`
	resetDay := sql.NullString{String: t.Frequency.Day, Valid: t.Frequency.Kind == schedule.KindWeekly}
	err := r.db.QueryRowContext(ctx, query, t.ID, t.MemberA, t.MemberB, t.Category, string(t.Frequency.Kind), resetDay).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating team: %w", err)
	}
	return nil
}

func (r *PostgresTeamRepository) GetByID(ctx context.Context, id uuid.UUID) (*team.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`
	t, err := scanTeam(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, team.ErrNotFound
		}
		return nil, fmt.Errorf("error getting team by ID: %w", err)
	}
	return t, nil
}

func (r *PostgresTeamRepository) ListActive(ctx context.Context) ([]*team.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE ended_at IS NULL ORDER BY created_at`
	return r.list(ctx, "active teams", query)
}

func (r *PostgresTeamRepository) ListByMember(ctx context.Context, userID uuid.UUID) ([]*team.Team, error) {
	query := `SELECT ` + teamColumns + ` FROM teams WHERE member_a = $1 OR member_b = $1 ORDER BY created_at DESC`
	return r.list(ctx, "teams by member", query, userID)
}

func (r *PostgresTeamRepository) list(ctx context.Context, what, query string, args ...any) ([]*team.Team, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing %s: %w", what, err)
	}
	defer rows.Close()

	var teams []*team.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning %s: %w", what, err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", what, err)
	}
	return teams, nil
}

func (r *PostgresTeamRepository) End(ctx context.Context, id, by uuid.UUID, at time.Time) error {
	query := `UPDATE teams SET ended_at = $3, ended_by = $2 WHERE id = $1 AND ended_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, by, at)
	if err != nil {
		return fmt.Errorf("error ending team: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected for team end: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM teams WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("error checking team existence: %w", err)
	}
	if !exists {
		return team.ErrNotFound
	}
	return team.ErrAlreadyEnded
}

func (r *PostgresTeamRepository) GetMember(ctx context.Context, userID uuid.UUID) (*team.Member, error) {
	query := `SELECT id, display_name, telegram_id FROM users WHERE id = $1`
	return r.getMember(ctx, query, userID)
}

func (r *PostgresTeamRepository) GetMemberByTelegramID(ctx context.Context, telegramID int64) (*team.Member, error) {
	query := `SELECT id, display_name, telegram_id FROM users WHERE telegram_id = $1`
	return r.getMember(ctx, query, telegramID)
}

func (r *PostgresTeamRepository) getMember(ctx context.Context, query string, arg any) (*team.Member, error) {
	m := &team.Member{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&m.UserID, &m.DisplayName, &m.TelegramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, team.ErrMemberNotFound
		}
		return nil, fmt.Errorf("error getting member: %w", err)
	}
	return m, nil
}
