package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"partner_tracker/internal/domain/schedule"
	"partner_tracker/internal/domain/team"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var teamRowColumns = []string{"id", "member_a", "member_b", "category", "frequency", "reset_day", "created_at", "ended_at", "ended_by"}

func setupTeamRepo(t *testing.T) (*PostgresTeamRepository, sqlmock.Sqlmock) {
	db, mock := setupMockDB(t)
	return NewPostgresTeamRepository(db), mock
}

func TestPostgresTeamRepository_Create(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("weekly team stores its reset day", func(t *testing.T) {
		repo, mock := setupTeamRepo(t)
		tm := &team.Team{
			ID:        uuid.New(),
			MemberA:   uuid.New(),
			MemberB:   uuid.New(),
			Category:  "running",
			Frequency: schedule.Weekly("monday"),
		}

		mock.ExpectQuery("INSERT INTO teams").
			WithArgs(tm.ID, tm.MemberA, tm.MemberB, "running", "weekly", "monday").
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

		require.NoError(t, repo.Create(ctx, tm))
		assert.Equal(t, now, tm.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("daily team stores a null reset day", func(t *testing.T) {
		repo, mock := setupTeamRepo(t)
		tm := &team.Team{ID: uuid.New(), MemberA: uuid.New(), MemberB: uuid.New(), Category: "reading", Frequency: schedule.Daily()}

		mock.ExpectQuery("INSERT INTO teams").
			WithArgs(tm.ID, tm.MemberA, tm.MemberB, "reading", "daily", nil).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

		require.NoError(t, repo.Create(ctx, tm))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error is wrapped", func(t *testing.T) {
		repo, mock := setupTeamRepo(t)
		dbErr := errors.New("connection reset")

		mock.ExpectQuery("INSERT INTO teams").WillReturnError(dbErr)

		err := repo.Create(ctx, &team.Team{ID: uuid.New(), Frequency: schedule.Daily()})
		assert.ErrorIs(t, err, dbErr)
	})
}

func TestPostgresTeamRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	id, a, b, ender := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ended := created.Add(48 * time.Hour)

	t.Run("ended weekly team", func(t *testing.T) {
		repo, mock := setupTeamRepo(t)

		mock.ExpectQuery("SELECT (.+) FROM teams WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(teamRowColumns).
				AddRow(id.String(), a.String(), b.String(), "yoga", "weekly", "friday", created, ended, ender.String()))

		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)

		assert.Equal(t, id, got.ID)
		assert.Equal(t, [2]uuid.UUID{a, b}, got.Members())
		assert.Equal(t, schedule.Weekly("friday"), got.Frequency)
		assert.True(t, got.IsEnded())
		assert.Equal(t, ender, got.EndedBy.UUID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("active daily team", func(t *testing.T) {
		repo, mock := setupTeamRepo(t)

		mock.ExpectQuery("SELECT (.+) FROM teams WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(teamRowColumns).
				AddRow(id.String(), a.String(), b.String(), "yoga", "daily", nil, created, nil, nil))

		got, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.False(t, got.IsEnded())
		assert.False(t, got.EndedBy.Valid)
		assert.Equal(t, schedule.Daily(), got.Frequency)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := setupTeamRepo(t)

		mock.ExpectQuery("SELECT (.+) FROM teams").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(teamRowColumns))

		_, err := repo.GetByID(ctx, id)
		assert.ErrorIs(t, err, team.ErrNotFound)
	})
}

func TestPostgresTeamRepository_ListActive(t *testing.T) {
	repo, mock := setupTeamRepo(t)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM teams WHERE ended_at IS NULL").
		WillReturnRows(sqlmock.NewRows(teamRowColumns).
			AddRow(uuid.NewString(), uuid.NewString(), uuid.NewString(), "a", "daily", nil, now, nil, nil).
			AddRow(uuid.NewString(), uuid.NewString(), uuid.NewString(), "b", "weekly", "sun", now, nil, nil))

	teams, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, "b", teams[1].Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTeamRepository_End(t *testing.T) {
	ctx := context.Background()
	id, by := uuid.New(), uuid.New()
	at := time.Now()

	t.Run("first end wins", func(t *testing.T) {
		repo, mock := setupTeamRepo(t)

		mock.ExpectExec("UPDATE teams SET ended_at").
			WithArgs(id, by, at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.End(ctx, id, by, at))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already ended", func(t *testing.T) {
		repo, mock := setupTeamRepo(t)

		mock.ExpectExec("UPDATE teams SET ended_at").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		assert.ErrorIs(t, repo.End(ctx, id, by, at), team.ErrAlreadyEnded)
	})

	t.Run("missing team", func(t *testing.T) {
		repo, mock := setupTeamRepo(t)

		mock.ExpectExec("UPDATE teams SET ended_at").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		assert.ErrorIs(t, repo.End(ctx, id, by, at), team.ErrNotFound)
	})
}

func TestPostgresTeamRepository_GetMember(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("linked telegram account", func(t *testing.T) {
		repo, mock := setupTeamRepo(t)

		mock.ExpectQuery("SELECT id, display_name, telegram_id FROM users WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "telegram_id"}).AddRow(id.String(), "Ana", int64(4242)))

		m, err := repo.GetMember(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Ana", m.NameOr("Partner"))
		assert.Equal(t, int64(4242), m.TelegramID.Int64)
	})

	t.Run("lookup by telegram id misses", func(t *testing.T) {
		repo, mock := setupTeamRepo(t)

		mock.ExpectQuery("FROM users WHERE telegram_id = \\$1").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "display_name", "telegram_id"}))

		_, err := repo.GetMemberByTelegramID(ctx, 7)
		assert.ErrorIs(t, err, team.ErrMemberNotFound)
	})
}
