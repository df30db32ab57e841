//go:build integration

package database_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"partner_tracker/internal/app"
	"partner_tracker/internal/domain/notification"
	"partner_tracker/internal/domain/schedule"
	"partner_tracker/internal/domain/team"
	"partner_tracker/internal/domain/verification"
	idb "partner_tracker/internal/infra/database"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type pgEnv struct {
	db  *sql.DB
	dsn string
	log *logrus.Entry
}

func setupPostgres(t *testing.T) *pgEnv {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("partner_tracker"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := idb.NewPostgresConnection(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log, _ := test.NewNullLogger()
	entry := logrus.NewEntry(log)
	require.NoError(t, idb.Migrate(ctx, db, entry))
	// Running twice must be a no-op.
	require.NoError(t, idb.Migrate(ctx, db, entry))

	return &pgEnv{db: db, dsn: dsn, log: entry}
}

func (e *pgEnv) addUser(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := e.db.Exec(`INSERT INTO users (id, display_name) VALUES ($1, $2)`, id, name)
	require.NoError(t, err)
	return id
}

func (e *pgEnv) addTeam(t *testing.T, a, b uuid.UUID, freq schedule.Frequency) *team.Team {
	t.Helper()
	tm := &team.Team{ID: uuid.New(), MemberA: a, MemberB: b, Category: "running", Frequency: freq}
	require.NoError(t, idb.NewPostgresTeamRepository(e.db).Create(context.Background(), tm))
	return tm
}

func TestIntegration_ConcurrentClosersConverge(t *testing.T) {
	env := setupPostgres(t)
	ctx := context.Background()
	a, b := env.addUser(t, "Alice"), env.addUser(t, "Bob")
	tm := env.addTeam(t, a, b, schedule.Daily())

	verifications := idb.NewPostgresVerificationRepository(env.db)
	cycles := idb.NewPostgresCycleRepository(env.db)

	start := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	for _, pair := range [][2]uuid.UUID{{a, b}, {b, a}} {
		applied, err := verifications.Upsert(ctx, &verification.Verification{
			TeamID: tm.ID, LoggedBy: pair[0], Verified: pair[1],
			Status: verification.StatusCompleted, CycleStart: start, CreatedAt: start,
		})
		require.NoError(t, err)
		require.True(t, applied)
	}

	oldest, found, err := cycles.OldestOpenStart(ctx, tm.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, oldest.Equal(start))

	boundary := start.Add(24 * time.Hour)
	const closers = 8
	totals := make([]int64, closers)
	var wg sync.WaitGroup
	for i := 0; i < closers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := cycles.Close(ctx, tm.ID, boundary)
			assert.NoError(t, err)
			totals[i] = c.Total()
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, n := range totals {
		if n > 0 {
			winners++
			assert.Equal(t, int64(2), n)
		}
	}
	assert.Equal(t, 1, winners)

	// A closed row is never reopened by a late upsert.
	applied, err := verifications.Upsert(ctx, &verification.Verification{
		TeamID: tm.ID, LoggedBy: a, Verified: b,
		Status: verification.StatusPending, CycleStart: start, CreatedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.False(t, applied)

	// A boundary in the future closes nothing.
	c, err := cycles.Close(ctx, tm.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, c.Total())
}

func TestIntegration_EngineFlow(t *testing.T) {
	env := setupPostgres(t)
	ctx := context.Background()
	a, b := env.addUser(t, "Alice"), env.addUser(t, "Bob")
	tm := env.addTeam(t, a, b, schedule.Daily())

	engine := app.NewEngine(app.Deps{
		Teams:            idb.NewPostgresTeamRepository(env.db),
		Cycles:           idb.NewPostgresCycleRepository(env.db),
		Verifications:    idb.NewPostgresVerificationRepository(env.db),
		Goals:            idb.NewPostgresGoalRepository(env.db),
		Notifications:    idb.NewPostgresNotificationRepository(env.db),
		Clock:            app.SystemClock(time.UTC),
		DedupWindow:      24 * time.Hour,
		SweepConcurrency: 2,
		TeamCacheSize:    8,
		TeamCacheTTL:     time.Minute,
		Log:              env.log,
	})

	_, err := engine.Goals.SetGoal(ctx, tm.ID, a, "Run 5k")
	require.NoError(t, err)
	_, err = engine.Goals.SetGoal(ctx, tm.ID, a, "Run 10k")
	require.NoError(t, err)
	gv, err := engine.Goals.FetchCurrentGoal(ctx, tm.ID, a)
	require.NoError(t, err)
	require.NotNil(t, gv.Goal)
	assert.Equal(t, "Run 10k", gv.Goal.Body)

	_, err = engine.Verifications.LogVerification(ctx, tm.ID, a, b, verification.StatusCompleted)
	require.NoError(t, err)
	_, err = engine.Verifications.LogVerification(ctx, tm.ID, b, a, verification.StatusCompleted)
	require.NoError(t, err)

	mutual, err := engine.Completion.CheckMutualCompletion(ctx, tm.ID)
	require.NoError(t, err)
	assert.True(t, mutual)

	created, err := engine.Notifications.NotifyGoalCompleted(ctx, tm)
	require.NoError(t, err)
	assert.False(t, created, "the verification hook already emitted the pair")

	for _, member := range []uuid.UUID{a, b} {
		list, err := engine.Notifications.List(ctx, member, true, 0)
		require.NoError(t, err)
		var completed int
		for _, n := range list {
			if n.Type == notification.TypeGoalCompleted {
				completed++
			}
		}
		assert.Equal(t, 1, completed)
	}

	st, err := engine.Status.TeamStatus(ctx, tm.ID, a)
	require.NoError(t, err)
	assert.Empty(t, st.Warnings)
	assert.True(t, st.MutualCompletion)
	assert.Equal(t, "Bob", st.PartnerName)
}

func TestIntegration_ChangeFeed(t *testing.T) {
	env := setupPostgres(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recipient := env.addUser(t, "Alice")

	feed, err := idb.NewChangeFeed(env.dsn, env.log)
	require.NoError(t, err)
	defer feed.Close()

	events, err := feed.Subscribe(ctx, "notifications", nil)
	require.NoError(t, err)
	go feed.Run(ctx)

	err = idb.NewPostgresNotificationRepository(env.db).Create(ctx, &notification.Notification{
		ID:          uuid.New(),
		RecipientID: recipient,
		Type:        notification.TypePartnerRequest,
		Message:     "Bob wants to partner up",
	})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, "notifications", ev.Table)
		assert.Equal(t, "INSERT", ev.Op)
		assert.Equal(t, recipient.String(), ev.RecipientID)
	case <-time.After(10 * time.Second):
		t.Fatal("no change event received")
	}
}
