package app

import (
	"context"
	"testing"
	"time"

	"partner_tracker/internal/domain/cycle"
	"partner_tracker/internal/domain/goal"
	"partner_tracker/internal/domain/schedule"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGoal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(monday.Add(7*time.Hour), nil)
	tm, a, _ := env.pair(schedule.Daily())

	t.Run("rejects empty text", func(t *testing.T) {
		_, err := env.engine.Goals.SetGoal(ctx, tm.ID, a, "   ")
		assert.ErrorIs(t, err, ErrEmptyGoal)
	})

	t.Run("creates then updates the live goal", func(t *testing.T) {
		g, err := env.engine.Goals.SetGoal(ctx, tm.ID, a, " Run 5k ")
		require.NoError(t, err)
		assert.Equal(t, "Run 5k", g.Body)
		assert.Equal(t, monday, g.CycleStart)

		env.clock.Set(monday.Add(8 * time.Hour))
		updated, err := env.engine.Goals.SetGoal(ctx, tm.ID, a, "Run 10k")
		require.NoError(t, err)
		assert.Equal(t, g.ID, updated.ID)
		assert.Equal(t, "Run 10k", updated.Body)

		gv, err := env.engine.Goals.FetchCurrentGoal(ctx, tm.ID, a)
		require.NoError(t, err)
		require.NotNil(t, gv.Goal)
		assert.Equal(t, "Run 10k", gv.Goal.Body)
		assert.False(t, gv.NeedsNewGoal)
	})
}

func TestGoal_NeedsNewGoalLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(monday.Add(7*time.Hour), nil)
	tm, a, _ := env.pair(schedule.Daily())

	gv, err := env.engine.Goals.FetchCurrentGoal(ctx, tm.ID, a)
	require.NoError(t, err)
	assert.False(t, gv.NeedsNewGoal, "a brand-new member has nothing to replace")

	_, err = env.engine.Goals.SetGoal(ctx, tm.ID, a, "Stretch daily")
	require.NoError(t, err)

	env.clock.Set(monday.Add(25 * time.Hour))
	gv, err = env.engine.Goals.FetchCurrentGoal(ctx, tm.ID, a)
	require.NoError(t, err)
	assert.Nil(t, gv.Goal)
	assert.True(t, gv.NeedsNewGoal)

	g, err := env.engine.Goals.SetGoal(ctx, tm.ID, a, "Stretch daily, again")
	require.NoError(t, err)
	assert.Equal(t, monday.Add(24*time.Hour), g.CycleStart)

	gv, err = env.engine.Goals.FetchCurrentGoal(ctx, tm.ID, a)
	require.NoError(t, err)
	assert.False(t, gv.NeedsNewGoal)
	assert.Equal(t, g.ID, gv.Goal.ID)
}

func TestGoal_ClosureSeenByAnotherProcess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(monday.Add(7*time.Hour), nil)
	tm, a, _ := env.pair(schedule.Daily())

	_, err := env.engine.Goals.SetGoal(ctx, tm.ID, a, "Read 20 pages")
	require.NoError(t, err)

	// Another process closes the cycle; this engine's closure hook never fires.
	env.clock.Set(monday.Add(26 * time.Hour))
	_, err = memCycles{env.store}.Close(ctx, tm.ID, monday.Add(24*time.Hour))
	require.NoError(t, err)

	gv, err := env.engine.Goals.FetchCurrentGoal(ctx, tm.ID, a)
	require.NoError(t, err)
	assert.True(t, gv.NeedsNewGoal)

	t.Run("fresh session derives the flag from history", func(t *testing.T) {
		cycles := NewCycleService(memCycles{env.store}, env.engine.Teams, env.clock.Now, 1, logrus.NewEntry(logrus.New()))
		fresh := NewGoalService(memGoals{env.store}, env.engine.Teams, cycles, logrus.NewEntry(logrus.New()))

		gv, err := fresh.FetchCurrentGoal(ctx, tm.ID, a)
		require.NoError(t, err)
		assert.True(t, gv.NeedsNewGoal)
	})
}

func TestGoal_HandleClosureResetsBothMembers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(monday.Add(7*time.Hour), nil)
	tm, _, _ := env.pair(schedule.Daily())

	env.engine.Goals.HandleClosure(ctx, cycle.Closure{TeamID: tm.ID, Boundary: monday, Goals: 1})

	for _, member := range tm.Members() {
		gv, err := env.engine.Goals.FetchCurrentGoal(ctx, tm.ID, member)
		require.NoError(t, err)
		assert.True(t, gv.NeedsNewGoal)
	}
}

func TestGoal_StoreFailureKeepsCachedView(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(monday.Add(7*time.Hour), nil)
	tm, a, _ := env.pair(schedule.Daily())

	g, err := env.engine.Goals.SetGoal(ctx, tm.ID, a, "Swim")
	require.NoError(t, err)

	env.store.failOn("goal.read", errStoreDown)
	gv, err := env.engine.Goals.FetchCurrentGoal(ctx, tm.ID, a)
	assert.ErrorIs(t, err, errStoreDown)
	require.NotNil(t, gv.Goal)
	assert.Equal(t, g.ID, gv.Goal.ID)
}

func TestSetGoal_DuplicateLiveFromOtherSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(monday.Add(7*time.Hour), nil)
	tm, a, _ := env.pair(schedule.Daily())

	// The other session's goal exists, but this read misses it once.
	require.NoError(t, memGoals{env.store}.Create(ctx, &goal.Goal{TeamID: tm.ID, UserID: a, Body: "old", CycleStart: monday}))
	goals := &missFirstRead{Repository: memGoals{env.store}}
	svc := NewGoalService(goals, env.engine.Teams, env.engine.Cycles, logrus.NewEntry(logrus.New()))

	g, err := svc.SetGoal(ctx, tm.ID, a, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", g.Body)

	live, err := memGoals{env.store}.GetLive(ctx, tm.ID, a)
	require.NoError(t, err)
	assert.Equal(t, "new", live.Body)
}

type missFirstRead struct {
	goal.Repository
	missed bool
}

func (m *missFirstRead) GetLive(ctx context.Context, teamID, userID uuid.UUID) (*goal.Goal, error) {
	if !m.missed {
		m.missed = true
		return nil, goal.ErrNotFound
	}
	return m.Repository.GetLive(ctx, teamID, userID)
}
