package app

import (
	"context"
	"testing"
	"time"

	"partner_tracker/internal/domain/schedule"
	"partner_tracker/internal/domain/verification"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeamStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(monday.Add(23*time.Hour+30*time.Minute), nil)
	tm, a, b := env.pair(schedule.Daily())

	_, err := env.engine.Verifications.LogVerification(ctx, tm.ID, b, a, verification.StatusCompleted)
	require.NoError(t, err)
	_, err = env.engine.Goals.SetGoal(ctx, tm.ID, a, "Walk 10k steps")
	require.NoError(t, err)

	st, err := env.engine.Status.TeamStatus(ctx, tm.ID, a)
	require.NoError(t, err)
	assert.Empty(t, st.Warnings)
	assert.Equal(t, "00:30:00", st.Countdown.Label)
	assert.Equal(t, schedule.UrgencyUrgent, st.Countdown.Urgency)
	assert.True(t, st.IsLoggingDay)
	assert.Equal(t, time.Second, st.RefreshInterval)
	assert.Equal(t, b, st.PartnerID)
	assert.Equal(t, verification.StatusCompleted, st.MyStatus)
	assert.Equal(t, verification.StatusPending, st.PartnerStatus)
	assert.False(t, st.HasVerifiedPartner)
	assert.False(t, st.MutualCompletion)
	require.NotNil(t, st.Goal)
	assert.Equal(t, "Walk 10k steps", st.Goal.Body)
	assert.Equal(t, "Alice", st.MyName)
	assert.Equal(t, "Bob", st.PartnerName)
}

func TestTeamStatus_DegradesOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(monday.Add(10*time.Hour), nil)
	tm, a, _ := env.pair(schedule.Weekly("notaday"))

	env.store.failOn("cycle.oldest", errStoreDown)
	env.store.failOn("verification.read", errStoreDown)
	env.store.failOn("goal.read", errStoreDown)
	env.store.failOn("member.get", errStoreDown)

	st, err := env.engine.Status.TeamStatus(ctx, tm.ID, a)
	require.NoError(t, err)
	assert.Equal(t, "Several Days", st.Countdown.Label)
	assert.Equal(t, schedule.UrgencyNormal, st.Countdown.Urgency)
	assert.False(t, st.IsLoggingDay)
	assert.Equal(t, verification.StatusPending, st.MyStatus)
	assert.Equal(t, verification.StatusPending, st.PartnerStatus)
	assert.Equal(t, FallbackSelfName, st.MyName)
	assert.Equal(t, FallbackPartnerName, st.PartnerName)
	assert.Contains(t, st.Warnings, "cycle closure")
	assert.Contains(t, st.Warnings, "partner status")
	assert.Contains(t, st.Warnings, "display names")
}

func TestTeamStatus_NonMember(t *testing.T) {
	env := newTestEnv(monday, nil)
	tm, _, _ := env.pair(schedule.Daily())

	_, err := env.engine.Status.TeamStatus(context.Background(), tm.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotMember)
}
