package app

import (
	"context"
	"time"

	"partner_tracker/internal/domain/goal"
	"partner_tracker/internal/domain/schedule"
	"partner_tracker/internal/domain/team"
	"partner_tracker/internal/domain/verification"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// TeamStatus is everything a member's client renders for one team.
type TeamStatus struct {
	Team            *team.Team
	Countdown       schedule.Countdown
	IsLoggingDay    bool
	RefreshInterval time.Duration

	MyName        string
	PartnerName   string
	PartnerID     uuid.UUID
	MyStatus      verification.Status
	PartnerStatus verification.Status
	// HasVerifiedPartner is true once the viewer logged the partner in this cycle.
	HasVerifiedPartner bool
	MutualCompletion   bool

	Goal         *goal.Goal
	NeedsNewGoal bool

	// Warnings lists the parts that fell back to defaults because the store failed.
	Warnings []string
}

type StatusService interface {
	TeamStatus(ctx context.Context, teamID, viewerID uuid.UUID) (*TeamStatus, error)
}

type StatusServiceImpl struct {
	teams         TeamService
	cycles        CycleService
	verifications VerificationService
	completion    CompletionService
	goals         GoalService
	now           Clock
	log           *logrus.Entry
}

func NewStatusService(teams TeamService, cycles CycleService, verifications VerificationService, completion CompletionService, goals GoalService, now Clock, log *logrus.Entry) *StatusServiceImpl {
	return &StatusServiceImpl{
		teams:         teams,
		cycles:        cycles,
		verifications: verifications,
		completion:    completion,
		goals:         goals,
		now:           now,
		log:           log.WithField("service", "status"),
	}
}

// TeamStatus only fails when the team cannot be resolved for the viewer.
// Every later store failure degrades its field to the default and adds a warning.
func (s *StatusServiceImpl) TeamStatus(ctx context.Context, teamID, viewerID uuid.UUID) (*TeamStatus, error) {
	t, err := s.teams.GetTeamForMember(ctx, teamID, viewerID)
	if err != nil {
		return nil, err
	}
	partnerID, _ := t.PartnerOf(viewerID)
	logCtx := s.log.WithFields(logrus.Fields{"team_id": teamID, "user_id": viewerID})

	st := &TeamStatus{Team: t, PartnerID: partnerID}
	warn := func(what string, err error) {
		logCtx.WithError(err).Warn("Status read degraded: " + what)
		st.Warnings = append(st.Warnings, what)
	}

	if _, err := s.cycles.CloseExpiredCycle(ctx, teamID); err != nil {
		warn("cycle closure", err)
	}

	now := s.now()
	st.Countdown = schedule.Compute(t.Frequency, now)
	st.IsLoggingDay = schedule.IsLoggingDay(t.Frequency, now)
	st.RefreshInterval = schedule.RefreshInterval(t.Frequency)

	if st.MyStatus, err = s.verifications.CurrentStatus(ctx, teamID, viewerID); err != nil {
		warn("my status", err)
	}
	if st.PartnerStatus, err = s.verifications.CurrentStatus(ctx, teamID, partnerID); err != nil {
		warn("partner status", err)
	}
	if st.HasVerifiedPartner, err = s.verifications.HasLiveVerification(ctx, teamID, viewerID, partnerID); err != nil {
		warn("live verification", err)
	}
	if st.MutualCompletion, err = s.completion.CheckMutualCompletion(ctx, teamID); err != nil {
		warn("mutual completion", err)
	}

	gv, err := s.goals.FetchCurrentGoal(ctx, teamID, viewerID)
	if err != nil {
		warn("goal", err)
	}
	st.Goal, st.NeedsNewGoal = gv.Goal, gv.NeedsNewGoal

	if st.MyName, st.PartnerName, err = s.teams.DisplayNames(ctx, t, viewerID); err != nil {
		warn("display names", err)
	}
	return st, nil
}
