package app

import (
	"context"
	"errors"

	"partner_tracker/internal/domain/team"
	"partner_tracker/internal/domain/verification"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type CompletionService interface {
	// CheckMutualCompletion reports whether both members hold a completed verification
	// in the same open cycle. Store failures yield false with the error.
	CheckMutualCompletion(ctx context.Context, teamID uuid.UUID) (bool, error)
	// HandleVerification is registered as a verification hook.
	HandleVerification(ctx context.Context, t *team.Team, v *verification.Verification)
}

// CompletionNotifier emits the deduplicated completion pair.
type CompletionNotifier interface {
	NotifyGoalCompleted(ctx context.Context, t *team.Team) (bool, error)
}

type CompletionServiceImpl struct {
	verifications verification.Repository
	teams         TeamService
	cycles        CycleService
	notifier      CompletionNotifier
	log           *logrus.Entry
}

func NewCompletionService(verifications verification.Repository, teams TeamService, cycles CycleService, notifier CompletionNotifier, log *logrus.Entry) *CompletionServiceImpl {
	return &CompletionServiceImpl{
		verifications: verifications,
		teams:         teams,
		cycles:        cycles,
		notifier:      notifier,
		log:           log.WithField("service", "completion"),
	}
}

func (s *CompletionServiceImpl) CheckMutualCompletion(ctx context.Context, teamID uuid.UUID) (bool, error) {
	t, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		return false, err
	}
	return s.mutual(ctx, t)
}

// mutual closes once, then reads both members back to back.
func (s *CompletionServiceImpl) mutual(ctx context.Context, t *team.Team) (bool, error) {
	if _, err := s.cycles.CloseExpiredCycle(ctx, t.ID); err != nil {
		s.log.WithError(err).WithField("team_id", t.ID).Warn("Closure before completion check failed")
	}

	var latest [2]*verification.Verification
	for i, member := range t.Members() {
		v, err := s.verifications.LatestOpen(ctx, t.ID, member)
		if err != nil {
			if errors.Is(err, verification.ErrNotFound) {
				return false, nil
			}
			s.log.WithError(err).WithField("team_id", t.ID).Warn("Failed to read status for completion check")
			return false, err
		}
		latest[i] = v
	}

	a, b := latest[0], latest[1]
	return a.Status == verification.StatusCompleted &&
		b.Status == verification.StatusCompleted &&
		a.CycleStart.Equal(b.CycleStart), nil
}

func (s *CompletionServiceImpl) HandleVerification(ctx context.Context, t *team.Team, v *verification.Verification) {
	if v.Status != verification.StatusCompleted {
		return
	}
	logCtx := s.log.WithField("team_id", t.ID)

	done, err := s.mutual(ctx, t)
	if err != nil || !done {
		return
	}
	created, err := s.notifier.NotifyGoalCompleted(ctx, t)
	if err != nil {
		logCtx.WithError(err).Error("Failed to emit mutual completion notifications")
		return
	}
	logCtx.WithField("created", created).Info("Mutual completion detected")
}
