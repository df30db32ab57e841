package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"partner_tracker/internal/domain/team"
	"partner_tracker/internal/domain/verification"
	"partner_tracker/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// VerificationHook runs after a verification was written.
type VerificationHook func(ctx context.Context, t *team.Team, v *verification.Verification)

// VerificationService is the activity log. Every read closes an expired cycle first.
// Reads return a safe default together with any store error.
type VerificationService interface {
	LogVerification(ctx context.Context, teamID, verifierID, subjectID uuid.UUID, status verification.Status) (*verification.Verification, error)
	HasLiveVerification(ctx context.Context, teamID, verifierID, subjectID uuid.UUID) (bool, error)
	CurrentStatus(ctx context.Context, teamID, subjectID uuid.UUID) (verification.Status, error)
	History(ctx context.Context, teamID, viewerID uuid.UUID, limit int) ([]*verification.Verification, error)
	OnLogged(hook VerificationHook)
}

type VerificationServiceImpl struct {
	verifications verification.Repository
	teams         TeamService
	cycles        CycleService
	now           Clock
	log           *logrus.Entry

	hooksMu sync.RWMutex
	hooks   []VerificationHook
}

func NewVerificationService(verifications verification.Repository, teams TeamService, cycles CycleService, now Clock, log *logrus.Entry) *VerificationServiceImpl {
	return &VerificationServiceImpl{
		verifications: verifications,
		teams:         teams,
		cycles:        cycles,
		now:           now,
		log:           log.WithField("service", "verification"),
	}
}

func (s *VerificationServiceImpl) OnLogged(hook VerificationHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *VerificationServiceImpl) LogVerification(ctx context.Context, teamID, verifierID, subjectID uuid.UUID, status verification.Status) (*verification.Verification, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if verifierID == subjectID {
		return nil, ErrSelfVerification
	}
	t, err := s.teams.ActiveTeamForMember(ctx, teamID, verifierID)
	if err != nil {
		return nil, err
	}
	if !t.HasMember(subjectID) {
		return nil, ErrNotMember
	}

	logCtx := s.log.WithFields(logrus.Fields{
		"team_id":  teamID,
		"verifier": verifierID,
		"subject":  subjectID,
		"status":   status,
	})

	// A second attempt is needed only when the row we collide with was closed
	// between our closure check and the write.
	for attempt := 0; attempt < 2; attempt++ {
		if _, err := s.cycles.CloseExpiredCycle(ctx, teamID); err != nil {
			logCtx.WithError(err).Error("Failed to close expired cycle before logging verification")
			return nil, fmt.Errorf("failed to close expired cycle: %w", err)
		}
		start, err := s.cycles.CurrentCycleStart(ctx, t)
		if err != nil {
			logCtx.WithError(err).Error("Failed to resolve current cycle start")
			return nil, fmt.Errorf("failed to resolve current cycle: %w", err)
		}

		v := &verification.Verification{
			TeamID:     teamID,
			LoggedBy:   verifierID,
			Verified:   subjectID,
			Status:     status,
			CycleStart: start,
			CreatedAt:  s.now(),
		}
		applied, err := s.verifications.Upsert(ctx, v)
		if err != nil {
			logCtx.WithError(err).Error("Failed to write verification")
			return nil, err
		}
		if !applied {
			logCtx.WithField("cycle_start", start).Debug("Verification hit a closed cycle, retrying")
			continue
		}

		metrics.VerificationsLogged.WithLabelValues(string(status)).Inc()
		logCtx.WithField("cycle_start", start).Info("Verification logged")
		s.runHooks(ctx, t, v)
		return v, nil
	}
	return nil, errors.New("verification kept landing in a closed cycle")
}

func (s *VerificationServiceImpl) runHooks(ctx context.Context, t *team.Team, v *verification.Verification) {
	s.hooksMu.RLock()
	hooks := append([]VerificationHook(nil), s.hooks...)
	s.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, t, v)
	}
}

// catchUp closes an expired cycle before a read. A failure only costs freshness.
func (s *VerificationServiceImpl) catchUp(ctx context.Context, teamID uuid.UUID) {
	if _, err := s.cycles.CloseExpiredCycle(ctx, teamID); err != nil {
		s.log.WithError(err).WithField("team_id", teamID).Warn("Closure before read failed, reading possibly stale cycle")
	}
}

func (s *VerificationServiceImpl) HasLiveVerification(ctx context.Context, teamID, verifierID, subjectID uuid.UUID) (bool, error) {
	s.catchUp(ctx, teamID)
	live, err := s.verifications.HasLive(ctx, teamID, verifierID, subjectID)
	if err != nil {
		s.log.WithError(err).WithField("team_id", teamID).Warn("Failed to check live verification")
		return false, err
	}
	return live, nil
}

func (s *VerificationServiceImpl) CurrentStatus(ctx context.Context, teamID, subjectID uuid.UUID) (verification.Status, error) {
	s.catchUp(ctx, teamID)
	v, err := s.verifications.LatestOpen(ctx, teamID, subjectID)
	if err != nil {
		if errors.Is(err, verification.ErrNotFound) {
			return verification.StatusPending, nil
		}
		s.log.WithError(err).WithField("team_id", teamID).Warn("Failed to read current status")
		return verification.StatusPending, err
	}
	return v.Status, nil
}

func (s *VerificationServiceImpl) History(ctx context.Context, teamID, viewerID uuid.UUID, limit int) ([]*verification.Verification, error) {
	if _, err := s.teams.GetTeamForMember(ctx, teamID, viewerID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	s.catchUp(ctx, teamID)
	history, err := s.verifications.ListByTeam(ctx, teamID, limit)
	if err != nil {
		s.log.WithError(err).WithField("team_id", teamID).Warn("Failed to read verification history")
		return []*verification.Verification{}, err
	}
	return history, nil
}
