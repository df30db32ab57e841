package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"partner_tracker/internal/domain/schedule"
	"partner_tracker/internal/domain/team"
	"partner_tracker/internal/domain/verification"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// TimerService turns countdown urgency into timer_warning notifications.
type TimerService interface {
	// EvaluateTeam returns how many warnings it created.
	EvaluateTeam(ctx context.Context, teamID uuid.UUID) (int, error)
	EvaluateAll(ctx context.Context) (int, error)
}

// TimerNotifier emits one deduplicated warning.
type TimerNotifier interface {
	NotifyTimerWarning(ctx context.Context, t *team.Team, recipientID uuid.UUID, cd schedule.Countdown) (bool, error)
}

type TimerServiceImpl struct {
	teams         TeamService
	cycles        CycleService
	verifications verification.Repository
	notifier      TimerNotifier
	now           Clock
	concurrency   int
	log           *logrus.Entry
}

func NewTimerService(teams TeamService, cycles CycleService, verifications verification.Repository, notifier TimerNotifier, now Clock, sweepConcurrency int, log *logrus.Entry) *TimerServiceImpl {
	if sweepConcurrency <= 0 {
		sweepConcurrency = 1
	}
	return &TimerServiceImpl{
		teams:         teams,
		cycles:        cycles,
		verifications: verifications,
		notifier:      notifier,
		now:           now,
		concurrency:   sweepConcurrency,
		log:           log.WithField("service", "timer"),
	}
}

func (s *TimerServiceImpl) EvaluateTeam(ctx context.Context, teamID uuid.UUID) (int, error) {
	t, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		return 0, err
	}
	return s.evaluate(ctx, t)
}

func (s *TimerServiceImpl) evaluate(ctx context.Context, t *team.Team) (int, error) {
	if t.IsEnded() {
		return 0, nil
	}
	cd := schedule.Compute(t.Frequency, s.now())
	if cd.Urgency == schedule.UrgencyNormal {
		return 0, nil
	}

	logCtx := s.log.WithFields(logrus.Fields{"team_id": t.ID, "urgency": cd.Urgency})
	if _, err := s.cycles.CloseExpiredCycle(ctx, t.ID); err != nil {
		logCtx.WithError(err).Warn("Closure before timer evaluation failed")
	}

	created := 0
	var errs []error
	for _, member := range t.Members() {
		partnerID, _ := t.PartnerOf(member)
		live, err := s.verifications.HasLive(ctx, t.ID, member, partnerID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if live {
			continue
		}
		ok, err := s.notifier.NotifyTimerWarning(ctx, t, member, cd)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			created++
		}
	}
	if len(errs) > 0 {
		logCtx.WithField("failures", len(errs)).Warn("Timer evaluation partially failed")
	}
	return created, errors.Join(errs...)
}

func (s *TimerServiceImpl) EvaluateAll(ctx context.Context) (int, error) {
	teams, err := s.teams.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	var (
		created atomic.Int64
		mu      sync.Mutex
		errs    []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, t := range teams {
		g.Go(func() error {
			n, err := s.evaluate(gctx, t)
			created.Add(int64(n))
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("team %s: %w", t.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.log.WithFields(logrus.Fields{
		"teams":    len(teams),
		"created":  created.Load(),
		"failures": len(errs),
	}).Debug("Timer warning sweep finished")
	return int(created.Load()), errors.Join(errs...)
}
