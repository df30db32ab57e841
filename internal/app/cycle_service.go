package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"partner_tracker/internal/domain/cycle"
	"partner_tracker/internal/domain/schedule"
	"partner_tracker/internal/domain/team"
	"partner_tracker/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// maxClosurePasses bounds how many consecutive expired windows one call catches up on.
const maxClosurePasses = 8

// ClosureHook runs after a call that closed at least one row.
type ClosureHook func(ctx context.Context, c cycle.Closure)

type CycleService interface {
	// CloseExpiredCycle closes the team's open cycle if its reset boundary has passed.
	// Concurrent callers converge; at most one of them sees a non-zero closure.
	CloseExpiredCycle(ctx context.Context, teamID uuid.UUID) (cycle.Closure, error)
	// CloseAllExpiredCycles sweeps every team with open rows and returns the number of rows closed.
	CloseAllExpiredCycles(ctx context.Context) (int64, error)
	// CurrentCycleStart is the start new rows of t are written with.
	CurrentCycleStart(ctx context.Context, t *team.Team) (time.Time, error)
	OnClosure(hook ClosureHook)
}

type CycleServiceImpl struct {
	cycles      cycle.Repository
	teams       TeamService
	now         Clock
	concurrency int
	log         *logrus.Entry

	hooksMu sync.RWMutex
	hooks   []ClosureHook
}

func NewCycleService(cycles cycle.Repository, teams TeamService, now Clock, sweepConcurrency int, log *logrus.Entry) *CycleServiceImpl {
	if sweepConcurrency <= 0 {
		sweepConcurrency = 1
	}
	return &CycleServiceImpl{
		cycles:      cycles,
		teams:       teams,
		now:         now,
		concurrency: sweepConcurrency,
		log:         log.WithField("service", "cycle"),
	}
}

func (s *CycleServiceImpl) OnClosure(hook ClosureHook) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *CycleServiceImpl) CloseExpiredCycle(ctx context.Context, teamID uuid.UUID) (cycle.Closure, error) {
	total := cycle.Closure{TeamID: teamID}

	t, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		return total, fmt.Errorf("failed to load team for closure: %w", err)
	}

	now := s.now()
	for pass := 0; pass < maxClosurePasses; pass++ {
		start, open, err := s.cycles.OldestOpenStart(ctx, teamID)
		if err != nil {
			return total, err
		}
		if !open {
			break
		}
		boundary, ok := schedule.NextBoundary(t.Frequency, start.In(now.Location()))
		if !ok {
			s.log.WithFields(logrus.Fields{
				"team_id":   teamID,
				"reset_day": t.Frequency.Day,
			}).Warn("Unrecognised reset day, closing on a weekly fallback boundary")
		}
		if now.Before(boundary) {
			break
		}

		c, err := s.cycles.Close(ctx, teamID, boundary)
		if err != nil {
			return total, err
		}
		if c.Total() == 0 {
			// Another closer got there first.
			break
		}
		total.Boundary = boundary
		total.Verifications += c.Verifications
		total.Goals += c.Goals
	}

	if total.Total() > 0 {
		metrics.CyclesClosedRows.WithLabelValues("verifications").Add(float64(total.Verifications))
		metrics.CyclesClosedRows.WithLabelValues("goals").Add(float64(total.Goals))
		s.log.WithFields(logrus.Fields{
			"team_id":       teamID,
			"boundary":      total.Boundary,
			"verifications": total.Verifications,
			"goals":         total.Goals,
		}).Info("Closed expired cycle")
		s.runHooks(ctx, total)
	}
	return total, nil
}

func (s *CycleServiceImpl) runHooks(ctx context.Context, c cycle.Closure) {
	s.hooksMu.RLock()
	hooks := append([]ClosureHook(nil), s.hooks...)
	s.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, c)
	}
}

func (s *CycleServiceImpl) CloseAllExpiredCycles(ctx context.Context) (int64, error) {
	teamIDs, err := s.cycles.ListTeamsWithOpenCycles(ctx)
	if err != nil {
		return 0, err
	}

	var (
		mu     sync.Mutex
		closed int64
		errs   []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range teamIDs {
		g.Go(func() error {
			c, err := s.CloseExpiredCycle(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			closed += c.Total()
			if err != nil {
				s.log.WithError(err).WithField("team_id", id).Error("Failed to close expired cycle during sweep")
				errs = append(errs, fmt.Errorf("team %s: %w", id, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	s.log.WithFields(logrus.Fields{
		"teams":       len(teamIDs),
		"rows_closed": closed,
		"failures":    len(errs),
	}).Debug("Closure sweep finished")
	return closed, errors.Join(errs...)
}

func (s *CycleServiceImpl) CurrentCycleStart(ctx context.Context, t *team.Team) (time.Time, error) {
	start, open, err := s.cycles.OldestOpenStart(ctx, t.ID)
	if err != nil {
		return time.Time{}, err
	}
	if open {
		return start, nil
	}
	return schedule.WindowStart(t.Frequency, s.now()), nil
}
