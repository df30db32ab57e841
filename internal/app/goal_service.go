package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"partner_tracker/internal/domain/cycle"
	"partner_tracker/internal/domain/goal"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GoalView is a member's goal for the open cycle. Goal is nil when none is set.
type GoalView struct {
	Goal         *goal.Goal
	NeedsNewGoal bool
}

// GoalService couples goals to the cycle lifecycle. Besides the goals table it keeps
// a per-member session that remembers the current goal and whether a closure
// cleared it.
type GoalService interface {
	FetchCurrentGoal(ctx context.Context, teamID, userID uuid.UUID) (GoalView, error)
	SetGoal(ctx context.Context, teamID, userID uuid.UUID, text string) (*goal.Goal, error)
	OnCycleClosed(teamID, userID uuid.UUID)
	// HandleClosure is registered as a closure hook.
	HandleClosure(ctx context.Context, c cycle.Closure)
}

type sessionKey struct {
	teamID uuid.UUID
	userID uuid.UUID
}

type goalSession struct {
	current      *goal.Goal
	needsNewGoal bool
}

type GoalServiceImpl struct {
	goals  goal.Repository
	teams  TeamService
	cycles CycleService
	log    *logrus.Entry

	mu       sync.Mutex
	sessions map[sessionKey]*goalSession
}

func NewGoalService(goals goal.Repository, teams TeamService, cycles CycleService, log *logrus.Entry) *GoalServiceImpl {
	return &GoalServiceImpl{
		goals:    goals,
		teams:    teams,
		cycles:   cycles,
		log:      log.WithField("service", "goal"),
		sessions: make(map[sessionKey]*goalSession),
	}
}

func (s *GoalServiceImpl) HandleClosure(ctx context.Context, c cycle.Closure) {
	t, err := s.teams.GetTeam(ctx, c.TeamID)
	if err != nil {
		s.log.WithError(err).WithField("team_id", c.TeamID).Warn("Cannot reset goals after closure, team unreadable")
		return
	}
	for _, member := range t.Members() {
		s.OnCycleClosed(t.ID, member)
	}
}

func (s *GoalServiceImpl) OnCycleClosed(teamID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.session(teamID, userID)
	sess.current = nil
	sess.needsNewGoal = true
}

// session must be called with mu held.
func (s *GoalServiceImpl) session(teamID, userID uuid.UUID) *goalSession {
	key := sessionKey{teamID: teamID, userID: userID}
	sess, ok := s.sessions[key]
	if !ok {
		sess = &goalSession{}
		s.sessions[key] = sess
	}
	return sess
}

func (s *GoalServiceImpl) view(teamID, userID uuid.UUID) GoalView {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionKey{teamID: teamID, userID: userID}]; ok {
		return GoalView{Goal: sess.current, NeedsNewGoal: sess.needsNewGoal}
	}
	return GoalView{}
}

func (s *GoalServiceImpl) FetchCurrentGoal(ctx context.Context, teamID, userID uuid.UUID) (GoalView, error) {
	if _, err := s.teams.GetTeamForMember(ctx, teamID, userID); err != nil {
		return GoalView{}, err
	}
	logCtx := s.log.WithFields(logrus.Fields{"team_id": teamID, "user_id": userID})
	if _, err := s.cycles.CloseExpiredCycle(ctx, teamID); err != nil {
		logCtx.WithError(err).Warn("Closure before goal read failed")
	}

	live, err := s.goals.GetLive(ctx, teamID, userID)
	switch {
	case err == nil:
		s.mu.Lock()
		sess := s.session(teamID, userID)
		sess.current, sess.needsNewGoal = live, false
		s.mu.Unlock()
		return GoalView{Goal: live}, nil

	case errors.Is(err, goal.ErrNotFound):
		s.mu.Lock()
		_, known := s.sessions[sessionKey{teamID: teamID, userID: userID}]
		s.mu.Unlock()

		var hadClosed bool
		if !known {
			hadClosed, err = s.goals.HasClosed(ctx, teamID, userID)
			if err != nil {
				logCtx.WithError(err).Warn("Failed to read goal history")
				return GoalView{}, err
			}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		sess := s.session(teamID, userID)
		if sess.current != nil {
			// Closed by a process whose closure hook we never saw.
			sess.current, sess.needsNewGoal = nil, true
		} else if !known {
			sess.needsNewGoal = hadClosed
		}
		return GoalView{NeedsNewGoal: sess.needsNewGoal}, nil

	default:
		logCtx.WithError(err).Warn("Failed to read live goal")
		return s.view(teamID, userID), err
	}
}

// SetGoal updates the member's live goal, or starts one in the open cycle.
func (s *GoalServiceImpl) SetGoal(ctx context.Context, teamID, userID uuid.UUID, text string) (*goal.Goal, error) {
	body := strings.TrimSpace(text)
	if body == "" {
		return nil, ErrEmptyGoal
	}
	if _, err := s.teams.ActiveTeamForMember(ctx, teamID, userID); err != nil {
		return nil, err
	}

	logCtx := s.log.WithFields(logrus.Fields{"team_id": teamID, "user_id": userID})
	if _, err := s.cycles.CloseExpiredCycle(ctx, teamID); err != nil {
		logCtx.WithError(err).Error("Failed to close expired cycle before setting goal")
		return nil, fmt.Errorf("failed to close expired cycle: %w", err)
	}

	g, err := s.writeGoal(ctx, teamID, userID, body, true)
	if err != nil {
		logCtx.WithError(err).Error("Failed to save goal")
		return nil, err
	}

	s.mu.Lock()
	sess := s.session(teamID, userID)
	sess.current, sess.needsNewGoal = g, false
	s.mu.Unlock()

	logCtx.WithField("goal_id", g.ID).Info("Goal saved")
	return g, nil
}

func (s *GoalServiceImpl) writeGoal(ctx context.Context, teamID, userID uuid.UUID, body string, retry bool) (*goal.Goal, error) {
	live, err := s.goals.GetLive(ctx, teamID, userID)
	if err == nil {
		updatedAt, err := s.goals.UpdateBody(ctx, live.ID, body)
		if err == nil {
			live.Body, live.UpdatedAt = body, updatedAt
			return live, nil
		}
		if !errors.Is(err, goal.ErrNotFound) || !retry {
			return nil, err
		}
		// Closed between the read and the update; start a fresh one.
	} else if !errors.Is(err, goal.ErrNotFound) {
		return nil, err
	}

	t, err := s.teams.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	start, err := s.cycles.CurrentCycleStart(ctx, t)
	if err != nil {
		return nil, err
	}
	g := &goal.Goal{TeamID: teamID, UserID: userID, Body: body, CycleStart: start}
	if err := s.goals.Create(ctx, g); err != nil {
		if errors.Is(err, goal.ErrDuplicateLive) && retry {
			// The member's other session created one first; edit that instead.
			return s.writeGoal(ctx, teamID, userID, body, false)
		}
		return nil, err
	}
	return g, nil
}
