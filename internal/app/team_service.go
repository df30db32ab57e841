package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"partner_tracker/internal/domain/schedule"
	"partner_tracker/internal/domain/team"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

// Display names used when a member's profile cannot be read.
const (
	FallbackSelfName    = "Me"
	FallbackPartnerName = "Partner"
)

type TeamService interface {
	CreateTeam(ctx context.Context, memberA, memberB uuid.UUID, category string, freq schedule.Frequency) (*team.Team, error)
	GetTeam(ctx context.Context, teamID uuid.UUID) (*team.Team, error)
	// GetTeamForMember is GetTeam plus a membership check of userID.
	GetTeamForMember(ctx context.Context, teamID, userID uuid.UUID) (*team.Team, error)
	// ActiveTeamForMember reads past the cache and fails with ErrTeamEnded once the
	// team has ended anywhere. Write paths gate on it.
	ActiveTeamForMember(ctx context.Context, teamID, userID uuid.UUID) (*team.Team, error)
	// Forget drops a cached team; uuid.Nil drops them all.
	Forget(teamID uuid.UUID)
	ListForMember(ctx context.Context, userID uuid.UUID) ([]*team.Team, error)
	ListActive(ctx context.Context) ([]*team.Team, error)
	EndTeam(ctx context.Context, teamID, by uuid.UUID) (*team.Team, error)
	// DisplayNames never fails the caller: unreadable profiles fall back to "Me" and "Partner"
	// and the lookup error is returned alongside.
	DisplayNames(ctx context.Context, t *team.Team, viewer uuid.UUID) (me, partner string, err error)
}

// PartnershipNotifier is told when a team ends.
type PartnershipNotifier interface {
	NotifyPartnershipEnded(ctx context.Context, t *team.Team, by uuid.UUID) error
}

type TeamServiceImpl struct {
	teams    team.Repository
	notifier PartnershipNotifier
	cache    *expirable.LRU[uuid.UUID, *team.Team]
	now      Clock
	log      *logrus.Entry
}

func NewTeamService(teams team.Repository, notifier PartnershipNotifier, cacheSize int, cacheTTL time.Duration, now Clock, log *logrus.Entry) *TeamServiceImpl {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	return &TeamServiceImpl{
		teams:    teams,
		notifier: notifier,
		cache:    expirable.NewLRU[uuid.UUID, *team.Team](cacheSize, nil, cacheTTL),
		now:      now,
		log:      log.WithField("service", "team"),
	}
}

func (s *TeamServiceImpl) CreateTeam(ctx context.Context, memberA, memberB uuid.UUID, category string, freq schedule.Frequency) (*team.Team, error) {
	if memberA == uuid.Nil || memberB == uuid.Nil || memberA == memberB {
		return nil, ErrInvalidMembers
	}
	if !freq.Kind.Valid() {
		return nil, ErrInvalidFrequency
	}
	if freq.Kind == schedule.KindWeekly {
		// Unknown day names are stored as given; the calculator degrades them to a generic label.
		if _, ok := freq.Weekday(); !ok {
			s.log.WithField("reset_day", freq.Day).Warn("Creating weekly team with an unrecognised reset day")
		}
	} else {
		freq.Day = ""
	}

	t := &team.Team{
		ID:        uuid.New(),
		MemberA:   memberA,
		MemberB:   memberB,
		Category:  strings.TrimSpace(category),
		Frequency: freq,
	}
	if err := s.teams.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}
	s.cache.Add(t.ID, t)

	s.log.WithFields(logrus.Fields{
		"team_id":   t.ID,
		"frequency": freq.String(),
	}).Info("Team created")
	return t, nil
}

func (s *TeamServiceImpl) GetTeam(ctx context.Context, teamID uuid.UUID) (*team.Team, error) {
	if t, ok := s.cache.Get(teamID); ok {
		return t, nil
	}
	t, err := s.teams.GetByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	s.cache.Add(teamID, t)
	return t, nil
}

func (s *TeamServiceImpl) GetTeamForMember(ctx context.Context, teamID, userID uuid.UUID) (*team.Team, error) {
	t, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !t.HasMember(userID) {
		return nil, ErrNotMember
	}
	return t, nil
}

func (s *TeamServiceImpl) ActiveTeamForMember(ctx context.Context, teamID, userID uuid.UUID) (*team.Team, error) {
	t, err := s.teams.GetByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	s.cache.Add(teamID, t)
	if !t.HasMember(userID) {
		return nil, ErrNotMember
	}
	if t.IsEnded() {
		return nil, ErrTeamEnded
	}
	return t, nil
}

func (s *TeamServiceImpl) Forget(teamID uuid.UUID) {
	if teamID == uuid.Nil {
		s.cache.Purge()
		return
	}
	s.cache.Remove(teamID)
}

func (s *TeamServiceImpl) ListForMember(ctx context.Context, userID uuid.UUID) ([]*team.Team, error) {
	teams, err := s.teams.ListByMember(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams for member: %w", err)
	}
	return teams, nil
}

func (s *TeamServiceImpl) ListActive(ctx context.Context) ([]*team.Team, error) {
	teams, err := s.teams.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active teams: %w", err)
	}
	return teams, nil
}

// EndTeam ends the partnership on behalf of by and tells the other member.
func (s *TeamServiceImpl) EndTeam(ctx context.Context, teamID, by uuid.UUID) (*team.Team, error) {
	t, err := s.ActiveTeamForMember(ctx, teamID, by)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.teams.End(ctx, teamID, by, now); err != nil {
		if errors.Is(err, team.ErrAlreadyEnded) {
			s.cache.Remove(teamID)
			return nil, ErrTeamEnded
		}
		return nil, fmt.Errorf("failed to end team: %w", err)
	}
	s.cache.Remove(teamID)

	ended := *t
	ended.EndedAt.Time, ended.EndedAt.Valid = now, true
	ended.EndedBy.UUID, ended.EndedBy.Valid = by, true

	logCtx := s.log.WithFields(logrus.Fields{"team_id": teamID, "user_id": by})
	logCtx.Info("Team ended")
	if s.notifier != nil {
		if err := s.notifier.NotifyPartnershipEnded(ctx, &ended, by); err != nil {
			logCtx.WithError(err).Error("Failed to notify partner that the team ended")
		}
	}
	return &ended, nil
}

func (s *TeamServiceImpl) DisplayNames(ctx context.Context, t *team.Team, viewer uuid.UUID) (string, string, error) {
	partnerID, _ := t.PartnerOf(viewer)

	var errs []error
	me, err := s.teams.GetMember(ctx, viewer)
	if err != nil {
		errs = append(errs, fmt.Errorf("reading viewer profile: %w", err))
	}
	partner, err := s.teams.GetMember(ctx, partnerID)
	if err != nil {
		errs = append(errs, fmt.Errorf("reading partner profile: %w", err))
	}
	return me.NameOr(FallbackSelfName), partner.NameOr(FallbackPartnerName), errors.Join(errs...)
}
