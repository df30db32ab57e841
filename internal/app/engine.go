package app

import (
	"context"
	"time"

	"partner_tracker/internal/domain/cycle"
	"partner_tracker/internal/domain/goal"
	"partner_tracker/internal/domain/notification"
	"partner_tracker/internal/domain/team"
	domainTelegram "partner_tracker/internal/domain/telegram"
	"partner_tracker/internal/domain/verification"

	"github.com/sirupsen/logrus"
)

// Deps are the adapters the engine runs on. Claims and Telegram are optional.
type Deps struct {
	Teams         team.Repository
	Cycles        cycle.Repository
	Verifications verification.Repository
	Goals         goal.Repository
	Notifications notification.Repository
	Claims        ClaimStore
	Telegram      domainTelegram.Client

	Clock            Clock
	DedupWindow      time.Duration
	SweepConcurrency int
	TeamCacheSize    int
	TeamCacheTTL     time.Duration
	Log              *logrus.Entry
}

// Engine holds the wired services.
type Engine struct {
	Teams         TeamService
	Cycles        CycleService
	Verifications VerificationService
	Goals         GoalService
	Completion    CompletionService
	Notifications NotificationService
	Timers        TimerService
	Delivery      DeliveryService
	Status        StatusService
}

// NewEngine wires the services and registers the closure and verification hooks:
// a closure resets both members' goal sessions, and a verification tells the
// subject and re-checks mutual completion.
func NewEngine(d Deps) *Engine {
	if d.Clock == nil {
		d.Clock = SystemClock(time.Local)
	}
	if d.Log == nil {
		d.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	notifications := NewNotificationService(d.Notifications, d.Teams, d.Claims, d.DedupWindow, d.Clock, d.Log)
	teams := NewTeamService(d.Teams, notifications, d.TeamCacheSize, d.TeamCacheTTL, d.Clock, d.Log)
	cycles := NewCycleService(d.Cycles, teams, d.Clock, d.SweepConcurrency, d.Log)
	verifications := NewVerificationService(d.Verifications, teams, cycles, d.Clock, d.Log)
	goals := NewGoalService(d.Goals, teams, cycles, d.Log)
	completion := NewCompletionService(d.Verifications, teams, cycles, notifications, d.Log)
	timers := NewTimerService(teams, cycles, d.Verifications, notifications, d.Clock, d.SweepConcurrency, d.Log)
	delivery := NewDeliveryService(d.Notifications, d.Teams, d.Telegram, d.Clock, d.Log)
	status := NewStatusService(teams, cycles, verifications, completion, goals, d.Clock, d.Log)

	cycles.OnClosure(goals.HandleClosure)
	verifications.OnLogged(func(ctx context.Context, t *team.Team, v *verification.Verification) {
		if err := notifications.NotifyStatusUpdate(ctx, t, v); err != nil {
			d.Log.WithError(err).WithField("team_id", t.ID).Warn("Failed to notify subject of verification")
		}
	})
	verifications.OnLogged(completion.HandleVerification)

	return &Engine{
		Teams:         teams,
		Cycles:        cycles,
		Verifications: verifications,
		Goals:         goals,
		Completion:    completion,
		Notifications: notifications,
		Timers:        timers,
		Delivery:      delivery,
		Status:        status,
	}
}
