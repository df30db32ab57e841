package telegram

import (
	"errors"
	"fmt"
	"strings"

	"partner_tracker/internal/app"
	"partner_tracker/internal/domain/team"
	"partner_tracker/internal/domain/verification"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const helpText = "I keep you and your accountability partner in sync.\n\n" +
	"/status - your partnerships, time left in the cycle and who has been verified\n" +
	"/end <team_id> - end a partnership\n" +
	"/help - show this message\n\n" +
	"Before a cycle resets I will remind you to verify your partner. Use the buttons under the reminder."

func (h *Handlers) commandLogger(c telebot.Context, command string) *logrus.Entry {
	return h.logger.WithFields(logrus.Fields{
		"command":   command,
		"sender_id": c.Sender().ID,
	})
}

func (h *Handlers) handleStart(c telebot.Context) error {
	logCtx := h.commandLogger(c, "/start")
	logCtx.Info("Processing /start command")

	m, err := h.resolve(c, logCtx)
	if m == nil {
		return err
	}
	return c.Send(fmt.Sprintf("Hi, %s!\n\n%s", m.NameOr(c.Sender().FirstName), helpText))
}

func (h *Handlers) handleHelp(c telebot.Context) error {
	h.commandLogger(c, "/help").Info("Processing /help command")
	return c.Send(helpText)
}

func (h *Handlers) handleStatus(c telebot.Context) error {
	logCtx := h.commandLogger(c, "/status")
	logCtx.Info("Processing /status command")

	m, err := h.resolve(c, logCtx)
	if m == nil {
		return err
	}
	logCtx = logCtx.WithField("user_id", m.UserID)

	teams, err := h.teams.ListForMember(h.ctx, m.UserID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list teams")
		return c.Send("Could not load your partnerships. Please try again later.")
	}

	var sb strings.Builder
	for _, t := range teams {
		if t.IsEnded() {
			continue
		}
		st, err := h.status.TeamStatus(h.ctx, t.ID, m.UserID)
		if err != nil {
			logCtx.WithError(err).WithField("team_id", t.ID).Warn("Failed to read team status")
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		writeStatus(&sb, st)
	}
	if sb.Len() == 0 {
		return c.Send("You have no active partnerships.")
	}
	return c.Send(sb.String())
}

func writeStatus(sb *strings.Builder, st *app.TeamStatus) {
	activity := st.Team.Category
	if activity == "" {
		activity = string(st.Team.Frequency.Kind)
	}
	fmt.Fprintf(sb, "%s with %s\n", activity, st.PartnerName)
	fmt.Fprintf(sb, "Resets in: %s\n", st.Countdown.Label)
	fmt.Fprintf(sb, "You: %s | %s: %s\n", statusText(st.MyStatus), st.PartnerName, statusText(st.PartnerStatus))
	if st.MutualCompletion {
		sb.WriteString("You both completed this cycle!\n")
	}
	switch {
	case st.Goal != nil:
		fmt.Fprintf(sb, "Goal: %s\n", st.Goal.Body)
	case st.NeedsNewGoal:
		sb.WriteString("Set a goal for the new cycle in the app.\n")
	}
	fmt.Fprintf(sb, "Team: %s", st.Team.ID)
}

func statusText(s verification.Status) string {
	if s == verification.StatusCompleted {
		return "done ✅"
	}
	return "pending ⏳"
}

func (h *Handlers) handleEnd(c telebot.Context) error {
	logCtx := h.commandLogger(c, "/end")
	logCtx.Info("Processing /end command")

	args := c.Args()
	if len(args) != 1 {
		logCtx.WithField("args_count", len(args)).Warn("Invalid command format")
		return c.Send("Usage: /end <team_id>")
	}
	teamID, err := uuid.Parse(args[0])
	if err != nil {
		return c.Send("That does not look like a team id. /status shows the ids of your partnerships.")
	}

	m, err := h.resolve(c, logCtx)
	if m == nil {
		return err
	}
	logCtx = logCtx.WithFields(logrus.Fields{"user_id": m.UserID, "team_id": teamID})

	if _, err := h.teams.EndTeam(h.ctx, teamID, m.UserID); err != nil {
		switch {
		case errors.Is(err, app.ErrNotMember), errors.Is(err, team.ErrNotFound):
			logCtx.WithError(err).Warn("End requested for a foreign team")
			return c.Send("No such partnership.")
		case errors.Is(err, app.ErrTeamEnded):
			return c.Send("That partnership has already ended.")
		default:
			logCtx.WithError(err).Error("Failed to end team")
			return c.Send("Could not end the partnership. Please try again later.")
		}
	}
	logCtx.Info("Team ended from chat")
	return c.Send("Partnership ended. Your partner has been notified.")
}
