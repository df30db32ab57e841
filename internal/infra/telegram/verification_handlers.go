package telegram

import (
	"errors"
	"fmt"

	"partner_tracker/internal/app"
	"partner_tracker/internal/domain/team"
	"partner_tracker/internal/domain/verification"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func (h *Handlers) handleVerifyDone(c telebot.Context) error {
	return h.handleVerify(c, verification.StatusCompleted)
}

func (h *Handlers) handleVerifyPending(c telebot.Context) error {
	return h.handleVerify(c, verification.StatusPending)
}

// handleVerify logs the presser's partner. The callback payload is the team id.
func (h *Handlers) handleVerify(c telebot.Context, status verification.Status) error {
	logCtx := h.logger.WithFields(logrus.Fields{
		"callback":  "verify",
		"status":    status,
		"sender_id": c.Sender().ID,
	})

	teamID, err := uuid.Parse(c.Data())
	if err != nil {
		logCtx.WithField("data", c.Data()).Warn("Invalid callback payload")
		return c.Respond(&telebot.CallbackResponse{Text: "This button is no longer valid."})
	}
	logCtx = logCtx.WithField("team_id", teamID)

	m, err := h.members.GetMemberByTelegramID(h.ctx, c.Sender().ID)
	if err != nil {
		if errors.Is(err, team.ErrMemberNotFound) {
			return c.Respond(&telebot.CallbackResponse{Text: "Link your account in the app first."})
		}
		logCtx.WithError(err).Error("Failed to resolve sender")
		return c.Respond(&telebot.CallbackResponse{Text: "Something went wrong. Please try again."})
	}

	t, err := h.teams.GetTeamForMember(h.ctx, teamID, m.UserID)
	if err != nil {
		if errors.Is(err, app.ErrNotMember) || errors.Is(err, team.ErrNotFound) {
			logCtx.WithError(err).Warn("Verification callback for a foreign team")
			return c.Respond(&telebot.CallbackResponse{Text: "This button is no longer valid."})
		}
		logCtx.WithError(err).Error("Failed to load team")
		return c.Respond(&telebot.CallbackResponse{Text: "Something went wrong. Please try again."})
	}
	partnerID, _ := t.PartnerOf(m.UserID)

	if _, err := h.verifications.LogVerification(h.ctx, teamID, m.UserID, partnerID, status); err != nil {
		if errors.Is(err, app.ErrTeamEnded) {
			return c.Respond(&telebot.CallbackResponse{Text: "This partnership has ended."})
		}
		logCtx.WithError(err).Error("Failed to log verification from chat")
		return c.Respond(&telebot.CallbackResponse{Text: "Could not save that. Please try again."})
	}

	logCtx.Info("Verification logged from chat")
	if status == verification.StatusCompleted {
		return c.Respond(&telebot.CallbackResponse{Text: "Marked your partner as done ✅"})
	}
	return c.Respond(&telebot.CallbackResponse{Text: fmt.Sprintf("Marked your partner as %s", statusText(status))})
}
