package telegram

import (
	"context"
	"errors"

	"partner_tracker/internal/app"
	"partner_tracker/internal/domain/team"
	domainTelegram "partner_tracker/internal/domain/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// MemberLookup resolves a chat sender to a member profile.
type MemberLookup interface {
	GetMemberByTelegramID(ctx context.Context, telegramID int64) (*team.Member, error)
}

// Handlers serves the bot surface. Every handler resolves the sender to a member first;
// unlinked senders only get the onboarding text.
type Handlers struct {
	ctx           context.Context
	members       MemberLookup
	teams         app.TeamService
	verifications app.VerificationService
	status        app.StatusService
	logger        *logrus.Entry
}

func NewHandlers(ctx context.Context, members MemberLookup, engine *app.Engine, logger *logrus.Entry) *Handlers {
	return &Handlers{
		ctx:           ctx,
		members:       members,
		teams:         engine.Teams,
		verifications: engine.Verifications,
		status:        engine.Status,
		logger:        logger.WithField("component", "telegram"),
	}
}

// Register attaches every command and callback handler to b.
func (h *Handlers) Register(b *telebot.Bot) {
	b.Handle("/start", h.handleStart)
	b.Handle("/help", h.handleHelp)
	b.Handle("/status", h.handleStatus)
	b.Handle("/end", h.handleEnd)
	b.Handle(&telebot.Btn{Unique: domainTelegram.CallbackVerifyDone}, h.handleVerifyDone)
	b.Handle(&telebot.Btn{Unique: domainTelegram.CallbackVerifyPending}, h.handleVerifyPending)
}

const (
	msgUnlinked    = "Hi! Link your Telegram account in the Partner Tracker app to get reminders and verify your partner from here."
	msgLookupError = "Something went wrong while looking you up. Please try again later."
)

// resolve returns the sender's member profile. When it returns nil the reply is already sent.
func (h *Handlers) resolve(c telebot.Context, logCtx *logrus.Entry) (*team.Member, error) {
	m, err := h.members.GetMemberByTelegramID(h.ctx, c.Sender().ID)
	if err == nil {
		return m, nil
	}
	if errors.Is(err, team.ErrMemberNotFound) {
		logCtx.Info("Sender is not linked to a member")
		return nil, c.Send(msgUnlinked)
	}
	logCtx.WithError(err).Error("Failed to resolve sender")
	return nil, c.Send(msgLookupError)
}
