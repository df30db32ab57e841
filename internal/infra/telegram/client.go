package telegram

import (
	"errors"
	"fmt"

	domainTelegram "partner_tracker/internal/domain/telegram"

	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements the domain Client on top of a telebot.Bot.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends text to a member's private chat.
func (a *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}
	_, err := a.bot.Send(&telebot.User{ID: recipientChatID}, text, options)
	return classifySendError(err)
}

// Chat states that only the user can undo.
var unreachableErrors = []error{
	telebot.ErrBlockedByUser,
	telebot.ErrUserIsDeactivated,
	telebot.ErrNotStartedByUser,
	telebot.ErrChatNotFound,
}

func classifySendError(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range unreachableErrors {
		if errors.Is(err, target) {
			return fmt.Errorf("%w: %w", domainTelegram.ErrRecipientUnreachable, err)
		}
	}
	return err
}
