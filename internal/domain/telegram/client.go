package telegram

import (
	"errors"

	"gopkg.in/telebot.v3"
)

// Inline button uniques of the verification keyboard. The button payload is the team id;
// the subject is always the presser's partner.
const (
	CallbackVerifyDone    = "ver_done"
	CallbackVerifyPending = "ver_pend"
)

// ErrRecipientUnreachable marks send failures that retrying cannot fix,
// such as a user who blocked the bot.
var ErrRecipientUnreachable = errors.New("telegram recipient unreachable")

// Client sends chat messages to a member's linked Telegram account.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}
