// Package telegram delivers push notifications as Telegram bot messages.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"notifier/internal/channel"
	"notifier/internal/shared"
)

// ErrNoChat is returned when a message has no recipient and no default chat
// is configured.
var ErrNoChat = errors.New("telegram: no chat id")

// Sender is the part of *bot.Bot the transport uses.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

var _ Sender = (*bot.Bot)(nil)

// Push sends each message to the chat named by its recipient.
type Push struct {
	sender      Sender
	defaultChat string
}

var _ channel.Transport = (*Push)(nil)

// NewPush creates a Push transport. defaultChat is used for messages
// without a recipient and may be empty.
func NewPush(s Sender, defaultChat string) *Push {
	return &Push{sender: s, defaultChat: defaultChat}
}

// Deliver implements channel.Transport.
func (p *Push) Deliver(ctx context.Context, msg channel.Message) error {
	target := msg.Recipient
	if target == "" {
		target = p.defaultChat
	}
	chatID, err := ParseChatID(target)
	if err != nil {
		return err
	}
	_, err = p.sender.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: msg.Text})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return shared.MarkKind(err, shared.KindDependencyFailure)
	}
	return nil
}

// ParseChatID converts a recipient to a bot API chat id: a numeric id, or
// an @username of a public channel.
func ParseChatID(s string) (any, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, shared.MarkKind(ErrNoChat, shared.KindValidation)
	case strings.HasPrefix(s, "@") && len(s) > 1:
		return s, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, shared.MarkKind(shared.Wrapf(ErrNoChat, "invalid chat %q", s), shared.KindValidation)
	}
	return id, nil
}

// NewBot creates a bot client that only sends; it is never started, so no
// updates are polled.
func NewBot(token string) (*bot.Bot, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindValidation)
	}
	return b, nil
}
