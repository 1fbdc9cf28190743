// Package telegram adapts a Telegram bot into a delivery channel so a
// campaign with Channel == store.ChannelTelegram can push task payloads
// as Telegram DMs instead of the browser-extension websocket (SPEC_FULL
// §3's supplemental channel). Bot construction and the plain-text send
// path are grounded on the teacher's internal/channels/telegram/send.go;
// the media/HTML/group-command handling that file also contains has no
// equivalent in this domain and is dropped (DESIGN.md).
package telegram

import (
	"context"
	"fmt"

	"github.com/mymmrac/telego"
)

// Sender delivers task payloads to a Telegram user via bot-initiated DM,
// keyed by the target's Telegram chat ID.
type Sender struct {
	bot *telego.Bot
}

// New constructs a bot session authenticated with token.
func New(token string) (*Sender, error) {
	bot, err := telego.NewBot(token, telego.WithDefaultLogger(false, true))
	if err != nil {
		return nil, fmt.Errorf("telegram: new bot: %w", err)
	}
	return &Sender{bot: bot}, nil
}

// PushToChat delivers payload as a plain-text message to chatID, the
// Telegram chat ID of the outbound account's linked bot identity.
func (s *Sender) PushToChat(ctx context.Context, chatID int64, payload []byte) error {
	msg := telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   string(payload),
	}
	_, err := s.bot.SendMessage(ctx, &msg)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

// RecipientPusher binds one Telegram chat ID to a Sender, satisfying
// registry.Pusher so a telegram-channel outbound account's tasks can be
// pushed the same way a websocket-connected sender's are.
type RecipientPusher struct {
	Sender *Sender
	ChatID int64
}

func (p RecipientPusher) Push(payload []byte) error {
	return p.Sender.PushToChat(context.Background(), p.ChatID, payload)
}
