// Package discord adapts a Discord bot session into a delivery channel
// so a campaign with Channel == store.ChannelDiscord can push task
// payloads over Discord DMs instead of the browser-extension websocket
// (SPEC_FULL §3's supplemental channel). Session setup and chunked
// sending are grounded on the teacher's internal/channels/discord.go;
// the bot-command/mention-handling half of that file has no equivalent
// in this domain and is dropped (DESIGN.md).
package discord

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// maxMessageLen is Discord's hard per-message character limit.
const maxMessageLen = 2000

// Sender delivers task payloads to a Discord user via a bot-initiated DM
// channel, keyed by the target's Discord user ID.
type Sender struct {
	session *discordgo.Session
}

// New opens a Discord bot session authenticated with token. The caller is
// responsible for session.Close() at shutdown.
func New(token string) (*Sender, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: new session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsDirectMessages
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return &Sender{session: session}, nil
}

func (s *Sender) Close() error {
	return s.session.Close()
}

// PushToUser opens (or reuses) a DM channel with userID — the Discord
// snowflake of the outbound account's linked bot identity — and delivers
// payload, chunked to Discord's message-length limit.
func (s *Sender) PushToUser(userID string, payload []byte) error {
	ch, err := s.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("discord: open DM channel: %w", err)
	}
	return s.sendChunked(ch.ID, string(payload))
}

// RecipientPusher binds one Discord user ID to a Sender, satisfying
// registry.Pusher so a discord-channel outbound account's tasks can be
// pushed the same way a websocket-connected sender's are.
type RecipientPusher struct {
	Sender *Sender
	UserID string
}

func (p RecipientPusher) Push(payload []byte) error {
	return p.Sender.PushToUser(p.UserID, payload)
}

func (s *Sender) sendChunked(channelID, content string) error {
	for len(content) > 0 {
		chunk := content
		if len(chunk) > maxMessageLen {
			chunk = content[:maxMessageLen]
		}
		if _, err := s.session.ChannelMessageSend(channelID, chunk); err != nil {
			slog.Warn("discord: send failed", "channel", channelID, "err", err)
			return fmt.Errorf("discord: send: %w", err)
		}
		content = content[len(chunk):]
	}
	return nil
}
