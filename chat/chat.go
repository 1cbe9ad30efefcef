// Package chat runs the Twitch bot. It watches channel messages for supported
// video links and replies with a hosted media link (inline delivery) or a
// shortened direct URL, depending on what the embed pipeline produced.
package chat

import (
	"context"
	"log/slog"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/google/uuid"

	"github.com/gruzilkin/urmom-bot/embed"
	"github.com/gruzilkin/urmom-bot/telemetry"
)

// Processor turns a chat message into delivery decisions (embed.Embedder).
type Processor interface {
	ProcessMessage(ctx context.Context, text string) []embed.Result
}

// Deduper reports whether a message ID was already handled (dedup.Store).
type Deduper interface {
	Seen(ctx context.Context, messageID string) (bool, error)
}

// MediaHost stores inline payloads and hands back an ID (media.Store).
type MediaHost interface {
	Put(data []byte, filename, contentType string) string
}

// Message is the slice of a Twitch privmsg the bot cares about.
type Message struct {
	ID   string
	User string
	Text string
}

// Bot wires the chat connection to the embed pipeline.
type Bot struct {
	Channel    string
	Username   string
	OAuthToken string

	Processor Processor
	Dedup     Deduper
	Media     MediaHost

	// MediaBaseURL is the externally reachable prefix for hosted media,
	// e.g. "https://bot.example.com". Empty disables inline delivery and
	// everything falls through to short links.
	MediaBaseURL string
}

// Run connects to Twitch IRC and blocks until ctx is cancelled or the
// connection fails.
func (b *Bot) Run(ctx context.Context) error {
	client := twitch.NewClient(b.Username, b.OAuthToken)

	client.OnPrivateMessage(func(msg twitch.PrivateMessage) {
		m := Message{ID: msg.ID, User: msg.User.Name, Text: msg.Message}
		go b.HandleMessage(ctx, m, func(text string) {
			client.Say(b.Channel, text)
		})
	})

	go func() {
		<-ctx.Done()
		client.Disconnect()
	}()

	client.Join(b.Channel)
	err := client.Connect()
	if ctx.Err() != nil {
		// Disconnect on cancellation surfaces as a connect error; not ours.
		return nil
	}
	return err
}

// HandleMessage runs dedup and the embed pipeline for one message, then says
// one reply per delivered result. Safe to call from multiple goroutines.
func (b *Bot) HandleMessage(ctx context.Context, msg Message, say func(string)) {
	if strings.EqualFold(msg.User, b.Username) {
		return
	}
	telemetry.IncCounter(telemetry.MessagesSeen)

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	log := telemetry.LoggerWithCorr(ctx)

	if b.Dedup != nil && msg.ID != "" {
		seen, err := b.Dedup.Seen(ctx, msg.ID)
		if err != nil {
			// Dedup is best effort; a store hiccup should not mute the bot.
			log.Warn("chat: dedup check failed", slog.String("message_id", msg.ID), slog.Any("err", err))
		} else if seen {
			telemetry.IncCounter(telemetry.MessagesDeduped)
			return
		}
	}

	for _, r := range b.Processor.ProcessMessage(ctx, msg.Text) {
		reply := b.formatReply(ctx, r)
		if reply == "" {
			continue
		}
		say(reply)
	}
}

// formatReply renders one delivery decision as a chat line. Inline file data
// is parked in the media store and served over HTTP since IRC cannot carry
// attachments.
func (b *Bot) formatReply(ctx context.Context, r embed.Result) string {
	if r.ShortURL != "" {
		return r.ShortURL
	}
	if len(r.FileData) == 0 {
		return ""
	}
	if b.Media == nil || b.MediaBaseURL == "" {
		telemetry.LoggerWithCorr(ctx).Debug("chat: inline delivery unavailable, dropping result",
			slog.String("source_url", r.SourceURL))
		return ""
	}
	id := b.Media.Put(r.FileData, r.Filename, "video/mp4")
	return strings.TrimRight(b.MediaBaseURL, "/") + "/media/" + id
}
