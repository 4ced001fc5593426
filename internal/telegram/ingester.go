package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Napageneral/onboard/internal/chats"
	"github.com/Napageneral/onboard/internal/logutil"
	"github.com/Napageneral/onboard/internal/tools"
)

// Bot is the Bot API surface the ingester needs.
type Bot interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error)
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error
}

// MessageLog stores chat lines.
type MessageLog interface {
	Record(ctx context.Context, m chats.Message) (bool, error)
}

// ToolHandler answers tool markers found in chat text.
type ToolHandler interface {
	Handle(ctx context.Context, clientID, assistantID, text string) (tools.ToolResult, bool)
}

// Ingester logs group messages and replies to tool markers.
type Ingester struct {
	Bot         Bot
	Log         MessageLog
	Tools       ToolHandler // optional
	ClientID    string      // client whose assistant tool calls run against
	PollTimeout time.Duration
	RetryDelay  time.Duration
	Logger      *slog.Logger
}

func (in *Ingester) logger() *slog.Logger { return logutil.OrDefault(in.Logger) }

// Run long-polls until ctx is cancelled. API errors are logged and retried after RetryDelay.
func (in *Ingester) Run(ctx context.Context) error {
	log := in.logger()
	retry := in.RetryDelay
	if retry <= 0 {
		retry = 3 * time.Second
	}
	log.Info("telegram ingester started", "client_id", in.ClientID)

	var offset int64
	for {
		updates, next, err := in.Bot.GetUpdates(ctx, offset, in.PollTimeout)
		if ctx.Err() != nil {
			log.Info("telegram ingester stopped")
			return nil
		}
		if err != nil {
			log.Warn("get updates failed", "error", err)
			select {
			case <-ctx.Done():
				log.Info("telegram ingester stopped")
				return nil
			case <-time.After(retry):
			}
			continue
		}
		offset = next
		for _, u := range updates {
			in.HandleUpdate(ctx, u)
		}
	}
}

// HandleUpdate processes one update. Only text messages from groups and
// supergroups are considered.
func (in *Ingester) HandleUpdate(ctx context.Context, u Update) {
	msg := u.Message
	if msg == nil || strings.TrimSpace(msg.Text) == "" || !msg.Chat.IsGroup() {
		return
	}
	log := in.logger().With("chat_id", msg.Chat.ID, "message_id", msg.MessageID)

	line := chats.FormatLine(msg.SenderName(), msg.Text)
	if in.Log != nil {
		created := msg.Date
		if created == 0 {
			created = time.Now().Unix()
		}
		inserted, err := in.Log.Record(ctx, chats.Message{
			ChatID:      strconv.FormatInt(msg.Chat.ID, 10),
			MessageID:   strconv.FormatInt(msg.MessageID, 10),
			ChannelName: msg.Chat.Title,
			Text:        line,
			CreatedAt:   created,
		})
		switch {
		case err != nil:
			log.Error("record message failed", "error", err)
		case inserted:
			log.Debug("message logged", "channel", msg.Chat.Title)
		}
	}

	if in.Tools == nil {
		return
	}
	res, ok := in.Tools.Handle(ctx, in.ClientID, "", msg.Text)
	if !ok {
		return
	}
	// Plain mentions and email addresses look like markers; only real tools get a reply.
	if res.ErrorKind == tools.ErrorKindUnknownTool {
		log.Debug("ignoring non-tool mention", "name", res.Tool)
		return
	}
	log.Info("tool invoked from chat", "tool", res.Tool, "status", string(res.Status))
	if err := in.Bot.SendMessage(ctx, msg.Chat.ID, res.Text(), msg.MessageID); err != nil {
		log.Error("send reply failed", "error", err)
	}
}
