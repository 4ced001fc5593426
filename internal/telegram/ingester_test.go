package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Napageneral/onboard/internal/chats"
	"github.com/Napageneral/onboard/internal/logutil"
	"github.com/Napageneral/onboard/internal/testutil"
	"github.com/Napageneral/onboard/internal/tools"
)

type sent struct {
	chatID  int64
	text    string
	replyTo int64
}

type fakeBot struct {
	mu      sync.Mutex
	batches [][]Update
	errs    []error
	calls   int
	sent    []sent
	onEmpty func()
}

func (b *fakeBot) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if len(b.errs) > 0 {
		err := b.errs[0]
		b.errs = b.errs[1:]
		return nil, offset, err
	}
	if len(b.batches) == 0 {
		if b.onEmpty != nil {
			b.onEmpty()
		}
		return nil, offset, nil
	}
	batch := b.batches[0]
	b.batches = b.batches[1:]
	return batch, offset + int64(len(batch)), nil
}

func (b *fakeBot) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, sent{chatID, text, replyTo})
	return nil
}

type fakeTools struct{ calls []string }

func (f *fakeTools) Handle(ctx context.Context, clientID, assistantID, text string) (tools.ToolResult, bool) {
	f.calls = append(f.calls, clientID+"|"+text)
	if _, ok := tools.Detect(text); !ok {
		return tools.ToolResult{}, false
	}
	return tools.ToolResult{Tool: "create_file", Status: tools.StatusPendingContent, Message: "Please provide the content for docs/ONBOARDING.md"}, true
}

func groupMessage(id int64, text string) Update {
	return Update{UpdateID: id, Message: &Message{
		MessageID: id,
		Date:      1700000000 + id,
		Chat:      &Chat{ID: -100, Type: "group", Title: "eng"},
		From:      &User{ID: 1, Username: "alex"},
		Text:      text,
	}}
}

func TestHandleUpdateLogsGroupMessages(t *testing.T) {
	database := testutil.OpenTestDB(t)
	log := chats.NewLog(database.DB)
	bot := &fakeBot{}
	in := &Ingester{Bot: bot, Log: log, Logger: logutil.Discard()}

	in.HandleUpdate(context.Background(), groupMessage(1, "we picked postgres"))
	in.HandleUpdate(context.Background(), Update{UpdateID: 2, Message: &Message{
		MessageID: 2, Chat: &Chat{ID: 5, Type: "private"}, From: &User{Username: "alex"}, Text: "dm",
	}})
	in.HandleUpdate(context.Background(), Update{UpdateID: 3})

	msgs, err := log.Thread(context.Background(), "-100")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Text != "alex: we picked postgres" || msgs[0].ChannelName != "eng" {
		t.Fatalf("unexpected log %+v", msgs)
	}
	if other, _ := log.Thread(context.Background(), "5"); len(other) != 0 {
		t.Fatal("private messages must not be logged")
	}
	if len(bot.sent) != 0 {
		t.Fatal("no reply expected without tools")
	}
}

func TestHandleUpdateRepliesToToolMarkers(t *testing.T) {
	bot := &fakeBot{}
	ft := &fakeTools{}
	in := &Ingester{Bot: bot, Tools: ft, ClientID: "ALEX", Logger: logutil.Discard()}

	in.HandleUpdate(context.Background(), groupMessage(7, "no tools here"))
	in.HandleUpdate(context.Background(), groupMessage(8, "@create_file please"))

	if len(ft.calls) != 2 || ft.calls[1] != "ALEX|@create_file please" {
		t.Fatalf("unexpected tool calls %v", ft.calls)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(bot.sent))
	}
	if bot.sent[0].replyTo != 8 || bot.sent[0].chatID != -100 || bot.sent[0].text != "Please provide the content for docs/ONBOARDING.md" {
		t.Fatalf("unexpected reply %+v", bot.sent[0])
	}
}

func TestHandleUpdateIgnoresPlainMentions(t *testing.T) {
	bot := &fakeBot{}
	router := &tools.Router{Logger: logutil.Discard()}
	in := &Ingester{Bot: bot, Tools: router, ClientID: "ALEX", Logger: logutil.Discard()}

	in.HandleUpdate(context.Background(), groupMessage(1, "thanks @alice, mail bob@example.com"))
	if len(bot.sent) != 0 {
		t.Fatalf("expected no reply to a plain mention, got %+v", bot.sent)
	}

	in.HandleUpdate(context.Background(), groupMessage(2, "@create_file"))
	if len(bot.sent) != 1 || bot.sent[0].replyTo != 2 {
		t.Fatalf("expected a reply to the tool marker, got %+v", bot.sent)
	}
}

func TestRunRetriesAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bot := &fakeBot{
		errs:    []error{errors.New("network down")},
		batches: [][]Update{{groupMessage(1, "@create_file")}},
		onEmpty: cancel,
	}
	in := &Ingester{Bot: bot, Tools: &fakeTools{}, RetryDelay: time.Millisecond, Logger: logutil.Discard()}

	done := make(chan error, 1)
	go func() { done <- in.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	bot.mu.Lock()
	defer bot.mu.Unlock()
	if bot.calls != 3 || len(bot.sent) != 1 {
		t.Fatalf("calls=%d sent=%d", bot.calls, len(bot.sent))
	}
}
