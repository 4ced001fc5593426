package chats

import (
	"context"
	"testing"
	"time"

	"github.com/Napageneral/onboard/internal/testutil"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	return NewLog(testutil.OpenTestDB(t).DB)
}

func TestRecordIgnoresDuplicates(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	m := Message{ChatID: "-100", MessageID: "1", ChannelName: "eng", Text: FormatLine("alex", "ship it"), CreatedAt: 100}

	inserted, err := l.Record(ctx, m)
	if err != nil || !inserted {
		t.Fatalf("first Record = %v, %v", inserted, err)
	}
	inserted, err = l.Record(ctx, m)
	if err != nil || inserted {
		t.Fatalf("duplicate Record = %v, %v", inserted, err)
	}

	// A second message in the same chat is kept.
	m.MessageID = "2"
	if inserted, err := l.Record(ctx, m); err != nil || !inserted {
		t.Fatalf("second message Record = %v, %v", inserted, err)
	}
	msgs, err := l.Thread(ctx, "-100")
	if err != nil {
		t.Fatalf("Thread: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestRecordValidates(t *testing.T) {
	l := newTestLog(t)
	if _, err := l.Record(context.Background(), Message{ChatID: "1"}); err == nil {
		t.Fatal("expected error without message id")
	}
}

func TestQueryFilters(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := []Message{
		{ChatID: "a", MessageID: "1", ChannelName: "eng", Text: "alex: Decided to use Postgres", CreatedAt: base.Unix()},
		{ChatID: "a", MessageID: "2", ChannelName: "eng", Text: "sam: sounds good", CreatedAt: base.Add(time.Hour).Unix()},
		{ChatID: "b", MessageID: "1", ChannelName: "ops", Text: "kim: postgres backup failed", CreatedAt: base.Add(2 * time.Hour).Unix()},
	}
	for _, m := range seed {
		if _, err := l.Record(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name    string
		filters Filters
		want    int
	}{
		{"all", Filters{}, 3},
		{"by chat", Filters{ChatID: "a"}, 2},
		{"by channel", Filters{Channel: "ops"}, 1},
		{"contains is case-insensitive", Filters{Contains: "POSTGRES"}, 2},
		{"since", Filters{Since: base.Add(time.Hour)}, 2},
		{"until", Filters{Until: base}, 1},
		{"limit", Filters{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Query(ctx, tt.filters)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d messages, want %d", len(got), tt.want)
			}
		})
	}

	latest, err := l.Query(ctx, Filters{Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if latest[0].Text != "kim: postgres backup failed" {
		t.Fatalf("expected most recent first, got %q", latest[0].Text)
	}
}

func TestFormatLine(t *testing.T) {
	if got := FormatLine("alex", "hi"); got != "alex: hi" {
		t.Errorf("FormatLine = %q", got)
	}
	if got := FormatLine("", "hi"); got != "unknown: hi" {
		t.Errorf("FormatLine without username = %q", got)
	}
}
