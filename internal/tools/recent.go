package tools

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Napageneral/onboard/internal/memory"
)

const (
	previewChars = 200
	summaryTop   = 5

	// maxWindowHours is the largest window a time.Duration can hold.
	maxWindowHours = math.MaxInt64 / int64(time.Hour)
)

// window converts hours to a duration, saturating instead of overflowing.
func window(hours int) time.Duration {
	if int64(hours) > maxWindowHours {
		return time.Duration(maxWindowHours) * time.Hour
	}
	return time.Duration(hours) * time.Hour
}

// BuildRecentContext buckets entries ingested within (now-hours, now],
// newest first. Entries with an unparseable timestamp or an unknown source are dropped.
func BuildRecentContext(entries []memory.Entry, now time.Time, hours int) RecentContext {
	ctx := RecentContext{Telegram: []ContextItem{}, Drive: []ContextItem{}, Github: []ContextItem{}}
	for _, e := range memory.Recent(entries, now, window(hours)) {
		item := ContextItem{
			Content:    memory.Preview(e.Content, previewChars),
			IngestedAt: e.IngestedAt,
			MemoryID:   e.ID,
		}
		switch memory.Bucket(e.Source) {
		case memory.SourceTelegram:
			ctx.Telegram = append(ctx.Telegram, item)
		case memory.SourceDrive:
			ctx.Drive = append(ctx.Drive, item)
		case memory.SourceGithub:
			ctx.Github = append(ctx.Github, item)
		}
	}
	return ctx
}

// FormatRecentContext renders the summary shown to users, at most five items per bucket.
func FormatRecentContext(ctx RecentContext, hours int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Recent Activity (Last %d hours)\n\n", hours)

	section := func(heading string, items []ContextItem) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s - %d items\n", heading, len(items))
		for i, item := range items {
			if i == summaryTop {
				break
			}
			fmt.Fprintf(&b, "  • %s\n", item.Content)
		}
		b.WriteString("\n")
	}
	section("📢 Chat Decisions (Source: Telegram)", ctx.Telegram)
	section("📄 New Specs (Source: Drive)", ctx.Drive)
	section("💻 Code Changes (Source: Github)", ctx.Github)

	if ctx.Empty() {
		b.WriteString("No recent activity found in the specified time period.\n")
	}
	return b.String()
}
