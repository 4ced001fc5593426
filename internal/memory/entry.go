package memory

import (
	"sort"
	"strings"
	"time"
)

// Source buckets recognised by the context tools.
const (
	SourceTelegram = "telegram"
	SourceDrive    = "drive"
	SourceGithub   = "github"
)

// Entry is one memory stored by the remote backend.
type Entry struct {
	ID         string         `json:"memory_id"`
	Content    string         `json:"content"`
	Source     string         `json:"source,omitempty"`      // metadata.source
	IngestedAt string         `json:"ingested_at,omitempty"` // metadata.ingested_at, unparsed
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Bucket maps an entry's source tag to one of the recognised buckets.
// Matching is case-insensitive; "git" folds into github. Unknown tags return "".
func Bucket(source string) string {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "telegram":
		return SourceTelegram
	case "drive":
		return SourceDrive
	case "github", "git":
		return SourceGithub
	default:
		return ""
	}
}

// naiveLayouts are accepted for timestamps written without a zone; they are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseIngestedAt parses an ISO-8601 timestamp. A trailing "Z" or a numeric
// offset is honoured; naive timestamps are treated as UTC.
func ParseIngestedAt(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Timed is an entry whose ingestion time parsed successfully.
type Timed struct {
	Entry
	At time.Time
}

// Recent returns entries ingested within (now-window, now], newest first.
// Entries without a parseable timestamp are dropped.
func Recent(entries []Entry, now time.Time, window time.Duration) []Timed {
	cutoff := now.Add(-window)
	var out []Timed
	for _, e := range entries {
		at, ok := ParseIngestedAt(e.IngestedAt)
		if !ok {
			continue
		}
		if !at.After(cutoff) || at.After(now) {
			continue
		}
		out = append(out, Timed{Entry: e, At: at})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out
}

// MatchTopic returns entries whose content contains topic, case-insensitively,
// in their original order, capped at limit (0 = no cap).
func MatchTopic(entries []Entry, topic string, limit int) []Entry {
	needle := strings.ToLower(topic)
	var out []Entry
	for _, e := range entries {
		if !strings.Contains(strings.ToLower(e.Content), needle) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Preview truncates content to max runes and appends an ellipsis.
func Preview(content string, max int) string {
	r := []rune(content)
	if len(r) > max {
		r = r[:max]
	}
	return string(r) + "..."
}
