package tools

import "encoding/json"

// Status is the outcome tag carried by every ToolResult.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusError          Status = "error"
	StatusPendingContent Status = "pending_content"
	StatusReady          Status = "ready"
)

// ErrorKind classifies error results.
type ErrorKind string

const (
	ErrorKindNone        ErrorKind = ""
	ErrorKindUnknownTool ErrorKind = "unknown_tool"
	ErrorKindBackend     ErrorKind = "backend_error"
	ErrorKindInternal    ErrorKind = "internal_error"
)

// ContextItem is one memory listed by get_recent_context.
type ContextItem struct {
	Content    string `json:"content"` // preview
	IngestedAt string `json:"ingested_at"`
	MemoryID   string `json:"memory_id,omitempty"`
}

// RecentContext groups recent memories by source.
type RecentContext struct {
	Telegram []ContextItem `json:"telegram"`
	Drive    []ContextItem `json:"drive"`
	Github   []ContextItem `json:"github"`
}

// Empty reports whether no bucket has entries.
func (c RecentContext) Empty() bool {
	return len(c.Telegram) == 0 && len(c.Drive) == 0 && len(c.Github) == 0
}

// ToolResult is returned synchronously for every tool call. Which payload
// fields are set depends on Tool and Status.
type ToolResult struct {
	Tool      string
	Status    Status
	ErrorKind ErrorKind
	Error     string

	// create_file
	Filename string
	Content  string
	Message  string

	// get_recent_context
	Hours   int
	Context *RecentContext

	// generate_mermaid_graph
	Topic   string
	Mermaid string

	// Formatted is the human-readable rendering for get_recent_context and generate_mermaid_graph.
	Formatted string
}

// OK reports whether the call did not fail.
func (r ToolResult) OK() bool { return r.Status != StatusError }

// Text is what a chat surface should show for the result.
func (r ToolResult) Text() string {
	switch {
	case r.Status == StatusError:
		return "Error: " + r.Error
	case r.Formatted != "":
		return r.Formatted
	default:
		return r.Message
	}
}

func errorResult(tool string, kind ErrorKind, msg string) ToolResult {
	return ToolResult{Tool: tool, Status: StatusError, ErrorKind: kind, Error: msg}
}

// MarshalJSON encodes the result as a flat object: tool, status and the
// payload fields that apply.
func (r ToolResult) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"tool":   r.Tool,
		"status": r.Status,
	}
	switch r.Status {
	case StatusError:
		out["error"] = r.Error
		if r.ErrorKind != ErrorKindNone {
			out["error_kind"] = r.ErrorKind
		}
	case StatusPendingContent:
		out["filename"] = r.Filename
		out["message"] = r.Message
	case StatusReady:
		out["filename"] = r.Filename
		out["content"] = r.Content
		out["message"] = r.Message
	case StatusSuccess:
		switch r.Tool {
		case ToolRecentContext:
			out["hours"] = r.Hours
			ctx := r.Context
			if ctx == nil {
				ctx = &RecentContext{}
			}
			out["context"] = ctx.normalized()
		case ToolMermaidGraph:
			out["topic"] = r.Topic
			out["mermaid"] = r.Mermaid
		}
		out["formatted"] = r.Formatted
	}
	return json.Marshal(out)
}

func (c *RecentContext) normalized() RecentContext {
	n := *c
	if n.Telegram == nil {
		n.Telegram = []ContextItem{}
	}
	if n.Drive == nil {
		n.Drive = []ContextItem{}
	}
	if n.Github == nil {
		n.Github = []ContextItem{}
	}
	return n
}
