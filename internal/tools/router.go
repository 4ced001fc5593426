package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Napageneral/onboard/internal/backboard"
	"github.com/Napageneral/onboard/internal/compute"
	"github.com/Napageneral/onboard/internal/logutil"
	"github.com/Napageneral/onboard/internal/memory"
	"github.com/Napageneral/onboard/internal/relay"
)

// MemoryLister is the optional remote capability to list stored memories.
type MemoryLister interface {
	ListMemories(ctx context.Context, assistantID string) ([]memory.Entry, error)
}

// Backend resolves a client's memory session and default assistant for Handle.
type Backend interface {
	MemorySession(ctx context.Context, clientID string) (MemoryLister, error)
	ResolveAssistant(ctx context.Context, clientID string) (string, error)
}

// ForwarderBackend adapts a relay.Forwarder to Backend.
type ForwarderBackend struct {
	*relay.Forwarder
}

func (b ForwarderBackend) MemorySession(ctx context.Context, clientID string) (MemoryLister, error) {
	return b.Session(ctx, clientID)
}

// Router dispatches tool invocations. It holds no per-call state and is safe
// for concurrent use.
type Router struct {
	Backend Backend
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *compute.PollMetrics
}

func (r *Router) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Handle detects a tool marker in text and executes it. It returns false when
// text contains no marker.
func (r *Router) Handle(ctx context.Context, clientID, assistantID, text string) (ToolResult, bool) {
	tool, ok := Detect(text)
	if !ok {
		return ToolResult{}, false
	}

	var session MemoryLister
	if needsMemories(tool) && r.Backend != nil {
		var err error
		session, err = r.Backend.MemorySession(ctx, clientID)
		if err != nil {
			res := errorResult(tool, ErrorKindBackend, err.Error())
			r.record(tool, res)
			return res, true
		}
		if assistantID == "" {
			assistantID, err = r.Backend.ResolveAssistant(ctx, clientID)
			if err != nil {
				res := errorResult(tool, ErrorKindBackend, err.Error())
				r.record(tool, res)
				return res, true
			}
		}
	}
	return r.Execute(ctx, tool, clientID, text, session, assistantID), true
}

// Execute runs tool against rawText. A nil session stands for a backend
// without memory listing. Failures, including panics, become error results.
func (r *Router) Execute(ctx context.Context, tool, clientID, rawText string, session MemoryLister, assistantID string) (res ToolResult) {
	log := logutil.OrDefault(r.Logger).With("tool", tool, "client_id", clientID)
	defer func() {
		if p := recover(); p != nil {
			log.Error("tool panicked", "panic", fmt.Sprint(p))
			res = errorResult(tool, ErrorKindInternal, fmt.Sprint(p))
		}
		r.record(tool, res)
	}()

	params := ExtractParams(tool, rawText)
	switch tool {
	case ToolCreateFile:
		return createFile(params)
	case ToolRecentContext:
		return r.recentContext(ctx, log, params, session, assistantID)
	case ToolMermaidGraph:
		return r.mermaidGraph(ctx, log, params, session, assistantID)
	default:
		log.Debug("unknown tool")
		return errorResult(tool, ErrorKindUnknownTool, "Unknown tool: "+tool)
	}
}

func (r *Router) record(tool string, res ToolResult) {
	r.Metrics.RecordTool(tool, res.Status == StatusError)
}

func needsMemories(tool string) bool {
	return tool == ToolRecentContext || tool == ToolMermaidGraph
}

// createFile only prepares the request; writing the file is left to the caller's surface.
func createFile(p Params) ToolResult {
	filename := p["filename"]
	content, ok := p["content"]
	if !ok || content == "" {
		return ToolResult{
			Tool:     ToolCreateFile,
			Status:   StatusPendingContent,
			Filename: filename,
			Message:  "Please provide the content for " + filename,
		}
	}
	return ToolResult{
		Tool:     ToolCreateFile,
		Status:   StatusReady,
		Filename: filename,
		Content:  content,
		Message:  "File creation request prepared: " + filename,
	}
}

func (r *Router) recentContext(ctx context.Context, log *slog.Logger, p Params, session MemoryLister, assistantID string) ToolResult {
	hours := defaultContextHours
	if v, ok := p["hours"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			hours = n
		}
	}
	entries, err := listMemories(ctx, session, assistantID)
	if err != nil {
		log.Warn("list memories failed", "error", err)
		return errorResult(ToolRecentContext, ErrorKindBackend, err.Error())
	}
	recent := BuildRecentContext(entries, r.now(), hours)
	return ToolResult{
		Tool:      ToolRecentContext,
		Status:    StatusSuccess,
		Hours:     hours,
		Context:   &recent,
		Formatted: FormatRecentContext(recent, hours),
	}
}

func (r *Router) mermaidGraph(ctx context.Context, log *slog.Logger, p Params, session MemoryLister, assistantID string) ToolResult {
	topic := p["topic"]
	entries, err := listMemories(ctx, session, assistantID)
	if err != nil {
		log.Warn("list memories failed", "error", err)
		return errorResult(ToolMermaidGraph, ErrorKindBackend, err.Error())
	}
	graph := BuildMermaidGraph(topic, entries)
	return ToolResult{
		Tool:      ToolMermaidGraph,
		Status:    StatusSuccess,
		Topic:     topic,
		Mermaid:   graph,
		Formatted: fenceMermaid(graph),
	}
}

// listMemories treats a missing session or an endpoint the backend lacks as an empty list.
func listMemories(ctx context.Context, session MemoryLister, assistantID string) ([]memory.Entry, error) {
	if session == nil {
		return nil, nil
	}
	entries, err := session.ListMemories(ctx, assistantID)
	if errors.Is(err, backboard.ErrMemoriesUnsupported) {
		return nil, nil
	}
	return entries, err
}
