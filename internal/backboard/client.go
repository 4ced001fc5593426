// Package backboard is a small HTTP client for the Backboard assistant API:
// assistants, threads, streamed messages and stored memories.
package backboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Napageneral/onboard/internal/memory"
)

const (
	DefaultBaseURL = "https://app.backboard.io/api"

	// MemoryAuto lets the backend decide what to retain from a message.
	MemoryAuto = "Auto"

	ChunkContent = "content_streaming"
)

// ErrMemoriesUnsupported is returned when the backend does not expose memory listing.
var ErrMemoriesUnsupported = errors.New("backboard: memory listing not available")

// StatusError is a non-2xx response.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backboard: %s: http %d: %s", e.Op, e.Status, e.Body)
}

// Client talks to one Backboard account.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a client for apiKey. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
	}
}

type Assistant struct {
	AssistantID string `json:"assistant_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Thread struct {
	ThreadID    string `json:"thread_id"`
	AssistantID string `json:"assistant_id,omitempty"`
}

// CreateAssistant creates a new assistant.
func (c *Client) CreateAssistant(ctx context.Context, name, description string) (*Assistant, error) {
	body := map[string]string{"name": name, "description": description}
	var out Assistant
	if err := c.doJSON(ctx, "create assistant", http.MethodPost, "/assistants", body, &out); err != nil {
		return nil, err
	}
	if out.AssistantID == "" {
		return nil, errors.New("backboard: create assistant: response missing assistant_id")
	}
	return &out, nil
}

// CreateThread opens a conversation thread on an assistant.
func (c *Client) CreateThread(ctx context.Context, assistantID string) (*Thread, error) {
	var out Thread
	path := "/assistants/" + url.PathEscape(assistantID) + "/threads"
	if err := c.doJSON(ctx, "create thread", http.MethodPost, path, map[string]any{}, &out); err != nil {
		return nil, err
	}
	if out.ThreadID == "" {
		return nil, errors.New("backboard: create thread: response missing thread_id")
	}
	return &out, nil
}

// AddMessage posts content to a thread and returns the streamed reply.
// The caller must Close the stream.
func (c *Client) AddMessage(ctx context.Context, threadID, content, memoryMode string) (*Stream, error) {
	form := url.Values{}
	form.Set("content", content)
	form.Set("stream", "true")
	if memoryMode != "" {
		form.Set("memory", memoryMode)
	}

	endpoint := c.baseURL + "/threads/" + url.PathEscape(threadID) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("backboard: add message: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backboard: add message: send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &StatusError{Op: "add message", Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return NewStream(resp.Body), nil
}

type rawMemory struct {
	ID       string         `json:"id"`
	MemoryID string         `json:"memory_id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

type listMemoriesResponse struct {
	Memories []rawMemory `json:"memories"`
}

// ListMemories returns the memories stored for an assistant.
// A 404 or 405 from the backend is reported as ErrMemoriesUnsupported.
func (c *Client) ListMemories(ctx context.Context, assistantID string) ([]memory.Entry, error) {
	path := "/assistants/" + url.PathEscape(assistantID) + "/memories"
	var out listMemoriesResponse
	err := c.doJSON(ctx, "list memories", http.MethodGet, path, nil, &out)
	var se *StatusError
	if errors.As(err, &se) && (se.Status == http.StatusNotFound || se.Status == http.StatusMethodNotAllowed) {
		return nil, ErrMemoriesUnsupported
	}
	if err != nil {
		return nil, err
	}

	entries := make([]memory.Entry, 0, len(out.Memories))
	for _, m := range out.Memories {
		id := m.MemoryID
		if id == "" {
			id = m.ID
		}
		entries = append(entries, memory.Entry{
			ID:         id,
			Content:    m.Content,
			Source:     metadataString(m.Metadata, "source"),
			IngestedAt: metadataString(m.Metadata, "ingested_at"),
			Metadata:   m.Metadata,
		})
	}
	return entries, nil
}

func metadataString(md map[string]any, key string) string {
	if md == nil {
		return ""
	}
	if s, ok := md[key].(string); ok {
		return s
	}
	return ""
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("X-API-Key", c.apiKey)
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backboard: %s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backboard: %s: create request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backboard: %s: send request: %w", op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backboard: %s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("backboard: %s: unmarshal response: %w", op, err)
	}
	return nil
}
