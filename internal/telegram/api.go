// Package telegram long-polls the Bot API, logs group messages and answers
// tool markers found in them.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public Bot API endpoint.
	DefaultBaseURL = "https://api.telegram.org"
	// maxMessageLen stays under Telegram's 4096 character limit.
	maxMessageLen = 3500
)

// API is a minimal Bot API client.
type API struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewAPI(httpClient *http.Client, baseURL, token string) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &API{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

type Message struct {
	MessageID  int64  `json:"message_id"`
	Date       int64  `json:"date,omitempty"`
	Chat       *Chat  `json:"chat,omitempty"`
	From       *User  `json:"from,omitempty"`
	SenderChat *Chat  `json:"sender_chat,omitempty"`
	Text       string `json:"text,omitempty"`
}

type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type,omitempty"` // private|group|supergroup|channel
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

// IsGroup reports whether the chat is a group or supergroup.
func (c *Chat) IsGroup() bool {
	return c != nil && (c.Type == "group" || c.Type == "supergroup")
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// SenderName is the sender's username, falling back to the sending chat.
func (m *Message) SenderName() string {
	if m.From != nil {
		if m.From.Username != "" {
			return m.From.Username
		}
		return m.From.FirstName
	}
	if m.SenderChat != nil {
		if m.SenderChat.Username != "" {
			return m.SenderChat.Username
		}
		return m.SenderChat.Title
	}
	return ""
}

// RequestError is a non-OK Bot API response.
type RequestError struct {
	StatusCode  int
	ErrorCode   int
	Description string
	Body        string
}

func (e *RequestError) Error() string {
	if desc := strings.TrimSpace(e.Description); desc != "" {
		return fmt.Sprintf("telegram http %d: %s", e.StatusCode, desc)
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		return fmt.Sprintf("telegram http %d: %s", e.StatusCode, body)
	}
	return fmt.Sprintf("telegram http %d", e.StatusCode)
}

type okResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

type getUpdatesResponse struct {
	okResponse
	Result []Update `json:"result"`
}

// GetUpdates long-polls for updates at or after offset and returns the next offset.
func (api *API) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=%d", api.baseURL, api.token, secs)
	if offset > 0 {
		url += fmt.Sprintf("&offset=%d", offset)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, offset, err
	}
	var out getUpdatesResponse
	if err := api.do(req, &out); err != nil {
		return nil, offset, err
	}

	next := offset
	for _, u := range out.Result {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return out.Result, next, nil
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
	ReplyToMessageID      int64  `json:"reply_to_message_id,omitempty"`
}

// SendMessage posts text as plain text, split into chunks Telegram accepts.
// Only the first chunk is sent as a reply.
func (api *API) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	for _, chunk := range splitMessage(text, maxMessageLen) {
		b, _ := json.Marshal(sendMessageRequest{
			ChatID:                chatID,
			Text:                  chunk,
			DisableWebPagePreview: true,
			ReplyToMessageID:      replyTo,
		})
		url := fmt.Sprintf("%s/bot%s/sendMessage", api.baseURL, api.token)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if err := api.do(req, &okResponse{}); err != nil {
			return err
		}
		replyTo = 0
	}
	return nil
}

// okCarrier lets do inspect the shared ok/description envelope.
type okCarrier interface{ envelope() okResponse }

func (r okResponse) envelope() okResponse { return r }

func (api *API) do(req *http.Request, out okCarrier) error {
	resp, err := api.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	decodeErr := json.Unmarshal(raw, out)
	env := out.envelope()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.OK {
		return &RequestError{
			StatusCode:  resp.StatusCode,
			ErrorCode:   env.ErrorCode,
			Description: env.Description,
			Body:        strings.TrimSpace(string(raw)),
		}
	}
	if decodeErr != nil {
		return fmt.Errorf("telegram: decode response: %w", decodeErr)
	}
	return nil
}

// splitMessage cuts text into pieces of at most max bytes without splitting runes.
func splitMessage(text string, max int) []string {
	var chunks []string
	for len(text) > max {
		cut := max
		for cut > 0 && !isRuneStart(text[cut]) {
			cut--
		}
		if nl := strings.LastIndexByte(text[:cut], '\n'); nl > cut/2 {
			cut = nl + 1
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	return append(chunks, text)
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
