package backboard

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Chunk is one streamed fragment of an assistant reply.
type Chunk struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// Stream reads chunks from a server-sent-event or newline-delimited JSON body.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// NewStream reads chunks from body until io.EOF or a [DONE] marker.
func NewStream(body io.ReadCloser) *Stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &Stream{body: body, scanner: sc}
}

// Next returns the next chunk, or io.EOF when the stream has ended.
// A line that is not valid JSON is an error.
func (s *Stream) Next() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "event:") || strings.HasPrefix(line, "id:") || strings.HasPrefix(line, "retry:") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if line == "[DONE]" {
			s.done = true
			return Chunk{}, io.EOF
		}
		var c Chunk
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			return Chunk{}, fmt.Errorf("backboard: malformed stream chunk %q: %w", truncate(line, 120), err)
		}
		return c, nil
	}
	if err := s.scanner.Err(); err != nil {
		return Chunk{}, fmt.Errorf("backboard: read stream: %w", err)
	}
	s.done = true
	return Chunk{}, io.EOF
}

func (s *Stream) Close() error {
	return s.body.Close()
}

// CollectContent drains the stream and concatenates content chunks only.
func CollectContent(s *Stream) (string, error) {
	var b strings.Builder
	for {
		c, err := s.Next()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		if c.Type == ChunkContent {
			b.WriteString(c.Content)
		}
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
