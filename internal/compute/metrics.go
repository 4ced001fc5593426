// Package compute aggregates timing and outcome metrics for the poll loop and tool dispatch.
package compute

import (
	"encoding/json"
	"sync"
	"time"
)

// Outcome labels shared by the poller and the tool router.
const (
	OutcomeForwarded = "forwarded"
	OutcomeUnchanged = "unchanged"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// PollMetrics captures aggregated document and tool metrics.
// No per-document data is kept.
type PollMetrics struct {
	mu sync.Mutex

	Cycles int

	DocumentsTotal     int
	DocumentsForwarded int
	DocumentsUnchanged int
	DocumentsSkipped   int // soft fetch failures
	DocumentsFailed    int

	Fetch   time.Duration
	Forward time.Duration
	Store   time.Duration
	Overall time.Duration

	FailureReasons map[string]int

	ToolCalls  int
	ToolErrors int
	ToolCounts map[string]int
}

func NewPollMetrics() *PollMetrics {
	return &PollMetrics{
		FailureReasons: make(map[string]int),
		ToolCounts:     make(map[string]int),
	}
}

// DocumentEvent is the timing of one document within a cycle.
type DocumentEvent struct {
	Fetch   time.Duration
	Forward time.Duration
	Store   time.Duration
	Overall time.Duration

	Outcome string // OutcomeForwarded | OutcomeUnchanged | OutcomeSkipped | OutcomeFailed
	Reason  string
}

// RecordDocument folds one document's outcome into the totals.
func (m *PollMetrics) RecordDocument(ev DocumentEvent) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DocumentsTotal++
	switch ev.Outcome {
	case OutcomeForwarded:
		m.DocumentsForwarded++
	case OutcomeUnchanged:
		m.DocumentsUnchanged++
	case OutcomeSkipped:
		m.DocumentsSkipped++
		if ev.Reason != "" {
			m.FailureReasons[ev.Reason]++
		}
	default:
		m.DocumentsFailed++
		if ev.Reason != "" {
			m.FailureReasons[ev.Reason]++
		}
	}

	m.Fetch += ev.Fetch
	m.Forward += ev.Forward
	m.Store += ev.Store
	m.Overall += ev.Overall
}

// RecordCycle counts one completed poll cycle.
func (m *PollMetrics) RecordCycle() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.Cycles++
	m.mu.Unlock()
}

// RecordTool counts one tool execution.
func (m *PollMetrics) RecordTool(tool string, failed bool) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ToolCalls++
	m.ToolCounts[tool]++
	if failed {
		m.ToolErrors++
	}
}

// Snapshot returns a JSON-serializable snapshot of current metrics.
func (m *PollMetrics) Snapshot() map[string]any {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	div := func(d time.Duration, n int) float64 {
		if n <= 0 {
			return 0
		}
		return float64(d.Milliseconds()) / float64(n)
	}
	reasons := make(map[string]int, len(m.FailureReasons))
	for k, v := range m.FailureReasons {
		reasons[k] = v
	}
	tools := make(map[string]int, len(m.ToolCounts))
	for k, v := range m.ToolCounts {
		tools[k] = v
	}

	return map[string]any{
		"cycles": m.Cycles,
		"documents": map[string]any{
			"total":     m.DocumentsTotal,
			"forwarded": m.DocumentsForwarded,
			"unchanged": m.DocumentsUnchanged,
			"skipped":   m.DocumentsSkipped,
			"failed":    m.DocumentsFailed,
			"avg_ms": map[string]any{
				"fetch":   div(m.Fetch, m.DocumentsTotal),
				"forward": div(m.Forward, m.DocumentsForwarded),
				"store":   div(m.Store, m.DocumentsForwarded),
				"overall": div(m.Overall, m.DocumentsTotal),
			},
			"failure_reasons": reasons,
		},
		"tools": map[string]any{
			"calls":  m.ToolCalls,
			"errors": m.ToolErrors,
			"counts": tools,
		},
	}
}

// SnapshotJSON returns a JSON representation of the metrics.
func (m *PollMetrics) SnapshotJSON() json.RawMessage {
	if m == nil {
		return json.RawMessage("null")
	}
	b, _ := json.Marshal(m.Snapshot())
	return b
}
