package compute

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRecordDocumentCounts(t *testing.T) {
	m := NewPollMetrics()
	m.RecordDocument(DocumentEvent{Outcome: OutcomeForwarded, Forward: 20 * time.Millisecond, Overall: 30 * time.Millisecond})
	m.RecordDocument(DocumentEvent{Outcome: OutcomeUnchanged, Overall: 10 * time.Millisecond})
	m.RecordDocument(DocumentEvent{Outcome: OutcomeSkipped, Reason: "metadata missing"})
	m.RecordDocument(DocumentEvent{Outcome: OutcomeFailed, Reason: "remote_error"})
	m.RecordCycle()

	if m.DocumentsTotal != 4 || m.DocumentsForwarded != 1 || m.DocumentsUnchanged != 1 ||
		m.DocumentsSkipped != 1 || m.DocumentsFailed != 1 {
		t.Fatalf("unexpected counts: %+v", m)
	}
	if m.FailureReasons["remote_error"] != 1 || m.FailureReasons["metadata missing"] != 1 {
		t.Fatalf("unexpected reasons: %v", m.FailureReasons)
	}

	snap := m.Snapshot()
	docs := snap["documents"].(map[string]any)
	avg := docs["avg_ms"].(map[string]any)
	if avg["forward"].(float64) != 20 {
		t.Errorf("avg forward = %v, want 20", avg["forward"])
	}
	if snap["cycles"].(int) != 1 {
		t.Errorf("cycles = %v", snap["cycles"])
	}
}

func TestRecordTool(t *testing.T) {
	m := NewPollMetrics()
	m.RecordTool("create_file", false)
	m.RecordTool("nope", true)
	if m.ToolCalls != 2 || m.ToolErrors != 1 || m.ToolCounts["nope"] != 1 {
		t.Fatalf("unexpected tool metrics: %+v", m)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *PollMetrics
	m.RecordDocument(DocumentEvent{Outcome: OutcomeForwarded})
	m.RecordCycle()
	m.RecordTool("x", false)
	if m.Snapshot() != nil {
		t.Fatal("expected nil snapshot")
	}
	if string(m.SnapshotJSON()) != "null" {
		t.Fatalf("unexpected json %s", m.SnapshotJSON())
	}
}

func TestSnapshotJSON(t *testing.T) {
	m := NewPollMetrics()
	m.RecordDocument(DocumentEvent{Outcome: OutcomeForwarded})
	var decoded map[string]any
	if err := json.Unmarshal(m.SnapshotJSON(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if _, ok := decoded["documents"]; !ok {
		t.Fatal("missing documents key")
	}
}
