// Package poller watches a fixed set of Drive documents and forwards new or
// changed content to the client's memory backend.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Napageneral/onboard/internal/compute"
	"github.com/Napageneral/onboard/internal/documents"
	"github.com/Napageneral/onboard/internal/drive"
	"github.com/Napageneral/onboard/internal/logutil"
	"github.com/Napageneral/onboard/internal/relay"
)

// DefaultInterval is the sleep between cycles.
const DefaultInterval = 300 * time.Second

// SubmissionSource tags audit rows written by the poller.
const SubmissionSource = "drive"

// Source fetches document metadata and text.
type Source interface {
	Metadata(ctx context.Context, fileID string) (*drive.Metadata, error)
	Content(ctx context.Context, fileID string) (string, error)
}

// Store is the tracking-record surface the poller reads and asks to update.
type Store interface {
	Lookup(ctx context.Context, fileID string) (*documents.WatchedDocument, error)
	Insert(ctx context.Context, doc documents.WatchedDocument) error
	Update(ctx context.Context, fileID, content, lastModified string) error
	RecordSubmission(ctx context.Context, sub documents.Submission) (string, error)
}

// Forwarder submits text to the memory backend.
type Forwarder interface {
	Submit(ctx context.Context, clientID, assistantID, text string) (relay.Reply, error)
}

// Outcome is what happened to one document in a cycle.
type Outcome int

const (
	OutcomeForwarded Outcome = iota
	OutcomeUnchanged
	// OutcomeSkipped is a soft fetch failure: metadata or content was unavailable.
	OutcomeSkipped
	// OutcomeFailed means forwarding or storing failed; the record was left as is.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeForwarded:
		return compute.OutcomeForwarded
	case OutcomeUnchanged:
		return compute.OutcomeUnchanged
	case OutcomeSkipped:
		return compute.OutcomeSkipped
	default:
		return compute.OutcomeFailed
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// DocumentResult reports the handling of one document.
type DocumentResult struct {
	FileID   string           `json:"file_id"`
	Name     string           `json:"name,omitempty"`
	Change   documents.Change `json:"-"`
	Outcome  Outcome          `json:"outcome"`
	Reason   string           `json:"reason,omitempty"`
	ThreadID string           `json:"thread_id,omitempty"`
}

// CycleReport summarises one pass over all watched documents.
type CycleReport struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Documents  []DocumentResult `json:"documents"`
	Forwarded  int              `json:"forwarded"`
	Unchanged  int              `json:"unchanged"`
	Skipped    int              `json:"skipped"`
	Failed     int              `json:"failed"`
	Cancelled  bool             `json:"cancelled,omitempty"`
}

func (r *CycleReport) add(res DocumentResult) {
	r.Documents = append(r.Documents, res)
	switch res.Outcome {
	case OutcomeForwarded:
		r.Forwarded++
	case OutcomeUnchanged:
		r.Unchanged++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

// Poller runs the fetch, classify, forward and store loop for a single client.
type Poller struct {
	Source    Source
	Store     Store
	Forwarder Forwarder

	FileIDs     []string
	ClientID    string
	AssistantID string // empty uses the client's registered assistant
	Interval    time.Duration

	Logger  *slog.Logger
	Metrics *compute.PollMetrics
	Now     func() time.Time
}

func (p *Poller) logger() *slog.Logger { return logutil.OrDefault(p.Logger) }

func (p *Poller) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Poller) interval() time.Duration {
	if p.Interval > 0 {
		return p.Interval
	}
	return DefaultInterval
}

// ProcessDocument runs one document through the pipeline. Soft fetch failures
// return OutcomeSkipped with a nil error; forward and store failures return
// OutcomeFailed with the error. A panic in a collaborator is reported as
// OutcomeFailed with reason "panic".
func (p *Poller) ProcessDocument(ctx context.Context, fileID string) (res DocumentResult, err error) {
	log := p.logger().With("file_id", fileID)
	res = DocumentResult{FileID: fileID}
	ev := compute.DocumentEvent{}
	start := p.now()
	defer func() {
		ev.Outcome = res.Outcome.String()
		ev.Reason = res.Reason
		ev.Overall = p.now().Sub(start)
		p.Metrics.RecordDocument(ev)
	}()
	defer func() {
		if r := recover(); r != nil {
			res.Outcome, res.Reason = OutcomeFailed, "panic"
			err = fmt.Errorf("poller: document %s panicked: %v", fileID, r)
			log.Error("document panicked", "panic", fmt.Sprint(r))
		}
	}()

	fetchStart := p.now()
	meta, err := p.Source.Metadata(ctx, fileID)
	if err != nil || meta == nil {
		res.Outcome, res.Reason = OutcomeSkipped, "metadata unavailable"
		log.Warn("fetch failed", "stage", "metadata", "error", errString(err))
		return res, nil
	}
	res.Name = meta.Name
	content, err := p.Source.Content(ctx, fileID)
	ev.Fetch = p.now().Sub(fetchStart)
	if err != nil {
		res.Outcome, res.Reason = OutcomeSkipped, "content unavailable"
		log.Warn("fetch failed", "stage", "content", "name", meta.Name, "error", err)
		return res, nil
	}

	existing, err := p.Store.Lookup(ctx, fileID)
	if err != nil {
		res.Outcome, res.Reason = OutcomeFailed, "lookup"
		log.Error("lookup failed", "error", err)
		return res, err
	}
	res.Change = documents.Classify(existing, content)
	if res.Change == documents.ChangeUnchanged {
		res.Outcome = OutcomeUnchanged
		log.Debug("document unchanged", "name", meta.Name)
		return res, nil
	}
	log.Info("document changed", "name", meta.Name, "change", res.Change.String())

	forwardStart := p.now()
	reply, err := p.Forwarder.Submit(ctx, p.ClientID, p.AssistantID, BuildSubmission(meta, content))
	ev.Forward = p.now().Sub(forwardStart)
	if err != nil {
		res.Outcome, res.Reason = OutcomeFailed, relay.KindOf(err).String()
		log.Error("forward failed", "name", meta.Name, "kind", res.Reason, "error", err)
		return res, err
	}
	res.ThreadID = reply.ThreadID

	storeStart := p.now()
	if err := p.upsert(ctx, fileID, res.Change, meta, content); err != nil {
		ev.Store = p.now().Sub(storeStart)
		res.Outcome, res.Reason = OutcomeFailed, "store"
		log.Error("store update failed", "name", meta.Name, "error", err)
		return res, err
	}
	ev.Store = p.now().Sub(storeStart)

	if _, err := p.Store.RecordSubmission(ctx, documents.Submission{
		ClientID:    p.ClientID,
		AssistantID: reply.AssistantID,
		Source:      SubmissionSource,
		Ref:         fileID,
		ContentHash: documents.HashContent(content),
		Response:    reply.Content,
	}); err != nil {
		log.Warn("record submission failed", "error", err)
	}

	res.Outcome = OutcomeForwarded
	log.Info("document forwarded", "name", meta.Name, "thread_id", reply.ThreadID, "chars", len(content))
	return res, nil
}

func (p *Poller) upsert(ctx context.Context, fileID string, change documents.Change, meta *drive.Metadata, content string) error {
	if change == documents.ChangeNew {
		return p.Store.Insert(ctx, documents.WatchedDocument{
			FileID:       fileID,
			ClientID:     p.ClientID,
			FileName:     meta.Name,
			ContentHash:  documents.HashContent(content),
			LastModified: meta.ModifiedTime,
			Content:      content,
		})
	}
	return p.Store.Update(ctx, fileID, content, meta.ModifiedTime)
}

// RunCycle processes every watched document in order. A document's failure
// never stops the ones after it. Cancellation is checked between documents.
func (p *Poller) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{StartedAt: p.now()}
	if strings.TrimSpace(p.ClientID) == "" {
		return report, errors.New("poller: client id is not configured")
	}
	if p.Source == nil || p.Store == nil || p.Forwarder == nil {
		return report, errors.New("poller: source, store and forwarder are required")
	}

	for _, fileID := range p.FileIDs {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		res, _ := p.ProcessDocument(ctx, fileID)
		report.add(res)
	}

	report.FinishedAt = p.now()
	p.Metrics.RecordCycle()
	p.logger().Info("cycle complete",
		"documents", len(report.Documents),
		"forwarded", report.Forwarded,
		"unchanged", report.Unchanged,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, nil
}

// Run cycles until ctx is cancelled, sleeping Interval between cycles. Errors
// and panics escaping a cycle are logged and followed by the same sleep.
func (p *Poller) Run(ctx context.Context) error {
	log := p.logger()
	log.Info("poller started", "documents", len(p.FileIDs), "client_id", p.ClientID, "interval", p.interval().String())
	for {
		if err := p.safeCycle(ctx); err != nil {
			log.Error("poll cycle failed", "error", err)
		}
		if ctx.Err() != nil {
			log.Info("poller stopped")
			return nil
		}

		log.Debug("sleeping", "interval", p.interval().String())
		timer := time.NewTimer(p.interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("poller stopped")
			return nil
		case <-timer.C:
		}
	}
}

func (p *Poller) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poller: cycle panicked: %v", r)
		}
	}()
	_, err = p.RunCycle(ctx)
	return err
}

// BuildSubmission renders the memory submission for a document.
func BuildSubmission(meta *drive.Metadata, content string) string {
	link := meta.ViewLink
	if link == "" {
		link = "N/A"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Meeting Notes from: %s\n", meta.Name)
	fmt.Fprintf(&b, "Last Modified: %s\n", meta.ModifiedTime)
	fmt.Fprintf(&b, "Link: %s\n", link)
	b.WriteString("\nContent:\n")
	b.WriteString(content)
	b.WriteString("\n\nPlease remember this information for future queries about onboarding, meetings, and project context.")
	return b.String()
}

func errString(err error) string {
	if err == nil {
		return "not found"
	}
	return err.Error()
}
