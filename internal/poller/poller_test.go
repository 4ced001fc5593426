package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Napageneral/onboard/internal/compute"
	"github.com/Napageneral/onboard/internal/documents"
	"github.com/Napageneral/onboard/internal/drive"
	"github.com/Napageneral/onboard/internal/logutil"
	"github.com/Napageneral/onboard/internal/relay"
	"github.com/Napageneral/onboard/internal/testutil"
)

type fakeSource struct {
	mu      sync.Mutex
	meta    map[string]*drive.Metadata
	content map[string]string
	metaErr map[string]error
	calls   int
	onMeta  func(call int)
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		meta:    map[string]*drive.Metadata{},
		content: map[string]string{},
		metaErr: map[string]error{},
	}
}

func (s *fakeSource) put(id, name, content string) {
	s.meta[id] = &drive.Metadata{ID: id, Name: name, ModifiedTime: "2025-03-01T10:00:00.000Z"}
	s.content[id] = content
}

func (s *fakeSource) Metadata(ctx context.Context, id string) (*drive.Metadata, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	hook := s.onMeta
	s.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	if err := s.metaErr[id]; err != nil {
		return nil, err
	}
	return s.meta[id], nil
}

func (s *fakeSource) Content(ctx context.Context, id string) (string, error) {
	c, ok := s.content[id]
	if !ok {
		return "", drive.ErrNotFound
	}
	return c, nil
}

type fakeStore struct {
	docs        map[string]*documents.WatchedDocument
	inserts     int
	updates     int
	submissions []documents.Submission
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]*documents.WatchedDocument{}}
}

func (s *fakeStore) Lookup(ctx context.Context, id string) (*documents.WatchedDocument, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (s *fakeStore) Insert(ctx context.Context, doc documents.WatchedDocument) error {
	s.inserts++
	s.docs[doc.FileID] = &doc
	return nil
}

func (s *fakeStore) Update(ctx context.Context, id, content, modified string) error {
	s.updates++
	doc, ok := s.docs[id]
	if !ok {
		return documents.ErrNotFound
	}
	doc.Content = content
	doc.ContentHash = documents.HashContent(content)
	doc.LastModified = modified
	return nil
}

func (s *fakeStore) RecordSubmission(ctx context.Context, sub documents.Submission) (string, error) {
	s.submissions = append(s.submissions, sub)
	return "sub-1", nil
}

type fakeForwarder struct {
	texts []string
	fail  map[string]error // keyed by substring of the submitted text
}

func (f *fakeForwarder) Submit(ctx context.Context, clientID, assistantID, text string) (relay.Reply, error) {
	f.texts = append(f.texts, text)
	for needle, err := range f.fail {
		if strings.Contains(text, needle) {
			return relay.Reply{}, err
		}
	}
	return relay.Reply{AssistantID: "asst-1", ThreadID: "thread-1", Content: "Noted."}, nil
}

func newPoller(src Source, store Store, fwd Forwarder, ids ...string) *Poller {
	return &Poller{
		Source:    src,
		Store:     store,
		Forwarder: fwd,
		FileIDs:   ids,
		ClientID:  "ALEX",
		Interval:  time.Millisecond,
		Logger:    logutil.Discard(),
		Metrics:   compute.NewPollMetrics(),
	}
}

func TestProcessDocumentUnchangedSkipsForwardAndStore(t *testing.T) {
	src := newFakeSource()
	src.put("doc1", "Standup", "same notes")
	store := newFakeStore()
	store.docs["doc1"] = &documents.WatchedDocument{FileID: "doc1", ContentHash: documents.HashContent("same notes")}
	fwd := &fakeForwarder{}

	res, err := newPoller(src, store, fwd).ProcessDocument(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if res.Outcome != OutcomeUnchanged {
		t.Fatalf("outcome = %s, want unchanged", res.Outcome)
	}
	if len(fwd.texts) != 0 || store.updates != 0 || store.inserts != 0 {
		t.Fatalf("expected no forward/update, got forwards=%d updates=%d inserts=%d", len(fwd.texts), store.updates, store.inserts)
	}
}

func TestProcessDocumentChangedForwardsOnceAndUpdatesOnce(t *testing.T) {
	src := newFakeSource()
	src.put("doc1", "Standup", "new notes")
	store := newFakeStore()
	store.docs["doc1"] = &documents.WatchedDocument{FileID: "doc1", ContentHash: documents.HashContent("old notes"), Content: "old notes"}
	fwd := &fakeForwarder{}

	res, err := newPoller(src, store, fwd).ProcessDocument(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if res.Outcome != OutcomeForwarded || res.Change != documents.ChangeChanged {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(fwd.texts) != 1 || store.updates != 1 || store.inserts != 0 {
		t.Fatalf("forwards=%d updates=%d inserts=%d", len(fwd.texts), store.updates, store.inserts)
	}
	if got := store.docs["doc1"]; got.ContentHash != documents.HashContent("new notes") || got.LastModified == "" {
		t.Fatalf("record not updated: %+v", got)
	}
	if len(store.submissions) != 1 || store.submissions[0].Source != SubmissionSource || store.submissions[0].Ref != "doc1" {
		t.Fatalf("unexpected submissions %+v", store.submissions)
	}
}

func TestProcessDocumentNewInserts(t *testing.T) {
	src := newFakeSource()
	src.put("doc2", "Kickoff", "")
	store := newFakeStore()
	fwd := &fakeForwarder{}

	res, err := newPoller(src, store, fwd).ProcessDocument(context.Background(), "doc2")
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if res.Change != documents.ChangeNew || store.inserts != 1 {
		t.Fatalf("expected one insert for new doc, got %+v inserts=%d", res, store.inserts)
	}
	doc := store.docs["doc2"]
	if doc.ClientID != "ALEX" || doc.ContentHash != documents.HashContent("") {
		t.Fatalf("unexpected inserted record %+v", doc)
	}
}

func TestProcessDocumentSoftFailures(t *testing.T) {
	src := newFakeSource()
	src.metaErr["broken"] = errors.New("boom")
	src.meta["nocontent"] = &drive.Metadata{ID: "nocontent", Name: "Orphan"}
	store := newFakeStore()
	fwd := &fakeForwarder{}
	p := newPoller(src, store, fwd)

	for _, id := range []string{"broken", "missing", "nocontent"} {
		res, err := p.ProcessDocument(context.Background(), id)
		if err != nil {
			t.Fatalf("%s: soft failure returned error %v", id, err)
		}
		if res.Outcome != OutcomeSkipped {
			t.Fatalf("%s: outcome = %s, want skipped", id, res.Outcome)
		}
	}
	if len(fwd.texts) != 0 || store.inserts != 0 {
		t.Fatal("soft failures must not forward or store")
	}
	if p.Metrics.DocumentsSkipped != 3 {
		t.Fatalf("skipped metric = %d", p.Metrics.DocumentsSkipped)
	}
}

func TestRunCycleContinuesAfterForwardFailure(t *testing.T) {
	src := newFakeSource()
	src.put("A", "Doc A", "alpha")
	src.put("B", "Doc B", "beta")
	store := newFakeStore()
	fwd := &fakeForwarder{fail: map[string]error{
		"Doc A": &relay.Error{Kind: relay.KindRemote, Op: "add message", Err: errors.New("502")},
	}}

	report, err := newPoller(src, store, fwd, "A", "B").RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if report.Failed != 1 || report.Forwarded != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Documents[0].Reason != "remote_error" {
		t.Fatalf("reason = %q", report.Documents[0].Reason)
	}
	if _, ok := store.docs["A"]; ok {
		t.Fatal("failed document must not be stored")
	}
	if _, ok := store.docs["B"]; !ok {
		t.Fatal("document B was not processed")
	}
}

func TestRunCycleRequiresClient(t *testing.T) {
	p := newPoller(newFakeSource(), newFakeStore(), &fakeForwarder{}, "A")
	p.ClientID = ""
	if _, err := p.RunCycle(context.Background()); err == nil {
		t.Fatal("expected error without client id")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := newFakeSource()
	src.put("A", "Doc A", "alpha")
	src.onMeta = func(call int) {
		if call == 3 {
			cancel()
		}
	}
	store := newFakeStore()
	fwd := &fakeForwarder{}
	p := newPoller(src, store, fwd, "A")

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
	if len(fwd.texts) != 1 {
		t.Fatalf("expected a single forward across cycles, got %d", len(fwd.texts))
	}
	if p.Metrics.Cycles < 3 {
		t.Fatalf("expected at least 3 cycles, got %d", p.Metrics.Cycles)
	}
}

func TestRunRecoversFromPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := newFakeSource()
	src.put("A", "Doc A", "alpha")
	src.onMeta = func(call int) {
		switch call {
		case 1:
			panic("source exploded")
		case 2:
			cancel()
		}
	}
	fwd := &fakeForwarder{}
	p := newPoller(src, newFakeStore(), fwd, "A")

	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected the loop to continue after panic, metadata calls = %d", src.calls)
	}
}

type panickyForwarder struct {
	fakeForwarder
	panicOn string
}

func (f *panickyForwarder) Submit(ctx context.Context, clientID, assistantID, text string) (relay.Reply, error) {
	if strings.Contains(text, f.panicOn) {
		panic("backend client blew up")
	}
	return f.fakeForwarder.Submit(ctx, clientID, assistantID, text)
}

func TestRunCycleContinuesAfterDocumentPanic(t *testing.T) {
	src := newFakeSource()
	src.put("A", "Doc A", "alpha")
	src.put("B", "Doc B", "beta")
	store := newFakeStore()
	fwd := &panickyForwarder{panicOn: "Doc A"}
	p := newPoller(src, store, fwd, "A", "B")

	report, err := p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if len(report.Documents) != 2 || report.Failed != 1 || report.Forwarded != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if got := report.Documents[0]; got.Outcome != OutcomeFailed || got.Reason != "panic" {
		t.Fatalf("document A = %+v", got)
	}
	if _, ok := store.docs["A"]; ok {
		t.Fatal("panicked document must not be stored")
	}
	if _, ok := store.docs["B"]; !ok {
		t.Fatal("document B was not forwarded after A panicked")
	}
	if src.calls != 2 {
		t.Fatalf("metadata calls = %d, want 2", src.calls)
	}
	snap := p.Metrics.Snapshot()["documents"].(map[string]any)
	if snap["failed"] != 1 {
		t.Fatalf("metrics failed = %v", snap["failed"])
	}
}

func TestBuildSubmission(t *testing.T) {
	meta := &drive.Metadata{Name: "Standup", ModifiedTime: "2025-03-01T10:00:00.000Z"}
	got := BuildSubmission(meta, "line one\nline two")
	want := "Meeting Notes from: Standup\n" +
		"Last Modified: 2025-03-01T10:00:00.000Z\n" +
		"Link: N/A\n" +
		"\n" +
		"Content:\n" +
		"line one\nline two\n" +
		"\n" +
		"Please remember this information for future queries about onboarding, meetings, and project context."
	if got != want {
		t.Fatalf("BuildSubmission mismatch:\n%s\n---\n%s", got, want)
	}

	meta.ViewLink = "https://docs.google.com/document/d/x/edit"
	if !strings.Contains(BuildSubmission(meta, ""), "Link: https://docs.google.com/document/d/x/edit\n") {
		t.Fatal("expected view link in submission")
	}
}

func TestPollerWithSQLiteStore(t *testing.T) {
	database := testutil.OpenTestDB(t)
	store := documents.NewStore(database.DB)
	ctx := context.Background()
	if _, err := store.Register(ctx, "doc1", "ALEX", "Standup", ""); err != nil {
		t.Fatalf("Register: %v", err)
	}

	src := newFakeSource()
	src.put("doc1", "Standup", "first draft")
	fwd := &fakeForwarder{}
	p := newPoller(src, store, fwd, "doc1")

	if _, err := p.RunCycle(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if _, err := p.RunCycle(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if len(fwd.texts) != 1 {
		t.Fatalf("expected registered doc forwarded once, got %d", len(fwd.texts))
	}

	doc, err := store.Lookup(ctx, "doc1")
	if err != nil || doc == nil {
		t.Fatalf("Lookup: %v %v", doc, err)
	}
	if doc.ContentHash != documents.HashContent("first draft") || doc.Content != "first draft" {
		t.Fatalf("unexpected stored doc %+v", doc)
	}
	subs, err := store.Submissions(ctx, SubmissionSource, "doc1")
	if err != nil || len(subs) != 1 {
		t.Fatalf("submissions = %v, err = %v", subs, err)
	}
}
