package booking

import (
	"context"
	"testing"
	"time"

	"github.com/ledgerd/ledgerd/internal/task"
)

// fakeDraftService keeps drafts in memory and commits them the way the real
// repository does: a successful booking removes the draft from the open set.
type fakeDraftService struct {
	drafts       []*Draft
	results      map[int64]Result // canned whole-draft outcome, keyed by draft id
	entryResults map[int64]Result // canned per-entry outcome, keyed by entry id
	classifyErrs map[int64]error

	bookCalls     []int64
	classifyCalls []int64
	pageRequests  [][2]int // (skip, take) per OpenDrafts call
}

func (f *fakeDraftService) open() []*Draft {
	out := make([]*Draft, 0, len(f.drafts))
	for _, d := range f.drafts {
		if d.Status == DraftOpen {
			out = append(out, d)
		}
	}
	return out
}

func (f *fakeDraftService) OpenDraftsCount(ctx context.Context, userID string) (int, error) {
	return len(f.open()), nil
}

func (f *fakeDraftService) OpenDrafts(ctx context.Context, userID string, skip, take int) ([]Draft, error) {
	f.pageRequests = append(f.pageRequests, [2]int{skip, take})
	open := f.open()
	if skip >= len(open) {
		return nil, nil
	}
	open = open[skip:]
	if take < len(open) {
		open = open[:take]
	}
	out := make([]Draft, len(open))
	for i, d := range open {
		out[i] = *d
	}
	return out, nil
}

func (f *fakeDraftService) find(draftID int64) *Draft {
	for _, d := range f.drafts {
		if d.ID == draftID {
			return d
		}
	}
	return nil
}

func blocking(res Result, ignoreWarnings bool) bool {
	errs, warns := res.Split()
	return len(errs) > 0 || (len(warns) > 0 && !ignoreWarnings)
}

func (f *fakeDraftService) Book(ctx context.Context, draftID, entryID int64, userID string, ignoreWarnings bool) (Result, error) {
	d := f.find(draftID)
	if d == nil {
		return Result{}, nil
	}

	if entryID == 0 {
		f.bookCalls = append(f.bookCalls, draftID)
		res := f.results[draftID]
		if !blocking(res, ignoreWarnings) {
			res.Success = true
			d.Status = DraftCommitted
		}
		return res, nil
	}

	f.bookCalls = append(f.bookCalls, entryID)
	res := f.entryResults[entryID]
	if !blocking(res, ignoreWarnings) {
		res.Success = true
		remaining := 0
		for i := range d.Entries {
			if d.Entries[i].ID == entryID {
				d.Entries[i].Status = EntryBooked
			}
			if d.Entries[i].Status != EntryBooked {
				remaining++
			}
		}
		if remaining == 0 {
			d.Status = DraftCommitted
		}
	}
	return res, nil
}

func (f *fakeDraftService) Classify(ctx context.Context, draftID, entryID int64, userID string) error {
	f.classifyCalls = append(f.classifyCalls, draftID)
	return f.classifyErrs[draftID]
}

func (f *fakeDraftService) GetDraft(ctx context.Context, draftID int64, userID string) (*Draft, error) {
	d := f.find(draftID)
	if d == nil {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

type progressLog struct {
	snapshots []task.Progress
}

func (p *progressLog) report(prog task.Progress) { p.snapshots = append(p.snapshots, prog) }

func (p *progressLog) last(t *testing.T) task.Progress {
	t.Helper()
	if len(p.snapshots) == 0 {
		t.Fatal("executor emitted no progress")
	}
	return p.snapshots[len(p.snapshots)-1]
}

func openDraft(id int64, entries ...Entry) *Draft {
	return &Draft{ID: id, UserID: "u1", Status: DraftOpen, Entries: entries}
}

func runMassBooking(t *testing.T, svc *fakeDraftService, opts MassBookingOptions) (*progressLog, error) {
	t.Helper()
	log := &progressLog{}
	exec := NewMassBookingExecutor(svc)
	err := exec.Execute(context.Background(), task.RunContext{
		UserID:  "u1",
		Payload: opts,
		Report:  log.report,
	})
	return log, err
}

func TestMassBooking_AllCleanDrafts(t *testing.T) {
	svc := &fakeDraftService{
		drafts: []*Draft{openDraft(1), openDraft(2), openDraft(3)},
	}

	log, err := runMassBooking(t, svc, MassBookingOptions{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	final := log.last(t)
	if final.Processed != 3 || final.Total != 3 {
		t.Errorf("progress = %d/%d, want 3/3", final.Processed, final.Total)
	}
	if final.Message != "completed" {
		t.Errorf("terminal message = %q, want completed", final.Message)
	}
	for _, d := range svc.drafts {
		if d.Status != DraftCommitted {
			t.Errorf("draft %d still %s", d.ID, d.Status)
		}
	}
}

func TestMassBooking_AbortOnFirstIssue(t *testing.T) {
	// Drafts 1 and 2 book cleanly, draft 3 errors, draft 4 is never touched.
	svc := &fakeDraftService{
		drafts:  []*Draft{openDraft(1), openDraft(2), openDraft(3), openDraft(4)},
		results: map[int64]Result{3: {Messages: []Message{{Severity: SeverityError, Text: "no account"}}}},
	}

	log, err := runMassBooking(t, svc, MassBookingOptions{AbortOnFirstIssue: true})
	if err != nil {
		t.Fatalf("aborted run must not surface an error, got %v", err)
	}

	final := log.last(t)
	if final.Processed != 2 {
		t.Errorf("processed = %d, want 2", final.Processed)
	}
	if final.Errors != 1 {
		t.Errorf("errors = %d, want 1", final.Errors)
	}
	if final.Message != "aborted: 2 booked, 1 failed" {
		t.Errorf("terminal message = %q", final.Message)
	}
	for _, id := range svc.bookCalls {
		if id == 4 {
			t.Error("draft after the aborting one was still booked")
		}
	}
}

func TestMassBooking_WarningsBlockUnlessIgnored(t *testing.T) {
	warn := Result{HasWarnings: true, Messages: []Message{{Severity: SeverityWarning, Text: "no payee"}}}

	svc := &fakeDraftService{
		drafts:  []*Draft{openDraft(1), openDraft(2)},
		results: map[int64]Result{1: warn},
	}
	log, err := runMassBooking(t, svc, MassBookingOptions{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	final := log.last(t)
	if final.Processed != 1 || final.Warnings != 1 {
		t.Errorf("processed = %d warnings = %d, want 1 and 1", final.Processed, final.Warnings)
	}
	if svc.find(1).Status != DraftOpen {
		t.Error("warned draft was committed despite warnings not being ignored")
	}

	svc = &fakeDraftService{
		drafts:  []*Draft{openDraft(1), openDraft(2)},
		results: map[int64]Result{1: warn},
	}
	log, err = runMassBooking(t, svc, MassBookingOptions{IgnoreWarnings: true})
	if err != nil {
		t.Fatalf("execute with ignoreWarnings: %v", err)
	}
	final = log.last(t)
	if final.Processed != 2 {
		t.Errorf("processed = %d, want 2 with warnings ignored", final.Processed)
	}
	if final.Message != "completed" {
		t.Errorf("terminal message = %q, want completed", final.Message)
	}
}

func TestMassBooking_WarningAloneTriggersAbort(t *testing.T) {
	// With warnings not ignored, a warning-only draft is an issue and the
	// first-issue policy halts the run right there.
	svc := &fakeDraftService{
		drafts: []*Draft{openDraft(1), openDraft(2), openDraft(3)},
		results: map[int64]Result{
			2: {HasWarnings: true, Messages: []Message{{Severity: SeverityWarning, Text: "no payee"}}},
		},
	}

	log, err := runMassBooking(t, svc, MassBookingOptions{AbortOnFirstIssue: true})
	if err != nil {
		t.Fatalf("aborted run must not surface an error, got %v", err)
	}

	final := log.last(t)
	if final.Message != "aborted: 1 booked, 1 failed" {
		t.Errorf("terminal message = %q", final.Message)
	}
	if final.Processed != 1 || final.Warnings != 1 || final.Errors != 0 {
		t.Errorf("progress = %+v, want one booked and one warning", final)
	}
	for _, id := range svc.bookCalls {
		if id == 3 {
			t.Error("draft after the aborting one was still booked")
		}
	}

	// The same warning is no issue once warnings are ignored.
	svc = &fakeDraftService{
		drafts: []*Draft{openDraft(1), openDraft(2), openDraft(3)},
		results: map[int64]Result{
			2: {HasWarnings: true, Messages: []Message{{Severity: SeverityWarning, Text: "no payee"}}},
		},
	}
	log, err = runMassBooking(t, svc, MassBookingOptions{AbortOnFirstIssue: true, IgnoreWarnings: true})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if final := log.last(t); final.Processed != 3 || final.Message != "completed" {
		t.Errorf("progress = %+v, want full run with warnings ignored", final)
	}
}

func TestMassBooking_FailedDraftsAdvanceCursor(t *testing.T) {
	// Seven drafts, draft 2 keeps failing. The failed draft stays in the open
	// set, so subsequent pages must skip past it instead of retrying forever.
	drafts := make([]*Draft, 0, 7)
	for id := int64(1); id <= 7; id++ {
		drafts = append(drafts, openDraft(id))
	}
	svc := &fakeDraftService{
		drafts:  drafts,
		results: map[int64]Result{2: {Messages: []Message{{Severity: SeverityError, Text: "broken"}}}},
	}

	log, err := runMassBooking(t, svc, MassBookingOptions{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	final := log.last(t)
	if final.Processed != 6 {
		t.Errorf("processed = %d, want 6", final.Processed)
	}

	seen := map[int64]int{}
	for _, id := range svc.bookCalls {
		seen[id]++
	}
	for id := int64(1); id <= 7; id++ {
		if seen[id] != 1 {
			t.Errorf("draft %d booked %d times, want exactly once", id, seen[id])
		}
	}
}

func TestMassBooking_EntriesIndividually(t *testing.T) {
	jan := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC)

	svc := &fakeDraftService{
		drafts: []*Draft{openDraft(1,
			Entry{ID: 11, DraftID: 1, Status: EntryAccounted, BookingDate: feb},
			Entry{ID: 12, DraftID: 1, Status: EntryAccounted, BookingDate: jan},
			Entry{ID: 13, DraftID: 1, Status: EntryPending, BookingDate: jan},
		)},
	}

	log, err := runMassBooking(t, svc, MassBookingOptions{BookEntriesIndividually: true})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	// Only accounted entries, ordered by booking date: 12 before 11, 13 skipped.
	want := []int64{12, 11}
	if len(svc.bookCalls) != len(want) {
		t.Fatalf("book calls = %v, want %v", svc.bookCalls, want)
	}
	for i, id := range want {
		if svc.bookCalls[i] != id {
			t.Fatalf("book calls = %v, want %v", svc.bookCalls, want)
		}
	}

	final := log.last(t)
	if final.Processed != 1 || final.Message != "completed" {
		t.Errorf("progress = %d %q, want 1 completed", final.Processed, final.Message)
	}
}

func TestMassBooking_EntryFailureMarksDraftFailed(t *testing.T) {
	jan := time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC)

	svc := &fakeDraftService{
		drafts: []*Draft{openDraft(1,
			Entry{ID: 11, DraftID: 1, Status: EntryAccounted, BookingDate: jan},
			Entry{ID: 12, DraftID: 1, Status: EntryAccounted, BookingDate: jan},
		)},
		entryResults: map[int64]Result{11: {Messages: []Message{{Severity: SeverityError, Text: "no account"}}}},
	}

	log, err := runMassBooking(t, svc, MassBookingOptions{BookEntriesIndividually: true})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	// Entry 12 still gets its attempt; the draft stays open and counts failed.
	if len(svc.bookCalls) != 2 {
		t.Fatalf("book calls = %v, want both entries attempted", svc.bookCalls)
	}
	final := log.last(t)
	if final.Processed != 0 || final.Errors != 1 {
		t.Errorf("processed = %d errors = %d, want 0 and 1", final.Processed, final.Errors)
	}
	if svc.find(1).Status != DraftOpen {
		t.Error("partially failed draft was committed")
	}
}

func TestMassBooking_Canceled(t *testing.T) {
	svc := &fakeDraftService{drafts: []*Draft{openDraft(1), openDraft(2)}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	log := &progressLog{}
	exec := NewMassBookingExecutor(svc)
	err := exec.Execute(ctx, task.RunContext{UserID: "u1", Report: log.report})
	if err == nil {
		t.Fatal("expected context error")
	}
	if got := log.last(t).Message; got != "canceled" {
		t.Errorf("terminal message = %q, want canceled", got)
	}
	if len(svc.bookCalls) != 0 {
		t.Errorf("booked %v after cancellation", svc.bookCalls)
	}
}
