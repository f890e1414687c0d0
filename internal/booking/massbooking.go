package booking

import (
	"context"
	"fmt"
	"sort"

	"github.com/ledgerd/ledgerd/internal/task"
)

const pageSize = 5

// MassBookingOptions is the payload accepted by the mass-booking job.
type MassBookingOptions struct {
	IgnoreWarnings          bool `json:"ignoreWarnings"`
	AbortOnFirstIssue       bool `json:"abortOnFirstIssue"`
	BookEntriesIndividually bool `json:"bookEntriesIndividually"`
}

// MassBookingExecutor books a user's open drafts in paginated discovery order,
// either whole drafts at a time or entry by entry.
type MassBookingExecutor struct {
	drafts DraftService
}

func NewMassBookingExecutor(drafts DraftService) *MassBookingExecutor {
	return &MassBookingExecutor{drafts: drafts}
}

func (e *MassBookingExecutor) Type() task.Type { return task.TypeMassBooking }

type massBookingRun struct {
	opts      MassBookingOptions
	run       task.RunContext
	total     int
	processed int
	failed    int
	skip      int // visited drafts that remained in the open set
	warnings  int
	errors    int
}

func (s *massBookingRun) report(msg, msg2 string, entryIdx, entryTotal int) {
	s.run.Report(task.Progress{
		Processed:  s.processed,
		Total:      s.total,
		Message:    msg,
		Processed2: entryIdx,
		Total2:     entryTotal,
		Message2:   msg2,
		Warnings:   s.warnings,
		Errors:     s.errors,
	})
}

func (e *MassBookingExecutor) Execute(ctx context.Context, run task.RunContext) error {
	opts, _ := run.Payload.(MassBookingOptions)

	total, err := e.drafts.OpenDraftsCount(ctx, run.UserID)
	if err != nil {
		run.Report(task.Progress{Message: fmt.Sprintf("error: %v", err)})
		return fmt.Errorf("count open drafts: %w", err)
	}

	s := &massBookingRun{opts: opts, run: run, total: total}
	s.report("starting mass booking", "", 0, 0)

	// Booked drafts leave the open set, so the cursor only has to skip past
	// visited drafts that stayed open.
	for {
		if err := ctx.Err(); err != nil {
			s.report("canceled", "", 0, 0)
			return err
		}

		page, err := e.drafts.OpenDrafts(ctx, run.UserID, s.skip, pageSize)
		if err != nil {
			s.report(fmt.Sprintf("error: %v", err), "", 0, 0)
			return fmt.Errorf("load open drafts: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, d := range page {
			if err := ctx.Err(); err != nil {
				s.report("canceled", "", 0, 0)
				return err
			}

			var aborted bool
			if opts.BookEntriesIndividually {
				aborted, err = e.bookEntries(ctx, s, d)
			} else {
				aborted, err = e.bookDraft(ctx, s, d)
			}
			if err != nil {
				s.report("canceled", "", 0, 0)
				return err
			}
			if aborted {
				s.report(fmt.Sprintf("aborted: %d booked, %d failed", s.processed, s.failed), "", 0, 0)
				return nil
			}
		}
	}

	s.report("completed", "", 0, 0)
	return nil
}

// bookDraft books a whole draft with a single call. It returns aborted=true
// when the first-issue policy stops the run.
func (e *MassBookingExecutor) bookDraft(ctx context.Context, s *massBookingRun, d Draft) (bool, error) {
	res, err := e.drafts.Book(ctx, d.ID, 0, d.UserID, s.opts.IgnoreWarnings)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		res = Result{Messages: []Message{{Severity: SeverityError, Text: err.Error()}}}
	}

	errs, warns := res.Split()
	s.errors += len(errs)
	s.warnings += len(warns)

	draftFailed := len(errs) > 0 || (len(warns) > 0 && !s.opts.IgnoreWarnings)
	if draftFailed {
		s.failed++
		s.skip++
	} else {
		s.processed++
	}
	s.report(fmt.Sprintf("draft %d: %d booked, %d failed", d.ID, s.processed, s.failed), "", 0, 0)

	if s.opts.AbortOnFirstIssue && (len(errs) > 0 || (len(warns) > 0 && !s.opts.IgnoreWarnings)) {
		return true, nil
	}
	return false, nil
}

// bookEntries books the accounted entries of one draft individually, ordered
// by booking date then entry id. A failed entry does not stop the draft; the
// draft counts as failed when any of its entries did and it is still open
// afterwards.
func (e *MassBookingExecutor) bookEntries(ctx context.Context, s *massBookingRun, d Draft) (bool, error) {
	entries := make([]Entry, 0, len(d.Entries))
	for _, en := range d.Entries {
		if en.Status == EntryAccounted {
			entries = append(entries, en)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].BookingDate.Equal(entries[j].BookingDate) {
			return entries[i].BookingDate.Before(entries[j].BookingDate)
		}
		return entries[i].ID < entries[j].ID
	})

	anyFailed := false
	for i, en := range entries {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		res, err := e.drafts.Book(ctx, d.ID, en.ID, d.UserID, s.opts.IgnoreWarnings)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			res = Result{Messages: []Message{{Severity: SeverityError, Text: err.Error()}}}
		}

		errs, warns := res.Split()
		s.errors += len(errs)
		s.warnings += len(warns)
		if len(errs) > 0 || (len(warns) > 0 && !s.opts.IgnoreWarnings) {
			anyFailed = true
			if s.opts.AbortOnFirstIssue {
				// Settle the draft before stopping so counters stay consistent.
				s.failed++
				return true, nil
			}
		}
		s.report(fmt.Sprintf("draft %d", d.ID), fmt.Sprintf("entry %d", en.ID), i+1, len(entries))
	}

	// The per-entry bookings may have committed the draft as a side effect;
	// only the current state decides how it is counted.
	latest, err := e.drafts.GetDraft(ctx, d.ID, d.UserID)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		anyFailed = true
		latest = &d
	}
	switch {
	case latest == nil || latest.Status == DraftCommitted:
		s.processed++
	case anyFailed:
		s.failed++
		s.skip++
	default:
		// All bookable entries went through but something else keeps the
		// draft open. Count it done, but never revisit it.
		s.processed++
		s.skip++
	}
	s.report(fmt.Sprintf("draft %d: %d booked, %d failed", d.ID, s.processed, s.failed), "", len(entries), len(entries))
	return false, nil
}
