package maintenance

import (
	"context"
	"errors"
	"testing"

	"github.com/ledgerd/ledgerd/internal/task"
)

type fakeBackups struct {
	ok  bool
	err error
}

func (f *fakeBackups) Apply(ctx context.Context, userID, backupID string, progress SubProgress) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	// Two outer steps with two and three inner rows.
	progress(1, 2, 1, 2)
	progress(1, 2, 2, 2)
	progress(2, 2, 1, 3)
	progress(2, 2, 3, 3)
	return f.ok, nil
}

type fakeAggregates struct {
	err error
}

func (f *fakeAggregates) Rebuild(ctx context.Context, userID string, progress func(done, total int, label string)) error {
	if f.err != nil {
		return f.err
	}
	progress(1, 3, "2026-01")
	progress(2, 3, "2026-02")
	progress(3, 3, "2026-03")
	return nil
}

type fakeReportCache struct {
	stale        []string
	recomputeErr map[string]error
	recomputed   []string
}

func (f *fakeReportCache) NextStaleKey(ctx context.Context, userID string) (string, error) {
	if len(f.stale) == 0 {
		return "", nil
	}
	return f.stale[0], nil
}

func (f *fakeReportCache) Recompute(ctx context.Context, userID, key string) error {
	if err := f.recomputeErr[key]; err != nil {
		return err
	}
	f.recomputed = append(f.recomputed, key)
	f.stale = f.stale[1:]
	return nil
}

type capture struct {
	snapshots []task.Progress
}

func (c *capture) report(p task.Progress) { c.snapshots = append(c.snapshots, p) }

func (c *capture) last(t *testing.T) task.Progress {
	t.Helper()
	if len(c.snapshots) == 0 {
		t.Fatal("executor emitted no progress")
	}
	return c.snapshots[len(c.snapshots)-1]
}

func TestBackupRestore_ForwardsSubProgress(t *testing.T) {
	log := &capture{}
	exec := NewBackupRestoreExecutor(&fakeBackups{ok: true})

	err := exec.Execute(context.Background(), task.RunContext{
		UserID:  "u1",
		Payload: BackupRestoreOptions{BackupID: "2026-08"},
		Report:  log.report,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	final := log.last(t)
	if final.Message != "completed" {
		t.Errorf("terminal message = %q", final.Message)
	}
	if final.Processed != 2 || final.Total != 2 {
		t.Errorf("outer progress = %d/%d, want 2/2", final.Processed, final.Total)
	}
	if final.Processed2 != 3 || final.Total2 != 3 {
		t.Errorf("inner progress = %d/%d, want 3/3", final.Processed2, final.Total2)
	}

	// The intermediate snapshots carry both levels verbatim.
	var sawInner bool
	for _, p := range log.snapshots {
		if p.Processed == 2 && p.Processed2 == 1 && p.Total2 == 3 {
			sawInner = true
		}
	}
	if !sawInner {
		t.Error("two-level sub-progress was not forwarded")
	}
}

func TestBackupRestore_RequiresBackupID(t *testing.T) {
	log := &capture{}
	exec := NewBackupRestoreExecutor(&fakeBackups{ok: true})

	err := exec.Execute(context.Background(), task.RunContext{UserID: "u1", Report: log.report})
	if err == nil {
		t.Fatal("expected error without a backup id")
	}
	if log.last(t).Message == "" {
		t.Error("terminal progress has no message")
	}
}

func TestBackupRestore_RejectedApply(t *testing.T) {
	log := &capture{}
	exec := NewBackupRestoreExecutor(&fakeBackups{ok: false})

	err := exec.Execute(context.Background(), task.RunContext{
		UserID:  "u1",
		Payload: BackupRestoreOptions{BackupID: "2026-08"},
		Report:  log.report,
	})
	if err == nil {
		t.Fatal("expected error for rejected restore")
	}
	if got := log.last(t).Message; got != "restore rejected" {
		t.Errorf("terminal message = %q", got)
	}
}

func TestAggregatesRebuild(t *testing.T) {
	log := &capture{}
	exec := NewAggregatesRebuildExecutor(&fakeAggregates{})

	if err := exec.Execute(context.Background(), task.RunContext{UserID: "u1", Report: log.report}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	final := log.last(t)
	if final.Processed != 3 || final.Total != 3 || final.Message != "completed" {
		t.Errorf("final progress = %+v", final)
	}
}

func TestAggregatesRebuild_Error(t *testing.T) {
	log := &capture{}
	exec := NewAggregatesRebuildExecutor(&fakeAggregates{err: errors.New("bad month row")})

	if err := exec.Execute(context.Background(), task.RunContext{UserID: "u1", Report: log.report}); err == nil {
		t.Fatal("expected error")
	}
	if final := log.last(t); final.Errors != 1 {
		t.Errorf("final progress = %+v, want one error", final)
	}
}

func TestReportCacheRefresh_DrainsStaleKeys(t *testing.T) {
	cache := &fakeReportCache{stale: []string{"summary:2026-01", "summary:2026-02"}}
	log := &capture{}
	exec := NewReportCacheRefreshExecutor(cache)

	if err := exec.Execute(context.Background(), task.RunContext{UserID: "u1", Report: log.report}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if len(cache.recomputed) != 2 {
		t.Fatalf("recomputed = %v", cache.recomputed)
	}
	final := log.last(t)
	if final.Processed != 2 || final.Message != "completed" {
		t.Errorf("final progress = %+v", final)
	}
}

func TestReportCacheRefresh_RecomputeFailureIsFatal(t *testing.T) {
	// The same stale key would come back forever; the run must stop instead.
	cache := &fakeReportCache{
		stale:        []string{"summary:2026-01"},
		recomputeErr: map[string]error{"summary:2026-01": errors.New("query failed")},
	}
	log := &capture{}
	exec := NewReportCacheRefreshExecutor(cache)

	if err := exec.Execute(context.Background(), task.RunContext{UserID: "u1", Report: log.report}); err == nil {
		t.Fatal("expected error")
	}
	if final := log.last(t); final.Errors != 1 || final.Processed != 0 {
		t.Errorf("final progress = %+v", final)
	}
}
