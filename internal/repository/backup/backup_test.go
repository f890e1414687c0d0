package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ledgerd/ledgerd/internal/platform/sqlite"
)

const sampleBackup = `{
	"drafts": [
		{
			"status": "open",
			"entries": [
				{"status": "accounted", "bookingDate": "2026-01-10", "account": "checking", "payee": "Rewe", "amount": -42.5},
				{"status": "accounted", "bookingDate": "2026-01-12", "account": "checking", "payee": "Aral", "amount": -60.0}
			]
		},
		{"status": "open", "entries": []}
	],
	"securities": [
		{"symbol": "ACME", "name": "Acme Corp", "active": true}
	]
}`

func newTestService(t *testing.T) (*Service, *sqlite.DB, string) {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	dir := t.TempDir()
	return NewService(db.DB, dir), db, dir
}

func TestApply(t *testing.T) {
	svc, db, dir := newTestService(t)
	if err := os.WriteFile(filepath.Join(dir, "2026-08.json"), []byte(sampleBackup), 0o600); err != nil {
		t.Fatalf("write backup file: %v", err)
	}

	type snapshot struct{ step, stepTotal, sub, subTotal int }
	var reports []snapshot
	ok, err := svc.Apply(context.Background(), "u1", "2026-08.json", func(step, stepTotal, sub, subTotal int) {
		reports = append(reports, snapshot{step, stepTotal, sub, subTotal})
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !ok {
		t.Fatal("apply reported not applied")
	}

	var drafts, entries, securities int
	_ = db.QueryRow(`SELECT COUNT(*) FROM drafts WHERE user_id = 'u1'`).Scan(&drafts)
	_ = db.QueryRow(`SELECT COUNT(*) FROM draft_entries`).Scan(&entries)
	_ = db.QueryRow(`SELECT COUNT(*) FROM securities WHERE user_id = 'u1'`).Scan(&securities)
	if drafts != 2 || entries != 2 || securities != 1 {
		t.Errorf("restored %d drafts, %d entries, %d securities", drafts, entries, securities)
	}

	// Two outer steps; the inner counter runs per section row.
	if len(reports) != 3 {
		t.Fatalf("progress reports = %+v", reports)
	}
	last := reports[len(reports)-1]
	if last.step != 2 || last.stepTotal != 2 || last.sub != 1 || last.subTotal != 1 {
		t.Errorf("final report = %+v", last)
	}
}

func TestApply_RejectsPathTraversal(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.Apply(context.Background(), "u1", "../etc/passwd", nil); err == nil {
		t.Error("backup id with path separators accepted")
	}
	if _, err := svc.Apply(context.Background(), "u1", `..\x`, nil); err == nil {
		t.Error("backup id with backslash accepted")
	}
}

func TestApply_MissingOrBrokenFile(t *testing.T) {
	svc, db, dir := newTestService(t)

	if _, err := svc.Apply(context.Background(), "u1", "nope.json", nil); err == nil {
		t.Error("missing backup file accepted")
	}

	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Apply(context.Background(), "u1", "broken.json", nil); err == nil {
		t.Error("unparseable backup accepted")
	}

	// Nothing was half-restored.
	var drafts int
	_ = db.QueryRow(`SELECT COUNT(*) FROM drafts`).Scan(&drafts)
	if drafts != 0 {
		t.Errorf("drafts = %d after failed restores, want 0", drafts)
	}
}
