package sweeper

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"colloquy/pkg/config"
	"colloquy/pkg/persist"
	"colloquy/pkg/store"
)

func openStore(t *testing.T) {
	t.Helper()
	if err := store.Open(filepath.Join(t.TempDir(), "db")); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
}

func TestRunOnceWritesReport(t *testing.T) {
	openStore(t)
	// a version-less record the sweep must pick up
	raw := `{"id":"i1","project":"p1","type":"conversation","model":"m","usage":{},"objectives":{}}`
	if err := store.SaveInteractionMeta("i1", []byte(raw)); err != nil {
		t.Fatalf("plant meta: %v", err)
	}

	dir := t.TempDir()
	sum := RunOnce(persist.NewEngine(), false, dir)
	if sum.Failed != 0 || sum.Migrated != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("report files = %d, %v", len(entries), err)
	}
	b, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report struct {
		DryRun  bool                     `json:"dry_run"`
		Summary persist.MigrationSummary `json:"summary"`
	}
	if err := json.Unmarshal(b, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.DryRun || report.Summary.Migrated != 1 {
		t.Fatalf("report = %+v", report)
	}
}

func TestStartDisabledIsNoop(t *testing.T) {
	cancel, err := Start(context.Background(), config.SweepConfig{}, persist.NewEngine())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
}

func TestStartRejectsBadCron(t *testing.T) {
	cfg := config.SweepConfig{Enabled: true, Cron: "not a cron"}
	if _, err := Start(context.Background(), cfg, persist.NewEngine()); err == nil {
		t.Fatalf("invalid cron accepted")
	}
}
