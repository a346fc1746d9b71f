// Package sweeper runs the scheduled schema-migration sweep: it walks
// every stored interaction and brings stragglers up to the current
// schema version, writing a report per run.
package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"colloquy/pkg/config"
	"colloquy/pkg/logger"
	"colloquy/pkg/persist"
	"colloquy/pkg/state"
)

const defaultCron = "0 3 * * *"

// Start launches the sweep scheduler when enabled. The returned cancel
// func stops it.
func Start(ctx context.Context, cfg config.SweepConfig, engine *persist.Engine) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("sweep_disabled")
		return func() {}, nil
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = defaultCron
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("sweep_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid sweep cron expression: %s", cronExpr)
	}

	sweepPath := state.PathsVar.Sweep
	if err := os.MkdirAll(sweepPath, 0o700); err != nil {
		logger.Error("sweep_path_create_failed", "path", sweepPath, "error", err)
		return nil, err
	}

	logger.Info("sweep_enabled", "cron", cronExpr, "dry_run", cfg.DryRun, "path", sweepPath)
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cfg, engine, sweepPath, cronExpr)
	return cancel, nil
}

// RunOnce performs a single sweep and writes its report.
func RunOnce(engine *persist.Engine, dry bool, sweepPath string) persist.MigrationSummary {
	start := time.Now().UTC()
	summary := engine.MigrateAll(dry)
	logger.Info("sweep_completed",
		"migrated", summary.Migrated, "skipped", summary.Skipped,
		"failed", summary.Failed, "dry_run", dry,
		"duration", time.Since(start).String())
	writeReport(sweepPath, start, dry, summary)
	return summary
}

// runScheduler sleeps until each cron tick computed by gronx, then
// sweeps.
func runScheduler(ctx context.Context, cfg config.SweepConfig, engine *persist.Engine, sweepPath, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("sweep_scheduler_stopping")
			return
		default:
		}

		next, err := gronx.NextTickAfter(cronExpr, time.Now().UTC(), false)
		if err != nil {
			logger.Error("sweep_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			RunOnce(engine, cfg.DryRun, sweepPath)
		case <-ctx.Done():
			logger.Info("sweep_scheduler_stopping")
			return
		}
	}
}

// writeReport drops a JSON report of the run into the sweep dir.
func writeReport(sweepPath string, start time.Time, dry bool, summary persist.MigrationSummary) {
	if sweepPath == "" {
		return
	}
	report := struct {
		StartedTS int64                    `json:"started_ts"`
		DryRun    bool                     `json:"dry_run"`
		Summary   persist.MigrationSummary `json:"summary"`
	}{StartedTS: start.UnixNano(), DryRun: dry, Summary: summary}

	b, err := json.Marshal(report)
	if err != nil {
		return
	}
	name := filepath.Join(sweepPath, "sweep-"+start.Format("20060102T150405")+".json")
	if err := os.WriteFile(name, b, 0o600); err != nil {
		logger.Warn("sweep_report_write_failed", "path", name, "error", err)
	}
}
