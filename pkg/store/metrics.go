package store

import (
	"io/fs"
	"path/filepath"
)

// Metrics is a compact view of store health for the telemetry exporter.
type Metrics struct {
	DiskBytes         uint64
	WALBytes          uint64
	L0Files           int64
	CompactionBacklog uint64
}

// GetMetrics returns best-effort metrics about the pebble DB: on-disk
// size plus a few pebble internals.
func GetMetrics() Metrics {
	var m Metrics
	if db == nil || dbPath == "" {
		return m
	}
	var total uint64
	_ = filepath.WalkDir(dbPath, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += uint64(fi.Size())
		}
		return nil
	})
	m.DiskBytes = total
	if pm := db.Metrics(); pm != nil {
		m.WALBytes = pm.WAL.Size
		m.L0Files = pm.Levels[0].NumFiles
		m.CompactionBacklog = pm.Compact.EstimatedDebt
	}
	return m
}
