package persist

import (
	"encoding/json"
	"fmt"
	"strconv"

	"colloquy/pkg/logger"
	"colloquy/pkg/models"
	"colloquy/pkg/store"
	"colloquy/pkg/telemetry"
)

// Each schema version is an explicit record shape plus a pure step
// function advancing a record exactly one version. Steps are applied in
// strict sequence and each one is idempotent: a record already at or
// past the target version passes through unchanged, so re-running a
// half-migrated tree never double-applies.

// metaPreV4 is the flat metadata shape used by v1 through v3, where the
// model parameters lived at the top level. v1 records carry no version
// field at all.
type metaPreV4 struct {
	ID        string                 `json:"id"`
	ProjectID string                 `json:"project"`
	Type      models.InteractionType `json:"type"`
	ParentID  string                 `json:"parent_id,omitempty"`
	Title     string                 `json:"title,omitempty"`

	Model          string  `json:"model,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	MaxTokens      int     `json:"max_tokens,omitempty"`
	ThinkingBudget int     `json:"thinking_budget,omitempty"`
	CacheEnabled   bool    `json:"cache_enabled,omitempty"`

	Stats      models.InteractionStats    `json:"stats"`
	Usage      models.UsageSnapshot       `json:"usage"`
	Objectives models.Objectives          `json:"objectives"`
	ToolStats  map[string]models.ToolStat `json:"tool_stats,omitempty"`

	CreatedTS int64 `json:"created_ts,omitempty"`
	UpdatedTS int64 `json:"updated_ts,omitempty"`
	Version   int   `json:"version,omitempty"`
}

// MigrationResult reports the outcome for one interaction.
type MigrationResult struct {
	ID          string   `json:"id"`
	FromVersion int      `json:"from_version"`
	ToVersion   int      `json:"to_version"`
	Steps       []string `json:"steps,omitempty"`
	Changed     bool     `json:"changed"`
	Skipped     bool     `json:"skipped,omitempty"`
	DryRun      bool     `json:"dry_run,omitempty"`
	Err         string   `json:"error,omitempty"`
}

// MigrationSummary aggregates a project-wide sweep.
type MigrationSummary struct {
	Migrated int               `json:"migrated"`
	Skipped  int               `json:"skipped"`
	Failed   int               `json:"failed"`
	Results  []MigrationResult `json:"results"`
}

// MigrateInteraction applies the migration chain to one interaction.
// With dry set, intended changes are reported but nothing is written.
// A missing metadata record is "legacy, skip", not a failure. Any other
// error halts at the last successfully-migrated version.
func (e *Engine) MigrateInteraction(id string, dry bool) MigrationResult {
	res := MigrationResult{ID: id, DryRun: dry}
	raw, err := store.GetInteractionMeta(id)
	if err != nil {
		if store.IsNotFound(err) {
			res.Skipped = true
			logger.Info("migration_legacy_skip", "interaction", id)
			return res
		}
		res.Err = err.Error()
		return res
	}

	from := recordVersion(raw)
	if from == 0 {
		from = models.SchemaV1
	}
	res.FromVersion = from
	res.ToVersion = from

	for v := from; v < models.CurrentSchemaVersion; v++ {
		next, changed, err := e.applyStep(id, v, raw, dry)
		label := strconv.Itoa(v) + "_to_" + strconv.Itoa(v+1)
		if err != nil {
			res.Err = fmt.Sprintf("step %s: %v", label, err)
			telemetry.MigrationSteps.WithLabelValues(label, "error").Inc()
			logger.Error("migration_step_failed", "interaction", id, "step", label, "error", err)
			return res
		}
		if !dry {
			if err := store.SaveInteractionMeta(id, next); err != nil {
				res.Err = fmt.Sprintf("step %s: %v", label, err)
				return res
			}
		}
		raw = next
		res.ToVersion = v + 1
		res.Steps = append(res.Steps, label)
		if changed {
			res.Changed = true
		}
		telemetry.MigrationSteps.WithLabelValues(label, "ok").Inc()
		logger.Info("migration_step_applied", "interaction", id, "step", label, "dry_run", dry)
	}
	return res
}

// applyStep advances raw from version v to v+1.
func (e *Engine) applyStep(id string, v int, raw []byte, dry bool) ([]byte, bool, error) {
	switch v {
	case models.SchemaV1:
		return stepStampVersion(raw)
	case models.SchemaV2:
		return e.stepBackfillUsage(id, raw, dry)
	case models.SchemaV3:
		return stepNestModelConfig(raw)
	default:
		return nil, false, fmt.Errorf("no migration step from version %d", v)
	}
}

// stepStampVersion (v1 to v2) stamps the previously implicit schema
// version onto the record.
func stepStampVersion(raw []byte) ([]byte, bool, error) {
	var m metaPreV4
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, err
	}
	if m.Version >= models.SchemaV2 {
		return raw, false, nil
	}
	m.Version = models.SchemaV2
	out, err := json.Marshal(m)
	return out, true, err
}

// stepBackfillUsage (v2 to v3) backfills the derived totalAllTokens on
// every historical usage record lacking it, then recomputes the
// interaction-level lifetime summary from the now-complete ledger.
func (e *Engine) stepBackfillUsage(id string, raw []byte, dry bool) ([]byte, bool, error) {
	var m metaPreV4
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, err
	}
	if m.Version >= models.SchemaV3 {
		return raw, false, nil
	}

	changed := false
	var lifetime models.TokenUsage
	for _, typ := range []models.InteractionType{models.TypeConversation, models.TypeChat} {
		keys, err := store.ListUsageKeys(id, string(typ))
		if err != nil {
			return nil, false, err
		}
		for _, key := range keys {
			s, err := store.GetKey(key)
			if err != nil {
				return nil, false, err
			}
			var rec models.TokenUsageRecord
			if err := json.Unmarshal([]byte(s), &rec); err != nil {
				return nil, false, fmt.Errorf("invalid usage record at %s: %w", key, err)
			}
			if derived := rec.Usage.AllTokens(); rec.Usage.TotalAllTokens != derived {
				rec.Usage.TotalAllTokens = derived
				changed = true
				if !dry {
					nb, err := json.Marshal(rec)
					if err != nil {
						return nil, false, err
					}
					if err := store.SaveKey(key, nb); err != nil {
						return nil, false, err
					}
				}
			}
			lifetime.Add(rec.Usage)
		}
	}

	if m.Usage.Lifetime != lifetime {
		m.Usage.Lifetime = lifetime
		changed = true
	}
	m.Version = models.SchemaV3
	out, err := json.Marshal(m)
	return out, changed, err
}

// stepNestModelConfig (v3 to v4) moves the flat model parameters into
// the nested model-config structure.
func stepNestModelConfig(raw []byte) ([]byte, bool, error) {
	var m metaPreV4
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false, err
	}
	if m.Version >= models.SchemaV4 {
		return raw, false, nil
	}
	out := models.Interaction{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		Type:      m.Type,
		ParentID:  m.ParentID,
		Title:     m.Title,
		Model: models.ModelConfig{
			Model:          m.Model,
			Temperature:    m.Temperature,
			MaxTokens:      m.MaxTokens,
			ThinkingBudget: m.ThinkingBudget,
			CacheEnabled:   m.CacheEnabled,
		},
		Stats:      m.Stats,
		Usage:      m.Usage,
		Objectives: m.Objectives,
		ToolStats:  m.ToolStats,
		CreatedTS:  m.CreatedTS,
		UpdatedTS:  m.UpdatedTS,
		Version:    models.SchemaV4,
	}
	b, err := json.Marshal(out)
	return b, true, err
}

// MigrateAll sweeps every interaction in the store through the chain,
// aggregating migrated/skipped/failed counts.
func (e *Engine) MigrateAll(dry bool) MigrationSummary {
	var sum MigrationSummary
	ids, err := store.ListInteractionIDs()
	if err != nil {
		logger.Error("migration_sweep_list_failed", "error", err)
		return sum
	}
	for _, id := range ids {
		res := e.MigrateInteraction(id, dry)
		sum.Results = append(sum.Results, res)
		switch {
		case res.Err != "":
			sum.Failed++
		case res.Skipped:
			sum.Skipped++
		default:
			sum.Migrated++
		}
	}
	logger.Info("migration_sweep_done", "migrated", sum.Migrated,
		"skipped", sum.Skipped, "failed", sum.Failed, "dry_run", dry)
	return sum
}
