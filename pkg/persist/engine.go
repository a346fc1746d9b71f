// Package persist implements the versioned persistence engine: durable
// save/load of interaction state plus the forward-only schema migration
// pipeline. The on-disk schema is private; consumers go through
// Save/Load and never read records directly.
package persist

import (
	"encoding/json"
	"fmt"
	"time"

	"colloquy/pkg/logger"
	"colloquy/pkg/models"
	"colloquy/pkg/store"
	"colloquy/pkg/telemetry"
)

// Snapshot is the complete durable state of one interaction, exchanged
// between the engine and the interaction state machine.
type Snapshot struct {
	Meta       models.Interaction
	Messages   []models.Message
	Resources  map[string]models.ResourceMetadata
	Objectives models.Objectives
	// NeedsRepair marks a log ending in an unresolved tool-use (the
	// process died mid-call); the state machine synthesizes a recovery
	// tool-result on the next statement.
	NeedsRepair bool
	// RewriteLog forces a full message-log rewrite instead of a delta
	// append, used after a message was removed with its resource.
	RewriteLog bool
}

// Engine is the persistence engine. One per process; constructed
// explicitly so tests get fresh instances.
type Engine struct{}

// NewEngine returns a persistence engine over the opened store.
func NewEngine() *Engine {
	return &Engine{}
}

// changeRecord is one append-only change-log entry written per save.
type changeRecord struct {
	TS             int64 `json:"ts"`
	Version        int   `json:"version"`
	StatementCount int   `json:"statement_count"`
	Messages       int   `json:"messages"`
}

// Save writes metadata, the message-log delta, resource metadata,
// objectives and the index entry as separate steps. The sequence is not
// transactional: a save_pending marker brackets it so a partial save is
// detectable, and every step is idempotent so Save can simply be called
// again to recover.
func (e *Engine) Save(snap *Snapshot) error {
	id := snap.Meta.ID
	if id == "" {
		return &Error{Op: OpValidate, Interaction: id, Err: fmt.Errorf("interaction id is empty")}
	}
	if err := store.SetPending(id); err != nil {
		return &Error{Op: OpWrite, Interaction: id, Err: err}
	}

	snap.Meta.Version = models.CurrentSchemaVersion
	snap.Meta.UpdatedTS = time.Now().UTC().UnixNano()
	meta, err := json.Marshal(snap.Meta)
	if err != nil {
		return &Error{Op: OpWrite, Interaction: id, Err: err}
	}
	if err := store.SaveInteractionMeta(id, meta); err != nil {
		telemetry.Saves.WithLabelValues("error").Inc()
		return &Error{Op: OpWrite, Interaction: id, Err: err}
	}

	// append only messages not yet durable; a rewrite drops the stored
	// log first so removals take effect
	if snap.RewriteLog {
		keys, err := store.ListKeys("interaction:" + id + ":msg:")
		if err != nil {
			return &Error{Op: OpRead, Interaction: id, Err: err}
		}
		for _, k := range keys {
			if err := store.DeleteKey(k); err != nil {
				return &Error{Op: OpWrite, Interaction: id, Err: err}
			}
		}
	}
	stored, err := store.ListMessages(id)
	if err != nil {
		return &Error{Op: OpRead, Interaction: id, Err: err}
	}
	for i := len(stored); i < len(snap.Messages); i++ {
		b, err := json.Marshal(snap.Messages[i])
		if err != nil {
			return &Error{Op: OpAppend, Interaction: id, Err: err}
		}
		if _, err := store.AppendMessage(id, b); err != nil {
			telemetry.Saves.WithLabelValues("error").Inc()
			return &Error{Op: OpAppend, Interaction: id, Err: err}
		}
	}

	for key, rm := range snap.Resources {
		b, err := json.Marshal(rm)
		if err != nil {
			return &Error{Op: OpWrite, Interaction: id, Err: err}
		}
		if err := store.SaveResourceMeta(id, key, b); err != nil {
			return &Error{Op: OpWrite, Interaction: id, Err: err}
		}
	}

	ob, err := json.Marshal(snap.Objectives)
	if err != nil {
		return &Error{Op: OpWrite, Interaction: id, Err: err}
	}
	if err := store.SaveObjectives(id, ob); err != nil {
		return &Error{Op: OpWrite, Interaction: id, Err: err}
	}

	ch, _ := json.Marshal(changeRecord{
		TS:             snap.Meta.UpdatedTS,
		Version:        snap.Meta.Version,
		StatementCount: snap.Meta.Stats.StatementCount,
		Messages:       len(snap.Messages),
	})
	if err := store.AppendChange(id, ch); err != nil {
		return &Error{Op: OpAppend, Interaction: id, Err: err}
	}

	if err := e.saveSummary(snap); err != nil {
		return err
	}

	if err := store.ClearPending(id); err != nil {
		return &Error{Op: OpWrite, Interaction: id, Err: err}
	}
	telemetry.Saves.WithLabelValues("ok").Inc()
	logger.Debug("interaction_saved", "interaction", id,
		"messages", len(snap.Messages), "version", snap.Meta.Version)
	return nil
}

func (e *Engine) saveSummary(snap *Snapshot) error {
	sum := models.InteractionSummary{
		ID:             snap.Meta.ID,
		ProjectID:      snap.Meta.ProjectID,
		Type:           snap.Meta.Type,
		ParentID:       snap.Meta.ParentID,
		Title:          snap.Meta.Title,
		Provider:       snap.Meta.Model.Provider,
		Model:          snap.Meta.Model.Model,
		StatementCount: snap.Meta.Stats.StatementCount,
		TotalAllTokens: snap.Meta.Usage.Lifetime.TotalAllTokens,
		CreatedTS:      snap.Meta.CreatedTS,
		UpdatedTS:      snap.Meta.UpdatedTS,
	}
	b, err := json.Marshal(sum)
	if err != nil {
		return &Error{Op: OpWrite, Interaction: snap.Meta.ID, Err: err}
	}
	if err := store.SaveSummary(snap.Meta.ProjectID, snap.Meta.ID, b); err != nil {
		return &Error{Op: OpWrite, Interaction: snap.Meta.ID, Err: err}
	}
	return nil
}

// Load replays an interaction from the store. A missing interaction
// returns (nil, nil): absence is not an error. A stale schema version is
// migrated in place before replay.
func (e *Engine) Load(id string) (*Snapshot, error) {
	raw, err := store.GetInteractionMeta(id)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, &Error{Op: OpRead, Interaction: id, Err: err}
	}

	if store.HasPending(id) {
		logger.Warn("partial_save_detected", "interaction", id)
	}

	if v := recordVersion(raw); v < models.CurrentSchemaVersion {
		res := e.MigrateInteraction(id, false)
		if res.Err != "" {
			return nil, &Error{Op: OpMigrate, Interaction: id, Version: res.ToVersion, Err: fmt.Errorf("%s", res.Err)}
		}
		raw, err = store.GetInteractionMeta(id)
		if err != nil {
			return nil, &Error{Op: OpRead, Interaction: id, Err: err}
		}
	}

	var meta models.Interaction
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, &Error{Op: OpRead, Interaction: id, Err: err}
	}

	rawMsgs, err := store.ListMessages(id)
	if err != nil {
		return nil, &Error{Op: OpRead, Interaction: id, Err: err}
	}
	msgs := make([]models.Message, 0, len(rawMsgs))
	for _, s := range rawMsgs {
		var m models.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, &Error{Op: OpRead, Interaction: id, Err: err}
		}
		msgs = append(msgs, m)
	}

	resMeta, err := store.ListResourceMeta(id)
	if err != nil {
		return nil, &Error{Op: OpRead, Interaction: id, Err: err}
	}
	resTable := map[string]models.ResourceMetadata{}
	for _, s := range resMeta {
		var rm models.ResourceMetadata
		if err := json.Unmarshal([]byte(s), &rm); err != nil {
			return nil, &Error{Op: OpRead, Interaction: id, Err: err}
		}
		resTable[models.RevisionKey(rm.ResourceID, rm.RevisionID)] = rm
	}

	var obj models.Objectives
	if ob, err := store.GetObjectives(id); err == nil {
		_ = json.Unmarshal(ob, &obj)
	} else if !store.IsNotFound(err) {
		return nil, &Error{Op: OpRead, Interaction: id, Err: err}
	}

	snap := &Snapshot{
		Meta:       meta,
		Messages:   msgs,
		Resources:  resTable,
		Objectives: obj,
	}
	snap.NeedsRepair = trailingUnresolvedToolUse(msgs)
	if snap.NeedsRepair {
		logger.Warn("unresolved_tool_use_on_load", "interaction", id)
	}
	logger.Info("interaction_loaded", "interaction", id,
		"messages", len(msgs), "version", meta.Version)
	return snap, nil
}

// trailingUnresolvedToolUse reports whether any tool-use of the last
// assistant message lacks a matching tool-result. Partial commits leave
// the log ending in a tool message with some uses still open, so the
// check matches ids rather than looking at the trailing message alone.
func trailingUnresolvedToolUse(msgs []models.Message) bool {
	resolved := map[string]bool{}
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		switch m.Role {
		case models.RoleAssistant:
			for _, tu := range m.ToolUses() {
				if !resolved[tu.ToolUseID] {
					return true
				}
			}
			return false
		case models.RoleTool:
			for _, p := range m.Parts {
				if p.Kind == models.PartToolResult {
					resolved[p.ToolUseID] = true
				}
			}
		case models.RoleUser:
			return false
		}
	}
	return false
}

// Delete removes all durable state for an interaction. The index entry
// is tombstoned first so a partially failed delete is detectable and
// re-runnable; sibling interactions sharing a parent link are untouched.
func (e *Engine) Delete(project, id string) error {
	if b, err := store.GetSummary(project, id); err == nil {
		var sum models.InteractionSummary
		if json.Unmarshal(b, &sum) == nil {
			sum.Deleted = true
			sum.DeletedTS = time.Now().UTC().UnixNano()
			if nb, err := json.Marshal(sum); err == nil {
				if err := store.SaveSummary(project, id, nb); err != nil {
					return &Error{Op: OpWrite, Interaction: id, Err: err}
				}
			}
		}
	}
	if err := store.DeleteInteraction(id); err != nil {
		return &Error{Op: OpWrite, Interaction: id, Err: err}
	}
	if err := store.DeleteSummary(project, id); err != nil {
		return &Error{Op: OpWrite, Interaction: id, Err: err}
	}
	return nil
}

func recordVersion(raw []byte) int {
	var v struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	return v.Version
}
