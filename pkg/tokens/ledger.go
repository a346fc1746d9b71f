// Package tokens implements the append-only token usage ledger and its
// cache-impact analysis. Records are partitioned by interaction type so
// sub-chat cost does not pollute primary conversation stats, while
// analyses remain recombinable.
package tokens

import (
	"encoding/json"
	"fmt"
	"time"

	"colloquy/pkg/logger"
	"colloquy/pkg/models"
	"colloquy/pkg/store"
)

// ValidationError reports a usage record that failed validation, naming
// the offending field and the violated constraint.
type ValidationError struct {
	Field      string
	Constraint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("usage validation failed: %s: %s", e.Field, e.Constraint)
}

// Ledger appends and analyzes usage records for one interaction.
type Ledger struct {
	interactionID string
}

// NewLedger returns a ledger bound to an interaction.
func NewLedger(interactionID string) *Ledger {
	return &Ledger{interactionID: interactionID}
}

// WriteUsage validates and appends a usage record to the partition for
// the given interaction type. The derived TotalAllTokens is computed at
// write time; migration can backfill it on historical records.
func (l *Ledger) WriteUsage(rec models.TokenUsageRecord, typ models.InteractionType) error {
	if err := validate(rec); err != nil {
		return err
	}
	rec.Type = typ
	if rec.TS == 0 {
		rec.TS = time.Now().UTC().UnixNano()
	}
	rec.Usage.TotalAllTokens = rec.Usage.AllTokens()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal usage record: %w", err)
	}
	if err := store.AppendUsage(l.interactionID, string(typ), data); err != nil {
		logger.Error("write_usage_failed", "interaction", l.interactionID, "type", typ, "error", err)
		return err
	}
	logger.Debug("usage_written", "interaction", l.interactionID, "type", typ,
		"message", rec.MessageID, "total_all", rec.Usage.TotalAllTokens)
	return nil
}

// ListRecords returns the records of one partition in append order.
func (l *Ledger) ListRecords(typ models.InteractionType) ([]models.TokenUsageRecord, error) {
	raw, err := store.ListUsage(l.interactionID, string(typ))
	if err != nil {
		return nil, err
	}
	out := make([]models.TokenUsageRecord, 0, len(raw))
	for _, s := range raw {
		var rec models.TokenUsageRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("invalid usage record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func validate(rec models.TokenUsageRecord) error {
	if rec.MessageID == "" {
		return &ValidationError{Field: "message_id", Constraint: "required"}
	}
	if rec.Role == "" {
		return &ValidationError{Field: "role", Constraint: "required"}
	}
	checks := []struct {
		name string
		v    int64
	}{
		{"input_tokens", rec.Usage.InputTokens},
		{"output_tokens", rec.Usage.OutputTokens},
		{"total_tokens", rec.Usage.TotalTokens},
		{"cache_creation_input_tokens", rec.Usage.CacheCreationInputTokens},
		{"cache_read_input_tokens", rec.Usage.CacheReadInputTokens},
		{"thought_tokens", rec.Usage.ThoughtTokens},
	}
	for _, c := range checks {
		if c.v < 0 {
			return &ValidationError{Field: c.name, Constraint: "must be non-negative"}
		}
	}
	return nil
}
