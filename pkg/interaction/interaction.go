// Package interaction implements the interaction state machine: the
// message/turn model, hydration, tool-use/result continuity and the
// statement/turn counters. One statement runs at a time per
// interaction; callers must not issue concurrent Converse calls on the
// same interaction.
package interaction

import (
	"context"
	"time"

	"github.com/google/uuid"

	"colloquy/pkg/logger"
	"colloquy/pkg/models"
	"colloquy/pkg/persist"
	"colloquy/pkg/provider"
	"colloquy/pkg/resources"
	"colloquy/pkg/store"
	"colloquy/pkg/telemetry"
	"colloquy/pkg/tokens"
	"colloquy/pkg/tools"
)

// DefaultWindowSize is the hydration window: how many recent references
// per resource receive full-content injection.
const DefaultWindowSize = 2

// Deps are the collaborators an interaction needs. The engine context
// (internal/app) owns and injects them; there are no package singletons.
type Deps struct {
	Client           provider.Client
	Ledger           *tokens.Ledger
	Registry         *tools.Registry
	WindowSize       int
	MaxResourceBytes int64
	SystemPrompt     string
}

// Interaction is the in-memory state machine for one conversation/chat.
type Interaction struct {
	meta      models.Interaction
	messages  []models.Message
	resources map[string]models.ResourceMetadata

	needsRepair bool
	rewriteLog  bool

	deps Deps
}

// New creates a fresh interaction around the given metadata.
func New(meta models.Interaction, deps Deps) *Interaction {
	if deps.WindowSize <= 0 {
		deps.WindowSize = DefaultWindowSize
	}
	if meta.CreatedTS == 0 {
		meta.CreatedTS = time.Now().UTC().UnixNano()
	}
	if meta.ToolStats == nil {
		meta.ToolStats = map[string]models.ToolStat{}
	}
	return &Interaction{
		meta:      meta,
		resources: map[string]models.ResourceMetadata{},
		deps:      deps,
	}
}

// FromSnapshot rebuilds an interaction from a persistence snapshot.
func FromSnapshot(snap *persist.Snapshot, deps Deps) *Interaction {
	ic := New(snap.Meta, deps)
	ic.messages = snap.Messages
	if snap.Resources != nil {
		ic.resources = snap.Resources
	}
	ic.meta.Objectives = snap.Objectives
	ic.needsRepair = snap.NeedsRepair
	return ic
}

// Snapshot builds the persistence snapshot of the current state.
func (s *Interaction) Snapshot() *persist.Snapshot {
	return &persist.Snapshot{
		Meta:       s.meta,
		Messages:   s.messages,
		Resources:  s.resources,
		Objectives: s.meta.Objectives,
		RewriteLog: s.rewriteLog,
	}
}

// Ledger returns the interaction's token ledger.
func (s *Interaction) Ledger() *tokens.Ledger { return s.deps.Ledger }

// markSaved resets the rewrite flag after a successful persist cycle.
func (s *Interaction) markSaved() { s.rewriteLog = false }

// ID returns the interaction id.
func (s *Interaction) ID() string { return s.meta.ID }

// Meta returns a copy of the interaction metadata.
func (s *Interaction) Meta() models.Interaction { return s.meta }

// Messages returns the stored message log.
func (s *Interaction) Messages() []models.Message { return s.messages }

// ConverseOptions carries the optional arguments of a statement.
type ConverseOptions struct {
	ParentMessageID string
	Objective       string
	Attachments     []*resources.Loaded
}

// Converse runs one user statement: it repairs a trailing unresolved
// tool-use if present, appends the user message with resource-attach
// markers, hydrates the history and calls the provider. On provider
// failure the user message stays committed, so a retry never duplicates
// input.
func (s *Interaction) Converse(ctx context.Context, prompt string, opts ConverseOptions) (*provider.Response, error) {
	s.repairPendingToolUse()

	stmt := s.meta.Stats.StatementCount + 1
	msg := models.Message{
		ID:          uuid.NewString(),
		Interaction: s.meta.ID,
		Role:        models.RoleUser,
		Parts:       []models.ContentPart{models.TextPart(prompt)},
		TS:          time.Now().UTC().UnixNano(),
		ParentID:    opts.ParentMessageID,
		Statement:   stmt,
	}
	for _, att := range opts.Attachments {
		rm := att.Metadata
		key := models.RevisionKey(rm.ResourceID, rm.RevisionID)
		if err := store.SaveRevision(key, att.Content); err != nil {
			rm.LoadError = err.Error()
			logger.Warn("attachment_store_failed", "interaction", s.meta.ID, "resource", rm.ResourceID, "error", err)
		}
		rm.MessageID = msg.ID
		s.resources[key] = rm
		msg.Parts = append(msg.Parts, models.ResourcePart(rm.ResourceID, rm.RevisionID))
	}
	s.messages = append(s.messages, msg)

	s.meta.Stats.StatementCount = stmt
	s.meta.Stats.StatementTurnCount = 0
	s.meta.Usage.Statement = models.TokenUsage{}
	if opts.Objective != "" {
		for len(s.meta.Objectives.Statements) < stmt-1 {
			s.meta.Objectives.Statements = append(s.meta.Objectives.Statements, "")
		}
		s.meta.Objectives.Statements = append(s.meta.Objectives.Statements, opts.Objective)
	}

	return s.sendToProvider(ctx)
}

// RelayToolResult appends a tool-result message (unless the dispatcher
// already closed the pending tool-use) and re-invokes the provider. The
// caller's tool loop drives this; the state machine never loops
// internally.
func (s *Interaction) RelayToolResult(ctx context.Context, resultText string) (*provider.Response, error) {
	if id, ok := s.pendingToolUse(); ok {
		s.appendToolResult(id, []models.ContentPart{models.TextPart(resultText)}, false)
	}
	return s.sendToProvider(ctx)
}

// sendToProvider hydrates the history, performs the provider round-trip
// and commits the assistant message with its usage accounting. No
// partial assistant message is committed on failure.
func (s *Interaction) sendToProvider(ctx context.Context) (*provider.Response, error) {
	req := provider.Request{
		Messages:     s.PrepareMessages(s.messages),
		SystemPrompt: s.deps.SystemPrompt,
		Model:        s.meta.Model,
	}
	if s.deps.Registry != nil {
		req.Tools = s.deps.Registry.Descriptors()
	}

	start := time.Now()
	resp, err := s.deps.Client.Send(ctx, req)
	telemetry.ProviderLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.ProviderCalls.WithLabelValues(s.meta.Model.Model, "error").Inc()
		logger.Error("provider_call_failed", "interaction", s.meta.ID, "error", err)
		return nil, err
	}
	telemetry.ProviderCalls.WithLabelValues(s.meta.Model.Model, "ok").Inc()

	msg := models.Message{
		ID:          uuid.NewString(),
		Interaction: s.meta.ID,
		Role:        models.RoleAssistant,
		Parts:       resp.Content,
		TS:          time.Now().UTC().UnixNano(),
		Statement:   s.meta.Stats.StatementCount,
	}
	s.messages = append(s.messages, msg)
	s.meta.Stats.InteractionTurnCount++
	s.meta.Stats.StatementTurnCount++

	usage := resp.Usage
	usage.TotalAllTokens = usage.AllTokens()
	s.meta.Usage.Turn = usage
	s.meta.Usage.Statement.Add(usage)
	s.meta.Usage.Lifetime.Add(usage)

	if s.deps.Ledger != nil {
		rec := models.TokenUsageRecord{
			MessageID: msg.ID,
			Role:      models.RoleAssistant,
			TS:        msg.TS,
			Usage:     resp.Usage,
		}
		if err := s.deps.Ledger.WriteUsage(rec, s.meta.Type); err != nil {
			logger.Error("usage_record_failed", "interaction", s.meta.ID, "error", err)
		}
	}
	return resp, nil
}

// unresolvedToolUses returns the tool-use ids of the last assistant
// message that have no matching tool-result yet, in part order. An
// assistant message can request several tools at once and the process
// may die after only some results were committed, so every id is
// checked, not just the trailing message state.
func (s *Interaction) unresolvedToolUses() []string {
	resolved := map[string]bool{}
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		switch m.Role {
		case models.RoleAssistant:
			var open []string
			for _, tu := range m.ToolUses() {
				if !resolved[tu.ToolUseID] {
					open = append(open, tu.ToolUseID)
				}
			}
			return open
		case models.RoleTool:
			for _, p := range m.Parts {
				if p.Kind == models.PartToolResult {
					resolved[p.ToolUseID] = true
				}
			}
		case models.RoleUser:
			return nil
		}
	}
	return nil
}

// pendingToolUse returns the first unresolved tool-use id, if any.
func (s *Interaction) pendingToolUse() (string, bool) {
	if open := s.unresolvedToolUses(); len(open) > 0 {
		return open[0], true
	}
	return "", false
}

// repairPendingToolUse synthesizes a recovery tool-result for every
// unresolved tool-use (the process died mid-call).
func (s *Interaction) repairPendingToolUse() {
	open := s.unresolvedToolUses()
	if len(open) == 0 && !s.needsRepair {
		return
	}
	for _, id := range open {
		logger.Warn("synthesizing_repair_tool_result", "interaction", s.meta.ID, "tool_use_id", id)
		s.appendToolResult(id, []models.ContentPart{
			models.TextPart("Tool execution was interrupted before a result was recorded."),
		}, true)
	}
	s.needsRepair = false
}

func (s *Interaction) appendToolResult(toolUseID string, parts []models.ContentPart, isError bool) {
	msg := models.Message{
		ID:          uuid.NewString(),
		Interaction: s.meta.ID,
		Role:        models.RoleTool,
		TS:          time.Now().UTC().UnixNano(),
		Statement:   s.meta.Stats.StatementCount,
		Parts: []models.ContentPart{{
			Kind:      models.PartToolResult,
			ToolUseID: toolUseID,
			IsError:   isError,
			Parts:     parts,
		}},
	}
	s.messages = append(s.messages, msg)
	s.meta.Stats.InteractionTurnCount++
	s.meta.Stats.StatementTurnCount++
}

// AppendToolResult records a tool result message; the tool dispatcher
// calls this so every tool-use receives a closing tool-result.
func (s *Interaction) AppendToolResult(toolUseID string, parts []models.ContentPart, isError bool) error {
	s.appendToolResult(toolUseID, parts, isError)
	return nil
}

// UpdateToolStats increments the per-tool usage counters.
func (s *Interaction) UpdateToolStats(name string, success bool) {
	st := s.meta.ToolStats[name]
	st.Uses++
	if success {
		st.Successes++
	} else {
		st.Failures++
	}
	s.meta.ToolStats[name] = st
}

// AddResourceForMessage records resource metadata owned by a message.
func (s *Interaction) AddResourceForMessage(rm models.ResourceMetadata, messageID string) {
	rm.MessageID = messageID
	s.resources[models.RevisionKey(rm.ResourceID, rm.RevisionID)] = rm
}

// AddResourceForSystemPrompt records a system-prompt resource; these are
// loaded once and never re-hydrated.
func (s *Interaction) AddResourceForSystemPrompt(rm models.ResourceMetadata) {
	rm.SystemPrompt = true
	s.resources[models.RevisionKey(rm.ResourceID, rm.RevisionID)] = rm
}

// RemoveResource drops a resource's metadata and, unless it is a
// system-prompt resource, its owning message.
func (s *Interaction) RemoveResource(resourceID, revisionID string) {
	key := models.RevisionKey(resourceID, revisionID)
	rm, ok := s.resources[key]
	if !ok {
		return
	}
	delete(s.resources, key)
	if rm.SystemPrompt || rm.MessageID == "" {
		return
	}
	for i, m := range s.messages {
		if m.ID == rm.MessageID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			s.rewriteLog = true
			break
		}
	}
}

// SetObjective sets the interaction-level objective.
func (s *Interaction) SetObjective(text string) {
	s.meta.Objectives.Interaction = text
}
