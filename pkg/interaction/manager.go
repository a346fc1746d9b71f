package interaction

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"colloquy/pkg/logger"
	"colloquy/pkg/models"
	"colloquy/pkg/persist"
	"colloquy/pkg/tokens"
)

// Manager holds the active interaction set and the parent/child
// hierarchy. Conversations are roots; chats hang off a parent
// conversation and inherit its model configuration unless overridden.
type Manager struct {
	mu     sync.RWMutex
	active map[string]*Interaction

	engine *persist.Engine
	deps   Deps
}

// NewManager builds a manager around the persistence engine. The deps
// passed here seed every interaction the manager creates or loads.
func NewManager(engine *persist.Engine, deps Deps) *Manager {
	return &Manager{
		active: map[string]*Interaction{},
		engine: engine,
		deps:   deps,
	}
}

// Deps returns the seed dependency set shared by managed interactions.
func (m *Manager) Deps() Deps { return m.deps }

// depsFor clones the manager deps with a fresh per-interaction ledger.
func (m *Manager) depsFor(id string) Deps {
	d := m.deps
	d.Ledger = tokens.NewLedger(id)
	return d
}

// Create registers a new root conversation.
func (m *Manager) Create(projectID, title string, model models.ModelConfig) (*Interaction, error) {
	return m.create(projectID, title, model, models.TypeConversation, "")
}

// CreateChild registers a chat under an existing parent conversation.
// The child inherits the parent's model configuration when model is
// zero-valued.
func (m *Manager) CreateChild(parentID, title string, model models.ModelConfig) (*Interaction, error) {
	parent, err := m.Get(parentID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("parent interaction %s not found", parentID)
	}
	pm := parent.Meta()
	if pm.Type != models.TypeConversation {
		return nil, fmt.Errorf("interaction %s is a %s; only conversations can have children", parentID, pm.Type)
	}
	if model.Model == "" {
		model = pm.Model
	}
	return m.create(pm.ProjectID, title, model, models.TypeChat, parentID)
}

func (m *Manager) create(projectID, title string, model models.ModelConfig, typ models.InteractionType, parentID string) (*Interaction, error) {
	meta := models.Interaction{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Type:      typ,
		ParentID:  parentID,
		Title:     title,
		Model:     model,
		Version:   models.CurrentSchemaVersion,
	}
	ic := New(meta, m.depsFor(meta.ID))
	if err := m.Save(ic); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.active[meta.ID] = ic
	m.mu.Unlock()
	logger.Info("interaction_created", "interaction", meta.ID, "project", projectID,
		"type", string(typ), "parent", parentID)
	return ic, nil
}

// Get returns the active interaction, loading it from storage on a
// miss. A (nil, nil) return means the id is unknown.
func (m *Manager) Get(id string) (*Interaction, error) {
	m.mu.RLock()
	ic, ok := m.active[id]
	m.mu.RUnlock()
	if ok {
		return ic, nil
	}

	snap, err := m.engine.Load(id)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.active[id]; ok {
		return cached, nil
	}
	ic = FromSnapshot(snap, m.depsFor(id))
	m.active[id] = ic
	return ic, nil
}

// Save persists the interaction's current snapshot.
func (m *Manager) Save(ic *Interaction) error {
	if err := m.engine.Save(ic.Snapshot()); err != nil {
		return err
	}
	ic.markSaved()
	return nil
}

// Delete tombstones and removes an interaction along with its active
// children.
func (m *Manager) Delete(id string) error {
	ic, err := m.Get(id)
	if err != nil {
		return err
	}
	if ic == nil {
		return nil
	}
	meta := ic.Meta()

	for _, child := range m.Children(id) {
		if err := m.Delete(child.ID()); err != nil {
			return err
		}
	}

	if err := m.engine.Delete(meta.ProjectID, id); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
	logger.Info("interaction_deleted", "interaction", id, "project", meta.ProjectID)
	return nil
}

// Release evicts an interaction from the active set without touching
// storage. It is saved first so no state is lost.
func (m *Manager) Release(id string) error {
	m.mu.RLock()
	ic, ok := m.active[id]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := m.Save(ic); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
	return nil
}

// Children returns the active children of the given interaction.
func (m *Manager) Children(parentID string) []*Interaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Interaction
	for _, ic := range m.active {
		if ic.Meta().ParentID == parentID {
			out = append(out, ic)
		}
	}
	return out
}

// DumpEntry is one row of the debug dump.
type DumpEntry struct {
	ID        string                  `json:"id"`
	ProjectID string                  `json:"project_id"`
	Type      models.InteractionType  `json:"type"`
	ParentID  string                  `json:"parent_id,omitempty"`
	Title     string                  `json:"title,omitempty"`
	Messages  int                     `json:"messages"`
	Resources int                     `json:"resources"`
	Stats     models.InteractionStats `json:"stats"`
	Usage     models.UsageSnapshot    `json:"usage"`
	Pending   bool                    `json:"pending_tool_use"`
	DumpedTS  int64                   `json:"dumped_ts"`
}

// Dump reports the in-memory state of every active interaction, for
// the admin debug endpoint.
func (m *Manager) Dump() []DumpEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now().UTC().UnixNano()
	out := make([]DumpEntry, 0, len(m.active))
	for _, ic := range m.active {
		meta := ic.Meta()
		_, pending := ic.pendingToolUse()
		out = append(out, DumpEntry{
			ID:        meta.ID,
			ProjectID: meta.ProjectID,
			Type:      meta.Type,
			ParentID:  meta.ParentID,
			Title:     meta.Title,
			Messages:  len(ic.messages),
			Resources: len(ic.resources),
			Stats:     meta.Stats,
			Usage:     meta.Usage,
			Pending:   pending,
			DumpedTS:  now,
		})
	}
	return out
}
