// Package tools implements the tool registry and execution dispatcher:
// descriptor discovery across built-in, user-supplied and remote
// sources, collision resolution, set filtering and lazy handler
// construction via factories keyed by descriptor kind.
package tools

import (
	"context"
	"sync"

	"github.com/Masterminds/semver/v3"

	"colloquy/pkg/logger"
	"colloquy/pkg/models"
	"colloquy/pkg/resources"
)

// ToolUseRequest is one tool invocation requested by the model.
type ToolUseRequest struct {
	ToolUseID string
	ToolName  string
	Input     map[string]any
	// Validated marks input already checked upstream; dispatch skips
	// re-validation when set.
	Validated bool
}

// RunResult is what a handler returns: model-facing content parts, a
// compact model-facing summary and a client-facing summary.
type RunResult struct {
	ToolResults    []models.ContentPart
	ToolResponse   string
	ClientResponse string
	// Finalize, if set, runs after the result message is committed.
	Finalize func()
}

// EditorContext carries the project surroundings a tool operates in.
type EditorContext struct {
	ProjectID string
	WorkDir   string
	Connector resources.Connector
}

// Conversation is the slice of interaction state dispatch mutates. The
// interaction state machine satisfies it.
type Conversation interface {
	ID() string
	AppendToolResult(toolUseID string, parts []models.ContentPart, isError bool) error
	UpdateToolStats(name string, success bool)
}

// Handler executes one tool.
type Handler interface {
	ValidateInput(input map[string]any) bool
	Run(ctx context.Context, conv Conversation, req ToolUseRequest, editor EditorContext) (*RunResult, error)
}

// Factory builds a handler for a descriptor. Factories are registered
// per descriptor kind; construction is deferred until first dispatch.
type Factory func(desc models.ToolDescriptor) (Handler, error)

type entry struct {
	desc    models.ToolDescriptor
	factory Factory

	once     sync.Once
	handler  Handler
	buildErr error
}

func (e *entry) get() (Handler, error) {
	e.once.Do(func() {
		e.handler, e.buildErr = e.factory(e.desc)
	})
	if e.buildErr != nil {
		return nil, &Error{Tool: e.desc.Name, Op: "load", Err: e.buildErr}
	}
	return e.handler, nil
}

// Registry holds registered tool descriptors and resolves dispatch
// targets. Construct one per engine context; there is no package-level
// instance.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	// remote namespace: display name -> "server-id/name"
	remoteNames map[string]string
	activeSets  map[string]struct{}
	factories   map[string]Factory
}

// DefaultSet is the set tools belong to when they declare none.
const DefaultSet = "core"

// NewRegistry creates a registry filtering on the given active sets;
// empty means the default core set.
func NewRegistry(sets []string) *Registry {
	if len(sets) == 0 {
		sets = []string{DefaultSet}
	}
	active := map[string]struct{}{}
	for _, s := range sets {
		active[s] = struct{}{}
	}
	return &Registry{
		entries:     map[string]*entry{},
		remoteNames: map[string]string{},
		activeSets:  active,
		factories:   map[string]Factory{},
	}
}

// RegisterFactory installs a handler factory for a descriptor kind;
// user-directory discovery resolves factories through this table.
func (r *Registry) RegisterFactory(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

func (r *Registry) inActiveSets(desc models.ToolDescriptor) bool {
	sets := desc.Sets
	if len(sets) == 0 {
		sets = []string{DefaultSet}
	}
	for _, s := range sets {
		if _, ok := r.activeSets[s]; ok {
			return true
		}
	}
	return false
}

// parseVersion tolerates malformed versions by treating them as 0.0.0.
func parseVersion(v string) *semver.Version {
	sv, err := semver.NewVersion(v)
	if err != nil {
		return semver.MustParse("0.0.0")
	}
	return sv
}

// register applies the collision rule: a new descriptor replaces an
// existing one only when it is user-supplied. Explicit user
// configuration outranks version ordering, so a user override with a
// lower semver still wins, with a warning.
func (r *Registry) register(desc models.ToolDescriptor, f Factory) {
	if !r.inActiveSets(desc) {
		logger.Debug("tool_skipped_set_filter", "tool", desc.Name)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.entries[desc.Name]
	if ok {
		if desc.Source != models.ToolUser {
			logger.Debug("tool_collision_kept_existing", "tool", desc.Name,
				"existing_source", existing.desc.Source, "new_source", desc.Source)
			return
		}
		if parseVersion(desc.Version).LessThan(parseVersion(existing.desc.Version)) {
			logger.Warn("tool_override_downgrade", "tool", desc.Name,
				"existing_version", existing.desc.Version, "override_version", desc.Version)
		} else {
			logger.Info("tool_overridden", "tool", desc.Name,
				"existing_source", existing.desc.Source, "override_version", desc.Version)
		}
	}
	r.entries[desc.Name] = &entry{desc: desc, factory: f}
}

// registerKeyed stores a descriptor under an explicit key, used for the
// remote namespace where the internal key differs from the model-facing
// display name.
func (r *Registry) registerKeyed(key string, desc models.ToolDescriptor, f Factory) {
	if !r.inActiveSets(desc) {
		logger.Debug("tool_skipped_set_filter", "tool", desc.Name)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = &entry{desc: desc, factory: f}
}

// Descriptor returns the registered descriptor for name.
func (r *Registry) Descriptor(name string) (models.ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name = r.resolveLocked(name)
	e, ok := r.entries[name]
	if !ok {
		return models.ToolDescriptor{}, false
	}
	return e.desc, true
}

// Descriptors returns all enabled descriptors for provider requests.
func (r *Registry) Descriptors() []models.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ToolDescriptor, 0, len(r.entries))
	for _, e := range r.entries {
		if e.desc.Enabled {
			out = append(out, e.desc)
		}
	}
	return out
}

func (r *Registry) resolveLocked(name string) string {
	if internal, ok := r.remoteNames[name]; ok {
		return internal
	}
	return name
}
