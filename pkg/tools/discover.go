package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"colloquy/pkg/logger"
	"colloquy/pkg/models"
)

// Builtin couples a built-in descriptor with its handler factory.
type Builtin struct {
	Descriptor models.ToolDescriptor
	Factory    Factory
}

// userDescriptorFile is the on-disk shape of a user tool descriptor.
type userDescriptorFile struct {
	models.ToolDescriptor
	// Kind selects the handler factory registered via RegisterFactory.
	Kind string `json:"kind"`
}

// RegisterBuiltins registers the built-in tool set. Built-ins are
// discovered first so user and remote descriptors can override them.
func (r *Registry) RegisterBuiltins(builtins []Builtin) {
	for _, b := range builtins {
		desc := b.Descriptor
		desc.Source = models.ToolInternal
		desc.Enabled = true
		r.register(desc, b.Factory)
	}
}

// DiscoverUserDir loads every *.json descriptor in dir and registers it
// as a user-supplied tool. A descriptor whose kind has no registered
// factory is a load failure and propagates: that signals
// misconfiguration, not a runtime tool failure.
func (r *Registry) DiscoverUserDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read tool directory %s: %w", dir, err)
	}
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, ent.Name())
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read tool descriptor %s: %w", path, err)
		}
		var df userDescriptorFile
		if err := json.Unmarshal(b, &df); err != nil {
			return fmt.Errorf("invalid tool descriptor %s: %w", path, err)
		}
		if df.Name == "" {
			return fmt.Errorf("tool descriptor %s has no name", path)
		}
		r.mu.RLock()
		factory, ok := r.factories[df.Kind]
		r.mu.RUnlock()
		if !ok {
			return fmt.Errorf("tool descriptor %s: no factory for kind %q", path, df.Kind)
		}
		desc := df.ToolDescriptor
		desc.Source = models.ToolUser
		desc.Enabled = true
		desc.Location = dir
		r.register(desc, factory)
		logger.Info("user_tool_discovered", "tool", desc.Name, "dir", dir, "version", desc.Version)
	}
	return nil
}

// DiscoverRemote registers the tools exposed by a remote-protocol
// server. Tools are namespaced internally by server id + name; the
// model-facing display name gets a server suffix when it would collide
// with an already registered tool.
func (r *Registry) DiscoverRemote(serverID string, descs []models.ToolDescriptor, factory Factory) {
	for _, desc := range descs {
		internal := serverID + "/" + desc.Name
		display := desc.Name

		r.mu.RLock()
		_, taken := r.entries[display]
		_, aliased := r.remoteNames[display]
		r.mu.RUnlock()
		if taken || aliased {
			display = desc.Name + "_" + serverID
			logger.Info("remote_tool_renamed", "tool", desc.Name, "server", serverID, "display", display)
		}

		desc.Name = display
		desc.Source = models.ToolRemote
		desc.Enabled = true
		desc.Location = internal
		r.registerKeyed(internal, desc, factory)

		r.mu.Lock()
		r.remoteNames[display] = internal
		r.mu.Unlock()
	}
}
