package models

// ToolSource identifies where a tool descriptor was discovered.
type ToolSource string

const (
	ToolInternal ToolSource = "internal"
	ToolUser     ToolSource = "user"
	ToolRemote   ToolSource = "remote"
)

// ToolDescriptor describes one registered tool. Identity is Name;
// collisions between sources are resolved by the registry.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Version     string         `json:"version"`
	InputSchema map[string]any `json:"input_schema,omitempty"`

	// capability flags
	Mutates    bool `json:"mutates,omitempty"`
	Stateful   bool `json:"stateful,omitempty"`
	Idempotent bool `json:"idempotent,omitempty"`
	Network    bool `json:"network,omitempty"`

	Source  ToolSource `json:"source"`
	Enabled bool       `json:"enabled"`
	// Location is the resolved origin: a directory path for user tools,
	// "server-id/name" for remote tools, empty for built-ins.
	Location string `json:"location,omitempty"`
	// Sets names the tool sets this tool belongs to; empty means core.
	Sets []string `json:"sets,omitempty"`
}
