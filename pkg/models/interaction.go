package models

// InteractionType distinguishes primary conversations from side chats
// (sub-agent and utility interactions).
type InteractionType string

const (
	TypeConversation InteractionType = "conversation"
	TypeChat         InteractionType = "chat"
)

// Schema versions for the durable interaction metadata record. Migration
// steps advance a record one version at a time; see pkg/persist.
const (
	SchemaV1 = 1
	SchemaV2 = 2
	SchemaV3 = 3
	SchemaV4 = 4

	CurrentSchemaVersion = SchemaV4
)

// ModelConfig holds the provider model parameters for an interaction.
type ModelConfig struct {
	// Provider names the LLM provider serving this configuration.
	Provider       string  `json:"provider,omitempty"`
	Model          string  `json:"model"`
	Temperature    float64 `json:"temperature,omitempty"`
	MaxTokens      int     `json:"max_tokens,omitempty"`
	ThinkingBudget int     `json:"thinking_budget,omitempty"`
	CacheEnabled   bool    `json:"cache_enabled,omitempty"`
}

// InteractionStats tracks the running statement/turn counters.
type InteractionStats struct {
	StatementCount       int `json:"statement_count"`
	StatementTurnCount   int `json:"statement_turn_count"`
	InteractionTurnCount int `json:"interaction_turn_count"`
}

// UsageSnapshot holds the three concurrent usage counters: the current
// turn, the current statement, and the interaction lifetime.
type UsageSnapshot struct {
	Turn      TokenUsage `json:"turn"`
	Statement TokenUsage `json:"statement"`
	Lifetime  TokenUsage `json:"lifetime"`
}

// ToolStat counts invocations of one tool within an interaction.
type ToolStat struct {
	Uses      int `json:"uses"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// Objectives holds the free-text goals for an interaction and for each
// of its statements (index = statement number - 1).
type Objectives struct {
	Interaction string   `json:"interaction,omitempty"`
	Statements  []string `json:"statements,omitempty"`
}

// Interaction is the durable metadata snapshot of one conversation/chat.
// Messages and resource metadata are persisted as separate records; this
// struct is what the versioned metadata file carries.
type Interaction struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project"`
	Type      InteractionType `json:"type"`
	ParentID  string          `json:"parent_id,omitempty"`
	Title     string          `json:"title,omitempty"`

	Model      ModelConfig         `json:"model_config"`
	Stats      InteractionStats    `json:"stats"`
	Usage      UsageSnapshot       `json:"usage"`
	Objectives Objectives          `json:"objectives"`
	ToolStats  map[string]ToolStat `json:"tool_stats,omitempty"`

	CreatedTS int64 `json:"created_ts,omitempty"`
	UpdatedTS int64 `json:"updated_ts,omitempty"`

	// Version is the schema version the record was written at.
	Version int `json:"version"`
}

// InteractionSummary is the denormalized project-index entry used for
// listing without opening the full interaction.
type InteractionSummary struct {
	ID             string          `json:"id"`
	ProjectID      string          `json:"project"`
	Type           InteractionType `json:"type"`
	ParentID       string          `json:"parent_id,omitempty"`
	Title          string          `json:"title,omitempty"`
	Provider       string          `json:"provider,omitempty"`
	Model          string          `json:"model,omitempty"`
	StatementCount int             `json:"statement_count"`
	TotalAllTokens int64           `json:"total_all_tokens"`
	CreatedTS      int64           `json:"created_ts,omitempty"`
	UpdatedTS      int64           `json:"updated_ts,omitempty"`
	// Deleted marks a tombstoned entry awaiting record removal.
	Deleted   bool  `json:"deleted,omitempty"`
	DeletedTS int64 `json:"deleted_ts,omitempty"`
}
