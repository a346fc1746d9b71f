package models

// TokenUsage holds raw provider token counts plus the derived
// TotalAllTokens sum (total + cache creation + cache read + thought).
type TokenUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	TotalTokens              int64 `json:"total_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens,omitempty"`
	ThoughtTokens            int64 `json:"thought_tokens,omitempty"`
	TotalAllTokens           int64 `json:"total_all_tokens,omitempty"`
}

// AllTokens computes the derived grand total from the raw counters.
func (u TokenUsage) AllTokens() int64 {
	return u.TotalTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens + u.ThoughtTokens
}

// Add accumulates other into u field-wise, recomputing TotalAllTokens.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
	u.ThoughtTokens += other.ThoughtTokens
	u.TotalAllTokens = u.AllTokens()
}

// TokenUsageRecord is one append-only ledger entry tied to a message.
type TokenUsageRecord struct {
	MessageID string          `json:"message_id"`
	Role      Role            `json:"role"`
	Type      InteractionType `json:"type"`
	TS        int64           `json:"ts"`
	Usage     TokenUsage      `json:"usage"`
}
