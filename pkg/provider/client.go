// Package provider defines the contract with LLM provider clients:
// send a request, get a structured response, fail with a typed error.
// Vendor-specific translation lives behind the Client interface.
package provider

import (
	"context"
	"time"

	"colloquy/pkg/models"
)

// StopReason is the provider's reason for ending a turn.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// Request is one provider call: hydrated history, registered tool
// schemas, the system prompt and the model parameters.
type Request struct {
	Messages     []models.Message
	Tools        []models.ToolDescriptor
	SystemPrompt string
	Model        models.ModelConfig
}

// RateLimitHeaders carries quota information returned with a response.
type RateLimitHeaders struct {
	RequestsRemaining int
	TokensRemaining   int
	ResetAt           time.Time
}

// Response is the structured provider reply.
type Response struct {
	Content    []models.ContentPart
	Usage      models.TokenUsage
	StopReason StopReason
	RateLimit  *RateLimitHeaders
}

// Client sends requests to an LLM provider.
type Client interface {
	Send(ctx context.Context, req Request) (*Response, error)
}

// ToolUses returns the tool_use parts of the response, in order.
func (r *Response) ToolUses() []models.ContentPart {
	var out []models.ContentPart
	for _, p := range r.Content {
		if p.Kind == models.PartToolUse {
			out = append(out, p)
		}
	}
	return out
}

// Text concatenates the text parts of the response.
func (r *Response) Text() string {
	var out string
	for _, p := range r.Content {
		if p.Kind == models.PartText {
			out += p.Text
		}
	}
	return out
}
