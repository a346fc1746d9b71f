package provider

import (
	"context"
	"sync"

	"colloquy/pkg/models"
)

// Mock is a scripted provider client for tests. Responses are returned
// in order; Errs (keyed by call index) inject failures.
type Mock struct {
	mu        sync.Mutex
	Responses []*Response
	Errs      map[int]error
	Calls     []Request
}

// Send records the request and pops the next scripted response.
func (m *Mock) Send(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := len(m.Calls)
	m.Calls = append(m.Calls, req)
	if err, ok := m.Errs[idx]; ok {
		return nil, err
	}
	if idx < len(m.Responses) {
		return m.Responses[idx], nil
	}
	return &Response{
		Content:    []models.ContentPart{models.TextPart("ok")},
		Usage:      models.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		StopReason: StopEndTurn,
	}, nil
}

// TextResponse builds a plain text response with the given usage.
func TextResponse(text string, usage models.TokenUsage) *Response {
	return &Response{
		Content:    []models.ContentPart{models.TextPart(text)},
		Usage:      usage,
		StopReason: StopEndTurn,
	}
}

// ToolUseResponse builds a response requesting one tool invocation.
func ToolUseResponse(toolUseID, tool string, input map[string]any) *Response {
	return &Response{
		Content: []models.ContentPart{{
			Kind:      models.PartToolUse,
			ToolUseID: toolUseID,
			ToolName:  tool,
			Input:     input,
		}},
		Usage:      models.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
		StopReason: StopToolUse,
	}
}
