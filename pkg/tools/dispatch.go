package tools

import (
	"context"
	"fmt"

	"colloquy/pkg/logger"
	"colloquy/pkg/models"
	"colloquy/pkg/telemetry"
)

// DispatchResult is the outcome of one tool invocation. IsError marks a
// tool failure that was fed back to the model rather than raised.
type DispatchResult struct {
	ToolResults    []models.ContentPart
	ToolResponse   string
	ClientResponse string
	IsError        bool
}

// Dispatch resolves the tool by name, validates input, runs it and
// appends the closing tool-result message to the conversation.
//
// Failure containment: validation and execution failures become an
// error-flagged tool-result the model can see, never an error return.
// Only registry-level failures (unknown name, handler load failure)
// propagate, since those signal misconfiguration.
func (r *Registry) Dispatch(ctx context.Context, conv Conversation, req ToolUseRequest, editor EditorContext) (*DispatchResult, error) {
	r.mu.RLock()
	key := r.resolveLocked(req.ToolName)
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return nil, &Error{Tool: req.ToolName, Op: "resolve", Err: fmt.Errorf("unknown tool")}
	}

	handler, err := e.get()
	if err != nil {
		return nil, err
	}

	if !req.Validated {
		if verr := validateInput(e.desc.InputSchema, req.Input); verr != nil {
			return r.fail(conv, req, &ValidationError{Tool: req.ToolName, Reason: verr.Error()})
		}
		if !handler.ValidateInput(req.Input) {
			return r.fail(conv, req, &ValidationError{Tool: req.ToolName, Reason: "handler rejected input"})
		}
	}

	result, runErr := runContained(ctx, handler, conv, req, editor)
	if runErr != nil {
		return r.fail(conv, req, &Error{Tool: req.ToolName, Op: "execute", Err: runErr})
	}

	if err := conv.AppendToolResult(req.ToolUseID, result.ToolResults, false); err != nil {
		return nil, err
	}
	conv.UpdateToolStats(req.ToolName, true)
	telemetry.ToolDispatches.WithLabelValues(req.ToolName, "ok").Inc()
	if result.Finalize != nil {
		result.Finalize()
	}
	return &DispatchResult{
		ToolResults:    result.ToolResults,
		ToolResponse:   result.ToolResponse,
		ClientResponse: result.ClientResponse,
	}, nil
}

// runContained converts handler panics into errors so a misbehaving tool
// cannot take the interaction down.
func runContained(ctx context.Context, h Handler, conv Conversation, req ToolUseRequest, editor EditorContext) (result *RunResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool panicked: %v", rec)
		}
	}()
	result, err = h.Run(ctx, conv, req, editor)
	if err == nil && result == nil {
		err = fmt.Errorf("tool returned no result")
	}
	return result, err
}

// fail appends an error-flagged tool-result so every tool-use receives a
// closing result, then reports the failure in the dispatch result.
func (r *Registry) fail(conv Conversation, req ToolUseRequest, cause error) (*DispatchResult, error) {
	logger.Warn("tool_dispatch_failed", "interaction", conv.ID(), "tool", req.ToolName, "error", cause)
	parts := []models.ContentPart{models.TextPart(fmt.Sprintf("Tool %s failed: %v", req.ToolName, cause))}
	if err := conv.AppendToolResult(req.ToolUseID, parts, true); err != nil {
		return nil, err
	}
	conv.UpdateToolStats(req.ToolName, false)
	telemetry.ToolDispatches.WithLabelValues(req.ToolName, "error").Inc()
	return &DispatchResult{
		ToolResults:    parts,
		ToolResponse:   cause.Error(),
		ClientResponse: fmt.Sprintf("Tool %s failed", req.ToolName),
		IsError:        true,
	}, nil
}
