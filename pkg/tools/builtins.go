package tools

import (
	"context"
	"fmt"

	"colloquy/pkg/models"
	"colloquy/pkg/resources"
)

// CoreBuiltins returns the built-in tool set: resource access through
// the project connector.
func CoreBuiltins() []Builtin {
	return []Builtin{
		{
			Descriptor: models.ToolDescriptor{
				Name:        "read_resource",
				Description: "Read the content of a project resource by locator.",
				Version:     "1.0.0",
				Source:      models.ToolInternal,
				Enabled:     true,
				Idempotent:  true,
				InputSchema: map[string]any{
					"type":     "object",
					"required": []any{"locator"},
					"properties": map[string]any{
						"locator": map[string]any{"type": "string"},
					},
				},
			},
			Factory: func(models.ToolDescriptor) (Handler, error) {
				return readResourceHandler{}, nil
			},
		},
		{
			Descriptor: models.ToolDescriptor{
				Name:        "resource_exists",
				Description: "Check whether a project resource exists.",
				Version:     "1.0.0",
				Source:      models.ToolInternal,
				Enabled:     true,
				Idempotent:  true,
				InputSchema: map[string]any{
					"type":     "object",
					"required": []any{"locator"},
					"properties": map[string]any{
						"locator": map[string]any{"type": "string"},
					},
				},
			},
			Factory: func(models.ToolDescriptor) (Handler, error) {
				return resourceExistsHandler{}, nil
			},
		},
	}
}

func locatorArg(input map[string]any) (string, bool) {
	v, ok := input["locator"].(string)
	return v, ok && v != ""
}

type readResourceHandler struct{}

func (readResourceHandler) ValidateInput(input map[string]any) bool {
	_, ok := locatorArg(input)
	return ok
}

func (readResourceHandler) Run(ctx context.Context, conv Conversation, req ToolUseRequest, editor EditorContext) (*RunResult, error) {
	if editor.Connector == nil {
		return nil, fmt.Errorf("no resource connector configured")
	}
	locator, _ := locatorArg(req.Input)
	loaded, err := editor.Connector.LoadResource(ctx, locator)
	if err != nil {
		if resources.IsNotFound(err) {
			return nil, fmt.Errorf("resource %s not found", locator)
		}
		return nil, err
	}
	rm := loaded.Metadata
	return &RunResult{
		ToolResults:  []models.ContentPart{models.TextPart(string(loaded.Content))},
		ToolResponse: fmt.Sprintf("read %s (%d bytes, revision %s)", locator, rm.Size, rm.RevisionID),
	}, nil
}

type resourceExistsHandler struct{}

func (resourceExistsHandler) ValidateInput(input map[string]any) bool {
	_, ok := locatorArg(input)
	return ok
}

func (resourceExistsHandler) Run(ctx context.Context, conv Conversation, req ToolUseRequest, editor EditorContext) (*RunResult, error) {
	if editor.Connector == nil {
		return nil, fmt.Errorf("no resource connector configured")
	}
	locator, _ := locatorArg(req.Input)
	exists, err := editor.Connector.ResourceExists(ctx, locator)
	if err != nil {
		return nil, err
	}
	return &RunResult{
		ToolResults:  []models.ContentPart{models.TextPart(fmt.Sprintf("%t", exists))},
		ToolResponse: fmt.Sprintf("resource %s exists=%t", locator, exists),
	}, nil
}
