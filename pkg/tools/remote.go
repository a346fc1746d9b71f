package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"colloquy/pkg/models"
)

// remoteHTTPTimeout bounds remote descriptor fetches and executions.
const remoteHTTPTimeout = 30 * time.Second

// FetchRemoteDescriptors lists the tools a remote server offers via
// GET {endpoint}/tools.
func FetchRemoteDescriptors(ctx context.Context, endpoint string) ([]models.ToolDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/tools", nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: remoteHTTPTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote tool listing failed: status %d", resp.StatusCode)
	}
	var descs []models.ToolDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&descs); err != nil {
		return nil, err
	}
	return descs, nil
}

// RemoteFactory builds handlers that forward execution to the remote
// server via POST {endpoint}/execute.
func RemoteFactory(endpoint string) Factory {
	return func(desc models.ToolDescriptor) (Handler, error) {
		return &remoteHandler{endpoint: endpoint, desc: desc}, nil
	}
}

type remoteHandler struct {
	endpoint string
	desc     models.ToolDescriptor
}

func (h *remoteHandler) ValidateInput(input map[string]any) bool { return true }

func (h *remoteHandler) Run(ctx context.Context, conv Conversation, req ToolUseRequest, editor EditorContext) (*RunResult, error) {
	payload, err := json.Marshal(struct {
		Tool    string         `json:"tool"`
		Input   map[string]any `json:"input,omitempty"`
		Project string         `json:"project,omitempty"`
	}{Tool: h.desc.Name, Input: req.Input, Project: editor.ProjectID})
	if err != nil {
		return nil, err
	}
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/execute", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	hr.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: remoteHTTPTimeout}
	resp, err := client.Do(hr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote execution failed: status %d", resp.StatusCode)
	}
	var out struct {
		Content  string `json:"content"`
		Summary  string `json:"summary,omitempty"`
		ClientTx string `json:"client_response,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &RunResult{
		ToolResults:    []models.ContentPart{models.TextPart(out.Content)},
		ToolResponse:   out.Summary,
		ClientResponse: out.ClientTx,
	}, nil
}
