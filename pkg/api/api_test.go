package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"colloquy/pkg/interaction"
	"colloquy/pkg/models"
	"colloquy/pkg/persist"
	"colloquy/pkg/provider"
	"colloquy/pkg/queue"
	"colloquy/pkg/store"
	"colloquy/pkg/tools"
)

type echoHandler struct{}

func (echoHandler) ValidateInput(map[string]any) bool { return true }
func (echoHandler) Run(ctx context.Context, conv tools.Conversation, req tools.ToolUseRequest, editor tools.EditorContext) (*tools.RunResult, error) {
	return &tools.RunResult{
		ToolResults:  []models.ContentPart{models.TextPart("echo ok")},
		ToolResponse: "echo ok",
	}, nil
}

type fixture struct {
	srv    *httptest.Server
	mock   *provider.Mock
	mgr    *interaction.Manager
	writes *queue.Queue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	if err := store.Open(filepath.Join(t.TempDir(), "db")); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	reg := tools.NewRegistry(nil)
	reg.RegisterBuiltins([]tools.Builtin{{
		Descriptor: models.ToolDescriptor{
			Name: "echo", Version: "1.0.0", Source: models.ToolInternal, Enabled: true,
		},
		Factory: func(models.ToolDescriptor) (tools.Handler, error) { return echoHandler{}, nil },
	}})

	mock := &provider.Mock{}
	engine := persist.NewEngine()
	mgr := interaction.NewManager(engine, interaction.Deps{Client: mock, Registry: reg})
	writes := queue.NewQueue(0)
	t.Cleanup(writes.Close)

	srv := httptest.NewServer(New(mgr, engine, writes, tools.EditorContext{}, "test").Router())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, mock: mock, mgr: mgr, writes: writes}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func (f *fixture) createInteraction(t *testing.T, project string) models.Interaction {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/v1/projects/"+project+"/interactions",
		map[string]any{"title": "t", "model": map[string]any{"model": "m-large"}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", resp.StatusCode, body)
	}
	var meta models.Interaction
	if err := json.Unmarshal(body, &meta); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	return meta
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %d", resp.StatusCode)
	}
	resp, body := f.do(t, http.MethodGet, "/readyz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz: %d", resp.StatusCode)
	}
	var out map[string]string
	_ = json.Unmarshal(body, &out)
	if out["version"] != "test" {
		t.Fatalf("version = %q", out["version"])
	}
}

func TestCreateAndGetInteraction(t *testing.T) {
	f := newFixture(t)
	meta := f.createInteraction(t, "p1")
	if meta.ProjectID != "p1" || meta.Type != models.TypeConversation {
		t.Fatalf("meta = %+v", meta)
	}

	resp, body := f.do(t, http.MethodGet, "/v1/interactions/"+meta.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %d %s", resp.StatusCode, body)
	}
	var out struct {
		Interaction models.Interaction `json:"interaction"`
		Messages    []models.Message   `json:"messages"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Interaction.ID != meta.ID || len(out.Messages) != 0 {
		t.Fatalf("out = %+v", out)
	}

	resp, _ = f.do(t, http.MethodGet, "/v1/interactions/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown id: %d", resp.StatusCode)
	}
}

func TestConverseReturnsAssistantTurn(t *testing.T) {
	f := newFixture(t)
	f.mock.Responses = []*provider.Response{
		provider.TextResponse("hello back", models.TokenUsage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15}),
	}
	meta := f.createInteraction(t, "p1")

	resp, body := f.do(t, http.MethodPost, "/v1/interactions/"+meta.ID+"/converse",
		map[string]string{"prompt": "hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("converse: %d %s", resp.StatusCode, body)
	}
	var out converseResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Text != "hello back" || out.StopReason != string(provider.StopEndTurn) {
		t.Fatalf("out = %+v", out)
	}
	if out.Stats.StatementCount != 1 {
		t.Fatalf("stats = %+v", out.Stats)
	}
	if out.Usage.Lifetime.TotalTokens != 15 {
		t.Fatalf("usage = %+v", out.Usage)
	}
}

func TestConverseRequiresPrompt(t *testing.T) {
	f := newFixture(t)
	meta := f.createInteraction(t, "p1")
	resp, _ := f.do(t, http.MethodPost, "/v1/interactions/"+meta.ID+"/converse", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty prompt: %d", resp.StatusCode)
	}
}

func TestConverseRunsRegisteredTool(t *testing.T) {
	f := newFixture(t)
	f.mock.Responses = []*provider.Response{
		provider.ToolUseResponse("tu1", "echo", map[string]any{"x": "y"}),
		provider.TextResponse("used the tool", models.TokenUsage{TotalTokens: 5}),
	}
	meta := f.createInteraction(t, "p1")

	resp, body := f.do(t, http.MethodPost, "/v1/interactions/"+meta.ID+"/converse",
		map[string]string{"prompt": "run echo"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("converse: %d %s", resp.StatusCode, body)
	}
	var out converseResponse
	_ = json.Unmarshal(body, &out)
	if out.Text != "used the tool" {
		t.Fatalf("out = %+v", out)
	}
	// two provider calls: the tool request and the follow-up
	if len(f.mock.Calls) != 2 {
		t.Fatalf("provider calls = %d", len(f.mock.Calls))
	}
	ic, _ := f.mgr.Get(meta.ID)
	// user, assistant tool_use, tool result, assistant text
	if n := len(ic.Messages()); n != 4 {
		t.Fatalf("messages = %d", n)
	}
}

func TestConverseSuspendsOnClientTool(t *testing.T) {
	f := newFixture(t)
	f.mock.Responses = []*provider.Response{
		provider.ToolUseResponse("tu1", "open_browser", map[string]any{"url": "https://x"}),
		provider.TextResponse("done browsing", models.TokenUsage{TotalTokens: 5}),
	}
	meta := f.createInteraction(t, "p1")

	resp, body := f.do(t, http.MethodPost, "/v1/interactions/"+meta.ID+"/converse",
		map[string]string{"prompt": "open it"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("converse: %d %s", resp.StatusCode, body)
	}
	var out converseResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.PendingTool == nil {
		t.Fatalf("no pending tool in suspension response: %s", body)
	}
	if out.PendingTool.ToolUseID != "tu1" || out.PendingTool.Name != "open_browser" {
		t.Fatalf("pending = %+v", out.PendingTool)
	}
	if out.StopReason != string(provider.StopToolUse) {
		t.Fatalf("stop reason = %s", out.StopReason)
	}

	// client executes the tool and resumes
	resp, body = f.do(t, http.MethodPost, "/v1/interactions/"+meta.ID+"/tool_result",
		map[string]string{"result": "page loaded"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("tool_result: %d %s", resp.StatusCode, body)
	}
	out = converseResponse{}
	_ = json.Unmarshal(body, &out)
	if out.Text != "done browsing" || out.PendingTool != nil {
		t.Fatalf("resume = %+v", out)
	}
	ic, _ := f.mgr.Get(meta.ID)
	if n := len(ic.Messages()); n != 4 {
		t.Fatalf("messages = %d", n)
	}
	if ic.Messages()[2].Role != models.RoleTool {
		t.Fatalf("client result not recorded as tool message")
	}
}

func TestChildEndpoints(t *testing.T) {
	f := newFixture(t)
	parent := f.createInteraction(t, "p1")

	resp, body := f.do(t, http.MethodPost, "/v1/interactions/"+parent.ID+"/children",
		map[string]any{"title": "chat"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create child: %d %s", resp.StatusCode, body)
	}
	var child models.Interaction
	_ = json.Unmarshal(body, &child)
	if child.ParentID != parent.ID || child.Type != models.TypeChat {
		t.Fatalf("child = %+v", child)
	}
	if child.Model.Model != "m-large" {
		t.Fatalf("model not inherited: %+v", child.Model)
	}

	// a chat cannot parent another chat
	resp, _ = f.do(t, http.MethodPost, "/v1/interactions/"+child.ID+"/children",
		map[string]any{"title": "nested"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("nested child: %d", resp.StatusCode)
	}
}

func TestListInteractions(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.createInteraction(t, "p1")
	}
	f.createInteraction(t, "p2")

	resp, body := f.do(t, http.MethodGet, "/v1/projects/p1/interactions?limit=2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", resp.StatusCode, body)
	}
	var out struct {
		Interactions []json.RawMessage `json:"interactions"`
		Total        int               `json:"total"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Total != 3 || len(out.Interactions) != 2 {
		t.Fatalf("total = %d, page = %d", out.Total, len(out.Interactions))
	}
}

func TestDeleteInteraction(t *testing.T) {
	f := newFixture(t)
	meta := f.createInteraction(t, "p1")
	resp, _ := f.do(t, http.MethodDelete, "/v1/interactions/"+meta.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/v1/interactions/"+meta.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: %d", resp.StatusCode)
	}
}

func TestObjectiveEndpoint(t *testing.T) {
	f := newFixture(t)
	meta := f.createInteraction(t, "p1")
	resp, body := f.do(t, http.MethodPost, "/v1/interactions/"+meta.ID+"/objective",
		map[string]string{"objective": "ship the release"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("objective: %d %s", resp.StatusCode, body)
	}
	var obj models.Objectives
	_ = json.Unmarshal(body, &obj)
	if obj.Interaction != "ship the release" {
		t.Fatalf("objectives = %+v", obj)
	}

	resp, _ = f.do(t, http.MethodPost, "/v1/interactions/"+meta.ID+"/objective", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty objective: %d", resp.StatusCode)
	}
}

func TestUsageEndpoint(t *testing.T) {
	f := newFixture(t)
	f.mock.Responses = []*provider.Response{
		provider.TextResponse("ok", models.TokenUsage{
			InputTokens: 100, OutputTokens: 50, TotalTokens: 150,
			CacheReadInputTokens: 40,
		}),
	}
	meta := f.createInteraction(t, "p1")
	if resp, body := f.do(t, http.MethodPost, "/v1/interactions/"+meta.ID+"/converse",
		map[string]string{"prompt": "hi"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("converse: %d %s", resp.StatusCode, body)
	}

	resp, body := f.do(t, http.MethodGet, "/v1/interactions/"+meta.ID+"/usage", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("usage: %d %s", resp.StatusCode, body)
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["records"] != float64(1) {
		t.Fatalf("analysis = %v", out)
	}
}

func TestAdminEndpoints(t *testing.T) {
	f := newFixture(t)
	f.createInteraction(t, "p1")

	resp, body := f.do(t, http.MethodPost, "/v1/admin/migrate?dry_run=true", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("migrate: %d %s", resp.StatusCode, body)
	}
	var sum persist.MigrationSummary
	if err := json.Unmarshal(body, &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.Failed != 0 {
		t.Fatalf("summary = %+v", sum)
	}

	resp, body = f.do(t, http.MethodGet, "/v1/admin/state", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state: %d", resp.StatusCode)
	}
	var entries []interaction.DumpEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}

	resp, _ = f.do(t, http.MethodGet, "/v1/admin/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: %d", resp.StatusCode)
	}
}
