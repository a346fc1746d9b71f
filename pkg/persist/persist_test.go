package persist

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"colloquy/pkg/models"
	"colloquy/pkg/store"
)

func openTemp(t *testing.T) *Engine {
	t.Helper()
	if err := store.Open(filepath.Join(t.TempDir(), "db")); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewEngine()
}

func snapWith(id string, msgs ...models.Message) *Snapshot {
	return &Snapshot{
		Meta: models.Interaction{
			ID:        id,
			ProjectID: "p1",
			Type:      models.TypeConversation,
			Model:     models.ModelConfig{Model: "m-large"},
			Stats:     models.InteractionStats{StatementCount: 1},
		},
		Messages: msgs,
	}
}

func userMsg(id, text string) models.Message {
	return models.Message{ID: id, Role: models.RoleUser, Parts: []models.ContentPart{models.TextPart(text)}, Statement: 1}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	e := openTemp(t)
	snap := snapWith("i1", userMsg("m1", "hello"))
	snap.Resources = map[string]models.ResourceMetadata{
		"r1@v1": {ResourceID: "r1", RevisionID: "v1", URI: "file://a.txt", Kind: models.ResourceText},
	}
	snap.Objectives = models.Objectives{Interaction: "ship it", Statements: []string{"start"}}

	if err := e.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := e.Load("i1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatalf("Load returned nil for saved interaction")
	}
	if got.Meta.Version != models.CurrentSchemaVersion {
		t.Fatalf("version not stamped: %d", got.Meta.Version)
	}
	if len(got.Messages) != 1 || got.Messages[0].ID != "m1" {
		t.Fatalf("messages wrong: %+v", got.Messages)
	}
	if got.Resources["r1@v1"].URI != "file://a.txt" {
		t.Fatalf("resources wrong: %+v", got.Resources)
	}
	if got.Objectives.Interaction != "ship it" || len(got.Objectives.Statements) != 1 {
		t.Fatalf("objectives wrong: %+v", got.Objectives)
	}
	if got.NeedsRepair {
		t.Fatalf("repair flagged on clean log")
	}
}

func TestLoadMissingReturnsNil(t *testing.T) {
	e := openTemp(t)
	got, err := e.Load("nope")
	if err != nil {
		t.Fatalf("missing interaction must not error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil snapshot")
	}
}

func TestSaveIsIdempotentOnRetry(t *testing.T) {
	e := openTemp(t)
	snap := snapWith("i1", userMsg("m1", "a"), userMsg("m2", "b"))
	if err := e.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// retrying the identical save must not duplicate messages
	if err := e.Save(snap); err != nil {
		t.Fatalf("Save retry: %v", err)
	}
	got, _ := e.Load("i1")
	if len(got.Messages) != 2 {
		t.Fatalf("retry duplicated messages: %d", len(got.Messages))
	}

	// a grown snapshot appends only the delta
	snap.Messages = append(snap.Messages, userMsg("m3", "c"))
	if err := e.Save(snap); err != nil {
		t.Fatalf("Save delta: %v", err)
	}
	got, _ = e.Load("i1")
	if len(got.Messages) != 3 || got.Messages[2].ID != "m3" {
		t.Fatalf("delta append wrong: %+v", got.Messages)
	}
}

func TestSaveRewriteLogDropsRemovedMessages(t *testing.T) {
	e := openTemp(t)
	snap := snapWith("i1", userMsg("m1", "a"), userMsg("m2", "b"), userMsg("m3", "c"))
	if err := e.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// remove the middle message and rewrite
	snap.Messages = []models.Message{snap.Messages[0], snap.Messages[2]}
	snap.RewriteLog = true
	if err := e.Save(snap); err != nil {
		t.Fatalf("Save rewrite: %v", err)
	}
	got, _ := e.Load("i1")
	if len(got.Messages) != 2 || got.Messages[1].ID != "m3" {
		t.Fatalf("rewrite wrong: %+v", got.Messages)
	}
}

func TestLoadFlagsTrailingToolUse(t *testing.T) {
	e := openTemp(t)
	assistant := models.Message{
		ID:   "m2",
		Role: models.RoleAssistant,
		Parts: []models.ContentPart{{
			Kind: models.PartToolUse, ToolUseID: "tu1", ToolName: "search",
		}},
		Statement: 1,
	}
	snap := snapWith("i1", userMsg("m1", "find it"), assistant)
	if err := e.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ := e.Load("i1")
	if !got.NeedsRepair {
		t.Fatalf("trailing tool-use not flagged for repair")
	}
}

func TestLoadFlagsPartiallyResolvedToolUses(t *testing.T) {
	e := openTemp(t)
	assistant := models.Message{
		ID:   "m2",
		Role: models.RoleAssistant,
		Parts: []models.ContentPart{
			{Kind: models.PartToolUse, ToolUseID: "tu1", ToolName: "search"},
			{Kind: models.PartToolUse, ToolUseID: "tu2", ToolName: "fetch"},
		},
		Statement: 1,
	}
	firstResult := models.Message{
		ID:   "m3",
		Role: models.RoleTool,
		Parts: []models.ContentPart{{
			Kind: models.PartToolResult, ToolUseID: "tu1",
			Parts: []models.ContentPart{models.TextPart("found")},
		}},
		Statement: 1,
	}
	// the log ends in a tool message, but tu2 is still open
	snap := snapWith("i1", userMsg("m1", "do both"), assistant, firstResult)
	if err := e.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ := e.Load("i1")
	if !got.NeedsRepair {
		t.Fatalf("open tool-use behind a partial result not flagged")
	}

	// once every use is resolved the flag clears
	secondResult := firstResult
	secondResult.ID = "m4"
	secondResult.Parts = []models.ContentPart{{
		Kind: models.PartToolResult, ToolUseID: "tu2",
		Parts: []models.ContentPart{models.TextPart("fetched")},
	}}
	snap = snapWith("i1", userMsg("m1", "do both"), assistant, firstResult, secondResult)
	if err := e.Save(snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, _ = e.Load("i1")
	if got.NeedsRepair {
		t.Fatalf("fully resolved tool-uses still flagged")
	}
}

func TestDeleteTombstonesThenRemoves(t *testing.T) {
	e := openTemp(t)
	if err := e.Save(snapWith("i1", userMsg("m1", "a"))); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := e.Delete("p1", "i1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got, _ := e.Load("i1"); got != nil {
		t.Fatalf("interaction survived delete")
	}
	if _, err := store.GetSummary("p1", "i1"); !store.IsNotFound(err) {
		t.Fatalf("summary survived delete")
	}
	// deleting again is harmless
	if err := e.Delete("p1", "i1"); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}

func TestListFiltersAndPaginates(t *testing.T) {
	e := openTemp(t)
	for i, id := range []string{"i1", "i2", "i3"} {
		snap := snapWith(id, userMsg("m", "x"))
		if i == 2 {
			snap.Meta.Model.Model = "m-small"
		}
		if err := e.Save(snap); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	all, total, err := e.List("p1", ListQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("expected 3, got total=%d len=%d", total, len(all))
	}
	// newest first
	if all[0].UpdatedTS < all[2].UpdatedTS {
		t.Fatalf("not sorted newest first")
	}

	byModel, total, _ := e.List("p1", ListQuery{Model: "m-small"})
	if total != 1 || byModel[0].ID != "i3" {
		t.Fatalf("model filter wrong: %+v", byModel)
	}

	page2, total, _ := e.List("p1", ListQuery{Limit: 2, Page: 2})
	if total != 3 || len(page2) != 1 {
		t.Fatalf("pagination wrong: total=%d len=%d", total, len(page2))
	}

	// tombstoned entries are hidden unless requested
	raw, _ := store.GetSummary("p1", "i1")
	var sum models.InteractionSummary
	_ = json.Unmarshal(raw, &sum)
	sum.Deleted = true
	b, _ := json.Marshal(sum)
	_ = store.SaveSummary("p1", "i1", b)

	visible, _, _ := e.List("p1", ListQuery{})
	if len(visible) != 2 {
		t.Fatalf("tombstone visible: %d", len(visible))
	}
	withDeleted, _, _ := e.List("p1", ListQuery{IncludeDeleted: true})
	if len(withDeleted) != 3 {
		t.Fatalf("tombstone hidden with IncludeDeleted: %d", len(withDeleted))
	}
}

func TestListFiltersByProvider(t *testing.T) {
	e := openTemp(t)
	for _, c := range []struct{ id, provider string }{
		{"i1", "anthropic"},
		{"i2", "openai"},
		{"i3", "anthropic"},
	} {
		snap := snapWith(c.id, userMsg("m", "x"))
		snap.Meta.Model.Provider = c.provider
		if err := e.Save(snap); err != nil {
			t.Fatalf("Save %s: %v", c.id, err)
		}
	}

	got, total, err := e.List("p1", ListQuery{Provider: "anthropic"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(got) != 2 {
		t.Fatalf("provider filter wrong: total=%d len=%d", total, len(got))
	}
	for _, sum := range got {
		if sum.Provider != "anthropic" {
			t.Fatalf("unexpected provider %q on %s", sum.Provider, sum.ID)
		}
	}
	none, total, _ := e.List("p1", ListQuery{Provider: "mistral"})
	if total != 0 || len(none) != 0 {
		t.Fatalf("expected empty result, got %d", len(none))
	}
}
