package interaction

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"colloquy/pkg/models"
	"colloquy/pkg/provider"
	"colloquy/pkg/resources"
	"colloquy/pkg/store"
)

func attachments(t *testing.T, id, rev, content string) []*resources.Loaded {
	t.Helper()
	return []*resources.Loaded{{
		Content: []byte(content),
		Metadata: models.ResourceMetadata{
			ResourceID: id,
			RevisionID: rev,
			URI:        "file:///" + id,
			Kind:       models.ResourceText,
			Size:       int64(len(content)),
		},
	}}
}

// attach saves a revision and registers its metadata on a marker-bearing
// user message, bypassing the provider round trip.
func attach(t *testing.T, ic *Interaction, rm models.ResourceMetadata, content []byte, statement int) {
	t.Helper()
	key := models.RevisionKey(rm.ResourceID, rm.RevisionID)
	if content != nil {
		if err := store.SaveRevision(key, content); err != nil {
			t.Fatalf("SaveRevision: %v", err)
		}
	}
	msg := models.Message{
		ID:          "m-" + key,
		Interaction: ic.ID(),
		Role:        models.RoleUser,
		Statement:   statement,
		Parts: []models.ContentPart{
			models.TextPart("see attached"),
			models.ResourcePart(rm.ResourceID, rm.RevisionID),
		},
	}
	ic.AddResourceForMessage(rm, msg.ID)
	ic.messages = append(ic.messages, msg)
}

func textOf(parts []models.ContentPart) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func TestHydrationInjectsContentAndMetadata(t *testing.T) {
	openStore(t)
	ic := newTestInteraction(t, &provider.Mock{})
	attach(t, ic, models.ResourceMetadata{
		ResourceID: "r1", RevisionID: "rev1", URI: "file:///r1",
		Kind: models.ResourceText, Size: 5, LastModified: 42,
	}, []byte("hello"), 1)

	out := ic.PrepareMessages(ic.Messages())
	text := textOf(out[0].Parts)
	if !strings.Contains(text, `<resource id="r1" revision="rev1"`) {
		t.Fatalf("metadata block missing: %q", text)
	}
	if !strings.Contains(text, "hello") {
		t.Fatalf("content missing: %q", text)
	}
	for _, p := range out[0].Parts {
		if p.Kind == models.PartResource {
			t.Fatalf("marker survived hydration")
		}
	}
}

func TestHydrationNeverMutatesInput(t *testing.T) {
	openStore(t)
	ic := newTestInteraction(t, &provider.Mock{})
	attach(t, ic, models.ResourceMetadata{
		ResourceID: "r1", RevisionID: "rev1", Kind: models.ResourceText, Size: 5,
	}, []byte("hello"), 1)

	first := ic.PrepareMessages(ic.Messages())
	// stored log still carries the raw marker
	stored := ic.Messages()[0].Parts
	if stored[1].Kind != models.PartResource {
		t.Fatalf("stored log mutated: %+v", stored[1])
	}
	second := ic.PrepareMessages(ic.Messages())
	if textOf(first[0].Parts) != textOf(second[0].Parts) {
		t.Fatalf("hydration is not repeatable")
	}
}

func TestHydrationWindowDegradesOldReferences(t *testing.T) {
	openStore(t)
	ic := newTestInteraction(t, &provider.Mock{})
	// three revisions of the same resource, window is 2
	attach(t, ic, models.ResourceMetadata{
		ResourceID: "r1", RevisionID: "rev1", Kind: models.ResourceText, Size: 2,
	}, []byte("alpha"), 1)
	attach(t, ic, models.ResourceMetadata{
		ResourceID: "r1", RevisionID: "rev2", Kind: models.ResourceText, Size: 2,
	}, []byte("beta"), 2)
	attach(t, ic, models.ResourceMetadata{
		ResourceID: "r1", RevisionID: "rev3", Kind: models.ResourceText, Size: 2,
	}, []byte("gamma"), 3)

	out := ic.PrepareMessages(ic.Messages())
	oldest := textOf(out[0].Parts)
	if strings.Contains(oldest, "alpha") {
		t.Fatalf("oldest reference kept full content: %q", oldest)
	}
	if !strings.Contains(oldest, "unchanged since turn 2") {
		t.Fatalf("pointer notice missing or wrong: %q", oldest)
	}
	if !strings.Contains(oldest, "rev2") {
		t.Fatalf("pointer must name the next full revision: %q", oldest)
	}
	if !strings.Contains(textOf(out[1].Parts), "beta") {
		t.Fatalf("second reference lost content")
	}
	if !strings.Contains(textOf(out[2].Parts), "gamma") {
		t.Fatalf("newest reference lost content")
	}
}

func TestHydrationErroredReferenceDoesNotConsumeWindow(t *testing.T) {
	openStore(t)
	ic := newTestInteraction(t, &provider.Mock{})
	// the middle revision failed to load; with window 2 the oldest
	// healthy revision must keep its full content
	attach(t, ic, models.ResourceMetadata{
		ResourceID: "r1", RevisionID: "rev1", Kind: models.ResourceText, Size: 2,
	}, []byte("v1"), 1)
	attach(t, ic, models.ResourceMetadata{
		ResourceID: "r1", RevisionID: "rev2", Kind: models.ResourceText,
		LoadError: "permission denied",
	}, nil, 2)
	attach(t, ic, models.ResourceMetadata{
		ResourceID: "r1", RevisionID: "rev3", Kind: models.ResourceText, Size: 2,
	}, []byte("v3"), 3)

	out := ic.PrepareMessages(ic.Messages())
	if !strings.Contains(textOf(out[0].Parts), "v1") {
		t.Fatalf("errored reference crowded out a healthy one: %q", textOf(out[0].Parts))
	}
	if !strings.Contains(textOf(out[1].Parts), "Failed to load resource r1") {
		t.Fatalf("load error not surfaced: %q", textOf(out[1].Parts))
	}
	if !strings.Contains(textOf(out[2].Parts), "v3") {
		t.Fatalf("newest reference lost content")
	}
}

func TestHydrationSystemPromptResourceIsMetadataOnly(t *testing.T) {
	openStore(t)
	ic := newTestInteraction(t, &provider.Mock{})
	rm := models.ResourceMetadata{
		ResourceID: "sys", RevisionID: "rev1", Kind: models.ResourceText, Size: 6,
	}
	key := models.RevisionKey(rm.ResourceID, rm.RevisionID)
	if err := store.SaveRevision(key, []byte("secret")); err != nil {
		t.Fatalf("SaveRevision: %v", err)
	}
	ic.AddResourceForSystemPrompt(rm)
	ic.messages = append(ic.messages, models.Message{
		ID: "m1", Role: models.RoleUser, Statement: 1,
		Parts: []models.ContentPart{models.ResourcePart("sys", "rev1")},
	})

	text := textOf(ic.PrepareMessages(ic.Messages())[0].Parts)
	if strings.Contains(text, "secret") {
		t.Fatalf("system prompt content leaked into the log: %q", text)
	}
	if !strings.Contains(text, `<resource id="sys"`) {
		t.Fatalf("metadata block missing: %q", text)
	}
}

func TestHydrationUnknownMetadataLeavesMarker(t *testing.T) {
	openStore(t)
	ic := newTestInteraction(t, &provider.Mock{})
	ic.messages = append(ic.messages, models.Message{
		ID: "m1", Role: models.RoleUser, Statement: 1,
		Parts: []models.ContentPart{models.ResourcePart("ghost", "rev1")},
	})
	out := ic.PrepareMessages(ic.Messages())
	if out[0].Parts[0].Kind != models.PartResource {
		t.Fatalf("unknown marker should pass through: %+v", out[0].Parts[0])
	}
}

func TestHydrationLoadErrorSurfacesFailure(t *testing.T) {
	openStore(t)
	ic := newTestInteraction(t, &provider.Mock{})
	attach(t, ic, models.ResourceMetadata{
		ResourceID: "r1", RevisionID: "rev1", Kind: models.ResourceText,
		LoadError: "permission denied",
	}, nil, 1)
	text := textOf(ic.PrepareMessages(ic.Messages())[0].Parts)
	if !strings.Contains(text, "Failed to load resource r1: permission denied") {
		t.Fatalf("load error not surfaced: %q", text)
	}
}

func TestHydrationSizeCap(t *testing.T) {
	openStore(t)
	ic := newTestInteraction(t, &provider.Mock{})
	ic.deps.MaxResourceBytes = 4
	attach(t, ic, models.ResourceMetadata{
		ResourceID: "big", RevisionID: "rev1", Kind: models.ResourceText, Size: 1000,
	}, []byte("xxxxx"), 1)
	text := textOf(ic.PrepareMessages(ic.Messages())[0].Parts)
	if !strings.Contains(text, "content omitted") {
		t.Fatalf("size cap not applied: %q", text)
	}
	if strings.Contains(text, "xxxxx") {
		t.Fatalf("oversized content injected anyway")
	}
}

func TestHydrationImageContent(t *testing.T) {
	openStore(t)
	ic := newTestInteraction(t, &provider.Mock{})
	png := []byte{0x89, 'P', 'N', 'G'}
	attach(t, ic, models.ResourceMetadata{
		ResourceID: "img", RevisionID: "rev1", Kind: models.ResourceImage,
		MediaType: "image/png", Size: int64(len(png)),
	}, png, 1)

	out := ic.PrepareMessages(ic.Messages())
	var img *models.ContentPart
	for i := range out[0].Parts {
		if out[0].Parts[i].Kind == models.PartImage {
			img = &out[0].Parts[i]
		}
	}
	if img == nil {
		t.Fatalf("no image part injected")
	}
	if img.MediaType != "image/png" {
		t.Fatalf("media type = %s", img.MediaType)
	}
	if img.Data != base64.StdEncoding.EncodeToString(png) {
		t.Fatalf("image data not base64 of the revision content")
	}
}

func TestHydrationUnsupportedMediaType(t *testing.T) {
	openStore(t)
	ic := newTestInteraction(t, &provider.Mock{})
	attach(t, ic, models.ResourceMetadata{
		ResourceID: "vid", RevisionID: "rev1", Kind: models.ResourceImage,
		MediaType: "video/mp4", Size: 3,
	}, []byte{1, 2, 3}, 1)
	text := textOf(ic.PrepareMessages(ic.Messages())[0].Parts)
	if !strings.Contains(text, "unsupported media type video/mp4") {
		t.Fatalf("unsupported media not flagged: %q", text)
	}
}

func TestHydrationRecursesIntoToolResults(t *testing.T) {
	openStore(t)
	ic := newTestInteraction(t, &provider.Mock{})
	rm := models.ResourceMetadata{
		ResourceID: "r1", RevisionID: "rev1", Kind: models.ResourceText, Size: 7,
	}
	key := models.RevisionKey(rm.ResourceID, rm.RevisionID)
	if err := store.SaveRevision(key, []byte("nested!")); err != nil {
		t.Fatalf("SaveRevision: %v", err)
	}
	ic.AddResourceForMessage(rm, "m1")
	ic.messages = append(ic.messages, models.Message{
		ID: "m1", Role: models.RoleTool, Statement: 1,
		Parts: []models.ContentPart{{
			Kind:      models.PartToolResult,
			ToolUseID: "tu1",
			Parts: []models.ContentPart{
				models.TextPart("tool said:"),
				models.ResourcePart("r1", "rev1"),
			},
		}},
	})

	out := ic.PrepareMessages(ic.Messages())
	tr := out[0].Parts[0]
	if tr.Kind != models.PartToolResult {
		t.Fatalf("tool result wrapper lost: %+v", tr)
	}
	if !strings.Contains(textOf(tr.Parts), "nested!") {
		t.Fatalf("nested marker not hydrated: %+v", tr.Parts)
	}
	// original nested marker untouched
	if ic.Messages()[0].Parts[0].Parts[1].Kind != models.PartResource {
		t.Fatalf("stored nested marker mutated")
	}
}

// Converse attachments flow end to end through hydration.
func TestConverseAttachmentHydratesOnNextCall(t *testing.T) {
	openStore(t)
	mock := &provider.Mock{}
	ic := newTestInteraction(t, mock)
	if _, err := ic.Converse(context.Background(), "review this", ConverseOptions{
		Attachments: attachments(t, "doc", "rev1", "the contents"),
	}); err != nil {
		t.Fatalf("Converse: %v", err)
	}
	sent := mock.Calls[0].Messages
	if !strings.Contains(textOf(sent[0].Parts), "the contents") {
		t.Fatalf("attachment content not hydrated into the provider request")
	}
}
