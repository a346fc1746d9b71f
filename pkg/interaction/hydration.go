package interaction

import (
	"encoding/base64"
	"fmt"

	"colloquy/pkg/logger"
	"colloquy/pkg/models"
	"colloquy/pkg/store"
	"colloquy/pkg/telemetry"
)

// supportedImageTypes are the media types that can be injected as image
// parts; anything else gets a warning block instead.
var supportedImageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

// ref is one resource-attach marker found during the pre-scan.
type ref struct {
	order     int
	statement int
	key       string
	meta      models.ResourceMetadata
	known     bool
}

// PrepareMessages expands resource-attach markers into provider-ready
// content. It is a pure function over the stored log plus the revision
// store: the log is never mutated, so hydration is safely recomputed
// before every provider call.
//
// Per resource, only the most recent windowSize references receive full
// content; older references degrade to a compact "unchanged since
// revision R" notice. A single forward pass suffices because the window
// budget is pre-scanned, and chronological order is preserved
// throughout.
func (s *Interaction) PrepareMessages(msgs []models.Message) []models.Message {
	telemetry.HydrationPasses.Inc()

	// pre-scan: collect every marker in chronological order
	var refs []ref
	order := 0
	var scanParts func(m models.Message, parts []models.ContentPart)
	scanParts = func(m models.Message, parts []models.ContentPart) {
		for _, p := range parts {
			switch p.Kind {
			case models.PartResource:
				key := models.RevisionKey(p.ResourceID, p.RevisionID)
				rm, ok := s.resources[key]
				refs = append(refs, ref{order: order, statement: m.Statement, key: key, meta: rm, known: ok})
				order++
			case models.PartToolResult:
				scanParts(m, p.Parts)
			}
		}
	}
	for _, m := range msgs {
		scanParts(m, m.Parts)
	}

	// window budget: per resource, the last windowSize known,
	// non-system-prompt references get full content. Errored refs
	// surface their failure instead and never consume the window.
	full := map[int]bool{}
	byResource := map[string][]ref{}
	for _, r := range refs {
		if !r.known || r.meta.SystemPrompt || r.meta.LoadError != "" {
			continue
		}
		byResource[r.meta.ResourceID] = append(byResource[r.meta.ResourceID], r)
	}
	// lastFull maps a pointer ref's order to the (statement, revision)
	// of the nearest more recent full injection of the same resource
	type injection struct {
		statement int
		revision  string
	}
	lastFull := map[int]injection{}
	for _, rs := range byResource {
		cut := len(rs) - s.deps.WindowSize
		if cut < 0 {
			cut = 0
		}
		for _, r := range rs[cut:] {
			full[r.order] = true
		}
		if cut > 0 {
			inj := injection{statement: rs[cut].statement, revision: rs[cut].meta.RevisionID}
			for _, r := range rs[:cut] {
				lastFull[r.order] = inj
			}
		}
	}

	// expansion pass
	next := 0
	var expandParts func(parts []models.ContentPart) []models.ContentPart
	expandParts = func(parts []models.ContentPart) []models.ContentPart {
		out := make([]models.ContentPart, 0, len(parts))
		for _, p := range parts {
			switch p.Kind {
			case models.PartResource:
				r := refs[next]
				next++
				out = append(out, s.expandMarker(p, r, full[r.order], lastFull[r.order])...)
			case models.PartToolResult:
				cp := p
				cp.Parts = expandParts(p.Parts)
				out = append(out, cp)
			default:
				out = append(out, p)
			}
		}
		return out
	}

	hydrated := make([]models.Message, len(msgs))
	for i, m := range msgs {
		hm := m
		hm.Parts = expandParts(m.Parts)
		hydrated[i] = hm
	}
	return hydrated
}

// expandMarker turns one resource marker into its hydrated parts.
func (s *Interaction) expandMarker(p models.ContentPart, r ref, isFull bool, inj struct {
	statement int
	revision  string
}) []models.ContentPart {
	if !r.known {
		logger.Warn("hydration_metadata_missing", "interaction", s.meta.ID,
			"resource", p.ResourceID, "revision", p.RevisionID)
		return []models.ContentPart{p}
	}
	rm := r.meta

	if rm.LoadError != "" {
		return []models.ContentPart{
			models.TextPart(fmt.Sprintf("Failed to load resource %s: %s", rm.ResourceID, rm.LoadError)),
			models.TextPart(metadataBlock(rm)),
		}
	}
	if rm.SystemPrompt {
		return []models.ContentPart{models.TextPart(metadataBlock(rm))}
	}
	if !isFull {
		return []models.ContentPart{
			models.TextPart(fmt.Sprintf("Resource %s unchanged since turn %d (revision %s); current content appears later in the conversation.",
				rm.ResourceID, inj.statement, inj.revision)),
			models.TextPart(metadataBlock(rm)),
		}
	}
	if s.deps.MaxResourceBytes > 0 && rm.Size > s.deps.MaxResourceBytes {
		return []models.ContentPart{
			models.TextPart(fmt.Sprintf("Resource %s content omitted: %d bytes exceeds the hydration size limit.", rm.ResourceID, rm.Size)),
			models.TextPart(metadataBlock(rm)),
		}
	}

	content, err := store.GetRevision(r.key)
	if err != nil {
		logger.Warn("hydration_content_missing", "interaction", s.meta.ID, "key", r.key, "error", err)
		return []models.ContentPart{
			models.TextPart(fmt.Sprintf("Resource %s revision %s content is unavailable.", rm.ResourceID, rm.RevisionID)),
			models.TextPart(metadataBlock(rm)),
		}
	}

	if rm.Kind == models.ResourceImage {
		if _, ok := supportedImageTypes[rm.MediaType]; !ok {
			return []models.ContentPart{
				models.TextPart(fmt.Sprintf("Resource %s has unsupported media type %s; content not shown.", rm.ResourceID, rm.MediaType)),
				models.TextPart(metadataBlock(rm)),
			}
		}
		return []models.ContentPart{
			models.TextPart(metadataBlock(rm)),
			{Kind: models.PartImage, MediaType: rm.MediaType, Data: base64.StdEncoding.EncodeToString(content)},
		}
	}

	return []models.ContentPart{
		models.TextPart(metadataBlock(rm)),
		models.TextPart(string(content)),
	}
}

// metadataBlock renders the compact resource header injected alongside
// content or pointers.
func metadataBlock(rm models.ResourceMetadata) string {
	return fmt.Sprintf("<resource id=%q revision=%q uri=%q kind=%q size=%d last_modified=%d>",
		rm.ResourceID, rm.RevisionID, rm.URI, rm.Kind, rm.Size, rm.LastModified)
}
