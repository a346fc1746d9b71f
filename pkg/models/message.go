package models

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartKind discriminates the typed content parts of a message.
type PartKind string

const (
	PartText       PartKind = "text"
	PartImage      PartKind = "image"
	PartToolUse    PartKind = "tool_use"
	PartToolResult PartKind = "tool_result"
	// PartResource is a compact marker recording that a resource revision
	// was attached at this point; hydration expands it before provider calls.
	PartResource PartKind = "resource"
)

// ContentPart is one typed chunk of message content. Only the fields
// relevant to its Kind are populated.
type ContentPart struct {
	Kind PartKind `json:"kind"`
	Text string   `json:"text,omitempty"`

	// image
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`

	// tool_use
	ToolUseID string         `json:"tool_use_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`

	// tool_result; Parts carries nested content (text, images, resource markers)
	IsError bool          `json:"is_error,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`

	// resource marker
	ResourceID string `json:"resource_id,omitempty"`
	RevisionID string `json:"revision_id,omitempty"`
}

// Message is a single entry in an interaction's append-only log.
type Message struct {
	ID          string        `json:"id"`
	Interaction string        `json:"interaction"`
	Role        Role          `json:"role"`
	Parts       []ContentPart `json:"parts,omitempty"`
	TS          int64         `json:"ts"`
	// Optional parent message ID (branching statements)
	ParentID string `json:"parent_id,omitempty"`
	// Statement index this message belongs to (1-based)
	Statement int `json:"statement,omitempty"`
}

// TextPart builds a plain text content part.
func TextPart(s string) ContentPart { return ContentPart{Kind: PartText, Text: s} }

// ResourcePart builds a resource-attach marker part.
func ResourcePart(resourceID, revisionID string) ContentPart {
	return ContentPart{Kind: PartResource, ResourceID: resourceID, RevisionID: revisionID}
}

// ToolUses returns the message's tool_use parts in order. An assistant
// message may request several tools in one turn.
func (m *Message) ToolUses() []ContentPart {
	var out []ContentPart
	for _, p := range m.Parts {
		if p.Kind == PartToolUse {
			out = append(out, p)
		}
	}
	return out
}
