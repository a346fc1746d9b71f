package models

// ResourceKind distinguishes text resources from images.
type ResourceKind string

const (
	ResourceText  ResourceKind = "text"
	ResourceImage ResourceKind = "image"
)

// ResourceMetadata describes one immutable revision of a resource
// referenced by an interaction. Identity is (ResourceID, RevisionID).
type ResourceMetadata struct {
	ResourceID   string       `json:"resource_id"`
	RevisionID   string       `json:"revision_id"`
	URI          string       `json:"uri,omitempty"`
	Kind         ResourceKind `json:"kind"`
	MediaType    string       `json:"media_type,omitempty"`
	Size         int64        `json:"size,omitempty"`
	LastModified int64        `json:"last_modified,omitempty"`
	// MessageID is the message that attached this revision.
	MessageID string `json:"message_id,omitempty"`
	// SystemPrompt resources are loaded once and never re-hydrated.
	SystemPrompt bool `json:"system_prompt,omitempty"`
	// LoadError records a failed load; hydration surfaces it instead of content.
	LoadError string `json:"load_error,omitempty"`
}

// RevisionKey builds the canonical lookup key for a resource revision.
func RevisionKey(resourceID, revisionID string) string {
	return resourceID + "@" + revisionID
}
