package store

import (
	"colloquy/pkg/logger"
)

func revisionKey(revKey string) string { return "resource:rev:" + revKey }

// SaveRevision stores content for a (resource, revision) pair. The store
// is append-only per key: a second write to an existing key is a no-op,
// since concurrent writers of the same revision must produce identical
// content.
func SaveRevision(revKey string, content []byte) error {
	if db == nil {
		return notOpen()
	}
	if _, err := get(revisionKey(revKey)); err == nil {
		logger.Debug("revision_exists", "key", revKey)
		return nil
	} else if !IsNotFound(err) {
		return err
	}
	if err := set(revisionKey(revKey), content); err != nil {
		logger.Error("save_revision_failed", "key", revKey, "error", err)
		return err
	}
	logger.Debug("revision_saved", "key", revKey, "len", len(content))
	return nil
}

// GetRevision returns the stored content for a (resource, revision) pair.
func GetRevision(revKey string) ([]byte, error) {
	return get(revisionKey(revKey))
}

// HasRevision reports whether content exists for the revision key.
func HasRevision(revKey string) bool {
	_, err := get(revisionKey(revKey))
	return err == nil
}
