// Package resources defines the narrow load/store contract colloquy has
// with data-source connectors. Only the filesystem connector ships here;
// richer connectors live outside the engine.
package resources

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"colloquy/pkg/models"
)

// Loaded is the result of a connector load: raw content plus the
// metadata the engine records for hydration.
type Loaded struct {
	Content  []byte
	Metadata models.ResourceMetadata
}

// Connector loads resource content by locator.
type Connector interface {
	LoadResource(ctx context.Context, locator string) (*Loaded, error)
	ResourceExists(ctx context.Context, locator string) (bool, error)
}

// ComputeRevision derives the immutable revision id for content.
func ComputeRevision(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:12]
}

// FilesystemConnector serves resources from a root directory.
type FilesystemConnector struct {
	Root string
}

// NewFilesystemConnector returns a connector rooted at dir.
func NewFilesystemConnector(dir string) *FilesystemConnector {
	return &FilesystemConnector{Root: dir}
}

func (c *FilesystemConnector) resolve(locator string) string {
	if filepath.IsAbs(locator) {
		return locator
	}
	return filepath.Join(c.Root, locator)
}

func classify(op Operation, locator string, err error) error {
	switch {
	case os.IsNotExist(err):
		return &Error{Op: op, Locator: locator, Kind: KindNotFound, Err: err}
	case os.IsPermission(err):
		return &Error{Op: op, Locator: locator, Kind: KindPermissionDenied, Err: err}
	default:
		return &Error{Op: op, Locator: locator, Kind: KindIO, Err: err}
	}
}

// LoadResource reads content and builds metadata for the locator. The
// revision id is content-derived so identical content always maps to the
// same (resource, revision) key.
func (c *FilesystemConnector) LoadResource(ctx context.Context, locator string) (*Loaded, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := c.resolve(locator)
	fi, err := os.Stat(path)
	if err != nil {
		return nil, classify(OpStat, locator, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, classify(OpRead, locator, err)
	}
	mt := mime.TypeByExtension(filepath.Ext(path))
	kind := models.ResourceText
	if strings.HasPrefix(mt, "image/") {
		kind = models.ResourceImage
	}
	meta := models.ResourceMetadata{
		ResourceID:   locator,
		RevisionID:   ComputeRevision(content),
		URI:          path,
		Kind:         kind,
		MediaType:    mt,
		Size:         fi.Size(),
		LastModified: fi.ModTime().UTC().UnixNano(),
	}
	return &Loaded{Content: content, Metadata: meta}, nil
}

// ResourceExists reports whether a locator resolves to a readable file.
func (c *FilesystemConnector) ResourceExists(ctx context.Context, locator string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(c.resolve(locator))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, classify(OpStat, locator, err)
}
