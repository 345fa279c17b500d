// Package storage persists indexer results keyed by content fingerprint and
// tool id, with per-kind conflict-resolution policies, plus the registry of
// indexer tools.
package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// IDLen is the fixed length in bytes of a content fingerprint.
const IDLen = 20

// ContentID is a fixed-length content fingerprint. Ordering is total
// byte-lexicographic; the hex encoding preserves that order, so hex TEXT
// keys sort identically to the raw bytes.
type ContentID [IDLen]byte

// ParseContentID decodes a hex-encoded content fingerprint.
func ParseContentID(s string) (ContentID, error) {
	var id ContentID
	if len(s) != IDLen*2 {
		return id, fmt.Errorf("content id must be %d hex characters, got %d", IDLen*2, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid content id %q: %w", s, err)
	}
	copy(id[:], raw)
	return id, nil
}

// String returns the hex encoding of the fingerprint.
func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

// Compare returns -1, 0 or 1 ordering ids byte-lexicographically.
func (id ContentID) Compare(other ContentID) int {
	return bytes.Compare(id[:], other[:])
}

// MarshalText implements encoding.TextMarshaler (hex form on the wire).
func (id ContentID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ContentID) UnmarshalText(text []byte) error {
	parsed, err := ParseContentID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Tool identifies an indexer implementation by name, version and
// configuration. Two tools are equal iff all three compare equal;
// configuration is compared structurally, not textually.
type Tool struct {
	Name          string         `json:"name" yaml:"name"`
	Version       string         `json:"version" yaml:"version"`
	Configuration map[string]any `json:"configuration" yaml:"configuration"`
}

// Fingerprint returns a stable digest of the configuration blob.
// encoding/json marshals map keys in sorted order at every nesting level,
// which makes the digest independent of key order.
func (t Tool) Fingerprint() string {
	raw, err := json.Marshal(t.Configuration)
	if err != nil {
		// Configurations come from YAML/JSON decoding and are always
		// marshalable; an unmarshalable value is a programming error.
		panic(fmt.Sprintf("tool configuration not marshalable: %v", err))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// ToolInfo is a registered tool with its storage-assigned id.
type ToolInfo struct {
	ID int64
	Tool
}

// Key addresses one indexer result: (content fingerprint, tool id),
// unique together.
type Key struct {
	ID     ContentID
	ToolID int64
}

// MimetypeEntry is the detected mimetype and encoding for one content.
// Scalar kind: at most one row per (content, tool).
type MimetypeEntry struct {
	ID       ContentID
	Mimetype string
	Encoding string
	ToolID   int64
	Tool     *ToolInfo // resolved on read
}

// LanguageEntry is the detected programming language for one content.
// Scalar kind.
type LanguageEntry struct {
	ID     ContentID
	Lang   string
	ToolID int64
	Tool   *ToolInfo
}

// CtagsEntry is one tagged symbol. Multi-valued kind: many entries per
// (content, tool); duplicates of identical entries are suppressed.
type CtagsEntry struct {
	ID     ContentID
	Name   string
	Kind   string
	Line   int64
	Lang   string
	ToolID int64
	Tool   *ToolInfo
}

// LicenseEntry is one detected license identifier. Multi-valued kind.
type LicenseEntry struct {
	ID      ContentID
	License string
	ToolID  int64
	Tool    *ToolInfo
}

// MetadataEntry is the translated package-metadata document for one
// content. Scalar kind; the payload shape is owned by the translators.
type MetadataEntry struct {
	ID       ContentID
	Metadata json.RawMessage
	ToolID   int64
	Tool     *ToolInfo
}

// ToolRegistry assigns stable ids to tool configurations, deduplicating by
// structural identity. Append-only: tools are never deleted.
type ToolRegistry interface {
	// Register get-or-creates every tool and returns infos aligned with
	// the input. Registering an equal tool twice yields the same id; the
	// operation is race-safe under concurrent registration.
	Register(ctx context.Context, tools []Tool) ([]ToolInfo, error)

	// Lookup returns the registered tool, or nil when never registered.
	// Absence is not an error.
	Lookup(ctx context.Context, tool Tool) (*ToolInfo, error)
}

// IndexerStorage is the idempotent-merge contract indexers rely on.
//
// Missing preserves input order and returns exactly the ids with no stored
// record for the paired tool. Get resolves the full tool per row and
// silently omits unknown ids. Add applies the per-kind conflict policy:
// scalar kinds drop (default) or replace (conflictUpdate) the whole record,
// multi-valued kinds merge elements additively (default) or replace the
// whole element set (conflictUpdate).
type IndexerStorage interface {
	ToolRegistry

	MimetypeMissing(ctx context.Context, keys []Key) ([]ContentID, error)
	MimetypeGet(ctx context.Context, ids []ContentID) ([]*MimetypeEntry, error)
	MimetypeAdd(ctx context.Context, entries []*MimetypeEntry, conflictUpdate bool) error

	LanguageMissing(ctx context.Context, keys []Key) ([]ContentID, error)
	LanguageGet(ctx context.Context, ids []ContentID) ([]*LanguageEntry, error)
	LanguageAdd(ctx context.Context, entries []*LanguageEntry, conflictUpdate bool) error

	CtagsMissing(ctx context.Context, keys []Key) ([]ContentID, error)
	CtagsGet(ctx context.Context, ids []ContentID) ([]*CtagsEntry, error)
	CtagsAdd(ctx context.Context, entries []*CtagsEntry, conflictUpdate bool) error
	// CtagsSearch matches symbol names by substring. Results are ordered
	// by content id ascending; when lastSeen is non-nil only ids strictly
	// greater are returned (keyset pagination).
	CtagsSearch(ctx context.Context, term string, limit int, lastSeen *ContentID) ([]*CtagsEntry, error)

	LicenseMissing(ctx context.Context, keys []Key) ([]ContentID, error)
	LicenseGet(ctx context.Context, ids []ContentID) ([]*LicenseEntry, error)
	LicenseAdd(ctx context.Context, entries []*LicenseEntry, conflictUpdate bool) error

	MetadataMissing(ctx context.Context, keys []Key) ([]ContentID, error)
	MetadataGet(ctx context.Context, ids []ContentID) ([]*MetadataEntry, error)
	MetadataAdd(ctx context.Context, entries []*MetadataEntry, conflictUpdate bool) error

	Close() error
}
