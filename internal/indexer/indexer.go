// Package indexer defines the content-indexer role consumed by the
// orchestrator: presence filtering, batch computation through external
// extractor collaborators, and persistence with a conflict policy.
package indexer

import (
	"context"

	"github.com/archivetools/indexd/internal/errors"
	"github.com/archivetools/indexd/internal/storage"
)

// Policy selects the conflict resolution applied when results are added.
type Policy string

const (
	// PolicyIgnoreDups keeps existing records: scalar adds are dropped,
	// multi-valued adds merge additively. First writer wins.
	PolicyIgnoreDups Policy = "ignore-dups"
	// PolicyUpdateDups overwrites existing records: scalar adds replace,
	// multi-valued adds replace the whole element set. Last writer wins.
	PolicyUpdateDups Policy = "update-dups"
)

// Valid reports whether p is one of the two literal policies.
func (p Policy) Valid() bool {
	return p == PolicyIgnoreDups || p == PolicyUpdateDups
}

// ConflictUpdate maps the policy onto the storage add flag.
func (p Policy) ConflictUpdate() bool {
	return p == PolicyUpdateDups
}

// Indexer is the capability set every indexer exposes to the orchestrator.
//
// Implementations must be safe for concurrent use: Run executes inside
// worker goroutines while Filter is called from the scheduling path.
type Indexer interface {
	// Name is the task name jobs for this indexer are addressed to.
	Name() string

	// Filter returns the subset of ids not yet indexed under the
	// configured tool, preserving input order.
	Filter(ctx context.Context, ids []storage.ContentID) ([]storage.ContentID, error)

	// Run computes results for ids and persists them with the policy's
	// conflict semantics.
	Run(ctx context.Context, ids []storage.ContentID, policy Policy) error
}

// ContentGetter fetches raw content bytes by fingerprint from the object
// storage collaborator.
type ContentGetter interface {
	Get(ctx context.Context, id storage.ContentID) ([]byte, error)
}

// resolveTool registers (get-or-create) the configured tool for an indexer.
// An absent or unresolvable tool configuration is a fatal construction-time
// error: an indexer must never reach Run unconfigured.
func resolveTool(ctx context.Context, registry storage.ToolRegistry, indexerName string, tool *storage.Tool) (storage.ToolInfo, error) {
	if tool == nil || tool.Name == "" || tool.Version == "" {
		return storage.ToolInfo{}, errors.New(errors.ErrCodeToolUnresolvable,
			"missing tool configuration for indexer "+indexerName, nil).
			WithDetail("indexer", indexerName)
	}

	if info, err := registry.Lookup(ctx, *tool); err == nil && info != nil {
		return *info, nil
	}

	infos, err := registry.Register(ctx, []storage.Tool{*tool})
	if err != nil {
		return storage.ToolInfo{}, errors.New(errors.ErrCodeToolUnresolvable,
			"cannot register tool "+tool.Name+" for indexer "+indexerName, err).
			WithDetail("indexer", indexerName).
			WithDetail("tool", tool.Name)
	}
	return infos[0], nil
}

// pairKeys builds storage keys pairing every id with the indexer's tool.
func pairKeys(ids []storage.ContentID, toolID int64) []storage.Key {
	keys := make([]storage.Key, len(ids))
	for i, id := range ids {
		keys[i] = storage.Key{ID: id, ToolID: toolID}
	}
	return keys
}
