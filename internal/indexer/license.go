package indexer

import (
	"context"
	"log/slog"

	"github.com/archivetools/indexd/internal/errors"
	"github.com/archivetools/indexd/internal/storage"
)

// LicenseScanner is the external license-scanning collaborator.
type LicenseScanner interface {
	Scan(data []byte) (licenses []string, err error)
}

// LicenseConfig configures the license indexer.
type LicenseConfig struct {
	Tool    *storage.Tool
	Storage storage.IndexerStorage
	Objects ContentGetter
	Scanner LicenseScanner
}

// LicenseIndexer computes license identifiers for content batches.
type LicenseIndexer struct {
	store   storage.IndexerStorage
	objects ContentGetter
	scanner LicenseScanner
	tool    storage.ToolInfo
}

var _ Indexer = (*LicenseIndexer)(nil)

// NewLicenseIndexer resolves the configured tool and fails fast on an
// unresolvable configuration.
func NewLicenseIndexer(ctx context.Context, cfg LicenseConfig) (*LicenseIndexer, error) {
	if cfg.Storage == nil || cfg.Objects == nil || cfg.Scanner == nil {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "license indexer: missing collaborator")
	}
	tool, err := resolveTool(ctx, cfg.Storage, "license", cfg.Tool)
	if err != nil {
		return nil, err
	}
	return &LicenseIndexer{
		store:   cfg.Storage,
		objects: cfg.Objects,
		scanner: cfg.Scanner,
		tool:    tool,
	}, nil
}

func (x *LicenseIndexer) Name() string { return "license" }

// Tool returns the resolved tool identity.
func (x *LicenseIndexer) Tool() storage.ToolInfo { return x.tool }

// Filter returns the ids with no licenses indexed under the configured tool.
func (x *LicenseIndexer) Filter(ctx context.Context, ids []storage.ContentID) ([]storage.ContentID, error) {
	return x.store.LicenseMissing(ctx, pairKeys(ids, x.tool.ID))
}

// Run scans ids for licenses and persists them.
func (x *LicenseIndexer) Run(ctx context.Context, ids []storage.ContentID, policy Policy) error {
	var entries []*storage.LicenseEntry
	for _, id := range ids {
		data, err := x.objects.Get(ctx, id)
		if err != nil {
			slog.Warn("content_fetch_failed",
				slog.String("indexer", x.Name()),
				slog.String("content_id", id.String()),
				slog.String("error", err.Error()))
			continue
		}
		licenses, err := x.scanner.Scan(data)
		if err != nil {
			slog.Warn("license_scan_failed",
				slog.String("content_id", id.String()),
				slog.String("error", err.Error()))
			continue
		}
		for _, license := range licenses {
			entries = append(entries, &storage.LicenseEntry{
				ID:      id,
				License: license,
				ToolID:  x.tool.ID,
			})
		}
	}
	return x.store.LicenseAdd(ctx, entries, policy.ConflictUpdate())
}
