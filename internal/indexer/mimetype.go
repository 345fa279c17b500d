package indexer

import (
	"context"
	"log/slog"

	"github.com/archivetools/indexd/internal/errors"
	"github.com/archivetools/indexd/internal/storage"
)

// MimetypeDetector is the external mimetype-detection collaborator
// (libmagic or equivalent).
type MimetypeDetector interface {
	Detect(data []byte) (mimetype string, encoding string, err error)
}

// MimetypeConfig configures the mimetype indexer.
type MimetypeConfig struct {
	Tool     *storage.Tool
	Storage  storage.IndexerStorage
	Objects  ContentGetter
	Detector MimetypeDetector
}

// MimetypeIndexer computes mimetype and encoding for content batches.
type MimetypeIndexer struct {
	store    storage.IndexerStorage
	objects  ContentGetter
	detector MimetypeDetector
	tool     storage.ToolInfo
}

var _ Indexer = (*MimetypeIndexer)(nil)

// NewMimetypeIndexer resolves the configured tool and fails fast on an
// unresolvable configuration.
func NewMimetypeIndexer(ctx context.Context, cfg MimetypeConfig) (*MimetypeIndexer, error) {
	if cfg.Storage == nil || cfg.Objects == nil || cfg.Detector == nil {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "mimetype indexer: missing collaborator")
	}
	tool, err := resolveTool(ctx, cfg.Storage, "mimetype", cfg.Tool)
	if err != nil {
		return nil, err
	}
	return &MimetypeIndexer{
		store:    cfg.Storage,
		objects:  cfg.Objects,
		detector: cfg.Detector,
		tool:     tool,
	}, nil
}

func (x *MimetypeIndexer) Name() string { return "mimetype" }

// Tool returns the resolved tool identity.
func (x *MimetypeIndexer) Tool() storage.ToolInfo { return x.tool }

// Filter returns the ids not yet mimetype-indexed under the configured tool.
func (x *MimetypeIndexer) Filter(ctx context.Context, ids []storage.ContentID) ([]storage.ContentID, error) {
	return x.store.MimetypeMissing(ctx, pairKeys(ids, x.tool.ID))
}

// Run detects mimetypes for ids and persists the results. Content missing
// from object storage is skipped with a warning; storage errors propagate.
func (x *MimetypeIndexer) Run(ctx context.Context, ids []storage.ContentID, policy Policy) error {
	entries := make([]*storage.MimetypeEntry, 0, len(ids))
	for _, id := range ids {
		data, err := x.objects.Get(ctx, id)
		if err != nil {
			slog.Warn("content_fetch_failed",
				slog.String("indexer", x.Name()),
				slog.String("content_id", id.String()),
				slog.String("error", err.Error()))
			continue
		}
		mimetype, encoding, err := x.detector.Detect(data)
		if err != nil {
			slog.Warn("mimetype_detection_failed",
				slog.String("content_id", id.String()),
				slog.String("error", err.Error()))
			continue
		}
		entries = append(entries, &storage.MimetypeEntry{
			ID:       id,
			Mimetype: mimetype,
			Encoding: encoding,
			ToolID:   x.tool.ID,
		})
	}
	return x.store.MimetypeAdd(ctx, entries, policy.ConflictUpdate())
}
