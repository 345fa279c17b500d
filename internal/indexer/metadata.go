package indexer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/archivetools/indexd/internal/errors"
	"github.com/archivetools/indexd/internal/storage"
)

// MetadataTranslator is the external collaborator translating package
// manifests into the common metadata vocabulary. The document shape is
// owned by the translator.
type MetadataTranslator interface {
	Translate(data []byte) (json.RawMessage, error)
}

// MetadataConfig configures the translated-metadata indexer.
type MetadataConfig struct {
	Tool       *storage.Tool
	Storage    storage.IndexerStorage
	Objects    ContentGetter
	Translator MetadataTranslator
}

// MetadataIndexer computes translated package metadata for content batches.
type MetadataIndexer struct {
	store      storage.IndexerStorage
	objects    ContentGetter
	translator MetadataTranslator
	tool       storage.ToolInfo
}

var _ Indexer = (*MetadataIndexer)(nil)

// NewMetadataIndexer resolves the configured tool and fails fast on an
// unresolvable configuration.
func NewMetadataIndexer(ctx context.Context, cfg MetadataConfig) (*MetadataIndexer, error) {
	if cfg.Storage == nil || cfg.Objects == nil || cfg.Translator == nil {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "metadata indexer: missing collaborator")
	}
	tool, err := resolveTool(ctx, cfg.Storage, "metadata", cfg.Tool)
	if err != nil {
		return nil, err
	}
	return &MetadataIndexer{
		store:      cfg.Storage,
		objects:    cfg.Objects,
		translator: cfg.Translator,
		tool:       tool,
	}, nil
}

func (x *MetadataIndexer) Name() string { return "metadata" }

// Tool returns the resolved tool identity.
func (x *MetadataIndexer) Tool() storage.ToolInfo { return x.tool }

// Filter returns the ids with no translated metadata under the configured
// tool.
func (x *MetadataIndexer) Filter(ctx context.Context, ids []storage.ContentID) ([]storage.ContentID, error) {
	return x.store.MetadataMissing(ctx, pairKeys(ids, x.tool.ID))
}

// Run translates manifests for ids and persists the documents. Manifests
// the translator rejects are skipped; they stay eligible for future runs.
func (x *MetadataIndexer) Run(ctx context.Context, ids []storage.ContentID, policy Policy) error {
	entries := make([]*storage.MetadataEntry, 0, len(ids))
	for _, id := range ids {
		data, err := x.objects.Get(ctx, id)
		if err != nil {
			slog.Warn("content_fetch_failed",
				slog.String("indexer", x.Name()),
				slog.String("content_id", id.String()),
				slog.String("error", err.Error()))
			continue
		}
		doc, err := x.translator.Translate(data)
		if err != nil {
			slog.Warn("metadata_translation_failed",
				slog.String("content_id", id.String()),
				slog.String("error", err.Error()))
			continue
		}
		entries = append(entries, &storage.MetadataEntry{
			ID:       id,
			Metadata: doc,
			ToolID:   x.tool.ID,
		})
	}
	return x.store.MetadataAdd(ctx, entries, policy.ConflictUpdate())
}
