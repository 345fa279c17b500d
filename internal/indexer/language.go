package indexer

import (
	"context"
	"log/slog"

	"github.com/archivetools/indexd/internal/errors"
	"github.com/archivetools/indexd/internal/storage"
)

// LanguageDetector is the external language-detection collaborator.
type LanguageDetector interface {
	DetectLanguage(data []byte) (lang string, err error)
}

// LanguageConfig configures the language indexer.
type LanguageConfig struct {
	Tool     *storage.Tool
	Storage  storage.IndexerStorage
	Objects  ContentGetter
	Detector LanguageDetector
}

// LanguageIndexer computes the programming language of content batches.
type LanguageIndexer struct {
	store    storage.IndexerStorage
	objects  ContentGetter
	detector LanguageDetector
	tool     storage.ToolInfo
}

var _ Indexer = (*LanguageIndexer)(nil)

// NewLanguageIndexer resolves the configured tool and fails fast on an
// unresolvable configuration.
func NewLanguageIndexer(ctx context.Context, cfg LanguageConfig) (*LanguageIndexer, error) {
	if cfg.Storage == nil || cfg.Objects == nil || cfg.Detector == nil {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "language indexer: missing collaborator")
	}
	tool, err := resolveTool(ctx, cfg.Storage, "language", cfg.Tool)
	if err != nil {
		return nil, err
	}
	return &LanguageIndexer{
		store:    cfg.Storage,
		objects:  cfg.Objects,
		detector: cfg.Detector,
		tool:     tool,
	}, nil
}

func (x *LanguageIndexer) Name() string { return "language" }

// Tool returns the resolved tool identity.
func (x *LanguageIndexer) Tool() storage.ToolInfo { return x.tool }

// Filter returns the ids not yet language-indexed under the configured tool.
func (x *LanguageIndexer) Filter(ctx context.Context, ids []storage.ContentID) ([]storage.ContentID, error) {
	return x.store.LanguageMissing(ctx, pairKeys(ids, x.tool.ID))
}

// Run detects languages for ids and persists the results.
func (x *LanguageIndexer) Run(ctx context.Context, ids []storage.ContentID, policy Policy) error {
	entries := make([]*storage.LanguageEntry, 0, len(ids))
	for _, id := range ids {
		data, err := x.objects.Get(ctx, id)
		if err != nil {
			slog.Warn("content_fetch_failed",
				slog.String("indexer", x.Name()),
				slog.String("content_id", id.String()),
				slog.String("error", err.Error()))
			continue
		}
		lang, err := x.detector.DetectLanguage(data)
		if err != nil {
			slog.Warn("language_detection_failed",
				slog.String("content_id", id.String()),
				slog.String("error", err.Error()))
			continue
		}
		entries = append(entries, &storage.LanguageEntry{
			ID:     id,
			Lang:   lang,
			ToolID: x.tool.ID,
		})
	}
	return x.store.LanguageAdd(ctx, entries, policy.ConflictUpdate())
}
