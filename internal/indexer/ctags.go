package indexer

import (
	"context"
	"log/slog"

	"github.com/archivetools/indexd/internal/errors"
	"github.com/archivetools/indexd/internal/storage"
)

// Symbol is one tagged symbol produced by the extractor.
type Symbol struct {
	Name string
	Kind string
	Line int64
	Lang string
}

// SymbolExtractor is the external ctags collaborator.
type SymbolExtractor interface {
	Extract(data []byte) ([]Symbol, error)
}

// CtagsConfig configures the ctags indexer.
type CtagsConfig struct {
	Tool      *storage.Tool
	Storage   storage.IndexerStorage
	Objects   ContentGetter
	Extractor SymbolExtractor
}

// CtagsIndexer computes tagged symbols for content batches.
type CtagsIndexer struct {
	store     storage.IndexerStorage
	objects   ContentGetter
	extractor SymbolExtractor
	tool      storage.ToolInfo
}

var _ Indexer = (*CtagsIndexer)(nil)

// NewCtagsIndexer resolves the configured tool and fails fast on an
// unresolvable configuration.
func NewCtagsIndexer(ctx context.Context, cfg CtagsConfig) (*CtagsIndexer, error) {
	if cfg.Storage == nil || cfg.Objects == nil || cfg.Extractor == nil {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "ctags indexer: missing collaborator")
	}
	tool, err := resolveTool(ctx, cfg.Storage, "ctags", cfg.Tool)
	if err != nil {
		return nil, err
	}
	return &CtagsIndexer{
		store:     cfg.Storage,
		objects:   cfg.Objects,
		extractor: cfg.Extractor,
		tool:      tool,
	}, nil
}

func (x *CtagsIndexer) Name() string { return "ctags" }

// Tool returns the resolved tool identity.
func (x *CtagsIndexer) Tool() storage.ToolInfo { return x.tool }

// Filter returns the ids with no symbols indexed under the configured tool.
func (x *CtagsIndexer) Filter(ctx context.Context, ids []storage.ContentID) ([]storage.ContentID, error) {
	return x.store.CtagsMissing(ctx, pairKeys(ids, x.tool.ID))
}

// Run extracts symbols for ids and persists them. One content can yield
// many entries; the add policy governs merge vs replace per content.
func (x *CtagsIndexer) Run(ctx context.Context, ids []storage.ContentID, policy Policy) error {
	var entries []*storage.CtagsEntry
	for _, id := range ids {
		data, err := x.objects.Get(ctx, id)
		if err != nil {
			slog.Warn("content_fetch_failed",
				slog.String("indexer", x.Name()),
				slog.String("content_id", id.String()),
				slog.String("error", err.Error()))
			continue
		}
		symbols, err := x.extractor.Extract(data)
		if err != nil {
			slog.Warn("symbol_extraction_failed",
				slog.String("content_id", id.String()),
				slog.String("error", err.Error()))
			continue
		}
		for _, sym := range symbols {
			entries = append(entries, &storage.CtagsEntry{
				ID:     id,
				Name:   sym.Name,
				Kind:   sym.Kind,
				Line:   sym.Line,
				Lang:   sym.Lang,
				ToolID: x.tool.ID,
			})
		}
	}
	return x.store.CtagsAdd(ctx, entries, policy.ConflictUpdate())
}
