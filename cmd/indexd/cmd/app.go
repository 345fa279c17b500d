package cmd

import (
	"context"

	"github.com/archivetools/indexd/internal/config"
	"github.com/archivetools/indexd/internal/errors"
	"github.com/archivetools/indexd/internal/indexer"
	"github.com/archivetools/indexd/internal/orchestrator"
	"github.com/archivetools/indexd/internal/storage"
)

// unavailableObjects backs scheduling-only invocations where no object
// directory is configured. Filter never touches objects; Run would.
type unavailableObjects struct{}

func (unavailableObjects) Get(context.Context, storage.ContentID) ([]byte, error) {
	return nil, errors.Newf(errors.ErrCodeConfigInvalid, "storage.objects is not configured")
}

// openStorage opens the configured indexer storage.
func openStorage(c *config.Config) (*storage.Store, error) {
	return storage.Open(c.Storage.Path)
}

// contentObjects returns the object getter, or an erroring stub when no
// object directory is configured.
func contentObjects(c *config.Config) (indexer.ContentGetter, error) {
	if c.Storage.Objects == "" {
		return unavailableObjects{}, nil
	}
	return indexer.NewFSObjects(c.Storage.Objects)
}

// buildRegistry constructs every configured indexer with its built-in
// collaborator and registers it. Tool resolution failures surface here,
// before any scheduling or job handling starts.
func buildRegistry(ctx context.Context, c *config.Config, store *storage.Store, objects indexer.ContentGetter) (*indexer.Registry, error) {
	registry := indexer.NewRegistry()

	for name := range c.Indexers {
		toolCfg := c.Tools[name]
		tool := &storage.Tool{
			Name:          toolCfg.Name,
			Version:       toolCfg.Version,
			Configuration: toolCfg.Configuration,
		}

		var (
			ix  indexer.Indexer
			err error
		)
		switch name {
		case "mimetype":
			ix, err = indexer.NewMimetypeIndexer(ctx, indexer.MimetypeConfig{
				Tool: tool, Storage: store, Objects: objects,
				Detector: indexer.BuiltinMimetypeDetector{},
			})
		case "language":
			ix, err = indexer.NewLanguageIndexer(ctx, indexer.LanguageConfig{
				Tool: tool, Storage: store, Objects: objects,
				Detector: indexer.BuiltinLanguageDetector{},
			})
		case "ctags":
			ix, err = indexer.NewCtagsIndexer(ctx, indexer.CtagsConfig{
				Tool: tool, Storage: store, Objects: objects,
				Extractor: indexer.CtagsCommand{},
			})
		case "license":
			ix, err = indexer.NewLicenseIndexer(ctx, indexer.LicenseConfig{
				Tool: tool, Storage: store, Objects: objects,
				Scanner: indexer.SPDXScanner{},
			})
		case "metadata":
			ix, err = indexer.NewMetadataIndexer(ctx, indexer.MetadataConfig{
				Tool: tool, Storage: store, Objects: objects,
				Translator: indexer.NPMTranslator{},
			})
		default:
			err = errors.Newf(errors.ErrCodeUnknownIndexer, "unknown indexer %q", name)
		}
		if err != nil {
			return nil, err
		}
		if err := registry.Add(ix); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// taskConfigs converts the config's indexer table for the orchestrator.
func taskConfigs(c *config.Config) map[string]orchestrator.TaskConfig {
	tasks := make(map[string]orchestrator.TaskConfig, len(c.Indexers))
	for name, ix := range c.Indexers {
		tasks[name] = orchestrator.TaskConfig{
			BatchSize:     ix.BatchSize,
			CheckPresence: ix.CheckPresence,
		}
	}
	return tasks
}
