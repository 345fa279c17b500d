// Package orchestrator turns incoming content batches into indexing jobs.
// It owns the scheduling policy: which indexers see a batch, whether the
// batch is presence-filtered first, how it is partitioned, and which
// conflict policy the resulting jobs carry.
package orchestrator

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"github.com/archivetools/indexd/internal/errors"
	"github.com/archivetools/indexd/internal/indexer"
	"github.com/archivetools/indexd/internal/queue"
	"github.com/archivetools/indexd/internal/storage"
)

// TaskConfig is the per-indexer scheduling policy.
type TaskConfig struct {
	// BatchSize caps how many ids one job carries. Must be positive.
	BatchSize int `yaml:"batch_size"`

	// CheckPresence filters already-indexed ids out before batching.
	// Filtered runs submit with ignore-dups; unfiltered runs submit with
	// update-dups, since skipping the filter signals intent to recompute.
	CheckPresence bool `yaml:"check_presence"`
}

// Orchestrator dispatches content batches across configured indexer tasks.
type Orchestrator struct {
	registry  *indexer.Registry
	submitter queue.Submitter
	tasks     map[string]TaskConfig
}

// New validates the task table against the registry. Naming an indexer
// that is not registered is a fatal configuration error.
func New(registry *indexer.Registry, submitter queue.Submitter, tasks map[string]TaskConfig) (*Orchestrator, error) {
	if registry == nil || submitter == nil {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "orchestrator: missing registry or submitter")
	}
	if len(tasks) == 0 {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "orchestrator: no tasks configured")
	}
	for name, cfg := range tasks {
		if _, ok := registry.Get(name); !ok {
			return nil, errors.Newf(errors.ErrCodeUnknownIndexer, "unknown indexer %q in task configuration", name)
		}
		if cfg.BatchSize <= 0 {
			return nil, errors.Newf(errors.ErrCodeConfigInvalid, "task %q: batch_size must be positive, got %d", name, cfg.BatchSize)
		}
	}
	return &Orchestrator{
		registry:  registry,
		submitter: submitter,
		tasks:     tasks,
	}, nil
}

// Run schedules ids across all configured tasks and returns the number of
// jobs submitted. Task order is shuffled per run so no task starves when
// runs are cut short. Submission is fire-and-forget; a failure aborts the
// run but already-submitted jobs stand.
func (o *Orchestrator) Run(ctx context.Context, ids []storage.ContentID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	submitted := 0
	for _, name := range o.shuffledTasks() {
		n, err := o.runTask(ctx, name, ids)
		submitted += n
		if err != nil {
			return submitted, err
		}
	}
	return submitted, nil
}

// runTask filters, partitions and submits ids for one task.
func (o *Orchestrator) runTask(ctx context.Context, name string, ids []storage.ContentID) (int, error) {
	cfg := o.tasks[name]
	ix, _ := o.registry.Get(name)

	policy := indexer.PolicyUpdateDups
	scheduled := ids
	if cfg.CheckPresence {
		missing, err := ix.Filter(ctx, ids)
		if err != nil {
			return 0, errors.New(errors.ErrCodeFilterFailed,
				"presence filter failed for task "+name, err).
				WithDetail("task", name)
		}
		scheduled = missing
		policy = indexer.PolicyIgnoreDups
	}

	if len(scheduled) == 0 {
		slog.Debug("task_fully_indexed", slog.String("task", name))
		return 0, nil
	}

	submitted := 0
	for _, batch := range partition(scheduled, cfg.BatchSize) {
		spec := &queue.JobSpec{Task: name, IDs: batch, Policy: policy}
		if err := o.submitter.Submit(ctx, spec); err != nil {
			return submitted, errors.New(errors.ErrCodeSubmission,
				"submission failed for task "+name, err).
				WithDetail("task", name)
		}
		submitted++
	}

	slog.Info("task_scheduled",
		slog.String("task", name),
		slog.Int("content_count", len(scheduled)),
		slog.Int("job_count", submitted),
		slog.String("policy", string(policy)))
	return submitted, nil
}

// shuffledTasks returns the configured task names in random order.
func (o *Orchestrator) shuffledTasks() []string {
	names := make([]string, 0, len(o.tasks))
	for name := range o.tasks {
		names = append(names, name)
	}
	rand.Shuffle(len(names), func(i, j int) {
		names[i], names[j] = names[j], names[i]
	})
	return names
}
