package queue

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/archivetools/indexd/internal/errors"
	"github.com/archivetools/indexd/internal/indexer"
)

// WorkerConfig configures a job-consuming worker.
type WorkerConfig struct {
	// SubjectPrefix is the namespace to subscribe under. Empty means
	// DefaultSubjectPrefix.
	SubjectPrefix string

	// Group is the queue group name. Workers sharing a group split the
	// job stream between them.
	Group string

	// Concurrency caps simultaneously running jobs. Zero means 1.
	Concurrency int
}

// Worker consumes job subjects and dispatches batches to registered
// indexers. One subscription per indexer name; jobs within a worker run
// on a bounded goroutine pool.
type Worker struct {
	nc       *nats.Conn
	registry *indexer.Registry
	cfg      WorkerConfig

	group  *errgroup.Group
	gctx   context.Context
	cancel context.CancelFunc
	subs   []*nats.Subscription
}

// NewWorker creates a worker over an existing connection and registry.
func NewWorker(nc *nats.Conn, registry *indexer.Registry, cfg WorkerConfig) (*Worker, error) {
	if nc == nil || registry == nil {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "worker: missing connection or registry")
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = DefaultSubjectPrefix
	}
	if cfg.Group == "" {
		cfg.Group = "indexd-workers"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Worker{nc: nc, registry: registry, cfg: cfg}, nil
}

// Start subscribes to one subject per registered indexer. It returns once
// subscriptions are in place; job handling happens on the pool.
func (w *Worker) Start(ctx context.Context) error {
	wctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.group, w.gctx = errgroup.WithContext(wctx)
	w.group.SetLimit(w.cfg.Concurrency)

	for _, name := range w.registry.Names() {
		subject := w.cfg.SubjectPrefix + "." + name
		sub, err := w.nc.QueueSubscribe(subject, w.cfg.Group, w.handle)
		if err != nil {
			w.stopSubscriptions()
			cancel()
			return errors.New(errors.ErrCodeQueueConnect,
				"cannot subscribe to "+subject, err)
		}
		w.subs = append(w.subs, sub)
		slog.Info("worker_subscribed",
			slog.String("subject", subject),
			slog.String("group", w.cfg.Group))
	}
	return nil
}

// handle decodes one job message and runs it on the pool. Malformed jobs
// are dropped with a warning; they would never succeed on redelivery.
func (w *Worker) handle(msg *nats.Msg) {
	spec, err := DecodeJobSpec(msg.Data)
	if err != nil {
		slog.Warn("job_rejected",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()))
		return
	}

	ix, ok := w.registry.Get(spec.Task)
	if !ok {
		slog.Warn("job_for_unknown_indexer",
			slog.String("task", spec.Task),
			slog.String("subject", msg.Subject))
		return
	}

	w.group.Go(func() error {
		slog.Info("job_started",
			slog.String("task", spec.Task),
			slog.Int("batch_size", len(spec.IDs)),
			slog.String("policy", string(spec.Policy)))

		if err := ix.Run(w.gctx, spec.IDs, spec.Policy); err != nil {
			// Job failures are logged, not fatal to the worker.
			slog.Error("job_failed",
				slog.String("task", spec.Task),
				slog.String("error", err.Error()))
			return nil
		}

		slog.Info("job_completed",
			slog.String("task", spec.Task),
			slog.Int("batch_size", len(spec.IDs)))
		return nil
	})
}

// Stop drains subscriptions and waits for in-flight jobs.
func (w *Worker) Stop() error {
	w.stopSubscriptions()
	var err error
	if w.group != nil {
		err = w.group.Wait()
	}
	if w.cancel != nil {
		w.cancel()
	}
	return err
}

func (w *Worker) stopSubscriptions() {
	for _, sub := range w.subs {
		_ = sub.Unsubscribe()
	}
	w.subs = nil
}
