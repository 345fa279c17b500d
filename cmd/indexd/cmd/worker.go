package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/archivetools/indexd/internal/errors"
	"github.com/archivetools/indexd/internal/queue"
)

// newWorkerCmd creates the worker command.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume and run indexing jobs from the queue",
		Long: `Subscribes to the job subjects for every configured indexer and runs
incoming batches. Workers sharing the configured queue group split the
job stream between them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context())
		},
	}
}

func runWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	objects, err := contentObjects(cfg)
	if err != nil {
		return err
	}
	registry, err := buildRegistry(ctx, cfg, store, objects)
	if err != nil {
		return err
	}

	nc, err := nats.Connect(cfg.Queue.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return errors.New(errors.ErrCodeQueueConnect,
			"cannot connect to queue at "+cfg.Queue.URL, err)
	}
	defer nc.Close()

	worker, err := queue.NewWorker(nc, registry, queue.WorkerConfig{
		SubjectPrefix: cfg.Queue.SubjectPrefix,
		Group:         cfg.Queue.Group,
		Concurrency:   cfg.Queue.Concurrency,
	})
	if err != nil {
		return err
	}
	if err := worker.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return worker.Stop()
}
