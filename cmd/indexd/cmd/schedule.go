package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/archivetools/indexd/internal/orchestrator"
	"github.com/archivetools/indexd/internal/queue"
	"github.com/archivetools/indexd/internal/watcher"
)

// newScheduleCmd creates the schedule command.
func newScheduleCmd() *cobra.Command {
	var watch bool
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "schedule [batch-file...]",
		Short: "Submit indexing jobs for content batches",
		Long: `Reads batch files (one hex content id per line) and submits indexing
jobs to the queue for every configured indexer.

With --watch, watches the spool directory instead and dispatches batch
files as they are dropped in.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !watch && len(args) == 0 {
				return fmt.Errorf("provide batch files or --watch")
			}
			return runSchedule(cmd.Context(), cmd, args, watch, dryRun)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Watch the spool directory for batch files")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute jobs without submitting to the queue")
	return cmd
}

func runSchedule(ctx context.Context, cmd *cobra.Command, files []string, watch, dryRun bool) error {
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

	var submitter queue.Submitter
	mem := queue.NewMemorySubmitter()
	if dryRun {
		submitter = mem
	} else {
		nats, err := queue.Connect(cfg.Queue.URL, cfg.Queue.SubjectPrefix)
		if err != nil {
			return err
		}
		defer nats.Close()
		submitter = nats
	}

	o, err := orchestrator.New(registry, submitter, taskConfigs(cfg))
	if err != nil {
		return err
	}

	if watch {
		return runSpool(ctx, o)
	}

	total := 0
	for _, file := range files {
		ids, err := watcher.ParseBatchFile(file)
		if err != nil {
			return err
		}
		n, err := o.Run(ctx, ids)
		total += n
		if err != nil {
			return err
		}
		cmd.Printf("%s: %d ids, %d jobs\n", file, len(ids), n)
	}
	if dryRun {
		cmd.Printf("dry run: %d jobs computed, nothing submitted\n", len(mem.Jobs()))
	} else {
		cmd.Printf("submitted %d jobs\n", total)
	}
	return nil
}

// runSpool watches the spool directory until interrupted.
func runSpool(ctx context.Context, o *orchestrator.Orchestrator) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w, err := watcher.New(watcher.Config{
		Dir:        cfg.Spool.Dir,
		ArchiveDir: cfg.Spool.ArchiveDir,
		Debounce:   cfg.Spool.DebounceDuration(),
	}, o)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	<-ctx.Done()
	return nil
}
