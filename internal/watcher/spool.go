// Package watcher feeds the orchestrator from a spool directory.
//
// Upstream processes drop batch files of content ids into the spool; the
// watcher picks each file up once writes have settled, dispatches the ids,
// and archives the file. The debounce window absorbs editors and copy
// tools that emit many write events per file.
package watcher

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/archivetools/indexd/internal/errors"
	"github.com/archivetools/indexd/internal/storage"
)

// Dispatcher receives the ids read from one spool file. The orchestrator
// satisfies this.
type Dispatcher interface {
	Run(ctx context.Context, ids []storage.ContentID) (int, error)
}

// Config configures a spool watcher.
type Config struct {
	// Dir is the watched spool directory.
	Dir string

	// ArchiveDir receives processed files. Empty means delete them.
	ArchiveDir string

	// Debounce is how long a file must stay quiet before processing.
	// Zero means 500ms.
	Debounce time.Duration
}

// SpoolWatcher watches a spool directory and dispatches batch files.
type SpoolWatcher struct {
	cfg        Config
	dispatcher Dispatcher
	fsw        *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool

	wg sync.WaitGroup
}

// New validates the configuration and creates a watcher. The spool
// directory is created if absent.
func New(cfg Config, dispatcher Dispatcher) (*SpoolWatcher, error) {
	if dispatcher == nil {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "spool watcher: missing dispatcher")
	}
	if cfg.Dir == "" {
		return nil, errors.Newf(errors.ErrCodeConfigInvalid, "spool watcher: spool.dir must not be empty")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid,
			"cannot create spool directory "+cfg.Dir, err)
	}
	if cfg.ArchiveDir != "" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			return nil, errors.New(errors.ErrCodeConfigInvalid,
				"cannot create archive directory "+cfg.ArchiveDir, err)
		}
	}
	return &SpoolWatcher{
		cfg:        cfg,
		dispatcher: dispatcher,
		pending:    make(map[string]*time.Timer),
	}, nil
}

// Start begins watching. Files already sitting in the spool are picked up
// immediately; new files are processed after their writes settle.
func (w *SpoolWatcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.New(errors.ErrCodeInternal, "cannot create filesystem watcher", err)
	}
	if err := fsw.Add(w.cfg.Dir); err != nil {
		fsw.Close()
		return errors.New(errors.ErrCodeConfigInvalid,
			"cannot watch spool directory "+w.cfg.Dir, err)
	}
	w.fsw = fsw

	w.wg.Add(1)
	go w.loop(ctx)

	// Catch up on files dropped before the watch was in place.
	entries, err := os.ReadDir(w.cfg.Dir)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				w.schedule(ctx, filepath.Join(w.cfg.Dir, entry.Name()))
			}
		}
	}

	slog.Info("spool_watch_started",
		slog.String("dir", w.cfg.Dir),
		slog.Duration("debounce", w.cfg.Debounce))
	return nil
}

// loop consumes filesystem events until the watcher closes.
func (w *SpoolWatcher) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				w.schedule(ctx, event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("spool_watch_error", slog.String("error", err.Error()))
		}
	}
}

// schedule (re)arms the debounce timer for path. Each write event pushes
// processing out by another window.
func (w *SpoolWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		stopped := w.stopped
		w.mu.Unlock()
		if stopped {
			return
		}
		w.process(ctx, path)
	})
}

// process reads one spool file, dispatches its ids and archives it.
// A malformed file is archived without dispatch so it cannot wedge the
// spool; a dispatch failure leaves the file in place for the next run.
func (w *SpoolWatcher) process(ctx context.Context, path string) {
	ids, err := ParseBatchFile(path)
	if err != nil {
		slog.Warn("spool_file_rejected",
			slog.String("path", path),
			slog.String("error", err.Error()))
		w.archive(path)
		return
	}
	if len(ids) == 0 {
		w.archive(path)
		return
	}

	jobs, err := w.dispatcher.Run(ctx, ids)
	if err != nil {
		slog.Error("spool_dispatch_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}

	slog.Info("spool_file_dispatched",
		slog.String("path", path),
		slog.Int("content_count", len(ids)),
		slog.Int("job_count", jobs))
	w.archive(path)
}

// archive moves the processed file aside, or deletes it when no archive
// directory is configured.
func (w *SpoolWatcher) archive(path string) {
	if w.cfg.ArchiveDir == "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("spool_file_cleanup_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return
	}
	dest := filepath.Join(w.cfg.ArchiveDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil && !os.IsNotExist(err) {
		slog.Warn("spool_file_archive_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

// Stop cancels pending timers and closes the filesystem watch. Safe to
// call multiple times.
func (w *SpoolWatcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	if w.fsw != nil {
		w.fsw.Close()
	}
	w.wg.Wait()
}

// ParseBatchFile reads one spool file: one hex content id per line, with
// blank lines and #-comments ignored. Any undecodable line rejects the
// whole file.
func ParseBatchFile(path string) ([]storage.ContentID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"cannot open spool file "+path, err)
	}
	defer f.Close()

	var ids []storage.ContentID
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		id, err := storage.ParseContentID(text)
		if err != nil {
			return nil, errors.Newf(errors.ErrCodeInvalidInput,
				"%s:%d: invalid content id %q", filepath.Base(path), line, text)
		}
		ids = append(ids, id)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.New(errors.ErrCodeInvalidInput,
			"cannot read spool file "+path, err)
	}
	return ids, nil
}
