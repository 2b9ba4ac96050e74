// Package intake ingests batch files dropped into a watched directory.
//
// Extractors write one JSON file per batch; the watcher picks it up,
// ingests its evidence and events through the engine, recomputes the
// affected users, and renames the file so a batch is never processed twice.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightd/internal/engine"
	"github.com/fyrsmithlabs/insightd/internal/evidence"
)

const (
	// settleDelay lets a writer finish the file before it is parsed.
	settleDelay = 200 * time.Millisecond

	processedSuffix = ".done"
	failedSuffix    = ".failed"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// Batch is the drop-file format. Evidence and events are independent
// sections; either may be empty.
type Batch struct {
	Evidence []evidence.Item `json:"evidence,omitempty"`
	Events   []engine.Event  `json:"events,omitempty"`

	// Recompute lists user IDs to recompute after ingestion. When empty,
	// every user mentioned in the batch is recomputed.
	Recompute []string `json:"recompute,omitempty"`
}

// Watcher processes batch files from a drop directory.
type Watcher struct {
	dir     string
	engine  *engine.Service
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a watcher over the given drop directory. The directory
// is created if missing.
func NewWatcher(dir string, eng *engine.Service, logger *zap.Logger) (*Watcher, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating intake directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		dir:     dir,
		engine:  eng,
		watcher: fsw,
		logger:  logger,
		stop:    make(chan struct{}),
		pending: make(map[string]*time.Timer),
	}, nil
}

// Start processes any batch files already in the directory, then watches for
// new ones until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}

	// Drain files that arrived before the watcher existed.
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading intake directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isBatchFile(entry.Name()) {
			continue
		}
		w.ProcessFile(ctx, filepath.Join(w.dir, entry.Name()))
	}

	go w.run(ctx)
	w.logger.Info("intake watcher started", zap.String("dir", w.dir))
	return nil
}

// Stop stops the watcher and releases its resources.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()
	})
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !isBatchFile(filepath.Base(event.Name)) {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// schedule debounces a file: successive writes reset its timer so the batch
// is parsed once, after the writer settles.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Reset(settleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.ProcessFile(ctx, path)
	})
}

// ProcessFile ingests one batch file. On success it is renamed with a .done
// suffix; on failure with .failed. The file may already be gone (renamed by
// an earlier event); that is not an error.
func (w *Watcher) ProcessFile(ctx context.Context, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("reading batch file", zap.String("file", path), zap.Error(err))
		}
		return
	}

	var batch Batch
	if err := json.Unmarshal(raw, &batch); err != nil {
		w.logger.Warn("malformed batch file",
			zap.String("file", path), zap.Error(err))
		w.finish(path, failedSuffix)
		return
	}

	var evidenceReport, eventsReport *engine.IngestReport
	if len(batch.Evidence) > 0 {
		if evidenceReport, err = w.engine.IngestEvidence(ctx, batch.Evidence); err != nil {
			w.logger.Error("ingesting batch evidence", zap.String("file", path), zap.Error(err))
			w.finish(path, failedSuffix)
			return
		}
	}
	if len(batch.Events) > 0 {
		if eventsReport, err = w.engine.IngestEvents(ctx, batch.Events); err != nil {
			w.logger.Error("ingesting batch events", zap.String("file", path), zap.Error(err))
			w.finish(path, failedSuffix)
			return
		}
	}

	users := batch.Recompute
	if len(users) == 0 {
		users = batch.AffectedUsers()
	}
	if len(users) > 0 {
		if _, err := w.engine.RecomputeUsers(ctx, users); err != nil {
			w.logger.Error("recomputing batch users", zap.String("file", path), zap.Error(err))
		}
	}

	w.logger.Info("batch processed",
		zap.String("file", filepath.Base(path)),
		zap.Int("evidence_accepted", reportAccepted(evidenceReport)),
		zap.Int("events_accepted", reportAccepted(eventsReport)),
		zap.Int("evidence_rejected", reportRejected(evidenceReport)),
		zap.Int("events_rejected", reportRejected(eventsReport)),
		zap.Strings("recomputed", users))
	w.finish(path, processedSuffix)
}

func (w *Watcher) finish(path, suffix string) {
	if err := os.Rename(path, path+suffix); err != nil && !os.IsNotExist(err) {
		w.logger.Warn("renaming batch file", zap.String("file", path), zap.Error(err))
	}
}

// AffectedUsers collects the distinct users mentioned anywhere in the batch.
func (b *Batch) AffectedUsers() []string {
	seen := make(map[string]bool)
	var users []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			users = append(users, id)
		}
	}
	for i := range b.Evidence {
		add(b.Evidence[i].UserID)
	}
	for i := range b.Events {
		if b.Events[i].Calendar != nil {
			add(b.Events[i].Calendar.UserID)
		}
		if b.Events[i].Activity != nil {
			add(b.Events[i].Activity.UserID)
		}
	}
	return users
}

func isBatchFile(name string) bool {
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}

func reportAccepted(r *engine.IngestReport) int {
	if r == nil {
		return 0
	}
	return r.Accepted
}

func reportRejected(r *engine.IngestReport) int {
	if r == nil {
		return 0
	}
	return len(r.Rejected)
}
