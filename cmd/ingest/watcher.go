package main

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/askdocs/askdocs-backend/engine/domain"
	"github.com/askdocs/askdocs-backend/pkg/metrics"
)

// settleDelay gives a file copied into the drop folder time to finish
// writing before extraction reads it.
const settleDelay = 500 * time.Millisecond

// WatcherDeps holds the collaborators for the drop-folder watcher.
type WatcherDeps struct {
	Dir     string
	Extract func(path string) (string, error)
	Publish func(ctx context.Context, doc domain.Document) error
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// Watcher turns PDFs appearing in a directory into queued ingest jobs.
type Watcher struct {
	deps WatcherDeps
	fsw  *fsnotify.Watcher

	queued  *metrics.Counter
	skipped *metrics.Counter
}

// NewWatcher creates a watcher over deps.Dir.
func NewWatcher(deps WatcherDeps) (*Watcher, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(deps.Dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		deps:    deps,
		fsw:     fsw,
		queued:  deps.Metrics.Counter("ingest_watch_queued_total", "PDFs queued from the drop folder"),
		skipped: deps.Metrics.Counter("ingest_watch_skipped_total", "Drop folder files skipped"),
	}, nil
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run consumes filesystem events until ctx is done. New PDFs are extracted
// and published as ingest jobs; anything unreadable is logged and skipped.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".pdf") {
				continue
			}
			select {
			case <-time.After(settleDelay):
			case <-ctx.Done():
				return
			}
			w.process(ctx, event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.deps.Logger.Error("watch error", "err", err)
		}
	}
}

func (w *Watcher) process(ctx context.Context, path string) {
	text, err := w.deps.Extract(path)
	if err != nil {
		if errors.Is(err, domain.ErrUnreadableDocument) {
			w.deps.Logger.Warn("skipping unreadable pdf", "path", path)
		} else {
			w.deps.Logger.Error("extract failed", "path", path, "err", err)
		}
		w.skipped.Inc()
		return
	}

	name := filepath.Base(path)
	doc := domain.Document{
		ID:         uuid.NewString(),
		Title:      name,
		Source:     name,
		Text:       text,
		UploadedAt: time.Now().UTC(),
	}
	if err := w.deps.Publish(ctx, doc); err != nil {
		w.deps.Logger.Error("queue pdf failed", "path", path, "err", err)
		w.skipped.Inc()
		return
	}
	w.queued.Inc()
	w.deps.Logger.Info("queued pdf", "path", path, "doc_id", doc.ID)
}
