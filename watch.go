package webbridge

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cryguy/webbridge/internal/harness"
	"github.com/cryguy/webbridge/internal/log"
)

// watchDebounce collapses the burst of events one save produces.
const watchDebounce = 200 * time.Millisecond

type watchedFile struct {
	file  LocalFile
	style bool
}

// WatchAutoLoadFiles re-injects auto-load scripts and stylesheets into the
// current page whenever their files change, until ctx is done. Only the
// directories of entries registered when it starts are watched.
func (w *WebView) WatchAutoLoadFiles(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dirs := make(map[string]bool)
	for path := range w.watchedFiles() {
		dirs[filepath.Dir(path)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.log.Info().Str(log.FieldEvent, "autoload.watch_started").Int("dirs", len(dirs)).Msg("watching auto-load files")

	changed := make(map[string]bool)
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Str(log.FieldEvent, "autoload.watch_stopped").Msg("auto-load watcher stopped")
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			changed[filepath.Clean(ev.Name)] = true
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			files := w.watchedFiles()
			for path := range changed {
				if f, ok := files[path]; ok {
					w.reinject(ctx, f)
				}
			}
			clear(changed)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Str(log.FieldEvent, "autoload.watch_error").Msg("auto-load watcher error")
		}
	}
}

// watchedFiles maps the resolved path of every auto-load entry to it.
func (w *WebView) watchedFiles() map[string]watchedFile {
	w.mu.Lock()
	scripts := append([]LocalFile(nil), w.autoScript...)
	styles := append([]LocalFile(nil), w.autoStyle...)
	w.mu.Unlock()

	out := make(map[string]watchedFile, len(scripts)+len(styles))
	for _, f := range scripts {
		if p, err := w.res.ResolveFilePath(f.Path); err == nil {
			out[p] = watchedFile{file: f}
		}
	}
	for _, f := range styles {
		if p, err := w.res.ResolveFilePath(f.Path); err == nil {
			out[p] = watchedFile{file: f, style: true}
		}
	}
	return out
}

// reinject replaces the page's copy of f with the file's new contents.
func (w *WebView) reinject(ctx context.Context, f watchedFile) {
	if w.Src() == "" {
		return
	}
	logger := w.log.With().Str(log.FieldResource, f.file.Name).Logger()
	if _, err := w.ExecuteJavaScript(ctx, harness.RemoveElement(harness.ElementID(f.file.Name)), false); err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "autoload.reload_failed").Msg("cannot remove stale element")
		return
	}
	var err error
	if f.style {
		err = w.LoadStyleSheetFiles(ctx, []LocalFile{f.file})
	} else {
		err = w.LoadJavaScriptFiles(ctx, []LocalFile{f.file})
	}
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "autoload.reload_failed").Msg("cannot re-inject changed file")
		return
	}
	logger.Debug().Str(log.FieldEvent, "autoload.reloaded").Msg("re-injected changed file")
}
