package webbridge

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/cryguy/webbridge/internal/harness"
	"github.com/cryguy/webbridge/internal/log"
)

// LocalFile is a script or stylesheet file injected into the page under
// a resource name.
type LocalFile struct {
	Name string
	Path string
	// InsertBefore puts a stylesheet first in <head> instead of last.
	InsertBefore bool
}

type autoBlock struct {
	name string
	code string
}

// AutoLoadJavaScriptFile injects the file after every load, and into the
// current page right away if one is loaded. A later call with the same
// name replaces the entry.
func (w *WebView) AutoLoadJavaScriptFile(name, path string) {
	f := LocalFile{Name: name, Path: path}
	w.mu.Lock()
	w.autoScript = replaceFile(w.autoScript, f)
	w.mu.Unlock()
	w.applyNow(func(ctx context.Context) error { return w.LoadJavaScriptFiles(ctx, []LocalFile{f}) })
}

// RemoveAutoLoadJavaScriptFile stops injecting name on future loads.
func (w *WebView) RemoveAutoLoadJavaScriptFile(name string) {
	w.mu.Lock()
	w.autoScript = removeFile(w.autoScript, name)
	w.mu.Unlock()
}

// AutoLoadStyleSheetFile is AutoLoadJavaScriptFile for stylesheets.
func (w *WebView) AutoLoadStyleSheetFile(name, path string, insertBefore bool) {
	f := LocalFile{Name: name, Path: path, InsertBefore: insertBefore}
	w.mu.Lock()
	w.autoStyle = replaceFile(w.autoStyle, f)
	w.mu.Unlock()
	w.applyNow(func(ctx context.Context) error { return w.LoadStyleSheetFiles(ctx, []LocalFile{f}) })
}

// RemoveAutoLoadStyleSheetFile stops injecting name on future loads.
func (w *WebView) RemoveAutoLoadStyleSheetFile(name string) {
	w.mu.Lock()
	w.autoStyle = removeFile(w.autoStyle, name)
	w.mu.Unlock()
}

// AutoExecuteJavaScript runs code, which may return a promise, after
// every load and right away if a page is loaded. Blocks run in the order
// they were added; adding a name again moves it to the end.
func (w *WebView) AutoExecuteJavaScript(code, name string) {
	code = strings.TrimSpace(code)
	w.mu.Lock()
	w.autoBlocks = append(removeBlock(w.autoBlocks, name), autoBlock{name: name, code: code})
	w.mu.Unlock()
	w.applyNow(func(ctx context.Context) error {
		_, err := w.ExecutePromise(ctx, code, 0)
		return err
	})
}

// RemoveAutoExecuteJavaScript drops the block called name.
func (w *WebView) RemoveAutoExecuteJavaScript(name string) {
	w.mu.Lock()
	w.autoBlocks = removeBlock(w.autoBlocks, name)
	w.mu.Unlock()
}

// applyNow runs fn in the background when a page is loaded. Failures are
// only logged.
func (w *WebView) applyNow(fn func(ctx context.Context) error) {
	w.mu.Lock()
	loaded := w.src != "" && w.view != nil
	w.mu.Unlock()
	if !loaded {
		return
	}
	w.goBackground(func(ctx context.Context) {
		if err := fn(ctx); err != nil {
			w.log.Debug().Err(err).Str(log.FieldEvent, "autoload.apply_failed").Msg("applying auto-load entry to the current page failed")
		}
	})
}

// LoadJavaScriptFile injects one script file into the current page.
func (w *WebView) LoadJavaScriptFile(ctx context.Context, name, path string) error {
	return w.LoadJavaScriptFiles(ctx, []LocalFile{{Name: name, Path: path}})
}

// LoadJavaScriptFiles injects script files into the current page, in
// order. Views that intercept the local scheme load each file by URL;
// other views get the file contents inlined. TypeScript and module files
// are compiled first and always inlined.
func (w *WebView) LoadJavaScriptFiles(ctx context.Context, files []LocalFile) error {
	return w.loadFiles(ctx, files, w.scriptCode)
}

// LoadStyleSheetFile injects one stylesheet into the current page.
func (w *WebView) LoadStyleSheetFile(ctx context.Context, name, path string, insertBefore bool) error {
	return w.LoadStyleSheetFiles(ctx, []LocalFile{{Name: name, Path: path, InsertBefore: insertBefore}})
}

// LoadStyleSheetFiles injects stylesheets the way LoadJavaScriptFiles
// injects scripts.
func (w *WebView) LoadStyleSheetFiles(ctx context.Context, files []LocalFile) error {
	return w.loadFiles(ctx, files, w.styleCode)
}

// loadFiles builds the injection code for every file concurrently and
// runs it as one promise batch.
func (w *WebView) loadFiles(ctx context.Context, files []LocalFile, build func(LocalFile, bool) (string, error)) error {
	if len(files) == 0 {
		return nil
	}
	view, err := w.viewOrErr()
	if err != nil {
		return err
	}
	byURL := view.Capability().InterceptsLocalScheme()

	codes := make([]string, len(files))
	g, _ := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			code, err := build(f, byURL)
			if err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
			codes[i] = code
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	_, err = w.ExecutePromises(ctx, codes, 0)
	return err
}

func (w *WebView) scriptCode(f LocalFile, byURL bool) (string, error) {
	if byURL && !needsTransform(f.Path) {
		name := w.res.FixName(f.Name)
		if f.Path != "" {
			w.res.Register(name, f.Path)
		}
		return harness.InjectJavaScriptFile(w.res.URL(name)), nil
	}
	path, source, err := w.readLocal(f.Path)
	if err != nil {
		return "", err
	}
	if needsTransform(path) {
		if source, err = TransformScript(source, path); err != nil {
			return "", err
		}
	}
	return harness.InjectJavaScript(harness.ElementID(f.Name), source), nil
}

func (w *WebView) styleCode(f LocalFile, byURL bool) (string, error) {
	if byURL {
		name := w.res.FixName(f.Name)
		if f.Path != "" {
			w.res.Register(name, f.Path)
		}
		return harness.InjectStyleSheetFile(w.res.URL(name), f.InsertBefore), nil
	}
	_, css, err := w.readLocal(f.Path)
	if err != nil {
		return "", err
	}
	return harness.InjectStyleSheet(harness.ElementID(f.Name), css, f.InsertBefore), nil
}

func (w *WebView) readLocal(path string) (string, string, error) {
	resolved, err := w.res.ResolveFilePath(path)
	if err != nil {
		return "", "", err
	}
	b, err := os.ReadFile(resolved)
	if err != nil {
		return "", "", err
	}
	return resolved, string(b), nil
}

func replaceFile(list []LocalFile, f LocalFile) []LocalFile {
	return append(removeFile(list, f.Name), f)
}

func removeFile(list []LocalFile, name string) []LocalFile {
	out := list[:0:0]
	for _, f := range list {
		if f.Name != name {
			out = append(out, f)
		}
	}
	return out
}

func removeBlock(list []autoBlock, name string) []autoBlock {
	out := list[:0:0]
	for _, b := range list {
		if b.name != name {
			out = append(out, b)
		}
	}
	return out
}
