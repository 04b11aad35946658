package webbridge

// RegisterLocalResource maps name to the file at path so the page can load
// it as x-local://name. It returns false, and logs, when the file does not
// exist. A name registered twice keeps the last path.
func (w *WebView) RegisterLocalResource(name, path string) bool {
	return w.res.Register(name, path)
}

// UnregisterLocalResource removes name.
func (w *WebView) UnregisterLocalResource(name string) {
	w.res.Unregister(name)
}

// GetRegisteredLocalResource returns the file registered for name, which
// may carry the scheme prefix.
func (w *WebView) GetRegisteredLocalResource(name string) (string, bool) {
	return w.res.Get(name)
}

// ResolveLocalResourceFilePath expands "~" against the app root, strips a
// file:// prefix and checks the file exists.
func (w *WebView) ResolveLocalResourceFilePath(path string) (string, error) {
	return w.res.ResolveFilePath(path)
}

// Resources returns the registry behind the local scheme.
func (w *WebView) Resources() *ResourceRegistry { return w.res }
