package webbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Evaluate runs code with ExecuteJavaScript and converts the result to T.
func Evaluate[T any](ctx context.Context, w *WebView, code string) (T, error) {
	v, err := w.ExecuteJavaScript(ctx, code, true)
	if err != nil {
		var zero T
		return zero, err
	}
	return convert[T](v)
}

// Await runs code with ExecutePromise and converts what the promise
// resolves to into T.
func Await[T any](ctx context.Context, w *WebView, code string, timeout time.Duration) (T, error) {
	v, err := w.ExecutePromise(ctx, code, timeout)
	if err != nil {
		var zero T
		return zero, err
	}
	return convert[T](v)
}

// convert re-decodes a JSON-shaped value into T.
func convert[T any](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var out T
	b, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("converting result: %w", err)
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, fmt.Errorf("converting %s to %T: %w", b, out, err)
	}
	return out, nil
}
