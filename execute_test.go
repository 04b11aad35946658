package webbridge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/harness"
)

// answerWith makes the fake page reply to every promise harness with the
// given payloads, in order, on the event the harness reports on.
func answerWith(w *WebView, fv *fakeView, payloads ...any) {
	fv.setEval(func(script string) (any, error) {
		if name := eventNamePattern.FindString(script); name != "" {
			go func() {
				for _, p := range payloads {
					w.OnWebViewEvent(name, p)
				}
			}()
		}
		return "null", nil
	})
}

func TestExecutePromisesEmptyBatch(t *testing.T) {
	w, fv := newFakeWebView(t, core.CapabilityAndroid)

	got, err := w.ExecutePromises(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, fv.recorded())
	assert.Zero(t, pendingListeners(w))
	assert.Zero(t, w.calls.Len())
}

func TestExecuteWithoutView(t *testing.T) {
	w := New(DefaultConfig())
	t.Cleanup(func() { _ = w.Close() })

	_, err := w.ExecuteJavaScript(context.Background(), "1", false)
	assert.ErrorIs(t, err, ErrNoNativeView)
	_, err = w.ExecutePromise(context.Background(), "Promise.resolve(1)", 0)
	assert.ErrorIs(t, err, ErrNoNativeView)
	assert.ErrorIs(t, w.EmitToWebView(context.Background(), "e", nil), ErrNoNativeView)
	assert.Zero(t, pendingListeners(w))
}

func TestExecutePromisesFirstAnswerWins(t *testing.T) {
	w, fv := newFakeWebView(t, core.CapabilityAndroid)
	answerWith(w, fv,
		map[string]any{"data": []any{float64(1), "two"}},
		map[string]any{"err": map[string]any{"message": "too late"}},
	)

	got, err := w.ExecutePromises(testContext(t), []string{"1", "'two'"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), "two"}, got)

	require.Eventually(t, func() bool {
		return pendingListeners(w) == 0 && w.calls.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestExecutePromisesResolvesNonObjectPayload(t *testing.T) {
	w, fv := newFakeWebView(t, core.CapabilityAndroid)
	answerWith(w, fv, "bare")

	got, err := w.ExecutePromise(testContext(t), "x()", time.Second)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestExecutePromisesRejection(t *testing.T) {
	cases := []struct {
		name    string
		payload any
		message string
		fields  map[string]any
	}{
		{"error object", map[string]any{"err": map[string]any{"message": "bad", "stack": "at x", "code": float64(7)}}, "bad", map[string]any{"code": float64(7)}},
		{"null error", map[string]any{"err": nil}, "null", nil},
		{"string error", map[string]any{"err": "nope"}, "nope", nil},
		{"error and data", map[string]any{"err": "nope", "data": 1}, "nope", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, fv := newFakeWebView(t, core.CapabilityAndroid)
			answerWith(w, fv, tc.payload)

			_, err := w.ExecutePromise(testContext(t), "x()", time.Second)
			var we *WebError
			require.ErrorAs(t, err, &we)
			assert.Equal(t, tc.message, we.Message)
			assert.Equal(t, tc.fields, we.Fields)
		})
	}
}

func TestExecutePromisesTimeout(t *testing.T) {
	w, fv := newFakeWebView(t, core.CapabilityAndroid)

	_, err := w.ExecutePromise(testContext(t), "new Promise(function() {})", 30*time.Millisecond)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.EqualError(t, err, "timed out after: 30ms")
	assert.Zero(t, pendingListeners(w))

	// The answer arriving after the timeout is dropped.
	name := eventNamePattern.FindString(fv.recorded()[0])
	require.NotEmpty(t, name)
	assert.NotPanics(t, func() { w.OnWebViewEvent(name, map[string]any{"data": 1}) })
	assert.False(t, w.HasListeners(name))
}

func TestExecutePromisesDefaultTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PromiseTimeout = 20 * time.Millisecond
	w := New(cfg)
	w.Attach(newFakeView(core.CapabilityAndroid))
	t.Cleanup(func() { _ = w.Close() })

	_, err := w.ExecutePromise(testContext(t), "x()", 0)
	assert.EqualError(t, err, "timed out after: 20ms")
}

func TestExecutePromisesInjectionFailure(t *testing.T) {
	w, fv := newFakeWebView(t, core.CapabilityAndroid)
	fv.setEval(func(string) (any, error) {
		return nil, &core.ScriptError{Message: "boom", Stack: "at harness"}
	})

	_, err := w.ExecutePromise(testContext(t), "x()", time.Second)
	var we *WebError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "boom", we.Message)
	assert.Equal(t, "at harness", we.NativeStack)
	assert.Zero(t, pendingListeners(w))
}

func TestExecutePromisesBridgeNotReady(t *testing.T) {
	t.Run("android", func(t *testing.T) {
		w, fv := newFakeWebView(t, core.CapabilityAndroid)
		fv.setEval(func(string) (any, error) {
			return nil, &core.ScriptError{Message: harness.NotReadyMessage}
		})
		_, err := w.ExecutePromise(testContext(t), "x()", time.Second)
		assert.ErrorIs(t, err, ErrBridgeNotReady)
	})
	t.Run("webkit", func(t *testing.T) {
		w, fv := newFakeWebView(t, core.CapabilityWebKit)
		fv.setEval(func(string) (any, error) {
			return `{"message":"nsWebViewBridge is not ready","__bridgeError":true,"__bridgeNotReady":true}`, nil
		})
		_, err := w.ExecutePromise(testContext(t), "x()", time.Second)
		assert.ErrorIs(t, err, ErrBridgeNotReady)
	})
}

func TestExecutePromisesContextCancel(t *testing.T) {
	w, _ := newFakeWebView(t, core.CapabilityAndroid)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := w.ExecutePromise(ctx, "x()", -1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, pendingListeners(w))
	assert.Zero(t, w.calls.Len())
}

func TestDetachRejectsPendingCalls(t *testing.T) {
	w, _ := newFakeWebView(t, core.CapabilityAndroid)

	errc := make(chan error, 1)
	go func() {
		_, err := w.ExecutePromise(context.Background(), "x()", -1)
		errc <- err
	}()
	require.Eventually(t, func() bool { return w.calls.Len() == 1 }, time.Second, 5*time.Millisecond)

	w.Detach()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrDetached)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call survived detach")
	}
	assert.Nil(t, w.View())
}

func TestExecuteJavaScriptWrapping(t *testing.T) {
	t.Run("android passes code through", func(t *testing.T) {
		w, fv := newFakeWebView(t, core.CapabilityAndroid)
		fv.setEval(func(string) (any, error) { return `{"a":1}`, nil })

		got, err := w.ExecuteJavaScript(testContext(t), "obj()", true)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"a": float64(1)}, got)
		assert.Equal(t, []string{"obj()"}, fv.recorded())
	})
	t.Run("webkit stringifies", func(t *testing.T) {
		w, fv := newFakeWebView(t, core.CapabilityWebKit)
		fv.setEval(func(string) (any, error) { return `[1,2]`, nil })

		got, err := w.ExecuteJavaScript(testContext(t), "arr()", true)
		require.NoError(t, err)
		assert.Equal(t, []any{float64(1), float64(2)}, got)
		assert.Equal(t, []string{harness.Stringify("arr()")}, fv.recorded())
	})
	t.Run("webkit raw", func(t *testing.T) {
		w, fv := newFakeWebView(t, core.CapabilityWebKit)
		fv.setEval(func(string) (any, error) { return float64(3), nil })

		got, err := w.ExecuteJavaScript(testContext(t), "3", false)
		require.NoError(t, err)
		assert.Equal(t, float64(3), got)
		assert.Equal(t, []string{"3"}, fv.recorded())
	})
	t.Run("legacy exception", func(t *testing.T) {
		w, fv := newFakeWebView(t, core.CapabilityLegacy)
		fv.setEval(func(string) (any, error) {
			return `{"message":"x is not defined","stack":"at eval","__bridgeError":true}`, nil
		})

		_, err := w.ExecuteJavaScript(testContext(t), "x", true)
		var we *WebError
		require.ErrorAs(t, err, &we)
		assert.Equal(t, "x is not defined", we.Message)
		assert.Equal(t, "at eval", we.NativeStack)
		assert.False(t, errors.Is(err, ErrBridgeNotReady))
	})
}

func TestEmitToWebView(t *testing.T) {
	w, fv := newFakeWebView(t, core.CapabilityAndroid)

	require.NoError(t, w.EmitToWebView(testContext(t), "tap", map[string]any{"x": 1}))
	assert.Equal(t, []string{harness.EmitToWebView("tap", map[string]any{"x": 1})}, fv.recorded())
}

func TestExecutePromisesConcurrentCallsAreIndependent(t *testing.T) {
	w, fv := newFakeWebView(t, core.CapabilityAndroid)
	var n atomic.Int64
	fv.setEval(func(script string) (any, error) {
		name := eventNamePattern.FindString(script)
		v := float64(n.Add(1))
		go w.OnWebViewEvent(name, map[string]any{"data": []any{v}})
		return "null", nil
	})

	const calls = 20
	ctx := testContext(t)
	errc := make(chan error, calls)
	for range calls {
		go func() {
			_, err := w.ExecutePromise(ctx, "x()", time.Second)
			errc <- err
		}()
	}
	for range calls {
		require.NoError(t, <-errc)
	}
	require.Eventually(t, func() bool { return pendingListeners(w) == 0 }, time.Second, 5*time.Millisecond)
}

func TestRejectionShapes(t *testing.T) {
	cases := []struct {
		name   string
		in     any
		msg    string
		stack  string
		fields map[string]any
	}{
		{"nil", nil, "null", "", nil},
		{"string", "bad", "bad", "", nil},
		{"number", float64(3), "3", "", nil},
		{"message wins", map[string]any{"message": "m", "name": "TypeError", "stack": "s"}, "m", "s", map[string]any{"name": "TypeError"}},
		{"name fallback", map[string]any{"message": "", "name": "RangeError"}, "RangeError", "", map[string]any{"name": "RangeError"}},
		{"json fallback", map[string]any{"code": float64(3)}, `{"code":3}`, "", map[string]any{"code": float64(3)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var we *WebError
			require.ErrorAs(t, rejection(tc.in), &we)
			assert.Equal(t, tc.msg, we.Message)
			assert.Equal(t, tc.stack, we.NativeStack)
			assert.Equal(t, tc.fields, we.Fields)
		})
	}
}
