package webbridge

import (
	"context"
	"errors"
	"time"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/harness"
	"github.com/cryguy/webbridge/internal/log"
	"github.com/cryguy/webbridge/internal/metrics"
	"github.com/cryguy/webbridge/internal/pending"
)

// ExecuteJavaScript runs code in the page and returns its decoded result.
// With stringifyResult, views that return raw values (WebKit and legacy)
// get code wrapped so the result crosses as JSON and an exception comes
// back as a *WebError. Without it the completion value is returned as the
// view reports it, JSON-decoded when it is a string.
func (w *WebView) ExecuteJavaScript(ctx context.Context, code string, stringifyResult bool) (any, error) {
	start := time.Now()
	view, err := w.viewOrErr()
	if err != nil {
		metrics.RecordCall(metrics.KindJavaScript, metrics.OutcomeNoView, time.Since(start))
		return nil, err
	}

	wrapped := stringifyResult && view.Capability().WrapsResults()
	script := code
	if wrapped {
		script = harness.Stringify(code)
	}

	raw, err := view.Evaluate(ctx, script)
	if err != nil {
		err = scriptError(err)
		metrics.RecordCall(metrics.KindJavaScript, outcome(err), time.Since(start))
		return nil, err
	}
	v := core.ParseResult(raw)
	if wrapped {
		if terr := taggedError(v); terr != nil {
			metrics.RecordCall(metrics.KindJavaScript, metrics.OutcomeRejected, time.Since(start))
			return nil, terr
		}
	}
	metrics.RecordCall(metrics.KindJavaScript, metrics.OutcomeResolved, time.Since(start))
	return v, nil
}

// ExecutePromise runs code, which must evaluate to a promise, and returns
// what it resolves to. See ExecutePromises for timeout handling.
func (w *WebView) ExecutePromise(ctx context.Context, code string, timeout time.Duration) (any, error) {
	results, err := w.ExecutePromises(ctx, []string{code}, timeout)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return results[0], nil
}

// ExecutePromises runs each code in order, each one starting after the
// previous promise settled, and returns all resolved values. The first
// rejection fails the batch.
//
// A zero timeout uses Config.PromiseTimeout; a negative one waits until
// the page answers or ctx is done. An empty batch returns nil at once.
func (w *WebView) ExecutePromises(ctx context.Context, codes []string, timeout time.Duration) ([]any, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	start := time.Now()
	if _, err := w.viewOrErr(); err != nil {
		metrics.RecordCall(metrics.KindPromise, metrics.OutcomeNoView, time.Since(start))
		return nil, err
	}
	if timeout == 0 {
		timeout = w.cfg.PromiseTimeout
	}

	call := w.calls.New(codes, timeout)
	metrics.PendingCalls.Inc()
	call.OnSettle(metrics.PendingCalls.Dec)

	sub := w.Once(call.EventName, func(ev *Event) { settleCall(call, ev.Data) })
	call.OnSettle(sub.Unsubscribe)

	injectCtx, stop := context.WithCancel(ctx)
	call.OnSettle(stop)
	logger := log.WithContext(ctx, w.log)
	logger.Debug().Str(log.FieldEvent, "promise.issued").Str(log.FieldCorrelationID, call.ID).Int("scripts", len(codes)).Dur(log.FieldTimeout, timeout).Msg("executing promises")

	script := harness.Promises(codes, call.EventName)
	go func() {
		if _, err := w.ExecuteJavaScript(injectCtx, script, true); err != nil && injectCtx.Err() == nil {
			call.Reject(err)
		}
	}()
	call.Arm()

	select {
	case <-call.Done():
	case <-ctx.Done():
		call.Reject(ctx.Err())
	}
	v, err := call.Result()

	metrics.RecordCall(metrics.KindPromise, outcome(err), time.Since(start))
	if err != nil {
		logger.Debug().Err(err).Str(log.FieldEvent, "promise.failed").Str(log.FieldCorrelationID, call.ID).Msg("promise call failed")
		return nil, err
	}
	return results(v), nil
}

// EmitToWebView dispatches eventName with data to the page's listeners.
func (w *WebView) EmitToWebView(ctx context.Context, eventName string, data any) error {
	start := time.Now()
	_, err := w.ExecuteJavaScript(ctx, harness.EmitToWebView(eventName, data), false)
	metrics.RecordCall(metrics.KindEmit, outcome(err), time.Since(start))
	if err == nil {
		metrics.RecordEvent(metrics.DirectionOutbound)
	}
	return err
}

// settleCall settles call from a {data} or {err} payload. A payload
// without an err member resolves, including one that is not an object.
func settleCall(call *pending.Call, payload any) {
	obj, _ := payload.(map[string]any)
	if errVal, rejected := obj["err"]; rejected {
		call.Reject(rejection(errVal))
		return
	}
	call.Resolve(obj["data"])
}

// results unpacks the Promise.all array.
func results(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	}
	return []any{v}
}

func outcome(err error) string {
	var timeout *TimeoutError
	switch {
	case err == nil:
		return metrics.OutcomeResolved
	case errors.As(err, &timeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCanceled
	case errors.Is(err, ErrNoNativeView):
		return metrics.OutcomeNoView
	}
	return metrics.OutcomeRejected
}
