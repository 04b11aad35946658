package webbridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/harness"
	"github.com/cryguy/webbridge/internal/pending"
)

var (
	// ErrNoNativeView is returned by calls made while no view is attached.
	ErrNoNativeView = errors.New("webbridge: no native view attached")
	// ErrBridgeNotReady is returned when a promise call reaches a page
	// that has no nsWebViewBridge installed.
	ErrBridgeNotReady = errors.New("webbridge: nsWebViewBridge is not ready")
	// ErrEmptySrc is the load error of LoadURL("").
	ErrEmptySrc = errors.New("empty src")
	// ErrDetached rejects calls still pending when their view is detached.
	ErrDetached = errors.New("webbridge: view detached")
)

// TimeoutError is returned when a promise call gets no answer in time.
type TimeoutError = pending.TimeoutError

// WebError is an exception raised by page script and carried back to the
// host.
type WebError struct {
	Message string
	// NativeStack is the page-side stack, when the page reported one.
	NativeStack string
	// Fields holds any other properties of the serialized error.
	Fields map[string]any

	cause error
}

func (e *WebError) Error() string { return e.Message }

func (e *WebError) Unwrap() error { return e.cause }

// rejection rebuilds the err member of a promise payload. Objects use
// message, then name, then their JSON text; anything else its string form.
func rejection(v any) error {
	obj, ok := v.(map[string]any)
	if !ok {
		if v == nil {
			return &WebError{Message: "null"}
		}
		return &WebError{Message: fmt.Sprint(v)}
	}
	e := &WebError{}
	switch {
	case truthy(obj["message"]):
		e.Message = fmt.Sprint(obj["message"])
	case truthy(obj["name"]):
		e.Message = fmt.Sprint(obj["name"])
	default:
		b, _ := json.Marshal(obj)
		e.Message = string(b)
	}
	if stack, ok := obj["stack"].(string); ok {
		e.NativeStack = stack
	}
	for k, val := range obj {
		switch k {
		case "message", "stack":
			continue
		}
		if e.Fields == nil {
			e.Fields = make(map[string]any)
		}
		e.Fields[k] = val
	}
	return e
}

// scriptError converts an evaluator failure. Anything other than a page
// exception is returned unchanged.
func scriptError(err error) error {
	var se *core.ScriptError
	if !errors.As(err, &se) {
		return err
	}
	e := &WebError{Message: se.Message, NativeStack: se.Stack}
	if se.Message == harness.NotReadyMessage {
		e.cause = ErrBridgeNotReady
	}
	return e
}

// taggedError rebuilds an exception smuggled out by the stringify
// wrapper. It returns nil when v is an ordinary result.
func taggedError(v any) error {
	obj, ok := v.(map[string]any)
	if !ok || obj[harness.ErrorTag] != true {
		return nil
	}
	e := &WebError{}
	e.Message, _ = obj["message"].(string)
	e.NativeStack, _ = obj["stack"].(string)
	if obj[harness.NotReadyTag] == true {
		e.cause = ErrBridgeNotReady
	}
	return e
}

// truthy mirrors JS truthiness for decoded JSON values.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	}
	return true
}
