package core

import "errors"

// ScriptError is an exception thrown by page script and reported by a view.
type ScriptError struct {
	Message string
	Stack   string
}

func (e *ScriptError) Error() string { return e.Message }

// ErrPageClosed is returned by a view after Close.
var ErrPageClosed = errors.New("page closed")

// ErrPageCrashed is returned by a view whose script was interrupted. It
// clears on the next navigation.
var ErrPageCrashed = errors.New("page crashed")

// ErrNoHistory is returned by GoBack/GoForward at either end of history.
var ErrNoHistory = errors.New("no history entry")
