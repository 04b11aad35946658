// Package webapi installs the browser surface a headless page exposes to
// scripts, the native bridge objects of each capability and the source of
// the page-side event bus. Each Setup function installs one slice; the
// page runs them in order on a fresh runtime for every load.
package webapi

import (
	"encoding/json"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// SetupFunc configures a runtime with one slice of the page API.
type SetupFunc func(rt core.JSRuntime, el *eventloop.EventLoop) error

// PageHost is what the installed globals call back into. Load is called
// off the script goroutine; every other method is called on it and must
// not block on the page.
type PageHost interface {
	// Load fetches a resource referenced by the page (script, stylesheet,
	// fetch()) relative to the current URL.
	Load(url string) (string, error)
	Console(level, message string)
	// EmitEvent is the Android native channel: data is a JSON string.
	EmitEvent(eventName, data string)
	// PostMessage is the WebKit message-handler channel.
	PostMessage(message string)
	// Navigate requests a top-level or frame navigation.
	Navigate(url string, nav core.NavigationType, frame bool)
	TitleChanged(title string)
	Alert(message string)
	Confirm(message string) bool
	Prompt(message, defaultText string) (string, bool)
}

// jsString encodes s as a JS string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
