package core

import (
	"context"
	"fmt"
	"strings"
)

// Capability identifies the page→host channel a view exposes. It is
// resolved once per page and never re-probed per message.
type Capability int

const (
	CapabilityUnknown Capability = iota
	// CapabilityAndroid: native object with emitEvent(name, json); the
	// evaluator hands back the JSON encoding of the completion value.
	CapabilityAndroid
	// CapabilityWebKit: webkit.messageHandlers.nsBridge.postMessage; the
	// evaluator returns whatever the (self-stringifying) script returns.
	CapabilityWebKit
	// CapabilityLegacy: js2ios: iframe handshake followed by a host pull.
	CapabilityLegacy
	// CapabilitySocket: a real browser attached over a websocket.
	CapabilitySocket
)

var capabilityNames = map[Capability]string{
	CapabilityUnknown: "unknown",
	CapabilityAndroid: "android",
	CapabilityWebKit:  "webkit",
	CapabilityLegacy:  "legacy",
	CapabilitySocket:  "socket",
}

func (c Capability) String() string {
	if s, ok := capabilityNames[c]; ok {
		return s
	}
	return fmt.Sprintf("capability(%d)", int(c))
}

// ParseCapability maps a config string onto a Capability.
func ParseCapability(s string) (Capability, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for c, name := range capabilityNames {
		if c != CapabilityUnknown && name == want {
			return c, nil
		}
	}
	return CapabilityUnknown, fmt.Errorf("unknown capability %q", s)
}

// WrapsResults reports whether scripts must stringify their own result and
// smuggle exceptions back as tagged objects.
func (c Capability) WrapsResults() bool {
	return c == CapabilityWebKit || c == CapabilityLegacy
}

// InterceptsLocalScheme reports whether the view can load x-local:// URLs
// directly. Views that cannot get resources inlined instead.
func (c Capability) InterceptsLocalScheme() bool {
	return c != CapabilitySocket
}

// NavigationType describes what triggered a navigation.
type NavigationType string

const (
	NavigationLinkClicked     NavigationType = "linkClicked"
	NavigationFormSubmitted   NavigationType = "formSubmitted"
	NavigationBackForward     NavigationType = "backForward"
	NavigationReload          NavigationType = "reload"
	NavigationFormResubmitted NavigationType = "formResubmitted"
	NavigationOther           NavigationType = "other"
)

// NativeView is the per-platform view the host drives. Implementations
// deliver notifications to the ViewHost they were bound to.
type NativeView interface {
	Capability() Capability
	LoadURL(url string) error
	LoadData(html string) error
	// Evaluate runs script in the page's global scope and returns the raw
	// completion value in the capability's native shape.
	Evaluate(ctx context.Context, script string) (any, error)
	StopLoading()
	Reload() error
	GoBack() error
	GoForward() error
	CanGoBack() bool
	CanGoForward() bool
	Close() error
}

// ViewHost receives notifications from a NativeView. Notifications are
// delivered off the page's script goroutine, in order, so a host may call
// back into the view. Dialog callbacks are the exception: they block the
// page until answered and must not call back into the view.
type ViewHost interface {
	OnLoadStarted(url string, nav NavigationType)
	OnLoadFinished(url string, errText string)
	// OnShouldOverrideURLLoading returns true to cancel the navigation.
	OnShouldOverrideURLLoading(url, method string, nav NavigationType) bool
	OnWebViewEvent(eventName string, data any)
	OnConsole(message string, line int, level string)
	OnTitleChanged(title string)
	OnAlert(message string)
	OnConfirm(message string) bool
	OnPrompt(message, defaultText string) (string, bool)
}

// ResourceResolver maps a local resource name to a file path.
type ResourceResolver interface {
	Resolve(name string) (string, bool)
}
