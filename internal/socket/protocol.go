package socket

// Frame types sent by the host.
const (
	FrameEval     = "eval"
	FrameNavigate = "navigate"
	FrameReload   = "reload"
	FrameStop     = "stop"
)

// Frame types sent by the page.
const (
	FrameResult     = "result"
	FrameEvent      = "event"
	FrameLoad       = "load"
	FrameConsole    = "console"
	FrameTitle      = "title"
	FrameNavigation = "navigation"
)

// Load phases.
const (
	PhaseStarted  = "started"
	PhaseFinished = "finished"
)

// Frame is one websocket text message in either direction. Value and Data
// carry JSON text so the page's encoding reaches the host untouched.
type Frame struct {
	Type      string      `json:"type"`
	ID        string      `json:"id,omitempty"`
	Script    string      `json:"script,omitempty"`
	URL       string      `json:"url,omitempty"`
	Value     *string     `json:"value,omitempty"`
	Error     *FrameError `json:"error,omitempty"`
	EventName string      `json:"eventName,omitempty"`
	Data      string      `json:"data,omitempty"`
	Phase     string      `json:"phase,omitempty"`
	Doc       uint64      `json:"doc,omitempty"`
	Level     string      `json:"level,omitempty"`
	Message   string      `json:"message,omitempty"`
	Line      int         `json:"line,omitempty"`
	Title     string      `json:"title,omitempty"`
}

// FrameError is an exception thrown by an evaluated script.
type FrameError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}
