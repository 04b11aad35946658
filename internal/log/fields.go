package log

// Canonical field name constants for structured logging.
const (
	FieldComponent     = "component"
	FieldEvent         = "event"
	FieldCorrelationID = "correlation_id"
	FieldSessionID     = "session_id"
	FieldEventName     = "event_name"
	FieldURL           = "url"
	FieldPath          = "path"
	FieldResource      = "resource"
	FieldCapability    = "capability"
	FieldTimeout       = "timeout"
)
