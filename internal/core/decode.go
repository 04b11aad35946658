package core

import "encoding/json"

// DecodeEventData decodes an inbound JSON payload. Malformed input is
// passed through as the raw string; it never fails.
func DecodeEventData(raw string) any {
	if raw == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// ParseResult converts a raw evaluator result into a Go value: nil stays
// nil, non-strings pass through, strings are JSON-decoded with the raw
// string as fallback.
func ParseResult(result any) any {
	s, ok := result.(string)
	if !ok {
		return result
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
