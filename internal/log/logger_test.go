package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Level: "debug", Service: "test"})
	t.Cleanup(Discard)

	l := WithComponent("pipeline")
	l.Info().Str(FieldEvent, "call.settled").Msg("done")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pipeline", entry["component"])
	assert.Equal(t, "test", entry["service"])
	assert.Equal(t, "call.settled", entry["event"])
	assert.Equal(t, "done", entry["message"])
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Level: "info"})
	t.Cleanup(Discard)

	ctx := ContextWithCorrelationID(context.Background(), "tmp-promise-event-1")
	ctx = ContextWithSessionID(ctx, "sess-1")
	l := WithContext(ctx, Base())
	l.Info().Msg("x")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "tmp-promise-event-1", entry["correlation_id"])
	assert.Equal(t, "sess-1", entry["session_id"])
}

func TestContextHelpersNil(t *testing.T) {
	//nolint:staticcheck // nil context is part of the contract
	assert.Equal(t, "", CorrelationIDFromContext(nil))
	assert.Equal(t, "", SessionIDFromContext(context.Background()))

	ctx := ContextWithCorrelationID(nil, "id") //nolint:staticcheck
	assert.Equal(t, "id", CorrelationIDFromContext(ctx))
}

func TestDebugFilteredAtInfo(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf, Level: "info"})
	t.Cleanup(Discard)

	l := Base()
	l.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
}
