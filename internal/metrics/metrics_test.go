package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCall(t *testing.T) {
	c := CallsTotal.WithLabelValues(KindPromise, OutcomeTimeout)
	before := testutil.ToFloat64(c)

	RecordCall(KindPromise, OutcomeTimeout, 500*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(c))
}

func TestRecordEvent(t *testing.T) {
	c := EventsTotal.WithLabelValues(DirectionInbound)
	before := testutil.ToFloat64(c)

	RecordEvent(DirectionInbound)
	RecordEvent(DirectionInbound)

	assert.Equal(t, before+2, testutil.ToFloat64(c))
}

func TestPendingGauge(t *testing.T) {
	start := testutil.ToFloat64(PendingCalls)
	PendingCalls.Inc()
	assert.Equal(t, start+1, testutil.ToFloat64(PendingCalls))
	PendingCalls.Dec()
	assert.Equal(t, start, testutil.ToFloat64(PendingCalls))
}
