package pending

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewAssignsUniqueIDs(t *testing.T) {
	r := NewRegistry("req-")
	seen := make(map[string]bool)
	for range 100 {
		c := r.New(nil, 0)
		require.True(t, strings.HasPrefix(c.ID, "req-"))
		assert.Equal(t, EventNamePrefix+c.ID, c.EventName)
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
	}
	assert.Equal(t, 100, r.Len())
}

func TestFirstSettlementWins(t *testing.T) {
	r := NewRegistry("")
	c := r.New([]string{"x"}, time.Second)
	var hooks int
	c.OnSettle(func() { hooks++ })
	c.Arm()

	assert.True(t, c.Resolve(1))
	assert.False(t, c.Reject(errors.New("late")))
	assert.False(t, c.Resolve(2))

	v, err := c.Wait()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, StateResolved, c.State())
	assert.Equal(t, 1, hooks)
	assert.Zero(t, r.Len())
	_, ok := r.Lookup(c.ID)
	assert.False(t, ok)

	// Hooks added after settlement run immediately.
	c.OnSettle(func() { hooks++ })
	assert.Equal(t, 2, hooks)
}

func TestTimeout(t *testing.T) {
	r := NewRegistry("")
	c := r.New(nil, 20*time.Millisecond)
	c.Arm()
	c.Arm()

	_, err := c.Wait()
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 20*time.Millisecond, te.Duration)
	assert.True(t, te.Timeout())
	assert.EqualError(t, err, "timed out after: 20ms")
	assert.Equal(t, StateTimedOut, c.State())
	assert.False(t, c.Resolve("late"))
}

func TestUnarmedCallWaits(t *testing.T) {
	r := NewRegistry("")
	c := r.New(nil, -1)
	c.Arm()
	select {
	case <-c.Done():
		t.Fatal("unarmed call settled")
	case <-time.After(30 * time.Millisecond):
	}
	c.Reject(errors.New("stop"))
	assert.Equal(t, StateRejected, c.State())
}

func TestRejectAll(t *testing.T) {
	r := NewRegistry("")
	calls := []*Call{r.New(nil, 0), r.New(nil, 0), r.New(nil, 0)}
	calls[0].Resolve("done")

	boom := errors.New("detached")
	r.RejectAll(boom)
	for _, c := range calls[1:] {
		_, err := c.Wait()
		assert.ErrorIs(t, err, boom)
	}
	v, err := calls[0].Wait()
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.Zero(t, r.Len())
}

func TestConcurrentSettlement(t *testing.T) {
	r := NewRegistry("")
	c := r.New(nil, time.Millisecond)
	c.Arm()

	var wg sync.WaitGroup
	wins := make(chan bool, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				wins <- c.Resolve(i)
			} else {
				wins <- c.Reject(errors.New("x"))
			}
		}()
	}
	wg.Wait()
	close(wins)
	n := 0
	for w := range wins {
		if w {
			n++
		}
	}
	<-c.Done()
	// The timer may have won instead.
	assert.LessOrEqual(t, n, 1)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "timed-out", StateTimedOut.String())
	assert.Equal(t, "state(9)", State(9).String())
}
