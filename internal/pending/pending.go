// Package pending correlates host-issued calls with their eventual one-shot
// responses. A Call settles exactly once; whichever of response, timeout
// or cancellation arrives first wins and every later attempt is a no-op.
package pending

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// EventNamePrefix is prepended to a correlation id to form the one-shot
// event name a call listens on.
const EventNamePrefix = "tmp-promise-event-"

// State is the lifecycle state of a Call.
type State int32

const (
	StatePending State = iota
	StateResolved
	StateRejected
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	case StateTimedOut:
		return "timed-out"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// TimeoutError is returned when a call receives no response within its
// deadline.
type TimeoutError struct {
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after: %s", e.Duration)
}

// Timeout reports true so TimeoutError satisfies net.Error-style checks.
func (e *TimeoutError) Timeout() bool { return true }

// Call is one in-flight request awaiting an asynchronous response.
type Call struct {
	ID        string
	EventName string
	Scripts   []string
	Timeout   time.Duration

	reg  *Registry
	done chan struct{}

	mu       sync.Mutex
	state    State
	value    any
	err      error
	timer    *time.Timer
	teardown []func()
}

// OnSettle registers fn to run once when the call settles. If the call is
// already settled fn runs immediately.
func (c *Call) OnSettle(fn func()) {
	c.mu.Lock()
	if c.state != StatePending {
		c.mu.Unlock()
		fn()
		return
	}
	c.teardown = append(c.teardown, fn)
	c.mu.Unlock()
}

// Arm starts the timeout timer. A non-positive Timeout arms nothing.
func (c *Call) Arm() {
	if c.Timeout <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePending || c.timer != nil {
		return
	}
	c.timer = time.AfterFunc(c.Timeout, func() {
		c.settle(StateTimedOut, nil, &TimeoutError{Duration: c.Timeout})
	})
}

// Resolve settles the call with v. It returns false if the call had
// already settled.
func (c *Call) Resolve(v any) bool {
	return c.settle(StateResolved, v, nil)
}

// Reject settles the call with err. It returns false if the call had
// already settled.
func (c *Call) Reject(err error) bool {
	return c.settle(StateRejected, nil, err)
}

func (c *Call) settle(state State, v any, err error) bool {
	c.mu.Lock()
	if c.state != StatePending {
		c.mu.Unlock()
		return false
	}
	c.state = state
	c.value = v
	c.err = err
	timer := c.timer
	hooks := c.teardown
	c.teardown = nil
	c.mu.Unlock()

	// Stop is a no-op when the timer already fired.
	if timer != nil {
		timer.Stop()
	}
	for _, fn := range hooks {
		fn()
	}
	if c.reg != nil {
		c.reg.remove(c)
	}
	close(c.done)
	return true
}

// Done is closed once the call settles.
func (c *Call) Done() <-chan struct{} { return c.done }

// State returns the current state.
func (c *Call) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the settled value and error. It must only be called after
// Done is closed.
func (c *Call) Result() (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.err
}

// Wait blocks until the call settles.
func (c *Call) Wait() (any, error) {
	<-c.done
	return c.Result()
}

// Registry hands out correlation ids and tracks calls until they settle.
type Registry struct {
	prefix string

	mu    sync.Mutex
	calls map[string]*Call
}

// NewRegistry returns a registry whose ids start with prefix.
func NewRegistry(prefix string) *Registry {
	return &Registry{prefix: prefix, calls: make(map[string]*Call)}
}

// New allocates a pending call. The id is the prefix plus a random number,
// re-rolled only while it collides with a live call.
func (r *Registry) New(scripts []string, timeout time.Duration) *Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var id string
	for {
		id = fmt.Sprintf("%s%d", r.prefix, rand.Int64N(1_000_000_000))
		if _, taken := r.calls[id]; !taken {
			break
		}
	}
	c := &Call{
		ID:        id,
		EventName: EventNamePrefix + id,
		Scripts:   scripts,
		Timeout:   timeout,
		reg:       r,
		done:      make(chan struct{}),
	}
	r.calls[id] = c
	return c
}

// Lookup returns the live call with the given id.
func (r *Registry) Lookup(id string) (*Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	return c, ok
}

// Len returns the number of unsettled calls.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// RejectAll rejects every live call with err.
func (r *Registry) RejectAll(err error) {
	r.mu.Lock()
	calls := make([]*Call, 0, len(r.calls))
	for _, c := range r.calls {
		calls = append(calls, c)
	}
	r.mu.Unlock()
	for _, c := range calls {
		c.Reject(err)
	}
}

func (r *Registry) remove(c *Call) {
	r.mu.Lock()
	if r.calls[c.ID] == c {
		delete(r.calls, c.ID)
	}
	r.mu.Unlock()
}
