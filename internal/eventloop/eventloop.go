package eventloop

import (
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cryguy/webbridge/internal/core"
)

// LoadResult holds the outcome of an in-flight resource load. The loading
// goroutine reads the whole body before sending so the loop only passes
// strings to JS.
type LoadResult struct {
	Body string
	Err  error
}

// PendingLoad is an in-flight resource load whose result is delivered to
// the JS callback registered under LoadID in globalThis.__loadCallbacks.
type PendingLoad struct {
	ResultCh <-chan LoadResult
	LoadID   int
}

// timerEntry represents a pending setTimeout or setInterval callback.
// The actual callback is stored in globalThis.__timerCallbacks[id] on the
// JS side. Go only tracks scheduling metadata.
type timerEntry struct {
	deadline time.Time
	interval time.Duration // 0 for setTimeout, >0 for setInterval
	id       int
	cleared  bool
}

// EventLoop manages Go-backed timers for setTimeout/setInterval and
// resource loads that must be resolved on the page's JS goroutine. It is
// long-lived: the page goroutine sleeps until NextDeadline or Wake and
// then calls RunDue.
type EventLoop struct {
	mu           sync.Mutex
	timers       map[int]*timerEntry
	nextID       int
	nextLoadID   int
	pendingLoads []*PendingLoad
	wake         chan struct{}
}

// New creates a new EventLoop.
func New() *EventLoop {
	return &EventLoop{
		timers: make(map[int]*timerEntry),
		wake:   make(chan struct{}, 1),
	}
}

// RegisterTimer creates a timer entry and returns its ID.
// The actual JS callback is stored in globalThis.__timerCallbacks[id].
func (el *EventLoop) RegisterTimer(delay time.Duration, isInterval bool) int {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.nextID++
	id := el.nextID
	entry := &timerEntry{
		deadline: time.Now().Add(delay),
		id:       id,
	}
	if isInterval {
		if delay < 10*time.Millisecond {
			delay = 10 * time.Millisecond // minimum interval
		}
		entry.interval = delay
	}
	el.timers[id] = entry
	return id
}

// ClearTimer cancels a timer by ID.
func (el *EventLoop) ClearTimer(id int) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if t, ok := el.timers[id]; ok {
		t.cleared = true
		delete(el.timers, id)
	}
}

// StartLoad runs fn on its own goroutine and returns the load ID the JS
// side registers its callback under. The loop is woken when fn returns.
func (el *EventLoop) StartLoad(fn func() (string, error)) int {
	ch := make(chan LoadResult, 1)
	el.mu.Lock()
	el.nextLoadID++
	id := el.nextLoadID
	el.pendingLoads = append(el.pendingLoads, &PendingLoad{ResultCh: ch, LoadID: id})
	el.mu.Unlock()

	go func() {
		body, err := fn()
		ch <- LoadResult{Body: body, Err: err}
		el.Notify()
	}()
	return id
}

// Notify wakes the page goroutine. It never blocks.
func (el *EventLoop) Notify() {
	select {
	case el.wake <- struct{}{}:
	default:
	}
}

// Wake is signalled whenever a load completes or Notify is called.
func (el *EventLoop) Wake() <-chan struct{} {
	return el.wake
}

// DrainPendingLoads does non-blocking reads on all pending load channels.
// Each completed load settles its JS callback. Returns true if any load
// was completed.
func (el *EventLoop) DrainPendingLoads(rt core.JSRuntime) bool {
	el.mu.Lock()
	if len(el.pendingLoads) == 0 {
		el.mu.Unlock()
		return false
	}
	pending := el.pendingLoads
	el.pendingLoads = nil
	el.mu.Unlock()

	var remaining []*PendingLoad
	didWork := false
	for _, pl := range pending {
		select {
		case result := <-pl.ResultCh:
			var js string
			if result.Err != nil {
				js = fmt.Sprintf(`globalThis.__loadSettle(%d, false, "", %s)`, pl.LoadID, jsString(result.Err.Error()))
			} else {
				js = fmt.Sprintf(`globalThis.__loadSettle(%d, true, %s, "")`, pl.LoadID, jsString(result.Body))
			}
			_ = rt.Eval(js)
			rt.RunMicrotasks()
			didWork = true
		default:
			remaining = append(remaining, pl)
		}
	}

	el.mu.Lock()
	// Callbacks may have started new loads during resolution.
	el.pendingLoads = append(remaining, el.pendingLoads...)
	el.mu.Unlock()
	return didWork
}

// fireTimer fires a timer callback by invoking the JS-side callback map.
func (el *EventLoop) fireTimer(rt core.JSRuntime, id int) {
	js := fmt.Sprintf(`(function() {
		var entry = globalThis.__timerCallbacks[%d];
		if (!entry) return;
		if (!entry.interval) delete globalThis.__timerCallbacks[%d];
		entry.fn.apply(null, entry.args || []);
	})()`, id, id)
	if err := rt.Eval(js); err != nil {
		_ = rt.Eval(fmt.Sprintf(`typeof globalThis.__reportError === 'function' && globalThis.__reportError(%s)`, jsString(err.Error())))
	}
}

// NextDeadline returns the earliest timer deadline, or false when no
// timer is armed.
func (el *EventLoop) NextDeadline() (time.Time, bool) {
	el.mu.Lock()
	defer el.mu.Unlock()
	var next time.Time
	found := false
	for _, t := range el.timers {
		if t.cleared {
			continue
		}
		if !found || t.deadline.Before(next) {
			next = t.deadline
			found = true
		}
	}
	return next, found
}

// RunDue fires every timer whose deadline has passed and settles all
// completed loads, pumping microtasks after each callback. It returns the
// number of callbacks run. Must be called on the runtime's goroutine.
func (el *EventLoop) RunDue(rt core.JSRuntime) int {
	ran := 0
	for el.DrainPendingLoads(rt) {
		ran++
	}

	now := time.Now()
	el.mu.Lock()
	var due []*timerEntry
	for _, t := range el.timers {
		if !t.cleared && !t.deadline.After(now) {
			due = append(due, t)
		}
	}
	el.mu.Unlock()
	slices.SortFunc(due, func(a, b *timerEntry) int {
		if c := a.deadline.Compare(b.deadline); c != 0 {
			return c
		}
		return a.id - b.id
	})

	for _, t := range due {
		el.mu.Lock()
		if t.cleared {
			el.mu.Unlock()
			continue
		}
		if t.interval > 0 {
			t.deadline = now.Add(t.interval)
		} else {
			delete(el.timers, t.id)
		}
		el.mu.Unlock()

		el.fireTimer(rt, t.id)
		rt.RunMicrotasks()
		ran++
	}
	return ran
}

// HasPending returns true if there are any active timers or pending loads.
func (el *EventLoop) HasPending() bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.timers) > 0 || len(el.pendingLoads) > 0
}

// Reset clears all timers and pending loads. Called when the page
// navigates and its runtime is discarded.
func (el *EventLoop) Reset() {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.timers = make(map[int]*timerEntry)
	el.nextID = 0
	el.pendingLoads = nil
}

// jsString encodes s as a JS string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
