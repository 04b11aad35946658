package webapi

import (
	"fmt"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// unhandledRejectionJS provides best-effort unhandled rejection tracking.
// Engines give no host hook here, so a rejection is tracked when handed to
// __trackRejection; if no handler is attached through then or catch by the
// next microtask, window gets an 'unhandledrejection' event and, unless a
// listener cancels it, the console reports it as a browser would.
const unhandledRejectionJS = `
(function() {
	var g = globalThis;

	function PromiseRejectionEvent(type, init) {
		Event.call(this, type, { cancelable: true });
		this.promise = init && init.promise || null;
		this.reason = init ? init.reason : undefined;
	}
	PromiseRejectionEvent.prototype = Object.create(Event.prototype);
	PromiseRejectionEvent.prototype.constructor = PromiseRejectionEvent;
	g.PromiseRejectionEvent = PromiseRejectionEvent;

	var pending = new Map();
	var nextID = 0;

	function handled(p) {
		if (p.__rejectionId !== undefined) pending.delete(p.__rejectionId);
	}
	var then = Promise.prototype.then;
	Promise.prototype.then = function(onFulfilled, onRejected) {
		if (typeof onRejected === 'function') handled(this);
		return then.call(this, onFulfilled, onRejected);
	};
	var katch = Promise.prototype.catch;
	Promise.prototype.catch = function(onRejected) {
		if (typeof onRejected === 'function') handled(this);
		return katch.call(this, onRejected);
	};

	g.__trackRejection = function(promise, reason) {
		var id = ++nextID;
		try {
			Object.defineProperty(promise, '__rejectionId', { value: id, configurable: true });
		} catch (e) {
			return;
		}
		pending.set(id, true);
		queueMicrotask(function() {
			if (!pending.has(id)) return;
			pending.delete(id);
			var ev = new PromiseRejectionEvent('unhandledrejection', { promise: promise, reason: reason });
			if (g.dispatchEvent(ev) && typeof console !== 'undefined') {
				var msg = reason && reason.message !== undefined ? reason.message : String(reason);
				console.error('Uncaught (in promise) ' + msg);
			}
		});
	};
})();
`

// SetupUnhandledRejection installs PromiseRejectionEvent and rejection
// tracking. It expects SetupWindow and SetupGlobals to have run.
func SetupUnhandledRejection(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.Eval(unhandledRejectionJS); err != nil {
		return fmt.Errorf("evaluating unhandledrejection.js: %w", err)
	}
	return nil
}
