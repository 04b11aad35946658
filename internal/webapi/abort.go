package webapi

import (
	"fmt"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// abortJS defines AbortSignal and AbortController on top of the window
// EventTarget, and makes fetch honour init.signal.
const abortJS = `
(function() {
	var g = globalThis;

	function abortReason() {
		return new DOMException('signal is aborted without reason', 'AbortError');
	}

	function AbortSignal() {
		EventTarget.call(this);
		this.aborted = false;
		this.reason = undefined;
		this.onabort = null;
	}
	AbortSignal.prototype = Object.create(EventTarget.prototype);
	AbortSignal.prototype.constructor = AbortSignal;
	AbortSignal.prototype.throwIfAborted = function() {
		if (this.aborted) throw this.reason;
	};
	AbortSignal.prototype.__abort = function(reason) {
		if (this.aborted) return;
		this.aborted = true;
		this.reason = reason === undefined ? abortReason() : reason;
		this.dispatchEvent(new Event('abort'));
	};

	AbortSignal.abort = function(reason) {
		var s = new AbortSignal();
		s.aborted = true;
		s.reason = reason === undefined ? abortReason() : reason;
		return s;
	};
	AbortSignal.timeout = function(ms) {
		var s = new AbortSignal();
		setTimeout(function() {
			s.__abort(new DOMException('signal timed out', 'TimeoutError'));
		}, ms);
		return s;
	};
	AbortSignal.any = function(signals) {
		var s = new AbortSignal();
		for (var i = 0; i < signals.length; i++) {
			if (signals[i].aborted) {
				s.aborted = true;
				s.reason = signals[i].reason;
				return s;
			}
		}
		signals.forEach(function(src) {
			src.addEventListener('abort', function() { s.__abort(src.reason); });
		});
		return s;
	};

	function AbortController() {
		this.signal = new AbortSignal();
	}
	AbortController.prototype.abort = function(reason) {
		this.signal.__abort(reason);
	};

	g.AbortSignal = AbortSignal;
	g.AbortController = AbortController;

	var fetch = g.fetch;
	g.fetch = function(input, init) {
		var signal = init && init.signal;
		if (!signal) return fetch(input, init);
		if (signal.aborted) return Promise.reject(signal.reason);
		return new Promise(function(resolve, reject) {
			var onAbort = function() { reject(signal.reason); };
			signal.addEventListener('abort', onAbort);
			fetch(input, init).then(function(res) {
				signal.removeEventListener('abort', onAbort);
				resolve(res);
			}, function(err) {
				signal.removeEventListener('abort', onAbort);
				reject(err);
			});
		});
	};
})();
`

// SetupAbort installs AbortSignal and AbortController. It expects
// SetupWindow and SetupGlobals to have run.
func SetupAbort(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.Eval(abortJS); err != nil {
		return fmt.Errorf("evaluating abort.js: %w", err)
	}
	return nil
}
