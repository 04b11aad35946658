package webapi

import (
	"fmt"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// schedulerJS defines globalThis.scheduler. Priorities are accepted but
// tasks run in delay order on the page's timer queue.
const schedulerJS = `
(function() {
	var priorities = ['user-blocking', 'user-visible', 'background'];

	function aborted(signal) {
		return signal.reason !== undefined ? signal.reason : new DOMException('The operation was aborted.', 'AbortError');
	}

	globalThis.scheduler = {
		postTask: function(callback, options) {
			if (typeof callback !== 'function') {
				return Promise.reject(new TypeError('postTask: callback is not a function'));
			}
			var delay = Math.max(0, Number(options && options.delay) || 0);
			var priority = options && options.priority;
			if (priority !== undefined && priorities.indexOf(priority) < 0) {
				return Promise.reject(new TypeError('postTask: invalid priority ' + priority));
			}
			var signal = options && options.signal;
			return new Promise(function(resolve, reject) {
				if (signal && signal.aborted) {
					reject(aborted(signal));
					return;
				}
				var onAbort;
				var id = setTimeout(function() {
					if (signal) signal.removeEventListener('abort', onAbort);
					try { resolve(callback()); }
					catch (err) { reject(err); }
				}, delay);
				if (signal) {
					onAbort = function() {
						clearTimeout(id);
						reject(aborted(signal));
					};
					signal.addEventListener('abort', onAbort);
				}
			});
		},
		yield: function() {
			return new Promise(function(resolve) { setTimeout(resolve, 0); });
		}
	};
})();
`

// SetupScheduler installs scheduler.postTask and scheduler.yield. It
// expects SetupAbort to have run.
func SetupScheduler(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.Eval(schedulerJS); err != nil {
		return fmt.Errorf("evaluating scheduler.js: %w", err)
	}
	return nil
}
