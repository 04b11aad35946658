package webapi

import (
	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// consoleJS builds a console whose methods forward a formatted line to
// __console(level, message).
const consoleJS = `
(function() {
	function fmt(arg) {
		if (typeof arg === 'string') return arg;
		if (arg instanceof Error) return arg.stack ? arg.message + '\n' + arg.stack : String(arg);
		if (typeof arg === 'object' && arg !== null) {
			try { return JSON.stringify(arg); } catch (e) { return String(arg); }
		}
		return String(arg);
	}
	function line(args) {
		var parts = [];
		for (var j = 0; j < args.length; j++) parts.push(fmt(args[j]));
		return parts.join(' ');
	}
	var levels = ['log', 'info', 'warn', 'error', 'debug'];
	var con = {};
	for (var i = 0; i < levels.length; i++) {
		(function(lvl) {
			con[lvl] = function() { __console(lvl, line(arguments)); };
		})(levels[i]);
	}
	con.trace = function() { __console('debug', 'Trace: ' + line(arguments)); };
	con.dir = function(obj) { __console('log', fmt(obj)); };
	con.table = function(data) { __console('log', fmt(data)); };

	var timers = {};
	var counters = {};
	con.time = function(label) { timers[label || 'default'] = performance.now(); };
	con.timeEnd = function(label) {
		var l = label || 'default';
		if (timers[l] === undefined) { con.warn('Timer "' + l + '" does not exist'); return; }
		var elapsed = performance.now() - timers[l];
		delete timers[l];
		con.log(l + ': ' + elapsed.toFixed(3) + 'ms');
	};
	con.count = function(label) {
		var l = label || 'default';
		counters[l] = (counters[l] || 0) + 1;
		con.log(l + ': ' + counters[l]);
	};
	con.countReset = function(label) { counters[label || 'default'] = 0; };
	con.assert = function(cond) {
		if (cond) return;
		var rest = Array.prototype.slice.call(arguments, 1);
		con.error(rest.length ? 'Assertion failed: ' + line(rest) : 'Assertion failed');
	};
	globalThis.console = con;
})();
`

// SetupConsole replaces globalThis.console with one that forwards every
// line to the page host.
func SetupConsole(rt core.JSRuntime, _ *eventloop.EventLoop, host PageHost) error {
	if err := rt.RegisterFunc("__console", func(level, message string) {
		host.Console(level, message)
	}); err != nil {
		return err
	}
	return rt.Eval(consoleJS)
}
