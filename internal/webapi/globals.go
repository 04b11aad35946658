package webapi

import (
	"errors"
	"fmt"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// ErrInvalidArg is thrown to page scripts when an argument has the wrong
// type or range.
var ErrInvalidArg = errors.New("invalid argument")

// globalsJS defines DOMException, structuredClone and a queueMicrotask
// fallback for engines that lack one.
const globalsJS = `
(function() {
	var g = globalThis;

	var codes = {
		IndexSizeError: 1, NotFoundError: 8, NotSupportedError: 9, InvalidStateError: 11,
		SyntaxError: 12, InvalidCharacterError: 5, SecurityError: 18, AbortError: 20,
		QuotaExceededError: 22, TimeoutError: 23, DataCloneError: 25
	};
	function DOMException(message, name) {
		var err = new Error(message === undefined ? '' : String(message));
		Object.setPrototypeOf(err, DOMException.prototype);
		err.name = name === undefined ? 'Error' : String(name);
		err.code = codes[err.name] || 0;
		return err;
	}
	DOMException.prototype = Object.create(Error.prototype);
	DOMException.prototype.constructor = DOMException;
	g.DOMException = DOMException;

	function cloneError(what) {
		return new DOMException(what + ' could not be cloned.', 'DataCloneError');
	}

	function clone(v, seen) {
		if (typeof v === 'function') throw cloneError('function');
		if (typeof v === 'symbol') throw cloneError('Symbol');
		if (v === null || typeof v !== 'object') return v;
		if (seen.has(v)) return seen.get(v);
		var out;
		if (v instanceof Date) {
			out = new Date(v.getTime());
		} else if (v instanceof RegExp) {
			out = new RegExp(v.source, v.flags);
		} else if (v instanceof ArrayBuffer) {
			out = v.slice(0);
		} else if (typeof DataView !== 'undefined' && v instanceof DataView) {
			out = new DataView(v.buffer.slice(v.byteOffset, v.byteOffset + v.byteLength));
		} else if (ArrayBuffer.isView(v)) {
			out = new v.constructor(v);
		} else if (v instanceof Error) {
			var Ctor = g[v.name] && g[v.name].prototype instanceof Error ? g[v.name] : Error;
			out = new Ctor(v.message);
			if (v.stack) out.stack = v.stack;
		} else if (v instanceof Map) {
			out = new Map();
			seen.set(v, out);
			v.forEach(function(val, key) { out.set(clone(key, seen), clone(val, seen)); });
			return out;
		} else if (v instanceof Set) {
			out = new Set();
			seen.set(v, out);
			v.forEach(function(val) { out.add(clone(val, seen)); });
			return out;
		} else if (Array.isArray(v)) {
			out = new Array(v.length);
			seen.set(v, out);
			for (var i = 0; i < v.length; i++) if (i in v) out[i] = clone(v[i], seen);
			return out;
		} else if (v instanceof Promise || v instanceof WeakMap || v instanceof WeakSet) {
			throw cloneError(Object.prototype.toString.call(v));
		} else {
			out = {};
			seen.set(v, out);
			Object.keys(v).forEach(function(k) { out[k] = clone(v[k], seen); });
			return out;
		}
		seen.set(v, out);
		return out;
	}

	g.structuredClone = function(value) {
		if (arguments.length === 0) throw new TypeError("structuredClone: 1 argument required, but only 0 present.");
		return clone(value, new Map());
	};

	if (typeof g.queueMicrotask !== 'function') {
		g.queueMicrotask = function(cb) {
			if (typeof cb !== 'function') throw new TypeError('queueMicrotask: callback is not a function');
			Promise.resolve().then(function() {
				try { cb(); } catch (err) { g.__reportError(err); }
			});
		};
	}
})();
`

// SetupGlobals installs DOMException, structuredClone and queueMicrotask.
// It expects SetupWindow to have run.
func SetupGlobals(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.Eval(globalsJS); err != nil {
		return fmt.Errorf("evaluating globals.js: %w", err)
	}
	return nil
}
