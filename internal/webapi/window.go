package webapi

import (
	"encoding/json"
	"time"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// windowJS makes globalThis a window: events, dialogs, location, resource
// load callbacks and a minimal fetch.
const windowJS = `
(function() {
	var g = globalThis;
	g.window = g;
	g.self = g;

	function Event(type, init) {
		this.type = String(type);
		this.bubbles = !!(init && init.bubbles);
		this.cancelable = !!(init && init.cancelable);
		this.defaultPrevented = false;
		this.target = null;
		this.currentTarget = null;
		this.timeStamp = g.performance ? g.performance.now() : 0;
		this.__stopped = false;
	}
	Event.prototype.preventDefault = function() { if (this.cancelable) this.defaultPrevented = true; };
	Event.prototype.stopPropagation = function() {};
	Event.prototype.stopImmediatePropagation = function() { this.__stopped = true; };

	function CustomEvent(type, init) {
		Event.call(this, type, init);
		this.detail = init && init.detail !== undefined ? init.detail : null;
	}
	CustomEvent.prototype = Object.create(Event.prototype);
	CustomEvent.prototype.constructor = CustomEvent;

	function ErrorEvent(type, init) {
		Event.call(this, type, init);
		this.message = init && init.message || '';
		this.error = init && init.error;
	}
	ErrorEvent.prototype = Object.create(Event.prototype);
	ErrorEvent.prototype.constructor = ErrorEvent;

	function EventTarget() {}
	EventTarget.prototype.addEventListener = function(type, fn) {
		if (!fn) return;
		var m = this.__listeners || (this.__listeners = {});
		var list = m[type] || (m[type] = []);
		for (var i = 0; i < list.length; i++) if (list[i] === fn) return;
		list.push(fn);
	};
	EventTarget.prototype.removeEventListener = function(type, fn) {
		var m = this.__listeners;
		if (!m || !m[type]) return;
		m[type] = m[type].filter(function(f) { return f !== fn; });
	};
	EventTarget.prototype.dispatchEvent = function(ev) {
		if (!ev.target) ev.target = this;
		ev.currentTarget = this;
		var list = (this.__listeners && this.__listeners[ev.type] || []).slice();
		for (var i = 0; i < list.length && !ev.__stopped; i++) {
			try {
				if (typeof list[i] === 'function') list[i].call(this, ev);
				else if (list[i] && typeof list[i].handleEvent === 'function') list[i].handleEvent(ev);
			} catch (err) {
				g.__reportError(err);
			}
		}
		var handler = this['on' + ev.type];
		if (typeof handler === 'function' && !ev.__stopped) {
			try { handler.call(this, ev); } catch (err) { g.__reportError(err); }
		}
		return !ev.defaultPrevented;
	};

	g.Event = Event;
	g.CustomEvent = CustomEvent;
	g.ErrorEvent = ErrorEvent;
	g.EventTarget = EventTarget;
	g.addEventListener = EventTarget.prototype.addEventListener;
	g.removeEventListener = EventTarget.prototype.removeEventListener;
	g.dispatchEvent = EventTarget.prototype.dispatchEvent;

	var reporting = false;
	g.__reportError = function(err) {
		var msg = err && err.message !== undefined ? err.message : String(err);
		if (typeof console !== 'undefined') console.error('Uncaught ' + (err && err.stack ? msg + '\n' + err.stack : msg));
		if (reporting) return;
		reporting = true;
		try { g.dispatchEvent(new ErrorEvent('error', { message: msg, error: err })); } finally { reporting = false; }
	};

	g.__runScript = function(source) {
		try {
			(0, eval)(source);
			return true;
		} catch (err) {
			g.__reportError(err);
			return false;
		}
	};

	var start = __now();
	g.performance = { now: function() { return __now() - start; }, timeOrigin: start };
	g.navigator = { userAgent: __userAgent, language: 'en-US', onLine: true };

	g.alert = function(msg) { __dialog_alert(msg === undefined ? '' : String(msg)); };
	g.confirm = function(msg) { return __dialog_confirm(msg === undefined ? '' : String(msg)); };
	g.prompt = function(msg, def) {
		return JSON.parse(__dialog_prompt(msg === undefined ? '' : String(msg), def === undefined ? '' : String(def)));
	};

	function parts() {
		var href = g.__location_href || 'about:blank';
		var m = /^([a-zA-Z][a-zA-Z0-9+.-]*:)(?:\/\/([^\/?#]*))?([^?#]*)(\?[^#]*)?(#.*)?$/.exec(href) || [];
		return { href: href, protocol: m[1] || '', host: m[2] || '', pathname: m[3] || '', search: m[4] || '', hash: m[5] || '' };
	}
	var location = {
		assign: function(url) { __nav_request(String(url), 'linkClicked'); },
		replace: function(url) { __nav_request(String(url), 'linkClicked'); },
		reload: function() { __nav_request(parts().href, 'reload'); },
		toString: function() { return parts().href; }
	};
	['protocol', 'host', 'pathname', 'search', 'hash'].forEach(function(k) {
		Object.defineProperty(location, k, { get: function() { return parts()[k]; }, enumerable: true });
	});
	Object.defineProperty(location, 'hostname', { get: function() { return parts().host.replace(/:\d+$/, ''); } });
	Object.defineProperty(location, 'origin', { get: function() { var p = parts(); return p.host ? p.protocol + '//' + p.host : 'null'; } });
	Object.defineProperty(location, 'href', {
		get: function() { return parts().href; },
		set: function(url) { __nav_request(String(url), 'linkClicked'); },
		enumerable: true
	});
	g.location = location;

	g.__loadCallbacks = {};
	g.__load = function(url, cb) {
		var id = __load_start(String(url));
		g.__loadCallbacks[id] = cb;
		return id;
	};
	g.__loadSettle = function(id, ok, body, errMsg) {
		var cb = g.__loadCallbacks[id];
		delete g.__loadCallbacks[id];
		if (cb) cb(ok, body, errMsg);
	};

	if (typeof g.fetch !== 'function') {
		g.fetch = function(input) {
			var url = typeof input === 'string' ? input : (input && input.url) || String(input);
			return new Promise(function(resolve, reject) {
				g.__load(url, function(ok, body, errMsg) {
					if (!ok) { reject(new TypeError('Failed to fetch ' + url + ': ' + errMsg)); return; }
					resolve({
						ok: true,
						status: 200,
						url: url,
						text: function() { return Promise.resolve(body); },
						json: function() { return Promise.resolve().then(function() { return JSON.parse(body); }); }
					});
				});
			});
		};
	}
})();
`

// SetupWindow installs window, events, dialogs, location and resource
// loading. userAgent is reported through navigator.userAgent.
func SetupWindow(rt core.JSRuntime, el *eventloop.EventLoop, host PageHost, userAgent string) error {
	if err := rt.RegisterFunc("__now", func() float64 {
		return float64(time.Now().UnixNano()) / float64(time.Millisecond)
	}); err != nil {
		return err
	}
	if err := rt.SetGlobal("__userAgent", userAgent); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__dialog_alert", func(message string) {
		host.Alert(message)
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__dialog_confirm", func(message string) bool {
		return host.Confirm(message)
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__dialog_prompt", func(message, defaultText string) string {
		text, ok := host.Prompt(message, defaultText)
		if !ok {
			return "null"
		}
		b, _ := json.Marshal(text)
		return string(b)
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__nav_request", func(url, nav string) {
		host.Navigate(url, core.NavigationType(nav), false)
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__load_start", func(url string) int {
		return el.StartLoad(func() (string, error) {
			return host.Load(url)
		})
	}); err != nil {
		return err
	}
	return rt.Eval(windowJS)
}
