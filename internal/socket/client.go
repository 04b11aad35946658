package socket

import (
	"encoding/json"
	"strconv"
	"strings"
)

// clientJS connects a browser document to its session. It defines
// window.__nsSocketBridge, which the bridge bus picks as its transport.
const clientJS = `
(function(window) {
	var SESSION = {{SESSION}};
	var DOC = {{DOC}};
	var document = window.document;
	var queue = [];
	var proto = window.location.protocol === 'https:' ? 'wss:' : 'ws:';
	var ws = new WebSocket(proto + '//' + window.location.host + '/ws?session=' + encodeURIComponent(SESSION));
	var loaded = false;

	function send(msg) {
		var text = JSON.stringify(msg);
		if (ws.readyState === 1) ws.send(text);
		else queue.push(text);
	}

	window.__nsSocketBridge = {
		emit: function(eventName, json) {
			send({ type: 'event', eventName: String(eventName), data: json });
		}
	};

	function evaluate(msg) {
		var value;
		try {
			value = (0, eval)(msg.script);
		} catch (err) {
			send({ type: 'result', id: msg.id, error: {
				message: err && err.message !== undefined ? String(err.message) : String(err),
				stack: err && err.stack ? String(err.stack) : ''
			} });
			return;
		}
		var json;
		try { json = JSON.stringify(value); } catch (err) { json = undefined; }
		send({ type: 'result', id: msg.id, value: json === undefined ? 'null' : json });
	}

	ws.onopen = function() {
		for (var i = 0; i < queue.length; i++) ws.send(queue[i]);
		queue = [];
		if (loaded) reportLoad();
	};

	ws.onmessage = function(ev) {
		var msg;
		try { msg = JSON.parse(ev.data); } catch (err) { return; }
		switch (msg.type) {
		case 'eval': evaluate(msg); break;
		case 'navigate': window.location.href = msg.url; break;
		case 'reload': window.location.reload(); break;
		case 'stop': if (window.stop) window.stop(); break;
		}
	};

	['log', 'info', 'warn', 'error', 'debug'].forEach(function(level) {
		var orig = window.console && window.console[level];
		window.console[level] = function() {
			var parts = [];
			for (var i = 0; i < arguments.length; i++) {
				var a = arguments[i];
				if (typeof a === 'string') parts.push(a);
				else { try { parts.push(JSON.stringify(a)); } catch (err) { parts.push(String(a)); } }
			}
			send({ type: 'console', level: level, message: parts.join(' ') });
			if (orig) orig.apply(window.console, arguments);
		};
	});

	document.addEventListener('click', function(ev) {
		var el = ev.target;
		while (el && el.tagName !== 'A') el = el.parentElement;
		if (!el || !el.href || el.target === '_blank') return;
		var href = el.getAttribute('href') || '';
		if (href.charAt(0) === '#' || href.indexOf('javascript:') === 0) return;
		ev.preventDefault();
		send({ type: 'navigation', url: el.href });
	}, true);

	function reportLoad() {
		send({ type: 'load', phase: 'finished', doc: DOC, url: window.location.href });
		send({ type: 'title', title: document.title || '' });
	}

	window.addEventListener('load', function() {
		loaded = true;
		if (ws.readyState === 1) reportLoad();
		if (window.MutationObserver && document.head) {
			var last = document.title;
			new MutationObserver(function() {
				if (document.title !== last) {
					last = document.title;
					send({ type: 'title', title: last });
				}
			}).observe(document.head, { subtree: true, childList: true, characterData: true });
		}
	});
})(window);
`

func renderClient(sessionID string, doc uint64) string {
	id, _ := json.Marshal(sessionID)
	return strings.NewReplacer(
		"{{SESSION}}", string(id),
		"{{DOC}}", strconv.FormatUint(doc, 10),
	).Replace(clientJS)
}
