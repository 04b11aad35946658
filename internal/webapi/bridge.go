package webapi

// ReadyEvent is dispatched on window each time the bus is installed.
const ReadyEvent = "ns-bridge-ready"

// LegacyScheme prefixes the handshake URL a legacy page navigates a
// transient iframe to.
const LegacyScheme = "js2ios:"

// BridgeJS is the page-side event bus, window.nsWebViewBridge. It is
// injected by the host after every load and replaces any previous bus.
// The outbound transport is chosen once, when the bus is constructed.
const BridgeJS = `
(function(window) {
	var document = window.document;

	function androidTransport() {
		if (typeof androidWebViewBridge === 'undefined' || !androidWebViewBridge) return null;
		return {
			name: 'android',
			send: function(eventName, json) {
				androidWebViewBridge.emitEvent(eventName, json);
			}
		};
	}

	function webkitTransport() {
		var h = window.webkit && window.webkit.messageHandlers && window.webkit.messageHandlers.nsBridge;
		if (!h) return null;
		return {
			name: 'webkit',
			send: function(eventName, json, data) {
				h.postMessage(JSON.stringify({ eventName: eventName, data: data }));
			}
		};
	}

	function socketTransport() {
		var s = window.__nsSocketBridge;
		if (!s) return null;
		return {
			name: 'socket',
			send: function(eventName, json) {
				s.emit(eventName, json);
			}
		};
	}

	function legacyTransport(bridge) {
		return {
			name: 'legacy',
			send: function(eventName, json, data) {
				var resId = ++bridge.nextResponseId;
				bridge.responses[resId] = data;
				var detached = false;
				try {
					var meta = JSON.stringify({ eventName: eventName, resId: resId });
					var frame = document.createElement('iframe');
					frame.setAttribute('src', '` + LegacyScheme + `' + encodeURIComponent(meta));
					document.documentElement.appendChild(frame);
					if (frame.parentNode) {
						frame.parentNode.removeChild(frame);
						detached = true;
					}
				} catch (err) {
					console.error('NSWebViewBridge legacy handshake failed: ' + (err && err.message || err));
				}
				if (!detached) delete bridge.responses[resId];
			}
		};
	}

	function elementIdFromHref(href) {
		return String(href).replace(/^[A-Za-z][A-Za-z0-9+.\-]*:\/\//, '').replace(/[^a-z0-9]/g, '');
	}

	function insertIntoHead(el, insertBefore) {
		var head = document.head;
		if (!head) return false;
		if (insertBefore && head.childElementCount > 0) {
			head.insertBefore(el, head.firstElementChild);
		} else {
			head.appendChild(el);
		}
		return true;
	}

	function detach(el) {
		if (el.parentElement) el.parentElement.removeChild(el);
	}

	function NSWebViewBridge() {
		this.eventListenerMap = {};
		this.responses = {};
		this.nextResponseId = 0;
		this.transport = androidTransport() || webkitTransport() || socketTransport() || legacyTransport(this);
		this.transportName = this.transport.name;
	}

	NSWebViewBridge.prototype.onNativeEvent = function(eventName, data) {
		var events = this.eventListenerMap[eventName];
		if (!events || !events.length) return;
		for (var i = 0; i < events.length; i++) {
			var listener = events[i];
			var res = listener && listener(data);
			if (res === false) break;
		}
	};

	NSWebViewBridge.prototype.on = function(eventName, callback) {
		if (!callback) return;
		var list = this.eventListenerMap[eventName] || (this.eventListenerMap[eventName] = []);
		list.push(callback);
	};

	NSWebViewBridge.prototype.addEventListener = function(eventName, callback) {
		this.on(eventName, callback);
	};

	NSWebViewBridge.prototype.off = function(eventName, callback) {
		if (!eventName) {
			this.eventListenerMap = {};
			return;
		}
		var list = this.eventListenerMap[eventName];
		if (!list) return;
		if (!callback) {
			delete this.eventListenerMap[eventName];
			return;
		}
		list = list.filter(function(cb) { return cb !== callback; });
		if (list.length === 0) {
			delete this.eventListenerMap[eventName];
		} else {
			this.eventListenerMap[eventName] = list;
		}
	};

	NSWebViewBridge.prototype.removeEventListener = function(eventName, callback) {
		return this.off(eventName, callback);
	};

	NSWebViewBridge.prototype.emit = function(eventName, data) {
		var json;
		try {
			json = JSON.stringify(data);
		} catch (err) {
			console.error('NSWebViewBridge cannot serialize ' + eventName + ': ' + (err && err.message || err));
			return;
		}
		if (json === undefined) json = 'null';
		this.transport.send(eventName, json, data);
	};

	NSWebViewBridge.prototype.getUIWebViewResponse = function(resId) {
		var data = this.responses[resId];
		delete this.responses[resId];
		var json = JSON.stringify(data);
		return json === undefined ? 'null' : json;
	};

	NSWebViewBridge.prototype.executePromise = function(promise, eventName) {
		var self = this;
		return Promise.resolve(promise).then(function(data) {
			self.emit(eventName, { data: data });
		}, function(err) {
			self.emitError(err, eventName);
		});
	};

	NSWebViewBridge.prototype.emitError = function(err, eventName) {
		if (eventName === undefined) eventName = 'web-error';
		if (typeof err === 'object' && err && err.message) {
			this.emit(eventName, { err: { message: err.message, stack: err.stack } });
		} else {
			this.emit(eventName, { err: err === undefined ? null : err });
		}
	};

	NSWebViewBridge.prototype.injectJavaScriptFile = function(href) {
		var elId = elementIdFromHref(href);
		if (document.getElementById(elId)) {
			console.log(elId + ' already exists');
			return Promise.resolve();
		}
		return new Promise(function(resolve, reject) {
			var el = document.createElement('script');
			el.async = true;
			el.setAttribute('id', elId);
			el.addEventListener('error', function(error) {
				console.error('Failed to load ' + href);
				detach(el);
				reject(new Error('Failed to load ' + href));
			});
			el.addEventListener('load', function() {
				console.info('Loaded ' + href);
				window.requestAnimationFrame(function() { resolve(); });
			});
			el.src = href;
			document.body.appendChild(el);
		});
	};

	NSWebViewBridge.prototype.injectJavaScript = function(elId, scriptCode) {
		if (document.getElementById(elId)) {
			console.log(elId + ' already exists');
			return Promise.resolve();
		}
		return new Promise(function(resolve) {
			var el = document.createElement('script');
			el.setAttribute('id', elId);
			el.text = scriptCode;
			document.body.appendChild(el);
			resolve();
		});
	};

	NSWebViewBridge.prototype.injectStyleSheetFile = function(href, insertBefore) {
		var elId = elementIdFromHref(href);
		if (document.getElementById(elId)) {
			console.log(elId + ' already exists');
			return Promise.resolve();
		}
		return new Promise(function(resolve, reject) {
			var el = document.createElement('link');
			el.addEventListener('error', function() {
				console.error('Failed to load ' + href);
				detach(el);
				reject(new Error('Failed to load ' + href));
			});
			el.addEventListener('load', function() {
				console.info('Loaded ' + href);
				window.requestAnimationFrame(function() { resolve(); });
			});
			el.setAttribute('id', elId);
			el.setAttribute('rel', 'stylesheet');
			el.setAttribute('type', 'text/css');
			el.setAttribute('href', href);
			if (!insertIntoHead(el, insertBefore)) reject(new Error('document has no head'));
		});
	};

	NSWebViewBridge.prototype.injectStyleSheet = function(elId, stylesheet, insertBefore) {
		if (document.getElementById(elId)) {
			console.log(elId + ' already exists');
			return Promise.resolve();
		}
		return new Promise(function(resolve, reject) {
			var el = document.createElement('style');
			el.textContent = stylesheet;
			el.setAttribute('id', elId);
			if (!insertIntoHead(el, insertBefore)) {
				reject(new Error('document has no head'));
				return;
			}
			resolve();
		});
	};

	window.nsWebViewBridge = new NSWebViewBridge();

	var detail = window.nsWebViewBridge;
	window.dispatchEvent(typeof CustomEvent !== 'undefined'
		? new CustomEvent('` + ReadyEvent + `', { detail: detail })
		: new Event('` + ReadyEvent + `'));
})(typeof window !== 'undefined' ? window : globalThis);
`
