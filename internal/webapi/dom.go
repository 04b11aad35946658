package webapi

import (
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/dom"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// documentJS wraps Go-held nodes in script objects. Wrappers are cached
// per node id so listeners and expando properties survive lookups.
const documentJS = `
(function() {
	var g = globalThis;
	var cache = {};

	function wrap(id) {
		if (!id) return null;
		var n = cache[id];
		if (n) return n;
		var type = __dom_nodeType(id);
		if (type === 9) n = new Document(id);
		else if (type === 1) n = new Element(id);
		else n = new Node(id);
		cache[id] = n;
		return n;
	}
	function wrapAll(json) {
		return JSON.parse(json).map(wrap);
	}
	function idOf(node) {
		if (!node || !node.__id) throw new TypeError('parameter is not of type Node');
		return node.__id;
	}

	function activate(json) {
		var ids = JSON.parse(json);
		for (var i = 0; i < ids.length; i++) startElement(wrap(ids[i]));
	}

	function fire(el, type) {
		el.dispatchEvent(new Event(type));
	}

	function startElement(el) {
		switch (el.localName) {
		case 'script':
			var src = el.getAttribute('src');
			if (!__dom_claim(el.__id)) return;
			if (src) {
				g.__load(src, function(ok, body, errMsg) {
					if (!ok) {
						console.error('Failed to load script ' + src + ': ' + errMsg);
						fire(el, 'error');
						return;
					}
					g.__runScript(body);
					fire(el, 'load');
				});
			} else {
				g.__runScript(el.textContent);
			}
			return;
		case 'link':
			var href = el.getAttribute('href');
			if (!href || el.__loading) return;
			el.__loading = true;
			g.__load(href, function(ok, body, errMsg) {
				el.__loading = false;
				if (!ok) {
					console.error('Failed to load ' + href + ': ' + errMsg);
					fire(el, 'error');
					return;
				}
				fire(el, 'load');
			});
			return;
		case 'iframe':
			var fsrc = el.getAttribute('src');
			if (fsrc) __frame_navigate(fsrc);
			return;
		}
	}

	function Node(id) {
		this.__id = id;
	}
	Node.prototype = Object.create(EventTarget.prototype);
	Node.prototype.constructor = Node;
	Node.ELEMENT_NODE = 1;
	Node.TEXT_NODE = 3;
	Node.DOCUMENT_NODE = 9;

	Object.defineProperties(Node.prototype, {
		nodeType: { get: function() { return __dom_nodeType(this.__id); } },
		parentNode: { get: function() { return wrap(__dom_parent(this.__id)); } },
		parentElement: {
			get: function() {
				var p = wrap(__dom_parent(this.__id));
				return p && p.nodeType === 1 ? p : null;
			}
		},
		childNodes: { get: function() { return wrapAll(__dom_childNodes(this.__id)); } },
		firstChild: { get: function() { return this.childNodes[0] || null; } },
		isConnected: { get: function() { return __dom_connected(this.__id); } },
		textContent: {
			get: function() { return __dom_text(this.__id); },
			set: function(v) { __dom_setText(this.__id, v === null || v === undefined ? '' : String(v)); }
		}
	});

	Node.prototype.appendChild = function(child) {
		activate(__dom_append(this.__id, idOf(child)));
		return child;
	};
	Node.prototype.insertBefore = function(child, ref) {
		activate(__dom_insertBefore(this.__id, idOf(child), ref ? idOf(ref) : 0));
		return child;
	};
	Node.prototype.removeChild = function(child) {
		__dom_remove(this.__id, idOf(child));
		return child;
	};
	Node.prototype.contains = function(other) {
		for (var n = other; n; n = n.parentNode) if (n === this) return true;
		return false;
	};

	function Element(id) {
		Node.call(this, id);
		this.style = {};
		this.dataset = {};
	}
	Element.prototype = Object.create(Node.prototype);
	Element.prototype.constructor = Element;

	Object.defineProperties(Element.prototype, {
		localName: { get: function() { return __dom_tag(this.__id); } },
		tagName: { get: function() { return __dom_tag(this.__id).toUpperCase(); } },
		nodeName: { get: function() { return __dom_tag(this.__id).toUpperCase(); } },
		children: { get: function() { return wrapAll(__dom_children(this.__id)); } },
		childElementCount: { get: function() { return this.children.length; } },
		firstElementChild: { get: function() { return this.children[0] || null; } },
		lastElementChild: { get: function() { var c = this.children; return c[c.length - 1] || null; } },
		innerHTML: {
			get: function() { return __dom_innerHTML(this.__id); },
			set: function(v) { activate(__dom_setInnerHTML(this.__id, String(v))); }
		},
		text: {
			get: function() { return this.textContent; },
			set: function(v) { this.textContent = v; }
		}
	});
	['id', 'src', 'href', 'rel', 'type', 'name', 'content', 'title', 'lang'].forEach(function(attr) {
		Object.defineProperty(Element.prototype, attr, {
			get: function() { var v = this.getAttribute(attr); return v === null ? '' : v; },
			set: function(v) { this.setAttribute(attr, v); }
		});
	});
	Object.defineProperty(Element.prototype, 'className', {
		get: function() { var v = this.getAttribute('class'); return v === null ? '' : v; },
		set: function(v) { this.setAttribute('class', v); }
	});
	Object.defineProperty(Element.prototype, 'async', {
		get: function() { return this.hasAttribute('async'); },
		set: function(v) { if (v) this.setAttribute('async', ''); else this.removeAttribute('async'); }
	});

	Element.prototype.getAttribute = function(name) {
		return JSON.parse(__dom_getAttr(this.__id, String(name)));
	};
	Element.prototype.hasAttribute = function(name) {
		return this.getAttribute(name) !== null;
	};
	Element.prototype.setAttribute = function(name, value) {
		activate(__dom_setAttr(this.__id, String(name), String(value)));
	};
	Element.prototype.removeAttribute = function(name) {
		__dom_removeAttr(this.__id, String(name));
	};
	Element.prototype.remove = function() {
		var p = this.parentNode;
		if (p) p.removeChild(this);
	};
	Element.prototype.querySelector = function(sel) {
		return wrap(__dom_query(this.__id, String(sel)));
	};
	Element.prototype.querySelectorAll = function(sel) {
		return wrapAll(__dom_queryAll(this.__id, String(sel)));
	};
	Element.prototype.getElementsByTagName = function(tag) {
		return this.querySelectorAll(tag);
	};

	function Document(id) {
		Node.call(this, id);
	}
	Document.prototype = Object.create(Node.prototype);
	Document.prototype.constructor = Document;
	Object.defineProperties(Document.prototype, {
		documentElement: { get: function() { return wrap(__dom_documentElement()); } },
		head: { get: function() { return wrap(__dom_head()); } },
		body: { get: function() { return wrap(__dom_body()); } },
		title: {
			get: function() { return __dom_title(); },
			set: function(v) { __dom_setTitle(String(v)); }
		},
		readyState: { get: function() { return g.__readyState || 'loading'; } },
		children: { get: function() { return wrapAll(__dom_children(this.__id)); } }
	});
	Document.prototype.createElement = function(tag) {
		return wrap(__dom_create(String(tag)));
	};
	Document.prototype.createTextNode = function(text) {
		return wrap(__dom_createText(String(text)));
	};
	Document.prototype.getElementById = function(id) {
		return wrap(__dom_byId(String(id)));
	};
	Document.prototype.querySelector = Element.prototype.querySelector;
	Document.prototype.querySelectorAll = Element.prototype.querySelectorAll;
	Document.prototype.getElementsByTagName = Element.prototype.getElementsByTagName;

	g.Node = Node;
	g.Element = Element;
	g.HTMLElement = Element;
	g.Document = Document;
	g.document = wrap(__dom_root());

	g.__pageLoaded = function() {
		g.__readyState = 'interactive';
		g.document.dispatchEvent(new Event('DOMContentLoaded'));
		g.__readyState = 'complete';
		g.dispatchEvent(new Event('load'));
	};
})();
`

// SetupDocument exposes doc to scripts as window.document. Inserting a
// script, link or iframe into the connected tree starts its load (or
// frame navigation) the way a browser would.
func SetupDocument(rt core.JSRuntime, _ *eventloop.EventLoop, doc *dom.Document, host PageHost) error {
	node := func(id int) (*html.Node, error) { return doc.Node(id) }
	// activatable lists elements that must start once n is connected.
	activatable := func(n *html.Node) string {
		ids := []int{}
		if doc.Connected(n) {
			for _, a := range dom.Activatable(n) {
				ids = append(ids, doc.ID(a))
			}
		}
		return marshalIDs(ids)
	}
	list := func(nodes []*html.Node) string {
		ids := make([]int, 0, len(nodes))
		for _, n := range nodes {
			ids = append(ids, doc.ID(n))
		}
		return marshalIDs(ids)
	}

	funcs := map[string]any{
		"__dom_root":            func() int { return doc.ID(doc.Root()) },
		"__dom_documentElement": func() int { return doc.ID(doc.DocumentElement()) },
		"__dom_head":            func() int { return doc.ID(doc.Head()) },
		"__dom_body":            func() int { return doc.ID(doc.Body()) },
		"__dom_nodeType": func(id int) int {
			n, err := node(id)
			if err != nil {
				return 0
			}
			return dom.NodeType(n)
		},
		"__dom_tag": func(id int) string {
			n, err := node(id)
			if err != nil {
				return ""
			}
			return n.Data
		},
		"__dom_parent": func(id int) int {
			n, err := node(id)
			if err != nil || n.Parent == nil {
				return 0
			}
			return doc.ID(n.Parent)
		},
		"__dom_children": func(id int) string {
			n, err := node(id)
			if err != nil {
				return "[]"
			}
			return list(dom.Children(n))
		},
		"__dom_childNodes": func(id int) string {
			n, err := node(id)
			if err != nil {
				return "[]"
			}
			return list(dom.ChildNodes(n))
		},
		"__dom_connected": func(id int) bool {
			n, err := node(id)
			return err == nil && doc.Connected(n)
		},
		"__dom_getAttr": func(id int, name string) string {
			n, err := node(id)
			if err != nil {
				return "null"
			}
			v, ok := dom.Attr(n, name)
			if !ok {
				return "null"
			}
			return jsString(v)
		},
		"__dom_setAttr": func(id int, name, value string) (string, error) {
			n, err := node(id)
			if err != nil {
				return "", err
			}
			dom.SetAttr(n, name, value)
			// A src change on a connected iframe navigates it.
			if n.DataAtom == atom.Iframe && strings.EqualFold(name, "src") && doc.Connected(n) {
				return marshalIDs([]int{id}), nil
			}
			return "[]", nil
		},
		"__dom_removeAttr": func(id int, name string) (bool, error) {
			n, err := node(id)
			if err != nil {
				return false, err
			}
			dom.RemoveAttr(n, name)
			return true, nil
		},
		"__dom_text": func(id int) string {
			n, err := node(id)
			if err != nil {
				return ""
			}
			return dom.TextContent(n)
		},
		"__dom_setText": func(id int, text string) (bool, error) {
			n, err := node(id)
			if err != nil {
				return false, err
			}
			dom.SetTextContent(n, text)
			return true, nil
		},
		"__dom_innerHTML": func(id int) (string, error) {
			n, err := node(id)
			if err != nil {
				return "", err
			}
			return dom.InnerHTML(n)
		},
		"__dom_setInnerHTML": func(id int, markup string) (string, error) {
			n, err := node(id)
			if err != nil {
				return "", err
			}
			if err := dom.SetInnerHTML(n, markup); err != nil {
				return "", err
			}
			var ids []int
			if doc.Connected(n) {
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					for _, a := range dom.Activatable(c) {
						ids = append(ids, doc.ID(a))
					}
				}
			}
			return marshalIDs(ids), nil
		},
		"__dom_create":     func(tag string) int { return doc.ID(doc.CreateElement(tag)) },
		"__dom_createText": func(text string) int { return doc.ID(doc.CreateTextNode(text)) },
		"__dom_append": func(parentID, childID int) (string, error) {
			parent, err := node(parentID)
			if err != nil {
				return "", err
			}
			child, err := node(childID)
			if err != nil {
				return "", err
			}
			if err := doc.AppendChild(parent, child); err != nil {
				return "", err
			}
			return activatable(child), nil
		},
		"__dom_insertBefore": func(parentID, childID, refID int) (string, error) {
			parent, err := node(parentID)
			if err != nil {
				return "", err
			}
			child, err := node(childID)
			if err != nil {
				return "", err
			}
			var ref *html.Node
			if refID != 0 {
				if ref, err = node(refID); err != nil {
					return "", err
				}
			}
			if err := doc.InsertBefore(parent, child, ref); err != nil {
				return "", err
			}
			return activatable(child), nil
		},
		"__dom_remove": func(parentID, childID int) (bool, error) {
			parent, err := node(parentID)
			if err != nil {
				return false, err
			}
			child, err := node(childID)
			if err != nil {
				return false, err
			}
			if err := doc.RemoveChild(parent, child); err != nil {
				return false, err
			}
			return true, nil
		},
		"__dom_byId": func(id string) int { return doc.ID(doc.GetElementByID(id)) },
		"__dom_query": func(scopeID int, sel string) (int, error) {
			scope, err := node(scopeID)
			if err != nil {
				return 0, err
			}
			m, err := doc.QuerySelector(scope, sel)
			if err != nil {
				return 0, err
			}
			return doc.ID(m), nil
		},
		"__dom_queryAll": func(scopeID int, sel string) (string, error) {
			scope, err := node(scopeID)
			if err != nil {
				return "", err
			}
			ms, err := doc.QuerySelectorAll(scope, sel)
			if err != nil {
				return "", err
			}
			return list(ms), nil
		},
		"__dom_claim": func(id int) bool {
			n, err := node(id)
			return err == nil && doc.Claim(n)
		},
		"__dom_title": func() string { return doc.Title() },
		"__dom_setTitle": func(title string) {
			doc.SetTitle(title)
			host.TitleChanged(title)
		},
		"__frame_navigate": func(url string) {
			host.Navigate(url, core.NavigationOther, true)
		},
	}
	for name, fn := range funcs {
		if err := rt.RegisterFunc(name, fn); err != nil {
			return err
		}
	}
	return rt.Eval(documentJS)
}

func marshalIDs(ids []int) string {
	if len(ids) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ids)
	return string(b)
}
