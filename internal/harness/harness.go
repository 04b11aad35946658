// Package harness generates the scripts the host injects into a page.
// Every builder returns a self-contained expression or IIFE.
package harness

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ErrorTag marks an object returned by the Stringify wrapper as a smuggled
// exception rather than a result.
const ErrorTag = "__bridgeError"

// NotReadyTag marks the exception the promise harness throws when the page
// has no bridge installed.
const NotReadyTag = "__bridgeNotReady"

// NotReadyMessage is the message of the not-ready exception.
const NotReadyMessage = "nsWebViewBridge is not ready"

// quote returns s as a JS string literal.
func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Literal encodes v as a JS literal. Values that cannot be encoded become
// undefined.
func Literal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "undefined"
	}
	return string(b)
}

// Promises builds the batch harness for codes. Each fragment is chained
// behind the previous one and the joined result reported on eventName
// through nsWebViewBridge.executePromise. A synchronous failure while
// building the batch is reported through emitError. Empty fragments are
// skipped.
func Promises(codes []string, eventName string) string {
	var body []string
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		body = append(body, "p = p.then(function() {\n\treturn "+code+";\n});\npromises.push(p);")
	}

	batch := "(function() {\nvar promises = [];\nvar p = Promise.resolve();\n" +
		strings.Join(body, "\n") +
		"\nreturn Promise.all(promises);\n})()"

	return `(function() {
	var eventName = ` + quote(eventName) + `;
	if (typeof window === 'undefined' || !window.nsWebViewBridge) {
		var nr = new Error(` + quote(NotReadyMessage) + `);
		nr.` + NotReadyTag + ` = true;
		throw nr;
	}
	try {
		var promise = (function() { return ` + batch + `; })();
		window.nsWebViewBridge.executePromise(promise, eventName);
	} catch (err) {
		window.nsWebViewBridge.emitError(err, eventName);
	}
})();`
}

// Stringify wraps code so it returns the JSON encoding of its own result
// and converts a thrown exception into a tagged error object.
func Stringify(code string) string {
	return `(function(window) {
	var result = null;
	try {
		result = ` + strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(code), ";")) + `;
	} catch (err) {
		var tagged = { message: err && err.message !== undefined ? err.message : String(err), stack: err && err.stack };
		tagged.` + ErrorTag + ` = true;
		if (err && err.` + NotReadyTag + `) tagged.` + NotReadyTag + ` = true;
		return JSON.stringify(tagged);
	}
	try {
		return JSON.stringify(result);
	} catch (err) {
		return result;
	}
})(typeof window !== 'undefined' ? window : globalThis)`
}

// EmitToWebView dispatches eventName with data to the page bus, if any.
func EmitToWebView(eventName string, data any) string {
	return `window.nsWebViewBridge && nsWebViewBridge.onNativeEvent(` + quote(eventName) + `, ` + Literal(data) + `);`
}

// InjectJavaScriptFile loads href as a script element.
func InjectJavaScriptFile(href string) string {
	return `window.nsWebViewBridge.injectJavaScriptFile(` + quote(href) + `);`
}

// InjectStyleSheetFile loads href as a stylesheet link.
func InjectStyleSheetFile(href string, insertBefore bool) string {
	return `window.nsWebViewBridge.injectStyleSheetFile(` + quote(href) + `, ` + Literal(insertBefore) + `);`
}

// InjectJavaScript inlines script source under elementID.
func InjectJavaScript(elementID, source string) string {
	return `window.nsWebViewBridge.injectJavaScript(` + quote(elementID) + `, ` + quote(source) + `);`
}

// InjectStyleSheet inlines css under elementID.
func InjectStyleSheet(elementID, css string, insertBefore bool) string {
	return `window.nsWebViewBridge.injectStyleSheet(` + quote(elementID) + `, ` + quote(css) + `, ` + Literal(insertBefore) + `);`
}

// RemoveElement detaches the element with id, if the page has one.
func RemoveElement(id string) string {
	return `(function() { var el = document.getElementById(` + quote(id) + `); if (el && el.parentNode) el.parentNode.removeChild(el); })();`
}

// GetLegacyResponse pulls a stashed payload from the legacy handshake.
func GetLegacyResponse(resID int) string {
	return `window.nsWebViewBridge.getUIWebViewResponse(` + Literal(resID) + `)`
}

// Title reads document.title.
const Title = `document.title`

// FeatureProbe tests for a global, e.g. "Promise" or "fetch".
func FeatureProbe(global string) string {
	return `typeof ` + global + ` !== 'undefined'`
}

var (
	schemePrefix = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)
	nonIDChars   = regexp.MustCompile(`[^a-z0-9]`)
)

// ElementID derives the DOM id used to deduplicate injected resources.
func ElementID(href string) string {
	return nonIDChars.ReplaceAllString(schemePrefix.ReplaceAllString(href, ""), "")
}
