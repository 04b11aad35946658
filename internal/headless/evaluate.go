package headless

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cryguy/webbridge/internal/core"
)

// evalJS runs __host_script in global scope and encodes the completion
// value with a one-letter tag: u undefined, s string, j JSON, e exception.
const evalJS = `(function() {
	var src = globalThis.__host_script;
	globalThis.__host_script = undefined;
	try {
		var v = (0, eval)(src);
		if (v === undefined) return 'u';
		if (typeof v === 'string') return 's' + v;
		var j;
		try { j = JSON.stringify(v); } catch (e) { return 's' + String(v); }
		return j === undefined ? 'u' : 'j' + j;
	} catch (err) {
		return 'e' + JSON.stringify({
			message: err && err.message !== undefined ? String(err.message) : String(err),
			stack: err && err.stack ? String(err.stack) : ''
		});
	}
})()`

// Evaluate runs script in the page's global scope. Android pages return
// the JSON encoding of the completion value as a string, the way
// evaluateJavascript does; WebKit and legacy pages return the value.
// A thrown exception is returned as *core.ScriptError.
func (p *Page) Evaluate(ctx context.Context, script string) (any, error) {
	var (
		result any
		evalErr error
	)
	err := p.do(ctx, func() {
		result, evalErr = p.evaluate(script)
	})
	if err != nil {
		return nil, err
	}
	return result, evalErr
}

func (p *Page) evaluate(script string) (any, error) {
	if p.crashed || p.rt == nil {
		return nil, core.ErrPageCrashed
	}
	if err := p.rt.SetGlobal("__host_script", script); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	var (
		raw string
		err error
	)
	if gerr := p.guard(func() {
		raw, err = p.rt.EvalString(evalJS)
		p.rt.RunMicrotasks()
	}); gerr != nil {
		return nil, gerr
	}
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if raw == "" {
		return nil, fmt.Errorf("evaluate: empty completion")
	}
	return p.convert(raw[0], raw[1:])
}

func (p *Page) convert(tag byte, body string) (any, error) {
	android := p.cfg.Capability == core.CapabilityAndroid
	switch tag {
	case 'u':
		if android {
			return "null", nil
		}
		return nil, nil
	case 's':
		if android {
			b, _ := json.Marshal(body)
			return string(b), nil
		}
		return body, nil
	case 'j':
		if android {
			return body, nil
		}
		var v any
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			return body, nil
		}
		return v, nil
	case 'e':
		var se core.ScriptError
		if err := json.Unmarshal([]byte(body), &se); err != nil {
			se.Message = body
		}
		return nil, &se
	}
	return nil, fmt.Errorf("evaluate: unknown completion tag %q", tag)
}
