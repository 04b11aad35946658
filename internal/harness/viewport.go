package harness

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ViewPort describes the content of a <meta name="viewport"> tag. Width
// and Height hold either a number or "device-width"/"device-height".
type ViewPort struct {
	Width        string  `json:"width,omitempty" yaml:"width,omitempty"`
	Height       string  `json:"height,omitempty" yaml:"height,omitempty"`
	InitialScale float64 `json:"initialScale,omitempty" yaml:"initialScale,omitempty"`
	MaximumScale float64 `json:"maximumScale,omitempty" yaml:"maximumScale,omitempty"`
	MinimumScale float64 `json:"minimumScale,omitempty" yaml:"minimumScale,omitempty"`
	UserScalable *bool   `json:"userScalable,omitempty" yaml:"userScalable,omitempty"`
}

// DefaultViewPort is used when the viewport is enabled without settings.
func DefaultViewPort() *ViewPort {
	return &ViewPort{InitialScale: 1.0}
}

// ParseViewPort accepts "false" (disabled, returns nil), "true" or "" (the
// default), a JSON object, or a comma list such as
// "width=device-width, initial-scale=1.0, user-scalable=no".
func ParseViewPort(s string) *ViewPort {
	lc := strings.ToLower(strings.TrimSpace(s))
	switch lc {
	case "false":
		return nil
	case "", "true":
		return DefaultViewPort()
	}

	vp := DefaultViewPort()
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err == nil {
		for k, v := range raw {
			vp.set(k, strings.TrimSpace(strings.Trim(Literal(v), `"`)))
		}
		return vp
	}

	for _, part := range strings.Split(s, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		key, val = strings.TrimSpace(key), strings.TrimSpace(val)
		if !ok || key == "" || val == "" {
			continue
		}
		vp.set(key, val)
	}
	return vp
}

func (vp *ViewPort) set(key, val string) {
	lc := strings.ToLower(val)
	num := func() float64 {
		f, _ := strconv.ParseFloat(val, 64)
		return f
	}
	switch key {
	case "user-scalable", "userScalable":
		switch lc {
		case "yes", "true":
			b := true
			vp.UserScalable = &b
		case "no", "false":
			b := false
			vp.UserScalable = &b
		}
	case "width":
		vp.Width = val
	case "height":
		vp.Height = val
	case "minimum-scale", "minimumScale":
		vp.MinimumScale = num()
	case "maximum-scale", "maximumScale":
		vp.MaximumScale = num()
	case "initial-scale", "initialScale":
		vp.InitialScale = num()
	}
}

// Content renders the meta content attribute.
func (vp *ViewPort) Content() string {
	var parts []string
	if vp.Width != "" {
		parts = append(parts, "width="+vp.Width)
	}
	if vp.Height != "" {
		parts = append(parts, "height="+vp.Height)
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	if vp.InitialScale > 0 {
		parts = append(parts, "initial-scale="+f(vp.InitialScale))
	}
	if vp.MaximumScale > 0 {
		parts = append(parts, "maximum-scale="+f(vp.MaximumScale))
	}
	if vp.MinimumScale > 0 {
		parts = append(parts, "minimum-scale="+f(vp.MinimumScale))
	}
	if vp.UserScalable != nil {
		if *vp.UserScalable {
			parts = append(parts, "user-scalable=yes")
		} else {
			parts = append(parts, "user-scalable=no")
		}
	}
	return strings.Join(parts, ", ")
}

// ViewPortMeta creates or updates the page's viewport meta tag.
func ViewPortMeta(vp *ViewPort) string {
	return `(function(window) {
	var document = window.document;
	if (!document || !document.head) return;
	var meta = document.querySelector('head meta[name="viewport"]');
	if (!meta) {
		meta = document.createElement('meta');
		document.head.appendChild(meta);
	}
	meta.setAttribute('name', 'viewport');
	meta.setAttribute('content', ` + quote(vp.Content()) + `);
})(window);`
}
