package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/cryguy/webbridge/internal/core"
)

// LocalScheme is the scheme resolved through the page's ResourceResolver.
const LocalScheme = "x-local"

// fetch reads the resource at rawURL. x-local names go through the
// resolver, file URLs are read from disk and http(s) URLs are fetched with
// a size cap.
func (p *Page) fetch(ctx context.Context, rawURL string) (string, error) {
	if rawURL == core.BlankURL {
		return "", nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case LocalScheme:
		name := strings.TrimPrefix(rawURL[len(u.Scheme)+1:], "//")
		if p.resolver == nil {
			return "", fmt.Errorf("x-local resource %q is not registered", name)
		}
		path, ok := p.resolver.Resolve(name)
		if !ok {
			return "", fmt.Errorf("x-local resource %q is not registered", name)
		}
		return p.readFile(path)
	case "file":
		path, err := url.PathUnescape(u.Path)
		if err != nil {
			path = u.Path
		}
		return p.readFile(path)
	case "http", "https":
		return p.fetchHTTP(ctx, u.String())
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
}

func (p *Page) readFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if info.Size() > int64(p.cfg.MaxResponseBytes) {
		return "", fmt.Errorf("reading %s: file exceeds %d bytes", path, p.cfg.MaxResponseBytes)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(b), nil
}

func (p *Page) fetchHTTP(ctx context.Context, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("fetching %s: HTTP %s", target, resp.Status)
	}
	maxBytes := int64(p.cfg.MaxResponseBytes)
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", target, err)
	}
	if int64(len(b)) > maxBytes {
		return "", fmt.Errorf("fetching %s: response exceeds %d bytes", target, maxBytes)
	}
	return string(b), nil
}

// resolveURL resolves ref against base. Absolute refs are returned
// untouched so opaque handshake URLs keep their encoding.
func resolveURL(base, ref string) string {
	r, err := url.Parse(ref)
	if err != nil || r.IsAbs() {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() || b.Scheme == "about" {
		return ref
	}
	return b.ResolveReference(r).String()
}

// jsString encodes s as a JS string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
