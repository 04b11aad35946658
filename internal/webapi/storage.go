package webapi

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"unicode/utf16"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/eventloop"
)

// DefaultStorageQuota bounds one origin's storage area, in UTF-16 code
// units of keys plus values.
const DefaultStorageQuota = 5 * 1024 * 1024

// ErrQuotaExceeded is returned by WebStorage.Set when a write would take
// an origin past its quota.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// WebStorage holds one kind of Web Storage (local or session) for every
// origin a page visits. It outlives page loads, so values written before a
// navigation are visible after it.
type WebStorage struct {
	mu    sync.Mutex
	quota int
	areas map[string]*storageArea
}

type storageArea struct {
	keys  []string
	items map[string]string
	size  int
}

// NewWebStorage creates an empty store. quota <= 0 selects DefaultStorageQuota.
func NewWebStorage(quota int) *WebStorage {
	if quota <= 0 {
		quota = DefaultStorageQuota
	}
	return &WebStorage{quota: quota, areas: make(map[string]*storageArea)}
}

func (s *WebStorage) area(origin string) *storageArea {
	a := s.areas[origin]
	if a == nil {
		a = &storageArea{items: make(map[string]string)}
		s.areas[origin] = a
	}
	return a
}

// Len reports how many keys origin has stored.
func (s *WebStorage) Len(origin string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.area(origin).keys)
}

// Key returns origin's i-th key in insertion order.
func (s *WebStorage) Key(origin string, i int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.area(origin)
	if i < 0 || i >= len(a.keys) {
		return "", false
	}
	return a.keys[i], true
}

// Get returns the value stored under key.
func (s *WebStorage) Get(origin, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.area(origin).items[key]
	return v, ok
}

// Set stores value under key, or returns ErrQuotaExceeded and leaves the
// area unchanged.
func (s *WebStorage) Set(origin, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.area(origin)
	old, exists := a.items[key]
	size := a.size + units(value)
	if exists {
		size -= units(old)
	} else {
		size += units(key)
	}
	if size > s.quota {
		return fmt.Errorf("%w: %d of %d", ErrQuotaExceeded, size, s.quota)
	}
	if !exists {
		a.keys = append(a.keys, key)
	}
	a.items[key] = value
	a.size = size
	return nil
}

// Remove deletes key if present.
func (s *WebStorage) Remove(origin, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.area(origin)
	v, ok := a.items[key]
	if !ok {
		return
	}
	delete(a.items, key)
	a.size -= units(key) + units(v)
	for i, k := range a.keys {
		if k == key {
			a.keys = append(a.keys[:i], a.keys[i+1:]...)
			break
		}
	}
}

// Clear empties origin's area.
func (s *WebStorage) Clear(origin string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.areas, origin)
}

func units(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// Origin returns the serialized origin of a page URL: scheme://host for
// hierarchical URLs, scheme:// for file and x-local pages and "null" for
// everything else.
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return "null"
	}
	scheme := strings.ToLower(u.Scheme)
	switch {
	case scheme == "file" || scheme == "x-local":
		return scheme + "://"
	case u.Host != "":
		return scheme + "://" + strings.ToLower(u.Host)
	}
	return "null"
}

// storageJS builds localStorage and sessionStorage over the __storage_*
// functions.
const storageJS = `
(function() {
	var g = globalThis;
	function Storage(kind) {
		Object.defineProperty(this, '__kind', { value: kind });
	}
	Storage.prototype.getItem = function(key) {
		return JSON.parse(__storage_get(this.__kind, String(key)));
	};
	Storage.prototype.setItem = function(key, value) {
		var err = __storage_set(this.__kind, String(key), String(value));
		if (err) throw new DOMException(err, 'QuotaExceededError');
	};
	Storage.prototype.removeItem = function(key) { __storage_remove(this.__kind, String(key)); };
	Storage.prototype.clear = function() { __storage_clear(this.__kind); };
	Storage.prototype.key = function(i) { return JSON.parse(__storage_key(this.__kind, Number(i) | 0)); };
	Object.defineProperty(Storage.prototype, 'length', {
		get: function() { return __storage_len(this.__kind); }
	});
	g.Storage = Storage;
	g.localStorage = new Storage('local');
	g.sessionStorage = new Storage('session');
})();
`

// SetupStorage installs localStorage and sessionStorage for a page whose
// origin is origin.
func SetupStorage(rt core.JSRuntime, _ *eventloop.EventLoop, origin string, local, session *WebStorage) error {
	pick := func(kind string) *WebStorage {
		if kind == "session" {
			return session
		}
		return local
	}
	if err := rt.RegisterFunc("__storage_get", func(kind, key string) string {
		v, ok := pick(kind).Get(origin, key)
		if !ok {
			return "null"
		}
		return jsString(v)
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__storage_set", func(kind, key, value string) string {
		if err := pick(kind).Set(origin, key, value); err != nil {
			return err.Error()
		}
		return ""
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__storage_remove", func(kind, key string) {
		pick(kind).Remove(origin, key)
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__storage_clear", func(kind string) {
		pick(kind).Clear(origin)
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__storage_key", func(kind string, i int) string {
		k, ok := pick(kind).Key(origin, i)
		if !ok {
			return "null"
		}
		return jsString(k)
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__storage_len", func(kind string) int {
		return pick(kind).Len(origin)
	}); err != nil {
		return err
	}
	if err := rt.Eval(storageJS); err != nil {
		return fmt.Errorf("evaluating storage.js: %w", err)
	}
	return nil
}
