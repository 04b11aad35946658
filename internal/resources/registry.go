// Package resources maps x-local://{name} URLs onto files on disk and
// serves them to views that cannot intercept the scheme themselves.
package resources

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cryguy/webbridge/internal/core"
	"github.com/cryguy/webbridge/internal/log"
)

// DefaultScheme is the virtual scheme local resources are addressed by.
const DefaultScheme = "x-local"

// ErrNotRegistered is returned when a name has no registration.
var ErrNotRegistered = errors.New("local resource not registered")

// Options configures a Registry.
type Options struct {
	Store Store
	// AppRoot replaces a leading "~" in registered paths. Defaults to the
	// working directory.
	AppRoot string
	Scheme  string
	Logger  *zerolog.Logger
}

// Registry is the name → file path table behind the local scheme.
// Registering a name twice keeps the last path.
type Registry struct {
	store   Store
	appRoot string
	scheme  string
	log     zerolog.Logger
}

var _ core.ResourceResolver = (*Registry)(nil)

// NewRegistry returns a Registry backed by opts.Store, or a MemoryStore.
func NewRegistry(opts Options) *Registry {
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	root := opts.AppRoot
	if root == "" {
		root, _ = os.Getwd()
	}
	scheme := opts.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	logger := log.WithComponent("resources")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Registry{store: store, appRoot: root, scheme: scheme, log: logger}
}

// Scheme returns the scheme this registry answers for.
func (r *Registry) Scheme() string { return r.scheme }

// AppRoot returns the directory "~" expands to.
func (r *Registry) AppRoot() string { return r.appRoot }

// FixName strips a leading "scheme://" from name.
func (r *Registry) FixName(name string) string {
	return strings.TrimPrefix(name, r.scheme+"://")
}

// ResolveFilePath turns a registered path into an absolute file path:
// "~" is the app root, "file://" is stripped. The file must exist.
func (r *Registry) ResolveFilePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("file path is empty")
	}
	p := path
	switch {
	case strings.HasPrefix(p, "~"):
		p = filepath.Join(r.appRoot, strings.TrimPrefix(p, "~"))
	case strings.HasPrefix(p, "file://"):
		p = strings.TrimPrefix(p, "file://")
	}
	p = filepath.Clean(p)
	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("file %q: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("file %q is a directory", path)
	}
	return p, nil
}

// Register maps name to the file at path. A missing file is logged and
// leaves the table unchanged.
func (r *Registry) Register(name, path string) bool {
	name = r.FixName(name)
	resolved, err := r.ResolveFilePath(path)
	if err != nil {
		r.log.Error().Err(err).
			Str(log.FieldEvent, "resource.register_failed").
			Str(log.FieldResource, name).
			Str(log.FieldPath, path).
			Msg("cannot register local resource")
		return false
	}
	if err := r.store.Put(name, resolved); err != nil {
		r.log.Error().Err(err).Str(log.FieldResource, name).Msg("cannot store local resource")
		return false
	}
	r.log.Debug().
		Str(log.FieldEvent, "resource.registered").
		Str(log.FieldResource, name).
		Str(log.FieldPath, resolved).
		Msg("registered local resource")
	return true
}

// Unregister removes name. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	name = r.FixName(name)
	if err := r.store.Delete(name); err != nil {
		r.log.Error().Err(err).Str(log.FieldResource, name).Msg("cannot remove local resource")
	}
}

// Get returns the file registered under name. Unregistered names log an
// error and yield no result.
func (r *Registry) Get(name string) (string, bool) {
	name = r.FixName(name)
	p, ok, err := r.store.Get(name)
	if err != nil {
		r.log.Error().Err(err).Str(log.FieldResource, name).Msg("cannot read local resource")
		return "", false
	}
	if !ok {
		r.log.Error().
			Str(log.FieldEvent, "resource.not_found").
			Str(log.FieldResource, name).
			Msg("local resource not registered")
		return "", false
	}
	return p, true
}

// Resolve implements core.ResourceResolver. The file must still exist.
func (r *Registry) Resolve(name string) (string, bool) {
	p, ok := r.Get(name)
	if !ok {
		return "", false
	}
	if _, err := os.Stat(p); err != nil {
		r.log.Error().Err(err).Str(log.FieldResource, r.FixName(name)).Msg("local resource file is gone")
		return "", false
	}
	return p, true
}

// Names lists registered names in order.
func (r *Registry) Names() []string {
	names, err := r.store.Names()
	if err != nil {
		r.log.Error().Err(err).Msg("cannot list local resources")
		return nil
	}
	return names
}

// URL returns the scheme URL for name.
func (r *Registry) URL(name string) string {
	return r.scheme + "://" + r.FixName(name)
}

// Close releases the store.
func (r *Registry) Close() error { return r.store.Close() }
