package resources

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"

	"github.com/cryguy/webbridge/internal/log"
)

var extToMimeType = map[string]string{
	"css":  "text/css",
	"js":   "text/javascript",
	"mjs":  "text/javascript",
	"json": "application/json",
	"html": "text/html; charset=utf-8",
	"htm":  "text/html; charset=utf-8",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
}

// MimeType returns the content type served for path. Unknown extensions
// are application/octet-stream.
func MimeType(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if t, ok := extToMimeType[ext]; ok {
		return t
	}
	return "application/octet-stream"
}

func compressible(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/") ||
		strings.HasPrefix(mimeType, "application/json") ||
		mimeType == "image/svg+xml"
}

func acceptsBrotli(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(enc, "br") {
			return true
		}
	}
	return false
}

// Handler serves registered resources. The name is taken from the chi
// route parameter "name", or the request path when mounted bare.
type Handler struct {
	Registry *Registry
}

// NewHandler returns a Handler over reg.
func NewHandler(reg *Registry) *Handler {
	return &Handler{Registry: reg}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		name = strings.TrimPrefix(r.URL.Path, "/")
	}
	path, ok := h.Registry.Resolve(name)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	mimeType := MimeType(path)
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Add("Vary", "Accept-Encoding")

	var out io.Writer = w
	if compressible(mimeType) && acceptsBrotli(r) {
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		defer bw.Close()
		out = bw
	}
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(out, f); err != nil {
		h.Registry.log.Debug().Err(err).Str(log.FieldResource, name).Msg("resource write aborted")
	}
}
