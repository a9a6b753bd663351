package vap

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/casement-ui/casement/log"
	"github.com/casement-ui/casement/metrics"
)

// Scheme is the custom URL scheme intercepted for asset resolution.
const Scheme = "casement"

// diskPrefix is the scheme-mandated key prefix that routes to the
// project root on disk.
const diskPrefix = "app/"

// Response is the resolved asset returned to the rendering engine.
type Response struct {
	Status int
	MIME   string
	Body   []byte
}

// Resolver answers casement:// URL interceptions. Lookup order: the
// in-memory store, then the project root on disk, then the optional
// remote origin, then not-found.
type Resolver struct {
	store   *Store
	root    string
	origin  Origin
	metrics *metrics.Collector
	logger  *log.Logger
}

// NewResolver creates a resolver over store. Root is the project root
// for disk fallback; empty disables disk resolution. Origin and
// collector may be nil.
func NewResolver(store *Store, root string, origin Origin, collector *metrics.Collector, logger *log.Logger) *Resolver {
	return &Resolver{store: store, root: root, origin: origin, metrics: collector, logger: logger}
}

// Resolve answers one intercepted URL. Never returns an error: every
// failure mode is a not-found response, per the asset error contract.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) *Response {
	key, ok := ExtractKey(rawURL)
	if !ok {
		r.metrics.IncAssetMissed()
		return notFound()
	}

	// Memory first: O(1), byte-for-byte what Serve stored.
	if entry, found := r.store.Get(key); found {
		r.metrics.IncAssetServed("memory")
		return &Response{Status: http.StatusOK, MIME: entry.MIME, Body: entry.Data}
	}

	if resp := r.resolveDisk(key); resp != nil {
		r.metrics.IncAssetServed("disk")
		return resp
	}

	if r.origin != nil {
		data, mimeType, err := r.origin.Fetch(ctx, key)
		switch {
		case err == nil:
			r.metrics.IncAssetServed("origin")
			return &Response{Status: http.StatusOK, MIME: mimeType, Body: data}
		case !errors.Is(err, ErrNotFound):
			r.logger.Warn("asset origin fetch failed", map[string]any{
				"key":   key,
				"error": err.Error(),
			})
		}
	}

	r.metrics.IncAssetMissed()
	return notFound()
}

// resolveDisk resolves a key against the project root. Returns nil to
// fall through to the next source.
func (r *Resolver) resolveDisk(key string) *Response {
	if r.root == "" {
		return nil
	}

	rel := strings.TrimPrefix(key, diskPrefix)
	path, ok := secureJoin(r.root, rel)
	if !ok {
		r.logger.Warn("blocked path traversal attempt", map[string]any{"key": key})
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		path = filepath.Join(path, "index.html")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	return &Response{Status: http.StatusOK, MIME: mimeByPath(path), Body: data}
}

// ExtractKey parses a casement:// URL into its asset key, dropping
// query and fragment. Also accepts a bare key for direct lookups.
func ExtractKey(rawURL string) (string, bool) {
	s := rawURL
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil || u.Scheme != Scheme {
			return "", false
		}
		// The key spans the URL's host and path components:
		// casement://img1 parses img1 as host.
		s = u.Host + u.Path
	} else {
		if i := strings.IndexAny(s, "?#"); i >= 0 {
			s = s[:i]
		}
	}
	s = strings.Trim(s, "/")
	if s == "" {
		return "", false
	}
	if decoded, err := url.PathUnescape(s); err == nil {
		s = decoded
	}
	return s, true
}

// secureJoin joins rel under root, rejecting any path that would
// escape it.
func secureJoin(root, rel string) (string, bool) {
	if filepath.IsAbs(rel) {
		return "", false
	}
	cleaned := filepath.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.Join(root, cleaned), true
}

func mimeByPath(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return DefaultMIME
}

func notFound() *Response {
	return &Response{Status: http.StatusNotFound, MIME: "text/plain", Body: []byte("Not Found")}
}
