package publish

import (
	"mime"
	"path/filepath"
)

// Explicit overrides for types the platform mime database gets wrong
// or leaves unset. Sphinx output leans heavily on these.
var contentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".js":    "application/javascript",
	".json":  "application/json",
	".svg":   "image/svg+xml",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".txt":   "text/plain; charset=utf-8",
}

// ContentTypeFor derives the content type served by the CDN for a
// documentation file.
func ContentTypeFor(path string) string {
	ext := filepath.Ext(path)
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
