package middleware

import (
	"net/http"
	"strings"

	"github.com/klauspost/compress/gzhttp"
)

// compressibleTypes covers the JSON API and the rendered dashboard.
var compressibleTypes = []string{"application/json", "text/html", "text/plain"}

var gzipWrapper = mustGzipWrapper()

func mustGzipWrapper() func(http.Handler) http.HandlerFunc {
	wrapper, err := gzhttp.NewWrapper(
		gzhttp.MinSize(0),
		gzhttp.CompressionLevel(5),
		gzhttp.ContentTypes(compressibleTypes),
	)
	if err != nil {
		panic("gzip middleware: " + err.Error())
	}
	return wrapper
}

// Compression gzips API responses for clients that accept it.
// Websocket upgrades pass through untouched: the hijacked connection must stay raw.
func Compression(next http.Handler) http.Handler {
	compressed := gzipWrapper(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})
}
