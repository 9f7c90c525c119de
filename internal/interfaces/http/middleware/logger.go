package middleware

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dreschagin/pagespeed-monitor/pkg/logger"
)

// RequestIDHeader связывает запись access log с ответом клиенту
const RequestIDHeader = "X-Request-ID"

// Logger пишет access log. Маршрут берется из шаблона ServeMux, а не из пути,
// поэтому /api/urls/7 и /api/urls/8 попадают в одну группу.
func Logger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" || len(requestID) > 64 {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = r.URL.Path
			}
			kv := []interface{}{
				"request_id", requestID,
				"method", r.Method,
				"route", route,
				"status", rec.status,
				"bytes", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", ClientIP(r),
			}

			switch {
			case isProbePath(r.URL.Path):
				log.Debug("HTTP request", kv...)
			case rec.status >= http.StatusInternalServerError:
				log.Warn("HTTP request failed", kv...)
			default:
				log.Info("HTTP request", kv...)
			}
		})
	}
}

// Recovery превращает panic в обработчике в 500
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error("Panic in HTTP handler", nil, "panic", rec, "method", r.Method, "path", r.URL.Path)
				WriteJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "internal server error"})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func isProbePath(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}

// statusRecorder запоминает код ответа и размер тела
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// Hijack нужен gorilla/websocket
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	s.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// Flush нужен потоковым ответам promhttp
func (s *statusRecorder) Flush() {
	if flusher, ok := s.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap открывает исходный writer для http.ResponseController
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
