package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/maneesh/voicehub/internal/metrics"
)

// statusWriter remembers the status code a handler wrote. A handler that
// only calls Write reports 200.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// LogEntry is one access log line. Route is the mux path template, the same
// value the request metrics are labelled with; Path is the raw URL path.
type LogEntry struct {
	IP         string
	Method     string
	Route      string
	Path       string
	Proto      string
	DurationMS float64
	StatusCode int
}

func (e LogEntry) User() slog.Attr {
	return slog.Group("user", "ip", e.IP)
}

func (e LogEntry) Request() slog.Attr {
	return slog.Group("request",
		"proto", e.Proto,
		"method", e.Method,
		"route", e.Route,
		"path", e.Path,
		"duration_ms", e.DurationMS,
		"status_code", e.StatusCode,
	)
}

// Level maps the status code to a log level: 5xx errors, 4xx warnings.
func (e LogEntry) Level() slog.Level {
	switch {
	case e.StatusCode >= 500:
		return slog.LevelError
	case e.StatusCode >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// LogRequest logs every request through the default slog logger once the
// handler returns.
func LogRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}

		start := time.Now()
		next.ServeHTTP(sw, r)

		entry := LogEntry{
			IP:         r.RemoteAddr,
			Method:     r.Method,
			Route:      metrics.Route(r),
			Path:       r.URL.Path,
			Proto:      r.Proto,
			DurationMS: float64(time.Since(start).Nanoseconds()) / float64(time.Millisecond),
			StatusCode: sw.status,
		}
		slog.Log(r.Context(), entry.Level(), "Request", entry.User(), entry.Request())
	})
}

// Recoverer turns handler panics into a 500.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					// we don't recover http.ErrAbortHandler so the response
					// to the client is aborted, this should not be logged
					panic(rvr)
				}

				slog.Error("Internal Error in HTTP handler", "error", rvr)

				if r.Header.Get("Connection") != "Upgrade" {
					w.WriteHeader(http.StatusInternalServerError)
				}
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// CORS answers preflight requests and adds permissive CORS headers to every
// response. Browsers talk to the API from the marketplace origin.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
