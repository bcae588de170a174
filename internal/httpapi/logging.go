package httpapi

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger used by the HTTP layer. Nop until SetLogger.
var zlog atomic.Pointer[zerolog.Logger]

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) {
	l = l.With().Str("component", "httpapi").Logger()
	zlog.Store(&l)
}

func logger() *zerolog.Logger {
	if l := zlog.Load(); l != nil {
		return l
	}
	nop := zerolog.Nop()
	return &nop
}

// accessLog logs one line per request: debug for 2xx/3xx, warn otherwise.
// Probes hit /healthz and /readyz often, so success stays quiet by default.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ev := logger().Debug()
		if status >= 400 {
			ev = logger().Warn()
		}
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			ev = ev.Str("request_id", rid)
		}
		ev.Str("method", r.Method).
			Str("path", routePatternOrPath(r)).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("dur", time.Since(start)).
			Msg("http request")
	})
}
