package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/corsserve/corsserve/fs"
	"github.com/go-chi/chi/v5/middleware"
)

var onlyOnceWarningAllowOrigin sync.Once

// MiddlewareCORS instantiates middleware that sets the
// Access-Control-Allow-Origin header on every response
func MiddlewareCORS(allowOrigin string) Middleware {
	onlyOnceWarningAllowOrigin.Do(func() {
		if allowOrigin == "*" {
			fs.Infof(nil, "Allow origin set to * - any web page can read the served files")
		}
	})

	return func(next http.Handler) http.Handler {
		if allowOrigin == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			next.ServeHTTP(w, r)
		})
	}
}

// MiddlewareStripPrefix instantiates middleware that removes the BaseURL from the path
func MiddlewareStripPrefix(prefix string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.StripPrefix(prefix, next)
	}
}

// MiddlewareAccessLog instantiates middleware that logs each request
// at INFO level once it has been answered
func MiddlewareAccessLog() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			fs.Infof(r.URL.Path, "%s: %s %v %v bytes in %v",
				r.RemoteAddr,
				fs.LogValue("method", r.Method),
				fs.LogValue("status", ResponseStatus(ww)),
				fs.LogValue("bytes", ww.BytesWritten()),
				time.Since(start),
			)
		})
	}
}

// ResponseStatus returns the status written to ww, treating a
// response which never wrote a header as 200
func ResponseStatus(ww middleware.WrapResponseWriter) int {
	if status := ww.Status(); status != 0 {
		return status
	}
	return http.StatusOK
}
