package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/FileVault/internal/observability"
)

// RequestLogger logs every request with timing and status, and feeds the
// request duration histogram.
func RequestLogger(logger *zap.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			// Label by the route pattern, not the raw path: ids in the
			// path would mint a new series per file.
			route := "unrouted"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}

			duration := time.Since(start)
			metrics.RequestDuration.
				WithLabelValues(r.Method+" "+route, strconv.Itoa(ww.Status())).
				Observe(duration.Seconds())

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", duration),
			)
		})
	}
}

// Tracing opens a span per request on the global tracer provider.
func Tracing() func(http.Handler) http.Handler {
	tracer := otel.Tracer("filevault/server")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
			span.SetAttributes(attribute.String("http.method", r.Method))
			defer span.End()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
