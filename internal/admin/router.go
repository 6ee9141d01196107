package admin

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wtask/sharechat/internal/chat"
	"github.com/wtask/sharechat/internal/chat/catalog"
	"github.com/wtask/sharechat/internal/logger"
)

// Source provides read-only snapshots of the chat server state.
type Source interface {
	Sessions() []chat.SessionInfo
	Files() []catalog.Entry
}

// NewRouter creates the chi router of the admin endpoints.
//
// Routes:
//   - GET /health - Liveness probe with connection count
//   - GET /metrics - Prometheus exposition of the given gatherer
//   - GET /api/v1/users - Connected sessions
//   - GET /api/v1/files - Downloadable files
func NewRouter(src Source, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		JSON(w, http.StatusOK, HealthyResponse(map[string]interface{}{
			"service":     "sharechat",
			"connections": len(src.Sessions()),
		}))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/users", func(w http.ResponseWriter, _ *http.Request) {
			JSON(w, http.StatusOK, OKResponse(src.Sessions()))
		})
		r.Get("/files", func(w http.ResponseWriter, _ *http.Request) {
			JSON(w, http.StatusOK, OKResponse(src.Files()))
		})
	})

	return r
}

// requestLogger logs requests using the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("admin request completed",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			logger.KeyBytes, ww.BytesWritten(),
			logger.KeyDurationMs, logger.Duration(start),
		)
	})
}
