package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/screenshot-api/internal/api/handlers"
	"github.com/onnwee/screenshot-api/internal/apierr"
	"github.com/onnwee/screenshot-api/internal/cache"
	"github.com/onnwee/screenshot-api/internal/middleware"
)

// Deps are the services the HTTP layer calls into.
type Deps struct {
	Dispatcher handlers.Dispatcher
	Resolver   handlers.StatusResolver
	CacheStats handlers.CacheStats
	Sweeper    handlers.SweepRunner
	Limits     cache.JanitorConfig
	// Ready checks back GET /health/ready. Nil means always ready.
	Ready map[string]handlers.Check
}

// Options configures the middleware around the routes.
type Options struct {
	AdminToken   string
	CORSOrigins  []string
	RateLimiter  *middleware.RateLimiter // nil disables rate limiting
	MaxBodyBytes int64
	Stream       handlers.StreamConfig
}

// NewRouter registers every route on a mux router.
func NewRouter(d Deps, opts Options) *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		apierr.WriteErrorWithContext(w, req, apierr.ResourceNotFound("route"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		apierr.WriteErrorWithContext(w, req, apierr.MethodNotAllowed())
	})
	r.Use(middleware.Metrics)

	shots := handlers.NewScreenshotHandler(d.Dispatcher)
	status := handlers.NewStatusHandler(d.Resolver, opts.Stream)

	// Screenshots
	r.HandleFunc("/screenshot", shots.Capture).Methods("GET", "POST")
	r.HandleFunc("/screenshot/status/{job_id}", status.Get).Methods("GET")
	r.HandleFunc("/screenshot/status/{job_id}/ws", status.Stream).Methods("GET")

	// Health and metrics
	r.HandleFunc("/health", handlers.Health).Methods("GET")
	r.HandleFunc("/health/ready", handlers.Ready(d.Ready)).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Admin
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.AdminAuth(opts.AdminToken))
	cacheAdmin := handlers.NewCacheAdminHandler(d.CacheStats, d.Sweeper, d.Limits)
	admin.HandleFunc("/cache/stats", cacheAdmin.GetCacheStats).Methods("GET")
	admin.HandleFunc("/cache/sweep", cacheAdmin.Sweep).Methods("POST")

	return r
}

// NewHandler wraps the router in the server-wide middleware chain. The chain
// sits outside the router so CORS preflights and unmatched routes get the
// same treatment as matched ones.
func NewHandler(d Deps, opts Options) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = middleware.MaxRequestBodySize
	}

	var h http.Handler = NewRouter(d, opts)
	h = middleware.Compress(h)
	h = middleware.LimitRequestBody(opts.MaxBodyBytes)(h)
	if opts.RateLimiter != nil {
		h = opts.RateLimiter.Limit(h)
	}
	h = middleware.CORS(middleware.DefaultCORSConfig(opts.CORSOrigins...))(h)
	h = middleware.SecurityHeaders(h)
	h = middleware.RecoverWithSentry(h)
	h = middleware.RequestID(h)
	return h
}
