package http

import (
	"net/http"
	"time"

	"github.com/dvelarde/yt-playlist-api-go/internal/config"
	"github.com/dvelarde/yt-playlist-api-go/internal/domain"
	"github.com/dvelarde/yt-playlist-api-go/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RateLimiters holds the rate limiters for different endpoint types.
type RateLimiters struct {
	Batch  *middleware.RateLimiter // restrictive: starts expensive batch work
	Lookup *middleware.RateLimiter // permissive: metadata and retrieval reads
}

// NewRouter creates a new chi router with all routes and middleware configured.
func NewRouter(cfg *config.Config, handlers *Handlers, limiters *RateLimiters) http.Handler {
	r := chi.NewRouter()

	// Basic middleware (applied to all routes)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Compression. Event streams are not in the default content-type
	// list, so progress channels stay unbuffered.
	r.Use(chimiddleware.Compress(5))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Remaining", "Retry-After", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	// Health check (no rate limiting)
	r.Get("/api/health", handlers.HealthHandler)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Lookup endpoints. Bounded request timeout; none of these streams.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitMiddleware(limiters.Lookup))
			r.Use(chimiddleware.Timeout(lookupTimeout(cfg)))

			r.Get("/playlist/info", handlers.PlaylistInfoHandler)
			r.Get("/history", handlers.HistoryHandler)
			r.Post("/youtube/info", handlers.VideoInfoHandler)
			r.Post("/youtube/download", handlers.VideoDownloadHandler)
			r.Post("/youtube/audio", handlers.VideoAudioHandler)
		})

		// Archive retrieval. Large transfers, so a longer timeout.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitMiddleware(limiters.Lookup))
			r.Use(chimiddleware.Timeout(5 * time.Minute))

			r.Get("/playlist/zip/{jobId}", handlers.ArchiveHandler)
		})

		// Batch progress streams. No timeout middleware: the stream stays
		// open for the lifetime of the batch.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitMiddleware(limiters.Batch))

			r.Get("/playlist/audio/progress", handlers.PlaylistProgressHandler(domain.KindAudio))
			r.Get("/playlist/video/progress", handlers.PlaylistProgressHandler(domain.KindVideo))
		})
	})

	// Catch-all for undefined routes
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found", "NOT_FOUND")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "METHOD_NOT_ALLOWED")
	})

	return r
}

// lookupTimeout leaves headroom over the slowest lookup operation, the
// playlist resolution, so the route deadline never fires before the
// tool's own timeout does.
func lookupTimeout(cfg *config.Config) time.Duration {
	t := cfg.ResolveTimeout + 15*time.Second
	if t < 30*time.Second {
		t = 30 * time.Second
	}
	return t
}

// NewServer creates a new HTTP server. WriteTimeout is zero because both
// the progress streams and archive transfers are long-lived; per-route
// deadlines come from the timeout middleware instead.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}
}
