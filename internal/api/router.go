package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dav22-wa/uni-mood-share/internal/api/middleware"
	"github.com/dav22-wa/uni-mood-share/internal/handlers"
	"github.com/dav22-wa/uni-mood-share/internal/store"
)

// RouterConfig carries the wired services the router exposes.
type RouterConfig struct {
	Logger             zerolog.Logger
	DB                 store.DataStore
	Redis              *store.RedisStore
	Handler            *handlers.Handler
	RateLimitWhitelist []string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024 * 1024)) // uploads ride JSON, so allow 8MB
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(chimw.Recoverer)

	// Rate limiting for the public surface; the authed group mounts
	// its own limiter behind RequireAuth so per-user keys see the
	// session
	rlCfg := middleware.RateLimiterConfig{Whitelist: cfg.RateLimitWhitelist}
	publicLimiter := middleware.NewRateLimiter(cfg.Redis.Client(), cfg.Logger, rlCfg, middleware.PublicLimits())
	authedLimiter := middleware.NewRateLimiter(cfg.Redis.Client(), cfg.Logger, rlCfg, middleware.AuthedLimits())
	r.Use(publicLimiter.Middleware)

	// CORS - allow all origins (clients call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := cfg.Handler
	auth := middleware.NewAuthMiddleware(cfg.DB, cfg.Redis)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Post("/register", h.Register)
	r.Get("/blobs/{name}", h.ServeBlob)

	// Authenticated routes (require a bearer token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		r.Use(authedLimiter.Middleware)

		r.Post("/mood", h.Checkin)
		r.Get("/mood/matches", h.Matches)

		r.Get("/rooms", h.ListRooms)
		r.Get("/rooms/{kind}/{key}/messages", h.ListRoomMessages)
		r.Post("/rooms/{kind}/{key}/messages", h.PostRoomMessage)
		r.Get("/rooms/{kind}/{key}/events", h.RoomEvents)

		r.Delete("/messages/{id}", h.DeleteMessage)
		r.Post("/messages/{id}/report", h.ReportMessage)
		r.Post("/messages/{id}/read", h.MarkMessageRead)

		r.Get("/dm/{peer}/messages", h.ListDMs)
		r.Post("/dm/{peer}/messages", h.SendDM)
		r.Post("/dm/{peer}/read", h.MarkConversationRead)
		r.Get("/dm/{peer}/events", h.DMEvents)

		r.Post("/uploads", h.Upload)

		r.Get("/users", h.SearchUsers)
		r.Get("/users/{id}", h.GetUser)

		r.Get("/contacts", h.ListContacts)
		r.Post("/contacts/{id}", h.AddContact)
		r.Delete("/contacts/{id}", h.RemoveContact)

		r.Post("/presence/{channel}/join", h.JoinChannel)
		r.Post("/presence/{channel}/heartbeat", h.HeartbeatChannel)
		r.Post("/presence/{channel}/leave", h.LeaveChannel)
		r.Get("/presence/{channel}", h.ChannelSnapshot)
		r.Get("/presence/{channel}/events", h.ChannelEvents)
	})

	return r
}
