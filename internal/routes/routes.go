package routes

import (
	"net/http"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/docstash/docstash/internal/auth"
	"github.com/docstash/docstash/internal/config"
	"github.com/docstash/docstash/internal/handlers"
	"github.com/docstash/docstash/internal/storage"
	"github.com/docstash/docstash/internal/upload"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Setup wires all HTTP routes and middleware onto the router.
func Setup(r chi.Router, db *gorm.DB, cfg *config.Config, backend storage.Backend, assembler *upload.Assembler, version string) {
	authenticator := auth.NewAuthenticator(db, cfg)

	authHandler := handlers.NewAuthHandler(authenticator)
	fileHandler := handlers.NewFileHandler(db, cfg, backend)
	uploadHandler := handlers.NewUploadHandler(assembler, cfg)
	healthHandler := handlers.NewHealthHandler(db, backend, version)

	// 5 attempts per 15 minutes per IP on credential endpoints.
	authRateLimiter := tollbooth.NewLimiter(5.0/900.0, &limiter.ExpirableOptions{
		DefaultExpirationTTL: 15 * time.Minute,
	})
	authRateLimiter.SetBurst(5)
	authRateLimiter.SetMessage(`{"error":"Too many requests. Please try again later."}`)
	authRateLimiter.SetMessageContentType("application/json")

	// Uploads get a higher allowance than credential endpoints.
	uploadRateLimiter := tollbooth.NewLimiter(10.0/900.0, &limiter.ExpirableOptions{
		DefaultExpirationTTL: 15 * time.Minute,
	})
	uploadRateLimiter.SetBurst(10)
	uploadRateLimiter.SetMessage(`{"error":"Too many requests. Please try again later."}`)
	uploadRateLimiter.SetMessageContentType("application/json")

	rateLimit := func(l *limiter.Limiter) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return tollbooth.LimitHandler(l, next)
		}
	}

	r.Get("/api/health", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Credential endpoints, rate limited, no auth required.
	r.Group(func(r chi.Router) {
		r.Use(rateLimit(authRateLimiter))
		r.Post("/api/auth/register", authHandler.Register)
		r.Post("/api/auth/login", authHandler.Login)
	})

	r.Post("/api/auth/refresh", authHandler.Refresh)

	// Everything below requires a valid access token.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(authenticator))

		r.Post("/api/auth/logout", authHandler.Logout)
		r.Get("/api/auth/profile", authHandler.Profile)
		r.Put("/api/auth/profile", authHandler.UpdateProfile)

		r.Get("/api/files/config", fileHandler.Config)
		r.Get("/api/files", fileHandler.List)
		r.Get("/api/files/search", fileHandler.Search)
		r.Get("/api/files/{id}/download", fileHandler.Download)
		r.Get("/api/files/{id}/metadata", fileHandler.Metadata)
		r.Delete("/api/files/{id}", fileHandler.Delete)

		r.Group(func(r chi.Router) {
			r.Use(rateLimit(uploadRateLimiter))
			r.Post("/api/files/upload", fileHandler.Upload)
			r.Post("/api/files/upload/multiple", fileHandler.UploadMultiple)
			r.Post("/api/files/upload/init", uploadHandler.Init)
		})

		// Chunk and completion traffic is driven by init, so it is not
		// separately rate limited.
		r.Post("/api/files/upload/chunk", uploadHandler.Chunk)
		r.Post("/api/files/upload/complete", uploadHandler.Complete)
		r.Post("/api/files/upload/{id}/cancel", uploadHandler.Cancel)
	})
}
