package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/faceverify/internal/web/handlers"
	"github.com/kozaktomas/faceverify/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.service)
	faceHandler := handlers.NewFaceHandler(s.service, s.config.Face.MaxUploadBytes)
	referencesHandler := handlers.NewReferencesHandler(s.references, s.config.Face.MaxUploadBytes)
	cacheHandler := handlers.NewCacheHandler(s.service)

	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)

		r.With(middleware.RateLimitByIP(s.config.Web.RateLimit)).
			Post("/verify-face", faceHandler.Verify)

		r.Route("/employees/{employeeId}/biometric-face", func(r chi.Router) {
			r.Get("/", referencesHandler.Get)
			r.Put("/", referencesHandler.Replace)
			r.Delete("/", referencesHandler.Delete)
		})

		r.Route("/face-cache", func(r chi.Router) {
			r.Get("/stats", cacheHandler.Stats)
			r.Delete("/", cacheHandler.Clear)
			r.Delete("/{employeeId}", cacheHandler.Invalidate)
		})
	})
}
