package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/list-builder/internal/config"
	"github.com/ignite/list-builder/internal/metrics"
)

// SetupRoutes configures all API routes. m may be nil, in which case
// /metrics is not mounted.
func SetupRoutes(h *Handlers, hc *HealthChecker, m *metrics.Metrics, corsCfg config.CORSConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(metrics.HTTPMiddleware)

	origins := corsCfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Export-ID", "X-Total-Count", "X-Suppressed-Count"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", hc.HandleHealth)
	r.Get("/health/live", hc.HandleLiveness)
	r.Get("/health/ready", hc.HandleReadiness)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/databases", h.ListDatabases)
		r.Get("/databases/{dbID}/tables", h.ListTables)
		r.Get("/tables/{tableID}/fields", h.ListFields)

		r.Post("/fields/values", h.FieldValues)
		r.Post("/fields/samples", h.FieldSamples)

		r.Post("/count", h.Count)
		r.Post("/preview", h.Preview)
		r.Post("/export", h.Export)
		r.Post("/campaign/export", h.CampaignExport)

		r.Route("/ai", func(r chi.Router) {
			r.Post("/analyze", h.Analyze)
			r.Post("/preview", h.AIPreview)
			r.Post("/export", h.AIExport)
		})
	})

	return r
}
