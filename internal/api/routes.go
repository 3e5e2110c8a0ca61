package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the full route tree.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/customers", func(r chi.Router) {
			r.Post("/", h.IngestCustomer)
			r.Post("/batch", h.IngestCustomerBatch)
			r.Get("/{id}", h.GetCustomer)
		})
		r.Post("/orders", h.IngestOrder)

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", h.CreateCampaign)
			r.Get("/", h.ListCampaigns)
			r.Post("/preview", h.PreviewAudience)
			r.Get("/{id}", h.GetCampaign)
			r.Get("/{id}/logs", h.GetCampaignLogs)
			r.Get("/{id}/realtime", h.GetCampaignRealtime)
		})

		// Vendor callback.
		r.Post("/delivery-receipt", h.DeliveryReceipt)
		r.Post("/vendor/send", h.VendorSend)
	})

	return r
}
