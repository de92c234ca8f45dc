package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/stars-paywall/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса платного доступа.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/payment", func(r chi.Router) {
		r.Post("/create-invoice", h.CreateInvoice)
		r.Post("/check-payment-status", h.CheckStatus)
		// прежний путь мини-приложения
		r.Post("/check-status", h.CheckStatus)
		r.Get("/status", h.Status)
		r.Post("/confirm", h.Confirm)

		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.WebhookSecret(h.opts.WebhookSecret, h.logger))

			r.Post("/webhook", h.Webhook)
		})
	})

	metrics := h.opts.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metrics)
	r.Get("/healthz", h.Healthz)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, msgNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
