/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for operational tooling

ROUTE GROUPS:
  /api/loans/*   Loan lifecycle, postings, pauses, derived views
  /api/admin/*   Close of business

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/loans", func(r chi.Router) {
			r.Get("/", h.ListLoans)
			r.Post("/", h.CreateLoan)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetLoan)
				r.Post("/approve", h.ApproveLoan)
				r.Get("/summary", h.GetSummary)
				r.Get("/schedule", h.GetSchedule)

				r.Post("/disbursements", h.PostDisbursement)
				r.Post("/repayments", h.PostRepayment)
				r.Post("/chargebacks", h.PostChargeback)

				r.Route("/charges", func(r chi.Router) {
					r.Post("/", h.PostCharge)
					r.Post("/{chargeID}/adjust", h.AdjustCharge)
				})

				r.Route("/transactions", func(r chi.Router) {
					r.Get("/", h.GetTransactions)
					r.Post("/{txID}/reverse", h.ReverseTransaction)
					r.Get("/{txID}/journal", h.GetJournal)
				})

				r.Route("/pauses", func(r chi.Router) {
					r.Get("/", h.ListPauses)
					r.Post("/", h.CreatePause)
					r.Put("/{pauseID}", h.UpdatePause)
					r.Delete("/{pauseID}", h.DeletePause)
				})
			})
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/close-of-business", h.RunCloseOfBusiness)
		})
	})

	return r
}
