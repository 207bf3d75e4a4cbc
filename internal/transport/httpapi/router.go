package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kislikjeka/chargehub/internal/transport/httpapi/handler"
	"github.com/kislikjeka/chargehub/internal/transport/httpapi/middleware"
	"github.com/kislikjeka/chargehub/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger         *logger.Logger
	AllowedOrigins []string
	AuthHandler    *handler.AuthHandler
	WalletHandler  *handler.WalletHandler
	HealthHandler  *handler.HealthHandler
	JWTMiddleware  func(http.Handler) http.Handler
}

// NewRouter creates a new HTTP router
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	r.Use(middleware.RateLimit()) // Rate limiting: 100 req/s with burst of 20

	// Health check endpoint (no authentication required)
	if cfg.HealthHandler != nil {
		r.Get("/health", cfg.HealthHandler.GetHealth)
	}

	// Auth routes (public)
	if cfg.AuthHandler != nil {
		r.Post("/auth/register", cfg.AuthHandler.Register)
		r.Post("/auth/login", cfg.AuthHandler.Login)
	}

	// Transfer routes. Callers identify themselves by phone number in the
	// body; the admin endpoints additionally gate on the ADMIN role.
	if cfg.WalletHandler != nil {
		r.Post("/credit_request", cfg.WalletHandler.CreateCreditRequest)
		r.Post("/charge_sale", cfg.WalletHandler.CreateChargeSale)
		r.Post("/admin/process_credit_request", cfg.WalletHandler.ProcessCreditRequest)
		r.Post("/admin/reconcile_wallet", cfg.WalletHandler.ReconcileWallet)

		// Protected routes (require JWT authentication)
		if cfg.JWTMiddleware != nil {
			r.Group(func(r chi.Router) {
				r.Use(cfg.JWTMiddleware)
				r.Get("/wallet/balance", cfg.WalletHandler.GetBalance)
				r.Get("/wallet/transactions", cfg.WalletHandler.GetTransactions)
			})
		}
	}

	return r
}
