/**
 * @description
 * This file sets up the HTTP router for the Heritage API. It defines the customer,
 * admin and internal endpoints, associates them with their handlers, and applies the
 * middleware chain (access logs, panic recovery, timeouts, CORS, per-IP rate limits,
 * request metrics and authentication).
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling for the browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/agent-support/projectheritag/internal/metrics"
	appmiddleware "github.com/agent-support/projectheritag/pkg/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterConfig carries the settings the router needs besides the handlers.
type RouterConfig struct {
	Auth                   AuthConfig
	InternalAPIKey         string
	AllowedOrigins         []string
	HTTPRateLimitPerMinute int
	Metrics                *metrics.Metrics
	Registry               *prometheus.Registry
}

// NewRouter creates and returns the router of the API binary.
func NewRouter(h *Handlers, admins AdminChecker, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if cfg.HTTPRateLimitPerMinute > 0 {
		r.Use(appmiddleware.RateLimitMiddleware(cfg.HTTPRateLimitPerMinute))
	}
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	if cfg.Registry != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Registry))
	}

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(cfg.InternalAPIKey))
		r.Post("/prices/refresh", h.RefreshPricesHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Auth))

		r.Post("/me/profile", h.BootstrapProfileHandler)
		r.Get("/me", h.GetProfileHandler)
		r.Patch("/me", h.UpdateProfileHandler)
		r.Get("/me/dashboard", h.DashboardHandler)

		r.Get("/me/pin", h.PINStatusHandler)
		r.Post("/me/pin", h.SetupPINHandler)
		r.Put("/me/pin", h.ChangePINHandler)

		r.Get("/accounts", h.ListAccountsHandler)
		r.Get("/transactions", h.ListTransactionsHandler)
		r.Get("/transactions/{id}/receipt", h.TransactionReceiptHandler)

		r.Post("/transfers", h.SubmitTransferHandler)
		r.Get("/transfers", h.ListTransfersHandler)
		r.Post("/internal-transfers", h.InternalTransferHandler)

		r.Get("/bills", h.ListBillsHandler)
		r.Post("/bills/{id}/pay", h.PayBillHandler)

		r.Route("/crypto", func(r chi.Router) {
			r.Get("/prices", h.CryptoPricesHandler)
			r.Get("/wallets", h.ListWalletsHandler)
			r.Get("/wallets/{symbol}/address", h.ReceiveAddressHandler)
			r.Get("/transactions", h.ListCryptoTransactionsHandler)
			r.Post("/send", h.SendCryptoHandler)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminOnly(admins))

			r.Get("/overview", h.AdminOverviewHandler)
			r.Get("/users", h.AdminListUsersHandler)
			r.Get("/users/{userID}", h.AdminUserViewHandler)
			r.Patch("/users/{userID}", h.AdminUpdateProfileHandler)
			r.Put("/users/{userID}/status", h.AdminSetUserStatusHandler)
			r.Post("/users/{userID}/activate", h.AdminActivateUserHandler)
			r.Post("/users/{userID}/crypto", h.AdminAddCryptoHandler)

			r.Post("/accounts/{accountID}/balance", h.AdminAdjustBalanceHandler)
			r.Put("/accounts/{accountID}/balance", h.AdminSetBalanceHandler)
			r.Put("/accounts/{accountID}/status", h.AdminSetAccountStatusHandler)
			r.Patch("/transactions/{transactionID}", h.AdminEditTransactionHandler)

			r.Get("/transfers", h.AdminListTransfersHandler)
			r.Post("/transfers/{transferID}/approve", h.AdminApproveTransferHandler)
			r.Post("/transfers/{transferID}/reject", h.AdminRejectTransferHandler)

			r.Get("/wallets", h.AdminListWalletsHandler)
			r.Put("/wallets/{walletID}/address", h.AdminUpdateWalletAddressHandler)
			r.Patch("/wallets/{walletID}", h.AdminUpdateWalletHandler)

			r.Get("/crypto-fees", h.AdminListCryptoFeesHandler)
			r.Put("/crypto-fees/{userID}", h.AdminUpdateCryptoFeeHandler)

			r.Get("/logs", h.AdminListLogsHandler)
		})
	})

	return r
}
