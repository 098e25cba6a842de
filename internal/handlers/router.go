package handlers

import (
	"net/http"

	"validhub/internal/config"
	"validhub/internal/db"
	"validhub/internal/middleware"
	"validhub/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	txRunner    db.TxRunner
	cfg         config.Config
	users       UserStore
	accounts    AccountStore
	tests       TestStore
	submissions SubmissionStore
	ledger      LedgerStore
	orders      OrderStore
	admin       AdminStore
	audit       AuditStore
	engine      LedgerEngine
	payments    PaymentService
	hub         *websocket.Hub
}

func New(txRunner db.TxRunner, cfg config.Config, users UserStore, accounts AccountStore, tests TestStore, submissions SubmissionStore, ledger LedgerStore, orders OrderStore, admin AdminStore, audit AuditStore, engine LedgerEngine, payments PaymentService, hub *websocket.Hub) *Handler {
	return &Handler{
		txRunner:    txRunner,
		cfg:         cfg,
		users:       users,
		accounts:    accounts,
		tests:       tests,
		submissions: submissions,
		ledger:      ledger,
		orders:      orders,
		admin:       admin,
		audit:       audit,
		engine:      engine,
		payments:    payments,
		hub:         hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})

	router.Route("/credits", func(r chi.Router) {
		r.Get("/packs", h.ListPacks)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(h.cfg.JWTSecret))
			r.Get("/balance", h.GetBalance)
			r.Get("/transactions", h.ListTransactions)
			r.Get("/self-check", h.SelfCheck)
		})
	})

	router.Route("/payments", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Post("/checkout", h.CreateCheckout)
		r.Post("/verify", h.VerifyPayment)
		r.Get("/orders", h.ListOrders)
	})

	router.Route("/tests", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Post("/", h.PostTest)
		r.Get("/", h.ListTests)
		r.Get("/mine", h.ListMyTests)
		r.Get("/{id}", h.GetTest)
		r.Post("/{id}/close", h.CloseTest)
		r.Post("/{id}/feedback", h.SubmitFeedback)
		r.Get("/{id}/feedback", h.ListTestFeedback)
	})

	router.Route("/feedback", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Get("/mine", h.ListMyFeedback)
		r.Post("/{id}/approve", h.ApproveFeedback)
		r.Post("/{id}/reject", h.RejectFeedback)
	})

	router.Get("/ws/balances", h.WSBalances)

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.With(middleware.RequireAdmin(h.admin, "CanViewUsers")).Get("/users", h.AdminListUsers)
		r.With(middleware.RequireAdmin(h.admin, "CanViewTransactions")).Get("/transactions", h.AdminListTransactions)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/credits/adjust", h.AdjustCredits)
		r.With(middleware.RequireAdmin(h.admin, "")).Post("/promote", h.PromoteAdmin)
		r.With(middleware.RequireAdmin(h.admin, "CanViewTransactions")).Get("/audit", h.ListAuditLogs)
		r.With(middleware.RequireAdmin(h.admin, "CanViewTransactions")).Get("/reconcile", h.Reconcile)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
