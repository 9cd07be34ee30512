package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// Routes mounts the pages, widget fragments and JSON API on r.
// corsOrigins lists the browser origins allowed to call the API.
func (h *Handlers) Routes(r chi.Router, corsOrigins []string) {
	r.NotFound(h.NotFound)
	r.Get("/", h.Root)
	r.Get("/healthz", h.Health)

	r.Get("/login", h.LoginForm)
	r.Post("/login", h.Login)
	r.Get("/register", h.RegisterForm)
	r.Post("/register", h.Register)
	r.Post("/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(h.AuthMiddleware)

		r.Get("/widgets/{section}/{name}", h.Widget)

		r.Get("/dashboard", h.page(dashboardPage))
		r.Get("/dashboard/*", h.page(dashboardPage))

		r.Route("/assets", func(r chi.Router) {
			r.Get("/", h.page(assetsPage))
			r.Get("/*", h.page(assetsPage))
			r.Post("/", h.CreateAsset)
			r.Post("/{id}/value", h.UpdateAssetValue)
			r.Post("/{id}/delete", h.DeleteAsset)
		})
		r.Route("/budget", func(r chi.Router) {
			r.Get("/", h.page(budgetPage))
			r.Get("/*", h.page(budgetPage))
			r.Post("/", h.SetBudget)
			r.Post("/{id}/delete", h.DeleteBudget)
		})
		r.Route("/goal", func(r chi.Router) {
			r.Get("/", h.page(goalPage))
			r.Get("/*", h.page(goalPage))
			r.Post("/", h.CreateGoal)
			r.Post("/{id}/contribute", h.ContributeGoal)
		})
		r.Route("/transaction", func(r chi.Router) {
			r.Get("/", redirectTo("/transaction/list"))
			r.Get("/list", h.page(transactionListPage))
			r.Post("/list", h.CreateTransaction)
			r.Post("/list/{id}/delete", h.DeleteTransaction)
			r.Get("/category", h.page(categoryPage))
			r.Post("/category", h.CreateCategory)
			r.Post("/category/{id}/delete", h.DeleteCategory)
			r.Get("/recurring", h.page(recurringPage))
			r.Post("/recurring", h.CreateRecurring)
			r.Post("/recurring/{id}/toggle", h.ToggleRecurring)
		})
		r.Route("/investment", func(r chi.Router) {
			r.Get("/", redirectTo("/investment/portfolio/products"))
			r.Get("/portfolio/products", h.page(productsPage))
			r.Post("/portfolio/products", h.CreateProduct)
			r.Post("/portfolio/products/{id}/price", h.UpdateProductPrice)
			r.Get("/risk/alerts", h.page(alertsPage))
			r.Post("/risk/alerts/{id}/ack", h.AcknowledgeAlert)
			r.Get("/transactions/dividends", h.page(dividendsPage))
			r.Post("/transactions/dividends", h.RecordDividend)
			r.Get("/transactions/trades", h.page(tradesPage))
			r.Post("/transactions/trades", h.RecordTrade)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
		r.Post("/auth/login", h.APILogin)
		r.Group(func(r chi.Router) {
			r.Use(h.TokenMiddleware)
			r.Get("/auth/me", h.APIMe)
			r.Get("/dashboard/overview", h.APIOverview)
			r.Get("/dashboard/trend", h.APITrend)
			r.Get("/dashboard/assets", h.APIAssets)
			r.Get("/transactions", h.APITransactions)
			r.Post("/transactions", h.APICreateTransaction)
		})
	})
}

// RequestLogger logs every request with its status and duration.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		entry := logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start).String(),
		})
		if id := middleware.GetReqID(r.Context()); id != "" {
			entry = entry.WithField("request_id", id)
		}
		switch {
		case ww.Status() >= http.StatusInternalServerError:
			entry.Error("request")
		case ww.Status() >= http.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	})
}
