package main

//go:generate swag init

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rmaia/advoc/billing"
	"github.com/rmaia/advoc/db"
	_ "github.com/rmaia/advoc/docs"
	"github.com/rmaia/advoc/handlers"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title           Advoc Billing API
// @version         1.0.0
// @description     API for law-office billing: clients, matters, billing rules, time entries, expenses, and invoices.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.basic  BasicAuth

func main() {
	// .env is optional; real deployments set the environment directly
	godotenv.Load()

	// Configure structured logging
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	// Open database
	database, err := db.Open()
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	// Run migrations
	if err := db.Migrate(database); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Set shared DB and authorizer for handlers
	handlers.DB = database
	handlers.Auth = &billing.DBAuthorizer{DB: database}

	// Background overdue sweep
	interval := time.Hour
	if v := os.Getenv("OVERDUE_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			interval = d
		}
	}
	billing.StartOverdueSweeper(database, interval)

	// Router setup
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// API routes with basic auth
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(handlers.BasicAuth)

		// Clients
		r.Get("/clients", handlers.ListClients)
		r.Post("/clients", handlers.CreateClient)
		r.Get("/clients/{id}", handlers.GetClient)
		r.Put("/clients/{id}", handlers.UpdateClient)
		r.Delete("/clients/{id}", handlers.DeleteClient)

		// Matters
		r.Get("/matters", handlers.ListMatters)
		r.Post("/matters", handlers.CreateMatter)
		r.Get("/matters/{id}", handlers.GetMatter)
		r.Put("/matters/{id}", handlers.UpdateMatter)
		r.Delete("/matters/{id}", handlers.DeleteMatter)

		// Billing rules
		r.Get("/billing-rules", handlers.ListBillingRules)
		r.Post("/billing-rules", handlers.CreateBillingRule)
		r.Get("/billing-rules/{id}", handlers.GetBillingRule)
		r.Put("/billing-rules/{id}", handlers.UpdateBillingRule)
		r.Delete("/billing-rules/{id}", handlers.DeleteBillingRule)

		// Time entries
		r.Get("/time-entries", handlers.ListTimeEntries)
		r.Get("/time-entries/unbilled", handlers.ListUnbilledTimeEntries)
		r.Post("/time-entries", handlers.CreateTimeEntry)
		r.Put("/time-entries/{id}", handlers.UpdateTimeEntry)
		r.Delete("/time-entries/{id}", handlers.DeleteTimeEntry)

		// Expenses
		r.Get("/expenses", handlers.ListExpenses)
		r.Get("/expenses/unbilled", handlers.ListUnbilledExpenses)
		r.Post("/expenses", handlers.CreateExpense)
		r.Put("/expenses/{id}", handlers.UpdateExpense)

		// Invoices
		r.Get("/invoices", handlers.ListInvoices)
		r.Get("/invoices/{id}", handlers.GetInvoice)
		r.Post("/invoices/generate", handlers.GenerateInvoice)
		r.Post("/invoices/{id}/send", handlers.SendInvoice)
		r.Post("/invoices/{id}/pay", handlers.MarkInvoicePaid)
		r.Post("/invoices/{id}/cancel", handlers.CancelInvoice)
		r.Post("/invoices/{id}/payment-link", handlers.RequestPaymentLink)
		r.Post("/invoices/{id}/items", handlers.AppendInvoiceItem)
		r.Delete("/invoices/{id}/items/{itemID}", handlers.RemoveInvoiceItem)

		// Dashboard
		r.Get("/dashboard", handlers.GetDashboard)
	})

	// Swagger UI
	r.Get("/swagger/*", httpSwagger.WrapHandler)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := fmt.Sprintf(":%s", port)
	slog.Info("server starting", "address", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
