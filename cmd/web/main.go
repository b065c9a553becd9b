package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"sales-insights/internal/config"
	"sales-insights/internal/middleware"
	"sales-insights/internal/observability"
	"sales-insights/internal/server"
	"sales-insights/internal/services"
	"sales-insights/internal/ui/templates"
)

const (
	renderTimeout  = 10 * time.Second
	csvLoadTimeout = 30 * time.Second
	cacheMaxAge    = "public, max-age=300"
	pageTitle      = "Health Drink Sales Insights"
)

// newDashboardHandler renders the page shell. Its content depends only on the loaded
// dataset, so the page data is built once.
func newDashboardHandler(dashboard *services.Dashboard) http.HandlerFunc {
	stats := dashboard.Stats()
	page := templates.Dashboard(templates.PageData{
		Title:    pageTitle,
		Records:  stats.Records,
		Options:  stats.Options,
		Defaults: dashboard.DefaultCriteria(),
		Tabs:     stats.Tabs,
	})

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", cacheMaxAge)
		if err := page.Render(ctx, w); err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

func newHandler(cfg *config.Config, dashboard *services.Dashboard, logger *slog.Logger) http.Handler {
	templateHandlers := &server.TemplateHandlers{
		Dashboard: newDashboardHandler(dashboard),
	}

	srv := server.NewServer(dashboard, logger, templateHandlers)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.CSRF(cfg.Security, logger),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
		middleware.Timeout(cfg.Server.RequestTimeout, "/sse/"),
	)

	return middlewareChain(srv)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"config", cfg,
	)

	ctx, cancel := context.WithTimeout(context.Background(), csvLoadTimeout)
	defer cancel()

	start := time.Now()
	loader := services.NewLoader(cfg.Dataset.CSVFile, logger)
	dataset, err := loader.Load(ctx)
	if err != nil {
		logger.Error("failed to load CSV data", "path", cfg.Dataset.CSVFile, "error", err)
		os.Exit(1)
	}
	logger.Info("CSV data loaded successfully", "records", dataset.Len(), "duration", time.Since(start))

	dashboard := services.NewDashboard(dataset, loader.Path(), services.DashboardOptions{
		MaxConcurrentViews: cfg.Dashboard.MaxConcurrentViews,
		HistogramBins:      cfg.Dashboard.HistogramBins,
		TopCustomers:       cfg.Dashboard.TopCustomers,
	}, logger)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      newHandler(cfg, dashboard, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, cfg.Server, logger)

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
