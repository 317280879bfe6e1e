package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"club-segment-series/internal/batch"
	"club-segment-series/internal/config"
	"club-segment-series/internal/database"
	"club-segment-series/internal/handlers"
	"club-segment-series/internal/metrics"
	"club-segment-series/internal/middleware"
	"club-segment-series/internal/oauth"
	"club-segment-series/internal/processor"
	"club-segment-series/internal/scoring"
	"club-segment-series/internal/strava"
	"club-segment-series/internal/subscription"
	"club-segment-series/internal/tokens"
)

func main() {
	// Define CLI flags
	listSubscriptions := flag.Bool("list-strava-subscriptions", false, "List all Strava webhook subscriptions")
	deleteSubscription := flag.String("delete-strava-subscription", "", "Delete a Strava webhook subscription by ID")
	createSubscription := flag.Bool("create-strava-subscription", false, "Create a Strava webhook subscription")

	flag.Parse()

	if *listSubscriptions || *deleteSubscription != "" || *createSubscription {
		runCLI(*listSubscriptions, *deleteSubscription, *createSubscription)
		return
	}

	runServer()
}

func runCLI(listSubs bool, deleteSub string, createSub bool) {
	// Only show errors for CLI use
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	})))

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if !cfg.HasStravaCredentials() {
		fmt.Fprintln(os.Stderr, "Error: STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET must be set")
		os.Exit(1)
	}

	client := strava.NewClient(cfg.StravaClientID, cfg.StravaClientSecret)
	ctx := context.Background()

	switch {
	case listSubs:
		handleListSubscriptions(ctx, client)
	case deleteSub != "":
		handleDeleteSubscription(ctx, client, deleteSub)
	case createSub:
		handleCreateSubscription(ctx, client, cfg)
	}
}

func handleListSubscriptions(ctx context.Context, client *strava.Client) {
	subscriptions, err := client.ListSubscriptions(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to list subscriptions: %v\n", err)
		os.Exit(1)
	}

	if len(subscriptions) == 0 {
		fmt.Println("No active subscriptions found.")
		return
	}

	fmt.Printf("Found %d subscription(s):\n\n", len(subscriptions))
	for _, sub := range subscriptions {
		fmt.Printf("ID: %d\n", sub.ID)
		fmt.Printf("  Callback URL: %s\n", sub.CallbackURL)
		fmt.Printf("  Created: %s\n", sub.CreatedAt)
		fmt.Println()
	}
}

func handleDeleteSubscription(ctx context.Context, client *strava.Client, idStr string) {
	subscriptionID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid subscription ID: %s\n", idStr)
		os.Exit(1)
	}

	fmt.Printf("Deleting subscription %d...\n", subscriptionID)

	if err := client.DeleteSubscription(ctx, subscriptionID); err != nil {
		if strava.IsNotFound(err) {
			fmt.Fprintf(os.Stderr, "Error: Subscription %d not found\n", subscriptionID)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Println("Subscription deleted.")
}

func handleCreateSubscription(ctx context.Context, client *strava.Client, cfg *config.Config) {
	callbackURL := cfg.CallbackURL()
	if callbackURL == "" || cfg.StravaVerifyToken == "" {
		fmt.Fprintln(os.Stderr, "Error: PUBLIC_BASE_URL and STRAVA_VERIFY_TOKEN must be set")
		os.Exit(1)
	}

	fmt.Printf("Creating webhook subscription...\n")
	fmt.Printf("Callback URL: %s\n", callbackURL)
	fmt.Println()

	// The server must already be reachable at the callback URL: Strava
	// runs the challenge handshake before responding
	sub, err := client.CreateSubscription(ctx, callbackURL, cfg.StravaVerifyToken)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Subscription created with ID %d\n", sub.ID)
}

func runServer() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting club-segment-series server",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.DatabasePath,
		"log_level", cfg.LogLevel)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("Database opened successfully")

	stravaClient := strava.NewClient(cfg.StravaClientID, cfg.StravaClientSecret)
	tokenManager := tokens.NewManager(db, stravaClient)
	scoringEngine := scoring.NewEngine(db)

	eventProcessor := processor.NewProcessor(db, tokenManager, stravaClient, scoringEngine)
	dispatcher := processor.NewDispatcher(eventProcessor, cfg.WebhookQueueSize, 2)

	orchestrator := batch.NewOrchestrator(db, tokenManager, stravaClient, scoringEngine,
		cfg.BatchWorkers, cfg.BatchMaxRetries429)

	oauthManager := oauth.NewManager(cfg.StravaClientID, db, stravaClient)
	subManager := subscription.NewManager(db, stravaClient, cfg.CallbackURL(), cfg.StravaVerifyToken)

	oauthHandler := handlers.NewOAuthHandler(oauthManager, cfg.PublicBaseURL)
	webhookHandler := handlers.NewWebhookHandler(db, dispatcher, cfg.StravaVerifyToken)
	adminHandler := handlers.NewAdminHandler(db, orchestrator, stravaClient, tokenManager, cfg.AdminAPIKey)
	leaderboardHandler := handlers.NewLeaderboardHandler(db, scoringEngine)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Metrics(metrics.EndpointOAuthStart))
		r.Get("/oauth-start", oauthHandler.HandleStart)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.Metrics(metrics.EndpointOAuthCallback))
		r.Get("/oauth-callback", oauthHandler.HandleCallback)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Metrics(metrics.EndpointWebhook))
		r.Get("/webhook-callback", webhookHandler.HandleVerification)
		r.Post("/webhook-callback", webhookHandler.HandleEvent)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Metrics(metrics.EndpointLeaderboard))
		r.Get("/leaderboard/weeks/{weekID}", leaderboardHandler.HandleWeek)
		r.Get("/leaderboard/seasons/{seasonID}", leaderboardHandler.HandleSeason)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Metrics(metrics.EndpointAdmin))
		r.Use(adminHandler.RequireKey)
		r.Post("/admin/seasons", adminHandler.HandleCreateSeason)
		r.Post("/admin/weeks", adminHandler.HandleCreateWeek)
		r.Post("/admin/weeks/{weekID}/fetch", adminHandler.HandleFetchWeek)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Metrics(metrics.EndpointHealth))
		r.Get("/health", handlers.HandleHealth(db))
	})

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start webhook dispatcher in background
	dispatcherCtx, dispatcherCancel := context.WithCancel(context.Background())
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		logger.Info("Starting webhook dispatcher", "queue_size", cfg.WebhookQueueSize)
		dispatcher.Run(dispatcherCtx)
	}()

	// Start gauge collector if metrics are enabled
	if cfg.MetricsEnabled {
		go func() {
			logger.Info("Starting metrics collector")
			metrics.StartCollector(dispatcherCtx, stravaClient, dispatcher, 15*time.Second)
		}()
	}

	// Start metrics server if enabled
	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())

		metricsAddr := fmt.Sprintf("%s:%d", cfg.MetricsHost, cfg.MetricsPort)
		metricsServer = &http.Server{
			Addr:    metricsAddr,
			Handler: metricsMux,
		}

		go func() {
			logger.Info("Metrics server listening", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Start HTTP server in background
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Register the webhook subscription once the callback is being
	// served: the provider verifies it synchronously
	if cfg.HasStravaCredentials() {
		go func() {
			time.Sleep(1 * time.Second)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := subManager.EnsureSubscription(ctx); err != nil {
				logger.Error("Failed to ensure webhook subscription", "error", err)
			}
		}()
	} else {
		logger.Warn("Strava credentials not configured, webhook subscription and token refresh disabled")
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")

	// Stop accepting new webhooks first, then drain the queue
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed", "error", err)
		}
	}

	dispatcherCancel()
	select {
	case <-dispatcherDone:
	case <-time.After(30 * time.Second):
		logger.Error("Webhook dispatcher did not drain in time")
	}

	logger.Info("Server stopped")
}
