package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/draftly/draftly/internal/auth/token"
	draftapp "github.com/draftly/draftly/internal/draft/app"
	draftpg "github.com/draftly/draftly/internal/draft/repository/postgres"
	"github.com/draftly/draftly/internal/llm/provider"
	"github.com/draftly/draftly/internal/mailbox/gmail"
	"github.com/draftly/draftly/internal/platform/config"
	"github.com/draftly/draftly/internal/platform/crypto"
	"github.com/draftly/draftly/internal/platform/database"
	"github.com/draftly/draftly/internal/platform/logger"
	sendapp "github.com/draftly/draftly/internal/send/app"
	httptransport "github.com/draftly/draftly/internal/transport/http"
	"github.com/draftly/draftly/internal/transport/http/middleware"
	userpg "github.com/draftly/draftly/internal/user/repository/postgres"
)

func main() {
	// .env is optional; container deployments inject the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Draftly API starting...", "port", cfg.ServerPort, "llm_provider", cfg.LLMProvider)

	dbPool, err := database.NewDBPool(context.Background(), cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Connected to PostgreSQL database")

	cipher, err := crypto.NewCipher(cfg.EncryptionKey)
	if err != nil {
		appLogger.Error("Invalid ENCRYPTION_KEY", "error", err)
		os.Exit(1)
	}

	issuer := token.NewIssuer(token.Config{
		AccessSecret:  cfg.JWTAccessSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		AccessTTL:     time.Duration(cfg.JWTAccessTTLMinutes) * time.Minute,
		RefreshTTL:    time.Duration(cfg.JWTRefreshTTLHours) * time.Hour,
	})

	userRepo := userpg.NewPgUserRepository(dbPool)
	draftRepo := draftpg.NewPgDraftRepository(dbPool)
	sendLogRepo := draftpg.NewPgSendLogRepository(dbPool)

	gmailClient := gmail.NewClient(userRepo, cipher, appLogger, "", nil)

	llm, err := provider.New(cfg.LLMProvider, cfg.LLMAPIKey, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize generation provider", "error", err, "provider", cfg.LLMProvider)
		os.Exit(1)
	}

	draftService := draftapp.NewService(draftRepo, gmailClient, llm, appLogger)
	sendService := sendapp.NewService(draftRepo, sendLogRepo, gmailClient, appLogger)

	authHandler := httptransport.NewAuthHandler(userRepo, issuer, cipher, cfg, appLogger)
	emailHandler := httptransport.NewEmailHandler(gmailClient, appLogger)
	draftHandler := httptransport.NewDraftHandler(draftRepo, draftService, appLogger)
	sendHandler := httptransport.NewSendHandler(sendService, appLogger)

	authMW := middleware.AuthMiddleware(issuer, userRepo, appLogger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(httptransport.PrometheusMetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/auth", func(authRouter chi.Router) {
		authHandler.RegisterPublicRoutes(authRouter)
		authRouter.Group(func(protected chi.Router) {
			protected.Use(authMW)
			authHandler.RegisterProtectedRoutes(protected)
		})
	})

	r.Group(func(protected chi.Router) {
		protected.Use(authMW)
		protected.Route("/api/emails", emailHandler.RegisterRoutes)
		protected.Route("/api/drafts", draftHandler.RegisterRoutes)
		protected.Route("/api/send", sendHandler.RegisterRoutes)
	})

	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.ServerPort), Handler: r}
	appLogger.Info(fmt.Sprintf("Draftly API listening on port %d", cfg.ServerPort))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server failed to serve", "error", err)
		}
	}()

	quitChan := make(chan os.Signal, 1)
	signal.Notify(quitChan, syscall.SIGINT, syscall.SIGTERM)
	<-quitChan
	appLogger.Info("Shutdown signal received, shutting down HTTP server...")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		appLogger.Error("HTTP server shutdown failed", "error", err)
	} else {
		appLogger.Info("HTTP server shut down gracefully.")
	}
	appLogger.Info("Draftly API shut down.")
}
