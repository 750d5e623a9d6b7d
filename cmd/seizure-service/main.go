package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/epicare/platform/pkg/access"
	"github.com/epicare/platform/pkg/common/config"
	"github.com/epicare/platform/pkg/common/database"
	"github.com/epicare/platform/pkg/common/kafka"
	"github.com/epicare/platform/pkg/common/logger"
	"github.com/epicare/platform/pkg/episode"
	"github.com/epicare/platform/pkg/gateway/auth"
	"github.com/epicare/platform/pkg/gateway/middleware"
	"github.com/epicare/platform/pkg/stats"
	"github.com/gorilla/mux"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	repo := episode.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate episode tables")
	}

	policy, err := access.LoadPolicy(cfg.AccessPolicyPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load access policy")
	}
	scope := access.NewScope(policy)

	producer := kafka.NewProducer(cfg.EpisodeEventTopic)
	defer producer.Close()

	summaryCache := stats.NewCache(database.GetRedis(), cfg.StatsCacheTTL)

	lifecycle := episode.NewService(repo, scope, producer, summaryCache)
	statistics := stats.NewService(repo, scope, summaryCache)

	jwtManager, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to configure token validation")
	}
	var validator middleware.TokenValidator = jwtManager
	if cfg.OIDCIssuer != "" {
		oidcAuth, err := auth.NewOIDCAuthenticator(cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to configure OIDC authentication")
		}
		validator = oidcAuth
		logger.Log.WithField("issuer", cfg.OIDCIssuer).Info("Validating tokens against OIDC provider")
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(
		middleware.Recovery,
		middleware.Logging,
		middleware.CORS,
		middleware.BodyLimit(cfg.MaxRequestBody),
		middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		middleware.Authenticate(validator),
	)
	episode.NewHandler(lifecycle).Register(api)
	stats.NewHandler(statistics).Register(api)

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithField("addr", address).Info("Seizure service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start seizure service")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down seizure service...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("seizure service forced to shutdown")
	}
	logger.Log.Info("Seizure service stopped")
}
