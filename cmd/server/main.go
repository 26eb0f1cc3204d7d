package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/giftdraw/auth-bridge/internal/config"
	"github.com/giftdraw/auth-bridge/internal/database"
	"github.com/giftdraw/auth-bridge/internal/handler"
	"github.com/giftdraw/auth-bridge/internal/jobs"
	"github.com/giftdraw/auth-bridge/internal/middleware"
	"github.com/giftdraw/auth-bridge/internal/redis"
	"github.com/giftdraw/auth-bridge/internal/repository"
	"github.com/giftdraw/auth-bridge/internal/service"
	"github.com/giftdraw/auth-bridge/internal/store"
	"github.com/giftdraw/auth-bridge/internal/telegram"
	"github.com/giftdraw/auth-bridge/internal/token"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	userRepo := repository.NewUserRepository(db.DB)
	pairingStore := store.NewRedisStore(redisClient)

	signer := token.NewSigner(cfg.AccessTokenSecret, cfg.AccessTTL())
	tgClient := telegram.NewClient(cfg.TelegramBotToken)

	pairingService := service.NewPairingService(pairingStore, cfg)
	authService := service.NewAuthService(userRepo, signer, cfg.RefreshTTL(), cfg.RotateRefreshTokens)
	avatarService := service.NewAvatarService(userRepo, tgClient, cfg.AvatarDir, cfg.AvatarSalt, cfg.WebAppURL)

	issueLimiter := middleware.NewIPRateLimitMiddleware(redisClient.Client, "pairing", config.PairingIssueRateLimit)
	refreshLimiter := middleware.NewIPRateLimitMiddleware(redisClient.Client, "refresh", config.RefreshRateLimit)
	botSecret := middleware.NewBotSecretMiddleware(cfg.TelegramWebhookSecret)
	accessToken := middleware.NewAccessTokenMiddleware(signer)
	bodyLimit := middleware.NewBodyLimitMiddleware(0)

	authHandler := handler.NewAuthHandler(
		pairingService, authService, avatarService, cfg,
		issueLimiter.Handler, refreshLimiter.Handler, botSecret.Handler, accessToken.Handler,
	)
	webhookHandler := handler.NewWebhookHandler(pairingService, tgClient, cfg)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimit.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Mount("/", authHandler.Routes())
	})

	r.Route("/telegram", func(r chi.Router) {
		r.Use(botSecret.Handler)
		r.Post("/webhook", webhookHandler.Handle)
	})

	r.Handle("/avatars/*", http.StripPrefix("/avatars/", http.FileServer(http.Dir(cfg.AvatarDir))))

	cleanupJob := jobs.NewCleanupJob(pairingStore, config.CleanupJobInterval)
	cleanupJob.Start()
	defer cleanupJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
