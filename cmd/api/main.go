package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/storehouse/accounts/internal/http/handlers"
	mw "github.com/storehouse/accounts/internal/http/middleware"
	"github.com/storehouse/accounts/internal/mailer"
	"github.com/storehouse/accounts/internal/repository"
	"github.com/storehouse/accounts/internal/service"
	"github.com/storehouse/accounts/pkg/config"
	"github.com/storehouse/accounts/pkg/database"
	"github.com/storehouse/accounts/pkg/events"
	"github.com/storehouse/accounts/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("Failed to parse Redis URL", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.Password != "" {
		redisOpts.Password = cfg.Redis.Password
	}
	redisOpts.DB = cfg.Redis.DB
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Repositories
	accountRepo := repository.NewAccountRepository(pool)
	verifyRepo := repository.NewVerifyRepository(pool)
	rateLimitRepo := repository.NewRateLimitRepository(redisClient)

	// Mailer selection
	var mailSvc mailer.Service
	switch {
	case cfg.Email.DevMode:
		mailSvc = mailer.NewDevMailer()
	case cfg.Email.MailerSendKey != "":
		mailSvc = mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.SMTPFrom)
	default:
		mailSvc = mailer.NewSMTPMailer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPFrom, cfg.Email.SMTPUser, cfg.Email.SMTPPass, cfg.Email.SMTPUseTLS)
	}

	authService := service.NewAuthService(accountRepo, verifyRepo, mailSvc, eventBus, cfg)

	// Periodic cleanup of stale verification tokens
	go func() {
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			n, err := verifyRepo.DeleteExpiredTokens(context.Background())
			if err != nil {
				logger.Warn("Verification token cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("Removed stale verification tokens", "count", n)
			}
		}
	}()

	h := handlers.New(authService, rateLimitRepo, cfg)

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("accounts"))
	r.Use(mw.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health)

	r.Group(func(r chi.Router) {
		r.Use(h.RateLimit("auth", 10, time.Minute))
		r.Post("/sign-up", h.SignUp)
		r.Post("/log-in", h.LogIn)
		r.Post("/resend-verification", h.ResendVerification)
	})

	r.Post("/log-out", h.LogOut)
	r.Get("/verify-email", h.VerifyEmail)
	r.Post("/verify-email", h.VerifyEmail)

	r.Route("/me", func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Get("/", h.Me)
		r.Patch("/", h.UpdateMe)
		r.Patch("/password", h.ChangePassword)
		r.Delete("/", h.DeactivateMe)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(h.RequireRole("admin"))
		r.Get("/accounts", h.ListAccounts)
		r.Get("/accounts/{id}", h.GetAccount)
		r.Patch("/accounts/{id}/role", h.UpdateAccountRole)
		r.Post("/accounts/{id}/unlock", h.UnlockAccount)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down accounts service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Accounts service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting accounts service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Accounts service error", "error", err)
		os.Exit(1)
	}
}
