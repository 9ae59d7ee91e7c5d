package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"smarthive/internal/app"
	"smarthive/internal/config"
	"smarthive/internal/ratelimit"
	"smarthive/internal/server"
	"smarthive/internal/util"
	"smarthive/pkg/ai"
	"smarthive/pkg/notify"
	"smarthive/pkg/session"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	tokens, err := session.NewManager(cfg.JWTSecret, sessionTTL)
	if err != nil {
		log.Fatalf("failed to init session manager: %v", err)
	}

	var notifier notify.Notifier
	if cfg.AMQPURL != "" {
		notifier = notify.NewAMQPNotifier(cfg.AMQPURL)
	} else {
		slog.Warn("amqp URL not configured, registration events disabled")
	}

	appCore, err := app.New(app.Config{
		DatabaseURL: cfg.DatabaseURL,
		Tokens:      tokens,
		Notifier:    notifier,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var chat server.ChatCompleter
	if cfg.ChatBaseURL != "" {
		relay, err := ai.NewRelay(ai.RelayConfig{
			BaseURL:     cfg.ChatBaseURL,
			APIKey:      cfg.ChatAPIKey,
			Model:       cfg.ChatModel,
			Temperature: cfg.ChatTemperature,
			MaxTokens:   cfg.ChatMaxTokens,
		})
		if err != nil {
			log.Fatalf("failed to init chat relay: %v", err)
		}
		chat = relay
	} else {
		slog.Warn("chat base URL not configured, /api/chat disabled")
	}

	var loginLimiter, registerLimiter *ratelimit.FixedWindowLimiter
	if cfg.LoginRateLimitPerMinute > 0 {
		loginLimiter, err = ratelimit.NewFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, cfg.LoginRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init login rate limiter: %v", err)
		}
	}
	if cfg.RegisterRateLimitPerMinute > 0 {
		registerLimiter, err = ratelimit.NewFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, cfg.RegisterRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init register rate limiter: %v", err)
		}
	}

	httpServer := server.New(server.Config{
		App:             appCore,
		Chat:            chat,
		LoginLimiter:    loginLimiter,
		RegisterLimiter: registerLimiter,
		SecureCookies:   cfg.IsProduction(),
		TrustProxy:      cfg.TrustProxy,
	})

	handler := util.WithRequestID(
		util.WithRequestLog(
			util.WithSecurityHeaders(
				util.WithCORS(config.ParseCORSOrigins(cfg.CORSOrigins), httpServer.Router()))))

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("smarthive server listening", "addr", addr, "env", cfg.Env)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
