package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaykit/whatsapp-relay/internal/api/router"
	appconfig "github.com/relaykit/whatsapp-relay/internal/config"
	"github.com/relaykit/whatsapp-relay/internal/conversation"
	"github.com/relaykit/whatsapp-relay/internal/mcptool"
	"github.com/relaykit/whatsapp-relay/internal/messaging"
	"github.com/relaykit/whatsapp-relay/internal/observability/metrics"
	"github.com/relaykit/whatsapp-relay/internal/webhook"
	"github.com/relaykit/whatsapp-relay/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithFile(cfg.LogLevel, cfg.LogFile)

	if err := cfg.Validate(); err != nil {
		logger.Error("configuration incomplete", "error", err)
		os.Exit(1)
	}

	logger.Info("starting whatsapp-relay",
		"env", cfg.Env,
		"port", cfg.Port,
		"public_base_url", cfg.PublicBaseURL,
	)

	relayMetrics := metrics.NewRelayMetrics(prometheus.DefaultRegisterer)

	registry := conversation.NewRegistry()
	pending := conversation.NewPendingReplies(logger)
	gateway := messaging.NewWhatsAppSender(messaging.WhatsAppConfig{
		AccessToken:   cfg.WhatsAppAccessToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		APIVersion:    cfg.WhatsAppAPIVersion,
	}, logger)

	service := conversation.NewService(conversation.ServiceConfig{
		Registry:       registry,
		Pending:        pending,
		Gateway:        gateway,
		OperatorNumber: cfg.OperatorNumber,
		DefaultTimeout: cfg.DefaultReplyTimeout,
		Logger:         logger,
		Metrics:        relayMetrics,
	})

	webhookHandler := webhook.NewHandler(webhook.Config{
		AppSecret:   cfg.WhatsAppAppSecret,
		VerifyToken: cfg.WhatsAppVerifyToken,
		Registry:    registry,
		Pending:     pending,
		Gateway:     gateway,
		Logger:      logger,
		Metrics:     relayMetrics,
	})

	mcpServer := mcptool.NewServer(service, logger)

	r := router.New(&router.Config{
		Logger:         logger,
		WebhookHandler: webhookHandler,
		Registry:       registry,
		MetricsHandler: promhttp.Handler(),
		MCPHandler:     mcptool.NewHTTPHandler(mcpServer),
		StartTime:      time.Now(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // reply waits can hold a tool request open for up to the full timeout
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
