package main

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/julioamaral/juliobot/internal/api/router"
	appconfig "github.com/julioamaral/juliobot/internal/config"
	"github.com/julioamaral/juliobot/internal/conversation"
	"github.com/julioamaral/juliobot/internal/gateway"
	"github.com/julioamaral/juliobot/internal/http/handlers"
	observemetrics "github.com/julioamaral/juliobot/internal/observability/metrics"
	"github.com/julioamaral/juliobot/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting julio-bot API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"instance", cfg.EvolutionInst,
		"self_test", cfg.SelfTest,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	store := conversation.NewHistoryStore(pool)

	var cooldown conversation.CooldownStore
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		cooldown = conversation.NewRedisCooldownStore(redis.NewClient(opts), cfg.HandoffCooldown)
		logger.Info("handoff cooldown backed by redis", "addr", cfg.RedisAddr)
	} else {
		cooldown = conversation.NewMemoryCooldownStore(cfg.HandoffCooldown, nil)
		logger.Info("handoff cooldown kept in process memory")
	}

	llm := buildLLMClient(ctx, cfg, logger)
	if llm == nil {
		logger.Warn("no LLM provider configured, /ai will answer with the unavailable notice")
	}

	dispatcher := gateway.New(cfg.EvolutionBase, cfg.EvolutionKey, cfg.EvolutionInst, logger.With("component", "gateway"))
	pipelineMetrics := observemetrics.NewPipelineMetrics(nil)

	decider := conversation.NewHandoffDecider(conversation.HandoffConfig{
		Keywords:           cfg.EscalationKeywords,
		Auto:               cfg.HandoffAuto,
		MinTurns:           cfg.HandoffMinTurns,
		SuppressOnCooldown: cfg.HandoffCooldownSuppress,
	}, cooldown, logger.With("component", "handoff"))

	responder := conversation.NewResponder(conversation.ResponderConfig{
		Store:        store,
		LLM:          llm,
		Dispatcher:   dispatcher,
		Decider:      decider,
		Logger:       logger,
		Metrics:      pipelineMetrics,
		SelfNumber:   cfg.SelfNumber,
		OwnerNumber:  cfg.OwnerNumber,
		SelfTest:     cfg.SelfTest,
		LLMEnabled:   cfg.LLMEnabled,
		ModelID:      cfg.BedrockModelID,
		Temperature:  cfg.LLMTemperature,
		ContextTurns: cfg.LLMContextTurns,
	})

	webhookHandler := handlers.NewWebhookHandler(handlers.WebhookConfig{
		Responder: responder,
		Logger:    logger.With("component", "webhook"),
		Metrics:   pipelineMetrics,
		Instance:  cfg.EvolutionInst,
		BaseSet:   cfg.EvolutionBase != "",
		SelfSet:   cfg.SelfNumber != "",
		SelfTest:  cfg.SelfTest,
	})

	r := router.New(&router.Config{
		Logger:         logger,
		WebhookHandler: webhookHandler,
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildLLMClient assembles the provider chain: Bedrock primary, Gemini
// fallback, either alone when only one is configured, nil when neither is.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) conversation.LLMClient {
	var primary, secondary conversation.LLMClient

	if cfg.BedrockModelID != "" {
		loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
		if cfg.AWSAccessKeyID != "" && cfg.AWSSecretKey != "" {
			loaders = append(loaders, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
		} else {
			primary = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
			logger.Info("bedrock LLM configured", "model", cfg.BedrockModelID)
		}
	}

	if cfg.GeminiAPIKey != "" {
		gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
		} else {
			secondary = gemini
			logger.Info("gemini LLM configured", "model", cfg.GeminiModelID)
		}
	}

	switch {
	case primary != nil:
		return conversation.NewFallbackLLMClient(primary, secondary, logger)
	case secondary != nil:
		return secondary
	default:
		return nil
	}
}
