package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prompt-job-runner/internal/config"
	"prompt-job-runner/internal/domain/ports/adapter"
	aiAdapters "prompt-job-runner/internal/infra/adapters/ai"
	"prompt-job-runner/internal/infra/adapters/channel"
	pg "prompt-job-runner/internal/infra/db/postgres"
	"prompt-job-runner/internal/infra/logging"
	"prompt-job-runner/internal/infra/metrics"
	red "prompt-job-runner/internal/infra/redis"
	"prompt-job-runner/internal/infra/security"
	"prompt-job-runner/internal/infra/web"
	"prompt-job-runner/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop AI fallback, console logs)")
	once := flag.Bool("once", false, "run one cycle and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	jobRepo := pg.NewJobRepo(pool)
	versionRepo := pg.NewPromptVersionRepo(pool)
	runRepo := pg.NewRunHistoryRepo(pool)
	tm := pg.NewTxManager(pool)

	// ---- Quota guard (Redis, optional) ----
	var quota adapter.QuotaGuard = red.NoopQuota{}
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		quota = red.NewDailyRunQuota(redisClient, cfg.Worker.DailyRunLimit, logger)
	} else {
		logger.Warn().Msg("redis.url not set; daily run quota disabled")
	}

	// ---- Encryption ----
	encKey := cfg.Security.EncryptionKey
	if len(encKey) != 16 && len(encKey) != 24 && len(encKey) != 32 {
		if !cfg.Runtime.Dev {
			logger.Fatal().Msg("security.encryption_key must be 16, 24, or 32 bytes")
		}
		logger.Warn().Msg("security.encryption_key not set; falling back to dev key (INSECURE)")
		encKey = "0123456789abcdef0123456789abcdef"
	}
	encSvc, err := security.NewEncryptionService(encKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("encryption")
	}

	// ---- AI adapter (Gemini -> OpenAI -> noop in dev) ----
	var ai adapter.GenerationService
	switch {
	case cfg.AI.GeminiKey != "":
		ai, err = aiAdapters.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiBaseURL, cfg.AI.DefaultModel, cfg.AI.Timeout, cfg.AI.ToolTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini adapter")
		}
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("AI adapter: Gemini")
	case cfg.AI.OpenAIKey != "":
		ai, err = aiAdapters.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIBaseURL, cfg.AI.DefaultModel, cfg.AI.Timeout, cfg.AI.ToolTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("openai adapter")
		}
		logger.Info().Str("model", cfg.AI.DefaultModel).Msg("AI adapter: OpenAI")
	case cfg.Runtime.Dev:
		ai = aiAdapters.NoopAdapter{}
		logger.Warn().Msg("AI adapter: noop (dev mode, no provider configured)")
	default:
		logger.Fatal().Msgf("no AI provider configured: set ai.gemini_key or ai.openai_key in %s", *cfgPath)
	}

	resolver := channel.NewResolver(encSvc, cfg.Worker.MaxChunksPerMessage)

	runner := usecase.NewRunnerUseCase(
		jobRepo, versionRepo, runRepo, tm,
		quota, ai, resolver,
		cfg.Worker, cfg.AI.DefaultModel, logger,
	)

	if *once {
		counters, err := runner.RunDueJobs(ctx, usecase.RunParams{})
		if err != nil {
			logger.Fatal().Err(err).Msg("run cycle")
		}
		logger.Info().Interface("counters", counters).Msg("cycle complete")
		return
	}

	// ---- HTTP trigger server ----
	srv := web.NewServer(runner, cfg.Server.TriggerSecret, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	// ---- Built-in trigger loop ----
	if cfg.Worker.Interval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Worker.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := runner.RunDueJobs(ctx, usecase.RunParams{}); err != nil {
						logger.Error().Err(err).Msg("scheduled run cycle failed")
					}
				}
			}
		}()
		logger.Info().Dur("interval", cfg.Worker.Interval).Msg("built-in trigger loop enabled")
	}

	// ---- Graceful shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
