// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Command loomrund wires the runtime core, its persistence backend, the
// interrupt channel, the Delivery Queue and the WebSocket transport into one
// server process: the daemon binary for the whole repository.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/loomrun/internal/bus"
	"github.com/teradata-labs/loomrun/internal/config"
	"github.com/teradata-labs/loomrun/internal/delivery"
	"github.com/teradata-labs/loomrun/internal/environment"
	"github.com/teradata-labs/loomrun/internal/interrupt"
	"github.com/teradata-labs/loomrun/internal/log"
	"github.com/teradata-labs/loomrun/internal/persistence"
	"github.com/teradata-labs/loomrun/internal/runtime"
	"github.com/teradata-labs/loomrun/internal/transport"
	"github.com/teradata-labs/loomrun/pkg/observability"
)

func main() {
	addr := flag.String("addr", envOr("LOOMRUND_ADDR", ":8787"), "HTTP listen address for the WebSocket transport")
	basePath := flag.String("base-path", envOr("LOOMRUND_BASE_PATH", "./loomrun-data"), "sandbox + default sqlite data directory")
	persistenceKind := flag.String("persistence", envOr("LOOMRUND_PERSISTENCE", "sqlite"), "sqlite | postgres")
	dsn := flag.String("dsn", os.Getenv("LOOMRUND_DSN"), "sqlite path or postgres DSN; defaults under base-path for sqlite")
	encrypted := flag.Bool("encrypted", os.Getenv("LOOMRUND_ENCRYPTED") == "true", "use go-sqlcipher for the sqlite backend")
	llmProvider := flag.String("llm-provider", envOr("LOOMRUND_LLM_PROVIDER", "anthropic"), "anthropic | bedrock | sse")
	llmModel := flag.String("llm-model", envOr("LOOMRUND_LLM_MODEL", "claude-sonnet-4-20250514"), "model id/name")
	llmBaseURL := flag.String("llm-base-url", os.Getenv("LOOMRUND_LLM_BASE_URL"), "override API base URL (anthropic/sse)")
	awsRegion := flag.String("aws-region", envOr("AWS_REGION", "us-east-1"), "bedrock region")
	sweepSchedule := flag.String("sweep-schedule", envOr("LOOMRUND_SWEEP_SCHEDULE", "@every 10m"), "cron schedule for the Delivery Queue TTL sweep")
	devLog := flag.Bool("dev-log", os.Getenv("LOOMRUND_DEV_LOG") == "true", "use zap's human-readable development encoder")
	flag.Parse()

	logger := buildLogger(*devLog)
	defer logger.Sync()
	log.SetLogger(logger)

	if err := run(*addr, *basePath, *persistenceKind, *dsn, *encrypted, *llmProvider, *llmModel, *llmBaseURL, *awsRegion, *sweepSchedule, logger); err != nil {
		logger.Fatal("loomrund: fatal", zap.Error(err))
	}
}

func buildLogger(dev bool) *zap.Logger {
	var l *zap.Logger
	var err error
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		l = zap.NewNop()
	}
	return l
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(addr, basePath, persistenceKind, dsn string, encrypted bool, llmProvider, llmModel, llmBaseURL, awsRegion, sweepSchedule string, logger *zap.Logger) error {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return fmt.Errorf("create base path: %w", err)
	}

	store, closeStore, err := openStore(persistenceKind, dsn, basePath, encrypted)
	if err != nil {
		return fmt.Errorf("open persistence backend: %w", err)
	}
	defer closeStore()

	cfg := config.Get()
	cfg.BasePath = basePath
	cfg.Persistence = config.PersistenceConfig{Kind: config.PersistenceKind(persistenceKind), DSN: dsn, Encrypted: encrypted}
	cfg.LLMProvider = config.LLMProvider{Kind: config.LLMProviderKind(llmProvider), Model: llmModel, BaseURL: llmBaseURL, Region: awsRegion}

	factory, err := buildEnvironmentFactory(cfg, logger)
	if err != nil {
		return fmt.Errorf("build environment factory: %w", err)
	}

	systemBus := bus.New(logger, observability.NewNoOpTracer())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	router := interrupt.NewRouter(ctx)
	persistentQueue := interrupt.NewPersistentQueue(ctx, router, logger)
	interruptChannel := interrupt.NewChannel(ctx, router, persistentQueue)

	rt := runtime.New(systemBus, store, factory, interruptChannel, cfg, logger)
	defer rt.Dispose(context.Background())

	cmdHandler := runtime.NewCommandHandler(systemBus, rt, logger)
	defer cmdHandler.Stop()

	deliveryQueue, err := delivery.New(logger, sweepSchedule)
	if err != nil {
		return fmt.Errorf("start delivery queue: %w", err)
	}
	defer deliveryQueue.Close()
	unbridge := delivery.BridgeBus(systemBus.AsConsumer(), deliveryQueue)
	defer unbridge()

	srv := transport.New(systemBus, deliveryQueue, logger)
	defer srv.Close()

	httpServer := &http.Server{Addr: addr, Handler: srv}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("loomrund: listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("loomrund: shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

type closerFunc func()

func openStore(kind, dsn, basePath string, encrypted bool) (runtime.Store, closerFunc, error) {
	switch config.PersistenceKind(kind) {
	case config.PersistencePostgres:
		if dsn == "" {
			return nil, nil, fmt.Errorf("postgres persistence requires -dsn")
		}
		store, err := persistence.OpenPostgres(dsn)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	case config.PersistenceSQLite, "":
		if dsn == "" {
			dsn = basePath + "/loomrun.db"
		}
		store, err := persistence.OpenSQLite(dsn, encrypted)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown persistence kind %q", kind)
	}
}

func buildEnvironmentFactory(cfg *config.RuntimeConfig, logger *zap.Logger) (environment.Factory, error) {
	apiKey, err := cfg.ResolveAPIKey()
	if err != nil {
		return nil, err
	}

	switch cfg.LLMProvider.Kind {
	case config.ProviderBedrock:
		return environment.BedrockFactory(cfg.LLMProvider.Region, cfg.LLMProvider.Model, logger)
	case config.ProviderSSEGateway:
		return environment.SSEGatewayFactory(cfg.LLMProvider.BaseURL, apiKey, cfg.LLMProvider.Model, logger), nil
	case config.ProviderAnthropic, "":
		return environment.AnthropicFactory(apiKey, cfg.LLMProvider.BaseURL, cfg.LLMProvider.Model, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider kind %q", cfg.LLMProvider.Kind)
	}
}
