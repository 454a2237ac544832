// Command trustgated runs the governance engine behind an HTTP surface:
// evaluate actions, query the audit trail, and report liveness.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"trustgate/core/budget"
	"trustgate/core/consent"
	"trustgate/core/governance"
	"trustgate/core/trust"
	"trustgate/observability"
	"trustgate/observability/logging"
	telemetry "trustgate/observability/otel"
	storeaudit "trustgate/storage/audit"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "trustgated.yaml", "path to trustgated configuration")
	flag.Parse()

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup("trustgated", cfg.Env)

	shutdownTelemetry, err := setupTelemetry(cfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	store, closeStore, err := setupAuditStore(cfg)
	if err != nil {
		return fmt.Errorf("init audit store: %w", err)
	}
	defer closeStore()

	ladder := trust.New(trust.Config{
		Decay:   cfg.Decay.buildDecay(),
		Metrics: observability.Governance(),
	})
	enforcer := budget.New(budget.Config{
		AllowOverdraft:  cfg.Budget.AllowOverdraft,
		RolloverOnReset: cfg.Budget.RolloverOnReset,
		Metrics:         observability.Governance(),
	})
	for _, env := range cfg.Envelopes {
		if _, err := enforcer.CreateEnvelope(env.Category, env.Limit, budget.Period(env.Period)); err != nil {
			return fmt.Errorf("seed envelope %q: %w", env.Category, err)
		}
	}
	consentChecker := consent.New(consent.Config{})

	engine := governance.New(governance.Config{
		Trust:   ladder,
		Budget:  enforcer,
		Consent: consentChecker,
		Store:   store,
		Logger:  logger,
		Metrics: observability.Governance(),
	})

	srv := &server{engine: engine, store: store, metrics: observability.Governance()}
	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      newRouter(srv),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		logger.Info("trustgated listening", "address", cfg.ListenAddress)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			return err
		}
		return nil
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func setupTelemetry(cfg Config) (func(context.Context) error, error) {
	if !cfg.Telemetry.Metrics && !cfg.Telemetry.Traces {
		return nil, nil
	}
	return telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "trustgated",
		Environment: cfg.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
}

// setupAuditStore opens the NDJSON file backend, optionally wrapped in a
// lumberjack rotating writer. The returned close function releases the
// underlying writer.
func setupAuditStore(cfg Config) (storeaudit.Store, func() error, error) {
	if !cfg.AuditRotation.Enabled {
		store, err := storeaudit.NewFileStore(cfg.AuditLogPath, nil)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}

	writer := &lumberjack.Logger{
		Filename:   cfg.AuditLogPath,
		MaxSize:    cfg.AuditRotation.MaxSizeMB,
		MaxAge:     cfg.AuditRotation.MaxAgeDays,
		MaxBackups: cfg.AuditRotation.MaxBackups,
		Compress:   cfg.AuditRotation.Compress,
	}
	store := storeaudit.NewFileStoreWithWriter(cfg.AuditLogPath, writer, nil)
	return store, store.Close, nil
}
