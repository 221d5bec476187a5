// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command server runs the truth verification layer in front of the demo
// parts catalog.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/partlinx/truthlayer/internal/alerting"
	"github.com/partlinx/truthlayer/internal/api"
	"github.com/partlinx/truthlayer/internal/breaker"
	"github.com/partlinx/truthlayer/internal/cache"
	"github.com/partlinx/truthlayer/internal/config"
	"github.com/partlinx/truthlayer/internal/events"
	"github.com/partlinx/truthlayer/internal/logging"
	"github.com/partlinx/truthlayer/internal/policy"
	"github.com/partlinx/truthlayer/internal/validation"
)

func main() {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if err := logging.ConfigureOutput(cfg.LoggingToFile); err != nil {
		log.Fatalf("logging: %v", err)
	}

	circuit := breaker.New(breaker.Config{
		FailureThreshold: cfg.CircuitFailureThreshold,
		RecoveryTimeout:  cfg.CircuitRecoveryTimeout,
		HalfOpenProbes:   cfg.CircuitHalfOpenProbes,
	})
	bus := events.NewBus(0)

	channels := []alerting.Channel{alerting.NewLogChannel()}
	if cfg.AlertWebhookURL != "" {
		webhook, err := alerting.NewWebhookChannel(cfg.AlertWebhookURL, cfg.AlertWebhookSecret)
		if err != nil {
			log.Fatalf("alert webhook: %v", err)
		}
		channels = append(channels, webhook)
	}
	dispatcher := alerting.NewDispatcher(alerting.Config{}, channels...)

	comparator := validation.NewComparator()
	orchestrator := validation.NewOrchestrator(comparator, circuit, dispatcher, bus, "reference-catalog")
	shadow := validation.NewShadowValidator(comparator, circuit, bus, dispatcher, 0)
	store := cache.NewResultCache()

	table := policy.NewTable()
	if err := table.Load(cfg.RoutePolicyPath); err != nil {
		log.Fatalf("route policy: %v", err)
	}
	stopWatch, err := table.Watch(cfg.RoutePolicyPath)
	if err != nil {
		log.WithError(err).Warn("route policy watcher unavailable, reload on restart only")
		stopWatch = func() {}
	}

	server := api.NewServer(&api.Deps{
		Config:       cfg,
		Table:        table,
		Orchestrator: orchestrator,
		Shadow:       shadow,
		Breaker:      circuit,
		Bus:          bus,
		Cache:        store,
		Alerts:       dispatcher,
		Lookups:      api.NewLookupRegistry(),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Run() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("server failed")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
	}

	stopWatch()
	dispatcher.Shutdown()
	bus.Shutdown()
}
