// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Command backlog-runner runs the Scan Backlog Runner (spec §4.2) as a
// standalone process, alongside the reaper's cron-scheduled teardown
// backstop sweep (pkg/reaper). Grounded on the teacher's
// cmd/control-plane-controller/main.go entry-point shape.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/WIPACrepo/SkyDriver/internal/config"
	"github.com/WIPACrepo/SkyDriver/internal/k8sclient"
	"github.com/WIPACrepo/SkyDriver/internal/logger"
	"github.com/WIPACrepo/SkyDriver/internal/tokenmint"
	"github.com/WIPACrepo/SkyDriver/pkg/backlog"
	"github.com/WIPACrepo/SkyDriver/pkg/docstore"
	"github.com/WIPACrepo/SkyDriver/pkg/ewms"
	"github.com/WIPACrepo/SkyDriver/pkg/reaper"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Global().Info("received shutdown signal, stopping backlog-runner...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		logger.Global().Errorf("backlog-runner failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg := config.Load()
	if err := logger.Init(logger.DefaultConfig()); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := docstore.Connect(ctx, mongoURI(cfg), cfg.Mongo.Database)
	if err != nil {
		return fmt.Errorf("connect to mongo: %w", err)
	}
	defer func() { _ = store.Close(ctx) }()

	k8s, err := k8sclient.New(cfg.K8s.Namespace)
	if err != nil {
		return fmt.Errorf("build k8s client: %w", err)
	}

	ewmsMint := tokenmint.New(cfg.EWMS.TokenURL, cfg.EWMS.ClientID, cfg.EWMS.ClientSecret)
	ewmsToken, err := ewmsMint.Mint(ctx)
	if err != nil {
		return fmt.Errorf("mint ewms bearer token: %w", err)
	}
	ewmsClient := ewms.New(ewms.DefaultConfig(cfg.EWMS.Address), ewmsToken)

	runner := backlog.New(store, ewmsClient, k8s, backlog.Config{
		HighPriorityThreshold: config.HighPriorityThreshold,
		MaxAttempts:           cfg.Runner.BacklogMaxAttempts,
		StaleThreshold:        cfg.Runner.BacklogStale,
		ShortDelay:            cfg.Runner.BacklogShortDelay,
		LongDelay:             cfg.Runner.BacklogDelay,
	})
	runner.Start()
	defer runner.Stop()

	r := reaper.New(store, k8s, ewmsClient, reaper.Config{
		Schedule: cfg.Runner.ReaperSchedule,
		Grace:    cfg.Runner.ReaperGrace,
	})
	if err := r.Start(ctx); err != nil {
		return fmt.Errorf("start reaper: %w", err)
	}
	defer r.Stop()

	logger.Global().Info("backlog-runner started")
	<-ctx.Done()
	logger.Global().Info("backlog-runner stopped")
	return nil
}

func mongoURI(cfg *config.Config) string {
	if cfg.Mongo.AuthUser == "" {
		return fmt.Sprintf("mongodb://%s:%d", cfg.Mongo.Host, cfg.Mongo.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.Mongo.AuthUser, cfg.Mongo.AuthPass, cfg.Mongo.Host, cfg.Mongo.Port)
}
