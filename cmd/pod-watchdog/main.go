// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Command pod-watchdog runs the Pod Watchdog Runner (spec §4.3) as a
// standalone process. Grounded on the teacher's
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
	"github.com/WIPACrepo/SkyDriver/pkg/docstore"
	"github.com/WIPACrepo/SkyDriver/pkg/watchdog"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Global().Info("received shutdown signal, stopping pod-watchdog...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		logger.Global().Errorf("pod-watchdog failed: %v", err)
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

	selfMint := tokenmint.New(cfg.REST.SelfTokenURL, cfg.REST.SelfClientID, cfg.REST.SelfClientSecret)
	selfToken, err := selfMint.Mint(ctx)
	if err != nil {
		return fmt.Errorf("mint self-service bearer token: %w", err)
	}

	runner := watchdog.New(store, k8s, watchdog.Config{
		WatchdogDelay: cfg.Runner.WatchdogDelay,
		WindowMin:     config.DefaultWatchdogWindowMin,
		WindowMax:     config.DefaultWatchdogWindowMax,
		SelfAddress:   cfg.REST.SelfAddress,
		BearerToken:   selfToken,
	})
	runner.Start()
	defer runner.Stop()

	logger.Global().Info("pod-watchdog started")
	<-ctx.Done()
	logger.Global().Info("pod-watchdog stopped")
	return nil
}

func mongoURI(cfg *config.Config) string {
	if cfg.Mongo.AuthUser == "" {
		return fmt.Sprintf("mongodb://%s:%d", cfg.Mongo.Host, cfg.Mongo.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.Mongo.AuthUser, cfg.Mongo.AuthPass, cfg.Mongo.Host, cfg.Mongo.Port)
}
