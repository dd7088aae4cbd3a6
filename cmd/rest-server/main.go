// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Command rest-server runs SkyDriver's REST admission layer (spec §4.1,
// §6). Grounded on the teacher's cmd/control-plane-controller/main.go
// shape: context.WithCancel plus signal.Notify for graceful shutdown, a
// run(ctx) error split out of main so startup errors have one exit path.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/WIPACrepo/SkyDriver/internal/config"
	"github.com/WIPACrepo/SkyDriver/internal/k8sclient"
	"github.com/WIPACrepo/SkyDriver/internal/logger"
	"github.com/WIPACrepo/SkyDriver/internal/tokenmint"
	"github.com/WIPACrepo/SkyDriver/pkg/clusterregistry"
	"github.com/WIPACrepo/SkyDriver/pkg/docstore"
	"github.com/WIPACrepo/SkyDriver/pkg/ewms"
	"github.com/WIPACrepo/SkyDriver/pkg/restapi"
	"github.com/WIPACrepo/SkyDriver/pkg/restapi/authmw"
	"github.com/WIPACrepo/SkyDriver/pkg/restapi/validate"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Global().Info("received shutdown signal, stopping rest-server...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		logger.Global().Errorf("rest-server failed: %v", err)
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
	if err := store.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

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

	s3Mint := tokenmint.New(cfg.S3.TokenURL, cfg.S3.ClientID, cfg.S3.ClientSecret)

	clusters := clusterregistry.New()
	seedClusterRegistry(clusters)

	reg := validate.NewRegistry(cfg.REST.DockerRegistryURL)

	verifier, err := authmw.New(ctx, cfg.REST.AuthOpenIDURL, cfg.REST.AuthAudience)
	if err != nil {
		return fmt.Errorf("build auth verifier: %w", err)
	}

	server := restapi.New(store, ewmsClient, k8s, clusters, reg, ewmsMint, s3Mint, cfg)
	engine := restapi.Router(server, verifier)

	addr := fmt.Sprintf("%s:%d", cfg.REST.Host, cfg.REST.Port)
	logger.Global().Infof("rest-server listening on %s", addr)

	errCh := make(chan error, 1)
	go func() { errCh <- engine.Run(addr) }()

	select {
	case <-ctx.Done():
		logger.Global().Info("rest-server stopped")
		return nil
	case err := <-errCh:
		return fmt.Errorf("gin engine stopped: %w", err)
	}
}

func mongoURI(cfg *config.Config) string {
	if cfg.Mongo.AuthUser == "" {
		return fmt.Sprintf("mongodb://%s:%d", cfg.Mongo.Host, cfg.Mongo.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.Mongo.AuthUser, cfg.Mongo.AuthPass, cfg.Mongo.Host, cfg.Mongo.Port)
}

// seedClusterRegistry loads KNOWN_CLUSTERS_JSON (spec §6), a JSON array of
// cluster descriptors, the same env-driven seeding shape the rest of
// config.Load uses for every other tunable.
func seedClusterRegistry(reg *clusterregistry.Registry) {
	raw := os.Getenv("KNOWN_CLUSTERS_JSON")
	if raw == "" {
		logger.Global().Warn("KNOWN_CLUSTERS_JSON not set; KNOWN_CLUSTERS table is empty")
		return
	}
	var clusters []clusterregistry.Cluster
	if err := json.Unmarshal([]byte(raw), &clusters); err != nil {
		logger.Global().Errorf("failed to parse KNOWN_CLUSTERS_JSON: %v", err)
		return
	}
	reg.Seed(clusters)
	logger.Global().Infof("seeded %d known cluster(s)", len(clusters))
}
