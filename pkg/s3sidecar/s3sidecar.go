// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package s3sidecar implements the s3-sidecar container's job (spec §4.5):
// wait for the scanner-server container to write its client startup JSON to
// a shared emptyDir volume, then upload it to S3 so EWMS taskforce workers
// can fetch it without mounting the pod's volume directly. Grounded on
// original_source/s3_sidecar/__main__.py's wait-then-post loop (poll for
// the file, log a "still waiting" housekeeping line periodically, bound the
// whole wait by a lifetime timer) translated to minio-go/v7 for the actual
// upload instead of boto3's presigned-POST dance, since a direct PutObject
// against a known, sidecar-held token is simpler and minio-go is the S3
// client this module's go.mod carries.
package s3sidecar

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/WIPACrepo/SkyDriver/internal/logger"
)

// Config holds the sidecar's run parameters, populated from CLI flags and
// the S3_* environment variables jobspec's s3Env injects into the container.
type Config struct {
	WatchPath string
	Timeout   time.Duration

	S3URL       string
	Bucket      string
	ObjectKey   string
	AccessKeyID string // S3_ACCESS_KEY_ID, paired with SecretKey for static long-lived creds
	SecretKey   string // from the mounted Secret (s3-secret-key)
	Token       string // short-lived bearer token minted at job-spec-build time; preferred when set

	// HousekeepingInterval paces the "still waiting" log line; PollInterval
	// paces the filesystem check itself. Both default when zero.
	HousekeepingInterval time.Duration
	PollInterval         time.Duration
	// PostWriteGrace is how long to wait after the file first appears, in
	// case the writer is still flushing it — the original implementation's
	// "waiting a bit longer just in case" step.
	PostWriteGrace time.Duration
}

// ConfigFromEnv fills in the S3 connection fields from the container's
// environment, leaving WatchPath/Timeout to the CLI flags that select them.
func ConfigFromEnv() Config {
	return Config{
		S3URL:       os.Getenv("S3_URL"),
		Bucket:      os.Getenv("S3_BUCKET"),
		ObjectKey:   os.Getenv("S3_OBJECT_KEY"),
		AccessKeyID: os.Getenv("S3_ACCESS_KEY_ID"),
		SecretKey:   os.Getenv("S3_SECRET_KEY"),
		Token:       os.Getenv("S3_TOKEN"),
	}
}

// Run waits for cfg.WatchPath to appear (bounded by cfg.Timeout), then
// uploads it to S3. Returns an error if the file never appears in time or
// the upload fails; the caller (cmd/skydriver) turns that into a non-zero
// exit so the Job records a failure instead of silently succeeding.
func Run(ctx context.Context, cfg Config) error {
	cfg = withDefaults(cfg)

	if err := waitForFile(ctx, cfg); err != nil {
		return err
	}

	logger.Global().Info("s3-sidecar: file exists, waiting a bit longer in case it's still being written")
	select {
	case <-time.After(cfg.PostWriteGrace):
	case <-ctx.Done():
		return ctx.Err()
	}

	return upload(ctx, cfg)
}

func withDefaults(cfg Config) Config {
	if cfg.HousekeepingInterval <= 0 {
		cfg.HousekeepingInterval = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.PostWriteGrace <= 0 {
		cfg.PostWriteGrace = 5 * time.Second
	}
	return cfg
}

func waitForFile(ctx context.Context, cfg Config) error {
	if _, err := os.Stat(cfg.WatchPath); err == nil {
		return nil
	}

	logger.Global().Infof("s3-sidecar: waiting for %s to exist (timeout %s)", cfg.WatchPath, cfg.Timeout)
	deadline := time.Now().Add(cfg.Timeout)
	poll := time.NewTicker(cfg.PollInterval)
	defer poll.Stop()
	lastHousekeeping := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-poll.C:
			if _, err := os.Stat(cfg.WatchPath); err == nil {
				return nil
			}
			if now.Sub(lastHousekeeping) >= cfg.HousekeepingInterval {
				logger.Global().Info("s3-sidecar: still waiting...")
				lastHousekeeping = now
			}
			if cfg.Timeout > 0 && now.After(deadline) {
				return fmt.Errorf("s3-sidecar: timed out after %s waiting for %s", cfg.Timeout, cfg.WatchPath)
			}
		}
	}
}

func upload(ctx context.Context, cfg Config) error {
	logger.Global().Infof("s3-sidecar: connecting to s3 at %s", cfg.S3URL)

	creds := s3Credentials(cfg)
	client, err := minio.New(hostOnly(cfg.S3URL), &minio.Options{
		Creds:  creds,
		Secure: isSecure(cfg.S3URL),
	})
	if err != nil {
		return fmt.Errorf("build s3 client: %w", err)
	}

	logger.Global().Infof("s3-sidecar: uploading %s to s3://%s/%s", cfg.WatchPath, cfg.Bucket, cfg.ObjectKey)
	info, err := client.FPutObject(ctx, cfg.Bucket, cfg.ObjectKey, cfg.WatchPath, minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", cfg.WatchPath, err)
	}
	logger.Global().Infof("s3-sidecar: upload complete, %d bytes", info.Size)
	return nil
}

// s3Credentials prefers the short-lived bearer token minted at job-spec-
// build time (spec §4.5) over the long-lived static secret-key credential,
// the same token-over-static-secret preference pkg/restapi/admission.go's
// buildJob applies when minting succeeds.
func s3Credentials(cfg Config) *credentials.Credentials {
	if cfg.Token != "" {
		return credentials.NewStaticV4(cfg.Token, cfg.Token, "")
	}
	return credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretKey, "")
}

func hostOnly(url string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if len(url) > len(prefix) && url[:len(prefix)] == prefix {
			return url[len(prefix):]
		}
	}
	return url
}

func isSecure(url string) bool {
	return len(url) >= 8 && url[:8] == "https://"
}
