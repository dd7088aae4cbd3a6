// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Command skydriver is SkyDriver's own built image's entry point
// (ThisImageWithTag in spec §4.5), invoked by the scanner Job's s3-sidecar
// container as `skydriver s3-sidecar --watch <path> --timeout <duration>`.
// A single binary with one real subcommand doesn't earn a CLI framework
// dependency (spf13/cobra, used elsewhere in the broader example pack, was
// considered and dropped here — see DESIGN.md), so dispatch is a plain
// os.Args[1] switch, the same shape argparse's subparsers collapse to for a
// one-command tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WIPACrepo/SkyDriver/internal/logger"
	"github.com/WIPACrepo/SkyDriver/pkg/s3sidecar"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: skydriver <s3-sidecar> [flags]")
		os.Exit(2)
	}

	if err := logger.Init(logger.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var err error
	switch os.Args[1] {
	case "s3-sidecar":
		err = runS3Sidecar(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", os.Args[1])
		os.Exit(2)
	}

	if err != nil {
		logger.Global().Errorf("%v", err)
		os.Exit(1)
	}
}

func runS3Sidecar(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("s3-sidecar", flag.ExitOnError)
	watch := fs.String("watch", "", "path to the file to wait for and upload")
	timeout := fs.String("timeout", "600s", "maximum time to wait for --watch to appear")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *watch == "" {
		return fmt.Errorf("s3-sidecar: --watch is required")
	}
	d, err := time.ParseDuration(*timeout)
	if err != nil {
		return fmt.Errorf("s3-sidecar: invalid --timeout %q: %w", *timeout, err)
	}

	cfg := s3sidecar.ConfigFromEnv()
	cfg.WatchPath = *watch
	cfg.Timeout = d

	return s3sidecar.Run(ctx, cfg)
}
