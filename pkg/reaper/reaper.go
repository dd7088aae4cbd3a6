// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package reaper runs a cron-scheduled backstop sweep over completed scans,
// deleting any skyscan-<id> Job that outlived its teardown window. This
// exists for the case both of restapi/teardown's mechanisms fail on the
// same scan: the in-process time.AfterFunc is lost to a process restart,
// and the durable stopper Job itself never runs or is evicted before it
// fires. Grounded on the teacher's cron-driven data-plane job runner
// (Lens/modules/jobs/pkg/jobs/runner.go), which schedules a
// SkipIfStillRunning chain of periodic cluster-hygiene passes the same way.
package reaper

import (
	"context"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/robfig/cron/v3"

	"github.com/WIPACrepo/SkyDriver/internal/k8sclient"
	"github.com/WIPACrepo/SkyDriver/internal/logger"
	"github.com/WIPACrepo/SkyDriver/pkg/docstore"
	"github.com/WIPACrepo/SkyDriver/pkg/ewms"
)

// Config holds the reaper's tunables.
type Config struct {
	// Schedule is a standard cron expression, e.g. "0 */15 * * * *" for
	// every 15 minutes (the teacher's runner passes job.Schedule() through
	// unmodified in the same way).
	Schedule string
	// Grace is how much older than its teardown deadline a completed
	// manifest must be before the reaper will touch its Job, so it never
	// races the ordinary teardown mechanisms.
	Grace time.Duration
	// Lookback bounds how far back the reaper scans for complete
	// manifests, so a long-lived deployment never pays for an unbounded
	// collection scan.
	Lookback time.Duration
}

// Reaper is the backstop teardown sweep.
type Reaper struct {
	store *docstore.Store
	k8s   *k8sclient.Client
	ewms  *ewms.Client
	cfg   Config
	cron  *cron.Cron
}

// New builds a Reaper. Call Start to schedule its recurring sweep.
func New(store *docstore.Store, k8s *k8sclient.Client, ewmsClient *ewms.Client, cfg Config) *Reaper {
	if cfg.Schedule == "" {
		cfg.Schedule = "0 */15 * * * *"
	}
	if cfg.Grace <= 0 {
		cfg.Grace = time.Hour
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 7 * 24 * time.Hour
	}
	return &Reaper{
		store: store,
		k8s:   k8s,
		ewms:  ewmsClient,
		cfg:   cfg,
		cron:  cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)), cron.WithSeconds()),
	}
}

// Start registers the sweep and starts the cron scheduler's own goroutine.
func (r *Reaper) Start(ctx context.Context) error {
	_, err := r.cron.AddFunc(r.cfg.Schedule, func() { r.sweep(ctx) })
	if err != nil {
		return fmt.Errorf("schedule reaper sweep %q: %w", r.cfg.Schedule, err)
	}
	r.cron.Start()
	logger.Infof("reaper: scheduled sweep %q (grace %s, lookback %s)", r.cfg.Schedule, r.cfg.Grace, r.cfg.Lookback)
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight sweep to finish.
func (r *Reaper) Stop() { <-r.cron.Stop().Done() }

func (r *Reaper) sweep(ctx context.Context) {
	sinceScanID := fmt.Sprintf("%016x", time.Now().Add(-r.cfg.Lookback).UnixNano())
	manifests, err := r.store.ListCompleteSince(ctx, sinceScanID)
	if err != nil {
		logger.Errorf("reaper: list complete-since failed: %v", err)
		return
	}

	cutoff := time.Now().Add(-r.cfg.Grace)
	reaped := 0
	for _, m := range manifests {
		if m.LastUpdated.After(cutoff) {
			continue // inside the grace window; the ordinary teardown path still owns this.
		}
		if r.reapOne(ctx, &m) {
			reaped++
		}
	}
	if reaped > 0 {
		logger.Infof("reaper: swept %d orphaned job(s) out of %d complete scan(s) checked", reaped, len(manifests))
	}
}

// reapOne tears down m's worker fleet via EWMS and deletes its Job if it
// still exists, reporting whether it found (and removed) a Job. This is the
// backstop's half of spec.md's "stop-scanner-instance" operation — the other
// two teardown mechanisms (restapi's in-process timer and stopper Job)
// already raced to do the same thing, so by the time the reaper gets here
// the EWMS signal may be redundant, but EWMS.Finished is idempotent on an
// already-finished workflow.
func (r *Reaper) reapOne(ctx context.Context, m *docstore.Manifest) bool {
	if r.ewms != nil && m.EWMSWorkflowID != "" {
		r.ewms.Finished(ctx, m.EWMSWorkflowID)
	}

	jobName := fmt.Sprintf("skyscan-%s", m.ScanID)
	propagation := metav1.DeletePropagationBackground
	err := r.k8s.Clientset.BatchV1().Jobs(r.k8s.Namespace).Delete(ctx, jobName, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil {
		return false // already gone, or inaccessible; nothing left for the reaper to do.
	}
	logger.Warnf("reaper: deleted orphaned job %s for completed scan %s (teardown mechanisms missed it)", jobName, m.ScanID)
	return true
}
