// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package backlog implements the Scan Backlog Runner (spec §4.2): a single
// logical loop that claims queued scans by priority/FIFO, requests an EWMS
// workflow, creates the Kubernetes job, and retries with bounded attempts.
// The loop shape itself comes from pkg/supervisor; this package supplies
// the tick body, grounded on the teacher's TaskScheduler.tryExecuteTask /
// executeTask (Lens/modules/core/pkg/task/scheduler.go) for the
// claim-then-dispatch structure, generalized from "acquire a SQL lock, run
// an executor" to "atomically claim a Mongo backlog entry, run the EWMS +
// k8s steps inline".
package backlog

import (
	"context"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/WIPACrepo/SkyDriver/internal/k8sclient"
	"github.com/WIPACrepo/SkyDriver/internal/logger"
	"github.com/WIPACrepo/SkyDriver/pkg/docstore"
	"github.com/WIPACrepo/SkyDriver/pkg/ewms"
	"github.com/WIPACrepo/SkyDriver/pkg/supervisor"
)

// Config holds the runner's tunables, named in SPEC_FULL.md §6/internal/config.
type Config struct {
	HighPriorityThreshold int
	MaxAttempts           int
	StaleThreshold        time.Duration
	ShortDelay            time.Duration
	LongDelay             time.Duration
}

// Runner is the Scan Backlog Runner.
type Runner struct {
	store *docstore.Store
	ewms  *ewms.Client
	k8s   *k8sclient.Client
	cfg   Config

	loop      *supervisor.Loop
	heartbeat *supervisor.Heartbeat

	lastLowPriorityAdmit    time.Time
	fastForwardGateDeadline time.Time
}

// New builds a Runner. Call Start to launch its background loop.
func New(store *docstore.Store, ewmsClient *ewms.Client, k8s *k8sclient.Client, cfg Config) *Runner {
	r := &Runner{store: store, ewms: ewmsClient, k8s: k8s, cfg: cfg}
	// Heartbeat every LONG_DELAY/SHORT_DELAY ticks (spec §4.2 step 1).
	ticksPerHeartbeat := 1
	if cfg.ShortDelay > 0 {
		ticksPerHeartbeat = int(cfg.LongDelay / cfg.ShortDelay)
	}
	r.heartbeat = supervisor.NewHeartbeat("backlog-runner", ticksPerHeartbeat)
	r.loop = supervisor.New("backlog-runner", cfg.ShortDelay, r.tick)
	return r
}

// Start launches the runner's background loop.
func (r *Runner) Start() { r.loop.Start() }

// Stop halts the runner's background loop.
func (r *Runner) Stop() { r.loop.Stop() }

// lowPriorityGateOpen reports whether LONG_DELAY has elapsed since the last
// low-priority admission (spec §4.2 step 2's gate). A failed EWMS request
// fast-forwards the deadline so high-priority retries sooner (spec §4.2
// step 6).
func (r *Runner) lowPriorityGateOpen() bool {
	return time.Now().After(r.fastForwardGateDeadline)
}

func (r *Runner) tick(ctx context.Context) error {
	r.heartbeat.Tick()

	entry, err := r.store.ClaimNext(ctx, r.cfg.StaleThreshold, r.cfg.HighPriorityThreshold, r.lowPriorityGateOpen())
	if err != nil {
		logger.Errorf("backlog-runner: claim-next failed: %v", err)
		return nil
	}
	if entry == nil {
		return nil
	}
	return r.process(ctx, entry)
}

func (r *Runner) process(ctx context.Context, entry *docstore.BacklogEntry) error {
	scanID := entry.ScanID

	if entry.NextAttempt > r.cfg.MaxAttempts {
		logger.Warnf("backlog-runner: scan %s exceeded MAX_ATTEMPTS (%d), purging", scanID, r.cfg.MaxAttempts)
		return r.store.RemoveBacklogEntry(ctx, scanID)
	}

	manifest, err := r.store.GetManifest(ctx, scanID, true)
	if err != nil {
		logger.Errorf("backlog-runner: manifest lookup failed for %s: %v", scanID, err)
		return nil
	}
	if manifest.IsDeleted {
		logger.Infof("backlog-runner: scan %s deleted, purging backlog entry", scanID)
		return r.store.RemoveBacklogEntry(ctx, scanID)
	}

	jobDoc, err := r.store.GetK8sJobDoc(ctx, scanID)
	if err != nil {
		logger.Errorf("backlog-runner: k8s job doc lookup failed for %s: %v", scanID, err)
		return nil
	}

	if entry.Priority < r.cfg.HighPriorityThreshold {
		r.lastLowPriorityAdmit = time.Now()
		r.fastForwardGateDeadline = time.Now().Add(r.cfg.LongDelay)
	}

	if manifest.EWMSWorkflowID == "" {
		if err := r.store.SetEWMSWorkflowID(ctx, scanID, docstore.PendingEWMSWorkflow); err != nil {
			logger.Errorf("backlog-runner: set pending workflow id failed for %s: %v", scanID, err)
			return nil
		}
		workflowID, err := r.ewms.RequestWorkflow(ctx, scanID, map[string]interface{}{"job_manifest_yaml": jobDoc.JobManifestYAML})
		if err != nil {
			logger.Warnf("backlog-runner: ewms request-workflow failed for %s, will retry: %v", scanID, err)
			r.fastForwardGateDeadline = time.Time{} // open the gate sooner for the high-priority retry
			return nil
		}
		if err := r.store.SetEWMSWorkflowID(ctx, scanID, workflowID); err != nil {
			logger.Errorf("backlog-runner: persist workflow id failed for %s: %v", scanID, err)
			return nil
		}
	}

	if err := r.createK8sJob(ctx, jobDoc); err != nil {
		logger.Warnf("backlog-runner: k8s job create failed for %s, will retry: %v", scanID, err)
		return nil
	}

	return r.store.RemoveBacklogEntry(ctx, scanID)
}

func (r *Runner) createK8sJob(ctx context.Context, doc *docstore.K8sJobDoc) error {
	var job batchv1.Job
	if err := yaml.Unmarshal([]byte(doc.JobManifestYAML), &job); err != nil {
		return err
	}
	_, err := r.k8s.Clientset.BatchV1().Jobs(r.k8s.Namespace).Create(ctx, &job, metav1.CreateOptions{})
	if err != nil && !k8serrors.IsAlreadyExists(err) {
		return err
	}

	// record k8s_started_ts now that the Job actually exists in the
	// cluster — the backlog can sit on an entry for a while, so this is
	// not the same moment as the scan's admission.
	if err := r.store.SetK8sJobStarted(ctx, doc.ScanID, time.Now().UTC()); err != nil {
		logger.Warnf("backlog-runner: set k8s_started_ts failed for %s: %v", doc.ScanID, err)
	}
	return nil
}
