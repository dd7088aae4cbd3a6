// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package watchdog implements the Pod Watchdog Runner (spec §4.3): a second
// supervised loop, same ticker shape as pkg/backlog, that scans for jobs
// whose pod was transiently killed by the cluster (evicted, OOM-killed,
// bumped by node affinity, or the node itself disappeared) without a
// terminal Job condition, and self-issues a rescan for each. Grounded on
// the teacher's TaskScheduler loop shape (pkg/supervisor) and on
// dataplane_installer/job.go's handleExistingJob, which inspects
// Job.Status.Succeeded/Failed/Conditions in the same directly analogous way
// before deciding whether an existing job needs to be superseded.
package watchdog

import (
	"context"
	"fmt"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/go-resty/resty/v2"

	"github.com/WIPACrepo/SkyDriver/internal/apierrors"
	"github.com/WIPACrepo/SkyDriver/internal/k8sclient"
	"github.com/WIPACrepo/SkyDriver/internal/logger"
	"github.com/WIPACrepo/SkyDriver/pkg/docstore"
	"github.com/WIPACrepo/SkyDriver/pkg/supervisor"
)

// transientTerminationReasons are containerStatus.state.terminated.reason
// values that indicate the cluster killed the pod for reasons unrelated to
// the workload itself (spec §4.3, resolving the "transiently killed" open
// question).
var transientTerminationReasons = map[string]bool{
	"Evicted":      true,
	"OOMKilled":    true,
	"NodeAffinity": true,
	"NodeLost":     true,
}

// Config holds the runner's tunables.
type Config struct {
	WatchdogDelay time.Duration
	WindowMax     time.Duration // exclude scans started more recently than this (default 10m)
	WindowMin     time.Duration // exclude scans started longer ago than this (default 1h)
	SelfAddress   string        // base URL of SkyDriver's own REST server
	BearerToken   string        // token used for the self-issued rescan call
}

// Runner is the Pod Watchdog Runner.
type Runner struct {
	store *docstore.Store
	k8s   *k8sclient.Client
	self  *resty.Client
	cfg   Config

	loop      *supervisor.Loop
	heartbeat *supervisor.Heartbeat
}

// New builds a Runner. Call Start to launch its background loop.
func New(store *docstore.Store, k8s *k8sclient.Client, cfg Config) *Runner {
	r := &Runner{
		store: store,
		k8s:   k8s,
		self:  resty.New().SetBaseURL(cfg.SelfAddress).SetAuthToken(cfg.BearerToken).SetTimeout(30 * time.Second),
		cfg:   cfg,
	}
	r.heartbeat = supervisor.NewHeartbeat("pod-watchdog", 1)
	r.loop = supervisor.New("pod-watchdog", cfg.WatchdogDelay, r.tick)
	return r
}

// Start launches the runner's background loop.
func (r *Runner) Start() { r.loop.Start() }

// Stop halts the runner's background loop.
func (r *Runner) Stop() { r.loop.Stop() }

func (r *Runner) tick(ctx context.Context) error {
	r.heartbeat.Tick()

	windowMax := r.cfg.WindowMax
	if windowMax <= 0 {
		windowMax = 10 * time.Minute
	}
	windowMin := r.cfg.WindowMin
	if windowMin <= 0 {
		windowMin = time.Hour
	}

	now := time.Now()
	since := now.Add(-windowMin)
	until := now.Add(-windowMax)

	scanIDs, err := r.store.ListStartedBetween(ctx, since, until)
	if err != nil {
		logger.Errorf("pod-watchdog: list started-between failed: %v", err)
		return nil
	}

	for _, scanID := range scanIDs {
		if err := r.inspect(ctx, scanID); err != nil {
			logger.Warnf("pod-watchdog: inspect scan %s failed: %v", scanID, err)
		}
	}
	return nil
}

// inspect decides whether scanID's job was transiently killed and, if so,
// self-issues a rescan (spec §4.3 steps 2-5).
func (r *Runner) inspect(ctx context.Context, scanID string) error {
	result, err := r.store.GetResult(ctx, scanID)
	if err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	if result != nil && result.IsFinal {
		return nil // a final result already arrived; nothing to rescue.
	}

	req, err := r.store.GetScanRequest(ctx, scanID)
	if err != nil {
		return err
	}
	if len(req.RescanIDs) > 0 {
		return nil // a replacement was already issued for this scan.
	}

	jobName := fmt.Sprintf("skyscan-%s", scanID)
	job, err := r.k8s.Clientset.BatchV1().Jobs(r.k8s.Namespace).Get(ctx, jobName, metav1.GetOptions{})
	if err != nil {
		return nil // job gone or inaccessible; nothing actionable here.
	}
	if job.DeletionTimestamp != nil {
		return nil // rules out user-initiated deletion.
	}
	if hasTerminalFailureCondition(job) {
		return nil // explicit failure already recorded; not our call to rescue.
	}
	if job.Status.Succeeded > 0 {
		return nil
	}

	killed, err := r.podTransientlyKilled(ctx, job)
	if err != nil {
		return err
	}
	if !killed {
		return nil
	}

	logger.Warnf("pod-watchdog: scan %s looks transiently killed, issuing rescan", scanID)
	return r.issueRescan(ctx, scanID)
}

// podTransientlyKilled implements the heuristic from spec §4.3: either a
// live pod shows a terminated container with a transient reason, or the pod
// is entirely absent while the Job has not yet recorded any activity,
// success, or failure (kubelet reset it without the Job noticing).
func (r *Runner) podTransientlyKilled(ctx context.Context, job *batchv1.Job) (bool, error) {
	pods, err := r.k8s.Clientset.CoreV1().Pods(r.k8s.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("job-name=%s", job.Name),
	})
	if err != nil {
		return false, fmt.Errorf("list pods for job %s: %w", job.Name, err)
	}

	if len(pods.Items) == 0 {
		return job.Status.Active == 0 && job.Status.Succeeded == 0 && job.Status.Failed == 0, nil
	}

	for _, pod := range pods.Items {
		if pod.Status.Phase == corev1.PodRunning {
			continue
		}
		for _, cs := range pod.Status.ContainerStatuses {
			if cs.State.Terminated == nil {
				continue
			}
			if transientTerminationReasons[cs.State.Terminated.Reason] {
				return true, nil
			}
		}
	}
	return false, nil
}

func hasTerminalFailureCondition(job *batchv1.Job) bool {
	for _, c := range job.Status.Conditions {
		if c.Status != corev1.ConditionTrue {
			continue
		}
		if c.Reason == "BackoffLimitExceeded" || c.Reason == "DeadlineExceeded" {
			return true
		}
	}
	return false
}

// issueRescan self-POSTs to SkyDriver's own REST API, the same endpoint an
// external caller would use, so the rescan goes through the ordinary
// admission path (validation, backlog enqueue, replacement-redirect
// bookkeeping) rather than a watchdog-only shortcut.
func (r *Runner) issueRescan(ctx context.Context, scanID string) error {
	resp, err := r.self.R().SetContext(ctx).
		SetQueryParams(map[string]string{"abort_first": "true", "replace_scan": "true"}).
		Post(fmt.Sprintf("/scan/%s/actions/rescan", scanID))
	if err != nil || resp.IsError() {
		return fmt.Errorf("rescan request for scan %s failed: %w", scanID, err)
	}
	return nil
}
