// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// teardownScheduler implements spec §4.7: once a final result lands, wait
// WAIT_BEFORE_TEARDOWN and then delete the scan's Kubernetes job. The
// in-process time.AfterFunc handles the common case; a durable "stopper"
// Job is created synchronously alongside it so a REST-process restart
// during the wait window doesn't lose the teardown (the stopper job
// outlives the process, grounded the same way pkg/jobspec's scanner job
// itself survives a restart — both are declarative Kubernetes objects, not
// in-memory state).
package restapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/WIPACrepo/SkyDriver/internal/logger"
)

type teardownScheduler struct {
	s    *Server
	wait time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTeardownScheduler(s *Server, wait time.Duration) *teardownScheduler {
	return &teardownScheduler{s: s, wait: wait, timers: map[string]*time.Timer{}}
}

// Schedule arranges for scanID's scanner job to be deleted after the
// configured wait. Idempotent: a second call for the same scan id while one
// is already pending is a no-op.
func (t *teardownScheduler) Schedule(scanID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, already := t.timers[scanID]; already {
		return
	}

	if err := t.createStopperJob(scanID); err != nil {
		logger.Errorf("teardown: failed to create durable stopper job for scan %s (in-process timer still armed): %v", scanID, err)
	}

	t.timers[scanID] = time.AfterFunc(t.wait, func() { t.teardown(scanID) })
}

func (t *teardownScheduler) teardown(scanID string) {
	t.mu.Lock()
	delete(t.timers, scanID)
	t.mu.Unlock()

	ctx := context.Background()
	t.s.stopScannerInstance(ctx, scanID)
}

// stopScannerInstance tears down scanID's worker fleet via EWMS and deletes
// its in-cluster scanner job — spec.md's "stop-scanner-instance" operation,
// used by the teardown scheduler (pkg/reaper does its own cleanup in
// reapOne and does not call this). rescan's
// abort_first branch (spec.md: "call stop-scanner-instance on the old id
// and EWMS-abort its workflow") shares the job-delete half via
// deleteScannerJob but issues its own EWMS.Abort rather than Finished.
func (s *Server) stopScannerInstance(ctx context.Context, scanID string) {
	if m, err := s.Store.GetManifest(ctx, scanID, true); err != nil {
		logger.Warnf("stop-scanner-instance: manifest lookup failed for %s: %v", scanID, err)
	} else if m.EWMSWorkflowID != "" {
		s.EWMS.Finished(ctx, m.EWMSWorkflowID)
	}
	s.deleteScannerJob(ctx, scanID)
}

// deleteScannerJob deletes scanID's in-cluster scanner Job, if it still
// exists. Shared by stopScannerInstance and rescan's abort_first branch.
func (s *Server) deleteScannerJob(ctx context.Context, scanID string) {
	jobName := fmt.Sprintf("skyscan-%s", scanID)
	policy := metav1.DeletePropagationForeground
	err := s.K8s.Clientset.BatchV1().Jobs(s.K8s.Namespace).Delete(ctx, jobName, metav1.DeleteOptions{PropagationPolicy: &policy})
	if err != nil && !k8serrors.IsNotFound(err) {
		logger.Errorf("delete scanner job for scan %s failed: %v", scanID, err)
	}
}

// createStopperJob creates a short-lived Kubernetes Job that sleeps for the
// configured wait and then deletes the scanner job itself, so the teardown
// still happens even if this REST process restarts or crashes mid-wait.
func (t *teardownScheduler) createStopperJob(scanID string) error {
	cfg := t.s.Cfg
	jobName := fmt.Sprintf("skyscan-%s", scanID)
	stopperName := fmt.Sprintf("skyscan-teardown-%s", scanID)
	waitSeconds := int(t.wait.Seconds())
	if waitSeconds < 0 {
		waitSeconds = 0
	}

	backoffLimit := int32(1)
	ttl := int32(300)
	deadline := int64(waitSeconds + 120)

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      stopperName,
			Namespace: cfg.K8s.Namespace,
			Labels:    map[string]string{"app": "scanner-teardown", "skydriver/scan-id": scanID},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			ActiveDeadlineSeconds:   &deadline,
			Template: corev1.PodTemplateSpec{
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{{
						Name:  "teardown",
						Image: cfg.K8s.KubectlImage,
						Command: []string{
							"sh", "-c",
							fmt.Sprintf("sleep %d && kubectl delete job %s -n %s --ignore-not-found", waitSeconds, jobName, cfg.K8s.Namespace),
						},
					}},
				},
			},
		},
	}

	_, err := t.s.K8s.Clientset.BatchV1().Jobs(cfg.K8s.Namespace).Create(context.Background(), job, metav1.CreateOptions{})
	if err != nil && k8serrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}
