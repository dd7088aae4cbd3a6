// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package watchdog

import (
	"context"
	"testing"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WIPACrepo/SkyDriver/internal/k8sclient"
)

func TestHasTerminalFailureCondition(t *testing.T) {
	job := &batchv1.Job{Status: batchv1.JobStatus{Conditions: []batchv1.JobCondition{
		{Type: batchv1.JobFailed, Status: corev1.ConditionTrue, Reason: "BackoffLimitExceeded"},
	}}}
	assert.True(t, hasTerminalFailureCondition(job))

	job2 := &batchv1.Job{Status: batchv1.JobStatus{Conditions: []batchv1.JobCondition{
		{Type: batchv1.JobFailed, Status: corev1.ConditionFalse, Reason: "BackoffLimitExceeded"},
	}}}
	assert.False(t, hasTerminalFailureCondition(job2))

	assert.False(t, hasTerminalFailureCondition(&batchv1.Job{}))
}

func TestPodTransientlyKilled_AbsentPodWithNoJobActivity(t *testing.T) {
	cs := fake.NewSimpleClientset()
	k8s := &k8sclient.Client{Clientset: cs, Namespace: "skydriver"}
	r := &Runner{k8s: k8s}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "skyscan-abc", Namespace: "skydriver"},
		Status:     batchv1.JobStatus{Active: 0, Succeeded: 0, Failed: 0},
	}

	killed, err := r.podTransientlyKilled(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, killed)
}

func TestPodTransientlyKilled_RunningPodIsNotKilled(t *testing.T) {
	job := &batchv1.Job{ObjectMeta: metav1.ObjectMeta{Name: "skyscan-abc", Namespace: "skydriver"}}
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "skyscan-abc-xyz",
			Namespace: "skydriver",
			Labels:    map[string]string{"job-name": "skyscan-abc"},
		},
		Status: corev1.PodStatus{Phase: corev1.PodRunning},
	}
	cs := fake.NewSimpleClientset(pod)
	k8s := &k8sclient.Client{Clientset: cs, Namespace: "skydriver"}
	r := &Runner{k8s: k8s}

	killed, err := r.podTransientlyKilled(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, killed)
}

func TestPodTransientlyKilled_EvictedContainerIsKilled(t *testing.T) {
	job := &batchv1.Job{ObjectMeta: metav1.ObjectMeta{Name: "skyscan-abc", Namespace: "skydriver"}}
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "skyscan-abc-xyz",
			Namespace: "skydriver",
			Labels:    map[string]string{"job-name": "skyscan-abc"},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodFailed,
			ContainerStatuses: []corev1.ContainerStatus{
				{State: corev1.ContainerState{Terminated: &corev1.ContainerStateTerminated{Reason: "Evicted"}}},
			},
		},
	}
	cs := fake.NewSimpleClientset(pod)
	k8s := &k8sclient.Client{Clientset: cs, Namespace: "skydriver"}
	r := &Runner{k8s: k8s}

	killed, err := r.podTransientlyKilled(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, killed)
}

func TestPodTransientlyKilled_ExplicitFailureReasonIsNotTransient(t *testing.T) {
	job := &batchv1.Job{ObjectMeta: metav1.ObjectMeta{Name: "skyscan-abc", Namespace: "skydriver"}}
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "skyscan-abc-xyz",
			Namespace: "skydriver",
			Labels:    map[string]string{"job-name": "skyscan-abc"},
		},
		Status: corev1.PodStatus{
			Phase: corev1.PodFailed,
			ContainerStatuses: []corev1.ContainerStatus{
				{State: corev1.ContainerState{Terminated: &corev1.ContainerStateTerminated{Reason: "Error", ExitCode: 1}}},
			},
		},
	}
	cs := fake.NewSimpleClientset(pod)
	k8s := &k8sclient.Client{Clientset: cs, Namespace: "skydriver"}
	r := &Runner{k8s: k8s}

	killed, err := r.podTransientlyKilled(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, killed)
}
