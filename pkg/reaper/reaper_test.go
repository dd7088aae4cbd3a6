// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package reaper

import (
	"context"
	"testing"

	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WIPACrepo/SkyDriver/internal/k8sclient"
	"github.com/WIPACrepo/SkyDriver/pkg/docstore"
)

func TestReapOne_DeletesExistingJob(t *testing.T) {
	cs := fake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "skyscan-abc", Namespace: "skydriver"},
	})
	k8s := &k8sclient.Client{Clientset: cs, Namespace: "skydriver"}
	r := &Reaper{k8s: k8s}

	reaped := r.reapOne(context.Background(), &docstore.Manifest{ScanID: "abc"})
	assert.True(t, reaped)

	_, err := cs.BatchV1().Jobs("skydriver").Get(context.Background(), "skyscan-abc", metav1.GetOptions{})
	assert.Error(t, err)
}

func TestReapOne_NoOpWhenJobAlreadyGone(t *testing.T) {
	cs := fake.NewSimpleClientset()
	k8s := &k8sclient.Client{Clientset: cs, Namespace: "skydriver"}
	r := &Reaper{k8s: k8s}

	reaped := r.reapOne(context.Background(), &docstore.Manifest{ScanID: "nonexistent"})
	assert.False(t, reaped)
}

func TestReapOne_SkipsEWMSFinishedWhenNoWorkflowID(t *testing.T) {
	cs := fake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "skyscan-xyz", Namespace: "skydriver"},
	})
	k8s := &k8sclient.Client{Clientset: cs, Namespace: "skydriver"}
	r := &Reaper{k8s: k8s} // no ewms client wired; must not panic

	reaped := r.reapOne(context.Background(), &docstore.Manifest{ScanID: "xyz"})
	assert.True(t, reaped)
}

func TestNew_AppliesDefaults(t *testing.T) {
	r := New(nil, nil, nil, Config{})
	require.Equal(t, "0 */15 * * * *", r.cfg.Schedule)
	assert.Greater(t, int64(r.cfg.Grace), int64(0))
	assert.Greater(t, int64(r.cfg.Lookback), int64(0))
}
