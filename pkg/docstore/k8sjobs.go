// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/WIPACrepo/SkyDriver/internal/apierrors"
)

// CreateK8sJobDoc persists the serialised job manifest for audit (spec
// §3: "K8sJobDoc persists for audit"). Duplicate scan_id is a bug (500).
func (s *Store) CreateK8sJobDoc(ctx context.Context, doc *K8sJobDoc) error {
	_, err := s.coll(CollK8sJobs).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return apierrors.New().WithCode(apierrors.CodeInternal).
			WithMessagef("duplicate K8sJobDoc for scan_id %s", doc.ScanID).WithError(err)
	}
	if err != nil {
		return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("insert K8sJobDoc").WithError(err)
	}
	return nil
}

// GetK8sJobDoc fetches the persisted job manifest for scanID.
func (s *Store) GetK8sJobDoc(ctx context.Context, scanID string) (*K8sJobDoc, error) {
	var out K8sJobDoc
	err := s.coll(CollK8sJobs).FindOne(ctx, bson.M{"scan_id": scanID}).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, apierrors.NewNotFound(fmt.Sprintf("no K8sJobDoc for scan_id %s", scanID))
	}
	if err != nil {
		return nil, apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("get K8sJobDoc").WithError(err)
	}
	return &out, nil
}

// SetK8sJobStarted records the actual moment scanID's Kubernetes Job was
// created in the cluster (k8s_started_ts), distinct from the scan's
// admission time. Called by admitDirect and the backlog runner right after
// their respective Jobs.Create calls succeed.
func (s *Store) SetK8sJobStarted(ctx context.Context, scanID string, startedAt time.Time) error {
	_, err := s.coll(CollK8sJobs).UpdateOne(ctx,
		bson.M{"scan_id": scanID},
		bson.M{"$set": bson.M{"k8s_started_ts": startedAt}},
	)
	if err != nil {
		return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("set k8s_started_ts").WithError(err)
	}
	return nil
}

// ListStartedBetween returns the scan ids whose Kubernetes Job was created
// (k8s_started_ts) within [since, until) — the pod watchdog's recency
// window (spec §4.3 step 1). Grounded directly on
// original_source/skydriver/background_runners/scan_pod_watchdog.py's
// _get_recent_scans, which runs this exact range query against the same
// k8s-job collection rather than against the scan's admission timestamp.
func (s *Store) ListStartedBetween(ctx context.Context, since, until time.Time) ([]string, error) {
	filter := bson.M{"k8s_started_ts": bson.M{"$gte": since, "$lt": until}}
	cur, err := s.coll(CollK8sJobs).Find(ctx, filter)
	if err != nil {
		return nil, apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("list started-between job docs").WithError(err)
	}
	defer cur.Close(ctx)
	var docs []K8sJobDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("decode job docs").WithError(err)
	}
	scanIDs := make([]string, len(docs))
	for i, d := range docs {
		scanIDs[i] = d.ScanID
	}
	return scanIDs, nil
}
