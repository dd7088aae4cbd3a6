// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package docstore

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/WIPACrepo/SkyDriver/internal/apierrors"
)

// CreateManifest persists a new Manifest at admission time. Duplicate
// scan_id indicates a bug upstream (scan ids are meant to be unique by
// construction), so it is a 500, per spec §7.
func (s *Store) CreateManifest(ctx context.Context, m *Manifest) error {
	now := time.Now().UTC()
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	m.LastUpdated = now
	if m.Clusters == nil {
		m.Clusters = []ClusterStatus{}
	}
	_, err := s.coll(CollManifests).InsertOne(ctx, m)
	if mongo.IsDuplicateKeyError(err) {
		return apierrors.New().WithCode(apierrors.CodeInternal).
			WithMessagef("duplicate Manifest for scan_id %s", m.ScanID).WithError(err)
	}
	if err != nil {
		return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("insert Manifest").WithError(err)
	}
	return nil
}

// GetManifest fetches a manifest by scan_id. If includeDeleted is false and
// the manifest is soft-deleted, this returns a not-found Error (spec §7:
// "Reads of deleted documents → 404 unless include_deleted=true").
func (s *Store) GetManifest(ctx context.Context, scanID string, includeDeleted bool) (*Manifest, error) {
	filter := bson.M{"scan_id": scanID}
	if !includeDeleted {
		filter["is_deleted"] = bson.M{"$ne": true}
	}
	var out Manifest
	err := s.coll(CollManifests).FindOne(ctx, filter).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, apierrors.NewNotFound(fmt.Sprintf("no Manifest for scan_id %s", scanID))
	}
	if err != nil {
		return nil, apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("get Manifest").WithError(err)
	}
	return &out, nil
}

// SetEWMSWorkflowID advances the ewms_workflow_id monotone transition graph
// (spec §3: unset → PENDING → actual, never regresses). The predicate only
// matches documents whose current value is strictly "earlier" than next, so
// concurrent or retried calls are no-ops rather than corruptions — the same
// conditional-update shape the teacher's TryAcquireLock/ExtendLock use
// against a SQL row.
func (s *Store) SetEWMSWorkflowID(ctx context.Context, scanID, next string) error {
	var filter bson.M
	switch next {
	case PendingEWMSWorkflow:
		filter = bson.M{"scan_id": scanID, "ewms_workflow_id": ""}
	default:
		filter = bson.M{"scan_id": scanID, "ewms_workflow_id": bson.M{"$in": []string{"", PendingEWMSWorkflow}}}
	}
	update := bson.M{"$set": bson.M{"ewms_workflow_id": next, "last_updated": time.Now().UTC()}}
	_, err := s.coll(CollManifests).UpdateOne(ctx, filter, update)
	if err != nil {
		return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("set ewms_workflow_id").WithError(err)
	}
	return nil
}

// SetOnceEventMetadata sets Manifest.event_metadata the first time and
// rejects any subsequent attempt to change it (spec §3 invariant 2, §7
// conflict kind, scenario S5).
func (s *Store) SetOnceEventMetadata(ctx context.Context, scanID string, meta map[string]interface{}) error {
	return s.setOnceField(ctx, scanID, "event_metadata", meta, "event_metadata")
}

// SetOnceScanMetadata is the scan_metadata analogue of SetOnceEventMetadata.
func (s *Store) SetOnceScanMetadata(ctx context.Context, scanID string, meta map[string]interface{}) error {
	return s.setOnceField(ctx, scanID, "scan_metadata", meta, "scan_metadata")
}

func (s *Store) setOnceField(ctx context.Context, scanID, bsonField string, value map[string]interface{}, humanName string) error {
	m, err := s.GetManifest(ctx, scanID, false)
	if err != nil {
		return err
	}
	existing := m.EventMetadata
	if bsonField == "scan_metadata" {
		existing = m.ScanMetadata
	}
	if len(existing) > 0 {
		if reflect.DeepEqual(existing, value) {
			return nil
		}
		return apierrors.New().WithCode(apierrors.CodeValidation).
			WithMessagef("Cannot change an existing %s", humanName)
	}
	_, err = s.coll(CollManifests).UpdateOne(ctx,
		bson.M{"scan_id": scanID},
		bson.M{"$set": bson.M{bsonField: value, "last_updated": time.Now().UTC()}},
	)
	if err != nil {
		return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessagef("set %s", humanName).WithError(err)
	}
	return nil
}

// UpdateProgress overwrites Manifest.progress and bumps last_updated. Unlike
// event_metadata/scan_metadata, progress is expected to change repeatedly
// over a scan's life (spec §6, PATCH /scan/{id}/manifest).
func (s *Store) UpdateProgress(ctx context.Context, scanID string, p *Progress) error {
	_, err := s.coll(CollManifests).UpdateOne(ctx,
		bson.M{"scan_id": scanID},
		bson.M{"$set": bson.M{"progress": p, "last_updated": time.Now().UTC()}},
	)
	if err != nil {
		return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("update progress").WithError(err)
	}
	return nil
}

// UpdateClusters overwrites Manifest.clusters, the record of back-ends
// actually running work (used by POST .../actions/add-workers).
func (s *Store) UpdateClusters(ctx context.Context, scanID string, clusters []ClusterStatus) error {
	_, err := s.coll(CollManifests).UpdateOne(ctx,
		bson.M{"scan_id": scanID},
		bson.M{"$set": bson.M{"clusters": clusters, "last_updated": time.Now().UTC()}},
	)
	if err != nil {
		return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("update clusters").WithError(err)
	}
	return nil
}

// SetComplete marks a manifest complete=true. The filter matches on scan_id
// only (no complete or is_deleted predicate); $set to true is idempotent, so
// repeating the call is harmless.
func (s *Store) SetComplete(ctx context.Context, scanID string) error {
	_, err := s.coll(CollManifests).UpdateOne(ctx,
		bson.M{"scan_id": scanID},
		bson.M{"$set": bson.M{"complete": true, "last_updated": time.Now().UTC()}},
	)
	if err != nil {
		return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("set complete").WithError(err)
	}
	return nil
}

// SetReplacedBy sets replaced_by_scan_id on the old manifest (spec §4.8).
// Callers must have already verified the new scan exists and is not deleted
// (spec §3 invariant 5); this method only performs the write.
func (s *Store) SetReplacedBy(ctx context.Context, oldScanID, newScanID string) error {
	_, err := s.coll(CollManifests).UpdateOne(ctx,
		bson.M{"scan_id": oldScanID},
		bson.M{"$set": bson.M{"replaced_by_scan_id": newScanID, "last_updated": time.Now().UTC()}},
	)
	if err != nil {
		return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("set replaced_by_scan_id").WithError(err)
	}
	return nil
}

// SoftDelete marks is_deleted=true (DELETE /scan/{id}).
func (s *Store) SoftDelete(ctx context.Context, scanID string) error {
	_, err := s.coll(CollManifests).UpdateOne(ctx,
		bson.M{"scan_id": scanID},
		bson.M{"$set": bson.M{"is_deleted": true, "last_updated": time.Now().UTC()}},
	)
	if err != nil {
		return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("soft delete manifest").WithError(err)
	}
	return nil
}

// FindManifests runs a caller-supplied Mongo-style filter for POST
// /scans/find, honouring include_deleted.
func (s *Store) FindManifests(ctx context.Context, filter bson.M, includeDeleted bool) ([]Manifest, error) {
	f := bson.M{}
	for k, v := range filter {
		f[k] = v
	}
	if !includeDeleted {
		if _, ok := f["is_deleted"]; !ok {
			f["is_deleted"] = bson.M{"$ne": true}
		}
	}
	cur, err := s.coll(CollManifests).Find(ctx, f)
	if err != nil {
		return nil, apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("find manifests").WithError(err)
	}
	defer cur.Close(ctx)
	var out []Manifest
	if err := cur.All(ctx, &out); err != nil {
		return nil, apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("decode manifests").WithError(err)
	}
	return out, nil
}

// ListCompleteSince returns non-deleted manifests marked complete whose
// scan_id timestamp is at or after sinceScanID — used by the reaper's
// stopper-job backstop sweep (a disaster-recovery complement to the
// teardown scheduler's own in-process timer and stopper Job) to bound the
// set of candidates it has to check against the cluster on each pass.
func (s *Store) ListCompleteSince(ctx context.Context, sinceScanID string) ([]Manifest, error) {
	filter := bson.M{
		"scan_id":    bson.M{"$gte": sinceScanID},
		"complete":   true,
		"is_deleted": bson.M{"$ne": true},
	}
	cur, err := s.coll(CollManifests).Find(ctx, filter)
	if err != nil {
		return nil, apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("list complete-since manifests").WithError(err)
	}
	defer cur.Close(ctx)
	var out []Manifest
	if err := cur.All(ctx, &out); err != nil {
		return nil, apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("decode manifests").WithError(err)
	}
	return out, nil
}
