// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package docstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/WIPACrepo/SkyDriver/internal/apierrors"
)

// PushBacklogEntry enqueues a scan for the backlog runner (spec §4.1: used
// when priority < HIGH_THRESHOLD, or as a fallback when an immediate k8s
// create attempt fails).
func (s *Store) PushBacklogEntry(ctx context.Context, scanID string, priority int) error {
	e := BacklogEntry{
		ScanID:      scanID,
		Timestamp:   time.Now().UTC(),
		Priority:    priority,
		NextAttempt: 0,
	}
	_, err := s.coll(CollScanBacklog).InsertOne(ctx, e)
	if mongo.IsDuplicateKeyError(err) {
		return apierrors.New().WithCode(apierrors.CodeInternal).
			WithMessagef("duplicate BacklogEntry for scan_id %s", scanID).WithError(err)
	}
	if err != nil {
		return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("push backlog entry").WithError(err)
	}
	return nil
}

// RemoveBacklogEntry deletes the backlog entry for scanID (claimed
// successfully, manifest deleted, or next_attempt exceeded MAX_ATTEMPTS).
func (s *Store) RemoveBacklogEntry(ctx context.Context, scanID string) error {
	_, err := s.coll(CollScanBacklog).DeleteOne(ctx, bson.M{"scan_id": scanID})
	if err != nil {
		return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("remove backlog entry").WithError(err)
	}
	return nil
}

// ClaimNext atomically finds the oldest eligible backlog entry and marks it
// pending (spec §4.2 step 2): FindOneAndUpdate under the hood, so at most
// one runner instance — even across processes sharing the collection — can
// claim a given entry at a time, the same guarantee the teacher's
// TryAcquireLock gives over a SQL row.
//
// Eligibility: pending_timestamp is unset or older than staleThreshold, AND
// (priority >= highThreshold OR lowPriorityGateOpen).
func (s *Store) ClaimNext(ctx context.Context, staleThreshold time.Duration, highThreshold int, lowPriorityGateOpen bool) (*BacklogEntry, error) {
	now := time.Now().UTC()
	notRecentlyPending := bson.M{"$or": []bson.M{
		{"pending_timestamp": bson.M{"$exists": false}},
		{"pending_timestamp": time.Time{}},
		{"pending_timestamp": bson.M{"$lte": now.Add(-staleThreshold)}},
	}}

	priorityClause := bson.M{"priority": bson.M{"$gte": highThreshold}}
	if lowPriorityGateOpen {
		priorityClause = bson.M{}
	}

	filter := bson.M{"$and": []bson.M{notRecentlyPending, priorityClause}}

	update := bson.M{
		"$set": bson.M{"pending_timestamp": now},
		"$inc": bson.M{"next_attempt": 1},
	}

	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "timestamp", Value: 1}}).
		SetReturnDocument(options.After)

	var out BacklogEntry
	err := s.coll(CollScanBacklog).FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("claim next backlog entry").WithError(err)
	}
	return &out, nil
}

// ListBacklog returns all current backlog entries, for GET /scans/backlog.
func (s *Store) ListBacklog(ctx context.Context) ([]BacklogEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "timestamp", Value: 1}})
	cur, err := s.coll(CollScanBacklog).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("list backlog").WithError(err)
	}
	defer cur.Close(ctx)
	var out []BacklogEntry
	if err := cur.All(ctx, &out); err != nil {
		return nil, apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("decode backlog").WithError(err)
	}
	return out, nil
}
