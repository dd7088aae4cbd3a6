// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package docstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/WIPACrepo/SkyDriver/internal/apierrors"
)

// RecordI3Event best-effort-indexes an event payload's dedup key against the
// scan it arrived with. This index is advisory only — Manifest remains the
// source of truth (SPEC_FULL.md's clarification) — so a duplicate key here
// is swallowed rather than surfaced: a second scan over the same event is a
// legitimate rescan, not a bug.
func (s *Store) RecordI3Event(ctx context.Context, i3EventID, scanID string) error {
	_, err := s.coll(CollI3Events).InsertOne(ctx, I3Event{I3EventID: i3EventID, ScanID: scanID})
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("record i3 event index").WithError(err)
	}
	return nil
}

// LookupI3Event returns the scan_id already associated with i3EventID, if any.
func (s *Store) LookupI3Event(ctx context.Context, i3EventID string) (string, bool, error) {
	var out I3Event
	err := s.coll(CollI3Events).FindOne(ctx, bson.M{"i3_event_id": i3EventID}).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return "", false, nil
	}
	if err != nil {
		return "", false, apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("lookup i3 event index").WithError(err)
	}
	return out.ScanID, true, nil
}
