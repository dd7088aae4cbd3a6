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

// CreateScanRequest persists a new ScanRequest. Duplicate scan_id is a bug,
// not a user error (spec §7), so it surfaces as a 500-coded Error.
func (s *Store) CreateScanRequest(ctx context.Context, req *ScanRequest) error {
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}
	_, err := s.coll(CollScanRequests).InsertOne(ctx, req)
	if mongo.IsDuplicateKeyError(err) {
		return apierrors.New().WithCode(apierrors.CodeInternal).
			WithMessagef("duplicate ScanRequest for scan_id %s", req.ScanID).WithError(err)
	}
	if err != nil {
		return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("insert ScanRequest").WithError(err)
	}
	return nil
}

// GetScanRequest fetches the ScanRequest for scanID, or a not-found Error.
func (s *Store) GetScanRequest(ctx context.Context, scanID string) (*ScanRequest, error) {
	var out ScanRequest
	err := s.coll(CollScanRequests).FindOne(ctx, bson.M{"scan_id": scanID}).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, apierrors.NewNotFound(fmt.Sprintf("no ScanRequest for scan_id %s", scanID))
	}
	if err != nil {
		return nil, apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("get ScanRequest").WithError(err)
	}
	return &out, nil
}

// AppendRescanID records that newScanID was created as a rescan of scanID,
// so the watchdog (spec §4.3 step 4) can detect "replacement already issued".
func (s *Store) AppendRescanID(ctx context.Context, scanID, newScanID string) error {
	_, err := s.coll(CollScanRequests).UpdateOne(ctx,
		bson.M{"scan_id": scanID},
		bson.M{"$addToSet": bson.M{"rescan_ids": newScanID}},
	)
	if err != nil {
		return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("append rescan id").WithError(err)
	}
	return nil
}
