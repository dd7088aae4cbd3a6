// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/WIPACrepo/SkyDriver/internal/apierrors"
)

// GetResult fetches the Result for scanID, or a not-found Error.
func (s *Store) GetResult(ctx context.Context, scanID string) (*Result, error) {
	var out Result
	err := s.coll(CollResults).FindOne(ctx, bson.M{"scan_id": scanID}).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, apierrors.NewNotFound(fmt.Sprintf("no Result for scan_id %s", scanID))
	}
	if err != nil {
		return nil, apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("get Result").WithError(err)
	}
	return &out, nil
}

// PutResult upserts a Result. Writing an empty skyscan_result is a no-op
// (spec §3: "Writing an empty result is a no-op"). is_final is monotone
// false→true: the update predicate refuses to downgrade an already-final
// result, matching spec §3 invariant 3 and §8 property 3.
func (s *Store) PutResult(ctx context.Context, r *Result) error {
	if len(r.SkyscanResult) == 0 {
		return nil
	}
	r.LastUpdated = time.Now().UTC()

	if r.IsFinal {
		upsert := true
		_, err := s.coll(CollResults).UpdateOne(ctx,
			bson.M{"scan_id": r.ScanID},
			bson.M{"$set": bson.M{
				"scan_id":        r.ScanID,
				"skyscan_result": r.SkyscanResult,
				"is_final":       true,
				"last_updated":   r.LastUpdated,
			}},
			options.Update().SetUpsert(upsert),
		)
		if err != nil {
			return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("put final result").WithError(err)
		}
		return nil
	}

	// Non-final write: only apply if no final result already exists, so a
	// stale/late non-final push can never regress is_final true→false.
	upsert := true
	_, err := s.coll(CollResults).UpdateOne(ctx,
		bson.M{"scan_id": r.ScanID, "is_final": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{
			"scan_id":        r.ScanID,
			"skyscan_result": r.SkyscanResult,
			"is_final":       false,
			"last_updated":   r.LastUpdated,
		}},
		options.Update().SetUpsert(upsert),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return apierrors.New().WithCode(apierrors.CodeDatabase).WithMessage("put result").WithError(err)
	}
	return nil
}
