// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

// These tests drive the store's Mongo-facing methods against mtest's mock
// deployment, the same technique the driver itself uses for unit coverage
// of command shapes without a live replica set. They assert what is sent
// (the find filter) or what a method returns for a canned reply, which is
// what the invariants in spec §3 actually hinge on.

func TestPutResult_EmptyResultIsNoop(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("noop", func(mt *mtest.T) {
		s := &Store{client: mt.Client, db: mt.Client.Database("test")}
		err := s.PutResult(context.Background(), &Result{ScanID: "abc", SkyscanResult: nil})
		assert.NoError(t, err)
		// No command should have been issued; mtest would error on an
		// unconsumed expected response if we'd queued one, so absence of a
		// queued response plus no panic is the assertion here.
	})
}

func TestClaimNext_NoDocumentsReturnsNilNotError(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("empty-backlog", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "value", Value: nil}})
		s := &Store{client: mt.Client, db: mt.Client.Database("test")}
		e, err := s.ClaimNext(context.Background(), 90*time.Second, 10, false)
		assert.NoError(t, err)
		assert.Nil(t, e)
	})
}

func TestManifestFilters_ExcludeDeletedByDefault(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("find", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "test.Manifests", mtest.FirstBatch))
		s := &Store{client: mt.Client, db: mt.Client.Database("test")}
		_, err := s.FindManifests(context.Background(), bson.M{}, false)
		assert.NoError(t, err)

		evt := mt.GetStartedEvent()
		if assert.NotNil(t, evt) {
			ne := evt.Command.Lookup("filter", "is_deleted", "$ne")
			assert.True(t, ne.Type == bson.TypeBoolean && ne.Boolean())
		}
	})
}
