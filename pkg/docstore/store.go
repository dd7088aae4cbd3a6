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
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/WIPACrepo/SkyDriver/internal/logger"
)

// Collection names, per spec §6.
const (
	CollManifests    = "Manifests"
	CollResults      = "Results"
	CollScanBacklog  = "ScanBacklog"
	CollScanRequests = "ScanRequests"
	CollI3Events     = "I3Events"
	CollK8sJobs      = "SkyScanK8sJobs"
)

// Store is the handle every SkyDriver process uses to reach MongoDB. It
// owns one *mongo.Database and exposes typed accessors per collection.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB and pings it, the same eager-connect-then-ping shape
// the teacher uses for its database facades at process startup.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// EnsureIndexes builds every index named in spec §6. CreateMany/CreateOne
// build in the background by default in driver v1, so this never blocks
// process startup on a large existing collection.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	manifestIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "scan_id", Value: 1}}, Options: uniqueIndexOpts()},
		{Keys: bson.D{{Key: "ewms_workflow_id", Value: 1}}},
		{Keys: bson.D{{Key: "event_metadata.event_id", Value: -1}, {Key: "event_metadata.run_id", Value: -1}}},
	}
	if _, err := s.coll(CollManifests).Indexes().CreateMany(ctx, manifestIdx); err != nil {
		return fmt.Errorf("ensure Manifests indexes: %w", err)
	}

	resultsIdx := mongo.IndexModel{Keys: bson.D{{Key: "scan_id", Value: 1}}, Options: uniqueIndexOpts()}
	if _, err := s.coll(CollResults).Indexes().CreateOne(ctx, resultsIdx); err != nil {
		return fmt.Errorf("ensure Results indexes: %w", err)
	}

	backlogIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "priority", Value: -1}}},
		{Keys: bson.D{{Key: "scan_id", Value: 1}}, Options: uniqueIndexOpts()},
	}
	if _, err := s.coll(CollScanBacklog).Indexes().CreateMany(ctx, backlogIdx); err != nil {
		return fmt.Errorf("ensure ScanBacklog indexes: %w", err)
	}

	reqIdx := mongo.IndexModel{Keys: bson.D{{Key: "scan_id", Value: 1}}, Options: uniqueIndexOpts()}
	if _, err := s.coll(CollScanRequests).Indexes().CreateOne(ctx, reqIdx); err != nil {
		return fmt.Errorf("ensure ScanRequests indexes: %w", err)
	}
	jobsIdx := mongo.IndexModel{Keys: bson.D{{Key: "scan_id", Value: 1}}, Options: uniqueIndexOpts()}
	if _, err := s.coll(CollK8sJobs).Indexes().CreateOne(ctx, jobsIdx); err != nil {
		return fmt.Errorf("ensure SkyScanK8sJobs indexes: %w", err)
	}

	i3idx := mongo.IndexModel{Keys: bson.D{{Key: "i3_event_id", Value: 1}}, Options: uniqueIndexOpts()}
	if _, err := s.coll(CollI3Events).Indexes().CreateOne(ctx, i3idx); err != nil {
		return fmt.Errorf("ensure I3Events indexes: %w", err)
	}

	logger.Infof("docstore: indexes ensured on database %q", s.db.Name())
	return nil
}

func uniqueIndexOpts() *options.IndexOptions {
	return options.Index().SetUnique(true)
}
