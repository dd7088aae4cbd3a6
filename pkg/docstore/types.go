// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package docstore is SkyDriver's persistence layer: typed MongoDB
// collections with the monotonicity, uniqueness, and replacement-chain
// invariants named in spec §3. The collection-per-entity layout and the
// "facade struct wrapping a driver handle, exposing typed methods" shape is
// grounded on the teacher's database.WorkloadTaskFacadeInterface
// (Lens/modules/core/pkg/task/scheduler.go callers) and its atomic
// TryAcquireLock/ExtendLock/ReleaseLock claim pattern, adapted here to
// MongoDB's FindOneAndUpdate instead of a SQL row lock.
package docstore

import "time"

const pendingEWMSWorkflowSentinel = "PENDING_EWMS_WORKFLOW"

// PendingEWMSWorkflow is the sentinel value for Manifest.EWMSWorkflowID
// between "backlog entry claimed" and "EWMS actually returned a workflow
// id" (spec §3, Manifest.ewms_workflow_id transition graph).
const PendingEWMSWorkflow = pendingEWMSWorkflowSentinel

// ScanRequest is the immutable record of what the caller asked for.
// Created once at POST /scan; reused as-is (minus overrides) as the
// template for rescans.
type ScanRequest struct {
	ScanID       string                 `bson:"scan_id"`
	DockerTag    string                 `bson:"docker_tag"`
	RecoAlgo     string                 `bson:"reco_algo"`
	EventPayload map[string]interface{} `bson:"event_i3live_json"`
	NSides       map[string]int         `bson:"nsides"`
	IsRealEvent  bool                   `bson:"is_real_event"`
	Clusters     []ClusterRequest       `bson:"clusters"`

	WorkerMemoryBytes       int64   `bson:"worker_memory_bytes"`
	WorkerDiskBytes         int64   `bson:"worker_disk_bytes"`
	ScannerServerMemoryBytes int64  `bson:"scanner_server_memory_bytes"`
	PredictiveScanThreshold float64 `bson:"predictive_scanning_threshold"`
	MaxPixelRecoTime        int     `bson:"max_pixel_reco_time"`
	MaxWorkerRuntime        int     `bson:"max_worker_runtime"`

	Priority     int                    `bson:"priority"`
	Classifiers  map[string]interface{} `bson:"classifiers"`
	DebugMode    []string               `bson:"debug_mode"`

	RescanIDs []string `bson:"rescan_ids"` // ids of scans created as rescans of this one

	Timestamp time.Time `bson:"timestamp"`
}

// ClusterRequest is one (cluster_name, worker_count) entry of a ScanRequest.
type ClusterRequest struct {
	ClusterName string `bson:"cluster_name"`
	NWorkers    int    `bson:"n_workers"`
}

// ProcessingStats is the nested processing-stats record inside Progress.
type ProcessingStats struct {
	StartTime time.Time          `bson:"start_time"`
	Rate      map[string]float64 `bson:"rate"`
	Finished  bool               `bson:"finished"`
	Predictions map[string]interface{} `bson:"predictions,omitempty"`
}

// Progress is the optional progress summary embedded in a Manifest.
type Progress struct {
	Summary         string                 `bson:"summary"`
	Epilogue        string                 `bson:"epilogue,omitempty"`
	Tallies         map[string]int         `bson:"tallies,omitempty"`
	ProcessingStats ProcessingStats        `bson:"processing_stats"`
}

// ClusterStatus is an entry of Manifest.clusters: a back-end actually
// running work for this scan.
type ClusterStatus struct {
	ClusterName string `bson:"cluster_name"`
	NWorkers    int    `bson:"n_workers"`
	StartedAt   time.Time `bson:"started_at"`
}

// Manifest is the mutable projection of a scan's life (spec §3).
type Manifest struct {
	ScanID      string    `bson:"scan_id"`
	Timestamp   time.Time `bson:"timestamp"`
	LastUpdated time.Time `bson:"last_updated"`
	IsDeleted   bool      `bson:"is_deleted"`

	Priority int `bson:"priority"`

	EventI3LiveJSONDictHash string `bson:"event_i3live_json_dict_hash"`

	EWMSWorkflowID string `bson:"ewms_workflow_id"`

	Progress *Progress `bson:"progress,omitempty"`

	EventMetadata map[string]interface{} `bson:"event_metadata,omitempty"`
	ScanMetadata  map[string]interface{} `bson:"scan_metadata,omitempty"`

	Clusters []ClusterStatus `bson:"clusters"`

	Complete bool `bson:"complete"`

	ReplacedByScanID string `bson:"replaced_by_scan_id,omitempty"`

	Classifiers map[string]interface{} `bson:"classifiers,omitempty"`
}

// Result is the scan's output record.
type Result struct {
	ScanID        string                 `bson:"scan_id"`
	SkyscanResult map[string]interface{} `bson:"skyscan_result"`
	IsFinal       bool                   `bson:"is_final"`
	LastUpdated   time.Time              `bson:"last_updated"`
}

// BacklogEntry is a queued-but-not-started scan (spec §3).
type BacklogEntry struct {
	ScanID            string    `bson:"scan_id"`
	Timestamp         time.Time `bson:"timestamp"`
	Priority          int       `bson:"priority"`
	NextAttempt       int       `bson:"next_attempt"`
	PendingTimestamp  time.Time `bson:"pending_timestamp"`
}

// K8sJobDoc is the serialised Kubernetes job manifest persisted for audit
// and for the backlog runner to create against the cluster. StartedAt is
// set only once the Job is actually created in the cluster (by admitDirect
// or the backlog runner), distinct from the scan's admission time — a scan
// can sit in the backlog for a while before its Job actually starts, which
// is exactly why the pod watchdog's recency window (spec §4.3) keys off
// this field rather than the scan id's embedded timestamp.
type K8sJobDoc struct {
	ScanID          string    `bson:"scan_id"`
	JobManifestYAML string    `bson:"job_manifest_yaml"`
	StartedAt       time.Time `bson:"k8s_started_ts"`
}

// I3Event is the best-effort de-duplication index over event payloads;
// never the source of truth (Manifest is), per SPEC_FULL.md's clarification.
type I3Event struct {
	I3EventID string `bson:"i3_event_id"`
	ScanID    string `bson:"scan_id"`
}
