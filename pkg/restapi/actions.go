// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package restapi

import (
	"context"
	"crypto/md5"
	"encoding/hex"

	"github.com/gin-gonic/gin"

	"github.com/WIPACrepo/SkyDriver/internal/apierrors"
	"github.com/WIPACrepo/SkyDriver/pkg/docstore"
	"github.com/WIPACrepo/SkyDriver/pkg/restapi/validate"
	"github.com/WIPACrepo/SkyDriver/pkg/scanid"
)

// rescanBody carries the overrides a caller may apply on top of the
// original ScanRequest (spec §4.8: "create a new ScanRequest with
// overrides"). Every field is optional; an unset field inherits the
// original scan's value verbatim.
type rescanBody struct {
	DockerTag   *string         `json:"docker_tag"`
	Priority    *int            `json:"priority"`
	Classifiers map[string]interface{} `json:"classifiers"`
	DebugMode   []string        `json:"debug_mode"`
}

// rescan creates a replacement scan from an existing one (spec §4.8): the
// new ScanRequest inherits every field of the old one except the caller's
// overrides, runs through the ordinary admission path, and — depending on
// the abort_first/replace_scan query flags — aborts the old workflow and/or
// marks the old manifest replaced.
func (s *Server) rescan(c *gin.Context) (interface{}, error) {
	oldScanID := c.Param("id")
	ctx := c.Request.Context()

	var body rescanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, apierrors.NewValidationf("malformed request body: %v", err)
	}

	oldReq, err := s.Store.GetScanRequest(ctx, oldScanID)
	if err != nil {
		return nil, err
	}
	oldManifest, err := s.Store.GetManifest(ctx, oldScanID, true)
	if err != nil {
		return nil, err
	}

	newReq, eventHash, err := s.buildRescanRequest(ctx, oldReq, body)
	if err != nil {
		return nil, err
	}

	resultIface, err := s.admit(ctx, newReq, eventHash)
	if err != nil {
		return nil, err
	}

	if err := s.Store.AppendRescanID(ctx, oldScanID, newReq.ScanID); err != nil {
		return nil, err
	}

	if c.Query("abort_first") == "true" {
		// spec.md: "call stop-scanner-instance on the old id and EWMS-abort
		// its workflow" — two actions: tear down the old scan's in-cluster
		// job so it doesn't keep running until its own deadline, and abort
		// its EWMS workflow.
		s.deleteScannerJob(ctx, oldScanID)
		if oldManifest.EWMSWorkflowID != "" {
			s.EWMS.Abort(ctx, oldManifest.EWMSWorkflowID)
		}
	}
	if c.Query("replace_scan") == "true" {
		if err := s.Store.SetReplacedBy(ctx, oldScanID, newReq.ScanID); err != nil {
			return nil, err
		}
	}

	return resultIface, nil
}

func (s *Server) buildRescanRequest(ctx context.Context, old *docstore.ScanRequest, overrides rescanBody) (*docstore.ScanRequest, string, error) {
	dockerTag := old.DockerTag
	if overrides.DockerTag != nil {
		resolved, err := s.Registry.ResolveDockerTag(ctx, "skyscan", *overrides.DockerTag)
		if err != nil {
			return nil, "", err
		}
		dockerTag = resolved
	}

	priority := old.Priority
	if overrides.Priority != nil {
		priority = *overrides.Priority
	}

	classifiers := old.Classifiers
	if overrides.Classifiers != nil {
		if err := validate.ValidateClassifiers(overrides.Classifiers); err != nil {
			return nil, "", err
		}
		classifiers = overrides.Classifiers
	}

	debugMode := old.DebugMode
	if overrides.DebugMode != nil {
		debugMode = overrides.DebugMode
	}

	canon, err := canonicalJSON(old.EventPayload)
	if err != nil {
		return nil, "", apierrors.NewInternal("canonicalize event payload", err)
	}
	sum := md5.Sum(canon)

	newReq := &docstore.ScanRequest{
		ScanID:                   scanid.New(),
		DockerTag:                dockerTag,
		RecoAlgo:                 old.RecoAlgo,
		EventPayload:             old.EventPayload,
		NSides:                   old.NSides,
		IsRealEvent:              old.IsRealEvent,
		Clusters:                 old.Clusters,
		WorkerMemoryBytes:        old.WorkerMemoryBytes,
		WorkerDiskBytes:          old.WorkerDiskBytes,
		ScannerServerMemoryBytes: old.ScannerServerMemoryBytes,
		PredictiveScanThreshold:  old.PredictiveScanThreshold,
		MaxPixelRecoTime:         old.MaxPixelRecoTime,
		MaxWorkerRuntime:         old.MaxWorkerRuntime,
		Priority:                 priority,
		Classifiers:              classifiers,
		DebugMode:                debugMode,
	}
	return newReq, hex.EncodeToString(sum[:]), nil
}

type addWorkersBody struct {
	Cluster  string `json:"cluster"`
	NWorkers int    `json:"n_workers"`
}

// addWorkers scales up an already-running cluster's worker count (spec §4.8
// EXPANDED): the cluster must already be part of the scan, EWMS confirms the
// scale-up synchronously, and only then is Manifest.clusters updated.
func (s *Server) addWorkers(c *gin.Context) (interface{}, error) {
	id := c.Param("id")
	ctx := c.Request.Context()

	var body addWorkersBody
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, apierrors.NewValidationf("malformed request body: %v", err)
	}
	if body.NWorkers <= 0 {
		return nil, apierrors.NewValidation("n_workers must be positive")
	}

	m, err := s.Store.GetManifest(ctx, id, false)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, cl := range m.Clusters {
		if cl.ClusterName == body.Cluster {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, apierrors.NewValidationf("cluster %q is not part of scan %s", body.Cluster, id)
	}

	if err := s.EWMS.ScaleUp(ctx, m.EWMSWorkflowID, body.Cluster, body.NWorkers); err != nil {
		return nil, err
	}

	updated := make([]docstore.ClusterStatus, len(m.Clusters))
	copy(updated, m.Clusters)
	updated[idx].NWorkers += body.NWorkers
	if err := s.Store.UpdateClusters(ctx, id, updated); err != nil {
		return nil, err
	}

	m.Clusters = updated
	return projectManifest(m, nil, nil), nil
}
