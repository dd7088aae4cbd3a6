// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package restapi

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/WIPACrepo/SkyDriver/internal/apierrors"
	"github.com/WIPACrepo/SkyDriver/pkg/docstore"
	"github.com/WIPACrepo/SkyDriver/pkg/restapi/redirect"
	"github.com/WIPACrepo/SkyDriver/pkg/scanstate"
)

func projectionKeys(c *gin.Context) []string {
	q := c.QueryArray("manifest_projection")
	if len(q) == 1 && strings.Contains(q[0], ",") {
		return strings.Split(q[0], ",")
	}
	return q
}

func includeDeleted(c *gin.Context) bool {
	return c.Query("include_deleted") == "true"
}

// resolveManifest fetches the manifest for id, following the
// replaced-by-scan-id chain once and issuing a redirect (spec §4.8) unless
// the caller's request already targets the replacement or passed
// no_redirect=true. Returns (nil, nil) after issuing a redirect, signalling
// the caller to stop processing without writing any further response.
func (s *Server) resolveManifest(c *gin.Context, id string) (*docstore.Manifest, error) {
	m, err := s.Store.GetManifest(c.Request.Context(), id, includeDeleted(c))
	if err != nil {
		return nil, err
	}
	if m.ReplacedByScanID != "" && redirect.ToReplacement(c, id, m.ReplacedByScanID) {
		return nil, nil
	}
	return m, nil
}

func (s *Server) getScan(c *gin.Context) (interface{}, error) {
	id := c.Param("id")
	m, err := s.resolveManifest(c, id)
	if err != nil || m == nil {
		return nil, err
	}

	result, err := s.Store.GetResult(c.Request.Context(), id)
	if err != nil && !apierrors.IsNotFound(err) {
		return nil, err
	}
	return projectManifest(m, result, projectionKeys(c)), nil
}

func (s *Server) getManifest(c *gin.Context) (interface{}, error) {
	id := c.Param("id")
	m, err := s.resolveManifest(c, id)
	if err != nil || m == nil {
		return nil, err
	}
	return projectManifest(m, nil, projectionKeys(c)), nil
}

type patchManifestBody struct {
	Progress      *docstore.Progress      `json:"progress"`
	EventMetadata map[string]interface{} `json:"event_metadata"`
	ScanMetadata  map[string]interface{} `json:"scan_metadata"`
	Clusters      []docstore.ClusterStatus `json:"clusters"`
}

// patchManifest applies the system role's partial updates (spec §6): progress
// always overwrites, event_metadata/scan_metadata may only be set once
// (docstore enforces this), clusters overwrites the whole slice.
func (s *Server) patchManifest(c *gin.Context) (interface{}, error) {
	id := c.Param("id")
	ctx := c.Request.Context()

	var body patchManifestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, apierrors.NewValidationf("malformed request body: %v", err)
	}

	if body.Progress != nil {
		if err := s.Store.UpdateProgress(ctx, id, body.Progress); err != nil {
			return nil, err
		}
	}
	if body.EventMetadata != nil {
		if err := s.Store.SetOnceEventMetadata(ctx, id, body.EventMetadata); err != nil {
			return nil, err
		}
	}
	if body.ScanMetadata != nil {
		if err := s.Store.SetOnceScanMetadata(ctx, id, body.ScanMetadata); err != nil {
			return nil, err
		}
	}
	if body.Clusters != nil {
		if err := s.Store.UpdateClusters(ctx, id, body.Clusters); err != nil {
			return nil, err
		}
	}

	m, err := s.Store.GetManifest(ctx, id, true)
	if err != nil {
		return nil, err
	}
	return projectManifest(m, nil, nil), nil
}

// deleteScan soft-deletes a manifest (spec §6). An already-complete scan
// requires delete_completed_scan=true, guarding against an accidental delete
// of a scan whose result a caller may still want to read.
func (s *Server) deleteScan(c *gin.Context) (interface{}, error) {
	id := c.Param("id")
	ctx := c.Request.Context()

	m, err := s.Store.GetManifest(ctx, id, false)
	if err != nil {
		return nil, err
	}
	if m.Complete && c.Query("delete_completed_scan") != "true" {
		return nil, apierrors.NewValidation("scan is complete; pass delete_completed_scan=true to delete it anyway")
	}

	if err := s.Store.SoftDelete(ctx, id); err != nil {
		return nil, err
	}
	if err := s.Store.RemoveBacklogEntry(ctx, id); err != nil {
		return nil, err
	}

	m.IsDeleted = true
	return projectManifest(m, nil, nil), nil
}

func (s *Server) getResult(c *gin.Context) (interface{}, error) {
	id := c.Param("id")
	m, err := s.resolveManifest(c, id)
	if err != nil || m == nil {
		return nil, err
	}
	return s.Store.GetResult(c.Request.Context(), id)
}

type putResultBody struct {
	SkyscanResult map[string]interface{} `json:"skyscan_result"`
	IsFinal       bool                   `json:"is_final"`
}

// putResult stores a (possibly partial) result. A final write schedules
// teardown of the scan's cluster resources after WAIT_BEFORE_TEARDOWN (spec
// §4.7) and marks the manifest complete.
func (s *Server) putResult(c *gin.Context) (interface{}, error) {
	id := c.Param("id")
	ctx := c.Request.Context()

	var body putResultBody
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, apierrors.NewValidationf("malformed request body: %v", err)
	}

	r := &docstore.Result{ScanID: id, SkyscanResult: body.SkyscanResult, IsFinal: body.IsFinal}
	if err := s.Store.PutResult(ctx, r); err != nil {
		return nil, err
	}

	if body.IsFinal && len(body.SkyscanResult) > 0 {
		if err := s.Store.SetComplete(ctx, id); err != nil {
			return nil, err
		}
		s.teardown.Schedule(id)
	}

	return s.Store.GetResult(ctx, id)
}

// getStatus derives the coarse scan-state enum (spec §4.4).
func (s *Server) getStatus(c *gin.Context) (interface{}, error) {
	id := c.Param("id")
	ctx := c.Request.Context()

	m, err := s.resolveManifest(c, id)
	if err != nil || m == nil {
		return nil, err
	}

	result, err := s.Store.GetResult(ctx, id)
	if err != nil && !apierrors.IsNotFound(err) {
		return nil, err
	}

	deactivation := ""
	if m.EWMSWorkflowID != "" {
		deactivation, err = s.EWMS.GetDeactivatedType(ctx, m.EWMSWorkflowID)
		if err != nil {
			return nil, err
		}
	}

	sm := scanstate.Manifest{EWMSWorkflowID: m.EWMSWorkflowID}
	if m.Progress != nil {
		sm.Progress = &scanstate.Progress{Exists: true, ProcessingRate: m.Progress.ProcessingStats.Rate}
	}
	var sr *scanstate.Result
	if result != nil {
		sr = &scanstate.Result{IsFinal: result.IsFinal}
	}

	state := scanstate.Derive(sm, sr, deactivation)

	out := gin.H{"scan_id": id, "scan_state": string(state)}
	if c.Query("include_pod_statuses") == "true" {
		pods, err := s.podStatuses(c, id)
		if err != nil {
			return nil, err
		}
		out["pod_statuses"] = pods
	}
	return out, nil
}

func (s *Server) podStatuses(c *gin.Context, scanID string) ([]map[string]interface{}, error) {
	ctx := c.Request.Context()
	pods, err := s.K8s.Clientset.CoreV1().Pods(s.K8s.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("job-name=skyscan-%s", scanID),
	})
	if err != nil {
		return nil, apierrors.New().WithCode(apierrors.CodeK8sOperation).WithMessage("list pods").WithError(err)
	}

	out := make([]map[string]interface{}, 0, len(pods.Items))
	for _, p := range pods.Items {
		out = append(out, map[string]interface{}{
			"name":  p.Name,
			"phase": string(p.Status.Phase),
		})
	}
	return out, nil
}

// getLogs streams the scanner-server container's log tail for a scan (spec
// §6). Restricted to the user role since logs may contain event details.
func (s *Server) getLogs(c *gin.Context) (interface{}, error) {
	id := c.Param("id")
	ctx := c.Request.Context()

	pods, err := s.K8s.Clientset.CoreV1().Pods(s.K8s.Namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("job-name=skyscan-%s", id),
	})
	if err != nil {
		return nil, apierrors.New().WithCode(apierrors.CodeK8sOperation).WithMessage("list pods").WithError(err)
	}
	if len(pods.Items) == 0 {
		return nil, apierrors.NewNotFound(fmt.Sprintf("no pod found for scan %s", id))
	}

	container := c.DefaultQuery("container", "scanner-server")
	req := s.K8s.Clientset.CoreV1().Pods(s.K8s.Namespace).GetLogs(pods.Items[0].Name, &corev1.PodLogOptions{Container: container})
	stream, err := req.Stream(ctx)
	if err != nil {
		return nil, apierrors.New().WithCode(apierrors.CodeK8sOperation).WithMessage("stream pod logs").WithError(err)
	}
	defer stream.Close()

	var lines []string
	scanner := bufio.NewScanner(stream)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return gin.H{"scan_id": id, "pod": pods.Items[0].Name, "lines": lines}, nil
}
