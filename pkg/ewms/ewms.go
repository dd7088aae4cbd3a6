// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package ewms is the adapter to the external EWMS workflow service (spec
// §4.6). Reads are cached with a short TTL per workflow id and protected by
// a circuit breaker; writes are fire-and-forget. Grounded on the teacher's
// aiclient.Client (Lens/modules/core/pkg/aiclient/client.go) for the overall
// client shape (config struct with timeout/retry/circuit-breaker toggles,
// resty-backed HTTP calls) and aiclient.CircuitBreaker
// (circuit_breaker.go) for the breaker itself, adapted here to one topic per
// call kind ("reads", "request-workflow", "scale-up") instead of
// per-AI-agent-topic.
package ewms

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"

	"github.com/WIPACrepo/SkyDriver/internal/apierrors"
	"github.com/WIPACrepo/SkyDriver/internal/logger"
)

const pendingEWMSWorkflowSentinel = "PENDING_EWMS_WORKFLOW"

// TaskforceInfo is one EWMS taskforce's summary within a workflow.
type TaskforceInfo struct {
	ClusterName string
	NWorkers    int
	Phase       string
}

// WorkforceStatus is the merged `{job_status: {pilot_status: count}}` map
// across all taskforces of a workflow, per spec §4.6.
type WorkforceStatus struct {
	// Counts[jobStatus][pilotStatus] = count, summed across taskforces.
	Counts   map[string]map[string]int
	NRunning int // sum of RUNNING across taskforces; see doc comment below.
}

// Client is SkyDriver's EWMS adapter.
type Client struct {
	http    *resty.Client
	cb      *CircuitBreaker
	reads   *cache.Cache
	address string
}

// Config configures the adapter.
type Config struct {
	Address            string
	ReadCacheTTL       time.Duration // default 60s per spec §4.6
	CircuitThreshold   int
	CircuitResetTimeout time.Duration
	RequestTimeout     time.Duration
}

// DefaultConfig returns spec §4.6's defaults: 60s read cache TTL.
func DefaultConfig(address string) Config {
	return Config{
		Address:            address,
		ReadCacheTTL:       60 * time.Second,
		CircuitThreshold:   5,
		CircuitResetTimeout: 30 * time.Second,
		RequestTimeout:     15 * time.Second,
	}
}

// New builds a Client. bearerToken is injected as an Authorization header on
// every request; token minting (client-credentials grant) happens upstream.
func New(cfg Config, bearerToken string) *Client {
	h := resty.New().
		SetBaseURL(cfg.Address).
		SetTimeout(cfg.RequestTimeout).
		SetAuthToken(bearerToken).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &Client{
		http:    h,
		cb:      NewCircuitBreaker(cfg.CircuitThreshold, cfg.CircuitResetTimeout),
		reads:   cache.New(cfg.ReadCacheTTL, 2*cfg.ReadCacheTTL),
		address: cfg.Address,
	}
}

// RequestWorkflow posts one HTTP request to start a workflow for a scan
// (spec §4.2 step 6). This is the single synchronous write the backlog
// runner depends on, so unlike Abort/Finished it returns its error.
func (c *Client) RequestWorkflow(ctx context.Context, scanID string, jobSpec map[string]interface{}) (workflowID string, err error) {
	topic := "request-workflow"
	if c.cb.IsOpen(topic) {
		return "", apierrors.New().WithCode(apierrors.CodeServiceUnavail).WithMessage("ewms circuit open")
	}

	var out struct {
		WorkflowID string `json:"workflow_id"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"scan_id": scanID, "job_spec": jobSpec}).
		SetResult(&out).
		Post("/v0/workflows")
	if err != nil || resp.IsError() {
		c.cb.RecordFailure(topic)
		return "", apierrors.New().WithCode(apierrors.CodeDependency).
			WithMessagef("ewms request-workflow failed for scan %s", scanID).WithError(err)
	}
	c.cb.RecordSuccess(topic)
	return out.WorkflowID, nil
}

// GetDeactivatedType returns EWMS's terminal label for the workflow
// ("ABORTED", "FINISHED", ...) or "" if the workflow is still active.
// PENDING_EWMS_WORKFLOW short-circuits without a network call (spec §4.6).
func (c *Client) GetDeactivatedType(ctx context.Context, workflowID string) (string, error) {
	if workflowID == "" || workflowID == pendingEWMSWorkflowSentinel {
		return "", nil
	}

	key := "deactivated:" + workflowID
	if v, ok := c.reads.Get(key); ok {
		return v.(string), nil
	}

	topic := "reads"
	if c.cb.IsOpen(topic) {
		logger.Warnf("ewms: circuit open, returning unknown deactivation for workflow %s", workflowID)
		return "", nil
	}

	var out struct {
		DeactivatedType string `json:"deactivated_type"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).
		Get(fmt.Sprintf("/v0/workflows/%s/deactivated", workflowID))
	if err != nil || resp.IsError() {
		c.cb.RecordFailure(topic)
		return "", apierrors.New().WithCode(apierrors.CodeDependency).
			WithMessagef("ewms get-deactivated-type failed for workflow %s", workflowID).WithError(err)
	}
	c.cb.RecordSuccess(topic)
	c.reads.SetDefault(key, out.DeactivatedType)
	return out.DeactivatedType, nil
}

// GetTaskforceInfos returns the per-taskforce summary for a workflow.
func (c *Client) GetTaskforceInfos(ctx context.Context, workflowID string) ([]TaskforceInfo, error) {
	if workflowID == "" || workflowID == pendingEWMSWorkflowSentinel {
		return nil, nil
	}

	key := "taskforces:" + workflowID
	if v, ok := c.reads.Get(key); ok {
		return v.([]TaskforceInfo), nil
	}

	topic := "reads"
	if c.cb.IsOpen(topic) {
		return nil, nil
	}

	var out []TaskforceInfo
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).
		Get(fmt.Sprintf("/v0/workflows/%s/taskforces", workflowID))
	if err != nil || resp.IsError() {
		c.cb.RecordFailure(topic)
		return nil, apierrors.New().WithCode(apierrors.CodeDependency).
			WithMessagef("ewms get-taskforce-infos failed for workflow %s", workflowID).WithError(err)
	}
	c.cb.RecordSuccess(topic)
	c.reads.SetDefault(key, out)
	return out, nil
}

// GetWorkforceStatuses merges each taskforce's `{job_status: {pilot_status:
// count}}` map by summation and computes n_running as the sum of RUNNING
// values. Only RUNNING is safe to sum across taskforces this way — other
// pilot statuses (e.g. DONE) may double-count pilots that moved through
// multiple taskforces over the scan's life, per spec §4.6.
func (c *Client) GetWorkforceStatuses(ctx context.Context, workflowID string) (*WorkforceStatus, error) {
	if workflowID == "" || workflowID == pendingEWMSWorkflowSentinel {
		return &WorkforceStatus{Counts: map[string]map[string]int{}}, nil
	}

	key := "workforce:" + workflowID
	if v, ok := c.reads.Get(key); ok {
		return v.(*WorkforceStatus), nil
	}

	topic := "reads"
	if c.cb.IsOpen(topic) {
		return &WorkforceStatus{Counts: map[string]map[string]int{}}, nil
	}

	var perTaskforce []map[string]map[string]int
	resp, err := c.http.R().SetContext(ctx).SetResult(&perTaskforce).
		Get(fmt.Sprintf("/v0/workflows/%s/workforce-statuses", workflowID))
	if err != nil || resp.IsError() {
		c.cb.RecordFailure(topic)
		return nil, apierrors.New().WithCode(apierrors.CodeDependency).
			WithMessagef("ewms get-workforce-statuses failed for workflow %s", workflowID).WithError(err)
	}
	c.cb.RecordSuccess(topic)

	out := mergeWorkforceStatuses(perTaskforce)
	c.reads.SetDefault(key, out)
	return out, nil
}

func mergeWorkforceStatuses(perTaskforce []map[string]map[string]int) *WorkforceStatus {
	merged := map[string]map[string]int{}
	nRunning := 0
	for _, tf := range perTaskforce {
		for jobStatus, pilotCounts := range tf {
			if merged[jobStatus] == nil {
				merged[jobStatus] = map[string]int{}
			}
			for pilotStatus, n := range pilotCounts {
				merged[jobStatus][pilotStatus] += n
				if pilotStatus == "RUNNING" {
					nRunning += n
				}
			}
		}
	}
	return &WorkforceStatus{Counts: merged, NRunning: nRunning}
}

// Abort signals EWMS to abort a workflow. Fire-and-forget: the scan's
// observable state has already changed locally, so a missed signal is
// eventually consistent via EWMS's own reconciliation (spec §4.6).
func (c *Client) Abort(ctx context.Context, workflowID string) {
	c.fireAndForget(ctx, fmt.Sprintf("/v0/workflows/%s/actions/abort", workflowID))
}

// Finished signals EWMS that a workflow's scan is done.
func (c *Client) Finished(ctx context.Context, workflowID string) {
	c.fireAndForget(ctx, fmt.Sprintf("/v0/workflows/%s/actions/finished", workflowID))
}

// ScaleUp requests EWMS add nWorkers more workers at cluster for workflowID
// (spec §4.8 EXPANDED, POST /scan/{id}/actions/add-workers). Synchronous,
// like RequestWorkflow, since the caller needs to know whether the scale-up
// was accepted before updating Manifest.clusters.
func (c *Client) ScaleUp(ctx context.Context, workflowID, cluster string, nWorkers int) error {
	topic := "scale-up"
	if c.cb.IsOpen(topic) {
		return apierrors.New().WithCode(apierrors.CodeServiceUnavail).WithMessage("ewms circuit open")
	}

	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]interface{}{"cluster": cluster, "n_workers": nWorkers}).
		Post(fmt.Sprintf("/v0/workflows/%s/actions/scale-up", workflowID))
	if err != nil || resp.IsError() {
		c.cb.RecordFailure(topic)
		return apierrors.New().WithCode(apierrors.CodeDependency).
			WithMessagef("ewms scale-up failed for workflow %s", workflowID).WithError(err)
	}
	c.cb.RecordSuccess(topic)
	return nil
}

func (c *Client) fireAndForget(ctx context.Context, path string) {
	resp, err := c.http.R().SetContext(ctx).Post(path)
	if err != nil || resp.IsError() {
		logger.Warnf("ewms: fire-and-forget call to %s failed (logged, not raised): %v", path, err)
	}
}
