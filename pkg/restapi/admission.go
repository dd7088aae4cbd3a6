// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package restapi

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	batchv1 "k8s.io/api/batch/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/WIPACrepo/SkyDriver/internal/apierrors"
	"github.com/WIPACrepo/SkyDriver/internal/config"
	"github.com/WIPACrepo/SkyDriver/internal/logger"
	"github.com/WIPACrepo/SkyDriver/pkg/docstore"
	"github.com/WIPACrepo/SkyDriver/pkg/jobspec"
	"github.com/WIPACrepo/SkyDriver/pkg/restapi/metrics"
	"github.com/WIPACrepo/SkyDriver/pkg/restapi/validate"
	"github.com/WIPACrepo/SkyDriver/pkg/scanid"
)

// createScanBody is the POST /scan request payload (spec §4.1).
type createScanBody struct {
	DockerTag                   string                  `json:"docker_tag"`
	RecoAlgo                    string                  `json:"reco_algo"`
	EventI3LiveJSON             json.RawMessage         `json:"event_i3live_json"`
	NSides                      map[string]int          `json:"nsides"`
	RealOrSimulatedEvent        string                  `json:"real_or_simulated_event"`
	Cluster                     json.RawMessage         `json:"cluster"`
	WorkerMemory                string                  `json:"worker_memory"`
	WorkerDisk                  string                  `json:"worker_disk"`
	ScannerServerMemory         string                  `json:"scanner_server_memory"`
	PredictiveScanningThreshold *float64                `json:"predictive_scanning_threshold"`
	MaxPixelRecoTime            int                     `json:"max_pixel_reco_time"`
	MaxWorkerRuntime            int                     `json:"max_worker_runtime"`
	Priority                    int                     `json:"priority"`
	Classifiers                 map[string]interface{} `json:"classifiers"`
	DebugMode                   []string                `json:"debug_mode"`
}

func (s *Server) createScan(c *gin.Context) (interface{}, error) {
	ctx := c.Request.Context()

	var body createScanBody
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, apierrors.NewValidationf("malformed request body: %v", err)
	}

	req, eventHash, err := s.buildScanRequest(ctx, body)
	if err != nil {
		return nil, err
	}

	return s.admit(ctx, req, eventHash)
}

// buildScanRequest validates body against every admission rule named in
// spec §4.1 and assembles the immutable ScanRequest plus the event payload's
// dedup hash.
func (s *Server) buildScanRequest(ctx context.Context, body createScanBody) (*docstore.ScanRequest, string, error) {
	if err := validate.ValidateRecoAlgo(body.RecoAlgo); err != nil {
		return nil, "", err
	}

	resolvedTag, err := s.Registry.ResolveDockerTag(ctx, "skyscan", body.DockerTag)
	if err != nil {
		return nil, "", err
	}

	eventPayload, eventHash, err := parseEventPayload(body.EventI3LiveJSON)
	if err != nil {
		return nil, "", err
	}

	if err := validate.ValidateNSides(body.NSides); err != nil {
		return nil, "", err
	}

	isReal, err := parseRealOrSimulated(body.RealOrSimulatedEvent)
	if err != nil {
		return nil, "", err
	}

	clusters, err := parseClusterField(body.Cluster)
	if err != nil {
		return nil, "", err
	}
	if err := validate.ValidateClusters(s.Clusters, clusters, body.DebugMode); err != nil {
		return nil, "", err
	}

	workerMem, err := validate.ParseSize(body.WorkerMemory)
	if err != nil {
		return nil, "", err
	}
	workerDisk, err := validate.ParseSize(body.WorkerDisk)
	if err != nil {
		return nil, "", err
	}
	scannerMem, err := validate.ParseSize(body.ScannerServerMemory)
	if err != nil {
		return nil, "", err
	}

	threshold := 1.0
	if body.PredictiveScanningThreshold != nil {
		threshold = *body.PredictiveScanningThreshold
	}
	if err := validate.ValidatePredictiveScanThreshold(threshold); err != nil {
		return nil, "", err
	}

	if err := validate.ValidateClassifiers(body.Classifiers); err != nil {
		return nil, "", err
	}

	clusterReqs := make([]docstore.ClusterRequest, 0, len(clusters))
	names := make([]string, 0, len(clusters))
	for name := range clusters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		clusterReqs = append(clusterReqs, docstore.ClusterRequest{ClusterName: name, NWorkers: clusters[name]})
	}

	req := &docstore.ScanRequest{
		ScanID:                   scanid.New(),
		DockerTag:                resolvedTag,
		RecoAlgo:                 body.RecoAlgo,
		EventPayload:             eventPayload,
		NSides:                   body.NSides,
		IsRealEvent:              isReal,
		Clusters:                 clusterReqs,
		WorkerMemoryBytes:        workerMem,
		WorkerDiskBytes:          workerDisk,
		ScannerServerMemoryBytes: scannerMem,
		PredictiveScanThreshold:  threshold,
		MaxPixelRecoTime:         body.MaxPixelRecoTime,
		MaxWorkerRuntime:         body.MaxWorkerRuntime,
		Priority:                 body.Priority,
		Classifiers:              body.Classifiers,
		DebugMode:                body.DebugMode,
	}
	return req, eventHash, nil
}

// admit persists ScanRequest/Manifest/K8sJobDoc and either starts the job
// directly (priority >= HIGH_PRIORITY_THRESHOLD) or enqueues the backlog
// entry, the control flow named in spec §2 and §4.1.
func (s *Server) admit(ctx context.Context, req *docstore.ScanRequest, eventHash string) (interface{}, error) {
	if err := s.Store.CreateScanRequest(ctx, req); err != nil {
		return nil, err
	}

	manifest := &docstore.Manifest{
		ScanID:                  req.ScanID,
		Priority:                req.Priority,
		EventI3LiveJSONDictHash: eventHash,
		Clusters:                []docstore.ClusterStatus{},
		Classifiers:             req.Classifiers,
	}
	if err := s.Store.CreateManifest(ctx, manifest); err != nil {
		return nil, err
	}
	if err := s.Store.RecordI3Event(ctx, eventHash, req.ScanID); err != nil {
		return nil, err
	}

	job := s.buildJob(req)
	jobYAMLBytes, err := yaml.Marshal(job)
	if err != nil {
		return nil, apierrors.NewInternal("marshal job manifest", err)
	}
	if err := s.Store.CreateK8sJobDoc(ctx, &docstore.K8sJobDoc{ScanID: req.ScanID, JobManifestYAML: string(jobYAMLBytes)}); err != nil {
		return nil, err
	}

	if req.Priority >= config.HighPriorityThreshold {
		if err := s.admitDirect(ctx, req, job, string(jobYAMLBytes)); err != nil {
			logger.Warnf("createScan: direct admission failed for %s, falling back to backlog: %v", req.ScanID, err)
			if pushErr := s.Store.PushBacklogEntry(ctx, req.ScanID, req.Priority); pushErr != nil {
				return nil, pushErr
			}
			metrics.ScansAdmitted.WithLabelValues("backlog").Inc()
		} else {
			metrics.ScansAdmitted.WithLabelValues("direct").Inc()
		}
	} else {
		if err := s.Store.PushBacklogEntry(ctx, req.ScanID, req.Priority); err != nil {
			return nil, err
		}
		metrics.ScansAdmitted.WithLabelValues("backlog").Inc()
	}

	return projectManifest(manifest, nil, nil), nil
}

// admitDirect is the high-priority path (spec §4.1): request the EWMS
// workflow and create the Kubernetes job synchronously, inline, instead of
// waiting for the backlog runner's next tick. Mirrors pkg/backlog.Runner's
// own EWMS-then-create sequence, so a high-priority scan and one that fell
// through to the backlog converge on identical end state.
func (s *Server) admitDirect(ctx context.Context, req *docstore.ScanRequest, job *batchv1.Job, jobYAML string) error {
	if err := s.Store.SetEWMSWorkflowID(ctx, req.ScanID, docstore.PendingEWMSWorkflow); err != nil {
		return err
	}
	workflowID, err := s.EWMS.RequestWorkflow(ctx, req.ScanID, map[string]interface{}{"job_manifest_yaml": jobYAML})
	if err != nil {
		return err
	}
	if err := s.Store.SetEWMSWorkflowID(ctx, req.ScanID, workflowID); err != nil {
		return err
	}

	_, err = s.K8s.Clientset.BatchV1().Jobs(s.K8s.Namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil && !k8serrors.IsAlreadyExists(err) {
		return apierrors.New().WithCode(apierrors.CodeK8sOperation).WithMessage("create scanner job").WithError(err)
	}

	// record k8s_started_ts now that the Job actually exists in the
	// cluster (spec §4.3's pod watchdog recency window keys off this, not
	// the scan's admission time).
	if err := s.Store.SetK8sJobStarted(ctx, req.ScanID, time.Now().UTC()); err != nil {
		logger.Warnf("admitDirect: set k8s_started_ts failed for %s: %v", req.ScanID, err)
	}
	return nil
}

// buildJob assembles the Kubernetes Job for req using the process-wide
// config and any configured token minters (spec §4.5).
func (s *Server) buildJob(req *docstore.ScanRequest) *batchv1.Job {
	in := jobspec.BuildInput{
		ScanID:                    req.ScanID,
		Namespace:                 s.Cfg.K8s.Namespace,
		DockerTag:                 req.DockerTag,
		ClientManagerImageWithTag: s.Cfg.Image.ClientManagerImageWithTag,
		ThisImageWithTag:          s.Cfg.Image.ThisImageWithTag,
		RecoAlgo:                  req.RecoAlgo,
		NSides:                    req.NSides,
		IsRealEvent:               req.IsRealEvent,
		PredictiveScanThreshold:   req.PredictiveScanThreshold,
		MaxPixelRecoTimeSeconds:   req.MaxPixelRecoTime,
		MaxWorkerRuntimeSeconds:   req.MaxWorkerRuntime,
		WorkerMemoryBytes:         req.WorkerMemoryBytes,
		WorkerDiskBytes:           req.WorkerDiskBytes,
		ScannerServerMemoryBytes:  req.ScannerServerMemoryBytes,
		DebugMode:                 req.DebugMode,
		ApplicationName:           s.Cfg.K8s.ApplicationName,
		SecretName:                s.Cfg.K8s.SecretName,
		TTLSecondsAfterFinished:   s.Cfg.K8s.TTLSecondsAfterFinished,
		ActiveDeadlineSeconds:     s.Cfg.K8s.ActiveDeadlineSeconds,
		Resources: jobspec.ResourceLimits{
			ScannerCPULimit:    s.Cfg.K8s.ScannerCPULimit,
			ScannerCPURequest:  s.Cfg.K8s.ScannerCPURequest,
			ScannerMemoryLimit: s.Cfg.K8s.ScannerMemoryLimit,
			InitCPULimit:       s.Cfg.K8s.InitCPULimit,
			InitCPURequest:     s.Cfg.K8s.InitCPURequest,
			SidecarCPULimit:    s.Cfg.K8s.SidecarCPULimit,
			SidecarCPURequest:  s.Cfg.K8s.SidecarCPURequest,
		},
		EWMSAddress:   s.Cfg.EWMS.Address,
		S3URL:         s.Cfg.S3.URL,
		S3Bucket:      s.Cfg.S3.Bucket,
		S3AccessKeyID: s.Cfg.S3.AccessKey,
	}
	if req.ScannerServerMemoryBytes > 0 {
		in.Resources.ScannerMemoryLimit = strconv.FormatInt(req.ScannerServerMemoryBytes, 10)
	}

	if s.EWMSMint != nil {
		if tok, err := s.EWMSMint.Mint(context.Background()); err == nil {
			in.Tokens.EWMSToken = tok
		} else {
			logger.Warnf("createScan: mint ewms token failed for %s, job will carry no token: %v", req.ScanID, err)
		}
	}
	if s.S3Mint != nil {
		if tok, err := s.S3Mint.Mint(context.Background()); err == nil {
			in.Tokens.S3Token = tok
		} else {
			logger.Warnf("createScan: mint s3 token failed for %s, job will carry no token: %v", req.ScanID, err)
		}
	}

	for _, cr := range req.Clusters {
		in.Clusters = append(in.Clusters, jobspec.ClusterRequest{ClusterName: cr.ClusterName, NWorkers: cr.NWorkers})
	}

	return jobspec.Build(in)
}

func parseRealOrSimulated(v string) (bool, error) {
	switch v {
	case "real", "REAL", "real_event":
		return true, nil
	case "simulated", "SIMULATED", "simulated_event", "":
		return false, nil
	default:
		return false, apierrors.NewValidationf("real_or_simulated_event %q not recognised", v)
	}
}

// parseEventPayload accepts the payload as either a JSON string (itself
// containing JSON) or a JSON object, canonicalises key order, and returns
// the MD5 hash used for Manifest.event_i3live_json_dict_hash (spec §3).
func parseEventPayload(raw json.RawMessage) (map[string]interface{}, string, error) {
	if len(raw) == 0 {
		return nil, "", apierrors.NewValidation("event_i3live_json is required")
	}

	var m map[string]interface{}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if err := json.Unmarshal([]byte(asString), &m); err != nil {
			return nil, "", apierrors.NewValidationf("event_i3live_json string does not contain valid JSON: %v", err)
		}
	} else if err := json.Unmarshal(raw, &m); err != nil {
		return nil, "", apierrors.NewValidationf("event_i3live_json must be a JSON string or object: %v", err)
	}

	canon, err := canonicalJSON(m)
	if err != nil {
		return nil, "", apierrors.NewInternal("canonicalize event payload", err)
	}
	sum := md5.Sum(canon)
	return m, hex.EncodeToString(sum[:]), nil
}

// canonicalJSON renders m with sorted keys so semantically-identical
// payloads always hash identically (spec §3: the event payload's dedup key
// is an MD5 of its canonicalised, sorted-key form).
func canonicalJSON(m map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]byte, 0, 256)
	ordered = append(ordered, '{')
	for i, k := range keys {
		if i > 0 {
			ordered = append(ordered, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m[k])
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, kb...)
		ordered = append(ordered, ':')
		ordered = append(ordered, vb...)
	}
	ordered = append(ordered, '}')
	return ordered, nil
}

// parseClusterField accepts either {cluster_name: worker_count} or a list
// of [name, count] pairs (the list form allows repeated names, spec §4.1).
func parseClusterField(raw json.RawMessage) (map[string]int, error) {
	if len(raw) == 0 {
		return nil, apierrors.NewValidation("cluster is required")
	}

	var asMap map[string]int
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return asMap, nil
	}

	var asList [][2]interface{}
	if err := json.Unmarshal(raw, &asList); err != nil {
		return nil, apierrors.NewValidationf("cluster must be a mapping or a list of [name, count] pairs: %v", err)
	}
	out := map[string]int{}
	for _, pair := range asList {
		name, ok := pair[0].(string)
		if !ok {
			return nil, apierrors.NewValidation("cluster list entries must be [name, count]")
		}
		count, ok := pair[1].(float64)
		if !ok {
			return nil, apierrors.NewValidation("cluster list entries must be [name, count]")
		}
		out[name] += int(count)
	}
	return out, nil
}
