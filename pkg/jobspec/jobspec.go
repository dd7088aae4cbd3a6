// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package jobspec builds the declarative Kubernetes Job manifest for a scan
// (spec §4.5). Build is a pure function: the same BuildInput always yields a
// byte-identical Job, modulo the token fields the caller supplies (spec §8
// property 8, the "deterministic modulo token contents" anchor) — token
// minting itself lives outside this package so Build stays pure.
//
// Grounded on the teacher's DataplaneInstallerJob.createInstallerJob
// (Lens/modules/jobs/pkg/jobs/dataplane_installer/job.go): same three-part
// shape (labels, resource-bounded container(s), backoffLimit 0 plus
// activeDeadlineSeconds plus ttlSecondsAfterFinished), generalized here to a
// three-container pod (init / scanner server / S3 sidecar) instead of one.
package jobspec

import (
	"fmt"
	"sort"
	"strings"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	LabelApp          = "app"
	LabelAppValue     = "scanner-instance"
	LabelAppInstance  = "app.kubernetes.io/instance"
	AnnotationArgoCDSyncOptions = "argocd.argoproj.io/sync-options"

	ContainerInit    = "ewms-init"
	ContainerScanner = "scanner-server"
	ContainerSidecar = "s3-sidecar"

	StartupJSONVolumeName = "startup-json"
	StartupJSONPath       = "/shared/startup.json"
)

// ClusterRequest is one back-end target of the scan's worker fleet.
type ClusterRequest struct {
	ClusterName string
	NWorkers    int
}

// ResourceLimits carries the per-container CPU/memory bounds resolved from
// config (internal/config.K8s), with the scanner container's memory limit
// taken from the ScanRequest's scanner_server_memory when it is set.
type ResourceLimits struct {
	ScannerCPULimit    string
	ScannerCPURequest  string
	ScannerMemoryLimit string // from request's scanner_server_memory, human size already resolved to a Kubernetes quantity string
	InitCPULimit       string
	InitCPURequest     string
	SidecarCPULimit    string
	SidecarCPURequest  string
}

// Tokens carries the pre-minted outbound-call credentials. Kept out of the
// deterministic core of BuildInput's equality story by convention: tests
// compare two Jobs built with identical Tokens and assert equality, or
// build with differing Tokens and assert the only diff is in these fields.
type Tokens struct {
	EWMSToken string
	S3Token   string
}

// BuildInput is everything the factory needs to assemble a Job.
type BuildInput struct {
	ScanID    string
	Namespace string

	DockerTag               string // scanner-server image tag, already resolved (spec §4.1)
	ClientManagerImageWithTag string
	ThisImageWithTag        string

	RecoAlgo                string
	NSides                  map[string]int
	IsRealEvent             bool
	PredictiveScanThreshold float64
	MaxPixelRecoTimeSeconds int
	MaxWorkerRuntimeSeconds int

	WorkerMemoryBytes        int64
	WorkerDiskBytes          int64
	ScannerServerMemoryBytes int64

	Clusters  []ClusterRequest
	DebugMode []string

	ApplicationName         string
	SecretName              string
	TTLSecondsAfterFinished int32
	ActiveDeadlineSeconds   int64

	Resources ResourceLimits
	Tokens    Tokens

	EWMSAddress   string
	S3URL         string
	S3Bucket      string
	S3AccessKeyID string
}

// Build assembles the Job. Deterministic given identical input (including
// Tokens) — callers that need to compare across different token mintings
// should zero out Tokens before comparing.
func Build(in BuildInput) *batchv1.Job {
	backoffLimit := int32(0)
	ttl := in.TTLSecondsAfterFinished
	deadline := in.ActiveDeadlineSeconds

	labels := map[string]string{
		LabelApp:         LabelAppValue,
		LabelAppInstance: in.ApplicationName,
		"skydriver/scan-id": in.ScanID,
	}

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName(in.ScanID),
			Namespace: in.Namespace,
			Labels:    labels,
			Annotations: map[string]string{
				AnnotationArgoCDSyncOptions: "Prune=false",
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			ActiveDeadlineSeconds:   &deadline,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					RestartPolicy:  corev1.RestartPolicyNever,
					InitContainers: []corev1.Container{initContainer(in)},
					Containers: []corev1.Container{
						scannerContainer(in),
						sidecarContainer(in),
					},
					Volumes: []corev1.Volume{
						{Name: StartupJSONVolumeName, VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}}},
					},
				},
			},
		},
	}
	return job
}

func jobName(scanID string) string {
	n := strings.ToLower(scanID)
	if len(n) > 50 {
		n = n[:50]
	}
	return fmt.Sprintf("skyscan-%s", n)
}

func mountStartupVolume() corev1.VolumeMount {
	return corev1.VolumeMount{Name: StartupJSONVolumeName, MountPath: "/shared"}
}

func initContainer(in BuildInput) corev1.Container {
	return corev1.Container{
		Name:  ContainerInit,
		Image: in.ClientManagerImageWithTag,
		Env:   ewmsEnv(in),
		Resources: resourceRequirements(in.Resources.InitCPULimit, in.Resources.InitCPURequest, ""),
		VolumeMounts: []corev1.VolumeMount{mountStartupVolume()},
	}
}

func scannerContainer(in BuildInput) corev1.Container {
	args := []string{
		"--reco-algo", in.RecoAlgo,
		"--cache-dir", "/cache",
		"--client-startup-json", StartupJSONPath,
		"--nsides", formatNSides(in.NSides),
	}
	if in.IsRealEvent {
		args = append(args, "--real-event")
	} else {
		args = append(args, "--simulated-event")
	}
	args = append(args, "--predictive-scanning-threshold", fmt.Sprintf("%g", in.PredictiveScanThreshold))

	env := append(scannerEnv(in), ewmsEnv(in)...)

	return corev1.Container{
		Name:         ContainerScanner,
		Image:        in.DockerTag,
		Args:         args,
		Env:          env,
		Resources:    resourceRequirements(in.Resources.ScannerCPULimit, in.Resources.ScannerCPURequest, in.Resources.ScannerMemoryLimit),
		VolumeMounts: []corev1.VolumeMount{mountStartupVolume()},
	}
}

func sidecarContainer(in BuildInput) corev1.Container {
	return corev1.Container{
		Name:         ContainerSidecar,
		Image:        in.ThisImageWithTag,
		Args:         []string{"s3-sidecar", "--watch", StartupJSONPath, "--timeout", fmt.Sprintf("%ds", in.MaxPixelRecoTimeSeconds)},
		Env:          s3Env(in),
		Resources:    resourceRequirements(in.Resources.SidecarCPULimit, in.Resources.SidecarCPURequest, ""),
		VolumeMounts: []corev1.VolumeMount{mountStartupVolume()},
	}
}

func resourceRequirements(cpuLimit, cpuRequest, memLimit string) corev1.ResourceRequirements {
	req := corev1.ResourceList{}
	lim := corev1.ResourceList{}
	if cpuRequest != "" {
		req[corev1.ResourceCPU] = resource.MustParse(cpuRequest)
	}
	if cpuLimit != "" {
		lim[corev1.ResourceCPU] = resource.MustParse(cpuLimit)
	}
	if memLimit != "" {
		lim[corev1.ResourceMemory] = resource.MustParse(memLimit)
	}
	return corev1.ResourceRequirements{Requests: req, Limits: lim}
}

func formatNSides(nsides map[string]int) string {
	keys := make([]string, 0, len(nsides))
	for k := range nsides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%d", k, nsides[k]))
	}
	return strings.Join(parts, " ")
}

func scannerEnv(in BuildInput) []corev1.EnvVar {
	return []corev1.EnvVar{
		{Name: "SKYSCAN_SCAN_ID", Value: in.ScanID},
		{Name: "SKYSCAN_MAX_WORKER_RUNTIME", Value: fmt.Sprintf("%d", in.MaxWorkerRuntimeSeconds)},
	}
}

func ewmsEnv(in BuildInput) []corev1.EnvVar {
	env := []corev1.EnvVar{
		{Name: "EWMS_ADDRESS", Value: in.EWMSAddress},
		{Name: "EWMS_TOKEN", Value: in.Tokens.EWMSToken},
	}
	if in.SecretName != "" {
		env = append(env, corev1.EnvVar{
			Name: "EWMS_CLIENT_SECRET",
			ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: in.SecretName},
					Key:                  "ewms-client-secret",
				},
			},
		})
	}
	return env
}

func s3Env(in BuildInput) []corev1.EnvVar {
	env := []corev1.EnvVar{
		{Name: "S3_URL", Value: in.S3URL},
		{Name: "S3_BUCKET", Value: in.S3Bucket},
		{Name: "S3_OBJECT_KEY", Value: fmt.Sprintf("%s/startup.json", in.ScanID)},
		{Name: "S3_ACCESS_KEY_ID", Value: in.S3AccessKeyID},
		{Name: "S3_TOKEN", Value: in.Tokens.S3Token},
	}
	if in.SecretName != "" {
		env = append(env, corev1.EnvVar{
			Name: "S3_SECRET_KEY",
			ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: in.SecretName},
					Key:                  "s3-secret-key",
				},
			},
		})
	}
	return env
}
