// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package jobspec

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleInput() BuildInput {
	return BuildInput{
		ScanID:                   "00000000deadbeef0001cafebabe",
		Namespace:                "skydriver",
		DockerTag:                "icecube/skymap_scanner:3.2.1",
		ClientManagerImageWithTag: "icecube/skydriver-ewms-init:latest",
		ThisImageWithTag:         "icecube/skydriver:latest",
		RecoAlgo:                 "millipede_wilks",
		NSides:                   map[string]int{"8": 12, "64": 24},
		IsRealEvent:              true,
		PredictiveScanThreshold:  0.9,
		MaxPixelRecoTimeSeconds:  1800,
		MaxWorkerRuntimeSeconds:  3600,
		ApplicationName:          "skydriver",
		SecretName:               "skydriver-secrets",
		TTLSecondsAfterFinished:  3600,
		ActiveDeadlineSeconds:    7200,
		Resources: ResourceLimits{
			ScannerCPULimit: "2", ScannerCPURequest: "1", ScannerMemoryLimit: "4Gi",
			InitCPULimit: "250m", InitCPURequest: "100m",
			SidecarCPULimit: "250m", SidecarCPURequest: "100m",
		},
		Tokens:      Tokens{EWMSToken: "tok-ewms-1", S3Token: "tok-s3-1"},
		EWMSAddress: "https://ewms.icecube.wisc.edu",
		S3URL:       "https://s3.icecube.wisc.edu",
		S3Bucket:    "skydriver",
	}
}

func TestBuild_DeterministicForIdenticalInput(t *testing.T) {
	a := Build(sampleInput())
	b := Build(sampleInput())
	assert.True(t, reflect.DeepEqual(a, b), "Build must be deterministic for identical input")
}

func TestBuild_DiffersOnlyInTokenFields(t *testing.T) {
	in1 := sampleInput()
	in2 := sampleInput()
	in2.Tokens = Tokens{EWMSToken: "tok-ewms-2", S3Token: "tok-s3-2"}

	job1 := Build(in1)
	job2 := Build(in2)

	job1.Spec.Template.Spec.InitContainers[0].Env = nil
	job2.Spec.Template.Spec.InitContainers[0].Env = nil
	for i := range job1.Spec.Template.Spec.Containers {
		job1.Spec.Template.Spec.Containers[i].Env = nil
		job2.Spec.Template.Spec.Containers[i].Env = nil
	}
	assert.True(t, reflect.DeepEqual(job1, job2), "Build must be identical modulo token-bearing env vars")
}

func TestBuild_NSidesFormattingIsSorted(t *testing.T) {
	job := Build(sampleInput())
	var scanner *string
	for _, c := range job.Spec.Template.Spec.Containers {
		if c.Name == ContainerScanner {
			for i, a := range c.Args {
				if a == "--nsides" {
					scanner = &c.Args[i+1]
				}
			}
		}
	}
	if assert.NotNil(t, scanner) {
		assert.Equal(t, "64:24 8:12", *scanner)
	}
}

func TestBuild_JobNameIsDeterministicAndNamespaced(t *testing.T) {
	job := Build(sampleInput())
	assert.Equal(t, "skydriver", job.Namespace)
	assert.Contains(t, job.Name, "skyscan-")
	assert.Equal(t, int32(0), *job.Spec.BackoffLimit)
}
