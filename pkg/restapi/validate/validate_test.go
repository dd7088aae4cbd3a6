// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WIPACrepo/SkyDriver/pkg/clusterregistry"
)

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"4G":    4 << 30,
		"512M":  512 << 20,
		"1T":    1 << 40,
		"2048K": 2048 << 10,
	}
	for in, want := range cases {
		got, err := ParseSize(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}

func TestParseSize_Invalid(t *testing.T) {
	_, err := ParseSize("not-a-size")
	assert.Error(t, err)
}

func TestValidateClassifiers_TooMany(t *testing.T) {
	classifiers := map[string]interface{}{}
	for i := 0; i < MaxClassifiers+1; i++ {
		classifiers[string(rune('a'+i))] = "x"
	}
	assert.Error(t, ValidateClassifiers(classifiers))
}

func TestValidateClassifiers_KeyTooLong(t *testing.T) {
	err := ValidateClassifiers(map[string]interface{}{"this_key_is_way_too_long": "x"})
	assert.Error(t, err)
}

func TestValidateClassifiers_BadValueType(t *testing.T) {
	err := ValidateClassifiers(map[string]interface{}{"k": []string{"nope"}})
	assert.Error(t, err)
}

func TestValidateClassifiers_OK(t *testing.T) {
	err := ValidateClassifiers(map[string]interface{}{"k1": "v1", "k2": true, "k3": 3.0})
	assert.NoError(t, err)
}

func TestValidateClusters_UnknownClusterRejected(t *testing.T) {
	reg := clusterregistry.New()
	reg.Seed([]clusterregistry.Cluster{{Name: "known", Orchestrator: clusterregistry.OrchestratorK8s}})

	err := ValidateClusters(reg, map[string]int{"unknown": 5}, nil)
	assert.Error(t, err)
}

func TestValidateClusters_DebugModeCap(t *testing.T) {
	reg := clusterregistry.New()
	reg.Seed([]clusterregistry.Cluster{{Name: "c1", MaxClientsDuringDebugMode: 3}})

	assert.Error(t, ValidateClusters(reg, map[string]int{"c1": 10}, []string{DebugModeClientLogs}))
	assert.NoError(t, ValidateClusters(reg, map[string]int{"c1": 10}, nil))
	assert.NoError(t, ValidateClusters(reg, map[string]int{"c1": 2}, []string{DebugModeClientLogs}))
}

func TestValidatePredictiveScanThreshold(t *testing.T) {
	assert.NoError(t, ValidatePredictiveScanThreshold(1.0))
	assert.NoError(t, ValidatePredictiveScanThreshold(0.5))
	assert.Error(t, ValidatePredictiveScanThreshold(0))
	assert.Error(t, ValidatePredictiveScanThreshold(1.5))
}

func TestValidateRecoAlgo(t *testing.T) {
	assert.NoError(t, ValidateRecoAlgo("millipede"))
	assert.Error(t, ValidateRecoAlgo(""))
	assert.Error(t, ValidateRecoAlgo("milli pede"))
}
