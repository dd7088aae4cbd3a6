// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package scanstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerive_FinalResultWins(t *testing.T) {
	m := Manifest{EWMSWorkflowID: "wf-1", Progress: &Progress{Exists: true, ProcessingRate: map[string]float64{"abc": 123}}}
	s := Derive(m, &Result{IsFinal: true}, "ABORTED")
	assert.Equal(t, HasFinalResult, s)
}

func TestDerive_Prestartup(t *testing.T) {
	s := Derive(Manifest{}, nil, "")
	assert.Equal(t, PendingPrestartup, s)
}

func TestDerive_WaitingOnStartup(t *testing.T) {
	m := Manifest{EWMSWorkflowID: "wf-1"}
	s := Derive(m, nil, "")
	assert.Equal(t, PendingWaitingStartup, s)
}

func TestDerive_WaitingOnFirstPixel(t *testing.T) {
	m := Manifest{EWMSWorkflowID: "wf-1", Progress: &Progress{Exists: true}}
	s := Derive(m, nil, "")
	assert.Equal(t, InProgressWaitingFirstPixel, s)
}

func TestDerive_PartialResult(t *testing.T) {
	m := Manifest{EWMSWorkflowID: "wf-1", Progress: &Progress{Exists: true, ProcessingRate: map[string]float64{"abc": 123}}}
	s := Derive(m, nil, "")
	assert.Equal(t, InProgressPartialResult, s)
}

// S4 from spec §8.
func TestDerive_S4Table(t *testing.T) {
	m := Manifest{EWMSWorkflowID: "wf-1", Progress: &Progress{Exists: true, ProcessingRate: map[string]float64{"abc": 123}}}

	aborted := Derive(m, nil, "ABORTED")
	assert.Equal(t, State("ABORTED__PARTIAL_RESULT_GENERATED"), aborted)

	active := Derive(m, nil, "")
	assert.Equal(t, InProgressPartialResult, active)
}

func TestDerive_DeactivationOnPrestartup(t *testing.T) {
	s := Derive(Manifest{}, nil, "FINISHED")
	assert.Equal(t, State("FINISHED__PRESTARTUP"), s)
}
