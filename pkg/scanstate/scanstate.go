// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package scanstate derives the coarse scan-state enum from a manifest, an
// optional result, and EWMS deactivation status, per spec §4.4. The function
// is pure: same inputs always yield the same state, the teachability anchor
// named in spec §8 property 7. Grounded on the teacher's
// scanstate-equivalent pattern in SaFE/apiserver/pkg/handlers (status is
// always recomputed from persisted fields, never itself persisted).
package scanstate

import "strings"

// State is the coarse scan-state enum returned to REST clients.
type State string

const (
	HasFinalResult State = "SCAN_HAS_FINAL_RESULT"

	InProgressPartialResult    State = "IN_PROGRESS__PARTIAL_RESULT_GENERATED"
	InProgressWaitingFirstPixel State = "IN_PROGRESS__WAITING_ON_FIRST_PIXEL_RECO"
	PendingWaitingStartup      State = "PENDING__WAITING_ON_SCANNER_SERVER_STARTUP"
	PendingPrestartup          State = "PENDING__PRESTARTUP"
)

// basePrefix extracts the "IN_PROGRESS"/"PENDING" prefix portion of a base
// state so a deactivation type can replace it.
func basePrefix(s State) (prefix, suffix string) {
	str := string(s)
	idx := strings.Index(str, "__")
	if idx < 0 {
		return str, ""
	}
	return str[:idx], str[idx+2:]
}

// Progress is the subset of Manifest.progress fields the derivation reads.
type Progress struct {
	Exists         bool
	ProcessingRate map[string]float64
}

// Manifest is the subset of manifest fields the derivation reads.
type Manifest struct {
	EWMSWorkflowID string // "" = unset, "PENDING_EWMS_WORKFLOW" = pending
	Progress       *Progress
}

// Result is the subset of result fields the derivation reads.
type Result struct {
	IsFinal bool
}

const pendingWorkflowSentinel = "PENDING_EWMS_WORKFLOW"

// Derive computes the scan state. deactivation is the EWMS deactivation
// type ("ABORTED", "FINISHED", ...) or "" if the workflow is still active.
func Derive(m Manifest, result *Result, deactivation string) State {
	if result != nil && result.IsFinal {
		return HasFinalResult
	}

	base := deriveBase(m)
	if deactivation == "" {
		return base
	}

	_, suffix := basePrefix(base)
	up := strings.ToUpper(deactivation)
	if suffix == "" {
		return State(up)
	}
	return State(up + "__" + suffix)
}

func deriveBase(m Manifest) State {
	if m.EWMSWorkflowID == "" {
		return PendingPrestartup
	}
	if m.Progress == nil || !m.Progress.Exists {
		if m.EWMSWorkflowID == pendingWorkflowSentinel {
			return PendingPrestartup
		}
		return PendingWaitingStartup
	}
	if len(m.Progress.ProcessingRate) > 0 {
		return InProgressPartialResult
	}
	return InProgressWaitingFirstPixel
}
