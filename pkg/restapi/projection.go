// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package restapi

import "github.com/WIPACrepo/SkyDriver/pkg/docstore"

// manifestView is the wire shape returned for a manifest, optionally merged
// with its result (spec §6: GET /scan/{id} returns manifest+result together;
// GET /scan/{id}/manifest returns the manifest alone).
type manifestView struct {
	ScanID                  string                 `json:"scan_id"`
	Timestamp               string                 `json:"timestamp,omitempty"`
	LastUpdated             string                 `json:"last_updated,omitempty"`
	IsDeleted               bool                   `json:"is_deleted,omitempty"`
	Priority                int                    `json:"priority"`
	EventI3LiveJSONDictHash string                 `json:"event_i3live_json_dict_hash,omitempty"`
	EWMSWorkflowID          string                 `json:"ewms_workflow_id,omitempty"`
	Progress                *docstore.Progress     `json:"progress,omitempty"`
	EventMetadata           map[string]interface{} `json:"event_metadata,omitempty"`
	ScanMetadata            map[string]interface{} `json:"scan_metadata,omitempty"`
	Clusters                []docstore.ClusterStatus `json:"clusters"`
	Complete                bool                   `json:"complete"`
	ReplacedByScanID        string                 `json:"replaced_by_scan_id,omitempty"`
	Classifiers             map[string]interface{} `json:"classifiers,omitempty"`
	Result                  *docstore.Result       `json:"result,omitempty"`
}

// projectManifest renders m (plus optional result) as the wire view,
// restricting to the fields named in keys when non-empty (spec §6's
// manifest_projection query parameter).
func projectManifest(m *docstore.Manifest, result *docstore.Result, keys []string) interface{} {
	view := manifestView{
		ScanID:                  m.ScanID,
		IsDeleted:               m.IsDeleted,
		Priority:                m.Priority,
		EventI3LiveJSONDictHash: m.EventI3LiveJSONDictHash,
		EWMSWorkflowID:          m.EWMSWorkflowID,
		Progress:                m.Progress,
		EventMetadata:           m.EventMetadata,
		ScanMetadata:            m.ScanMetadata,
		Clusters:                m.Clusters,
		Complete:                m.Complete,
		ReplacedByScanID:        m.ReplacedByScanID,
		Classifiers:             m.Classifiers,
		Result:                  result,
	}
	if !m.Timestamp.IsZero() {
		view.Timestamp = m.Timestamp.UTC().Format(timeLayout)
	}
	if !m.LastUpdated.IsZero() {
		view.LastUpdated = m.LastUpdated.UTC().Format(timeLayout)
	}

	if len(keys) == 0 {
		return view
	}
	return projectFields(view, keys)
}

const timeLayout = "2006-01-02T15:04:05.999999Z"

// projectFields reduces view to a map containing only the requested keys,
// always including scan_id so a caller can still identify the document.
func projectFields(view manifestView, keys []string) map[string]interface{} {
	full := map[string]interface{}{
		"scan_id":                     view.ScanID,
		"timestamp":                   view.Timestamp,
		"last_updated":                view.LastUpdated,
		"is_deleted":                  view.IsDeleted,
		"priority":                    view.Priority,
		"event_i3live_json_dict_hash": view.EventI3LiveJSONDictHash,
		"ewms_workflow_id":            view.EWMSWorkflowID,
		"progress":                    view.Progress,
		"event_metadata":              view.EventMetadata,
		"scan_metadata":               view.ScanMetadata,
		"clusters":                    view.Clusters,
		"complete":                    view.Complete,
		"replaced_by_scan_id":         view.ReplacedByScanID,
		"classifiers":                 view.Classifiers,
		"result":                      view.Result,
	}

	out := map[string]interface{}{"scan_id": view.ScanID}
	for _, k := range keys {
		if v, ok := full[k]; ok {
			out[k] = v
		}
	}
	return out
}
