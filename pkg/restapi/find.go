// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

package restapi

import (
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/WIPACrepo/SkyDriver/internal/apierrors"
)

type findScansBody struct {
	Filter     bson.M   `json:"filter"`
	Projection []string `json:"manifest_projection"`
}

// findScans runs a caller-supplied Mongo-style filter over manifests (spec
// §6, POST /scans/find), honouring include_deleted and manifest_projection
// the same way the single-scan read endpoints do.
func (s *Server) findScans(c *gin.Context) (interface{}, error) {
	var body findScansBody
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, apierrors.NewValidationf("malformed request body: %v", err)
	}
	if body.Filter == nil {
		body.Filter = bson.M{}
	}

	manifests, err := s.Store.FindManifests(c.Request.Context(), body.Filter, includeDeleted(c))
	if err != nil {
		return nil, err
	}

	out := make([]interface{}, 0, len(manifests))
	for i := range manifests {
		out = append(out, projectManifest(&manifests[i], nil, body.Projection))
	}
	return gin.H{"scans": out}, nil
}

// getBacklog returns the current backlog queue (spec §6, GET /scans/backlog).
func (s *Server) getBacklog(c *gin.Context) (interface{}, error) {
	entries, err := s.Store.ListBacklog(c.Request.Context())
	if err != nil {
		return nil, err
	}
	return gin.H{"backlog": entries}, nil
}
