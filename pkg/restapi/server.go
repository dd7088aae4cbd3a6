// Copyright (C) 2026, WIPAC. All rights reserved.
// See LICENSE for license information.

// Package restapi is the REST admission layer (spec §4.1, §6): request
// validation, scan-id allocation, document creation, enqueue-or-immediate-
// start, and the read endpoints with projection and replacement redirect.
// Routing is built on gin-gonic/gin, grounded on the teacher's router setup
// (router/middleware + handler packages under SaFE/apiserver/pkg/handlers):
// one route group per resource, a shared HandleErrors middleware, and
// handlers that return (interface{}, error) rather than writing the
// response themselves.
package restapi

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/WIPACrepo/SkyDriver/internal/config"
	"github.com/WIPACrepo/SkyDriver/internal/k8sclient"
	"github.com/WIPACrepo/SkyDriver/internal/restutil"
	"github.com/WIPACrepo/SkyDriver/internal/tokenmint"
	"github.com/WIPACrepo/SkyDriver/pkg/clusterregistry"
	"github.com/WIPACrepo/SkyDriver/pkg/docstore"
	"github.com/WIPACrepo/SkyDriver/pkg/ewms"
	"github.com/WIPACrepo/SkyDriver/pkg/restapi/authmw"
	"github.com/WIPACrepo/SkyDriver/pkg/restapi/metrics"
	"github.com/WIPACrepo/SkyDriver/pkg/restapi/validate"
)

// Server holds every collaborator the REST handlers need. Handlers are
// methods on *Server so they share these without a global.
type Server struct {
	Store    *docstore.Store
	EWMS     *ewms.Client
	K8s      *k8sclient.Client
	Clusters *clusterregistry.Registry
	Registry *validate.Registry
	EWMSMint *tokenmint.Minter
	S3Mint   *tokenmint.Minter
	Cfg      *config.Config

	teardown *teardownScheduler
}

// New builds a Server. Call Router to obtain the gin engine.
func New(store *docstore.Store, ewmsClient *ewms.Client, k8s *k8sclient.Client,
	clusters *clusterregistry.Registry, reg *validate.Registry,
	ewmsMint, s3Mint *tokenmint.Minter, cfg *config.Config) *Server {
	s := &Server{
		Store: store, EWMS: ewmsClient, K8s: k8s,
		Clusters: clusters, Registry: reg,
		EWMSMint: ewmsMint, S3Mint: s3Mint, Cfg: cfg,
	}
	wait := cfg.Runner.WaitBeforeTeardown
	if wait <= 0 {
		wait = config.DefaultWaitBeforeTeardown
	}
	s.teardown = newTeardownScheduler(s, wait)
	return s
}

// Router builds the gin engine with every route from spec §6's REST
// surface table registered, protected by authmw per the roles column.
func Router(s *Server, verifier *authmw.Verifier) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.Handle())
	r.Use(restutil.HandleErrors())

	r.GET("/", restutil.Wrap(s.liveness))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	user := verifier.RequireRole(authmw.RoleUser)
	system := verifier.RequireRole(authmw.RoleSystem)
	userOrSystem := verifier.RequireRole(authmw.RoleUser, authmw.RoleSystem)

	r.POST("/scan", user, restutil.Wrap(s.createScan))
	r.GET("/scan/:id", userOrSystem, restutil.Wrap(s.getScan))
	r.DELETE("/scan/:id", user, restutil.Wrap(s.deleteScan))
	r.GET("/scan/:id/manifest", userOrSystem, restutil.Wrap(s.getManifest))
	r.PATCH("/scan/:id/manifest", system, restutil.Wrap(s.patchManifest))
	r.GET("/scan/:id/result", user, restutil.Wrap(s.getResult))
	r.PUT("/scan/:id/result", system, restutil.Wrap(s.putResult))
	r.GET("/scan/:id/status", userOrSystem, restutil.Wrap(s.getStatus))
	r.GET("/scan/:id/logs", user, restutil.Wrap(s.getLogs))
	r.POST("/scan/:id/actions/rescan", user, restutil.Wrap(s.rescan))
	r.POST("/scan/:id/actions/add-workers", user, restutil.Wrap(s.addWorkers))
	r.POST("/scans/find", user, restutil.Wrap(s.findScans))
	r.GET("/scans/backlog", user, restutil.Wrap(s.getBacklog))

	return r
}

func (s *Server) liveness(c *gin.Context) (interface{}, error) {
	return gin.H{"status": "ok"}, nil
}
