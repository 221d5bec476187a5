// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/partlinx/truthlayer/internal/alerting"
	"github.com/partlinx/truthlayer/internal/breaker"
	"github.com/partlinx/truthlayer/internal/cache"
	"github.com/partlinx/truthlayer/internal/config"
	"github.com/partlinx/truthlayer/internal/events"
	"github.com/partlinx/truthlayer/internal/policy"
	"github.com/partlinx/truthlayer/internal/validation"
)

// Deps bundles the wired verification components the HTTP surface needs.
type Deps struct {
	Config       *config.Config
	Table        *policy.Table
	Orchestrator *validation.Orchestrator
	Shadow       *validation.ShadowValidator
	Breaker      *breaker.Breaker
	Bus          *events.Bus
	Cache        *cache.ResultCache
	Alerts       *alerting.Dispatcher
	Lookups      *LookupRegistry
}

// cached wraps a lookup with the result cache under the official-source TTL.
func (d *Deps) cached(fn validation.LookupFunc) validation.LookupFunc {
	if d.Cache == nil {
		return fn
	}
	return CachedLookup(d.Cache, cache.SourceOfficial, fn)
}

// Server owns the gin engine and its lifecycle.
type Server struct {
	deps   *Deps
	engine *gin.Engine
	http   *http.Server
}

// NewServer builds the engine, registers the demo catalog routes under the
// verification middleware, and wires the secondary lookups.
func NewServer(deps *Deps) *Server {
	if !deps.Config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestID())
	engine.Use(Verification(deps))

	catalog := NewCatalog()
	catalog.RegisterLookups(deps)

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/api/verification/status", statusHandler(deps))

	products := engine.Group("/api/products")
	{
		products.GET("/:sku/price", catalog.priceHandler)
		products.GET("/:sku/stock", catalog.stockHandler)
		products.GET("/:sku/compatibility", catalog.compatibilityHandler)
		products.GET("/:sku/safety", catalog.safetyHandler)
	}
	engine.POST("/api/verify/external", externalVerifyHandler(deps))

	addr := fmt.Sprintf("%s:%d", deps.Config.Host, deps.Config.Port)
	return &Server{
		deps:   deps,
		engine: engine,
		http: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Engine exposes the underlying gin engine for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	log.WithField("addr", s.http.Addr).Info("truth verification layer listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
