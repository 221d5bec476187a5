// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/partlinx/truthlayer/internal/consensus"
	"github.com/partlinx/truthlayer/internal/validation"
)

// Part is one catalog entry. The demo catalog keeps the primary and the
// reference (secondary) copies side by side so the verification paths have
// something real to disagree about.
type Part struct {
	SKU           string   `json:"sku"`
	OEM           string   `json:"oem"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	Currency      string   `json:"currency"`
	InStock       bool     `json:"inStock"`
	Quantity      int      `json:"quantity"`
	SafetyRelated bool     `json:"safetyRelated"`
	Vehicles      []string `json:"vehicles"`
}

// Catalog is the in-memory demo parts catalog with a separate reference copy
// standing in for the secondary source.
type Catalog struct {
	mu        sync.RWMutex
	primary   map[string]*Part
	reference map[string]*Part
}

// NewCatalog creates a catalog seeded with a handful of demo parts.
func NewCatalog() *Catalog {
	c := &Catalog{
		primary:   make(map[string]*Part),
		reference: make(map[string]*Part),
	}
	for _, p := range demoParts() {
		primary := p
		reference := p
		c.primary[p.SKU] = &primary
		c.reference[p.SKU] = &reference
	}
	return c
}

func demoParts() []Part {
	return []Part{
		{SKU: "BRK-1001", OEM: "5Q0 615 301 F", Name: "Front brake disc", Price: 64.90, Currency: "EUR", InStock: true, Quantity: 12, SafetyRelated: true, Vehicles: []string{"VW-GOLF-7", "AUDI-A3-8V"}},
		{SKU: "FLT-2034", OEM: "03N 115 562", Name: "Oil filter", Price: 11.50, Currency: "EUR", InStock: true, Quantity: 140, Vehicles: []string{"VW-GOLF-7", "VW-PASSAT-B8", "SKODA-OCTAVIA-3"}},
		{SKU: "SPK-3310", OEM: "06K 905 601 B", Name: "Spark plug set", Price: 38.00, Currency: "EUR", InStock: false, Quantity: 0, Vehicles: []string{"AUDI-A3-8V"}},
	}
}

// Primary returns the primary catalog record for a SKU.
func (c *Catalog) Primary(sku string) (*Part, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.primary[sku]
	return p, ok
}

// Reference returns the reference (secondary source) record for a SKU.
func (c *Catalog) Reference(sku string) (*Part, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.reference[sku]
	return p, ok
}

// SetPrimaryPrice mutates a primary price, creating an artificial discrepancy.
// Demo/testing hook.
func (c *Catalog) SetPrimaryPrice(sku string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.primary[sku]; ok {
		p.Price = price
	}
}

func (c *Catalog) priceHandler(ctx *gin.Context) {
	part, ok := c.Primary(ctx.Param("sku"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown sku"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"sku":      part.SKU,
		"price":    part.Price,
		"currency": part.Currency,
	})
}

func (c *Catalog) stockHandler(ctx *gin.Context) {
	part, ok := c.Primary(ctx.Param("sku"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown sku"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"sku":      part.SKU,
		"inStock":  part.InStock,
		"quantity": part.Quantity,
	})
}

func (c *Catalog) compatibilityHandler(ctx *gin.Context) {
	part, ok := c.Primary(ctx.Param("sku"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown sku"})
		return
	}
	vehicleID := ctx.Query("vehicleId")
	compatible := false
	for _, v := range part.Vehicles {
		if v == vehicleID {
			compatible = true
			break
		}
	}
	ctx.JSON(http.StatusOK, gin.H{
		"sku":        part.SKU,
		"vehicleId":  vehicleID,
		"compatible": compatible,
		"method":     "catalog",
		"confidence": 0.95,
	})
}

func (c *Catalog) safetyHandler(ctx *gin.Context) {
	part, ok := c.Primary(ctx.Param("sku"))
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "unknown sku"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"sku":            part.SKU,
		"safetyApproved": true,
		"recallStatus":   "none",
		"hazardClass":    hazardClass(part),
	})
}

func hazardClass(p *Part) string {
	if p.SafetyRelated {
		return "braking"
	}
	return "none"
}

// RegisterLookups binds the catalog's reference copy as the secondary source
// for each verified domain, behind the result cache.
func (c *Catalog) RegisterLookups(deps *Deps) {
	deps.Lookups.Register(validation.DomainPrice, deps.cached(func(_ context.Context, vctx *validation.ValidationContext) (any, error) {
		part, ok := c.Reference(keyString(vctx, "sku"))
		if !ok {
			return nil, nil
		}
		return map[string]any{"sku": part.SKU, "price": part.Price, "currency": part.Currency}, nil
	}))
	deps.Lookups.Register(validation.DomainStock, deps.cached(func(_ context.Context, vctx *validation.ValidationContext) (any, error) {
		part, ok := c.Reference(keyString(vctx, "sku"))
		if !ok {
			return nil, nil
		}
		return map[string]any{"sku": part.SKU, "inStock": part.InStock, "quantity": part.Quantity}, nil
	}))
	deps.Lookups.Register(validation.DomainCompatibility, deps.cached(func(_ context.Context, vctx *validation.ValidationContext) (any, error) {
		part, ok := c.Reference(keyString(vctx, "sku"))
		if !ok {
			return nil, nil
		}
		vehicleID := keyString(vctx, "vehicleId")
		compatible := false
		for _, v := range part.Vehicles {
			if v == vehicleID {
				compatible = true
				break
			}
		}
		return map[string]any{
			"sku":        part.SKU,
			"vehicleId":  vehicleID,
			"compatible": compatible,
			"method":     "catalog",
			"confidence": 0.95,
		}, nil
	}))
	deps.Lookups.Register(validation.DomainSafety, deps.cached(func(_ context.Context, vctx *validation.ValidationContext) (any, error) {
		part, ok := c.Reference(keyString(vctx, "sku"))
		if !ok {
			return nil, nil
		}
		return map[string]any{
			"sku":            part.SKU,
			"safetyApproved": true,
			"recallStatus":   "none",
			"hazardClass":    hazardClass(part),
		}, nil
	}))
}

func keyString(vctx *validation.ValidationContext, key string) string {
	if v, ok := vctx.Keys[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// externalVerifyRequest is the POST body for multi-source external
// verification of a compatibility verdict.
type externalVerifyRequest struct {
	SKU                string                           `json:"sku"`
	VehicleID          string                           `json:"vehicleId"`
	InternalCompatible bool                             `json:"internalCompatible"`
	Sources            []consensus.ExternalVerification `json:"sources"`
}

func externalVerifyHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req externalVerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		vctx := &validation.ValidationContext{
			RequestID: c.GetString("request_id"),
			Endpoint:  c.FullPath(),
			Domain:    validation.DomainCompatibility,
			Mode:      validation.ModeVerification,
			Keys:      map[string]any{"sku": req.SKU, "vehicleId": req.VehicleID},
			StartedAt: time.Now(),
		}
		policy := validation.Policy{
			Mode:              validation.ModeVerification,
			OnMismatch:        validation.MismatchWarn,
			MinConfidence:     0.9,
			Timeout:           3 * time.Second,
			IncludeInResponse: true,
		}

		outcome := deps.Orchestrator.VerifyExternal(req.InternalCompatible, req.Sources, vctx, policy)
		c.JSON(http.StatusOK, outcome)
	}
}

func statusHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := gin.H{
			"circuits": deps.Breaker.Snapshot(),
			"cache":    deps.Cache.GetMetrics(),
			"events": gin.H{
				"dropped": deps.Bus.Dropped(),
			},
			"routes": deps.Table.Endpoints(),
			"modes": gin.H{
				"shadow":       deps.Config.ShadowMode,
				"verification": deps.Config.VerificationMode,
				"enforcement":  deps.Config.EnforcementMode,
			},
		}
		if deps.Alerts != nil {
			status["alerts"] = deps.Alerts.GetStats()
		}
		c.JSON(http.StatusOK, status)
	}
}
