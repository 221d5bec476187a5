// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package policy holds the declarative route table that attaches a
// verification policy to each endpoint. Policies are passed explicitly to
// the middleware chain; there is no reflection or metadata lookup at
// request time.
package policy

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"

	"github.com/partlinx/truthlayer/internal/validation"
)

// RouteSpec is one YAML route entry.
type RouteSpec struct {
	Endpoint              string   `yaml:"endpoint"`
	Domain                string   `yaml:"domain"`
	Mode                  string   `yaml:"mode"`
	OnMismatch            string   `yaml:"on_mismatch"`
	MinConfidence         *float64 `yaml:"min_confidence"`
	TimeoutMS             int      `yaml:"timeout_ms"`
	IncludeInResponse     *bool    `yaml:"include_in_response"`
	RedirectOnEnforcement *bool    `yaml:"redirect_on_enforcement"`
	FallbackAllowed       *bool    `yaml:"fallback_allowed"`
	ShadowSampleRate      *float64 `yaml:"shadow_sample_rate"`
	Condition             string   `yaml:"condition"`
	CriticalFields        []string `yaml:"critical_fields"`
	HighFields            []string `yaml:"high_fields"`
}

type routeFile struct {
	Routes []RouteSpec `yaml:"routes"`
}

// Route is a compiled route entry.
type Route struct {
	Endpoint string
	Domain   validation.DataDomain
	Policy   validation.Policy

	// ShadowSampleRate throttles shadow traffic for this route (0..1).
	ShadowSampleRate float64

	condition *vm.Program
}

// Matches evaluates the route's optional condition against request
// attributes. Routes without a condition always match. A condition that
// fails to evaluate matches nothing; verification is then skipped rather
// than misapplied.
func (r *Route) Matches(attrs map[string]any) bool {
	if r.condition == nil {
		return true
	}
	out, err := expr.Run(r.condition, attrs)
	if err != nil {
		return false
	}
	matched, ok := out.(bool)
	return ok && matched
}

// Table is the compiled route table. Safe for concurrent lookup and reload.
type Table struct {
	mu     sync.RWMutex
	routes map[string]*Route
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{routes: make(map[string]*Route)}
}

// Load parses and compiles a YAML route file into the table, replacing its
// previous contents atomically. Any invalid route fails the whole load.
func (t *Table) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("policy: read %s: %w", path, err)
	}
	return t.LoadBytes(data)
}

// LoadBytes parses and compiles YAML route data.
func (t *Table) LoadBytes(data []byte) error {
	var file routeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return validation.ConfigError("route table: %v", err)
	}

	routes := make(map[string]*Route, len(file.Routes))
	for i := range file.Routes {
		route, err := compileRoute(&file.Routes[i])
		if err != nil {
			return err
		}
		if _, dup := routes[route.Endpoint]; dup {
			return validation.ConfigError("route table: duplicate endpoint %q", route.Endpoint)
		}
		routes[route.Endpoint] = route
	}

	t.mu.Lock()
	t.routes = routes
	t.mu.Unlock()
	return nil
}

func compileRoute(spec *RouteSpec) (*Route, error) {
	if spec.Endpoint == "" {
		return nil, validation.ConfigError("route table: route without endpoint")
	}

	domain := validation.DataDomain(spec.Domain)
	if !validation.KnownDomain(domain) {
		return nil, validation.ConfigError("route %s: unknown domain %q", spec.Endpoint, spec.Domain)
	}

	policy := validation.Policy{
		Mode:                  validation.ModeVerification,
		OnMismatch:            validation.MismatchWarn,
		MinConfidence:         0.9,
		Timeout:               3 * time.Second,
		IncludeInResponse:     true,
		RedirectOnEnforcement: true,
		FallbackAllowed:       true,
	}
	if spec.Mode != "" {
		policy.Mode = validation.Mode(spec.Mode)
	}
	if spec.OnMismatch != "" {
		policy.OnMismatch = validation.OnMismatch(spec.OnMismatch)
	}
	if spec.MinConfidence != nil {
		policy.MinConfidence = *spec.MinConfidence
	}
	if spec.TimeoutMS > 0 {
		policy.Timeout = time.Duration(spec.TimeoutMS) * time.Millisecond
	}
	if spec.IncludeInResponse != nil {
		policy.IncludeInResponse = *spec.IncludeInResponse
	}
	if spec.RedirectOnEnforcement != nil {
		policy.RedirectOnEnforcement = *spec.RedirectOnEnforcement
	}
	if spec.FallbackAllowed != nil {
		policy.FallbackAllowed = *spec.FallbackAllowed
	}
	// Safety checks fail closed unless the route says otherwise.
	if domain == validation.DomainSafety && spec.FallbackAllowed == nil {
		policy.FallbackAllowed = false
	}

	if err := validation.ValidatePolicy(policy); err != nil {
		return nil, fmt.Errorf("route %s: %w", spec.Endpoint, err)
	}

	route := &Route{
		Endpoint:         spec.Endpoint,
		Domain:           domain,
		Policy:           policy,
		ShadowSampleRate: 1.0,
	}
	if spec.ShadowSampleRate != nil {
		rate := *spec.ShadowSampleRate
		if rate < 0 || rate > 1 {
			return nil, validation.ConfigError("route %s: shadow_sample_rate %v out of range", spec.Endpoint, rate)
		}
		route.ShadowSampleRate = rate
	}
	if len(spec.CriticalFields) > 0 || len(spec.HighFields) > 0 {
		table := validation.NewSeverityTable(spec.CriticalFields, spec.HighFields)
		route.Policy.SeverityOverride = &table
	}
	if spec.Condition != "" {
		program, err := expr.Compile(spec.Condition, expr.Env(map[string]any{}), expr.AllowUndefinedVariables(), expr.AsBool())
		if err != nil {
			return nil, validation.ConfigError("route %s: bad condition: %v", spec.Endpoint, err)
		}
		route.condition = program
	}

	return route, nil
}

// Lookup returns the route for an endpoint whose condition matches attrs.
func (t *Table) Lookup(endpoint string, attrs map[string]any) (*Route, bool) {
	t.mu.RLock()
	route, ok := t.routes[endpoint]
	t.mu.RUnlock()

	if !ok || !route.Matches(attrs) {
		return nil, false
	}
	return route, true
}

// Endpoints returns every configured endpoint.
func (t *Table) Endpoints() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	endpoints := make([]string, 0, len(t.routes))
	for endpoint := range t.routes {
		endpoints = append(endpoints, endpoint)
	}
	return endpoints
}
