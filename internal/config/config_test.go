// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"errors"
	"testing"
	"time"

	"github.com/partlinx/truthlayer/internal/validation"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 8317 {
		t.Errorf("default port: got %d, want 8317", cfg.Port)
	}
	if !cfg.ShadowMode {
		t.Error("ShadowMode should default to true")
	}
	if !cfg.VerificationMode {
		t.Error("VerificationMode should default to true")
	}
	if cfg.EnforcementMode {
		t.Error("EnforcementMode should default to false")
	}
	if cfg.CircuitFailureThreshold != 5 {
		t.Errorf("failure threshold: got %d, want 5", cfg.CircuitFailureThreshold)
	}
	if cfg.CircuitRecoveryTimeout != 60*time.Second {
		t.Errorf("recovery timeout: got %v, want 60s", cfg.CircuitRecoveryTimeout)
	}
	if cfg.CircuitHalfOpenProbes != 3 {
		t.Errorf("half-open probes: got %d, want 3", cfg.CircuitHalfOpenProbes)
	}
	if cfg.RoutePolicyPath != "routes.yaml" {
		t.Errorf("route policy path: got %q", cfg.RoutePolicyPath)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SHADOW_MODE", "false")
	t.Setenv("ENFORCEMENT_MODE", "true")
	t.Setenv("CIRCUIT_FAILURE_THRESHOLD", "9")
	t.Setenv("CIRCUIT_RECOVERY_TIMEOUT_MS", "1500")
	t.Setenv("PORT", "9000")
	t.Setenv("ALERT_WEBHOOK_URL", "https://alerts.example.com/hook")
	t.Setenv("ROUTE_POLICY_PATH", "/etc/truthlayer/routes.yaml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ShadowMode {
		t.Error("SHADOW_MODE=false not applied")
	}
	if !cfg.EnforcementMode {
		t.Error("ENFORCEMENT_MODE=true not applied")
	}
	if cfg.CircuitFailureThreshold != 9 {
		t.Errorf("failure threshold: got %d, want 9", cfg.CircuitFailureThreshold)
	}
	if cfg.CircuitRecoveryTimeout != 1500*time.Millisecond {
		t.Errorf("recovery timeout: got %v, want 1.5s", cfg.CircuitRecoveryTimeout)
	}
	if cfg.Port != 9000 {
		t.Errorf("port: got %d, want 9000", cfg.Port)
	}
	if cfg.AlertWebhookURL != "https://alerts.example.com/hook" {
		t.Errorf("webhook url: got %q", cfg.AlertWebhookURL)
	}
	if cfg.RoutePolicyPath != "/etc/truthlayer/routes.yaml" {
		t.Errorf("route policy path: got %q", cfg.RoutePolicyPath)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"bad bool":      {"SHADOW_MODE", "maybe"},
		"bad int":       {"CIRCUIT_FAILURE_THRESHOLD", "many"},
		"zero port":     {"PORT", "0"},
		"huge port":     {"PORT", "70000"},
		"bad threshold": {"CIRCUIT_FAILURE_THRESHOLD", "-1"},
		"bad webhook":   {"ALERT_WEBHOOK_URL", "ftp://example.com"},
	}

	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			if err == nil {
				t.Fatalf("%s=%s should fail validation", kv[0], kv[1])
			}
			if !errors.Is(err, validation.ErrConfiguration) {
				t.Errorf("error should be a configuration error, got %v", err)
			}
		})
	}
}
