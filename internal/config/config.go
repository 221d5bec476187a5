// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the truth verification layer's settings from the
// environment. Invalid values fail fast at startup with a configuration
// error; nothing here is re-read per request.
package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/partlinx/truthlayer/internal/validation"
)

// Config is the process-wide configuration.
type Config struct {
	// Host and Port bind the API server.
	Host string
	Port int

	// ShadowMode enables the fire-and-forget shadow validation path.
	ShadowMode bool

	// VerificationMode enables the synchronous verification path.
	VerificationMode bool

	// EnforcementMode switches verification-mode routes without an explicit
	// mode to enforcement semantics.
	EnforcementMode bool

	// AlertWebhookURL, when set, enables the webhook alert channel.
	AlertWebhookURL string

	// AlertWebhookSecret signs webhook bodies when set.
	AlertWebhookSecret string

	// Circuit breaker thresholds.
	CircuitFailureThreshold int
	CircuitRecoveryTimeout  time.Duration
	CircuitHalfOpenProbes   int

	// RoutePolicyPath points at the YAML route policy table.
	RoutePolicyPath string

	// LoggingToFile switches logs from stdout to rotating files.
	LoggingToFile bool

	// Debug enables debug-level logging.
	Debug bool
}

// Defaults returns the documented default configuration.
func Defaults() Config {
	return Config{
		Host:                    "",
		Port:                    8317,
		ShadowMode:              true,
		VerificationMode:        true,
		EnforcementMode:         false,
		CircuitFailureThreshold: 5,
		CircuitRecoveryTimeout:  60 * time.Second,
		CircuitHalfOpenProbes:   3,
		RoutePolicyPath:         "routes.yaml",
	}
}

// Load reads configuration from the environment on top of the defaults.
func Load() (*Config, error) {
	cfg := Defaults()

	var err error
	if cfg.ShadowMode, err = boolEnv("SHADOW_MODE", cfg.ShadowMode); err != nil {
		return nil, err
	}
	if cfg.VerificationMode, err = boolEnv("VERIFICATION_MODE", cfg.VerificationMode); err != nil {
		return nil, err
	}
	if cfg.EnforcementMode, err = boolEnv("ENFORCEMENT_MODE", cfg.EnforcementMode); err != nil {
		return nil, err
	}
	if cfg.LoggingToFile, err = boolEnv("LOGGING_TO_FILE", cfg.LoggingToFile); err != nil {
		return nil, err
	}
	if cfg.Debug, err = boolEnv("DEBUG", cfg.Debug); err != nil {
		return nil, err
	}

	if cfg.CircuitFailureThreshold, err = intEnv("CIRCUIT_FAILURE_THRESHOLD", cfg.CircuitFailureThreshold); err != nil {
		return nil, err
	}
	recoveryMS, err := intEnv("CIRCUIT_RECOVERY_TIMEOUT_MS", int(cfg.CircuitRecoveryTimeout.Milliseconds()))
	if err != nil {
		return nil, err
	}
	cfg.CircuitRecoveryTimeout = time.Duration(recoveryMS) * time.Millisecond
	if cfg.CircuitHalfOpenProbes, err = intEnv("CIRCUIT_HALF_OPEN_PROBES", cfg.CircuitHalfOpenProbes); err != nil {
		return nil, err
	}
	if cfg.Port, err = intEnv("PORT", cfg.Port); err != nil {
		return nil, err
	}

	if host := os.Getenv("HOST"); host != "" {
		cfg.Host = host
	}
	if path := os.Getenv("ROUTE_POLICY_PATH"); path != "" {
		cfg.RoutePolicyPath = path
	}

	cfg.AlertWebhookURL = os.Getenv("ALERT_WEBHOOK_URL")
	cfg.AlertWebhookSecret = os.Getenv("ALERT_WEBHOOK_SECRET")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges. Called by Load and by tests that build
// configs directly.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return validation.ConfigError("port %d out of range", c.Port)
	}
	if c.CircuitFailureThreshold <= 0 {
		return validation.ConfigError("CIRCUIT_FAILURE_THRESHOLD must be positive")
	}
	if c.CircuitRecoveryTimeout <= 0 {
		return validation.ConfigError("CIRCUIT_RECOVERY_TIMEOUT_MS must be positive")
	}
	if c.CircuitHalfOpenProbes <= 0 {
		return validation.ConfigError("CIRCUIT_HALF_OPEN_PROBES must be positive")
	}
	if c.AlertWebhookURL != "" {
		u, err := url.Parse(c.AlertWebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return validation.ConfigError("ALERT_WEBHOOK_URL is not a valid http(s) URL")
		}
	}
	return nil
}

func boolEnv(name string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, validation.ConfigError("%s: %q is not a boolean", name, raw)
	}
	return value, nil
}

func intEnv(name string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, validation.ConfigError("%s: %q is not an integer", name, raw)
	}
	return value, nil
}
