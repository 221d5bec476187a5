// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the HTTP surface of the truth verification layer: a
// gin middleware chain driven by the declarative route table, plus status
// and demo catalog handlers.
package api

import (
	"bytes"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	json "github.com/goccy/go-json"

	"github.com/partlinx/truthlayer/internal/config"
	"github.com/partlinx/truthlayer/internal/validation"
)

// bodyCaptureWriter buffers the handler's response so the verification
// middleware can inspect and rewrite it before anything reaches the wire.
type bodyCaptureWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func newBodyCaptureWriter(w gin.ResponseWriter) *bodyCaptureWriter {
	return &bodyCaptureWriter{ResponseWriter: w, body: &bytes.Buffer{}, status: http.StatusOK}
}

func (w *bodyCaptureWriter) Write(data []byte) (int, error) {
	return w.body.Write(data)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

func (w *bodyCaptureWriter) WriteHeader(code int) {
	w.status = code
}

// flush writes the final status and body through the real writer.
func (w *bodyCaptureWriter) flush(status int, body []byte) {
	w.ResponseWriter.WriteHeader(status)
	_, _ = w.ResponseWriter.Write(body)
}

// RequestID assigns every request a UUID and echoes it back as a header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// Verification is the interceptor attaching the truth verification layer to
// routes named in the policy table. Routes without a policy pass through
// untouched.
func Verification(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		route, ok := deps.Table.Lookup(c.FullPath(), requestAttrs(c))
		if !ok {
			c.Next()
			return
		}

		effective := effectivePolicy(route.Policy, deps.Config)
		if effective == nil {
			c.Next()
			return
		}

		writer := newBodyCaptureWriter(c.Writer)
		c.Writer = writer
		c.Next()
		c.Writer = writer.ResponseWriter

		body := writer.body.Bytes()
		if writer.status < 200 || writer.status >= 300 || !isJSON(c) {
			writer.flush(writer.status, body)
			return
		}

		vctx := &validation.ValidationContext{
			RequestID: c.GetString("request_id"),
			Endpoint:  c.FullPath(),
			Domain:    route.Domain,
			Mode:      effective.Mode,
			Keys:      businessKeys(c),
			StartedAt: time.Now(),
		}

		lookup, ok := deps.Lookups.Get(route.Domain)
		if !ok {
			log.WithField("domain", route.Domain).Warn("no secondary lookup registered, skipping verification")
			writer.flush(writer.status, body)
			return
		}

		var primary any
		if err := json.Unmarshal(body, &primary); err != nil {
			writer.flush(writer.status, body)
			return
		}

		if effective.Mode == validation.ModeShadow {
			writer.flush(writer.status, body)
			if rand.Float64() < route.ShadowSampleRate {
				deps.Shadow.Run(primary, lookup, vctx)
			}
			return
		}

		outcome, err := deps.Orchestrator.Verify(c.Request.Context(), primary, lookup, vctx, *effective)
		if err != nil {
			writer.flush(refusalStatus(err), refusalBody(err, vctx))
			return
		}

		final := finalizeBody(body, outcome, vctx, *effective)
		writer.flush(writer.status, final)
	}
}

// effectivePolicy applies the global mode switches to a route policy.
// Returns nil when verification is disabled for this route entirely.
func effectivePolicy(p validation.Policy, cfg *config.Config) *validation.Policy {
	switch p.Mode {
	case validation.ModeShadow:
		if !cfg.ShadowMode {
			return nil
		}
	case validation.ModeVerification:
		if cfg.EnforcementMode {
			p.Mode = validation.ModeEnforcement
			break
		}
		if !cfg.VerificationMode {
			if !cfg.ShadowMode {
				return nil
			}
			p.Mode = validation.ModeShadow
		}
	case validation.ModeGatekeeper, validation.ModeEnforcement:
		// Mandatory modes are never downgraded by global switches.
	}
	return &p
}

func requestAttrs(c *gin.Context) map[string]any {
	query := make(map[string]any)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}
	return map[string]any{
		"Method": c.Request.Method,
		"Path":   c.FullPath(),
		"Query":  query,
	}
}

// businessKeys collects path and query parameters as the free-form keys of
// the validation context.
func businessKeys(c *gin.Context) map[string]any {
	keys := make(map[string]any)
	for _, param := range c.Params {
		keys[param.Key] = param.Value
	}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			keys[key] = values[0]
		}
	}
	return keys
}

func isJSON(c *gin.Context) bool {
	return strings.Contains(c.Writer.Header().Get("Content-Type"), "application/json")
}

func refusalStatus(err error) int {
	if refusal, ok := err.(*validation.RefusalError); ok && refusal.Code == "VERIFICATION_UNAVAILABLE" {
		return http.StatusServiceUnavailable
	}
	return http.StatusConflict
}

func refusalBody(err error, vctx *validation.ValidationContext) []byte {
	refusal, ok := err.(*validation.RefusalError)
	if !ok {
		refusal = &validation.RefusalError{
			Code:      "VERIFICATION_FAILED",
			Message:   "The request could not be verified.",
			DataType:  vctx.Domain,
			RequestID: vctx.RequestID,
		}
	}
	body, marshalErr := json.Marshal(refusal)
	if marshalErr != nil {
		return []byte(`{"code":"VERIFICATION_FAILED"}`)
	}
	return body
}
