// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package alerting

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/partlinx/truthlayer/internal/validation"
)

// LogChannel writes alert batches to the structured log. Always enabled so a
// misconfigured webhook never silences alerting entirely.
type LogChannel struct{}

// NewLogChannel creates a log channel.
func NewLogChannel() *LogChannel { return &LogChannel{} }

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Send(batch []validation.MismatchAlert) error {
	for _, alert := range batch {
		entry := log.WithFields(log.Fields{
			"endpoint":      alert.Endpoint,
			"domain":        alert.DataType,
			"severity":      alert.Severity,
			"request_id":    alert.RequestID,
			"discrepancies": len(alert.Discrepancies),
			"blocked":       alert.Blocked,
		})
		if alert.Severity == validation.SeverityCritical {
			entry.Error("critical data mismatch detected")
		} else {
			entry.Warn("data mismatch detected")
		}
	}
	return nil
}

// WebhookChannel posts alert batches as JSON to a configured URL, signing
// the body with HMAC-SHA256 when a secret is set.
type WebhookChannel struct {
	url     string
	secret  string
	client  *http.Client
	backoff []time.Duration
}

// NewWebhookChannel creates a webhook channel. The URL must be https or
// localhost http.
func NewWebhookChannel(url, secret string) (*WebhookChannel, error) {
	if url == "" {
		return nil, fmt.Errorf("missing webhook url")
	}
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://localhost") && !strings.HasPrefix(url, "http://127.0.0.1") {
		return nil, fmt.Errorf("insecure webhook url (must be https or localhost): %s", url)
	}
	return &WebhookChannel{
		url:     url,
		secret:  secret,
		client:  &http.Client{Timeout: 5 * time.Second},
		backoff: []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
	}, nil
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(batch []validation.MismatchAlert) error {
	payload := map[string]any{
		"alerts":    batch,
		"count":     len(batch),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= len(c.backoff); attempt++ {
		if attempt > 0 {
			time.Sleep(c.backoff[attempt-1])
		}

		req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "truthlayer-alerts/1.0")
		if c.secret != "" {
			mac := hmac.New(sha256.New, []byte(c.secret))
			mac.Write(body)
			req.Header.Set("X-Alert-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			log.Warnf("alert webhook attempt %d failed: %v", attempt+1, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			log.Warnf("alert webhook attempt %d failed with status %d", attempt+1, resp.StatusCode)
			continue
		}
		return nil
	}
	return fmt.Errorf("webhook failed after retries: %v", lastErr)
}
