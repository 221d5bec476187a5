// Copyright 2026 The partlinx Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package alerting

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/partlinx/truthlayer/internal/validation"
)

func TestNewWebhookChannel_RejectsInsecureURLs(t *testing.T) {
	_, err := NewWebhookChannel("", "")
	assert.Error(t, err)

	_, err = NewWebhookChannel("http://alerts.example.com/hook", "")
	assert.Error(t, err, "plain http to a remote host is rejected")

	_, err = NewWebhookChannel("https://alerts.example.com/hook", "")
	assert.NoError(t, err)

	_, err = NewWebhookChannel("http://localhost:9999/hook", "")
	assert.NoError(t, err)

	_, err = NewWebhookChannel("http://127.0.0.1:9999/hook", "")
	assert.NoError(t, err)
}

func TestWebhookChannel_PostsSignedBatch(t *testing.T) {
	const secret = "hook-secret"

	var gotBody []byte
	var gotSignature, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get("X-Alert-Signature")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	// httptest binds to 127.0.0.1, which passes the localhost check.
	ch, err := NewWebhookChannel(server.URL, secret)
	require.NoError(t, err)

	batch := []validation.MismatchAlert{
		{Severity: validation.SeverityCritical, DataType: validation.DomainPrice, Endpoint: "/api/products/:sku/price", RequestID: "req-1"},
	}
	require.NoError(t, ch.Send(batch))

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, int64(1), gjson.GetBytes(gotBody, "count").Int())
	assert.Equal(t, "critical", gjson.GetBytes(gotBody, "alerts.0.severity").String())

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSignature)
}

func TestWebhookChannel_NoSignatureWithoutSecret(t *testing.T) {
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Alert-Signature")
	}))
	defer server.Close()

	ch, err := NewWebhookChannel(server.URL, "")
	require.NoError(t, err)

	require.NoError(t, ch.Send([]validation.MismatchAlert{{Severity: validation.SeverityHigh}}))
	assert.Empty(t, gotSignature)
}

func TestLogChannel_NeverFails(t *testing.T) {
	ch := NewLogChannel()
	assert.Equal(t, "log", ch.Name())
	assert.NoError(t, ch.Send([]validation.MismatchAlert{
		{Severity: validation.SeverityCritical},
		{Severity: validation.SeverityLow},
	}))
}
