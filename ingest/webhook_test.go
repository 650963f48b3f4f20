package ingest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"vigil/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const testWebhookSecret = "test-webhook-secret"

func newTestWebhookListener(writer *memWriter) *WebhookListener {
	return &WebhookListener{
		secret:      testWebhookSecret,
		maxBodySize: 1 << 20,
		limiter:     rate.NewLimiter(rate.Limit(5000), 5000),
		ingestor:    newTestIngestor(writer),
		logger:      zap.NewNop().Sugar(),
	}
}

func postWebhook(l *WebhookListener, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/ingest/webhook", bytes.NewReader(body))
	req.RemoteAddr = "203.0.113.5:49152"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	l.handleWebhook(rec, req)
	return rec
}

// TestHandleWebhook_ValidSignature tests the accept path end to end
func TestHandleWebhook_ValidSignature(t *testing.T) {
	writer := &memWriter{}
	l := newTestWebhookListener(writer)

	body := []byte(`{"alert": "port scan", "src": "10.1.2.3"}`)
	sig := ComputeSignature(body, testWebhookSecret)

	rec := postWebhook(l, body, map[string]string{headerFortigateSignature: sig})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Webhook received and processed", resp["message"])
	assert.NotEmpty(t, resp["eventId"])

	require.Equal(t, 1, writer.count())
	event := writer.last()
	assert.Equal(t, resp["eventId"], event.ID)
	assert.Equal(t, core.SourceWebhook, event.Source)
	assert.Equal(t, sig, event.Signature)
	assert.Equal(t, "port scan", event.Payload["alert"])
	assert.Equal(t, string(body), event.Payload["raw_message"])
	assert.Equal(t, "203.0.113.5", event.Payload["sender_ip"])
}

// TestHandleWebhook_GenericSignatureHeader tests the fallback header
func TestHandleWebhook_GenericSignatureHeader(t *testing.T) {
	writer := &memWriter{}
	l := newTestWebhookListener(writer)

	body := []byte(`{"a": 1}`)
	sig := ComputeSignature(body, testWebhookSecret)

	rec := postWebhook(l, body, map[string]string{headerWebhookSignature: sig})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, writer.count())
}

// TestHandleWebhook_MissingSignature tests rejection without persistence
func TestHandleWebhook_MissingSignature(t *testing.T) {
	writer := &memWriter{}
	l := newTestWebhookListener(writer)

	rec := postWebhook(l, []byte(`{"a": 1}`), nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, writer.count(), "Rejected payloads must never be persisted")
}

// TestHandleWebhook_InvalidSignature tests signature mismatch rejection
func TestHandleWebhook_InvalidSignature(t *testing.T) {
	writer := &memWriter{}
	l := newTestWebhookListener(writer)

	body := []byte(`{"a": 1}`)
	wrongSig := ComputeSignature(body, "not-the-secret")

	rec := postWebhook(l, body, map[string]string{headerFortigateSignature: wrongSig})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, writer.count())
}

// TestHandleWebhook_TruncatedSignature tests that a malformed digest is
// rejected, not an internal error
func TestHandleWebhook_TruncatedSignature(t *testing.T) {
	writer := &memWriter{}
	l := newTestWebhookListener(writer)

	body := []byte(`{"a": 1}`)
	sig := ComputeSignature(body, testWebhookSecret)

	rec := postWebhook(l, body, map[string]string{headerFortigateSignature: sig[:16]})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, writer.count())
}

// TestHandleWebhook_SignedNonJSONBody tests that a valid signature over a
// non-object body is a 400, after verification
func TestHandleWebhook_SignedNonJSONBody(t *testing.T) {
	writer := &memWriter{}
	l := newTestWebhookListener(writer)

	body := []byte(`this is not json`)
	sig := ComputeSignature(body, testWebhookSecret)

	rec := postWebhook(l, body, map[string]string{headerFortigateSignature: sig})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, writer.count())
}

// TestHandleWebhook_BodyTooLarge tests the size cap
func TestHandleWebhook_BodyTooLarge(t *testing.T) {
	writer := &memWriter{}
	l := newTestWebhookListener(writer)
	l.maxBodySize = 64

	body := bytes.Repeat([]byte("x"), 65)
	sig := ComputeSignature(body, testWebhookSecret)

	rec := postWebhook(l, body, map[string]string{headerFortigateSignature: sig})

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, writer.count())
}

// TestHandleWebhook_StoreFailure tests that append failure surfaces as 5xx
func TestHandleWebhook_StoreFailure(t *testing.T) {
	writer := &memWriter{failNext: true}
	l := newTestWebhookListener(writer)

	body := []byte(`{"a": 1}`)
	sig := ComputeSignature(body, testWebhookSecret)

	rec := postWebhook(l, body, map[string]string{headerFortigateSignature: sig})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 0, writer.count())
}

// TestHandleWebhook_RateLimited tests 429 when the limiter is exhausted
func TestHandleWebhook_RateLimited(t *testing.T) {
	writer := &memWriter{}
	l := newTestWebhookListener(writer)
	l.limiter = rate.NewLimiter(rate.Limit(0), 0)

	body := []byte(`{"a": 1}`)
	sig := ComputeSignature(body, testWebhookSecret)

	rec := postWebhook(l, body, map[string]string{headerFortigateSignature: sig})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 0, writer.count())
}
