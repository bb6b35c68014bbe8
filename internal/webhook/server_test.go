package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/strikegw/internal/secret"
	"github.com/mattjoyce/strikegw/internal/signature"
)

const scenarioBody = `{"id":"abc","eventType":"invoice.updated","webhookVersion":"v1","data":{"entityId":"inv_1","changes":["state"]},"created":"2024-01-01T00:00:00Z"}`

// syncBuffer is a bytes.Buffer safe for concurrent log writes and reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func mustSecret(t *testing.T, v string) secret.Secret {
	t.Helper()
	s, err := secret.New(v)
	require.NoError(t, err)
	return s
}

func sign(body, key string) string {
	return signature.SignHex([]byte(body), []byte(key))
}

func envelopeFor(id, entityID string) string {
	return fmt.Sprintf(`{"id":%q,"eventType":"invoice.updated","webhookVersion":"v1","data":{"entityId":%q,"changes":["state"]},"created":"2024-01-01T00:00:00Z"}`, id, entityID)
}

func newTestServer(t *testing.T, cfg Config, events chan<- string, ledger Ledger) (*Server, *syncBuffer) {
	t.Helper()
	logger, buf := newTestLogger()
	return New(cfg, mustSecret(t, "s3cr3t"), events, ledger, logger), buf
}

func post(h http.Handler, path, body, sig string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set(DefaultSignatureHeader, sig)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_ScenarioDeliversEntityID(t *testing.T) {
	events := make(chan string, 1)
	server, _ := newTestServer(t, Config{}, events, nil)

	rec := post(server.Handler(), DefaultPath, scenarioBody, sign(scenarioBody, "s3cr3t"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AcceptedResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, "abc", resp.ID)

	select {
	case id := <-events:
		assert.Equal(t, "inv_1", id)
	default:
		t.Fatal("consumer did not receive the entity id")
	}
}

func TestServer_KeyReorderRejected(t *testing.T) {
	events := make(chan string, 1)
	server, _ := newTestServer(t, Config{}, events, nil)

	// Same JSON document, different bytes.
	reordered := `{"eventType":"invoice.updated","id":"abc","webhookVersion":"v1","data":{"entityId":"inv_1","changes":["state"]},"created":"2024-01-01T00:00:00Z"}`
	rec := post(server.Handler(), DefaultPath, reordered, sign(scenarioBody, "s3cr3t"))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
	assert.Empty(t, events)
}

func TestServer_MissingSignatureNeverParses(t *testing.T) {
	events := make(chan string, 1)
	server, logs := newTestServer(t, Config{}, events, nil)

	rec := post(server.Handler(), DefaultPath, scenarioBody, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
	assert.Empty(t, events)
	assert.Contains(t, logs.String(), string(ReasonMissingSignatureHeader))
	assert.NotContains(t, logs.String(), "received webhook update")
	assert.NotContains(t, logs.String(), "envelope rejected")
}

func TestServer_AuthFailuresShareResponseBody(t *testing.T) {
	server, logs := newTestServer(t, Config{}, make(chan string, 1), nil)
	h := server.Handler()

	missing := post(h, DefaultPath, scenarioBody, "")
	malformed := post(h, DefaultPath, scenarioBody, "not-hex")
	mismatch := post(h, DefaultPath, scenarioBody, sign(scenarioBody, "other"))

	for _, rec := range []*httptest.ResponseRecorder{missing, malformed, mismatch} {
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, missing.Body.String(), rec.Body.String())
	}
	assert.Contains(t, logs.String(), string(ReasonMalformedSignatureHeader))
	assert.Contains(t, logs.String(), string(ReasonSignatureMismatch))
	assert.NotContains(t, logs.String(), "s3cr3t")
}

func TestServer_InvalidJSONWithValidSignature(t *testing.T) {
	events := make(chan string, 1)
	server, _ := newTestServer(t, Config{}, events, nil)

	for _, body := range []string{`{"id":`, `[]`, `{"id":"abc","eventType":"invoice.updated","data":{}}`} {
		rec := post(server.Handler(), DefaultPath, body, sign(body, "s3cr3t"))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "body %s", body)
		assert.JSONEq(t, `{"error":"unprocessable entity"}`, rec.Body.String())
	}
	assert.Empty(t, events)
}

func TestServer_BodyTooLarge(t *testing.T) {
	events := make(chan string, 1)
	server, _ := newTestServer(t, Config{MaxBodySize: 64}, events, nil)

	body := envelopeFor(strings.Repeat("x", 100), "inv_1")
	rec := post(server.Handler(), DefaultPath, body, sign(body, "s3cr3t"))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, events)
}

func TestServer_ConcurrentDeliveries(t *testing.T) {
	const n = 50

	events := make(chan string)
	server, _ := newTestServer(t, Config{SubmitTimeout: 5 * time.Second}, events, nil)
	h := server.Handler()

	received := make(chan map[string]int, 1)
	go func() {
		seen := make(map[string]int)
		for i := 0; i < n; i++ {
			seen[<-events]++
		}
		received <- seen
	}()

	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := envelopeFor(fmt.Sprintf("evt_%d", i), fmt.Sprintf("inv_%d", i))
			codes[i] = post(h, DefaultPath, body, sign(body, "s3cr3t")).Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		assert.Equal(t, http.StatusOK, code, "request %d", i)
	}

	select {
	case seen := <-received:
		assert.Len(t, seen, n)
		for id, count := range seen {
			assert.Equal(t, 1, count, "entity %s", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not receive all events")
	}
}

func TestServer_SaturatedConsumerDropsAfterTimeout(t *testing.T) {
	events := make(chan string) // nobody reads
	server, logs := newTestServer(t, Config{SubmitTimeout: 50 * time.Millisecond}, events, nil)

	start := time.Now()
	rec := post(server.Handler(), DefaultPath, scenarioBody, sign(scenarioBody, "s3cr3t"))
	elapsed := time.Since(start)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Contains(t, logs.String(), "webhook event dropped")
	assert.Contains(t, logs.String(), `"entity_id":"inv_1"`)
}

func TestServer_Routes(t *testing.T) {
	server, _ := newTestServer(t, Config{}, make(chan string, 1), nil)
	h := server.Handler()

	t.Run("unknown path", func(t *testing.T) {
		rec := post(h, "/webhooks/other", scenarioBody, sign(scenarioBody, "s3cr3t"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultPath, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("healthz", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("metrics disabled", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultMetricsPath, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_MetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t, Config{Metrics: MetricsConfig{Enabled: true}}, make(chan string, 1), nil)
	h := server.Handler()

	post(h, DefaultPath, scenarioBody, sign(scenarioBody, "s3cr3t"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultMetricsPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "strikegw_webhook_events_enqueued_total")
	assert.Contains(t, string(body), "strikegw_webhook_requests_total")
}

func TestNew_AppliesDefaults(t *testing.T) {
	server, _ := newTestServer(t, Config{Metrics: MetricsConfig{Enabled: true}}, make(chan string), nil)

	assert.Equal(t, DefaultListen, server.config.Listen)
	assert.Equal(t, DefaultPath, server.config.Path)
	assert.Equal(t, DefaultSignatureHeader, server.config.SignatureHeader)
	assert.Equal(t, int64(DefaultMaxBodySize), server.config.MaxBodySize)
	assert.Equal(t, DefaultSubmitTimeout, server.config.SubmitTimeout)
	assert.Equal(t, DefaultMetricsPath, server.config.Metrics.Path)
}

func TestServer_CustomSignatureHeader(t *testing.T) {
	events := make(chan string, 1)
	server, _ := newTestServer(t, Config{Path: "/hooks", SignatureHeader: "X-Signature"}, events, nil)

	req := httptest.NewRequest(http.MethodPost, "/hooks", strings.NewReader(scenarioBody))
	req.Header.Set("X-Signature", sign(scenarioBody, "s3cr3t"))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "inv_1", <-events)
}

func TestServer_StartStopsOnCancel(t *testing.T) {
	server, _ := newTestServer(t, Config{Listen: "127.0.0.1:0"}, make(chan string), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled), "unexpected error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
