package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/config-overlay/internal/overrides"
	"github.com/eugenenazirov/config-overlay/internal/settings"
	"github.com/eugenenazirov/config-overlay/internal/store"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeService struct {
	mu sync.Mutex

	doc       store.Document
	effective json.RawMessage
	schema    []overrides.SchemaEntry
	err       error

	lastKey   string
	lastValue settings.Value
	lastBatch map[string]settings.Value
	lastActor string
	applied   int
	resets    int
}

func newFakeService() *fakeService {
	return &fakeService{
		doc: store.Document{
			ID:        store.DocumentID,
			Version:   store.CurrentVersion,
			Overrides: settings.Tree{},
		},
		effective: json.RawMessage(`{"appTitle":"LibreChat"}`),
	}
}

func (f *fakeService) Get(context.Context) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc.Clone(), f.err
}

func (f *fakeService) Set(ctx context.Context, key string, raw settings.Value, actor string) (overrides.SetResult, error) {
	f.mu.Lock()
	f.lastKey, f.lastValue = key, raw
	f.mu.Unlock()
	return f.SetMany(ctx, map[string]settings.Value{key: raw}, actor)
}

func (f *fakeService) SetMany(_ context.Context, values map[string]settings.Value, actor string) (overrides.SetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastBatch, f.lastActor = values, actor
	if f.err != nil {
		return overrides.SetResult{}, f.err
	}

	policy := settings.DefaultPolicy()
	tree := f.doc.Overrides.Clone()
	restart := false
	for key, raw := range values {
		entry, value, err := policy.CoerceFor(key, raw)
		if err != nil {
			return overrides.SetResult{}, err
		}
		if err := tree.Set(entry.Path, value); err != nil {
			return overrides.SetResult{}, err
		}
		restart = restart || entry.RestartRequired
	}
	f.doc.Overrides = tree
	f.doc.Generation++
	f.doc.UpdatedBy = actor
	return overrides.SetResult{Document: f.doc.Clone(), RestartRequired: restart}, nil
}

func (f *fakeService) Reset(_ context.Context, actor string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastActor = actor
	if f.err != nil {
		return store.Document{}, f.err
	}
	f.resets++
	f.doc.Overrides = settings.Tree{}
	f.doc.Generation++
	return f.doc.Clone(), nil
}

func (f *fakeService) Apply(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied++
	return f.err
}

func (f *fakeService) Effective(context.Context) (json.RawMessage, error) {
	return f.effective, f.err
}

func (f *fakeService) Schema(context.Context) ([]overrides.SchemaEntry, error) {
	return f.schema, f.err
}

func setupTestRouter(t *testing.T) (http.Handler, *fakeService, *controllableClock) {
	t.Helper()

	svc := newFakeService()
	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))

	logger := zaptest.NewLogger(t)
	handler := NewHandler(svc, WithClock(clock.Now), WithHandlerLogger(logger))
	router := NewRouter(handler, logger, WithLogging(false))

	return router, svc, clock
}

func sendJSON(t *testing.T, router http.Handler, method, body, actor string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, "/api/admin/config", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-User-ID", actor)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func postOverride(t *testing.T, router http.Handler, body, actor string) *httptest.ResponseRecorder {
	t.Helper()
	return sendJSON(t, router, http.MethodPost, body, actor)
}

func putOverrides(t *testing.T, router http.Handler, body, actor string) *httptest.ResponseRecorder {
	t.Helper()
	return sendJSON(t, router, http.MethodPut, body, actor)
}

type writeResponse struct {
	Overrides       map[string]any `json:"overrides"`
	Generation      uint64         `json:"generation"`
	UpdatedBy       string         `json:"updatedBy"`
	RestartRequired bool           `json:"restartRequired"`
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

type plainError string

func (e plainError) Error() string { return string(e) }

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	assert.Equal(t, "abc", requestIDFromContext(ctx))
	assert.Empty(t, requestIDFromContext(context.Background()))

	rec := httptest.NewRecorder()
	writeInternalError(rec, plainError("boom"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router, _, clock := setupTestRouter(t)
	clock.Advance(time.Minute)

	rec := serve(router, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[healthResponse](t, rec)
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.Timestamp.Equal(clock.Now()), "timestamp %s", body.Timestamp)
}

func TestGetOverridesReturnsEmptyObject(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	rec := serve(router, http.MethodGet, "/api/admin/config")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"overrides":{}`)
}

func TestSetOverrideUpdatesDocument(t *testing.T) {
	router, svc, _ := setupTestRouter(t)

	rec := postOverride(t, router, `{"key":"interface.sidePanel","value":false}`, "admin-7")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[writeResponse](t, rec)
	iface, ok := body.Overrides["interface"].(map[string]any)
	require.True(t, ok, "overrides %v", body.Overrides)
	assert.Equal(t, false, iface["sidePanel"])
	assert.False(t, body.RestartRequired)
	assert.Equal(t, uint64(1), body.Generation)
	assert.Equal(t, "admin-7", body.UpdatedBy)
	assert.Equal(t, "admin-7", svc.lastActor)
	assert.Equal(t, "interface.sidePanel", svc.lastKey)
}

func TestSetOverrideReportsRestartRequired(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	rec := postOverride(t, router, `{"key":"registrationEnabled","value":true}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"restartRequired":true`)
}

func TestSetOverrideMissingValueIsNull(t *testing.T) {
	router, svc, _ := setupTestRouter(t)

	rec := postOverride(t, router, `{"key":"appTitle"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.lastValue.IsNull(), "value %s", svc.lastValue)
}

func TestSetOverrideValidation(t *testing.T) {
	router, svc, _ := setupTestRouter(t)

	testCases := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"key":`},
		{name: "missing key", body: `{"value":true}`},
		{name: "blank key", body: `{"key":"  ","value":true}`},
		{name: "not allow-listed", body: `{"key":"mongoUri","value":"mongodb://x"}`},
		{name: "parent of allowed key", body: `{"key":"interface","value":{}}`},
		{name: "non numeric number", body: `{"key":"balance.startBalance","value":"lots"}`},
		{name: "kind mismatch", body: `{"key":"interface.agents","value":"yes"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postOverride(t, router, tc.body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	assert.Zero(t, svc.doc.Generation)
}

func TestPutOverridesAppliesBatch(t *testing.T) {
	router, svc, _ := setupTestRouter(t)

	rec := putOverrides(t, router, `{"appTitle":"Acme","interface.sidePanel":false,"registrationEnabled":true}`, "admin-3")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[writeResponse](t, rec)
	assert.Equal(t, uint64(1), body.Generation)
	assert.True(t, body.RestartRequired)
	assert.Equal(t, "Acme", body.Overrides["appTitle"])
	assert.Len(t, svc.lastBatch, 3)
	assert.Equal(t, "admin-3", svc.lastActor)
}

func TestPutOverridesNullRemovesKey(t *testing.T) {
	router, svc, _ := setupTestRouter(t)

	require.Equal(t, http.StatusOK, putOverrides(t, router, `{"appTitle":"Acme"}`, "").Code)
	rec := putOverrides(t, router, `{"appTitle":null}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, svc.lastBatch["appTitle"].IsNull())
	assert.NotContains(t, decode[writeResponse](t, rec).Overrides, "appTitle")
}

func TestPutOverridesRejectsWholeBatch(t *testing.T) {
	router, svc, _ := setupTestRouter(t)

	testCases := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"appTitle":`},
		{name: "not an object", body: `["appTitle"]`},
		{name: "empty object", body: `{}`},
		{name: "null body", body: `null`},
		{name: "one unknown key", body: `{"appTitle":"Acme","mongoUri":"mongodb://x"}`},
		{name: "one bad value", body: `{"appTitle":"Acme","balance.startBalance":"lots"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := putOverrides(t, router, tc.body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	assert.Zero(t, svc.doc.Generation)
	assert.Empty(t, svc.doc.Overrides)
}

func TestServiceErrorsMapToServerErrors(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{name: "storage", err: fmt.Errorf("%w: connection refused", store.ErrUnavailable), wantMsg: "Storage unavailable"},
		{name: "artifact", err: fmt.Errorf("%w: read-only filesystem", overrides.ErrArtifact), wantMsg: "Configuration saved but not applied"},
		{name: "other", err: plainError("boom"), wantMsg: "Internal error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			router, svc, _ := setupTestRouter(t)
			svc.err = tc.err

			for _, rec := range []*httptest.ResponseRecorder{
				postOverride(t, router, `{"key":"appTitle","value":"Acme"}`, ""),
				putOverrides(t, router, `{"appTitle":"Acme"}`, ""),
			} {
				require.Equal(t, http.StatusInternalServerError, rec.Code)
				assert.Equal(t, tc.wantMsg, decode[errorResponse](t, rec).Error)
			}
		})
	}
}

func TestResetOverrides(t *testing.T) {
	router, svc, _ := setupTestRouter(t)

	postOverride(t, router, `{"key":"appTitle","value":"Acme"}`, "")

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/config", nil)
	req.Header.Set("X-User-ID", "admin-2")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.resets)
	assert.Equal(t, "admin-2", svc.lastActor)
	assert.Empty(t, svc.doc.Overrides)
}

func TestApplyTouchesRestartSignal(t *testing.T) {
	router, svc, _ := setupTestRouter(t)

	rec := serve(router, http.MethodPost, "/api/admin/config/apply")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.applied)
}

func TestSchemaEndpoint(t *testing.T) {
	router, svc, _ := setupTestRouter(t)
	svc.schema = []overrides.SchemaEntry{
		{Entry: settings.HideNoConfigModels.Entry(), Value: settings.Bool(true), Source: "override", Overridden: true},
		{Entry: settings.AppTitle.Entry(), EnvConfigured: true, Value: settings.String("Env"), Source: "env"},
	}

	rec := serve(router, http.MethodGet, "/api/admin/config/schema")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Keys []struct {
			Path          string `json:"path"`
			Kind          string `json:"kind"`
			Inverted      bool   `json:"inverted"`
			EnvConfigured bool   `json:"envConfigured"`
			Value         any    `json:"value"`
		} `json:"keys"`
	}](t, rec)
	require.Len(t, body.Keys, 2)
	assert.True(t, body.Keys[0].Inverted)
	assert.Equal(t, true, body.Keys[0].Value)
	assert.Equal(t, "string", body.Keys[1].Kind)
	assert.True(t, body.Keys[1].EnvConfigured)
}

func TestEffectiveConfigEndpoint(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	rec := serve(router, http.MethodGet, "/api/config")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"appTitle":"LibreChat"}`, rec.Body.String())
}

func TestCorsPreflight(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/admin/config", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "PUT")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	allowed := rec.Header().Get("Access-Control-Allow-Methods")
	assert.Contains(t, allowed, "PUT")
	assert.Contains(t, allowed, "DELETE")
}

func TestRequestIDPropagation(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "test-request-id")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "test-request-id", rec.Header().Get("X-Request-ID"))
}

func TestRequestIDGenerated(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	rec := serve(router, http.MethodGet, "/api/health")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}
