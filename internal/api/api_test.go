package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assetrecon/internal/api/handlers"
	"assetrecon/internal/api/models"
	"assetrecon/internal/config"
	"assetrecon/internal/logging"
	"assetrecon/internal/metrics"
	"assetrecon/internal/priority"
	"assetrecon/internal/reconcile"
	"assetrecon/internal/store"
)

type testServer struct {
	router http.Handler
	engine *reconcile.Engine
	store  *store.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := store.NewMemoryStore()
	m := metrics.NewCollector()
	engine, err := reconcile.NewEngine(reconcile.EngineOptions{
		Store: s,
		Registry: priority.NewRegistry(config.Priorities{
			Manual: 1000,
			Sources: map[string]config.SourcePriority{
				"mgmt-api": {Default: 100},
				"snmp":     {Default: 10},
			},
		}),
		Blacklist: reconcile.NewBlacklist(config.Blacklist{}),
		Metrics:   m,
	})
	require.NoError(t, err)

	h := handlers.NewAssetHandler(s, engine, logging.Discard())
	return &testServer{router: NewRouter(h, m, logging.Discard()), engine: engine, store: s}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) seed(t *testing.T, serial, name string) uuid.UUID {
	t.Helper()
	res, err := ts.engine.Process(context.Background(), []reconcile.SourceReport{
		{Source: "mgmt-api", Fields: map[string]interface{}{"serial_number": serial, "name": name}},
	})
	require.NoError(t, err)
	return res.AssetID
}

func TestGetAsset(t *testing.T) {
	ts := newTestServer(t)
	id := ts.seed(t, "SN-1", "srv-01")

	rec := ts.do(t, http.MethodGet, "/assets/"+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.AssetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "srv-01", got.Fields["name"])
	assert.Equal(t, 100, got.Ledger["name"])
	assert.Equal(t, 1, got.Version)

	rec = ts.do(t, http.MethodGet, "/assets/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/assets/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAssetsPaginates(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "SN-1", "a")
	ts.seed(t, "SN-2", "b")
	ts.seed(t, "SN-3", "c")

	rec := ts.do(t, http.MethodGet, "/assets?size=2&page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.AssetListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 3, list.TotalAssets)
	assert.Equal(t, 2, list.TotalPages)
	assert.Len(t, list.Data, 1)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/assets?page=9", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/assets?size=0", nil).Code)
}

func TestPreviewWritesNothing(t *testing.T) {
	ts := newTestServer(t)
	id := ts.seed(t, "SN-1", "srv-01")

	rec := ts.do(t, http.MethodPost, "/preview", []reconcile.SourceReport{
		{Source: "snmp", Fields: map[string]interface{}{"serial_number": "SN-1", "name": "unknown", "cpu_count": 2}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res reconcile.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, id, res.AssetID)
	assert.False(t, res.Committed)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "name", res.Rejected[0].Field)
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, "cpu_count", res.Accepted[0].Field)
	assert.Equal(t, reconcile.NewField, res.Accepted[0].Kind)

	a, err := ts.store.GetAsset(context.Background(), id)
	require.NoError(t, err)
	assert.NotContains(t, a.Fields, "cpu_count")
	assert.Equal(t, 1, a.Version)

	rec = ts.do(t, http.MethodPost, "/preview", []reconcile.SourceReport{
		{Source: "snmp", Fields: map[string]interface{}{"location": "DC1"}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, "/preview", []reconcile.SourceReport{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPreviewConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "SN-1", "a")
	ts.seed(t, "SN-2", "b")

	rec := ts.do(t, http.MethodPost, "/preview", []reconcile.SourceReport{
		{Source: "mgmt-api", Fields: map[string]interface{}{"serial_number": "SN-1", "barcode": "X"}},
		{Source: "snmp", Fields: map[string]interface{}{"serial_number": "SN-2"}},
	})
	// the higher-priority serial wins the merge, so there is no conflict
	assert.Equal(t, http.StatusOK, rec.Code)

	_, err := ts.engine.Override(context.Background(), ts.seed(t, "SN-3", "c"), []reconcile.FieldChoice{{Field: "barcode", Value: "BC-3"}})
	require.NoError(t, err)

	rec = ts.do(t, http.MethodPost, "/preview", []reconcile.SourceReport{
		{Source: "mgmt-api", Fields: map[string]interface{}{"serial_number": "SN-1", "barcode": "BC-3"}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotNil(t, body.Detail)
}

func TestOverride(t *testing.T) {
	ts := newTestServer(t)
	id := ts.seed(t, "SN-1", "srv-01")
	other := ts.seed(t, "SN-2", "srv-02")
	path := "/assets/" + id.String() + "/override"

	rec := ts.do(t, http.MethodPost, path, []reconcile.FieldChoice{
		{Field: "name", Value: "db-primary", SourceLabel: "alice"},
		{Field: "rack", Value: 12},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	a, err := ts.store.GetAsset(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "db-primary", a.Fields["name"])
	assert.Equal(t, "12", a.Fields["rack"])
	assert.Equal(t, 1000, a.Ledger["name"])

	rec = ts.do(t, http.MethodPost, path, []reconcile.FieldChoice{{Field: "rack", Value: nil}})
	require.Equal(t, http.StatusOK, rec.Code)
	var res reconcile.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Accepted, 1)
	assert.Equal(t, reconcile.Removed, res.Accepted[0].Kind)

	tests := []struct {
		name    string
		path    string
		choices []reconcile.FieldChoice
		status  int
	}{
		{"unknown asset", "/assets/" + uuid.New().String() + "/override", []reconcile.FieldChoice{{Field: "name", Value: "x"}}, http.StatusNotFound},
		{"no choices", path, []reconcile.FieldChoice{}, http.StatusBadRequest},
		{"empty value", path, []reconcile.FieldChoice{{Field: "name", Value: "  "}}, http.StatusUnprocessableEntity},
		{"bad mac", path, []reconcile.FieldChoice{{Field: "mac_address", Value: "zz"}}, http.StatusUnprocessableEntity},
		{"serial of another asset", path, []reconcile.FieldChoice{{Field: "serial_number", Value: "SN-2"}}, http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tc.path, tc.choices)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}

	b, err := ts.store.GetAsset(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, "SN-2", b.Fields["serial_number"])
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "SN-1", "srv-01")

	rec := ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `assetrecon_sightings_total{outcome="created"} 1`)
}
