package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/famledger/internal/modules/records"
	testutil "github.com/aristath/famledger/internal/testing"
)

func setupRouter(t *testing.T) (*chi.Mux, *records.JSONFileBackend) {
	t.Helper()
	log := zerolog.Nop()

	local := records.NewJSONFileBackend(filepath.Join(t.TempDir(), "data.json"))
	require.NoError(t, local.Write(context.Background(), testutil.NewRecordFixtures()))

	store := records.NewMirrorStore(records.MirrorStoreConfig{Local: local}, log)
	service := records.NewService(store, nil, []string{"Dad", "Mom"}, log)

	router := chi.NewRouter()
	NewHandler(service, "現金", log).RegisterRoutes(router)
	return router, local
}

func do(t *testing.T, router http.Handler, method, target string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestRegisterRoutes(t *testing.T) {
	router := chi.NewRouter()
	handler := NewHandler(nil, "", zerolog.Nop())

	assert.NotPanics(t, func() {
		handler.RegisterRoutes(router)
	}, "RegisterRoutes should not panic")
}

func TestHandleList(t *testing.T) {
	router, _ := setupRouter(t)

	rec, body := do(t, router, http.MethodGet, "/records?member=Dad", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["recordCount"])
	assert.Equal(t, records.LocationLocal, body["location"])

	list := body["records"].([]interface{})
	first := list[0].(map[string]interface{})
	assert.Equal(t, "2025-09-22", first["date"])
}

func TestHandleList_InvalidFilter(t *testing.T) {
	router, _ := setupRouter(t)

	rec, body := do(t, router, http.MethodGet, "/records?type=transfer", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, _ = do(t, router, http.MethodGet, "/records?month=2025-13", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCreate(t *testing.T) {
	router, local := setupRouter(t)

	rec, body := do(t, router, http.MethodPost, "/records", map[string]interface{}{
		"member": "Mom", "type": "支出", "amount": 25, "mainCategory": "food", "date": "2025/10/2",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	record := body["record"].(map[string]interface{})
	assert.NotEmpty(t, record["id"])
	assert.Equal(t, "expense", record["type"])
	assert.Equal(t, "2025-10-02", record["date"])

	stored, err := local.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 5)
}

func TestHandleCreate_Validation(t *testing.T) {
	router, _ := setupRouter(t)

	rec, body := do(t, router, http.MethodPost, "/records", map[string]interface{}{
		"member": "Uncle", "type": "expense", "amount": 0, "mainCategory": "", "date": "tomorrow",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs := body["errors"].(map[string]interface{})
	assert.Contains(t, errs, "member")
	assert.Contains(t, errs, "amount")
	assert.Contains(t, errs, "date")
}

func TestHandleGetUpdateDelete(t *testing.T) {
	router, _ := setupRouter(t)
	id := testutil.NewRecordFixtures()[0].ID

	rec, body := do(t, router, http.MethodGet, "/records/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "groceries", body["record"].(map[string]interface{})["description"])

	rec, body = do(t, router, http.MethodPut, "/records/"+id, map[string]interface{}{"amount": 150})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"amount"}, body["changes"])

	rec, _ = do(t, router, http.MethodDelete, "/records/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = do(t, router, http.MethodGet, "/records/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, _ = do(t, router, http.MethodPut, "/records/"+id, map[string]interface{}{"amount": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleBulkDeleteAndClear(t *testing.T) {
	router, local := setupRouter(t)
	fixtures := testutil.NewRecordFixtures()

	rec, _ := do(t, router, http.MethodPost, "/records/delete", map[string]interface{}{"ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := do(t, router, http.MethodPost, "/records/delete", map[string]interface{}{
		"ids": []string{fixtures[0].ID, fixtures[1].ID, "missing"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["deletedCount"])

	rec, body = do(t, router, http.MethodDelete, "/records/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["deletedCount"])

	stored, err := local.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestHandleStats(t *testing.T) {
	router, _ := setupRouter(t)

	rec, body := do(t, router, http.MethodGet, "/records/stats?month=2025-09", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	s := body["stats"].(map[string]interface{})
	assert.Equal(t, float64(3), s["count"])
	assert.Equal(t, float64(3000), s["totalIncome"])
	assert.Equal(t, float64(-100), s["cashBalance"])
	assert.NotNil(t, s["daily"])
}

func TestHandleExport(t *testing.T) {
	router, _ := setupRouter(t)

	rec, _ := do(t, router, http.MethodGet, "/records/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestHandleSync_LocalOnly(t *testing.T) {
	router, _ := setupRouter(t)

	rec, body := do(t, router, http.MethodPost, "/records/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, records.LocationLocal, body["location"])
	assert.Equal(t, float64(4), body["recordCount"])
}
