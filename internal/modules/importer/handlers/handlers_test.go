package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/famledger/internal/modules/importer"
	"github.com/aristath/famledger/internal/modules/records"
	testutil "github.com/aristath/famledger/internal/testing"
)

const sampleCSV = "成員,金額,主類別,子類別,描述,日期\n" +
	"Dad,-100,food,現金,groceries,2025/9/21\n" + // exact duplicate of a fixture
	"Mom,-60,clothes,信用卡,jacket,2025/9/10\n" +
	"Mom,abc,food,現金,,2025/9/11\n"

func setup(t *testing.T) (*chi.Mux, *records.JSONFileBackend) {
	t.Helper()
	log := zerolog.Nop()

	local := records.NewJSONFileBackend(filepath.Join(t.TempDir(), "data.json"))
	require.NoError(t, local.Write(context.Background(), testutil.NewRecordFixtures()))
	service := records.NewService(records.NewMirrorStore(records.MirrorStoreConfig{Local: local}, log), nil, nil, log)

	router := chi.NewRouter()
	NewHandler(service, importer.NewSessions(time.Minute), importer.Rules{}, log).RegisterRoutes(router)
	return router, local
}

func upload(t *testing.T, router http.Handler, filename, content string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/excel/compare", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func postImport(t *testing.T, router http.Handler, payload map[string]interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/excel/import", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestCompareThenImport(t *testing.T) {
	router, local := setup(t)

	rec, body := upload(t, router, "statement.csv", sampleCSV)
	require.Equal(t, http.StatusOK, rec.Code)

	comparison := body["comparison"].(map[string]interface{})
	assert.Len(t, comparison["new"], 1)
	assert.Len(t, comparison["duplicates"], 1)
	assert.Len(t, comparison["errors"], 1)
	assert.Equal(t, float64(3), comparison["total"])
	sessionID := comparison["sessionId"].(string)
	require.NotEmpty(t, sessionID)

	rec, body = postImport(t, router, map[string]interface{}{"sessionId": sessionID})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["importedCount"])

	stored, err := local.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 5)

	// the session is consumed
	rec, _ = postImport(t, router, map[string]interface{}{"sessionId": sessionID})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImport_SelectedDuplicateIsSkippedUnlessForced(t *testing.T) {
	router, local := setup(t)

	_, body := upload(t, router, "statement.csv", sampleCSV)
	sessionID := body["comparison"].(map[string]interface{})["sessionId"].(string)

	rec, body := postImport(t, router, map[string]interface{}{"sessionId": sessionID, "rows": []int{1}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["importedCount"])
	assert.Equal(t, float64(1), body["skippedCount"])

	_, body = upload(t, router, "statement.csv", sampleCSV)
	sessionID = body["comparison"].(map[string]interface{})["sessionId"].(string)
	rec, body = postImport(t, router, map[string]interface{}{"sessionId": sessionID, "rows": []int{1}, "force": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["importedCount"])

	stored, err := local.Read(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored, 5)
}

func TestCompare_Rejects(t *testing.T) {
	router, _ := setup(t)

	rec, _ := upload(t, router, "notes.txt", "hello")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := upload(t, router, "bad.csv", "foo,bar\n1,2\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestImport_UnknownSession(t *testing.T) {
	router, _ := setup(t)

	rec, _ := postImport(t, router, map[string]interface{}{"sessionId": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
