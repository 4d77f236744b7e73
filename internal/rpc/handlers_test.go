package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"pps/internal/capture"
	"pps/internal/entity"
	"pps/internal/store"
)

func newTestServer(t *testing.T) (*echo.Echo, *entity.Entity) {
	t.Helper()
	e, err := entity.Open("lyra", t.TempDir())
	require.NoError(t, err)

	turns := store.NewMemory()
	srv := New(Deps{Entity: e, Turns: turns, Capture: capture.New(turns)})

	echoServer := echo.New()
	srv.Register(echoServer)
	return echoServer, e
}

func doRequest(t *testing.T, e *echo.Echo, path string, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestStoreMessage_RejectsMissingToken(t *testing.T) {
	e, _ := newTestServer(t)

	rec := doRequest(t, e, "/store_message", map[string]any{
		"content": "hello", "author_name": "Jeff", "channel": "cli",
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.Equal(t, "auth_failure", resp.Error)
}

func TestStoreMessage_SucceedsWithValidToken(t *testing.T) {
	e, ent := newTestServer(t)

	rec := doRequest(t, e, "/store_message", map[string]any{
		"token": ent.RawToken(), "content": "hello world", "author_name": "Jeff", "channel": "cli",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, true, resp["success"])
	require.NotNil(t, resp["id"])
}

func TestAmbientRecall_FailsCleanlyWhenUnconfigured(t *testing.T) {
	e, ent := newTestServer(t)

	rec := doRequest(t, e, "/ambient_recall", map[string]any{
		"token": ent.RawToken(), "context": "startup",
	})

	require.NotEqual(t, http.StatusOK, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.NotEmpty(t, resp.Advice)
}

func TestPPSHealth_UnauthenticatedAndReportsConfiguredLayers(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/pps_health", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	layers := resp["layers"].(map[string]any)
	relational := layers["relational"].(map[string]any)
	require.Equal(t, true, relational["available"])
	graph := layers["graph"].(map[string]any)
	require.Equal(t, false, graph["available"])
}

func TestFrictionSearch_ReturnsEmptyWhenNoFrictionCollectionConfigured(t *testing.T) {
	e, ent := newTestServer(t)

	rec := doRequest(t, e, "/friction/search", map[string]any{
		"token": ent.RawToken(), "query": "deploy", "limit": 5,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, true, resp["success"])
	require.Empty(t, resp["results"])
}
