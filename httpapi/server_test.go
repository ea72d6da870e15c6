package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/open-runtimes/executor/invoke"
	"github.com/open-runtimes/executor/kube"
	"github.com/open-runtimes/executor/logstream"
	"github.com/open-runtimes/executor/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"
)

const testSecret = "test-secret"

func newTestServer() *Server {
	clientset := fake.NewSimpleClientset()
	k := kube.New(clientset, nil, "default")
	orch := orchestrator.New(k, nil, "test-bucket")
	inv := invoke.New(k, orch)
	stream := logstream.New(k)
	return New(0, testSecret, orch, inv, stream)
}

func doRequest(s *Server, method, path string, body []byte, withAuth bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if withAuth {
		req.Header.Set("Authorization", "Bearer "+testSecret)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsUnauthenticated(t *testing.T) {
	s := newTestServer()
	rec := doRequest(s, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestV1RoutesRequireBearerSecret(t *testing.T) {
	s := newTestServer()
	rec := doRequest(s, http.MethodGet, "/v1/runtimes", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Missing executor key"}`, rec.Body.String())
}

func TestV1RoutesAcceptCorrectSecret(t *testing.T) {
	s := newTestServer()
	rec := doRequest(s, http.MethodGet, "/v1/runtimes", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-PAGINATION-LIMIT"))
}

func TestUnknownRouteReturns404Body(t *testing.T) {
	s := newTestServer()
	rec := doRequest(s, http.MethodGet, "/nonexistent", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "general_route_not_found", body["type"])
}

func TestCreateRequiresRuntimeIDAndImage(t *testing.T) {
	s := newTestServer()
	rec := doRequest(s, http.MethodPost, "/v1/runtimes", []byte(`{}`), true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateThenDescribeThenDelete(t *testing.T) {
	s := newTestServer()

	createBody, _ := json.Marshal(map[string]string{
		"runtimeId": "r1",
		"image":     "img",
		"source":    "bucket/prebuilt.tar.gz",
	})
	rec := doRequest(s, http.MethodPost, "/v1/runtimes", createBody, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(s, http.MethodGet, "/v1/runtimes/r1", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodDelete, "/v1/runtimes/r1", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, http.MethodGet, "/v1/runtimes/r1", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShutdownIsIdempotentBeforeListen(t *testing.T) {
	s := newTestServer()
	err := s.Shutdown(context.Background())
	assert.NoError(t, err)
}
