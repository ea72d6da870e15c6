package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionLessComparesDottedComponents(t *testing.T) {
	assert.True(t, versionLess("0.10.0", "0.11.0"))
	assert.False(t, versionLess("0.11.0", "0.11.0"))
	assert.False(t, versionLess("0.12.0", "0.11.0"))
	assert.True(t, versionLess("0.9", "0.11.0"))
}

func TestRenderHeadersKeepsMultiValueForNewClients(t *testing.T) {
	headers := map[string][]string{"x-custom": {"a", "b"}, "content-type": {"text/plain"}}

	out := renderHeaders(headers, "0.12.0")
	assert.Equal(t, []string{"a", "b"}, out["x-custom"])
	assert.Equal(t, "text/plain", out["content-type"])
}

func TestRenderHeadersCollapsesForOldClients(t *testing.T) {
	headers := map[string][]string{"x-custom": {"a", "b"}}

	out := renderHeaders(headers, "0.9.0")
	assert.Equal(t, "b", out["x-custom"])
}

func TestRenderHeadersKeepsFullShapeWhenVersionMissing(t *testing.T) {
	headers := map[string][]string{"x-custom": {"a", "b"}}

	out := renderHeaders(headers, "")
	assert.Equal(t, []string{"a", "b"}, out["x-custom"])
}

func TestWantsJSONChecksAcceptHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Accept", "application/json")
	assert.True(t, wantsJSON(req))

	req2 := httptest.NewRequest(http.MethodPost, "/", nil)
	req2.Header.Set("Accept", "application/*")
	assert.True(t, wantsJSON(req2))

	req3 := httptest.NewRequest(http.MethodPost, "/", nil)
	req3.Header.Set("Accept", "multipart/form-data")
	assert.False(t, wantsJSON(req3))

	req4 := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.False(t, wantsJSON(req4))

	req5 := httptest.NewRequest(http.MethodPost, "/", nil)
	req5.Header.Set("Accept", "*/*")
	assert.False(t, wantsJSON(req5))
}

func TestHandleCommandRejectsEmptyCommand(t *testing.T) {
	s := newTestServer()
	rec := doRequest(s, http.MethodPost, "/v1/runtimes/r1/commands", []byte(`{}`), true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCommandReturnsNotFoundForMissingRuntime(t *testing.T) {
	s := newTestServer()
	rec := doRequest(s, http.MethodPost, "/v1/runtimes/ghost/commands", []byte(`{"command":"echo hi"}`), true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleExecuteRejectsBadJSON(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/runtimes/r1/executions", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+testSecret)
	req.ContentLength = int64(len("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
