package apierrors

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsSetStatusAndKind(t *testing.T) {
	cases := []struct {
		err  *Error
		kind Kind
		code int
	}{
		{GeneralUnknown("x"), KindGeneralUnknown, http.StatusInternalServerError},
		{GeneralRouteNotFound("x"), KindGeneralRouteNotFound, http.StatusNotFound},
		{ExecutionBadRequest("x"), KindExecutionBadRequest, http.StatusBadRequest},
		{ExecutionTimeout("x"), KindExecutionTimeout, http.StatusRequestTimeout},
		{ExecutionBadJSON("x"), KindExecutionBadJSON, http.StatusBadRequest},
		{RuntimeNotFound("x"), KindRuntimeNotFound, http.StatusNotFound},
		{RuntimeConflict("x"), KindRuntimeConflict, http.StatusConflict},
		{RuntimeFailed("x"), KindRuntimeFailed, http.StatusInternalServerError},
		{RuntimeTimeout("x"), KindRuntimeTimeout, http.StatusInternalServerError},
		{RuntimeTimeoutWithCode("x", http.StatusGatewayTimeout), KindRuntimeTimeout, http.StatusGatewayTimeout},
		{LogsTimeout("x"), KindLogsTimeout, http.StatusRequestTimeout},
		{CommandTimeout("x"), KindCommandTimeout, http.StatusRequestTimeout},
		{CommandFailed("x"), KindCommandFailed, http.StatusInternalServerError},
	}

	for _, c := range cases {
		assert.Equal(t, c.kind, c.err.Type)
		assert.Equal(t, c.code, c.err.Code)
		assert.Equal(t, "x", c.err.Error())
	}
}

func TestAsWrapsUnknownErrors(t *testing.T) {
	plain := errors.New("boom")
	wrapped := As(plain)
	require.NotNil(t, wrapped)
	assert.Equal(t, KindGeneralUnknown, wrapped.Type)
	assert.Equal(t, "boom", wrapped.Message)

	assert.Nil(t, As(nil))

	original := RuntimeConflict("already exists")
	assert.Same(t, original, As(original))
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, RuntimeNotFound("nope"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, KindRuntimeNotFound, body.Type)
	assert.Equal(t, "nope", body.Message)
	assert.Equal(t, http.StatusNotFound, body.Code)
}
