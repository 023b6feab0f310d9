package respond

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chuckafile/apperr"
	"chuckafile/logging"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestErrorMapsCode(t *testing.T) {
	rw := &Writer{Logger: logging.Discard()}
	rec := httptest.NewRecorder()
	rw.Error(rec, httptest.NewRequest(http.MethodGet, "/", nil), apperr.ErrAlreadyFriends)

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Already friends with this user", body["message"])
	assert.Equal(t, "CONFLICT", body["code"])
	assert.NotContains(t, body, "error")
}

func TestErrorHidesInternalDetailOutsideDevMode(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	cause := errors.New("connection refused")

	rec := httptest.NewRecorder()
	(&Writer{Logger: logging.Discard()}).Error(rec, req, cause)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Internal server error", body["message"])
	assert.NotContains(t, body, "error")

	rec = httptest.NewRecorder()
	(&Writer{Logger: logging.Discard(), DevMode: true}).Error(rec, req, cause)
	assert.Equal(t, "connection refused", decode(t, rec)["error"])
}

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	(&Writer{}).OK(rec, http.StatusCreated, map[string]interface{}{"id": 3})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 3.0, body["id"])
}
