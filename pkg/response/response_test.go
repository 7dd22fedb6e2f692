package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"appsync/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, "done", map[string]int{"count": 2})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(200), body["status_code"])
	assert.Equal(t, "done", body["message"])
	assert.NotEmpty(t, body["timestamp"])
	assert.Equal(t, map[string]any{"count": float64(2)}, body["data"])
	assert.NotContains(t, body, "error")
}

func TestSuccessWithNilDataKeepsKey(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, "deleted", nil)

	body := decode(t, rec)
	assert.Contains(t, body, "data")
	assert.Nil(t, body["data"])
}

func TestFromErrorCategories(t *testing.T) {
	rec := httptest.NewRecorder()
	FromError(rec, "Data not found", apperr.NotFound("data not found"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "NOT_FOUND", body["error_code"])
	assert.Equal(t, "data not found", body["error"])

	rec = httptest.NewRecorder()
	FromError(rec, "Failed to load data", apperr.Storage("select failed", errors.New("password=secret")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", body["error_code"])
	assert.Nil(t, body["error"], "storage causes must not leak")
}

func TestErrorWithoutCodeOmitsField(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusBadRequest, "bad", "detail", "")

	body := decode(t, rec)
	assert.NotContains(t, body, "error_code")
	assert.Equal(t, "detail", body["error"])
}

func TestPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasNext)
	assert.True(t, p.HasPrev)

	p = NewPagination(1, 10, 0)
	assert.Equal(t, 0, p.TotalPages)
	assert.False(t, p.HasNext)
	assert.False(t, p.HasPrev)
}

func TestBind(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	require.NoError(t, Bind(req, &v))
	assert.Equal(t, "x", v.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.NoError(t, Bind(req, &v), "empty body is not an error")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{nope"))
	err := Bind(req, &v)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
