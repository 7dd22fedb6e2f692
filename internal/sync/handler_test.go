package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	appdata "appsync/internal/appdata/model"
	"appsync/internal/appdata/repository"
	"appsync/internal/sync/model"
	"appsync/internal/sync/service"
	"appsync/middleware"
	"appsync/pkg/events"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
}

func setup() (*repository.MemoryRepository, *events.Recorder, http.Handler) {
	repo := repository.NewMemoryRepository()
	rec := &events.Recorder{}
	svc := service.NewSyncService(repo, rec)
	svc.BatchSize = 3

	r := mux.NewRouter()
	NewSyncHandler(svc).Register(r.PathPrefix("/api/sync").Subrouter())
	return repo, rec, r
}

func call(t *testing.T, h http.Handler, userID int64, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
	ctx = context.WithValue(ctx, middleware.SessionIDKey, "tab-"+strconv.FormatInt(userID, 10))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(ctx))

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func TestPushAndPull(t *testing.T) {
	_, published, h := setup()

	code, env := call(t, h, 1, http.MethodPost, "/api/sync", `{"data":[{"type":"note","content":"a"},{"content":"no type"}]}`)
	require.Equal(t, http.StatusOK, code)
	var push model.PushResult
	require.NoError(t, json.Unmarshal(env.Data, &push))
	assert.Equal(t, 1, push.CreatedCount)
	assert.Equal(t, []string{"item 1: missing required field type"}, push.Errors)

	evs := published.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.DataUpdated, evs[0].Kind)
	assert.Equal(t, "tab-1", evs[0].OriginSession)

	code, env = call(t, h, 1, http.MethodGet, "/api/sync", "")
	require.Equal(t, http.StatusOK, code)
	var pull model.PullResult
	require.NoError(t, json.Unmarshal(env.Data, &pull))
	assert.Equal(t, 1, pull.Count)
	assert.Equal(t, int64(1), pull.UserID)

	code, env = call(t, h, 1, http.MethodGet, "/api/sync?last_sync="+pull.Timestamp, "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &pull))
	assert.Equal(t, 0, pull.Count)
}

func TestPushRejectsMalformedBody(t *testing.T) {
	_, _, h := setup()

	code, env := call(t, h, 1, http.MethodPost, "/api/sync", `{"data": 5}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.ErrorCode)

	code, _ = call(t, h, 1, http.MethodPost, "/api/sync", `{"data":[{},{},{},{}]}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatusAndForce(t *testing.T) {
	repo, published, h := setup()
	ctx := context.Background()
	for _, kind := range []string{"note", "note", "task"} {
		_, err := repo.Insert(ctx, 1, appdata.CreateInput{Kind: kind, Body: "x"}, time.Now())
		require.NoError(t, err)
	}

	code, env := call(t, h, 1, http.MethodGet, "/api/sync/status", "")
	require.Equal(t, http.StatusOK, code)
	var st model.Status
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, 3, st.TotalItems)
	assert.Equal(t, map[string]int{"note": 2, "task": 1}, st.TypeStatistics)
	assert.Equal(t, model.StatusActive, st.SyncStatus)

	code, env = call(t, h, 1, http.MethodPost, "/api/sync/force", "")
	require.Equal(t, http.StatusOK, code)
	var force model.ForceResult
	require.NoError(t, json.Unmarshal(env.Data, &force))
	assert.Equal(t, 3, force.TotalSynced)
	assert.Equal(t, model.SyncTypeForceFull, force.SyncType)

	evs := published.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.ForceSyncCompleted, evs[0].Kind)
}

func TestConflicts(t *testing.T) {
	repo, _, h := setup()
	rec, err := repo.Insert(context.Background(), 1, appdata.CreateInput{Kind: "note", Body: "x"}, time.Now())
	require.NoError(t, err)

	body := `{"data":[{"id":` + strconv.FormatInt(rec.ID, 10) + `,"updated_at":"2000-01-01T00:00:00Z"}]}`
	code, env := call(t, h, 1, http.MethodPost, "/api/sync/conflicts", body)
	require.Equal(t, http.StatusOK, code)

	var report model.ConflictReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.True(t, report.HasConflicts)
	require.Len(t, report.Conflicts, 1)
	assert.Equal(t, model.ConflictTimestampMismatch, report.Conflicts[0].ConflictType)

	code, env = call(t, h, 2, http.MethodPost, "/api/sync/conflicts", body)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.False(t, report.HasConflicts, "other owners' records are skipped")
}
