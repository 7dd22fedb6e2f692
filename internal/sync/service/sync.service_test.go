package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	appdata "appsync/internal/appdata/model"
	"appsync/internal/appdata/repository"
	"appsync/internal/sync/model"
	"appsync/pkg/apperr"
	"appsync/pkg/events"
	"appsync/pkg/timex"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock advances one second per reading.
type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestSync() (*SyncService, *repository.MemoryRepository, *events.Recorder, *stepClock) {
	repo := repository.NewMemoryRepository()
	pub := &events.Recorder{}
	clock := &stepClock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	svc := NewSyncService(repo, pub)
	svc.Now = clock.Now
	return svc, repo, pub, clock
}

func items(t *testing.T, raw ...string) []model.Item {
	t.Helper()
	out := make([]model.Item, len(raw))
	for i, r := range raw {
		out[i] = model.ParseItem(i, json.RawMessage(r))
	}
	return out
}

func TestPushSameCreatesTwiceYieldsDistinctRecords(t *testing.T) {
	svc, repo, _, _ := newTestSync()
	ctx := context.Background()
	batch := items(t, `{"type":"note","content":"a"}`, `{"type":"note","content":"b"}`)

	first, err := svc.Push(ctx, 1, "", batch)
	require.NoError(t, err)
	second, err := svc.Push(ctx, 1, "", batch)
	require.NoError(t, err)

	assert.Equal(t, 2, first.CreatedCount)
	assert.Equal(t, 2, second.CreatedCount)
	ids := map[int64]bool{}
	for _, r := range append(first.UpdatedData, second.UpdatedData...) {
		ids[r.ID] = true
	}
	assert.Len(t, ids, 4)

	all, err := repo.ListByOwner(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestPushPartialUpdateKeepsOmittedFields(t *testing.T) {
	svc, repo, _, clock := newTestSync()
	ctx := context.Background()
	orig, err := repo.Insert(ctx, 1, appdata.CreateInput{Kind: "note", Body: "body"}, clock.Now())
	require.NoError(t, err)

	res, err := svc.Push(ctx, 1, "", []model.Item{
		model.ParseItem(0, json.RawMessage(`{"id":`+itoa(orig.ID)+`,"title":"X"}`)),
	})
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Equal(t, 1, res.UpdatedCount)

	got, err := repo.Get(ctx, orig.ID)
	require.NoError(t, err)
	assert.Equal(t, "X", *got.Title)
	assert.Equal(t, "note", got.Kind)
	assert.Equal(t, "body", got.Body)
	assert.True(t, got.UpdatedAt.After(orig.UpdatedAt))
	assert.Equal(t, orig.CreatedAt, got.CreatedAt)
}

func TestPushNullTitleClearsIt(t *testing.T) {
	svc, repo, _, clock := newTestSync()
	ctx := context.Background()
	title := "keep?"
	orig, err := repo.Insert(ctx, 1, appdata.CreateInput{Kind: "note", Title: &title, Body: "b"}, clock.Now())
	require.NoError(t, err)

	res, err := svc.Push(ctx, 1, "", items(t, `{"id":`+itoa(orig.ID)+`,"title":null}`))
	require.NoError(t, err)
	require.Equal(t, 1, res.UpdatedCount)

	got, _ := repo.Get(ctx, orig.ID)
	assert.Nil(t, got.Title)
}

func TestPushIgnoresClientUpdatedAt(t *testing.T) {
	svc, repo, _, clock := newTestSync()
	ctx := context.Background()
	orig, err := repo.Insert(ctx, 1, appdata.CreateInput{Kind: "note", Body: "b"}, clock.Now())
	require.NoError(t, err)

	res, err := svc.Push(ctx, 1, "", items(t, `{"id":`+itoa(orig.ID)+`,"content":"c","updated_at":"1999-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	require.Len(t, res.UpdatedData, 1)
	assert.True(t, res.UpdatedData[0].UpdatedAt.After(orig.UpdatedAt))
}

func TestOwnershipIsolation(t *testing.T) {
	svc, repo, pub, clock := newTestSync()
	ctx := context.Background()
	theirs, err := repo.Insert(ctx, 1, appdata.CreateInput{Kind: "note", Body: "secret"}, clock.Now())
	require.NoError(t, err)

	res, err := svc.Push(ctx, 2, "", items(t, `{"id":`+itoa(theirs.ID)+`,"content":"overwritten"}`))
	require.NoError(t, err)
	assert.Equal(t, 0, res.UpdatedCount)
	assert.Equal(t, []string{"item " + itoa(theirs.ID) + " not owned by user"}, res.Errors)
	assert.Empty(t, pub.Events(), "nothing applied, nothing published")

	got, _ := repo.Get(ctx, theirs.ID)
	assert.Equal(t, "secret", got.Body)
	assert.Equal(t, theirs.Version, got.Version)

	report, err := svc.DetectConflicts(ctx, 2, items(t, `{"id":`+itoa(theirs.ID)+`,"updated_at":"2000-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.False(t, report.HasConflicts, "other owners' records are invisible")
}

func TestPartialBatchFailure(t *testing.T) {
	svc, _, _, _ := newTestSync()
	ctx := context.Background()

	res, err := svc.Push(ctx, 1, "", items(t,
		`{"type":"note","content":"1"}`,
		`{"type":"note","content":"2"}`,
		`{"id":9999,"content":"ghost"}`,
		`{"type":"task","content":"3"}`,
	))
	require.NoError(t, err)
	assert.Equal(t, 3, res.CreatedCount)
	assert.Equal(t, []string{"item 9999 not found"}, res.Errors)

	pulled, err := svc.Pull(ctx, 1, "", "")
	require.NoError(t, err)
	assert.Equal(t, 3, pulled.Count)
}

func TestPushItemErrors(t *testing.T) {
	svc, repo, _, clock := newTestSync()
	ctx := context.Background()
	rec, err := repo.Insert(ctx, 1, appdata.CreateInput{Kind: "note", Body: "b"}, clock.Now())
	require.NoError(t, err)

	res, err := svc.Push(ctx, 1, "", items(t,
		`{"title":"no type"}`,
		`{"type":"note"}`,
		`{"type":"note","content":null}`,
		`{"id":`+itoa(rec.ID)+`,"type":null}`,
		`"not an object"`,
		`{"type":"note","content":"ok"}`,
	))
	require.NoError(t, err)
	assert.Equal(t, 1, res.CreatedCount)
	assert.Equal(t, []string{
		"item 0: missing required field type",
		"item 1: missing required field content",
		"item 2: missing required field content",
		"error processing item " + itoa(rec.ID) + ": type cannot be null",
		"error processing item 4: invalid item",
	}, res.Errors)
}

type flakyStore struct {
	repository.Store
	failOn string
}

func (f *flakyStore) Insert(ctx context.Context, ownerID int64, in appdata.CreateInput, now time.Time) (*appdata.Record, error) {
	if in.Body == f.failOn {
		return nil, apperr.Storage("failed to insert record", errors.New("deadlock"))
	}
	return f.Store.Insert(ctx, ownerID, in, now)
}

type panickyStore struct{ repository.Store }

func (panickyStore) Get(context.Context, int64) (*appdata.Record, error) { panic("boom") }

func TestStorageFailureOnOneItemContinues(t *testing.T) {
	svc, repo, _, _ := newTestSync()
	svc.Repo = &flakyStore{Store: repo, failOn: "bad"}

	res, err := svc.Push(context.Background(), 1, "", items(t,
		`{"type":"note","content":"bad"}`,
		`{"type":"note","content":"good"}`,
	))
	require.NoError(t, err)
	assert.Equal(t, 1, res.CreatedCount)
	assert.Equal(t, []string{"error processing item 0: failed to insert record"}, res.Errors)
}

func TestPanicIsContainedToItem(t *testing.T) {
	svc, repo, _, _ := newTestSync()
	svc.Repo = panickyStore{Store: repo}

	res, err := svc.Push(context.Background(), 1, "", items(t,
		`{"id":1,"content":"x"}`,
		`{"type":"note","content":"fine"}`,
	))
	require.NoError(t, err)
	assert.Equal(t, 1, res.CreatedCount)
	assert.Equal(t, []string{"error processing item 1: unexpected failure"}, res.Errors)
}

func TestPullCursor(t *testing.T) {
	svc, repo, _, _ := newTestSync()
	ctx := context.Background()
	t1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t2, t3 := t1.Add(time.Minute), t1.Add(2*time.Minute)

	_, err := repo.Insert(ctx, 1, appdata.CreateInput{Kind: "note", Body: "1"}, t1)
	require.NoError(t, err)
	r2, err := repo.Insert(ctx, 1, appdata.CreateInput{Kind: "note", Body: "2"}, t2)
	require.NoError(t, err)
	r3, err := repo.Insert(ctx, 1, appdata.CreateInput{Kind: "note", Body: "3"}, t3)
	require.NoError(t, err)

	res, err := svc.Pull(ctx, 1, timex.Format(t1), "")
	require.NoError(t, err)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, r3.ID, res.Data[0].ID)
	assert.Equal(t, r2.ID, res.Data[1].ID)

	res, err = svc.Pull(ctx, 1, "2024-01-01T10:00:00", "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count, "zone-less cursor is read as UTC")

	res, err = svc.Pull(ctx, 1, "garbage", "")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
}

func TestPullTimestampIsTakenBeforeRead(t *testing.T) {
	svc, repo, _, clock := newTestSync()
	ctx := context.Background()

	res, err := svc.Pull(ctx, 1, "", "")
	require.NoError(t, err)

	// A write landing after the pull started is visible to the next pull.
	rec, err := repo.Insert(ctx, 1, appdata.CreateInput{Kind: "note", Body: "late"}, clock.Now())
	require.NoError(t, err)

	next, err := svc.Pull(ctx, 1, res.Timestamp, "")
	require.NoError(t, err)
	require.Equal(t, 1, next.Count)
	assert.Equal(t, rec.ID, next.Data[0].ID)
}

func TestPullSinceVersion(t *testing.T) {
	svc, repo, _, clock := newTestSync()
	ctx := context.Background()
	now := clock.Now()

	a, _ := repo.Insert(ctx, 1, appdata.CreateInput{Kind: "note", Body: "a"}, now)
	b, _ := repo.Insert(ctx, 1, appdata.CreateInput{Kind: "note", Body: "b"}, now)

	res, err := svc.Pull(ctx, 1, "2100-01-01T00:00:00Z", itoa(a.Version))
	require.NoError(t, err)
	require.Equal(t, 1, res.Count, "since_version takes precedence")
	assert.Equal(t, b.ID, res.Data[0].ID)
}

func TestForceResyncBumpsCursor(t *testing.T) {
	svc, repo, pub, clock := newTestSync()
	ctx := context.Background()
	for _, body := range []string{"a", "b", "c"} {
		_, err := repo.Insert(ctx, 1, appdata.CreateInput{Kind: "note", Body: body}, clock.Now())
		require.NoError(t, err)
	}
	_, err := repo.Insert(ctx, 2, appdata.CreateInput{Kind: "note", Body: "other"}, clock.Now())
	require.NoError(t, err)

	cursor, err := svc.Pull(ctx, 1, "", "")
	require.NoError(t, err)

	before, err := svc.Pull(ctx, 1, cursor.Timestamp, "")
	require.NoError(t, err)
	assert.Equal(t, 0, before.Count)

	force, err := svc.ForceFullResync(ctx, 1, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, 3, force.TotalSynced)
	assert.Equal(t, model.SyncTypeForceFull, force.SyncType)

	after, err := svc.Pull(ctx, 1, cursor.Timestamp, "")
	require.NoError(t, err)
	assert.Equal(t, 3, after.Count)

	evs := pub.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.ForceSyncCompleted, evs[0].Kind)
	assert.Equal(t, "sess-a", evs[0].OriginSession)
	notice := evs[0].Payload.(model.ForceSyncNotice)
	assert.Equal(t, 3, notice.TotalSynced)
}

func TestConflictDetection(t *testing.T) {
	svc, repo, _, _ := newTestSync()
	ctx := context.Background()
	t2 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rec, err := repo.Insert(ctx, 1, appdata.CreateInput{Kind: "note", Body: "server"}, t2)
	require.NoError(t, err)
	id := itoa(rec.ID)

	t1 := timex.Format(t2.Add(-time.Minute))
	report, err := svc.DetectConflicts(ctx, 1, items(t, `{"id":`+id+`,"content":"client","updated_at":"`+t1+`"}`))
	require.NoError(t, err)
	require.Equal(t, 1, report.ConflictCount)
	assert.True(t, report.HasConflicts)
	c := report.Conflicts[0]
	assert.Equal(t, rec.ID, c.ItemID)
	assert.Equal(t, model.ConflictTimestampMismatch, c.ConflictType)
	assert.Equal(t, "server", c.ServerVersion.Body)
	assert.JSONEq(t, `{"id":`+id+`,"content":"client","updated_at":"`+t1+`"}`, string(c.ClientVersion))

	t3 := timex.Format(t2.Add(time.Minute))
	report, err = svc.DetectConflicts(ctx, 1, items(t, `{"id":`+id+`,"updated_at":"`+t3+`"}`))
	require.NoError(t, err)
	assert.Equal(t, 0, report.ConflictCount)

	report, err = svc.DetectConflicts(ctx, 1, items(t, `{"id":`+id+`,"updated_at":"`+timex.Format(t2)+`"}`))
	require.NoError(t, err)
	assert.Equal(t, 0, report.ConflictCount, "equal timestamps are not a conflict")

	got, _ := repo.Get(ctx, rec.ID)
	assert.Equal(t, rec.Version, got.Version, "detection never writes")
}

func TestConflictInvalidTimestamp(t *testing.T) {
	svc, repo, _, clock := newTestSync()
	ctx := context.Background()
	rec, err := repo.Insert(ctx, 1, appdata.CreateInput{Kind: "note", Body: "b"}, clock.Now())
	require.NoError(t, err)
	batch := items(t,
		`{"id":`+itoa(rec.ID)+`}`,
		`{"id":`+itoa(rec.ID)+`,"updated_at":"not a time"}`,
		`{"type":"note","content":"new"}`,
		`{"id":424242,"updated_at":"2000-01-01T00:00:00Z"}`,
	)

	report, err := svc.DetectConflicts(ctx, 1, batch)
	require.NoError(t, err)
	require.Equal(t, 2, report.ConflictCount)
	for _, c := range report.Conflicts {
		assert.Equal(t, model.ConflictInvalidTimestamp, c.ConflictType)
	}

	svc.LenientTimestamps = true
	report, err = svc.DetectConflicts(ctx, 1, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, report.ConflictCount)
}

func TestConflictNonStringTimestamp(t *testing.T) {
	svc, repo, _, clock := newTestSync()
	ctx := context.Background()
	rec, err := repo.Insert(ctx, 1, appdata.CreateInput{Kind: "note", Body: "b"}, clock.Now())
	require.NoError(t, err)
	id := itoa(rec.ID)

	batch := items(t,
		`{"id":`+id+`,"updated_at":12345}`,
		`{"id":`+id+`,"updated_at":"garbage"}`,
		`{"id":`+id+`,"type":7,"updated_at":{"at":1}}`,
	)
	report, err := svc.DetectConflicts(ctx, 1, batch)
	require.NoError(t, err)
	require.Equal(t, 3, report.ConflictCount)
	for _, c := range report.Conflicts {
		assert.Equal(t, rec.ID, c.ItemID)
		assert.Equal(t, model.ConflictInvalidTimestamp, c.ConflictType)
	}
	assert.JSONEq(t, `{"id":`+id+`,"updated_at":12345}`, string(report.Conflicts[0].ClientVersion))

	svc.LenientTimestamps = true
	report, err = svc.DetectConflicts(ctx, 1, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, report.ConflictCount)
}

func TestStringIDs(t *testing.T) {
	svc, repo, _, clock := newTestSync()
	ctx := context.Background()
	rec, err := repo.Insert(ctx, 1, appdata.CreateInput{Kind: "note", Body: "b"}, clock.Now())
	require.NoError(t, err)
	id := itoa(rec.ID)

	res, err := svc.Push(ctx, 1, "", items(t,
		`{"id":"`+id+`","content":"by string id"}`,
		`{"id":"abc","content":"x"}`,
	))
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)
	assert.Equal(t, []string{"error processing item 1: invalid item"}, res.Errors)

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "by string id", got.Body)

	report, err := svc.DetectConflicts(ctx, 1, items(t, `{"id":"`+id+`","updated_at":"2000-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	require.Equal(t, 1, report.ConflictCount)
	assert.Equal(t, model.ConflictTimestampMismatch, report.Conflicts[0].ConflictType)
}

func TestStatus(t *testing.T) {
	svc, repo, _, _ := newTestSync()
	ctx := context.Background()

	st, err := svc.Status(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusEmpty, st.SyncStatus)
	assert.Nil(t, st.LastActivity)
	assert.Empty(t, st.TypeStatistics)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, kind := range []string{"note", "note", "task"} {
		_, err := repo.Insert(ctx, 1, appdata.CreateInput{Kind: kind, Body: "x"}, t0.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}

	st, err = svc.Status(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.UserID)
	assert.Equal(t, 3, st.TotalItems)
	assert.Equal(t, model.StatusActive, st.SyncStatus)
	assert.Equal(t, map[string]int{"note": 2, "task": 1}, st.TypeStatistics)
	require.NotNil(t, st.LastActivity)
	assert.Equal(t, timex.Format(t0.Add(2*time.Hour)), *st.LastActivity)
}

func TestPushPublishesAppliedRecords(t *testing.T) {
	svc, _, pub, _ := newTestSync()

	res, err := svc.Push(context.Background(), 1, "sess-b", items(t, `{"type":"note","content":"a"}`))
	require.NoError(t, err)

	evs := pub.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.DataUpdated, evs[0].Kind)
	assert.Equal(t, "sess-b", evs[0].OriginSession)
	notice := evs[0].Payload.(model.DataUpdatedNotice)
	assert.Equal(t, res.Timestamp, notice.Timestamp)
	assert.Len(t, notice.Data, 1)
}

func TestPushBatchLimit(t *testing.T) {
	svc, _, _, _ := newTestSync()
	svc.BatchSize = 1

	_, err := svc.Push(context.Background(), 1, "", items(t, `{"type":"a","content":"1"}`, `{"type":"a","content":"2"}`))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
