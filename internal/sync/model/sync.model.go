package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	appdata "appsync/internal/appdata/model"
	"appsync/pkg/apperr"
)

const (
	ConflictTimestampMismatch = "timestamp_mismatch"
	ConflictInvalidTimestamp  = "invalid_client_timestamp"

	SyncTypeForceFull = "force_full"

	StatusActive = "active"
	StatusEmpty  = "empty"
)

// Request is the body of POST /api/sync and POST /api/sync/conflicts. Items
// stay raw so one malformed item does not reject the batch.
type Request struct {
	Data []json.RawMessage `json:"data"`
}

func DecodeRequest(body []byte) ([]Item, error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, apperr.Validation("invalid sync payload")
	}
	items := make([]Item, len(req.Data))
	for i, raw := range req.Data {
		items[i] = ParseItem(i, raw)
	}
	return items, nil
}

// Item is one client-submitted record. A zero or absent id means "create".
// Fields are decoded one at a time so a bad value in one field still leaves
// the id usable for error reports and conflict checks.
type Item struct {
	Index    int
	Raw      json.RawMessage
	ParseErr error

	ID        appdata.Optional[int64]
	Kind      appdata.Optional[string]
	Title     appdata.Optional[string]
	Body      appdata.Optional[string]
	UpdatedAt appdata.Optional[string]
}

var errNotObject = errors.New("item is not a JSON object")

func ParseItem(index int, raw json.RawMessage) Item {
	item := Item{Index: index, Raw: raw}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		item.ParseErr = errNotObject
		return item
	}

	fail := func(name string, err error) {
		if item.ParseErr == nil {
			item.ParseErr = fmt.Errorf("%s: %w", name, err)
		}
	}
	if v, ok := fields["id"]; ok {
		id, err := decodeID(v)
		if err != nil {
			fail("id", err)
		} else {
			item.ID = id
		}
	}
	for _, f := range []struct {
		name string
		dst  *appdata.Optional[string]
	}{{"type", &item.Kind}, {"title", &item.Title}, {"content", &item.Body}} {
		if v, ok := fields[f.name]; ok {
			if err := json.Unmarshal(v, f.dst); err != nil {
				*f.dst = appdata.Optional[string]{}
				fail(f.name, err)
			}
		}
	}
	if v, ok := fields["updated_at"]; ok {
		if err := json.Unmarshal(v, &item.UpdatedAt); err != nil {
			// Sent but not a string: present with an unparsable value.
			item.UpdatedAt = appdata.Optional[string]{Set: true}
		}
	}
	return item
}

// decodeID accepts an integer or a string holding one.
func decodeID(v json.RawMessage) (appdata.Optional[int64], error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return appdata.Optional[int64]{}, fmt.Errorf("%q is not an integer", s)
		}
		return appdata.Some(n), nil
	}
	var id appdata.Optional[int64]
	err := json.Unmarshal(v, &id)
	return id, err
}

func (it Item) HasID() bool { return it.ID.Present() && it.ID.Value != 0 }

// Ref names the item in error messages: its id when it has one, else its index.
func (it Item) Ref() string {
	if it.HasID() {
		return fmt.Sprintf("%d", it.ID.Value)
	}
	return fmt.Sprintf("%d", it.Index)
}

func (it Item) Patch() appdata.Patch {
	return appdata.Patch{Kind: it.Kind, Title: it.Title, Body: it.Body}
}

// CreateInput returns the insert input, or the name of the first missing
// required field.
func (it Item) CreateInput() (appdata.CreateInput, string) {
	if !it.Kind.Present() {
		return appdata.CreateInput{}, "type"
	}
	if !it.Body.Present() {
		return appdata.CreateInput{}, "content"
	}
	in := appdata.CreateInput{Kind: it.Kind.Value, Body: it.Body.Value}
	if it.Title.Present() {
		t := it.Title.Value
		in.Title = &t
	}
	return in, ""
}

type ReconcileResult struct {
	Created []appdata.Record
	Updated []appdata.Record
	Errors  []string
}

type PullResult struct {
	Data      []appdata.Record `json:"data"`
	Timestamp string           `json:"timestamp"`
	Count     int              `json:"count"`
	UserID    int64            `json:"user_id"`
}

type PushResult struct {
	UpdatedData  []appdata.Record `json:"updated_data"`
	CreatedCount int              `json:"created_count"`
	UpdatedCount int              `json:"updated_count"`
	Errors       []string         `json:"errors"`
	Timestamp    string           `json:"timestamp"`
}

type ForceResult struct {
	Data        []appdata.Record `json:"data"`
	TotalSynced int              `json:"total_synced"`
	SyncType    string           `json:"sync_type"`
	Timestamp   string           `json:"timestamp"`
}

type Conflict struct {
	ItemID        int64           `json:"item_id"`
	ServerVersion appdata.Record  `json:"server_version"`
	ClientVersion json.RawMessage `json:"client_version"`
	ConflictType  string          `json:"conflict_type"`
}

type ConflictReport struct {
	Conflicts     []Conflict `json:"conflicts"`
	ConflictCount int        `json:"conflict_count"`
	HasConflicts  bool       `json:"has_conflicts"`
}

type Status struct {
	UserID         int64          `json:"user_id"`
	TotalItems     int            `json:"total_items"`
	LastActivity   *string        `json:"last_activity"`
	TypeStatistics map[string]int `json:"type_statistics"`
	SyncStatus     string         `json:"sync_status"`
	Timestamp      string         `json:"timestamp"`
}

// Notice payloads published to the owner's other sessions.
type DataUpdatedNotice struct {
	UserID    int64            `json:"user_id"`
	Data      []appdata.Record `json:"data"`
	Timestamp string           `json:"timestamp"`
}

type ForceSyncNotice struct {
	UserID      int64  `json:"user_id"`
	Timestamp   string `json:"timestamp"`
	TotalSynced int    `json:"total_synced"`
}
