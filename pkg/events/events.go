// Package events defines the change notifications published to an owner's
// connected sessions.
package events

import "sync"

type Kind string

const (
	DataCreated        Kind = "data_created"
	DataUpdated        Kind = "data_updated"
	DataDeleted        Kind = "data_deleted"
	ForceSyncCompleted Kind = "force_sync_completed"
	Connected          Kind = "connected"
)

// Publisher delivers payload to every session of ownerID except originSession.
// Publish must not block the caller.
type Publisher interface {
	Publish(ownerID int64, kind Kind, payload any, originSession string)
}

type nop struct{}

func (nop) Publish(int64, Kind, any, string) {}

// Nop discards every event.
var Nop Publisher = nop{}

type Event struct {
	OwnerID       int64
	Kind          Kind
	Payload       any
	OriginSession string
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ownerID int64, kind Kind, payload any, originSession string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{OwnerID: ownerID, Kind: kind, Payload: payload, OriginSession: originSession})
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
