package collab

import (
	"encoding/json"
	"sync"
)

// Room is one shared form-editing session: the editors connected to it, the
// last full-document snapshot they produced, and the per-field lock table.
//
// Every room carries its own mutex; Service methods take it for the full
// duration of an operation so that no two handlers interleave their reads and
// writes on the same room, while unrelated rooms proceed independently.
type Room struct {
	id string

	mu        sync.Mutex
	members   map[*Session]struct{}
	lastState json.RawMessage
	locks     map[string]FieldLock
	removed   bool
}

func newRoom(id string) *Room {
	return &Room{
		id:      id,
		members: make(map[*Session]struct{}),
		locks:   make(map[string]FieldLock),
	}
}

// locksSnapshot copies the lock table for replay and snapshot events. The
// copy is never nil so an empty table serializes as {} rather than null.
// Callers must hold r.mu.
func (r *Room) locksSnapshot() map[string]FieldLock {
	snapshot := make(map[string]FieldLock, len(r.locks))
	for fieldID, lock := range r.locks {
		snapshot[fieldID] = lock
	}
	return snapshot
}

// releaseOwnedLocks removes every lock held by identity and returns the
// released entries keyed by field. Callers must hold r.mu.
func (r *Room) releaseOwnedLocks(identity string) map[string]FieldLock {
	released := make(map[string]FieldLock)
	for fieldID, lock := range r.locks {
		if lock.Owner == identity {
			released[fieldID] = lock
			delete(r.locks, fieldID)
		}
	}
	return released
}

// broadcast encodes event once and queues it to every member except the one
// given. A nil except delivers to the whole room. Callers must hold r.mu.
func (r *Room) broadcast(event any, except *Session) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	for member := range r.members {
		if member == except {
			continue
		}
		member.deliver(data)
	}
}

// sendTo encodes event and queues it to a single member. Callers must hold
// r.mu.
func (r *Room) sendTo(target *Session, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	target.deliver(data)
}
