package collab

import "sync"

// Registry maps room identifiers to live rooms. Rooms are created lazily on
// first join and removed as soon as the last member leaves, so a room exists
// here if and only if it has at least one member.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry constructs an empty registry. Each Service owns exactly one,
// so independent instances never share room state.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

func (r *Registry) getOrCreate(roomID string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		return room, false
	}
	room := newRoom(roomID)
	r.rooms[roomID] = room
	return room, true
}

func (r *Registry) lookup(roomID string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

func (r *Registry) remove(roomID string) {
	r.mu.Lock()
	delete(r.rooms, roomID)
	r.mu.Unlock()
}

// snapshot copies the current room set for iteration outside the registry
// lock, used by the lock janitor.
func (r *Registry) snapshot() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (r *Registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
