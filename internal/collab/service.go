package collab

import (
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultSendBuffer = 32

// ServiceConfig carries the optional dependencies of a Service.
type ServiceConfig struct {
	// Clock supplies timestamps for lock acquisitions when the client omits
	// one. Defaults to time.Now.
	Clock func() time.Time
	// SendBuffer sizes each session's outbound channel.
	SendBuffer int
	Logger     *zap.Logger
}

// Service is the real-time collaboration engine. It owns the room registry
// and implements the full message protocol: join with snapshot replay, the
// field-lock state machine, last-write-wins state synchronization, presence,
// and cleanup on disconnect.
//
// The service is transport-agnostic: the websocket layer feeds raw frames
// into HandleMessage and drains each session's outbound channel. No method
// blocks on I/O; event delivery to a slow peer drops rather than stalls.
type Service struct {
	registry *Registry
	clock    func() time.Time
	buffer   int
	logger   *zap.Logger
}

// NewService constructs a Service with its own private registry.
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	buffer := cfg.SendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry: NewRegistry(),
		clock:    clock,
		buffer:   buffer,
		logger:   logger,
	}
}

// Connect registers a fresh session for a newly accepted connection.
func (s *Service) Connect() *Session {
	sess := newSession(s.buffer)
	s.logger.Debug("session connected", zap.String("session", sess.id))
	return sess
}

// Disconnect tears a session down: the session leaves its room, every lock
// held by its identity is released, and the outbound channel is closed.
// Calling it more than once is harmless.
func (s *Service) Disconnect(sess *Session) {
	if sess == nil || sess.closed {
		return
	}
	sess.closed = true
	if sess.roomID != "" {
		s.leave(sess)
	}
	close(sess.outbound)
	s.logger.Debug("session disconnected",
		zap.String("session", sess.id),
		zap.String("identity", sess.identity))
}

// HandleMessage processes one inbound frame for a session. Malformed frames
// and frames missing a type or room are dropped silently; there is no
// acknowledgement channel to report them on. Any accepted frame implicitly
// (re)joins the session to the room it names, which makes join idempotent and
// tolerant of out-of-order delivery.
func (s *Service) HandleMessage(sess *Session, raw []byte) {
	msg, err := DecodeMessage(raw)
	if err != nil {
		s.logger.Debug("dropping malformed frame",
			zap.String("session", sess.id), zap.Error(err))
		return
	}
	if msg.Type == "" || strings.TrimSpace(msg.Room) == "" {
		return
	}

	// The first identity token observed binds the session for life; later
	// tokens never rebind it.
	if sess.identity == "" {
		if token := msg.identityToken(); token != "" {
			sess.identity = token
		}
	}

	if sess.roomID != msg.Room {
		if sess.roomID != "" {
			s.leave(sess)
		}
		s.join(sess, msg.Room)
	}

	switch msg.Type {
	case MessageTypeJoin:
		// Membership and replay are handled above.
	case MessageTypeLock:
		s.lock(sess, msg)
	case MessageTypeUnlock:
		s.unlock(sess, msg)
	case MessageTypeState:
		s.setState(sess, msg)
	case MessageTypeClear:
		s.clear(sess, msg)
	default:
		s.logger.Debug("ignoring unknown message type",
			zap.String("session", sess.id), zap.String("type", msg.Type))
	}
}

// join adds the session to a room, creating it when absent, and replays the
// room's snapshot to the joiner: last state if any, then the lock table, then
// the joined acknowledgement. Everyone in the room, joiner included, then
// receives the new presence count.
func (s *Service) join(sess *Session, roomID string) {
	for {
		room, created := s.registry.getOrCreate(roomID)
		room.mu.Lock()
		if room.removed {
			// Lost a race with the leave that emptied this room; the
			// registry no longer maps it, so create a fresh one.
			room.mu.Unlock()
			continue
		}
		if created {
			s.logger.Info("room created", zap.String("room", roomID))
		}
		room.members[sess] = struct{}{}
		sess.roomID = roomID

		if room.lastState != nil {
			room.sendTo(sess, stateEvent{Type: EventTypeState, Room: roomID, Payload: room.lastState})
		}
		room.sendTo(sess, locksEvent{Type: EventTypeLocks, Room: roomID, Locks: room.locksSnapshot()})
		room.sendTo(sess, joinedEvent{Type: EventTypeJoined, Room: roomID})
		room.broadcast(presenceEvent{Type: EventTypePresence, Room: roomID, Count: len(room.members)}, nil)
		room.mu.Unlock()
		return
	}
}

// leave removes the session from its current room, releases the locks held
// by its identity, and removes the room when it drains empty. Remaining
// members are told about each released field individually and then receive a
// consolidated lock snapshot, so a client that missed events can still
// resynchronize; presence goes out last.
func (s *Service) leave(sess *Session) {
	roomID := sess.roomID
	sess.roomID = ""
	room, ok := s.registry.lookup(roomID)
	if !ok {
		return
	}

	room.mu.Lock()
	if _, member := room.members[sess]; !member {
		room.mu.Unlock()
		return
	}
	delete(room.members, sess)

	var released map[string]FieldLock
	if sess.identity != "" {
		released = room.releaseOwnedLocks(sess.identity)
	}

	if len(room.members) == 0 {
		room.removed = true
		s.registry.remove(roomID)
		room.mu.Unlock()
		s.logger.Info("room removed", zap.String("room", roomID))
		return
	}

	now := s.now()
	for fieldID, lock := range released {
		room.broadcast(lockEvent{Type: EventTypeUnlock, Room: roomID, FieldID: fieldID, By: lock.Owner, At: now}, nil)
	}
	if len(released) > 0 {
		room.broadcast(locksEvent{Type: EventTypeLocks, Room: roomID, Locks: room.locksSnapshot()}, nil)
	}
	room.broadcast(presenceEvent{Type: EventTypePresence, Room: roomID, Count: len(room.members)}, nil)
	room.mu.Unlock()
}

// lock attempts to claim exclusive edit rights on a field. A field that is
// free, or already held by the requester, is granted and announced to the
// other members; a field held by someone else answers the requester alone
// with lock-denied carrying the current holder.
func (s *Service) lock(sess *Session, msg Message) {
	if strings.TrimSpace(msg.FieldID) == "" || sess.identity == "" {
		return
	}
	room, ok := s.registry.lookup(sess.roomID)
	if !ok {
		return
	}
	at := msg.At
	if at == 0 {
		at = s.now()
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if existing, held := room.locks[msg.FieldID]; held && existing.Owner != sess.identity {
		room.sendTo(sess, lockEvent{Type: EventTypeLockDenied, Room: sess.roomID, FieldID: msg.FieldID, By: existing.Owner, At: existing.At})
		return
	}
	room.locks[msg.FieldID] = FieldLock{Owner: sess.identity, At: at}
	room.broadcast(lockEvent{Type: EventTypeLock, Room: sess.roomID, FieldID: msg.FieldID, By: sess.identity, At: at}, sess)
}

// unlock releases a field, but only for its current owner; anything else is
// a silent no-op, so a client can never release a lock it does not hold.
func (s *Service) unlock(sess *Session, msg Message) {
	if strings.TrimSpace(msg.FieldID) == "" || sess.identity == "" {
		return
	}
	room, ok := s.registry.lookup(sess.roomID)
	if !ok {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	existing, held := room.locks[msg.FieldID]
	if !held || existing.Owner != sess.identity {
		return
	}
	delete(room.locks, msg.FieldID)
	at := msg.At
	if at == 0 {
		at = s.now()
	}
	room.broadcast(lockEvent{Type: EventTypeUnlock, Room: sess.roomID, FieldID: msg.FieldID, By: sess.identity, At: at}, sess)
}

// setState replaces the room snapshot and fans it out to every other member.
// The payload is opaque but must be a JSON object; the sender never receives
// its own echo. Conflict policy is last-write-wins at whole-payload
// granularity.
func (s *Service) setState(sess *Session, msg Message) {
	if !isJSONObject(msg.Payload) {
		return
	}
	room, ok := s.registry.lookup(sess.roomID)
	if !ok {
		return
	}
	// The raw slice aliases the transport read buffer; keep our own copy.
	payload := append(json.RawMessage(nil), msg.Payload...)

	room.mu.Lock()
	defer room.mu.Unlock()
	room.lastState = payload
	room.broadcast(stateEvent{Type: EventTypeState, Room: sess.roomID, Payload: payload}, sess)
}

// clear resets the snapshot and empties the lock table in one step as seen by
// observers: every member receives the now-empty lock snapshot, and everyone
// but the requester receives the clear event.
func (s *Service) clear(sess *Session, msg Message) {
	room, ok := s.registry.lookup(sess.roomID)
	if !ok {
		return
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	room.lastState = nil
	room.locks = make(map[string]FieldLock)
	room.broadcast(locksEvent{Type: EventTypeLocks, Room: sess.roomID, Locks: map[string]FieldLock{}}, nil)
	room.broadcast(clearEvent{Type: EventTypeClear, Room: sess.roomID}, sess)
}

// RoomInfo is a read-only view of one room for monitoring surfaces.
type RoomInfo struct {
	ID          string               `json:"room"`
	MemberCount int                  `json:"count"`
	Locks       map[string]FieldLock `json:"locks"`
}

// RoomInfo reports the live member count and lock table of a room, or false
// when no such room exists.
func (s *Service) RoomInfo(roomID string) (RoomInfo, bool) {
	room, ok := s.registry.lookup(roomID)
	if !ok {
		return RoomInfo{}, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return RoomInfo{
		ID:          room.id,
		MemberCount: len(room.members),
		Locks:       room.locksSnapshot(),
	}, true
}

// RoomCount reports how many rooms currently exist.
func (s *Service) RoomCount() int {
	return s.registry.size()
}

func (s *Service) now() int64 {
	return s.clock().UnixMilli()
}
