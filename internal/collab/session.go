package collab

import "github.com/google/uuid"

// Session is the server-side record of one connected editor. It is created by
// Service.Connect when the transport accepts a connection and torn down by
// Service.Disconnect when the channel closes.
//
// The identity and roomID fields are only touched from the connection's own
// message-processing goroutine, so they carry no lock of their own; the room
// mutex serializes everything that fans events into the outbound channel.
type Session struct {
	id       string
	identity string
	roomID   string
	outbound chan []byte
	closed   bool
}

func newSession(buffer int) *Session {
	return &Session{
		id:       uuid.NewString(),
		outbound: make(chan []byte, buffer),
	}
}

// ID returns the server-assigned session identifier used in logs. It is
// distinct from the client-supplied identity token.
func (s *Session) ID() string {
	return s.id
}

// Identity returns the bound identity token, or empty if the client has not
// yet supplied one.
func (s *Session) Identity() string {
	return s.identity
}

// Outbound exposes the stream of encoded events the transport must deliver to
// the peer. The channel is closed by Service.Disconnect.
func (s *Session) Outbound() <-chan []byte {
	return s.outbound
}

// deliver queues an encoded event without blocking. A peer that cannot drain
// its buffer loses events rather than stalling the room.
func (s *Session) deliver(data []byte) {
	select {
	case s.outbound <- data:
	default:
	}
}
