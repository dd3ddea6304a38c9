package collab

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// Client-to-server message types.
const (
	MessageTypeJoin   = "join"
	MessageTypeLock   = "lock"
	MessageTypeUnlock = "unlock"
	MessageTypeState  = "state"
	MessageTypeClear  = "clear"
)

// Server-to-client event types.
const (
	EventTypeJoined     = "joined"
	EventTypePresence   = "presence"
	EventTypeLock       = "lock"
	EventTypeUnlock     = "unlock"
	EventTypeLockDenied = "lock-denied"
	EventTypeLocks      = "locks"
	EventTypeState      = "state"
	EventTypeClear      = "clear"
)

var errEmptyMessage = errors.New("collab: empty message")

// Message is the inbound wire envelope. Every client frame is a JSON object
// carrying at least type and room; the remaining fields depend on the type.
type Message struct {
	Type     string          `json:"type"`
	Room     string          `json:"room"`
	FieldID  string          `json:"fieldId"`
	By       string          `json:"by"`
	ClientID string          `json:"clientId"`
	At       int64           `json:"at"`
	Payload  json.RawMessage `json:"payload"`
}

// DecodeMessage parses a raw frame into a Message. Callers treat any error as
// a malformed frame and drop it; the wire format has no acknowledgement
// channel to report it on.
func DecodeMessage(raw []byte) (Message, error) {
	var msg Message
	if len(bytes.TrimSpace(raw)) == 0 {
		return Message{}, errEmptyMessage
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// identityToken returns the client-supplied identity, preferring the short
// form used by edit messages over the long form used by join.
func (m Message) identityToken() string {
	if token := strings.TrimSpace(m.By); token != "" {
		return token
	}
	return strings.TrimSpace(m.ClientID)
}

// FieldLock records who holds exclusive edit rights on a single form field
// and when they acquired them (Unix milliseconds).
type FieldLock struct {
	Owner string `json:"owner"`
	At    int64  `json:"at"`
}

type joinedEvent struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type presenceEvent struct {
	Type  string `json:"type"`
	Room  string `json:"room"`
	Count int    `json:"count"`
}

type lockEvent struct {
	Type    string `json:"type"`
	Room    string `json:"room"`
	FieldID string `json:"fieldId"`
	By      string `json:"by"`
	At      int64  `json:"at"`
}

type locksEvent struct {
	Type  string               `json:"type"`
	Room  string               `json:"room"`
	Locks map[string]FieldLock `json:"locks"`
}

type stateEvent struct {
	Type    string          `json:"type"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

type clearEvent struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

// isJSONObject reports whether raw holds a JSON object. The room snapshot is
// opaque to this subsystem but must be a structured object, never a primitive
// or an array.
func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
