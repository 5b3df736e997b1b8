package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// EventType tags the wire envelope. Client->server and server->client events
// share one namespace; a few (call:accepted, ice:candidate, call:ended) flow
// in both directions.
type EventType string

const (
	// Client -> server.
	EventRoomJoin     EventType = "room:join"
	EventOutgoingCall EventType = "outgoing:call"
	EventCallAccepted EventType = "call:accepted"
	EventICECandidate EventType = "ice:candidate"
	EventCallEnded    EventType = "call:ended"
	EventActivityPing EventType = "activity-ping"

	// Server -> client.
	EventConnectionReady  EventType = "connection:ready"
	EventRoomJoined       EventType = "room:joined"
	EventUserJoined       EventType = "user:joined"
	EventUserLeft         EventType = "user:left"
	EventUserDisconnected EventType = "user:disconnected"
	EventIncomingCall     EventType = "incoming:call"
	EventError            EventType = "error"
	EventServerShutdown   EventType = "server:shutdown"
)

// Envelope is the wire frame: an event tag plus an event-specific payload.
//
// Payload blobs that originate from clients (offer, answer, candidate,
// profile) stay json.RawMessage all the way through; the relay never decodes
// them.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ParseEnvelope decodes an inbound frame. Unknown fields are rejected at the
// envelope level so garbage frames fail fast; payloads are decoded lazily by
// the event handler.
func ParseEnvelope(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("missing event")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Envelope{}, fmt.Errorf("unexpected trailing data")
	}
	return env, nil
}

// NewEnvelope builds an outbound frame. Payload types in this package always
// marshal; a failure here means a programming error, so it degrades to an
// empty payload rather than panicking mid-relay.
func NewEnvelope(event EventType, payload any) Envelope {
	if payload == nil {
		return Envelope{Event: event}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{Event: event}
	}
	return Envelope{Event: event, Data: data}
}

// Client -> server payloads.

type JoinRequest struct {
	RoomID  string          `json:"roomId"`
	Profile json.RawMessage `json:"profile,omitempty"`
}

type CallRequest struct {
	To    string          `json:"to"`
	Offer json.RawMessage `json:"offer,omitempty"`
}

type AcceptRequest struct {
	To     string          `json:"to"`
	Answer json.RawMessage `json:"answer,omitempty"`
}

type CandidateRequest struct {
	Candidate json.RawMessage `json:"candidate,omitempty"`
	To        string          `json:"to,omitempty"`
}

type EndRequest struct {
	To string `json:"to,omitempty"`
}

// Server -> client payloads.

type ConnectionReady struct {
	SocketID string `json:"socketId"`
}

// UserInfo is one member in a room snapshot.
type UserInfo struct {
	SocketID string          `json:"socketId"`
	Profile  json.RawMessage `json:"profile,omitempty"`
}

// RoomInfo is the membership snapshot attached to join notifications.
type RoomInfo struct {
	RoomID    string     `json:"roomId"`
	Users     []UserInfo `json:"users"`
	UserCount int        `json:"userCount"`
}

type RoomJoined struct {
	RoomInfo RoomInfo `json:"roomInfo"`
}

type UserJoined struct {
	SocketID string          `json:"socketId"`
	Profile  json.RawMessage `json:"profile,omitempty"`
	RoomID   string          `json:"roomId"`
	RoomInfo RoomInfo        `json:"roomInfo"`
}

type UserLeft struct {
	SocketID  string `json:"socketId"`
	RoomID    string `json:"roomId"`
	UserCount int    `json:"userCount"`
}

type UserDisconnected struct {
	SocketID  string `json:"socketId"`
	RoomID    string `json:"roomId"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

type IncomingCall struct {
	From      string          `json:"from"`
	Offer     json.RawMessage `json:"offer"`
	Timestamp int64           `json:"timestamp"`
}

type CallAccepted struct {
	From      string          `json:"from"`
	Answer    json.RawMessage `json:"answer"`
	Timestamp int64           `json:"timestamp"`
}

type CandidateOut struct {
	Candidate json.RawMessage `json:"candidate"`
	From      string          `json:"from"`
}

type CallEnded struct {
	From      string `json:"from"`
	Timestamp int64  `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type ServerShutdown struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}
