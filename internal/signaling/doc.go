// Package signaling implements the room/session coordination core of the
// relay: pairing connections into capacity-2 rooms, forwarding call
// negotiation payloads between roommates, presence notifications, and idle
// eviction.
//
// The relay is blind: offers, answers, ICE candidates and profiles are opaque
// JSON blobs that are forwarded verbatim, tagged with the sender's
// server-assigned identity.
package signaling
