package signaling

import (
	"errors"

	"github.com/pairwave/signaling-relay/internal/metrics"
	"github.com/pairwave/signaling-relay/internal/rooms"
)

// The recoverable, user-facing error taxonomy. Each maps to an `error` event
// sent back to the originating connection; none of them tears the connection
// down or affects other clients.
var (
	ErrInvalidRoom = rooms.ErrInvalidRoom
	ErrRoomFull    = rooms.ErrRoomFull

	// ErrPeersNotColocated rejects an offer/accept whose destination is not in
	// the sender's room.
	ErrPeersNotColocated = errors.New("signaling: peers not in the same room")

	// ErrInvalidCallParams rejects an offer/accept missing its destination or
	// negotiation payload.
	ErrInvalidCallParams = errors.New("signaling: missing call destination or payload")
)

// userMessage converts a taxonomy error into the client-facing message text.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRoom):
		return "Invalid room id"
	case errors.Is(err, ErrRoomFull):
		return "Room is full"
	case errors.Is(err, ErrPeersNotColocated):
		return "Peer is not in your room"
	case errors.Is(err, ErrInvalidCallParams):
		return "Missing call destination or payload"
	default:
		return "Internal error"
	}
}

// metricFor maps a taxonomy error to its counter name.
func metricFor(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRoom):
		return metrics.ErrInvalidRoom
	case errors.Is(err, ErrRoomFull):
		return metrics.ErrRoomFull
	case errors.Is(err, ErrPeersNotColocated):
		return metrics.ErrPeersNotColocated
	case errors.Is(err, ErrInvalidCallParams):
		return metrics.ErrInvalidCallParams
	default:
		return ""
	}
}
