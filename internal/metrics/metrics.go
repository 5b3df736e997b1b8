package metrics

import "sync"

// Counter names used across the signaling relay.
const (
	ConnectionsOpened = "connections_opened"
	ConnectionsClosed = "connections_closed"
	ConnectionsReaped = "connections_reaped"

	RoomsCreated = "rooms_created"
	RoomsDeleted = "rooms_deleted"
	RoomJoins    = "room_joins"

	CallsRelayed      = "calls_relayed"
	AnswersRelayed    = "answers_relayed"
	CandidatesRelayed = "candidates_relayed"

	// RelayDropped counts forwards that were silently discarded because the
	// destination connection was no longer tracked (teardown races).
	RelayDropped = "relay_dropped"

	// CandidateDropped counts ICE candidates that degraded to a no-op
	// (missing destination or null candidate). Observable only here, never
	// reported to clients.
	CandidateDropped = "ice_candidate_dropped"

	ErrInvalidRoom        = "error_invalid_room"
	ErrRoomFull           = "error_room_full"
	ErrPeersNotColocated  = "error_peers_not_colocated"
	ErrInvalidCallParams  = "error_invalid_call_params"
	DropReasonRateLimited = "rate_limited"
	DropReasonQuota       = "too_many_connections"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// The relay is expected to plug into a real metrics backend eventually; this
// type keeps the signaling logic testable while still exposing counters via
// the Prometheus text handler.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	m.mu.Lock()
	if m.m == nil {
		m.m = make(map[string]uint64)
	}
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
