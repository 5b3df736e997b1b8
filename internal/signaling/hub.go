package signaling

import (
	"encoding/json"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pairwave/signaling-relay/internal/metrics"
	"github.com/pairwave/signaling-relay/internal/ratelimit"
	"github.com/pairwave/signaling-relay/internal/registry"
	"github.com/pairwave/signaling-relay/internal/rooms"
)

// Disconnect reasons surfaced in user:disconnected notifications.
const (
	ReasonTransportClosed = "transport closed"
	ReasonIdleTimeout     = "idle timeout"
	ReasonServerShutdown  = "server shutdown"
)

// Sender is the hub's handle to one connection's outbound side.
//
// Enqueue must never block: delivery is fire-and-forget, and a peer with a
// full send queue simply misses the event. Close asks the transport to shut
// down; the transport then reports back via Hub.Disconnect.
type Sender interface {
	Enqueue(Envelope) bool
	Close()
}

// HubConfig wires the hub's runtime dependencies.
type HubConfig struct {
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Clock   ratelimit.Clock
}

// Hub owns all mutable signaling state: the connection registry, the room
// table, and the sender map. Every mutation funnels through a hub method and
// runs under one mutex, so message handlers are serialized exactly like the
// single-threaded event loop this design assumes. The idle reaper acquires
// the same boundary via Sweep.
type Hub struct {
	metrics *metrics.Metrics
	log     *slog.Logger
	clock   ratelimit.Clock

	mu      sync.Mutex
	reg     *registry.Registry
	rooms   *rooms.Table
	senders map[string]Sender
	closed  bool
}

func NewHub(cfg HubConfig) *Hub {
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = ratelimit.RealClock{}
	}
	return &Hub{
		metrics: m,
		log:     log,
		clock:   clock,
		reg:     registry.New(),
		rooms:   rooms.NewTable(),
		senders: make(map[string]Sender),
	}
}

func (h *Hub) Metrics() *metrics.Metrics { return h.metrics }

// Connect registers a new connection and tells it its server-assigned id.
func (h *Hub) Connect(id string, s Sender) {
	now := h.clock.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		s.Close()
		return
	}

	h.reg.Register(id, now)
	h.senders[id] = s
	h.metrics.Inc(metrics.ConnectionsOpened)
	h.log.Debug("connection registered", "socket_id", id)

	h.sendLocked(id, NewEnvelope(EventConnectionReady, ConnectionReady{SocketID: id}))
}

// Disconnect removes the connection from its room and the registry, notifying
// any surviving roommate. Idempotent: the transport may report a close that
// the reaper already processed.
func (h *Hub) Disconnect(id string, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnectLocked(id, reason)
}

func (h *Hub) disconnectLocked(id string, reason string) {
	if _, ok := h.reg.Get(id); !ok {
		delete(h.senders, id)
		return
	}

	res := h.rooms.Leave(id)
	h.notifyDepartureLocked(id, res, reason)

	h.reg.Unregister(id)
	delete(h.senders, id)
	h.metrics.Inc(metrics.ConnectionsClosed)
	h.log.Debug("connection removed", "socket_id", id, "reason", reason)
}

// ActiveConnections returns the number of registered connections.
func (h *Hub) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reg.Len()
}

// Handle dispatches one inbound frame from the identified connection.
//
// Internal faults are caught here: a panic while handling one client's
// message is logged and converted to an error event for that client alone.
func (h *Hub) Handle(id string, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error("panic in signaling handler",
				"socket_id", id, "recover", rec, "stack", string(debug.Stack()))
			h.mu.Lock()
			h.sendErrorLocked(id, "Internal error")
			h.mu.Unlock()
		}
	}()

	env, err := ParseEnvelope(data)
	if err != nil {
		h.mu.Lock()
		h.sendErrorLocked(id, "Malformed message")
		h.mu.Unlock()
		return
	}

	now := h.clock.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	// Every inbound frame counts as activity.
	h.reg.Touch(id, now)

	switch env.Event {
	case EventRoomJoin:
		h.handleJoinLocked(id, env.Data)
	case EventOutgoingCall:
		h.handleCallLocked(id, env.Data, now)
	case EventCallAccepted:
		h.handleAcceptLocked(id, env.Data, now)
	case EventICECandidate:
		h.handleCandidateLocked(id, env.Data)
	case EventCallEnded:
		h.handleEndLocked(id, env.Data, now)
	case EventActivityPing:
		// Touch above is the whole point.
	default:
		h.sendErrorLocked(id, "Unknown event")
	}
}

func (h *Hub) handleJoinLocked(id string, data []byte) {
	var req JoinRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.failLocked(id, ErrInvalidRoom)
		return
	}

	curRoom, inRoom := h.rooms.RoomOf(id)

	roomID, members, prev, err := h.rooms.Join(id, req.RoomID)
	if err != nil {
		// A failed join may still have vacated the previous room (the implicit
		// leave runs before the capacity check); tell its survivors.
		h.notifyLeftLocked(id, prev)
		h.failLocked(id, err)
		return
	}

	if len(req.Profile) > 0 {
		h.reg.SetProfile(id, req.Profile)
	}
	h.notifyLeftLocked(id, prev)

	rejoin := inRoom && curRoom == roomID

	info := h.roomInfoLocked(roomID)
	h.sendLocked(id, NewEnvelope(EventRoomJoined, RoomJoined{RoomInfo: info}))
	if rejoin {
		return
	}

	h.metrics.Inc(metrics.RoomJoins)
	if len(members) == 1 {
		h.metrics.Inc(metrics.RoomsCreated)
	}
	h.log.Info("room joined", "socket_id", id, "room_id", roomID, "user_count", len(members))

	joiner, _ := h.reg.Get(id)
	for _, peer := range members {
		if peer == id {
			continue
		}
		h.sendLocked(peer, NewEnvelope(EventUserJoined, UserJoined{
			SocketID: id,
			Profile:  joiner.Profile,
			RoomID:   roomID,
			RoomInfo: info,
		}))
	}
}

func (h *Hub) handleCallLocked(id string, data []byte, now time.Time) {
	var req CallRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.failLocked(id, ErrInvalidCallParams)
		return
	}
	if req.To == "" || blobAbsent(req.Offer) {
		h.failLocked(id, ErrInvalidCallParams)
		return
	}
	if !h.rooms.SameRoom(id, req.To) {
		h.failLocked(id, ErrPeersNotColocated)
		return
	}

	h.metrics.Inc(metrics.CallsRelayed)
	h.sendLocked(req.To, NewEnvelope(EventIncomingCall, IncomingCall{
		From:      id,
		Offer:     req.Offer,
		Timestamp: now.UnixMilli(),
	}))
}

func (h *Hub) handleAcceptLocked(id string, data []byte, now time.Time) {
	var req AcceptRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.failLocked(id, ErrInvalidCallParams)
		return
	}
	if req.To == "" || blobAbsent(req.Answer) {
		h.failLocked(id, ErrInvalidCallParams)
		return
	}
	if !h.rooms.SameRoom(id, req.To) {
		h.failLocked(id, ErrPeersNotColocated)
		return
	}

	h.metrics.Inc(metrics.AnswersRelayed)
	h.sendLocked(req.To, NewEnvelope(EventCallAccepted, CallAccepted{
		From:      id,
		Answer:    req.Answer,
		Timestamp: now.UnixMilli(),
	}))
}

// handleCandidateLocked forwards an ICE candidate best-effort. Candidates
// arrive in bursts during teardown races, so a missing destination or null
// candidate is a silent no-op, never an error event.
func (h *Hub) handleCandidateLocked(id string, data []byte) {
	var req CandidateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.metrics.Inc(metrics.CandidateDropped)
		return
	}
	if req.To == "" || blobAbsent(req.Candidate) {
		h.metrics.Inc(metrics.CandidateDropped)
		return
	}
	if _, ok := h.reg.Get(req.To); !ok {
		h.metrics.Inc(metrics.RelayDropped)
		return
	}

	h.metrics.Inc(metrics.CandidatesRelayed)
	h.sendLocked(req.To, NewEnvelope(EventICECandidate, CandidateOut{
		Candidate: req.Candidate,
		From:      id,
	}))
}

// handleEndLocked forwards call teardown best-effort; it always succeeds
// locally even when the destination is gone or absent.
func (h *Hub) handleEndLocked(id string, data []byte, now time.Time) {
	var req EndRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	if req.To == "" {
		return
	}
	if _, ok := h.reg.Get(req.To); !ok {
		h.metrics.Inc(metrics.RelayDropped)
		return
	}

	h.sendLocked(req.To, NewEnvelope(EventCallEnded, CallEnded{
		From:      id,
		Timestamp: now.UnixMilli(),
	}))
}

// Sweep evicts every connection whose last activity is older than threshold,
// notifying surviving roommates as if each had departed normally, then
// reconciles the room table. Returns the number of evicted connections.
func (h *Hub) Sweep(now time.Time, threshold time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	reaped := 0
	for _, id := range h.reg.IDs() {
		if !h.reg.IsStale(id, now, threshold) {
			continue
		}

		res := h.rooms.Leave(id)
		h.notifyDepartureLocked(id, res, ReasonIdleTimeout)

		h.reg.Unregister(id)
		if s, ok := h.senders[id]; ok {
			delete(h.senders, id)
			s.Close()
		}
		h.metrics.Inc(metrics.ConnectionsReaped)
		h.metrics.Inc(metrics.ConnectionsClosed)
		h.log.Info("idle connection reaped", "socket_id", id, "room_id", res.RoomID)
		reaped++
	}

	// Leave already deletes emptied rooms; this reconciles after bulk eviction.
	if n := h.rooms.SweepEmpty(); n > 0 {
		h.metrics.Add(metrics.RoomsDeleted, uint64(n))
	}

	return reaped
}

// Shutdown broadcasts a shutdown notice to every connection and closes them.
// Further Connects are rejected. No in-flight relay is delivered after this.
func (h *Hub) Shutdown(message string) {
	now := h.clock.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	notice := NewEnvelope(EventServerShutdown, ServerShutdown{
		Message:   message,
		Timestamp: now.UnixMilli(),
	})
	for id, s := range h.senders {
		s.Enqueue(notice)
		s.Close()
		delete(h.senders, id)
		h.reg.Unregister(id)
	}
}

// notifyDepartureLocked tells the survivors of a vacated room that id is
// gone, and records room deletion when the departure emptied it.
func (h *Hub) notifyDepartureLocked(id string, res rooms.LeaveResult, reason string) {
	if res.RoomID == "" {
		return
	}
	if res.Deleted {
		h.metrics.Inc(metrics.RoomsDeleted)
		h.log.Debug("room deleted", "room_id", res.RoomID)
		return
	}
	out := NewEnvelope(EventUserDisconnected, UserDisconnected{
		SocketID:  id,
		RoomID:    res.RoomID,
		Reason:    reason,
		Timestamp: h.clock.Now().UnixMilli(),
	})
	for _, peer := range res.Remaining {
		h.sendLocked(peer, out)
	}
}

// notifyLeftLocked tells the survivors of a room the connection implicitly
// left (room switch) that it is gone. Distinct from notifyDepartureLocked:
// the connection itself is still alive.
func (h *Hub) notifyLeftLocked(id string, res rooms.LeaveResult) {
	if res.RoomID == "" {
		return
	}
	if res.Deleted {
		h.metrics.Inc(metrics.RoomsDeleted)
		return
	}
	out := NewEnvelope(EventUserLeft, UserLeft{
		SocketID:  id,
		RoomID:    res.RoomID,
		UserCount: len(res.Remaining),
	})
	for _, peer := range res.Remaining {
		h.sendLocked(peer, out)
	}
}

// roomInfoLocked builds the membership snapshot sent with join notifications.
func (h *Hub) roomInfoLocked(roomID string) RoomInfo {
	members := h.rooms.Members(roomID)
	users := make([]UserInfo, 0, len(members))
	for _, m := range members {
		c, _ := h.reg.Get(m)
		users = append(users, UserInfo{SocketID: m, Profile: c.Profile})
	}
	return RoomInfo{RoomID: roomID, Users: users, UserCount: len(members)}
}

func (h *Hub) failLocked(id string, err error) {
	if name := metricFor(err); name != "" {
		h.metrics.Inc(name)
	}
	h.sendErrorLocked(id, userMessage(err))
}

func (h *Hub) sendErrorLocked(id string, message string) {
	h.sendLocked(id, NewEnvelope(EventError, ErrorPayload{Message: message}))
}

// sendLocked delivers fire-and-forget: a missing or saturated sender drops
// the event (there is no retry or backpressure in the relay).
func (h *Hub) sendLocked(id string, env Envelope) {
	s, ok := h.senders[id]
	if !ok {
		h.metrics.Inc(metrics.RelayDropped)
		return
	}
	if !s.Enqueue(env) {
		h.metrics.Inc(metrics.RelayDropped)
	}
}

// blobAbsent reports whether an opaque payload is missing for validation
// purposes: absent, empty, or JSON null (clients send null candidates at the
// end of trickle ICE).
func blobAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
