// Package rooms implements the room table: the mapping from normalized room
// identifiers to their (at most two) member connections.
//
// The table does no locking of its own. All mutation is funneled through the
// signaling hub, which serializes access behind a single mutex; see the
// concurrency notes on signaling.Hub.
package rooms

import (
	"errors"
	"sort"
	"strings"
)

// Capacity is the maximum number of members per room. A room pairs exactly
// two peers for a direct call; there is no N-way conferencing here.
const Capacity = 2

var (
	// ErrInvalidRoom is returned for empty (after trimming) room identifiers.
	ErrInvalidRoom = errors.New("rooms: invalid room id")

	// ErrRoomFull is returned when a join would exceed Capacity. Rejoining a
	// room the connection is already a member of never fails with this.
	ErrRoomFull = errors.New("rooms: room full")
)

// Normalize maps a raw client-supplied room identifier onto the canonical
// room key: trimmed and lowercased. Room ids differing only by case or
// surrounding whitespace resolve to the same room.
func Normalize(raw string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	if id == "" {
		return "", ErrInvalidRoom
	}
	return id, nil
}

// Table maps room ids to member sets and tracks which room each connection
// is in. It holds connection identifiers only; connection records themselves
// are owned by the registry.
type Table struct {
	members map[string]map[string]struct{} // room id -> member set
	byConn  map[string]string              // connection id -> room id
}

func NewTable() *Table {
	return &Table{
		members: make(map[string]map[string]struct{}),
		byConn:  make(map[string]string),
	}
}

// Join adds the connection to the room named by rawRoomID.
//
// If the connection is currently in a different room it is removed from that
// room first; a connection is never in two rooms at once. Joining a room the
// connection is already in is an idempotent success. The returned member set
// includes the joining connection.
//
// When prev.RoomID is non-empty the connection was implicitly removed from
// that room and prev carries what Leave would have returned, so the caller
// can notify the vacated room's survivors.
func (t *Table) Join(connID, rawRoomID string) (roomID string, memberIDs []string, prev LeaveResult, err error) {
	roomID, err = Normalize(rawRoomID)
	if err != nil {
		return "", nil, LeaveResult{}, err
	}

	if current, ok := t.byConn[connID]; ok {
		if current == roomID {
			return roomID, t.Members(roomID), LeaveResult{}, nil
		}
		prev = t.Leave(connID)
	}

	set, ok := t.members[roomID]
	if ok && len(set) >= Capacity {
		return "", nil, prev, ErrRoomFull
	}
	if !ok {
		set = make(map[string]struct{}, Capacity)
		t.members[roomID] = set
	}
	set[connID] = struct{}{}
	t.byConn[connID] = roomID

	return roomID, t.Members(roomID), prev, nil
}

// LeaveResult describes the outcome of removing a connection from its room.
type LeaveResult struct {
	// RoomID is the vacated room, or "" if the connection was not in a room.
	RoomID string

	// Remaining holds the surviving members (possibly empty).
	Remaining []string

	// Deleted is true when the room became empty and was removed.
	Deleted bool
}

// Leave removes the connection from whatever room it is in. It is a no-op
// (zero LeaveResult) for connections not in any room, and deletes the room
// entry once its member set is empty.
func (t *Table) Leave(connID string) LeaveResult {
	roomID, ok := t.byConn[connID]
	if !ok {
		return LeaveResult{}
	}
	delete(t.byConn, connID)

	set := t.members[roomID]
	delete(set, connID)
	if len(set) == 0 {
		delete(t.members, roomID)
		return LeaveResult{RoomID: roomID, Deleted: true}
	}
	return LeaveResult{RoomID: roomID, Remaining: t.Members(roomID)}
}

// RoomOf returns the room the connection is currently in.
func (t *Table) RoomOf(connID string) (string, bool) {
	roomID, ok := t.byConn[connID]
	return roomID, ok
}

// PeersOf returns the other members of the connection's current room, or nil
// if the connection is solo or not in a room.
func (t *Table) PeersOf(connID string) []string {
	roomID, ok := t.byConn[connID]
	if !ok {
		return nil
	}
	var peers []string
	for id := range t.members[roomID] {
		if id != connID {
			peers = append(peers, id)
		}
	}
	sort.Strings(peers)
	return peers
}

// SameRoom reports whether both connections are currently members of the
// same room.
func (t *Table) SameRoom(a, b string) bool {
	ra, ok := t.byConn[a]
	if !ok {
		return false
	}
	rb, ok := t.byConn[b]
	return ok && ra == rb
}

// Members returns the member ids of a room, sorted for determinism. The room
// id must already be normalized.
func (t *Table) Members(roomID string) []string {
	set, ok := t.members[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Exists reports whether a room is currently tracked.
func (t *Table) Exists(roomID string) bool {
	_, ok := t.members[roomID]
	return ok
}

// Len returns the number of tracked rooms.
func (t *Table) Len() int {
	return len(t.members)
}

// SweepEmpty removes any room whose member set is empty and returns how many
// were removed. Leave already deletes emptied rooms; this reconciles state
// after bulk eviction by the idle reaper.
func (t *Table) SweepEmpty() int {
	removed := 0
	for roomID, set := range t.members {
		if len(set) == 0 {
			delete(t.members, roomID)
			removed++
		}
	}
	return removed
}
