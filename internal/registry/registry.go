// Package registry tracks live client connections and their activity
// timestamps. It owns Connection records exclusively; room membership is
// tracked separately by the room table, keyed by connection id.
//
// Like the room table, the registry does no locking of its own: the
// signaling hub serializes all access behind a single mutex.
package registry

import (
	"encoding/json"
	"sort"
	"time"
)

// Connection is the registry's record of one live transport session.
type Connection struct {
	ID         string
	CreatedAt  time.Time
	LastActive time.Time

	// Profile is an opaque blob supplied by the client at join time and
	// echoed back in room snapshots. Never inspected by the relay.
	Profile json.RawMessage
}

type Registry struct {
	conns map[string]*Connection
}

func New() *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
	}
}

// Register creates a record for id with now as both creation and
// last-activity time. No-op if the connection is already present.
func (r *Registry) Register(id string, now time.Time) {
	if _, ok := r.conns[id]; ok {
		return
	}
	r.conns[id] = &Connection{
		ID:         id,
		CreatedAt:  now,
		LastActive: now,
	}
}

// Touch updates the last-activity timestamp. Unknown ids are a silent no-op:
// activity pings racing a disconnect are expected.
func (r *Registry) Touch(id string, now time.Time) {
	if c, ok := r.conns[id]; ok {
		c.LastActive = now
	}
}

// SetProfile attaches the client-supplied profile blob. No-op for unknown ids.
func (r *Registry) SetProfile(id string, profile json.RawMessage) {
	if c, ok := r.conns[id]; ok {
		c.Profile = profile
	}
}

// Unregister removes the record. Idempotent.
func (r *Registry) Unregister(id string) {
	delete(r.conns, id)
}

// Get returns a copy of the connection record.
func (r *Registry) Get(id string) (Connection, bool) {
	c, ok := r.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

// IsStale reports whether the connection has been inactive for longer than
// threshold at time now. Unknown connections are not stale; they are simply
// not tracked.
func (r *Registry) IsStale(id string, now time.Time, threshold time.Duration) bool {
	c, ok := r.conns[id]
	if !ok {
		return false
	}
	return now.Sub(c.LastActive) > threshold
}

// IDs returns all tracked connection ids, sorted for determinism.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of tracked connections.
func (r *Registry) Len() int {
	return len(r.conns)
}
