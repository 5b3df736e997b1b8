package registry

import (
	"testing"
	"time"
)

func TestRegister_IsIdempotentAndKeepsCreationTime(t *testing.T) {
	r := New()
	t0 := time.Unix(1000, 0)
	r.Register("c1", t0)

	r.Register("c1", t0.Add(time.Hour))
	c, ok := r.Get("c1")
	if !ok {
		t.Fatalf("Get(c1) not found")
	}
	if !c.CreatedAt.Equal(t0) {
		t.Fatalf("CreatedAt=%v, want %v (re-register must be a no-op)", c.CreatedAt, t0)
	}
	if r.Len() != 1 {
		t.Fatalf("Len=%d, want 1", r.Len())
	}
}

func TestTouch_UpdatesLastActive(t *testing.T) {
	r := New()
	t0 := time.Unix(1000, 0)
	r.Register("c1", t0)

	t1 := t0.Add(5 * time.Minute)
	r.Touch("c1", t1)

	c, _ := r.Get("c1")
	if !c.LastActive.Equal(t1) {
		t.Fatalf("LastActive=%v, want %v", c.LastActive, t1)
	}
	if !c.CreatedAt.Equal(t0) {
		t.Fatalf("CreatedAt=%v, want unchanged %v", c.CreatedAt, t0)
	}
}

func TestTouch_UnknownConnectionIsNoOp(t *testing.T) {
	r := New()
	// Must not panic or create a record: pings race disconnects.
	r.Touch("ghost", time.Unix(0, 0))
	if r.Len() != 0 {
		t.Fatalf("Len=%d after touching unknown id, want 0", r.Len())
	}
}

func TestUnregister_Idempotent(t *testing.T) {
	r := New()
	r.Register("c1", time.Unix(0, 0))
	r.Unregister("c1")
	r.Unregister("c1")
	if _, ok := r.Get("c1"); ok {
		t.Fatalf("c1 still tracked after Unregister")
	}
}

func TestIsStale(t *testing.T) {
	r := New()
	t0 := time.Unix(1000, 0)
	r.Register("c1", t0)

	threshold := 30 * time.Minute
	if r.IsStale("c1", t0.Add(threshold), threshold) {
		t.Fatalf("IsStale at exactly threshold = true, want false")
	}
	if !r.IsStale("c1", t0.Add(threshold+time.Second), threshold) {
		t.Fatalf("IsStale past threshold = false, want true")
	}
	if r.IsStale("ghost", t0, threshold) {
		t.Fatalf("IsStale(unknown) = true, want false")
	}

	r.Touch("c1", t0.Add(time.Hour))
	if r.IsStale("c1", t0.Add(time.Hour+time.Minute), threshold) {
		t.Fatalf("IsStale after Touch = true, want false")
	}
}
