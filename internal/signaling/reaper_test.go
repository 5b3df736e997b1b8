package signaling

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestReaperEvictsOnTick(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	h := newTestHub(clock)
	c1 := connect(t, h, "c1")

	// Everything the connection ever did is now far in the past.
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &Reaper{
		Hub:       h,
		Interval:  5 * time.Millisecond,
		Threshold: 30 * time.Minute,
		Clock:     clock,
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	go r.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for h.ActiveConnections() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("reaper never evicted the idle connection")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !c1.closed {
		t.Fatal("evicted sender not closed")
	}
}
