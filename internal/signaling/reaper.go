package signaling

import (
	"context"
	"log/slog"
	"time"

	"github.com/pairwave/signaling-relay/internal/ratelimit"
)

// Reaper periodically evicts connections that have gone quiet at the
// signaling level even though their socket is still up.
type Reaper struct {
	Hub       *Hub
	Interval  time.Duration
	Threshold time.Duration
	Clock     ratelimit.Clock
	Log       *slog.Logger
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	clock := r.Clock
	if clock == nil {
		clock = ratelimit.RealClock{}
	}
	log := r.Log
	if log == nil {
		log = slog.Default()
	}

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	log.Info("idle reaper started", "interval", r.Interval, "threshold", r.Threshold)
	for {
		select {
		case <-ctx.Done():
			log.Info("idle reaper stopped")
			return
		case <-ticker.C:
			if n := r.Hub.Sweep(clock.Now(), r.Threshold); n > 0 {
				log.Info("reaper sweep complete", "reaped", n)
			}
		}
	}
}
