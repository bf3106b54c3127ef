package engine

import (
	"context"
	"time"
)

// The tick driver is a single repeating one-second timer bound to the
// Running phase. Each tick recomputes elapsed seconds from the entry's start
// timestamp instead of incrementing a counter, so the displayed time
// self-corrects after clock drift, suspension or missed ticks. It is
// cancelled whenever the phase leaves Running and on session close.

// startTickLocked launches the tick loop. Caller must hold s.mu.
func (s *Session) startTickLocked() {
	if s.tickCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.tickCancel = cancel
	s.tickDone.Add(1)
	go s.tickLoop(ctx)
}

// stopTickLocked cancels the tick loop. Caller must hold s.mu; the loop
// re-checks cancellation under the same lock, so a late tick can never
// mutate state after this returns.
func (s *Session) stopTickLocked() {
	if s.tickCancel == nil {
		return
	}
	s.tickCancel()
	s.tickCancel = nil
}

func (s *Session) tickLoop(ctx context.Context) {
	defer s.tickDone.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if ctx.Err() != nil || s.phase != PhaseRunning || s.current == nil {
				s.mu.Unlock()
				continue
			}
			s.elapsed = elapsedSince(s.current.StartTime, s.now())
			elapsed := s.elapsed
			cb := s.onTick
			s.mu.Unlock()

			if cb != nil {
				cb(elapsed)
			}
		}
	}
}
