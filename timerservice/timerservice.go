// Package timerservice wraps lightningnetwork/lnd/ticker into the tick
// source the funder handler's Init event and the listen pool's backoff
// countdown both consume (spec §4.3 Init, §4.8 TimerTick).
package timerservice

import (
	"time"

	"github.com/lightningnetwork/lnd/ticker"
)

// Service periodically emits a TimerTick event. Each binary runs its own:
// cmd/funderd one Service at a one-second interval whose ticks drive both
// the listen pool's backoff countdown and the reconnect sweep, cmd/relayd
// one for its pending-listener sweep. Nothing drives the handshake
// responder's Tick.
type Service struct {
	t ticker.Ticker
}

// New wraps a running lnd/ticker.Ticker firing every interval.
func New(interval time.Duration) *Service {
	return &Service{t: ticker.New(interval)}
}

// NewFromTicker wraps an already-constructed ticker.Ticker, letting tests
// substitute ticker.Force for deterministic tick injection.
func NewFromTicker(t ticker.Ticker) *Service {
	return &Service{t: t}
}

// Ticks returns the channel TimerTick events arrive on.
func (s *Service) Ticks() <-chan time.Time { return s.t.Ticks() }

// Resume starts (or resumes) ticking.
func (s *Service) Resume() { s.t.Resume() }

// Pause stops ticking without releasing the underlying resources.
func (s *Service) Pause() { s.t.Pause() }

// Stop releases the underlying ticker. Safe to call once.
func (s *Service) Stop() { s.t.Stop() }
