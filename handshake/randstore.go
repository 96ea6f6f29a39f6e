package handshake

import (
	"crypto/rand"

	"github.com/creditmesh/funder/creditproto"
)

// RandValuesStoreCapacity and RandValuesStoreTicks are the sliding-window
// knobs named in §4.7: the responder need not keep per-session state for
// step 1, only a ring buffer of recently-issued responder_rand values.
const (
	RandValuesStoreCapacity = 16
	RandValuesStoreTicks    = 20
)

type randEntry struct {
	value     creditproto.RandValue
	expiresAt uint64
}

// RandValueStore is the responder-side sliding window of recently issued
// responder_rand values, carried from `src/channeler/handshake/server.rs`
// (see SPEC_FULL.md SUPPLEMENTED FEATURES).
type RandValueStore struct {
	tick    uint64
	entries []randEntry
}

// NewRandValueStore seeds the store with one fresh value so the first
// ExchangeRandNonce reply has something to hand out.
func NewRandValueStore() *RandValueStore {
	s := &RandValueStore{}
	s.rotate()
	return s
}

// rotate appends a freshly-generated responder_rand, evicting the oldest
// entry once the ring is at capacity.
func (s *RandValueStore) rotate() creditproto.RandValue {
	var v creditproto.RandValue
	_, _ = rand.Read(v[:])

	entry := randEntry{value: v, expiresAt: s.tick + RandValuesStoreTicks}
	s.entries = append(s.entries, entry)
	if len(s.entries) > RandValuesStoreCapacity {
		s.entries = s.entries[len(s.entries)-RandValuesStoreCapacity:]
	}
	return v
}

// Current returns the most recently issued responder_rand, generating one
// if the store is empty.
func (s *RandValueStore) Current() creditproto.RandValue {
	if len(s.entries) == 0 {
		return s.rotate()
	}
	return s.entries[len(s.entries)-1].value
}

// Contains reports whether v is still within the sliding window.
func (s *RandValueStore) Contains(v creditproto.RandValue) bool {
	for _, e := range s.entries {
		if e.value == v && e.expiresAt > s.tick {
			return true
		}
	}
	return false
}

// Tick advances the store's clock by one, evicting expired entries and
// rotating in a fresh responder_rand so there is always a current one to
// hand out.
func (s *RandValueStore) Tick() {
	s.tick++

	live := s.entries[:0]
	for _, e := range s.entries {
		if e.expiresAt > s.tick {
			live = append(live, e)
		}
	}
	s.entries = live

	s.rotate()
}
