package creditproto

import (
	"bytes"
	"errors"
	"io"
)

// ErrRouteTooShort is returned when a route has fewer than two hops.
var ErrRouteTooShort = errors.New("creditproto: route must contain at least two public keys")

// ErrRouteHasCycle is returned when a public key appears more than once in
// a route.
var ErrRouteHasCycle = errors.New("creditproto: route is not cycle free")

// FriendsRoute is an ordered sequence of public keys describing a multi-hop
// payment path from the originator (index 0) to the destination (the last
// element).
type FriendsRoute struct {
	Hops []PublicKey
}

// NewFriendsRoute validates and constructs a FriendsRoute from hops.
func NewFriendsRoute(hops []PublicKey) (FriendsRoute, error) {
	route := FriendsRoute{Hops: hops}
	if err := route.Validate(); err != nil {
		return FriendsRoute{}, err
	}
	return route, nil
}

// Validate checks the length >= 2 and is-cycle-free invariants from §3.
func (r FriendsRoute) Validate() error {
	if len(r.Hops) < 2 {
		return ErrRouteTooShort
	}
	return r.isCycleFree()
}

// isCycleFree reports whether every key appears at most once.
func (r FriendsRoute) isCycleFree() error {
	seen := make(map[PublicKey]struct{}, len(r.Hops))
	for _, pk := range r.Hops {
		if _, ok := seen[pk]; ok {
			return ErrRouteHasCycle
		}
		seen[pk] = struct{}{}
	}
	return nil
}

// IndexOf returns the position of pk in the route, or -1 if absent.
func (r FriendsRoute) IndexOf(pk PublicKey) int {
	for i, hop := range r.Hops {
		if hop == pk {
			return i
		}
	}
	return -1
}

// IsDestination reports whether pk is the final hop of the route.
func (r FriendsRoute) IsDestination(pk PublicKey) bool {
	return len(r.Hops) > 0 && r.Hops[len(r.Hops)-1] == pk
}

// NextHop returns the public key immediately after pk in the route, and
// whether one exists.
func (r FriendsRoute) NextHop(pk PublicKey) (PublicKey, bool) {
	idx := r.IndexOf(pk)
	if idx < 0 || idx+1 >= len(r.Hops) {
		return PublicKey{}, false
	}
	return r.Hops[idx+1], true
}

// Encode writes the canonical serialization of the route: a big-endian
// 64-bit hop count followed by the raw public keys in order.
func (r FriendsRoute) Encode(w io.Writer) error {
	if err := WriteUint64(w, uint64(len(r.Hops))); err != nil {
		return err
	}
	for _, pk := range r.Hops {
		if err := writeFixed(w, pk[:]); err != nil {
			return err
		}
	}
	return nil
}

// Hash returns the sha512/256 digest of the route's canonical
// serialization, used to bind a SendFundsReceipt to the exact path taken.
func (r FriendsRoute) Hash() HashResult {
	var buf bytes.Buffer
	// Encode cannot fail against a bytes.Buffer.
	_ = r.Encode(&buf)
	return Sha512_256(buf.Bytes())
}

// Bytes returns the canonical serialization as a standalone byte slice.
func (r FriendsRoute) Bytes() []byte {
	var buf bytes.Buffer
	_ = r.Encode(&buf)
	return buf.Bytes()
}
