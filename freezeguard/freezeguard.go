// Package freezeguard checks and records credit freezes along multi-hop
// routes so concurrent payments routed through the same friend cannot
// double-spend the capacity any single hop has already committed to an
// earlier, still-pending request (spec §4.5).
package freezeguard

import (
	"math/big"

	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/tokenchannel"
	"lukechampine.com/uint128"
)

// originKey identifies one (friend, route-origin) pair: the frozen-credit
// total is tracked per friend we forward through, keyed additionally by the
// public key that originated the route, matching the source's two-level
// freeze graph ("per friend, per-neighbor frozen-credit totals", §3
// Ephemeral).
type originKey struct {
	friend creditproto.PublicKey
	origin creditproto.PublicKey
}

// Guard owns the ephemeral per-friend frozen-credit graph. It is not
// persisted: funder.Handler.Init starts from an empty Guard, and freezes of
// requests still pending in the saved FunderState are not re-recorded.
type Guard struct {
	frozen map[originKey]creditproto.CreditAmount
}

// New returns an empty Guard.
func New() *Guard {
	return &Guard{frozen: make(map[originKey]creditproto.CreditAmount)}
}

// TryFreeze validates a candidate RequestSendFunds op's freeze_links
// (augmented with this hop's own link, already appended by the caller)
// against every suffix of the route and, on success, records the freeze so
// subsequent concurrent requests see the reserved capacity. friend is the
// next-hop neighbor this freeze is charged against; origin is the route's
// originating public key (route.Hops[0]), the second key of the per-friend
// freeze graph (§3 Ephemeral: "per friend, per-neighbor frozen-credit
// totals"); destPayment is the amount this hop is being asked to commit.
//
// Rejection returns ErrBlockedByFreezeGuard without mutating the graph
// (§4.5 step 2: "verify that frozen_credit_along_suffix + dest_payment <=
// shared_credits * usable_ratio").
func (g *Guard) TryFreeze(friend, origin creditproto.PublicKey, links []tokenchannel.FreezeLink, destPayment creditproto.CreditAmount) error {
	if len(links) == 0 {
		return nil
	}

	key := originKey{friend: friend, origin: origin}
	alreadyFrozen := g.frozen[key]

	for i := range links {
		suffix := links[i:]
		// The single-link suffix headed by this node's own hop (the last
		// one, since the caller always appends its own link last) is
		// exactly the capacity alreadyFrozen already accounts for under
		// key; every other suffix is bounded by an upstream hop's link,
		// which this guard doesn't track. Folding alreadyFrozen in only
		// there is what makes a second concurrent request see the hop's
		// remaining capacity instead of its raw capacity again (§4.5 step
		// 2, §8 property 4).
		reserved := creditproto.ZeroCredit
		if i == len(links)-1 {
			reserved = alreadyFrozen
		}
		if err := checkSuffix(suffix, destPayment, reserved); err != nil {
			return err
		}
	}

	next, overflow := addChecked(alreadyFrozen, destPayment)
	if overflow {
		return ErrBlockedByFreezeGuard
	}
	g.frozen[key] = next
	return nil
}

// Release gives back previously-frozen capacity when a request resolves
// (response or failure), keeping the graph's invariant that the sum of
// frozen credits equals the sum of in-flight pending debts (§8 property 4).
func (g *Guard) Release(friend creditproto.PublicKey, origin creditproto.PublicKey, amount creditproto.CreditAmount) {
	key := originKey{friend: friend, origin: origin}
	current, ok := g.frozen[key]
	if !ok {
		return
	}
	if amount.Cmp(current) >= 0 {
		delete(g.frozen, key)
		return
	}
	g.frozen[key] = current.Sub(amount)
}

// Frozen reports the currently frozen credit for a (friend, origin) pair,
// used by tests.
func (g *Guard) Frozen(friend, origin creditproto.PublicKey) creditproto.CreditAmount {
	return g.frozen[originKey{friend: friend, origin: origin}]
}

// checkSuffix enforces the capacity bound for one suffix of the freeze
// chain: the first link in the suffix bounds what every hop after it (plus
// the final destPayment and any reserved amount already frozen against the
// head link) may draw.
func checkSuffix(suffix []tokenchannel.FreezeLink, destPayment, reserved creditproto.CreditAmount) error {
	head := suffix[0]

	total := destPayment
	total, _ = addChecked(total, reserved)
	for _, link := range suffix[1:] {
		total, _ = addChecked(total, link.SharedCredits)
	}

	allowed := applyRatio(head.SharedCredits, head.UsableRatio)
	if total.Cmp(allowed) > 0 {
		return ErrBlockedByFreezeGuard
	}
	return nil
}

// applyRatio computes shared_credits * usable_ratio, where One means the
// full amount and Numerator(n) means n/2^128 of it (§4.5).
func applyRatio(shared creditproto.CreditAmount, ratio tokenchannel.Ratio) creditproto.CreditAmount {
	if ratio.One {
		return shared
	}
	return mulDiv2to128(shared, ratio.Numerator)
}

// mulDiv2to128 computes floor(shared * numerator / 2^128), the
// usable_ratio application from §4.5 ("Numerator(n) means n / 2^128").
// lukechampine.com/uint128 has no 256-bit-intermediate multiply, so this
// one narrow piece of arithmetic goes through math/big's round trip
// (uint128.Big / uint128.FromBig) rather than a hand-rolled 128x128
// multiply.
func mulDiv2to128(shared, numerator creditproto.CreditAmount) creditproto.CreditAmount {
	product := new(big.Int).Mul(shared.Big(), numerator.Big())
	product.Rsh(product, 128)
	return uint128.FromBig(product)
}

// addChecked adds a and b, reporting whether the 128-bit unsigned addition
// overflowed.
func addChecked(a, b creditproto.CreditAmount) (creditproto.CreditAmount, bool) {
	sum := a.Add(b)
	return sum, sum.Cmp(a) < 0
}
