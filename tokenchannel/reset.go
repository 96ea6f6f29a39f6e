package tokenchannel

import (
	"github.com/creditmesh/funder/creditproto"
	"lukechampine.com/uint128"
)

// ResetTerms is the signed triple a side offers when its channel becomes
// Inconsistent (§4.4): the chain-link token the remote must quote back to
// resume, the balance this side is willing to resume at, and the
// inconsistency counter the resumed channel will carry.
type ResetTerms struct {
	ResetToken           creditproto.HashResult
	BalanceForReset       creditproto.Balance
	InconsistencyCounter  uint64
}

// LocalResetTerms computes this side's reset terms from its current
// chain-link token and counter: local_reset_token = sha512/256(current_token
// || counter), per §4.4. balanceForReset is supplied by the caller (the
// funder handler), which is responsible for adjusting the raw ledger
// balance by any frozen remote-pending debt this side would forfeit.
func (tc *TokenChannel) LocalResetTerms(balanceForReset creditproto.Balance) ResetTerms {
	nextCounter := tc.inconsistencyCounter + 1
	token := creditproto.Sha512_256Concat(tc.newToken[:], counterBytes(nextCounter))
	return ResetTerms{
		ResetToken:           token,
		BalanceForReset:      balanceForReset,
		InconsistencyCounter: nextCounter,
	}
}

func counterBytes(c uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(c)
		c >>= 8
	}
	return b
}

// Reset rebuilds tc in place from terms, the reset terms being consumed to
// re-establish the channel. The caller is either accepting the remote's
// published terms explicitly (ControlResetFriendChannel, terms ==
// f.RemoteResetTerms, fromRemote true), or auto-completing its own
// previously-published terms on receipt of the remote's kickoff MoveToken
// (terms == f.LocalResetTerms, fromRemote false).
//
// balance_for_reset is always stated from the perspective of whoever
// published it. Adopting the remote's terms requires translating that
// number into this side's own "positive: remote owes us" convention, which
// is a negation (§4.4: "balance = remote.balance_for_reset (negated from
// the remote's perspective)"); re-adopting one's own previously-published
// terms needs no translation, since they were already stated in this
// side's own convention. This asymmetry is what makes the two sides land
// on proper negations of one another rather than on the same raw number
// (§8 property 5's "matching balances").
//
// currentToken MUST equal terms.ResetToken; Reset checks this and returns
// ErrResetTokenMismatch otherwise.
//
// On success tc is Incoming with a fresh empty history: move_token_counter
// reset to zero, old_token/new_token set to terms.ResetToken. Incoming
// means whichever side calls Reset immediately holds the token and can
// compose and transmit the zero-op kickoff MoveToken §4.4 describes; the
// remote completes passively by matching that MoveToken's old_token
// against its own stored terms rather than calling Reset directly.
func (tc *TokenChannel) Reset(currentToken creditproto.HashResult, terms ResetTerms, fromRemote bool) error {
	if currentToken != terms.ResetToken {
		return ErrResetTokenMismatch
	}

	balance := terms.BalanceForReset
	if fromRemote {
		balance = balance.Neg()
	}
	tc.credit.ResetBalance(balance)
	tc.moveTokenCounter = uint128.Zero
	tc.inconsistencyCounter = terms.InconsistencyCounter
	tc.newToken = terms.ResetToken
	tc.direction = DirectionIncoming
	tc.lastSent = nil
	tc.lastReceived = nil
	tc.tokenWanted = false

	return nil
}
