package tokenchannel

import (
	"github.com/creditmesh/funder/creditproto"
)

// Compose builds a new outgoing MoveToken out of candidateOps, truncating
// to cfg.MaxOperationsInBatch and the approximate cfg.MaxMoveTokenLength
// byte budget (§4.2). candidateOps MUST already be ordered with backwards
// ops (responses/failures) first, then pending local requests — the
// friend package is responsible for that ordering since it owns the
// separate queues.
//
// On success the channel transitions to Outgoing (we just handed the
// token to the remote) and the number of ops actually included is
// returned so the caller can requeue whatever didn't fit.
func (tc *TokenChannel) Compose(
	candidateOps []FriendTcOp,
	relays []RelayAddress,
	randNonce creditproto.RandValue,
	signer creditproto.Signer,
) (*MoveToken, int, error) {

	if tc.direction != DirectionIncoming {
		return nil, 0, ErrWrongDirection
	}

	clone := tc.credit.Clone()

	included := make([]FriendTcOp, 0, len(candidateOps))
	size := baseMoveTokenOverhead
	for _, op := range candidateOps {
		if len(included) >= tc.cfg.MaxOperationsInBatch {
			break
		}
		opSize := op.approxSize()
		if size+opSize > tc.cfg.MaxMoveTokenLength {
			break
		}
		if err := applyOp(clone, op, false); err != nil {
			return nil, 0, err
		}
		included = append(included, op)
		size += opSize
	}

	mt := &MoveToken{
		Operations:           included,
		OldToken:             tc.newToken,
		InconsistencyCounter: tc.inconsistencyCounter,
		MoveTokenCounter:     tc.moveTokenCounter.Add64(1),
		Balance:              clone.Balance(),
		LocalPendingDebt:     clone.LocalPendingDebt(),
		RemotePendingDebt:    clone.RemotePendingDebt(),
		OptLocalRelays:       relays,
		RandNonce:            randNonce,
	}

	if err := mt.Sign(signer); err != nil {
		return nil, 0, err
	}

	tc.credit = clone
	tc.moveTokenCounter = mt.MoveTokenCounter
	tc.newToken = mt.NewToken
	tc.direction = DirectionOutgoing
	tc.lastSent = mt
	tc.tokenWanted = false

	return mt, len(included), nil
}

// baseMoveTokenOverhead is the approximate fixed-size portion of a
// MoveToken (counters, balance, pending debts, rand nonce, signatures)
// counted toward MAX_MOVE_TOKEN_LENGTH before any operation is added.
const baseMoveTokenOverhead = 8 + creditproto.HashResultLen*2 + creditproto.SignatureLen + 8 + 16*3 + creditproto.RandValueLen
