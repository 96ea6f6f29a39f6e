package tokenchannel

// ApplyResult reports the outcome of handling an incoming MoveToken.
type ApplyResult int

const (
	// ApplyAccepted means the MoveToken passed all six checks and the
	// channel is now Incoming (we hold the token).
	ApplyAccepted ApplyResult = iota

	// ApplyDuplicate means the message exactly duplicated our last
	// received MoveToken; the caller should resend tc.LastSent()
	// unchanged rather than reprocessing anything.
	ApplyDuplicate

	// ApplyStale means move_token_counter is behind what we expect: the
	// remote hasn't yet seen our last sent MoveToken. Per §7's
	// StaleMoveTokenCounter row ("recovered locally: yes"), this is not
	// fatal — the caller drops the message and resends tc.LastSent(),
	// the same remedy as ApplyDuplicate.
	ApplyStale
)

// ApplyIncoming validates an incoming MoveToken against the six checks of
// §4.2 and, on success, commits it and flips direction to Incoming. Any
// failure it returns is fatal per §7 and the caller MUST transition the
// friend to Inconsistent.
func (tc *TokenChannel) ApplyIncoming(mt *MoveToken) (ApplyResult, error) {
	// Step 1: signature.
	if !mt.VerifySignature(tc.remotePublicKey) {
		log.Errorf("move token from %s failed signature verification", tc.remotePublicKey)
		return 0, ErrSignatureVerificationFailed
	}

	// Step 2: old_token continuity, or exact duplicate of the last
	// message we received (idempotent resend, §4.2 step 2 / §7
	// DuplicateMoveToken).
	if tc.lastReceived != nil && mt.Equal(tc.lastReceived) {
		return ApplyDuplicate, nil
	}
	if mt.OldToken != tc.newToken {
		return 0, ErrOldTokenMismatch
	}

	// Step 3: monotone counter. A counter behind what we expect means the
	// remote is replaying/retrying against a MoveToken of ours it has
	// already seen and we haven't caught up to yet — recoverable, per
	// §7. A counter ahead of what we expect cannot be explained by any
	// legitimate retry and is treated as a genuine divergence.
	expected := tc.moveTokenCounter.Add64(1)
	switch mt.MoveTokenCounter.Cmp(expected) {
	case -1:
		return ApplyStale, nil
	case 1:
		return 0, ErrStaleMoveTokenCounter
	}

	// Step 4: inconsistency counter.
	if mt.InconsistencyCounter != tc.inconsistencyCounter {
		return 0, ErrInconsistencyCounterMismatch
	}

	// Step 5: apply operations against a clone; any ledger violation is
	// fatal.
	clone := tc.credit.Clone()
	for _, op := range mt.Operations {
		if err := applyOp(clone, op, true); err != nil {
			return 0, ErrInvalidOperations
		}
	}

	// Step 6: final state must match what the sender declared. Balance and
	// the two pending-debt totals are each kept from the SENDER's own
	// perspective (MutualCredit.Balance: "positive: remote owes us"), so
	// the same physical ledger looks like its mirror image from here:
	// our local_pending_debt is their remote_pending_debt and vice versa,
	// and our balance is the negation of theirs.
	if clone.Balance().Cmp(mt.Balance.Neg()) != 0 ||
		clone.LocalPendingDebt().Cmp(mt.RemotePendingDebt) != 0 ||
		clone.RemotePendingDebt().Cmp(mt.LocalPendingDebt) != 0 {
		log.Errorf("move token from %s declared a final state that does not match the replayed ledger", tc.remotePublicKey)
		return 0, ErrFinalStateMismatch
	}

	tc.credit = clone
	tc.moveTokenCounter = mt.MoveTokenCounter
	tc.newToken = mt.NewToken
	tc.lastReceived = mt
	tc.direction = DirectionIncoming
	tc.tokenWanted = false

	return ApplyAccepted, nil
}
