package tokenchannel

import "github.com/go-errors/errors"

// Errors that are fatal to a token channel: any of these forces a
// transition to Inconsistent (§4.2, §7).
var (
	ErrSignatureVerificationFailed = errors.New("tokenchannel: signature verification failed")
	ErrStaleMoveTokenCounter       = errors.New("tokenchannel: stale move token counter")
	ErrOldTokenMismatch            = errors.New("tokenchannel: old_token does not match our last new_token")
	ErrInconsistencyCounterMismatch = errors.New("tokenchannel: inconsistency counter mismatch")
	ErrInvalidOperations           = errors.New("tokenchannel: operations rejected by ledger")
	ErrFinalStateMismatch          = errors.New("tokenchannel: final balance/pending-debt mismatch")

	// ErrWrongDirection is returned when a call is made against the
	// channel's current holder-of-the-token state that it isn't valid in
	// (e.g. composing a MoveToken while Outgoing).
	ErrWrongDirection = errors.New("tokenchannel: operation invalid in current direction")

	// ErrNothingToSend names the case of no pending ops to send under
	// EmptyNotAllowed. Compose takes no send mode and never returns it;
	// the funder handler skips Compose in that case instead.
	ErrNothingToSend = errors.New("tokenchannel: nothing to send")

	// ErrResetTokenMismatch is returned by Reset when the caller-supplied
	// current_token does not match the remote's proposed reset_token
	// (§7 ResetTokenMismatch).
	ErrResetTokenMismatch = errors.New("tokenchannel: reset token does not match remote's proposed terms")
)

// IsFatal reports whether err forces the channel into Inconsistent,
// matching the error-kind table in §7.
func IsFatal(err error) bool {
	switch err {
	case ErrSignatureVerificationFailed, ErrOldTokenMismatch,
		ErrStaleMoveTokenCounter, ErrInconsistencyCounterMismatch,
		ErrInvalidOperations, ErrFinalStateMismatch:
		return true
	default:
		return false
	}
}
