package mutualcredit

import "errors"

// The error kinds named by the ledger contract in §4.1 / §7. Each is a
// distinct sentinel so callers (the token channel, the funder handler) can
// type-switch on them to decide whether a failure is fatal to the channel
// or just rejects a single request.
var (
	// ErrCreditsOverflow is returned when a pending-debt field would leave
	// its valid unsigned range.
	ErrCreditsOverflow = errors.New("mutualcredit: pending debt overflow")

	// ErrBalanceOverflow is returned when the signed balance would leave
	// its valid [-(2^127-1), 2^127-1] range.
	ErrBalanceOverflow = errors.New("mutualcredit: balance overflow")

	// ErrMaxDebtTooLarge is returned when a SetRemoteMaxDebt/SetLocalMaxDebt
	// call would make an existing pending debt exceed the new cap.
	ErrMaxDebtTooLarge = errors.New("mutualcredit: max debt too large for existing pending debt")

	// ErrRequestsClosed is returned when an insert is attempted on a side
	// whose requests_status is Closed.
	ErrRequestsClosed = errors.New("mutualcredit: requests closed")

	// ErrPendingRequestNotFound is returned by apply_response/apply_failure
	// when request_id names no in-flight request.
	ErrPendingRequestNotFound = errors.New("mutualcredit: pending request not found")

	// ErrDuplicateRequestId is returned by insert_*_pending_request when
	// request_id is already in flight.
	ErrDuplicateRequestId = errors.New("mutualcredit: duplicate request id")
)
