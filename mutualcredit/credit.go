// Package mutualcredit implements the per-friend signed-integer balance
// with pending-debt accounting described in spec §3 ("MutualCredit") and
// §4.1. It is the leaf of the component table: it knows nothing about
// tokens, signatures or routes beyond what it needs to key a pending
// request.
package mutualcredit

import (
	"github.com/creditmesh/funder/creditproto"
)

// RequestsStatus is either Open (new RequestSendFunds ops may be received
// on this side) or Closed.
type RequestsStatus uint8

const (
	// StatusClosed rejects any new RequestSendFunds on this side.
	StatusClosed RequestsStatus = iota

	// StatusOpen accepts new RequestSendFunds on this side.
	StatusOpen
)

// PendingFriendRequest is a request that has been frozen against the
// ledger but not yet resolved by a response or failure.
type PendingFriendRequest struct {
	RequestId   creditproto.Uid
	Route       creditproto.FriendsRoute
	DestPayment creditproto.CreditAmount
	InvoiceId   creditproto.InvoiceId
	RandNonce   creditproto.RandValue
}

// zeroFee is the hop fee charged by this implementation. The source never
// fully materializes a fee model (§9 open question); the test scenarios in
// §8 all assume zero, so fees are a named constant rather than a parameter
// threaded through every call, making the day a fee model lands a
// single-constant change.
var zeroFee = creditproto.ZeroCredit

// MutualCredit is the per-friend balance and pending-debt state from §3.
type MutualCredit struct {
	balance creditproto.Balance

	localMaxDebt  creditproto.CreditAmount
	remoteMaxDebt creditproto.CreditAmount

	localPendingDebt  creditproto.CreditAmount
	remotePendingDebt creditproto.CreditAmount

	localRequestsStatus  RequestsStatus
	remoteRequestsStatus RequestsStatus

	pendingLocalRequests  map[creditproto.Uid]PendingFriendRequest
	pendingRemoteRequests map[creditproto.Uid]PendingFriendRequest
}

// New constructs a MutualCredit at the given starting balance, with both
// max debts at zero and both request sides Closed, matching a freshly
// added friend before any SetRemoteMaxDebt / EnableRequests op has run.
func New(balance creditproto.Balance) *MutualCredit {
	return &MutualCredit{
		balance:               balance,
		localMaxDebt:          creditproto.ZeroCredit,
		remoteMaxDebt:         creditproto.ZeroCredit,
		localPendingDebt:      creditproto.ZeroCredit,
		remotePendingDebt:     creditproto.ZeroCredit,
		localRequestsStatus:   StatusClosed,
		remoteRequestsStatus:  StatusClosed,
		pendingLocalRequests:  make(map[creditproto.Uid]PendingFriendRequest),
		pendingRemoteRequests: make(map[creditproto.Uid]PendingFriendRequest),
	}
}

// Clone returns a deep copy of mc, used by the token channel to apply a
// candidate MoveToken's operations speculatively (§4.2 steps 5-6) without
// mutating the committed ledger until every check has passed.
func (mc *MutualCredit) Clone() *MutualCredit {
	clone := &MutualCredit{
		balance:               mc.balance,
		localMaxDebt:          mc.localMaxDebt,
		remoteMaxDebt:         mc.remoteMaxDebt,
		localPendingDebt:      mc.localPendingDebt,
		remotePendingDebt:     mc.remotePendingDebt,
		localRequestsStatus:   mc.localRequestsStatus,
		remoteRequestsStatus:  mc.remoteRequestsStatus,
		pendingLocalRequests:  make(map[creditproto.Uid]PendingFriendRequest, len(mc.pendingLocalRequests)),
		pendingRemoteRequests: make(map[creditproto.Uid]PendingFriendRequest, len(mc.pendingRemoteRequests)),
	}
	for k, v := range mc.pendingLocalRequests {
		clone.pendingLocalRequests[k] = v
	}
	for k, v := range mc.pendingRemoteRequests {
		clone.pendingRemoteRequests[k] = v
	}
	return clone
}

// Balance returns the current signed balance (positive: remote owes us).
func (mc *MutualCredit) Balance() creditproto.Balance { return mc.balance }

// LocalMaxDebt returns the cap on how negative the balance may go.
func (mc *MutualCredit) LocalMaxDebt() creditproto.CreditAmount { return mc.localMaxDebt }

// RemoteMaxDebt returns the cap on how positive the balance may go.
func (mc *MutualCredit) RemoteMaxDebt() creditproto.CreditAmount { return mc.remoteMaxDebt }

// LocalPendingDebt returns the sum of in-flight local-originated request
// credits currently frozen.
func (mc *MutualCredit) LocalPendingDebt() creditproto.CreditAmount { return mc.localPendingDebt }

// RemotePendingDebt returns the sum of in-flight remote-originated request
// credits currently frozen.
func (mc *MutualCredit) RemotePendingDebt() creditproto.CreditAmount { return mc.remotePendingDebt }

// LocalRequestsStatus reports whether we currently accept RequestSendFunds
// ops sent to us by the remote.
func (mc *MutualCredit) LocalRequestsStatus() RequestsStatus { return mc.localRequestsStatus }

// RemoteRequestsStatus reports whether the remote currently accepts
// RequestSendFunds ops sent by us.
func (mc *MutualCredit) RemoteRequestsStatus() RequestsStatus { return mc.remoteRequestsStatus }

// SetRemoteMaxDebt updates the cap on how positive the balance may go. It
// fails if the new cap would be smaller than the debt already frozen
// against it.
func (mc *MutualCredit) SetRemoteMaxDebt(newMax creditproto.CreditAmount) error {
	if mc.remotePendingDebt.Cmp(newMax) > 0 {
		return ErrMaxDebtTooLarge
	}
	mc.remoteMaxDebt = newMax
	return nil
}

// SetLocalMaxDebt updates the cap on how negative the balance may go.
func (mc *MutualCredit) SetLocalMaxDebt(newMax creditproto.CreditAmount) error {
	if mc.localPendingDebt.Cmp(newMax) > 0 {
		return ErrMaxDebtTooLarge
	}
	mc.localMaxDebt = newMax
	return nil
}

// SetLocalRequestsStatus flips whether we accept incoming RequestSendFunds.
func (mc *MutualCredit) SetLocalRequestsStatus(status RequestsStatus) {
	mc.localRequestsStatus = status
}

// SetRemoteRequestsStatus flips whether the remote accepts our outgoing
// RequestSendFunds.
func (mc *MutualCredit) SetRemoteRequestsStatus(status RequestsStatus) {
	mc.remoteRequestsStatus = status
}

// checkBalanceBound enforces "balance + local_pending_debt <= 2^127-1" or
// its mirror "-balance + remote_pending_debt <= 2^127-1" from §3.
func (mc *MutualCredit) checkBalanceBound(localSide bool, candidatePendingDebt creditproto.CreditAmount) error {
	signedBalance := mc.balance
	if !localSide {
		signedBalance = mc.balance.Neg()
	}
	if err := creditproto.CheckDebtBound(signedBalance, candidatePendingDebt); err != nil {
		return ErrBalanceOverflow
	}
	return nil
}

// InsertLocalPendingRequest freezes a new locally-originated (or
// forwarded-onward) request against local_pending_debt. The gate is
// remote_requests_status, not local: this is a request WE are about to
// send, so what matters is whether the remote currently accepts requests
// from us (§3, mirrored from InsertRemotePendingRequest's own-side check).
func (mc *MutualCredit) InsertLocalPendingRequest(req PendingFriendRequest) error {
	if mc.remoteRequestsStatus != StatusOpen {
		return ErrRequestsClosed
	}
	if _, exists := mc.pendingLocalRequests[req.RequestId]; exists {
		return ErrDuplicateRequestId
	}

	newPendingDebt, overflowed := addCreditAmount(mc.localPendingDebt, req.DestPayment)
	if overflowed {
		return ErrCreditsOverflow
	}
	if newPendingDebt.Cmp(mc.localMaxDebt) > 0 {
		return ErrCreditsOverflow
	}
	if err := mc.checkBalanceBound(true, newPendingDebt); err != nil {
		return err
	}

	mc.localPendingDebt = newPendingDebt
	mc.pendingLocalRequests[req.RequestId] = req
	return nil
}

// InsertRemotePendingRequest freezes a new remote-originated request
// against remote_pending_debt. The local side must have requests Open to
// accept it (§3: "local side may only receive request-send-funds when
// local is Open").
func (mc *MutualCredit) InsertRemotePendingRequest(req PendingFriendRequest) error {
	if mc.localRequestsStatus != StatusOpen {
		return ErrRequestsClosed
	}
	if _, exists := mc.pendingRemoteRequests[req.RequestId]; exists {
		return ErrDuplicateRequestId
	}

	newPendingDebt, overflowed := addCreditAmount(mc.remotePendingDebt, req.DestPayment)
	if overflowed {
		return ErrCreditsOverflow
	}
	if newPendingDebt.Cmp(mc.remoteMaxDebt) > 0 {
		return ErrCreditsOverflow
	}
	if err := mc.checkBalanceBound(false, newPendingDebt); err != nil {
		return err
	}

	mc.remotePendingDebt = newPendingDebt
	mc.pendingRemoteRequests[req.RequestId] = req
	return nil
}

// RemoveLocalPendingRequest unfreezes and forgets a locally-originated
// pending request without touching the balance (the failure path).
func (mc *MutualCredit) RemoveLocalPendingRequest(id creditproto.Uid) (PendingFriendRequest, error) {
	req, ok := mc.pendingLocalRequests[id]
	if !ok {
		return PendingFriendRequest{}, ErrPendingRequestNotFound
	}
	delete(mc.pendingLocalRequests, id)
	mc.localPendingDebt = subCreditAmount(mc.localPendingDebt, req.DestPayment)
	return req, nil
}

// RemoveRemotePendingRequest unfreezes and forgets a remote-originated
// pending request without touching the balance.
func (mc *MutualCredit) RemoveRemotePendingRequest(id creditproto.Uid) (PendingFriendRequest, error) {
	req, ok := mc.pendingRemoteRequests[id]
	if !ok {
		return PendingFriendRequest{}, ErrPendingRequestNotFound
	}
	delete(mc.pendingRemoteRequests, id)
	mc.remotePendingDebt = subCreditAmount(mc.remotePendingDebt, req.DestPayment)
	return req, nil
}

// PendingLocalRequest looks up a locally-originated in-flight request
// without mutating any state.
func (mc *MutualCredit) PendingLocalRequest(id creditproto.Uid) (PendingFriendRequest, bool) {
	req, ok := mc.pendingLocalRequests[id]
	return req, ok
}

// PendingRemoteRequest looks up a remote-originated in-flight request
// without mutating any state.
func (mc *MutualCredit) PendingRemoteRequest(id creditproto.Uid) (PendingFriendRequest, bool) {
	req, ok := mc.pendingRemoteRequests[id]
	return req, ok
}

// ApplyResponse resolves a successful ResponseSendFunds. It first checks
// the locally-originated pending set (we forwarded this request onward to
// this friend and it just succeeded down that path: local_pending_debt
// shrinks and we pay out by debiting the balance); failing that it checks
// the remote-originated set (the remote forwarded this request to us and
// it succeeded further downstream: remote_pending_debt shrinks and we are
// credited). It returns whether the resolved side was local.
func (mc *MutualCredit) ApplyResponse(id creditproto.Uid) (local bool, req PendingFriendRequest, err error) {
	if r, ok := mc.pendingLocalRequests[id]; ok {
		delete(mc.pendingLocalRequests, id)
		mc.localPendingDebt = subCreditAmount(mc.localPendingDebt, r.DestPayment)

		owed := creditproto.FromCreditAmount(addCreditAmountNoOverflow(r.DestPayment, zeroFee))
		newBalance, err := mc.balance.Sub(owed)
		if err != nil {
			return true, r, ErrBalanceOverflow
		}
		mc.balance = newBalance
		return true, r, nil
	}

	if r, ok := mc.pendingRemoteRequests[id]; ok {
		delete(mc.pendingRemoteRequests, id)
		mc.remotePendingDebt = subCreditAmount(mc.remotePendingDebt, r.DestPayment)

		earned := creditproto.FromCreditAmount(addCreditAmountNoOverflow(r.DestPayment, zeroFee))
		newBalance, err := mc.balance.Add(earned)
		if err != nil {
			return false, r, ErrBalanceOverflow
		}
		mc.balance = newBalance
		return false, r, nil
	}

	return false, PendingFriendRequest{}, ErrPendingRequestNotFound
}

// ApplyFailure resolves a FailureSendFunds: the freeze is cancelled without
// touching the balance, matching §4.1 ("A failure cancels the freeze
// without affecting balance").
func (mc *MutualCredit) ApplyFailure(id creditproto.Uid) (local bool, req PendingFriendRequest, err error) {
	if r, ok := mc.pendingLocalRequests[id]; ok {
		delete(mc.pendingLocalRequests, id)
		mc.localPendingDebt = subCreditAmount(mc.localPendingDebt, r.DestPayment)
		return true, r, nil
	}
	if r, ok := mc.pendingRemoteRequests[id]; ok {
		delete(mc.pendingRemoteRequests, id)
		mc.remotePendingDebt = subCreditAmount(mc.remotePendingDebt, r.DestPayment)
		return false, r, nil
	}
	return false, PendingFriendRequest{}, ErrPendingRequestNotFound
}

// ResetBalance replaces the ledger's balance wholesale and clears every
// pending request and pending-debt total, the state a channel reset (§4.4)
// leaves behind: the old history is discarded entirely and both sides start
// the new inconsistency epoch at the agreed-upon balance with nothing
// in flight.
func (mc *MutualCredit) ResetBalance(balance creditproto.Balance) {
	mc.balance = balance
	mc.localPendingDebt = creditproto.ZeroCredit
	mc.remotePendingDebt = creditproto.ZeroCredit
	mc.pendingLocalRequests = make(map[creditproto.Uid]PendingFriendRequest)
	mc.pendingRemoteRequests = make(map[creditproto.Uid]PendingFriendRequest)
}

// addCreditAmount adds two CreditAmounts, reporting whether the addition
// wrapped (a 128-bit unsigned overflow, the only overflow mode possible
// given every value in this system is bounded well below 2^128 by the
// enclosing 2^127-1 signed check, but still checked explicitly here).
func addCreditAmount(a, b creditproto.CreditAmount) (creditproto.CreditAmount, bool) {
	sum := a.Add(b)
	return sum, sum.Cmp(a) < 0
}

// addCreditAmountNoOverflow is used in contexts (adding a request's payment
// to the always-zero fee) where overflow is structurally impossible.
func addCreditAmountNoOverflow(a, b creditproto.CreditAmount) creditproto.CreditAmount {
	return a.Add(b)
}

// subCreditAmount subtracts b from a, clamping at zero. The ledger's own
// invariants guarantee b <= a for every call site in this package (a
// pending request can never be removed for more than it was inserted for).
func subCreditAmount(a, b creditproto.CreditAmount) creditproto.CreditAmount {
	if b.Cmp(a) > 0 {
		return creditproto.ZeroCredit
	}
	return a.Sub(b)
}
