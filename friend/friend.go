// Package friend aggregates a token channel with the per-counterparty
// queues and liveness bit the funder handler needs to decide what to send
// and when (spec §3 "Friend", §4.6 "Friend readiness").
package friend

import (
	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/mutualcredit"
	"github.com/creditmesh/funder/tokenchannel"
)

// Status is whether the friend is allowed to route new traffic at all,
// independent of liveness or channel consistency.
type Status uint8

const (
	StatusEnabled Status = iota
	StatusDisabled
)

func (s Status) String() string {
	if s == StatusEnabled {
		return "enabled"
	}
	return "disabled"
}

// ChannelStatus tags whether the token channel is in its normal signed
// history, or has diverged and is waiting on a reset (§4.4).
type ChannelStatus uint8

const (
	ChannelConsistent ChannelStatus = iota
	ChannelInconsistent
)

func (c ChannelStatus) String() string {
	if c == ChannelConsistent {
		return "consistent"
	}
	return "inconsistent"
}

// PendingUserRequest is a locally-originated RequestSendFunds not yet
// pushed onto the token channel (queued because the channel doesn't
// currently hold the token, or a prior batch was already full).
type PendingUserRequest struct {
	Op        tokenchannel.RequestSendFundsOp
	RequestId creditproto.Uid
}

// PendingBackwardsOp is any op other than a new RequestSendFunds queued
// for the remote (a Response/FailureSendFunds, or a SetRemoteMaxDebt/
// EnableRequests/DisableRequests from a control call), held until this
// side holds the token again. These MUST be sent before
// any new pending_user_requests (§4.2 "dequeue pending backwards ops
// first").
type PendingBackwardsOp struct {
	Op tokenchannel.FriendTcOp
}

// Friend is the per-counterparty aggregate named in §3.
type Friend struct {
	RemotePublicKey creditproto.PublicKey
	RemoteRelays    []tokenchannel.RelayAddress

	Status Status

	ChannelStatus ChannelStatus
	Channel       *tokenchannel.TokenChannel

	// LocalResetTerms/RemoteResetTerms are populated only while
	// ChannelStatus is ChannelInconsistent (§4.4).
	LocalResetTerms      *tokenchannel.ResetTerms
	RemoteResetTerms     *tokenchannel.ResetTerms

	WantedRemoteMaxDebt         creditproto.CreditAmount
	WantedLocalRequestsStatus   bool

	PendingUserRequests  []PendingUserRequest
	PendingBackwardsOps  []PendingBackwardsOp

	// InflightRequestIds tracks request IDs already forwarded onto this
	// friend's channel and not yet resolved, so §4.6's "no in-flight
	// request with the same request_id" check is O(1).
	InflightRequestIds map[creditproto.Uid]struct{}

	liveness bool
}

// New constructs a Friend born Inconsistent (§3 Lifecycle: "token channels
// are born in state Inconsistent until either side's first move is
// acknowledged").
func New(remote creditproto.PublicKey) *Friend {
	return &Friend{
		RemotePublicKey:    remote,
		Status:             StatusEnabled,
		ChannelStatus:      ChannelInconsistent,
		InflightRequestIds: make(map[creditproto.Uid]struct{}),
	}
}

// SetLiveness records the most recent Liveness event for this friend.
func (f *Friend) SetLiveness(online bool) { f.liveness = online }

// IsOnline reports the friend's current liveness bit.
func (f *Friend) IsOnline() bool { return f.liveness }

// ReadyForNewRequest implements §4.6: Enabled, Online, Consistent, the
// remote side of the mutual credit has requests Open, and requestId is not
// already in flight.
func (f *Friend) ReadyForNewRequest(requestId creditproto.Uid) bool {
	if f.Status != StatusEnabled {
		return false
	}
	if !f.liveness {
		return false
	}
	if f.ChannelStatus != ChannelConsistent || f.Channel == nil {
		return false
	}
	if f.Channel.Credit().RemoteRequestsStatus() != mutualcredit.StatusOpen {
		return false
	}
	if _, inflight := f.InflightRequestIds[requestId]; inflight {
		return false
	}
	return true
}

// EnqueueUserRequest appends a locally-originated request to the queue
// pushed to the channel once it holds the token.
func (f *Friend) EnqueueUserRequest(req PendingUserRequest) {
	f.PendingUserRequests = append(f.PendingUserRequests, req)
	f.InflightRequestIds[req.RequestId] = struct{}{}
}

// EnqueueBackwardsOp appends a response/failure owed to the remote.
func (f *Friend) EnqueueBackwardsOp(op tokenchannel.FriendTcOp) {
	f.PendingBackwardsOps = append(f.PendingBackwardsOps, PendingBackwardsOp{Op: op})
}

// ResolveInflight removes a request_id from the in-flight set once its
// response or failure has been applied.
func (f *Friend) ResolveInflight(id creditproto.Uid) {
	delete(f.InflightRequestIds, id)
}

// DrainCandidateOps returns the ops to hand to TokenChannel.Compose,
// backwards ops first then pending user requests, and clears both queues;
// the caller is responsible for re-enqueueing whatever Compose reports it
// did not include.
func (f *Friend) DrainCandidateOps() []tokenchannel.FriendTcOp {
	ops := make([]tokenchannel.FriendTcOp, 0, len(f.PendingBackwardsOps)+len(f.PendingUserRequests))
	for _, b := range f.PendingBackwardsOps {
		ops = append(ops, b.Op)
	}
	for _, u := range f.PendingUserRequests {
		ops = append(ops, tokenchannel.RequestSendFundsTcOp(u.Op))
	}
	f.PendingBackwardsOps = nil
	f.PendingUserRequests = nil
	return ops
}

// Requeue puts back the tail of a DrainCandidateOps call that Compose
// didn't include (because the batch/size budget was reached), preserving
// relative order: backwards ops still precede user requests.
func (f *Friend) Requeue(remaining []tokenchannel.FriendTcOp) {
	for _, op := range remaining {
		switch op.Type {
		default:
			f.PendingBackwardsOps = append(f.PendingBackwardsOps, PendingBackwardsOp{Op: op})
		case tokenchannel.OpRequestSendFunds:
			f.PendingUserRequests = append(f.PendingUserRequests, PendingUserRequest{
				Op:        *op.Request,
				RequestId: op.Request.RequestId,
			})
		}
	}
}

// HasPendingWork reports whether there is anything queued to send, used to
// decide whether an EmptyNotAllowed try_send_channel call should even
// attempt Compose.
func (f *Friend) HasPendingWork() bool {
	return len(f.PendingBackwardsOps) > 0 || len(f.PendingUserRequests) > 0
}
