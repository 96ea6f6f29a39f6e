package funder

import (
	"crypto/rand"

	"github.com/btcsuite/btclog"
	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/freezeguard"
	"github.com/creditmesh/funder/friend"
	"github.com/creditmesh/funder/mutualcredit"
	"github.com/creditmesh/funder/tokenchannel"
	"github.com/prometheus/client_golang/prometheus"
)

// log is this package's subsystem logger, wired up from cmd/funderd/log.go
// the same way every lnd-derived package declares its own named
// btclog.Logger and a package-level UseLogger (see SPEC_FULL.md AMBIENT
// STACK).
var log = btclog.Disabled

// UseLogger sets the package-level logger used by Handler.
func UseLogger(logger btclog.Logger) { log = logger }

// SendMode controls whether try_send_channel may release an empty
// MoveToken (§4.3: "EmptyAllowed is used when we must hand the token back
// ... EmptyNotAllowed suppresses sends that would carry zero operations").
type SendMode uint8

const (
	EmptyNotAllowed SendMode = iota
	EmptyAllowed
)

// metrics are the optional prometheus counters named in SPEC_FULL.md's
// DOMAIN STACK ("wired into funder.Handler as optional counters").
type metrics struct {
	mutationBatches prometheus.Counter
	resetsTriggered prometheus.Counter
	freezeRejections prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		mutationBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "funder_mutation_batches_total",
			Help: "Number of mutation batches applied to durable storage.",
		}),
		resetsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "funder_resets_triggered_total",
			Help: "Number of times a token channel transitioned to Inconsistent.",
		}),
		freezeRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "funder_freeze_rejections_total",
			Help: "Number of requests rejected by the freeze guard.",
		}),
	}
}

// Collectors returns the handler's counters for registration against a
// prometheus.Registerer by cmd/funderd.
func (h *Handler) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		h.metrics.mutationBatches,
		h.metrics.resetsTriggered,
		h.metrics.freezeRejections,
	}
}

// Handler is the single-threaded, event-driven Funder state machine of
// §4.3. It holds FunderState and the ephemeral freeze-guard graph and
// exposes one method per event category.
type Handler struct {
	state   *State
	signer  creditproto.Signer
	guard   *freezeguard.Guard
	metrics *metrics
}

// New constructs a Handler for a freshly-initialized FunderState.
func New(signer creditproto.Signer, state *State) *Handler {
	return &Handler{
		state:   state,
		signer:  signer,
		guard:   freezeguard.New(),
		metrics: newMetrics(),
	}
}

// State exposes the underlying FunderState for the persistence layer to
// snapshot/restore and for tests to inspect.
func (h *Handler) State() *State { return h.state }

// Init replaces the freeze guard with an empty one (freezes of requests
// still pending in FunderState are not re-recorded) and returns the public
// keys of every enabled friend the Channeler/listen pool must be told about (§4.3 Init:
// "push AddFriend to Channeler for every enabled friend").
func (h *Handler) Init() []creditproto.PublicKey {
	h.guard = freezeguard.New()

	var enabled []creditproto.PublicKey
	for pk, f := range h.state.Friends {
		if f.Status == friend.StatusEnabled {
			enabled = append(enabled, pk)
		}
	}
	return enabled
}

// HandleLiveness implements the Liveness event category of §4.3: on
// Online, a friend that holds pending work may now be sent to; on Offline,
// further Friend events for it are dropped elsewhere (§5), and here its
// liveness bit simply flips.
func (h *Handler) HandleLiveness(ev LivenessEvent) ([]OutgoingComm, error) {
	f, ok := h.state.Friends[ev.FriendPublicKey]
	if !ok {
		return nil, ErrUnknownFriend
	}
	f.SetLiveness(ev.Online)

	if !ev.Online {
		return nil, nil
	}

	comm, err := h.trySendChannel(f, EmptyAllowed)
	if err != nil {
		return nil, err
	}
	if comm == nil {
		return nil, nil
	}
	return []OutgoingComm{*comm}, nil
}

// trySendChannel implements §4.3's send logic: if f's channel currently
// holds the token (Incoming) and there is pending work (or mode allows an
// empty send), compose and sign a MoveToken.
func (h *Handler) trySendChannel(f *friend.Friend, mode SendMode) (*OutgoingComm, error) {
	if f.ChannelStatus != friend.ChannelConsistent || f.Channel == nil {
		return nil, nil
	}
	if f.Channel.Direction() != tokenchannel.DirectionIncoming {
		return nil, nil
	}
	if mode == EmptyNotAllowed && !f.HasPendingWork() {
		return nil, nil
	}

	candidates := f.DrainCandidateOps()
	mt, included, err := f.Channel.Compose(candidates, f.RemoteRelays, freshRandNonce(), h.signer)
	if err != nil {
		f.Requeue(candidates)
		return nil, err
	}
	if included < len(candidates) {
		f.Requeue(candidates[included:])
	}

	return &OutgoingComm{
		Kind:            OutgoingMoveToken,
		FriendPublicKey: f.RemotePublicKey,
		MoveToken:       mt,
	}, nil
}

// freshRandNonce draws a new nonce for MoveToken freshness.
func freshRandNonce() creditproto.RandValue {
	var v creditproto.RandValue
	_, _ = rand.Read(v[:])
	return v
}

// HandleFriendEvent implements the Friend event category of §4.3.
func (h *Handler) HandleFriendEvent(ev FriendEvent) ([]OutgoingComm, []OutgoingControl, error) {
	f, ok := h.state.Friends[ev.FriendPublicKey]
	if !ok {
		return nil, nil, ErrUnknownFriend
	}

	switch ev.Kind {
	case FriendEventInconsistencyError:
		f.RemoteResetTerms = ev.ResetTerms
		return nil, nil, nil

	case FriendEventMoveToken:
		return h.handleMoveToken(f, ev.MoveToken)

	default:
		return nil, nil, nil
	}
}

func (h *Handler) handleMoveToken(f *friend.Friend, mt *tokenchannel.MoveToken) ([]OutgoingComm, []OutgoingControl, error) {
	if f.ChannelStatus != friend.ChannelConsistent || f.Channel == nil {
		if !h.tryAutoCompleteReset(f, mt) {
			return nil, nil, nil
		}
	}

	// Pre-scan Response/Failure ops against the pre-image ledger (§4.3:
	// "look up the original PendingFriendRequest on the current friend")
	// before ApplyIncoming's internal clone consumes them, so the route
	// each backward op must travel along is still available.
	resolved := make(map[creditproto.Uid]mutualcredit.PendingFriendRequest)
	for _, op := range mt.Operations {
		var id creditproto.Uid
		switch op.Type {
		case tokenchannel.OpResponseSendFunds:
			id = op.Response.RequestId
		case tokenchannel.OpFailureSendFunds:
			id = op.Failure.RequestId
		default:
			continue
		}
		if req, ok := f.Channel.Credit().PendingLocalRequest(id); ok {
			resolved[id] = req
		}
	}

	result, err := f.Channel.ApplyIncoming(mt)
	if err != nil {
		log.Warnf("friend %s diverged (%v), moving to Inconsistent", f.RemotePublicKey, err)
		return h.triggerReset(f)
	}

	// Duplicate (remote resent a message we already applied) and Stale
	// (remote's move_token_counter is behind ours, meaning it hasn't yet
	// seen our last send) both resolve the same way: drop the incoming
	// message and resend our last MoveToken unchanged (§7
	// StaleMoveTokenCounter/DuplicateMoveToken, both "recovered locally").
	if result == tokenchannel.ApplyDuplicate || result == tokenchannel.ApplyStale {
		last := f.Channel.LastSent()
		if last == nil {
			return nil, nil, nil
		}
		return []OutgoingComm{{Kind: OutgoingMoveToken, FriendPublicKey: f.RemotePublicKey, MoveToken: last}}, nil, nil
	}

	var outControls []OutgoingControl
	for _, op := range mt.Operations {
		switch op.Type {
		case tokenchannel.OpRequestSendFunds:
			ctrl, err := h.handleIncomingRequest(f, op.Request)
			if err != nil {
				return nil, nil, err
			}
			outControls = append(outControls, ctrl...)

		case tokenchannel.OpResponseSendFunds:
			ctrl := h.handleResolvedRequest(f, resolved[op.Response.RequestId], true, op.Response.RequestId, creditproto.PublicKey{})
			outControls = append(outControls, ctrl...)

		case tokenchannel.OpFailureSendFunds:
			ctrl := h.handleResolvedRequest(f, resolved[op.Failure.RequestId], false, op.Failure.RequestId, op.Failure.ReportingPubKey)
			outControls = append(outControls, ctrl...)
		}
	}

	comm, err := h.trySendChannel(f, EmptyNotAllowed)
	if err != nil {
		return nil, outControls, err
	}
	var comms []OutgoingComm
	if comm != nil {
		comms = append(comms, *comm)
	}
	return comms, outControls, nil
}

// tryAutoCompleteReset implements the passive half of §4.4's reset
// protocol. A friend that published its own reset terms and is waiting on
// the remote to call ResetFriendChannel completes automatically the
// moment the remote's kickoff MoveToken arrives chained off those terms
// (mt.OldToken == f.LocalResetTerms.ResetToken), with no local control
// call required — this is what makes §8 property 5's "after one
// ResetFriendChannel on either side both channels are Consistent" true
// for the side that never called it.
func (h *Handler) tryAutoCompleteReset(f *friend.Friend, mt *tokenchannel.MoveToken) bool {
	if f.ChannelStatus != friend.ChannelInconsistent || f.LocalResetTerms == nil {
		return false
	}
	if mt.OldToken != f.LocalResetTerms.ResetToken {
		return false
	}

	tc := tokenchannel.New(channelConfig, h.state.LocalPublicKey, f.RemotePublicKey, creditproto.Zero())
	if err := tc.Reset(f.LocalResetTerms.ResetToken, *f.LocalResetTerms, false); err != nil {
		return false
	}

	f.Channel = tc
	f.ChannelStatus = friend.ChannelConsistent
	f.LocalResetTerms = nil
	f.RemoteResetTerms = nil
	return true
}

// triggerReset implements the "any failure at steps 1-6 is fatal" branch
// of §4.2: the friend moves to Inconsistent and we publish our own reset
// terms.
func (h *Handler) triggerReset(f *friend.Friend) ([]OutgoingComm, []OutgoingControl, error) {
	h.metrics.resetsTriggered.Inc()

	credit := f.Channel.Credit()
	balanceForReset, err := credit.Balance().Sub(creditproto.FromCreditAmount(credit.RemotePendingDebt()))
	if err != nil {
		return nil, nil, err
	}
	terms := f.Channel.LocalResetTerms(balanceForReset)
	f.ChannelStatus = friend.ChannelInconsistent
	f.LocalResetTerms = &terms
	f.Channel = nil

	return []OutgoingComm{{
		Kind:            OutgoingInconsistencyError,
		FriendPublicKey: f.RemotePublicKey,
		ResetTerms:      &terms,
	}}, nil, nil
}

// handleIncomingRequest implements §4.3's route handling for an incoming
// RequestSendFunds op.
func (h *Handler) handleIncomingRequest(f *friend.Friend, req *tokenchannel.RequestSendFundsOp) ([]OutgoingControl, error) {
	if err := req.Route.Validate(); err != nil {
		return h.failBackward(f, req, err)
	}

	if req.Route.IsDestination(h.state.LocalPublicKey) {
		receipt := SendFundsReceipt{
			RequestId:   req.RequestId,
			InvoiceId:   req.InvoiceId,
			DestPayment: req.DestPayment,
			RouteHash:   req.Route.Hash(),
			RandNonce:   req.RandNonce,
		}
		if err := receipt.Sign(h.signer); err != nil {
			return nil, err
		}

		resp := tokenchannel.ResponseSendFundsOp{
			RequestId:     req.RequestId,
			RandNonce:     req.RandNonce,
			ReceiptHash:   creditproto.Sha512_256(receipt.signedBytes()),
			SigningPubKey: h.state.LocalPublicKey,
		}
		sig, err := h.signer.Sign(resp.ReceiptHash[:])
		if err != nil {
			return nil, err
		}
		resp.Signature = sig

		f.EnqueueBackwardsOp(tokenchannel.ResponseSendFundsTcOp(resp))
		return nil, nil
	}

	nextHop, ok := req.Route.NextHop(h.state.LocalPublicKey)
	if !ok {
		return h.failBackward(f, req, ErrNotFirstInRoute)
	}

	next, ok := h.state.Friends[nextHop]
	if !ok || !next.ReadyForNewRequest(req.RequestId) {
		return h.failBackward(f, req, ErrFriendNotReady)
	}

	ownLink := tokenchannel.FreezeLink{
		SharedCredits: next.Channel.Credit().LocalMaxDebt(),
		UsableRatio:   tokenchannel.FullRatio(),
	}
	links := append(append([]tokenchannel.FreezeLink{}, req.FreezeLinks...), ownLink)

	if err := h.guard.TryFreeze(nextHop, req.Route.Hops[0], links, req.DestPayment); err != nil {
		h.metrics.freezeRejections.Inc()
		return h.failBackward(f, req, err)
	}

	forwarded := *req
	forwarded.FreezeLinks = links
	next.EnqueueUserRequest(friend.PendingUserRequest{Op: forwarded, RequestId: req.RequestId})

	return nil, nil
}

// failBackward enqueues a FailureSendFunds op back onto f, signed by us as
// the reporting node.
func (h *Handler) failBackward(f *friend.Friend, req *tokenchannel.RequestSendFundsOp, cause error) ([]OutgoingControl, error) {
	log.Debugf("failing request %x backward: %v", req.RequestId[:], cause)

	fail := tokenchannel.FailureSendFundsOp{
		RequestId:       req.RequestId,
		ReportingPubKey: h.state.LocalPublicKey,
		RandNonce:       req.RandNonce,
	}
	sig, err := h.signer.Sign(fail.RequestId[:])
	if err != nil {
		return nil, err
	}
	fail.Signature = sig

	f.EnqueueBackwardsOp(tokenchannel.FailureSendFundsTcOp(fail))
	return nil, nil
}

// handleResolvedRequest implements the backward-propagation half of §4.3's
// "For an incoming ResponseSendFunds or FailureSendFunds" rule: forward the
// resolution to the previous hop, or surface it as a control response if
// we were the originator.
func (h *Handler) handleResolvedRequest(f *friend.Friend, req mutualcredit.PendingFriendRequest, success bool, requestId creditproto.Uid, reportingKey creditproto.PublicKey) []OutgoingControl {
	f.ResolveInflight(requestId)
	if len(req.Route.Hops) > 0 {
		h.guard.Release(f.RemotePublicKey, req.Route.Hops[0], req.DestPayment)
	}

	idx := req.Route.IndexOf(h.state.LocalPublicKey)
	if idx <= 0 {
		// We originated this request: surface it to the control
		// surface instead of forwarding further.
		if success {
			return []OutgoingControl{{Kind: ResponseReceivedSuccess, RequestId: requestId}}
		}
		return []OutgoingControl{{Kind: ResponseReceivedFailure, RequestId: requestId, ReportingKey: reportingKey}}
	}

	prevHop := req.Route.Hops[idx-1]
	prev, ok := h.state.Friends[prevHop]
	if !ok {
		return nil
	}

	if success {
		resp := tokenchannel.ResponseSendFundsOp{RequestId: requestId, RandNonce: req.RandNonce}
		prev.EnqueueBackwardsOp(tokenchannel.ResponseSendFundsTcOp(resp))
	} else {
		fail := tokenchannel.FailureSendFundsOp{RequestId: requestId, ReportingPubKey: reportingKey, RandNonce: req.RandNonce}
		prev.EnqueueBackwardsOp(tokenchannel.FailureSendFundsTcOp(fail))
	}
	return nil
}
