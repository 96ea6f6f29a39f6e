package funder

import (
	"crypto/rand"

	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/friend"
	"github.com/creditmesh/funder/tokenchannel"
)

// HandleControl implements the Control event category of §4.3: every
// variant either mutates FunderState directly or enqueues an op against a
// friend's channel. The variants that enqueue an op (SetFriendRemoteMaxDebt,
// SetRequestsStatus, RequestSendFunds), and ResetFriendChannel, then call
// trySendChannel so a held token is used immediately rather than waiting
// for the next tick.
func (h *Handler) HandleControl(msg IncomingControlMessage) ([]OutgoingComm, []OutgoingControl, error) {
	switch msg.Kind {
	case ControlAddFriend:
		return h.controlAddFriend(msg)
	case ControlRemoveFriend:
		return h.controlRemoveFriend(msg)
	case ControlSetFriendStatus:
		return h.controlSetFriendStatus(msg)
	case ControlSetFriendRelays:
		return h.controlSetFriendRelays(msg)
	case ControlSetFriendRemoteMaxDebt:
		return h.controlSetFriendRemoteMaxDebt(msg)
	case ControlSetRequestsStatus:
		return h.controlSetRequestsStatus(msg)
	case ControlResetFriendChannel:
		return h.controlResetFriendChannel(msg)
	case ControlRequestSendFunds:
		return h.controlRequestSendFunds(msg)
	case ControlReceiptAck:
		return h.controlReceiptAck(msg)
	case ControlAddRelay:
		h.state.Relays = append(h.state.Relays, msg.Relay)
		return nil, nil, nil
	case ControlRemoveRelay:
		h.removeRelay(msg.Relay.PublicKey)
		return nil, nil, nil
	case ControlGetReport:
		report := h.Report()
		return nil, []OutgoingControl{{Kind: ResponseReport, Report: &report}}, nil
	default:
		return nil, nil, nil
	}
}

func (h *Handler) removeRelay(pk creditproto.PublicKey) {
	kept := h.state.Relays[:0]
	for _, r := range h.state.Relays {
		if r.PublicKey != pk {
			kept = append(kept, r)
		}
	}
	h.state.Relays = kept
}

// controlAddFriend implements §3 Lifecycle: a brand-new friend is born
// Inconsistent with no shared history at all, so it goes through exactly
// the same reset negotiation as a friend that diverged later — bootstrapped
// from a throwaway zero-state channel rather than one that actually
// diverged. We publish our local reset terms (proposing msg.InitialBalance)
// immediately so the remote can call ResetFriendChannel as soon as it adds
// us back.
func (h *Handler) controlAddFriend(msg IncomingControlMessage) ([]OutgoingComm, []OutgoingControl, error) {
	if _, exists := h.state.Friends[msg.FriendPublicKey]; exists {
		return nil, nil, ErrFriendAlreadyExists
	}

	f := friend.New(msg.FriendPublicKey)
	f.RemoteRelays = msg.Relays
	h.state.Friends[msg.FriendPublicKey] = f

	bootstrap := tokenchannel.New(channelConfig, h.state.LocalPublicKey, msg.FriendPublicKey, creditproto.Zero())
	terms := bootstrap.LocalResetTerms(msg.InitialBalance)
	f.LocalResetTerms = &terms

	return []OutgoingComm{{
		Kind:            OutgoingInconsistencyError,
		FriendPublicKey: f.RemotePublicKey,
		ResetTerms:      &terms,
	}}, nil, nil
}

func (h *Handler) controlRemoveFriend(msg IncomingControlMessage) ([]OutgoingComm, []OutgoingControl, error) {
	if _, ok := h.state.Friends[msg.FriendPublicKey]; !ok {
		return nil, nil, ErrUnknownFriend
	}
	delete(h.state.Friends, msg.FriendPublicKey)
	return nil, nil, nil
}

func (h *Handler) controlSetFriendStatus(msg IncomingControlMessage) ([]OutgoingComm, []OutgoingControl, error) {
	f, ok := h.state.Friends[msg.FriendPublicKey]
	if !ok {
		return nil, nil, ErrUnknownFriend
	}
	if msg.Enabled {
		f.Status = friend.StatusEnabled
	} else {
		f.Status = friend.StatusDisabled
	}
	return nil, nil, nil
}

func (h *Handler) controlSetFriendRelays(msg IncomingControlMessage) ([]OutgoingComm, []OutgoingControl, error) {
	f, ok := h.state.Friends[msg.FriendPublicKey]
	if !ok {
		return nil, nil, ErrUnknownFriend
	}
	f.RemoteRelays = msg.Relays
	return nil, nil, nil
}

// controlSetFriendRemoteMaxDebt enqueues a SetRemoteMaxDebt op; the ledger
// side (the local_max_debt half, as seen by the remote) only takes effect
// once this op is actually applied via Compose/ApplyIncoming, matching
// §4.1's "a max-debt change is itself an op, not an instantaneous control
// mutation".
func (h *Handler) controlSetFriendRemoteMaxDebt(msg IncomingControlMessage) ([]OutgoingComm, []OutgoingControl, error) {
	f, ok := h.state.Friends[msg.FriendPublicKey]
	if !ok {
		return nil, nil, ErrUnknownFriend
	}
	f.WantedRemoteMaxDebt = msg.RemoteMaxDebt
	f.EnqueueBackwardsOp(tokenchannel.SetRemoteMaxDebtOp(msg.RemoteMaxDebt))
	return h.flushFriend(f)
}

func (h *Handler) controlSetRequestsStatus(msg IncomingControlMessage) ([]OutgoingComm, []OutgoingControl, error) {
	f, ok := h.state.Friends[msg.FriendPublicKey]
	if !ok {
		return nil, nil, ErrUnknownFriend
	}
	f.WantedLocalRequestsStatus = msg.RequestsOpen
	if msg.RequestsOpen {
		f.EnqueueBackwardsOp(tokenchannel.EnableRequestsOp())
	} else {
		f.EnqueueBackwardsOp(tokenchannel.DisableRequestsOp())
	}
	return h.flushFriend(f)
}

// controlResetFriendChannel implements §4.4's accept-the-remote's-terms
// half of the reset protocol: the embedder calls this once it has a reset
// token to offer back, matching what the remote published in an earlier
// InconsistencyError Friend event.
func (h *Handler) controlResetFriendChannel(msg IncomingControlMessage) ([]OutgoingComm, []OutgoingControl, error) {
	f, ok := h.state.Friends[msg.FriendPublicKey]
	if !ok {
		return nil, nil, ErrUnknownFriend
	}
	if f.ChannelStatus != friend.ChannelInconsistent || f.RemoteResetTerms == nil {
		return nil, nil, ErrNotInvitedToReset
	}

	tc := tokenchannel.New(channelConfig, h.state.LocalPublicKey, msg.FriendPublicKey, creditproto.Zero())
	if err := tc.Reset(msg.CurrentToken, *f.RemoteResetTerms, true); err != nil {
		return nil, nil, err
	}

	f.Channel = tc
	f.ChannelStatus = friend.ChannelConsistent
	f.LocalResetTerms = nil
	f.RemoteResetTerms = nil

	comm, err := h.trySendChannel(f, EmptyAllowed)
	if err != nil {
		return nil, nil, err
	}
	if comm == nil {
		return nil, nil, nil
	}
	return []OutgoingComm{*comm}, nil, nil
}

// controlRequestSendFunds implements the locally-originated half of §4.3's
// route handling: the first hop's readiness and the full freeze chain are
// checked up front, exactly mirroring handleIncomingRequest's forwarding
// branch but starting from our own identity instead of a received op.
func (h *Handler) controlRequestSendFunds(msg IncomingControlMessage) ([]OutgoingComm, []OutgoingControl, error) {
	if err := msg.Route.Validate(); err != nil {
		return nil, []OutgoingControl{{Kind: ResponseControlError, RequestId: msg.RequestId, Err: ErrInvalidRoute}}, nil
	}
	firstHop, ok := msg.Route.NextHop(h.state.LocalPublicKey)
	if !ok || msg.Route.IndexOf(h.state.LocalPublicKey) != 0 {
		return nil, []OutgoingControl{{Kind: ResponseControlError, RequestId: msg.RequestId, Err: ErrNotFirstInRoute}}, nil
	}

	f, ok := h.state.Friends[firstHop]
	if !ok || !f.ReadyForNewRequest(msg.RequestId) {
		return nil, []OutgoingControl{{Kind: ResponseControlError, RequestId: msg.RequestId, Err: ErrFriendNotReady}}, nil
	}

	link := tokenchannel.FreezeLink{
		SharedCredits: f.Channel.Credit().LocalMaxDebt(),
		UsableRatio:   tokenchannel.FullRatio(),
	}
	links := []tokenchannel.FreezeLink{link}
	if err := h.guard.TryFreeze(firstHop, msg.Route.Hops[0], links, msg.DestPayment); err != nil {
		h.metrics.freezeRejections.Inc()
		return nil, []OutgoingControl{{Kind: ResponseControlError, RequestId: msg.RequestId, Err: err}}, nil
	}

	op := tokenchannel.RequestSendFundsOp{
		RequestId:   msg.RequestId,
		Route:       msg.Route,
		DestPayment: msg.DestPayment,
		InvoiceId:   msg.InvoiceId,
		FreezeLinks: links,
	}
	_, _ = rand.Read(op.RandNonce[:])

	f.EnqueueUserRequest(friend.PendingUserRequest{Op: op, RequestId: msg.RequestId})
	return h.flushFriend(f)
}

func (h *Handler) controlReceiptAck(msg IncomingControlMessage) ([]OutgoingComm, []OutgoingControl, error) {
	delete(h.state.ReadyReceipts, msg.AckRequestId)
	return nil, nil, nil
}

// flushFriend attempts a send if f currently holds the token, used by
// every control handler that just enqueued something.
func (h *Handler) flushFriend(f *friend.Friend) ([]OutgoingComm, []OutgoingControl, error) {
	comm, err := h.trySendChannel(f, EmptyNotAllowed)
	if err != nil {
		return nil, nil, err
	}
	if comm == nil {
		return nil, nil, nil
	}
	return []OutgoingComm{*comm}, nil, nil
}
