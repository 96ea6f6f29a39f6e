package funder

import (
	"testing"

	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/friend"
	"github.com/creditmesh/funder/identity"
	"github.com/creditmesh/funder/tokenchannel"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

func amt(v uint64) creditproto.CreditAmount {
	return uint128.From64(v)
}

// testNode pairs a Handler with the identity.Service backing its signer,
// the same ownership split cmd/funderd holds between the control surface
// and the identity subsystem.
type testNode struct {
	pk      creditproto.PublicKey
	handler *Handler
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()
	svc, err := identity.Generate()
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return &testNode{pk: svc.PublicKey(), handler: New(svc, NewState(svc.PublicKey()))}
}

// network maps every node's public key to itself, the minimal stand-in for
// the Channeler/transport layer a real deployment would route encrypted
// Friend messages through (SPEC_FULL.md's transport package, deliberately
// out of scope for this single-threaded Handler test).
type network map[creditproto.PublicKey]*testNode

func newNetwork(t *testing.T, nodes ...*testNode) network {
	t.Helper()
	net := make(network, len(nodes))
	for _, n := range nodes {
		net[n.pk] = n
	}
	return net
}

// drainComms delivers a batch of OutgoingComm produced by `from` and
// recursively delivers whatever each recipient produces in turn, the way a
// perfectly reliable synchronous transport would. Returns every
// OutgoingControl surfaced along the way (originator-side payment
// resolutions, mainly).
func drainComms(t *testing.T, net network, from creditproto.PublicKey, comms []OutgoingComm) []OutgoingControl {
	t.Helper()

	type queued struct {
		from creditproto.PublicKey
		comm OutgoingComm
	}
	queue := make([]queued, 0, len(comms))
	for _, c := range comms {
		queue = append(queue, queued{from: from, comm: c})
	}

	var controls []OutgoingControl
	for i := 0; i < len(queue); i++ {
		require.Less(t, i, 64, "comm cascade did not settle, likely a handler bug")
		m := queue[i]

		recipient, ok := net[m.comm.FriendPublicKey]
		require.True(t, ok, "no such node %x in network", m.comm.FriendPublicKey)

		var ev FriendEvent
		switch m.comm.Kind {
		case OutgoingMoveToken:
			ev = FriendEvent{Kind: FriendEventMoveToken, FriendPublicKey: m.from, MoveToken: m.comm.MoveToken}
		case OutgoingInconsistencyError:
			ev = FriendEvent{Kind: FriendEventInconsistencyError, FriendPublicKey: m.from, ResetTerms: m.comm.ResetTerms}
		}

		nextComms, nextControls, err := recipient.handler.HandleFriendEvent(ev)
		require.NoError(t, err)
		controls = append(controls, nextControls...)
		for _, nc := range nextComms {
			queue = append(queue, queued{from: m.comm.FriendPublicKey, comm: nc})
		}
	}
	return controls
}

// establishFriendship runs both sides through §4.4's reset negotiation from
// a cold start (§3 Lifecycle: friends are born Inconsistent), landing both
// channels Consistent. balanceA/balanceB are each side's own proposed
// starting balance and need not agree (the S4 scenario exercises the
// disagreeing case directly).
func establishFriendship(t *testing.T, net network, aPK, bPK creditproto.PublicKey, balanceA, balanceB int64) {
	t.Helper()
	a := net[aPK].handler
	b := net[bPK].handler

	commsA, _, err := a.HandleControl(IncomingControlMessage{
		Kind: ControlAddFriend, FriendPublicKey: bPK, InitialBalance: creditproto.NewBalance(balanceA),
	})
	require.NoError(t, err)
	commsB, _, err := b.HandleControl(IncomingControlMessage{
		Kind: ControlAddFriend, FriendPublicKey: aPK, InitialBalance: creditproto.NewBalance(balanceB),
	})
	require.NoError(t, err)

	drainComms(t, net, aPK, commsA)
	drainComms(t, net, bPK, commsB)

	fa := a.State().Friends[bPK]
	require.NotNil(t, fa.RemoteResetTerms, "a did not receive b's reset terms")

	resetComms, _, err := a.HandleControl(IncomingControlMessage{
		Kind: ControlResetFriendChannel, FriendPublicKey: bPK, CurrentToken: fa.RemoteResetTerms.ResetToken,
	})
	require.NoError(t, err)
	drainComms(t, net, aPK, resetComms)

	require.Equal(t, friend.ChannelConsistent, a.State().Friends[bPK].ChannelStatus)
	require.Equal(t, friend.ChannelConsistent, b.State().Friends[aPK].ChannelStatus)
}

// ensureHolds bounces an empty MoveToken from friendPK to holderPK, as many
// times as it takes, until holderPK's channel to friendPK actually holds
// the token — needed because a control call that enqueues an op only sends
// immediately when the caller's side already holds it (§4.3).
func ensureHolds(t *testing.T, net network, holderPK, friendPK creditproto.PublicKey) {
	t.Helper()
	for i := 0; i < 4; i++ {
		f := net[holderPK].handler.State().Friends[friendPK]
		require.NotNil(t, f.Channel)
		if f.Channel.Direction() == tokenchannel.DirectionIncoming {
			return
		}
		bounce, err := net[friendPK].handler.HandleLiveness(LivenessEvent{FriendPublicKey: holderPK, Online: true})
		require.NoError(t, err)
		drainComms(t, net, friendPK, bounce)
	}
	t.Fatalf("could not hand the token to %x for friend %x", holderPK, friendPK)
}

// grantSendingCapacity has composerPK open its own local_requests_status
// and declare a remote_max_debt for friendPK, which friendPK observes
// (mirrored per apply.go) as remote_requests_status Open and a
// local_max_debt cap of maxDebt — what ReadyForNewRequest and
// InsertLocalPendingRequest both gate on before friendPK may originate or
// forward a request toward composerPK.
func grantSendingCapacity(t *testing.T, net network, composerPK, friendPK creditproto.PublicKey, maxDebt uint64) {
	t.Helper()
	composer := net[composerPK].handler

	ensureHolds(t, net, composerPK, friendPK)
	comms, _, err := composer.HandleControl(IncomingControlMessage{
		Kind: ControlSetRequestsStatus, FriendPublicKey: friendPK, RequestsOpen: true,
	})
	require.NoError(t, err)
	drainComms(t, net, composerPK, comms)

	ensureHolds(t, net, composerPK, friendPK)
	comms, _, err = composer.HandleControl(IncomingControlMessage{
		Kind: ControlSetFriendRemoteMaxDebt, FriendPublicKey: friendPK, RemoteMaxDebt: amt(maxDebt),
	})
	require.NoError(t, err)
	drainComms(t, net, composerPK, comms)
}

// openMutualCreditLine wires both directions of a friendship (a fresh
// reset plus a symmetric sending allowance each way), the setup every
// payment-routing scenario below starts from.
func openMutualCreditLine(t *testing.T, net network, aPK, bPK creditproto.PublicKey, maxDebt uint64) {
	t.Helper()
	establishFriendship(t, net, aPK, bPK, 0, 0)
	grantSendingCapacity(t, net, bPK, aPK, maxDebt)
	grantSendingCapacity(t, net, aPK, bPK, maxDebt)
}

func TestHandlerS1DirectPaymentSucceeds(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	net := newNetwork(t, a, b)

	openMutualCreditLine(t, net, a.pk, b.pk, 1000)
	ensureHolds(t, net, a.pk, b.pk)

	route, err := creditproto.NewFriendsRoute([]creditproto.PublicKey{a.pk, b.pk})
	require.NoError(t, err)

	reqId := creditproto.Uid{1}
	comms, ctrls, err := a.handler.HandleControl(IncomingControlMessage{
		Kind:        ControlRequestSendFunds,
		RequestId:   reqId,
		Route:       route,
		DestPayment: amt(30),
		InvoiceId:   creditproto.InvoiceId{1},
	})
	require.NoError(t, err)
	require.Empty(t, ctrls)

	resolved := drainComms(t, net, a.pk, comms)
	require.Len(t, resolved, 1)
	require.Equal(t, ResponseReceivedSuccess, resolved[0].Kind)
	require.Equal(t, reqId, resolved[0].RequestId)

	require.Equal(t, 0, a.handler.State().Friends[b.pk].Channel.Credit().Balance().Cmp(creditproto.NewBalance(-30)))
	require.Equal(t, 0, b.handler.State().Friends[a.pk].Channel.Credit().Balance().Cmp(creditproto.NewBalance(30)))
}

func TestHandlerS2ForwardedPaymentSucceeds(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	c := newTestNode(t)
	net := newNetwork(t, a, b, c)

	openMutualCreditLine(t, net, a.pk, b.pk, 1000)
	openMutualCreditLine(t, net, b.pk, c.pk, 1000)
	ensureHolds(t, net, a.pk, b.pk)

	route, err := creditproto.NewFriendsRoute([]creditproto.PublicKey{a.pk, b.pk, c.pk})
	require.NoError(t, err)

	reqId := creditproto.Uid{2}
	comms, ctrls, err := a.handler.HandleControl(IncomingControlMessage{
		Kind:        ControlRequestSendFunds,
		RequestId:   reqId,
		Route:       route,
		DestPayment: amt(15),
		InvoiceId:   creditproto.InvoiceId{2},
	})
	require.NoError(t, err)
	require.Empty(t, ctrls)

	resolved := drainComms(t, net, a.pk, comms)
	require.Len(t, resolved, 1)
	require.Equal(t, ResponseReceivedSuccess, resolved[0].Kind)

	require.Equal(t, 0, a.handler.State().Friends[b.pk].Channel.Credit().Balance().Cmp(creditproto.NewBalance(-15)))
	require.Equal(t, 0, b.handler.State().Friends[a.pk].Channel.Credit().Balance().Cmp(creditproto.NewBalance(15)))
	require.Equal(t, 0, b.handler.State().Friends[c.pk].Channel.Credit().Balance().Cmp(creditproto.NewBalance(-15)))
	require.Equal(t, 0, c.handler.State().Friends[b.pk].Channel.Credit().Balance().Cmp(creditproto.NewBalance(15)))

	require.Zero(t, b.handler.guard.Frozen(c.pk, a.pk).Cmp(creditproto.ZeroCredit), "freeze guard must release its hold once the request resolves")
}

func TestHandlerS3FailureBackpropagatesWhenNextHopIsUnready(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	c := newTestNode(t)
	net := newNetwork(t, a, b, c)

	// b and c are never introduced to each other: b's NextHop lookup
	// resolves c's identity but h.state.Friends[c] does not exist, so
	// forwarding fails at b with ErrFriendNotReady and must propagate
	// back to a as a failure rather than hanging or erroring the handler.
	openMutualCreditLine(t, net, a.pk, b.pk, 1000)
	ensureHolds(t, net, a.pk, b.pk)

	route, err := creditproto.NewFriendsRoute([]creditproto.PublicKey{a.pk, b.pk, c.pk})
	require.NoError(t, err)

	reqId := creditproto.Uid{3}
	comms, ctrls, err := a.handler.HandleControl(IncomingControlMessage{
		Kind:        ControlRequestSendFunds,
		RequestId:   reqId,
		Route:       route,
		DestPayment: amt(5),
		InvoiceId:   creditproto.InvoiceId{3},
	})
	require.NoError(t, err)
	require.Empty(t, ctrls)

	resolved := drainComms(t, net, a.pk, comms)
	require.Len(t, resolved, 1)
	require.Equal(t, ResponseReceivedFailure, resolved[0].Kind)
	require.Equal(t, reqId, resolved[0].RequestId)
	require.Equal(t, b.pk, resolved[0].ReportingKey)

	// Nothing should have moved: the failed request never touched either
	// channel's balance, and its freeze was released.
	require.Equal(t, 0, a.handler.State().Friends[b.pk].Channel.Credit().Balance().Cmp(creditproto.Zero()))
	require.Zero(t, a.handler.guard.Frozen(b.pk, a.pk).Cmp(creditproto.ZeroCredit))
}

// TestHandlerS4InconsistencyRecoversToMatchingBalances exercises §8's S4
// worked example directly: two sides add each other with incompatible
// proposed balances (A says 20, B says -8), both channels go Inconsistent
// on first contact, and a single ResetFriendChannel call on A's side
// (consuming B's published terms) brings both back to Consistent with
// A's balance at +8 and B's at the mirrored -8.
func TestHandlerS4InconsistencyRecoversToMatchingBalances(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	net := newNetwork(t, a, b)

	establishFriendship(t, net, a.pk, b.pk, 20, -8)

	require.Equal(t, 0, a.handler.State().Friends[b.pk].Channel.Credit().Balance().Cmp(creditproto.NewBalance(8)))
	require.Equal(t, 0, b.handler.State().Friends[a.pk].Channel.Credit().Balance().Cmp(creditproto.NewBalance(-8)))
}

func TestHandlerGetReportReflectsFriendState(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	net := newNetwork(t, a, b)

	openMutualCreditLine(t, net, a.pk, b.pk, 500)

	_, ctrls, err := a.handler.HandleControl(IncomingControlMessage{Kind: ControlGetReport})
	require.NoError(t, err)
	require.Len(t, ctrls, 1)
	require.Equal(t, ResponseReport, ctrls[0].Kind)
	require.NotNil(t, ctrls[0].Report)

	report := *ctrls[0].Report
	require.Equal(t, a.pk, report.LocalPublicKey)
	require.Len(t, report.Friends, 1)
	require.Equal(t, b.pk, report.Friends[0].PublicKey)
	require.Equal(t, friend.ChannelConsistent, report.Friends[0].ChannelStatus)
}
