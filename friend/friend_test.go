package friend

import (
	"testing"

	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/tokenchannel"
	"github.com/stretchr/testify/require"
)

func pk(b byte) creditproto.PublicKey {
	var k creditproto.PublicKey
	k[0] = b
	return k
}

func TestNewFriendStartsInconsistentAndNotReady(t *testing.T) {
	f := New(pk(2))
	require.Equal(t, ChannelInconsistent, f.ChannelStatus)
	require.False(t, f.ReadyForNewRequest(creditproto.Uid{1}))
}

func TestReadyForNewRequestRequiresOnlineConsistentOpen(t *testing.T) {
	f := New(pk(2))
	cfg := tokenchannel.DefaultConfig()
	f.Channel = tokenchannel.New(cfg, pk(1), pk(2), creditproto.Zero())
	f.ChannelStatus = ChannelConsistent

	require.False(t, f.ReadyForNewRequest(creditproto.Uid{1}), "offline friend not ready")

	f.SetLiveness(true)
	require.False(t, f.ReadyForNewRequest(creditproto.Uid{1}), "remote requests closed")

	f.Channel.Credit().SetRemoteRequestsStatus(1)
	require.True(t, f.ReadyForNewRequest(creditproto.Uid{1}))

	f.InflightRequestIds[creditproto.Uid{1}] = struct{}{}
	require.False(t, f.ReadyForNewRequest(creditproto.Uid{1}), "already in flight")
}

func TestDrainCandidateOpsOrdersBackwardsFirst(t *testing.T) {
	f := New(pk(2))
	f.EnqueueUserRequest(PendingUserRequest{
		Op:        tokenchannel.RequestSendFundsOp{RequestId: creditproto.Uid{1}},
		RequestId: creditproto.Uid{1},
	})
	f.EnqueueBackwardsOp(tokenchannel.FriendTcOp{Type: tokenchannel.OpFailureSendFunds,
		Failure: &tokenchannel.FailureSendFundsOp{RequestId: creditproto.Uid{2}}})

	ops := f.DrainCandidateOps()
	require.Len(t, ops, 2)
	require.Equal(t, tokenchannel.OpFailureSendFunds, ops[0].Type)
	require.Equal(t, tokenchannel.OpRequestSendFunds, ops[1].Type)
	require.Empty(t, f.PendingUserRequests)
	require.Empty(t, f.PendingBackwardsOps)
}
