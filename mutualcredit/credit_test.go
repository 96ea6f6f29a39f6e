package mutualcredit

import (
	"testing"

	"github.com/creditmesh/funder/creditproto"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

func amt(v uint64) creditproto.CreditAmount {
	return uint128.From64(v)
}

func reqWithID(id byte, payment uint64) PendingFriendRequest {
	var uid creditproto.Uid
	uid[0] = id
	return PendingFriendRequest{
		RequestId:   uid,
		DestPayment: amt(payment),
	}
}

func TestSetMaxDebtRejectsBelowPending(t *testing.T) {
	mc := New(creditproto.Zero())
	require.NoError(t, mc.SetRemoteMaxDebt(amt(100)))
	mc.SetLocalRequestsStatus(StatusOpen)

	require.NoError(t, mc.InsertRemotePendingRequest(reqWithID(1, 40)))
	require.ErrorIs(t, mc.SetRemoteMaxDebt(amt(10)), ErrMaxDebtTooLarge)
}

func TestInsertPendingRequestRejectedWhenClosed(t *testing.T) {
	mc := New(creditproto.Zero())
	require.NoError(t, mc.SetLocalMaxDebt(amt(100)))

	err := mc.InsertLocalPendingRequest(reqWithID(1, 10))
	require.ErrorIs(t, err, ErrRequestsClosed)
}

func TestInsertPendingRequestOverMaxDebtRejected(t *testing.T) {
	mc := New(creditproto.Zero())
	require.NoError(t, mc.SetLocalMaxDebt(amt(50)))
	mc.SetRemoteRequestsStatus(StatusOpen)

	err := mc.InsertLocalPendingRequest(reqWithID(1, 60))
	require.ErrorIs(t, err, ErrCreditsOverflow)
}

func TestApplyResponseLocalDebitsBalance(t *testing.T) {
	mc := New(creditproto.NewBalance(100))
	require.NoError(t, mc.SetLocalMaxDebt(amt(200)))
	mc.SetRemoteRequestsStatus(StatusOpen)

	req := reqWithID(3, 20)
	require.NoError(t, mc.InsertLocalPendingRequest(req))
	require.Equal(t, amt(20), mc.LocalPendingDebt())

	local, resolved, err := mc.ApplyResponse(req.RequestId)
	require.NoError(t, err)
	require.True(t, local)
	require.Equal(t, req.RequestId, resolved.RequestId)
	require.Equal(t, creditproto.ZeroCredit, mc.LocalPendingDebt())
	require.Equal(t, int64(80), mc.Balance().Int64())
}

func TestApplyResponseRemoteCreditsBalance(t *testing.T) {
	mc := New(creditproto.Zero())
	require.NoError(t, mc.SetRemoteMaxDebt(amt(200)))
	mc.SetLocalRequestsStatus(StatusOpen)

	req := reqWithID(4, 20)
	require.NoError(t, mc.InsertRemotePendingRequest(req))

	local, _, err := mc.ApplyResponse(req.RequestId)
	require.NoError(t, err)
	require.False(t, local)
	require.Equal(t, int64(20), mc.Balance().Int64())
}

func TestApplyFailureLeavesBalanceUnchanged(t *testing.T) {
	mc := New(creditproto.NewBalance(5))
	require.NoError(t, mc.SetLocalMaxDebt(amt(200)))
	mc.SetRemoteRequestsStatus(StatusOpen)

	req := reqWithID(5, 20)
	require.NoError(t, mc.InsertLocalPendingRequest(req))

	local, _, err := mc.ApplyFailure(req.RequestId)
	require.NoError(t, err)
	require.True(t, local)
	require.Equal(t, int64(5), mc.Balance().Int64())
	require.Equal(t, creditproto.ZeroCredit, mc.LocalPendingDebt())
}

func TestApplyResponseUnknownRequestErrors(t *testing.T) {
	mc := New(creditproto.Zero())
	_, _, err := mc.ApplyResponse(creditproto.Uid{9})
	require.ErrorIs(t, err, ErrPendingRequestNotFound)
}

func TestDuplicateRequestIdRejected(t *testing.T) {
	mc := New(creditproto.Zero())
	require.NoError(t, mc.SetLocalMaxDebt(amt(200)))
	mc.SetRemoteRequestsStatus(StatusOpen)

	req := reqWithID(7, 10)
	require.NoError(t, mc.InsertLocalPendingRequest(req))
	require.ErrorIs(t, mc.InsertLocalPendingRequest(req), ErrDuplicateRequestId)
}
