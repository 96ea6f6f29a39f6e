package tokenchannel

import (
	"github.com/creditmesh/funder/mutualcredit"
)

// applyOp mutates credit to reflect op, where incoming reports whether op
// arrived from the remote (true) or is being composed by us (false). The
// mapping mirrors the sender's perspective: an EnableRequests/
// DisableRequests op always describes the *sender's own* local_requests
// side, and SetRemoteMaxDebt always sets the cap the *sender* is willing
// to extend. Applying the same op on the receiving side therefore maps to
// the mirrored field (remote_requests_status / local_max_debt).
func applyOp(credit *mutualcredit.MutualCredit, op FriendTcOp, incoming bool) error {
	switch op.Type {
	case OpEnableRequests:
		if incoming {
			credit.SetRemoteRequestsStatus(mutualcredit.StatusOpen)
		} else {
			credit.SetLocalRequestsStatus(mutualcredit.StatusOpen)
		}
		return nil

	case OpDisableRequests:
		if incoming {
			credit.SetRemoteRequestsStatus(mutualcredit.StatusClosed)
		} else {
			credit.SetLocalRequestsStatus(mutualcredit.StatusClosed)
		}
		return nil

	case OpSetRemoteMaxDebt:
		if incoming {
			return credit.SetLocalMaxDebt(op.MaxDebt)
		}
		return credit.SetRemoteMaxDebt(op.MaxDebt)

	case OpRequestSendFunds:
		pending := mutualcredit.PendingFriendRequest{
			RequestId:   op.Request.RequestId,
			Route:       op.Request.Route,
			DestPayment: op.Request.DestPayment,
			InvoiceId:   op.Request.InvoiceId,
			RandNonce:   op.Request.RandNonce,
		}
		if incoming {
			return credit.InsertRemotePendingRequest(pending)
		}
		return credit.InsertLocalPendingRequest(pending)

	case OpResponseSendFunds:
		_, _, err := credit.ApplyResponse(op.Response.RequestId)
		return err

	case OpFailureSendFunds:
		_, _, err := credit.ApplyFailure(op.Failure.RequestId)
		return err

	default:
		return ErrInvalidOperations
	}
}
