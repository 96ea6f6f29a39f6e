// Package tokenchannel implements the signed MoveToken history envelope
// around a mutualcredit.MutualCredit (spec §3 "TokenChannel", §4.2). It
// owns the who-holds-the-token invariant and the canonical byte layout
// that every MoveToken and FriendTcOp is signed over.
package tokenchannel

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/creditmesh/funder/creditproto"
)

// OpType tags the variant of a FriendTcOp. The numeric values are part of
// the canonical wire encoding and MUST NOT be renumbered.
type OpType uint8

const (
	OpEnableRequests OpType = iota
	OpDisableRequests
	OpSetRemoteMaxDebt
	OpRequestSendFunds
	OpResponseSendFunds
	OpFailureSendFunds
)

func (t OpType) String() string {
	switch t {
	case OpEnableRequests:
		return "EnableRequests"
	case OpDisableRequests:
		return "DisableRequests"
	case OpSetRemoteMaxDebt:
		return "SetRemoteMaxDebt"
	case OpRequestSendFunds:
		return "RequestSendFunds"
	case OpResponseSendFunds:
		return "ResponseSendFunds"
	case OpFailureSendFunds:
		return "FailureSendFunds"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Ratio is the usable_ratio term of a FunderFreezeLink (§4.5): either the
// full 1.0 ("One"), or Numerator/2^128.
type Ratio struct {
	One       bool
	Numerator creditproto.CreditAmount
}

// FullRatio is the "One" ratio: the hop offers its entire shared credit.
func FullRatio() Ratio { return Ratio{One: true} }

// FreezeLink is one hop's contribution to a request's freeze-guard chain
// (§4.5).
type FreezeLink struct {
	SharedCredits creditproto.CreditAmount
	UsableRatio   Ratio
}

// RequestSendFundsOp is the payload of a RequestSendFunds FriendTcOp.
type RequestSendFundsOp struct {
	RequestId   creditproto.Uid
	Route       creditproto.FriendsRoute
	DestPayment creditproto.CreditAmount
	InvoiceId   creditproto.InvoiceId
	FreezeLinks []FreezeLink
	RandNonce   creditproto.RandValue
}

// ResponseSendFundsOp is the payload of a ResponseSendFunds FriendTcOp: a
// signed receipt travelling back along the route.
type ResponseSendFundsOp struct {
	RequestId     creditproto.Uid
	RandNonce     creditproto.RandValue
	ReceiptHash   creditproto.HashResult
	SigningPubKey creditproto.PublicKey
	Signature     creditproto.Signature
}

// FailureSendFundsOp is the payload of a FailureSendFunds FriendTcOp.
type FailureSendFundsOp struct {
	RequestId        creditproto.Uid
	ReportingPubKey  creditproto.PublicKey
	RandNonce        creditproto.RandValue
	Signature        creditproto.Signature
}

// FriendTcOp is a tagged union over the six operations a MoveToken may
// batch (§3 "FriendTcOp").
type FriendTcOp struct {
	Type OpType

	// Populated only for OpSetRemoteMaxDebt.
	MaxDebt creditproto.CreditAmount

	// Populated only for OpRequestSendFunds.
	Request *RequestSendFundsOp

	// Populated only for OpResponseSendFunds.
	Response *ResponseSendFundsOp

	// Populated only for OpFailureSendFunds.
	Failure *FailureSendFundsOp
}

// EnableRequestsOp builds an EnableRequests op.
func EnableRequestsOp() FriendTcOp { return FriendTcOp{Type: OpEnableRequests} }

// DisableRequestsOp builds a DisableRequests op.
func DisableRequestsOp() FriendTcOp { return FriendTcOp{Type: OpDisableRequests} }

// SetRemoteMaxDebtOp builds a SetRemoteMaxDebt op.
func SetRemoteMaxDebtOp(maxDebt creditproto.CreditAmount) FriendTcOp {
	return FriendTcOp{Type: OpSetRemoteMaxDebt, MaxDebt: maxDebt}
}

// RequestSendFundsTcOp wraps a RequestSendFundsOp as a FriendTcOp.
func RequestSendFundsTcOp(req RequestSendFundsOp) FriendTcOp {
	return FriendTcOp{Type: OpRequestSendFunds, Request: &req}
}

// ResponseSendFundsTcOp wraps a ResponseSendFundsOp as a FriendTcOp.
func ResponseSendFundsTcOp(resp ResponseSendFundsOp) FriendTcOp {
	return FriendTcOp{Type: OpResponseSendFunds, Response: &resp}
}

// FailureSendFundsTcOp wraps a FailureSendFundsOp as a FriendTcOp.
func FailureSendFundsTcOp(fail FailureSendFundsOp) FriendTcOp {
	return FriendTcOp{Type: OpFailureSendFunds, Failure: &fail}
}

// Encode writes the canonical serialization of op. This byte layout is
// part of what gets signed into a MoveToken's new_token (§9: "A canonical
// byte serialization is REQUIRED").
func (op FriendTcOp) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{byte(op.Type)}); err != nil {
		return err
	}

	switch op.Type {
	case OpEnableRequests, OpDisableRequests:
		return nil

	case OpSetRemoteMaxDebt:
		return creditproto.WriteCreditAmount(w, op.MaxDebt)

	case OpRequestSendFunds:
		return encodeRequest(w, op.Request)

	case OpResponseSendFunds:
		return encodeResponse(w, op.Response)

	case OpFailureSendFunds:
		return encodeFailure(w, op.Failure)

	default:
		return fmt.Errorf("tokenchannel: unknown op type %d", op.Type)
	}
}

func encodeRequest(w io.Writer, req *RequestSendFundsOp) error {
	if _, err := w.Write(req.RequestId[:]); err != nil {
		return err
	}
	if err := req.Route.Encode(w); err != nil {
		return err
	}
	if err := creditproto.WriteCreditAmount(w, req.DestPayment); err != nil {
		return err
	}
	if _, err := w.Write(req.InvoiceId[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(req.FreezeLinks))); err != nil {
		return err
	}
	for _, link := range req.FreezeLinks {
		if err := creditproto.WriteCreditAmount(w, link.SharedCredits); err != nil {
			return err
		}
		var oneByte byte
		if link.UsableRatio.One {
			oneByte = 1
		}
		if _, err := w.Write([]byte{oneByte}); err != nil {
			return err
		}
		if err := creditproto.WriteCreditAmount(w, link.UsableRatio.Numerator); err != nil {
			return err
		}
	}
	_, err := w.Write(req.RandNonce[:])
	return err
}

func encodeResponse(w io.Writer, resp *ResponseSendFundsOp) error {
	if _, err := w.Write(resp.RequestId[:]); err != nil {
		return err
	}
	if _, err := w.Write(resp.RandNonce[:]); err != nil {
		return err
	}
	if _, err := w.Write(resp.ReceiptHash[:]); err != nil {
		return err
	}
	if _, err := w.Write(resp.SigningPubKey[:]); err != nil {
		return err
	}
	_, err := w.Write(resp.Signature[:])
	return err
}

func encodeFailure(w io.Writer, fail *FailureSendFundsOp) error {
	if _, err := w.Write(fail.RequestId[:]); err != nil {
		return err
	}
	if _, err := w.Write(fail.ReportingPubKey[:]); err != nil {
		return err
	}
	if _, err := w.Write(fail.RandNonce[:]); err != nil {
		return err
	}
	_, err := w.Write(fail.Signature[:])
	return err
}

// Bytes returns the canonical serialization of op as a standalone slice.
func (op FriendTcOp) Bytes() []byte {
	var buf bytes.Buffer
	_ = op.Encode(&buf)
	return buf.Bytes()
}

// approxSize estimates the serialized size of op for MAX_MOVE_TOKEN_LENGTH
// budgeting (§4.2), without actually serializing it.
func (op FriendTcOp) approxSize() int {
	switch op.Type {
	case OpEnableRequests, OpDisableRequests:
		return 1
	case OpSetRemoteMaxDebt:
		return 1 + 16
	case OpRequestSendFunds:
		n := 1 + creditproto.UidLen + 8 + len(op.Request.Route.Hops)*creditproto.PublicKeyLen +
			16 + creditproto.InvoiceIdLen + 4 + creditproto.RandValueLen
		n += len(op.Request.FreezeLinks) * (16 + 1 + 16)
		return n
	case OpResponseSendFunds:
		return 1 + creditproto.UidLen + creditproto.RandValueLen + creditproto.HashResultLen +
			creditproto.PublicKeyLen + creditproto.SignatureLen
	case OpFailureSendFunds:
		return 1 + creditproto.UidLen + creditproto.PublicKeyLen + creditproto.RandValueLen +
			creditproto.SignatureLen
	default:
		return 1
	}
}
