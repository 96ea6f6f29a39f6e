// Package funder implements the top-level per-node state machine of §4.3:
// it consumes Control, Friend and Liveness events and produces the
// mutations and outgoing effects the rest of the system acts on.
package funder

import (
	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/friend"
	"github.com/creditmesh/funder/tokenchannel"
)

// NamedRelayAddress is one relay this node advertises itself reachable at.
type NamedRelayAddress struct {
	PublicKey creditproto.PublicKey
	Address   string
	Name      string
}

// SendFundsReceipt is the signed proof of a completed payment bound to a
// specific invoice, route and freshness nonce (§4.3 step 1, GLOSSARY
// "Receipt").
type SendFundsReceipt struct {
	RequestId   creditproto.Uid
	InvoiceId   creditproto.InvoiceId
	DestPayment creditproto.CreditAmount
	RouteHash   creditproto.HashResult
	RandNonce   creditproto.RandValue
	Signature   creditproto.Signature
}

func (r SendFundsReceipt) signedBytes() []byte {
	buf := make([]byte, 0, creditproto.UidLen+creditproto.InvoiceIdLen+16+creditproto.HashResultLen+creditproto.RandValueLen)
	buf = append(buf, r.RequestId[:]...)
	buf = append(buf, r.InvoiceId[:]...)
	amtBytes := make([]byte, 16)
	hi, lo := r.DestPayment.Hi, r.DestPayment.Lo
	for i := 7; i >= 0; i-- {
		amtBytes[i] = byte(hi)
		hi >>= 8
	}
	for i := 15; i >= 8; i-- {
		amtBytes[i] = byte(lo)
		lo >>= 8
	}
	buf = append(buf, amtBytes...)
	buf = append(buf, r.RouteHash[:]...)
	buf = append(buf, r.RandNonce[:]...)
	return buf
}

// Sign fills in Signature over the receipt's bound fields.
func (r *SendFundsReceipt) Sign(signer creditproto.Signer) error {
	sig, err := signer.Sign(r.signedBytes())
	if err != nil {
		return err
	}
	r.Signature = sig
	return nil
}

// Verify checks Signature under the destination's claimed public key.
func (r SendFundsReceipt) Verify(destPubKey creditproto.PublicKey) bool {
	return creditproto.Verify(destPubKey, r.signedBytes(), r.Signature)
}

// State is the persisted FunderState of §3: local identity, the friends
// map, the advertised relay list, and outstanding receipts awaiting ack.
type State struct {
	LocalPublicKey creditproto.PublicKey
	Friends        map[creditproto.PublicKey]*friend.Friend
	Relays         []NamedRelayAddress
	ReadyReceipts  map[creditproto.Uid]SendFundsReceipt
}

// NewState constructs an empty FunderState for a freshly-born node (§3
// Lifecycle: "FunderState is born empty at first run with a single local
// public key").
func NewState(local creditproto.PublicKey) *State {
	return &State{
		LocalPublicKey: local,
		Friends:        make(map[creditproto.PublicKey]*friend.Friend),
		ReadyReceipts:  make(map[creditproto.Uid]SendFundsReceipt),
	}
}

// channelConfig is the shared TokenChannel configuration every friend's
// channel is constructed with.
var channelConfig = tokenchannel.DefaultConfig()
