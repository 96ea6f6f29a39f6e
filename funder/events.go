package funder

import (
	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/tokenchannel"
)

// ControlKind tags the variant of an IncomingControlMessage (§4.3).
type ControlKind uint8

const (
	ControlAddFriend ControlKind = iota
	ControlRemoveFriend
	ControlSetFriendStatus
	ControlSetFriendRelays
	ControlSetFriendRemoteMaxDebt
	ControlSetRequestsStatus
	ControlResetFriendChannel
	ControlRequestSendFunds
	ControlReceiptAck
	ControlAddRelay
	ControlRemoveRelay
	ControlGetReport
)

// IncomingControlMessage is the full control-surface enumeration named in
// §4.3 and carried with the field shapes of
// `components/funder/src/handler/handle_control.rs` per SPEC_FULL.md's
// SUPPLEMENTED FEATURES.
type IncomingControlMessage struct {
	Kind ControlKind

	// AddFriend / RemoveFriend / SetFriendStatus / SetFriendRelays /
	// SetFriendRemoteMaxDebt / SetRequestsStatus / ResetFriendChannel
	FriendPublicKey creditproto.PublicKey
	InitialBalance  creditproto.Balance
	Enabled         bool
	Relays          []tokenchannel.RelayAddress
	RemoteMaxDebt   creditproto.CreditAmount
	RequestsOpen    bool
	CurrentToken    creditproto.HashResult

	// RequestSendFunds
	RequestId   creditproto.Uid
	Route       creditproto.FriendsRoute
	DestPayment creditproto.CreditAmount
	InvoiceId   creditproto.InvoiceId

	// ReceiptAck
	AckRequestId creditproto.Uid

	// AddRelay / RemoveRelay
	Relay NamedRelayAddress
}

// FriendEventKind tags the variant of a decrypted Friend message (§4.3).
type FriendEventKind uint8

const (
	FriendEventMoveToken FriendEventKind = iota
	FriendEventInconsistencyError
)

// FriendEvent is a decrypted message arriving from a peer over its
// encrypted channel (§4.3).
type FriendEvent struct {
	Kind            FriendEventKind
	FriendPublicKey creditproto.PublicKey
	MoveToken       *tokenchannel.MoveToken
	ResetTerms      *tokenchannel.ResetTerms
}

// LivenessEvent reports a friend's connection coming up or going down.
type LivenessEvent struct {
	FriendPublicKey creditproto.PublicKey
	Online          bool
}

// OutgoingCommKind tags the variant of an OutgoingComm.
type OutgoingCommKind uint8

const (
	OutgoingMoveToken OutgoingCommKind = iota
	OutgoingInconsistencyError
)

// OutgoingComm is an encrypted message to push to a friend.
type OutgoingComm struct {
	Kind            OutgoingCommKind
	FriendPublicKey creditproto.PublicKey
	MoveToken       *tokenchannel.MoveToken
	ResetTerms      *tokenchannel.ResetTerms
}

// ResponseKind tags the variant of an OutgoingControl response.
type ResponseKind uint8

const (
	ResponseReceivedSuccess ResponseKind = iota
	ResponseReceivedFailure
	ResponseReport
	ResponseControlError
	// ResponseAck is never produced by HandleControl itself; it is the
	// control surface's own synthetic acknowledgment for a control kind
	// that completed with no OutgoingControl of its own (AddFriend,
	// RemoveFriend, SetFriendStatus, and the like), so a caller waiting
	// on a reply always gets exactly one frame back.
	ResponseAck
)

// OutgoingControl is a reply the embedder's control surface receives
// (§4.3, §6: "ResponseReceived{...}", "Report(FunderReport)").
type OutgoingControl struct {
	Kind         ResponseKind
	RequestId    creditproto.Uid
	Receipt      *SendFundsReceipt
	ReportingKey creditproto.PublicKey
	Report       *FunderReport
	Err          error
}
