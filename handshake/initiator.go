package handshake

import (
	"crypto/rand"

	"github.com/creditmesh/funder/creditproto"
)

// Initiator drives the initiator side of the 3-message handshake for one
// outgoing connection attempt. Unlike the Responder, the initiator's state
// lives for exactly one attempt, so it holds a single in-progress
// exchange rather than a table.
type Initiator struct {
	signer creditproto.Signer
	kp     dhKeyPair
	active *ExchangeActive
}

// NewInitiator constructs an Initiator signing outgoing messages with
// signer.
func NewInitiator(signer creditproto.Signer) *Initiator {
	return &Initiator{signer: signer}
}

// BuildExchangeRandNonce starts step 1 with a fresh request_rand.
func (i *Initiator) BuildExchangeRandNonce() (ExchangeRandNonceRequest, error) {
	var requestRand creditproto.RandValue
	if _, err := rand.Read(requestRand[:]); err != nil {
		return ExchangeRandNonceRequest{}, err
	}
	return ExchangeRandNonceRequest{RequestRand: requestRand}, nil
}

// BuildExchangeActive validates the responder's ExchangeRandNonceResponse
// and builds the signed ExchangeActive message of step 2.
func (i *Initiator) BuildExchangeActive(resp ExchangeRandNonceResponse) (*ExchangeActive, error) {
	if !resp.Verify() {
		return nil, ErrBadSignature
	}

	kp, err := newDHKeyPair()
	if err != nil {
		return nil, err
	}
	i.kp = kp

	var initiatorRand creditproto.RandValue
	if _, err := rand.Read(initiatorRand[:]); err != nil {
		return nil, err
	}

	active := &ExchangeActive{
		InitiatorPublicKey: i.signer.PublicKey(),
		InitiatorRand:      initiatorRand,
		ResponderRand:      resp.ResponderRand,
		DhPublicKey:        kp.compressedPublicKey(),
		KeySalt:            kp.salt,
	}
	if err := active.Sign(i.signer); err != nil {
		return nil, err
	}
	i.active = active
	return active, nil
}

// BuildChannelReady validates the responder's ExchangePassive against the
// active message we sent, and builds the signed ChannelReady closing the
// handshake plus the derived ChannelMetadata.
func (i *Initiator) BuildChannelReady(responderPub creditproto.PublicKey, passive *ExchangePassive) (*ChannelReady, ChannelMetadata, error) {
	expectedHash := creditproto.Sha512_256(i.active.Bytes())
	if passive.PrevHash != expectedHash {
		return nil, ChannelMetadata{}, ErrUnknownSession
	}
	if !passive.Verify(responderPub) {
		return nil, ChannelMetadata{}, ErrBadSignature
	}

	readyHash := creditproto.Sha512_256(passive.Bytes())
	ready := &ChannelReady{PrevHash: readyHash}
	if err := ready.Sign(i.signer); err != nil {
		return nil, ChannelMetadata{}, err
	}

	keys, err := deriveSessionKeys(i.kp.priv, passive.DhPublicKey, i.kp.salt, passive.KeySalt)
	if err != nil {
		return nil, ChannelMetadata{}, err
	}

	// We are the initiator: we send on initiator->responder, and read on
	// responder->initiator.
	meta := ChannelMetadata{
		SendKey:         keys.initiatorToResponder,
		RecvKey:         keys.responderToInitiator,
		RemotePublicKey: responderPub,
		SentRand:        i.active.InitiatorRand,
		RecvRand:        i.active.ResponderRand,
	}
	return ready, meta, nil
}
