package handshake

import (
	"bytes"

	"github.com/creditmesh/funder/creditproto"
)

// ExchangeRandNonceRequest is the first leg of §4.7 step 1: either side may
// send this first to request a fresh nonce.
type ExchangeRandNonceRequest struct {
	RequestRand creditproto.RandValue
}

// ExchangeRandNonceResponse replies with the responder's current sliding
// -window nonce, signed over the concatenation of both nonces.
type ExchangeRandNonceResponse struct {
	RequestRand  creditproto.RandValue
	ResponseRand creditproto.RandValue
	ResponderRand creditproto.RandValue
	PublicKey     creditproto.PublicKey
	Signature     creditproto.Signature
}

func (m *ExchangeRandNonceResponse) signedBytes() []byte {
	var buf bytes.Buffer
	buf.Write(m.RequestRand[:])
	buf.Write(m.ResponseRand[:])
	buf.Write(m.ResponderRand[:])
	return buf.Bytes()
}

// Sign fills in Signature over this message's fields using signer.
func (m *ExchangeRandNonceResponse) Sign(signer creditproto.Signer) error {
	m.PublicKey = signer.PublicKey()
	sig, err := signer.Sign(m.signedBytes())
	if err != nil {
		return err
	}
	m.Signature = sig
	return nil
}

// Verify checks Signature against PublicKey.
func (m *ExchangeRandNonceResponse) Verify() bool {
	return creditproto.Verify(m.PublicKey, m.signedBytes(), m.Signature)
}

// ExchangeActive is step 2, sent initiator -> responder: the initiator's
// ephemeral DH public key, key salt, and identity, signed.
type ExchangeActive struct {
	InitiatorPublicKey creditproto.PublicKey
	InitiatorRand      creditproto.RandValue
	ResponderRand      creditproto.RandValue
	DhPublicKey        [33]byte // compressed secp256k1 point
	KeySalt            [32]byte
	Signature          creditproto.Signature
}

func (m *ExchangeActive) signedBytes() []byte {
	var buf bytes.Buffer
	buf.Write(m.InitiatorPublicKey[:])
	buf.Write(m.InitiatorRand[:])
	buf.Write(m.ResponderRand[:])
	buf.Write(m.DhPublicKey[:])
	buf.Write(m.KeySalt[:])
	return buf.Bytes()
}

// Sign fills Signature using signer (the initiator's identity key).
func (m *ExchangeActive) Sign(signer creditproto.Signer) error {
	sig, err := signer.Sign(m.signedBytes())
	if err != nil {
		return err
	}
	m.Signature = sig
	return nil
}

// Verify checks Signature under the claimed initiator public key.
func (m *ExchangeActive) Verify() bool {
	return creditproto.Verify(m.InitiatorPublicKey, m.signedBytes(), m.Signature)
}

// Bytes returns the full canonical serialization, used as H(active message)
// for the next leg's prev_hash.
func (m *ExchangeActive) Bytes() []byte {
	var buf bytes.Buffer
	buf.Write(m.signedBytes())
	buf.Write(m.Signature[:])
	return buf.Bytes()
}

// ExchangePassive is the responder's reply within step 2: its own ephemeral
// DH public key and salt, chained to the active message's hash.
type ExchangePassive struct {
	PrevHash    creditproto.HashResult
	DhPublicKey [33]byte
	KeySalt     [32]byte
	Signature   creditproto.Signature
}

func (m *ExchangePassive) signedBytes() []byte {
	var buf bytes.Buffer
	buf.Write(m.PrevHash[:])
	buf.Write(m.DhPublicKey[:])
	buf.Write(m.KeySalt[:])
	return buf.Bytes()
}

// Sign fills Signature using the responder's identity key.
func (m *ExchangePassive) Sign(signer creditproto.Signer) error {
	sig, err := signer.Sign(m.signedBytes())
	if err != nil {
		return err
	}
	m.Signature = sig
	return nil
}

// Verify checks Signature under the responder's claimed public key.
func (m *ExchangePassive) Verify(responderPub creditproto.PublicKey) bool {
	return creditproto.Verify(responderPub, m.signedBytes(), m.Signature)
}

// Bytes returns the full canonical serialization, used as H(passive
// message) for ChannelReady's prev_hash.
func (m *ExchangePassive) Bytes() []byte {
	var buf bytes.Buffer
	buf.Write(m.signedBytes())
	buf.Write(m.Signature[:])
	return buf.Bytes()
}

// ChannelReady is step 3, sent initiator -> responder: confirms the
// initiator saw the passive message.
type ChannelReady struct {
	PrevHash  creditproto.HashResult
	Signature creditproto.Signature
}

// Sign fills Signature over PrevHash using the initiator's identity key.
func (m *ChannelReady) Sign(signer creditproto.Signer) error {
	sig, err := signer.Sign(m.PrevHash[:])
	if err != nil {
		return err
	}
	m.Signature = sig
	return nil
}

// Verify checks Signature under the initiator's claimed public key.
func (m *ChannelReady) Verify(initiatorPub creditproto.PublicKey) bool {
	return creditproto.Verify(initiatorPub, m.PrevHash[:], m.Signature)
}
