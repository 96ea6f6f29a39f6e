package handshake

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/creditmesh/funder/creditproto"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/go-errors/errors"
	"golang.org/x/crypto/hkdf"
)

// HandshakeSessionTimeout is the number of timer ticks a pending server
// session survives before being dropped silently (§4.7).
const HandshakeSessionTimeout = 30

// Errors named in §7's table for this component.
var (
	ErrHandshakeInProgress  = errors.New("handshake: already in progress for this friend")
	ErrInvalidResponderNonce = errors.New("handshake: responder_rand not in sliding window")
	ErrUnknownFriend        = errors.New("handshake: initiator is not a known friend")
	ErrBadSignature         = errors.New("handshake: signature verification failed")
	ErrUnknownSession       = errors.New("handshake: no pending session for this hash")
)

// ChannelMetadata is handed to the Channeler once a handshake completes
// (§4.7 step 3): the two derived directional keys plus enough identity to
// route subsequent frames. SendKey/RecvKey are distinct (a single shared
// key would let both ends start their AEAD counter at zero under the same
// key, reusing a nonce on the very first message each way), matching the
// way BOLT8-style transports split one ECDH secret into per-direction
// keys rather than reusing one symmetric key for both directions.
type ChannelMetadata struct {
	SendKey         [32]byte
	RecvKey         [32]byte
	RemotePublicKey creditproto.PublicKey
	SentRand        creditproto.RandValue
	RecvRand        creditproto.RandValue
}

// dhKeyPair is an ephemeral secp256k1 keypair used purely for this
// handshake's Diffie-Hellman step (§4.7 "DH"), unrelated to either side's
// long-lived Ed25519 identity key.
type dhKeyPair struct {
	priv *secp256k1.PrivateKey
	salt [32]byte
}

func newDHKeyPair() (dhKeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return dhKeyPair{}, err
	}
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return dhKeyPair{}, err
	}
	return dhKeyPair{priv: priv, salt: salt}, nil
}

func (kp dhKeyPair) compressedPublicKey() [33]byte {
	var out [33]byte
	copy(out[:], kp.priv.PubKey().SerializeCompressed())
	return out
}

// sessionKeys holds the two directional keys one side derives from a
// completed handshake.
type sessionKeys struct {
	initiatorToResponder [32]byte
	responderToInitiator [32]byte
}

// deriveSessionKeys computes the shared secret from an ECDH scalar
// multiply, then stretches it with HKDF-SHA256 salted by both sides' key
// salts into two independent directional keys, matching §4.7's "derives
// the symmetric key from (own_private, remote_public, sent_salt,
// recv_salt)" generalized to a pair of keys so each direction gets its own
// AEAD keystream.
func deriveSessionKeys(priv *secp256k1.PrivateKey, remotePubBytes [33]byte, sentSalt, recvSalt [32]byte) (sessionKeys, error) {
	remotePub, err := secp256k1.ParsePubKey(remotePubBytes[:])
	if err != nil {
		return sessionKeys{}, errors.Errorf("handshake: parsing remote DH key: %w", err)
	}

	ikm := secp256k1.GenerateSharedSecret(priv, remotePub)

	// Both sides hash the two salts in the same (byte-wise ascending)
	// order, so the initiator and the responder derive the same keys.
	first, second := sentSalt, recvSalt
	if string(first[:]) > string(second[:]) {
		first, second = second, first
	}
	saltInput := append(append([]byte{}, first[:]...), second[:]...)
	salt := sha256.Sum256(saltInput)

	hk := hkdf.New(sha256.New, ikm, salt[:], []byte("creditmesh-funder-handshake"))
	var out [64]byte
	if _, err := io.ReadFull(hk, out[:]); err != nil {
		return sessionKeys{}, err
	}

	var keys sessionKeys
	copy(keys.initiatorToResponder[:], out[:32])
	copy(keys.responderToInitiator[:], out[32:])
	return keys, nil
}
