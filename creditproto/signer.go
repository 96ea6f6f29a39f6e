package creditproto

import "crypto/ed25519"

// Signer is the interface the funder and handshake packages use to reach
// the identity signing service named as an external collaborator in §1/§6.
// Its concrete implementation (a single-writer service behind a bounded
// request channel, per §5) lives outside this core in the identity
// package; nothing here assumes anything about how the private key is
// held.
type Signer interface {
	// PublicKey returns this node's identity public key.
	PublicKey() PublicKey

	// Sign returns a signature over msg's exact bytes. Callers are
	// responsible for passing the canonical serialization the protocol
	// defines; this interface never re-derives it.
	Sign(msg []byte) (Signature, error)
}

// Verify checks sig over msg under pubKey. The identity file format named
// in §6 is Ed25519 (an 85-byte PKCS#8 blob), so verification uses
// crypto/ed25519 directly: no dependency in this corpus substitutes for
// the standard library's implementation of a named standard primitive.
func Verify(pubKey PublicKey, msg []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pubKey[:]), msg, sig[:])
}
