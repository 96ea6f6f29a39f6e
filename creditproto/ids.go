// Package creditproto defines the fixed-width identifiers and canonical
// wire encodings shared by every component of the funder: the mutual
// credit ledger, the token channel, the freeze guard and the handler
// itself. Nothing in this package owns any mutable state; it only ever
// manipulates values.
package creditproto

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// PublicKeyLen is the length in bytes of a node's identity public key.
	PublicKeyLen = 32

	// SignatureLen is the length in bytes of a signature over a canonical
	// serialization.
	SignatureLen = 64

	// UidLen is the length in bytes of a request/operation identifier.
	UidLen = 16

	// RandValueLen is the length in bytes of a nonce used in receipts and
	// MoveToken freshness.
	RandValueLen = 16

	// InvoiceIdLen is the length in bytes of an invoice identifier.
	InvoiceIdLen = 32

	// HashResultLen is the length in bytes of a hash digest (sha512/256).
	HashResultLen = 32
)

// PublicKey is a node's fixed-width identity key.
type PublicKey [PublicKeyLen]byte

// String returns the full hex encoding of the key, matching the %x-style debug output
// conventions used throughout the teacher's logging call sites.
func (p PublicKey) String() string {
	return fmt.Sprintf("%x", p[:])
}

// IsZero reports whether p is the zero-value key, used by callers that
// treat a missing counterparty as "no key" rather than a sentinel error.
func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

// Signature is a fixed-width signature over a canonical serialization.
type Signature [SignatureLen]byte

// Uid identifies a single pending request or operation.
type Uid [UidLen]byte

// RandValue is a nonce used for handshake freshness and receipt binding.
type RandValue [RandValueLen]byte

// InvoiceId identifies the invoice a payment is settling.
type InvoiceId [InvoiceIdLen]byte

// HashResult is a fixed-width hash digest.
type HashResult [HashResultLen]byte

// ComparePublicKeys orders two public keys lexicographically by their raw
// bytes. It returns -1, 0 or 1 the way bytes.Compare does. The token
// channel's initial direction (§4.2) is derived from this ordering.
func ComparePublicKeys(a, b PublicKey) int {
	return bytes.Compare(a[:], b[:])
}

// writeFixed writes a fixed-size byte slice to w, erroring out if n were
// ever to mismatch (defensive against a future field-size change, not a
// reachable failure mode for callers in this package).
func writeFixed(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}

// WriteUint64 writes v as big-endian to w.
func WriteUint64(w io.Writer, v uint64) error {
	return binary.Write(w, binary.BigEndian, v)
}

// ReadUint64 reads a big-endian uint64 from r.
func ReadUint64(r io.Reader) (uint64, error) {
	var v uint64
	err := binary.Read(r, binary.BigEndian, &v)
	return v, err
}
