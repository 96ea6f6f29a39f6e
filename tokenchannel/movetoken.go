package tokenchannel

import (
	"bytes"
	"io"

	"github.com/creditmesh/funder/creditproto"
	"lukechampine.com/uint128"
)

// MoveToken is one batched, signed update to a token channel (§3).
//
// The chain-link value exchanged as old_token/new_token (and, during a
// reset, as the reset_token of §4.4) is a 32-byte hash, not the raw
// signature: this lets the reset protocol's sha512/256(current_token ||
// counter) slot into exactly the same field a normal move's new_token
// does, instead of forcing every resumed channel to carry a fake 64-byte
// "signature" that was never produced by a key. The actual Ed25519
// signature proving authorship lives in Sig and is checked once per
// message; NewToken is then derived from it so it chains cleanly.
type MoveToken struct {
	Operations           []FriendTcOp
	OldToken             creditproto.HashResult
	InconsistencyCounter uint64
	MoveTokenCounter     uint128.Uint128
	Balance              creditproto.Balance
	LocalPendingDebt     creditproto.CreditAmount
	RemotePendingDebt    creditproto.CreditAmount
	OptLocalRelays       []RelayAddress
	RandNonce            creditproto.RandValue

	// Sig is the Ed25519 signature over UnsignedBytes().
	Sig creditproto.Signature

	// NewToken is sha512/256(UnsignedBytes() || Sig), the opaque token
	// the next message's OldToken must equal.
	NewToken creditproto.HashResult
}

// encodeUnsigned writes every field of m except Sig/NewToken: this is
// exactly the byte sequence that gets signed (§3: "a fresh new_token
// signature over the canonical serialization of the above").
func (m *MoveToken) encodeUnsigned(w io.Writer) error {
	if err := creditproto.WriteUint64(w, uint64(len(m.Operations))); err != nil {
		return err
	}
	for _, op := range m.Operations {
		if err := op.Encode(w); err != nil {
			return err
		}
	}

	if _, err := w.Write(m.OldToken[:]); err != nil {
		return err
	}
	if err := creditproto.WriteUint64(w, m.InconsistencyCounter); err != nil {
		return err
	}

	if err := creditproto.WriteCreditAmount(w, m.MoveTokenCounter); err != nil {
		return err
	}

	if err := m.Balance.Encode(w); err != nil {
		return err
	}
	if err := creditproto.WriteCreditAmount(w, m.LocalPendingDebt); err != nil {
		return err
	}
	if err := creditproto.WriteCreditAmount(w, m.RemotePendingDebt); err != nil {
		return err
	}
	if err := EncodeOptLocalRelays(w, m.OptLocalRelays); err != nil {
		return err
	}
	_, err := w.Write(m.RandNonce[:])
	return err
}

// UnsignedBytes returns the canonical byte sequence to be signed/verified.
func (m *MoveToken) UnsignedBytes() []byte {
	var buf bytes.Buffer
	_ = m.encodeUnsigned(&buf)
	return buf.Bytes()
}

// Sign computes Sig over UnsignedBytes using signer, then derives
// NewToken from it.
func (m *MoveToken) Sign(signer creditproto.Signer) error {
	sig, err := signer.Sign(m.UnsignedBytes())
	if err != nil {
		return err
	}
	m.Sig = sig
	m.NewToken = creditproto.Sha512_256Concat(m.UnsignedBytes(), m.Sig[:])
	return nil
}

// VerifySignature checks Sig against UnsignedBytes under remotePub, and
// that NewToken is the correct derivation of Sig.
func (m *MoveToken) VerifySignature(remotePub creditproto.PublicKey) bool {
	if !creditproto.Verify(remotePub, m.UnsignedBytes(), m.Sig) {
		return false
	}
	return m.NewToken == creditproto.Sha512_256Concat(m.UnsignedBytes(), m.Sig[:])
}

// Equal reports whether two MoveTokens carry identical fields, used for
// the duplicate-resend detection in §4.2 step 2.
func (m *MoveToken) Equal(other *MoveToken) bool {
	if other == nil {
		return false
	}
	return bytes.Equal(m.UnsignedBytes(), other.UnsignedBytes()) &&
		m.NewToken == other.NewToken
}

// approxByteSize estimates the serialized size for MAX_MOVE_TOKEN_LENGTH
// accounting, without a full encode.
func (m *MoveToken) approxByteSize() int {
	size := 8 + len(m.OldToken) + 8 + 16 + 16 + 16 + 16 + len(m.RandNonce) + len(m.NewToken) + len(m.Sig)
	for _, op := range m.Operations {
		size += op.approxSize()
	}
	return size
}
