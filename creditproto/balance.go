package creditproto

import (
	"encoding/binary"
	"errors"
	"io"
	"math/big"

	"lukechampine.com/uint128"
)

// maxSigned127 is 2^127 - 1, the ceiling named by the MutualCredit
// invariants in §3 ("balance + local_pending_debt <= 2^127 - 1").
var maxSigned127 = new(big.Int).Sub(
	new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1),
)

var minSigned127 = new(big.Int).Neg(maxSigned127)

// ErrBalanceOverflow is returned when a signed balance would leave the
// representable [-(2^127-1), 2^127-1] range.
var ErrBalanceOverflow = errors.New("creditproto: balance overflow")

// CreditAmount is an unsigned 128-bit quantity: a max-debt cap or a
// pending-debt sum. The type is a thin alias over lukechampine.com/uint128
// so canonical encoding and arithmetic overflow checks are both handled by
// that library rather than hand-rolled 128-bit math.
type CreditAmount = uint128.Uint128

// ZeroCredit is the additive identity for CreditAmount.
var ZeroCredit = uint128.Zero

// Balance is a signed 128-bit quantity bounded to [-(2^127-1), 2^127-1].
// Unlike the max-debt/pending-debt fields, the balance can go negative (the
// remote owing us is positive, us owing the remote is negative), so it is
// backed by math/big rather than the unsigned uint128 type: no ecosystem
// library in this corpus provides a signed 128-bit integer, so this one
// narrow piece of arithmetic is hand-rolled on the standard library's
// math/big, with every mutation validated back into the fixed range before
// being accepted.
type Balance struct {
	v *big.Int
}

// NewBalance constructs a Balance from an int64, valid for all test and
// control-surface inputs in this spec.
func NewBalance(v int64) Balance {
	return Balance{v: big.NewInt(v)}
}

// Zero is the zero balance.
func Zero() Balance {
	return Balance{v: big.NewInt(0)}
}

func (b Balance) bigOrZero() *big.Int {
	if b.v == nil {
		return big.NewInt(0)
	}
	return b.v
}

// Add returns b + delta, erroring if the result leaves the valid range.
func (b Balance) Add(delta Balance) (Balance, error) {
	sum := new(big.Int).Add(b.bigOrZero(), delta.bigOrZero())
	if sum.Cmp(maxSigned127) > 0 || sum.Cmp(minSigned127) < 0 {
		return Balance{}, ErrBalanceOverflow
	}
	return Balance{v: sum}, nil
}

// Sub returns b - delta, erroring if the result leaves the valid range.
func (b Balance) Sub(delta Balance) (Balance, error) {
	return b.Add(delta.Neg())
}

// Neg returns -b.
func (b Balance) Neg() Balance {
	return Balance{v: new(big.Int).Neg(b.bigOrZero())}
}

// Cmp compares b to other the way big.Int.Cmp does.
func (b Balance) Cmp(other Balance) int {
	return b.bigOrZero().Cmp(other.bigOrZero())
}

// IsNegative reports whether b < 0.
func (b Balance) IsNegative() bool {
	return b.bigOrZero().Sign() < 0
}

// Int64 returns the balance truncated to an int64; only safe for values
// known to fit (test assertions, control-surface reports).
func (b Balance) Int64() int64 {
	return b.bigOrZero().Int64()
}

// String renders the full-precision decimal value, used by cmd/fundercli's
// report table and by log lines that print a balance.
func (b Balance) String() string {
	return b.bigOrZero().String()
}

// FromCreditAmount converts an unsigned CreditAmount into a non-negative
// Balance, used when folding a pending-debt release back into the balance.
func FromCreditAmount(amt CreditAmount) Balance {
	return Balance{v: creditAmountToBig(amt)}
}

// creditAmountToBig is the straightforward, correct conversion used by
// FromCreditAmount and the overflow checks below.
func creditAmountToBig(amt CreditAmount) *big.Int {
	hi := new(big.Int).SetUint64(amt.Hi)
	hi.Lsh(hi, 64)
	lo := new(big.Int).SetUint64(amt.Lo)
	return hi.Or(hi, lo)
}

// CheckDebtBound validates the invariant "signedValue +/- pendingDebt <=
// 2^127-1" from §3, used by MutualCredit before committing a pending
// request or a max-debt change.
func CheckDebtBound(balance Balance, pendingDebt CreditAmount) error {
	sum := new(big.Int).Add(balance.bigOrZero(), creditAmountToBig(pendingDebt))
	if sum.Cmp(maxSigned127) > 0 {
		return ErrBalanceOverflow
	}
	return nil
}

// GobEncode/GobDecode delegate to big.Int's own gob support so Balance
// round-trips correctly over gob despite its field being unexported —
// gob only sees a value's exported fields unless it implements
// GobEncoder/GobDecoder itself, and Balance has none. This is exercised by
// cmd/funderd's control-surface and friend-to-friend wire envelopes, both
// gob-encoded (see DESIGN.md).
func (b Balance) GobEncode() ([]byte, error) {
	return b.bigOrZero().GobEncode()
}

// GobDecode implements gob.GobDecoder.
func (b *Balance) GobDecode(data []byte) error {
	v := new(big.Int)
	if err := v.GobDecode(data); err != nil {
		return err
	}
	b.v = v
	return nil
}

// Encode writes the two's-complement big-endian 16-byte encoding of b.
func (b Balance) Encode(w io.Writer) error {
	var buf [16]byte
	v := b.bigOrZero()
	mag := new(big.Int).Abs(v)
	magBytes := mag.Bytes()
	copy(buf[16-len(magBytes):], magBytes)
	if v.Sign() < 0 {
		// two's complement negation over the 16-byte buffer.
		carry := byte(1)
		for i := 15; i >= 0; i-- {
			inv := ^buf[i]
			sum := uint16(inv) + uint16(carry)
			buf[i] = byte(sum)
			carry = byte(sum >> 8)
		}
	}
	_, err := w.Write(buf[:])
	return err
}

// WriteCreditAmount writes amt as a canonical 16-byte big-endian value.
func WriteCreditAmount(w io.Writer, amt CreditAmount) error {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], amt.Hi)
	binary.BigEndian.PutUint64(buf[8:16], amt.Lo)
	_, err := w.Write(buf[:])
	return err
}

// ReadCreditAmount reads a canonical 16-byte big-endian CreditAmount.
func ReadCreditAmount(r io.Reader) (CreditAmount, error) {
	var buf [16]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return CreditAmount{}, err
	}
	return uint128.New(binary.BigEndian.Uint64(buf[8:16]), binary.BigEndian.Uint64(buf[0:8])), nil
}
