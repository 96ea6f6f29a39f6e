package tokenchannel

import (
	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/mutualcredit"
	"lukechampine.com/uint128"
)

// Direction records which side currently holds the token (§3).
type Direction uint8

const (
	// DirectionIncoming means we hold the token: we may compose and send
	// a MoveToken. ApplyIncoming does not consult the direction; an
	// incoming MoveToken is judged only by the checks in validate.go.
	DirectionIncoming Direction = iota

	// DirectionOutgoing means the remote holds the token: we may only
	// receive MoveTokens, optionally marking token_wanted on our last
	// sent frame to ask for it back.
	DirectionOutgoing
)

const (
	// DefaultMaxOperationsInBatch bounds how many FriendTcOps a single
	// MoveToken may batch (§4.2).
	DefaultMaxOperationsInBatch = 16

	// DefaultMaxMoveTokenLength bounds the approximate serialized size of
	// a MoveToken (§4.2).
	DefaultMaxMoveTokenLength = 64 * 1024
)

// Config holds the tunables named in §4.2; both have defaults matching
// the source.
type Config struct {
	MaxOperationsInBatch int
	MaxMoveTokenLength    int
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxOperationsInBatch: DefaultMaxOperationsInBatch,
		MaxMoveTokenLength:   DefaultMaxMoveTokenLength,
	}
}

// TokenChannel is the signed-history envelope around a MutualCredit (§3).
type TokenChannel struct {
	cfg Config

	localPublicKey  creditproto.PublicKey
	remotePublicKey creditproto.PublicKey

	credit *mutualcredit.MutualCredit

	direction           Direction
	moveTokenCounter    uint128.Uint128
	inconsistencyCounter uint64

	// newToken is the chain-link token of the most recently *sent or
	// received and accepted* MoveToken; it becomes old_token in the next
	// move, and is also what a reset's local_reset_token must match
	// against (§4.4).
	newToken creditproto.HashResult

	// lastSent/lastReceived retain the full MoveToken, not just its
	// signature, so idempotent resend (§4.2 step 2) can compare and
	// replay exactly.
	lastSent     *MoveToken
	lastReceived *MoveToken

	// tokenWanted is set on our own last sent frame when we're Outgoing
	// and want the token back (§4.2 tie-break).
	tokenWanted bool
}

// InitialDirection derives the deterministic starting direction from
// comparing the two public keys (§4.2): the lexicographically smaller key
// starts Outgoing, the larger starts Incoming.
func InitialDirection(local, remote creditproto.PublicKey) Direction {
	if creditproto.ComparePublicKeys(local, remote) > 0 {
		return DirectionIncoming
	}
	return DirectionOutgoing
}

// New constructs a brand-new TokenChannel for a friend that has no prior
// history: direction is derived deterministically, counters start at
// zero, and the ledger starts at the given initial balance.
func New(cfg Config, local, remote creditproto.PublicKey, initialBalance creditproto.Balance) *TokenChannel {
	return &TokenChannel{
		cfg:             cfg,
		localPublicKey:  local,
		remotePublicKey: remote,
		credit:          mutualcredit.New(initialBalance),
		direction:       InitialDirection(local, remote),
	}
}

// Credit exposes the underlying ledger for callers (the funder handler,
// the freeze guard) that need to read or mutate balance/pending-debt
// state directly.
func (tc *TokenChannel) Credit() *mutualcredit.MutualCredit { return tc.credit }

// Direction reports who currently holds the token.
func (tc *TokenChannel) Direction() Direction { return tc.direction }

// MoveTokenCounter reports the current monotone counter.
func (tc *TokenChannel) MoveTokenCounter() uint128.Uint128 { return tc.moveTokenCounter }

// InconsistencyCounter reports the current reset counter.
func (tc *TokenChannel) InconsistencyCounter() uint64 { return tc.inconsistencyCounter }

// NewToken returns the chain-link token of the last accepted MoveToken.
func (tc *TokenChannel) NewToken() creditproto.HashResult { return tc.newToken }

// SetNewToken forcibly sets the chain-link token, used only when a
// ResetFriendChannel (§4.4) re-synchronizes the channel outside of the
// normal MoveToken flow.
func (tc *TokenChannel) SetNewToken(token creditproto.HashResult) { tc.newToken = token }

// SetTokenWanted marks that we want the token back on our next outgoing
// frame (only meaningful while Outgoing).
func (tc *TokenChannel) SetTokenWanted(wanted bool) { tc.tokenWanted = wanted }

// TokenWanted reports whether we've asked for the token back.
func (tc *TokenChannel) TokenWanted() bool { return tc.tokenWanted }

// LastSent returns the most recently sent MoveToken, if any.
func (tc *TokenChannel) LastSent() *MoveToken { return tc.lastSent }

// LastReceived returns the most recently received and accepted MoveToken,
// if any.
func (tc *TokenChannel) LastReceived() *MoveToken { return tc.lastReceived }

// LocalPublicKey returns the local side's identity key for this channel.
func (tc *TokenChannel) LocalPublicKey() creditproto.PublicKey { return tc.localPublicKey }

// RemotePublicKey returns the friend's identity key for this channel.
func (tc *TokenChannel) RemotePublicKey() creditproto.PublicKey { return tc.remotePublicKey }
