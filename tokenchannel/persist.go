package tokenchannel

import (
	"bytes"
	"encoding/gob"

	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/mutualcredit"
	"lukechampine.com/uint128"
)

// Snapshot is the persisted form of a TokenChannel: every private field
// made explicit so cmd/funderd can gob-encode it into the durable store
// and reconstruct it on startup (§6 "On startup the implementation
// reconstructs FunderState from the persisted form and re-derives
// Ephemeral").
type Snapshot struct {
	Cfg Config

	LocalPublicKey  creditproto.PublicKey
	RemotePublicKey creditproto.PublicKey

	Credit mutualcredit.Snapshot

	Direction            Direction
	MoveTokenCounter     uint128.Uint128
	InconsistencyCounter uint64

	NewToken creditproto.HashResult

	LastSent     *MoveToken
	LastReceived *MoveToken

	TokenWanted bool
}

// Snapshot captures tc's full state for persistence.
func (tc *TokenChannel) Snapshot() Snapshot {
	return Snapshot{
		Cfg:                  tc.cfg,
		LocalPublicKey:       tc.localPublicKey,
		RemotePublicKey:      tc.remotePublicKey,
		Credit:               tc.credit.Snapshot(),
		Direction:            tc.direction,
		MoveTokenCounter:     tc.moveTokenCounter,
		InconsistencyCounter: tc.inconsistencyCounter,
		NewToken:             tc.newToken,
		LastSent:             tc.lastSent,
		LastReceived:         tc.lastReceived,
		TokenWanted:          tc.tokenWanted,
	}
}

// RestoreSnapshot reconstructs a TokenChannel from a previously taken
// Snapshot, the inverse of Snapshot.
func RestoreSnapshot(snap Snapshot) *TokenChannel {
	return &TokenChannel{
		cfg:                  snap.Cfg,
		localPublicKey:       snap.LocalPublicKey,
		remotePublicKey:      snap.RemotePublicKey,
		credit:               mutualcredit.RestoreSnapshot(snap.Credit),
		direction:            snap.Direction,
		moveTokenCounter:     snap.MoveTokenCounter,
		inconsistencyCounter: snap.InconsistencyCounter,
		newToken:             snap.NewToken,
		lastSent:             snap.LastSent,
		lastReceived:         snap.LastReceived,
		tokenWanted:          snap.TokenWanted,
	}
}

// GobEncode/GobDecode let a *TokenChannel round-trip through gob despite
// its unexported fields (gob only sees exported fields unless a type
// implements GobEncoder/GobDecoder), so a Friend holding one can be
// persisted to the durable store without a separate snapshot step at the
// call site (mirrors creditproto.Balance's GobEncode/GobDecode).
func (tc *TokenChannel) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(tc.Snapshot()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (tc *TokenChannel) GobDecode(data []byte) error {
	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}
	*tc = *RestoreSnapshot(snap)
	return nil
}
