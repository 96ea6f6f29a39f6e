package freezeguard

import (
	"testing"

	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/tokenchannel"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

func pk(b byte) creditproto.PublicKey {
	var k creditproto.PublicKey
	k[0] = b
	return k
}

func amt(v uint64) creditproto.CreditAmount { return uint128.From64(v) }

func TestTryFreezeWithinCapacityAccepted(t *testing.T) {
	g := New()
	links := []tokenchannel.FreezeLink{
		{SharedCredits: amt(100), UsableRatio: tokenchannel.FullRatio()},
	}
	err := g.TryFreeze(pk(1), pk(0), links, amt(20))
	require.NoError(t, err)
	require.Equal(t, amt(20), g.Frozen(pk(1), pk(0)))
}

func TestTryFreezeExceedingCapacityRejected(t *testing.T) {
	g := New()
	links := []tokenchannel.FreezeLink{
		{SharedCredits: amt(10), UsableRatio: tokenchannel.FullRatio()},
	}
	err := g.TryFreeze(pk(1), pk(0), links, amt(20))
	require.ErrorIs(t, err, ErrBlockedByFreezeGuard)
	require.Equal(t, creditproto.ZeroCredit, g.Frozen(pk(1), pk(0)))
}

func TestTryFreezeAccumulatesAndRejectsSecondRequest(t *testing.T) {
	g := New()
	links := []tokenchannel.FreezeLink{
		{SharedCredits: amt(30), UsableRatio: tokenchannel.FullRatio()},
	}
	require.NoError(t, g.TryFreeze(pk(1), pk(0), links, amt(20)))
	err := g.TryFreeze(pk(1), pk(0), links, amt(20))
	require.ErrorIs(t, err, ErrBlockedByFreezeGuard)
}

func TestReleaseGivesBackCapacity(t *testing.T) {
	g := New()
	links := []tokenchannel.FreezeLink{
		{SharedCredits: amt(30), UsableRatio: tokenchannel.FullRatio()},
	}
	require.NoError(t, g.TryFreeze(pk(1), pk(0), links, amt(20)))
	g.Release(pk(1), pk(0), amt(20))
	require.Equal(t, creditproto.ZeroCredit, g.Frozen(pk(1), pk(0)))
	require.NoError(t, g.TryFreeze(pk(1), pk(0), links, amt(20)))
}

func TestHalfRatioHalvesCapacity(t *testing.T) {
	g := New()
	half := tokenchannel.Ratio{Numerator: uint128.Max.Div64(2)}
	links := []tokenchannel.FreezeLink{
		{SharedCredits: amt(100), UsableRatio: half},
	}
	require.ErrorIs(t, g.TryFreeze(pk(1), pk(0), links, amt(60)), ErrBlockedByFreezeGuard)

	g2 := New()
	require.NoError(t, g2.TryFreeze(pk(1), pk(0), links, amt(40)))
}
