package listenpool

import (
	"testing"

	"github.com/creditmesh/funder/creditproto"
	"github.com/lightningnetwork/lnd/queue"
	"github.com/stretchr/testify/require"
)

type fakeListener struct {
	closed chan struct{}
}

func newFakeListener() *fakeListener { return &fakeListener{closed: make(chan struct{})} }

func (f *fakeListener) Serve(ops *queue.ConcurrentQueue[AccessControlOp]) error {
	<-f.closed
	return nil
}

func (f *fakeListener) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func pk(b byte) creditproto.PublicKey {
	var k creditproto.PublicKey
	k[0] = b
	return k
}

func TestSetLocalAddressesSpawnsAndDrops(t *testing.T) {
	p := New(func(addr string) (Listener, error) { return newFakeListener(), nil })

	added, err := p.SetLocalAddresses([]string{"127.0.0.1:1"})
	require.NoError(t, err)
	require.Equal(t, []string{"127.0.0.1:1"}, added)
	require.True(t, p.Connected("127.0.0.1:1"))

	_, err = p.SetLocalAddresses(nil)
	require.NoError(t, err)
	require.False(t, p.Connected("127.0.0.1:1"))
}

func TestRelayClosedThenBackoffRespawns(t *testing.T) {
	p := New(func(addr string) (Listener, error) { return newFakeListener(), nil })
	_, err := p.SetLocalAddresses([]string{"127.0.0.1:1"})
	require.NoError(t, err)

	p.RelayClosed("127.0.0.1:1")
	require.False(t, p.Connected("127.0.0.1:1"))
	require.Equal(t, BackoffTicks, p.TicksLeft("127.0.0.1:1"))

	for i := 0; i < BackoffTicks-1; i++ {
		p.TimerTick()
		require.False(t, p.Connected("127.0.0.1:1"))
	}
	p.TimerTick()
	require.True(t, p.Connected("127.0.0.1:1"))
}

func TestUpdateFriendSpawnsNewRelayAndTracksMembership(t *testing.T) {
	p := New(func(addr string) (Listener, error) { return newFakeListener(), nil })

	err := p.UpdateFriend(pk(1), []string{"127.0.0.1:2"})
	require.NoError(t, err)
	require.True(t, p.Connected("127.0.0.1:2"))

	p.RemoveFriend(pk(1))
}
