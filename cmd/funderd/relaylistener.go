package main

import (
	"net"
	"sync"

	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/handshake"
	"github.com/creditmesh/funder/listenpool"
	"github.com/lightningnetwork/lnd/queue"
)

// tcpListener is the concrete listenpool.Listener this daemon spawns for
// each advertised relay address (§4.8): a plain net.Listener, filtering
// incoming connections against an access-control set kept current from
// ops, and handing every accepted connection through the responder side
// of the handshake before delivering it to the daemon.
type tcpListener struct {
	ln       net.Listener
	signer   creditproto.Signer
	isFriend handshake.IsFriendFunc
	onPeer   func(*peerConn)

	mu      sync.Mutex
	allowed map[creditproto.PublicKey]struct{}
}

// newTCPSpawner returns a listenpool.Spawner that binds addr as a plain
// TCP listener with net.Listen. There is no Tor/.onion handling: an
// address net.Listen cannot bind fails to spawn.
func newTCPSpawner(signer creditproto.Signer, isFriend handshake.IsFriendFunc, onPeer func(*peerConn)) listenpool.Spawner {
	return func(addr string) (listenpool.Listener, error) {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		return &tcpListener{
			ln:       ln,
			signer:   signer,
			isFriend: isFriend,
			onPeer:   onPeer,
			allowed:  make(map[creditproto.PublicKey]struct{}),
		}, nil
	}
}

// Serve implements listenpool.Listener: it accepts connections until ln is
// closed, applying ops to the access filter as they arrive, and drives the
// responder handshake for every accepted connection in its own goroutine
// so one slow or malicious peer never blocks the accept loop (§4.7, §4.3
// "per-friend I/O runs on its own task").
func (t *tcpListener) Serve(ops *queue.ConcurrentQueue[listenpool.AccessControlOp]) error {
	go t.drainAccessControl(ops)

	for {
		conn, err := t.ln.Accept()
		if err != nil {
			return err
		}
		go t.handleConn(conn)
	}
}

func (t *tcpListener) drainAccessControl(ops *queue.ConcurrentQueue[listenpool.AccessControlOp]) {
	for op := range ops.ChanOut() {
		t.mu.Lock()
		switch op.Kind {
		case listenpool.AccessControlAdd:
			t.allowed[op.PublicKey] = struct{}{}
		case listenpool.AccessControlRemove:
			delete(t.allowed, op.PublicKey)
		}
		t.mu.Unlock()
	}
}

func (t *tcpListener) isAllowed(pk creditproto.PublicKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.allowed[pk]
	return ok
}

func (t *tcpListener) handleConn(conn net.Conn) {
	responder := handshake.NewResponder(t.signer, t.isFriend)
	peer, err := runResponderHandshake(conn, responder)
	if err != nil {
		log.Debugf("relay handshake failed from %s: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}

	if !t.isAllowed(peer.remotePublicKey) {
		log.Debugf("rejecting connection from %x: not an enabled friend", peer.remotePublicKey[:])
		peer.close()
		return
	}

	t.onPeer(peer)
}

// Close stops accepting new connections. Safe to call once.
func (t *tcpListener) Close() error {
	return t.ln.Close()
}
