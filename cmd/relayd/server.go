package main

import (
	"crypto/rand"
	"io"
	"net"
	"sync"
	"time"

	"github.com/creditmesh/funder/creditproto"
)

// pendingListenerTTL bounds how long a registered-but-unmatched listener
// connection is held before relayd gives up on it and closes it, swept by
// server.expireStale on every tick.
const pendingListenerTTL = 60 * time.Second

type pendingListener struct {
	conn      net.Conn
	expiresAt time.Time
}

// server is relayd's whole job: match a roleDial connection against a
// roleListen connection registered under the same public key, then
// io.Copy raw bytes both ways until either side closes. It holds no
// funder-level state at all.
type server struct {
	ln net.Listener

	mu        sync.Mutex
	listeners map[creditproto.PublicKey][]*pendingListener
}

func newServer(ln net.Listener) *server {
	return &server{
		ln:        ln,
		listeners: make(map[creditproto.PublicKey][]*pendingListener),
	}
}

// serve accepts connections until ln is closed.
func (s *server) serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *server) handleConn(conn net.Conn) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		log.Errorf("generating challenge nonce: %v", err)
		conn.Close()
		return
	}
	if err := writeFrame(conn, challengeFrame{Nonce: nonce}); err != nil {
		conn.Close()
		return
	}

	var hello helloFrame
	if err := readFrame(conn, &hello); err != nil {
		conn.Close()
		return
	}
	if !hello.verify(nonce) {
		log.Debugf("rejecting connection from %s: bad hello signature", conn.RemoteAddr())
		conn.Close()
		return
	}

	switch hello.Role {
	case roleListen:
		s.register(hello.PublicKey, conn)
	case roleDial:
		s.bridge(hello.Target, conn)
	default:
		conn.Close()
	}
}

// register files conn as a waiting listener under pk. It is consumed by
// the next matching bridge, or expired by expireStale.
func (s *server) register(pk creditproto.PublicKey, conn net.Conn) {
	s.mu.Lock()
	s.listeners[pk] = append(s.listeners[pk], &pendingListener{
		conn:      conn,
		expiresAt: time.Now().Add(pendingListenerTTL),
	})
	s.mu.Unlock()
	log.Debugf("registered listener for %x", pk[:])
}

// bridge pops a waiting listener for target and pipes it to dialer;
// failing that, it tells the dialer no one is listening.
func (s *server) bridge(target creditproto.PublicKey, dialer net.Conn) {
	listener := s.popListener(target)
	if listener == nil {
		writeFrame(dialer, bridgeFailedFrame{Reason: "no listener registered for target"})
		dialer.Close()
		return
	}

	if err := writeFrame(listener, bridgeReadyFrame{}); err != nil {
		listener.Close()
		dialer.Close()
		return
	}
	if err := writeFrame(dialer, bridgeReadyFrame{}); err != nil {
		listener.Close()
		dialer.Close()
		return
	}

	log.Debugf("bridging dialer %s to listener for %x", dialer.RemoteAddr(), target[:])
	pipe(listener, dialer)
}

func (s *server) popListener(pk creditproto.PublicKey) net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()

	queue := s.listeners[pk]
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		s.listeners[pk] = queue
		if time.Now().Before(next.expiresAt) {
			return next.conn
		}
		next.conn.Close()
	}
	return nil
}

// pipe copies bytes in both directions until either side closes, then
// closes both. Neither connection's contents are inspected: this is the
// literal "forwards encrypted frames" behavior of the relay role.
func pipe(a, b net.Conn) {
	done := make(chan struct{}, 2)
	go func() {
		io.Copy(a, b)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(b, a)
		done <- struct{}{}
	}()
	<-done
	a.Close()
	b.Close()
}

// expireStale drops registered listener connections whose TTL has lapsed,
// called on every timer tick.
func (s *server) expireStale() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for pk, queue := range s.listeners {
		var kept []*pendingListener
		for _, p := range queue {
			if now.Before(p.expiresAt) {
				kept = append(kept, p)
				continue
			}
			p.conn.Close()
		}
		if len(kept) == 0 {
			delete(s.listeners, pk)
		} else {
			s.listeners[pk] = kept
		}
	}
}
