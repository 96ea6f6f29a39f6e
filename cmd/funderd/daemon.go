package main

import (
	"net"
	"sync"

	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/friend"
	"github.com/creditmesh/funder/funder"
	"github.com/creditmesh/funder/listenpool"
	"github.com/creditmesh/funder/mutation"
	"github.com/creditmesh/funder/store"
	"github.com/creditmesh/funder/tokenchannel"
)

// outboundRetryTicks is the flat backoff between dial attempts to a friend
// we have no live connection to, matching the relay pool's own flat
// backoff constant (§4.8/§9 "Backoff is flat").
const outboundRetryTicks = listenpool.BackoffTicks

// friendSet is a concurrency-safe mirror of which public keys are known
// friends, read from the relay listeners' handshake goroutines while the
// daemon's single event-loop goroutine owns the authoritative
// funder.State (§4.7 step 2b "the responder uses isFriend to reject
// ExchangeActive from strangers").
type friendSet struct {
	mu  sync.RWMutex
	set map[creditproto.PublicKey]struct{}
}

func newFriendSet() *friendSet {
	return &friendSet{set: make(map[creditproto.PublicKey]struct{})}
}

func (s *friendSet) isFriend(pk creditproto.PublicKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.set[pk]
	return ok
}

func (s *friendSet) sync(state *funder.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = make(map[creditproto.PublicKey]struct{}, len(state.Friends))
	for pk := range state.Friends {
		s.set[pk] = struct{}{}
	}
}

// daemonEvent unifies every input the event loop reacts to, each wrapping
// exactly one of the funder.Handler event categories (§4.3): a Friend
// event, a Liveness event, a control request, or a timer tick.
type daemonEvent struct {
	friend  *funder.FriendEvent
	live    *funder.LivenessEvent
	control *controlRequest
	tick    bool
}

type controlRequest struct {
	msg   funder.IncomingControlMessage
	reply chan []funder.OutgoingControl
}

// daemon wires together every long-lived component of one funderd process
// and runs the single-threaded event loop §4.3 describes: every event is
// handled to completion (handler call, mutation commit, outgoing sends)
// before the next is read off events.
type daemon struct {
	cfg     *config
	signer  creditproto.Signer
	runner  *mutation.Runner
	handler *funder.Handler
	pool    *listenpool.Pool
	friends *friendSet

	events        chan daemonEvent
	notifications *notifier

	controlListener net.Listener

	mu        sync.Mutex
	peers     map[creditproto.PublicKey]*peerConn
	dialTicks map[creditproto.PublicKey]int
}

func newDaemon(cfg *config, signer creditproto.Signer, st *store.Store, handler *funder.Handler) *daemon {
	d := &daemon{
		cfg:           cfg,
		signer:        signer,
		runner:        mutation.New(st),
		handler:       handler,
		friends:       newFriendSet(),
		events:        make(chan daemonEvent, 256),
		notifications: newNotifier(),
		peers:         make(map[creditproto.PublicKey]*peerConn),
		dialTicks:     make(map[creditproto.PublicKey]int),
	}
	d.friends.sync(handler.State())
	d.pool = listenpool.New(newTCPSpawner(signer, d.friends.isFriend, d.onInboundPeer))
	return d
}

// reconcileRelaysInitial seeds any --relay addresses from cfg that aren't
// already in the persisted relay list, then spawns every advertised
// listener and every friend's access control, run once at startup before
// the control surface accepts any requests.
func (d *daemon) reconcileRelaysInitial(configuredAddrs []string) {
	state := d.handler.State()

	have := make(map[string]struct{}, len(state.Relays))
	for _, r := range state.Relays {
		have[r.Address] = struct{}{}
	}
	for _, addr := range configuredAddrs {
		if _, ok := have[addr]; ok {
			continue
		}
		state.Relays = append(state.Relays, funder.NamedRelayAddress{
			PublicKey: d.signer.PublicKey(),
			Address:   addr,
		})
	}

	if err := d.persist(); err != nil {
		log.Errorf("persisting initial relay list failed: %v", err)
	}
	d.friends.sync(state)
	d.reconcileRelays()
}

// onInboundPeer is handed to the relay listener adapter; it registers the
// freshly-handshaken connection and starts its read loop.
func (d *daemon) onInboundPeer(p *peerConn) {
	d.registerPeer(p)
}

func (d *daemon) registerPeer(p *peerConn) {
	d.mu.Lock()
	if existing, ok := d.peers[p.remotePublicKey]; ok {
		d.mu.Unlock()
		existing.close()
		p.close()
		return
	}
	d.peers[p.remotePublicKey] = p
	delete(d.dialTicks, p.remotePublicKey)
	d.mu.Unlock()

	d.events <- daemonEvent{live: &funder.LivenessEvent{FriendPublicKey: p.remotePublicKey, Online: true}}
	go d.readLoop(p)
}

func (d *daemon) readLoop(p *peerConn) {
	for {
		ev, err := p.recv()
		if err != nil {
			d.dropPeer(p.remotePublicKey)
			return
		}
		d.events <- daemonEvent{friend: &ev}
	}
}

func (d *daemon) dropPeer(pk creditproto.PublicKey) {
	d.mu.Lock()
	if cur, ok := d.peers[pk]; ok {
		cur.close()
		delete(d.peers, pk)
	}
	d.mu.Unlock()
	d.events <- daemonEvent{live: &funder.LivenessEvent{FriendPublicKey: pk, Online: false}}
}

// dialFriend attempts one outbound connection to pk over its first
// reachable advertised relay address; failures are silent, left to the
// next TimerTick's retry sweep (§4.8's flat-backoff behavior, mirrored for
// outbound dials since the spec gives friend connections the same
// reconnection model as relay listeners).
func (d *daemon) dialFriend(pk creditproto.PublicKey, relays []tokenchannel.RelayAddress) {
	d.mu.Lock()
	if _, connected := d.peers[pk]; connected {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	for _, relay := range relays {
		conn, err := net.Dial("tcp", relay.Address)
		if err != nil {
			continue
		}
		peer, err := runInitiatorHandshake(conn, d.signer, pk)
		if err != nil {
			log.Debugf("outbound handshake to %x via %s failed: %v", pk[:], relay.Address, err)
			conn.Close()
			continue
		}
		d.registerPeer(peer)
		return
	}

	d.mu.Lock()
	d.dialTicks[pk] = outboundRetryTicks
	d.mu.Unlock()
}

// reconnectSweep is called on every TimerTick: it counts down each
// disconnected enabled friend's backoff and redials when it reaches zero.
func (d *daemon) reconnectSweep() {
	state := d.handler.State()

	d.mu.Lock()
	var due []creditproto.PublicKey
	for pk, ticksLeft := range d.dialTicks {
		if _, connected := d.peers[pk]; connected {
			delete(d.dialTicks, pk)
			continue
		}
		ticksLeft--
		if ticksLeft <= 0 {
			due = append(due, pk)
		} else {
			d.dialTicks[pk] = ticksLeft
		}
	}
	d.mu.Unlock()

	for pk, f := range state.Friends {
		if f.Status != friend.StatusEnabled || len(f.RemoteRelays) == 0 {
			continue
		}
		d.mu.Lock()
		_, connected := d.peers[pk]
		_, scheduled := d.dialTicks[pk]
		d.mu.Unlock()
		if connected || scheduled {
			continue
		}
		due = append(due, pk)
	}

	for _, pk := range due {
		f, ok := state.Friends[pk]
		if !ok {
			continue
		}
		go d.dialFriend(pk, f.RemoteRelays)
	}
}
