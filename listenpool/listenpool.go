// Package listenpool manages the set of relays this node advertises
// itself on: spawning and tearing down listeners, tracking per-friend
// access control, and reconnecting on a flat backoff (spec §4.8).
package listenpool

import (
	"github.com/creditmesh/funder/creditproto"
	"github.com/lightningnetwork/lnd/queue"
)

// BackoffTicks is the flat reconnection delay named in §4.8/§9: "Backoff
// is flat (constant backoff_ticks, not exponential) in this design" — the
// resolved Open Question recorded in SPEC_FULL.md.
const BackoffTicks = 10

// AccessControlOpKind tags an AccessControlOp.
type AccessControlOpKind uint8

const (
	AccessControlAdd AccessControlOpKind = iota
	AccessControlRemove
)

// AccessControlOp adds or removes a friend's public key from a listener's
// accept filter.
type AccessControlOp struct {
	Kind      AccessControlOpKind
	PublicKey creditproto.PublicKey
}

// relayState is the per-relay lifecycle: Waiting counts down to a respawn,
// Connected owns a running listener's access-control stream.
type relayState struct {
	connected  bool
	ticksLeft  int
	accessCtrl *queue.ConcurrentQueue[AccessControlOp]
	friends    map[creditproto.PublicKey]struct{}
}

// Listener is the narrow interface listenpool needs from a concrete relay
// listener; the real implementation (plain TCP) lives in
// cmd/funderd/relaylistener.go and is injected here so this package stays
// transport-agnostic and unit-testable.
type Listener interface {
	// Serve runs until Close is called or the listener fails; it
	// consumes AccessControlOps from ops to keep its accept filter
	// current.
	Serve(ops *queue.ConcurrentQueue[AccessControlOp]) error
	Close() error
}

// Spawner creates a Listener for a relay address; cmd/funderd's
// newTCPSpawner supplies the concrete implementation, a plain TCP
// listener with no Tor support.
type Spawner func(addr string) (Listener, error)

// Pool owns every relay this node is advertising itself on.
type Pool struct {
	spawn   Spawner
	relays  map[string]*relayState
	closers map[string]func() error
}

// New constructs an empty Pool using spawn to create listeners.
func New(spawn Spawner) *Pool {
	return &Pool{
		spawn:   spawn,
		relays:  make(map[string]*relayState),
		closers: make(map[string]func() error),
	}
}

// SetLocalAddresses adds any new addresses (spawning a listener for each)
// and closes any addresses no longer present, returning the set of
// addresses actually added (§4.8).
func (p *Pool) SetLocalAddresses(addrs []string) (added []string, err error) {
	want := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		want[a] = struct{}{}
	}

	for addr := range p.relays {
		if _, ok := want[addr]; !ok {
			p.closeRelay(addr)
		}
	}

	for _, addr := range addrs {
		if _, exists := p.relays[addr]; exists {
			continue
		}
		if err := p.spawnRelay(addr); err != nil {
			return added, err
		}
		added = append(added, addr)
	}

	return added, nil
}

func (p *Pool) spawnRelay(addr string) error {
	state := &relayState{
		friends:    make(map[creditproto.PublicKey]struct{}),
		accessCtrl: queue.NewConcurrentQueue[AccessControlOp](queue.DefaultQueueSize),
	}
	state.accessCtrl.Start()

	listener, err := p.spawn(addr)
	if err != nil {
		log.Warnf("spawning relay listener on %s failed, backing off: %v", addr, err)
		state.accessCtrl.Stop()
		state.ticksLeft = BackoffTicks
		p.relays[addr] = state
		return nil
	}

	state.connected = true
	p.relays[addr] = state
	p.closers[addr] = listener.Close

	go func() {
		_ = listener.Serve(state.accessCtrl)
		p.RelayClosed(addr)
	}()

	return nil
}

func (p *Pool) closeRelay(addr string) {
	state, ok := p.relays[addr]
	if !ok {
		return
	}
	if closer, ok := p.closers[addr]; ok {
		_ = closer()
		delete(p.closers, addr)
	}
	if state.accessCtrl != nil {
		state.accessCtrl.Stop()
	}
	delete(p.relays, addr)
}

// UpdateFriend pushes AccessControlOps for a friend's relay-membership
// delta: Add for newly-advertised relays, Remove for dropped ones,
// spawning any listener that doesn't exist yet (§4.8).
func (p *Pool) UpdateFriend(pk creditproto.PublicKey, addrs []string) error {
	want := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		want[a] = struct{}{}
	}

	for addr, state := range p.relays {
		_, shouldHave := want[addr]
		_, has := state.friends[pk]
		switch {
		case shouldHave && !has:
			state.friends[pk] = struct{}{}
			if state.accessCtrl != nil {
				state.accessCtrl.ChanIn() <- AccessControlOp{Kind: AccessControlAdd, PublicKey: pk}
			}
		case !shouldHave && has:
			delete(state.friends, pk)
			if state.accessCtrl != nil {
				state.accessCtrl.ChanIn() <- AccessControlOp{Kind: AccessControlRemove, PublicKey: pk}
			}
		}
	}

	for _, addr := range addrs {
		if _, exists := p.relays[addr]; exists {
			continue
		}
		if err := p.spawnRelay(addr); err != nil {
			return err
		}
		p.relays[addr].friends[pk] = struct{}{}
		if ctrl := p.relays[addr].accessCtrl; ctrl != nil {
			ctrl.ChanIn() <- AccessControlOp{Kind: AccessControlAdd, PublicKey: pk}
		}
	}

	return nil
}

// RemoveFriend pushes Remove into every listener's access-control stream.
func (p *Pool) RemoveFriend(pk creditproto.PublicKey) {
	for _, state := range p.relays {
		if _, has := state.friends[pk]; !has {
			continue
		}
		delete(state.friends, pk)
		if state.accessCtrl != nil {
			state.accessCtrl.ChanIn() <- AccessControlOp{Kind: AccessControlRemove, PublicKey: pk}
		}
	}
}

// RelayClosed transitions addr to Waiting(BackoffTicks) (§4.8).
func (p *Pool) RelayClosed(addr string) {
	state, ok := p.relays[addr]
	if !ok {
		return
	}
	state.connected = false
	state.ticksLeft = BackoffTicks
	delete(p.closers, addr)
}

// TimerTick decrements every Waiting relay's counter, respawning any that
// reach zero (§4.8).
func (p *Pool) TimerTick() {
	for addr, state := range p.relays {
		if state.connected {
			continue
		}
		state.ticksLeft--
		if state.ticksLeft <= 0 {
			_ = p.respawn(addr)
		}
	}
}

func (p *Pool) respawn(addr string) error {
	listener, err := p.spawn(addr)
	if err != nil {
		p.relays[addr].ticksLeft = BackoffTicks
		return err
	}

	log.Infof("relay listener on %s reconnected after backoff", addr)

	state := p.relays[addr]
	state.connected = true
	p.closers[addr] = listener.Close

	if state.accessCtrl == nil {
		state.accessCtrl = queue.NewConcurrentQueue[AccessControlOp](queue.DefaultQueueSize)
		state.accessCtrl.Start()
	}
	for pk := range state.friends {
		state.accessCtrl.ChanIn() <- AccessControlOp{Kind: AccessControlAdd, PublicKey: pk}
	}

	go func() {
		_ = listener.Serve(state.accessCtrl)
		p.RelayClosed(addr)
	}()

	return nil
}

// Connected reports whether addr currently has a live listener, used by
// tests.
func (p *Pool) Connected(addr string) bool {
	state, ok := p.relays[addr]
	return ok && state.connected
}

// TicksLeft reports the remaining backoff on a Waiting relay, used by
// tests.
func (p *Pool) TicksLeft(addr string) int {
	state, ok := p.relays[addr]
	if !ok {
		return 0
	}
	return state.ticksLeft
}
