package main

import (
	"github.com/creditmesh/funder/funder"
)

// run is the daemon's single-threaded event loop (§4.3): every event is
// fully handled — handler call, durable commit, outgoing sends — before
// the next one is read off d.events, so Handler's state never needs its
// own lock.
func (d *daemon) run() {
	for ev := range d.events {
		switch {
		case ev.control != nil:
			d.handleControlEvent(ev.control)
		case ev.friend != nil:
			d.handleFriendEvent(*ev.friend)
		case ev.live != nil:
			d.handleLivenessEvent(*ev.live)
		case ev.tick:
			d.handleTick()
		}
	}
}

// persist commits the full FunderState as one atomic batch. Called after
// every event that may have mutated it, matching §4.9's "every mutation is
// committed durably before its outgoing effects are acted on".
func (d *daemon) persist() error {
	return saveState(d.runner, d.handler.State())
}

func (d *daemon) handleControlEvent(req *controlRequest) {
	comms, controls, err := d.handler.HandleControl(req.msg)
	if err != nil {
		req.reply <- []funder.OutgoingControl{{Kind: funder.ResponseControlError, Err: err}}
		return
	}
	if err := d.persist(); err != nil {
		log.Errorf("persisting after control event failed: %v", err)
		req.reply <- []funder.OutgoingControl{{Kind: funder.ResponseControlError, Err: err}}
		return
	}

	d.friends.sync(d.handler.State())
	d.reconcileRelays()
	d.sendComms(comms)
	req.reply <- controls
}

func (d *daemon) handleFriendEvent(ev funder.FriendEvent) {
	comms, controls, err := d.handler.HandleFriendEvent(ev)
	if err != nil {
		log.Warnf("friend event from %x rejected: %v", ev.FriendPublicKey[:], err)
		return
	}
	if err := d.persist(); err != nil {
		log.Errorf("persisting after friend event failed: %v", err)
		return
	}
	d.sendComms(comms)
	d.deliverControls(controls)
}

func (d *daemon) handleLivenessEvent(ev funder.LivenessEvent) {
	comms, err := d.handler.HandleLiveness(ev)
	if err != nil {
		log.Warnf("liveness event for %x rejected: %v", ev.FriendPublicKey[:], err)
		return
	}
	if err := d.persist(); err != nil {
		log.Errorf("persisting after liveness event failed: %v", err)
		return
	}
	d.sendComms(comms)
}

func (d *daemon) handleTick() {
	d.pool.TimerTick()
	d.reconnectSweep()
}

// sendComms pushes every OutgoingComm to its friend's live connection, if
// any; a friend with no live peerConn simply has nothing sent to it right
// now (its MoveToken stays queued as lastSent/pending ops and goes out the
// next time a liveness event finds it online, per §4.3).
func (d *daemon) sendComms(comms []funder.OutgoingComm) {
	for _, comm := range comms {
		d.mu.Lock()
		peer, ok := d.peers[comm.FriendPublicKey]
		d.mu.Unlock()
		if !ok {
			continue
		}
		if err := peer.send(comm); err != nil {
			log.Warnf("sending to %x failed: %v", comm.FriendPublicKey[:], err)
			d.dropPeer(comm.FriendPublicKey)
		}
	}
}

// deliverControls is a hook for OutgoingControl values produced outside of
// a direct control request (e.g. ResponseReceived from a friend event);
// the report/notification surface in controlsurface.go subscribes here.
func (d *daemon) deliverControls(controls []funder.OutgoingControl) {
	for _, c := range controls {
		d.notifications.publish(c)
	}
}

// reconcileRelays keeps the listen pool's advertised addresses and every
// friend's access-control membership in sync with the latest FunderState
// (§4.8).
func (d *daemon) reconcileRelays() {
	state := d.handler.State()

	addrs := make([]string, 0, len(state.Relays))
	for _, r := range state.Relays {
		addrs = append(addrs, r.Address)
	}
	if _, err := d.pool.SetLocalAddresses(addrs); err != nil {
		log.Warnf("updating advertised relay addresses failed: %v", err)
	}

	for pk, f := range state.Friends {
		var addrs []string
		for _, r := range f.RemoteRelays {
			addrs = append(addrs, r.Address)
		}
		if err := d.pool.UpdateFriend(pk, addrs); err != nil {
			log.Warnf("updating access control for %x failed: %v", pk[:], err)
		}
	}
}
