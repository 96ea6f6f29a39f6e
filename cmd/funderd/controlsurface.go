package main

import (
	"net"
	"sync"

	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/funder"
)

// controlResponse is the wire-friendly mirror of funder.OutgoingControl:
// OutgoingControl.Err is a plain `error`, which gob cannot carry across an
// interface without registering every concrete error type that might flow
// through it, so the control surface flattens it to a message string
// instead (§6 "ResponseReceived{...}", "Report(FunderReport)").
type controlResponse struct {
	Kind         funder.ResponseKind
	RequestId    creditproto.Uid
	Receipt      *funder.SendFundsReceipt
	ReportingKey creditproto.PublicKey
	Report       *funder.FunderReport
	ErrMsg       string
}

func toControlResponse(c funder.OutgoingControl) controlResponse {
	resp := controlResponse{
		Kind:         c.Kind,
		RequestId:    c.RequestId,
		Receipt:      c.Receipt,
		ReportingKey: c.ReportingKey,
		Report:       c.Report,
	}
	if c.Err != nil {
		resp.ErrMsg = c.Err.Error()
	}
	return resp
}

// notifier fans out OutgoingControl values produced outside of a direct
// request/reply round trip (a ResponseReceived surfacing from a friend
// event arriving on its own goroutine) to every currently-connected
// control client, keyed by nothing in particular — each client filters
// for the RequestIds it cares about.
type notifier struct {
	mu   sync.Mutex
	subs map[chan controlResponse]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[chan controlResponse]struct{})}
}

func (n *notifier) subscribe() chan controlResponse {
	ch := make(chan controlResponse, 64)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()
	return ch
}

func (n *notifier) unsubscribe(ch chan controlResponse) {
	n.mu.Lock()
	delete(n.subs, ch)
	n.mu.Unlock()
	close(ch)
}

func (n *notifier) publish(c funder.OutgoingControl) {
	resp := toControlResponse(c)
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- resp:
		default:
		}
	}
}

// serveControlSurface binds laddr and answers every connection with a
// simple request/response protocol: the client writes one gob-framed
// funder.IncomingControlMessage, the daemon pushes back every
// controlResponse produced for it — the synchronous replies from
// HandleControl plus any later asynchronous ResponseReceived/Report that
// arrives for the same connection while it stays open (§6's
// "responses... including ones other than the immediate reply" wording).
func (d *daemon) serveControlSurface(laddr string) error {
	ln, err := net.Listen("tcp", laddr)
	if err != nil {
		return err
	}
	d.controlListener = ln

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go d.serveControlConn(conn)
		}
	}()
	return nil
}

func (d *daemon) serveControlConn(conn net.Conn) {
	defer conn.Close()

	sub := d.notifications.subscribe()
	defer d.notifications.unsubscribe(sub)

	go func() {
		for resp := range sub {
			if err := writeFrame(conn, resp); err != nil {
				return
			}
		}
	}()

	for {
		var msg funder.IncomingControlMessage
		if err := readFrame(conn, &msg); err != nil {
			return
		}

		reply := make(chan []funder.OutgoingControl, 1)
		d.events <- daemonEvent{control: &controlRequest{msg: msg, reply: reply}}
		controls := <-reply

		if len(controls) == 0 {
			controls = []funder.OutgoingControl{{Kind: funder.ResponseAck, RequestId: msg.RequestId}}
		}
		for _, c := range controls {
			if err := writeFrame(conn, toControlResponse(c)); err != nil {
				return
			}
		}
	}
}
