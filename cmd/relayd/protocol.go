package main

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/transport"
)

// The glossary names the relay's job precisely: "a rendezvous server that
// forwards encrypted frames between two peers by public key." relayd never
// looks inside what it forwards — the handshake and every encrypted frame
// afterward travel end to end between the two funder nodes. All relayd
// needs of its own is a small registration protocol so a dialing node can
// be matched against a listening node's open connection.
//
// challengeFrame is relayd's first message on every accepted connection: a
// fresh nonce the peer must sign to prove which public key it holds.
type challengeFrame struct {
	Nonce [32]byte
}

// helloRole distinguishes the two roles a connection can take once
// authenticated.
type helloRole uint8

const (
	// roleListen registers the connection as reachable under PublicKey,
	// held open until a dialer requests it or it expires.
	roleListen helloRole = iota
	// roleDial requests a bridge to an already-registered Target.
	roleDial
)

// helloFrame answers the challenge and states the connection's role.
type helloFrame struct {
	PublicKey creditproto.PublicKey
	Sig       creditproto.Signature
	Role      helloRole
	Target    creditproto.PublicKey // only meaningful when Role == roleDial
}

// signingBytes is what Sig is computed over: the channel binds a
// connection's claimed identity to this one nonce so a captured Sig can't
// be replayed against a later challenge.
func signingBytes(nonce [32]byte) []byte {
	return append([]byte("creditmesh-relay-hello:"), nonce[:]...)
}

func (h helloFrame) verify(nonce [32]byte) bool {
	return creditproto.Verify(h.PublicKey, signingBytes(nonce), h.Sig)
}

// bridgeReadyFrame tells both the listener and the dialer their connection
// is now a raw, unframed pipe to each other.
type bridgeReadyFrame struct{}

// bridgeFailedFrame is sent to a dialer when no matching listener was
// registered for Target.
type bridgeFailedFrame struct {
	Reason string
}

func writeFrame(w io.Writer, v interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	return transport.WriteFrame(w, transport.DefaultMaxFrameLength, buf.Bytes())
}

func readFrame(r io.Reader, v interface{}) error {
	frame, err := transport.ReadFrame(r, transport.DefaultMaxFrameLength)
	if err != nil {
		return err
	}
	return gob.NewDecoder(bytes.NewReader(frame)).Decode(v)
}
