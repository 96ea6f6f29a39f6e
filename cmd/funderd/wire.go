package main

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/creditmesh/funder/tokenchannel"
	"github.com/creditmesh/funder/transport"
)

// No TOML/protobuf-style schema library sits in the teacher's dependency
// set for either the friend-to-friend envelope or the local control
// surface (§6: "any length-prefixed scheme suffices" for the handshake
// frames, and the control surface is only specified as a request/report
// channel pair with no wire format named at all). encoding/gob carries
// both outer envelopes; the signed payloads nested inside them
// (MoveToken, the handshake messages) keep their own canonical
// byte encoders used specifically for what must be signed or hashed.
// See DESIGN.md for the justification.

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// writeFrame wraps transport's length-prefix frame codec around a
// gob-encoded message. Used both for the three pre-encryption handshake
// legs (§4.7, §6 "Handshake frames") and for the plaintext local control
// surface, which is never encrypted (§6 only names a request/report
// channel pair, not a wire format, and the control surface is loopback-
// only in this implementation).
func writeFrame(w io.Writer, v interface{}) error {
	payload, err := encodeGob(v)
	if err != nil {
		return err
	}
	return transport.WriteFrame(w, transport.DefaultMaxFrameLength, payload)
}

func readFrame(r io.Reader, v interface{}) error {
	frame, err := transport.ReadFrame(r, transport.DefaultMaxFrameLength)
	if err != nil {
		return err
	}
	return decodeGob(frame, v)
}

// peerMessageKind tags the outer envelope carried once a friend connection
// is past the handshake and running under the encrypted channel (§4.3
// Friend events).
type peerMessageKind uint8

const (
	peerMoveToken peerMessageKind = iota
	peerInconsistencyError
)

// peerMessage is the gob-encoded payload sealed inside each encrypted
// frame of a post-handshake friend connection (§4.3 Friend events).
type peerMessage struct {
	Kind       peerMessageKind
	MoveToken  *tokenchannel.MoveToken
	ResetTerms *tokenchannel.ResetTerms
}
