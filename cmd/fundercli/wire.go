package main

import (
	"bytes"
	"encoding/gob"
	"io"

	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/funder"
	"github.com/creditmesh/funder/transport"
)

// controlResponse mirrors cmd/funderd/controlsurface.go's wire type field
// for field: the two binaries don't share a package for this envelope, the
// same way every cmd/* binary in this tree defines its own local wire
// shapes rather than factoring a control-surface client library, but gob
// decodes structurally so the two definitions round-trip identically.
type controlResponse struct {
	Kind         funder.ResponseKind
	RequestId    creditproto.Uid
	Receipt      *funder.SendFundsReceipt
	ReportingKey creditproto.PublicKey
	Report       *funder.FunderReport
	ErrMsg       string
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
