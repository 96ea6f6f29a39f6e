package tokenchannel

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/creditmesh/funder/creditproto"
	"github.com/lightningnetwork/lnd/tlv"
)

// RelayAddress names a relay this side wishes to be reached at, the
// payload of MoveToken's optional opt_local_relays field (§3).
type RelayAddress struct {
	PublicKey creditproto.PublicKey
	Address   string
}

// tlvTypeRelays is the TLV type used for the optional relay-address list
// extension of a MoveToken. Using a TLV record (rather than an always-
// present length-prefixed field) is what lets opt_local_relays be
// genuinely optional on the wire, the way lnd's own TLV-extensible
// messages carry optional fields forward-compatibly.
const tlvTypeRelays tlv.Type = 0

// encodeRelayList is the tlv.Encoder for a []RelayAddress.
func encodeRelayList(w io.Writer, val interface{}, _ *[8]byte) error {
	relays, ok := val.(*[]RelayAddress)
	if !ok {
		return tlv.NewTypeForEncodingErr(val, "[]RelayAddress")
	}

	if err := binary.Write(w, binary.BigEndian, uint32(len(*relays))); err != nil {
		return err
	}
	for _, relay := range *relays {
		if _, err := w.Write(relay.PublicKey[:]); err != nil {
			return err
		}
		addrBytes := []byte(relay.Address)
		if err := binary.Write(w, binary.BigEndian, uint16(len(addrBytes))); err != nil {
			return err
		}
		if _, err := w.Write(addrBytes); err != nil {
			return err
		}
	}
	return nil
}

// decodeRelayList is the tlv.Decoder for a []RelayAddress.
func decodeRelayList(r io.Reader, val interface{}, _ *[8]byte, _ uint64) error {
	relays, ok := val.(*[]RelayAddress)
	if !ok {
		return tlv.NewTypeForDecodingErr(val, "[]RelayAddress", 0, 0)
	}

	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return err
	}

	out := make([]RelayAddress, 0, count)
	for i := uint32(0); i < count; i++ {
		var relay RelayAddress
		if _, err := io.ReadFull(r, relay.PublicKey[:]); err != nil {
			return err
		}
		var addrLen uint16
		if err := binary.Read(r, binary.BigEndian, &addrLen); err != nil {
			return err
		}
		addrBytes := make([]byte, addrLen)
		if _, err := io.ReadFull(r, addrBytes); err != nil {
			return err
		}
		relay.Address = string(addrBytes)
		out = append(out, relay)
	}

	*relays = out
	return nil
}

// EncodeOptLocalRelays writes relays as an optional TLV stream. When
// relays is empty, the stream is still well-formed (zero records) so an
// absent opt_local_relays round-trips as an empty slice rather than an
// error.
func EncodeOptLocalRelays(w io.Writer, relays []RelayAddress) error {
	if len(relays) == 0 {
		return nil
	}

	record := tlv.MakeDynamicRecord(
		tlvTypeRelays, &relays, func() uint64 {
			var buf bytes.Buffer
			_ = encodeRelayList(&buf, &relays, nil)
			return uint64(buf.Len())
		},
		encodeRelayList, decodeRelayList,
	)

	stream, err := tlv.NewStream(record)
	if err != nil {
		return err
	}
	return stream.Encode(w)
}

// DecodeOptLocalRelays reads back the opt_local_relays TLV stream. An
// empty/absent stream decodes to a nil slice.
func DecodeOptLocalRelays(r io.Reader) ([]RelayAddress, error) {
	var relays []RelayAddress
	record := tlv.MakeDynamicRecord(
		tlvTypeRelays, &relays, func() uint64 { return 0 },
		encodeRelayList, decodeRelayList,
	)

	stream, err := tlv.NewStream(record)
	if err != nil {
		return nil, err
	}
	if err := stream.Decode(r); err != nil {
		return nil, err
	}
	return relays, nil
}
