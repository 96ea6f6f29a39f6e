// Package transport implements the wire framing of §6: a 4-byte
// big-endian length prefix around every frame, and, once a handshake has
// produced a symmetric key, AEAD-encrypted application frames carrying a
// strictly increasing per-direction send counter.
package transport

import (
	"encoding/binary"
	"io"

	"github.com/go-errors/errors"
)

// DefaultMaxFrameLength is MAX_FRAME_LENGTH's documented default (§4.7: "1
// MiB").
const DefaultMaxFrameLength = 1 << 20

// ErrFrameTooLarge is fatal per §6: "frames larger than MAX_FRAME_LENGTH
// are fatal".
var ErrFrameTooLarge = errors.New("transport: frame exceeds MAX_FRAME_LENGTH")

// WriteFrame writes a length-prefixed frame to w.
func WriteFrame(w io.Writer, maxFrameLength int, payload []byte) error {
	if len(payload) > maxFrameLength {
		return ErrFrameTooLarge
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame from r, rejecting anything
// over maxFrameLength before allocating its buffer.
func ReadFrame(r io.Reader, maxFrameLength int) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if int(n) > maxFrameLength {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
