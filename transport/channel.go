package transport

import (
	"encoding/binary"
	"io"

	"github.com/go-errors/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrCounterOverflow guards the send counter's exhaustion; in practice
// unreachable inside any single process lifetime, but checked because the
// counter is part of the nonce construction and must never repeat.
var ErrCounterOverflow = errors.New("transport: send counter exhausted")

// EncryptedChannel wraps one post-handshake friend connection: outgoing
// plaintext app messages are prefixed with a strictly increasing 64-bit
// counter, AEAD-sealed under the handshake's send key, then wrapped in the
// length-prefix frame of §6. Send and receive each use their own directional
// key (ChannelMetadata.SendKey/RecvKey) and their own counter, so the two
// ends never seal under the same (key, nonce) pair.
type EncryptedChannel struct {
	sendAEAD       ciphersuite
	recvAEAD       ciphersuite
	maxFrameLength int

	sendCounter uint64
	recvCounter uint64
}

// ciphersuite is the minimal surface this package needs from an AEAD,
// satisfied by chacha20poly1305's returned cipher.AEAD.
type ciphersuite interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
	Overhead() int
}

// NewEncryptedChannel constructs a channel from the two directional 32-byte
// keys derived by the handshake (§4.7 ChannelMetadata.SendKey/RecvKey).
func NewEncryptedChannel(sendKey, recvKey [32]byte, maxFrameLength int) (*EncryptedChannel, error) {
	sendAEAD, err := chacha20poly1305.New(sendKey[:])
	if err != nil {
		return nil, err
	}
	recvAEAD, err := chacha20poly1305.New(recvKey[:])
	if err != nil {
		return nil, err
	}
	return &EncryptedChannel{sendAEAD: sendAEAD, recvAEAD: recvAEAD, maxFrameLength: maxFrameLength}, nil
}

func counterNonce(counter uint64, nonceSize int) []byte {
	nonce := make([]byte, nonceSize)
	binary.BigEndian.PutUint64(nonce[nonceSize-8:], counter)
	return nonce
}

// WriteMessage seals plaintext under the next send counter and writes it as
// one length-prefixed frame to w.
func (c *EncryptedChannel) WriteMessage(w io.Writer, plaintext []byte) error {
	if c.sendCounter == ^uint64(0) {
		return ErrCounterOverflow
	}

	nonce := counterNonce(c.sendCounter, c.sendAEAD.NonceSize())
	var counterPrefix [8]byte
	binary.BigEndian.PutUint64(counterPrefix[:], c.sendCounter)

	sealed := c.sendAEAD.Seal(nil, nonce, plaintext, counterPrefix[:])

	frame := make([]byte, 0, len(counterPrefix)+len(sealed))
	frame = append(frame, counterPrefix[:]...)
	frame = append(frame, sealed...)

	c.sendCounter++
	return WriteFrame(w, c.maxFrameLength, frame)
}

// ReadMessage reads one frame from r and opens it, enforcing that its
// counter is exactly the next expected value (monotonic per direction).
func (c *EncryptedChannel) ReadMessage(r io.Reader) ([]byte, error) {
	frame, err := ReadFrame(r, c.maxFrameLength)
	if err != nil {
		return nil, err
	}
	if len(frame) < 8 {
		return nil, errors.New("transport: frame shorter than counter prefix")
	}

	counter := binary.BigEndian.Uint64(frame[:8])
	if counter != c.recvCounter {
		return nil, errors.Errorf("transport: out-of-order send counter: got %d want %d", counter, c.recvCounter)
	}

	nonce := counterNonce(counter, c.recvAEAD.NonceSize())
	plaintext, err := c.recvAEAD.Open(nil, nonce, frame[8:], frame[:8])
	if err != nil {
		return nil, errors.Errorf("transport: AEAD open failed: %w", err)
	}

	c.recvCounter++
	return plaintext, nil
}
