package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, DefaultMaxFrameLength, []byte("hello")))

	got, err := ReadFrame(&buf, DefaultMaxFrameLength)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestWriteFrameRejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, 4, []byte("hello"))
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestEncryptedChannelRoundTripsMultipleMessages(t *testing.T) {
	var keyA, keyB [32]byte
	for i := range keyA {
		keyA[i] = byte(i)
		keyB[i] = byte(i + 1)
	}

	var wireBuf bytes.Buffer
	sender, err := NewEncryptedChannel(keyA, keyB, DefaultMaxFrameLength)
	require.NoError(t, err)
	receiver, err := NewEncryptedChannel(keyB, keyA, DefaultMaxFrameLength)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		msg := []byte{byte(i), byte(i + 1)}
		require.NoError(t, sender.WriteMessage(&wireBuf, msg))
		got, err := receiver.ReadMessage(&wireBuf)
		require.NoError(t, err)
		require.Equal(t, msg, got)
	}
}

func TestEncryptedChannelRejectsOutOfOrderCounter(t *testing.T) {
	var keyA, keyB [32]byte
	keyB[0] = 1
	sender, err := NewEncryptedChannel(keyA, keyB, DefaultMaxFrameLength)
	require.NoError(t, err)
	receiver, err := NewEncryptedChannel(keyB, keyA, DefaultMaxFrameLength)
	require.NoError(t, err)

	var buf1, buf2 bytes.Buffer
	require.NoError(t, sender.WriteMessage(&buf1, []byte("first")))
	require.NoError(t, sender.WriteMessage(&buf2, []byte("second")))

	_, err = receiver.ReadMessage(&buf2)
	require.Error(t, err)
}
