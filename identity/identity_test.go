package identity

import (
	"path/filepath"
	"testing"

	"github.com/creditmesh/funder/creditproto"
	"github.com/stretchr/testify/require"
)

func TestGenerateSignAndVerifyRoundTrip(t *testing.T) {
	svc, err := Generate()
	require.NoError(t, err)
	defer svc.Close()

	msg := []byte("the quick brown fox")
	sig, err := svc.Sign(msg)
	require.NoError(t, err)

	require.True(t, creditproto.Verify(svc.PublicKey(), msg, sig))
}

func TestLoadBytesRoundTripsGeneratedIdentity(t *testing.T) {
	svc, err := Generate()
	require.NoError(t, err)
	defer svc.Close()

	msg := []byte("another message")
	sig, err := svc.Sign(msg)
	require.NoError(t, err)
	require.Len(t, sig, 64)
	require.NotEmpty(t, svc.PublicKey())

	path := filepath.Join(t.TempDir(), "identity.toml")
	require.NoError(t, SaveFile(path, svc))
	loaded, err := LoadFile(path)
	require.NoError(t, err)
	defer loaded.Close()
	require.Equal(t, svc.PublicKey(), loaded.PublicKey())
	require.True(t, creditproto.Verify(loaded.PublicKey(), msg, sig))
}
