package handshake

import (
	"testing"

	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/identity"
	"github.com/stretchr/testify/require"
)

func TestFullHandshakeDerivesMatchingDirectionalKeys(t *testing.T) {
	initiatorID, err := identity.Generate()
	require.NoError(t, err)
	defer initiatorID.Close()

	responderID, err := identity.Generate()
	require.NoError(t, err)
	defer responderID.Close()

	isFriend := func(pk creditproto.PublicKey) bool { return pk == initiatorID.PublicKey() }
	responder := NewResponder(responderID, isFriend)
	initiator := NewInitiator(initiatorID)

	req, err := initiator.BuildExchangeRandNonce()
	require.NoError(t, err)

	resp, err := responder.HandleExchangeRandNonce(req)
	require.NoError(t, err)

	active, err := initiator.BuildExchangeActive(resp)
	require.NoError(t, err)

	passive, _, err := responder.HandleExchangeActive(active)
	require.NoError(t, err)

	ready, initiatorMeta, err := initiator.BuildChannelReady(responderID.PublicKey(), passive)
	require.NoError(t, err)

	responderMeta, err := responder.HandleChannelReady(ready)
	require.NoError(t, err)

	require.Equal(t, initiatorMeta.SendKey, responderMeta.RecvKey)
	require.Equal(t, responderMeta.SendKey, initiatorMeta.RecvKey)
	require.NotEqual(t, initiatorMeta.SendKey, initiatorMeta.RecvKey)
	require.Equal(t, initiatorID.PublicKey(), responderMeta.RemotePublicKey)
	require.Equal(t, responderID.PublicKey(), initiatorMeta.RemotePublicKey)
}

func TestExchangeActiveRejectsUnknownFriend(t *testing.T) {
	initiatorID, err := identity.Generate()
	require.NoError(t, err)
	defer initiatorID.Close()
	responderID, err := identity.Generate()
	require.NoError(t, err)
	defer responderID.Close()

	responder := NewResponder(responderID, func(creditproto.PublicKey) bool { return false })
	initiator := NewInitiator(initiatorID)

	req, err := initiator.BuildExchangeRandNonce()
	require.NoError(t, err)
	resp, err := responder.HandleExchangeRandNonce(req)
	require.NoError(t, err)
	active, err := initiator.BuildExchangeActive(resp)
	require.NoError(t, err)

	_, _, err = responder.HandleExchangeActive(active)
	require.ErrorIs(t, err, ErrUnknownFriend)
}

func TestExchangeActiveRejectsStaleResponderRand(t *testing.T) {
	initiatorID, err := identity.Generate()
	require.NoError(t, err)
	defer initiatorID.Close()
	responderID, err := identity.Generate()
	require.NoError(t, err)
	defer responderID.Close()

	responder := NewResponder(responderID, func(pk creditproto.PublicKey) bool { return pk == initiatorID.PublicKey() })
	initiator := NewInitiator(initiatorID)

	req, err := initiator.BuildExchangeRandNonce()
	require.NoError(t, err)
	resp, err := responder.HandleExchangeRandNonce(req)
	require.NoError(t, err)

	for i := 0; i < RandValuesStoreTicks+1; i++ {
		responder.Tick()
	}

	active, err := initiator.BuildExchangeActive(resp)
	require.NoError(t, err)

	_, _, err = responder.HandleExchangeActive(active)
	require.ErrorIs(t, err, ErrInvalidResponderNonce)
}
