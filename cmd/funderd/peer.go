package main

import (
	"net"

	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/funder"
	"github.com/creditmesh/funder/handshake"
	"github.com/creditmesh/funder/transport"
)

// peerConn is one live connection to a friend, past the handshake: an
// EncryptedChannel plus the identity it was negotiated with. The daemon's
// connection manager owns one of these per online friend and feeds
// decoded peerMessages into the funder.Handler's event loop as
// funder.FriendEvents (§4.3 "per-friend I/O runs on its own task").
type peerConn struct {
	conn            net.Conn
	channel         *transport.EncryptedChannel
	remotePublicKey creditproto.PublicKey
}

// runInitiatorHandshake dials nothing itself (the caller already has a net
// .Conn) and drives the 3-message handshake as the initiator (§4.7).
func runInitiatorHandshake(conn net.Conn, signer creditproto.Signer, expectedRemote creditproto.PublicKey) (*peerConn, error) {
	initiator := handshake.NewInitiator(signer)

	req, err := initiator.BuildExchangeRandNonce()
	if err != nil {
		return nil, err
	}
	if err := writeFrame(conn, req); err != nil {
		return nil, err
	}

	var resp handshake.ExchangeRandNonceResponse
	if err := readFrame(conn, &resp); err != nil {
		return nil, err
	}

	active, err := initiator.BuildExchangeActive(resp)
	if err != nil {
		return nil, err
	}
	if err := writeFrame(conn, active); err != nil {
		return nil, err
	}

	var passive handshake.ExchangePassive
	if err := readFrame(conn, &passive); err != nil {
		return nil, err
	}

	ready, meta, err := initiator.BuildChannelReady(expectedRemote, &passive)
	if err != nil {
		return nil, err
	}
	if err := writeFrame(conn, ready); err != nil {
		return nil, err
	}

	channel, err := transport.NewEncryptedChannel(meta.SendKey, meta.RecvKey, transport.DefaultMaxFrameLength)
	if err != nil {
		return nil, err
	}

	return &peerConn{conn: conn, channel: channel, remotePublicKey: meta.RemotePublicKey}, nil
}

// runResponderHandshake drives the responder's half of one handshake
// attempt arriving on conn, validating the initiator against isFriend.
func runResponderHandshake(conn net.Conn, responder *handshake.Responder) (*peerConn, error) {
	var req handshake.ExchangeRandNonceRequest
	if err := readFrame(conn, &req); err != nil {
		return nil, err
	}

	resp, err := responder.HandleExchangeRandNonce(req)
	if err != nil {
		return nil, err
	}
	if err := writeFrame(conn, resp); err != nil {
		return nil, err
	}

	var active handshake.ExchangeActive
	if err := readFrame(conn, &active); err != nil {
		return nil, err
	}

	passive, _, err := responder.HandleExchangeActive(&active)
	if err != nil {
		return nil, err
	}
	if err := writeFrame(conn, passive); err != nil {
		return nil, err
	}

	var ready handshake.ChannelReady
	if err := readFrame(conn, &ready); err != nil {
		return nil, err
	}

	meta, err := responder.HandleChannelReady(&ready)
	if err != nil {
		return nil, err
	}

	channel, err := transport.NewEncryptedChannel(meta.SendKey, meta.RecvKey, transport.DefaultMaxFrameLength)
	if err != nil {
		return nil, err
	}

	return &peerConn{conn: conn, channel: channel, remotePublicKey: meta.RemotePublicKey}, nil
}

// send encodes and pushes one OutgoingComm over this peer's encrypted
// channel (§6 "Encrypted channel framing").
func (p *peerConn) send(comm funder.OutgoingComm) error {
	var msg peerMessage
	switch comm.Kind {
	case funder.OutgoingMoveToken:
		msg = peerMessage{Kind: peerMoveToken, MoveToken: comm.MoveToken}
	case funder.OutgoingInconsistencyError:
		msg = peerMessage{Kind: peerInconsistencyError, ResetTerms: comm.ResetTerms}
	}

	payload, err := encodeGob(msg)
	if err != nil {
		return err
	}
	return p.channel.WriteMessage(p.conn, payload)
}

// recv reads and decodes the next FriendEvent from this peer's encrypted
// channel, blocking until a full frame arrives or the connection fails.
func (p *peerConn) recv() (funder.FriendEvent, error) {
	payload, err := p.channel.ReadMessage(p.conn)
	if err != nil {
		return funder.FriendEvent{}, err
	}

	var msg peerMessage
	if err := decodeGob(payload, &msg); err != nil {
		return funder.FriendEvent{}, err
	}

	ev := funder.FriendEvent{FriendPublicKey: p.remotePublicKey}
	switch msg.Kind {
	case peerMoveToken:
		ev.Kind = funder.FriendEventMoveToken
		ev.MoveToken = msg.MoveToken
	case peerInconsistencyError:
		ev.Kind = funder.FriendEventInconsistencyError
		ev.ResetTerms = msg.ResetTerms
	}
	return ev, nil
}

// close tears down the underlying connection. Safe to call once.
func (p *peerConn) close() error {
	return p.conn.Close()
}
