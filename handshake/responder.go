package handshake

import (
	"crypto/rand"

	"github.com/creditmesh/funder/creditproto"
)

// pendingSession is the responder-side in-progress state between receiving
// ExchangeActive and receiving the matching ChannelReady, keyed by the hash
// of the passive message it sent — "so two concurrent attempts from the
// same PK self-serialize" (§4.7 step 3).
type pendingSession struct {
	initiatorPub creditproto.PublicKey
	dh           dhKeyPair
	sentSalt     [32]byte
	recvSalt     [32]byte
	initiatorDh  [33]byte
	sentRand     creditproto.RandValue
	recvRand     creditproto.RandValue
	ticksLeft    int
}

// IsFriendFunc reports whether pk is a known friend; the responder uses it
// to reject ExchangeActive from strangers (§4.7 step 2b).
type IsFriendFunc func(pk creditproto.PublicKey) bool

// Responder drives the responder side of the 3-message handshake for one
// listening endpoint: it owns the rand-value sliding window and the
// sessions-by-hash table.
type Responder struct {
	signer    creditproto.Signer
	isFriend  IsFriendFunc
	rands     *RandValueStore
	byHash    map[creditproto.HashResult]*pendingSession
	byFriend  map[creditproto.PublicKey]creditproto.HashResult
}

// NewResponder constructs a Responder signing with signer and consulting
// isFriend to validate initiators.
func NewResponder(signer creditproto.Signer, isFriend IsFriendFunc) *Responder {
	return &Responder{
		signer:   signer,
		isFriend: isFriend,
		rands:    NewRandValueStore(),
		byHash:   make(map[creditproto.HashResult]*pendingSession),
		byFriend: make(map[creditproto.PublicKey]creditproto.HashResult),
	}
}

// HandleExchangeRandNonce answers step 1 with the store's current
// responder_rand, signed.
func (r *Responder) HandleExchangeRandNonce(req ExchangeRandNonceRequest) (ExchangeRandNonceResponse, error) {
	var responseRand creditproto.RandValue
	if _, err := rand.Read(responseRand[:]); err != nil {
		return ExchangeRandNonceResponse{}, err
	}

	resp := ExchangeRandNonceResponse{
		RequestRand:   req.RequestRand,
		ResponseRand:  responseRand,
		ResponderRand: r.rands.Current(),
	}
	if err := resp.Sign(r.signer); err != nil {
		return ExchangeRandNonceResponse{}, err
	}
	return resp, nil
}

// HandleExchangeActive implements §4.7 step 2: validates the active
// message and, on success, returns the signed ExchangePassive reply plus
// the hash it filed the pending session under.
func (r *Responder) HandleExchangeActive(active *ExchangeActive) (*ExchangePassive, creditproto.HashResult, error) {
	if !active.Verify() {
		return nil, creditproto.HashResult{}, ErrBadSignature
	}
	if r.isFriend != nil && !r.isFriend(active.InitiatorPublicKey) {
		return nil, creditproto.HashResult{}, ErrUnknownFriend
	}
	if !r.rands.Contains(active.ResponderRand) {
		return nil, creditproto.HashResult{}, ErrInvalidResponderNonce
	}
	if existing, inProgress := r.byFriend[active.InitiatorPublicKey]; inProgress {
		if _, stillPending := r.byHash[existing]; stillPending {
			return nil, creditproto.HashResult{}, ErrHandshakeInProgress
		}
	}

	kp, err := newDHKeyPair()
	if err != nil {
		return nil, creditproto.HashResult{}, err
	}

	prevHash := creditproto.Sha512_256(active.Bytes())

	passive := &ExchangePassive{
		PrevHash:    prevHash,
		DhPublicKey: kp.compressedPublicKey(),
		KeySalt:     kp.salt,
	}
	if err := passive.Sign(r.signer); err != nil {
		return nil, creditproto.HashResult{}, err
	}

	sessionHash := creditproto.Sha512_256(passive.Bytes())

	r.byHash[sessionHash] = &pendingSession{
		initiatorPub: active.InitiatorPublicKey,
		dh:           kp,
		sentSalt:     kp.salt,
		recvSalt:     active.KeySalt,
		initiatorDh:  active.DhPublicKey,
		sentRand:     active.ResponderRand,
		recvRand:     active.InitiatorRand,
		ticksLeft:    HandshakeSessionTimeout,
	}
	r.byFriend[active.InitiatorPublicKey] = sessionHash

	return passive, sessionHash, nil
}

// HandleChannelReady implements §4.7 step 3: looks the session up by the
// hash the ready message carries, verifies, derives the symmetric key, and
// removes the pending session either way (success or failure both end it).
func (r *Responder) HandleChannelReady(ready *ChannelReady) (ChannelMetadata, error) {
	sess, ok := r.byHash[ready.PrevHash]
	if !ok {
		return ChannelMetadata{}, ErrUnknownSession
	}
	delete(r.byHash, ready.PrevHash)
	if r.byFriend[sess.initiatorPub] == ready.PrevHash {
		delete(r.byFriend, sess.initiatorPub)
	}

	if !ready.Verify(sess.initiatorPub) {
		return ChannelMetadata{}, ErrBadSignature
	}

	keys, err := deriveSessionKeys(sess.dh.priv, sess.initiatorDh, sess.sentSalt, sess.recvSalt)
	if err != nil {
		return ChannelMetadata{}, err
	}

	// We are the responder: we send on responder->initiator, and read on
	// initiator->responder.
	return ChannelMetadata{
		SendKey:         keys.responderToInitiator,
		RecvKey:         keys.initiatorToResponder,
		RemotePublicKey: sess.initiatorPub,
		SentRand:        sess.sentRand,
		RecvRand:        sess.recvRand,
	}, nil
}

// Tick advances the rand-value window and expires stale pending sessions
// (§4.7 "Session TTL: HANDSHAKE_SESSION_TIMEOUT ticks after creation. On
// expiry the server session is dropped silently").
func (r *Responder) Tick() {
	r.rands.Tick()

	for hash, sess := range r.byHash {
		sess.ticksLeft--
		if sess.ticksLeft <= 0 {
			delete(r.byHash, hash)
			if r.byFriend[sess.initiatorPub] == hash {
				delete(r.byFriend, sess.initiatorPub)
			}
		}
	}
}
