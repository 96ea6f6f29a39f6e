// Package identity loads the node's Ed25519 private key and exposes it as
// a single-writer signing service, the external collaborator named in
// §1/§6/§5 ("the identity signer is a single-writer service accessed
// through a bounded request channel").
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/creditmesh/funder/creditproto"
	"github.com/go-errors/errors"
)

// identityKeyField is the TOML key named in §6: `private_key = "<base64 of
// 85-byte PKCS#8 Ed25519 blob>"`. No TOML library is in the teacher's
// dependency set (see SPEC_FULL.md's AMBIENT STACK note), so this loader
// hand-scans a single `key = "value"` line rather than pulling in a parser
// for a one-field file — the one deliberate stdlib fallback in the
// ambient-config surface.
const identityKeyField = "private_key"

// LoadFile reads a TOML-shaped identity file and constructs a Service.
func LoadFile(path string) (*Service, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("identity: reading %s: %w", path, err)
	}
	return loadBytes(raw)
}

func loadBytes(raw []byte) (*Service, error) {
	var encoded string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key != identityKeyField {
			continue
		}
		encoded = strings.Trim(strings.TrimSpace(parts[1]), `"`)
		break
	}
	if encoded == "" {
		return nil, errors.Errorf("identity: %s not found in identity file", identityKeyField)
	}

	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Errorf("identity: decoding %s: %w", identityKeyField, err)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(blob)
	if err != nil {
		return nil, errors.Errorf("identity: parsing PKCS8 key: %w", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("identity: identity file does not hold an Ed25519 key")
	}

	return newService(priv), nil
}

// Generate creates a fresh random identity, used by tests and by the
// `--gen-identity` path of cmd/funderd.
func Generate() (*Service, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return newService(priv), nil
}

// SaveFile writes svc's private key to path in the same one-line TOML
// shape LoadFile reads back, the `--gen-identity` counterpart to LoadFile.
func SaveFile(path string, svc *Service) error {
	blob, err := x509.MarshalPKCS8PrivateKey(svc.priv)
	if err != nil {
		return errors.Errorf("identity: marshaling PKCS8 key: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(blob)
	contents := fmt.Sprintf("%s = %q\n", identityKeyField, encoded)
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		return errors.Errorf("identity: writing %s: %w", path, err)
	}
	return nil
}

// signRequest is one queued request to the single-writer signer
// goroutine; reply is a oneshot channel per §5's "replies are oneshot".
type signRequest struct {
	msg   []byte
	reply chan signReply
}

type signReply struct {
	sig creditproto.Signature
	err error
}

// Service is a single-writer signer reachable through a bounded request
// channel, matching §5's shared-resource model exactly (one goroutine owns
// the private key; every caller, including concurrent per-friend I/O
// tasks, goes through the same channel).
type Service struct {
	pub     creditproto.PublicKey
	priv    ed25519.PrivateKey
	reqs    chan signRequest
	closeCh chan struct{}
}

// requestBufferSize bounds the signer's request channel, matching §5's
// "bounded request channel" language for shared single-writer resources.
const requestBufferSize = 64

func newService(priv ed25519.PrivateKey) *Service {
	var pub creditproto.PublicKey
	copy(pub[:], priv.Public().(ed25519.PublicKey))

	s := &Service{
		pub:     pub,
		priv:    priv,
		reqs:    make(chan signRequest, requestBufferSize),
		closeCh: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Service) run() {
	for {
		select {
		case req := <-s.reqs:
			sig, err := s.signNow(req.msg)
			req.reply <- signReply{sig: sig, err: err}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Service) signNow(msg []byte) (creditproto.Signature, error) {
	raw := ed25519.Sign(s.priv, msg)
	var sig creditproto.Signature
	if len(raw) != len(sig) {
		return sig, fmt.Errorf("identity: unexpected signature length %d", len(raw))
	}
	copy(sig[:], raw)
	return sig, nil
}

// PublicKey implements creditproto.Signer.
func (s *Service) PublicKey() creditproto.PublicKey { return s.pub }

// Sign implements creditproto.Signer by round-tripping through the
// single-writer goroutine.
func (s *Service) Sign(msg []byte) (creditproto.Signature, error) {
	reply := make(chan signReply, 1)
	s.reqs <- signRequest{msg: msg, reply: reply}
	r := <-reply
	return r.sig, r.err
}

// Close stops the signer goroutine. Safe to call once.
func (s *Service) Close() {
	close(s.closeCh)
}

var _ creditproto.Signer = (*Service)(nil)
