package main

import (
	"encoding/hex"
	"fmt"

	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/tokenchannel"
	"lukechampine.com/uint128"
)

const defaultRPCServer = "localhost:7070"

func parsePublicKey(s string) (creditproto.PublicKey, error) {
	var pk creditproto.PublicKey
	raw, err := hex.DecodeString(s)
	if err != nil {
		return pk, fmt.Errorf("decoding public key: %w", err)
	}
	if len(raw) != creditproto.PublicKeyLen {
		return pk, fmt.Errorf("public key must be %d bytes, got %d", creditproto.PublicKeyLen, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

func parseCreditAmount(s string) (creditproto.CreditAmount, error) {
	return uint128.FromString(s)
}

func parseRoute(s string) (creditproto.FriendsRoute, error) {
	var hops []creditproto.PublicKey
	cur := ""
	for _, r := range s + "," {
		if r == ',' {
			if cur != "" {
				pk, err := parsePublicKey(cur)
				if err != nil {
					return creditproto.FriendsRoute{}, err
				}
				hops = append(hops, pk)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	return creditproto.NewFriendsRoute(hops)
}

func parseRelayAddress(s string) tokenchannel.RelayAddress {
	return tokenchannel.RelayAddress{Address: s}
}

func parseHashResult(s string) (creditproto.HashResult, error) {
	var h creditproto.HashResult
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decoding token: %w", err)
	}
	if len(raw) != creditproto.HashResultLen {
		return h, fmt.Errorf("token must be %d bytes, got %d", creditproto.HashResultLen, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}
