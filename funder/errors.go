package funder

import "github.com/go-errors/errors"

// Error kinds named in §7's table that aren't already sentinels owned by
// another package (tokenchannel, mutualcredit, freezeguard, handshake).
var (
	ErrUnknownFriend            = errors.New("funder: unknown friend")
	ErrFriendAlreadyExists      = errors.New("funder: friend already exists")
	ErrInvalidRoute             = errors.New("funder: invalid route")
	ErrNotFirstInRoute          = errors.New("funder: local public key is not the first hop of the route")
	ErrRequestAlreadyInProgress = errors.New("funder: request_id already in flight")
	ErrFriendNotReady           = errors.New("funder: friend not ready for a new request")
	ErrNotInvitedToReset        = errors.New("funder: no remote reset terms to accept")
)
