package main

import (
	"strings"

	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/friend"
	"github.com/creditmesh/funder/funder"
	"github.com/creditmesh/funder/mutation"
	"github.com/creditmesh/funder/store"
)

// Every key this daemon writes into the store's flat mapping is prefixed
// so ForEach's single-bucket scan (§6) can tell a friend record from the
// root record without a schema beyond these two prefixes.
const (
	rootStateKey   = "root"
	friendKeyPrefix = "friend:"
)

// rootRecord is everything in funder.State that isn't keyed per-friend.
type rootRecord struct {
	LocalPublicKey creditproto.PublicKey
	Relays         []funder.NamedRelayAddress
	ReadyReceipts  map[creditproto.Uid]funder.SendFundsReceipt
}

func friendKey(pub creditproto.PublicKey) []byte {
	return []byte(friendKeyPrefix + string(pub[:]))
}

// saveState writes the full FunderState as one atomic batch: a root record
// plus one record per friend. Called after every mutation produced by the
// handler (§4.9 "a batch of writes... applied... as one atomic
// transaction").
func saveState(runner *mutation.Runner, st *funder.State) error {
	batch := store.WriteBatch{}

	root := rootRecord{
		LocalPublicKey: st.LocalPublicKey,
		Relays:         st.Relays,
		ReadyReceipts:  st.ReadyReceipts,
	}
	rootBytes, err := encodeGob(root)
	if err != nil {
		return err
	}
	batch.Put([]byte(rootStateKey), rootBytes)

	for pub, f := range st.Friends {
		fBytes, err := encodeGob(f)
		if err != nil {
			return err
		}
		batch.Put(friendKey(pub), fBytes)
	}

	return runner.Commit(batch)
}

// deleteFriendState stages the removal of one friend's record; the caller
// commits it as part of the same batch as whatever else changed.
func deleteFriendState(batch *store.WriteBatch, pub creditproto.PublicKey) {
	batch.Delete(friendKey(pub))
}

// loadState reconstructs a funder.State by scanning every key in st (§6:
// "On startup the implementation reconstructs FunderState from the
// persisted form"). A store with no root record yet is a brand-new node:
// loadState returns a freshly-born State for localPublicKey.
func loadState(st *store.Store, localPublicKey creditproto.PublicKey) (*funder.State, error) {
	state := funder.NewState(localPublicKey)

	rootBytes, err := st.Get([]byte(rootStateKey))
	switch err {
	case nil:
		var root rootRecord
		if decErr := decodeGob(rootBytes, &root); decErr != nil {
			return nil, decErr
		}
		state.LocalPublicKey = root.LocalPublicKey
		state.Relays = root.Relays
		if root.ReadyReceipts != nil {
			state.ReadyReceipts = root.ReadyReceipts
		}
	case store.ErrKeyNotFound:
		// brand-new node; state stays at its NewState default.
	default:
		return nil, err
	}

	err = st.ForEach(func(key, value []byte) error {
		k := string(key)
		if !strings.HasPrefix(k, friendKeyPrefix) {
			return nil
		}
		var f friend.Friend
		if decErr := decodeGob(value, &f); decErr != nil {
			return decErr
		}
		state.Friends[f.RemotePublicKey] = &f
		return nil
	})
	if err != nil {
		return nil, err
	}

	return state, nil
}
