// Package store implements the durable `{key -> bytes}` mapping named in
// §6 ("a single mapping {key -> bytes} is sufficient") on top of
// lightningnetwork/lnd/kvdb, the same backend-agnostic bolt wrapper
// channeldb is built on in the teacher repo.
package store

import (
	"github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/kvdb"
)

const dbFileName = "funder.db"

// rootBucket is the single top-level bucket the funder writes every key
// into; §6 only requires one flat mapping, so there is no schema of nested
// buckets to version here (contrast channeldb's many buckets).
var rootBucket = []byte("funder-state")

// ErrKeyNotFound is returned by Get when no value is stored under key.
var ErrKeyNotFound = errors.New("store: key not found")

// Store is the durable key-value mapping backing FunderState persistence
// and the mutation runner's write-ahead log.
type Store struct {
	db kvdb.Backend
}

// Open opens (creating if absent) a bolt-backed store at dbPath, the way
// channeldb.Open does for the teacher's channel database.
func Open(dbPath string) (*Store, error) {
	db, err := kvdb.Create(kvdb.BoltBackendName, dbPath+"/"+dbFileName, true, kvdb.DefaultDBTimeout)
	if err != nil {
		return nil, errors.Errorf("store: opening %s: %w", dbPath, err)
	}

	err = kvdb.Update(db, func(tx kvdb.RwTx) error {
		_, err := tx.CreateTopLevelBucket(rootBucket)
		return err
	}, func() {})
	if err != nil {
		db.Close()
		return nil, errors.Errorf("store: creating root bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get reads the value stored under key, returning ErrKeyNotFound if absent.
func (s *Store) Get(key []byte) ([]byte, error) {
	var value []byte
	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(rootBucket)
		if bucket == nil {
			return ErrKeyNotFound
		}
		v := bucket.Get(key)
		if v == nil {
			return ErrKeyNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	}, func() {})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// WriteBatch is one set of key/value writes applied atomically. A nil
// value deletes the key.
type WriteBatch struct {
	Writes map[string][]byte
}

// Put stages key to be set to value in this batch.
func (b *WriteBatch) Put(key []byte, value []byte) {
	if b.Writes == nil {
		b.Writes = make(map[string][]byte)
	}
	b.Writes[string(key)] = value
}

// Delete stages key to be removed in this batch.
func (b *WriteBatch) Delete(key []byte) {
	b.Put(key, nil)
}

// ApplyBatch commits batch as a single atomic bolt transaction, returning
// only after fsync (§4.9: "returns success only after fsync" — kvdb.Update
// commits via bbolt's Commit, which fsyncs by default).
func (s *Store) ApplyBatch(batch WriteBatch) error {
	return kvdb.Update(s.db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(rootBucket)
		for k, v := range batch.Writes {
			if v == nil {
				if err := bucket.Delete([]byte(k)); err != nil {
					return err
				}
				continue
			}
			if err := bucket.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	}, func() {})
}

// ForEach iterates every key/value pair in the root bucket, used on
// startup to reconstruct FunderState (§6: "On startup the implementation
// reconstructs FunderState from the persisted form").
func (s *Store) ForEach(fn func(key, value []byte) error) error {
	return kvdb.View(s.db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(rootBucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(fn)
	}, func() {})
}
