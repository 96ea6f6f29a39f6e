// Package mutation implements the atomic mutation runner of §4.9: it
// accepts a batch of writes, applies them to durable storage as one atomic
// transaction, and acknowledges only after fsync. The runner is strictly
// serial — at most one commit in flight — but coalesces any requests that
// arrive while a commit is already running into the next single commit,
// matching the original's `components/funder/src/database/runner.rs`
// behavior of batching multiple mutation lists across ticks rather than
// processing them one at a time when the store is briefly busy.
package mutation

import (
	"github.com/creditmesh/funder/store"
)

// requestBufferSize bounds the runner's submission channel (§5: "a bounded
// channel that may be full" is an explicit suspension point for callers).
const requestBufferSize = 64

type commitRequest struct {
	batch store.WriteBatch
	done  chan error
}

// Runner serializes every write against the durable store behind a single
// goroutine.
type Runner struct {
	st       *store.Store
	requests chan commitRequest
	closeCh  chan struct{}
}

// New starts a Runner backed by st.
func New(st *store.Store) *Runner {
	r := &Runner{
		st:       st,
		requests: make(chan commitRequest, requestBufferSize),
		closeCh:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Commit submits batch and blocks until it has been durably applied (or
// failed). On failure the caller's in-memory state MUST NOT be mutated and
// its outgoing effects MUST be discarded (§4.9).
func (r *Runner) Commit(batch store.WriteBatch) error {
	done := make(chan error, 1)
	r.requests <- commitRequest{batch: batch, done: done}
	return <-done
}

// Close stops the runner goroutine. Any requests already queued are
// drained and committed before it exits.
func (r *Runner) Close() {
	close(r.closeCh)
}

func (r *Runner) run() {
	for {
		select {
		case first := <-r.requests:
			r.drainAndCommit(first)
		case <-r.closeCh:
			r.drainRemaining()
			return
		}
	}
}

// drainAndCommit coalesces first with every additional request already
// waiting on the channel (non-blocking drain) into one merged batch, then
// commits once and replies to every waiter.
func (r *Runner) drainAndCommit(first commitRequest) {
	pending := []commitRequest{first}

drain:
	for {
		select {
		case next := <-r.requests:
			pending = append(pending, next)
		default:
			break drain
		}
	}

	merged := store.WriteBatch{Writes: make(map[string][]byte)}
	for _, req := range pending {
		for k, v := range req.batch.Writes {
			merged.Writes[k] = v
		}
	}

	err := r.st.ApplyBatch(merged)
	if err != nil {
		log.Errorf("commit of %d coalesced batch(es) failed: %v", len(pending), err)
	} else if len(pending) > 1 {
		log.Debugf("coalesced %d pending commits into one batch", len(pending))
	}
	for _, req := range pending {
		req.done <- err
	}
}

// drainRemaining commits whatever is left in the channel on shutdown so no
// caller is left hanging on Commit.
func (r *Runner) drainRemaining() {
	for {
		select {
		case req := <-r.requests:
			r.drainAndCommit(req)
		default:
			return
		}
	}
}
