package mutualcredit

import "github.com/creditmesh/funder/creditproto"

// Snapshot is the persisted form of a MutualCredit: every private field
// made explicit so the token channel it belongs to can be written to and
// restored from the durable store (§6 "On startup the implementation
// reconstructs FunderState from the persisted form").
type Snapshot struct {
	Balance               creditproto.Balance
	LocalMaxDebt          creditproto.CreditAmount
	RemoteMaxDebt         creditproto.CreditAmount
	LocalPendingDebt      creditproto.CreditAmount
	RemotePendingDebt     creditproto.CreditAmount
	LocalRequestsStatus   RequestsStatus
	RemoteRequestsStatus  RequestsStatus
	PendingLocalRequests  map[creditproto.Uid]PendingFriendRequest
	PendingRemoteRequests map[creditproto.Uid]PendingFriendRequest
}

// Snapshot captures mc's full state for persistence.
func (mc *MutualCredit) Snapshot() Snapshot {
	snap := Snapshot{
		Balance:               mc.balance,
		LocalMaxDebt:          mc.localMaxDebt,
		RemoteMaxDebt:         mc.remoteMaxDebt,
		LocalPendingDebt:      mc.localPendingDebt,
		RemotePendingDebt:     mc.remotePendingDebt,
		LocalRequestsStatus:   mc.localRequestsStatus,
		RemoteRequestsStatus:  mc.remoteRequestsStatus,
		PendingLocalRequests:  make(map[creditproto.Uid]PendingFriendRequest, len(mc.pendingLocalRequests)),
		PendingRemoteRequests: make(map[creditproto.Uid]PendingFriendRequest, len(mc.pendingRemoteRequests)),
	}
	for k, v := range mc.pendingLocalRequests {
		snap.PendingLocalRequests[k] = v
	}
	for k, v := range mc.pendingRemoteRequests {
		snap.PendingRemoteRequests[k] = v
	}
	return snap
}

// RestoreSnapshot reconstructs a MutualCredit from a previously taken
// Snapshot, the inverse of Snapshot.
func RestoreSnapshot(snap Snapshot) *MutualCredit {
	mc := &MutualCredit{
		balance:               snap.Balance,
		localMaxDebt:          snap.LocalMaxDebt,
		remoteMaxDebt:         snap.RemoteMaxDebt,
		localPendingDebt:      snap.LocalPendingDebt,
		remotePendingDebt:     snap.RemotePendingDebt,
		localRequestsStatus:   snap.LocalRequestsStatus,
		remoteRequestsStatus:  snap.RemoteRequestsStatus,
		pendingLocalRequests:  make(map[creditproto.Uid]PendingFriendRequest, len(snap.PendingLocalRequests)),
		pendingRemoteRequests: make(map[creditproto.Uid]PendingFriendRequest, len(snap.PendingRemoteRequests)),
	}
	for k, v := range snap.PendingLocalRequests {
		mc.pendingLocalRequests[k] = v
	}
	for k, v := range snap.PendingRemoteRequests {
		mc.pendingRemoteRequests[k] = v
	}
	return mc
}
