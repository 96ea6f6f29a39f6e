package funder

import (
	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/friend"
)

// FriendReport summarizes one friend's live channel status and balances
// for the control surface, the shape carried from
// `components/proto/src/report/serialize.rs` per SPEC_FULL.md's
// SUPPLEMENTED FEATURES (spec.md's §3/§6 name a report channel but never
// define its payload).
type FriendReport struct {
	PublicKey     creditproto.PublicKey
	Status        friend.Status
	ChannelStatus friend.ChannelStatus
	Online        bool

	// Balance/MaxDebts/PendingDebts are only meaningful when
	// ChannelStatus is Consistent.
	Balance           creditproto.Balance
	LocalMaxDebt      creditproto.CreditAmount
	RemoteMaxDebt     creditproto.CreditAmount
	LocalPendingDebt  creditproto.CreditAmount
	RemotePendingDebt creditproto.CreditAmount
}

// FunderReport is the full snapshot returned by Handler.Report, one
// FriendReport per known friend plus the local identity and advertised
// relays.
type FunderReport struct {
	LocalPublicKey creditproto.PublicKey
	Relays         []NamedRelayAddress
	Friends        []FriendReport
}

// Report builds a fresh FunderReport from the current state, the
// Control::Report response of §6.
func (h *Handler) Report() FunderReport {
	report := FunderReport{
		LocalPublicKey: h.state.LocalPublicKey,
		Relays:         append([]NamedRelayAddress(nil), h.state.Relays...),
	}

	for pk, f := range h.state.Friends {
		fr := FriendReport{
			PublicKey:     pk,
			Status:        f.Status,
			ChannelStatus: f.ChannelStatus,
			Online:        f.IsOnline(),
		}
		if f.Channel != nil {
			credit := f.Channel.Credit()
			fr.Balance = credit.Balance()
			fr.LocalMaxDebt = credit.LocalMaxDebt()
			fr.RemoteMaxDebt = credit.RemoteMaxDebt()
			fr.LocalPendingDebt = credit.LocalPendingDebt()
			fr.RemotePendingDebt = credit.RemotePendingDebt()
		}
		report.Friends = append(report.Friends, fr)
	}

	return report
}
