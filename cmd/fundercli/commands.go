package main

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/creditmesh/funder/creditproto"
	"github.com/creditmesh/funder/funder"
	"github.com/creditmesh/funder/tokenchannel"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli"
)

func rpcServer(ctx *cli.Context) string {
	return ctx.GlobalString("rpcserver")
}

func fatalf(format string, args ...interface{}) error {
	return cli.NewExitError(fmt.Sprintf(format, args...), 1)
}

var reportCommand = cli.Command{
	Name:  "report",
	Usage: "Print this node's identity, advertised relays, and every friend's channel status.",
	Action: func(ctx *cli.Context) error {
		resp, err := sendRequest(rpcServer(ctx), funder.IncomingControlMessage{Kind: funder.ControlGetReport},
			byKind(funder.ResponseReport, funder.ResponseControlError))
		if err != nil {
			return fatalf("%v", err)
		}
		if resp.Kind == funder.ResponseControlError {
			return fatalf("%s", resp.ErrMsg)
		}
		printReport(*resp.Report)
		return nil
	},
}

func printReport(r funder.FunderReport) {
	fmt.Printf("local public key: %s\n", r.LocalPublicKey)

	relayTable := table.NewWriter()
	relayTable.SetOutputMirror(os.Stdout)
	relayTable.AppendHeader(table.Row{"name", "address", "public key"})
	for _, relay := range r.Relays {
		relayTable.AppendRow(table.Row{relay.Name, relay.Address, relay.PublicKey})
	}
	relayTable.Render()

	friendTable := table.NewWriter()
	friendTable.SetOutputMirror(os.Stdout)
	friendTable.AppendHeader(table.Row{
		"friend", "status", "channel", "online", "balance",
		"local max debt", "remote max debt",
	})
	for _, f := range r.Friends {
		friendTable.AppendRow(table.Row{
			f.PublicKey, f.Status, f.ChannelStatus, f.Online,
			f.Balance.String(), f.LocalMaxDebt.String(), f.RemoteMaxDebt.String(),
		})
	}
	friendTable.Render()
}

var addFriendCommand = cli.Command{
	Name:      "addfriend",
	Usage:     "Add a new friend with an initial balance.",
	ArgsUsage: "<friend-pubkey-hex> <initial-balance>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 2 {
			return fatalf("addfriend requires <friend-pubkey-hex> <initial-balance>")
		}
		pk, err := parsePublicKey(ctx.Args().Get(0))
		if err != nil {
			return fatalf("%v", err)
		}
		var balance int64
		if _, err := fmt.Sscanf(ctx.Args().Get(1), "%d", &balance); err != nil {
			return fatalf("parsing initial balance: %v", err)
		}
		return runAck(ctx, funder.IncomingControlMessage{
			Kind:            funder.ControlAddFriend,
			FriendPublicKey: pk,
			InitialBalance:  creditproto.NewBalance(balance),
		})
	},
}

var removeFriendCommand = cli.Command{
	Name:      "removefriend",
	Usage:     "Remove a friend.",
	ArgsUsage: "<friend-pubkey-hex>",
	Action: func(ctx *cli.Context) error {
		pk, err := requireFriendArg(ctx)
		if err != nil {
			return err
		}
		return runAck(ctx, funder.IncomingControlMessage{Kind: funder.ControlRemoveFriend, FriendPublicKey: pk})
	},
}

var enableFriendCommand = cli.Command{
	Name:      "enablefriend",
	Usage:     "Allow a friend to route traffic.",
	ArgsUsage: "<friend-pubkey-hex>",
	Action:    setFriendStatusAction(true),
}

var disableFriendCommand = cli.Command{
	Name:      "disablefriend",
	Usage:     "Block a friend from routing traffic.",
	ArgsUsage: "<friend-pubkey-hex>",
	Action:    setFriendStatusAction(false),
}

func setFriendStatusAction(enabled bool) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		pk, err := requireFriendArg(ctx)
		if err != nil {
			return err
		}
		return runAck(ctx, funder.IncomingControlMessage{
			Kind:            funder.ControlSetFriendStatus,
			FriendPublicKey: pk,
			Enabled:         enabled,
		})
	}
}

var setFriendRelaysCommand = cli.Command{
	Name:      "setfriendrelays",
	Usage:     "Set the addresses a friend is reachable at.",
	ArgsUsage: "<friend-pubkey-hex> <addr1> [addr2 ...]",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 2 {
			return fatalf("setfriendrelays requires <friend-pubkey-hex> <addr1> [addr2 ...]")
		}
		pk, err := parsePublicKey(ctx.Args().Get(0))
		if err != nil {
			return fatalf("%v", err)
		}
		msgRelays := make([]tokenchannel.RelayAddress, 0, ctx.NArg()-1)
		for _, addr := range []string(ctx.Args())[1:] {
			msgRelays = append(msgRelays, parseRelayAddress(addr))
		}
		return runAck(ctx, funder.IncomingControlMessage{
			Kind:            funder.ControlSetFriendRelays,
			FriendPublicKey: pk,
			Relays:          msgRelays,
		})
	},
}

var setRemoteMaxDebtCommand = cli.Command{
	Name:      "setremotemaxdebt",
	Usage:     "Set how much a friend is allowed to owe us.",
	ArgsUsage: "<friend-pubkey-hex> <amount>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 2 {
			return fatalf("setremotemaxdebt requires <friend-pubkey-hex> <amount>")
		}
		pk, err := parsePublicKey(ctx.Args().Get(0))
		if err != nil {
			return fatalf("%v", err)
		}
		amt, err := parseCreditAmount(ctx.Args().Get(1))
		if err != nil {
			return fatalf("parsing amount: %v", err)
		}
		return runAck(ctx, funder.IncomingControlMessage{
			Kind:            funder.ControlSetFriendRemoteMaxDebt,
			FriendPublicKey: pk,
			RemoteMaxDebt:   amt,
		})
	},
}

var openRequestsCommand = cli.Command{
	Name:      "openrequests",
	Usage:     "Allow a friend to originate new requests through us.",
	ArgsUsage: "<friend-pubkey-hex>",
	Action:    setRequestsStatusAction(true),
}

var closeRequestsCommand = cli.Command{
	Name:      "closerequests",
	Usage:     "Stop accepting new requests from a friend.",
	ArgsUsage: "<friend-pubkey-hex>",
	Action:    setRequestsStatusAction(false),
}

func setRequestsStatusAction(open bool) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		pk, err := requireFriendArg(ctx)
		if err != nil {
			return err
		}
		return runAck(ctx, funder.IncomingControlMessage{
			Kind:            funder.ControlSetRequestsStatus,
			FriendPublicKey: pk,
			RequestsOpen:    open,
		})
	}
}

var resetChannelCommand = cli.Command{
	Name:      "resetchannel",
	Usage:     "Accept a friend's offered reset terms after an inconsistency.",
	ArgsUsage: "<friend-pubkey-hex> <current-token-hex>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 2 {
			return fatalf("resetchannel requires <friend-pubkey-hex> <current-token-hex>")
		}
		pk, err := parsePublicKey(ctx.Args().Get(0))
		if err != nil {
			return fatalf("%v", err)
		}
		token, err := parseHashResult(ctx.Args().Get(1))
		if err != nil {
			return fatalf("%v", err)
		}
		return runAck(ctx, funder.IncomingControlMessage{
			Kind:            funder.ControlResetFriendChannel,
			FriendPublicKey: pk,
			CurrentToken:    token,
		})
	},
}

var sendFundsCommand = cli.Command{
	Name:      "sendfunds",
	Usage:     "Send a payment along a route of friend public keys.",
	ArgsUsage: "<amount> <hop1-pubkey-hex,hop2-pubkey-hex,...>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 2 {
			return fatalf("sendfunds requires <amount> <route>")
		}
		amt, err := parseCreditAmount(ctx.Args().Get(0))
		if err != nil {
			return fatalf("parsing amount: %v", err)
		}
		route, err := parseRoute(ctx.Args().Get(1))
		if err != nil {
			return fatalf("parsing route: %v", err)
		}

		var msg funder.IncomingControlMessage
		msg.Kind = funder.ControlRequestSendFunds
		msg.Route = route
		msg.DestPayment = amt
		if _, err := rand.Read(msg.RequestId[:]); err != nil {
			return fatalf("generating request id: %v", err)
		}
		if _, err := rand.Read(msg.InvoiceId[:]); err != nil {
			return fatalf("generating invoice id: %v", err)
		}

		resp, err := sendRequest(rpcServer(ctx), msg,
			byKind(funder.ResponseReceivedSuccess, funder.ResponseReceivedFailure, funder.ResponseControlError))
		if err != nil {
			return fatalf("%v", err)
		}
		switch resp.Kind {
		case funder.ResponseReceivedSuccess:
			fmt.Printf("payment succeeded, receipt for invoice %x\n", resp.Receipt.InvoiceId)
		case funder.ResponseReceivedFailure:
			fmt.Printf("payment failed at %s\n", resp.ReportingKey)
		default:
			fmt.Printf("payment rejected: %s\n", resp.ErrMsg)
		}
		return nil
	},
}

var addRelayCommand = cli.Command{
	Name:      "addrelay",
	Usage:     "Advertise this node as reachable at an additional relay address.",
	ArgsUsage: "<name> <address>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 2 {
			return fatalf("addrelay requires <name> <address>")
		}
		return runAck(ctx, funder.IncomingControlMessage{
			Kind: funder.ControlAddRelay,
			Relay: funder.NamedRelayAddress{
				Name:    ctx.Args().Get(0),
				Address: ctx.Args().Get(1),
			},
		})
	},
}

var removeRelayCommand = cli.Command{
	Name:      "removerelay",
	Usage:     "Stop advertising a relay address by its public key.",
	ArgsUsage: "<relay-pubkey-hex>",
	Action: func(ctx *cli.Context) error {
		pk, err := requireFriendArg(ctx)
		if err != nil {
			return err
		}
		return runAck(ctx, funder.IncomingControlMessage{
			Kind:  funder.ControlRemoveRelay,
			Relay: funder.NamedRelayAddress{PublicKey: pk},
		})
	},
}

// runAck sends msg and reports the one frame the control surface always
// sends back for it: either a synthetic ResponseAck or a ResponseControlError.
func runAck(ctx *cli.Context, msg funder.IncomingControlMessage) error {
	resp, err := sendRequest(rpcServer(ctx), msg, byKind(funder.ResponseAck, funder.ResponseControlError))
	if err != nil {
		return fatalf("%v", err)
	}
	if resp.Kind == funder.ResponseControlError {
		return fatalf("%s", resp.ErrMsg)
	}
	fmt.Println("ok")
	return nil
}

func requireFriendArg(ctx *cli.Context) (creditproto.PublicKey, error) {
	if ctx.NArg() < 1 {
		return creditproto.PublicKey{}, fatalf("requires a friend public key argument")
	}
	return parsePublicKey(ctx.Args().Get(0))
}
