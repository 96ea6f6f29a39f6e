// Command fundercli is the control-surface client: it sends one
// IncomingControlMessage per invocation to a running cmd/funderd and
// prints whatever comes back, the same one-shot-RPC-per-command shape the
// teacher's own lncli uses against its daemon.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "fundercli"
	app.Usage = "control plane for funderd"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rpcserver",
			Value: defaultRPCServer,
			Usage: "host:port of the funderd control surface",
		},
	}
	app.Commands = []cli.Command{
		reportCommand,
		addFriendCommand,
		removeFriendCommand,
		enableFriendCommand,
		disableFriendCommand,
		setFriendRelaysCommand,
		setRemoteMaxDebtCommand,
		openRequestsCommand,
		closeRequestsCommand,
		resetChannelCommand,
		sendFundsCommand,
		addRelayCommand,
		removeRelayCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fundercli:", err)
		os.Exit(1)
	}
}
