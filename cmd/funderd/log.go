package main

import (
	"os"

	"github.com/btcsuite/btclog"
	"github.com/creditmesh/funder/freezeguard"
	"github.com/creditmesh/funder/friend"
	"github.com/creditmesh/funder/funder"
	"github.com/creditmesh/funder/handshake"
	"github.com/creditmesh/funder/listenpool"
	"github.com/creditmesh/funder/mutation"
	"github.com/creditmesh/funder/mutualcredit"
	"github.com/creditmesh/funder/tokenchannel"
)

// backendLog is the single btclog.Backend every subsystem's logger is
// carved out of, the same pattern lnd's own log.go uses to wire every
// package's package-level logger from one writer.
var backendLog = btclog.NewBackend(os.Stdout)

// log is this command's own subsystem logger, for daemon.go/main.go/
// relaylistener.go's connection-management messages.
var log = backendLog.Logger("FNDD")

// subsystemLoggers maps each subsystem tag to the UseLogger setter its
// package exposes, so setLogLevels can iterate them uniformly.
var subsystemLoggers = map[string]func(btclog.Logger){
	"FNDR": funder.UseLogger,
	"FRND": friend.UseLogger,
	"TKCH": tokenchannel.UseLogger,
	"MTCR": mutualcredit.UseLogger,
	"HNDS": handshake.UseLogger,
	"LSNP": listenpool.UseLogger,
	"MTTN": mutation.UseLogger,
	"FRZG": freezeguard.UseLogger,
}

// initLogging constructs one named logger per subsystem and wires it into
// that package, then sets every logger (including this command's own) to
// level.
func initLogging(level btclog.Level) {
	log.SetLevel(level)
	for tag, use := range subsystemLoggers {
		logger := backendLog.Logger(tag)
		logger.SetLevel(level)
		use(logger)
	}
}
