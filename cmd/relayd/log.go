package main

import (
	"os"

	"github.com/btcsuite/btclog"
)

// log is relayd's subsystem logger, the same btclog.NewBackend-per-process
// pattern cmd/funderd/log.go uses.
var log = btclog.NewBackend(os.Stdout).Logger("RLYD")

func initLogging(level btclog.Level) {
	log.SetLevel(level)
}
