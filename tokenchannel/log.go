package tokenchannel

import "github.com/btcsuite/btclog"

// log is this package's subsystem logger, wired up from cmd/funderd/log.go.
var log = btclog.Disabled

// UseLogger sets the package-level logger used by TokenChannel.
func UseLogger(logger btclog.Logger) { log = logger }
