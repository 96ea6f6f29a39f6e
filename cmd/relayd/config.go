package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

// config is the relayd flag surface named in §6's CLI line: "Relay:
// --idfile <path> --laddr <host:port>", following the same jessevdk/
// go-flags struct-tag pattern as cmd/funderd's config.go.
type config struct {
	IDFile     string `long:"idfile" description:"path to the relay's identity file"`
	LAddr      string `long:"laddr" description:"address to listen for peer rendezvous connections on (host:port)"`
	DebugLevel string `long:"debuglevel" description:"logging level: trace|debug|info|warn|error|critical" default:"info"`
}

// loadConfig parses the command-line flags in a single pass, like
// cmd/funderd's loadConfig; no config file is read.
func loadConfig() (*config, error) {
	var cfg config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}
	return &cfg, nil
}
