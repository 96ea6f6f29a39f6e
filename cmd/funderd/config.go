package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

// defaultDataDir is a dotted directory name, resolved relative to the
// working directory the daemon is started from.
const defaultDataDir = ".funderd"

// config is the funderd flag/config-file surface, following the same
// jessevdk/go-flags struct-tag pattern as the teacher's own config.go.
type config struct {
	DataDir  string `long:"datadir" description:"directory to store the durable funder database in"`
	IDFile   string `long:"idfile" description:"path to the node's identity file"`
	LAddr    string `long:"laddr" description:"control-surface listen address (host:port)"`
	RelayAddrs []string `long:"relay" description:"relay address this node advertises itself reachable at (repeatable)"`
	DebugLevel string `long:"debuglevel" description:"logging level: trace|debug|info|warn|error|critical" default:"info"`
	MetricsAddr string `long:"metricsaddr" description:"address to serve prometheus metrics on, empty disables"`
	GenIdentity bool `long:"gen-identity" description:"generate a fresh identity file at --idfile and exit"`
}

// loadConfig parses the command-line flags in a single pass; no config file
// is read.
func loadConfig() (*config, error) {
	cfg := config{
		DataDir: defaultDataDir,
	}
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		return nil, err
	}
	return &cfg, nil
}
