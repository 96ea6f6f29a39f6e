// Command relayd runs the rendezvous role named in the glossary: "a relay
// — a rendezvous server that forwards encrypted frames between two peers
// by public key." It holds no funder state and never decrypts anything it
// forwards. Peers reach it through the hello protocol in protocol.go;
// cmd/funderd does not speak that protocol and dials its friends directly.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/creditmesh/funder/identity"
	"github.com/creditmesh/funder/timerservice"
)

// exitCategory names one of the four fatal-error categories §6 enumerates
// for the relay CLI; each maps to a distinct non-zero process exit code so
// an operator's supervisor can tell them apart without parsing stderr.
type exitCategory int

const (
	exitOK exitCategory = iota
	exitParseListenAddress
	exitLoadIdentity
	exitCreateTimer
	exitServerError
)

func main() {
	os.Exit(int(run()))
}

func run() exitCategory {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "relayd:", err)
		return exitParseListenAddress
	}

	level, ok := btclog.LevelFromString(cfg.DebugLevel)
	if !ok {
		level = btclog.LevelInfo
	}
	initLogging(level)

	if cfg.IDFile == "" {
		fmt.Fprintln(os.Stderr, "relayd: --idfile is required")
		return exitLoadIdentity
	}
	signer, err := identity.LoadFile(cfg.IDFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "relayd: loading identity:", err)
		return exitLoadIdentity
	}
	log.Infof("relay identity public key: %x", signer.PublicKey())

	if cfg.LAddr == "" {
		fmt.Fprintln(os.Stderr, "relayd: --laddr is required")
		return exitParseListenAddress
	}
	ln, err := net.Listen("tcp", cfg.LAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "relayd: parsing/binding listen address:", err)
		return exitParseListenAddress
	}
	defer ln.Close()

	const sweepInterval = time.Second
	if sweepInterval <= 0 {
		fmt.Fprintln(os.Stderr, "relayd: invalid sweep interval")
		return exitCreateTimer
	}
	sweepTicker := timerservice.New(sweepInterval)
	defer sweepTicker.Stop()

	srv := newServer(ln)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.serve()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-sweepTicker.Ticks():
			srv.expireStale()
		case err := <-serveErr:
			fmt.Fprintln(os.Stderr, "relayd: server stopped:", err)
			return exitServerError
		case sig := <-sigCh:
			log.Infof("received %s, shutting down", sig)
			return exitOK
		}
	}
}
