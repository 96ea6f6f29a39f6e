// Command funderd runs one Funder node: it owns the durable FunderState,
// the friend-to-friend encrypted connections, the relay listeners this
// node advertises itself on, and the local control surface an operator or
// cmd/fundercli talks to (SPEC_FULL.md §4.3, §4.8, §6).
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/creditmesh/funder/funder"
	"github.com/creditmesh/funder/identity"
	"github.com/creditmesh/funder/store"
	"github.com/creditmesh/funder/timerservice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "funderd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level, ok := btclog.LevelFromString(cfg.DebugLevel)
	if !ok {
		level = btclog.LevelInfo
	}
	initLogging(level)

	if cfg.GenIdentity {
		return generateIdentity(cfg.IDFile)
	}
	if cfg.IDFile == "" {
		return fmt.Errorf("--idfile is required")
	}
	if cfg.LAddr == "" {
		return fmt.Errorf("--laddr is required")
	}

	signer, err := identity.LoadFile(cfg.IDFile)
	if err != nil {
		return fmt.Errorf("loading identity: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening durable store: %w", err)
	}
	defer st.Close()

	state, err := loadState(st, signer.PublicKey())
	if err != nil {
		return fmt.Errorf("reconstructing FunderState: %w", err)
	}

	handler := funder.New(signer, state)
	handler.Init()

	d := newDaemon(cfg, signer, st, handler)
	go d.run()

	d.reconcileRelaysInitial(cfg.RelayAddrs)

	if err := d.serveControlSurface(cfg.LAddr); err != nil {
		return fmt.Errorf("binding control surface: %w", err)
	}

	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		for _, c := range handler.Collectors() {
			registry.MustRegister(c)
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Errorf("metrics server stopped: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := timerservice.New(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Ticks():
			d.events <- daemonEvent{tick: true}
		case sig := <-sigCh:
			log.Infof("received %s, shutting down", sig)
			d.controlListener.Close()
			d.runner.Close()
			return nil
		}
	}
}

func generateIdentity(path string) error {
	if path == "" {
		return fmt.Errorf("--idfile is required with --gen-identity")
	}
	svc, err := identity.Generate()
	if err != nil {
		return err
	}
	if err := identity.SaveFile(path, svc); err != nil {
		return err
	}
	fmt.Printf("wrote new identity to %s (public key %x)\n", path, svc.PublicKey())
	return nil
}
