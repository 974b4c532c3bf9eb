package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"RelayClient/internal/dispatcher"
	"RelayClient/internal/logger"
	"RelayClient/internal/metrics"
	"RelayClient/internal/session"
)

// Dispatcher is a running reference dispatcher.
type Dispatcher struct {
	cfg     *Config                // cfg is the startup configuration
	tip     atomic.Uint64          // tip is the current chain height
	handler *dispatcher.Handler    // handler assigns sessions
	http    *dispatcher.HTTPServer // http is nil when disabled
	quic    *dispatcher.QUICServer // quic is nil when disabled
	stop    chan struct{}          // stop ends the block ticker
	wg      sync.WaitGroup         // wg waits for the block ticker
}

// NewDispatcher builds the assigner, handler and listeners.
func NewDispatcher(cfg *Config, nodes []session.Node) (*Dispatcher, error) {
	if cfg.HTTPAddress == "" && cfg.QUICAddress == "" {
		return nil, fmt.Errorf("at least one of -http and -quic is required")
	}

	d := &Dispatcher{cfg: cfg, stop: make(chan struct{})}
	d.tip.Store(cfg.StartHeight)

	var (
		reg      prometheus.Registerer
		gatherer prometheus.Gatherer
	)

	if cfg.Metrics {
		r := prometheus.NewRegistry()
		r.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg, gatherer = r, r
	}

	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	assigner := dispatcher.NewAssigner(nodes, dispatcher.AssignerConfig{
		NodesPerSession:  cfg.NodesPerSession,
		BlocksPerSession: cfg.BlocksPerSession,
	})
	d.handler = dispatcher.NewHandler(assigner, d.tip.Load, m)

	if cfg.HTTPAddress != "" {
		d.http = dispatcher.NewHTTPServer(cfg.HTTPAddress, d.handler, gatherer)
	}

	if cfg.QUICAddress != "" {
		d.quic, err = dispatcher.NewQUICServer(cfg.QUICAddress, cfg.PrivateKey, d.handler)
		if err != nil {
			return nil, fmt.Errorf("create quic server:\n%w", err)
		}
	}

	return d, nil
}

// Run starts the listeners and blocks until a shutdown signal.
func (d *Dispatcher) Run() error {
	if err := d.Start(); err != nil {
		d.Close()
		return err
	}

	return d.waitForShutdown()
}

// Start starts the listeners and the block ticker.
func (d *Dispatcher) Start() error {
	if d.http != nil {
		if err := d.http.Start(); err != nil {
			return fmt.Errorf("start http:\n%w", err)
		}
	}

	if d.quic != nil {
		if err := d.quic.Start(); err != nil {
			return fmt.Errorf("start quic:\n%w", err)
		}
		logger.Info("quic dispatcher started", "addr", d.quic.Addr())
	}

	if d.cfg.BlockTime > 0 {
		d.startBlockTicker()
	}

	return nil
}

// startBlockTicker advances the tip once per block time.
func (d *Dispatcher) startBlockTicker() {
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		ticker := time.NewTicker(d.cfg.BlockTime)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				h := d.tip.Add(1)
				logger.Debug("new block", "height", h)
			case <-d.stop:
				return
			}
		}
	}()
}

// Close stops the ticker and the listeners.
func (d *Dispatcher) Close() error {
	close(d.stop)
	d.wg.Wait()

	var errs []error

	if d.http != nil {
		errs = append(errs, d.http.Stop())
	}

	if d.quic != nil {
		errs = append(errs, d.quic.Stop())
	}

	return errors.Join(errs...)
}

// waitForShutdown blocks until SIGINT or SIGTERM is received.
func (d *Dispatcher) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return d.Close()
}
