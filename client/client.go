// Package client is the application-facing API: it obtains sessions from a
// pool of dispatchers, caches them, and validates relay answers by consensus.
package client

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"RelayClient/internal/config"
	"RelayClient/internal/consensus"
	"RelayClient/internal/dispatch"
	"RelayClient/internal/logger"
	"RelayClient/internal/metrics"
	"RelayClient/internal/network"
	"RelayClient/internal/pool"
	"RelayClient/internal/session"
	"RelayClient/internal/storage"
	"RelayClient/internal/transport"
)

// ErrNoRelayResponses is returned by ConsensusRelay when no session node answered.
var ErrNoRelayResponses = errors.New("no service node answered the relay")

// Client wires the dispatch coordinator, session cache and consensus validator.
type Client struct {
	cfg         config.Config         // cfg is the effective configuration
	pool        *pool.Pool            // pool holds the remaining dispatchers
	coordinator *dispatch.Coordinator // coordinator obtains and caches sessions
	validator   *consensus.Validator  // validator compares relay answers
	collector   *consensus.Collector  // collector fans relays out to session nodes
	signer      *consensus.BLSSigner  // signer signs dispute challenges
	metrics     *metrics.Metrics      // metrics is nil when instrumentation is off
	closers     []func() error        // closers release what New opened, in order
	closeOnce   sync.Once             // closeOnce guards Close
}

// options collects Option values.
type options struct {
	transport  dispatch.Transport    // transport overrides the configured dispatch transport
	store      session.Store         // store overrides the configured storage backend
	relayer    consensus.Relayer     // relayer overrides the HTTP relayer
	registerer prometheus.Registerer // registerer receives the client metrics
	identity   ed25519.PrivateKey    // identity is the QUIC client key
	signer     *consensus.BLSSigner  // signer overrides the generated challenge key
}

// Option customizes New.
type Option func(*options)

// WithTransport dispatches through t instead of the configured transport.
func WithTransport(t dispatch.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithStore persists the session cache to s. The caller keeps ownership of s.
func WithStore(s session.Store) Option {
	return func(o *options) { o.store = s }
}

// WithRelayer sends consensus relays through r.
func WithRelayer(r consensus.Relayer) Option {
	return func(o *options) { o.relayer = r }
}

// WithRegisterer registers client metrics on reg, enabling them.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithIdentity sets the ed25519 key presented to QUIC dispatchers.
func WithIdentity(key ed25519.PrivateKey) Option {
	return func(o *options) { o.identity = key }
}

// WithSigner signs dispute challenges with signer.
// Use consensus.DeriveBLSSigner to bind it to the client key.
func WithSigner(signer *consensus.BLSSigner) Option {
	return func(o *options) { o.signer = signer }
}

// New builds a client from cfg.
// An empty dispatcher list is a *dispatch.ConfigurationError.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, &dispatch.ConfigurationError{Reason: err.Error()}
	}

	c := &Client{cfg: cfg, pool: pool.New(cfg.Dispatchers)}

	if c.pool.Count() == 0 {
		return nil, &dispatch.ConfigurationError{Reason: "no dispatcher endpoints configured"}
	}

	if err := c.init(o); err != nil {
		c.Close()
		return nil, err
	}

	logger.Info("relay client ready",
		"dispatchers", c.pool.Count(),
		"transport", cfg.Transport,
		"storage", cfg.Storage.Backend,
	)

	return c, nil
}

// init builds every collaborator. Partially built state is released by Close.
func (c *Client) init(o options) error {
	if err := c.initMetrics(o.registerer); err != nil {
		return err
	}

	cache, err := c.initCache(o.store)
	if err != nil {
		return err
	}

	t, err := c.initTransport(o.transport, o.identity)
	if err != nil {
		return err
	}

	c.coordinator, err = dispatch.NewCoordinator(c.pool, t, cache, dispatch.Config{
		MaxSessions:     c.cfg.MaxSessions,
		DispatchTimeout: c.cfg.DispatchTimeout,
	}, c.metrics)
	if err != nil {
		return err
	}

	relayer := o.relayer
	if relayer == nil {
		relayer = transport.NewHTTPRelayer(&http.Client{Timeout: c.cfg.RelayTimeout})
	}

	c.validator = consensus.NewValidator(c.metrics)
	c.collector = consensus.NewCollector(relayer, 0)

	c.signer = o.signer
	if c.signer == nil {
		if c.signer, err = consensus.GenerateBLSSigner(); err != nil {
			return fmt.Errorf("create challenge signer:\n%w", err)
		}
	}

	return nil
}

// initMetrics registers metrics when a registerer is given or metrics are enabled.
func (c *Client) initMetrics(reg prometheus.Registerer) error {
	if reg == nil && c.cfg.Metrics.Enabled {
		reg = prometheus.DefaultRegisterer
	}

	if reg == nil {
		return nil
	}

	m, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics:\n%w", err)
	}

	c.metrics = m
	m.SetPoolEndpoints(c.pool.Count())

	return nil
}

// initCache builds the session cache, restoring it from storage when configured.
func (c *Client) initCache(store session.Store) (*session.Cache, error) {
	if store == nil && c.cfg.Storage.Backend != "" {
		opened, err := storage.Open(c.cfg.Storage.StoreConfig())
		if err != nil {
			return nil, fmt.Errorf("open session store:\n%w", err)
		}

		c.closers = append(c.closers, opened.Close)
		store = opened
	}

	if store == nil {
		return session.NewCache(), nil
	}

	cache, err := session.LoadCache(store, c.cfg.Storage.Key)
	if err != nil {
		return nil, fmt.Errorf("load session cache:\n%w", err)
	}

	return cache, nil
}

// initTransport returns t or builds the configured dispatch transport.
func (c *Client) initTransport(t dispatch.Transport, identity ed25519.PrivateKey) (dispatch.Transport, error) {
	if t != nil {
		return t, nil
	}

	if c.cfg.Transport == config.TransportHTTP {
		return transport.NewHTTPTransport(&http.Client{}), nil
	}

	nc, err := network.NewClient(identity)
	if err != nil {
		return nil, fmt.Errorf("create quic client:\n%w", err)
	}

	qt := transport.NewQUICTransport(nc)
	c.closers = append(c.closers, qt.Close)

	return qt, nil
}

// RequestNewSession dispatches a fresh session for (cred, chain), failing
// over across dispatchers, and makes it the current session.
func (c *Client) RequestNewSession(ctx context.Context, cred session.Credential, chain string) (*session.Session, error) {
	return c.coordinator.RequestNewSession(ctx, cred, chain)
}

// GetCurrentSession returns the cached session for (cred, chain),
// dispatching one when nothing is cached.
func (c *Client) GetCurrentSession(ctx context.Context, cred session.Credential, chain string) (*session.Session, error) {
	return c.coordinator.GetCurrentOrDispatch(ctx, cred, chain)
}

// UpdateCurrentSession makes s the current session for (cred, chain).
func (c *Client) UpdateCurrentSession(s *session.Session, cred session.Credential, chain string) *session.Session {
	return c.coordinator.UpdateCurrentSession(s, cred, chain)
}

// DestroySession discards the current session for (cred, chain).
func (c *Client) DestroySession(cred session.Credential, chain string) error {
	return c.coordinator.DestroySession(cred, chain)
}

// FingerprintOf returns the cache key for (cred, chain).
func (c *Client) FingerprintOf(cred session.Credential, chain string) session.Fingerprint {
	return session.FingerprintOf(cred, chain)
}

// ValidateConsensus compares local against the peers' answers.
func (c *Client) ValidateConsensus(local *consensus.RelayResponse, peers []consensus.Peer) consensus.Result {
	return c.validator.Validate(local, peers)
}

// ConsensusRelay sends body to every node of the current session for
// (cred, chain) and validates the answers. The first node that answered is
// the local side; the others are its peers.
func (c *Client) ConsensusRelay(ctx context.Context, cred session.Credential, chain string, body []byte) (consensus.Result, error) {
	s, err := c.GetCurrentSession(ctx, cred, chain)
	if err != nil {
		return consensus.Result{}, fmt.Errorf("get session:\n%w", err)
	}

	peers, err := c.collector.Collect(ctx, s.Nodes, body)
	if err != nil {
		return consensus.Result{}, fmt.Errorf("collect relays:\n%w", err)
	}

	if len(peers) == 0 {
		return consensus.Result{}, ErrNoRelayResponses
	}

	return c.validator.Validate(peers[0].Response, peers[1:]), nil
}

// Challenge signs a dispute artifact for a result with a minority.
// Returns consensus.ErrNoMinority when every node agreed.
func (c *Client) Challenge(result consensus.Result) (*consensus.Challenge, error) {
	return consensus.BuildChallenge(result, c.signer)
}

// AddDispatcher returns a dispatcher to the pool. Returns false if already present.
func (c *Client) AddDispatcher(endpoint string) bool {
	added := c.pool.Add(endpoint)
	c.metrics.SetPoolEndpoints(c.pool.Count())

	return added
}

// RemoveDispatcher drops a dispatcher from the pool. Returns false if absent.
func (c *Client) RemoveDispatcher(endpoint string) bool {
	removed := c.pool.Remove(endpoint)
	c.metrics.SetPoolEndpoints(c.pool.Count())

	return removed
}

// DispatcherCount returns the number of dispatchers left in the pool.
func (c *Client) DispatcherCount() int {
	return c.pool.Count()
}

// Dispatchers returns a copy of the remaining dispatcher endpoints.
func (c *Client) Dispatchers() []string {
	return c.pool.Endpoints()
}

// Close releases the transport and any store opened by New.
func (c *Client) Close() error {
	var errs []error

	c.closeOnce.Do(func() {
		for i := len(c.closers) - 1; i >= 0; i-- {
			if err := c.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})

	return errors.Join(errs...)
}
