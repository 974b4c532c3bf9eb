package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RelayClient/internal/logger"
	"RelayClient/internal/metrics"
	"RelayClient/internal/session"
)

const (
	// DefaultMaxSessions is the queue capacity used when none is configured.
	DefaultMaxSessions = 5

	// DefaultTimeout bounds a single dispatch call.
	DefaultTimeout = 10 * time.Second
)

// EndpointPool is the shared set of dispatcher endpoints.
type EndpointPool interface {
	PickRandom() (string, bool)
	Remove(endpoint string) bool
	Add(endpoint string) bool
	Count() int
}

// Transport performs one dispatch call and returns the raw response payload.
// Implementations must honour ctx for timeout and cancellation.
type Transport interface {
	Dispatch(ctx context.Context, endpoint string, req Request) ([]byte, error)
}

// Config holds coordinator settings.
type Config struct {
	MaxSessions     int           // MaxSessions caps each session queue (0 = unbounded)
	DispatchTimeout time.Duration // DispatchTimeout bounds one attempt (0 = DefaultTimeout)
}

// Coordinator obtains sessions from dispatchers, failing over across the pool.
type Coordinator struct {
	pool      EndpointPool     // pool is shared with the application
	transport Transport        // transport performs dispatch calls
	cache     *session.Cache   // cache stores dispatched sessions
	cfg       Config           // cfg holds limits and timeouts
	metrics   *metrics.Metrics // metrics may be nil
}

// NewCoordinator creates a coordinator.
// Returns *ConfigurationError if the pool is empty or a collaborator is missing.
func NewCoordinator(pool EndpointPool, transport Transport, cache *session.Cache, cfg Config, m *metrics.Metrics) (*Coordinator, error) {
	if pool == nil || pool.Count() == 0 {
		return nil, &ConfigurationError{Reason: "endpoint pool is empty"}
	}

	if transport == nil {
		return nil, &ConfigurationError{Reason: "no transport"}
	}

	if cache == nil {
		return nil, &ConfigurationError{Reason: "no session cache"}
	}

	if cfg.MaxSessions < 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("max sessions %d is negative", cfg.MaxSessions)}
	}

	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = DefaultTimeout
	}

	m.SetPoolEndpoints(pool.Count())

	return &Coordinator{
		pool:      pool,
		transport: transport,
		cache:     cache,
		cfg:       cfg,
		metrics:   m,
	}, nil
}

// outcomeKind tags the result of one dispatch attempt.
type outcomeKind int

const (
	outcomeSuccess   outcomeKind = iota // a session was decoded
	outcomeTransport                    // the call or the status failed
	outcomeDecode                       // the payload was not a usable session
	outcomeExhausted                    // no endpoint was left to try
)

// outcome is the result of one iteration of the failover loop.
type outcome struct {
	kind     outcomeKind      // kind selects which fields are set
	endpoint string           // endpoint is the dispatcher tried
	session  *session.Session // session is set for outcomeSuccess
	err      error            // err is set for failure kinds
}

// RequestNewSession dispatches a fresh session for (cred, chain) and saves it.
//
// Endpoints are tried one at a time in random order. Every failed endpoint is
// removed from the pool for good, so the loop ends after at most Count()
// attempts. When the pool runs dry the result is a *NoEndpointsError carrying
// the last failure. Cancelling ctx stops the loop without removing the
// endpoint being tried.
func (c *Coordinator) RequestNewSession(ctx context.Context, cred session.Credential, chain string) (*session.Session, error) {
	fp := session.FingerprintOf(cred, chain)
	req := NewRequest(cred, chain, 0)

	var lastErr error
	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("request session:\n%w", err)
		}

		o := c.next(ctx, req)

		switch o.kind {
		case outcomeSuccess:
			c.metrics.ObserveDispatch(metrics.OutcomeSuccess)
			c.metrics.SessionSaved()

			logger.Debug("session dispatched",
				"endpoint", o.endpoint,
				"fingerprint", fp.Short(),
				"nodes", len(o.session.Nodes),
				"height", o.session.Header.SessionHeight,
			)

			return c.cache.Save(fp, o.session, c.cfg.MaxSessions), nil

		case outcomeTransport, outcomeDecode:
			if ctx.Err() != nil {
				return nil, fmt.Errorf("request session:\n%w", errors.Join(ctx.Err(), o.err))
			}

			label := metrics.OutcomeTransport
			if o.kind == outcomeDecode {
				label = metrics.OutcomeDecode
			}
			c.metrics.ObserveDispatch(label)

			attempts++
			lastErr = o.err

			c.pool.Remove(o.endpoint)
			c.metrics.SetPoolEndpoints(c.pool.Count())

			logger.Warn("dispatcher removed",
				"endpoint", o.endpoint,
				"remaining", c.pool.Count(),
				"error", o.err,
			)

		case outcomeExhausted:
			logger.Error("dispatcher pool exhausted",
				"fingerprint", fp.Short(),
				"attempts", attempts,
			)

			return nil, &NoEndpointsError{Attempts: attempts, Cause: lastErr}
		}
	}
}

// next picks an endpoint and runs one attempt against it.
func (c *Coordinator) next(ctx context.Context, req Request) outcome {
	endpoint, ok := c.pool.PickRandom()
	if !ok {
		return outcome{kind: outcomeExhausted}
	}

	return c.attempt(ctx, endpoint, req)
}

// attempt performs one dispatch call bounded by the per-attempt timeout.
func (c *Coordinator) attempt(ctx context.Context, endpoint string, req Request) outcome {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DispatchTimeout)
	defer cancel()

	logger.Debug("dispatch attempt", "endpoint", endpoint, "chain", req.Chain)

	raw, err := c.transport.Dispatch(ctx, endpoint, req)
	if err != nil {
		return outcome{
			kind:     outcomeTransport,
			endpoint: endpoint,
			err:      &TransportError{Endpoint: endpoint, Err: err},
		}
	}

	s, err := decodeSession(raw, req.Chain)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return outcome{
				kind:     outcomeTransport,
				endpoint: endpoint,
				err:      &TransportError{Endpoint: endpoint, Err: err},
			}
		}

		return outcome{
			kind:     outcomeDecode,
			endpoint: endpoint,
			err:      &DecodingError{Endpoint: endpoint, Err: err},
		}
	}

	return outcome{kind: outcomeSuccess, endpoint: endpoint, session: s}
}

// GetCurrentOrDispatch returns the current cached session for (cred, chain),
// dispatching a new one when none is cached.
func (c *Coordinator) GetCurrentOrDispatch(ctx context.Context, cred session.Credential, chain string) (*session.Session, error) {
	if s, ok := c.cache.Current(session.FingerprintOf(cred, chain)); ok {
		return s, nil
	}

	return c.RequestNewSession(ctx, cred, chain)
}

// UpdateCurrentSession saves s for (cred, chain) as if it had been dispatched.
// It does not contact the network.
func (c *Coordinator) UpdateCurrentSession(s *session.Session, cred session.Credential, chain string) *session.Session {
	c.metrics.SessionSaved()

	return c.cache.Save(session.FingerprintOf(cred, chain), s, c.cfg.MaxSessions)
}

// DestroySession drops the current session for (cred, chain).
// Returns session.ErrNoSession if nothing is cached.
func (c *Coordinator) DestroySession(cred session.Credential, chain string) error {
	if err := c.cache.DestroyFront(session.FingerprintOf(cred, chain)); err != nil {
		return fmt.Errorf("destroy session:\n%w", err)
	}

	return nil
}

// Pool returns the endpoint pool.
func (c *Coordinator) Pool() EndpointPool {
	return c.pool
}

// Cache returns the session cache.
func (c *Coordinator) Cache() *session.Cache {
	return c.cache
}
