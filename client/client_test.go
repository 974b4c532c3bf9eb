package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"RelayClient/internal/config"
	"RelayClient/internal/consensus"
	"RelayClient/internal/dispatch"
	"RelayClient/internal/dispatcher"
	"RelayClient/internal/session"
	"RelayClient/internal/storage"
	"RelayClient/internal/transport"
)

const chain = "0021"

var cred = session.Credential{
	Version:         "0.0.1",
	AppPublicKey:    bytes.Repeat([]byte{0xAA}, 32),
	ClientPublicKey: bytes.Repeat([]byte{0xBB}, 32),
	Signature:       bytes.Repeat([]byte{0xCC}, 64),
}

// relayNode starts a service node that answers every relay with payload.
func relayNode(t *testing.T, payload string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != transport.RelayPath {
			http.Error(w, "wrong route", http.StatusNotFound)
			return
		}
		w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)

	return srv
}

// relayNetwork starts honest relay nodes plus one dishonest node and a
// dispatcher assigning all of them to every session.
func relayNetwork(t *testing.T, honest int) *dispatcher.Handler {
	t.Helper()

	var nodes []session.Node
	for i := 0; i <= honest; i++ {
		payload := "honest"
		if i == honest {
			payload = "dishonest"
		}

		srv := relayNode(t, payload)
		nodes = append(nodes, session.Node{
			Address:    fmt.Sprintf("node-%d", i),
			PublicKey:  bytes.Repeat([]byte{byte(i + 1)}, 32),
			ServiceURL: srv.URL,
			Chains:     []string{chain},
		})
	}

	assigner := dispatcher.NewAssigner(nodes, dispatcher.AssignerConfig{NodesPerSession: len(nodes)})

	return dispatcher.NewHandler(assigner, func() uint64 { return 42 }, nil)
}

// httpDispatcher serves handler over HTTP.
func httpDispatcher(t *testing.T, handler *dispatcher.Handler) string {
	t.Helper()

	srv := httptest.NewServer(dispatcher.NewHTTPServer("", handler, nil).Routes())
	t.Cleanup(srv.Close)

	return srv.URL
}

// deadEndpoint returns the URL of a server that is no longer listening.
func deadEndpoint() string {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	return srv.URL
}

// newClient builds a client and closes it on cleanup.
func newClient(t *testing.T, cfg config.Config, opts ...Option) *Client {
	t.Helper()

	c, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	return c
}

func TestNewRequiresDispatchers(t *testing.T) {
	for _, list := range [][]string{nil, {}} {
		_, err := New(config.Config{Dispatchers: list})

		var cfgErr *dispatch.ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("New(%v) error = %v, want ConfigurationError", list, err)
		}
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(config.Config{Dispatchers: []string{"a"}, Transport: "carrier-pigeon"})

	var cfgErr *dispatch.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v, want ConfigurationError", err)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	handler := relayNetwork(t, 3)
	live := httpDispatcher(t, handler)

	c := newClient(t, config.Config{
		Dispatchers: []string{deadEndpoint(), live},
		Transport:   config.TransportHTTP,
		MaxSessions: 2,
	})

	s, err := c.RequestNewSession(context.Background(), cred, chain)
	if err != nil {
		t.Fatalf("request session: %v", err)
	}

	if len(s.Nodes) != 4 || s.Header.Chain != chain || s.Header.SessionHeight != 41 {
		t.Fatalf("session = %d nodes, chain %q, height %d", len(s.Nodes), s.Header.Chain, s.Header.SessionHeight)
	}

	if n := c.DispatcherCount(); n < 1 || n > 2 {
		t.Errorf("dispatchers = %d", n)
	}

	cur, err := c.GetCurrentSession(context.Background(), cred, chain)
	if err != nil || cur != s {
		t.Fatalf("current = %p, %v; want the dispatched session", cur, err)
	}

	if err := c.DestroySession(cred, chain); err != nil {
		t.Fatalf("destroy: %v", err)
	}

	if err := c.DestroySession(cred, chain); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("second destroy = %v, want ErrNoSession", err)
	}
}

func TestUpdateCurrentSessionBounded(t *testing.T) {
	c := newClient(t, config.Config{Dispatchers: []string{deadEndpoint()}, Transport: config.TransportHTTP, MaxSessions: 2})

	var last *session.Session
	for h := uint64(1); h <= 3; h++ {
		last = &session.Session{Header: session.Header{AppPublicKey: cred.AppPublicKey, Chain: chain, SessionHeight: h}}
		c.UpdateCurrentSession(last, cred, chain)
	}

	cur, err := c.GetCurrentSession(context.Background(), cred, chain)
	if err != nil || cur != last {
		t.Fatalf("current = %+v, %v", cur, err)
	}

	if c.DispatcherCount() != 1 {
		t.Error("cached lookup contacted a dispatcher")
	}
}

func TestConsensusRelay(t *testing.T) {
	c := newClient(t, config.Config{
		Dispatchers: []string{httpDispatcher(t, relayNetwork(t, 3))},
		Transport:   config.TransportHTTP,
	})

	result, err := c.ConsensusRelay(context.Background(), cred, chain, []byte(`{"method":"eth_blockNumber"}`))
	if err != nil {
		t.Fatalf("consensus relay: %v", err)
	}

	if len(result.Majority.Responses) != 3 {
		t.Fatalf("majority = %d responses, want 3", len(result.Majority.Responses))
	}

	for _, r := range result.Majority.Responses {
		if string(r.Payload) != "honest" {
			t.Errorf("majority payload = %q", r.Payload)
		}
	}

	if result.Minority == nil || string(result.Minority.Response.Payload) != "dishonest" {
		t.Fatalf("minority = %+v", result.Minority)
	}

	// Local is whichever node answered first in session order.
	wantAgreed := result.Side == consensus.SideAgree
	if result.Agreed != wantAgreed {
		t.Errorf("agreed = %v, side = %v", result.Agreed, result.Side)
	}

	ch, err := c.Challenge(result)
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}

	if err := consensus.VerifyChallenge(ch); err != nil {
		t.Errorf("verify challenge: %v", err)
	}
}

func TestConsensusRelayNoAnswers(t *testing.T) {
	dead := session.Node{Address: "gone", ServiceURL: deadEndpoint(), Chains: []string{chain}}
	assigner := dispatcher.NewAssigner([]session.Node{dead}, dispatcher.AssignerConfig{})
	handler := dispatcher.NewHandler(assigner, func() uint64 { return 10 }, nil)

	c := newClient(t, config.Config{
		Dispatchers:  []string{httpDispatcher(t, handler)},
		Transport:    config.TransportHTTP,
		RelayTimeout: time.Second,
	})

	if _, err := c.ConsensusRelay(context.Background(), cred, chain, []byte("x")); !errors.Is(err, ErrNoRelayResponses) {
		t.Fatalf("error = %v, want ErrNoRelayResponses", err)
	}
}

func TestValidateConsensus(t *testing.T) {
	signer, err := consensus.DeriveBLSSigner(cred.ClientPublicKey)
	if err != nil {
		t.Fatalf("derive signer: %v", err)
	}

	c := newClient(t, config.Config{Dispatchers: []string{"127.0.0.1:1"}, Transport: config.TransportHTTP}, WithSigner(signer))

	hash := consensus.RequestHash([]byte("req"))
	local := &consensus.RelayResponse{RequestHash: hash, Payload: []byte("a")}
	peers := []consensus.Peer{
		{Response: &consensus.RelayResponse{RequestHash: hash, Payload: []byte("a")}},
		{Response: &consensus.RelayResponse{RequestHash: hash, Payload: []byte("b")}},
	}

	r := c.ValidateConsensus(local, peers)
	if !r.Agreed || r.Side != consensus.SideAgree {
		t.Errorf("result = %+v", r)
	}

	if _, err := c.Challenge(c.ValidateConsensus(local, peers[:1])); !errors.Is(err, consensus.ErrNoMinority) {
		t.Errorf("unanimous challenge error = %v, want ErrNoMinority", err)
	}

	if fp := c.FingerprintOf(cred, chain); fp != session.FingerprintOf(cred, chain) {
		t.Error("fingerprint differs from session.FingerprintOf")
	}
}

func TestSessionsSurviveRestart(t *testing.T) {
	cfg := config.Config{
		Dispatchers: []string{httpDispatcher(t, relayNetwork(t, 2))},
		Transport:   config.TransportHTTP,
		Storage:     config.StorageConfig{Backend: storage.BackendPebble, Path: filepath.Join(t.TempDir(), "sessions")},
	}

	first, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	s, err := first.RequestNewSession(context.Background(), cred, chain)
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	cfg.Dispatchers = []string{deadEndpoint()}
	second := newClient(t, cfg)

	cur, err := second.GetCurrentSession(context.Background(), cred, chain)
	if err != nil {
		t.Fatalf("restored session: %v", err)
	}

	if !bytes.Equal(cur.Key, s.Key) || len(cur.Nodes) != len(s.Nodes) {
		t.Error("restored session differs from the saved one")
	}
}

func TestWithStoreSharesCache(t *testing.T) {
	store := storage.NewMemory()
	cfg := config.Config{Dispatchers: []string{deadEndpoint()}, Transport: config.TransportHTTP}

	a := newClient(t, cfg, WithStore(store))
	a.UpdateCurrentSession(&session.Session{Header: session.Header{Chain: chain, SessionHeight: 7}}, cred, chain)

	b := newClient(t, cfg, WithStore(store))

	cur, err := b.GetCurrentSession(context.Background(), cred, chain)
	if err != nil || cur.Header.SessionHeight != 7 {
		t.Fatalf("shared store session = %+v, %v", cur, err)
	}
}

func TestSessionLifecycleOverQUIC(t *testing.T) {
	srv, err := dispatcher.NewQUICServer("127.0.0.1:0", nil, relayNetwork(t, 1))
	if err != nil {
		t.Fatalf("quic server: %v", err)
	}

	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Stop()

	c := newClient(t, config.Config{Dispatchers: []string{srv.Addr()}, DispatchTimeout: 5 * time.Second})

	s, err := c.RequestNewSession(context.Background(), cred, chain)
	if err != nil {
		t.Fatalf("request over quic: %v", err)
	}

	if len(s.Nodes) != 2 {
		t.Errorf("nodes = %d, want 2", len(s.Nodes))
	}
}

func TestExhaustionAndDispatcherManagement(t *testing.T) {
	reg := prometheus.NewRegistry()
	dead := []string{deadEndpoint(), deadEndpoint()}

	c := newClient(t, config.Config{Dispatchers: dead, Transport: config.TransportHTTP}, WithRegisterer(reg))

	_, err := c.RequestNewSession(context.Background(), cred, chain)
	if !errors.Is(err, dispatch.ErrNoEndpointsAvailable) {
		t.Fatalf("error = %v, want ErrNoEndpointsAvailable", err)
	}

	if c.DispatcherCount() != 0 || poolGauge(t, reg) != 0 {
		t.Fatalf("pool = %d, gauge = %v after exhaustion", c.DispatcherCount(), poolGauge(t, reg))
	}

	live := httpDispatcher(t, relayNetwork(t, 1))
	if !c.AddDispatcher(live) || c.AddDispatcher(live) {
		t.Fatal("AddDispatcher should accept once")
	}

	if poolGauge(t, reg) != 1 {
		t.Errorf("gauge = %v, want 1", poolGauge(t, reg))
	}

	if _, err := c.RequestNewSession(context.Background(), cred, chain); err != nil {
		t.Fatalf("request after re-adding: %v", err)
	}

	if !c.RemoveDispatcher(live) || c.RemoveDispatcher(live) {
		t.Error("RemoveDispatcher should succeed once")
	}

	if len(c.Dispatchers()) != 0 {
		t.Errorf("dispatchers = %v", c.Dispatchers())
	}
}

// poolGauge reads relayclient_dispatch_pool_endpoints from reg.
func poolGauge(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	for _, f := range families {
		if f.GetName() == "relayclient_dispatch_pool_endpoints" {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}

	t.Fatal("pool gauge not registered")
	return 0
}

func TestCloseIdempotent(t *testing.T) {
	c, err := New(config.Config{Dispatchers: []string{"127.0.0.1:1"}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
