package transport

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"RelayClient/internal/consensus"
	"RelayClient/internal/dispatch"
	"RelayClient/internal/network"
	"RelayClient/internal/session"
)

// sessionFor builds the session a dispatcher returns for req.
func sessionFor(req dispatch.Request) *session.Session {
	return &session.Session{
		Header: session.Header{
			AppPublicKey:  req.AppPublicKey,
			Chain:         req.Chain,
			SessionHeight: 8,
		},
		Key:   bytes.Repeat([]byte{0x42}, 32),
		Nodes: []session.Node{{Address: "n1", ServiceURL: "http://n1", Chains: []string{req.Chain}}},
	}
}

// answer decodes a dispatch request and encodes the matching response.
func answer(t *testing.T, raw []byte) []byte {
	t.Helper()

	req, err := dispatch.DecodeRequest(raw)
	if err != nil {
		t.Errorf("decode request: %v", err)
		return nil
	}

	return dispatch.EncodeResponse(dispatch.Response{Status: dispatch.StatusOK, Session: sessionFor(req)})
}

func testRequest() dispatch.Request {
	return dispatch.Request{AppPublicKey: bytes.Repeat([]byte{1}, 32), Chain: "0021"}
}

func TestHTTPDispatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != DispatchPath {
			http.Error(w, "wrong route", http.StatusNotFound)
			return
		}

		body, _ := io.ReadAll(r.Body)
		w.Write(answer(t, body))
	}))
	defer srv.Close()

	raw, err := NewHTTPTransport(nil).Dispatch(context.Background(), srv.URL, testRequest())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	resp, err := dispatch.DecodeResponse(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if resp.Session == nil || resp.Session.Header.Chain != "0021" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHTTPDispatchBareHostPort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(answer(t, body))
	}))
	defer srv.Close()

	hostPort := strings.TrimPrefix(srv.URL, "http://")

	if _, err := NewHTTPTransport(nil).Dispatch(context.Background(), hostPort, testRequest()); err != nil {
		t.Fatalf("dispatch to bare host:port: %v", err)
	}
}

func TestHTTPDispatchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := NewHTTPTransport(nil).Dispatch(context.Background(), srv.URL, testRequest()); err == nil {
		t.Fatal("non-200 response accepted")
	}
}

func TestHTTPDispatchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := NewHTTPTransport(nil).Dispatch(ctx, srv.URL, testRequest()); err == nil {
		t.Fatal("stalled dispatch succeeded")
	}
}

func TestHTTPRelayer(t *testing.T) {
	sig := bytes.Repeat([]byte{0x5a}, 64)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != RelayPath {
			http.Error(w, "wrong route", http.StatusNotFound)
			return
		}

		body, _ := io.ReadAll(r.Body)
		w.Header().Set(SignatureHeader, hex.EncodeToString(sig))
		w.Write(append([]byte("reply:"), body...))
	}))
	defer srv.Close()

	node := session.Node{Address: "n1", ServiceURL: srv.URL, PublicKey: []byte{9, 9}}
	body := []byte(`{"method":"eth_blockNumber"}`)

	resp, err := NewHTTPRelayer(nil).Relay(context.Background(), node, body)
	if err != nil {
		t.Fatalf("relay: %v", err)
	}

	if string(resp.Payload) != "reply:"+string(body) {
		t.Errorf("payload = %q", resp.Payload)
	}

	if !bytes.Equal(resp.Signature, sig) || !bytes.Equal(resp.Servicer, node.PublicKey) {
		t.Error("signature or servicer not carried over")
	}

	if resp.RequestHash != consensus.RequestHash(body) {
		t.Error("request hash mismatch")
	}
}

func TestHTTPRelayerBadSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(SignatureHeader, "not-hex")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	if _, err := NewHTTPRelayer(nil).Relay(context.Background(), session.Node{ServiceURL: srv.URL}, []byte("x")); err == nil {
		t.Fatal("invalid signature header accepted")
	}
}

func TestQUICDispatch(t *testing.T) {
	server, err := network.NewServer(network.ServerConfig{ListenAddr: "127.0.0.1:0"},
		func(_ context.Context, _ ed25519.PublicKey, raw []byte) ([]byte, error) {
			return answer(t, raw), nil
		})
	if err != nil {
		t.Fatalf("server: %v", err)
	}

	if err := server.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer server.Close()

	client, err := network.NewClient(nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	tr := NewQUICTransport(client)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, err := tr.Dispatch(ctx, server.Addr(), testRequest())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	resp, err := dispatch.DecodeResponse(raw)
	if err != nil || resp.Session == nil {
		t.Fatalf("decode: %+v, %v", resp, err)
	}
}
