package network

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// generateTestKey generates a random ed25519 key pair for testing.
func generateTestKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	return priv
}

// startServer starts a loopback server with handler and stops it on cleanup.
func startServer(t *testing.T, handler Handler, timeout time.Duration) *Server {
	t.Helper()

	server, err := NewServer(ServerConfig{
		PrivateKey:     generateTestKey(t),
		ListenAddr:     "127.0.0.1:0",
		HandlerTimeout: timeout,
	}, handler)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}

	if err := server.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { server.Close() })

	return server
}

// newTestClient creates a client and closes it on cleanup.
func newTestClient(t *testing.T, key ed25519.PrivateKey) *Client {
	t.Helper()

	client, err := NewClient(key)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client
}

func TestFraming(t *testing.T) {
	var buf bytes.Buffer

	if err := writeMessage(&buf, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if buf.Len() != lengthPrefixSize+5 {
		t.Fatalf("frame size = %d, want %d", buf.Len(), lengthPrefixSize+5)
	}

	got, err := readMessage(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if string(got) != "hello" {
		t.Errorf("got %q, want hello", got)
	}
}

func TestFramingRejectsOversize(t *testing.T) {
	if err := writeMessage(&bytes.Buffer{}, make([]byte, MaxMessageSize+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("write err = %v, want ErrMessageTooLarge", err)
	}

	header := []byte{0xff, 0xff, 0xff, 0xff}
	if _, err := readMessage(bytes.NewReader(header)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("read err = %v, want ErrMessageTooLarge", err)
	}
}

func TestFramingTruncated(t *testing.T) {
	if _, err := readMessage(bytes.NewReader([]byte{0, 0, 0, 8, 'a'})); err == nil {
		t.Error("truncated frame accepted")
	}
}

func TestRequestResponse(t *testing.T) {
	clientKey := generateTestKey(t)

	var seen ed25519.PublicKey
	var mu sync.Mutex

	server := startServer(t, func(_ context.Context, remote ed25519.PublicKey, req []byte) ([]byte, error) {
		mu.Lock()
		seen = remote
		mu.Unlock()

		return append([]byte("echo:"), req...), nil
	}, 0)

	client := newTestClient(t, clientKey)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Request(ctx, server.Addr(), []byte("ping"))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if string(resp) != "echo:ping" {
		t.Errorf("response = %q", resp)
	}

	mu.Lock()
	defer mu.Unlock()

	if !seen.Equal(clientKey.Public()) {
		t.Error("server did not see the client identity")
	}
}

func TestConcurrentRequestsShareConnection(t *testing.T) {
	server := startServer(t, func(_ context.Context, _ ed25519.PublicKey, req []byte) ([]byte, error) {
		return req, nil
	}, 0)

	client := newTestClient(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 20)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			want := fmt.Sprintf("msg-%d", i)
			got, err := client.Request(ctx, server.Addr(), []byte(want))
			if err != nil {
				errs <- err
				return
			}
			if string(got) != want {
				errs <- fmt.Errorf("got %q, want %q", got, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}

	client.connsMu.Lock()
	defer client.connsMu.Unlock()

	if len(client.conns) != 1 {
		t.Errorf("open connections = %d, want 1", len(client.conns))
	}
}

func TestHandlerErrorFailsRequest(t *testing.T) {
	server := startServer(t, func(context.Context, ed25519.PublicKey, []byte) ([]byte, error) {
		return nil, errors.New("boom")
	}, 0)

	client := newTestClient(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Request(ctx, server.Addr(), []byte("x")); err == nil {
		t.Fatal("request succeeded despite handler error")
	}
}

func TestRequestTimeout(t *testing.T) {
	server := startServer(t, func(ctx context.Context, _ ed25519.PublicKey, _ []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, 5*time.Second)

	client := newTestClient(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := client.Request(ctx, server.Addr(), []byte("x")); err == nil {
		t.Fatal("request to a stalled handler succeeded")
	}

	if time.Since(start) > 3*time.Second {
		t.Error("request ignored the context deadline")
	}
}

func TestRequestUnreachable(t *testing.T) {
	client := newTestClient(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if _, err := client.Request(ctx, "127.0.0.1:1", []byte("x")); err == nil {
		t.Fatal("request to a closed port succeeded")
	}
}

func TestNewServerValidation(t *testing.T) {
	if _, err := NewServer(ServerConfig{}, func(context.Context, ed25519.PublicKey, []byte) ([]byte, error) { return nil, nil }); err == nil {
		t.Error("server without listen address accepted")
	}

	if _, err := NewServer(ServerConfig{ListenAddr: "127.0.0.1:0"}, nil); err == nil {
		t.Error("server without handler accepted")
	}
}
