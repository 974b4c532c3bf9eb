package network

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"RelayClient/internal/logger"
)

// defaultRequestTimeout bounds a Request whose context has no deadline.
const defaultRequestTimeout = 30 * time.Second

// Client sends requests to QUIC servers, reusing one connection per address.
type Client struct {
	publicKey  ed25519.PublicKey // publicKey is the client identity
	tlsConfig  *tls.Config       // tlsConfig is the TLS configuration
	quicConfig *quic.Config      // quicConfig is the QUIC configuration

	conns   map[string]*quic.Conn // conns maps address to an open connection
	connsMu sync.Mutex            // connsMu protects conns
}

// NewClient creates a client. A nil key generates a fresh identity.
func NewClient(privateKey ed25519.PrivateKey) (*Client, error) {
	key, err := identity(privateKey)
	if err != nil {
		return nil, err
	}

	cert, err := generateCertificate(key)
	if err != nil {
		return nil, fmt.Errorf("generate certificate:\n%w", err)
	}

	return &Client{
		publicKey: key.Public().(ed25519.PublicKey),
		tlsConfig: &tls.Config{
			Certificates:       []tls.Certificate{cert},
			InsecureSkipVerify: true, // Dispatchers use self-signed identities
			NextProtos:         []string{alpnProtocol},
		},
		quicConfig: &quic.Config{
			MaxIdleTimeout:  maxIdleTimeout,
			KeepAlivePeriod: 10 * time.Second,
		},
		conns: make(map[string]*quic.Conn),
	}, nil
}

// PublicKey returns the client identity.
func (c *Client) PublicKey() ed25519.PublicKey {
	return c.publicKey
}

// Request sends data to addr and waits for the response.
// A connection that fails is dropped so the next request redials.
func (c *Client) Request(ctx context.Context, addr string, data []byte) ([]byte, error) {
	conn, err := c.conn(ctx, addr)
	if err != nil {
		return nil, err
	}

	response, err := roundTrip(ctx, conn, data)
	if err != nil {
		c.drop(addr, conn)
		return nil, err
	}

	return response, nil
}

// roundTrip runs one request on a new bidirectional stream.
func roundTrip(ctx context.Context, conn *quic.Conn, data []byte) ([]byte, error) {
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream:\n%w", err)
	}
	defer stream.CancelRead(0)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultRequestTimeout)
	}
	stream.SetDeadline(deadline)

	// Unblock the read if ctx is cancelled before the deadline.
	stop := context.AfterFunc(ctx, func() {
		stream.SetDeadline(time.Now())
	})
	defer stop()

	if err := writeMessage(stream, data); err != nil {
		return nil, fmt.Errorf("write request:\n%w", err)
	}

	// Close the send side; the frame is length-prefixed so the server knows it is complete
	if err := stream.Close(); err != nil {
		return nil, fmt.Errorf("close send:\n%w", err)
	}

	response, err := readMessage(stream)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("read response:\n%w", ctxErr)
		}
		return nil, fmt.Errorf("read response:\n%w", err)
	}

	return response, nil
}

// conn returns the cached connection for addr, dialing if needed.
func (c *Client) conn(ctx context.Context, addr string) (*quic.Conn, error) {
	c.connsMu.Lock()
	conn, ok := c.conns[addr]
	c.connsMu.Unlock()

	if ok && conn.Context().Err() == nil {
		return conn, nil
	}

	conn, err := quic.DialAddr(ctx, addr, c.tlsConfig, c.quicConfig)
	if err != nil {
		return nil, fmt.Errorf("dial %s:\n%w", addr, err)
	}

	c.connsMu.Lock()
	defer c.connsMu.Unlock()

	// Another request may have dialed concurrently
	if existing, ok := c.conns[addr]; ok && existing.Context().Err() == nil {
		conn.CloseWithError(0, "duplicate")
		return existing, nil
	}

	c.conns[addr] = conn

	logger.Debug("quic connection opened", "addr", addr)

	return conn, nil
}

// drop closes conn and forgets it if it is still the cached one for addr.
func (c *Client) drop(addr string, conn *quic.Conn) {
	c.connsMu.Lock()
	if c.conns[addr] == conn {
		delete(c.conns, addr)
	}
	c.connsMu.Unlock()

	conn.CloseWithError(0, "request failed")
}

// Close closes every open connection.
func (c *Client) Close() error {
	c.connsMu.Lock()
	defer c.connsMu.Unlock()

	for addr, conn := range c.conns {
		conn.CloseWithError(0, "closed")
		delete(c.conns, addr)
	}

	return nil
}
