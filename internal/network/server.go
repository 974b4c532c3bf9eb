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

const (
	// defaultHandlerTimeout bounds one request handler call.
	defaultHandlerTimeout = 30 * time.Second

	// maxIdleTimeout closes connections without traffic.
	maxIdleTimeout = 30 * time.Second
)

// Handler answers one request. remote is the caller's ed25519 identity.
type Handler func(ctx context.Context, remote ed25519.PublicKey, request []byte) ([]byte, error)

// ServerConfig holds the configuration for a Server.
type ServerConfig struct {
	PrivateKey     ed25519.PrivateKey // PrivateKey is the server identity (nil = generated)
	ListenAddr     string             // ListenAddr is the address to listen on (e.g., ":9000")
	HandlerTimeout time.Duration      // HandlerTimeout bounds one request (0 = default)
}

// Server accepts QUIC connections and answers one request per bidirectional stream.
type Server struct {
	listenAddr string         // listenAddr is the address to listen on
	tlsConfig  *tls.Config    // tlsConfig is the TLS configuration
	quicConfig *quic.Config   // quicConfig is the QUIC configuration
	handler    Handler        // handler answers requests
	timeout    time.Duration  // timeout bounds one handler call
	listener   *quic.Listener // listener is set by Start

	ctx    context.Context    // ctx is cancelled by Close
	cancel context.CancelFunc // cancel cancels ctx
	wg     sync.WaitGroup     // wg waits for connection goroutines
}

// NewServer creates a server. Call Start to begin listening.
func NewServer(cfg ServerConfig, handler Handler) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("listen address is required")
	}

	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	key, err := identity(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}

	cert, err := generateCertificate(key)
	if err != nil {
		return nil, fmt.Errorf("generate certificate:\n%w", err)
	}

	timeout := cfg.HandlerTimeout
	if timeout == 0 {
		timeout = defaultHandlerTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		listenAddr: cfg.ListenAddr,
		tlsConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			ClientAuth:   tls.RequireAnyClientCert,
			NextProtos:   []string{alpnProtocol},
		},
		quicConfig: &quic.Config{MaxIdleTimeout: maxIdleTimeout},
		handler:    handler,
		timeout:    timeout,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start begins accepting connections.
func (s *Server) Start() error {
	listener, err := quic.ListenAddr(s.listenAddr, s.tlsConfig, s.quicConfig)
	if err != nil {
		return fmt.Errorf("listen:\n%w", err)
	}

	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()

	logger.Info("quic server listening", "addr", listener.Addr().String())

	return nil
}

// Addr returns the bound address. Returns empty string if not started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Close stops accepting and waits for in-flight requests.
func (s *Server) Close() error {
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()

	return nil
}

// acceptLoop accepts incoming connections until Close.
func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept(s.ctx)
		if err != nil {
			return
		}

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

// serveConn answers streams on one connection until it closes.
func (s *Server) serveConn(conn *quic.Conn) {
	defer s.wg.Done()

	remote, err := peerPublicKey(conn.ConnectionState().TLS)
	if err != nil {
		logger.Debug("rejecting connection", "remote", conn.RemoteAddr().String(), "error", err)
		conn.CloseWithError(1, "no identity")
		return
	}

	go func() {
		select {
		case <-s.ctx.Done():
			conn.CloseWithError(0, "server closed")
		case <-conn.Context().Done():
		}
	}()

	for {
		stream, err := conn.AcceptStream(s.ctx)
		if err != nil {
			return
		}

		s.wg.Add(1)
		go s.serveStream(stream, remote)
	}
}

// serveStream reads one request and writes one response.
func (s *Server) serveStream(stream *quic.Stream, remote ed25519.PublicKey) {
	defer s.wg.Done()
	defer stream.Close()

	stream.SetDeadline(time.Now().Add(s.timeout))

	request, err := readMessage(stream)
	if err != nil {
		logger.Debug("read request", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	response, err := s.handler(ctx, remote, request)
	if err != nil {
		logger.Debug("handler failed", "error", err)
		stream.CancelWrite(1)
		return
	}

	if err := writeMessage(stream, response); err != nil {
		logger.Debug("write response", "error", err)
	}
}
