package dispatcher

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"RelayClient/internal/logger"
	"RelayClient/internal/metrics"
	"RelayClient/internal/network"
	"RelayClient/internal/transport"
)

const (
	// maxRequestSize is the maximum dispatch request size in bytes.
	maxRequestSize = 64 << 10
)

// HTTPServer serves dispatch requests over HTTP.
type HTTPServer struct {
	addr     string              // addr is the HTTP listen address
	handler  *Handler            // handler answers dispatch requests
	gatherer prometheus.Gatherer // gatherer backs GET /metrics (nil = disabled)
	server   *http.Server        // server is the underlying HTTP server
	listener net.Listener        // listener is set by Start
}

// NewHTTPServer creates an HTTP dispatcher.
func NewHTTPServer(addr string, handler *Handler, gatherer prometheus.Gatherer) *HTTPServer {
	return &HTTPServer{
		addr:     addr,
		handler:  handler,
		gatherer: gatherer,
	}
}

// Routes returns the HTTP handler, for embedding or testing.
func (s *HTTPServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+transport.DispatchPath, s.handleDispatch)
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(s.gatherer))
	}

	return mux
}

// Start listens and serves in a goroutine.
func (s *HTTPServer) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http dispatcher started", "addr", listener.Addr().String())

		if err := s.server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http dispatcher error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address. Returns empty string if not started.
func (s *HTTPServer) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Stop gracefully shuts down the server.
func (s *HTTPServer) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleDispatch handles POST /v1/client/dispatch.
// Protocol failures are carried in the response status, so the HTTP status is 200.
func (s *HTTPServer) handleDispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(s.handler.Handle(body))
}

// handleHealth handles GET /health.
func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// QUICServer serves dispatch requests over QUIC.
type QUICServer struct {
	server *network.Server // server handles connections and framing
}

// NewQUICServer creates a QUIC dispatcher. A nil key generates an identity.
func NewQUICServer(addr string, key ed25519.PrivateKey, handler *Handler) (*QUICServer, error) {
	server, err := network.NewServer(network.ServerConfig{
		PrivateKey: key,
		ListenAddr: addr,
	}, func(_ context.Context, _ ed25519.PublicKey, request []byte) ([]byte, error) {
		return handler.Handle(request), nil
	})
	if err != nil {
		return nil, err
	}

	return &QUICServer{server: server}, nil
}

// Start begins accepting connections.
func (s *QUICServer) Start() error {
	return s.server.Start()
}

// Addr returns the bound address.
func (s *QUICServer) Addr() string {
	return s.server.Addr()
}

// Stop closes the server.
func (s *QUICServer) Stop() error {
	return s.server.Close()
}
