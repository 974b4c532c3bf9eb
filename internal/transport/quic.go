// Package transport carries dispatch calls and relays over the network.
package transport

import (
	"context"

	"RelayClient/internal/dispatch"
	"RelayClient/internal/network"
)

// QUICTransport dispatches over QUIC, one bidirectional stream per call.
type QUICTransport struct {
	client *network.Client // client holds one connection per dispatcher
}

// NewQUICTransport creates a transport over client.
func NewQUICTransport(client *network.Client) *QUICTransport {
	return &QUICTransport{client: client}
}

// Dispatch sends req to endpoint (host:port) and returns the raw response.
func (t *QUICTransport) Dispatch(ctx context.Context, endpoint string, req dispatch.Request) ([]byte, error) {
	return t.client.Request(ctx, endpoint, dispatch.EncodeRequest(req))
}

// Close closes the underlying connections.
func (t *QUICTransport) Close() error {
	return t.client.Close()
}
