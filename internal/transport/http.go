package transport

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"

	"RelayClient/internal/consensus"
	"RelayClient/internal/dispatch"
	"RelayClient/internal/session"
)

const (
	// DispatchPath is the HTTP route for dispatch requests.
	DispatchPath = "/v1/client/dispatch"

	// RelayPath is the HTTP route for relays on a service node.
	RelayPath = "/v1/client/relay"

	// SignatureHeader carries the servicer's hex signature on relay responses.
	SignatureHeader = "X-Relay-Signature"

	// maxBodySize caps response bodies (16 MB).
	maxBodySize = 16 << 20
)

// HTTPTransport dispatches over HTTP.
type HTTPTransport struct {
	client *http.Client // client performs requests; timeouts come from ctx
}

// NewHTTPTransport creates a transport. A nil client uses http.DefaultClient.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPTransport{client: client}
}

// Dispatch posts req to {endpoint}/v1/client/dispatch and returns the raw body.
func (t *HTTPTransport) Dispatch(ctx context.Context, endpoint string, req dispatch.Request) ([]byte, error) {
	body, _, err := post(ctx, t.client, baseURL(endpoint)+DispatchPath, dispatch.EncodeRequest(req))
	if err != nil {
		return nil, err
	}

	return body, nil
}

// HTTPRelayer sends relays to service nodes over HTTP.
type HTTPRelayer struct {
	client *http.Client // client performs requests
}

// NewHTTPRelayer creates a relayer. A nil client uses http.DefaultClient.
func NewHTTPRelayer(client *http.Client) *HTTPRelayer {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPRelayer{client: client}
}

// Relay posts body to {node.ServiceURL}/v1/client/relay.
// The 200 response body is the payload; the signature header is optional.
func (r *HTTPRelayer) Relay(ctx context.Context, node session.Node, body []byte) (*consensus.RelayResponse, error) {
	payload, header, err := post(ctx, r.client, baseURL(node.ServiceURL)+RelayPath, body)
	if err != nil {
		return nil, err
	}

	var signature []byte
	if sigHex := header.Get(SignatureHeader); sigHex != "" {
		signature, err = hex.DecodeString(sigHex)
		if err != nil {
			return nil, fmt.Errorf("decode %s:\n%w", SignatureHeader, err)
		}
	}

	return &consensus.RelayResponse{
		RequestHash: consensus.RequestHash(body),
		Payload:     payload,
		Signature:   signature,
		Servicer:    node.PublicKey,
	}, nil
}

// post sends an octet-stream body and returns the body of a 200 response.
func post(ctx context.Context, client *http.Client, url string, body []byte) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("build request:\n%w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("POST %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("POST %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("read body:\n%w", err)
	}

	if len(data) > maxBodySize {
		return nil, nil, fmt.Errorf("POST %s: body exceeds %d bytes", url, maxBodySize)
	}

	return data, resp.Header, nil
}

// baseURL adds an http scheme to bare host:port endpoints.
func baseURL(endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")

	if strings.Contains(endpoint, "://") {
		return endpoint
	}

	return "http://" + endpoint
}
