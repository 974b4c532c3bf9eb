package consensus

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"RelayClient/internal/logger"
	"RelayClient/internal/session"
)

// defaultFanOut caps concurrent relays when none is configured.
const defaultFanOut = 16

// Relayer sends one relay body to one service node.
type Relayer interface {
	Relay(ctx context.Context, node session.Node, body []byte) (*RelayResponse, error)
}

// Collector relays one request to every node of a session in parallel.
type Collector struct {
	relayer Relayer // relayer performs individual relays
	fanOut  int     // fanOut caps concurrent relays
}

// NewCollector creates a collector. fanOut <= 0 selects a default.
func NewCollector(relayer Relayer, fanOut int) *Collector {
	if fanOut <= 0 {
		fanOut = defaultFanOut
	}

	return &Collector{relayer: relayer, fanOut: fanOut}
}

// Collect relays body to every node and returns the answers in node order.
// Nodes that fail or answer a different request are dropped and logged.
// Only a cancelled ctx is an error.
func (c *Collector) Collect(ctx context.Context, nodes []session.Node, body []byte) ([]Peer, error) {
	want := RequestHash(body)
	answers := make([]*RelayResponse, len(nodes))

	var g errgroup.Group
	g.SetLimit(c.fanOut)

	for i := range nodes {
		node := nodes[i]

		g.Go(func() error {
			resp, err := c.relayer.Relay(ctx, node, body)
			if err != nil {
				logger.Debug("relay failed", "node", node.Address, "error", err)
				return nil
			}

			if resp == nil || resp.RequestHash != want {
				logger.Warn("relay answered another request", "node", node.Address)
				return nil
			}

			answers[i] = resp

			return nil
		})
	}

	// Goroutines never return errors; Wait only joins them.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("collect relays:\n%w", err)
	}

	peers := make([]Peer, 0, len(nodes))
	for i, resp := range answers {
		if resp != nil {
			peers = append(peers, Peer{Node: nodes[i], Response: resp})
		}
	}

	return peers, nil
}
