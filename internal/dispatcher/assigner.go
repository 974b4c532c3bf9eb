// Package dispatcher is a reference dispatcher that assigns service nodes to sessions.
package dispatcher

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"
	"sync"

	"github.com/zeebo/blake3"

	"RelayClient/internal/session"
)

const (
	// DefaultNodesPerSession is the session size used when none is configured.
	DefaultNodesPerSession = 5

	// DefaultBlocksPerSession is the session length used when none is configured.
	DefaultBlocksPerSession = 4
)

// ErrNoEligibleNodes is returned when no registered node can serve a chain.
var ErrNoEligibleNodes = errors.New("no eligible service nodes")

// AssignerConfig holds session sizing.
type AssignerConfig struct {
	NodesPerSession  int    // NodesPerSession is the number of nodes per session
	BlocksPerSession uint64 // BlocksPerSession is the session length in blocks
}

// Assigner picks the service nodes of a session by rendezvous hashing.
// Every dispatcher with the same registry derives the same session.
type Assigner struct {
	mu    sync.RWMutex   // mu protects nodes
	nodes []session.Node // nodes is the service node registry
	cfg   AssignerConfig // cfg holds session sizing
}

// scoredNode pairs a node with its rendezvous score.
type scoredNode struct {
	node  session.Node // node is the candidate
	score [32]byte     // score is the rendezvous score
}

// NewAssigner creates an assigner over nodes.
func NewAssigner(nodes []session.Node, cfg AssignerConfig) *Assigner {
	if cfg.NodesPerSession <= 0 {
		cfg.NodesPerSession = DefaultNodesPerSession
	}

	if cfg.BlocksPerSession == 0 {
		cfg.BlocksPerSession = DefaultBlocksPerSession
	}

	a := &Assigner{cfg: cfg}
	a.SetNodes(nodes)

	return a
}

// SetNodes replaces the registry.
func (a *Assigner) SetNodes(nodes []session.Node) {
	cp := make([]session.Node, len(nodes))
	copy(cp, nodes)

	a.mu.Lock()
	a.nodes = cp
	a.mu.Unlock()
}

// SessionHeight rounds height down to the first block of its session.
// Height 0 stays 0.
func (a *Assigner) SessionHeight(height uint64) uint64 {
	if height == 0 {
		return 0
	}

	return ((height-1)/a.cfg.BlocksPerSession)*a.cfg.BlocksPerSession + 1
}

// Assign returns the session of appKey on chain at the given block height.
func (a *Assigner) Assign(appKey []byte, chain string, blockHeight uint64) (*session.Session, error) {
	height := a.SessionHeight(blockHeight)
	key := SessionKey(appKey, chain, height)

	a.mu.RLock()
	scored := make([]scoredNode, 0, len(a.nodes))
	for _, n := range a.nodes {
		if n.Jailed || !n.ServesChain(chain) {
			continue
		}
		scored = append(scored, scoredNode{node: n, score: nodeScore(key, n.PublicKey)})
	}
	a.mu.RUnlock()

	if len(scored) == 0 {
		return nil, ErrNoEligibleNodes
	}

	// Highest score first
	sort.Slice(scored, func(i, j int) bool {
		return bytes.Compare(scored[i].score[:], scored[j].score[:]) > 0
	})

	count := min(a.cfg.NodesPerSession, len(scored))

	nodes := make([]session.Node, count)
	for i := range nodes {
		nodes[i] = scored[i].node
	}

	return &session.Session{
		Header: session.Header{
			AppPublicKey:  appKey,
			Chain:         chain,
			SessionHeight: height,
		},
		Key:         key[:],
		Nodes:       nodes,
		BlockHeight: blockHeight,
	}, nil
}

// SessionKey identifies a session.
// Key = BLAKE3(appKey || chain || [8B height])
func SessionKey(appKey []byte, chain string, height uint64) [32]byte {
	h := blake3.New()
	h.Write(appKey)
	h.Write([]byte(chain))

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	h.Write(buf[:])

	var out [32]byte
	h.Sum(out[:0])

	return out
}

// nodeScore calculates the rendezvous score of a node for a session.
// Score = BLAKE3(sessionKey || nodePublicKey)
func nodeScore(key [32]byte, nodeKey []byte) [32]byte {
	h := blake3.New()
	h.Write(key[:])
	h.Write(nodeKey)

	var out [32]byte
	h.Sum(out[:0])

	return out
}
