package session

import (
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"RelayClient/internal/types"
)

const (
	// MaxNodes caps the nodes accepted in one decoded session.
	MaxNodes = 1024

	// MaxChainsPerNode caps the chains accepted for one decoded node.
	MaxChainsPerNode = 256
)

// ErrMalformed is returned when a flatbuffer cannot be read as a Session.
var ErrMalformed = errors.New("malformed session encoding")

// BuildSession writes s into builder and returns the Session table offset.
// Must be called before the caller starts its own enclosing table.
func BuildSession(builder *flatbuffers.Builder, s *Session) flatbuffers.UOffsetT {
	headerOffset := buildHeader(builder, &s.Header)

	nodeOffsets := make([]flatbuffers.UOffsetT, len(s.Nodes))
	for i := range s.Nodes {
		nodeOffsets[i] = buildNode(builder, &s.Nodes[i])
	}

	types.SessionStartNodesVector(builder, len(nodeOffsets))
	for i := len(nodeOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(nodeOffsets[i])
	}
	nodesVec := builder.EndVector(len(nodeOffsets))

	keyVec := builder.CreateByteVector(s.Key)

	types.SessionStart(builder)
	types.SessionAddHeader(builder, headerOffset)
	types.SessionAddKey(builder, keyVec)
	types.SessionAddNodes(builder, nodesVec)
	types.SessionAddBlockHeight(builder, s.BlockHeight)

	return types.SessionEnd(builder)
}

// buildHeader writes a SessionHeader table.
func buildHeader(builder *flatbuffers.Builder, h *Header) flatbuffers.UOffsetT {
	appKey := builder.CreateByteVector(h.AppPublicKey)
	chain := builder.CreateString(h.Chain)

	types.SessionHeaderStart(builder)
	types.SessionHeaderAddAppPublicKey(builder, appKey)
	types.SessionHeaderAddChain(builder, chain)
	types.SessionHeaderAddSessionHeight(builder, h.SessionHeight)

	return types.SessionHeaderEnd(builder)
}

// buildNode writes a Node table.
func buildNode(builder *flatbuffers.Builder, n *Node) flatbuffers.UOffsetT {
	address := builder.CreateString(n.Address)
	pubKey := builder.CreateByteVector(n.PublicKey)
	serviceURL := builder.CreateString(n.ServiceURL)

	chainOffsets := make([]flatbuffers.UOffsetT, len(n.Chains))
	for i, c := range n.Chains {
		chainOffsets[i] = builder.CreateString(c)
	}

	types.NodeStartChainsVector(builder, len(chainOffsets))
	for i := len(chainOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(chainOffsets[i])
	}
	chains := builder.EndVector(len(chainOffsets))

	types.NodeStart(builder)
	types.NodeAddAddress(builder, address)
	types.NodeAddPublicKey(builder, pubKey)
	types.NodeAddServiceUrl(builder, serviceURL)
	types.NodeAddChains(builder, chains)
	types.NodeAddStakedTokens(builder, n.StakedTokens)
	types.NodeAddJailed(builder, n.Jailed)

	return types.NodeEnd(builder)
}

// EncodeSession serializes s as a standalone Session flatbuffer.
func EncodeSession(s *Session) []byte {
	builder := flatbuffers.NewBuilder(512)
	builder.Finish(BuildSession(builder, s))

	return builder.FinishedBytes()
}

// DecodeSession parses a standalone Session flatbuffer.
func DecodeSession(data []byte) (s *Session, err error) {
	if len(data) < flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(data))
	}

	defer func() {
		if r := recover(); r != nil {
			s, err = nil, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	return FromTable(types.GetRootAsSession(data, 0))
}

// FromTable copies a flatbuffers Session into a Session.
// Out-of-range offsets in hostile input surface as ErrMalformed, never as a panic.
func FromTable(t *types.Session) (s *Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			s, err = nil, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	fbHeader := t.Header(nil)
	if fbHeader == nil {
		return nil, fmt.Errorf("%w: missing header", ErrMalformed)
	}

	s = &Session{
		Header: Header{
			AppPublicKey:  cloneBytes(fbHeader.AppPublicKeyBytes()),
			Chain:         string(fbHeader.Chain()),
			SessionHeight: fbHeader.SessionHeight(),
		},
		Key:         cloneBytes(t.KeyBytes()),
		BlockHeight: t.BlockHeight(),
	}

	count := t.NodesLength()
	if !vectorFits(count, MaxNodes, t.Table()) {
		return nil, fmt.Errorf("%w: %d nodes", ErrMalformed, count)
	}

	var fbNode types.Node

	s.Nodes = make([]Node, count)
	for i := range s.Nodes {
		if !t.Nodes(&fbNode, i) {
			return nil, fmt.Errorf("%w: node %d unreadable", ErrMalformed, i)
		}
		n, err := nodeFromTable(&fbNode)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		s.Nodes[i] = n
	}

	return s, nil
}

// vectorFits reports whether a vector of count offsets is within limit and
// could physically fit in the table's buffer (4 bytes per element).
func vectorFits(count, limit int, tab flatbuffers.Table) bool {
	return count >= 0 && count <= limit && count <= len(tab.Bytes)/flatbuffers.SizeUOffsetT
}

// nodeFromTable copies a flatbuffers Node.
func nodeFromTable(t *types.Node) (Node, error) {
	n := Node{
		Address:      string(t.Address()),
		PublicKey:    cloneBytes(t.PublicKeyBytes()),
		ServiceURL:   string(t.ServiceUrl()),
		StakedTokens: t.StakedTokens(),
		Jailed:       t.Jailed(),
	}

	count := t.ChainsLength()
	if !vectorFits(count, MaxChainsPerNode, t.Table()) {
		return Node{}, fmt.Errorf("%w: %d chains", ErrMalformed, count)
	}

	if count > 0 {
		n.Chains = make([]string, count)
		for i := range n.Chains {
			n.Chains[i] = string(t.Chains(i))
		}
	}

	return n, nil
}

// cloneBytes copies b so decoded values never alias the wire buffer.
func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}

	out := make([]byte, len(b))
	copy(out, b)

	return out
}
