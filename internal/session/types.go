package session

// Credential is the application authentication token presented to obtain a session.
type Credential struct {
	Version         string // Version is the token format version (e.g. "0.0.1")
	AppPublicKey    []byte // AppPublicKey is the staked application's public key
	ClientPublicKey []byte // ClientPublicKey is the key allowed to sign relays on the app's behalf
	Signature       []byte // Signature is the application's signature over the token
}

// Header identifies which application and chain a session serves, and from when.
type Header struct {
	AppPublicKey  []byte // AppPublicKey is the application the session is assigned to
	Chain         string // Chain is the target chain identifier
	SessionHeight uint64 // SessionHeight is the block height the session starts at
}

// Node is a service node assigned to a session.
type Node struct {
	Address      string   // Address is the node's on-chain address
	PublicKey    []byte   // PublicKey is the node's public key
	ServiceURL   string   // ServiceURL is where relays are sent
	Chains       []string // Chains lists the chains the node serves
	StakedTokens uint64   // StakedTokens is the node's stake
	Jailed       bool     // Jailed is true if the node is currently jailed
}

// Session is one dispatch result: a header, the assigned nodes and dispatch metadata.
// A Session is never mutated once built; a newer session replaces it in the cache.
type Session struct {
	Header      Header // Header identifies the app, chain and start height
	Key         []byte // Key is the deterministic session key computed by the dispatcher
	Nodes       []Node // Nodes are the service nodes assigned to the session
	BlockHeight uint64 // BlockHeight is the chain height reported by the dispatcher
}

// ServesChain reports whether the node lists chain among its chains.
func (n *Node) ServesChain(chain string) bool {
	for _, c := range n.Chains {
		if c == chain {
			return true
		}
	}

	return false
}
