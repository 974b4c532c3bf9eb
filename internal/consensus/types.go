package consensus

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"

	"RelayClient/internal/session"
)

// requestDomain separates relay request hashes from other blake3 digests.
const requestDomain = "relayclient-relay-request"

// RelayResponse is one service node's reply to a relay.
type RelayResponse struct {
	RequestHash [32]byte // RequestHash identifies the relay being answered
	Payload     []byte   // Payload is the application-level reply body
	Signature   []byte   // Signature is the servicer's signature (not compared)
	Servicer    []byte   // Servicer is the answering node's public key (not compared)
}

// Canonical returns the byte-exact form compared during validation.
// Format: [32B request hash] [4B payload length] [payload]
// Signature and Servicer are excluded because honest nodes differ there.
func (r *RelayResponse) Canonical() []byte {
	out := make([]byte, 0, 32+4+len(r.Payload))
	out = append(out, r.RequestHash[:]...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(r.Payload)))
	out = append(out, r.Payload...)

	return out
}

// RequestHash computes the identifier of a relay request body.
func RequestHash(body []byte) [32]byte {
	h := blake3.New()
	h.Write([]byte(requestDomain))
	h.Write(body)

	var out [32]byte
	h.Sum(out[:0])

	return out
}

// Peer pairs a session node with the response it returned.
type Peer struct {
	Node     session.Node   // Node is the servicer that answered
	Response *RelayResponse // Response is its reply
}

// ConsensusNode is a peer with the agreement flag assigned during validation.
type ConsensusNode struct {
	Node     session.Node   // Node is the servicer
	Response *RelayResponse // Response is its reply
	Agrees   bool           // Agrees is true when Response matches the local response
}

// WinningSide names which side of the local comparison carried the vote.
type WinningSide int

const (
	// SideAgree means peers matching the local response are the majority.
	SideAgree WinningSide = iota

	// SideDisagree means peers differing from the local response are the majority.
	SideDisagree
)

// String returns the side name.
func (s WinningSide) String() string {
	switch s {
	case SideAgree:
		return "agree"
	case SideDisagree:
		return "disagree"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// MajorityResponse holds every response on the winning side.
type MajorityResponse struct {
	Side      WinningSide      // Side is the side these responses belong to
	Responses []*RelayResponse // Responses in local-first, then peer order
}

// MinorityResponse holds one representative response from the losing side.
type MinorityResponse struct {
	Response *RelayResponse // Response is the representative dissent
}

// Result is the outcome of one validation pass.
type Result struct {
	Agreed   bool              // Agreed is true when the local response won
	Side     WinningSide       // Side is the winning side
	Nodes    []ConsensusNode   // Nodes lists every peer with its flag, in input order
	Majority MajorityResponse  // Majority holds the winning side
	Minority *MinorityResponse // Minority is nil when there is no dissent
}
