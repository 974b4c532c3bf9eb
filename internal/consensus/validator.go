package consensus

import (
	"bytes"

	"RelayClient/internal/logger"
	"RelayClient/internal/metrics"
)

// Validator decides whether a local relay response is backed by its peers.
// It holds no per-call state and is safe for concurrent use.
type Validator struct {
	metrics *metrics.Metrics // metrics may be nil
}

// NewValidator creates a validator.
func NewValidator(m *metrics.Metrics) *Validator {
	return &Validator{metrics: m}
}

// Validate compares every peer response with local and partitions them.
//
// A peer agrees when its canonical form equals local's byte for byte; a peer
// without a response disagrees. The local response wins only if agreeing
// peers strictly outnumber disagreeing ones, so ties are not agreement.
// With no peers at all the local response stands, with an empty majority.
// A nil local response has nothing to agree with and never wins.
// Missing responses are flagged in Nodes but never enter Majority or Minority.
func (v *Validator) Validate(local *RelayResponse, peers []Peer) Result {
	var want []byte
	if local != nil {
		want = local.Canonical()
	}

	nodes := make([]ConsensusNode, len(peers))
	agree, disagree := 0, 0

	for i, p := range peers {
		agrees := local != nil && p.Response != nil && bytes.Equal(p.Response.Canonical(), want)

		nodes[i] = ConsensusNode{Node: p.Node, Response: p.Response, Agrees: agrees}

		if agrees {
			agree++
		} else {
			disagree++
		}
	}

	side := SideDisagree
	if local != nil && (agree > disagree || len(peers) == 0) {
		side = SideAgree
	}

	result := Result{
		Agreed: side == SideAgree,
		Side:   side,
		Nodes:  nodes,
	}

	result.Majority, result.Minority = partition(local, nodes, side)

	v.metrics.ObserveConsensus(result.Agreed)

	logger.Debug("consensus validated",
		"agreed", result.Agreed,
		"agree", agree,
		"disagree", disagree,
	)

	return result
}

// partition builds the majority and minority for the winning side.
func partition(local *RelayResponse, nodes []ConsensusNode, side WinningSide) (MajorityResponse, *MinorityResponse) {
	majority := MajorityResponse{Side: side}

	switch side {
	case SideAgree:
		if len(nodes) == 0 {
			return majority, nil
		}

		majority.Responses = append(majority.Responses, local)

		var minority *MinorityResponse
		for _, n := range nodes {
			if n.Response == nil {
				continue
			}

			if n.Agrees {
				majority.Responses = append(majority.Responses, n.Response)
			} else if minority == nil {
				minority = &MinorityResponse{Response: n.Response}
			}
		}

		return majority, minority

	case SideDisagree:
		var minority *MinorityResponse
		for _, n := range nodes {
			if n.Response == nil {
				continue
			}

			if !n.Agrees {
				majority.Responses = append(majority.Responses, n.Response)
			} else if minority == nil {
				minority = &MinorityResponse{Response: n.Response}
			}
		}

		// No peer sided with local: local itself is the dissent.
		if minority == nil && local != nil {
			minority = &MinorityResponse{Response: local}
		}

		return majority, minority
	}

	return majority, nil
}
