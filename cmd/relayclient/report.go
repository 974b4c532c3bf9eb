package main

import (
	"encoding/hex"

	"RelayClient/internal/consensus"
	"RelayClient/internal/session"
)

// report is the JSON written to stdout.
type report struct {
	Fingerprint string         `json:"fingerprint"`
	Session     sessionJSON    `json:"session"`
	Dispatchers int            `json:"dispatchersRemaining"`
	Consensus   *consensusJSON `json:"consensus,omitempty"`
}

type sessionJSON struct {
	Chain         string     `json:"chain"`
	SessionHeight uint64     `json:"sessionHeight"`
	BlockHeight   uint64     `json:"blockHeight"`
	Key           string     `json:"key"`
	Nodes         []nodeJSON `json:"nodes"`
}

type nodeJSON struct {
	Address    string `json:"address"`
	ServiceURL string `json:"serviceUrl"`
}

type consensusJSON struct {
	Agreed    bool           `json:"agreed"`
	Side      string         `json:"side"`
	Majority  []string       `json:"majority"`
	Minority  string         `json:"minority,omitempty"`
	Challenge *challengeJSON `json:"challenge,omitempty"`
}

type challengeJSON struct {
	Digest    string `json:"digest"`
	Signature string `json:"signature"`
	PublicKey string `json:"publicKey"`
}

// sessionView converts a session for display.
func sessionView(s *session.Session) sessionJSON {
	v := sessionJSON{
		Chain:         s.Header.Chain,
		SessionHeight: s.Header.SessionHeight,
		BlockHeight:   s.BlockHeight,
		Key:           hex.EncodeToString(s.Key),
	}

	for _, n := range s.Nodes {
		v.Nodes = append(v.Nodes, nodeJSON{Address: n.Address, ServiceURL: n.ServiceURL})
	}

	return v
}

// consensusView converts a validation result for display.
// Responses are identified by their servicer key.
func consensusView(r consensus.Result) *consensusJSON {
	v := &consensusJSON{Agreed: r.Agreed, Side: r.Side.String()}

	for _, resp := range r.Majority.Responses {
		v.Majority = append(v.Majority, hex.EncodeToString(resp.Servicer))
	}

	if r.Minority != nil {
		v.Minority = hex.EncodeToString(r.Minority.Response.Servicer)
	}

	return v
}

// challengeView converts a signed challenge for display.
func challengeView(c *consensus.Challenge) *challengeJSON {
	return &challengeJSON{
		Digest:    hex.EncodeToString(c.Digest[:]),
		Signature: hex.EncodeToString(c.Signature),
		PublicKey: hex.EncodeToString(c.PublicKey),
	}
}
