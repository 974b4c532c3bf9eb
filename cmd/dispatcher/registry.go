package main

import (
	"encoding/hex"
	"fmt"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"

	"RelayClient/internal/session"
)

// registryEntry is one service node as written in the registry file.
type registryEntry struct {
	Address      string   `koanf:"address"`
	PublicKey    string   `koanf:"public_key"`
	ServiceURL   string   `koanf:"service_url"`
	Chains       []string `koanf:"chains"`
	StakedTokens uint64   `koanf:"staked_tokens"`
	Jailed       bool     `koanf:"jailed"`
}

// loadRegistry reads the service node list from a YAML file of the form
//
//	nodes:
//	  - address: node-1
//	    public_key: <hex>
//	    service_url: https://node-1.example
//	    chains: ["0021"]
func loadRegistry(path string) ([]session.Node, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("read %s:\n%w", path, err)
	}

	var entries []registryEntry
	if err := k.Unmarshal("nodes", &entries); err != nil {
		return nil, fmt.Errorf("unmarshal nodes:\n%w", err)
	}

	return toNodes(entries)
}

// toNodes validates entries and converts them to session nodes.
func toNodes(entries []registryEntry) ([]session.Node, error) {
	nodes := make([]session.Node, 0, len(entries))
	seen := make(map[string]bool, len(entries))

	for i, e := range entries {
		if e.Address == "" || e.ServiceURL == "" {
			return nil, fmt.Errorf("node %d: address and service_url are required", i)
		}

		if seen[e.Address] {
			return nil, fmt.Errorf("node %d: duplicate address %s", i, e.Address)
		}
		seen[e.Address] = true

		pubKey, err := hex.DecodeString(e.PublicKey)
		if err != nil || len(pubKey) == 0 {
			return nil, fmt.Errorf("node %s: invalid public_key", e.Address)
		}

		nodes = append(nodes, session.Node{
			Address:      e.Address,
			PublicKey:    pubKey,
			ServiceURL:   e.ServiceURL,
			Chains:       e.Chains,
			StakedTokens: e.StakedTokens,
			Jailed:       e.Jailed,
		})
	}

	return nodes, nil
}
