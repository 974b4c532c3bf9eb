package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"os"
	"time"

	"RelayClient/internal/dispatcher"
)

// Config holds the dispatcher configuration.
type Config struct {
	// HTTPAddress is the HTTP listen address. Empty disables HTTP.
	HTTPAddress string

	// QUICAddress is the QUIC listen address. Empty disables QUIC.
	QUICAddress string

	// KeyPath is the path to the Ed25519 private key file.
	KeyPath string

	// PrivateKey is the dispatcher's QUIC identity.
	PrivateKey ed25519.PrivateKey

	// RegistryPath is the YAML file listing service nodes.
	RegistryPath string

	// StartHeight is the chain tip at startup.
	StartHeight uint64

	// BlockTime advances the tip by one block per tick. Zero keeps it fixed.
	BlockTime time.Duration

	// NodesPerSession is the number of nodes assigned to a session.
	NodesPerSession int

	// BlocksPerSession is the session length in blocks.
	BlocksPerSession uint64

	// Metrics exposes GET /metrics on the HTTP listener.
	Metrics bool

	// LogLevel is debug, info, warn or error.
	LogLevel string
}

// parseFlags parses command-line flags into Config.
func parseFlags() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.HTTPAddress, "http", ":8080", "HTTP dispatch address")
	flag.StringVar(&cfg.QUICAddress, "quic", ":9000", "QUIC dispatch address")
	flag.StringVar(&cfg.KeyPath, "key", "", "Ed25519 private key path (generates new if missing)")
	flag.StringVar(&cfg.RegistryPath, "registry", "./nodes.yaml", "Service node registry")
	flag.Uint64Var(&cfg.StartHeight, "height", 1, "Chain tip at startup")
	flag.DurationVar(&cfg.BlockTime, "block-time", 0, "Interval between simulated blocks (0 keeps the tip fixed)")
	flag.IntVar(&cfg.NodesPerSession, "nodes-per-session", dispatcher.DefaultNodesPerSession, "Nodes assigned per session")
	flag.Uint64Var(&cfg.BlocksPerSession, "blocks-per-session", dispatcher.DefaultBlocksPerSession, "Session length in blocks")
	flag.BoolVar(&cfg.Metrics, "metrics", true, "Serve prometheus metrics")
	flag.StringVar(&cfg.LogLevel, "log", "info", "Log level")
	flag.Parse()

	return cfg
}

// loadOrGenerateKey loads the private key from file or generates a new one.
func loadOrGenerateKey(keyPath string) (ed25519.PrivateKey, error) {
	if keyPath == "" {
		return generateNewKey()
	}

	data, err := os.ReadFile(keyPath)
	if os.IsNotExist(err) {
		return generateAndSaveKey(keyPath)
	}

	if err != nil {
		return nil, fmt.Errorf("read key file:\n%w", err)
	}

	if len(data) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(data), ed25519.PrivateKeySize)
	}

	return ed25519.PrivateKey(data), nil
}

// generateNewKey creates a new Ed25519 private key.
func generateNewKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key:\n%w", err)
	}

	return priv, nil
}

// generateAndSaveKey creates a new key and saves it to the given path.
func generateAndSaveKey(path string) (ed25519.PrivateKey, error) {
	priv, err := generateNewKey()
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, priv, 0600); err != nil {
		return nil, fmt.Errorf("save key to %s:\n%w", path, err)
	}

	return priv, nil
}
