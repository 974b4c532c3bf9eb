package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"

	"RelayClient/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run() error {
	cfg := parseFlags()

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Init(os.Stderr, level)

	cfg.PrivateKey, err = loadOrGenerateKey(cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("load key:\n%w", err)
	}

	nodes, err := loadRegistry(cfg.RegistryPath)
	if err != nil {
		return fmt.Errorf("load registry:\n%w", err)
	}

	d, err := NewDispatcher(cfg, nodes)
	if err != nil {
		return fmt.Errorf("create dispatcher:\n%w", err)
	}

	printStartupInfo(cfg, len(nodes))

	return d.Run()
}

// printStartupInfo displays the dispatcher configuration at startup.
func printStartupInfo(cfg *Config, nodes int) {
	pubKey := cfg.PrivateKey.Public().(ed25519.PublicKey)

	logger.Info("starting dispatcher",
		"pubkey", hex.EncodeToString(pubKey),
		"http", cfg.HTTPAddress,
		"quic", cfg.QUICAddress,
		"nodes", nodes,
		"height", cfg.StartHeight,
	)
}
