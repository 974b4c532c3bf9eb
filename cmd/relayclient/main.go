// Command relayclient obtains a session from the configured dispatchers and
// optionally sends one relay to every session node, reporting consensus.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"RelayClient/client"
	"RelayClient/internal/config"
	"RelayClient/internal/logger"
	"RelayClient/internal/session"
)

// flags holds the command-line arguments.
type flags struct {
	configPath string // configPath is the YAML config file
	appKey     string // appKey is the hex application public key
	clientKey  string // clientKey is the hex client public key
	signature  string // signature is the hex credential signature
	version    string // version is the credential version
	chain      string // chain is the target chain
	relay      string // relay is the relay body; empty skips consensus
	fresh      bool   // fresh forces a new dispatch
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main entry point with error handling.
func run() error {
	f := parseFlags()

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}

	level, _ := logger.ParseLevel(cfg.Log.Level)
	logger.Init(os.Stderr, level)

	cred, err := f.credential()
	if err != nil {
		return err
	}

	c, err := client.New(*cfg)
	if err != nil {
		return fmt.Errorf("create client:\n%w", err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := currentSession(ctx, c, cred, f)
	if err != nil {
		return err
	}

	out := report{
		Fingerprint: c.FingerprintOf(cred, f.chain).String(),
		Session:     sessionView(s),
		Dispatchers: c.DispatcherCount(),
	}

	if f.relay != "" {
		result, err := c.ConsensusRelay(ctx, cred, f.chain, []byte(f.relay))
		if err != nil {
			return fmt.Errorf("relay:\n%w", err)
		}
		out.Consensus = consensusView(result)

		if result.Minority != nil {
			ch, err := c.Challenge(result)
			if err != nil {
				return fmt.Errorf("challenge:\n%w", err)
			}
			out.Consensus.Challenge = challengeView(ch)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

// parseFlags parses command-line flags.
func parseFlags() *flags {
	f := &flags{}

	flag.StringVar(&f.configPath, "config", "", "YAML config file (RELAY_* variables override it)")
	flag.StringVar(&f.appKey, "app-key", "", "Application public key (hex)")
	flag.StringVar(&f.clientKey, "client-key", "", "Client public key (hex)")
	flag.StringVar(&f.signature, "signature", "", "Credential signature (hex)")
	flag.StringVar(&f.version, "version", "0.0.1", "Credential version")
	flag.StringVar(&f.chain, "chain", "", "Target chain")
	flag.StringVar(&f.relay, "relay", "", "Relay body to send to every session node")
	flag.BoolVar(&f.fresh, "fresh", false, "Dispatch a new session even if one is cached")
	flag.Parse()

	return f
}

// credential decodes the hex credential flags.
func (f *flags) credential() (session.Credential, error) {
	if f.appKey == "" || f.chain == "" {
		return session.Credential{}, fmt.Errorf("-app-key and -chain are required")
	}

	var cred session.Credential
	cred.Version = f.version

	for _, field := range []struct {
		name string
		hex  string
		dst  *[]byte
	}{
		{"app-key", f.appKey, &cred.AppPublicKey},
		{"client-key", f.clientKey, &cred.ClientPublicKey},
		{"signature", f.signature, &cred.Signature},
	} {
		b, err := hex.DecodeString(field.hex)
		if err != nil {
			return session.Credential{}, fmt.Errorf("-%s:\n%w", field.name, err)
		}
		*field.dst = b
	}

	return cred, nil
}

// currentSession returns the cached session or dispatches a new one.
func currentSession(ctx context.Context, c *client.Client, cred session.Credential, f *flags) (*session.Session, error) {
	if f.fresh {
		return c.RequestNewSession(ctx, cred, f.chain)
	}

	return c.GetCurrentSession(ctx, cred, f.chain)
}
