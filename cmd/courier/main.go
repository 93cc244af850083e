// ABOUTME: Entry point for the courier CLI
// ABOUTME: Runs the receiver, sends messages, and inspects snapshots, ledgers, and codes

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/2389/courier/internal/config"
	"github.com/2389/courier/internal/registry"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                       _
  ___ ___  _   _ _ __(_) ___ _ __
 / __/ _ \| | | | '__| |/ _ \ '__|
| (_| (_) | |_| | |  | |  __/ |
 \___\___/ \__,_|_|  |_|\___|_|
`

func usage() {
	fmt.Println("Usage: courier <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                      Run the receiver (gRPC + metrics)")
	fmt.Println("  send [flags] [payload...]  Deliver payloads (stdin lines when none given)")
	fmt.Println("  inspect snapshot PATH      Summarize a dedup snapshot")
	fmt.Println("  inspect ledger [flags]     List recorded delivery outcomes")
	fmt.Println("  inspect frames PATH        Decode a file of concatenated frames")
	fmt.Println("  codes                      Print the status and message-type registry")
	fmt.Println("  token -sender NAME         Mint a sender token signed with auth.secret")
	fmt.Println("  version                    Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "send":
		err = runSend(ctx, args)
	case "inspect":
		err = runInspect(ctx, args)
	case "codes":
		err = runCodes()
	case "token":
		err = runToken(args)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, or defaults when none exists.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// loadRegistry merges configured resources over the built-in codes. Any
// malformed entry is fatal.
func loadRegistry(cfg *config.Config) (*registry.Registry, error) {
	reg, err := registry.Load(cfg.Registry.Files...)
	if err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}
	return reg, nil
}
