// ABOUTME: The inspect and codes subcommands: offline views of snapshots, ledgers, frames, and the registry
// ABOUTME: Output is tab-aligned for terminals

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/courier/internal/dedup"
	"github.com/2389/courier/internal/ledger"
	"github.com/2389/courier/internal/registry"
	"github.com/2389/courier/internal/wire"
)

func runInspect(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: courier inspect snapshot|ledger|frames ...")
	}
	switch args[0] {
	case "snapshot":
		if len(args) != 2 {
			return fmt.Errorf("usage: courier inspect snapshot PATH")
		}
		return inspectSnapshot(args[1])
	case "ledger":
		return inspectLedger(ctx, args[1:])
	case "frames":
		if len(args) != 2 {
			return fmt.Errorf("usage: courier inspect frames PATH")
		}
		return inspectFrames(args[1])
	default:
		return fmt.Errorf("unknown inspect target: %s", args[0])
	}
}

func inspectSnapshot(path string) error {
	store := dedup.New(math.MaxInt32)
	if err := store.Load(path); err != nil {
		return err
	}

	reg, err := registryFromConfig()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tSCOPE\tENTRIES")
	for _, g := range store.Groups() {
		fmt.Fprintf(w, "%s\t%d\t%d\n", reg.TypeName(g.Scope.Type), g.Scope.ScopeID, g.Entries)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	color.New(color.FgHiBlack).Printf("%d entries in %d groups\n", store.Len(), len(store.Groups()))
	return nil
}

func inspectLedger(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("inspect ledger", flag.ContinueOnError)
	result := fs.String("result", "", "only show this result (delivered, exhausted, rejected, cancelled, failed)")
	limit := fs.Int("limit", 50, "maximum rows")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is not configured")
	}
	reg, err := loadRegistry(cfg)
	if err != nil {
		return err
	}

	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer l.Close()

	entries, err := l.List(ctx, *result, *limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RECORDED\tMESSAGE\tTYPE\tSCOPE\tRESULT\tATTEMPTS\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			e.RecordedAt.Local().Format(time.DateTime),
			e.MessageID,
			reg.TypeName(e.Type),
			e.ScopeID,
			e.Result,
			e.Attempts,
			e.Error,
		)
	}
	return w.Flush()
}

func inspectFrames(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	reg, err := registryFromConfig()
	if err != nil {
		return err
	}

	codec := wire.DefaultCodec()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTYPE\tSCOPE\tBYTES\tHASH")
	for i := 0; ; i++ {
		fr, err := codec.ReadFrame(f)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = w.Flush()
			return fmt.Errorf("frame %d: %w", i, err)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", i, reg.TypeName(fr.Type), fr.ScopeID, len(fr.Payload), fr.Hash)
	}
	return w.Flush()
}

func runCodes() error {
	reg, err := registryFromConfig()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCODE\tOUTCOME")
	for _, c := range reg.Statuses() {
		outcome := "terminal"
		switch {
		case reg.Succeeded(c):
			outcome = "success"
		case reg.Retryable(c):
			outcome = "retry"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", reg.Name(c), c, outcome)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "TYPE\tCODE\t")
	for _, t := range reg.Types() {
		fmt.Fprintf(w, "%s\t%d\t\n", reg.TypeName(t), t)
	}
	return w.Flush()
}

// registryFromConfig loads the registry with the files named in the config,
// or the built-in codes alone when there is no config file.
func registryFromConfig() (*registry.Registry, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return loadRegistry(cfg)
}
