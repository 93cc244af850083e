// ABOUTME: The send subcommand: queues payloads on a stream and reports each outcome
// ABOUTME: Optionally records outcomes in the ledger and closes with an end-of-stream frame

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/2389/courier/internal/delivery"
	"github.com/2389/courier/internal/ledger"
	"github.com/2389/courier/internal/metrics"
	"github.com/2389/courier/internal/registry"
	"github.com/2389/courier/internal/rpc"
	"github.com/2389/courier/internal/stream"
	"github.com/2389/courier/internal/wire"
)

func runSend(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	typeFlag := fs.String("type", "PING", "message type name or number")
	scope := fs.Uint("scope", 0, "client scope id")
	target := fs.String("target", "", "receiver address (overrides client.target)")
	eos := fs.Bool("eos", false, "finish with an end-of-stream frame")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *scope > 0xFFFFFFFF {
		return fmt.Errorf("scope %d does not fit in 32 bits", *scope)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	reg, err := loadRegistry(cfg)
	if err != nil {
		return err
	}
	msgType, err := resolveType(reg, *typeFlag)
	if err != nil {
		return err
	}

	addr := cfg.Client.Target
	if *target != "" {
		addr = *target
	}
	clientOpts := []rpc.ClientOption{rpc.WithTimeout(cfg.Client.Timeout)}
	if cfg.Client.Token != "" {
		clientOpts = append(clientOpts, rpc.WithToken(cfg.Client.Token))
	}
	client, err := rpc.Dial(addr, reg, clientOpts...)
	if err != nil {
		return err
	}
	defer client.Close()

	promReg := prometheus.NewRegistry()
	set, err := metrics.New(promReg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	sender := delivery.NewSender(client, delivery.Policy{
		Retry: delivery.RetryUnlessTerminal,
		Backoff: delivery.Backoff{
			Unit:    cfg.Delivery.BackoffUnit,
			MaxWait: cfg.Delivery.MaxWait,
		},
		MaxAttempts: cfg.Delivery.MaxAttempts,
	}, delivery.WithLogger(logger), delivery.WithRegistry(reg), delivery.WithMetrics(set.Delivery))

	opts := []stream.Option{stream.WithLogger(logger)}
	if cfg.Ledger.Path != "" {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			return err
		}
		defer l.Close()
		opts = append(opts, stream.WithObserver(ledger.Observer(l, logger)))
	}
	s := stream.New(sender, opts...)

	payloads := fs.Args()
	if len(payloads) == 0 {
		payloads, err = readLines(os.Stdin)
		if err != nil {
			return err
		}
	}
	if len(payloads) == 0 {
		return fmt.Errorf("nothing to send")
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		failures int
	)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	report := func(out delivery.Outcome) {
		defer wg.Done()
		mu.Lock()
		defer mu.Unlock()
		if out.Delivered() {
			green.Print("✓ ")
			fmt.Printf("%s (%d attempt(s))\n", out.Message.ID, out.Attempts)
			return
		}
		failures++
		red.Print("✗ ")
		fmt.Printf("%s %s after %d attempt(s): %v\n", out.Message.ID, out.Result, out.Attempts, out.Err)
	}

	wg.Add(len(payloads))
	for _, p := range payloads {
		s.SendNotify(delivery.NewMessage(msgType, uint32(*scope), []byte(p)), report)
	}
	if err := s.Start(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
	}
	if err := s.Stop(); err != nil && ctx.Err() == nil && !delivery.IsCancellation(err) {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("interrupted with %d message(s) pending", s.Pending())
	}

	if *eos {
		if err := sender.Send(ctx, delivery.NewMessage(wire.TypeEndOfStream, uint32(*scope), nil)); err != nil {
			return fmt.Errorf("sending end of stream: %w", err)
		}
	}

	if cfg.Metrics.Pushgateway != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metrics.Push(pushCtx, cfg.Metrics.Pushgateway, "courier_send", promReg); err != nil {
			logger.Warn("metrics push failed", "error", err)
		}
		cancel()
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d message(s) not delivered", failures, len(payloads))
	}
	return nil
}

// resolveType accepts a registry type name or a decimal code.
func resolveType(reg *registry.Registry, s string) (uint8, error) {
	if t, ok := reg.Type(s); ok {
		return t, nil
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || n == uint64(wire.TypeEndOfStream) {
		return 0, fmt.Errorf("unknown message type %q", s)
	}
	return uint8(n), nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading payloads: %w", err)
	}
	return lines, nil
}
