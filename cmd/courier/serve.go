// ABOUTME: The serve subcommand: gRPC receiver, dedup snapshots, and metrics endpoint
// ABOUTME: All components run under one errgroup and stop together on signal

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/2389/courier/internal/auth"
	"github.com/2389/courier/internal/config"
	"github.com/2389/courier/internal/dedup"
	"github.com/2389/courier/internal/metrics"
	"github.com/2389/courier/internal/receiver"
	"github.com/2389/courier/internal/registry"
	"github.com/2389/courier/internal/rpc"
)

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	reg, err := loadRegistry(cfg)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", config.Path())
	green.Print("    ▶ ")
	fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	green.Print("    ▶ ")
	if cfg.Auth.Secret != "" {
		fmt.Println("Auth:      bearer tokens required")
	} else {
		fmt.Println("Auth:      anonymous")
	}
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:   http://%s%s\n", cfg.Server.HTTPAddr, cfg.Metrics.Path)
	}
	green.Print("    ▶ ")
	fmt.Printf("Dedup:     %d entries", cfg.Dedup.Capacity)
	if cfg.Dedup.SnapshotPath != "" {
		gray.Printf(" (%s every %s)", cfg.Dedup.SnapshotPath, cfg.Dedup.SnapshotInterval)
	}
	fmt.Println()
	fmt.Println()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	set, err := metrics.New(promReg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	store := dedup.New(cfg.Dedup.Capacity,
		dedup.WithLogger(logger),
		dedup.WithMetrics(set.Dedup),
	)
	if cfg.Dedup.SnapshotPath != "" {
		if err := store.Load(cfg.Dedup.SnapshotPath); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			logger.Info("no dedup snapshot yet", "path", cfg.Dedup.SnapshotPath)
		}
	}

	handler := receiver.NewHandler(reg, store,
		receiver.WithLogger(logger),
		receiver.WithMetrics(set.Dedup),
	)
	for _, t := range reg.Types() {
		handler.Register(t, logProcessor(reg, t, logger))
	}

	logger.Info("starting courier receiver",
		"grpc_addr", cfg.Server.GRPCAddr,
		"http_addr", cfg.Server.HTTPAddr,
		"types", len(reg.Types()),
	)

	return serve(ctx, cfg, handler, store, promReg, logger)
}

func serve(ctx context.Context, cfg *config.Config, handler *receiver.Handler, store *dedup.Store, promReg *prometheus.Registry, logger *slog.Logger) error {
	grpcLn, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.GRPCAddr, err)
	}

	var opts []grpc.ServerOption
	if cfg.Auth.Secret != "" {
		verifier, err := auth.NewVerifier([]byte(cfg.Auth.Secret))
		if err != nil {
			return err
		}
		opts = append(opts, grpc.ChainUnaryInterceptor(auth.UnaryInterceptor(verifier, logger)))
	} else {
		logger.Warn("auth.secret not set, accepting anonymous senders")
	}

	grpcServer := rpc.NewGRPCServer(logger, opts...)
	rpc.Register(grpcServer, rpc.NewServer(handler, logger))

	var httpServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, "ok entries=%d\n", store.Len())
		})
		httpServer = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := grpcServer.Serve(grpcLn); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	if httpServer != nil {
		g.Go(func() error {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	snapshotsDone := make(chan struct{})
	if cfg.Dedup.SnapshotPath != "" {
		g.Go(func() error {
			defer close(snapshotsDone)
			return store.RunSnapshots(ctx, cfg.Dedup.SnapshotPath, cfg.Dedup.SnapshotInterval)
		})
	} else {
		close(snapshotsDone)
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		if httpServer != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logger.Warn("http shutdown", "error", err)
				}
			}()
		}
		return drainAndSnapshot(grpcServer.GracefulStop, store, cfg.Dedup.SnapshotPath, snapshotsDone)
	})

	return g.Wait()
}

// drainAndSnapshot runs stop, which must return only after in-flight frames
// are handled, then writes the final dedup snapshot once the periodic loop
// has exited. An empty path skips the snapshot.
func drainAndSnapshot(stop func(), store *dedup.Store, path string, loopDone <-chan struct{}) error {
	stop()
	if path == "" {
		return nil
	}
	<-loopDone
	if err := store.Store(path); err != nil {
		return fmt.Errorf("final dedup snapshot: %w", err)
	}
	return nil
}

// logProcessor accepts every payload of one message type and logs it.
func logProcessor(reg *registry.Registry, msgType uint8, logger *slog.Logger) receiver.Processor {
	name := reg.TypeName(msgType)
	return receiver.ProcessorFunc(func(ctx context.Context, scopeID uint32, payload []byte) error {
		logger.Info("message received",
			"type", name,
			"scope_id", scopeID,
			"bytes", len(payload),
		)
		return nil
	})
}
