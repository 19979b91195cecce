// Package main runs a shard coordination process.
//
// In shard mode the process advertises one shard, mints short identifiers
// from its range and joins the leader election. In router mode it only
// watches the shard directory and answers routing queries. Both modes serve
// status endpoints:
//
//	GET  /healthz        liveness of the coordination components
//	GET  /shards         current shard snapshot as JSON
//	GET  /route?code=... owning shard of a short identifier
//	POST /ids            mint a short identifier (shard mode)
//	GET  /metrics        Prometheus metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arloliu/shardcoord"
	"github.com/arloliu/shardcoord/allocator"
	"github.com/arloliu/shardcoord/directory"
	"github.com/arloliu/shardcoord/internal/logging"
	"github.com/arloliu/shardcoord/internal/metrics"
	"github.com/arloliu/shardcoord/shortid"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	mode := flag.String("mode", "shard", "process mode: shard or router")
	flag.Parse()

	logger := logging.NewSlogDefault().Named(*mode)
	if err := run(logger, *configPath, *mode); err != nil {
		logger.Fatal("shardd failed", "error", err)
	}
}

func run(logger *logging.SlogLogger, configPath, mode string) error {
	if mode != "shard" && mode != "router" {
		return fmt.Errorf("unknown mode %q", mode)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	collector := metrics.NewPrometheus(prometheus.DefaultRegisterer, "shardcoord")
	opts := []shardcoord.Option{shardcoord.WithLogger(logger), shardcoord.WithMetrics(collector)}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("shardd-"+cfg.NodeIdentity),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	dir, err := directory.New(ctx, nc, cfg.Directory,
		directory.WithLogger(logger),
		directory.WithMetrics(collector),
	)
	if err != nil {
		return fmt.Errorf("failed to open directory: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := dir.Close(closeCtx); err != nil {
			logger.Warn("failed to close directory", "error", err)
		}
	}()

	router, err := shardcoord.NewRouter(cfg, dir, opts...)
	if err != nil {
		return err
	}
	if err := router.Start(ctx); err != nil {
		return fmt.Errorf("failed to start router: %w", err)
	}
	defer stopWithTimeout(cfg.ShutdownTimeout, logger, "router", router.Stop)

	var shard *shardcoord.Shard
	if mode == "shard" {
		client, err := allocator.NewUniversalClient(ctx, allocator.Options{
			Addrs:    cfg.RedisAddrs,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return err
		}
		alloc, err := allocator.NewRedis(client, cfg.RedisKeyPrefix, cfg.ShardID, shortid.RangeSize)
		if err != nil {
			_ = client.Close()
			return err
		}
		defer func() { _ = alloc.Close() }()

		shard, err = shardcoord.NewShard(cfg, dir, alloc, alloc, opts...)
		if err != nil {
			return err
		}
		if err := shard.Start(ctx); err != nil {
			return fmt.Errorf("failed to start shard: %w", err)
		}
		defer stopWithTimeout(cfg.ShutdownTimeout, logger, "shard", shard.Stop)

		aggCtx, cancelAgg := context.WithCancel(ctx)
		var aggWG sync.WaitGroup
		aggWG.Go(func() {
			err := shard.RunAsLeader(aggCtx, cfg.AggregationInterval, publishFleetStates(router, collector))
			if err != nil && !errors.Is(err, shardcoord.ErrElectionStopped) {
				logger.Error("fleet aggregation stopped", "error", err)
			}
		})
		defer func() {
			cancelAgg()
			aggWG.Wait()
		}()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newHandler(router, shard),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func loadConfig(path string) (shardcoord.Config, error) {
	if path != "" {
		return shardcoord.LoadConfig(path)
	}

	cfg := shardcoord.DefaultConfig()
	if host, err := os.Hostname(); err == nil {
		cfg.NodeIdentity = strings.ReplaceAll(host, ".", "-")
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.NATSURL = url
	}
	if err := cfg.Validate(); err != nil {
		return shardcoord.Config{}, err
	}

	return cfg, nil
}

func stopWithTimeout(timeout time.Duration, logger shardcoord.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := stop(ctx); err != nil {
		logger.Warn("failed to stop "+name, "error", err)
	}
}
