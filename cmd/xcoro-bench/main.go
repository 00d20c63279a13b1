package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/baruch/xcoro"
	"github.com/baruch/xcoro/fiber"
	"github.com/baruch/xcoro/internal/logging"
	"github.com/baruch/xcoro/offload"
	"github.com/baruch/xcoro/offload/shim"
)

func main() {
	var (
		workers  = flag.Int("workers", 4, "number of offload worker threads")
		fibers   = flag.Int("fibers", 64, "number of concurrent submitting fibers")
		perFiber = flag.Int("per-fiber", 200, "open+write+read+close cycles per fiber")
		verbose  = flag.Bool("v", false, "verbose logging")
		dir      = flag.String("dir", "", "directory for scratch files (defaults to a temp dir)")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	scratch := *dir
	if scratch == "" {
		d, err := os.MkdirTemp("", "xcoro-bench-")
		if err != nil {
			log.Fatalf("mkdir temp: %v", err)
		}
		defer os.RemoveAll(d)
		scratch = d
	}

	metrics := xcoro.NewMetrics()
	observer := xcoro.NewMetricsObserver(metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	s, err := fiber.New()
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	c, err := offload.Init(s, offload.Config{
		NumWorkers: *workers,
		Logger:     logger,
		Observer:   observer,
	})
	if err != nil {
		logger.Error("failed to init offload context", "error", err)
		os.Exit(1)
	}

	logger.Info("starting bench", "workers", *workers, "fibers", *fibers, "per_fiber", *perFiber)

	for i := 0; i < *fibers; i++ {
		i := i
		s.Spawn(fmt.Sprintf("bench-%d", i), func(fctx context.Context) {
			runFiberWorkload(fctx, c, logger, filepath.Join(scratch, fmt.Sprintf("f%d", i)), *perFiber)
		})
	}

	// Run returns once every bench fiber has finished and the response
	// fiber has fully suspended: the quiescence exit.
	start := time.Now()
	if err := s.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("wire loop failed", "error", err)
		os.Exit(1)
	}
	metrics.Stop()

	elapsed := time.Since(start)
	snap := metrics.Snapshot()

	fmt.Printf("xcoro-bench: %d ops in %s (%.0f ops/sec)\n", snap.TotalOps, elapsed, snap.IOPS)
	fmt.Printf("  errors: %d (%.2f%%)\n", snap.TotalErrors, snap.ErrorRate)
	fmt.Printf("  bytes moved: %d (%.0f B/s)\n", snap.BytesMoved, snap.Bandwidth)
	fmt.Printf("  latency: p50=%s p99=%s p999=%s avg=%s\n",
		time.Duration(snap.LatencyP50Ns), time.Duration(snap.LatencyP99Ns),
		time.Duration(snap.LatencyP999Ns), time.Duration(snap.AvgLatencyNs))
	fmt.Printf("  max queue depth: %d, active IOs at exit: %d\n", snap.MaxQueueDepth, c.ActiveIOs())
}

// runFiberWorkload performs n open/write/read/close cycles against its
// own scratch file, offloading every syscall through the shim package.
func runFiberWorkload(ctx context.Context, c *offload.Context, logger *logging.Logger, path string, n int) {
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return
		}
		fd, err := shim.OpenCreate(ctx, c, path, syscall.O_RDWR, 0o644)
		if err != nil {
			logger.WithOp("bench").WithError(err).Warn("open failed")
			continue
		}

		payload := []byte(fmt.Sprintf("iteration-%d", i))
		if _, err := shim.Write(ctx, c, fd, payload); err != nil {
			logger.WithOp("bench").WithError(err).Warn("write failed")
		}

		buf := make([]byte, len(payload))
		if _, err := shim.Pread(ctx, c, fd, buf, 0); err != nil {
			logger.WithOp("bench").WithError(err).Warn("pread failed")
		}

		if err := shim.Close(ctx, c, fd); err != nil {
			logger.WithOp("bench").WithError(err).Warn("close failed")
		}
	}
}
