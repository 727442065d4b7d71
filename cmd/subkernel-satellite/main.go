// Command subkernel-satellite runs a standalone demo of the node side
// of the subkernel protocol: it sets up a simulated auxiliary processor
// arena, an in-process mailbox and a cache, and drives
// process_kern_requests until a shutdown signal arrives or a tick
// returns an error. It does not add, load or run any subkernel itself
// and configures no ksupport image, so with nothing running every tick
// is a no-op.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rtio-systems/subkernel"
	"github.com/rtio-systems/subkernel/internal/cache"
	"github.com/rtio-systems/subkernel/internal/loader"
	"github.com/rtio-systems/subkernel/internal/logging"
	"github.com/rtio-systems/subkernel/internal/mailbox"
)

func main() {
	var (
		rank     = flag.Uint("rank", 3, "This satellite's destination rank")
		verbose  = flag.Bool("v", false, "Verbose logging")
		tick     = flag.Duration("tick", time.Millisecond, "process_kern_requests polling interval")
		cacheDir = flag.String("cache-dir", "", "Directory for a badger-backed kernel RPC cache; empty uses an in-memory cache")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)

	arena, err := loader.NewArena()
	if err != nil {
		logger.WithError(err).Error("failed to reserve auxiliary processor arena")
		os.Exit(1)
	}
	defer arena.Close()

	mbox := mailbox.NewSimMailbox()
	var c cache.Cache
	if *cacheDir != "" {
		persistent, err := cache.OpenPersistentCache(*cacheDir)
		if err != nil {
			logger.WithError(err).Error("failed to open persistent cache")
			os.Exit(1)
		}
		defer persistent.Close()
		c = persistent
		logger.Info("using persistent cache at " + *cacheDir)
	} else {
		c = cache.NewMemoryCache()
	}
	metrics := subkernel.NewMetrics()

	cfg := subkernel.DefaultSatelliteConfig()
	cfg.Rank = uint8(*rank)
	cfg.Logger = logger
	cfg.Metrics = metrics

	sat := subkernel.NewSatellite(mbox, c, arena, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	logger.WithDestination(uint8(*rank)).Info("satellite ready")

	if err := sat.RunLoop(ctx, uint8(*rank), *tick); err != nil && err != context.Canceled {
		logger.WithError(err).Error("process_kern_requests loop exited with error")
		os.Exit(1)
	}

	sat.Shutdown()
	snap := metrics.Snapshot()
	log.Printf("metrics: loads=%d runs=%d finished_ok=%d finished_exc=%d hw_requests=%d",
		snap.Loads, snap.Runs, snap.FinishedOk, snap.FinishedExc, snap.HWRequests)
	log.Println("satellite stopped")
}
