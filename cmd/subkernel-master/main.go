// Command subkernel-master runs a standalone demo of the master side
// of the subkernel lifecycle against an in-memory Transport: it adds a
// subkernel image, uploads it, loads and runs it, then waits for it to
// finish.
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
	"github.com/rtio-systems/subkernel/internal/logging"
)

func main() {
	var (
		id      = flag.Uint("id", 1, "Subkernel id to run")
		dest    = flag.Uint("dest", 3, "Destination rank")
		verbose = flag.Bool("v", false, "Verbose logging")
		timeout = flag.Duration("timeout", 5*time.Second, "await_finish timeout")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)

	transport := subkernel.NewMemoryTransport()
	metrics := subkernel.NewMetrics()

	cfg := subkernel.DefaultMasterConfig()
	cfg.Transport = transport
	cfg.Logger = logger
	cfg.Metrics = metrics
	master := subkernel.NewMaster(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	master.Start(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		master.Stop()
	}()

	master.Add(uint32(*id), uint8(*dest), []byte("demo-subkernel-image"))

	if err := master.Upload(ctx, uint32(*id)); err != nil {
		logger.WithSubkernel(uint32(*id)).WithError(err).Error("upload failed")
		os.Exit(1)
	}
	logger.WithSubkernel(uint32(*id)).Info("uploaded")

	if err := master.Load(ctx, uint32(*id), true); err != nil {
		logger.WithSubkernel(uint32(*id)).WithError(err).Error("load failed")
		os.Exit(1)
	}
	logger.WithSubkernel(uint32(*id)).Info("loaded and running")

	result, err := master.AwaitFinish(ctx, uint32(*id), *timeout)
	if err != nil {
		logger.WithSubkernel(uint32(*id)).WithError(err).Error("await_finish failed")
		os.Exit(1)
	}

	log.Printf("subkernel %d finished: comm_lost=%v has_exception=%v", result.ID, result.CommLost, result.HasExc)
	master.Stop()
	if err := master.Wait(); err != nil && err != context.Canceled {
		logger.WithError(err).Warn("link receiver exited with error")
	}

	snap := metrics.Snapshot()
	log.Printf("metrics: uploads=%d loads=%d runs=%d finished_ok=%d avg_run_latency=%s",
		snap.Uploads, snap.Loads, snap.Runs, snap.FinishedOk, time.Duration(snap.AvgRunLatencyNs))
}
