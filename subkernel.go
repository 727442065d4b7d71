// Package subkernel implements the master side of the subkernel
// lifecycle and interkernel-message protocol: a process-wide registry
// of subkernel images, their upload/load/run state machine, and the
// host-session-facing Coordinator API. See package satellite for the
// node-side counterpart.
package subkernel

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rtio-systems/subkernel/internal/cache"
	"github.com/rtio-systems/subkernel/internal/coordinator"
	"github.com/rtio-systems/subkernel/internal/loader"
	"github.com/rtio-systems/subkernel/internal/logging"
	"github.com/rtio-systems/subkernel/internal/mailbox"
	"github.com/rtio-systems/subkernel/internal/registry"
	"github.com/rtio-systems/subkernel/internal/satellite"
	"github.com/rtio-systems/subkernel/internal/transport"
)

// Master is the public entry point for the host-session side of the
// protocol: a thin re-export of internal/coordinator.Coordinator so
// callers outside this module never need to import internal packages.
type Master = coordinator.Coordinator

// MasterConfig configures NewMaster.
type MasterConfig = coordinator.Config

// DefaultMasterConfig returns config defaults; callers must still set
// Transport before the Master is usable.
func DefaultMasterConfig() *MasterConfig {
	return coordinator.DefaultConfig()
}

// NewMaster builds a Master. A nil config uses DefaultMasterConfig.
func NewMaster(cfg *MasterConfig) *Master {
	return coordinator.New(cfg)
}

// Message, FinishResult and LinkReceiver are re-exported so callers can
// name the Coordinator's return and callback types without reaching
// into internal/registry or internal/coordinator directly.
type Message = registry.Message
type FinishResult = registry.FinishResult
type LinkReceiver = coordinator.LinkReceiver

// Satellite is the public entry point for the node side of the
// protocol: a thin re-export of internal/satellite.Manager.
type Satellite struct {
	*satellite.Manager

	pinned bool
}

// SatelliteConfig configures NewSatellite.
type SatelliteConfig = satellite.ManagerConfig

// DefaultSatelliteConfig returns config defaults.
func DefaultSatelliteConfig() *SatelliteConfig {
	return satellite.DefaultManagerConfig()
}

// NewSatellite builds a Satellite node bound to mbox and c, with the
// auxiliary processor's placement window backed by arena and its
// support image fixed to ksupportImage (the externally-supplied,
// statically-linked blob copied into the window on every Load; see
// spec §4.2 and §1's scoping of the image format itself).
func NewSatellite(mbox mailbox.Mailbox, c cache.Cache, arena *loader.Arena, ksupportImage []byte, cfg *SatelliteConfig) *Satellite {
	return &Satellite{Manager: satellite.NewManager(mbox, c, arena, ksupportImage, cfg)}
}

// PinToOSThread locks the calling goroutine to its OS thread and, on
// Linux, restricts it to the given CPU set, mirroring the firmware
// main loop's dedicated-core model: the real satellite's
// process_kern_requests driver runs on its own core, never migrated or
// time-shared with anything else. cpus may be nil to skip the
// affinity call and only take the thread lock.
//
// Call this from the goroutine that will drive ProcessKernRequests,
// before the first call; it is a no-op on subsequent calls.
func (s *Satellite) PinToOSThread(cpus []int) error {
	if s.pinned {
		return nil
	}
	runtime.LockOSThread()
	s.pinned = true
	if len(cpus) == 0 {
		return nil
	}
	var mask unix.CPUSet
	mask.Zero()
	for _, cpu := range cpus {
		mask.Set(cpu)
	}
	return unix.SchedSetaffinity(0, &mask)
}

// RunLoop repeatedly calls ProcessKernRequests at the given interval
// until ctx is cancelled, matching the teacher's ioLoop shape: one
// goroutine, one dedicated tick driver, errors surfaced to the caller
// rather than silently dropped.
//
// The calling goroutine is pinned to its OS thread for the lifetime of
// the loop, as spec'd by PinToOSThread, before the first tick fires.
func (s *Satellite) RunLoop(ctx context.Context, rank uint8, interval time.Duration) error {
	if err := s.PinToOSThread(nil); err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.ProcessKernRequests(rank); err != nil {
				return err
			}
		}
	}
}

// NewDefaultLogger returns the logger used by components that are not
// explicitly configured with one.
func NewDefaultLogger() *logging.Logger {
	return logging.Default()
}

// NewMemoryTransport returns an in-process Transport, suitable for
// tests and single-binary demos where master and satellite share an
// address space.
func NewMemoryTransport() *transport.MemoryTransport {
	return transport.NewMemoryTransport()
}
