// Package transport defines the link-layer primitives the master
// registry delegates I/O to. Framing, acknowledgement and retransmission
// are explicitly out of scope for this module (see spec §1); Transport
// is the narrow seam a real DRTIO stack would implement.
package transport

import "context"

// Transport is the set of operations the master issues against a
// satellite destination. Every method may block (transport calls may
// suspend internally per the concurrency model) and every method may
// fail; failures propagate to the host session as a DrtioError.
type Transport interface {
	// Upload ships the full subkernel image to destination dest.
	Upload(ctx context.Context, id uint32, dest uint8, image []byte) error

	// Load instructs the satellite to place (and optionally run) the
	// previously uploaded image.
	Load(ctx context.Context, id uint32, dest uint8, run bool) error

	// SendMessage delivers one interkernel message frame set to a
	// running subkernel.
	SendMessage(ctx context.Context, id uint32, dest uint8, data []byte) error

	// RetrieveException pulls the pending exception bytes for the
	// given destination.
	RetrieveException(ctx context.Context, dest uint8) ([]byte, error)
}

// Callbacks are the inbound notifications a link receiver invokes on
// the registry as frames arrive from satellites. A Transport
// implementation that drives a real link would call these;
// internal/coordinator.Coordinator implements them, and tests call
// them on it directly. MemoryTransport does not invoke them.
type Callbacks interface {
	SubkernelFinished(id uint32, withException bool)
	MessageHandleIncoming(id uint32, last bool, frame []byte)
	DestinationChanged(dest uint8, up bool)
}
