// Package constants holds the fixed addresses, payload sizes, and default
// timeouts shared across the master and satellite packages.
package constants

import "time"

// Auxiliary-processor address window.
//
// Images are non-relocatable: the loader places the text section at
// ExecAddress exactly and keeps the ELF headers in the HeaderSize bytes
// immediately below it, for the unwinder. See internal/loader.
const (
	// ExecAddress is the fixed virtual address the kernel CPU's text
	// section must load at.
	ExecAddress = 0x40000000

	// LastAddress is the highest address in the kernel CPU's address
	// range; no loaded image may extend past it.
	LastAddress = 0x4fffffff

	// HeaderSize is the space reserved below ExecAddress for the ELF
	// headers, kept resident for stack unwinding.
	HeaderSize = 0x80
)

// Wire payload sizes. Two sizes are parameterized per the Sliceable
// contract: the satellite-to-satellite (DRTIO) payload and the
// master-to-satellite payload.
const (
	// SatPayloadMax is the maximum payload carried in a single DRTIO aux
	// frame between satellites (exception retrieval, outbound messages).
	SatPayloadMax = 1024

	// MasterPayloadMax is the maximum payload carried in a single frame
	// of a master<->satellite interkernel message.
	MasterPayloadMax = 1024
)

// Default timeouts.
const (
	// DefaultAwaitFinishTimeout bounds how long a host session's
	// await_finish call blocks before returning Timeout.
	DefaultAwaitFinishTimeout = 10 * time.Second

	// DefaultMessageAwaitTimeout bounds how long message_await blocks.
	DefaultMessageAwaitTimeout = 10 * time.Second

	// KernRecvTimeout bounds each mailbox poll while streaming an
	// interkernel message into the loaded kernel (see
	// satellite.passMessageToKernel).
	KernRecvTimeout = 100 * time.Millisecond

	// PollInterval is how often cooperative wait loops re-check their
	// predicate. The original firmware relies on scheduler round-robin;
	// Go polls on a short, fixed interval instead.
	PollInterval = time.Millisecond
)

// SubkernelErrorID is the fixed exception-kind identifier ARTIQ's ksupport
// assigns to synthesised runtime exceptions (see satellite.Manager.handleRunError).
const SubkernelErrorID = 11
