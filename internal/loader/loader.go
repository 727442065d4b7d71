// Package loader validates and places a non-relocatable auxiliary
// processor image (spec §4.8). The kernel CPU's fixed address window
// is simulated with an anonymous golang.org/x/sys/unix.Mmap arena so
// the placement check has real memory to write into and rejections can
// be verified to have made no writes at all (I-TEST-8).
package loader

import (
	"bytes"
	"debug/elf"

	"golang.org/x/sys/unix"

	"github.com/rtio-systems/subkernel/internal/constants"
)

// Arena simulates the kernel CPU's addressable memory,
// [ExecAddress-HeaderSize, LastAddress], as one anonymous mmap region.
type Arena struct {
	base uint32
	mem  []byte
}

// NewArena allocates an anonymous mmap region covering the kernel CPU's
// address window.
func NewArena() (*Arena, error) {
	base := uint32(constants.ExecAddress - constants.HeaderSize)
	size := int(constants.LastAddress) - int(base) + 1

	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}
	return &Arena{base: base, mem: mem}, nil
}

// Close unmaps the arena.
func (a *Arena) Close() error {
	return unix.Munmap(a.mem)
}

// Bytes returns the raw backing slice, for tests that want to assert
// nothing was written.
func (a *Arena) Bytes() []byte {
	return a.mem
}

func (a *Arena) writeAt(addr uint32, data []byte) error {
	off := int(addr) - int(a.base)
	if off < 0 || off+len(data) > len(a.mem) {
		return ErrOutOfRange
	}
	copy(a.mem[off:off+len(data)], data)
	return nil
}

// Error is a sentinel error type for loader faults.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrNotExec             Error = "loader: elf type is not EXEC"
	ErrNoProgramHeaders    Error = "loader: no program headers"
	ErrFirstSegmentNotLoad Error = "loader: first program header is not PT_LOAD"
	ErrSegmentTooLarge     Error = "loader: vaddr+memsz exceeds LAST_ADDRESS"
	ErrUnexpectedAddress   Error = "unexpected load address/offset"
	ErrOutOfRange          Error = "loader: write target outside kernel CPU address window"
)

// Place validates image against the placement invariants (§4.8) and,
// only if every check passes, copies the entire file — headers
// included — to ExecAddress-HeaderSize so the text section lands
// exactly at ExecAddress and the headers remain resident for the
// unwinder. machine restricts acceptance to a single ELF machine type
// (the current architecture); pass elf.EM_NONE to accept any.
func Place(arena *Arena, image []byte, machine elf.Machine) error {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return err
	}
	defer f.Close()

	if machine != elf.EM_NONE && f.Machine != machine {
		return ErrNotExec
	}
	if f.Type != elf.ET_EXEC {
		return ErrNotExec
	}
	if len(f.Progs) == 0 {
		return ErrNoProgramHeaders
	}

	first := f.Progs[0]
	if first.Type != elf.PT_LOAD {
		return ErrFirstSegmentNotLoad
	}
	if first.Vaddr+first.Memsz > constants.LastAddress {
		return ErrSegmentTooLarge
	}
	if first.Vaddr-first.Off != constants.ExecAddress-constants.HeaderSize {
		return ErrUnexpectedAddress
	}

	return arena.writeAt(uint32(constants.ExecAddress-constants.HeaderSize), image)
}
