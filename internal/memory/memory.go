// Package memory implements the flat physical RAM backing a single
// RV32G hart: a byte-addressable, little-endian array with typed
// aligned/unaligned access checking.
//
// Grounded on the teacher's emu/memory/memory.go (word-array RAM with
// bounds-checked Get/Put helpers) and original_source/src/memory.rs
// (the byte-array Memory with per-kind access-fault/misaligned errors
// this package reproduces almost field for field).
package memory

import (
	"encoding/binary"

	"github.com/rcornwell/rv32g/internal/exception"
)

// Size is the physical RAM size in bytes (128 MiB).
const Size = 0x0800_0000

// Kind identifies which operation an access check is performed on
// behalf of, so a failure can be mapped to the correct exception code.
type Kind int

const (
	Fetch Kind = iota
	Load
	Store
)

// Memory is the flat physical RAM of one hart. It is owned by the hart
// that created it; no other goroutine may touch it concurrently.
type Memory struct {
	ram []byte
}

// New allocates a zeroed RAM of the standard Size.
func New() *Memory {
	return &Memory{ram: make([]byte, Size)}
}

// Load copies image into the bottom of RAM, starting at offset 0.
func (m *Memory) Load(image []byte) {
	copy(m.ram, image)
}

func (k Kind) accessFault() exception.Code {
	switch k {
	case Fetch:
		return exception.InstructionAccessFault
	case Store:
		return exception.StoreAMOAccessFault
	default:
		return exception.LoadAccessFault
	}
}

func (k Kind) addressMisaligned() exception.Code {
	switch k {
	case Fetch:
		return exception.InstructionAddressMisaligned
	case Store:
		return exception.StoreAMOAddressMisaligned
	default:
		return exception.LoadAddressMisaligned
	}
}

func checkAddress(addr, size uint32, k Kind) *exception.Exception {
	if uint64(addr)+uint64(size) > Size {
		return exception.WithTval(k.accessFault(), addr)
	}
	if addr%size != 0 {
		return exception.WithTval(k.addressMisaligned(), addr)
	}
	return nil
}

// Fetch reads a 32-bit instruction word for execution. Unlike data
// accesses, an instruction address need only be 2-byte aligned (the C
// extension's compressed encodings, though not implemented here, are
// halfword-aligned), so alignment is checked against 2 rather than the
// word size used for the bounds check.
func (m *Memory) Fetch(addr uint32) (uint32, *exception.Exception) {
	if uint64(addr)+4 > Size {
		return 0, exception.WithTval(Fetch.accessFault(), addr)
	}
	if addr&1 != 0 {
		return 0, exception.WithTval(Fetch.addressMisaligned(), addr)
	}
	return binary.LittleEndian.Uint32(m.ram[addr:]), nil
}

// Read8 zero-extends a single byte load to 32 bits.
func (m *Memory) Read8(addr uint32) (uint32, *exception.Exception) {
	if err := checkAddress(addr, 1, Load); err != nil {
		return 0, err
	}
	return uint32(m.ram[addr]), nil
}

// Read16 zero-extends an aligned half-word load to 32 bits.
func (m *Memory) Read16(addr uint32) (uint32, *exception.Exception) {
	if err := checkAddress(addr, 2, Load); err != nil {
		return 0, err
	}
	return uint32(binary.LittleEndian.Uint16(m.ram[addr:])), nil
}

// Read32 reads an aligned word.
func (m *Memory) Read32(addr uint32) (uint32, *exception.Exception) {
	if err := checkAddress(addr, 4, Load); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.ram[addr:]), nil
}

// Read64 reads an aligned double-word, used by the D extension.
func (m *Memory) Read64(addr uint32) (uint64, *exception.Exception) {
	if err := checkAddress(addr, 8, Load); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.ram[addr:]), nil
}

// Write8 stores the low byte of val.
func (m *Memory) Write8(addr uint32, val uint8) *exception.Exception {
	if err := checkAddress(addr, 1, Store); err != nil {
		return err
	}
	m.ram[addr] = val
	return nil
}

// Write16 stores the low half-word of val at an aligned address.
func (m *Memory) Write16(addr uint32, val uint16) *exception.Exception {
	if err := checkAddress(addr, 2, Store); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.ram[addr:], val)
	return nil
}

// Write32 stores val at an aligned address.
func (m *Memory) Write32(addr uint32, val uint32) *exception.Exception {
	if err := checkAddress(addr, 4, Store); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.ram[addr:], val)
	return nil
}

// Write64 stores val at an aligned address, used by the D extension.
func (m *Memory) Write64(addr uint32, val uint64) *exception.Exception {
	if err := checkAddress(addr, 8, Store); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.ram[addr:], val)
	return nil
}
