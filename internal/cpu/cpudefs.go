package cpu

/* RV32G hart state definitions

   Copyright (c) 2024, Richard Cornwell

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   RICHARD CORNWELL BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

*/

import (
	"log/slog"

	"github.com/rcornwell/rv32g/internal/csr"
	"github.com/rcornwell/rv32g/internal/exception"
	"github.com/rcornwell/rv32g/internal/memory"
	"github.com/rcornwell/rv32g/internal/mmu"
	"github.com/rcornwell/rv32g/internal/trap"
)

// Opcode field values (instruction bits 6:0).
const (
	opLoad     = 0b0000011
	opLoadFP   = 0b0000111
	opMiscMem  = 0b0001111
	opOpImm    = 0b0010011
	opAUIPC    = 0b0010111
	opStore    = 0b0100011
	opStoreFP  = 0b0100111
	opAMO      = 0b0101111
	opOp       = 0b0110011
	opLUI      = 0b0110111
	opFMADD    = 0b1000011
	opFMSUB    = 0b1000111
	opFNMSUB   = 0b1001011
	opFNMADD   = 0b1001111
	opOpFP     = 0b1010011
	opBranch   = 0b1100011
	opJALR     = 0b1100111
	opJAL      = 0b1101111
	opSystem   = 0b1110011
)

// funct3 values for the system opcode's privileged sub-instructions.
const (
	funct3Priv   = 0b000
	funct3CSRRW  = 0b001
	funct3CSRRS  = 0b010
	funct3CSRRC  = 0b011
	funct3CSRRWI = 0b101
	funct3CSRRSI = 0b110
	funct3CSRRCI = 0b111
)

// imm12 values distinguishing the funct3Priv sub-instructions of opSystem.
const (
	imm12ECALL  = 0x000
	imm12EBREAK = 0x001
	imm12URET   = 0x002
	imm12SRET   = 0x102
	imm12MRET   = 0x302
	imm12WFI    = 0x105
)

// AMO funct5 values (instruction bits 31:27).
const (
	amoLR      = 0b00010
	amoSC      = 0b00011
	amoSwap    = 0b00001
	amoAdd     = 0b00000
	amoXor     = 0b00100
	amoAnd     = 0b01100
	amoOr      = 0b01000
	amoMin     = 0b10000
	amoMax     = 0b10100
	amoMinu    = 0b11000
	amoMaxu    = 0b11100
)

// decoded holds the fields extracted from a 32-bit instruction word,
// named after the RISC-V ISA manual's instruction-format fields
// rather than any per-opcode meaning.
type decoded struct {
	raw      uint32
	opcode   uint32
	rd       uint32
	funct3   uint32
	rs1      uint32
	rs2      uint32
	funct7   uint32
	immI     int32
	immS     int32
	immB     int32
	immU     int32
	immJ     int32
}

func decode(word uint32) decoded {
	d := decoded{
		raw:    word,
		opcode: word & 0x7F,
		rd:     (word >> 7) & 0x1F,
		funct3: (word >> 12) & 0x7,
		rs1:    (word >> 15) & 0x1F,
		rs2:    (word >> 20) & 0x1F,
		funct7: (word >> 25) & 0x7F,
	}
	d.immI = int32(word) >> 20
	d.immS = (int32(word&0xFE000000) >> 20) | int32((word>>7)&0x1F)
	d.immB = (int32(word&0x80000000) >> 19) |
		int32((word&0x80)<<4) |
		int32((word>>20)&0x7E0) |
		int32((word>>7)&0x1E)
	d.immU = int32(word & 0xFFFFF000)
	d.immJ = (int32(word&0x80000000) >> 11) |
		int32(word&0xFF000) |
		int32((word>>9)&0x800) |
		int32((word>>20)&0x7FE)
	return d
}

// rs2AsFunct selects the rs2 field's use as a sub-opcode discriminant,
// as the F extension's fcvt/fsqrt/fclass family does.
func (d decoded) rs2AsFunct() uint32 { return d.rs2 }

// illegalInstr raises IllegalInstruction carrying the undecodable
// instruction word in tval, per spec.md §9 Q1.
func illegalInstr(d decoded) *exception.Exception {
	return exception.WithTval(exception.IllegalInstruction, d.raw)
}

// Hart is a single RV32G execution context: register file, CSR bank,
// MMU-backed memory, and the privilege mode the trap unit needs.
//
// Unlike the original Rust implementation's `static mut FCSR`, all
// architectural state lives here, owned by one Hart value — there is
// no package-level mutable state anywhere in this simulator.
type Hart struct {
	X       [32]uint32 // integer register file, X[0] always reads zero
	F       [32]uint64 // floating-point register file, full 64-bit width
	PC      uint32
	Mode    trap.Mode
	CSRs    *csr.File
	Mem     *memory.Memory
	EndPC   uint32 // fetch loop terminates when PC reaches this address
	Log     *slog.Logger
	resVA   uint32 // LR.W reservation address
	resSet  bool   // whether a reservation is currently held
}

// New returns a Hart reset to the power-on state of spec.md §6: pc=0,
// Machine mode, sp (x2) pointing one past the end of memory, every
// other register and CSR zero.
func New(mem *memory.Memory, log *slog.Logger) *Hart {
	h := &Hart{
		CSRs: csr.New(),
		Mem:  mem,
		Mode: trap.Machine,
		Log:  log,
	}
	h.Reset()
	return h
}

// Reset restores the power-on state without discarding the loaded
// memory image.
func (h *Hart) Reset() {
	h.X = [32]uint32{}
	h.F = [32]uint64{}
	h.PC = 0
	h.Mode = trap.Machine
	h.X[2] = memory.Size
	h.resSet = false
}

func (h *Hart) setX(reg uint32, val uint32) {
	if reg != 0 {
		h.X[reg] = val
	}
}

func (h *Hart) translate(va uint32, kind memory.Kind) (uint32, *exception.Exception) {
	satp := h.CSRs.RawRead(csr.Satp)
	mstatus := h.CSRs.RawRead(csr.Mstatus)
	mmuMode := mmu.Machine
	switch h.Mode {
	case trap.User:
		mmuMode = mmu.User
	case trap.Supervisor:
		mmuMode = mmu.Supervisor
	}
	return mmu.Translate(h.Mem, satp, mstatus, mmuMode, va, kind)
}
