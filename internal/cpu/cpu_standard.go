package cpu

/* RV32I/M/A instruction execution

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
	"github.com/rcornwell/rv32g/internal/exception"
	"github.com/rcornwell/rv32g/internal/memory"
	"github.com/rcornwell/rv32g/internal/trap"
)

// Run executes instructions until PC reaches EndPC, returning the
// first exception that isn't consumed by a successful trap delivery
// (there are none today: every exception resolves into a trap entry,
// so Run returns nil on ordinary termination).
func (h *Hart) Run() error {
	for h.PC != h.EndPC {
		if err := h.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step fetches, decodes and executes a single instruction, routing
// any raised exception through the trap unit rather than returning
// it to the caller. A non-nil return indicates a host-level failure
// (never an architectural exception).
func (h *Hart) Step() error {
	pa, exc := h.translate(h.PC, memory.Fetch)
	if exc == nil {
		var word uint32
		word, exc = h.Mem.Fetch(pa)
		if exc == nil {
			nextPC := h.PC + 4
			h.PC = nextPC
			exc = h.execute(decode(word))
			h.X[0] = 0
		}
	}
	if exc != nil {
		h.Log.Debug("exception raised", "code", exc.Code(), "tval", exc.Tval(), "pc", h.PC, "mode", h.Mode)
		newPC, newMode := trap.Enter(h.CSRs, h.Mode, h.PC, exc)
		h.PC = newPC
		h.Mode = newMode
	}
	return nil
}

func (h *Hart) execute(d decoded) *exception.Exception {
	switch d.opcode {
	case opLUI:
		h.setX(d.rd, uint32(d.immU))
		return nil
	case opAUIPC:
		h.setX(d.rd, (h.PC-4)+uint32(d.immU))
		return nil
	case opJAL:
		h.setX(d.rd, h.PC)
		h.PC = (h.PC - 4) + uint32(d.immJ)
		return nil
	case opJALR:
		target := (h.X[d.rs1] + uint32(d.immI)) &^ 1
		h.setX(d.rd, h.PC)
		h.PC = target
		return nil
	case opBranch:
		return h.execBranch(d)
	case opLoad:
		return h.execLoad(d)
	case opStore:
		return h.execStore(d)
	case opOpImm:
		return h.execOpImm(d)
	case opOp:
		return h.execOp(d)
	case opMiscMem:
		return nil // FENCE / FENCE.I: no-op, single hart, unified memory
	case opAMO:
		return h.execAMO(d)
	case opSystem:
		return h.execSystem(d)
	case opLoadFP, opStoreFP, opFMADD, opFMSUB, opFNMSUB, opFNMADD, opOpFP:
		return h.execFP(d)
	default:
		return illegalInstr(d)
	}
}

func (h *Hart) execBranch(d decoded) *exception.Exception {
	a, b := h.X[d.rs1], h.X[d.rs2]
	var taken bool
	switch d.funct3 {
	case 0b000: // BEQ
		taken = a == b
	case 0b001: // BNE
		taken = a != b
	case 0b100: // BLT
		taken = int32(a) < int32(b)
	case 0b101: // BGE
		taken = int32(a) >= int32(b)
	case 0b110: // BLTU
		taken = a < b
	case 0b111: // BGEU
		taken = a >= b
	default:
		return illegalInstr(d)
	}
	if taken {
		h.PC = (h.PC - 4) + uint32(d.immB)
	}
	return nil
}

func (h *Hart) execLoad(d decoded) *exception.Exception {
	va := h.X[d.rs1] + uint32(d.immI)
	pa, exc := h.translate(va, memory.Load)
	if exc != nil {
		return exc
	}
	switch d.funct3 {
	case 0b000: // LB
		v, exc := h.Mem.Read8(pa)
		if exc != nil {
			return exc
		}
		h.setX(d.rd, uint32(int32(int8(v))))
	case 0b001: // LH
		v, exc := h.Mem.Read16(pa)
		if exc != nil {
			return exc
		}
		h.setX(d.rd, uint32(int32(int16(v))))
	case 0b010: // LW
		v, exc := h.Mem.Read32(pa)
		if exc != nil {
			return exc
		}
		h.setX(d.rd, v)
	case 0b100: // LBU
		v, exc := h.Mem.Read8(pa)
		if exc != nil {
			return exc
		}
		h.setX(d.rd, uint32(v))
	case 0b101: // LHU
		v, exc := h.Mem.Read16(pa)
		if exc != nil {
			return exc
		}
		h.setX(d.rd, uint32(v))
	default:
		return illegalInstr(d)
	}
	return nil
}

func (h *Hart) execStore(d decoded) *exception.Exception {
	va := h.X[d.rs1] + uint32(d.immS)
	pa, exc := h.translate(va, memory.Store)
	if exc != nil {
		return exc
	}
	switch d.funct3 {
	case 0b000: // SB
		return h.Mem.Write8(pa, uint8(h.X[d.rs2]))
	case 0b001: // SH
		return h.Mem.Write16(pa, uint16(h.X[d.rs2]))
	case 0b010: // SW
		return h.Mem.Write32(pa, h.X[d.rs2])
	default:
		return illegalInstr(d)
	}
}

func (h *Hart) execOpImm(d decoded) *exception.Exception {
	a := h.X[d.rs1]
	imm := uint32(d.immI)
	switch d.funct3 {
	case 0b000: // ADDI
		h.setX(d.rd, a+imm)
	case 0b010: // SLTI
		h.setX(d.rd, boolToWord(int32(a) < d.immI))
	case 0b011: // SLTIU
		h.setX(d.rd, boolToWord(a < imm))
	case 0b100: // XORI
		h.setX(d.rd, a^imm)
	case 0b110: // ORI
		h.setX(d.rd, a|imm)
	case 0b111: // ANDI
		h.setX(d.rd, a&imm)
	case 0b001: // SLLI
		h.setX(d.rd, a<<(d.rs2&0x1F))
	case 0b101: // SRLI / SRAI, distinguished by funct7 bit 5 (imm[10])
		if d.funct7&0x20 != 0 {
			h.setX(d.rd, uint32(int32(a)>>(d.rs2&0x1F)))
		} else {
			h.setX(d.rd, a>>(d.rs2&0x1F))
		}
	default:
		return illegalInstr(d)
	}
	return nil
}

func (h *Hart) execOp(d decoded) *exception.Exception {
	if d.funct7 == 0b0000001 {
		return h.execMulDiv(d)
	}
	a, b := h.X[d.rs1], h.X[d.rs2]
	switch d.funct3 {
	case 0b000:
		if d.funct7&0x20 != 0 {
			h.setX(d.rd, a-b) // SUB
		} else {
			h.setX(d.rd, a+b) // ADD
		}
	case 0b001: // SLL
		h.setX(d.rd, a<<(b&0x1F))
	case 0b010: // SLT
		h.setX(d.rd, boolToWord(int32(a) < int32(b)))
	case 0b011: // SLTU
		h.setX(d.rd, boolToWord(a < b))
	case 0b100: // XOR
		h.setX(d.rd, a^b)
	case 0b101: // SRL / SRA
		if d.funct7&0x20 != 0 {
			h.setX(d.rd, uint32(int32(a)>>(b&0x1F)))
		} else {
			h.setX(d.rd, a>>(b&0x1F))
		}
	case 0b110: // OR
		h.setX(d.rd, a|b)
	case 0b111: // AND
		h.setX(d.rd, a&b)
	default:
		return illegalInstr(d)
	}
	return nil
}

// execMulDiv implements the M extension. Division-by-zero and signed
// overflow both return the architectural sentinel values of spec.md
// §5.3 rather than trapping, matching the RISC-V base ISA's decision
// to keep integer division total.
func (h *Hart) execMulDiv(d decoded) *exception.Exception {
	a, b := int32(h.X[d.rs1]), int32(h.X[d.rs2])
	ua, ub := h.X[d.rs1], h.X[d.rs2]
	switch d.funct3 {
	case 0b000: // MUL
		h.setX(d.rd, uint32(a*b))
	case 0b001: // MULH
		h.setX(d.rd, uint32(int64(a)*int64(b)>>32))
	case 0b010: // MULHSU
		h.setX(d.rd, mulhsu(a, ub))
	case 0b011: // MULHU
		h.setX(d.rd, uint32((uint64(ua)*uint64(ub))>>32))
	case 0b100: // DIV
		h.setX(d.rd, divSigned(a, b))
	case 0b101: // DIVU
		h.setX(d.rd, divUnsigned(ua, ub))
	case 0b110: // REM
		h.setX(d.rd, remSigned(a, b))
	case 0b111: // REMU
		h.setX(d.rd, remUnsigned(ua, ub))
	default:
		return illegalInstr(d)
	}
	return nil
}

func mulhsu(a int32, ub uint32) uint32 {
	neg := a < 0
	mag := uint64(a)
	if neg {
		mag = uint64(-int64(a))
	}
	prod := mag * uint64(ub)
	if neg {
		prod = -prod
	}
	return uint32(prod >> 32)
}

func divSigned(a, b int32) uint32 {
	if b == 0 {
		return 0xFFFFFFFF
	}
	if a == -2147483648 && b == -1 {
		return uint32(a)
	}
	return uint32(a / b)
}

func divUnsigned(a, b uint32) uint32 {
	if b == 0 {
		return 0xFFFFFFFF
	}
	return a / b
}

func remSigned(a, b int32) uint32 {
	if b == 0 {
		return uint32(a)
	}
	if a == -2147483648 && b == -1 {
		return 0
	}
	return uint32(a % b)
}

func remUnsigned(a, b uint32) uint32 {
	if b == 0 {
		return a
	}
	return a % b
}

func boolToWord(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}

// execAMO implements the A extension's word-width atomics. This
// emulator runs a single hart, so LR.W records a reservation flag
// that SC.W never consults (SC.W always succeeds), and every
// read-modify-write is trivially atomic with respect to the rest of
// the simulator.
func (h *Hart) execAMO(d decoded) *exception.Exception {
	if d.funct3 != 0b010 {
		return illegalInstr(d)
	}
	va := h.X[d.rs1]
	// AMOs must be naturally aligned; spec.md §9 Q4 resolves the
	// original's silence on this by raising the same misaligned fault
	// an ordinary word load/store would.
	if va&0x3 != 0 {
		return exception.WithTval(exception.StoreAMOAddressMisaligned, va)
	}
	pa, exc := h.translate(va, memory.Store)
	if exc != nil {
		return exc
	}

	funct5 := d.funct7 >> 2
	switch funct5 {
	case amoLR:
		v, exc := h.Mem.Read32(pa)
		if exc != nil {
			return exc
		}
		h.resVA = va
		h.resSet = true
		h.setX(d.rd, v)
		return nil
	case amoSC:
		// spec.md §4.5: SC.W always succeeds on this single-hart model;
		// the reservation set by LR.W is tracked but never consulted.
		if exc := h.Mem.Write32(pa, h.X[d.rs2]); exc != nil {
			return exc
		}
		h.resSet = false
		h.setX(d.rd, 0)
		return nil
	}

	old, exc := h.Mem.Read32(pa)
	if exc != nil {
		return exc
	}
	rs2 := h.X[d.rs2]
	var result uint32
	switch funct5 {
	case amoSwap:
		result = rs2
	case amoAdd:
		result = old + rs2
	case amoXor:
		result = old ^ rs2
	case amoAnd:
		result = old & rs2
	case amoOr:
		result = old | rs2
	case amoMin:
		result = old
		if int32(rs2) < int32(old) {
			result = rs2
		}
	case amoMax:
		result = old
		if int32(rs2) > int32(old) {
			result = rs2
		}
	case amoMinu:
		result = old
		if rs2 < old {
			result = rs2
		}
	case amoMaxu:
		result = old
		if rs2 > old {
			result = rs2
		}
	default:
		return illegalInstr(d)
	}
	if exc := h.Mem.Write32(pa, result); exc != nil {
		return exc
	}
	h.setX(d.rd, old)
	return nil
}
