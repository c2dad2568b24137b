package cpu

/* RV32 privileged and Zicsr instruction execution

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
	"github.com/rcornwell/rv32g/internal/trap"
)

func (h *Hart) execSystem(d decoded) *exception.Exception {
	switch d.funct3 {
	case funct3Priv:
		return h.execPriv(d)
	case funct3CSRRW, funct3CSRRS, funct3CSRRC, funct3CSRRWI, funct3CSRRSI, funct3CSRRCI:
		return h.execCSR(d)
	default:
		return illegalInstr(d)
	}
}

func (h *Hart) execPriv(d decoded) *exception.Exception {
	imm12 := uint32(d.immI) & 0xFFF
	switch imm12 {
	case imm12ECALL:
		switch h.Mode {
		case trap.User:
			return exception.New(exception.EnvironmentCallFromUMode)
		case trap.Supervisor:
			return exception.New(exception.EnvironmentCallFromSMode)
		default:
			return exception.New(exception.EnvironmentCallFromMMode)
		}
	case imm12EBREAK:
		return exception.New(exception.Breakpoint)
	case imm12MRET:
		newPC, newMode, exc := trap.MRET(h.CSRs, h.Mode)
		if exc != nil {
			return rewrapIllegal(d, exc)
		}
		h.PC = newPC
		h.Mode = newMode
		return nil
	case imm12SRET:
		newPC, newMode, exc := trap.SRET(h.CSRs, h.Mode)
		if exc != nil {
			return rewrapIllegal(d, exc)
		}
		h.PC = newPC
		h.Mode = newMode
		return nil
	case imm12WFI:
		return nil // no pending-interrupt model to wait on; treated as a no-op
	default:
		return illegalInstr(d)
	}
}

// rewrapIllegal attaches the offending instruction word to an
// IllegalInstruction exception surfaced from a package (trap, csr, fpu)
// that has no access to the instruction being executed.
func rewrapIllegal(d decoded, exc *exception.Exception) *exception.Exception {
	if exc.Code() == exception.IllegalInstruction {
		return illegalInstr(d)
	}
	return exc
}

// execCSR implements CSRRW/CSRRS/CSRRC and their immediate forms,
// including the "skip the read if rd==x0" (CSRRW/CSRRWI only; the
// set/clear forms always read) / "skip the write if the mask operand
// is zero and rs1==x0" elision rules of spec.md §4.1 —
// both matter because some CSRs have read or write side effects.
func (h *Hart) execCSR(d decoded) *exception.Exception {
	addr := uint16(d.raw>>20) & 0xFFF
	isImm := d.funct3 >= funct3CSRRWI
	var operand uint32
	if isImm {
		operand = d.rs1
	} else {
		operand = h.X[d.rs1]
	}

	readsOld := d.rd != 0 || d.funct3 == funct3CSRRS || d.funct3 == funct3CSRRC ||
		d.funct3 == funct3CSRRSI || d.funct3 == funct3CSRRCI
	var old uint32
	if readsOld {
		var exc *exception.Exception
		old, exc = h.CSRs.Read(addr)
		if exc != nil {
			return rewrapIllegal(d, exc)
		}
	}

	writes := true
	switch d.funct3 {
	case funct3CSRRS, funct3CSRRC:
		writes = d.rs1 != 0
	case funct3CSRRSI, funct3CSRRCI:
		writes = operand != 0
	}

	if writes {
		var newVal uint32
		switch d.funct3 {
		case funct3CSRRW, funct3CSRRWI:
			newVal = operand
		case funct3CSRRS, funct3CSRRSI:
			newVal = old | operand
		case funct3CSRRC, funct3CSRRCI:
			newVal = old &^ operand
		}
		if exc := h.CSRs.Write(addr, newVal); exc != nil {
			return rewrapIllegal(d, exc)
		}
	}

	h.setX(d.rd, old)
	return nil
}
