package cpu

/* RV32F/D floating point instruction execution

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
	"math"

	"github.com/rcornwell/rv32g/internal/csr"
	"github.com/rcornwell/rv32g/internal/exception"
	"github.com/rcornwell/rv32g/internal/fpu"
	"github.com/rcornwell/rv32g/internal/memory"
)

// funct7 values for the single- and double-precision opOpFP families.
// Bit 0 of funct7 selects the format (0 = single, 1 = double) for
// every arithmetic opcode. For the cross-format FCVT.S.D/FCVT.D.S
// pair it names the destination format; the source format, which the
// encoding carries in the rs2 field, is not checked.
const (
	funct7Add      = 0b0000000
	funct7Sub      = 0b0000100
	funct7Mul      = 0b0001000
	funct7Div      = 0b0001100
	funct7Sqrt     = 0b0101100
	funct7SqrtD    = 0b0101101
	funct7SgnjS    = 0b0010000
	funct7SgnjD    = 0b0010001
	funct7MinMaxS  = 0b0010100
	funct7MinMaxD  = 0b0010101
	funct7CvtWS    = 0b1100000
	funct7CvtWD    = 0b1100001
	funct7CvtSW    = 0b1101000
	funct7CvtDW    = 0b1101001
	funct7CmpS     = 0b1010000
	funct7CmpD     = 0b1010001
	funct7MvXWOrClassS = 0b1110000
	funct7MvXWOrClassD = 0b1110001
	funct7MvWX     = 0b1111000
	funct7CvtSD    = 0b0100000
	funct7CvtDS    = 0b0100001
)

func (h *Hart) frm() uint32 {
	rm, _ := h.CSRs.Read(csr.Frm)
	return rm
}

func (h *Hart) accrue(flags fpu.Flags) {
	if flags == 0 {
		return
	}
	cur, _ := h.CSRs.Read(csr.Fflags)
	h.CSRs.Write(csr.Fflags, cur|uint32(flags))
}

func (h *Hart) rm(instRM uint32) (fpu.RoundingMode, *exception.Exception) {
	return fpu.RoundingModeFromBits(instRM, h.frm())
}

// f32bits/bitsf32 read and write a single-precision value in the low
// 32 bits of a 64-bit f-register. Per spec.md §3, NaN-boxing is not
// modelled: a single-precision write zero-extends rather than setting
// the upper word to the canonical NaN-box pattern, and single-
// precision reads only ever look at the low word.
func f32bits(v uint64) float32 { return math.Float32frombits(uint32(v)) }
func bitsf32(v float32) uint64 { return uint64(math.Float32bits(v)) }
func f64bits(v uint64) float64 { return math.Float64frombits(v) }
func bitsf64(v float64) uint64 { return math.Float64bits(v) }

func (h *Hart) execFP(d decoded) *exception.Exception {
	var exc *exception.Exception
	switch d.opcode {
	case opLoadFP:
		exc = h.execLoadFP(d)
	case opStoreFP:
		exc = h.execStoreFP(d)
	case opFMADD, opFMSUB, opFNMSUB, opFNMADD:
		exc = h.execFMA(d)
	case opOpFP:
		exc = h.execOpFP(d)
	default:
		return illegalInstr(d)
	}
	if exc != nil {
		return rewrapIllegal(d, exc)
	}
	return nil
}

func (h *Hart) execLoadFP(d decoded) *exception.Exception {
	va := h.X[d.rs1] + uint32(d.immI)
	pa, exc := h.translate(va, memory.Load)
	if exc != nil {
		return exc
	}
	switch d.funct3 {
	case 0b010: // FLW
		v, exc := h.Mem.Read32(pa)
		if exc != nil {
			return exc
		}
		h.F[d.rd] = uint64(v)
	case 0b011: // FLD
		v, exc := h.Mem.Read64(pa)
		if exc != nil {
			return exc
		}
		h.F[d.rd] = v
	default:
		return illegalInstr(d)
	}
	return nil
}

func (h *Hart) execStoreFP(d decoded) *exception.Exception {
	va := h.X[d.rs1] + uint32(d.immS)
	pa, exc := h.translate(va, memory.Store)
	if exc != nil {
		return exc
	}
	switch d.funct3 {
	case 0b010: // FSW
		return h.Mem.Write32(pa, uint32(h.F[d.rs2]))
	case 0b011: // FSD
		return h.Mem.Write64(pa, h.F[d.rs2])
	default:
		return illegalInstr(d)
	}
}

func (h *Hart) execFMA(d decoded) *exception.Exception {
	rs3 := d.raw >> 27 & 0x1F
	double := d.funct7&1 != 0
	rm, exc := h.rm(d.funct3)
	if exc != nil {
		return exc
	}

	negA, negResult := false, false
	switch d.opcode {
	case opFMSUB:
		negA = true
	case opFNMSUB:
		negA, negResult = true, true
	case opFNMADD:
		negResult = true
	}

	if double {
		a, b, c := f64bits(h.F[d.rs1]), f64bits(h.F[d.rs2]), f64bits(h.F[rs3])
		if negA {
			c = -c
		}
		v, flags := fpu.Fma64(a, b, c, rm)
		if negResult {
			v = -v
		}
		h.accrue(flags)
		h.F[d.rd] = bitsf64(v)
	} else {
		a, b, c := f32bits(h.F[d.rs1]), f32bits(h.F[d.rs2]), f32bits(h.F[rs3])
		if negA {
			c = -c
		}
		v, flags := fpu.Fma32(a, b, c, rm)
		if negResult {
			v = -v
		}
		h.accrue(flags)
		h.F[d.rd] = bitsf32(v)
	}
	return nil
}

func (h *Hart) execOpFP(d decoded) *exception.Exception {
	switch d.funct7 {
	case funct7Add, funct7Add | 1:
		return h.binOpFP(d, fpu.Add32, fpu.Add64)
	case funct7Sub, funct7Sub | 1:
		return h.binOpFP(d, fpu.Sub32, fpu.Sub64)
	case funct7Mul, funct7Mul | 1:
		return h.binOpFP(d, fpu.Mul32, fpu.Mul64)
	case funct7Div, funct7Div | 1:
		return h.binOpFP(d, fpu.Div32, fpu.Div64)
	case funct7Sqrt:
		rm, exc := h.rm(d.funct3)
		if exc != nil {
			return exc
		}
		v, flags := fpu.Sqrt32(f32bits(h.F[d.rs1]), rm)
		h.accrue(flags)
		h.F[d.rd] = bitsf32(v)
		return nil
	case funct7SqrtD:
		rm, exc := h.rm(d.funct3)
		if exc != nil {
			return exc
		}
		v, flags := fpu.Sqrt64(f64bits(h.F[d.rs1]), rm)
		h.accrue(flags)
		h.F[d.rd] = bitsf64(v)
		return nil
	case funct7SgnjS:
		v, exc := fpu.Fsgnj32(f32bits(h.F[d.rs1]), f32bits(h.F[d.rs2]), fpu.SignFunct3(d.funct3))
		if exc != nil {
			return exc
		}
		h.F[d.rd] = bitsf32(v)
		return nil
	case funct7SgnjD:
		v, exc := fpu.Fsgnj64(f64bits(h.F[d.rs1]), f64bits(h.F[d.rs2]), fpu.SignFunct3(d.funct3))
		if exc != nil {
			return exc
		}
		h.F[d.rd] = bitsf64(v)
		return nil
	case funct7MinMaxS:
		a, b := f32bits(h.F[d.rs1]), f32bits(h.F[d.rs2])
		var v float32
		var flags fpu.Flags
		if d.funct3 == 0 {
			v, flags = fpu.Min32(a, b)
		} else {
			v, flags = fpu.Max32(a, b)
		}
		h.accrue(flags)
		h.F[d.rd] = bitsf32(v)
		return nil
	case funct7MinMaxD:
		a, b := f64bits(h.F[d.rs1]), f64bits(h.F[d.rs2])
		var v float64
		var flags fpu.Flags
		if d.funct3 == 0 {
			v, flags = fpu.Min64(a, b)
		} else {
			v, flags = fpu.Max64(a, b)
		}
		h.accrue(flags)
		h.F[d.rd] = bitsf64(v)
		return nil
	case funct7CmpS:
		return h.execCmp32(d)
	case funct7CmpD:
		return h.execCmp64(d)
	case funct7CvtWS:
		return h.execCvtToInt(d, false)
	case funct7CvtWD:
		return h.execCvtToInt(d, true)
	case funct7CvtSW:
		return h.execCvtFromInt(d, false)
	case funct7CvtDW:
		return h.execCvtFromInt(d, true)
	case funct7CvtSD:
		rm, exc := h.rm(d.funct3)
		if exc != nil {
			return exc
		}
		v, flags := fpu.CvtSD(f64bits(h.F[d.rs1]), rm)
		h.accrue(flags)
		h.F[d.rd] = bitsf32(v)
		return nil
	case funct7CvtDS:
		h.F[d.rd] = bitsf64(fpu.CvtDS(f32bits(h.F[d.rs1])))
		return nil
	case funct7MvXWOrClassS:
		if d.funct3 == 0b001 {
			h.setX(d.rd, fpu.Class32(f32bits(h.F[d.rs1])))
		} else {
			h.setX(d.rd, uint32(h.F[d.rs1]))
		}
		return nil
	case funct7MvXWOrClassD:
		if d.funct3 == 0b001 {
			h.setX(d.rd, fpu.Class64(f64bits(h.F[d.rs1])))
		} else {
			return illegalInstr(d) // no FMV.X.D in RV32D
		}
		return nil
	case funct7MvWX:
		h.F[d.rd] = uint64(h.X[d.rs1])
		return nil
	default:
		return illegalInstr(d)
	}
}

func (h *Hart) binOpFP(d decoded, op32 func(a, b float32, rm fpu.RoundingMode) (float32, fpu.Flags), op64 func(a, b float64, rm fpu.RoundingMode) (float64, fpu.Flags)) *exception.Exception {
	rm, exc := h.rm(d.funct3)
	if exc != nil {
		return exc
	}
	if d.funct7&1 != 0 {
		v, flags := op64(f64bits(h.F[d.rs1]), f64bits(h.F[d.rs2]), rm)
		h.accrue(flags)
		h.F[d.rd] = bitsf64(v)
	} else {
		v, flags := op32(f32bits(h.F[d.rs1]), f32bits(h.F[d.rs2]), rm)
		h.accrue(flags)
		h.F[d.rd] = bitsf32(v)
	}
	return nil
}

func (h *Hart) execCmp32(d decoded) *exception.Exception {
	a, b := f32bits(h.F[d.rs1]), f32bits(h.F[d.rs2])
	var result bool
	var flags fpu.Flags
	switch d.funct3 {
	case 0b010:
		result, flags = fpu.Feq32(a, b)
	case 0b001:
		result, flags = fpu.Flt32(a, b)
	case 0b000:
		result, flags = fpu.Fle32(a, b)
	default:
		return illegalInstr(d)
	}
	h.accrue(flags)
	h.setX(d.rd, boolToWord(result))
	return nil
}

func (h *Hart) execCmp64(d decoded) *exception.Exception {
	a, b := f64bits(h.F[d.rs1]), f64bits(h.F[d.rs2])
	var result bool
	var flags fpu.Flags
	switch d.funct3 {
	case 0b010:
		result, flags = fpu.Feq64(a, b)
	case 0b001:
		result, flags = fpu.Flt64(a, b)
	case 0b000:
		result, flags = fpu.Fle64(a, b)
	default:
		return illegalInstr(d)
	}
	h.accrue(flags)
	h.setX(d.rd, boolToWord(result))
	return nil
}

func (h *Hart) execCvtToInt(d decoded, double bool) *exception.Exception {
	rm, exc := h.rm(d.funct3)
	if exc != nil {
		return exc
	}
	unsigned := d.rs2AsFunct() == 1
	var flags fpu.Flags
	var result uint32
	if double {
		v := f64bits(h.F[d.rs1])
		if unsigned {
			var r uint32
			r, flags = fpu.CvtWUD(v, rm)
			result = r
		} else {
			var r int32
			r, flags = fpu.CvtWD(v, rm)
			result = uint32(r)
		}
	} else {
		v := f32bits(h.F[d.rs1])
		if unsigned {
			var r uint32
			r, flags = fpu.CvtWUS(v, rm)
			result = r
		} else {
			var r int32
			r, flags = fpu.CvtWS(v, rm)
			result = uint32(r)
		}
	}
	h.accrue(flags)
	h.setX(d.rd, result)
	return nil
}

func (h *Hart) execCvtFromInt(d decoded, double bool) *exception.Exception {
	rm, exc := h.rm(d.funct3)
	if exc != nil {
		return exc
	}
	unsigned := d.rs2AsFunct() == 1
	src := h.X[d.rs1]
	if double {
		var v float64
		if unsigned {
			v = fpu.CvtDWU(src)
		} else {
			v = fpu.CvtDW(int32(src))
		}
		h.F[d.rd] = bitsf64(v)
	} else {
		var v float32
		if unsigned {
			v = fpu.CvtSWU(src, rm)
		} else {
			v = fpu.CvtSW(int32(src), rm)
		}
		h.F[d.rd] = bitsf32(v)
	}
	return nil
}
