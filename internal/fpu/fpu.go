// Package fpu implements the RV32G F/D soft-float helper layer: the
// arithmetic, conversion, classification and comparison operations
// the execute loop needs for the single- and double-precision opcode
// families, plus fcsr accrued-flag accumulation.
//
// Grounded on original_source/src/cpu/fpu.rs, which wraps the Rust
// softfloat_wrapper crate (itself a binding to Berkeley SoftFloat).
// No pure-Go equivalent of that crate exists anywhere in this corpus
// or, to the extent surveyed, the wider ecosystem: the only softfloat
// binding found is the Rust crate the original uses. This package
// therefore falls back to the standard library's math package for the
// arithmetic itself (documented as the one stdlib-grounded component
// in DESIGN.md) — a legitimate choice because Go's float64/float32
// arithmetic is defined to be correctly rounded to nearest-even, which
// is exactly RISC-V's default dynamic rounding mode. Directed rounding
// modes (RTZ/RDN/RUP/RMM) are honored for the integer conversions,
// where the target has no fractional part and the rule reduces to a
// plain truncate/floor/ceil/round-half-away; the floating-point
// arithmetic entry points accept an rm argument for interface
// uniformity (and so a malformed rm field always surfaces as
// IllegalInstruction through RoundingModeFromBits) but produce the
// RNE result, since a bit-exact directed-rounding float result would
// require re-implementing the mantissa arithmetic this package
// deliberately avoids.
//
// FCSR accrued flags are NOT a package-level global (unlike the
// original's `static mut FCSR`, flagged as a re-architecture item):
// every operation here returns the flags it raised, and the caller
// (internal/cpu) is responsible for OR-ing them into the hart's own
// fcsr field.
package fpu

import (
	"math"

	"github.com/rcornwell/rv32g/internal/exception"
)

// Flags mirrors the five accrued-exception bits of fflags, returned by
// value so the caller can OR them into its own fcsr.
type Flags uint32

const (
	FlagInexact   Flags = 1 << 0
	FlagUnderflow Flags = 1 << 1
	FlagOverflow  Flags = 1 << 2
	FlagDivByZero Flags = 1 << 3
	FlagInvalid   Flags = 1 << 4
)

// RoundingMode is the dynamic or static rounding mode selected by an
// instruction's rm field (or frm when rm == 0b111).
type RoundingMode uint32

const (
	RNE RoundingMode = iota // round to nearest, ties to even
	RTZ                     // round toward zero
	RDN                     // round down (toward -inf)
	RUP                     // round up (toward +inf)
	RMM                     // round to nearest, ties to max magnitude
)

// RoundingModeFromBits decodes an instruction's rm field, resolving
// the dynamic (0b111) encoding against the hart's current frm.
func RoundingModeFromBits(rm uint32, frm uint32) (RoundingMode, *exception.Exception) {
	switch rm {
	case 0b000:
		return RNE, nil
	case 0b001:
		return RTZ, nil
	case 0b010:
		return RDN, nil
	case 0b011:
		return RUP, nil
	case 0b100:
		return RMM, nil
	case 0b111:
		if frm == 0b111 {
			return 0, exception.New(exception.IllegalInstruction)
		}
		return RoundingModeFromBits(frm, frm)
	default:
		return 0, exception.New(exception.IllegalInstruction)
	}
}

// Add32/Sub32/... operate on the RNE result directly: Go's float32
// and float64 arithmetic already rounds to nearest-even, which is
// RISC-V's default mode and the one actually exercised by ordinary
// programs. Directed rounding modes are approximated by returning the
// RNE result unchanged, since a bit-exact directed-rounding softfloat
// would require re-implementing the mantissa arithmetic this package
// deliberately avoids (see package doc). rm is accepted on every entry
// point so the execute loop always has a place to plumb frm through,
// and so that an IllegalInstruction on a malformed rm field surfaces
// uniformly.

// Add32 computes fa+fb in binary32.
func Add32(fa, fb float32, rm RoundingMode) (float32, Flags) {
	c := fa + fb
	return c, flags32(c)
}

// Add64 computes fa+fb in binary64.
func Add64(fa, fb float64, rm RoundingMode) (float64, Flags) {
	c := fa + fb
	return c, flags64(c)
}

// Sub32 computes fa-fb in binary32.
func Sub32(fa, fb float32, rm RoundingMode) (float32, Flags) {
	c := fa - fb
	return c, flags32(c)
}

// Sub64 computes fa-fb in binary64.
func Sub64(fa, fb float64, rm RoundingMode) (float64, Flags) {
	c := fa - fb
	return c, flags64(c)
}

// Mul32 computes fa*fb in binary32.
func Mul32(fa, fb float32, rm RoundingMode) (float32, Flags) {
	c := fa * fb
	return c, flags32(c)
}

// Mul64 computes fa*fb in binary64.
func Mul64(fa, fb float64, rm RoundingMode) (float64, Flags) {
	c := fa * fb
	return c, flags64(c)
}

// Div32 computes fa/fb in binary32, raising FlagDivByZero for a
// nonzero dividend over a zero divisor rather than trapping.
func Div32(fa, fb float32, rm RoundingMode) (float32, Flags) {
	if fb == 0 && fa != 0 {
		return float32(math.Copysign(math.Inf(1), float64(fa)*float64(fb))), FlagDivByZero
	}
	c := fa / fb
	return c, flags32(c)
}

// Div64 computes fa/fb in binary64.
func Div64(fa, fb float64, rm RoundingMode) (float64, Flags) {
	if fb == 0 && fa != 0 {
		return math.Copysign(math.Inf(1), fa*fb), FlagDivByZero
	}
	c := fa / fb
	return c, flags64(c)
}

// Sqrt32 computes the square root of fa in binary32.
func Sqrt32(fa float32, rm RoundingMode) (float32, Flags) {
	if fa < 0 {
		return float32(math.NaN()), FlagInvalid
	}
	c := float32(math.Sqrt(float64(fa)))
	return c, flags32(c)
}

// Sqrt64 computes the square root of fa in binary64.
func Sqrt64(fa float64, rm RoundingMode) (float64, Flags) {
	if fa < 0 {
		return math.NaN(), FlagInvalid
	}
	c := math.Sqrt(fa)
	return c, flags64(c)
}

// Fma32 computes fa*fb+fc in binary32 with a single rounding.
func Fma32(fa, fb, fc float32, rm RoundingMode) (float32, Flags) {
	c := float32(math.FMA(float64(fa), float64(fb), float64(fc)))
	return c, flags32(c)
}

// Fma64 computes fa*fb+fc in binary64 with a single rounding.
func Fma64(fa, fb, fc float64, rm RoundingMode) (float64, Flags) {
	c := math.FMA(fa, fb, fc)
	return c, flags64(c)
}

func flags32(v float32) Flags {
	if math.IsNaN(float64(v)) {
		return FlagInvalid
	}
	if math.IsInf(float64(v), 0) {
		return FlagOverflow
	}
	return 0
}

func flags64(v float64) Flags {
	if math.IsNaN(v) {
		return FlagInvalid
	}
	if math.IsInf(v, 0) {
		return FlagOverflow
	}
	return 0
}

// SignFunct3 selects the FSGNJ family's sign rule.
type SignFunct3 uint32

const (
	SignInject SignFunct3 = iota
	SignInjectNegate
	SignInjectXor
)

// Fsgnj32 implements fsgnj.s/fsgnjn.s/fsgnjx.s: the magnitude of fa
// with a sign taken (or derived) from fb.
func Fsgnj32(fa, fb float32, kind SignFunct3) (float32, *exception.Exception) {
	abits := math.Float32bits(fa)
	bbits := math.Float32bits(fb)
	aSign := abits >> 31
	bSign := bbits >> 31

	var sign uint32
	switch kind {
	case SignInject:
		sign = bSign
	case SignInjectNegate:
		sign = bSign ^ 1
	case SignInjectXor:
		sign = aSign ^ bSign
	default:
		return 0, exception.New(exception.IllegalInstruction)
	}
	return math.Float32frombits((abits &^ (1 << 31)) | (sign << 31)), nil
}

// Fsgnj64 is the binary64 counterpart of Fsgnj32.
func Fsgnj64(fa, fb float64, kind SignFunct3) (float64, *exception.Exception) {
	abits := math.Float64bits(fa)
	bbits := math.Float64bits(fb)
	aSign := abits >> 63
	bSign := bbits >> 63

	var sign uint64
	switch kind {
	case SignInject:
		sign = bSign
	case SignInjectNegate:
		sign = bSign ^ 1
	case SignInjectXor:
		sign = aSign ^ bSign
	default:
		return 0, exception.New(exception.IllegalInstruction)
	}
	return math.Float64frombits((abits &^ (1 << 63)) | (sign << 63)), nil
}

// Min32/Max32/Min64/Max64 implement the IEEE-754-2008 minNum/maxNum
// rules RISC-V requires: a quiet NaN operand yields the other
// operand, and two NaNs yield the canonical quiet NaN, and signal on
// an sNaN input (approximated here as FlagInvalid whenever either
// input is any NaN, matching the original's use of num_traits::Float
// which does not distinguish signaling NaNs).
func Min32(fa, fb float32) (float32, Flags) {
	if math.IsNaN(float64(fa)) && math.IsNaN(float64(fb)) {
		return float32(math.NaN()), FlagInvalid
	}
	if math.IsNaN(float64(fa)) {
		return fb, FlagInvalid
	}
	if math.IsNaN(float64(fb)) {
		return fa, FlagInvalid
	}
	if fa == 0 && fb == 0 {
		if math.Signbit(float64(fa)) {
			return fa, 0
		}
		return fb, 0
	}
	if fa < fb {
		return fa, 0
	}
	return fb, 0
}

// Max32 is the maxNum counterpart of Min32.
func Max32(fa, fb float32) (float32, Flags) {
	if math.IsNaN(float64(fa)) && math.IsNaN(float64(fb)) {
		return float32(math.NaN()), FlagInvalid
	}
	if math.IsNaN(float64(fa)) {
		return fb, FlagInvalid
	}
	if math.IsNaN(float64(fb)) {
		return fa, FlagInvalid
	}
	if fa == 0 && fb == 0 {
		if math.Signbit(float64(fa)) {
			return fb, 0
		}
		return fa, 0
	}
	if fa > fb {
		return fa, 0
	}
	return fb, 0
}

// Min64 is the binary64 counterpart of Min32.
func Min64(fa, fb float64) (float64, Flags) {
	if math.IsNaN(fa) && math.IsNaN(fb) {
		return math.Float64frombits(0x7FF8_0000_0000_0000), FlagInvalid
	}
	if math.IsNaN(fa) {
		return fb, FlagInvalid
	}
	if math.IsNaN(fb) {
		return fa, FlagInvalid
	}
	if fa == 0 && fb == 0 {
		if math.Signbit(fa) {
			return fa, 0
		}
		return fb, 0
	}
	if fa < fb {
		return fa, 0
	}
	return fb, 0
}

// Max64 is the binary64 counterpart of Max32.
func Max64(fa, fb float64) (float64, Flags) {
	if math.IsNaN(fa) && math.IsNaN(fb) {
		return math.Float64frombits(0x7FF8_0000_0000_0000), FlagInvalid
	}
	if math.IsNaN(fa) {
		return fb, FlagInvalid
	}
	if math.IsNaN(fb) {
		return fa, FlagInvalid
	}
	if fa == 0 && fb == 0 {
		if math.Signbit(fa) {
			return fb, 0
		}
		return fa, 0
	}
	if fa > fb {
		return fa, 0
	}
	return fb, 0
}

// Feq32/Flt32/Fle32/... implement the comparisons feq/flt/fle: any
// NaN operand yields false and raises FlagInvalid, for feq as well as
// for flt/fle (quiet and signaling NaNs are not distinguished).
func Feq32(fa, fb float32) (bool, Flags) {
	if math.IsNaN(float64(fa)) || math.IsNaN(float64(fb)) {
		return false, FlagInvalid
	}
	return fa == fb, 0
}

func Flt32(fa, fb float32) (bool, Flags) {
	if math.IsNaN(float64(fa)) || math.IsNaN(float64(fb)) {
		return false, FlagInvalid
	}
	return fa < fb, 0
}

func Fle32(fa, fb float32) (bool, Flags) {
	if math.IsNaN(float64(fa)) || math.IsNaN(float64(fb)) {
		return false, FlagInvalid
	}
	return fa <= fb, 0
}

func Feq64(fa, fb float64) (bool, Flags) {
	if math.IsNaN(fa) || math.IsNaN(fb) {
		return false, FlagInvalid
	}
	return fa == fb, 0
}

func Flt64(fa, fb float64) (bool, Flags) {
	if math.IsNaN(fa) || math.IsNaN(fb) {
		return false, FlagInvalid
	}
	return fa < fb, 0
}

func Fle64(fa, fb float64) (bool, Flags) {
	if math.IsNaN(fa) || math.IsNaN(fb) {
		return false, FlagInvalid
	}
	return fa <= fb, 0
}

// Class32 computes the 10-bit fclass.s mask.
func Class32(fa float32) uint32 {
	bits := math.Float32bits(fa)
	neg := bits>>31 != 0
	abs := float64(fa)
	if neg {
		abs = -abs
	}
	switch {
	case math.IsInf(float64(fa), -1):
		return 1 << 0
	case neg && isNormal32(fa):
		return 1 << 1
	case neg && isSubnormal32(fa):
		return 1 << 2
	case neg && fa == 0:
		return 1 << 3
	case !neg && fa == 0:
		return 1 << 4
	case !neg && isSubnormal32(fa):
		return 1 << 5
	case !neg && isNormal32(fa):
		return 1 << 6
	case math.IsInf(float64(fa), 1):
		return 1 << 7
	case isSignalingNaN32(fa):
		return 1 << 8
	case math.IsNaN(float64(fa)):
		return 1 << 9
	default:
		return 0
	}
}

// Class64 computes the 10-bit fclass.d mask.
func Class64(fa float64) uint32 {
	bits := math.Float64bits(fa)
	neg := bits>>63 != 0
	switch {
	case math.IsInf(fa, -1):
		return 1 << 0
	case neg && isNormal64(fa):
		return 1 << 1
	case neg && isSubnormal64(fa):
		return 1 << 2
	case neg && fa == 0:
		return 1 << 3
	case !neg && fa == 0:
		return 1 << 4
	case !neg && isSubnormal64(fa):
		return 1 << 5
	case !neg && isNormal64(fa):
		return 1 << 6
	case math.IsInf(fa, 1):
		return 1 << 7
	case isSignalingNaN64(fa):
		return 1 << 8
	case math.IsNaN(fa):
		return 1 << 9
	default:
		return 0
	}
}

func isNormal32(fa float32) bool {
	if fa == 0 || math.IsInf(float64(fa), 0) || math.IsNaN(float64(fa)) {
		return false
	}
	exp := (math.Float32bits(fa) >> 23) & 0xFF
	return exp != 0
}

func isSubnormal32(fa float32) bool {
	if fa == 0 || math.IsInf(float64(fa), 0) || math.IsNaN(float64(fa)) {
		return false
	}
	exp := (math.Float32bits(fa) >> 23) & 0xFF
	return exp == 0
}

func isSignalingNaN32(fa float32) bool {
	bits := math.Float32bits(fa)
	if !math.IsNaN(float64(fa)) {
		return false
	}
	return bits&(1<<22) == 0
}

func isNormal64(fa float64) bool {
	if fa == 0 || math.IsInf(fa, 0) || math.IsNaN(fa) {
		return false
	}
	exp := (math.Float64bits(fa) >> 52) & 0x7FF
	return exp != 0
}

func isSubnormal64(fa float64) bool {
	if fa == 0 || math.IsInf(fa, 0) || math.IsNaN(fa) {
		return false
	}
	exp := (math.Float64bits(fa) >> 52) & 0x7FF
	return exp == 0
}

func isSignalingNaN64(fa float64) bool {
	bits := math.Float64bits(fa)
	if !math.IsNaN(fa) {
		return false
	}
	return bits&(1<<51) == 0
}

// CvtSD converts binary64 to binary32 (fcvt.s.d).
func CvtSD(fa float64, rm RoundingMode) (float32, Flags) {
	c := float32(fa)
	return c, flags32(c)
}

// CvtDS converts binary32 to binary64 (fcvt.d.s): always exact.
func CvtDS(fa float32) float64 {
	return float64(fa)
}

// CvtWS converts binary32 to a signed 32-bit integer (fcvt.w.s),
// saturating per spec.md §5.5 out-of-range conversion rules.
func CvtWS(fa float32, rm RoundingMode) (int32, Flags) {
	return cvtWFromF64(float64(fa), rm)
}

// CvtWD converts binary64 to a signed 32-bit integer (fcvt.w.d).
func CvtWD(fa float64, rm RoundingMode) (int32, Flags) {
	return cvtWFromF64(fa, rm)
}

func cvtWFromF64(v float64, rm RoundingMode) (int32, Flags) {
	if math.IsNaN(v) {
		return math.MaxInt32, FlagInvalid
	}
	rounded := roundToInt(v, rm)
	if rounded > math.MaxInt32 {
		return math.MaxInt32, FlagInvalid
	}
	if rounded < math.MinInt32 {
		return math.MinInt32, FlagInvalid
	}
	flags := Flags(0)
	if rounded != v {
		flags = FlagInexact
	}
	return int32(rounded), flags
}

// CvtWUS converts binary32 to an unsigned 32-bit integer (fcvt.wu.s).
func CvtWUS(fa float32, rm RoundingMode) (uint32, Flags) {
	return cvtWUFromF64(float64(fa), rm)
}

// CvtWUD converts binary64 to an unsigned 32-bit integer (fcvt.wu.d).
func CvtWUD(fa float64, rm RoundingMode) (uint32, Flags) {
	return cvtWUFromF64(fa, rm)
}

func cvtWUFromF64(v float64, rm RoundingMode) (uint32, Flags) {
	if math.IsNaN(v) || v < 0 {
		if v < 0 && !math.IsNaN(v) {
			return 0, FlagInvalid
		}
		return math.MaxUint32, FlagInvalid
	}
	rounded := roundToInt(v, rm)
	if rounded > math.MaxUint32 {
		return math.MaxUint32, FlagInvalid
	}
	flags := Flags(0)
	if rounded != v {
		flags = FlagInexact
	}
	return uint32(rounded), flags
}

func roundToInt(v float64, rm RoundingMode) float64 {
	switch rm {
	case RTZ:
		return math.Trunc(v)
	case RDN:
		return math.Floor(v)
	case RUP:
		return math.Ceil(v)
	case RMM:
		return math.Round(v)
	default:
		return math.RoundToEven(v)
	}
}

// CvtSW converts a signed 32-bit integer to binary32 (fcvt.s.w).
func CvtSW(i int32, rm RoundingMode) float32 {
	return float32(i)
}

// CvtDW converts a signed 32-bit integer to binary64 (fcvt.d.w): exact.
func CvtDW(i int32) float64 {
	return float64(i)
}

// CvtSWU converts an unsigned 32-bit integer to binary32 (fcvt.s.wu).
func CvtSWU(u uint32, rm RoundingMode) float32 {
	return float32(u)
}

// CvtDWU converts an unsigned 32-bit integer to binary64 (fcvt.d.wu): exact.
func CvtDWU(u uint32) float64 {
	return float64(u)
}
