// Package exception defines the architectural trap codes raised by the
// memory, CSR, MMU and execute layers of the RV32G core.
//
// These are not Go errors in the host-failure sense: they are consumed
// by the trap unit, which mutates hart state and resumes the fetch loop.
package exception

import "fmt"

// Code is a RISC-V synchronous exception code, as written to
// {m,s,u}cause on trap entry.
type Code uint32

const (
	InstructionAddressMisaligned Code = 0
	InstructionAccessFault       Code = 1
	IllegalInstruction           Code = 2
	Breakpoint                   Code = 3
	LoadAddressMisaligned        Code = 4
	LoadAccessFault              Code = 5
	StoreAMOAddressMisaligned    Code = 6
	StoreAMOAccessFault          Code = 7
	EnvironmentCallFromUMode     Code = 8
	EnvironmentCallFromSMode     Code = 9
	EnvironmentCallFromMMode     Code = 11
	InstructionPageFault         Code = 12
	LoadPageFault                Code = 13
	StoreAMOPageFault            Code = 15
)

var names = map[Code]string{
	InstructionAddressMisaligned: "instruction address misaligned",
	InstructionAccessFault:       "instruction access fault",
	IllegalInstruction:           "illegal instruction",
	Breakpoint:                   "breakpoint",
	LoadAddressMisaligned:        "load address misaligned",
	LoadAccessFault:              "load access fault",
	StoreAMOAddressMisaligned:    "store/amo address misaligned",
	StoreAMOAccessFault:          "store/amo access fault",
	EnvironmentCallFromUMode:     "environment call from U-mode",
	EnvironmentCallFromSMode:     "environment call from S-mode",
	EnvironmentCallFromMMode:     "environment call from M-mode",
	InstructionPageFault:         "instruction page fault",
	LoadPageFault:                "load page fault",
	StoreAMOPageFault:            "store/amo page fault",
}

// Exception is an architectural trap: a value returned from fetch,
// decode, execute, CSR access or the MMU walker that the trap unit
// consumes. It is never meant to abort the simulator.
type Exception struct {
	code Code
	// tval is the value that should be captured into {m,s,u}tval on
	// trap entry: the faulting instruction word for IllegalInstruction,
	// the faulting virtual address for misaligned/access/page faults.
	tval uint32
}

// New returns an Exception of the given code with no associated tval.
func New(code Code) *Exception {
	return &Exception{code: code}
}

// WithTval returns an Exception of the given code carrying an
// explicit tval payload (faulting address or instruction word).
func WithTval(code Code, tval uint32) *Exception {
	return &Exception{code: code, tval: tval}
}

// Code returns the numeric exception code for {m,s,u}cause.
func (e *Exception) Code() Code { return e.code }

// Tval returns the value that should be latched into {m,s,u}tval.
func (e *Exception) Tval() uint32 { return e.tval }

func (e *Exception) Error() string {
	if name, ok := names[e.code]; ok {
		return fmt.Sprintf("exception: %s", name)
	}
	return fmt.Sprintf("exception: code %d", e.code)
}
