// Package trap implements the delegation routing and mode-transition
// state machine that the execute loop invokes whenever an instruction
// raises an architectural exception.
//
// Grounded on original_source/src/cpu/trap.rs (the per-mode epc/tvec/
// cause/mstatus-stack update) and the teacher's PSW push/pop idiom in
// emu/cpu/cpu_system.go (mutate a local copy, then write it back to
// the CSR file — corrected here per spec.md §9 Q2, which the original
// Rust occasionally skipped).
package trap

import (
	"log/slog"

	"github.com/rcornwell/rv32g/internal/csr"
	"github.com/rcornwell/rv32g/internal/exception"
)

// Mode is the current privilege level of the hart.
type Mode int

const (
	User Mode = iota
	Supervisor
	Machine
)

type targetCSRs struct {
	status, tvec, epc, cause, tval uint16
	pieBit, ieBit, ppBit           uint32
	ppWidth                        uint32
}

var machineCSRs = targetCSRs{
	status: csr.Mstatus, tvec: csr.Mtvec, epc: csr.Mepc, cause: csr.Mcause, tval: csr.Mtval,
	pieBit: csr.MstatusMPIE, ieBit: csr.MstatusMIE, ppBit: csr.MstatusMPP, ppWidth: 2,
}

var supervisorCSRs = targetCSRs{
	status: csr.Mstatus, tvec: csr.Stvec, epc: csr.Sepc, cause: csr.Scause, tval: csr.Stval,
	pieBit: csr.MstatusSPIE, ieBit: csr.MstatusSIE, ppBit: csr.MstatusSPP, ppWidth: 1,
}

var userCSRs = targetCSRs{
	status: csr.Mstatus, tvec: csr.Utvec, epc: csr.Uepc, cause: csr.Ucause, tval: csr.Utval,
	pieBit: csr.MstatusUPIE, ieBit: csr.MstatusUIE, ppBit: 0, ppWidth: 0,
}

// Target computes the mode a trap for exception code e, taken while
// executing in mode m, is delegated to (spec.md §4.3 delegation
// routing).
func Target(files *csr.File, m Mode, e exception.Code) Mode {
	medeleg := files.RawRead(csr.Medeleg)
	bit := uint32(1) << uint32(e)

	switch m {
	case User:
		if medeleg&bit != 0 {
			sedeleg := files.RawRead(csr.Sedeleg)
			if sedeleg&bit != 0 {
				return User
			}
			return Supervisor
		}
		return Machine
	case Supervisor:
		if medeleg&bit != 0 {
			return Supervisor
		}
		return Machine
	default:
		return Machine
	}
}

// Enter performs the mode transition of spec.md §4.3 steps 1-5: it
// records {t}epc/{t}cause/{t}tval, computes the new pc from {t}tvec,
// pushes the interrupt-enable stack and switches mode. pc is the
// value of the program counter AFTER the fetch increment (i.e. the
// trap unit subtracts 4 to recover the faulting instruction address),
// matching the "PC has already been advanced by 4" invariant.
func Enter(files *csr.File, curMode Mode, pc uint32, e *exception.Exception) (newPC uint32, newMode Mode) {
	target := Target(files, curMode, e.Code())
	t := targetCSRsFor(target)

	faultPC := pc - 4
	files.RawWrite(t.epc, faultPC)

	tvec := files.RawRead(t.tvec)
	switch tvec & 0b11 {
	case 0:
		newPC = tvec &^ 0b11
	case 1:
		newPC = (tvec &^ 0b11) + 4*uint32(e.Code())
	default:
		panic("trap: unknown tvec MODE")
	}

	files.RawWrite(t.cause, uint32(e.Code()))
	files.RawWrite(t.tval, e.Tval())

	status := files.RawRead(t.status)
	ie := csr.ReadBit(status, t.ieBit)
	csr.WriteBit(&status, t.pieBit, ie)
	csr.WriteBit(&status, t.ieBit, 0)
	if t.ppWidth > 0 {
		pp := uint32(curMode)
		if curMode == Machine {
			pp = 3 // xPP encodes Machine as 3, which MRET decodes below
		}
		csr.WriteBits(&status, t.ppBit, t.ppBit+t.ppWidth-1, pp)
	}
	files.RawWrite(t.status, status)

	slog.Debug("trap entry", "code", e.Code(), "fromMode", curMode, "toMode", target, "faultPC", faultPC, "newPC", newPC)

	return newPC, target
}

func targetCSRsFor(m Mode) targetCSRs {
	switch m {
	case Machine:
		return machineCSRs
	case Supervisor:
		return supervisorCSRs
	default:
		return userCSRs
	}
}

// MRET performs the mret instruction's mode transition (spec.md
// §4.3): legal only from Machine mode, restores pc from mepc,
// computes the new mode from mstatus.MPP, pushes MIE<-MPIE, sets
// MPIE=1 and MPP=U, and persists the mutated mstatus.
func MRET(files *csr.File, curMode Mode) (newPC uint32, newMode Mode, err *exception.Exception) {
	if curMode != Machine {
		return 0, curMode, exception.New(exception.IllegalInstruction)
	}

	newPC = files.RawRead(csr.Mepc)
	status := files.RawRead(csr.Mstatus)

	switch csr.ReadBits(status, csr.MstatusMPP, csr.MstatusMPP+1) {
	case 0:
		newMode = User
	case 1:
		newMode = Supervisor
	case 3:
		newMode = Machine
	default:
		panic("trap: unknown mstatus.MPP")
	}

	mpie := csr.ReadBit(status, csr.MstatusMPIE)
	csr.WriteBit(&status, csr.MstatusMIE, mpie)
	csr.WriteBit(&status, csr.MstatusMPIE, 1)
	csr.WriteBits(&status, csr.MstatusMPP, csr.MstatusMPP+1, uint32(User))
	files.RawWrite(csr.Mstatus, status)

	return newPC, newMode, nil
}

// SRET performs the sret instruction's mode transition: illegal if
// mstatus.TSR is set or the current mode is User.
func SRET(files *csr.File, curMode Mode) (newPC uint32, newMode Mode, err *exception.Exception) {
	status := files.RawRead(csr.Mstatus)
	if csr.ReadBit(status, csr.MstatusTSR) != 0 {
		return 0, curMode, exception.New(exception.IllegalInstruction)
	}
	if curMode == User {
		return 0, curMode, exception.New(exception.IllegalInstruction)
	}

	newPC = files.RawRead(csr.Sepc)
	switch csr.ReadBit(status, csr.MstatusSPP) {
	case 0:
		newMode = User
	case 1:
		newMode = Supervisor
	}

	spie := csr.ReadBit(status, csr.MstatusSPIE)
	csr.WriteBit(&status, csr.MstatusSIE, spie)
	csr.WriteBit(&status, csr.MstatusSPIE, 1)
	csr.WriteBit(&status, csr.MstatusSPP, uint32(User))
	files.RawWrite(csr.Mstatus, status)

	return newPC, newMode, nil
}
