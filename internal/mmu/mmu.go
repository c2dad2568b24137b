// Package mmu implements the Sv32 two-level page-table walker used to
// translate virtual addresses for fetch/load/store when satp enables
// paging.
//
// Grounded on original_source/src/cpu/vm.rs (walkpgdir: the same
// PDE/PTE fields, the same permission-check order) and on the
// teacher's DAT field naming in emu/cpu/cpudefs.go (pageShift,
// pageMask, segAddr and friends) for the style of named masks over
// bare shifts.
package mmu

import (
	"log/slog"

	"github.com/rcornwell/rv32g/internal/csr"
	"github.com/rcornwell/rv32g/internal/exception"
	"github.com/rcornwell/rv32g/internal/memory"
)

const (
	satpModeBit = 0x8000_0000
	satpPPNMask = 0x003F_FFFF

	pteV = 0x0000_0001
	pteR = 0x0000_0002
	pteW = 0x0000_0004
	pteX = 0x0000_0008
	pteU = 0x0000_0010
	ptePPNShift = 10
)

// Mode identifies the privilege level the walk is performed on behalf
// of, needed for the U-bit and SUM permission checks.
type Mode int

const (
	User Mode = iota
	Supervisor
	Machine
)

func pageFault(k memory.Kind, va uint32) *exception.Exception {
	slog.Debug("mmu walk failed", "kind", k, "va", va)
	switch k {
	case memory.Fetch:
		return exception.WithTval(exception.InstructionPageFault, va)
	case memory.Store:
		return exception.WithTval(exception.StoreAMOPageFault, va)
	default:
		return exception.WithTval(exception.LoadPageFault, va)
	}
}

// Enabled reports whether satp.MODE selects Sv32 paging.
func Enabled(satp uint32) bool {
	return satp&satpModeBit != 0
}

// Translate walks the Sv32 page table for virtual address va, given
// the current satp and mstatus (for the SUM bit) and the current
// privilege mode, returning the physical address for k-kind access.
func Translate(mem *memory.Memory, satpVal, mstatusVal uint32, mode Mode, va uint32, k memory.Kind) (uint32, *exception.Exception) {
	if !Enabled(satpVal) {
		return va, nil
	}

	rootPPN := satpVal & satpPPNMask
	vpn1 := csr.ReadBits(va, 22, 31)
	pdePA := (rootPPN << 12) + vpn1*4
	pde, err := mem.Read32(pdePA)
	if err != nil {
		return 0, pageFault(k, va)
	}
	if pde&pteV == 0 {
		return 0, pageFault(k, va)
	}
	// A zero R/W/X means this is a pointer to the next level; this
	// emulator does not support Sv32 superpages, so a leaf at this
	// level is a fault (spec.md §4.4 step 2).
	if pde&(pteR|pteW|pteX) != 0 {
		return 0, pageFault(k, va)
	}

	pdePPN := pde >> ptePPNShift
	vpn0 := csr.ReadBits(va, 12, 21)
	ptePA := (pdePPN << 12) + vpn0*4
	pte, err := mem.Read32(ptePA)
	if err != nil {
		return 0, pageFault(k, va)
	}
	if pte&pteV == 0 {
		return 0, pageFault(k, va)
	}

	if pte&pteU != 0 && mode == Supervisor && csr.ReadBit(mstatusVal, csr.MstatusSUM) == 0 {
		return 0, pageFault(k, va)
	}
	if pte&pteU == 0 && mode == User {
		return 0, pageFault(k, va)
	}

	switch k {
	case memory.Load:
		if pte&pteR == 0 {
			return 0, pageFault(k, va)
		}
	case memory.Store:
		if pte&pteW == 0 {
			return 0, pageFault(k, va)
		}
	case memory.Fetch:
		if pte&pteX == 0 || pte&pteR == 0 {
			return 0, pageFault(k, va)
		}
	}

	ptePPN := pte >> ptePPNShift
	pageOffset := csr.ReadBits(va, 0, 11)
	return (ptePPN << 12) + pageOffset, nil
}
