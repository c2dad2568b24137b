package csr

import (
	"testing"

	"github.com/rcornwell/rv32g/internal/exception"
)

func TestSstatusAliasesMstatus(t *testing.T) {
	f := New()
	if err := f.Write(Mstatus, 0x1234); err != nil {
		t.Fatalf("write mstatus: %v", err)
	}
	v, err := f.Read(Sstatus)
	if err != nil {
		t.Fatalf("read sstatus: %v", err)
	}
	if v != 0x1234 {
		t.Errorf("sstatus = %#x, want %#x", v, 0x1234)
	}

	if err := f.Write(Ustatus, 0x55); err != nil {
		t.Fatalf("write ustatus: %v", err)
	}
	v, _ = f.Read(Mstatus)
	if v != 0x55 {
		t.Errorf("mstatus after ustatus write = %#x, want %#x", v, 0x55)
	}
}

func TestMtvecModePreservation(t *testing.T) {
	f := New()
	if err := f.Write(Mtvec, 0x1000); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Write(Mtvec, 0x2000|0b10); err != nil {
		t.Fatalf("write: %v", err)
	}
	v, _ := f.Read(Mtvec)
	if v != 0x2000 {
		t.Errorf("mtvec = %#x, want BASE preserved at %#x with MODE discarded", v, 0x2000)
	}

	// Direct mode (0) and vectored (1) store verbatim.
	if err := f.Write(Mtvec, 0x3001); err != nil {
		t.Fatalf("write: %v", err)
	}
	v, _ = f.Read(Mtvec)
	if v != 0x3001 {
		t.Errorf("mtvec = %#x, want %#x", v, 0x3001)
	}
}

func TestFflagsFrmSubFields(t *testing.T) {
	f := New()
	if err := f.Write(Fcsr, 0xFF); err != nil {
		t.Fatalf("write: %v", err)
	}
	flags, _ := f.Read(Fflags)
	if flags != 0x1F {
		t.Errorf("fflags = %#x, want %#x", flags, 0x1F)
	}
	rm, _ := f.Read(Frm)
	if rm != 0x7 {
		t.Errorf("frm = %#x, want %#x", rm, 0x7)
	}

	// Writing fflags must not disturb frm.
	if err := f.Write(Frm, 0x2); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := f.Write(Fflags, 0x0); err != nil {
		t.Fatalf("write: %v", err)
	}
	rm, _ = f.Read(Frm)
	if rm != 0x2 {
		t.Errorf("frm disturbed by fflags write: got %#x, want %#x", rm, 0x2)
	}
}

func TestUnimplementedCSRIsIllegal(t *testing.T) {
	f := New()
	_, err := f.Read(0x7FF)
	if err == nil || err.Code() != exception.IllegalInstruction {
		t.Errorf("expected IllegalInstruction, got %v", err)
	}
	if err := f.Write(0x7FF, 1); err == nil || err.Code() != exception.IllegalInstruction {
		t.Errorf("expected IllegalInstruction, got %v", err)
	}
}

func TestMhartidHardwiredZero(t *testing.T) {
	f := New()
	v, err := f.Read(Mhartid)
	if err != nil || v != 0 {
		t.Errorf("mhartid = %v, %v, want 0, nil", v, err)
	}
	if err := f.Write(Mhartid, 7); err != nil {
		t.Fatalf("write: %v", err)
	}
	v, _ = f.Read(Mhartid)
	if v != 0 {
		t.Errorf("mhartid writable, got %#x", v)
	}
}

func TestBitRangeHelpers(t *testing.T) {
	var reg uint32 = 0
	WriteBits(&reg, 11, 12, 0b11)
	if got := ReadBits(reg, 11, 12); got != 0b11 {
		t.Errorf("ReadBits = %#x, want %#x", got, 0b11)
	}
	WriteBit(&reg, 3, 1)
	if got := ReadBit(reg, 3); got != 1 {
		t.Errorf("ReadBit = %d, want 1", got)
	}
	WriteBit(&reg, 3, 0)
	if got := ReadBit(reg, 3); got != 0 {
		t.Errorf("ReadBit = %d, want 0", got)
	}
}
