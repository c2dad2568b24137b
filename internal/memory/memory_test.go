package memory

import (
	"testing"

	"github.com/rcornwell/rv32g/internal/exception"
)

func TestReadWriteRoundTrip(t *testing.T) {
	m := New()

	if err := m.Write32(0x1000, 0xDEADBEEF); err != nil {
		t.Fatalf("Write32 failed: %v", err)
	}
	v, err := m.Read32(0x1000)
	if err != nil {
		t.Fatalf("Read32 failed: %v", err)
	}
	if v != 0xDEADBEEF {
		t.Errorf("Read32 got %#08x, want %#08x", v, 0xDEADBEEF)
	}

	lo, err := m.Read16(0x1000)
	if err != nil {
		t.Fatalf("Read16 failed: %v", err)
	}
	if lo != 0xBEEF {
		t.Errorf("Read16 low half got %#04x, want %#04x", lo, 0xBEEF)
	}

	b0, err := m.Read8(0x1000)
	if err != nil {
		t.Fatalf("Read8 failed: %v", err)
	}
	if b0 != 0xEF {
		t.Errorf("Read8 got %#02x, want %#02x", b0, 0xEF)
	}
}

func TestWrite64RoundTrip(t *testing.T) {
	m := New()
	if err := m.Write64(0x2000, 0x0102030405060708); err != nil {
		t.Fatalf("Write64 failed: %v", err)
	}
	v, err := m.Read64(0x2000)
	if err != nil {
		t.Fatalf("Read64 failed: %v", err)
	}
	if v != 0x0102030405060708 {
		t.Errorf("Read64 got %#016x, want %#016x", v, 0x0102030405060708)
	}
}

func TestUnalignedAccessFaults(t *testing.T) {
	m := New()
	_, err := m.Read32(0x1001)
	if err == nil {
		t.Fatal("expected misaligned load to fail")
	}
	if err.Code() != exception.LoadAddressMisaligned {
		t.Errorf("got code %d, want LoadAddressMisaligned", err.Code())
	}

	err2 := m.Write16(0x1001, 0xABCD)
	if err2 == nil || err2.Code() != exception.StoreAMOAddressMisaligned {
		t.Errorf("expected StoreAMOAddressMisaligned, got %v", err2)
	}
}

func TestOutOfBoundsFaults(t *testing.T) {
	m := New()
	_, err := m.Fetch(Size - 2)
	if err == nil {
		t.Fatal("expected fetch past end of RAM to fail")
	}
	if err.Code() != exception.InstructionAddressMisaligned && err.Code() != exception.InstructionAccessFault {
		t.Errorf("unexpected code %d", err.Code())
	}

	_, err2 := m.Read8(Size)
	if err2 == nil || err2.Code() != exception.LoadAccessFault {
		t.Errorf("expected LoadAccessFault at end of RAM, got %v", err2)
	}
}

func TestFetchOnlyRequiresHalfwordAlignment(t *testing.T) {
	m := New()
	// 0x1002 is not word-aligned, so the word is stored as two halfwords.
	if err := m.Write16(0x1002, 0xBEEF); err != nil {
		t.Fatalf("Write16 failed: %v", err)
	}
	if err := m.Write16(0x1004, 0xDEAD); err != nil {
		t.Fatalf("Write16 failed: %v", err)
	}
	// 0x1002 is a multiple of 2, not 4 -- a legally encodable JAL/branch
	// target, and fetch must accept it.
	v, err := m.Fetch(0x1002)
	if err != nil {
		t.Fatalf("expected halfword-aligned fetch to succeed, got %v", err)
	}
	if v != 0xDEADBEEF {
		t.Errorf("Fetch got %#08x, want %#08x", v, 0xDEADBEEF)
	}

	_, err2 := m.Fetch(0x1003)
	if err2 == nil || err2.Code() != exception.InstructionAddressMisaligned {
		t.Errorf("expected InstructionAddressMisaligned at an odd address, got %v", err2)
	}
}

func TestLoadImage(t *testing.T) {
	m := New()
	m.Load([]byte{0x01, 0x02, 0x03, 0x04})
	v, err := m.Read32(0)
	if err != nil {
		t.Fatalf("Read32 failed: %v", err)
	}
	if v != 0x04030201 {
		t.Errorf("got %#08x, want %#08x", v, 0x04030201)
	}
}
