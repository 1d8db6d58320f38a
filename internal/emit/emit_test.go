package emit

import (
	"encoding/binary"
	"testing"

	"avenir/internal/bytecode"
)

func TestLoadConstantsChooseShortestEncoding(t *testing.T) {
	e := New(1)
	e.LdcI4(5) // fits in ldc.i4.s
	e.Pop()
	e.LdcI4(100000) // needs full ldc.i4
	e.Pop()
	code, _, err := e.Complete()
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if bytecode.Op(code[0]) != bytecode.LdcI4S {
		t.Fatalf("expected LdcI4S for small constant, got op %d", code[0])
	}
	// LdcI4S, imm8, Pop = 3 bytes, then LdcI4 at offset 3
	if bytecode.Op(code[3]) != bytecode.LdcI4 {
		t.Fatalf("expected LdcI4 for large constant, got op %d", code[3])
	}
}

func TestLocalsShortFormsForSlots0to3(t *testing.T) {
	e := New(1)
	e.LdUndefined()
	e.StLoc(0)
	e.LdLoc(0)
	e.Pop()
	code, _, err := e.Complete()
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if bytecode.Op(code[1]) != bytecode.StLoc0 {
		t.Fatalf("expected StLoc0, got %d", code[1])
	}
	if bytecode.Op(code[2]) != bytecode.LdLoc0 {
		t.Fatalf("expected LdLoc0, got %d", code[2])
	}
}

func TestLocalsIndexedFormAboveSlot3(t *testing.T) {
	e := New(1)
	e.LdUndefined()
	e.StLoc(10)
	code, _, err := e.Complete()
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if bytecode.Op(code[1]) != bytecode.StLocS {
		t.Fatalf("expected StLocS for slot 10, got %d", code[1])
	}
	if code[2] != 10 {
		t.Fatalf("expected slot index 10, got %d", code[2])
	}
}

func TestForwardBranchResolvesToCorrectOffset(t *testing.T) {
	e := New(1)
	end := e.NewLabel()
	e.LdcI4(1)
	e.BrTrue(end)
	e.LdcI4(0)
	e.Pop()
	e.MarkLabel(end)
	e.Ret0()

	code, _, err := e.Complete()
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	// LdcI4S+imm (2 bytes), BrTrue op (1 byte) -> operand starts at offset 3
	patchOffset := 3
	rel := int32(binary.LittleEndian.Uint32(code[patchOffset : patchOffset+4]))
	wantTarget := len(code) - 1 // Ret0 is the final byte, MarkLabel sits right before it
	gotTarget := int(rel) + patchOffset + 4
	if gotTarget != wantTarget {
		t.Fatalf("branch target = %d, want %d", gotTarget, wantTarget)
	}
}

func TestBackwardBranchResolvesToCorrectOffset(t *testing.T) {
	e := New(1)
	top := e.NewLabel()
	e.MarkLabel(top)
	e.LdcI4(0)
	e.BrTrue(top)
	e.Ret0()

	code, _, err := e.Complete()
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	// LdcI4S+imm (2 bytes), BrTrue op (1 byte) -> operand starts at offset 3
	patchOffset := 3
	rel := int32(binary.LittleEndian.Uint32(code[patchOffset : patchOffset+4]))
	gotTarget := int(rel) + patchOffset + 4
	if gotTarget != 0 {
		t.Fatalf("backward branch target = %d, want 0", gotTarget)
	}
}

func TestUndefinedLabelFailsAtComplete(t *testing.T) {
	e := New(1)
	dangling := e.NewLabel()
	e.Br(dangling)
	if _, _, err := e.Complete(); err == nil {
		t.Fatal("expected error for never-marked label")
	}
}

func TestStackUnderflowIsReported(t *testing.T) {
	e := New(1)
	e.Pop()
	if e.Err() == nil {
		t.Fatal("expected stack underflow error")
	}
}

func TestKindMismatchIsReported(t *testing.T) {
	e := New(1)
	e.LdcI4(1) // Int32
	e.LdcR8(2) // Float
	e.AddF()   // wants two Float, top is Float but second is Int32
	if e.Err() == nil {
		t.Fatal("expected kind mismatch error")
	}
}

func TestMaxStackTracksHighWaterMark(t *testing.T) {
	e := New(1)
	e.LdcI4(1)
	e.LdcI4(2)
	e.LdcI4(3)
	e.AddF2Helper(t)
	_, maxStack, err := e.Complete()
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if maxStack < 3 {
		t.Fatalf("maxStack = %d, want at least 3", maxStack)
	}
}

// AddF2Helper drains two of the three pushed Int32s via bitwise ops that
// accept Int32 operands, leaving the high-water mark at 3 without tripping
// the Kind checker (AddF expects Float).
func (e *Emitter) AddF2Helper(t *testing.T) {
	t.Helper()
	e.AndI4()
	e.Pop()
}

func TestDuplicateLabelMarkFails(t *testing.T) {
	e := New(1)
	l := e.NewLabel()
	e.MarkLabel(l)
	e.MarkLabel(l)
	if e.Err() == nil {
		t.Fatal("expected error marking the same label twice")
	}
}
