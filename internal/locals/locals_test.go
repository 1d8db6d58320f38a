package locals

import (
	"errors"
	"testing"

	"avenir/internal/bytecode"
)

func TestDeclareVariableAssignsSequentialIndices(t *testing.T) {
	tbl := NewTable()
	i0, err := tbl.DeclareVariable(bytecode.KindObject, "x")
	if err != nil {
		t.Fatalf("DeclareVariable: %v", err)
	}
	i1, err := tbl.DeclareVariable(bytecode.KindInt32, "")
	if err != nil {
		t.Fatalf("DeclareVariable: %v", err)
	}
	if i0 != 0 || i1 != 1 {
		t.Fatalf("indices = %d, %d, want 0, 1", i0, i1)
	}
	if tbl.Count() != 2 {
		t.Fatalf("Count = %d, want 2", tbl.Count())
	}
	if tbl.Kind(1) != bytecode.KindInt32 {
		t.Fatalf("Kind(1) = %v, want KindInt32", tbl.Kind(1))
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	tbl := NewTable()
	tbl.DeclareVariable(bytecode.KindObject, "a")
	tbl.DeclareVariable(bytecode.KindFloat, "b")
	tbl.DeclareVariable(bytecode.KindInt32, "c")

	sig := tbl.Signature()
	kinds := DecodeSignature(sig)
	want := []bytecode.OperandKind{bytecode.KindObject, bytecode.KindFloat, bytecode.KindInt32}
	if len(kinds) != len(want) {
		t.Fatalf("DecodeSignature len = %d, want %d", len(kinds), len(want))
	}
	for i, k := range want {
		if kinds[i] != k {
			t.Errorf("kinds[%d] = %v, want %v", i, kinds[i], k)
		}
	}
}

func TestArgTableImplicitSlotsAndLookup(t *testing.T) {
	args := NewArgTable()
	scopeIdx, _ := args.Declare("")
	thisIdx, _ := args.Declare("")
	xIdx, _ := args.Declare("x")

	if scopeIdx != 0 || thisIdx != 1 || xIdx != 2 {
		t.Fatalf("implicit slot indices = %d, %d, %d, want 0, 1, 2", scopeIdx, thisIdx, xIdx)
	}
	if idx, ok := args.IndexOf("x"); !ok || idx != 2 {
		t.Fatalf("IndexOf(x) = %d, %v, want 2, true", idx, ok)
	}
	if _, ok := args.IndexOf(""); ok {
		t.Fatal("IndexOf(\"\") should never match an implicit unnamed slot")
	}
	if _, ok := args.IndexOf("missing"); ok {
		t.Fatal("IndexOf(missing) should report false")
	}
	if args.Count() != 3 {
		t.Fatalf("Count = %d, want 3", args.Count())
	}
}

func TestTooManyLocalsIsWrapped(t *testing.T) {
	tbl := &Table{slots: make([]Slot, maxLocalIndex+1)}
	if _, err := tbl.DeclareVariable(bytecode.KindObject, "overflow"); !errors.Is(err, ErrTooManyLocals) {
		t.Fatalf("expected ErrTooManyLocals, got %v", err)
	}
}
