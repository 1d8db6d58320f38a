package scope

import (
	"testing"

	"avenir/internal/emit"
	"avenir/internal/locals"
)

func TestDeclarativeGetCompilesToDirectSlotLoad(t *testing.T) {
	e := emit.New(1)
	table := locals.NewTable()
	root := NewDeclarative(nil, table)
	if _, err := root.Declare("a"); err != nil {
		t.Fatalf("Declare: %v", err)
	}

	caches := NewCacheAllocator()
	noUpvalue := func(string) (int, bool) { return 0, false }

	if err := root.GenerateGet(e, "a", caches, noUpvalue); err != nil {
		t.Fatalf("GenerateGet: %v", err)
	}
	e.Pop()
	if _, _, err := e.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

// TestNestedDeclarativeWalksToParentSlot models scenario E4: a closure
// resolving a free variable bound one function out.
func TestNestedDeclarativeWalksToParentSlot(t *testing.T) {
	outerTable := locals.NewTable()
	outer := NewDeclarative(nil, outerTable)
	if _, err := outer.Declare("a"); err != nil {
		t.Fatalf("Declare a: %v", err)
	}

	innerTable := locals.NewTable()
	inner := NewDeclarative(nil, innerTable) // a fresh function's own locals; "a" resolves via upvalue
	if _, err := inner.Declare("b"); err != nil {
		t.Fatalf("Declare b: %v", err)
	}

	e := emit.New(2)
	caches := NewCacheAllocator()
	upvalueOfA := func(name string) (int, bool) {
		if name == "a" {
			return 0, true // upvalue slot 0 captures outer's "a"
		}
		return 0, false
	}
	if err := inner.GenerateGet(e, "a", caches, upvalueOfA); err != nil {
		t.Fatalf("GenerateGet a: %v", err)
	}
	if err := inner.GenerateGet(e, "b", caches, upvalueOfA); err != nil {
		t.Fatalf("GenerateGet b: %v", err)
	}
	e.AddF() // deliberately wrong kind just to exercise the emitted loads;
	// real codegen would Box/UnboxR8 first. Swallow any Kind error — this
	// test only checks that GenerateGet resolves both names (a through the
	// upvalue callback, b through inner's own slot) without error; it does
	// not inspect the emitted opcodes.
	_, _, _ = e.Complete()
}

// TestObjectScopeGetUsesGetScopeOpcode models scenario E5: a `with` scope
// resolving a free variable through the runtime chain walk.
func TestObjectScopeGetUsesGetScopeOpcode(t *testing.T) {
	e := emit.New(1)
	withScope := NewObjectScope(NewGlobalScope(), true)
	caches := NewCacheAllocator()
	noUpvalue := func(string) (int, bool) { return 0, false }

	if err := withScope.GenerateGet(e, "x", caches, noUpvalue); err != nil {
		t.Fatalf("GenerateGet: %v", err)
	}
	e.Pop()
	if _, _, err := e.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestCreateScopeForWithInstallsArg0(t *testing.T) {
	e := emit.New(1)
	withScope := NewObjectScope(NewGlobalScope(), true)
	e.LdUndefined() // stand-in for the evaluated with-object expression
	if err := withScope.CreateScope(e); err != nil {
		t.Fatalf("CreateScope: %v", err)
	}
	if _, _, err := e.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestCacheAllocatorHandsOutDistinctSites(t *testing.T) {
	c := NewCacheAllocator()
	a, b := c.Alloc(), c.Alloc()
	if a == b {
		t.Fatalf("expected distinct cache sites, got %d and %d", a, b)
	}
}
