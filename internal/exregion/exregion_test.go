package exregion

import (
	"testing"

	"avenir/internal/bytecode"
	"avenir/internal/emit"
)

// TestTryCatchFinally models scenario E3 from spec §8:
// try { f(); } catch (e) { g(e); } finally { h(); }
func TestTryCatchFinally(t *testing.T) {
	e := emit.New(1)
	b := NewBuilder()

	b.BeginExceptionBlock(e)
	e.CallStatic(0, 0)
	e.Pop()

	if err := b.BeginCatch(e, 42); err != nil {
		t.Fatalf("BeginCatch: %v", err)
	}
	e.Pop() // drop the seeded exception object
	e.CallStatic(1, 0)
	e.Pop()

	if err := b.BeginFinally(e); err != nil {
		t.Fatalf("BeginFinally: %v", err)
	}
	e.CallStatic(2, 0)
	e.Pop()

	if err := b.EndExceptionBlock(e); err != nil {
		t.Fatalf("EndExceptionBlock: %v", err)
	}

	regions, err := b.Complete()
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(regions) != 1 {
		t.Fatalf("expected 1 region, got %d", len(regions))
	}
	if len(regions[0].Clauses) != 2 {
		t.Fatalf("expected 2 clauses (catch, finally), got %d", len(regions[0].Clauses))
	}
	if regions[0].Clauses[0].Kind != bytecode.ClauseCatch {
		t.Fatalf("clause 0 kind = %v, want ClauseCatch", regions[0].Clauses[0].Kind)
	}
	if regions[0].Clauses[1].Kind != bytecode.ClauseFinally {
		t.Fatalf("clause 1 kind = %v, want ClauseFinally", regions[0].Clauses[1].Kind)
	}

	if _, _, err := e.Complete(); err != nil {
		t.Fatalf("emitter Complete: %v", err)
	}
}

func TestDuplicateCatchTokenRejected(t *testing.T) {
	e := emit.New(1)
	b := NewBuilder()
	b.BeginExceptionBlock(e)
	e.CallStatic(0, 0)
	e.Pop()
	if err := b.BeginCatch(e, 7); err != nil {
		t.Fatalf("first BeginCatch: %v", err)
	}
	e.Pop()
	if err := b.BeginCatch(e, 7); err == nil {
		t.Fatal("expected DuplicateCatch for repeated type token")
	}
}

func TestEndExceptionBlockRequiresAtLeastOneClause(t *testing.T) {
	e := emit.New(1)
	b := NewBuilder()
	b.BeginExceptionBlock(e)
	e.CallStatic(0, 0)
	e.Pop()
	if err := b.EndExceptionBlock(e); err == nil {
		t.Fatal("expected EmptyExceptionRegion error")
	}
}

func TestUnclosedRegionFailsAtComplete(t *testing.T) {
	e := emit.New(1)
	b := NewBuilder()
	b.BeginExceptionBlock(e)
	e.CallStatic(0, 0)
	e.Pop()
	if _, err := b.Complete(); err == nil {
		t.Fatal("expected UnclosedExceptionRegion error")
	}
}

func TestFilterClause(t *testing.T) {
	e := emit.New(1)
	b := NewBuilder()
	b.BeginExceptionBlock(e)
	e.CallStatic(0, 0)
	e.Pop()

	if err := b.BeginFilter(e); err != nil {
		t.Fatalf("BeginFilter: %v", err)
	}
	e.Pop()       // drop seeded exception object
	e.LdcI4(1)    // filter condition result
	e.EndFilter() // pops Int32, pushes Object
	if err := b.MarkFilterHandlerStart(e); err != nil {
		t.Fatalf("MarkFilterHandlerStart: %v", err)
	}
	e.Pop() // drop the filtered exception object in the handler body

	if err := b.EndExceptionBlock(e); err != nil {
		t.Fatalf("EndExceptionBlock: %v", err)
	}
	regions, err := b.Complete()
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if regions[0].Clauses[0].Kind != bytecode.ClauseFilter {
		t.Fatalf("expected ClauseFilter clause")
	}
	if _, _, err := e.Complete(); err != nil {
		t.Fatalf("emitter Complete: %v", err)
	}
}
