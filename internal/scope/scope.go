// Package scope implements the Scope Chain Compiler (spec §4.5): for each
// lexical scope, declarative or object-backed, it emits the code that
// creates, enters, reads from, and writes to that scope.
//
// Every routine's calling convention reserves argument 0 for a "scope
// handle" — the currently active scope object (or nil/absent for a purely
// declarative chain with no with/global materialization yet). A closure
// captures the DefScope active at its creation point and installs it as
// its own arg0 when invoked (see value.Object.DefScope). That is what lets
// a nested closure correctly see an enclosing `with`'s dynamic scope
// across a function-call boundary: the callee's arg0 already *is* the
// right runtime scope object, with no extra hop required. A same-function
// nested `with` (no intervening function boundary) needs no extra code
// either: GetScope/SetScope walk the runtime ScopeParent links from the
// inner with-object outward.
package scope

import (
	"fmt"

	"avenir/internal/bytecode"
	"avenir/internal/emit"
	"avenir/internal/locals"
)

// Kind distinguishes the three scope variants of spec §4.5 — expressed as
// a tagged union (a Kind int plus payload fields) rather than an interface
// hierarchy, since there is no behavior here that benefits from dynamic
// dispatch over more than three fixed cases.
type Kind int

const (
	Declarative Kind = iota
	ObjectScope
	GlobalScope
)

// Scope is one lexical environment in the compile-time chain. Declarative
// scopes resolve names to Table slots with zero runtime cost; object and
// global scopes resolve through a runtime property-lookup protocol with an
// implicit receiver for `with`.
type Scope struct {
	Kind   Kind
	Parent *Scope

	// Declarative
	names map[string]int // name -> slot index in Locals
	table *locals.Table

	// Object / With
	ImplicitReceiver bool
	depthFromFnRoot  int // number of LdScopeUp hops from the function's arg0 to reach this scope's runtime object, when > 0 within the same function

	// Global
	isGlobal bool
}

// NewDeclarative creates a slot-backed scope chained to parent. table is
// the Local Table new DeclareVariable calls append to; callers declare
// slots there directly and register the name here with Declare.
func NewDeclarative(parent *Scope, table *locals.Table) *Scope {
	return &Scope{Kind: Declarative, Parent: parent, names: make(map[string]int), table: table}
}

// NewObjectScope creates a scope backed by a runtime object evaluated from
// an AST expression. implicitReceiver is true for `with` (false would be
// used by a hypothetical non-with object scope, which this engine never
// constructs, but the field stays general per spec §4.5).
func NewObjectScope(parent *Scope, implicitReceiver bool) *Scope {
	depth := 0
	if parent != nil && parent.Kind != Declarative {
		depth = parent.depthFromFnRoot + 1
	}
	return &Scope{Kind: ObjectScope, Parent: parent, ImplicitReceiver: implicitReceiver, depthFromFnRoot: depth}
}

// NewGlobalScope creates the distinguished root object scope backed by the
// process-wide global instance.
func NewGlobalScope() *Scope {
	return &Scope{Kind: GlobalScope, isGlobal: true}
}

// Declare registers name as bound to a fresh slot in a Declarative scope's
// backing Table and returns the slot index.
func (s *Scope) Declare(name string) (int, error) {
	if s.Kind != Declarative {
		return 0, fmt.Errorf("scope: Declare called on a non-declarative scope")
	}
	idx, err := s.table.DeclareVariable(bytecode.KindObject, name)
	if err != nil {
		return 0, err
	}
	s.names[name] = idx
	return idx, nil
}

// CreateScope emits the code that materializes this scope (object/global
// only — declarative scopes have no runtime representation) and installs
// it as the new current-scope argument (arg 0). objExpr must already have
// pushed the backing object value onto the stack when Kind == ObjectScope;
// CreateScope consumes it.
func (s *Scope) CreateScope(e *emit.Emitter) error {
	switch s.Kind {
	case GlobalScope:
		e.CallBuiltin(int(bytecode.GlobalScopeBuiltinID), 0)
		e.StArg(0)
		return nil
	case ObjectScope:
		// Stack already holds the evaluated with-object (not coerced; the
		// runtime rejects a non-object). Load current scope (arg0), then
		// call the runtime's create_runtime_scope(obj, parent) and store
		// the result as the new arg0, per spec §4.5.
		e.LdArg(0)
		e.CallBuiltin(int(bytecode.CreateRuntimeScopeBuiltinID), 2)
		e.StArg(0)
		return nil
	default:
		return fmt.Errorf("scope: CreateScope called on a Declarative scope")
	}
}

// CacheAllocator hands out a fresh inline-cache site index per call;
// internal/codegen keeps one per routine, shared by every scope lookup and
// field access in it, so a routine's sites are dense.
type CacheAllocator struct{ next int }

func NewCacheAllocator() *CacheAllocator { return &CacheAllocator{} }
func (c *CacheAllocator) Alloc() int     { n := c.next; c.next++; return n }

// GenerateGet emits code that resolves name by walking this scope's parent
// chain, leaf to root, and pushes its value. Declarative hops compile to a
// direct slot or upvalue load; object/global hops compile to a property
// lookup with an inline cache; a complete miss at the root throws
// ReferenceError, the one runtime-visible error this subsystem can
// generate (spec §4.5, §7).
func (s *Scope) GenerateGet(e *emit.Emitter, name string, caches *CacheAllocator, upvalueOf func(name string) (int, bool)) error {
	// Declarative resolution is fully static: walk the compile-time chain
	// looking for a direct slot, then an upvalue, before falling through
	// to the dynamic (object/global) chain for anything left.
	for cur := s; cur != nil && cur.Kind == Declarative; cur = cur.Parent {
		if idx, ok := cur.names[name]; ok {
			e.LdLoc(idx)
			return nil
		}
	}
	if idx, ok := upvalueOf(name); ok {
		e.LdUpval(idx)
		return nil
	}

	// Dynamic resolution: GetScope walks ScopeParent links from arg0,
	// throwing ReferenceError at the root on a total miss. The chain
	// itself is only known at runtime past this point (closures may carry
	// a DefScope whose depth isn't visible here), so the walk is the
	// runtime's job; the emitter only attaches a fresh inline-cache site.
	e.GetScope(name, caches.Alloc())
	return nil
}

// GenerateSet is GenerateGet's write-side counterpart: declarative hops
// store into a slot/upvalue directly; object/global hops call
// inline_set_if_exists walking parent links, falling back to an
// unconditional create-or-overwrite at the root (spec §4.5).
func (s *Scope) GenerateSet(e *emit.Emitter, name string, caches *CacheAllocator, upvalueOf func(name string) (int, bool)) error {
	for cur := s; cur != nil && cur.Kind == Declarative; cur = cur.Parent {
		if idx, ok := cur.names[name]; ok {
			e.StLoc(idx)
			return nil
		}
	}
	if idx, ok := upvalueOf(name); ok {
		e.StUpval(idx)
		return nil
	}

	// Stack already holds the value to store (codegen emits it before
	// calling GenerateSet); SetScope pops it and walks inline_set_if_exists
	// semantics at the runtime layer, falling back to an unconditional
	// create-or-overwrite at the root.
	e.SetScope(name, caches.Alloc())
	return nil
}

// LookupLocal walks only the Declarative portion of the chain rooted at s,
// stopping at the first non-Declarative ancestor, and reports name's slot
// if found. Used by internal/codegen's cross-function upvalue resolver to
// ask "does the immediately enclosing function bind this name itself"
// without falling through to a dynamic scope lookup.
func (s *Scope) LookupLocal(name string) (int, bool) {
	for cur := s; cur != nil && cur.Kind == Declarative; cur = cur.Parent {
		if idx, ok := cur.names[name]; ok {
			return idx, true
		}
	}
	return 0, false
}

// LdScopeUp walks one hop up the *runtime* scope chain from the current
// scope argument. GenerateGet and GenerateSet do not emit it (GetScope and
// SetScope walk the chain at runtime); it is meant for a same-function
// nested `with`, where a
// block inside an outer with's extent opens a second with scope and code
// inside it needs to reach back past the inner one without having crossed
// a function boundary (so arg0 is the inner with-object, not something a
// closure's DefScope already resolved for us).
func LdScopeUp(e *emit.Emitter) {
	e.LdArg(0)
	e.LdScopeUp()
}
