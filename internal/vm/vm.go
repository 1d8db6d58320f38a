// Package vm is a minimal interpreter over bytecode.Module, carried as test
// infrastructure for internal/codegen (SPEC_FULL.md §12): it exists so the
// compiler's output can actually be run for scenarios E1-E6, not as a
// general-purpose ECMAScript engine. It implements no Object/Array/Function
// built-in methods beyond what those scenarios exercise.
//
// The evaluation stack is uniformly []value.Value, matching
// bytecode.OperandKind's doc comment that Int32/Float/Object distinctions
// have no runtime representation; Box, UnboxR8, ConvI4 and ConvR8 are
// accordingly near-identity operations rather than real representation
// changes (see DESIGN.md).
package vm

import (
	"encoding/binary"
	"fmt"
	"math"

	"avenir/internal/bytecode"
	"avenir/internal/value"
)

// JSException carries a thrown ECMAScript value out of runFrame, letting
// callers (a parent frame's CallValue, or Run itself) distinguish "the
// script threw and nothing caught it" from an internal VM fault such as
// malformed bytecode.
type JSException struct {
	Value value.Value
}

func (e *JSException) Error() string {
	return "uncaught exception: " + e.Value.String()
}

// VM executes one bytecode.Module. It owns the single global object every
// top-level scope chain bottoms out at (bytecode.GlobalScopeBuiltinID
// always hands back this same instance, never a fresh one).
type VM struct {
	mod     *bytecode.Module
	global  *value.Object
	regions map[*bytecode.Function][]bytecode.ExceptionRegion
}

// New creates a VM for mod, installing the standard globals (see builtins.go)
// onto a fresh global object.
func New(mod *bytecode.Module) *VM {
	return &VM{
		mod:     mod,
		global:  newGlobalObject(),
		regions: make(map[*bytecode.Function][]bytecode.ExceptionRegion),
	}
}

// Run executes the module's designated entry routine and returns its
// result. A script-level uncaught throw surfaces as *JSException.
func (vm *VM) Run() (value.Value, error) {
	fn := vm.mod.Functions[vm.mod.MainIndex]
	fr, err := vm.newFrame(fn, nil)
	if err != nil {
		return value.Undef(), err
	}
	// The entry routine's own scope/this arguments start out unbound; its
	// first CreateScope (internal/scope.GlobalScope case) materializes the
	// VM's shared global object via GlobalScopeBuiltinID.
	fr.args[0] = value.Undef()
	fr.args[1] = value.Undef()
	return vm.runFrame(fr)
}

func (vm *VM) regionsFor(fn *bytecode.Function) ([]bytecode.ExceptionRegion, error) {
	if r, ok := vm.regions[fn]; ok {
		return r, nil
	}
	r, err := bytecode.DecodeExceptionTable(fn.ExceptionTable)
	if err != nil {
		return nil, fmt.Errorf("vm: decoding exception table for %q: %w", fn.Name, err)
	}
	vm.regions[fn] = r
	return r, nil
}

// frame is one activation of a bytecode.Function. It implements
// value.Frame so an open Upvalue can read/write its locals directly; since
// Go's GC keeps a frame alive for as long as any Upvalue references it, and
// frames are never reused across calls, there is no need to ever explicitly
// close an upvalue on return — a simplification over stack-allocated-frame
// VMs, documented in DESIGN.md.
type frame struct {
	fn      *bytecode.Function
	ip      int
	args    []value.Value
	locals  []value.Value
	stack   []value.Value
	upvals  []*value.Upvalue
	regions []bytecode.ExceptionRegion

	openUpvals map[int]*value.Upvalue

	// Exception-dispatch state, set only while a finally/fault clause is
	// running because an in-flight throw passed through it (as opposed to a
	// normal Leave); EndFinally checks this to know whether to resume a
	// pending Leave or resume searching for an outer catch.
	pendingThrow       *value.Value
	pendingThrowIP     int
	pendingThrowResume int

	// leaveTargets is a stack of "resume here after EndFinally" offsets,
	// pushed by Leave when it must run a finally clause before continuing
	// on to the exit target.
	leaveTargets []int
}

func (fr *frame) Local(i int) value.Value       { return fr.locals[i] }
func (fr *frame) SetLocal(i int, v value.Value) { fr.locals[i] = v }

func (fr *frame) push(v value.Value) { fr.stack = append(fr.stack, v) }

func (fr *frame) pop() value.Value {
	n := len(fr.stack) - 1
	v := fr.stack[n]
	fr.stack = fr.stack[:n]
	return v
}

// popN recovers argc values pushed in left-to-right order: the compiler
// always compiles arguments/elements left to right, so the last one pushed
// sits on top and must be popped first.
func (fr *frame) popN(n int) []value.Value {
	out := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = fr.pop()
	}
	return out
}

func (vm *VM) newFrame(fn *bytecode.Function, upvals []*value.Upvalue) (*frame, error) {
	regions, err := vm.regionsFor(fn)
	if err != nil {
		return nil, err
	}
	numLocals := len(fn.LocalSignature)
	fr := &frame{
		fn:      fn,
		args:    make([]value.Value, fn.NumParams),
		locals:  make([]value.Value, numLocals),
		stack:   make([]value.Value, 0, fn.MaxStack),
		upvals:  upvals,
		regions: regions,
	}
	for i := range fr.args {
		fr.args[i] = value.Undef()
	}
	for i := range fr.locals {
		fr.locals[i] = value.Undef()
	}
	return fr, nil
}

func (fr *frame) captureLocal(idx int) *value.Upvalue {
	if fr.openUpvals == nil {
		fr.openUpvals = make(map[int]*value.Upvalue)
	}
	if u, ok := fr.openUpvals[idx]; ok {
		return u
	}
	u := &value.Upvalue{Frame: fr, Index: idx}
	fr.openUpvals[idx] = u
	return u
}

type stepKind int

const (
	stepContinue stepKind = iota
	stepReturned
	stepThrew
)

type stepResult struct {
	kind  stepKind
	value value.Value
}

// runFrame drives execStep until the routine returns or an exception
// escapes uncaught.
func (vm *VM) runFrame(fr *frame) (value.Value, error) {
	for {
		res, err := vm.execStep(fr)
		if err != nil {
			return value.Undef(), err
		}
		switch res.kind {
		case stepContinue:
			continue
		case stepReturned:
			return res.value, nil
		case stepThrew:
			return value.Undef(), &JSException{Value: res.value}
		}
	}
}

// --- little-endian operand decoding, mirroring internal/emit's encoding ---

func readU8(code []byte, ip *int) byte {
	b := code[*ip]
	*ip++
	return b
}

func readI32(code []byte, ip *int) int32 {
	v := int32(binary.LittleEndian.Uint32(code[*ip : *ip+4]))
	*ip += 4
	return v
}

func readU32(code []byte, ip *int) uint32 {
	v := binary.LittleEndian.Uint32(code[*ip : *ip+4])
	*ip += 4
	return v
}

func readF64(code []byte, ip *int) float64 {
	v := math.Float64frombits(binary.LittleEndian.Uint64(code[*ip : *ip+8]))
	*ip += 8
	return v
}

// readBranchTarget reads a 4-byte relative branch operand at the current ip
// and resolves it to an absolute offset, per internal/emit/label.go's
// convention: target - (patchOffset + 4), i.e. relative to the position
// immediately past the operand itself.
func readBranchTarget(code []byte, ip *int) int {
	operandStart := *ip
	rel := readI32(code, ip)
	return operandStart + 4 + int(rel)
}

func (fr *frame) constString(tok uint32) string {
	return fr.fn.Consts[tok].Str
}
