// Package emit implements the Instruction Emitter: the append-only assembler
// that turns a sequence of opcode requests into a finalized bytecode.Function,
// tracking operand kinds on an abstract evaluation stack and resolving labels
// and branch offsets at Complete() time.
package emit

import (
	"encoding/binary"
	"fmt"
	"math"

	"avenir/internal/bytecode"
)

// Emitter assembles one routine's code. It never sees source text or the
// AST; internal/codegen drives it one opcode at a time.
type Emitter struct {
	code []byte

	stack    []bytecode.OperandKind
	maxStack int

	labels  *LabelManager
	strings *stringPool

	numParams int

	// stackIndeterminate mirrors the Label Manager's flag: once set, pushes
	// and pops are not checked until the next label definition resets it,
	// matching dead code following an unconditional terminator.
	stackIndeterminate bool

	err error
}

// stringPool interns string constants, handing out stable indices used by
// LdStr and the field-name operands of LdFld/StFld/HasFld.
type stringPool struct {
	strs []string
	idx  map[string]int
}

func newStringPool() *stringPool {
	return &stringPool{idx: make(map[string]int)}
}

func (p *stringPool) intern(s string) int {
	if i, ok := p.idx[s]; ok {
		return i
	}
	i := len(p.strs)
	p.strs = append(p.strs, s)
	p.idx[s] = i
	return i
}

// New creates an Emitter for a routine with the given parameter count
// (including the implicit arg0 scope handle the Method Generator always
// reserves — see internal/scope).
func New(numParams int) *Emitter {
	return &Emitter{
		numParams: numParams,
		labels:    newLabelManager(),
		strings:   newStringPool(),
	}
}

// Err returns the first error recorded during emission, if any. Callers
// should check this before calling Complete.
func (e *Emitter) Err() error { return e.err }

func (e *Emitter) fail(format string, args ...interface{}) {
	if e.err == nil {
		e.err = fmt.Errorf(format, args...)
	}
}

func (e *Emitter) offset() int { return len(e.code) }

// Offset exposes the current write position, for collaborators (the
// Exception Region Builder, the Scope Chain Compiler) that need to record
// byte offsets of their own rather than opcode-level positions.
func (e *Emitter) Offset() int { return e.offset() }

// SeedStack replaces the abstract evaluation stack wholesale and clears the
// indeterminate flag. Exception handlers are entered by the runtime's
// dispatch logic, not by any branch the emitter tracks, so the Exception
// Region Builder uses this to tell the Kind checker what is live at a
// clause's handler entry (a single Object for Catch/Filter-condition,
// nothing for Finally/Fault).
func (e *Emitter) SeedStack(kinds ...bytecode.OperandKind) {
	e.stack = append(e.stack[:0], kinds...)
	if len(e.stack) > e.maxStack {
		e.maxStack = len(e.stack)
	}
	e.stackIndeterminate = false
}

// push/pop maintain the abstract stack used for static Kind verification.
// Both are no-ops once the instruction stream has gone stack-indeterminate.
func (e *Emitter) push(k bytecode.OperandKind) {
	if e.stackIndeterminate {
		return
	}
	e.stack = append(e.stack, k)
	if len(e.stack) > e.maxStack {
		e.maxStack = len(e.stack)
	}
}

func (e *Emitter) pop(want bytecode.OperandKind) bytecode.OperandKind {
	if e.stackIndeterminate {
		return want
	}
	if len(e.stack) == 0 {
		e.fail("emit: stack underflow popping %s at offset %d", want, e.offset())
		return want
	}
	got := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	if got != want {
		e.fail("emit: kind mismatch at offset %d: wanted %s, have %s", e.offset(), want, got)
	}
	return got
}

func (e *Emitter) popAny() bytecode.OperandKind {
	if e.stackIndeterminate {
		return bytecode.KindObject
	}
	if len(e.stack) == 0 {
		e.fail("emit: stack underflow at offset %d", e.offset())
		return bytecode.KindObject
	}
	got := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return got
}

func (e *Emitter) emit1(op bytecode.Op) { e.code = append(e.code, byte(op)) }

func (e *Emitter) emitExt(op bytecode.Op) {
	e.code = append(e.code, byte(bytecode.ExtPrefix), byte(op))
}

func (e *Emitter) emitU8(v byte)  { e.code = append(e.code, v) }
func (e *Emitter) emitI32(v int32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	e.code = append(e.code, buf[:]...)
}
func (e *Emitter) emitU32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	e.code = append(e.code, buf[:]...)
}
func (e *Emitter) emitF64(v float64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	e.code = append(e.code, buf[:]...)
}

// ---------- Stack-neutral / loads ----------

func (e *Emitter) Nop() { e.emit1(bytecode.Nop) }

func (e *Emitter) Pop() { e.emit1(bytecode.Pop); e.popAny() }

func (e *Emitter) Dup() {
	e.emit1(bytecode.Dup)
	if !e.stackIndeterminate {
		if len(e.stack) == 0 {
			e.fail("emit: dup on empty stack at offset %d", e.offset())
		} else {
			e.push(e.stack[len(e.stack)-1])
		}
	}
}

func (e *Emitter) LdNull() {
	e.emit1(bytecode.LdNull)
	e.push(bytecode.KindObject)
}

func (e *Emitter) LdUndefined() {
	e.emit1(bytecode.LdUndefined)
	e.push(bytecode.KindObject)
}

// LdcI4 loads a 32-bit integer constant, choosing the short (1-byte signed)
// encoding when the value fits in [-128, 127].
func (e *Emitter) LdcI4(v int32) {
	if fitsSignedByte(v) {
		e.emit1(bytecode.LdcI4S)
		e.emitU8(byte(int8(v)))
	} else {
		e.emit1(bytecode.LdcI4)
		e.emitI32(v)
	}
	e.push(bytecode.KindInt32)
}

func (e *Emitter) LdcR8(v float64) {
	e.emit1(bytecode.LdcR8)
	e.emitF64(v)
	e.push(bytecode.KindFloat)
}

func (e *Emitter) LdStr(s string) {
	idx := e.strings.intern(s)
	e.emit1(bytecode.LdStr)
	e.emitU32(uint32(idx))
	e.push(bytecode.KindObject)
}

// Strings returns the interned string table in index order, for attaching
// to the finished bytecode.Function alongside the numeric constant pool.
func (e *Emitter) Strings() []string { return append([]string(nil), e.strings.strs...) }

// ---------- Locals ----------

// LdLoc loads local slot i, choosing the zero-operand form for slots 0-3,
// the 1-byte form up to 255, else the full 4-byte index.
func (e *Emitter) LdLoc(i int) {
	switch {
	case i == 0:
		e.emit1(bytecode.LdLoc0)
	case i == 1:
		e.emit1(bytecode.LdLoc1)
	case i == 2:
		e.emit1(bytecode.LdLoc2)
	case i == 3:
		e.emit1(bytecode.LdLoc3)
	case fitsUnsignedByte(i):
		e.emit1(bytecode.LdLocS)
		e.emitU8(byte(i))
	default:
		e.emit1(bytecode.LdLoc)
		e.emitU32(uint32(i))
	}
	e.push(bytecode.KindObject)
}

func (e *Emitter) StLoc(i int) {
	e.pop(bytecode.KindObject)
	switch {
	case i == 0:
		e.emit1(bytecode.StLoc0)
	case i == 1:
		e.emit1(bytecode.StLoc1)
	case i == 2:
		e.emit1(bytecode.StLoc2)
	case i == 3:
		e.emit1(bytecode.StLoc3)
	case fitsUnsignedByte(i):
		e.emit1(bytecode.StLocS)
		e.emitU8(byte(i))
	default:
		e.emit1(bytecode.StLoc)
		e.emitU32(uint32(i))
	}
}

// LdLocA pushes a managed pointer to local slot i (used for by-ref host calls).
func (e *Emitter) LdLocA(i int) {
	if fitsUnsignedByte(i) {
		e.emit1(bytecode.LdLocAS)
		e.emitU8(byte(i))
	} else {
		e.emit1(bytecode.LdLocA)
		e.emitU32(uint32(i))
	}
	e.push(bytecode.KindManagedPointer)
}

// ---------- Arguments ----------

func (e *Emitter) LdArg(i int) {
	switch {
	case i == 0:
		e.emit1(bytecode.LdArg0)
	case i == 1:
		e.emit1(bytecode.LdArg1)
	case i == 2:
		e.emit1(bytecode.LdArg2)
	case i == 3:
		e.emit1(bytecode.LdArg3)
	case fitsUnsignedByte(i):
		e.emit1(bytecode.LdArgS)
		e.emitU8(byte(i))
	default:
		e.emit1(bytecode.LdArg)
		e.emitU32(uint32(i))
	}
	e.push(bytecode.KindObject)
}

func (e *Emitter) StArg(i int) {
	e.pop(bytecode.KindObject)
	if fitsUnsignedByte(i) {
		e.emit1(bytecode.StArgS)
		e.emitU8(byte(i))
	} else {
		e.emit1(bytecode.StArg)
		e.emitU32(uint32(i))
	}
}

// ---------- Upvalues ----------

func (e *Emitter) LdUpval(i int) {
	e.emit1(bytecode.LdUpval)
	e.emitU32(uint32(i))
	e.push(bytecode.KindObject)
}

func (e *Emitter) StUpval(i int) {
	e.pop(bytecode.KindObject)
	e.emit1(bytecode.StUpval)
	e.emitU32(uint32(i))
}

// ---------- Arithmetic / bitwise / compare ----------

func (e *Emitter) binFloat(op bytecode.Op) {
	e.pop(bytecode.KindFloat)
	e.pop(bytecode.KindFloat)
	e.emit1(op)
	e.push(bytecode.KindFloat)
}

func (e *Emitter) AddF() { e.binFloat(bytecode.AddF) }
func (e *Emitter) SubF() { e.binFloat(bytecode.SubF) }
func (e *Emitter) MulF() { e.binFloat(bytecode.MulF) }
func (e *Emitter) DivF() { e.binFloat(bytecode.DivF) }
func (e *Emitter) RemF() { e.binFloat(bytecode.RemF) }

func (e *Emitter) NegF() {
	e.pop(bytecode.KindFloat)
	e.emit1(bytecode.NegF)
	e.push(bytecode.KindFloat)
}

func (e *Emitter) binInt32(op bytecode.Op) {
	e.pop(bytecode.KindInt32)
	e.pop(bytecode.KindInt32)
	e.emit1(op)
	e.push(bytecode.KindInt32)
}

func (e *Emitter) AndI4() { e.binInt32(bytecode.AndI4) }
func (e *Emitter) OrI4()  { e.binInt32(bytecode.OrI4) }
func (e *Emitter) XorI4() { e.binInt32(bytecode.XorI4) }
func (e *Emitter) ShlI4() { e.binInt32(bytecode.ShlI4) }
func (e *Emitter) ShrI4() { e.binInt32(bytecode.ShrI4) }
func (e *Emitter) ShrUnI4() { e.binInt32(bytecode.ShrUnI4) }

func (e *Emitter) NotI4() {
	e.pop(bytecode.KindInt32)
	e.emit1(bytecode.NotI4)
	e.push(bytecode.KindInt32)
}

func (e *Emitter) cmp(op bytecode.Op, k bytecode.OperandKind) {
	e.pop(k)
	e.pop(k)
	e.emit1(op)
	e.push(bytecode.KindInt32)
}

func (e *Emitter) CEqF() { e.cmp(bytecode.CEqF, bytecode.KindFloat) }
func (e *Emitter) CGtF() { e.cmp(bytecode.CGtF, bytecode.KindFloat) }
func (e *Emitter) CLtF() { e.cmp(bytecode.CLtF, bytecode.KindFloat) }
func (e *Emitter) CEqI4() { e.cmp(bytecode.CEqI4, bytecode.KindInt32) }
func (e *Emitter) CGtI4() { e.cmp(bytecode.CGtI4, bytecode.KindInt32) }
func (e *Emitter) CLtI4() { e.cmp(bytecode.CLtI4, bytecode.KindInt32) }
func (e *Emitter) CGtUnI4() { e.cmp(bytecode.CGtUnI4, bytecode.KindInt32) }
func (e *Emitter) CLtUnI4() { e.cmp(bytecode.CLtUnI4, bytecode.KindInt32) }

// ---------- Convert / box ----------

func (e *Emitter) ConvI4() {
	e.popAny()
	e.emit1(bytecode.ConvI4)
	e.push(bytecode.KindInt32)
}

func (e *Emitter) ConvR8() {
	e.popAny()
	e.emit1(bytecode.ConvR8)
	e.push(bytecode.KindFloat)
}

func (e *Emitter) Box() {
	e.popAny()
	e.emit1(bytecode.Box)
	e.push(bytecode.KindObject)
}

func (e *Emitter) UnboxR8() {
	e.pop(bytecode.KindObject)
	e.emit1(bytecode.UnboxR8)
	e.push(bytecode.KindFloat)
}

// ---------- Branches ----------

// Br emits an unconditional branch to label, and marks the following code
// stack-indeterminate until the next label definition, matching the Label
// Manager rule for code after an unconditional terminator.
func (e *Emitter) Br(label *Label) {
	e.emit1(bytecode.Br)
	e.labels.reference(e, label, e.offset())
	e.emitI32(0)
	e.markTerminator(label)
}

func (e *Emitter) branchPop1(op bytecode.Op, label *Label, k bytecode.OperandKind) {
	e.pop(k)
	e.emit1(op)
	e.labels.reference(e, label, e.offset())
	e.emitI32(0)
}

func (e *Emitter) BrTrue(label *Label)  { e.branchPop1(bytecode.BrTrue, label, bytecode.KindInt32) }
func (e *Emitter) BrFalse(label *Label) { e.branchPop1(bytecode.BrFalse, label, bytecode.KindInt32) }

func (e *Emitter) branchPop2(op bytecode.Op, label *Label, k bytecode.OperandKind) {
	e.pop(k)
	e.pop(k)
	e.emit1(op)
	e.labels.reference(e, label, e.offset())
	e.emitI32(0)
}

func (e *Emitter) BeqF(l *Label) { e.branchPop2(bytecode.BeqF, l, bytecode.KindFloat) }
func (e *Emitter) BneF(l *Label) { e.branchPop2(bytecode.BneF, l, bytecode.KindFloat) }
func (e *Emitter) BltF(l *Label) { e.branchPop2(bytecode.BltF, l, bytecode.KindFloat) }
func (e *Emitter) BleF(l *Label) { e.branchPop2(bytecode.BleF, l, bytecode.KindFloat) }
func (e *Emitter) BgtF(l *Label) { e.branchPop2(bytecode.BgtF, l, bytecode.KindFloat) }
func (e *Emitter) BgeF(l *Label) { e.branchPop2(bytecode.BgeF, l, bytecode.KindFloat) }
func (e *Emitter) BeqI4(l *Label) { e.branchPop2(bytecode.BeqI4, l, bytecode.KindInt32) }
func (e *Emitter) BneI4(l *Label) { e.branchPop2(bytecode.BneI4, l, bytecode.KindInt32) }
func (e *Emitter) BltI4(l *Label) { e.branchPop2(bytecode.BltI4, l, bytecode.KindInt32) }
func (e *Emitter) BleI4(l *Label) { e.branchPop2(bytecode.BleI4, l, bytecode.KindInt32) }
func (e *Emitter) BgtI4(l *Label) { e.branchPop2(bytecode.BgtI4, l, bytecode.KindInt32) }
func (e *Emitter) BgeI4(l *Label) { e.branchPop2(bytecode.BgeI4, l, bytecode.KindInt32) }

// Switch pops an Int32 selector and branches to labels[selector], falling
// through if the selector is out of range.
func (e *Emitter) Switch(labels []*Label) {
	e.pop(bytecode.KindInt32)
	e.emit1(bytecode.Switch)
	e.emitU32(uint32(len(labels)))
	for _, l := range labels {
		e.labels.reference(e, l, e.offset())
		e.emitI32(0)
	}
}

func (e *Emitter) markTerminator(defined *Label) {
	e.stackIndeterminate = true
	e.stack = e.stack[:0]
}

// ---------- Return ----------

func (e *Emitter) Ret0() {
	e.emit1(bytecode.Ret0)
	e.stackIndeterminate = true
	e.stack = e.stack[:0]
}

func (e *Emitter) Ret1() {
	e.pop(bytecode.KindObject)
	e.emit1(bytecode.Ret1)
	e.stackIndeterminate = true
	e.stack = e.stack[:0]
}

// ---------- Calls ----------

func (e *Emitter) CallValue(argc int) {
	for i := 0; i < argc; i++ {
		e.pop(bytecode.KindObject)
	}
	e.pop(bytecode.KindObject) // callee
	e.emit1(bytecode.CallValue)
	e.emitU32(uint32(argc))
	e.push(bytecode.KindObject)
}

func (e *Emitter) CallStatic(funcIndex, argc int) {
	for i := 0; i < argc; i++ {
		e.pop(bytecode.KindObject)
	}
	e.emit1(bytecode.CallStatic)
	e.emitU32(uint32(funcIndex))
	e.emitU32(uint32(argc))
	e.push(bytecode.KindObject)
}

func (e *Emitter) CallBuiltin(builtinID, argc int) {
	for i := 0; i < argc; i++ {
		e.pop(bytecode.KindObject)
	}
	e.emit1(bytecode.CallBuiltin)
	e.emitU32(uint32(builtinID))
	e.emitU32(uint32(argc))
	e.push(bytecode.KindObject)
}

func (e *Emitter) Construct(argc int) {
	for i := 0; i < argc; i++ {
		e.pop(bytecode.KindObject)
	}
	e.pop(bytecode.KindObject) // constructor
	e.emit1(bytecode.Construct)
	e.emitU32(uint32(argc))
	e.push(bytecode.KindObject)
}

// ---------- Objects / arrays / properties ----------

func (e *Emitter) NewObj() {
	e.emit1(bytecode.NewObj)
	e.push(bytecode.KindObject)
}

func (e *Emitter) NewArr(count int) {
	for i := 0; i < count; i++ {
		e.pop(bytecode.KindObject)
	}
	e.emit1(bytecode.NewArr)
	e.emitU32(uint32(count))
	e.push(bytecode.KindObject)
}

func (e *Emitter) NewClosure(funcIndex int) {
	e.emit1(bytecode.NewClosure)
	e.emitU32(uint32(funcIndex))
	e.push(bytecode.KindObject)
}

// fieldOp is shared by LdFld/StFld/HasFld: each takes a field-name string
// token plus an inline-cache site index allocated by internal/scope.
func (e *Emitter) fieldNameToken(name string) uint32 { return uint32(e.strings.intern(name)) }

func (e *Emitter) LdFld(name string, cacheSite int) {
	e.pop(bytecode.KindObject)
	e.emit1(bytecode.LdFld)
	e.emitU32(e.fieldNameToken(name))
	e.emitU32(uint32(cacheSite))
	e.push(bytecode.KindObject)
}

func (e *Emitter) StFld(name string, cacheSite int) {
	e.pop(bytecode.KindObject) // value
	e.pop(bytecode.KindObject) // receiver
	e.emit1(bytecode.StFld)
	e.emitU32(e.fieldNameToken(name))
	e.emitU32(uint32(cacheSite))
}

func (e *Emitter) HasFld(name string, cacheSite int) {
	e.pop(bytecode.KindObject)
	e.emit1(bytecode.HasFld)
	e.emitU32(e.fieldNameToken(name))
	e.emitU32(uint32(cacheSite))
	e.push(bytecode.KindInt32)
}

func (e *Emitter) LdElem() {
	e.pop(bytecode.KindObject) // key
	e.pop(bytecode.KindObject) // object
	e.emit1(bytecode.LdElem)
	e.push(bytecode.KindObject)
}

func (e *Emitter) StElem() {
	e.pop(bytecode.KindObject) // value
	e.pop(bytecode.KindObject) // key
	e.pop(bytecode.KindObject) // object
	e.emit1(bytecode.StElem)
}

func (e *Emitter) LdScopeUp() {
	e.pop(bytecode.KindObject)
	e.emit1(bytecode.LdScopeUp)
	e.push(bytecode.KindObject)
}

// GetScope resolves name against the runtime scope chain rooted at arg0
// (internal/scope.GenerateGet), throwing ReferenceError on a complete miss.
func (e *Emitter) GetScope(name string, cacheSite int) {
	e.emit1(bytecode.GetScope)
	e.emitU32(e.fieldNameToken(name))
	e.emitU32(uint32(cacheSite))
	e.push(bytecode.KindObject)
}

// SetScope is GetScope's write-side counterpart (internal/scope.GenerateSet).
func (e *Emitter) SetScope(name string, cacheSite int) {
	e.pop(bytecode.KindObject)
	e.emit1(bytecode.SetScope)
	e.emitU32(e.fieldNameToken(name))
	e.emitU32(uint32(cacheSite))
}

// ---------- Exceptions ----------

func (e *Emitter) Throw() {
	e.pop(bytecode.KindObject)
	e.emit1(bytecode.Throw)
	e.stackIndeterminate = true
	e.stack = e.stack[:0]
}

// Leave clears the evaluation stack before branching — unlike Br, which
// preserves whatever depth is live at the branch site — since it exits a
// try/catch/filter-handler region where residual operands must never leak
// past the region boundary (spec §4.4).
func (e *Emitter) Leave(label *Label) {
	e.emit1(bytecode.Leave)
	e.stack = e.stack[:0]
	e.labels.reference(e, label, e.offset())
	e.emitI32(0)
	e.stackIndeterminate = true
}

func (e *Emitter) EndFinally() {
	e.emit1(bytecode.EndFinally)
	e.stackIndeterminate = true
	e.stack = e.stack[:0]
}

func (e *Emitter) EndFilter() {
	e.pop(bytecode.KindInt32)
	e.emit1(bytecode.EndFilter)
	e.push(bytecode.KindObject)
}

func (e *Emitter) Breakpoint() { e.emit1(bytecode.Breakpoint) }

// ---------- Labels ----------

func (e *Emitter) NewLabel() *Label { return e.labels.newLabel() }

// MarkLabel defines label at the current offset. If a branch already
// targets label, the abstract stack is reset to that branch's recorded
// depth (as Object placeholders); otherwise the current depth is recorded,
// after first emptying the stack if the preceding code left it
// indeterminate (an unconditional transfer such as Br or Throw).
func (e *Emitter) MarkLabel(label *Label) {
	e.labels.mark(e, label, e.offset())
}

// StackDepth exposes the abstract stack depth, for codegen-level assertions
// in tests.
func (e *Emitter) StackDepth() int { return len(e.stack) }

// Complete finalizes the routine: resolves every label reference into a
// 4-byte relative branch offset (target - offset_of_next_instruction) and
// returns the assembled code plus the high-water mark of the abstract
// stack. It fails if any label was referenced but never marked.
func (e *Emitter) Complete() ([]byte, int, error) {
	if e.err != nil {
		return nil, 0, e.err
	}
	if err := e.labels.resolve(e.code); err != nil {
		return nil, 0, err
	}
	return e.code, e.maxStack, nil
}
