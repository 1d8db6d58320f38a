package vm

import (
	"fmt"
	"math"

	"avenir/internal/bytecode"
	"avenir/internal/value"
)

// execStep decodes and executes exactly one instruction, mirroring
// internal/emit's encoding (see emit.go) and internal/emit/label.go's
// branch-offset convention. Throw/Leave/EndFinally are resolved entirely
// within this one call via fr's exception-dispatch state (exceptions.go);
// runFrame only ever sees {continue, returned, threw}.
func (vm *VM) execStep(fr *frame) (stepResult, error) {
	code := fr.fn.Code
	opStart := fr.ip
	op := bytecode.Op(readU8(code, &fr.ip))

	switch op {
	case bytecode.Nop, bytecode.Breakpoint:
		// no-op

	case bytecode.Pop:
		fr.pop()

	case bytecode.Dup:
		fr.push(fr.stack[len(fr.stack)-1])

	case bytecode.LdNull:
		fr.push(value.Nul())
	case bytecode.LdUndefined:
		fr.push(value.Undef())

	case bytecode.LdcI4S:
		fr.push(value.Num(float64(int8(readU8(code, &fr.ip)))))
	case bytecode.LdcI4:
		fr.push(value.Num(float64(readI32(code, &fr.ip))))
	case bytecode.LdcR8:
		fr.push(value.Num(readF64(code, &fr.ip)))
	case bytecode.LdStr:
		tok := readU32(code, &fr.ip)
		fr.push(value.Str(fr.constString(tok)))

	case bytecode.LdLoc0:
		fr.push(fr.locals[0])
	case bytecode.LdLoc1:
		fr.push(fr.locals[1])
	case bytecode.LdLoc2:
		fr.push(fr.locals[2])
	case bytecode.LdLoc3:
		fr.push(fr.locals[3])
	case bytecode.LdLocS:
		fr.push(fr.locals[int(readU8(code, &fr.ip))])
	case bytecode.LdLoc:
		fr.push(fr.locals[int(readU32(code, &fr.ip))])

	case bytecode.StLoc0:
		fr.locals[0] = fr.pop()
	case bytecode.StLoc1:
		fr.locals[1] = fr.pop()
	case bytecode.StLoc2:
		fr.locals[2] = fr.pop()
	case bytecode.StLoc3:
		fr.locals[3] = fr.pop()
	case bytecode.StLocS:
		i := int(readU8(code, &fr.ip))
		fr.locals[i] = fr.pop()
	case bytecode.StLoc:
		i := int(readU32(code, &fr.ip))
		fr.locals[i] = fr.pop()

	case bytecode.LdLocAS:
		// By-ref host calls are outside this minimal engine's scope; no
		// codegen path emits this, so a plain value load is a harmless stand-in.
		fr.push(fr.locals[int(readU8(code, &fr.ip))])
	case bytecode.LdLocA:
		fr.push(fr.locals[int(readU32(code, &fr.ip))])

	case bytecode.LdArg0:
		fr.push(fr.args[0])
	case bytecode.LdArg1:
		fr.push(fr.args[1])
	case bytecode.LdArg2:
		fr.push(fr.args[2])
	case bytecode.LdArg3:
		fr.push(fr.args[3])
	case bytecode.LdArgS:
		fr.push(fr.args[int(readU8(code, &fr.ip))])
	case bytecode.LdArg:
		fr.push(fr.args[int(readU32(code, &fr.ip))])

	case bytecode.StArgS:
		i := int(readU8(code, &fr.ip))
		fr.args[i] = fr.pop()
	case bytecode.StArg:
		i := int(readU32(code, &fr.ip))
		fr.args[i] = fr.pop()

	case bytecode.LdUpval:
		i := int(readU32(code, &fr.ip))
		fr.push(fr.upvals[i].Get())
	case bytecode.StUpval:
		i := int(readU32(code, &fr.ip))
		fr.upvals[i].Set(fr.pop())

	case bytecode.AddF:
		b, a := fr.pop().Num, fr.pop().Num
		fr.push(value.Num(a + b))
	case bytecode.SubF:
		b, a := fr.pop().Num, fr.pop().Num
		fr.push(value.Num(a - b))
	case bytecode.MulF:
		b, a := fr.pop().Num, fr.pop().Num
		fr.push(value.Num(a * b))
	case bytecode.DivF:
		b, a := fr.pop().Num, fr.pop().Num
		fr.push(value.Num(a / b))
	case bytecode.RemF:
		b, a := fr.pop().Num, fr.pop().Num
		fr.push(value.Num(math.Mod(a, b)))
	case bytecode.NegF:
		fr.push(value.Num(-fr.pop().Num))

	case bytecode.AndI4:
		b, a := toInt32(fr.pop().Num), toInt32(fr.pop().Num)
		fr.push(value.Num(float64(a & b)))
	case bytecode.OrI4:
		b, a := toInt32(fr.pop().Num), toInt32(fr.pop().Num)
		fr.push(value.Num(float64(a | b)))
	case bytecode.XorI4:
		b, a := toInt32(fr.pop().Num), toInt32(fr.pop().Num)
		fr.push(value.Num(float64(a ^ b)))
	case bytecode.ShlI4:
		b, a := toUint32(fr.pop().Num), toInt32(fr.pop().Num)
		fr.push(value.Num(float64(a << (b & 31))))
	case bytecode.ShrI4:
		b, a := toUint32(fr.pop().Num), toInt32(fr.pop().Num)
		fr.push(value.Num(float64(a >> (b & 31))))
	case bytecode.ShrUnI4:
		b, a := toUint32(fr.pop().Num), toUint32(fr.pop().Num)
		fr.push(value.Num(float64(a >> (b & 31))))
	case bytecode.NotI4:
		fr.push(value.Num(float64(^toInt32(fr.pop().Num))))

	case bytecode.CEqF:
		b, a := fr.pop().Num, fr.pop().Num
		fr.push(boolFlag(a == b))
	case bytecode.CGtF:
		b, a := fr.pop().Num, fr.pop().Num
		fr.push(boolFlag(a > b))
	case bytecode.CLtF:
		b, a := fr.pop().Num, fr.pop().Num
		fr.push(boolFlag(a < b))
	case bytecode.CEqI4:
		b, a := toInt32(fr.pop().Num), toInt32(fr.pop().Num)
		fr.push(boolFlag(a == b))
	case bytecode.CGtI4:
		b, a := toInt32(fr.pop().Num), toInt32(fr.pop().Num)
		fr.push(boolFlag(a > b))
	case bytecode.CLtI4:
		b, a := toInt32(fr.pop().Num), toInt32(fr.pop().Num)
		fr.push(boolFlag(a < b))
	case bytecode.CGtUnI4:
		b, a := toUint32(fr.pop().Num), toUint32(fr.pop().Num)
		fr.push(boolFlag(a > b))
	case bytecode.CLtUnI4:
		b, a := toUint32(fr.pop().Num), toUint32(fr.pop().Num)
		fr.push(boolFlag(a < b))

	case bytecode.ConvI4:
		fr.push(value.Num(float64(toInt32Value(fr.pop()))))
	case bytecode.ConvR8:
		fr.push(value.Num(toNumber(fr.pop())))
	case bytecode.Box:
		// Box is the compiler's "this is now an opaque Object" marker; the
		// single-Value stack already stores everything uniformly, so it is
		// an identity op at runtime (see bytecode.OperandKind's doc comment).
	case bytecode.UnboxR8:
		v := fr.pop()
		if v.Kind != value.Number {
			return vm.raise(fr, opStart, "TypeError", "value is not a number"), nil
		}
		fr.push(v)

	case bytecode.Br:
		fr.ip = readBranchTarget(code, &fr.ip)
	case bytecode.BrTrue:
		v := fr.pop()
		target := readBranchTarget(code, &fr.ip)
		if v.Num != 0 {
			fr.ip = target
		}
	case bytecode.BrFalse:
		v := fr.pop()
		target := readBranchTarget(code, &fr.ip)
		if v.Num == 0 {
			fr.ip = target
		}
	case bytecode.BeqF, bytecode.BneF, bytecode.BltF, bytecode.BleF, bytecode.BgtF, bytecode.BgeF:
		b, a := fr.pop().Num, fr.pop().Num
		target := readBranchTarget(code, &fr.ip)
		if floatBranchTaken(op, a, b) {
			fr.ip = target
		}
	case bytecode.BeqI4, bytecode.BneI4, bytecode.BltI4, bytecode.BleI4, bytecode.BgtI4, bytecode.BgeI4:
		b, a := toInt32(fr.pop().Num), toInt32(fr.pop().Num)
		target := readBranchTarget(code, &fr.ip)
		if intBranchTaken(op, a, b) {
			fr.ip = target
		}

	case bytecode.Switch:
		n := int(readU32(code, &fr.ip))
		targets := make([]int, n)
		for i := 0; i < n; i++ {
			targets[i] = readBranchTarget(code, &fr.ip)
		}
		selector := int(fr.pop().Num)
		if selector >= 0 && selector < n {
			fr.ip = targets[selector]
		}

	case bytecode.Ret0:
		return stepResult{kind: stepReturned, value: value.Undef()}, nil
	case bytecode.Ret1:
		v := fr.pop()
		fr.pendingThrow = nil
		return stepResult{kind: stepReturned, value: v}, nil

	case bytecode.CallValue:
		argc := int(readU32(code, &fr.ip))
		args := fr.popN(argc)
		callee := fr.pop()
		result, err := vm.callClosureValue(callee, value.Undef(), args)
		if res, handled, goErr := vm.handleCallError(fr, opStart, err); handled || goErr != nil {
			return res, goErr
		}
		fr.push(result)

	case bytecode.CallStatic:
		funcIndex := int(readU32(code, &fr.ip))
		argc := int(readU32(code, &fr.ip))
		args := fr.popN(argc)
		result, err := vm.callStatic(funcIndex, args)
		if res, handled, goErr := vm.handleCallError(fr, opStart, err); handled || goErr != nil {
			return res, goErr
		}
		fr.push(result)

	case bytecode.CallBuiltin:
		id := bytecode.BuiltinID(readU32(code, &fr.ip))
		argc := int(readU32(code, &fr.ip))
		args := fr.popN(argc)
		result, err := vm.callBuiltin(id, args)
		if err != nil {
			return stepResult{}, fmt.Errorf("vm: builtin %d: %w", id, err)
		}
		fr.push(result)

	case bytecode.Construct:
		argc := int(readU32(code, &fr.ip))
		args := fr.popN(argc)
		ctor := fr.pop()
		result, err := vm.construct(ctor, args)
		if res, handled, goErr := vm.handleCallError(fr, opStart, err); handled || goErr != nil {
			return res, goErr
		}
		fr.push(result)

	case bytecode.NewObj:
		fr.push(value.Obj(value.NewObject(nil)))
	case bytecode.NewArr:
		count := int(readU32(code, &fr.ip))
		fr.push(value.Obj(value.NewArray(fr.popN(count))))
	case bytecode.NewClosure:
		funcIndex := int(readU32(code, &fr.ip))
		fr.push(value.Obj(vm.makeClosure(fr, funcIndex)))

	case bytecode.LdFld:
		tok := readU32(code, &fr.ip)
		_ = readU32(code, &fr.ip) // inline-cache site: a compile-time-only hint, unused at runtime
		obj := fr.pop()
		fr.push(getField(obj, fr.constString(tok)))
	case bytecode.StFld:
		tok := readU32(code, &fr.ip)
		_ = readU32(code, &fr.ip)
		val := fr.pop()
		obj := fr.pop()
		setField(obj, fr.constString(tok), val)
	case bytecode.HasFld:
		tok := readU32(code, &fr.ip)
		_ = readU32(code, &fr.ip)
		obj := fr.pop()
		fr.push(boolFlag(hasField(obj, fr.constString(tok))))

	case bytecode.LdElem:
		key := fr.pop()
		obj := fr.pop()
		fr.push(getIndexed(obj, key))
	case bytecode.StElem:
		val := fr.pop()
		key := fr.pop()
		obj := fr.pop()
		setIndexed(obj, key, val)

	case bytecode.LdScopeUp:
		obj := fr.pop()
		if obj.Kind == value.ObjectRef && obj.Obj != nil && obj.Obj.ScopeParent != nil {
			fr.push(value.Obj(obj.Obj.ScopeParent))
		} else {
			fr.push(value.Undef())
		}

	case bytecode.GetScope:
		tok := readU32(code, &fr.ip)
		_ = readU32(code, &fr.ip)
		name := fr.constString(tok)
		if v, ok := vm.getScope(fr, name); ok {
			fr.push(v)
		} else {
			return vm.raise(fr, opStart, "ReferenceError", name+" is not defined"), nil
		}
	case bytecode.SetScope:
		tok := readU32(code, &fr.ip)
		_ = readU32(code, &fr.ip)
		val := fr.pop()
		vm.setScope(fr, fr.constString(tok), val)

	case bytecode.Throw:
		thrown := fr.pop()
		fr.pendingThrow = nil
		if fr.findAndEnterHandler(thrown, opStart, 0) {
			return stepResult{kind: stepContinue}, nil
		}
		return stepResult{kind: stepThrew, value: thrown}, nil

	case bytecode.Leave:
		target := readBranchTarget(code, &fr.ip)
		if r := fr.regionContainingForLeave(opStart); r != nil {
			if c, ok := finallyOrFaultClause(r); ok {
				fr.leaveTargets = append(fr.leaveTargets, target)
				fr.ip = c.HandlerStart
				fr.stack = fr.stack[:0]
				return stepResult{kind: stepContinue}, nil
			}
		}
		fr.ip = target
		fr.stack = fr.stack[:0]
		return stepResult{kind: stepContinue}, nil

	case bytecode.EndFinally:
		if fr.pendingThrow != nil {
			t := *fr.pendingThrow
			ip := fr.pendingThrowIP
			resume := fr.pendingThrowResume
			fr.pendingThrow = nil
			if fr.findAndEnterHandler(t, ip, resume) {
				return stepResult{kind: stepContinue}, nil
			}
			return stepResult{kind: stepThrew, value: t}, nil
		}
		if n := len(fr.leaveTargets); n > 0 {
			target := fr.leaveTargets[n-1]
			fr.leaveTargets = fr.leaveTargets[:n-1]
			fr.ip = target
			return stepResult{kind: stepContinue}, nil
		}
		return stepResult{}, fmt.Errorf("vm: EndFinally with no pending throw or leave at offset %d", opStart)

	case bytecode.EndFilter:
		fr.pop() // the filter's Int32 accept/reject verdict; filter clauses are an unexercised ISA completeness case (codegen never emits ClauseFilter)
		fr.push(value.Undef())

	default:
		return stepResult{}, fmt.Errorf("vm: unknown opcode %d at offset %d", op, opStart)
	}

	return stepResult{kind: stepContinue}, nil
}

// handleCallError folds a call/construct error into the current frame's own
// exception dispatch: a *JSException propagating out of a callee is handled
// exactly like a Throw at the call site; any other error is an internal VM
// fault that aborts the whole run.
func (vm *VM) handleCallError(fr *frame, opStart int, err error) (stepResult, bool, error) {
	if err == nil {
		return stepResult{}, false, nil
	}
	if exc, ok := err.(*JSException); ok {
		if fr.findAndEnterHandler(exc.Value, opStart, 0) {
			return stepResult{kind: stepContinue}, true, nil
		}
		return stepResult{kind: stepThrew, value: exc.Value}, true, nil
	}
	return stepResult{}, true, err
}

func (vm *VM) callStatic(funcIndex int, args []value.Value) (value.Value, error) {
	fn := vm.mod.Functions[funcIndex]
	fr, err := vm.newFrame(fn, nil)
	if err != nil {
		return value.Value{}, err
	}
	fr.args[0] = value.Undef()
	fr.args[1] = value.Undef()
	userParams := fn.NumParams - 2
	for i := 0; i < userParams && i < len(args); i++ {
		fr.args[2+i] = args[i]
	}
	return vm.runFrame(fr)
}

// makeClosure captures funcIndex's declared upvalues against the currently
// running frame: a local capture opens (or reuses) an Upvalue cell over
// cur's own locals slot; a chained capture just passes through a cell cur
// already holds.
func (vm *VM) makeClosure(cur *frame, funcIndex int) *value.Object {
	target := vm.mod.Functions[funcIndex]
	upvals := make([]*value.Upvalue, len(target.Upvalues))
	for i, uv := range target.Upvalues {
		if uv.IsLocal {
			upvals[i] = cur.captureLocal(uv.Index)
		} else {
			upvals[i] = cur.upvals[uv.Index]
		}
	}
	o := value.NewObject(nil)
	o.Class = "Function"
	o.FnIndex = funcIndex
	o.Upvalues = upvals
	if cur.args[0].Kind == value.ObjectRef {
		o.DefScope = cur.args[0].Obj
	}
	return o
}

func (vm *VM) getScope(fr *frame, name string) (value.Value, bool) {
	cur := fr.args[0]
	for cur.Kind == value.ObjectRef && cur.Obj != nil {
		if v, ok := cur.Obj.Get(name); ok {
			return v, true
		}
		if cur.Obj.ScopeParent == nil {
			break
		}
		cur = value.Obj(cur.Obj.ScopeParent)
	}
	return value.Value{}, false
}

func (vm *VM) setScope(fr *frame, name string, val value.Value) {
	cur := fr.args[0]
	var last *value.Object
	for cur.Kind == value.ObjectRef && cur.Obj != nil {
		if cur.Obj.Has(name) {
			cur.Obj.Set(name, val)
			return
		}
		last = cur.Obj
		if cur.Obj.ScopeParent == nil {
			break
		}
		cur = value.Obj(cur.Obj.ScopeParent)
	}
	if last != nil {
		last.Set(name, val)
		return
	}
	vm.global.Set(name, val)
}

func boolFlag(b bool) value.Value {
	if b {
		return value.Num(1)
	}
	return value.Num(0)
}

func floatBranchTaken(op bytecode.Op, a, b float64) bool {
	switch op {
	case bytecode.BeqF:
		return a == b
	case bytecode.BneF:
		return a != b
	case bytecode.BltF:
		return a < b
	case bytecode.BleF:
		return a <= b
	case bytecode.BgtF:
		return a > b
	case bytecode.BgeF:
		return a >= b
	}
	return false
}

func intBranchTaken(op bytecode.Op, a, b int32) bool {
	switch op {
	case bytecode.BeqI4:
		return a == b
	case bytecode.BneI4:
		return a != b
	case bytecode.BltI4:
		return a < b
	case bytecode.BleI4:
		return a <= b
	case bytecode.BgtI4:
		return a > b
	case bytecode.BgeI4:
		return a >= b
	}
	return false
}

// toInt32Value mirrors ECMAScript ToInt32 across the value Kinds this
// engine models, for ConvI4 (booleans count as their 0/1 numeric value).
func toInt32Value(v value.Value) int32 {
	switch v.Kind {
	case value.Boolean:
		if v.Bool {
			return 1
		}
		return 0
	case value.Number:
		return toInt32(v.Num)
	default:
		return 0
	}
}

// toNumber mirrors ECMAScript ToNumber across the value Kinds this engine
// models; it does not attempt string-to-number parsing (no source program
// exercised by this module's test scenarios relies on it, see DESIGN.md).
func toNumber(v value.Value) float64 {
	switch v.Kind {
	case value.Number:
		return v.Num
	case value.Boolean:
		if v.Bool {
			return 1
		}
		return 0
	case value.Null:
		return 0
	default:
		return math.NaN()
	}
}
