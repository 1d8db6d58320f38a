package vm

import "avenir/internal/value"

func arrayIndex(v value.Value) (int, bool) {
	if v.Kind != value.Number {
		return 0, false
	}
	if v.Num < 0 || v.Num != float64(int(v.Num)) {
		return 0, false
	}
	return int(v.Num), true
}

func getField(obj value.Value, name string) value.Value {
	if obj.Kind != value.ObjectRef || obj.Obj == nil {
		return value.Undef()
	}
	if obj.Obj.Class == "Array" && name == "length" {
		return value.Num(float64(len(obj.Obj.Elems)))
	}
	if v, ok := obj.Obj.Get(name); ok {
		return v
	}
	return value.Undef()
}

func setField(obj value.Value, name string, val value.Value) {
	if obj.Kind != value.ObjectRef || obj.Obj == nil {
		return
	}
	if obj.Obj.Class == "Array" && name == "length" {
		if n, ok := arrayIndex(val); ok {
			growOrTruncate(obj.Obj, n)
		}
		return
	}
	obj.Obj.Set(name, val)
}

func hasField(obj value.Value, name string) bool {
	if obj.Kind != value.ObjectRef || obj.Obj == nil {
		return false
	}
	if obj.Obj.Class == "Array" && name == "length" {
		return true
	}
	return obj.Obj.Has(name)
}

func growOrTruncate(o *value.Object, n int) {
	if n < len(o.Elems) {
		o.Elems = o.Elems[:n]
		return
	}
	for len(o.Elems) < n {
		o.Elems = append(o.Elems, value.Undef())
	}
}

func getIndexed(obj, key value.Value) value.Value {
	if obj.Kind != value.ObjectRef || obj.Obj == nil {
		return value.Undef()
	}
	o := obj.Obj
	if o.Class == "Array" {
		if idx, ok := arrayIndex(key); ok {
			if idx >= 0 && idx < len(o.Elems) {
				return o.Elems[idx]
			}
			return value.Undef()
		}
	}
	return getField(obj, key.String())
}

func setIndexed(obj, key, val value.Value) {
	if obj.Kind != value.ObjectRef || obj.Obj == nil {
		return
	}
	o := obj.Obj
	if o.Class == "Array" {
		if idx, ok := arrayIndex(key); ok {
			growOrTruncate(o, idx+1)
			o.Elems[idx] = val
			return
		}
	}
	setField(obj, key.String(), val)
}

// callClosureValue invokes callee (a plain closure or a host builtin) with
// the given `this` and user-visible args, returning a *JSException if the
// call threw and the exception propagated out of it uncaught.
func (vm *VM) callClosureValue(callee, this value.Value, args []value.Value) (value.Value, error) {
	if callee.Kind != value.ObjectRef || callee.Obj == nil {
		return value.Value{}, &JSException{Value: value.Obj(NewError("TypeError", "value is not callable"))}
	}
	obj := callee.Obj
	if obj.Builtin != nil {
		return obj.Builtin(this, args)
	}
	if obj.FnIndex < 0 || obj.FnIndex >= len(vm.mod.Functions) {
		return value.Value{}, &JSException{Value: value.Obj(NewError("TypeError", "value is not callable"))}
	}
	fn := vm.mod.Functions[obj.FnIndex]
	fr, err := vm.newFrame(fn, obj.Upvalues)
	if err != nil {
		return value.Value{}, err
	}
	scopeVal := value.Undef()
	if obj.DefScope != nil {
		scopeVal = value.Obj(obj.DefScope)
	}
	fr.args[0] = scopeVal
	fr.args[1] = this
	userParams := fn.NumParams - 2
	for i := 0; i < userParams; i++ {
		if i < len(args) {
			fr.args[2+i] = args[i]
		} else {
			fr.args[2+i] = value.Undef()
		}
	}
	return vm.runFrame(fr)
}

// construct implements `new`: a fresh object linked to the constructor's
// "prototype" property becomes `this`; an explicit object return from the
// constructor wins over it, per ECMAScript's `new` semantics.
func (vm *VM) construct(ctor value.Value, args []value.Value) (value.Value, error) {
	if ctor.Kind != value.ObjectRef || ctor.Obj == nil || ctor.Obj.FnIndex < 0 {
		return value.Value{}, &JSException{Value: value.Obj(NewError("TypeError", "not a constructor"))}
	}
	var proto *value.Object
	if protoVal, ok := ctor.Obj.Get("prototype"); ok && protoVal.Kind == value.ObjectRef {
		proto = protoVal.Obj
	}
	this := value.Obj(value.NewObject(proto))
	result, err := vm.callClosureValue(ctor, this, args)
	if err != nil {
		return value.Value{}, err
	}
	if result.Kind == value.ObjectRef {
		return result, nil
	}
	return this, nil
}
