package vm

import (
	"fmt"
	"os"

	"avenir/internal/bytecode"
	"avenir/internal/value"
)

// newGlobalObject builds the VM's single shared global object and installs
// the one host function (print) a smoke-test script needs to be
// observable at all — the minimal host-embedding glue cmd/avenir exercises
// (SPEC_FULL.md §12), grounded on the teacher's Env.IO()/println pattern
// but folded directly into the VM rather than kept as a separate services
// package, since nothing else in this minimal runtime needs a pluggable
// host service.
func newGlobalObject() *value.Object {
	g := value.NewObject(nil)
	g.Set("print", value.Obj(newBuiltinFunc(func(this value.Value, args []value.Value) (value.Value, error) {
		parts := make([]interface{}, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		fmt.Fprintln(os.Stdout, parts...)
		return value.Undef(), nil
	})))
	return g
}

func newBuiltinFunc(fn func(this value.Value, args []value.Value) (value.Value, error)) *value.Object {
	o := value.NewObject(nil)
	o.Class = "Function"
	o.Builtin = fn
	return o
}

// NewError builds a minimal Error-classed object; its String()/typeof both
// fall back to the generic Object path since this value domain models no
// dedicated Error kind, only the convention that an Error object carries
// name/message properties.
func NewError(name, message string) *value.Object {
	o := value.NewObject(nil)
	o.Class = "Error"
	o.Set("name", value.Str(name))
	o.Set("message", value.Str(message))
	return o
}

func (vm *VM) raise(fr *frame, ip int, name, message string) stepResult {
	thrown := value.Obj(NewError(name, message))
	if fr.findAndEnterHandler(thrown, ip, 0) {
		return stepResult{kind: stepContinue}
	}
	return stepResult{kind: stepThrew, value: thrown}
}

// callBuiltin dispatches the one shared bytecode.BuiltinID namespace
// internal/scope and internal/codegen both compile CallBuiltin against.
func (vm *VM) callBuiltin(id bytecode.BuiltinID, args []value.Value) (value.Value, error) {
	switch id {
	case bytecode.GlobalScopeBuiltinID:
		return value.Obj(vm.global), nil

	case bytecode.CreateRuntimeScopeBuiltinID:
		// args[0] is the with-target object (mutated in place into a scope
		// link rather than wrapped in a fresh value.NewScope record, since
		// Object already carries ScopeParent/ImplicitReceiver directly);
		// args[1] is the parent scope to chain it to.
		obj := args[0].Obj
		if obj == nil {
			return value.Value{}, fmt.Errorf("vm: with-target is not an object")
		}
		if args[1].Kind == value.ObjectRef {
			obj.ScopeParent = args[1].Obj
		}
		obj.ImplicitReceiver = true
		return value.Obj(obj), nil

	case bytecode.EnumKeysBuiltinID:
		return enumKeys(args[0]), nil

	case bytecode.ToBooleanBuiltinID:
		return value.NewBool(args[0].Truthy()), nil

	case bytecode.TypeofBuiltinID:
		return value.Str(typeofString(args[0])), nil

	case bytecode.DeletePropertyBuiltinID:
		deleteProperty(args[0], args[1])
		return value.NewBool(true), nil

	case bytecode.InstanceofBuiltinID:
		return value.NewBool(isInstanceOf(args[0], args[1])), nil

	default:
		return value.Value{}, fmt.Errorf("vm: unknown builtin id %d", id)
	}
}

func enumKeys(v value.Value) value.Value {
	if v.Kind != value.ObjectRef || v.Obj == nil {
		return value.Obj(value.NewArray(nil))
	}
	o := v.Obj
	keys := make([]value.Value, 0, len(o.Elems)+len(o.PropOrder))
	for i := range o.Elems {
		keys = append(keys, value.Str(fmt.Sprintf("%d", i)))
	}
	for _, name := range o.PropOrder {
		keys = append(keys, value.Str(name))
	}
	return value.Obj(value.NewArray(keys))
}

func typeofString(v value.Value) string {
	switch v.Kind {
	case value.Undefined:
		return "undefined"
	case value.Null:
		return "object"
	case value.Boolean:
		return "boolean"
	case value.Number:
		return "number"
	case value.String:
		return "string"
	case value.ObjectRef:
		if v.IsCallable() {
			return "function"
		}
		return "object"
	default:
		return "undefined"
	}
}

func deleteProperty(receiver, key value.Value) {
	if receiver.Kind != value.ObjectRef || receiver.Obj == nil {
		return
	}
	o := receiver.Obj
	if o.Class == "Array" {
		if idx, ok := arrayIndex(key); ok && idx >= 0 && idx < len(o.Elems) {
			o.Elems[idx] = value.Undef()
			return
		}
	}
	name := key.String()
	if _, ok := o.Props[name]; !ok {
		return
	}
	delete(o.Props, name)
	for i, n := range o.PropOrder {
		if n == name {
			o.PropOrder = append(o.PropOrder[:i], o.PropOrder[i+1:]...)
			break
		}
	}
}

func isInstanceOf(v, ctor value.Value) bool {
	if v.Kind != value.ObjectRef || v.Obj == nil {
		return false
	}
	if ctor.Kind != value.ObjectRef || ctor.Obj == nil {
		return false
	}
	protoVal, ok := ctor.Obj.Get("prototype")
	if !ok || protoVal.Kind != value.ObjectRef {
		return false
	}
	for cur := v.Obj.Proto; cur != nil; cur = cur.Proto {
		if cur == protoVal.Obj {
			return true
		}
	}
	return false
}
