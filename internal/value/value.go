// Package value is the minimal runtime value domain carried as test
// infrastructure for internal/codegen (see SPEC_FULL.md §12): just enough
// of Number/String/Boolean/Object/Array/Function/exception semantics to
// execute the bytecode this module's compiler produces. It implements no
// standard-library methods beyond what the codegen test scenarios exercise.
package value

import "fmt"

type Kind int

const (
	Undefined Kind = iota
	Null
	Boolean
	Number
	String
	ObjectRef
)

// Value is the uniformly dynamically-typed datum living on the VM's
// evaluation stack and in locals/upvalues — the runtime counterpart to the
// emitter's compile-time-only bytecode.OperandKind.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
	Obj  *Object
}

func Undef() Value        { return Value{Kind: Undefined} }
func Nul() Value          { return Value{Kind: Null} }
func NewBool(b bool) Value { return Value{Kind: Boolean, Bool: b} }
func Num(n float64) Value { return Value{Kind: Number, Num: n} }
func Str(s string) Value  { return Value{Kind: String, Str: s} }
func Obj(o *Object) Value { return Value{Kind: ObjectRef, Obj: o} }

func (v Value) IsCallable() bool {
	return v.Kind == ObjectRef && v.Obj != nil && (v.Obj.FnIndex >= 0 || v.Obj.Builtin != nil)
}

// Truthy implements ECMAScript's ToBoolean for the subset of types this
// value domain models.
func (v Value) Truthy() bool {
	switch v.Kind {
	case Undefined, Null:
		return false
	case Boolean:
		return v.Bool
	case Number:
		return v.Num != 0 && !isNaN(v.Num)
	case String:
		return v.Str != ""
	case ObjectRef:
		return true
	}
	return false
}

func isNaN(f float64) bool { return f != f }

func (v Value) String() string {
	switch v.Kind {
	case Undefined:
		return "undefined"
	case Null:
		return "null"
	case Boolean:
		if v.Bool {
			return "true"
		}
		return "false"
	case Number:
		return formatNumber(v.Num)
	case String:
		return v.Str
	case ObjectRef:
		if v.Obj.Class == "Array" {
			return v.Obj.arrayString()
		}
		return "[object " + v.Obj.Class + "]"
	}
	return "?"
}

func formatNumber(f float64) string {
	if isNaN(f) {
		return "NaN"
	}
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// Upvalue is a cell a closure captures by reference: a live local slot in
// a still-running enclosing frame while open, or its own closed-over copy
// once that frame returns. The open/closed split is the standard
// upvalue-cell technique used across scripting-language VMs; none of the
// retrieved example repos implement closures over a register VM, so this
// is adapted from general practice rather than grounded on one of them
// (see DESIGN.md).
type Upvalue struct {
	IsClosed bool
	Frame    Frame // nil once closed
	Index    int   // local slot index in Frame, while open
	Closed   Value // captured value, once closed
}

// Frame is the minimal stack-frame handle an open Upvalue needs to reach
// back into a running call's locals. internal/vm defines the concrete type;
// this package only needs read/write access to one slot.
type Frame interface {
	Local(i int) Value
	SetLocal(i int, v Value)
}

func (u *Upvalue) Get() Value {
	if u.IsClosed {
		return u.Closed
	}
	return u.Frame.Local(u.Index)
}

func (u *Upvalue) Set(v Value) {
	if u.IsClosed {
		u.Closed = v
		return
	}
	u.Frame.SetLocal(u.Index, v)
}

func (u *Upvalue) Close() {
	if !u.IsClosed {
		u.Closed = u.Frame.Local(u.Index)
		u.IsClosed = true
		u.Frame = nil
	}
}

// Object backs every reference type in the value domain: plain objects,
// arrays, functions/closures, and scope records. Declarative scopes (see
// internal/scope) never materialize one of these; only object/with/global
// scopes do.
type Object struct {
	Class string // "Object", "Array", "Function", "Error", "Scope"

	Props     map[string]Value
	PropOrder []string // insertion order, for for-in enumeration
	Proto     *Object

	Elems []Value // backing storage when Class == "Array"

	// Function/closure fields.
	FnIndex  int // index into the owning Module's function table, -1 if not callable
	Upvalues []*Upvalue
	// DefScope is the scope active at closure-creation time, installed as
	// the callee's arg0 at invocation. This is what lets a nested closure
	// see an enclosing `with`'s dynamic scope across a function-call
	// boundary without the callee needing any extra runtime hop — see
	// internal/scope's doc comment for the full reasoning.
	DefScope *Object
	Builtin  func(this Value, args []Value) (Value, error)

	// Scope-object fields (Class == "Scope").
	ScopeParent      *Object
	ImplicitReceiver bool

	Extensible bool
	gen        uint64 // bumped when Set adds a new property; deleting one
	// (internal/vm's deleteProperty) does not bump it. Exposed through
	// Generation() as an inline-cache key, but nothing in this module reads
	// it: the VM ignores the inline-cache site operands.
}

func NewObject(proto *Object) *Object {
	return &Object{Class: "Object", Props: make(map[string]Value), Proto: proto, Extensible: true, FnIndex: -1}
}

func NewArray(elems []Value) *Object {
	return &Object{Class: "Array", Elems: elems, Props: make(map[string]Value), Extensible: true, FnIndex: -1}
}

func NewScope(parent *Object, implicitReceiver bool) *Object {
	return &Object{
		Class:            "Scope",
		Props:            make(map[string]Value),
		ScopeParent:      parent,
		ImplicitReceiver: implicitReceiver,
		Extensible:       true,
		FnIndex:          -1,
	}
}

// Generation returns the shape-change counter an inline cache keys on.
func (o *Object) Generation() uint64 { return o.gen }

func (o *Object) Get(name string) (Value, bool) {
	if v, ok := o.Props[name]; ok {
		return v, true
	}
	if o.Proto != nil {
		return o.Proto.Get(name)
	}
	return Value{}, false
}

func (o *Object) Set(name string, v Value) {
	if _, exists := o.Props[name]; !exists {
		o.PropOrder = append(o.PropOrder, name)
		o.gen++
	}
	o.Props[name] = v
}

func (o *Object) Has(name string) bool {
	if _, ok := o.Props[name]; ok {
		return true
	}
	if o.Proto != nil {
		return o.Proto.Has(name)
	}
	return false
}

func (o *Object) arrayString() string {
	s := ""
	for i, e := range o.Elems {
		if i > 0 {
			s += ","
		}
		if e.Kind != Undefined {
			s += e.String()
		}
	}
	return s
}
