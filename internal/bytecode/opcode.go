// Package bytecode defines the instruction set and finalized artifact
// format produced by internal/emit and consumed by internal/vm (the
// reference runtime loader). Everything here is a passive data
// description; the assembler lives in internal/emit.
package bytecode

// Op is a one-byte primary opcode, or the second byte of a two-byte
// extended opcode (0xFE prefix). The numbering is internal to this
// engine — nothing outside the module depends on specific values — but
// the *encoding rules* (branches always 4-byte relative, ldc.i4.s vs
// ldc.i4 chosen by operand range, locals/args short-formed by index)
// mirror the CLR-derived ISA the specification describes.
type Op byte

// ExtPrefix marks the start of a two-byte extended opcode.
const ExtPrefix Op = 0xFE

const (
	Nop Op = iota
	Pop
	Dup

	// Constant loads
	LdNull
	LdUndefined
	LdcI4S // 1-byte signed immediate
	LdcI4  // 4-byte signed immediate
	LdcR8  // 8-byte IEEE-754 double, little-endian
	LdStr  // 4-byte index into the routine's own Consts table

	// Locals: 0-3 have dedicated zero-operand forms, else a 1-byte index
	// operand (index <= 255) or a 4-byte one, chosen by the slot index.
	LdLoc0
	LdLoc1
	LdLoc2
	LdLoc3
	LdLocS
	LdLoc
	StLoc0
	StLoc1
	StLoc2
	StLoc3
	StLocS
	StLoc
	LdLocAS
	LdLocA

	// Arguments: same short-form policy as locals.
	LdArg0
	LdArg1
	LdArg2
	LdArg3
	LdArgS
	LdArg
	StArgS
	StArg

	// Upvalues (closures)
	LdUpval
	StUpval

	// Arithmetic (Float operands, Float result)
	AddF
	SubF
	MulF
	DivF
	RemF
	NegF

	// Bitwise (Int32 operands, Int32 result)
	AndI4
	OrI4
	XorI4
	NotI4
	ShlI4
	ShrI4
	ShrUnI4

	// Compare: two operands of matching kind, Int32 (0/1) result
	CEqF
	CGtF
	CLtF
	CEqI4
	CGtI4
	CLtI4
	CGtUnI4
	CLtUnI4

	// Convert / box
	ConvI4  // Object|Float -> Int32
	ConvR8  // Object|Int32 -> Float
	Box     // Int32|Float -> Object
	UnboxR8 // Object -> Float (runtime type check)

	// Branch: 4-byte signed relative offset, target - next_instruction_offset
	Br
	BrTrue  // pop Int32
	BrFalse // pop Int32
	BeqF
	BneF
	BltF
	BleF
	BgtF
	BgeF
	BeqI4
	BneI4
	BltI4
	BleI4
	BgtI4
	BgeI4

	// Switch: pop Int32 selector, A = number of labels, followed by that
	// many 4-byte relative offsets (relative to the offset just past the
	// whole switch instruction, per label, matching Br's convention)
	Switch

	// Return
	Ret0 // no value
	Ret1 // pops one Object value

	// Calls
	CallValue   // A = argc; pops argc args then the callee, pushes result
	CallStatic  // A = function index, B = argc
	CallBuiltin // A = builtin id, B = argc
	Construct   // A = argc; `new` — pops argc args then the constructor

	// Objects / arrays / properties
	NewObj      // push a fresh empty object
	NewArr      // A = element count; pop A values, push array object
	NewClosure  // A = function index in the module's function table
	LdFld       // A = string-token index, B = inline-cache site index
	StFld       // A = string-token index, B = inline-cache site index
	HasFld      // A = string-token index, B = inline-cache site index; push Int32 0/1
	LdElem      // pop key, pop object, push element (or Undefined)
	StElem      // pop value, pop key, pop object
	LdScopeUp   // pop scope object, push its ScopeParent

	// Scope chain resolution (internal/scope): walks the runtime scope
	// chain from arg0, leaf to root, through an inline-cached lookup;
	// GetScope throws ReferenceError on a complete miss at the root.
	GetScope // A = name-token index, B = inline-cache site index; push value
	SetScope // A = name-token index, B = inline-cache site index; pop value

	// Exceptions
	Throw
	Leave       // 4-byte relative offset; clears stack, marks indeterminate
	EndFinally
	EndFilter   // pop Int32, then push a single Object (the exception)

	Breakpoint
)

// OperandKind is the static category of a value that may live on the
// evaluation stack at compile time. It has no runtime representation —
// the VM's stack is uniformly []value.Value — it exists purely so the
// Instruction Emitter can catch malformed emission sequences before they
// ever run.
type OperandKind int

const (
	KindInt32 OperandKind = iota
	KindInt64
	KindNativeInt
	KindFloat
	KindObject
	KindManagedPointer
)

func (k OperandKind) String() string {
	switch k {
	case KindInt32:
		return "Int32"
	case KindInt64:
		return "Int64"
	case KindNativeInt:
		return "NativeInt"
	case KindFloat:
		return "Float"
	case KindObject:
		return "Object"
	case KindManagedPointer:
		return "ManagedPointer"
	default:
		return "Unknown"
	}
}
