package bytecode

import "time"

// UpvalueInfo describes where a closure's captured variable comes from:
// a slot in the immediately enclosing function's locals, or an upvalue
// index of that enclosing function (chained capture).
type UpvalueInfo struct {
	IsLocal bool
	Index   int
}

// ClauseKind identifies one exception-handling clause's role, matching
// the flags written into the serialized exception table (§4.4/§6).
type ClauseKind byte

const (
	ClauseCatch   ClauseKind = 0
	ClauseFilter  ClauseKind = 1
	ClauseFinally ClauseKind = 2
	ClauseFault   ClauseKind = 4
)

// ExceptionClause is one handler attached to an ExceptionRegion.
type ExceptionClause struct {
	Kind           ClauseKind
	HandlerStart   int
	HandlerLength  int
	CatchTypeToken uint32 // only meaningful for ClauseCatch
	FilterStart    int    // only meaningful for ClauseFilter
}

// ExceptionRegion is one try body plus its ordered clauses.
type ExceptionRegion struct {
	TryStart  int
	TryLength int
	Clauses   []ExceptionClause
}

// DebugDocument is the optional source-document record a Method Generator
// attaches to a compiled routine when producing debuggable output. Its
// contents are opaque to this package; the Emitter never reads it.
type DebugDocument struct {
	ID         string // uuid.UUID string form, one per distinct source document
	Path       string
	Language   string
	CompiledAt time.Time
}

// Function is one finalized, executable routine: the output of
// Emitter.Complete() plus the metadata the Method Generator attaches.
type Function struct {
	Name           string
	NumParams      int // includes the implicit scope argument at index 0
	Code           []byte
	MaxStack       int
	LocalSignature []byte // encoded local-kind blob, see locals.Signature
	ExceptionTable []byte // serialized []ExceptionRegion, see EncodeExceptionTable
	Upvalues       []UpvalueInfo
	Consts         []Constant
	Debug          *DebugDocument // nil if compiled without debug info
}

type ConstKind byte

const (
	ConstNumber ConstKind = iota
	ConstString
)

type Constant struct {
	Kind   ConstKind
	Number float64
	Str    string
}

// Module is a fully compiled program: every function plus the index of
// the synthetic top-level entry routine.
type Module struct {
	Functions []*Function
	MainIndex int
	StrictAll bool
}
