// Package locals implements the Local/Argument Table: slot allocation for
// user variables and the encoded signature blob the runtime loader uses to
// describe them (spec §4.3).
package locals

import (
	"fmt"

	"avenir/internal/bytecode"
)

// maxLocalIndex mirrors the full 4-byte index form's practical ceiling;
// anything beyond this almost certainly indicates a runaway codegen bug
// rather than a legitimate program, so it is rejected the same way the
// reference does for its 16-bit-signature limit.
const maxLocalIndex = 1<<24 - 1

// Slot is a declared local's metadata.
type Slot struct {
	Index int
	Kind  bytecode.OperandKind
	Name  string // may be ""; internal/codegen's temporaries use "@"-prefixed names
}

// Table owns one routine's local-variable slots. Argument slots are a
// separate, much smaller table (see ArgTable) since their indices are
// driven by the formal parameter list, not by DeclareVariable.
type Table struct {
	slots []Slot
}

func NewTable() *Table { return &Table{} }

// DeclareVariable appends a new slot and returns its index. name may be "";
// internal/codegen gives its synthesized temporaries "@"-prefixed names
// instead (e.g. "@with_saved_scope").
func (t *Table) DeclareVariable(kind bytecode.OperandKind, name string) (int, error) {
	if len(t.slots) > maxLocalIndex {
		return 0, fmt.Errorf("locals: too many locals (%s): %w", name, ErrTooManyLocals)
	}
	idx := len(t.slots)
	t.slots = append(t.slots, Slot{Index: idx, Kind: kind, Name: name})
	return idx, nil
}

// ErrTooManyLocals is returned (wrapped) once a routine exceeds the
// encodable local-slot range.
var ErrTooManyLocals = fmt.Errorf("too many locals for the encodable index range")

func (t *Table) Count() int { return len(t.slots) }

func (t *Table) Kind(index int) bytecode.OperandKind { return t.slots[index].Kind }

// Signature encodes the ordered list of local kinds as one byte per slot —
// the local_signature blob spec §3 and §6 describe as "delegated to the
// loader's signature helper"; this is that helper.
func (t *Table) Signature() []byte {
	sig := make([]byte, len(t.slots))
	for i, s := range t.slots {
		sig[i] = byte(s.Kind)
	}
	return sig
}

// DecodeSignature is the inverse: it recovers local kinds from a finalized
// bytecode.Function's signature without needing the compiler's own Table.
func DecodeSignature(sig []byte) []bytecode.OperandKind {
	kinds := make([]bytecode.OperandKind, len(sig))
	for i, b := range sig {
		kinds[i] = bytecode.OperandKind(b)
	}
	return kinds
}

// ArgTable mirrors Table for formal parameters. By convention (spec §4.3)
// argument 0 is the current-scope handle and argument 1, when present, is
// the `this` receiver; both are declared by the Method Generator before
// user parameters.
type ArgTable struct {
	names []string
}

func NewArgTable() *ArgTable { return &ArgTable{} }

// Declare appends a formal parameter (or the implicit scope/this slots)
// and returns its index.
func (a *ArgTable) Declare(name string) (int, error) {
	if len(a.names) > maxLocalIndex {
		return 0, fmt.Errorf("locals: too many arguments (%s): %w", name, ErrTooManyArguments)
	}
	idx := len(a.names)
	a.names = append(a.names, name)
	return idx, nil
}

var ErrTooManyArguments = fmt.Errorf("too many arguments for the encodable index range")

func (a *ArgTable) Count() int { return len(a.names) }

func (a *ArgTable) IndexOf(name string) (int, bool) {
	for i, n := range a.names {
		if n == name && n != "" {
			return i, true
		}
	}
	return 0, false
}
