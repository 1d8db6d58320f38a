package emit

import (
	"encoding/binary"
	"fmt"

	"avenir/internal/bytecode"
)

// Label is an opaque forward- or backward-reference target. Labels are
// created with Emitter.NewLabel and bound to a concrete offset exactly once
// with Emitter.MarkLabel. A label may be referenced before it is marked
// (a forward branch); referencing one that is never marked is an error
// caught at Complete().
type Label struct {
	id  int
	pos string // optional debug name, set by callers that want readable disasm

	defined bool
	offset  int

	hasExpectedDepth bool
	expectedDepth    int
}

// Name sets an optional debug label used only by internal/disasm.
func (l *Label) Name(s string) *Label { l.pos = s; return l }

type fixup struct {
	patchOffset int
	label       *Label
}

// LabelManager owns every label created for one routine and the fix-up list
// of branch operands awaiting resolution. It is private to internal/emit;
// callers only ever see *Label.
type LabelManager struct {
	labels []*Label
	fixups []fixup
}

func newLabelManager() *LabelManager { return &LabelManager{} }

func (lm *LabelManager) newLabel() *Label {
	l := &Label{id: len(lm.labels)}
	lm.labels = append(lm.labels, l)
	return l
}

// reference records one use of label whose 4-byte operand lives at
// patchOffset, and checks the label's expected stack depth against the
// depth at this branch site (recording it on first touch). Mismatches are
// reported through e.fail so a single Err() check at the end catches every
// malformed emission in one pass.
func (lm *LabelManager) reference(e *Emitter, label *Label, patchOffset int) {
	lm.fixups = append(lm.fixups, fixup{patchOffset: patchOffset, label: label})
	if e.stackIndeterminate {
		return
	}
	depth := len(e.stack)
	if label.hasExpectedDepth {
		if label.expectedDepth != depth {
			e.fail("emit: label depth mismatch: first seen at depth %d, referenced here at depth %d", label.expectedDepth, depth)
		}
		return
	}
	label.hasExpectedDepth = true
	label.expectedDepth = depth
}

// mark binds label to offset. If the label was already referenced, the
// abstract stack present at this point must match the depth recorded at
// first reference; per-slot Kind tracking is not reconstructed across a
// label boundary (a deliberate simplification), so the
// restored stack is kind-agnostic (KindObject placeholders) rather than
// replaying the exact kinds live at the branch sites that target it.
func (lm *LabelManager) mark(e *Emitter, label *Label, offset int) {
	if label.defined {
		e.fail("emit: label marked twice")
		return
	}
	label.defined = true
	label.offset = offset

	if label.hasExpectedDepth {
		if !e.stackIndeterminate && len(e.stack) != label.expectedDepth {
			e.fail("emit: label depth mismatch: expected depth %d, fall-through depth %d", label.expectedDepth, len(e.stack))
		}
		e.stackIndeterminate = false
		e.stack = make([]bytecode.OperandKind, label.expectedDepth)
		for i := range e.stack {
			e.stack[i] = bytecode.KindObject
		}
		return
	}

	if e.stackIndeterminate {
		e.stackIndeterminate = false
		e.stack = e.stack[:0]
	}
	label.hasExpectedDepth = true
	label.expectedDepth = len(e.stack)
}

// resolve patches every recorded fix-up with its label's final offset,
// encoded as target - (patchOffset + 4) — i.e. relative to the instruction
// pointer just past the 4-byte operand, matching Br's documented convention.
func (lm *LabelManager) resolve(code []byte) error {
	for _, fx := range lm.fixups {
		if !fx.label.defined {
			return fmt.Errorf("emit: undefined label referenced at code offset %d", fx.patchOffset)
		}
		next := fx.patchOffset + 4
		rel := int32(fx.label.offset - next)
		binary.LittleEndian.PutUint32(code[fx.patchOffset:fx.patchOffset+4], uint32(rel))
	}
	return nil
}
