// Package exregion implements the Exception Region Builder: a stack of
// in-progress try/catch/finally/filter/fault regions, closed and
// serialized into the bytecode table described in spec §4.4/§6.
package exregion

import (
	"errors"
	"fmt"

	"avenir/internal/bytecode"
	"avenir/internal/emit"
)

var (
	ErrDuplicateCatch          = errors.New("exregion: duplicate catch clause for the same type token")
	ErrDuplicateFinally        = errors.New("exregion: region already has a finally clause")
	ErrDuplicateFault          = errors.New("exregion: region already has a fault clause")
	ErrEmptyExceptionRegion    = errors.New("exregion: EndExceptionBlock with zero clauses")
	ErrUnclosedExceptionRegion = errors.New("exregion: Complete called with an open region")
	ErrMisplacedEndFilter      = errors.New("exregion: filter handler start marked outside an open filter clause")
	ErrNoOpenRegion            = errors.New("exregion: no open exception region")
)

type segment int

const (
	segTry segment = iota
	segCatch
	segFinally
	segFilterCond
	segFilterHandler
	segFault
	segClosed
)

type region struct {
	tryStart  int
	tryLength int
	clauses   []bytecode.ExceptionClause
	endLabel  *emit.Label

	catchTokens map[uint32]bool
	hasFinally  bool
	hasFault    bool

	open          segment
	openClauseIdx int // index into clauses of the currently open clause, -1 for segTry
}

// Builder owns one routine's region stack and accumulates completed
// regions in completion (EndExceptionBlock) order, so a nested region
// always precedes the region enclosing it; internal/vm's handler search
// relies on that innermost-first order.
type Builder struct {
	active []*region
	done   []bytecode.ExceptionRegion
}

func NewBuilder() *Builder { return &Builder{} }

// BeginExceptionBlock opens a new region with try_start at the emitter's
// current offset and returns its end label, which codegen eventually
// passes to any Leave it emits inside the region.
func (b *Builder) BeginExceptionBlock(e *emit.Emitter) *emit.Label {
	r := &region{
		tryStart:      e.Offset(),
		endLabel:      e.NewLabel(),
		catchTokens:   make(map[uint32]bool),
		open:          segTry,
		openClauseIdx: -1,
	}
	b.active = append(b.active, r)
	return r.endLabel
}

func (b *Builder) top() (*region, error) {
	if len(b.active) == 0 {
		return nil, ErrNoOpenRegion
	}
	return b.active[len(b.active)-1], nil
}

// closeOpenSegment emits whatever exit sequence the currently open segment
// requires and records its length, per spec §4.4: "Every Begin…Block first
// closes the previous clause (or the try body if none yet)."
func (b *Builder) closeOpenSegment(e *emit.Emitter, r *region) error {
	switch r.open {
	case segTry, segCatch, segFilterHandler:
		e.Leave(r.endLabel)
	case segFinally, segFault:
		e.EndFinally()
	case segFilterCond:
		return fmt.Errorf("exregion: filter clause left open (missing EndFilter/filter-handler marker): %w", ErrMisplacedEndFilter)
	case segClosed:
		return nil
	}
	if r.openClauseIdx >= 0 {
		c := &r.clauses[r.openClauseIdx]
		c.HandlerLength = e.Offset() - c.HandlerStart
	} else {
		r.tryLength = e.Offset() - r.tryStart
	}
	return nil
}

// BeginCatch closes the previous segment and opens a Catch clause for
// catchTypeToken, an opaque runtime-loader type handle. Two catch clauses
// for the same token in one region are rejected.
func (b *Builder) BeginCatch(e *emit.Emitter, catchTypeToken uint32) error {
	r, err := b.top()
	if err != nil {
		return err
	}
	if r.catchTokens[catchTypeToken] {
		return ErrDuplicateCatch
	}
	if err := b.closeOpenSegment(e, r); err != nil {
		return err
	}
	e.SeedStack(bytecode.KindObject)
	r.clauses = append(r.clauses, bytecode.ExceptionClause{
		Kind:           bytecode.ClauseCatch,
		HandlerStart:   e.Offset(),
		CatchTypeToken: catchTypeToken,
	})
	r.catchTokens[catchTypeToken] = true
	r.open = segCatch
	r.openClauseIdx = len(r.clauses) - 1
	return nil
}

// BeginFinally closes the previous segment and opens the region's Finally
// clause. At most one Finally is permitted per region.
func (b *Builder) BeginFinally(e *emit.Emitter) error {
	r, err := b.top()
	if err != nil {
		return err
	}
	if r.hasFinally {
		return ErrDuplicateFinally
	}
	if err := b.closeOpenSegment(e, r); err != nil {
		return err
	}
	e.SeedStack()
	r.clauses = append(r.clauses, bytecode.ExceptionClause{
		Kind:         bytecode.ClauseFinally,
		HandlerStart: e.Offset(),
	})
	r.hasFinally = true
	r.open = segFinally
	r.openClauseIdx = len(r.clauses) - 1
	return nil
}

// BeginFault closes the previous segment and opens the region's Fault
// clause (runs only on exceptional exit, unlike Finally). At most one
// Fault is permitted per region.
func (b *Builder) BeginFault(e *emit.Emitter) error {
	r, err := b.top()
	if err != nil {
		return err
	}
	if r.hasFault {
		return ErrDuplicateFault
	}
	if err := b.closeOpenSegment(e, r); err != nil {
		return err
	}
	e.SeedStack()
	r.clauses = append(r.clauses, bytecode.ExceptionClause{
		Kind:         bytecode.ClauseFault,
		HandlerStart: e.Offset(),
	})
	r.hasFault = true
	r.open = segFault
	r.openClauseIdx = len(r.clauses) - 1
	return nil
}

// BeginFilter closes the previous segment and opens the filter-condition
// portion of a Filter clause: FilterStart is recorded now; HandlerStart is
// recorded later by MarkFilterHandlerStart, once codegen has emitted the
// condition expression and the EndFilter opcode.
func (b *Builder) BeginFilter(e *emit.Emitter) error {
	r, err := b.top()
	if err != nil {
		return err
	}
	if err := b.closeOpenSegment(e, r); err != nil {
		return err
	}
	e.SeedStack(bytecode.KindObject)
	r.clauses = append(r.clauses, bytecode.ExceptionClause{
		Kind:        bytecode.ClauseFilter,
		FilterStart: e.Offset(),
	})
	r.open = segFilterCond
	r.openClauseIdx = len(r.clauses) - 1
	return nil
}

// MarkFilterHandlerStart transitions from the filter condition to the
// filter handler body. Call this immediately after codegen emits
// e.EndFilter(), which already leaves a single Object on the abstract
// stack — no further SeedStack call is needed here.
func (b *Builder) MarkFilterHandlerStart(e *emit.Emitter) error {
	r, err := b.top()
	if err != nil {
		return err
	}
	if r.open != segFilterCond {
		return ErrMisplacedEndFilter
	}
	r.clauses[r.openClauseIdx].HandlerStart = e.Offset()
	r.open = segFilterHandler
	return nil
}

// EndExceptionBlock closes the currently open clause, defines the region's
// end label at the current offset, and appends the region to the done
// list. The region must have at least one clause.
func (b *Builder) EndExceptionBlock(e *emit.Emitter) error {
	r, err := b.top()
	if err != nil {
		return err
	}
	if len(r.clauses) == 0 {
		return ErrEmptyExceptionRegion
	}
	if err := b.closeOpenSegment(e, r); err != nil {
		return err
	}
	r.open = segClosed
	e.MarkLabel(r.endLabel)

	b.active = b.active[:len(b.active)-1]
	b.done = append(b.done, bytecode.ExceptionRegion{
		TryStart:  r.tryStart,
		TryLength: r.tryLength,
		Clauses:   r.clauses,
	})
	return nil
}

// Complete returns the finished regions in completion order (inner before
// outer). It fails if any region is still open.
func (b *Builder) Complete() ([]bytecode.ExceptionRegion, error) {
	if len(b.active) != 0 {
		return nil, ErrUnclosedExceptionRegion
	}
	return b.done, nil
}
