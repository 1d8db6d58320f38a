package vm

import (
	"avenir/internal/bytecode"
	"avenir/internal/value"
)

// findAndEnterHandler implements the simplified, single-pass exception
// dispatch this VM uses instead of the CLR's formal two-pass search
// (documented as a deliberate simplification in DESIGN.md). fr.regions is
// naturally ordered innermost-first: a nested try statement's region is
// always appended to the decoded list before its enclosing try's, because
// internal/exregion.Builder completes (and hands to internal/bytecode) the
// inner region first. Walking the list in order and taking the first
// region whose try range contains ip therefore always finds the innermost
// enclosing try, with no extra bookkeeping needed.
//
// fromRegionIdx lets a rethrow-from-finally resume the search at the next
// candidate region rather than restarting from the innermost one (which
// would just find the same finally again).
//
// Returns true if control was transferred somewhere in fr (either straight
// into a catch handler, or into a finally/fault that must run before the
// search continues from EndFinally); false if nothing in fr handles it, in
// which case the caller must propagate the exception to its own caller.
func (fr *frame) findAndEnterHandler(thrown value.Value, ip int, fromRegionIdx int) bool {
	for i := fromRegionIdx; i < len(fr.regions); i++ {
		r := &fr.regions[i]
		if ip < r.TryStart || ip >= r.TryStart+r.TryLength {
			continue
		}
		for _, c := range r.Clauses {
			if c.Kind == bytecode.ClauseCatch {
				fr.stack = fr.stack[:0]
				fr.push(thrown)
				fr.ip = c.HandlerStart
				fr.pendingThrow = nil
				return true
			}
		}
		for _, c := range r.Clauses {
			if c.Kind == bytecode.ClauseFinally || c.Kind == bytecode.ClauseFault {
				fr.pendingThrow = &thrown
				fr.pendingThrowIP = ip
				fr.pendingThrowResume = i + 1
				fr.ip = c.HandlerStart
				fr.stack = fr.stack[:0]
				return true
			}
		}
	}
	return false
}

// regionContainingForLeave finds the region a Leave instruction at ip is
// exiting: either ip sits inside that region's try body, or inside its
// catch handler (internal/exregion.Builder emits Leave at the end of both a
// try body and a catch handler, per spec §4.4).
func (fr *frame) regionContainingForLeave(ip int) *bytecode.ExceptionRegion {
	for i := range fr.regions {
		r := &fr.regions[i]
		if ip >= r.TryStart && ip < r.TryStart+r.TryLength {
			return r
		}
		for _, c := range r.Clauses {
			if c.Kind == bytecode.ClauseCatch && ip >= c.HandlerStart && ip < c.HandlerStart+c.HandlerLength {
				return r
			}
		}
	}
	return nil
}

// finallyOrFaultClause reports the region's Finally/Fault handler, if any.
func finallyOrFaultClause(r *bytecode.ExceptionRegion) (bytecode.ExceptionClause, bool) {
	for _, c := range r.Clauses {
		if c.Kind == bytecode.ClauseFinally || c.Kind == bytecode.ClauseFault {
			return c, true
		}
	}
	return bytecode.ExceptionClause{}, false
}
