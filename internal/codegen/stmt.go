package codegen

import (
	"fmt"

	"avenir/internal/ast"
	"avenir/internal/bytecode"
	"avenir/internal/emit"
	"avenir/internal/scope"
	"avenir/internal/token"
)

func (fc *FuncCompiler) compileStmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.BlockStmt:
		for _, st := range n.Stmts {
			if err := fc.compileStmt(st); err != nil {
				return err
			}
		}
		return nil

	case *ast.VarDeclStmt:
		return fc.compileVarDecl(n)

	case *ast.VarDeclListStmt:
		for _, d := range n.Decls {
			if err := fc.compileVarDecl(d); err != nil {
				return err
			}
		}
		return nil

	case *ast.ExprStmt:
		if err := fc.compileExpr(n.Expression); err != nil {
			return err
		}
		fc.e.Pop()
		return nil

	case *ast.EmptyStmt:
		return nil

	case *ast.FuncDecl:
		// Already hoisted by compileBody; a FuncDecl reached here as a plain
		// statement (nested one level inside a block) is a no-op at its
		// textual position.
		return nil

	case *ast.IfStmt:
		return fc.compileIf(n)

	case *ast.ReturnStmt:
		if n.Result != nil {
			if err := fc.compileExpr(n.Result); err != nil {
				return err
			}
		} else {
			fc.e.LdUndefined()
		}
		fc.e.Ret1()
		return nil

	case *ast.ThrowStmt:
		if err := fc.compileExpr(n.Value); err != nil {
			return err
		}
		fc.e.Throw()
		return nil

	case *ast.BreakStmt:
		return fc.compileBreak(n.Label)

	case *ast.ContinueStmt:
		return fc.compileContinue(n.Label)

	case *ast.LabeledStmt:
		return fc.compileLabeled(n)

	case *ast.TryStmt:
		return fc.compileTry(n)

	case *ast.WhileStmt:
		return fc.compileWhile("", n)

	case *ast.DoWhileStmt:
		return fc.compileDoWhile("", n)

	case *ast.ForStmt:
		return fc.compileFor("", n)

	case *ast.ForInStmt:
		return fc.compileForIn("", n)

	case *ast.WithStmt:
		return fc.compileWith(n)

	case *ast.SwitchStmt:
		return fc.compileSwitch("", n)

	default:
		return fmt.Errorf("codegen: unsupported statement %T", s)
	}
}

func (fc *FuncCompiler) compileVarDecl(d *ast.VarDeclStmt) error {
	if d.Value == nil {
		return nil
	}
	if err := fc.compileExpr(d.Value); err != nil {
		return err
	}
	return fc.scope.GenerateSet(fc.e, d.Name, fc.caches, fc.resolveUpvalue)
}

// compileTruthy leaves an Int32 0/1 on the stack per ECMAScript ToBoolean,
// via the runtime's toBooleanBuiltinID helper. ConvI4 gives the emitter's
// Kind checker a real job here: the builtin call is (by the Emitter's
// generic CallBuiltin signature) typed Object, and the branch opcodes that
// consume this value expect Int32.
func (fc *FuncCompiler) compileTruthy(x ast.Expr) error {
	if err := fc.compileExpr(x); err != nil {
		return err
	}
	fc.e.CallBuiltin(toBooleanBuiltinID, 1)
	fc.e.ConvI4()
	return nil
}

// compileBranchOnFalse is the condition-compilation entry point used by
// if/while/for/do-while: when cond is a direct relational or equality
// comparison it branches on the unboxed float comparison directly (no
// boxing round-trip), matching scenario E2; anything else falls back to
// the general ToBoolean truthy path.
func (fc *FuncCompiler) compileBranchOnFalse(cond ast.Expr, falseLabel *emit.Label) error {
	if bin, ok := cond.(*ast.BinaryExpr); ok {
		if op, ok := invertedCompareBranch(bin.Op); ok {
			if err := fc.compileExpr(bin.Left); err != nil {
				return err
			}
			fc.e.UnboxR8()
			if err := fc.compileExpr(bin.Right); err != nil {
				return err
			}
			fc.e.UnboxR8()
			op(fc.e, falseLabel)
			return nil
		}
	}
	if err := fc.compileTruthy(cond); err != nil {
		return err
	}
	fc.e.BrFalse(falseLabel)
	return nil
}

func (fc *FuncCompiler) compileIf(n *ast.IfStmt) error {
	elseLabel := fc.e.NewLabel()
	if err := fc.compileBranchOnFalse(n.Cond, elseLabel); err != nil {
		return err
	}
	if err := fc.compileStmt(n.Then); err != nil {
		return err
	}
	if n.Else == nil {
		fc.e.MarkLabel(elseLabel)
		return nil
	}
	endLabel := fc.e.NewLabel()
	fc.e.Br(endLabel)
	fc.e.MarkLabel(elseLabel)
	if err := fc.compileStmt(n.Else); err != nil {
		return err
	}
	fc.e.MarkLabel(endLabel)
	return nil
}

func (fc *FuncCompiler) pushLoop(label string, breakL, continueL *emit.Label) {
	fc.loops = append(fc.loops, &loopCtx{label: label, breakL: breakL, continueL: continueL})
}

func (fc *FuncCompiler) popLoop() {
	fc.loops = fc.loops[:len(fc.loops)-1]
}

func (fc *FuncCompiler) compileBreak(label string) error {
	for i := len(fc.loops) - 1; i >= 0; i-- {
		l := fc.loops[i]
		if label == "" || l.label == label {
			fc.e.Br(l.breakL)
			return nil
		}
	}
	return fmt.Errorf("codegen: break targets unknown label %q", label)
}

func (fc *FuncCompiler) compileContinue(label string) error {
	for i := len(fc.loops) - 1; i >= 0; i-- {
		l := fc.loops[i]
		if l.continueL == nil {
			continue // a switch frame only handles break; continue passes through it
		}
		if label == "" || l.label == label {
			fc.e.Br(l.continueL)
			return nil
		}
	}
	return fmt.Errorf("codegen: continue targets unknown label %q", label)
}

// compileLabeled attaches a label name to the next loop/switch statement so
// break/continue inside it (or inside a nested loop) can target it by name.
// A label on a non-iteration statement only supports labeled break.
func (fc *FuncCompiler) compileLabeled(n *ast.LabeledStmt) error {
	switch inner := n.Stmt.(type) {
	case *ast.WhileStmt:
		return fc.compileWhile(n.Label, inner)
	case *ast.DoWhileStmt:
		return fc.compileDoWhile(n.Label, inner)
	case *ast.ForStmt:
		return fc.compileFor(n.Label, inner)
	case *ast.ForInStmt:
		return fc.compileForIn(n.Label, inner)
	case *ast.SwitchStmt:
		return fc.compileSwitch(n.Label, inner)
	default:
		breakLabel := fc.e.NewLabel()
		fc.pushLoop(n.Label, breakLabel, nil)
		if err := fc.compileStmt(n.Stmt); err != nil {
			return err
		}
		fc.popLoop()
		fc.e.MarkLabel(breakLabel)
		return nil
	}
}

func (fc *FuncCompiler) compileWhile(label string, n *ast.WhileStmt) error {
	top := fc.e.NewLabel()
	end := fc.e.NewLabel()
	fc.e.MarkLabel(top)
	if err := fc.compileBranchOnFalse(n.Cond, end); err != nil {
		return err
	}
	fc.pushLoop(label, end, top)
	if err := fc.compileStmt(n.Body); err != nil {
		return err
	}
	fc.popLoop()
	fc.e.Br(top)
	fc.e.MarkLabel(end)
	return nil
}

func (fc *FuncCompiler) compileDoWhile(label string, n *ast.DoWhileStmt) error {
	top := fc.e.NewLabel()
	continueLabel := fc.e.NewLabel()
	end := fc.e.NewLabel()
	fc.e.MarkLabel(top)
	fc.pushLoop(label, end, continueLabel)
	if err := fc.compileStmt(n.Body); err != nil {
		return err
	}
	fc.popLoop()
	fc.e.MarkLabel(continueLabel)
	if err := fc.compileBranchOnFalse(negate(n.Cond), top); err != nil {
		return err
	}
	fc.e.MarkLabel(end)
	return nil
}

func (fc *FuncCompiler) compileFor(label string, n *ast.ForStmt) error {
	if n.Init != nil {
		if err := fc.compileStmt(n.Init); err != nil {
			return err
		}
	}
	top := fc.e.NewLabel()
	continueLabel := fc.e.NewLabel()
	end := fc.e.NewLabel()
	fc.e.MarkLabel(top)
	if n.Cond != nil {
		if err := fc.compileBranchOnFalse(n.Cond, end); err != nil {
			return err
		}
	}
	fc.pushLoop(label, end, continueLabel)
	if err := fc.compileStmt(n.Body); err != nil {
		return err
	}
	fc.popLoop()
	fc.e.MarkLabel(continueLabel)
	if n.Post != nil {
		if err := fc.compileExpr(n.Post); err != nil {
			return err
		}
		fc.e.Pop()
	}
	fc.e.Br(top)
	fc.e.MarkLabel(end)
	return nil
}

// compileForIn enumerates an object's own enumerable string keys through
// the enumKeysBuiltinID runtime helper, since the ISA has no dedicated
// enumeration opcode: a CallBuiltin escape hatch is the same choice
// internal/scope already makes for with-scope construction, and for-in is
// a supplemented feature rather than one of the core testable scenarios.
func (fc *FuncCompiler) compileForIn(label string, n *ast.ForInStmt) error {
	if err := fc.compileExpr(n.Object); err != nil {
		return err
	}
	fc.e.CallBuiltin(enumKeysBuiltinID, 1)
	keysSlot, err := fc.locals.DeclareVariable(bytecode.KindObject, "@forin_keys")
	if err != nil {
		return err
	}
	fc.e.StLoc(keysSlot)

	idxSlot, err := fc.locals.DeclareVariable(bytecode.KindObject, "@forin_idx")
	if err != nil {
		return err
	}
	fc.e.LdcI4(0)
	fc.e.Box()
	fc.e.StLoc(idxSlot)

	top := fc.e.NewLabel()
	continueLabel := fc.e.NewLabel()
	end := fc.e.NewLabel()
	fc.e.MarkLabel(top)

	fc.e.LdLoc(idxSlot)
	fc.e.UnboxR8()
	fc.e.LdLoc(keysSlot)
	fc.e.LdFld("length", fc.caches.Alloc())
	fc.e.UnboxR8()
	fc.e.BgeF(end)

	fc.e.LdLoc(keysSlot)
	fc.e.LdLoc(idxSlot)
	fc.e.LdElem()
	if err := fc.scope.GenerateSet(fc.e, n.VarName, fc.caches, fc.resolveUpvalue); err != nil {
		return err
	}

	fc.pushLoop(label, end, continueLabel)
	if err := fc.compileStmt(n.Body); err != nil {
		return err
	}
	fc.popLoop()

	fc.e.MarkLabel(continueLabel)
	fc.e.LdLoc(idxSlot)
	fc.e.UnboxR8()
	fc.e.LdcR8(1)
	fc.e.AddF()
	fc.e.Box()
	fc.e.StLoc(idxSlot)
	fc.e.Br(top)
	fc.e.MarkLabel(end)
	return nil
}

func (fc *FuncCompiler) compileWith(n *ast.WithStmt) error {
	// Save the scope handle live before the with-object is installed, so
	// it can be restored verbatim on exit regardless of what kind of scope
	// was active going in (declarative, another with, or global).
	savedSlot, err := fc.locals.DeclareVariable(bytecode.KindObject, "@with_saved_scope")
	if err != nil {
		return err
	}
	fc.e.LdArg(argScope)
	fc.e.StLoc(savedSlot)

	if err := fc.compileExpr(n.Object); err != nil {
		return err
	}
	outer := fc.scope
	withScope := scope.NewObjectScope(outer, true)
	if err := withScope.CreateScope(fc.e); err != nil {
		return err
	}
	fc.scope = withScope
	err = fc.compileStmt(n.Body)
	fc.scope = outer
	if err != nil {
		return err
	}

	fc.e.LdLoc(savedSlot)
	fc.e.StArg(argScope)
	return nil
}

func (fc *FuncCompiler) compileSwitch(label string, n *ast.SwitchStmt) error {
	tagSlot, err := fc.locals.DeclareVariable(bytecode.KindObject, "@switch_tag")
	if err != nil {
		return err
	}
	if err := fc.compileExpr(n.Tag); err != nil {
		return err
	}
	fc.e.StLoc(tagSlot)

	selSlot, err := fc.locals.DeclareVariable(bytecode.KindObject, "@switch_sel")
	if err != nil {
		return err
	}

	defaultIdx := len(n.Cases)
	for i, c := range n.Cases {
		if c.Test == nil {
			defaultIdx = i
		}
	}
	fc.e.LdcI4(int32(defaultIdx))
	fc.e.Box()
	fc.e.StLoc(selSlot)

	for i, c := range n.Cases {
		if c.Test == nil {
			continue
		}
		fc.e.LdLoc(tagSlot)
		fc.e.UnboxR8()
		if err := fc.compileExpr(c.Test); err != nil {
			return err
		}
		fc.e.UnboxR8()
		fc.e.CEqF()
		skip := fc.e.NewLabel()
		fc.e.BrFalse(skip)
		fc.e.LdcI4(int32(i))
		fc.e.Box()
		fc.e.StLoc(selSlot)
		fc.e.MarkLabel(skip)
	}

	labels := make([]*emit.Label, len(n.Cases)+1)
	for i := range labels {
		labels[i] = fc.e.NewLabel()
	}
	fc.e.LdLoc(selSlot)
	fc.e.ConvI4()
	fc.e.Switch(labels)

	end := labels[len(n.Cases)]
	fc.pushLoop(label, end, nil)
	for i, c := range n.Cases {
		fc.e.MarkLabel(labels[i])
		for _, st := range c.Body {
			if err := fc.compileStmt(st); err != nil {
				return err
			}
		}
	}
	fc.popLoop()
	fc.e.MarkLabel(end)
	return nil
}

func (fc *FuncCompiler) compileTry(n *ast.TryStmt) error {
	fc.ex.BeginExceptionBlock(fc.e)
	if err := fc.compileStmt(n.Body); err != nil {
		return err
	}

	if n.Catch != nil {
		// A single catch-all clause; the runtime loader's exception type
		// token for "any value thrown" is token 0, reserved for this
		// purpose (spec §4.4 leaves the token's meaning to the loader).
		if err := fc.ex.BeginCatch(fc.e, 0); err != nil {
			return err
		}
		outer := fc.scope
		catchScope := scope.NewDeclarative(outer, fc.locals)
		slot, err := catchScope.Declare(n.Catch.Name)
		if err != nil {
			return err
		}
		fc.e.StLoc(slot)
		fc.scope = catchScope
		err = fc.compileStmt(n.Catch.Body)
		fc.scope = outer
		if err != nil {
			return err
		}
	}

	if n.Finally != nil {
		if err := fc.ex.BeginFinally(fc.e); err != nil {
			return err
		}
		if err := fc.compileStmt(n.Finally); err != nil {
			return err
		}
	}

	return fc.ex.EndExceptionBlock(fc.e)
}

// invertedCompareBranch maps a relational/equality operator to the branch
// opcode that jumps when the comparison is FALSE, for use as an
// if/while/for condition's direct-branch fast path.
func invertedCompareBranch(op token.Kind) (func(e *emit.Emitter, l *emit.Label), bool) {
	switch op {
	case token.Lt:
		return (*emit.Emitter).BgeF, true
	case token.LtEq:
		return (*emit.Emitter).BgtF, true
	case token.Gt:
		return (*emit.Emitter).BleF, true
	case token.GtEq:
		return (*emit.Emitter).BltF, true
	case token.Eq, token.SEq:
		return (*emit.Emitter).BneF, true
	case token.NotEq, token.SNotEq:
		return (*emit.Emitter).BeqF, true
	default:
		return nil, false
	}
}

// negate wraps cond in a boolean negation for do-while's "loop back if
// condition is true" test. A UnaryExpr never matches compileBranchOnFalse's
// direct-branch comparison case, so it is compiled through the general
// ToBoolean truthy path.
func negate(cond ast.Expr) ast.Expr {
	return &ast.UnaryExpr{Op: token.Bang, X: cond}
}
