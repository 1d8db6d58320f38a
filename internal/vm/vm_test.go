package vm

import (
	"testing"

	"avenir/internal/ast"
	"avenir/internal/codegen"
	"avenir/internal/token"
	"avenir/internal/value"
)

func num(v float64) *ast.NumberLiteral { return &ast.NumberLiteral{Value: v} }
func ident(name string) *ast.IdentExpr { return &ast.IdentExpr{Name: name} }

func run(t *testing.T, prog *ast.Program) value.Value {
	t.Helper()
	mod, err := codegen.Compile(prog)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	v, err := New(mod).Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return v
}

func wantNum(t *testing.T, v value.Value, want float64) {
	t.Helper()
	if v.Kind != value.Number || v.Num != want {
		t.Fatalf("expected Number(%v), got %v", want, v)
	}
}

// TestReturnArithmetic models scenario E1: `return 1 + 2;`.
func TestReturnArithmetic(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.ReturnStmt{Result: &ast.BinaryExpr{Op: token.Plus, Left: num(1), Right: num(2)}},
		},
	}
	wantNum(t, run(t, prog), 3)
}

// TestWhileLoopAccumulates models scenario E2: a while loop summing 0..4.
func TestWhileLoopAccumulates(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "x", Value: num(0)},
			&ast.VarDeclStmt{Name: "i", Value: num(0)},
			&ast.WhileStmt{
				Cond: &ast.BinaryExpr{Op: token.Lt, Left: ident("i"), Right: num(5)},
				Body: &ast.BlockStmt{Stmts: []ast.Stmt{
					&ast.ExprStmt{Expression: &ast.AssignExpr{
						Op: token.Assign, X: ident("x"),
						Value: &ast.BinaryExpr{Op: token.Plus, Left: ident("x"), Right: ident("i")},
					}},
					&ast.ExprStmt{Expression: &ast.AssignExpr{
						Op: token.Assign, X: ident("i"),
						Value: &ast.BinaryExpr{Op: token.Plus, Left: ident("i"), Right: num(1)},
					}},
				}},
			},
			&ast.ReturnStmt{Result: ident("x")},
		},
	}
	wantNum(t, run(t, prog), 10)
}

// TestTryCatchRecoversThrownValue models scenario E3: catch binds the
// thrown value and the handler's result propagates out as the function's
// return value.
func TestTryCatchRecoversThrownValue(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "result", Value: num(0)},
			&ast.TryStmt{
				Body: &ast.BlockStmt{Stmts: []ast.Stmt{
					&ast.ThrowStmt{Value: num(5)},
				}},
				Catch: &ast.CatchClause{
					Name: "e",
					Body: &ast.BlockStmt{Stmts: []ast.Stmt{
						&ast.ExprStmt{Expression: &ast.AssignExpr{
							Op: token.Assign, X: ident("result"),
							Value: &ast.BinaryExpr{Op: token.Plus, Left: ident("e"), Right: num(1)},
						}},
					}},
				},
			},
			&ast.ReturnStmt{Result: ident("result")},
		},
	}
	wantNum(t, run(t, prog), 6)
}

// TestTryFinallyRunsOnThrow confirms a finally clause runs even though its
// try body's exception is never caught in this function — it still
// surfaces to Run as an uncaught *JSException after the finally executes.
func TestTryFinallyRunsOnThrow(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "ran", Value: num(0)},
			&ast.TryStmt{
				Body: &ast.BlockStmt{Stmts: []ast.Stmt{
					&ast.ThrowStmt{Value: num(1)},
				}},
				Finally: &ast.BlockStmt{Stmts: []ast.Stmt{
					&ast.ExprStmt{Expression: &ast.AssignExpr{Op: token.Assign, X: ident("ran"), Value: num(1)}},
				}},
			},
		},
	}
	mod, err := codegen.Compile(prog)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	m := New(mod)
	_, err = m.Run()
	if _, ok := err.(*JSException); !ok {
		t.Fatalf("expected an uncaught *JSException, got %v", err)
	}
	if ran, _ := m.global.Get("ran"); ran.Kind != value.Number || ran.Num != 1 {
		t.Fatalf("expected the finally clause to set ran = 1, got %v", ran)
	}
}

// TestClosureCapturesOuterLocal models scenario E4: makeAdder(3)(4) == 7,
// exercising NewClosure's upvalue capture across a real call boundary.
func TestClosureCapturesOuterLocal(t *testing.T) {
	prog := &ast.Program{
		Funcs: []*ast.FuncDecl{
			{
				Name:   "makeAdder",
				Params: []string{"a"},
				Body: &ast.BlockStmt{Stmts: []ast.Stmt{
					&ast.ReturnStmt{Result: &ast.FuncLiteral{
						Params: []string{"b"},
						Body: &ast.BlockStmt{Stmts: []ast.Stmt{
							&ast.ReturnStmt{Result: &ast.BinaryExpr{Op: token.Plus, Left: ident("a"), Right: ident("b")}},
						}},
					}},
				}},
			},
		},
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "f", Value: &ast.CallExpr{Callee: ident("makeAdder"), Args: []ast.Expr{num(3)}}},
			&ast.ReturnStmt{Result: &ast.CallExpr{Callee: ident("f"), Args: []ast.Expr{num(4)}}},
		},
	}
	wantNum(t, run(t, prog), 7)
}

// TestWithImplicitReceiver models scenario E5: an unqualified assignment
// inside `with (obj)` resolves against obj's own property.
func TestWithImplicitReceiver(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "obj", Value: &ast.ObjectLiteral{Props: []*ast.PropertyInit{
				{Key: "x", Value: num(0)},
			}}},
			&ast.WithStmt{
				Object: ident("obj"),
				Body: &ast.BlockStmt{Stmts: []ast.Stmt{
					&ast.ExprStmt{Expression: &ast.AssignExpr{Op: token.Assign, X: ident("x"), Value: num(42)}},
				}},
			},
			&ast.ReturnStmt{Result: &ast.MemberExpr{X: ident("obj"), Name: "x"}},
		},
	}
	wantNum(t, run(t, prog), 42)
}

// TestSwitchWithDefault models scenario E6.
func TestSwitchWithDefault(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "x", Value: num(2)},
			&ast.VarDeclStmt{Name: "result", Value: num(0)},
			&ast.SwitchStmt{
				Tag: ident("x"),
				Cases: []*ast.CaseClause{
					{Test: num(1), Body: []ast.Stmt{
						&ast.ExprStmt{Expression: &ast.AssignExpr{Op: token.Assign, X: ident("result"), Value: num(1)}},
						&ast.BreakStmt{},
					}},
					{Test: num(2), Body: []ast.Stmt{
						&ast.ExprStmt{Expression: &ast.AssignExpr{Op: token.Assign, X: ident("result"), Value: num(2)}},
						&ast.BreakStmt{},
					}},
					{Body: []ast.Stmt{ // default
						&ast.ExprStmt{Expression: &ast.AssignExpr{Op: token.Assign, X: ident("result"), Value: num(-1)}},
						&ast.BreakStmt{},
					}},
				},
			},
			&ast.ReturnStmt{Result: ident("result")},
		},
	}
	wantNum(t, run(t, prog), 2)
}

// TestForLoopBreakAndContinue sums 0..9, skipping 5 and stopping at 8.
func TestForLoopBreakAndContinue(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "sum", Value: num(0)},
			&ast.ForStmt{
				Init: &ast.VarDeclStmt{Name: "i", Value: num(0)},
				Cond: &ast.BinaryExpr{Op: token.Lt, Left: ident("i"), Right: num(10)},
				Post: &ast.UpdateExpr{Op: token.Inc, X: ident("i"), Prefix: false},
				Body: &ast.BlockStmt{Stmts: []ast.Stmt{
					&ast.IfStmt{
						Cond: &ast.BinaryExpr{Op: token.Eq, Left: ident("i"), Right: num(8)},
						Then: &ast.BreakStmt{},
					},
					&ast.IfStmt{
						Cond: &ast.BinaryExpr{Op: token.Eq, Left: ident("i"), Right: num(5)},
						Then: &ast.ContinueStmt{},
					},
					&ast.ExprStmt{Expression: &ast.AssignExpr{
						Op: token.Assign, X: ident("sum"),
						Value: &ast.BinaryExpr{Op: token.Plus, Left: ident("sum"), Right: ident("i")},
					}},
				}},
			},
			&ast.ReturnStmt{Result: ident("sum")},
		},
	}
	// 0+1+2+3+4+6+7 = 23 (5 skipped via continue, loop stops before 8 runs its body)
	wantNum(t, run(t, prog), 23)
}

// TestObjectAndArrayLiterals exercises NewObj/NewArr/LdFld/LdElem together.
func TestObjectAndArrayLiterals(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "o", Value: &ast.ObjectLiteral{Props: []*ast.PropertyInit{
				{Key: "a", Value: num(1)},
				{Key: "b", Value: num(2)},
			}}},
			&ast.VarDeclStmt{Name: "arr", Value: &ast.ArrayLiteral{Elements: []ast.Expr{num(10), num(20), num(30)}}},
			&ast.ReturnStmt{Result: &ast.BinaryExpr{
				Op:   token.Plus,
				Left: &ast.MemberExpr{X: ident("o"), Name: "b"},
				Right: &ast.IndexExpr{X: ident("arr"), Index: num(2)},
			}},
		},
	}
	wantNum(t, run(t, prog), 32)
}

// TestCompoundAssignOnIndex exercises the stash-based read/modify/write
// path for `arr[0] += 41`.
func TestCompoundAssignOnIndex(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "arr", Value: &ast.ArrayLiteral{Elements: []ast.Expr{num(1), num(2)}}},
			&ast.ExprStmt{Expression: &ast.AssignExpr{
				Op:    token.PlusAssign,
				X:     &ast.IndexExpr{X: ident("arr"), Index: num(0)},
				Value: num(41),
			}},
			&ast.ReturnStmt{Result: &ast.IndexExpr{X: ident("arr"), Index: num(0)}},
		},
	}
	wantNum(t, run(t, prog), 42)
}

// TestPostfixAndPrefixUpdateOnMember exercises ++/-- on a MemberExpr target.
func TestPostfixAndPrefixUpdateOnMember(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "o", Value: &ast.ObjectLiteral{Props: []*ast.PropertyInit{{Key: "n", Value: num(0)}}}},
			&ast.ExprStmt{Expression: &ast.UpdateExpr{Op: token.Inc, X: &ast.MemberExpr{X: ident("o"), Name: "n"}, Prefix: false}}, // n: 0 -> 1
			&ast.ExprStmt{Expression: &ast.UpdateExpr{Op: token.Inc, X: &ast.MemberExpr{X: ident("o"), Name: "n"}, Prefix: false}}, // n: 1 -> 2
			&ast.ExprStmt{Expression: &ast.UpdateExpr{Op: token.Dec, X: &ast.MemberExpr{X: ident("o"), Name: "n"}, Prefix: true}},  // n: 2 -> 1
			&ast.ReturnStmt{Result: &ast.MemberExpr{X: ident("o"), Name: "n"}},
		},
	}
	wantNum(t, run(t, prog), 1)
}

// TestLogicalAndOrShortCircuit exercises && / ||'s real JS short-circuit
// value semantics (not just truthy/falsy collapse).
func TestLogicalAndOrShortCircuit(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "a", Value: &ast.LogicalExpr{Op: token.AndAnd, Left: num(0), Right: num(99)}},  // 0 is falsy: short-circuits to 0
			&ast.VarDeclStmt{Name: "b", Value: &ast.LogicalExpr{Op: token.OrOr, Left: num(0), Right: num(7)}},     // 0 is falsy: falls through to 7
			&ast.ReturnStmt{Result: &ast.BinaryExpr{Op: token.Plus, Left: ident("a"), Right: ident("b")}},
		},
	}
	wantNum(t, run(t, prog), 7)
}

// TestComparisonProducesGenuineBoolean guards against the Box()/NotI4
// miscoding this package's codegen previously had: `!` and relational
// operators must yield a real Boolean, not a bare 0/1 Number, so that a
// later `if` or logical op on the result still behaves correctly and
// typeof would report "boolean".
func TestComparisonProducesGenuineBoolean(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "lt", Value: &ast.BinaryExpr{Op: token.Lt, Left: num(1), Right: num(2)}},
			&ast.VarDeclStmt{Name: "notLt", Value: &ast.UnaryExpr{Op: token.Bang, X: ident("lt")}},
			&ast.ReturnStmt{Result: ident("notLt")},
		},
	}
	v := run(t, prog)
	if v.Kind != value.Boolean || v.Bool != false {
		t.Fatalf("expected Boolean(false), got %v", v)
	}
}

// TestForInEnumeratesOwnKeys models scenario-adjacent for-in coverage: sums
// an object's own enumerable string-keyed values via EnumKeysBuiltinID.
func TestForInEnumeratesOwnKeys(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "o", Value: &ast.ObjectLiteral{Props: []*ast.PropertyInit{
				{Key: "a", Value: num(1)},
				{Key: "b", Value: num(2)},
				{Key: "c", Value: num(3)},
			}}},
			&ast.VarDeclStmt{Name: "sum", Value: num(0)},
			&ast.ForInStmt{
				VarName: "k",
				Object:  ident("o"),
				Body: &ast.BlockStmt{Stmts: []ast.Stmt{
					&ast.ExprStmt{Expression: &ast.AssignExpr{
						Op: token.Assign, X: ident("sum"),
						Value: &ast.BinaryExpr{Op: token.Plus, Left: ident("sum"), Right: &ast.IndexExpr{X: ident("o"), Index: ident("k")}},
					}},
				}},
			},
			&ast.ReturnStmt{Result: ident("sum")},
		},
	}
	wantNum(t, run(t, prog), 6)
}
