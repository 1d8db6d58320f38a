package codegen

import (
	"testing"

	"avenir/internal/ast"
	"avenir/internal/token"
)

func num(v float64) *ast.NumberLiteral { return &ast.NumberLiteral{Value: v} }
func ident(name string) *ast.IdentExpr { return &ast.IdentExpr{Name: name} }

// TestReturnArithmetic models scenario E1: `return 1 + 2;`.
func TestReturnArithmetic(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.ReturnStmt{Result: &ast.BinaryExpr{Op: token.Plus, Left: num(1), Right: num(2)}},
		},
	}
	mod, err := Compile(prog)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	main := mod.Functions[mod.MainIndex]
	if len(main.Code) == 0 {
		t.Fatal("expected non-empty code for main")
	}
}

// TestWhileLoopBranches models scenario E2: `while (x < 10) x = x + 1;`.
func TestWhileLoopBranches(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "x", Value: num(0)},
			&ast.WhileStmt{
				Cond: &ast.BinaryExpr{Op: token.Lt, Left: ident("x"), Right: num(10)},
				Body: &ast.ExprStmt{Expression: &ast.AssignExpr{
					Op:    token.Assign,
					X:     ident("x"),
					Value: &ast.BinaryExpr{Op: token.Plus, Left: ident("x"), Right: num(1)},
				}},
			},
		},
	}
	if _, err := Compile(prog); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

// TestTryCatchFinally models scenario E3.
func TestTryCatchFinally(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.TryStmt{
				Body: &ast.BlockStmt{Stmts: []ast.Stmt{
					&ast.ExprStmt{Expression: &ast.CallExpr{Callee: ident("f")}},
				}},
				Catch: &ast.CatchClause{
					Name: "e",
					Body: &ast.BlockStmt{Stmts: []ast.Stmt{
						&ast.ExprStmt{Expression: &ast.CallExpr{Callee: ident("g"), Args: []ast.Expr{ident("e")}}},
					}},
				},
				Finally: &ast.BlockStmt{Stmts: []ast.Stmt{
					&ast.ExprStmt{Expression: &ast.CallExpr{Callee: ident("h")}},
				}},
			},
		},
	}
	if _, err := Compile(prog); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

// TestClosureCapturesOuterLocal models scenario E4: a function literal
// returned from an outer function, capturing the outer's parameter as an
// upvalue.
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
	}
	mod, err := Compile(prog)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	found := false
	for _, fn := range mod.Functions {
		if fn.Name == "" && len(fn.Upvalues) == 1 {
			found = true
			if !fn.Upvalues[0].IsLocal {
				t.Fatalf("expected the inner closure's upvalue to capture a local slot directly")
			}
		}
	}
	if !found {
		t.Fatal("expected a nested function literal with one captured upvalue")
	}
}

// TestWithImplicitReceiver models scenario E5: `with (obj) { x = 1; }`.
func TestWithImplicitReceiver(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.WithStmt{
				Object: ident("obj"),
				Body: &ast.BlockStmt{Stmts: []ast.Stmt{
					&ast.ExprStmt{Expression: &ast.AssignExpr{Op: token.Assign, X: ident("x"), Value: num(1)}},
				}},
			},
		},
	}
	if _, err := Compile(prog); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

// TestSwitchWithDefault models scenario E6.
func TestSwitchWithDefault(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.SwitchStmt{
				Tag: ident("x"),
				Cases: []*ast.CaseClause{
					{Test: num(1), Body: []ast.Stmt{&ast.BreakStmt{}}},
					{Test: num(2), Body: []ast.Stmt{&ast.BreakStmt{}}},
					{Body: []ast.Stmt{&ast.BreakStmt{}}}, // default
				},
			},
		},
	}
	if _, err := Compile(prog); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestForLoopWithBreakAndContinue(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.ForStmt{
				Init: &ast.VarDeclStmt{Name: "i", Value: num(0)},
				Cond: &ast.BinaryExpr{Op: token.Lt, Left: ident("i"), Right: num(10)},
				Post: &ast.UpdateExpr{Op: token.Inc, X: ident("i"), Prefix: false},
				Body: &ast.BlockStmt{Stmts: []ast.Stmt{
					&ast.IfStmt{
						Cond: &ast.BinaryExpr{Op: token.Eq, Left: ident("i"), Right: num(5)},
						Then: &ast.BreakStmt{},
					},
					&ast.ContinueStmt{},
				}},
			},
		},
	}
	if _, err := Compile(prog); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestLabeledBreakOutOfNestedLoop(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.LabeledStmt{
				Label: "outer",
				Stmt: &ast.ForStmt{
					Init: &ast.VarDeclStmt{Name: "i", Value: num(0)},
					Cond: &ast.BinaryExpr{Op: token.Lt, Left: ident("i"), Right: num(3)},
					Body: &ast.BlockStmt{Stmts: []ast.Stmt{
						&ast.ForStmt{
							Init: &ast.VarDeclStmt{Name: "j", Value: num(0)},
							Cond: &ast.BinaryExpr{Op: token.Lt, Left: ident("j"), Right: num(3)},
							Body: &ast.BlockStmt{Stmts: []ast.Stmt{
								&ast.BreakStmt{Label: "outer"},
							}},
						},
					}},
				},
			},
		},
	}
	if _, err := Compile(prog); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestObjectAndArrayLiterals(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "o", Value: &ast.ObjectLiteral{Props: []*ast.PropertyInit{
				{Key: "a", Value: num(1)},
				{Key: "b", Value: num(2)},
			}}},
			&ast.VarDeclStmt{Name: "arr", Value: &ast.ArrayLiteral{Elements: []ast.Expr{num(1), num(2), num(3)}}},
		},
	}
	if _, err := Compile(prog); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestPostfixAndPrefixUpdateOnMember(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "o", Value: &ast.ObjectLiteral{Props: []*ast.PropertyInit{{Key: "n", Value: num(0)}}}},
			&ast.ExprStmt{Expression: &ast.UpdateExpr{Op: token.Inc, X: &ast.MemberExpr{X: ident("o"), Name: "n"}, Prefix: false}},
			&ast.ExprStmt{Expression: &ast.UpdateExpr{Op: token.Dec, X: &ast.MemberExpr{X: ident("o"), Name: "n"}, Prefix: true}},
		},
	}
	if _, err := Compile(prog); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestCompoundAssignOnIndex(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "arr", Value: &ast.ArrayLiteral{Elements: []ast.Expr{num(1), num(2)}}},
			&ast.ExprStmt{Expression: &ast.AssignExpr{
				Op:    token.PlusAssign,
				X:     &ast.IndexExpr{X: ident("arr"), Index: num(0)},
				Value: num(41),
			}},
		},
	}
	if _, err := Compile(prog); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}

func TestLogicalAndOr(t *testing.T) {
	prog := &ast.Program{
		Body: []ast.Stmt{
			&ast.VarDeclStmt{Name: "a", Value: &ast.LogicalExpr{Op: token.AndAnd, Left: ident("x"), Right: ident("y")}},
			&ast.VarDeclStmt{Name: "b", Value: &ast.LogicalExpr{Op: token.OrOr, Left: ident("x"), Right: ident("y")}},
		},
	}
	if _, err := Compile(prog); err != nil {
		t.Fatalf("Compile: %v", err)
	}
}
