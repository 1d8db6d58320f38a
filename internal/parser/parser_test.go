package parser_test

import (
	"testing"

	"avenir/internal/ast"
	"avenir/internal/lexer"
	"avenir/internal/parser"
	"avenir/internal/token"
)

func parse(t *testing.T, input string) *ast.Program {
	t.Helper()
	l := lexer.New(input)
	p := parser.New(l)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		for _, e := range errs {
			t.Logf("parser error: %s", e)
		}
		t.Fatalf("expected no parser errors, got %d", len(errs))
	}
	return prog
}

func TestParseFunctionDeclarationAndCall(t *testing.T) {
	prog := parse(t, `
function greet(name) {
    return "hi " + name;
}
var result = greet("world");
`)
	if len(prog.Funcs) != 1 {
		t.Fatalf("expected 1 hoisted function, got %d", len(prog.Funcs))
	}
	fn := prog.Funcs[0]
	if fn.Name != "greet" || len(fn.Params) != 1 || fn.Params[0] != "name" {
		t.Fatalf("unexpected function decl: %+v", fn)
	}
	if len(fn.Body.Stmts) != 1 {
		t.Fatalf("expected 1 statement in body, got %d", len(fn.Body.Stmts))
	}
	ret, ok := fn.Body.Stmts[0].(*ast.ReturnStmt)
	if !ok {
		t.Fatalf("expected ReturnStmt, got %T", fn.Body.Stmts[0])
	}
	bin, ok := ret.Result.(*ast.BinaryExpr)
	if !ok {
		t.Fatalf("expected BinaryExpr, got %T", ret.Result)
	}
	if _, ok := bin.Left.(*ast.StringLiteral); !ok {
		t.Fatalf("expected string literal on left of +, got %T", bin.Left)
	}

	if len(prog.Body) != 1 {
		t.Fatalf("expected 1 top-level statement, got %d", len(prog.Body))
	}
	decl, ok := prog.Body[0].(*ast.VarDeclStmt)
	if !ok {
		t.Fatalf("expected VarDeclStmt, got %T", prog.Body[0])
	}
	call, ok := decl.Value.(*ast.CallExpr)
	if !ok {
		t.Fatalf("expected CallExpr, got %T", decl.Value)
	}
	if callee, ok := call.Callee.(*ast.IdentExpr); !ok || callee.Name != "greet" {
		t.Fatalf("unexpected callee: %+v", call.Callee)
	}
}

func TestOperatorPrecedence(t *testing.T) {
	prog := parse(t, `var x = 1 + 2 * 3;`)
	decl := prog.Body[0].(*ast.VarDeclStmt)
	add, ok := decl.Value.(*ast.BinaryExpr)
	if !ok || add.Op != token.Plus {
		t.Fatalf("expected top-level +, got %+v", decl.Value)
	}
	if _, ok := add.Left.(*ast.NumberLiteral); !ok {
		t.Fatalf("expected number literal on left, got %T", add.Left)
	}
	mul, ok := add.Right.(*ast.BinaryExpr)
	if !ok {
		t.Fatalf("expected * nested on the right of +, got %T", add.Right)
	}
	if mul.Left.(*ast.NumberLiteral).Value != 2 || mul.Right.(*ast.NumberLiteral).Value != 3 {
		t.Fatalf("unexpected operands: %+v", mul)
	}
}

func TestIfElseAndComparison(t *testing.T) {
	prog := parse(t, `
if (a < b) {
    result = 1;
} else {
    result = 2;
}
`)
	ifs, ok := prog.Body[0].(*ast.IfStmt)
	if !ok {
		t.Fatalf("expected IfStmt, got %T", prog.Body[0])
	}
	if _, ok := ifs.Cond.(*ast.BinaryExpr); !ok {
		t.Fatalf("expected comparison condition, got %T", ifs.Cond)
	}
	if ifs.Else == nil {
		t.Fatal("expected else branch")
	}
}

func TestForLoopHeader(t *testing.T) {
	prog := parse(t, `
for (var i = 0; i < 10; i = i + 1) {
    sum = sum + i;
}
`)
	fs, ok := prog.Body[0].(*ast.ForStmt)
	if !ok {
		t.Fatalf("expected ForStmt, got %T", prog.Body[0])
	}
	if _, ok := fs.Init.(*ast.VarDeclStmt); !ok {
		t.Fatalf("expected VarDeclStmt init, got %T", fs.Init)
	}
	if fs.Cond == nil || fs.Post == nil {
		t.Fatal("expected cond and post clauses")
	}
}

func TestForInLoop(t *testing.T) {
	prog := parse(t, `
for (var k in obj) {
    sum = sum + obj[k];
}
`)
	fi, ok := prog.Body[0].(*ast.ForInStmt)
	if !ok {
		t.Fatalf("expected ForInStmt, got %T", prog.Body[0])
	}
	if fi.VarName != "k" {
		t.Fatalf("expected loop variable k, got %q", fi.VarName)
	}
}

func TestTryCatchFinally(t *testing.T) {
	prog := parse(t, `
try {
    throw 1;
} catch (e) {
    result = e;
} finally {
    cleanedUp = true;
}
`)
	ts, ok := prog.Body[0].(*ast.TryStmt)
	if !ok {
		t.Fatalf("expected TryStmt, got %T", prog.Body[0])
	}
	if ts.Catch == nil || ts.Catch.Name != "e" {
		t.Fatalf("expected catch clause binding e, got %+v", ts.Catch)
	}
	if ts.Finally == nil {
		t.Fatal("expected finally clause")
	}
}

func TestSwitchWithDefault(t *testing.T) {
	prog := parse(t, `
switch (x) {
case 1:
    y = "one";
    break;
default:
    y = "other";
}
`)
	sw, ok := prog.Body[0].(*ast.SwitchStmt)
	if !ok {
		t.Fatalf("expected SwitchStmt, got %T", prog.Body[0])
	}
	if len(sw.Cases) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(sw.Cases))
	}
	if sw.Cases[1].Test != nil {
		t.Fatal("expected default clause to have a nil Test")
	}
}

func TestObjectAndArrayLiterals(t *testing.T) {
	prog := parse(t, `var o = {a: 1, b: [2, 3]};`)
	decl := prog.Body[0].(*ast.VarDeclStmt)
	obj, ok := decl.Value.(*ast.ObjectLiteral)
	if !ok {
		t.Fatalf("expected ObjectLiteral, got %T", decl.Value)
	}
	if len(obj.Props) != 2 || obj.Props[0].Key != "a" || obj.Props[1].Key != "b" {
		t.Fatalf("unexpected object props: %+v", obj.Props)
	}
	arr, ok := obj.Props[1].Value.(*ast.ArrayLiteral)
	if !ok || len(arr.Elements) != 2 {
		t.Fatalf("expected 2-element array literal, got %+v", obj.Props[1].Value)
	}
}

func TestMemberCallChainAndNew(t *testing.T) {
	prog := parse(t, `var r = new Foo().bar.baz(1, 2)[0];`)
	decl := prog.Body[0].(*ast.VarDeclStmt)
	idx, ok := decl.Value.(*ast.IndexExpr)
	if !ok {
		t.Fatalf("expected trailing IndexExpr, got %T", decl.Value)
	}
	call, ok := idx.X.(*ast.CallExpr)
	if !ok || len(call.Args) != 2 {
		t.Fatalf("expected a 2-arg call under the index, got %+v", idx.X)
	}
	member, ok := call.Callee.(*ast.MemberExpr)
	if !ok || member.Name != "baz" {
		t.Fatalf("expected .baz member access, got %+v", call.Callee)
	}
}

func TestAssignmentIsRightAssociative(t *testing.T) {
	prog := parse(t, `a = b = 1;`)
	es := prog.Body[0].(*ast.ExprStmt)
	outer, ok := es.Expression.(*ast.AssignExpr)
	if !ok {
		t.Fatalf("expected AssignExpr, got %T", es.Expression)
	}
	if _, ok := outer.Value.(*ast.AssignExpr); !ok {
		t.Fatalf("expected nested assignment on the right, got %T", outer.Value)
	}
}

func TestPostfixAndPrefixUpdate(t *testing.T) {
	prog := parse(t, `
i++;
--j;
`)
	post := prog.Body[0].(*ast.ExprStmt).Expression.(*ast.UpdateExpr)
	if post.Prefix {
		t.Fatal("expected postfix ++ on i")
	}
	pre := prog.Body[1].(*ast.ExprStmt).Expression.(*ast.UpdateExpr)
	if !pre.Prefix {
		t.Fatal("expected prefix -- on j")
	}
}

func TestAutomaticSemicolonInsertionAcrossNewline(t *testing.T) {
	prog := parse(t, "var a = 1\nvar b = 2\n")
	if len(prog.Body) != 2 {
		t.Fatalf("expected 2 statements via ASI, got %d", len(prog.Body))
	}
}

func TestWithStatement(t *testing.T) {
	prog := parse(t, `with (obj) { x = 1; }`)
	ws, ok := prog.Body[0].(*ast.WithStmt)
	if !ok {
		t.Fatalf("expected WithStmt, got %T", prog.Body[0])
	}
	if _, ok := ws.Object.(*ast.IdentExpr); !ok {
		t.Fatalf("expected identifier scope object, got %T", ws.Object)
	}
}

func TestLabeledStatementAndBreak(t *testing.T) {
	prog := parse(t, `
outer: for (;;) {
    break outer;
}
`)
	lbl, ok := prog.Body[0].(*ast.LabeledStmt)
	if !ok || lbl.Label != "outer" {
		t.Fatalf("expected labeled statement 'outer', got %+v", prog.Body[0])
	}
	forStmt, ok := lbl.Stmt.(*ast.ForStmt)
	if !ok {
		t.Fatalf("expected ForStmt under label, got %T", lbl.Stmt)
	}
	body := forStmt.Body.(*ast.BlockStmt)
	brk := body.Stmts[0].(*ast.BreakStmt)
	if brk.Label != "outer" {
		t.Fatalf("expected break to target 'outer', got %q", brk.Label)
	}
}
