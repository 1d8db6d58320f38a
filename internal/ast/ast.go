// Package ast defines the syntax tree produced by the parser and consumed
// by the compilation back end (internal/codegen). The AST itself carries no
// code-generation logic; internal/codegen dispatches on concrete node type,
// the idiomatic Go substitute for the reference compiler's virtual
// generate_code/result_kind node methods.
package ast

import "avenir/internal/token"

type Node interface {
	Pos() token.Position
}

type Stmt interface {
	Node
	stmtNode()
}

type Expr interface {
	Node
	exprNode()
}

// Program is the root of a parsed source file.
type Program struct {
	Funcs []*FuncDecl // top-level function declarations
	Body  []Stmt      // top-level statements, executed in program order
}

func (p *Program) Pos() token.Position {
	if len(p.Funcs) > 0 {
		return p.Funcs[0].Pos()
	}
	if len(p.Body) > 0 {
		return p.Body[0].Pos()
	}
	return token.Position{}
}

// FuncDecl is a named function declaration, hoisted to the top of its scope.
type FuncDecl struct {
	Name     string
	NamePos  token.Position
	Params   []string
	Body     *BlockStmt
	IsStrict bool // ECMAScript 5 "use strict" directive prologue
}

func (f *FuncDecl) Pos() token.Position { return f.NamePos }
func (f *FuncDecl) stmtNode()           {}

// FuncLiteral is a function expression; unlike FuncDecl it is not hoisted
// and, when named, its name is visible only inside its own body.
type FuncLiteral struct {
	FunPos token.Position
	Name   string // may be ""
	Params []string
	Body   *BlockStmt
}

func (e *FuncLiteral) Pos() token.Position { return e.FunPos }
func (e *FuncLiteral) exprNode()           {}

// ---------- Statements ----------

type BlockStmt struct {
	LBrace token.Position
	Stmts  []Stmt
}

func (b *BlockStmt) Pos() token.Position { return b.LBrace }
func (b *BlockStmt) stmtNode()           {}

// VarDeclStmt is one `var name [= init];` declarator. The parser splits
// `var a = 1, b = 2;` into one VarDeclStmt per declarator.
type VarDeclStmt struct {
	VarPos  token.Position
	Name    string
	NamePos token.Position
	Value   Expr // nil if no initializer
}

func (s *VarDeclStmt) Pos() token.Position { return s.VarPos }
func (s *VarDeclStmt) stmtNode()           {}

type ExprStmt struct {
	Expression Expr
}

func (s *ExprStmt) Pos() token.Position { return s.Expression.Pos() }
func (s *ExprStmt) stmtNode()           {}

type IfStmt struct {
	IfPos token.Position
	Cond  Expr
	Then  Stmt
	Else  Stmt // nil, or *IfStmt / *BlockStmt
}

func (s *IfStmt) Pos() token.Position { return s.IfPos }
func (s *IfStmt) stmtNode()           {}

type ReturnStmt struct {
	ReturnPos token.Position
	Result    Expr // nil for `return;`
}

func (s *ReturnStmt) Pos() token.Position { return s.ReturnPos }
func (s *ReturnStmt) stmtNode()           {}

type ThrowStmt struct {
	ThrowPos token.Position
	Value    Expr
}

func (s *ThrowStmt) Pos() token.Position { return s.ThrowPos }
func (s *ThrowStmt) stmtNode()           {}

// BreakStmt/ContinueStmt optionally target a labeled enclosing statement.
type BreakStmt struct {
	BreakPos token.Position
	Label    string
}

func (s *BreakStmt) Pos() token.Position { return s.BreakPos }
func (s *BreakStmt) stmtNode()           {}

type ContinueStmt struct {
	ContinuePos token.Position
	Label       string
}

func (s *ContinueStmt) Pos() token.Position { return s.ContinuePos }
func (s *ContinueStmt) stmtNode()           {}

// LabeledStmt names an enclosing loop or block so break/continue can
// target it from nested loops.
type LabeledStmt struct {
	LabelPos token.Position
	Label    string
	Stmt     Stmt
}

func (s *LabeledStmt) Pos() token.Position { return s.LabelPos }
func (s *LabeledStmt) stmtNode()           {}

// CatchClause describes `catch (name) { body }`. In ES3/5, the catch
// variable is bound in its own declarative scope for the handler's extent.
type CatchClause struct {
	CatchPos token.Position
	Name     string
	NamePos  token.Position
	Body     *BlockStmt
}

// TryStmt models try/catch/finally. At least one of Catch or Finally is
// non-nil (the parser rejects bare `try { }`).
type TryStmt struct {
	TryPos  token.Position
	Body    *BlockStmt
	Catch   *CatchClause // nil if no catch clause
	Finally *BlockStmt   // nil if no finally clause
}

func (s *TryStmt) Pos() token.Position { return s.TryPos }
func (s *TryStmt) stmtNode()           {}

type WhileStmt struct {
	WhilePos token.Position
	Cond     Expr
	Body     Stmt
}

func (s *WhileStmt) Pos() token.Position { return s.WhilePos }
func (s *WhileStmt) stmtNode()           {}

// DoWhileStmt: body executes once before the condition is first tested.
type DoWhileStmt struct {
	DoPos token.Position
	Body  Stmt
	Cond  Expr
}

func (s *DoWhileStmt) Pos() token.Position { return s.DoPos }
func (s *DoWhileStmt) stmtNode()           {}

type ForStmt struct {
	ForPos token.Position
	Init   Stmt // *VarDeclStmt (one declarator), *VarDeclListStmt (several) or *ExprStmt; may be nil
	Cond   Expr // may be nil
	Post   Expr // may be nil
	Body   Stmt
}

func (s *ForStmt) Pos() token.Position { return s.ForPos }
func (s *ForStmt) stmtNode()           {}

// ForInStmt walks the enumerable property names of an object.
type ForInStmt struct {
	ForPos  token.Position
	VarName string // the loop variable; always declared fresh with `var`
	Object  Expr
	Body    Stmt
}

func (s *ForInStmt) Pos() token.Position { return s.ForPos }
func (s *ForInStmt) stmtNode()           {}

// WithStmt pushes an object scope with an implicit receiver for the
// extent of Body; see internal/scope for the generated access protocol.
type WithStmt struct {
	WithPos token.Position
	Object  Expr
	Body    Stmt
}

func (s *WithStmt) Pos() token.Position { return s.WithPos }
func (s *WithStmt) stmtNode()           {}

type CaseClause struct {
	CasePos token.Position
	Test    Expr // nil for `default:`
	Body    []Stmt
}

type SwitchStmt struct {
	SwitchPos token.Position
	Tag       Expr
	Cases     []*CaseClause
}

func (s *SwitchStmt) Pos() token.Position { return s.SwitchPos }
func (s *SwitchStmt) stmtNode()           {}

// VarDeclListStmt groups the comma-separated declarators of a single `var`
// statement so the parser need not synthesize a BlockStmt for them.
type VarDeclListStmt struct {
	VarPos token.Position
	Decls  []*VarDeclStmt
}

func (s *VarDeclListStmt) Pos() token.Position { return s.VarPos }
func (s *VarDeclListStmt) stmtNode()           {}

// EmptyStmt is a bare `;`.
type EmptyStmt struct {
	Semi token.Position
}

func (s *EmptyStmt) Pos() token.Position { return s.Semi }
func (s *EmptyStmt) stmtNode()           {}

// ---------- Expressions ----------

type IdentExpr struct {
	Name    string
	NamePos token.Position
}

func (e *IdentExpr) Pos() token.Position { return e.NamePos }
func (e *IdentExpr) exprNode()           {}

type ThisExpr struct {
	ThisPos token.Position
}

func (e *ThisExpr) Pos() token.Position { return e.ThisPos }
func (e *ThisExpr) exprNode()           {}

type NumberLiteral struct {
	Value  float64
	LitPos token.Position
}

func (e *NumberLiteral) Pos() token.Position { return e.LitPos }
func (e *NumberLiteral) exprNode()           {}

type StringLiteral struct {
	Value  string
	LitPos token.Position
}

func (e *StringLiteral) Pos() token.Position { return e.LitPos }
func (e *StringLiteral) exprNode()           {}

type BoolLiteral struct {
	Value  bool
	LitPos token.Position
}

func (e *BoolLiteral) Pos() token.Position { return e.LitPos }
func (e *BoolLiteral) exprNode()           {}

type NullLiteral struct {
	LitPos token.Position
}

func (e *NullLiteral) Pos() token.Position { return e.LitPos }
func (e *NullLiteral) exprNode()           {}

type UndefinedLiteral struct {
	LitPos token.Position
}

func (e *UndefinedLiteral) Pos() token.Position { return e.LitPos }
func (e *UndefinedLiteral) exprNode()           {}

type ArrayLiteral struct {
	LBracket token.Position
	Elements []Expr
}

func (e *ArrayLiteral) Pos() token.Position { return e.LBracket }
func (e *ArrayLiteral) exprNode()           {}

type PropertyInit struct {
	Key      string
	KeyPos   token.Position
	Value    Expr
}

type ObjectLiteral struct {
	LBrace token.Position
	Props  []*PropertyInit
}

func (e *ObjectLiteral) Pos() token.Position { return e.LBrace }
func (e *ObjectLiteral) exprNode()           {}

type CallExpr struct {
	Callee Expr
	LParen token.Position
	Args   []Expr
}

func (e *CallExpr) Pos() token.Position { return e.Callee.Pos() }
func (e *CallExpr) exprNode()           {}

// NewExpr is a constructor invocation: `new Callee(Args)`.
type NewExpr struct {
	NewPos token.Position
	Callee Expr
	Args   []Expr
}

func (e *NewExpr) Pos() token.Position { return e.NewPos }
func (e *NewExpr) exprNode()           {}

type IndexExpr struct {
	X        Expr
	LBracket token.Position
	Index    Expr
}

func (e *IndexExpr) Pos() token.Position { return e.X.Pos() }
func (e *IndexExpr) exprNode()           {}

type MemberExpr struct {
	X       Expr
	Name    string
	NamePos token.Position
}

func (e *MemberExpr) Pos() token.Position { return e.X.Pos() }
func (e *MemberExpr) exprNode()           {}

type BinaryExpr struct {
	OpPos token.Position
	Op    token.Kind
	Left  Expr
	Right Expr
}

func (e *BinaryExpr) Pos() token.Position { return e.OpPos }
func (e *BinaryExpr) exprNode()           {}

// LogicalExpr is && / || with short-circuit evaluation, kept distinct from
// BinaryExpr because it compiles to a branch, not an opcode.
type LogicalExpr struct {
	OpPos token.Position
	Op    token.Kind
	Left  Expr
	Right Expr
}

func (e *LogicalExpr) Pos() token.Position { return e.OpPos }
func (e *LogicalExpr) exprNode()           {}

type UnaryExpr struct {
	OpPos token.Position
	Op    token.Kind
	X     Expr
}

func (e *UnaryExpr) Pos() token.Position { return e.OpPos }
func (e *UnaryExpr) exprNode()           {}

// UpdateExpr is ++/-- in prefix or postfix position.
type UpdateExpr struct {
	OpPos   token.Position
	Op      token.Kind
	X       Expr
	Prefix  bool
}

func (e *UpdateExpr) Pos() token.Position { return e.OpPos }
func (e *UpdateExpr) exprNode()           {}

// AssignExpr is a plain or compound assignment; X must be an IdentExpr,
// MemberExpr, or IndexExpr (a "reference" in ECMAScript terms).
type AssignExpr struct {
	OpPos token.Position
	Op    token.Kind // Assign, PlusAssign, MinusAssign, ...
	X     Expr
	Value Expr
}

func (e *AssignExpr) Pos() token.Position { return e.OpPos }
func (e *AssignExpr) exprNode()           {}

// ConditionalExpr is the `cond ? then : else` ternary.
type ConditionalExpr struct {
	QuestionPos token.Position
	Cond        Expr
	Then        Expr
	Else        Expr
}

func (e *ConditionalExpr) Pos() token.Position { return e.QuestionPos }
func (e *ConditionalExpr) exprNode()           {}

// SequenceExpr is the comma operator: evaluate each in order, yield the last.
type SequenceExpr struct {
	Exprs []Expr
}

func (e *SequenceExpr) Pos() token.Position { return e.Exprs[0].Pos() }
func (e *SequenceExpr) exprNode()           {}
