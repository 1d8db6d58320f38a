// Package parser builds an internal/ast tree from a token stream produced
// by internal/lexer. It is a straightforward recursive-descent parser with
// a precedence-cascade expression grammar, in the spirit of the reference
// compiler's own hand-written descent (see internal/codegen's doc comment
// for how the resulting tree is consumed).
package parser

import (
	"fmt"
	"strconv"

	"avenir/internal/ast"
	"avenir/internal/lexer"
	"avenir/internal/token"
)

type Parser struct {
	l *lexer.Lexer

	cur  token.Token
	peek token.Token

	lastLine int // line of the most recently consumed token, for ASI

	errors []string
}

func New(l *lexer.Lexer) *Parser {
	p := &Parser{l: l}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) Errors() []string {
	return p.errors
}

func (p *Parser) nextToken() {
	p.lastLine = p.cur.Pos.Line
	p.cur = p.peek
	p.peek = p.l.NextToken()
}

func (p *Parser) errorf(pos token.Position, format string, args ...interface{}) {
	msg := fmt.Sprintf("%d:%d: ", pos.Line, pos.Column) + fmt.Sprintf(format, args...)
	p.errors = append(p.errors, msg)
}

func (p *Parser) expect(kind token.Kind) token.Token {
	if p.cur.Kind != kind {
		p.errorf(p.cur.Pos, "expected %s, got %s (%q)", kind, p.cur.Kind, p.cur.Lexeme)
	}
	tok := p.cur
	p.nextToken()
	return tok
}

// expectSemi consumes a statement terminator, applying the usual automatic
// semicolon insertion rule: an explicit `;` is always accepted, and is
// otherwise inserted before `}`, at EOF, or across a line break.
func (p *Parser) expectSemi() {
	if p.cur.Kind == token.Semicolon {
		p.nextToken()
		return
	}
	if p.cur.Kind == token.RBrace || p.cur.Kind == token.EOF {
		return
	}
	if p.cur.Pos.Line > p.lastLine {
		return
	}
	p.errorf(p.cur.Pos, "expected ; (or line break), got %s (%q)", p.cur.Kind, p.cur.Lexeme)
}

// ---------- Top-level ----------

// ParseProgram parses a full source file, hoisting top-level function
// declarations into Program.Funcs and collecting everything else in
// program order into Program.Body.
func (p *Parser) ParseProgram() *ast.Program {
	prog := &ast.Program{}

	for p.cur.Kind != token.EOF {
		stmt := p.parseStatement()
		if stmt == nil {
			continue
		}
		if fd, ok := stmt.(*ast.FuncDecl); ok {
			prog.Funcs = append(prog.Funcs, fd)
			continue
		}
		prog.Body = append(prog.Body, stmt)
	}

	return prog
}

// ---------- Statements ----------

func (p *Parser) parseBlock() *ast.BlockStmt {
	brace := p.expect(token.LBrace)
	block := &ast.BlockStmt{LBrace: brace.Pos}
	for p.cur.Kind != token.RBrace && p.cur.Kind != token.EOF {
		if stmt := p.parseStatement(); stmt != nil {
			block.Stmts = append(block.Stmts, stmt)
		}
	}
	p.expect(token.RBrace)
	return block
}

func (p *Parser) parseStatement() ast.Stmt {
	switch p.cur.Kind {
	case token.LBrace:
		return p.parseBlock()
	case token.Var:
		return p.parseVarStmt()
	case token.Function:
		return p.parseFuncDecl()
	case token.If:
		return p.parseIfStmt()
	case token.While:
		return p.parseWhileStmt()
	case token.Do:
		return p.parseDoWhileStmt()
	case token.For:
		return p.parseForStmt()
	case token.Return:
		return p.parseReturnStmt()
	case token.Throw:
		return p.parseThrowStmt()
	case token.Break:
		return p.parseBreakStmt()
	case token.Continue:
		return p.parseContinueStmt()
	case token.Try:
		return p.parseTryStmt()
	case token.Switch:
		return p.parseSwitchStmt()
	case token.With:
		return p.parseWithStmt()
	case token.Semicolon:
		pos := p.cur.Pos
		p.nextToken()
		return &ast.EmptyStmt{Semi: pos}
	default:
		return p.parseExprOrLabeledStmt()
	}
}

func (p *Parser) parseVarStmt() ast.Stmt {
	varPos := p.cur.Pos
	p.nextToken() // consume 'var'

	first := p.parseVarDecl()
	if p.cur.Kind != token.Comma {
		p.expectSemi()
		return first
	}

	list := &ast.VarDeclListStmt{VarPos: varPos, Decls: []*ast.VarDeclStmt{first}}
	for p.cur.Kind == token.Comma {
		p.nextToken()
		list.Decls = append(list.Decls, p.parseVarDecl())
	}
	p.expectSemi()
	return list
}

// parseVarDecl parses one `name [= init]` declarator without consuming a
// trailing `;` or `,` — callers decide how the declarator list ends.
func (p *Parser) parseVarDecl() *ast.VarDeclStmt {
	nameTok := p.expect(token.Ident)
	decl := &ast.VarDeclStmt{VarPos: nameTok.Pos, Name: nameTok.Lexeme, NamePos: nameTok.Pos}
	if p.cur.Kind == token.Assign {
		p.nextToken()
		decl.Value = p.parseAssign()
	}
	return decl
}

func (p *Parser) parseFuncDecl() ast.Stmt {
	p.nextToken() // consume 'function'
	nameTok := p.expect(token.Ident)
	params := p.parseParamList()
	body, strict := p.parseFuncBody()
	return &ast.FuncDecl{Name: nameTok.Lexeme, NamePos: nameTok.Pos, Params: params, Body: body, IsStrict: strict}
}

func (p *Parser) parseParamList() []string {
	p.expect(token.LParen)
	var params []string
	for p.cur.Kind != token.RParen && p.cur.Kind != token.EOF {
		tok := p.expect(token.Ident)
		params = append(params, tok.Lexeme)
		if p.cur.Kind == token.Comma {
			p.nextToken()
		} else {
			break
		}
	}
	p.expect(token.RParen)
	return params
}

// parseFuncBody parses a function's `{ ... }` body and recognizes a
// leading "use strict" directive prologue, the one ECMAScript 5 feature
// this lexer's token set still needs a string-literal statement to spot.
func (p *Parser) parseFuncBody() (*ast.BlockStmt, bool) {
	brace := p.expect(token.LBrace)
	block := &ast.BlockStmt{LBrace: brace.Pos}
	strict := false
	first := true
	for p.cur.Kind != token.RBrace && p.cur.Kind != token.EOF {
		stmt := p.parseStatement()
		if first {
			first = false
			if es, ok := stmt.(*ast.ExprStmt); ok {
				if lit, ok := es.Expression.(*ast.StringLiteral); ok && lit.Value == "use strict" {
					strict = true
				}
			}
		}
		if stmt != nil {
			block.Stmts = append(block.Stmts, stmt)
		}
	}
	p.expect(token.RBrace)
	return block, strict
}

func (p *Parser) parseIfStmt() ast.Stmt {
	ifPos := p.cur.Pos
	p.nextToken()
	p.expect(token.LParen)
	cond := p.parseExpr()
	p.expect(token.RParen)
	then := p.parseStatement()
	var elseStmt ast.Stmt
	if p.cur.Kind == token.Else {
		p.nextToken()
		elseStmt = p.parseStatement()
	}
	return &ast.IfStmt{IfPos: ifPos, Cond: cond, Then: then, Else: elseStmt}
}

func (p *Parser) parseWhileStmt() ast.Stmt {
	whilePos := p.cur.Pos
	p.nextToken()
	p.expect(token.LParen)
	cond := p.parseExpr()
	p.expect(token.RParen)
	body := p.parseStatement()
	return &ast.WhileStmt{WhilePos: whilePos, Cond: cond, Body: body}
}

func (p *Parser) parseDoWhileStmt() ast.Stmt {
	doPos := p.cur.Pos
	p.nextToken()
	body := p.parseStatement()
	p.expect(token.While)
	p.expect(token.LParen)
	cond := p.parseExpr()
	p.expect(token.RParen)
	p.expectSemi()
	return &ast.DoWhileStmt{DoPos: doPos, Body: body, Cond: cond}
}

// parseForStmt disambiguates `for (;;)` / `for (init; cond; post)` from
// `for (var? x in obj)` by parsing the first clause, then checking whether
// `in` follows.
func (p *Parser) parseForStmt() ast.Stmt {
	forPos := p.cur.Pos
	p.nextToken()
	p.expect(token.LParen)

	if p.cur.Kind == token.Var {
		varPos := p.cur.Pos
		p.nextToken()
		decl := p.parseVarDecl()
		if p.cur.Kind == token.In {
			p.nextToken()
			obj := p.parseExpr()
			p.expect(token.RParen)
			body := p.parseStatement()
			return &ast.ForInStmt{ForPos: forPos, VarName: decl.Name, Object: obj, Body: body}
		}
		list := &ast.VarDeclListStmt{VarPos: varPos, Decls: []*ast.VarDeclStmt{decl}}
		for p.cur.Kind == token.Comma {
			p.nextToken()
			list.Decls = append(list.Decls, p.parseVarDecl())
		}
		if len(list.Decls) == 1 {
			return p.finishClassicFor(forPos, decl)
		}
		return p.finishClassicFor(forPos, list)
	}

	if p.cur.Kind == token.Semicolon {
		return p.finishClassicFor(forPos, nil)
	}

	first := p.parseExpr()
	if p.cur.Kind == token.In {
		p.nextToken()
		obj := p.parseExpr()
		p.expect(token.RParen)
		body := p.parseStatement()
		ident, ok := first.(*ast.IdentExpr)
		if !ok {
			p.errorf(first.Pos(), "invalid for-in target")
			return &ast.ForInStmt{ForPos: forPos, Object: obj, Body: body}
		}
		return &ast.ForInStmt{ForPos: forPos, VarName: ident.Name, Object: obj, Body: body}
	}
	init := &ast.ExprStmt{Expression: first}
	return p.finishClassicFor(forPos, init)
}

func (p *Parser) finishClassicFor(forPos token.Position, init ast.Stmt) ast.Stmt {
	p.expect(token.Semicolon)
	var cond ast.Expr
	if p.cur.Kind != token.Semicolon {
		cond = p.parseExpr()
	}
	p.expect(token.Semicolon)
	var post ast.Expr
	if p.cur.Kind != token.RParen {
		post = p.parseExpr()
	}
	p.expect(token.RParen)
	body := p.parseStatement()
	return &ast.ForStmt{ForPos: forPos, Init: init, Cond: cond, Post: post, Body: body}
}

func (p *Parser) parseReturnStmt() ast.Stmt {
	retPos := p.cur.Pos
	p.nextToken()
	var result ast.Expr
	if p.cur.Kind != token.Semicolon && p.cur.Kind != token.RBrace && p.cur.Kind != token.EOF && p.cur.Pos.Line == p.lastLine {
		result = p.parseExpr()
	}
	p.expectSemi()
	return &ast.ReturnStmt{ReturnPos: retPos, Result: result}
}

func (p *Parser) parseThrowStmt() ast.Stmt {
	throwPos := p.cur.Pos
	p.nextToken()
	val := p.parseExpr()
	p.expectSemi()
	return &ast.ThrowStmt{ThrowPos: throwPos, Value: val}
}

func (p *Parser) parseBreakStmt() ast.Stmt {
	pos := p.cur.Pos
	p.nextToken()
	var label string
	if p.cur.Kind == token.Ident && p.cur.Pos.Line == p.lastLine {
		label = p.cur.Lexeme
		p.nextToken()
	}
	p.expectSemi()
	return &ast.BreakStmt{BreakPos: pos, Label: label}
}

func (p *Parser) parseContinueStmt() ast.Stmt {
	pos := p.cur.Pos
	p.nextToken()
	var label string
	if p.cur.Kind == token.Ident && p.cur.Pos.Line == p.lastLine {
		label = p.cur.Lexeme
		p.nextToken()
	}
	p.expectSemi()
	return &ast.ContinueStmt{ContinuePos: pos, Label: label}
}

func (p *Parser) parseTryStmt() ast.Stmt {
	tryPos := p.cur.Pos
	p.nextToken()
	body := p.parseBlock()

	var catch *ast.CatchClause
	var finally *ast.BlockStmt

	if p.cur.Kind == token.Catch {
		catchPos := p.cur.Pos
		p.nextToken()
		p.expect(token.LParen)
		nameTok := p.expect(token.Ident)
		p.expect(token.RParen)
		catchBody := p.parseBlock()
		catch = &ast.CatchClause{CatchPos: catchPos, Name: nameTok.Lexeme, NamePos: nameTok.Pos, Body: catchBody}
	}
	if p.cur.Kind == token.Finally {
		p.nextToken()
		finally = p.parseBlock()
	}
	if catch == nil && finally == nil {
		p.errorf(tryPos, "try statement needs a catch or finally clause")
	}
	return &ast.TryStmt{TryPos: tryPos, Body: body, Catch: catch, Finally: finally}
}

func (p *Parser) parseSwitchStmt() ast.Stmt {
	switchPos := p.cur.Pos
	p.nextToken()
	p.expect(token.LParen)
	tag := p.parseExpr()
	p.expect(token.RParen)
	p.expect(token.LBrace)

	stmt := &ast.SwitchStmt{SwitchPos: switchPos, Tag: tag}
	sawDefault := false
	for p.cur.Kind != token.RBrace && p.cur.Kind != token.EOF {
		clause := &ast.CaseClause{CasePos: p.cur.Pos}
		if p.cur.Kind == token.Case {
			p.nextToken()
			clause.Test = p.parseExpr()
		} else {
			p.expect(token.Default)
			if sawDefault {
				p.errorf(clause.CasePos, "switch statement may have at most one default clause")
			}
			sawDefault = true
		}
		p.expect(token.Colon)
		for p.cur.Kind != token.Case && p.cur.Kind != token.Default && p.cur.Kind != token.RBrace && p.cur.Kind != token.EOF {
			if s := p.parseStatement(); s != nil {
				clause.Body = append(clause.Body, s)
			}
		}
		stmt.Cases = append(stmt.Cases, clause)
	}
	p.expect(token.RBrace)
	return stmt
}

func (p *Parser) parseWithStmt() ast.Stmt {
	withPos := p.cur.Pos
	p.nextToken()
	p.expect(token.LParen)
	obj := p.parseExpr()
	p.expect(token.RParen)
	body := p.parseStatement()
	return &ast.WithStmt{WithPos: withPos, Object: obj, Body: body}
}

// parseExprOrLabeledStmt handles the one case the switch in parseStatement
// can't dispatch on a leading keyword alone: `ident:` introduces a labeled
// statement, otherwise it's the start of an expression statement.
func (p *Parser) parseExprOrLabeledStmt() ast.Stmt {
	if p.cur.Kind == token.Ident && p.peek.Kind == token.Colon {
		labelTok := p.cur
		p.nextToken()
		p.nextToken() // consume ':'
		inner := p.parseStatement()
		return &ast.LabeledStmt{LabelPos: labelTok.Pos, Label: labelTok.Lexeme, Stmt: inner}
	}
	expr := p.parseExpr()
	p.expectSemi()
	return &ast.ExprStmt{Expression: expr}
}

// ---------- Expressions ----------
//
// The cascade below implements ECMAScript's operator precedence from
// loosest to tightest: comma, assignment, conditional, logical or/and,
// bitwise or/xor/and, equality, relational, shift, additive,
// multiplicative, unary, then the left-hand-side (call/member/new) and
// primary productions.

func (p *Parser) parseExpr() ast.Expr {
	first := p.parseAssign()
	if p.cur.Kind != token.Comma {
		return first
	}
	seq := &ast.SequenceExpr{Exprs: []ast.Expr{first}}
	for p.cur.Kind == token.Comma {
		p.nextToken()
		seq.Exprs = append(seq.Exprs, p.parseAssign())
	}
	return seq
}

var assignOps = map[token.Kind]bool{
	token.Assign: true, token.PlusAssign: true, token.MinusAssign: true,
	token.StarAssign: true, token.SlashAssign: true, token.PercentAssign: true,
}

func (p *Parser) parseAssign() ast.Expr {
	left := p.parseConditional()
	if !assignOps[p.cur.Kind] {
		return left
	}
	op := p.cur.Kind
	pos := p.cur.Pos
	p.nextToken()
	right := p.parseAssign() // right-associative
	switch left.(type) {
	case *ast.IdentExpr, *ast.MemberExpr, *ast.IndexExpr:
	default:
		p.errorf(pos, "invalid assignment target")
	}
	return &ast.AssignExpr{OpPos: pos, Op: op, X: left, Value: right}
}

func (p *Parser) parseConditional() ast.Expr {
	cond := p.parseLogicalOr()
	if p.cur.Kind != token.Question {
		return cond
	}
	qPos := p.cur.Pos
	p.nextToken()
	then := p.parseAssign()
	p.expect(token.Colon)
	els := p.parseAssign()
	return &ast.ConditionalExpr{QuestionPos: qPos, Cond: cond, Then: then, Else: els}
}

func (p *Parser) parseLogicalOr() ast.Expr {
	left := p.parseLogicalAnd()
	for p.cur.Kind == token.OrOr {
		pos := p.cur.Pos
		p.nextToken()
		right := p.parseLogicalAnd()
		left = &ast.LogicalExpr{OpPos: pos, Op: token.OrOr, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseLogicalAnd() ast.Expr {
	left := p.parseBitOr()
	for p.cur.Kind == token.AndAnd {
		pos := p.cur.Pos
		p.nextToken()
		right := p.parseBitOr()
		left = &ast.LogicalExpr{OpPos: pos, Op: token.AndAnd, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseBitOr() ast.Expr {
	left := p.parseBitXor()
	for p.cur.Kind == token.Pipe {
		pos := p.cur.Pos
		p.nextToken()
		right := p.parseBitXor()
		left = &ast.BinaryExpr{OpPos: pos, Op: token.Pipe, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseBitXor() ast.Expr {
	left := p.parseBitAnd()
	for p.cur.Kind == token.Caret {
		pos := p.cur.Pos
		p.nextToken()
		right := p.parseBitAnd()
		left = &ast.BinaryExpr{OpPos: pos, Op: token.Caret, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseBitAnd() ast.Expr {
	left := p.parseEquality()
	for p.cur.Kind == token.Amp {
		pos := p.cur.Pos
		p.nextToken()
		right := p.parseEquality()
		left = &ast.BinaryExpr{OpPos: pos, Op: token.Amp, Left: left, Right: right}
	}
	return left
}

var equalityOps = map[token.Kind]bool{token.Eq: true, token.NotEq: true, token.SEq: true, token.SNotEq: true}

func (p *Parser) parseEquality() ast.Expr {
	left := p.parseRelational()
	for equalityOps[p.cur.Kind] {
		op := p.cur.Kind
		pos := p.cur.Pos
		p.nextToken()
		right := p.parseRelational()
		left = &ast.BinaryExpr{OpPos: pos, Op: op, Left: left, Right: right}
	}
	return left
}

var relationalOps = map[token.Kind]bool{
	token.Lt: true, token.LtEq: true, token.Gt: true, token.GtEq: true, token.Instanceof: true,
}

func (p *Parser) parseRelational() ast.Expr {
	left := p.parseShift()
	for relationalOps[p.cur.Kind] {
		op := p.cur.Kind
		pos := p.cur.Pos
		p.nextToken()
		right := p.parseShift()
		left = &ast.BinaryExpr{OpPos: pos, Op: op, Left: left, Right: right}
	}
	return left
}

var shiftOps = map[token.Kind]bool{token.Shl: true, token.Shr: true, token.UShr: true}

func (p *Parser) parseShift() ast.Expr {
	left := p.parseAdditive()
	for shiftOps[p.cur.Kind] {
		op := p.cur.Kind
		pos := p.cur.Pos
		p.nextToken()
		right := p.parseAdditive()
		left = &ast.BinaryExpr{OpPos: pos, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	for p.cur.Kind == token.Plus || p.cur.Kind == token.Minus {
		op := p.cur.Kind
		pos := p.cur.Pos
		p.nextToken()
		right := p.parseMultiplicative()
		left = &ast.BinaryExpr{OpPos: pos, Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expr {
	left := p.parseUnary()
	for p.cur.Kind == token.Star || p.cur.Kind == token.Slash || p.cur.Kind == token.Percent {
		op := p.cur.Kind
		pos := p.cur.Pos
		p.nextToken()
		right := p.parseUnary()
		left = &ast.BinaryExpr{OpPos: pos, Op: op, Left: left, Right: right}
	}
	return left
}

var unaryOps = map[token.Kind]bool{
	token.Bang: true, token.Tilde: true, token.Plus: true, token.Minus: true,
	token.Typeof: true, token.Void: true, token.Delete: true,
}

func (p *Parser) parseUnary() ast.Expr {
	if unaryOps[p.cur.Kind] {
		op := p.cur.Kind
		pos := p.cur.Pos
		p.nextToken()
		x := p.parseUnary()
		return &ast.UnaryExpr{OpPos: pos, Op: op, X: x}
	}
	if p.cur.Kind == token.Inc || p.cur.Kind == token.Dec {
		op := p.cur.Kind
		pos := p.cur.Pos
		p.nextToken()
		x := p.parseUnary()
		return &ast.UpdateExpr{OpPos: pos, Op: op, X: x, Prefix: true}
	}
	return p.parsePostfix()
}

// parsePostfix handles trailing ++/-- (no line break permitted before
// them, per ECMAScript's restricted-production rule for postfix operators).
func (p *Parser) parsePostfix() ast.Expr {
	x := p.parseLeftHandSide()
	if (p.cur.Kind == token.Inc || p.cur.Kind == token.Dec) && p.cur.Pos.Line == p.lastLine {
		op := p.cur.Kind
		pos := p.cur.Pos
		p.nextToken()
		return &ast.UpdateExpr{OpPos: pos, Op: op, X: x, Prefix: false}
	}
	return x
}

// parseLeftHandSide parses new/call/member chains: `new Foo().bar[0](x)`.
func (p *Parser) parseLeftHandSide() ast.Expr {
	var expr ast.Expr
	if p.cur.Kind == token.New {
		expr = p.parseNewExpr()
	} else {
		expr = p.parsePrimary()
	}
	for {
		switch p.cur.Kind {
		case token.Dot:
			p.nextToken()
			nameTok := p.expect(token.Ident)
			expr = &ast.MemberExpr{X: expr, Name: nameTok.Lexeme, NamePos: nameTok.Pos}
		case token.LBracket:
			pos := p.cur.Pos
			p.nextToken()
			idx := p.parseExpr()
			p.expect(token.RBracket)
			expr = &ast.IndexExpr{X: expr, LBracket: pos, Index: idx}
		case token.LParen:
			pos := p.cur.Pos
			args := p.parseArgs()
			expr = &ast.CallExpr{Callee: expr, LParen: pos, Args: args}
		default:
			return expr
		}
	}
}

func (p *Parser) parseNewExpr() ast.Expr {
	newPos := p.cur.Pos
	p.nextToken()
	var callee ast.Expr
	if p.cur.Kind == token.New {
		callee = p.parseNewExpr()
	} else {
		callee = p.parsePrimary()
	}
	for {
		switch p.cur.Kind {
		case token.Dot:
			p.nextToken()
			nameTok := p.expect(token.Ident)
			callee = &ast.MemberExpr{X: callee, Name: nameTok.Lexeme, NamePos: nameTok.Pos}
		case token.LBracket:
			pos := p.cur.Pos
			p.nextToken()
			idx := p.parseExpr()
			p.expect(token.RBracket)
			callee = &ast.IndexExpr{X: callee, LBracket: pos, Index: idx}
		default:
			var args []ast.Expr
			if p.cur.Kind == token.LParen {
				args = p.parseArgs()
			}
			return &ast.NewExpr{NewPos: newPos, Callee: callee, Args: args}
		}
	}
}

func (p *Parser) parseArgs() []ast.Expr {
	p.expect(token.LParen)
	var args []ast.Expr
	for p.cur.Kind != token.RParen && p.cur.Kind != token.EOF {
		args = append(args, p.parseAssign())
		if p.cur.Kind == token.Comma {
			p.nextToken()
		} else {
			break
		}
	}
	p.expect(token.RParen)
	return args
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.cur
	switch tok.Kind {
	case token.Ident:
		p.nextToken()
		return &ast.IdentExpr{Name: tok.Lexeme, NamePos: tok.Pos}
	case token.This:
		p.nextToken()
		return &ast.ThisExpr{ThisPos: tok.Pos}
	case token.Number:
		p.nextToken()
		return &ast.NumberLiteral{Value: parseNumberLiteral(tok.Lexeme), LitPos: tok.Pos}
	case token.String:
		p.nextToken()
		return &ast.StringLiteral{Value: tok.Lexeme, LitPos: tok.Pos}
	case token.True, token.False:
		p.nextToken()
		return &ast.BoolLiteral{Value: tok.Kind == token.True, LitPos: tok.Pos}
	case token.Null:
		p.nextToken()
		return &ast.NullLiteral{LitPos: tok.Pos}
	case token.Undefined:
		p.nextToken()
		return &ast.UndefinedLiteral{LitPos: tok.Pos}
	case token.Function:
		return p.parseFuncLiteral()
	case token.LBracket:
		return p.parseArrayLiteral()
	case token.LBrace:
		return p.parseObjectLiteral()
	case token.LParen:
		p.nextToken()
		expr := p.parseExpr()
		p.expect(token.RParen)
		return expr
	default:
		p.errorf(tok.Pos, "unexpected token %s (%q) in expression", tok.Kind, tok.Lexeme)
		p.nextToken()
		return &ast.UndefinedLiteral{LitPos: tok.Pos}
	}
}

func (p *Parser) parseFuncLiteral() ast.Expr {
	funPos := p.cur.Pos
	p.nextToken() // consume 'function'
	var name string
	if p.cur.Kind == token.Ident {
		name = p.cur.Lexeme
		p.nextToken()
	}
	params := p.parseParamList()
	body, _ := p.parseFuncBody()
	return &ast.FuncLiteral{FunPos: funPos, Name: name, Params: params, Body: body}
}

func (p *Parser) parseArrayLiteral() ast.Expr {
	pos := p.cur.Pos
	p.nextToken() // consume '['
	lit := &ast.ArrayLiteral{LBracket: pos}
	for p.cur.Kind != token.RBracket && p.cur.Kind != token.EOF {
		if p.cur.Kind == token.Comma {
			// elision: a hole in the array
			lit.Elements = append(lit.Elements, &ast.UndefinedLiteral{LitPos: p.cur.Pos})
			p.nextToken()
			continue
		}
		lit.Elements = append(lit.Elements, p.parseAssign())
		if p.cur.Kind == token.Comma {
			p.nextToken()
		} else {
			break
		}
	}
	p.expect(token.RBracket)
	return lit
}

func (p *Parser) parseObjectLiteral() ast.Expr {
	pos := p.cur.Pos
	p.nextToken() // consume '{'
	lit := &ast.ObjectLiteral{LBrace: pos}
	for p.cur.Kind != token.RBrace && p.cur.Kind != token.EOF {
		keyTok := p.cur
		var key string
		switch keyTok.Kind {
		case token.Ident, token.String:
			key = keyTok.Lexeme
			p.nextToken()
		case token.Number:
			key = keyTok.Lexeme
			p.nextToken()
		default:
			key = keyTok.Kind.String()
			p.expect(token.Ident)
		}
		p.expect(token.Colon)
		value := p.parseAssign()
		lit.Props = append(lit.Props, &ast.PropertyInit{Key: key, KeyPos: keyTok.Pos, Value: value})
		if p.cur.Kind == token.Comma {
			p.nextToken()
		} else {
			break
		}
	}
	p.expect(token.RBrace)
	return lit
}

// parseNumberLiteral converts a lexed numeric literal (decimal or 0x hex)
// to its runtime float64 value; the lexer has already validated its shape.
func parseNumberLiteral(lit string) float64 {
	if len(lit) > 1 && lit[0] == '0' && (lit[1] == 'x' || lit[1] == 'X') {
		n, _ := strconv.ParseUint(lit[2:], 16, 64)
		return float64(n)
	}
	f, _ := strconv.ParseFloat(lit, 64)
	return f
}
