// Package codegen implements the Method Generator (spec §4.6): it drives
// AST traversal, seeds a fresh Instruction Emitter per routine, invokes
// statement/expression codegen, and finalizes the result into a callable
// bytecode.Function. It is the one package that wires internal/emit,
// internal/locals, internal/exregion, and internal/scope together; none of
// those packages know about each other or about internal/ast.
package codegen

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"avenir/internal/ast"
	"avenir/internal/bytecode"
	"avenir/internal/emit"
	"avenir/internal/exregion"
	"avenir/internal/locals"
	"avenir/internal/scope"
)

// Calling convention: every routine reserves argument 0 for the scope
// handle (internal/scope) and argument 1 for `this`; user parameters start
// at argument 2. Compile copies both into dedicated args and every
// parameter into a fresh local slot at the routine's prologue, so that
// name resolution inside the body always goes through the uniform
// Declarative-scope slot path rather than juggling two addressing modes.
const (
	argScope = 0
	argThis  = 1
	argBase  = 2
)

// Builtin IDs the generated code calls into directly, for runtime
// operations that don't warrant a dedicated opcode — the same escape hatch
// internal/scope uses for with-scope construction. Both packages compile
// CallBuiltin against the single shared bytecode.BuiltinID namespace, since
// the VM dispatches one CallBuiltin opcode at runtime regardless of which
// package emitted it.
const (
	enumKeysBuiltinID       = int(bytecode.EnumKeysBuiltinID)       // pop an object, push an array of its own enumerable string keys
	toBooleanBuiltinID      = int(bytecode.ToBooleanBuiltinID)      // pop a value, push a Boolean per ECMAScript ToBoolean
	typeofBuiltinID         = int(bytecode.TypeofBuiltinID)         // pop a value, push its typeof string
	deletePropertyBuiltinID = int(bytecode.DeletePropertyBuiltinID) // pop (receiver, key), delete the property, push Boolean result
	instanceofBuiltinID     = int(bytecode.InstanceofBuiltinID)     // pop (value, constructor), push Boolean result
)

// Compiler accumulates every routine compiled for one program; each
// FuncCompiler reserves its slot before recursing into nested function
// bodies, so forward references (a function calling one declared after it
// textually) never need a second pass.
type Compiler struct {
	functions  []*bytecode.Function
	opt        Options
	docID      string    // shared by every routine's DebugDocument, one per compiled source document
	compiledAt time.Time // stamped once per Compile call, shared by every routine's DebugDocument
}

func (c *Compiler) reserve() int {
	c.functions = append(c.functions, nil)
	return len(c.functions) - 1
}

// Options controls debug-info emission, the one Compile behavior a host
// (internal/config, in the CLI driver) selects at compile time.
type Options struct {
	DebugInfo  bool
	SourcePath string // attached to each routine's DebugDocument when DebugInfo is set
}

// Compile turns a parsed program into a finished module. The program's
// top-level code compiles as a synthetic routine ("main") whose scope is
// the distinguished global object scope: ES3/5 gives top-level `var` and
// function declarations global-object bindings, not block-local slots, so
// this is not an arbitrary simplification but the semantics spec.md's
// Scope Chain Compiler (§4.5) already describes for the global case.
func Compile(prog *ast.Program, opts ...Options) (*bytecode.Module, error) {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}

	c := &Compiler{opt: opt}
	if opt.DebugInfo {
		c.docID = uuid.New().String()
		c.compiledAt = time.Now()
	}
	mainIdx := c.reserve()

	fc := newFuncCompiler(c, nil, 0, false)
	fc.scope = scope.NewGlobalScope()
	if err := fc.scope.CreateScope(fc.e); err != nil {
		return nil, fmt.Errorf("codegen: materializing global scope: %w", err)
	}

	if err := fc.compileBody(nil, prog.Funcs, prog.Body); err != nil {
		return nil, fmt.Errorf("codegen: compiling top-level program: %w", err)
	}
	fn, err := fc.finish("main")
	if err != nil {
		return nil, fmt.Errorf("codegen: finishing top-level program: %w", err)
	}
	c.functions[mainIdx] = fn

	return &bytecode.Module{Functions: c.functions, MainIndex: mainIdx}, nil
}

// loopCtx tracks one enclosing iteration statement's break/continue
// targets, plus the label it was entered under (if any), so a labeled
// break/continue can walk past intervening unlabeled loops.
type loopCtx struct {
	label     string
	breakL    *emit.Label
	continueL *emit.Label
}

// FuncCompiler compiles exactly one routine's body. A FuncCompiler for a
// nested function literal or declaration keeps a parent link purely for
// on-demand upvalue resolution (resolveUpvalue below); it never reads or
// mutates the parent's emitter once nested compilation starts, since Go's
// own call stack already gives us the "pause the enclosing compilation,
// recurse, resume" structure a dedicated two-pass resolver would otherwise
// need to build by hand.
type FuncCompiler struct {
	mod    *Compiler
	parent *FuncCompiler

	e      *emit.Emitter
	locals *locals.Table
	args   *locals.ArgTable
	ex     *exregion.Builder
	caches *scope.CacheAllocator

	scope *scope.Scope

	upvalues   []bytecode.UpvalueInfo
	upvalIndex map[string]int

	loops []*loopCtx
	strict bool
}

func newFuncCompiler(mod *Compiler, parent *FuncCompiler, numUserParams int, strict bool) *FuncCompiler {
	e := emit.New(argBase + numUserParams)
	return &FuncCompiler{
		mod:        mod,
		parent:     parent,
		e:          e,
		locals:     locals.NewTable(),
		args:       locals.NewArgTable(),
		ex:         exregion.NewBuilder(),
		caches:     scope.NewCacheAllocator(),
		upvalIndex: make(map[string]int),
		strict:     strict,
	}
}

// resolveUpvalue is the upvalueOf callback every Scope.GenerateGet/Set call
// in this function is given. It implements Lua-style chained upvalue
// capture: if the immediately enclosing function binds name as one of its
// own locals, capture that slot directly; otherwise ask the enclosing
// function to capture it as one of *its* upvalues first, then capture that.
// A name no enclosing function binds at all falls through to the dynamic
// (object/global) scope chain, which is exactly an unresolved free
// identifier's behavior in ECMAScript.
func (fc *FuncCompiler) resolveUpvalue(name string) (int, bool) {
	if idx, ok := fc.upvalIndex[name]; ok {
		return idx, true
	}
	if fc.parent == nil {
		return 0, false
	}
	if slot, ok := fc.parent.scope.LookupLocal(name); ok {
		idx := len(fc.upvalues)
		fc.upvalues = append(fc.upvalues, bytecode.UpvalueInfo{IsLocal: true, Index: slot})
		fc.upvalIndex[name] = idx
		return idx, true
	}
	if idx, ok := fc.parent.resolveUpvalue(name); ok {
		newIdx := len(fc.upvalues)
		fc.upvalues = append(fc.upvalues, bytecode.UpvalueInfo{IsLocal: false, Index: idx})
		fc.upvalIndex[name] = newIdx
		return newIdx, true
	}
	return 0, false
}

// compileBody is shared by the top-level program and every function body:
// it declares parameters, hoists var/function declarations per ECMAScript
// function-scoping rules, then compiles the statement list in order.
func (fc *FuncCompiler) compileBody(params []string, hoistedFuncs []*ast.FuncDecl, stmts []ast.Stmt) error {
	if _, err := fc.args.Declare("@scope"); err != nil {
		return err
	}
	if _, err := fc.args.Declare("@this"); err != nil {
		return err
	}
	for i, p := range params {
		if _, err := fc.args.Declare(p); err != nil {
			return err
		}
		slot, err := fc.scope.Declare(p)
		if err != nil {
			return err
		}
		fc.e.LdArg(argBase + i)
		fc.e.StLoc(slot)
	}

	varNames, nestedFuncs := collectHoisted(stmts)
	nestedFuncs = append(append([]*ast.FuncDecl(nil), hoistedFuncs...), nestedFuncs...)

	seen := make(map[string]bool)
	for _, name := range varNames {
		if seen[name] {
			continue
		}
		seen[name] = true
		if fc.scope.Kind == scope.Declarative {
			if _, err := fc.scope.Declare(name); err != nil {
				return err
			}
			// Function-scoped locals default to Undefined, which is the
			// zero value of value.Value — no explicit initializer needed.
		} else {
			fc.e.LdUndefined()
			if err := fc.scope.GenerateSet(fc.e, name, fc.caches, fc.resolveUpvalue); err != nil {
				return err
			}
		}
	}

	for _, decl := range nestedFuncs {
		if err := fc.compileHoistedFuncDecl(decl); err != nil {
			return err
		}
	}

	for _, s := range stmts {
		if err := fc.compileStmt(s); err != nil {
			return err
		}
	}
	return nil
}

// compileHoistedFuncDecl builds the nested routine, reserving its module
// index before recursing so the child's own nested declarations get
// indices after it regardless of compile order, then binds the name to a
// freshly constructed closure before the rest of the body runs.
func (fc *FuncCompiler) compileHoistedFuncDecl(decl *ast.FuncDecl) error {
	idx, err := fc.compileNestedFunction(decl.Name, decl.Params, decl.Body, decl.IsStrict)
	if err != nil {
		return err
	}
	fc.e.NewClosure(idx)
	if fc.scope.Kind == scope.Declarative {
		slot, err := fc.scope.Declare(decl.Name)
		if err != nil {
			return err
		}
		fc.e.StLoc(slot)
	} else {
		if err := fc.scope.GenerateSet(fc.e, decl.Name, fc.caches, fc.resolveUpvalue); err != nil {
			return err
		}
	}
	return nil
}

// compileNestedFunction compiles a function literal or declaration's body
// as its own routine and returns its module index. The stack of
// UpvalueInfo the child records during compilation is exactly what the
// VM's NewClosure handler needs to capture the right cells from this
// (the parent's) currently-executing frame.
func (fc *FuncCompiler) compileNestedFunction(name string, params []string, body *ast.BlockStmt, strict bool) (int, error) {
	idx := fc.mod.reserve()
	child := newFuncCompiler(fc.mod, fc, len(params), strict)
	child.scope = scope.NewDeclarative(nil, child.locals)

	if err := child.compileBody(params, nil, body.Stmts); err != nil {
		return 0, fmt.Errorf("codegen: compiling function %q: %w", name, err)
	}
	fn, err := child.finish(name)
	if err != nil {
		return 0, fmt.Errorf("codegen: finishing function %q: %w", name, err)
	}
	fc.mod.functions[idx] = fn
	return idx, nil
}

// finish appends the routine's implicit trailing `return undefined` and
// assembles the final bytecode.Function. It closes nothing itself: an
// exception region still open at this point makes it fail.
func (fc *FuncCompiler) finish(name string) (*bytecode.Function, error) {
	fc.e.LdUndefined()
	fc.e.Ret1()

	code, maxStack, err := fc.e.Complete()
	if err != nil {
		return nil, err
	}
	regions, err := fc.ex.Complete()
	if err != nil {
		return nil, err
	}

	consts := make([]bytecode.Constant, 0, len(fc.e.Strings()))
	for _, s := range fc.e.Strings() {
		consts = append(consts, bytecode.Constant{Kind: bytecode.ConstString, Str: s})
	}

	var debug *bytecode.DebugDocument
	if fc.mod.opt.DebugInfo {
		debug = &bytecode.DebugDocument{
			ID:         fc.mod.docID,
			Path:       fc.mod.opt.SourcePath,
			Language:   "ecmascript",
			CompiledAt: fc.mod.compiledAt,
		}
	}

	return &bytecode.Function{
		Name:           name,
		NumParams:      fc.args.Count(),
		Code:           code,
		MaxStack:       maxStack,
		LocalSignature: fc.locals.Signature(),
		ExceptionTable: bytecode.EncodeExceptionTable(regions),
		Upvalues:       fc.upvalues,
		Consts:         consts,
		Debug:          debug,
	}, nil
}

// collectHoisted walks a statement list the way ECMAScript's variable
// instantiation pass does: every `var` declarator anywhere in the function
// (but not inside a nested function body) is hoisted, and every function
// declaration at this level is hoisted and bound to a closure before any
// other statement runs.
func collectHoisted(stmts []ast.Stmt) (vars []string, funcs []*ast.FuncDecl) {
	var walk func(s ast.Stmt)
	walk = func(s ast.Stmt) {
		switch n := s.(type) {
		case *ast.VarDeclStmt:
			vars = append(vars, n.Name)
		case *ast.VarDeclListStmt:
			for _, d := range n.Decls {
				vars = append(vars, d.Name)
			}
		case *ast.BlockStmt:
			for _, st := range n.Stmts {
				walk(st)
			}
		case *ast.IfStmt:
			walk(n.Then)
			if n.Else != nil {
				walk(n.Else)
			}
		case *ast.WhileStmt:
			walk(n.Body)
		case *ast.DoWhileStmt:
			walk(n.Body)
		case *ast.ForStmt:
			if n.Init != nil {
				walk(n.Init)
			}
			walk(n.Body)
		case *ast.ForInStmt:
			vars = append(vars, n.VarName)
			walk(n.Body)
		case *ast.WithStmt:
			walk(n.Body)
		case *ast.TryStmt:
			walk(n.Body)
			if n.Catch != nil {
				walk(n.Catch.Body)
			}
			if n.Finally != nil {
				walk(n.Finally)
			}
		case *ast.LabeledStmt:
			walk(n.Stmt)
		case *ast.SwitchStmt:
			for _, c := range n.Cases {
				for _, st := range c.Body {
					walk(st)
				}
			}
		case *ast.FuncDecl:
			funcs = append(funcs, n)
		}
	}
	for _, s := range stmts {
		walk(s)
	}
	return vars, funcs
}
