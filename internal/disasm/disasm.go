// Package disasm is the reference ISA decoder and pretty-printer: given a
// compiled bytecode.Function it walks the byte stream one instruction at a
// time, the mirror image of internal/emit's assembly. It is the `avenir
// disasm` CLI subcommand's rendering engine; no test in this module
// exercises it.
package disasm

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/ncruces/go-strftime"

	"avenir/internal/bytecode"
)

var mnemonics = map[bytecode.Op]string{
	bytecode.Nop: "nop", bytecode.Pop: "pop", bytecode.Dup: "dup",
	bytecode.LdNull: "ldnull", bytecode.LdUndefined: "ldundef",
	bytecode.LdcI4S: "ldc.i4.s", bytecode.LdcI4: "ldc.i4", bytecode.LdcR8: "ldc.r8", bytecode.LdStr: "ldstr",
	bytecode.LdLoc0: "ldloc.0", bytecode.LdLoc1: "ldloc.1", bytecode.LdLoc2: "ldloc.2", bytecode.LdLoc3: "ldloc.3",
	bytecode.LdLocS: "ldloc.s", bytecode.LdLoc: "ldloc",
	bytecode.StLoc0: "stloc.0", bytecode.StLoc1: "stloc.1", bytecode.StLoc2: "stloc.2", bytecode.StLoc3: "stloc.3",
	bytecode.StLocS: "stloc.s", bytecode.StLoc: "stloc",
	bytecode.LdLocAS: "ldloca.s", bytecode.LdLocA: "ldloca",
	bytecode.LdArg0: "ldarg.0", bytecode.LdArg1: "ldarg.1", bytecode.LdArg2: "ldarg.2", bytecode.LdArg3: "ldarg.3",
	bytecode.LdArgS: "ldarg.s", bytecode.LdArg: "ldarg",
	bytecode.StArgS: "starg.s", bytecode.StArg: "starg",
	bytecode.LdUpval: "ldupval", bytecode.StUpval: "stupval",
	bytecode.AddF: "add.f", bytecode.SubF: "sub.f", bytecode.MulF: "mul.f", bytecode.DivF: "div.f",
	bytecode.RemF: "rem.f", bytecode.NegF: "neg.f",
	bytecode.AndI4: "and.i4", bytecode.OrI4: "or.i4", bytecode.XorI4: "xor.i4", bytecode.NotI4: "not.i4",
	bytecode.ShlI4: "shl.i4", bytecode.ShrI4: "shr.i4", bytecode.ShrUnI4: "shr.un.i4",
	bytecode.CEqF: "ceq.f", bytecode.CGtF: "cgt.f", bytecode.CLtF: "clt.f",
	bytecode.CEqI4: "ceq.i4", bytecode.CGtI4: "cgt.i4", bytecode.CLtI4: "clt.i4",
	bytecode.CGtUnI4: "cgt.un.i4", bytecode.CLtUnI4: "clt.un.i4",
	bytecode.ConvI4: "conv.i4", bytecode.ConvR8: "conv.r8", bytecode.Box: "box", bytecode.UnboxR8: "unbox.r8",
	bytecode.Br: "br", bytecode.BrTrue: "brtrue", bytecode.BrFalse: "brfalse",
	bytecode.BeqF: "beq.f", bytecode.BneF: "bne.f", bytecode.BltF: "blt.f", bytecode.BleF: "ble.f",
	bytecode.BgtF: "bgt.f", bytecode.BgeF: "bge.f",
	bytecode.BeqI4: "beq.i4", bytecode.BneI4: "bne.i4", bytecode.BltI4: "blt.i4", bytecode.BleI4: "ble.i4",
	bytecode.BgtI4: "bgt.i4", bytecode.BgeI4: "bge.i4",
	bytecode.Switch: "switch",
	bytecode.Ret0:   "ret.0", bytecode.Ret1: "ret.1",
	bytecode.CallValue: "call.value", bytecode.CallStatic: "call.static", bytecode.CallBuiltin: "call.builtin",
	bytecode.Construct: "newobj.ctor",
	bytecode.NewObj:     "newobj", bytecode.NewArr: "newarr", bytecode.NewClosure: "newclosure",
	bytecode.LdFld: "ldfld", bytecode.StFld: "stfld", bytecode.HasFld: "hasfld",
	bytecode.LdElem: "ldelem", bytecode.StElem: "stelem", bytecode.LdScopeUp: "ldscopeup",
	bytecode.GetScope: "getscope", bytecode.SetScope: "setscope",
	bytecode.Throw: "throw", bytecode.Leave: "leave", bytecode.EndFinally: "endfinally", bytecode.EndFilter: "endfilter",
	bytecode.Breakpoint: "break",
}

// branchOps and switchOp need their target(s) resolved relative to the
// instruction stream rather than printed as a raw signed delta.
var branchOps = map[bytecode.Op]bool{
	bytecode.Br: true, bytecode.BrTrue: true, bytecode.BrFalse: true,
	bytecode.BeqF: true, bytecode.BneF: true, bytecode.BltF: true, bytecode.BleF: true, bytecode.BgtF: true, bytecode.BgeF: true,
	bytecode.BeqI4: true, bytecode.BneI4: true, bytecode.BltI4: true, bytecode.BleI4: true, bytecode.BgtI4: true, bytecode.BgeI4: true,
	bytecode.Leave: true,
}

// Instruction is one decoded opcode, its operands rendered to text, and the
// byte range it occupied — the latter is what lets a caller reconstruct
// the original bytes for the round-trip property (spec §8 property 5).
type Instruction struct {
	Offset   int
	Op       bytecode.Op
	Mnemonic string
	Operands string
	Length   int
}

// Decode walks code into its instruction list. It never fails on a
// well-formed stream produced by internal/emit; an unrecognized opcode byte
// (corrupt input) is the only error case.
func Decode(code []byte, consts []bytecode.Constant) ([]Instruction, error) {
	var out []Instruction
	ip := 0
	for ip < len(code) {
		start := ip
		op := bytecode.Op(code[ip])
		ip++
		mnem, ok := mnemonics[op]
		if !ok {
			return nil, fmt.Errorf("disasm: unknown opcode %d at offset %d", op, start)
		}
		operands, err := decodeOperands(op, code, &ip, consts, start)
		if err != nil {
			return nil, err
		}
		out = append(out, Instruction{Offset: start, Op: op, Mnemonic: mnem, Operands: operands, Length: ip - start})
	}
	return out, nil
}

func decodeOperands(op bytecode.Op, code []byte, ip *int, consts []bytecode.Constant, start int) (string, error) {
	switch op {
	case bytecode.LdcI4S:
		v := int8(code[*ip])
		*ip++
		return fmt.Sprintf("%d", v), nil
	case bytecode.LdLocS, bytecode.StLocS, bytecode.LdLocAS, bytecode.LdArgS, bytecode.StArgS:
		v := code[*ip]
		*ip++
		return fmt.Sprintf("%d", v), nil
	case bytecode.LdcR8:
		bits := binary.LittleEndian.Uint64(code[*ip : *ip+8])
		*ip += 8
		return fmt.Sprintf("%g", math.Float64frombits(bits)), nil
	case bytecode.LdStr:
		tok := binary.LittleEndian.Uint32(code[*ip : *ip+4])
		*ip += 4
		return fmt.Sprintf("%q", constString(consts, tok)), nil
	case bytecode.LdLoc, bytecode.StLoc, bytecode.LdLocA, bytecode.LdArg, bytecode.StArg, bytecode.LdUpval, bytecode.StUpval, bytecode.NewArr, bytecode.NewClosure:
		v := binary.LittleEndian.Uint32(code[*ip : *ip+4])
		*ip += 4
		return fmt.Sprintf("%d", v), nil
	case bytecode.LdcI4:
		v := int32(binary.LittleEndian.Uint32(code[*ip : *ip+4]))
		*ip += 4
		return fmt.Sprintf("%d", v), nil
	case bytecode.CallValue, bytecode.Construct:
		argc := binary.LittleEndian.Uint32(code[*ip : *ip+4])
		*ip += 4
		return fmt.Sprintf("argc=%d", argc), nil
	case bytecode.CallStatic:
		fnIdx := binary.LittleEndian.Uint32(code[*ip : *ip+4])
		*ip += 4
		argc := binary.LittleEndian.Uint32(code[*ip : *ip+4])
		*ip += 4
		return fmt.Sprintf("func=%d argc=%d", fnIdx, argc), nil
	case bytecode.CallBuiltin:
		id := binary.LittleEndian.Uint32(code[*ip : *ip+4])
		*ip += 4
		argc := binary.LittleEndian.Uint32(code[*ip : *ip+4])
		*ip += 4
		return fmt.Sprintf("builtin=%d argc=%d", id, argc), nil
	case bytecode.LdFld, bytecode.StFld, bytecode.HasFld, bytecode.GetScope, bytecode.SetScope:
		tok := binary.LittleEndian.Uint32(code[*ip : *ip+4])
		*ip += 4
		site := binary.LittleEndian.Uint32(code[*ip : *ip+4])
		*ip += 4
		return fmt.Sprintf("%q cache=%d", constString(consts, tok), site), nil
	case bytecode.Switch:
		n := binary.LittleEndian.Uint32(code[*ip : *ip+4])
		*ip += 4
		targets := make([]string, n)
		for i := uint32(0); i < n; i++ {
			rel := int32(binary.LittleEndian.Uint32(code[*ip : *ip+4]))
			patchOffset := *ip
			*ip += 4
			targets[i] = fmt.Sprintf("%d", patchOffset+4+int(rel))
		}
		return "[" + strings.Join(targets, ", ") + "]", nil
	default:
		if branchOps[op] {
			rel := int32(binary.LittleEndian.Uint32(code[*ip : *ip+4]))
			patchOffset := *ip
			*ip += 4
			return fmt.Sprintf("L%d", patchOffset+4+int(rel)), nil
		}
		return "", nil
	}
}

func constString(consts []bytecode.Constant, tok uint32) string {
	if int(tok) < len(consts) && consts[tok].Kind == bytecode.ConstString {
		return consts[tok].Str
	}
	return fmt.Sprintf("<const#%d>", tok)
}

// Function renders one compiled routine's full listing: a header line with
// its name, parameter count, and human-readable code/exception-table sizes,
// followed by one line per decoded instruction.
func Function(w io.Writer, fn *bytecode.Function, color bool) error {
	header := fmt.Sprintf(".method %s(%d args) maxstack(%d) code(%s) extable(%s)",
		fn.Name, fn.NumParams, fn.MaxStack,
		humanize.Bytes(uint64(len(fn.Code))), humanize.Bytes(uint64(len(fn.ExceptionTable))))
	if fn.Debug != nil {
		ts := strftime.Format("%Y-%m-%d %H:%M:%S", fn.Debug.CompiledAt)
		header += fmt.Sprintf(" debug(%s %s %s)", fn.Debug.Language, fn.Debug.Path, ts)
	}
	if _, err := fmt.Fprintln(w, decorate(header, color, "1;36")); err != nil {
		return err
	}

	instrs, err := Decode(fn.Code, fn.Consts)
	if err != nil {
		return err
	}
	for _, in := range instrs {
		line := fmt.Sprintf("  IL_%04x: %-14s %s", in.Offset, in.Mnemonic, in.Operands)
		if _, err := fmt.Fprintln(w, strings.TrimRight(decorate(line, color, "0"), " ")); err != nil {
			return err
		}
	}
	return nil
}

// Module renders every function in m in table order.
func Module(w io.Writer, m *bytecode.Module, color bool) error {
	for i, fn := range m.Functions {
		tag := ""
		if i == m.MainIndex {
			tag = " (entry)"
		}
		if _, err := fmt.Fprintf(w, "// function #%d%s\n", i, tag); err != nil {
			return err
		}
		if err := Function(w, fn, color); err != nil {
			return err
		}
	}
	return nil
}

// StdoutIsTerminal reports whether fd 1 looks like an interactive terminal,
// the signal cmd/avenir uses to decide whether Module/Function should emit
// ANSI highlighting at all.
func StdoutIsTerminal(fd uintptr) bool { return isatty.IsTerminal(fd) }

func decorate(s string, color bool, ansiCode string) string {
	if !color {
		return s
	}
	return "\x1b[" + ansiCode + "m" + s + "\x1b[0m"
}
