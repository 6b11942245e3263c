package text

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wasmforge/wasmcore/leb128"
	"github.com/wasmforge/wasmcore/wasm"
	"github.com/wasmforge/wasmcore/wasm/opcode"
)

// Parse compiles the minimal flat-instruction-list WAT subset this
// package understands into a *wasm.Module, the same static form the
// binary decoder produces. It supports one `(module ...)` with
// `func`/`global`/`memory`/`table`/`export`/`start` forms, and
// function bodies written as a flat sequence of instruction mnemonics
// (the textual mirror of the binary opcode stream) rather than the
// fully folded S-expression instruction syntax. Imports, the folded
// instruction form, and named branch labels are not supported; this
// is documented scope, not an oversight — see frontend/text's package
// doc and SPEC_FULL.md component C13.
func Parse(src []byte) (*wasm.Module, error) {
	root, err := parseSExpr(tokenize(src))
	if err != nil {
		return nil, err
	}
	if root.isAtom() || root.head() != "module" {
		return nil, fmt.Errorf("text: expected (module ...)")
	}
	return compileModule(root)
}

type funcDecl struct {
	name    string
	sig     wasm.FuncType
	locals  []wasm.LocalEntry
	localNm map[string]int
	body    []*sexpr
	export  string
}

type globalDecl struct {
	name   string
	typ    wasm.GlobalType
	init   []*sexpr
	export string
}

func compileModule(root *sexpr) (*wasm.Module, error) {
	m := &wasm.Module{ExportMap: map[string]wasm.Export{}}

	var funcs []*funcDecl
	var globals []*globalDecl
	funcIdx := map[string]int{}
	globalIdx := map[string]int{}
	var standaloneExports []*sexpr
	startRef := ""

	for _, child := range root.List[1:] {
		switch child.head() {
		case "func":
			fd, err := parseFuncHeader(child)
			if err != nil {
				return nil, err
			}
			if fd.name != "" {
				funcIdx[fd.name] = len(funcs)
			}
			funcs = append(funcs, fd)
		case "global":
			gd, err := parseGlobalHeader(child)
			if err != nil {
				return nil, err
			}
			if gd.name != "" {
				globalIdx[gd.name] = len(globals)
			}
			globals = append(globals, gd)
		case "memory":
			lim, err := parseLimits(child.List[1:])
			if err != nil {
				return nil, err
			}
			m.Mems = append(m.Mems, wasm.MemType{Limits: lim})
		case "table":
			lim, err := parseLimits(child.List[1 : len(child.List)-1])
			if err != nil {
				return nil, err
			}
			m.Tables = append(m.Tables, wasm.TableType{Limits: lim})
		case "export":
			standaloneExports = append(standaloneExports, child)
		case "start":
			startRef = child.List[1].Atom
		}
	}

	for i, fd := range funcs {
		m.Types = append(m.Types, fd.sig)
		m.Functions = append(m.Functions, wasm.Function{
			Type: fd.sig,
			Name: fd.name,
			Body: wasm.Func{Locals: fd.locals},
		})
		if fd.export != "" {
			addExport(m, fd.export, wasm.ExternalFunc, uint32(i))
		}
	}

	for i, gd := range globals {
		val, err := compileConstExpr(gd.init, funcIdx, globalIdx)
		if err != nil {
			return nil, fmt.Errorf("text: global %q: %w", gd.name, err)
		}
		m.Globals = append(m.Globals, wasm.Global{Type: gd.typ, Init: val})
		if gd.export != "" {
			addExport(m, gd.export, wasm.ExternalGlobal, uint32(i))
		}
	}

	for _, exp := range standaloneExports {
		name, err := unquote(exp.List[1].Atom)
		if err != nil {
			return nil, err
		}
		ref := exp.List[2]
		switch ref.head() {
		case "func":
			idx, err := resolveIdx(ref.List[1].Atom, funcIdx)
			if err != nil {
				return nil, err
			}
			addExport(m, name, wasm.ExternalFunc, idx)
		case "global":
			idx, err := resolveIdx(ref.List[1].Atom, globalIdx)
			if err != nil {
				return nil, err
			}
			addExport(m, name, wasm.ExternalGlobal, idx)
		default:
			return nil, fmt.Errorf("text: unsupported export reference %q", ref.head())
		}
	}

	if startRef != "" {
		idx, err := resolveIdx(startRef, funcIdx)
		if err != nil {
			return nil, err
		}
		m.HasStart = true
		m.StartFuncIdx = idx
	}

	for i, fd := range funcs {
		code, err := compileBody(fd, funcIdx, globalIdx)
		if err != nil {
			return nil, fmt.Errorf("text: func %q: %w", fd.name, err)
		}
		m.Functions[i].Body.Code = code
	}

	return m, nil
}

func addExport(m *wasm.Module, name string, kind wasm.ExternalKind, idx uint32) {
	exp := wasm.Export{Name: name, Kind: kind, Idx: idx}
	m.Exports = append(m.Exports, exp)
	m.ExportMap[name] = exp
}

// parseFuncHeader reads a function's optional name, (param), (result),
// (local) and inline (export) forms, leaving the remaining children as
// the flat instruction body.
func parseFuncHeader(f *sexpr) (*funcDecl, error) {
	fd := &funcDecl{localNm: map[string]int{}}
	children := f.List[1:]
	i := 0
	if i < len(children) && children[i].isAtom() && strings.HasPrefix(children[i].Atom, "$") {
		fd.name = children[i].Atom
		i++
	}

	paramIdx := 0
header:
	for i < len(children) {
		c := children[i]
		if c.isAtom() {
			break header
		}
		switch c.head() {
		case "param":
			rest := c.List[1:]
			if len(rest) > 0 && rest[0].isAtom() && strings.HasPrefix(rest[0].Atom, "$") {
				fd.localNm[rest[0].Atom] = paramIdx
				rest = rest[1:]
			}
			for _, t := range rest {
				vt, err := parseValType(t.Atom)
				if err != nil {
					return nil, err
				}
				fd.sig.Params = append(fd.sig.Params, vt)
				paramIdx++
			}
		case "result":
			for _, t := range c.List[1:] {
				vt, err := parseValType(t.Atom)
				if err != nil {
					return nil, err
				}
				fd.sig.Results = append(fd.sig.Results, vt)
			}
		case "local":
			rest := c.List[1:]
			if len(rest) > 0 && rest[0].isAtom() && strings.HasPrefix(rest[0].Atom, "$") {
				fd.localNm[rest[0].Atom] = paramIdx
				rest = rest[1:]
			}
			for _, t := range rest {
				vt, err := parseValType(t.Atom)
				if err != nil {
					return nil, err
				}
				fd.locals = append(fd.locals, wasm.LocalEntry{Count: 1, ValType: vt})
				paramIdx++
			}
		case "export":
			name, err := unquote(c.List[1].Atom)
			if err != nil {
				return nil, err
			}
			fd.export = name
		default:
			break header
		}
		i++
	}
	fd.body = children[i:]
	return fd, nil
}

func parseGlobalHeader(g *sexpr) (*globalDecl, error) {
	gd := &globalDecl{}
	children := g.List[1:]
	i := 0
	if i < len(children) && children[i].isAtom() && strings.HasPrefix(children[i].Atom, "$") {
		gd.name = children[i].Atom
		i++
	}
	if i < len(children) && !children[i].isAtom() && children[i].head() == "export" {
		name, err := unquote(children[i].List[1].Atom)
		if err != nil {
			return nil, err
		}
		gd.export = name
		i++
	}
	typeNode := children[i]
	i++
	if !typeNode.isAtom() && typeNode.head() == "mut" {
		vt, err := parseValType(typeNode.List[1].Atom)
		if err != nil {
			return nil, err
		}
		gd.typ = wasm.GlobalType{ValType: vt, Mutable: true}
	} else if typeNode.isAtom() {
		vt, err := parseValType(typeNode.Atom)
		if err != nil {
			return nil, err
		}
		gd.typ = wasm.GlobalType{ValType: vt, Mutable: false}
	} else {
		return nil, fmt.Errorf("text: invalid global type")
	}
	gd.init = children[i:]
	return gd, nil
}

func parseLimits(atoms []*sexpr) (wasm.Limits, error) {
	if len(atoms) == 0 {
		return wasm.Limits{}, fmt.Errorf("text: missing limits")
	}
	min, err := strconv.ParseUint(atoms[0].Atom, 10, 32)
	if err != nil {
		return wasm.Limits{}, err
	}
	lim := wasm.Limits{Min: uint32(min)}
	if len(atoms) > 1 {
		max, err := strconv.ParseUint(atoms[1].Atom, 10, 32)
		if err != nil {
			return wasm.Limits{}, err
		}
		lim.Max = uint32(max)
		lim.HasMax = true
	}
	return lim, nil
}

func parseValType(s string) (wasm.ValueType, error) {
	switch s {
	case "i32":
		return wasm.I32, nil
	case "i64":
		return wasm.I64, nil
	case "f32":
		return wasm.F32, nil
	case "f64":
		return wasm.F64, nil
	}
	return 0, fmt.Errorf("text: unknown value type %q", s)
}

func unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("text: expected quoted string, got %q", s)
	}
	return s[1 : len(s)-1], nil
}

func resolveIdx(ref string, names map[string]int) (uint32, error) {
	if strings.HasPrefix(ref, "$") {
		idx, ok := names[ref]
		if !ok {
			return 0, fmt.Errorf("text: undefined identifier %q", ref)
		}
		return uint32(idx), nil
	}
	n, err := strconv.ParseUint(ref, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("text: invalid index %q", ref)
	}
	return uint32(n), nil
}

// compileConstExpr compiles a global initializer (a single const or
// global.get instruction, the only legal forms) into its byte-coded
// constant expression, terminated with an explicit `end`.
func compileConstExpr(body []*sexpr, funcIdx, globalIdx map[string]int) ([]byte, error) {
	fd := &funcDecl{localNm: map[string]int{}, body: append(append([]*sexpr{}, body...), &sexpr{Atom: "end"})}
	return compileBody(fd, funcIdx, globalIdx)
}

// compileBody linearly scans a function's flat instruction sequence,
// emitting bytecode, resolving $name references against the module's
// function/global tables and this function's own local table. It does
// not verify block/end nesting is balanced; a malformed body simply
// produces bytecode the executor will trap on or misbehave against,
// exactly as a hand-assembled binary would.
func compileBody(fd *funcDecl, funcIdx, globalIdx map[string]int) ([]byte, error) {
	var out []byte
	i := 0
	toks := fd.body
	for i < len(toks) {
		tok := toks[i]
		i++
		if !tok.isAtom() {
			return nil, fmt.Errorf("unexpected nested form %v outside an instruction immediate", tok)
		}
		op, ok := opcode.ByName(tok.Atom)
		if !ok {
			return nil, fmt.Errorf("unknown instruction %q", tok.Atom)
		}
		out = append(out, byte(op))

		switch op {
		case opcode.Block, opcode.Loop, opcode.If:
			if i < len(toks) && !toks[i].isAtom() && toks[i].head() == "result" {
				vt, err := parseValType(toks[i].List[1].Atom)
				if err != nil {
					return nil, err
				}
				out = append(out, byte(vt))
				i++
			} else {
				out = append(out, 0x40)
			}
		case opcode.Br, opcode.BrIf:
			n, err := strconv.ParseUint(toks[i].Atom, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", tok.Atom, err)
			}
			i++
			out = append(out, leb128.WriteUint64(n)...)
		case opcode.BrTable:
			count, err := strconv.ParseUint(toks[i].Atom, 10, 32)
			if err != nil {
				return nil, err
			}
			i++
			out = append(out, leb128.WriteUint64(count)...)
			for j := uint64(0); j < count+1; j++ {
				n, err := strconv.ParseUint(toks[i].Atom, 10, 32)
				if err != nil {
					return nil, err
				}
				i++
				out = append(out, leb128.WriteUint64(n)...)
			}
		case opcode.Call:
			idx, err := resolveIdx(toks[i].Atom, funcIdx)
			if err != nil {
				return nil, err
			}
			i++
			out = append(out, leb128.WriteUint64(uint64(idx))...)
		case opcode.CallIndirect:
			typeIdx, err := strconv.ParseUint(toks[i].Atom, 10, 32)
			if err != nil {
				return nil, err
			}
			i++
			out = append(out, leb128.WriteUint64(typeIdx)...)
			out = append(out, 0x00)
		case opcode.LocalGet, opcode.LocalSet, opcode.LocalTee:
			idx, err := resolveIdx(toks[i].Atom, fd.localNm)
			if err != nil {
				return nil, err
			}
			i++
			out = append(out, leb128.WriteUint64(uint64(idx))...)
		case opcode.GlobalGet, opcode.GlobalSet:
			idx, err := resolveIdx(toks[i].Atom, globalIdx)
			if err != nil {
				return nil, err
			}
			i++
			out = append(out, leb128.WriteUint64(uint64(idx))...)
		case opcode.MemorySize, opcode.MemoryGrow:
			out = append(out, 0x00)
		case opcode.I32Const:
			n, err := strconv.ParseInt(toks[i].Atom, 10, 32)
			if err != nil {
				return nil, err
			}
			i++
			out = append(out, leb128.WriteInt64(n)...)
		case opcode.I64Const:
			n, err := strconv.ParseInt(toks[i].Atom, 10, 64)
			if err != nil {
				return nil, err
			}
			i++
			out = append(out, leb128.WriteInt64(n)...)
		case opcode.F32Const:
			f, err := strconv.ParseFloat(toks[i].Atom, 32)
			if err != nil {
				return nil, err
			}
			i++
			out = append(out, le32(float32bits(float32(f)))...)
		case opcode.F64Const:
			f, err := strconv.ParseFloat(toks[i].Atom, 64)
			if err != nil {
				return nil, err
			}
			i++
			out = append(out, le64(float64bits(f))...)
		default:
			if isLoadStoreOp(op) {
				align, offset := uint64(0), uint64(0)
				for i < len(toks) && toks[i].isAtom() && (strings.HasPrefix(toks[i].Atom, "align=") || strings.HasPrefix(toks[i].Atom, "offset=")) {
					kv := strings.SplitN(toks[i].Atom, "=", 2)
					n, err := strconv.ParseUint(kv[1], 10, 32)
					if err != nil {
						return nil, err
					}
					if kv[0] == "align" {
						align = n
					} else {
						offset = n
					}
					i++
				}
				out = append(out, leb128.WriteUint64(align)...)
				out = append(out, leb128.WriteUint64(offset)...)
			}
			// Every other opcode (control no-immediate, numeric,
			// comparison, parametric) carries no immediate.
		}
	}
	return out, nil
}

func isLoadStoreOp(op opcode.Opcode) bool {
	return op >= opcode.I32Load && op <= opcode.I64Store32
}
