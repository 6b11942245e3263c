package wasm

import (
	"fmt"
	"unicode/utf8"

	"github.com/wasmforge/wasmcore/bytereader"
	"github.com/wasmforge/wasmcore/leb128"
)

// Magic is the 4-byte Wasm binary magic number, '\0asm'.
const Magic uint32 = 0x6d736100

// BinaryVersion is the only binary format version this decoder accepts.
const BinaryVersion uint32 = 0x1

const funcTypeForm byte = 0x60
const elemTypeFuncRef byte = 0x70

// DecodeError reports a malformed binary module together with the byte
// offset decoding had reached.
type DecodeError struct {
	Offset uint32
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wasm: %s (at byte offset %d)", e.Reason, e.Offset)
}

func errAt(r *bytereader.Reader, format string, args ...interface{}) error {
	return &DecodeError{Offset: r.Pos(), Reason: fmt.Sprintf(format, args...)}
}

// maxVectorCount bounds any single section's declared vector count: the
// MVP format has no vector with a legitimate count anywhere near 2^31,
// so a count at or beyond it is always a malformed or adversarial input.
const maxVectorCount = 1 << 31

// readVectorCount reads a section vector's element count, rejecting a
// count that is absurdly large or that could not possibly be backed by
// the remaining input, before any caller allocates a slice sized by it.
// Every vector-count read in this file (type/import/function/table/
// memory/global/export/element/code/data counts, and the nested
// element/local/name counts) goes through this helper rather than a
// bare leb128.ReadUint32, so a crafted huge count always fails here
// instead of attempting a multi-gigabyte allocation first.
func readVectorCount(r *bytereader.Reader) (uint32, error) {
	n, err := leb128.ReadUint32(r)
	if err != nil {
		return 0, err
	}
	if n >= maxVectorCount {
		return 0, errAt(r, "vector count %d exceeds the maximum allowed", n)
	}
	if int64(n) > int64(r.Len()) {
		return 0, errAt(r, "vector count %d exceeds remaining input", n)
	}
	return n, nil
}

// DecodeModule parses the MVP binary format: magic, version, then an
// ordered sequence of (id, size, payload) sections.
func DecodeModule(data []byte) (*Module, error) {
	r := bytereader.New(data)
	magic, err := readU32(r)
	if err != nil {
		return nil, errAt(r, "truncated header")
	}
	if magic != Magic {
		return nil, errAt(r, "invalid magic number")
	}
	version, err := readU32(r)
	if err != nil {
		return nil, errAt(r, "truncated header")
	}
	if version != BinaryVersion {
		return nil, errAt(r, "unsupported binary version %d", version)
	}

	m := &Module{}
	var lastID int = -1
	for r.Len() > 0 {
		id, err := r.ReadOne()
		if err != nil {
			return nil, errAt(r, "truncated section header")
		}
		size, err := leb128.ReadUint32(r)
		if err != nil {
			return nil, err
		}
		if uint64(size) > uint64(r.Len()) {
			return nil, errAt(r, "section size exceeds remaining input")
		}
		payload, err := r.Read(size)
		if err != nil {
			return nil, err
		}
		sr := bytereader.New(payload)

		if id != 0 {
			if int(id) <= lastID {
				return nil, errAt(r, "sections must occur at most once and in order")
			}
			lastID = int(id)
		}

		switch id {
		case 0:
			// Custom sections carry no semantics the executor needs.
		case 1:
			if err := decodeTypeSection(m, sr); err != nil {
				return nil, err
			}
		case 2:
			if err := decodeImportSection(m, sr); err != nil {
				return nil, err
			}
		case 3:
			if err := decodeFunctionSection(m, sr); err != nil {
				return nil, err
			}
		case 4:
			if err := decodeTableSection(m, sr); err != nil {
				return nil, err
			}
		case 5:
			if err := decodeMemorySection(m, sr); err != nil {
				return nil, err
			}
		case 6:
			if err := decodeGlobalSection(m, sr); err != nil {
				return nil, err
			}
		case 7:
			if err := decodeExportSection(m, sr); err != nil {
				return nil, err
			}
		case 8:
			if err := decodeStartSection(m, sr); err != nil {
				return nil, err
			}
		case 9:
			if err := decodeElementSection(m, sr); err != nil {
				return nil, err
			}
		case 10:
			if err := decodeCodeSection(m, sr); err != nil {
				return nil, err
			}
		case 11:
			if err := decodeDataSection(m, sr); err != nil {
				return nil, err
			}
		default:
			return nil, errAt(sr, "unknown section id %d", id)
		}
	}

	if err := m.linkFunctionBodies(); err != nil {
		return nil, err
	}
	m.ExportMap = make(map[string]Export, len(m.Exports))
	for _, e := range m.Exports {
		m.ExportMap[e.Name] = e
	}
	return m, nil
}

// pendingCode holds a code body read before the function section is
// combined with it in linkFunctionBodies.
type pendingCode struct {
	locals []LocalEntry
	code   []byte
}

func (m *Module) linkFunctionBodies() error {
	if m.pendingFuncTypeIdx == nil {
		return nil
	}
	if len(m.pendingFuncTypeIdx) != len(m.pendingCode) {
		return fmt.Errorf("wasm: function and code section counts differ")
	}
	m.Functions = make([]Function, len(m.pendingFuncTypeIdx))
	for i, typeIdx := range m.pendingFuncTypeIdx {
		if int(typeIdx) >= len(m.Types) {
			return fmt.Errorf("wasm: invalid type index %d in function section", typeIdx)
		}
		m.Functions[i] = Function{
			Type: m.Types[typeIdx],
			Body: Func{Locals: m.pendingCode[i].locals, Code: m.pendingCode[i].code},
		}
	}
	return nil
}

func decodeTypeSection(m *Module, r *bytereader.Reader) error {
	n, err := readVectorCount(r)
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, n)
	for i := range m.Types {
		form, err := r.ReadOne()
		if err != nil {
			return err
		}
		if form != funcTypeForm {
			return errAt(r, "invalid functype signature byte 0x%x", form)
		}
		params, err := readValueTypeVec(r)
		if err != nil {
			return err
		}
		results, err := readValueTypeVec(r)
		if err != nil {
			return err
		}
		if len(results) > 1 {
			return errAt(r, "function types may have at most one result in the MVP")
		}
		m.Types[i] = FuncType{Params: params, Results: results}
	}
	return nil
}

func decodeImportSection(m *Module, r *bytereader.Reader) error {
	n, err := readVectorCount(r)
	if err != nil {
		return err
	}
	m.Imports = make([]Import, n)
	for i := range m.Imports {
		modName, err := readName(r)
		if err != nil {
			return err
		}
		fieldName, err := readName(r)
		if err != nil {
			return err
		}
		kindByte, err := r.ReadOne()
		if err != nil {
			return err
		}
		imp := Import{Module: modName, Name: fieldName, Kind: ExternalKind(kindByte)}
		switch imp.Kind {
		case ExternalFunc:
			imp.FuncTypeIdx, err = leb128.ReadUint32(r)
		case ExternalTable:
			imp.Table, err = readTableType(r)
		case ExternalMem:
			imp.Mem, err = readMemType(r)
		case ExternalGlobal:
			imp.Global, err = readGlobalType(r)
		default:
			return errAt(r, "invalid import kind 0x%x", kindByte)
		}
		if err != nil {
			return err
		}
		m.Imports[i] = imp
	}
	return nil
}

func decodeFunctionSection(m *Module, r *bytereader.Reader) error {
	n, err := readVectorCount(r)
	if err != nil {
		return err
	}
	idxs := make([]uint32, n)
	for i := range idxs {
		idxs[i], err = leb128.ReadUint32(r)
		if err != nil {
			return err
		}
	}
	m.pendingFuncTypeIdx = idxs
	return nil
}

func decodeTableSection(m *Module, r *bytereader.Reader) error {
	n, err := readVectorCount(r)
	if err != nil {
		return err
	}
	m.Tables = make([]TableType, n)
	for i := range m.Tables {
		m.Tables[i], err = readTableType(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeMemorySection(m *Module, r *bytereader.Reader) error {
	n, err := readVectorCount(r)
	if err != nil {
		return err
	}
	m.Mems = make([]MemType, n)
	for i := range m.Mems {
		m.Mems[i], err = readMemType(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeGlobalSection(m *Module, r *bytereader.Reader) error {
	n, err := readVectorCount(r)
	if err != nil {
		return err
	}
	m.Globals = make([]Global, n)
	for i := range m.Globals {
		typ, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readConstExprBytes(r)
		if err != nil {
			return err
		}
		m.Globals[i] = Global{Type: typ, Init: init}
	}
	return nil
}

func decodeExportSection(m *Module, r *bytereader.Reader) error {
	n, err := readVectorCount(r)
	if err != nil {
		return err
	}
	m.Exports = make([]Export, n)
	for i := range m.Exports {
		name, err := readName(r)
		if err != nil {
			return err
		}
		kindByte, err := r.ReadOne()
		if err != nil {
			return err
		}
		idx, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		m.Exports[i] = Export{Name: name, Kind: ExternalKind(kindByte), Idx: idx}
	}
	return nil
}

func decodeStartSection(m *Module, r *bytereader.Reader) error {
	idx, err := leb128.ReadUint32(r)
	if err != nil {
		return err
	}
	m.HasStart = true
	m.StartFuncIdx = idx
	return nil
}

func decodeElementSection(m *Module, r *bytereader.Reader) error {
	n, err := readVectorCount(r)
	if err != nil {
		return err
	}
	m.Elements = make([]Element, n)
	for i := range m.Elements {
		tableIdx, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		offset, err := readConstExprBytes(r)
		if err != nil {
			return err
		}
		count, err := readVectorCount(r)
		if err != nil {
			return err
		}
		idxs := make([]uint32, count)
		for j := range idxs {
			idxs[j], err = leb128.ReadUint32(r)
			if err != nil {
				return err
			}
		}
		m.Elements[i] = Element{TableIdx: tableIdx, OffsetExpr: offset, FuncIdxs: idxs}
	}
	return nil
}

func decodeCodeSection(m *Module, r *bytereader.Reader) error {
	n, err := readVectorCount(r)
	if err != nil {
		return err
	}
	m.pendingCode = make([]pendingCode, n)
	for i := range m.pendingCode {
		size, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		body, err := r.Read(size)
		if err != nil {
			return err
		}
		br := bytereader.New(body)
		locals, err := readLocals(br)
		if err != nil {
			return err
		}
		code := br.Rest()
		if len(code) == 0 || code[len(code)-1] != 0x0B {
			return errAt(br, "function body missing end opcode")
		}
		m.pendingCode[i] = pendingCode{locals: locals, code: code[:len(code)-1]}
	}
	return nil
}

func decodeDataSection(m *Module, r *bytereader.Reader) error {
	n, err := readVectorCount(r)
	if err != nil {
		return err
	}
	m.Datas = make([]Data, n)
	for i := range m.Datas {
		memIdx, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		offset, err := readConstExprBytes(r)
		if err != nil {
			return err
		}
		size, err := leb128.ReadUint32(r)
		if err != nil {
			return err
		}
		data, err := r.Read(size)
		if err != nil {
			return err
		}
		m.Datas[i] = Data{MemIdx: memIdx, OffsetExpr: offset, Init: append([]byte(nil), data...)}
	}
	return nil
}

func readU32(r *bytereader.Reader) (uint32, error) {
	b, err := r.Read(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func readValueTypeVec(r *bytereader.Reader) ([]ValueType, error) {
	n, err := readVectorCount(r)
	if err != nil {
		return nil, err
	}
	out := make([]ValueType, n)
	for i := range out {
		out[i], err = readValueType(r)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readValueType(r *bytereader.Reader) (ValueType, error) {
	b, err := r.ReadOne()
	if err != nil {
		return 0, err
	}
	switch ValueType(b) {
	case I32, I64, F32, F64:
		return ValueType(b), nil
	default:
		return 0, errAt(r, "invalid value type 0x%x", b)
	}
}

func readLimits(r *bytereader.Reader) (Limits, error) {
	flag, err := r.ReadOne()
	if err != nil {
		return Limits{}, err
	}
	var lim Limits
	switch flag {
	case 0x00:
		lim.Min, err = leb128.ReadUint32(r)
	case 0x01:
		lim.HasMax = true
		lim.Min, err = leb128.ReadUint32(r)
		if err == nil {
			lim.Max, err = leb128.ReadUint32(r)
		}
	default:
		return Limits{}, errAt(r, "invalid limits flag 0x%x", flag)
	}
	return lim, err
}

func readTableType(r *bytereader.Reader) (TableType, error) {
	elemType, err := r.ReadOne()
	if err != nil {
		return TableType{}, err
	}
	if elemType != elemTypeFuncRef {
		return TableType{}, errAt(r, "invalid table element type 0x%x", elemType)
	}
	lim, err := readLimits(r)
	return TableType{Limits: lim}, err
}

func readMemType(r *bytereader.Reader) (MemType, error) {
	lim, err := readLimits(r)
	return MemType{Limits: lim}, err
}

func readGlobalType(r *bytereader.Reader) (GlobalType, error) {
	vt, err := readValueType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mutByte, err := r.ReadOne()
	if err != nil {
		return GlobalType{}, err
	}
	if mutByte != 0x00 && mutByte != 0x01 {
		return GlobalType{}, errAt(r, "invalid mutability flag 0x%x", mutByte)
	}
	return GlobalType{ValType: vt, Mutable: mutByte == 0x01}, nil
}

func readName(r *bytereader.Reader) (string, error) {
	n, err := readVectorCount(r)
	if err != nil {
		return "", err
	}
	b, err := r.Read(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errAt(r, "invalid utf-8 name")
	}
	return string(b), nil
}

func readLocals(r *bytereader.Reader) ([]LocalEntry, error) {
	n, err := readVectorCount(r)
	if err != nil {
		return nil, err
	}
	out := make([]LocalEntry, n)
	for i := range out {
		out[i].Count, err = leb128.ReadUint32(r)
		if err != nil {
			return nil, err
		}
		out[i].ValType, err = readValueType(r)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// readConstExprBytes consumes one constant expression (the only
// instructions legal there are *.const and global.get, per spec) up to
// and including the terminating 0x0B, returning the raw bytes including
// the terminator for later (re-)evaluation by EvalConstExpr. It must
// decode each instruction's immediate rather than scanning for 0x0B,
// since an immediate's bytes may coincidentally equal 0x0B.
func readConstExprBytes(r *bytereader.Reader) ([]byte, error) {
	start := r.Pos()
	for {
		b, err := r.ReadOne()
		if err != nil {
			return nil, err
		}
		switch b {
		case 0x0B: // end
			return r.Slice(start, r.Pos()), nil
		case 0x41, 0x23: // i32.const, global.get: one LEB128 u/s32 immediate
			if _, err := leb128.Read(r, 32, b == 0x41); err != nil {
				return nil, err
			}
		case 0x42: // i64.const: one LEB128 s64 immediate
			if _, err := leb128.Read(r, 64, true); err != nil {
				return nil, err
			}
		case 0x43: // f32.const: 4 raw bytes
			if _, err := r.Read(4); err != nil {
				return nil, err
			}
		case 0x44: // f64.const: 8 raw bytes
			if _, err := r.Read(8); err != nil {
				return nil, err
			}
		default:
			return nil, errAt(r, "illegal instruction 0x%x in constant expression", b)
		}
	}
}
