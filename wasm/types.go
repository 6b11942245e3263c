// Package wasm is the language-neutral in-memory representation of Wasm
// modules: value/function/table/memory/global types, the static module
// structure, and the binary decoder that produces it.
package wasm

// ValueType is one of the four Wasm MVP value types.
type ValueType byte

const (
	I32 ValueType = 0x7F
	I64 ValueType = 0x7E
	F32 ValueType = 0x7D
	F64 ValueType = 0x7C
)

func (t ValueType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return "invalid"
	}
}

// FuncType is a function signature: a vector of parameter types and a
// vector of result types (length 0 or 1 in the MVP).
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

// Equal reports whether two function types have identical signatures,
// used by call_indirect's type check.
func (ft FuncType) Equal(other FuncType) bool {
	if len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i := range ft.Params {
		if ft.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range ft.Results {
		if ft.Results[i] != other.Results[i] {
			return false
		}
	}
	return true
}

// Limits bounds a table or memory's size: a minimum and an optional
// maximum (absent in the MVP binary encoding as flag byte 0x00).
type Limits struct {
	Min uint32
	Max uint32
	HasMax bool
}

// TableType describes a table of funcrefs.
type TableType struct {
	Limits Limits
}

// MemType describes linear memory sized in 64KiB pages.
type MemType struct {
	Limits Limits
}

// PageSize is the fixed Wasm linear-memory page size in bytes.
const PageSize = 65536

// MaxPages is the hard cap on memory pages absent an explicit max,
// per the 32-bit address space (2^32 bytes / 64KiB).
const MaxPages = 65536

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// ExternalKind tags what an Import or Export refers to.
type ExternalKind byte

const (
	ExternalFunc   ExternalKind = 0x00
	ExternalTable  ExternalKind = 0x01
	ExternalMem    ExternalKind = 0x02
	ExternalGlobal ExternalKind = 0x03
)

// Import is one entry of the import section.
type Import struct {
	Module string
	Name   string
	Kind   ExternalKind

	// Exactly one of the following is populated, selected by Kind.
	FuncTypeIdx uint32
	Table       TableType
	Mem         MemType
	Global      GlobalType
}

// Export is one entry of the export section.
type Export struct {
	Name string
	Kind ExternalKind
	Idx  uint32
}

// Global is a module-defined global, with its constant initializer
// expression left undecoded (the linker evaluates it; see
// EvalConstExpr in this package).
type Global struct {
	Type GlobalType
	Init []byte
}

// Element is an element segment: a sequence of function indices to
// write into a table, starting at an offset given by a constant
// expression.
type Element struct {
	TableIdx  uint32
	OffsetExpr []byte
	FuncIdxs  []uint32
}

// Data is a data segment: bytes to write into memory, starting at an
// offset given by a constant expression.
type Data struct {
	MemIdx     uint32
	OffsetExpr []byte
	Init       []byte
}

// LocalEntry is a run-length-encoded group of same-typed locals, as
// they appear in a function body.
type LocalEntry struct {
	Count   uint32
	ValType ValueType
}

// Func is a function body: its locals (beyond the parameters) and its
// instruction stream, with the trailing 0x0B end byte stripped.
type Func struct {
	Locals []LocalEntry
	Code   []byte
}

// Function is a module-defined function: its signature plus its
// decoded body. Imported functions, including host functions, are not
// represented here; the linker tracks them in the module instance.
type Function struct {
	Type FuncType
	Body Func
	Name string
}

// NumLocals returns the number of declared locals (not counting
// parameters) a function body carries.
func (f *Function) NumLocals() int {
	n := 0
	for _, e := range f.Body.Locals {
		n += int(e.Count)
	}
	return n
}

// Module is the fully decoded static form of a Wasm binary: ordered
// section contents plus the derived index spaces used to resolve
// call/global.get/etc. indices (imports occupy the low indices,
// exactly as the Wasm spec requires).
type Module struct {
	Types   []FuncType
	Imports []Import
	Tables  []TableType
	Mems    []MemType
	Globals []Global
	Exports []Export
	Elements []Element
	Datas    []Data

	HasStart bool
	StartFuncIdx uint32

	// Functions holds every function this module defines (not
	// counting imported functions, which are resolved by the linker
	// into the module instance's func address table before these).
	Functions []Function

	// ExportMap indexes Exports by name for O(1) lookup.
	ExportMap map[string]Export

	// pendingFuncTypeIdx and pendingCode hold the function and code
	// sections until DecodeModule joins them into Functions (they are
	// independent sections in the binary format but one logical table
	// in the AST).
	pendingFuncTypeIdx []uint32
	pendingCode        []pendingCode
}

// NumImportedFuncs, NumImportedTables, NumImportedMems and
// NumImportedGlobals count import-section entries by kind, needed to
// know where each kind's index space switches from imported to
// module-defined entries.
func (m *Module) NumImportedFuncs() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == ExternalFunc {
			n++
		}
	}
	return n
}

func (m *Module) NumImportedTables() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == ExternalTable {
			n++
		}
	}
	return n
}

func (m *Module) NumImportedMems() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == ExternalMem {
			n++
		}
	}
	return n
}

func (m *Module) NumImportedGlobals() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == ExternalGlobal {
			n++
		}
	}
	return n
}

// DefinedFuncType returns the signature of the module-defined function
// at definedIdx, an index into Functions that does not count imported
// functions.
func (m *Module) DefinedFuncType(definedIdx int) FuncType {
	return m.Functions[definedIdx].Type
}
