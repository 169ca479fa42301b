package wasmgen

import "tlog.app/go/tlog/tlwire"

type (
	// Module is a complete generated module. It is filled in by Generator,
	// serialized by Encoder and parsed back by Decoder.
	Module struct {
		Version int

		// Start is the start function index, -1 if absent.
		Start Index

		// DataCount is only set when decoding a module carrying
		// a data count section. Generator never sets it.
		DataCount int

		Type    []FuncType
		Import  []Import
		Func    []Index // type index per locally defined function
		Table   []TableType
		Memory  []Limits
		Global  []Global
		Export  []Export
		Element []Element
		Code    []Code
		Data    []Data
	}

	Index int
	Type  byte

	ResultType []Type

	FuncType struct {
		Params ResultType
		Result ResultType
	}

	// Limits with Hi == -1 meaning no maximum.
	Limits struct {
		Lo, Hi int
	}

	TableType struct {
		Elem Type
		Limits
	}

	GlobalType struct {
		Type Type
		Mut  bool
	}

	Import struct {
		Module, Name string

		Kind byte

		// exactly one of the following is meaningful, chosen by Kind
		Func   Index // type index
		Table  TableType
		Memory Limits
		Global GlobalType
	}

	Export struct {
		Name  string
		Kind  byte
		Index Index
	}

	Global struct {
		Type GlobalType
		Init Instr
	}

	Element struct {
		Kind byte

		// Table is the target table for ElemActive.
		// -1 selects table 0 through the short MVP encoding.
		Table  Index
		Offset Instr

		Type Type // FuncRef or ExternRef

		// Items are function indices. NullIndex entries stand for a null
		// reference and are only meaningful in the expressions form.
		Exprs bool
		Items []Index
	}

	Data struct {
		Passive bool

		// active form only
		Memory Index
		Offset Instr

		Init []byte
	}

	Code struct {
		Locals ResultType

		Body []Instr

		// Raw, when non-nil, replaces Body with arbitrary bytes.
		// Only produced by Generator.AllowInvalid.
		Raw []byte
	}
)

// NullIndex marks a null reference in Element.Items.
const NullIndex Index = -1

// Basic types.
const (
	I32 = 0x7f
	I64 = 0x7e
	F32 = 0x7d
	F64 = 0x7c

	FuncRef   = 0x70
	ExternRef = 0x6f

	FuncTypeHeader = 0x60

	LimitLo   = 0x00
	LimitLoHi = 0x01
)

// Import/export kinds. Values match the binary descriptor tags.
const (
	ExtFunc = iota
	ExtTable
	ExtMemory
	ExtGlobal

	extNext
)

// Element segment kinds.
const (
	ElemActive = iota
	ElemPassive
	ElemDeclared
)

// Section ids.
const (
	CustomSection = iota
	TypeSection
	ImportSection
	FunctionSection
	TableSection
	MemorySection
	GlobalSection
	ExportSection
	StartSection
	ElementSection
	CodeSection
	DataSection
	DataCountSection

	sectionNext
)

func init() {
	if sectionNext != 13 || extNext != 4 {
		panic("const block broken")
	}
}

// ImportedFuncs counts function imports. Together with len(m.Func) it forms
// the flat function index space, imported entries first.
func (m *Module) ImportedFuncs() int    { return m.imported(ExtFunc) }
func (m *Module) ImportedTables() int   { return m.imported(ExtTable) }
func (m *Module) ImportedMemories() int { return m.imported(ExtMemory) }
func (m *Module) ImportedGlobals() int  { return m.imported(ExtGlobal) }

func (m *Module) imported(kind byte) (n int) {
	for _, im := range m.Import {
		if im.Kind == kind {
			n++
		}
	}

	return n
}

func (m *Module) NumFuncs() int    { return m.ImportedFuncs() + len(m.Func) }
func (m *Module) NumTables() int   { return m.ImportedTables() + len(m.Table) }
func (m *Module) NumMemories() int { return m.ImportedMemories() + len(m.Memory) }
func (m *Module) NumGlobals() int  { return m.ImportedGlobals() + len(m.Global) }

// TypeOfFunc resolves a function index (imported then defined) to its type.
func (m *Module) TypeOfFunc(i Index) FuncType {
	return m.Type[m.typeIndexOfFunc(i)]
}

func (m *Module) typeIndexOfFunc(i Index) Index {
	for _, im := range m.Import {
		if im.Kind != ExtFunc {
			continue
		}
		if i == 0 {
			return im.Func
		}
		i--
	}

	return m.Func[i]
}

// TypeOfGlobal resolves a global index (imported then defined) to its type.
func (m *Module) TypeOfGlobal(i Index) GlobalType {
	for _, im := range m.Import {
		if im.Kind != ExtGlobal {
			continue
		}
		if i == 0 {
			return im.Global
		}
		i--
	}

	return m.Global[i].Type
}

// TypeOfTable resolves a table index (imported then defined) to its type.
func (m *Module) TypeOfTable(i Index) TableType {
	for _, im := range m.Import {
		if im.Kind != ExtTable {
			continue
		}
		if i == 0 {
			return im.Table
		}
		i--
	}

	return m.Table[i]
}

func (tp ResultType) Equal(x ResultType) bool {
	if len(tp) != len(x) {
		return false
	}

	for i := range tp {
		if tp[i] != x[i] {
			return false
		}
	}

	return true
}

func (tp ResultType) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendSemantic(b, tlwire.Hex)
	b = e.AppendArray(b, len(tp))

	for _, t := range tp {
		b = e.AppendInt(b, int(t))
	}

	return b
}
