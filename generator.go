package wasmgen

import (
	"strconv"

	"tlog.app/go/tlog"
)

type (
	// Generator builds a pseudo-random module from a byte stream.
	// The same stream and configuration always produce the same module.
	Generator struct {
		// Config bounds the module. nil means DefaultConfig.
		Config Config

		// AllowInvalid substitutes raw byte blobs for some function
		// bodies, bypassing the typing discipline to stress decoders.
		// Strictly opt-in, never the default.
		AllowInvalid bool
	}

	builder struct {
		cfg Config
		src *Source
		m   *Module

		valtypes []Type
	}
)

const (
	maxTypeParams  = 20
	maxTypeResults = 20
	maxLocals      = 100
	maxNameLen     = 1000
	maxDataBytes   = 1000
	maxRawBody     = 1000

	maxMemoryPages = 65536
	maxTableElems  = 1_000_000
)

// element segment shapes, the per-iteration candidate set is
// computed from module state and features
const (
	elemMVP = iota // active, implicit table 0, funcref
	elemActiveAny  // active, explicit table index
	elemPassiveFunc
	elemPassiveExtern
	elemDeclaredFunc
	elemDeclaredExtern
)

// Module generates a module into m consuming src.
// m previous content is discarded, capacity is reused.
func (g *Generator) Module(src *Source, m *Module) error {
	cfg := g.Config
	if cfg == nil {
		cfg = DefaultConfig{}
	}

	b := &builder{cfg: cfg, src: src, m: m}

	return b.run(g.AllowInvalid)
}

func (b *builder) run(allowInvalid bool) error {
	m := b.m

	m.Version = 1
	m.Start = -1
	m.DataCount = 0

	m.Type = m.Type[:0]
	m.Import = m.Import[:0]
	m.Func = m.Func[:0]
	m.Table = m.Table[:0]
	m.Memory = m.Memory[:0]
	m.Global = m.Global[:0]
	m.Export = m.Export[:0]
	m.Element = m.Element[:0]
	m.Code = m.Code[:0]
	m.Data = m.Data[:0]

	b.valtypes = append(b.valtypes[:0], I32, I64, F32, F64)
	if b.cfg.ReferenceTypesEnabled() {
		b.valtypes = append(b.valtypes, FuncRef, ExternRef)
	}

	b.types()
	b.imports()
	b.funcs()
	b.tables()
	b.memories()
	b.globals()
	b.exports()
	b.start()
	b.elements()
	b.data()
	b.code(allowInvalid)

	tlog.V("gen").Printw("module generated",
		"types", len(m.Type), "imports", len(m.Import), "funcs", len(m.Func),
		"tables", len(m.Table), "memories", len(m.Memory), "globals", len(m.Global),
		"exports", len(m.Export), "elements", len(m.Element), "data", len(m.Data),
		"start", m.Start)

	return nil
}

// loop is the growth primitive used by every repeated-construct phase:
// a continue draw (false on exhaustion) bounded by the configured maximum.
func (b *builder) loop(max int, body func()) {
	for i := 0; i < max; i++ {
		if !b.src.Bool() {
			break
		}

		body()
	}
}

func (b *builder) valtype() Type {
	return b.valtypes[b.src.Pick(len(b.valtypes))]
}

// maxTables clamps the configured bound: multiple tables
// are only legal with reference types.
func (b *builder) maxTables() int {
	v := b.cfg.MaxTables()

	if !b.cfg.ReferenceTypesEnabled() && v > 1 {
		v = 1
	}

	return v
}

// maxMemories clamps the configured bound to the single linear memory.
func (b *builder) maxMemories() int {
	v := b.cfg.MaxMemories()

	if v > 1 {
		v = 1
	}

	return v
}

func (b *builder) types() {
	b.loop(b.cfg.MaxTypes(), func() {
		var ft FuncType

		b.loop(maxTypeParams, func() {
			ft.Params = append(ft.Params, b.valtype())
		})
		b.loop(maxTypeResults, func() {
			ft.Result = append(ft.Result, b.valtype())
		})

		b.m.Type = append(b.m.Type, ft)
	})
}

func (b *builder) imports() {
	kinds := make([]byte, 0, 4)

	b.loop(b.cfg.MaxImports(), func() {
		kinds = kinds[:0]
		if len(b.m.Type) > 0 {
			kinds = append(kinds, ExtFunc)
		}
		kinds = append(kinds, ExtGlobal)
		if b.m.ImportedMemories() < b.maxMemories() {
			kinds = append(kinds, ExtMemory)
		}
		if b.m.ImportedTables() < b.maxTables() {
			kinds = append(kinds, ExtTable)
		}

		im := Import{
			Module: b.name("m"),
			Name:   b.name("v"),
			Kind:   kinds[b.src.Pick(len(kinds))],
		}

		switch im.Kind {
		case ExtFunc:
			im.Func = Index(b.src.Int(0, len(b.m.Type)-1))
		case ExtGlobal:
			im.Global = b.globalType()
		case ExtMemory:
			im.Memory = b.limits(maxMemoryPages)
		case ExtTable:
			im.Table = b.tableType()
		}

		b.m.Import = append(b.m.Import, im)
	})
}

// name draws a UTF-8 string falling back to a constant on an empty draw,
// import names must not be empty.
func (b *builder) name(fallback string) string {
	if n := b.src.String(maxNameLen); n != "" {
		return n
	}

	return fallback
}

func (b *builder) limits(max int) Limits {
	lo := b.src.Int(0, max)
	hi := -1

	if b.src.Bool() {
		hi = max
		if lo != max {
			hi = b.src.Int(lo, max)
		}
	}

	return Limits{Lo: lo, Hi: hi}
}

func (b *builder) globalType() GlobalType {
	return GlobalType{Type: b.valtype(), Mut: b.src.Bool()}
}

func (b *builder) tableType() TableType {
	elem := Type(FuncRef)
	if b.cfg.ReferenceTypesEnabled() && b.src.Pick(2) == 1 {
		elem = ExternRef
	}

	return TableType{Elem: elem, Limits: b.limits(maxTableElems)}
}

func (b *builder) funcs() {
	if len(b.m.Type) == 0 {
		return
	}

	b.loop(b.cfg.MaxFuncs(), func() {
		b.m.Func = append(b.m.Func, Index(b.src.Int(0, len(b.m.Type)-1)))
	})
}

func (b *builder) tables() {
	b.loop(b.maxTables()-b.m.ImportedTables(), func() {
		b.m.Table = append(b.m.Table, b.tableType())
	})
}

func (b *builder) memories() {
	b.loop(b.maxMemories()-b.m.ImportedMemories(), func() {
		b.m.Memory = append(b.m.Memory, b.limits(maxMemoryPages))
	})
}

func (b *builder) globals() {
	var eligible []Index

	b.loop(b.cfg.MaxGlobals(), func() {
		ty := b.globalType()

		// candidate 0 is a typed constant, the rest read
		// an earlier imported immutable global of the same type
		eligible = eligible[:0]
		gi := Index(0)

		for _, im := range b.m.Import {
			if im.Kind != ExtGlobal {
				continue
			}
			if !im.Global.Mut && im.Global.Type == ty.Type {
				eligible = append(eligible, gi)
			}
			gi++
		}

		var init Instr

		if c := b.src.Pick(1 + len(eligible)); c == 0 {
			init = b.constExpr(ty.Type)
		} else {
			init = Instr{Op: GlobalGet, A: int64(eligible[c-1])}
		}

		b.m.Global = append(b.m.Global, Global{Type: ty, Init: init})
	})
}

func (b *builder) constExpr(t Type) Instr {
	switch t {
	case I32:
		return Instr{Op: I32Const, A: int64(int32(b.src.Uint32()))}
	case I64:
		return Instr{Op: I64Const, A: int64(b.src.Uint64())}
	case F32:
		return Instr{Op: F32Const, A: int64(b.src.Uint32())}
	case F64:
		return Instr{Op: F64Const, A: int64(b.src.Uint64())}
	case ExternRef:
		return Instr{Op: RefNull, Type: ExternRef}
	case FuncRef:
		if n := b.m.NumFuncs(); n > 0 && b.src.Bool() {
			return Instr{Op: RefFunc, A: int64(b.src.Int(0, n-1))}
		}

		return Instr{Op: RefNull, Type: FuncRef}
	}

	return Instr{Op: Unreachable} // not reached, the value type set is closed
}

func (b *builder) exports() {
	kinds := make([]byte, 0, 4)
	if b.m.NumFuncs() > 0 {
		kinds = append(kinds, ExtFunc)
	}
	if b.m.NumTables() > 0 {
		kinds = append(kinds, ExtTable)
	}
	if b.m.NumMemories() > 0 {
		kinds = append(kinds, ExtMemory)
	}
	if b.m.NumGlobals() > 0 {
		kinds = append(kinds, ExtGlobal)
	}

	if len(kinds) == 0 {
		return
	}

	names := map[string]struct{}{}

	b.loop(b.cfg.MaxExports(), func() {
		name := uniqueName(names, b.src.String(maxNameLen))
		kind := kinds[b.src.Pick(len(kinds))]

		var n int

		switch kind {
		case ExtFunc:
			n = b.m.NumFuncs()
		case ExtTable:
			n = b.m.NumTables()
		case ExtMemory:
			n = b.m.NumMemories()
		case ExtGlobal:
			n = b.m.NumGlobals()
		}

		b.m.Export = append(b.m.Export, Export{
			Name:  name,
			Kind:  kind,
			Index: Index(b.src.Int(0, n-1)),
		})
	})
}

// uniqueName resolves collisions by appending the taken-set size
// until the name is unique, then registers it.
func uniqueName(taken map[string]struct{}, name string) string {
	for {
		if _, ok := taken[name]; !ok {
			break
		}

		name += strconv.Itoa(len(taken))
	}

	taken[name] = struct{}{}

	return name
}

func (b *builder) start() {
	var cands []Index
	fi := Index(0)

	add := func(ti Index) {
		t := b.m.Type[ti]
		if len(t.Params) == 0 && len(t.Result) == 0 {
			cands = append(cands, fi)
		}
		fi++
	}

	for _, im := range b.m.Import {
		if im.Kind == ExtFunc {
			add(im.Func)
		}
	}
	for _, ti := range b.m.Func {
		add(ti)
	}

	if len(cands) != 0 && b.src.Bool() {
		b.m.Start = cands[b.src.Pick(len(cands))]
	}
}

// offsetGlobals lists imported immutable i32 globals, the only globals
// legal in i32 offset expressions.
func (b *builder) offsetGlobals() (r []Index) {
	gi := Index(0)

	for _, im := range b.m.Import {
		if im.Kind != ExtGlobal {
			continue
		}
		if !im.Global.Mut && im.Global.Type == I32 {
			r = append(r, gi)
		}
		gi++
	}

	return r
}

func (b *builder) offsetExpr(globals []Index) Instr {
	if len(globals) > 0 && b.src.Bool() {
		return Instr{Op: GlobalGet, A: int64(globals[b.src.Pick(len(globals))])}
	}

	return Instr{Op: I32Const, A: int64(int32(b.src.Uint32()))}
}

func (b *builder) elements() {
	ref := b.cfg.ReferenceTypesEnabled()

	var tableTypes []Type
	var tableLos []int

	for _, im := range b.m.Import {
		if im.Kind == ExtTable {
			tableTypes = append(tableTypes, im.Table.Elem)
			tableLos = append(tableLos, im.Table.Lo)
		}
	}
	for _, t := range b.m.Table {
		tableTypes = append(tableTypes, t.Elem)
		tableLos = append(tableLos, t.Lo)
	}

	shapes := make([]byte, 0, 6)
	if len(tableTypes) > 0 && tableTypes[0] == FuncRef {
		shapes = append(shapes, elemMVP)
	}
	if len(tableTypes) > 0 && ref {
		shapes = append(shapes, elemActiveAny)
	}
	if ref {
		shapes = append(shapes, elemPassiveFunc, elemPassiveExtern, elemDeclaredFunc, elemDeclaredExtern)
	}

	if len(shapes) == 0 {
		return
	}

	offsets := b.offsetGlobals()
	numFuncs := b.m.NumFuncs()

	b.loop(b.cfg.MaxElementSegments(), func() {
		el := Element{Table: -1}
		tableLo := -1

		switch shapes[b.src.Pick(len(shapes))] {
		case elemMVP:
			el.Kind = ElemActive
			el.Type = FuncRef
			tableLo = tableLos[0]
		case elemActiveAny:
			ti := b.src.Int(0, len(tableTypes)-1)

			el.Kind = ElemActive
			el.Table = Index(ti)
			el.Type = tableTypes[ti]
			tableLo = tableLos[ti]
		case elemPassiveFunc:
			el.Kind = ElemPassive
			el.Type = FuncRef
		case elemPassiveExtern:
			el.Kind = ElemPassive
			el.Type = ExternRef
		case elemDeclaredFunc:
			el.Kind = ElemDeclared
			el.Type = FuncRef
		case elemDeclaredExtern:
			el.Kind = ElemDeclared
			el.Type = ExternRef
		}

		el.Exprs = el.Type == ExternRef || ref && b.src.Bool()

		// active segments must fit the declared table minimum,
		// offset plus item count is range checked by validators
		maxItems := b.cfg.MaxElements()
		if tableLo >= 0 && maxItems > tableLo {
			maxItems = tableLo
		}

		switch {
		case el.Exprs:
			b.loop(maxItems, func() {
				it := NullIndex
				if el.Type == FuncRef && numFuncs > 0 && !b.src.Bool() {
					it = Index(b.src.Int(0, numFuncs-1))
				}

				el.Items = append(el.Items, it)
			})
		case numFuncs > 0:
			b.loop(maxItems, func() {
				el.Items = append(el.Items, Index(b.src.Int(0, numFuncs-1)))
			})
		}

		if el.Kind == ElemActive {
			el.Offset = b.elemOffset(offsets, tableLo-len(el.Items))
		}

		b.m.Element = append(b.m.Element, el)
	})
}

// elemOffset is offsetExpr with the constant form bounded,
// the draw stays within the segment's room in the table.
func (b *builder) elemOffset(globals []Index, max int) Instr {
	if len(globals) > 0 && b.src.Bool() {
		return Instr{Op: GlobalGet, A: int64(globals[b.src.Pick(len(globals))])}
	}

	return Instr{Op: I32Const, A: int64(b.src.Int(0, max))}
}

func (b *builder) data() {
	mems := b.m.NumMemories()
	bulk := b.cfg.BulkMemoryEnabled()

	if mems == 0 && !bulk {
		return
	}

	offsets := b.offsetGlobals()

	b.loop(b.cfg.MaxDataSegments(), func() {
		var d Data

		// passive requires bulk memory and is forced at zero memories
		if bulk && (mems == 0 || b.src.Bool()) {
			d.Passive = true
		} else {
			d.Offset = b.offsetExpr(offsets)
			d.Memory = Index(b.src.Int(0, mems-1))
		}

		d.Init = b.src.Bytes(maxDataBytes)

		b.m.Data = append(b.m.Data, d)
	})
}

func (b *builder) code(allowInvalid bool) {
	if len(b.m.Func) == 0 {
		return
	}

	cb := newCodeBuilder(b.m, b.cfg, b.valtypes)

	for _, ti := range b.m.Func {
		var c Code

		b.loop(maxLocals, func() {
			c.Locals = append(c.Locals, b.valtype())
		})

		if allowInvalid && b.src.Bool() {
			c.Raw = b.src.Bytes(maxRawBody)
		} else {
			c.Body = cb.Body(b.src, b.m.Type[ti], c.Locals)
		}

		b.m.Code = append(b.m.Code, c)
	}
}
