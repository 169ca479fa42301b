package wasmgen

type (
	LowEncoder struct{}

	// Encoder serializes a Module into the binary format.
	// The scratch buffer is reused between sections.
	Encoder struct {
		LowEncoder

		sec []byte
	}
)

func (e *LowEncoder) Int(b []byte, v int) []byte {
	return e.Uint64(b, uint64(v))
}

func (e *LowEncoder) Uint64(b []byte, v uint64) []byte {
	for {
		x := byte(v) & 0x7f
		v >>= 7

		if v != 0 {
			x |= 0x80
		}

		b = append(b, x)

		if x&0x80 == 0 {
			break
		}
	}

	return b
}

func (e *LowEncoder) Int64(b []byte, v int64) []byte {
	for {
		x := byte(v) & 0x7f
		s := byte(v) & 0x40
		v >>= 7

		if s == 0 && v != 0 || s != 0 && v != -1 {
			x |= 0x80
		}

		b = append(b, x)

		if x&0x80 == 0 {
			break
		}
	}

	return b
}

func (e *LowEncoder) Float32(b []byte, bits uint32) []byte {
	return append(b, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
}

func (e *LowEncoder) Float64(b []byte, bits uint64) []byte {
	return append(b, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24), byte(bits>>32), byte(bits>>40), byte(bits>>48), byte(bits>>56))
}

func (e *LowEncoder) Name(b []byte, v string) []byte {
	b = e.Int(b, len(v))
	b = append(b, v...)

	return b
}

func (e *LowEncoder) BasicType(b []byte, tp Type) []byte {
	return append(b, byte(tp))
}

func (e *LowEncoder) ResultType(b []byte, tp ...Type) []byte {
	b = e.Int(b, len(tp))
	for _, t := range tp {
		b = append(b, byte(t))
	}

	return b
}

func (e *LowEncoder) FuncType(b []byte, params, result []Type) []byte {
	b = append(b, FuncTypeHeader)
	b = e.ResultType(b, params...)
	b = e.ResultType(b, result...)

	return b
}

func (e *LowEncoder) Limits(b []byte, lo, hi int) []byte {
	if hi < 0 {
		b = append(b, LimitLo)
		return e.Int(b, lo)
	}

	b = append(b, LimitLoHi)
	b = e.Int(b, lo)
	b = e.Int(b, hi)

	return b
}

func (e *LowEncoder) TableType(b []byte, tp Type, lo, hi int) []byte {
	b = append(b, byte(tp))
	b = e.Limits(b, lo, hi)
	return b
}

func (e *LowEncoder) GlobalType(b []byte, tp Type, mut bool) []byte {
	m := byte(0)
	if mut {
		m = 1
	}

	return append(b, byte(tp), m)
}

func (e *LowEncoder) Section(b []byte, id byte, data []byte) []byte {
	b = append(b, id)
	b = e.Int(b, len(data))
	b = append(b, data...)

	return b
}

// Module appends the full binary encoding of m to b.
// Empty sections are omitted.
func (e *Encoder) Module(b []byte, m *Module) []byte {
	b = append(b, Magic...)
	b = append(b, byte(m.Version), byte(m.Version>>8), byte(m.Version>>16), byte(m.Version>>24))

	if len(m.Type) != 0 {
		e.sec = e.sec[:0]

		e.sec = e.Int(e.sec, len(m.Type))
		for _, t := range m.Type {
			e.sec = e.FuncType(e.sec, t.Params, t.Result)
		}

		b = e.Section(b, TypeSection, e.sec)
	}

	if len(m.Import) != 0 {
		e.sec = e.sec[:0]

		e.sec = e.Int(e.sec, len(m.Import))
		for _, im := range m.Import {
			e.sec = e.Name(e.sec, im.Module)
			e.sec = e.Name(e.sec, im.Name)
			e.sec = append(e.sec, im.Kind)

			switch im.Kind {
			case ExtFunc:
				e.sec = e.Int(e.sec, int(im.Func))
			case ExtTable:
				e.sec = e.TableType(e.sec, im.Table.Elem, im.Table.Lo, im.Table.Hi)
			case ExtMemory:
				e.sec = e.Limits(e.sec, im.Memory.Lo, im.Memory.Hi)
			case ExtGlobal:
				e.sec = e.GlobalType(e.sec, im.Global.Type, im.Global.Mut)
			}
		}

		b = e.Section(b, ImportSection, e.sec)
	}

	if len(m.Func) != 0 {
		e.sec = e.sec[:0]

		e.sec = e.Int(e.sec, len(m.Func))
		for _, ti := range m.Func {
			e.sec = e.Int(e.sec, int(ti))
		}

		b = e.Section(b, FunctionSection, e.sec)
	}

	if len(m.Table) != 0 {
		e.sec = e.sec[:0]

		e.sec = e.Int(e.sec, len(m.Table))
		for _, t := range m.Table {
			e.sec = e.TableType(e.sec, t.Elem, t.Lo, t.Hi)
		}

		b = e.Section(b, TableSection, e.sec)
	}

	if len(m.Memory) != 0 {
		e.sec = e.sec[:0]

		e.sec = e.Int(e.sec, len(m.Memory))
		for _, l := range m.Memory {
			e.sec = e.Limits(e.sec, l.Lo, l.Hi)
		}

		b = e.Section(b, MemorySection, e.sec)
	}

	if len(m.Global) != 0 {
		e.sec = e.sec[:0]

		e.sec = e.Int(e.sec, len(m.Global))
		for _, g := range m.Global {
			e.sec = e.GlobalType(e.sec, g.Type.Type, g.Type.Mut)
			e.sec = e.Expr(e.sec, g.Init)
		}

		b = e.Section(b, GlobalSection, e.sec)
	}

	if len(m.Export) != 0 {
		e.sec = e.sec[:0]

		e.sec = e.Int(e.sec, len(m.Export))
		for _, ex := range m.Export {
			e.sec = e.Name(e.sec, ex.Name)
			e.sec = append(e.sec, ex.Kind)
			e.sec = e.Int(e.sec, int(ex.Index))
		}

		b = e.Section(b, ExportSection, e.sec)
	}

	if m.Start >= 0 {
		e.sec = e.Int(e.sec[:0], int(m.Start))

		b = e.Section(b, StartSection, e.sec)
	}

	if len(m.Element) != 0 {
		e.sec = e.sec[:0]

		e.sec = e.Int(e.sec, len(m.Element))
		for _, el := range m.Element {
			e.sec = e.element(e.sec, el)
		}

		b = e.Section(b, ElementSection, e.sec)
	}

	if len(m.Code) != 0 {
		e.sec = e.sec[:0]

		e.sec = e.Int(e.sec, len(m.Code))
		for _, c := range m.Code {
			e.sec = e.code(e.sec, c)
		}

		b = e.Section(b, CodeSection, e.sec)
	}

	if len(m.Data) != 0 {
		e.sec = e.sec[:0]

		e.sec = e.Int(e.sec, len(m.Data))
		for _, d := range m.Data {
			e.sec = e.data(e.sec, d)
		}

		b = e.Section(b, DataSection, e.sec)
	}

	return b
}

// element encodes a segment in one of the eight binary forms.
// Bit 0 marks a non-active segment, bit 1 selects the explicit-table
// form for active ones and declared for the rest, bit 2 the
// expression-items form.
func (e *Encoder) element(b []byte, el Element) []byte {
	var flags byte

	switch {
	case el.Kind == ElemActive && el.Table >= 0:
		flags = 2
	case el.Kind == ElemActive:
		flags = 0
	case el.Kind == ElemPassive:
		flags = 1
	default:
		flags = 3
	}

	if el.Exprs {
		flags |= 4
	}

	b = append(b, flags)

	switch flags &^ 4 {
	case 0:
		b = e.Expr(b, el.Offset)
	case 2:
		b = e.Int(b, int(el.Table))
		b = e.Expr(b, el.Offset)
	}

	// the implicit-table active forms carry no elemkind or reftype byte
	if flags&3 != 0 {
		if el.Exprs {
			b = append(b, byte(el.Type))
		} else {
			b = append(b, 0) // elemkind, funcref only
		}
	}

	b = e.Int(b, len(el.Items))

	for _, it := range el.Items {
		if !el.Exprs {
			b = e.Int(b, int(it))
			continue
		}

		if it == NullIndex {
			b = append(b, byte(RefNull), byte(el.Type), byte(End))
		} else {
			b = append(b, byte(RefFunc))
			b = e.Int(b, int(it))
			b = append(b, byte(End))
		}
	}

	return b
}

func (e *Encoder) data(b []byte, d Data) []byte {
	switch {
	case d.Passive:
		b = append(b, 1)
	case d.Memory > 0:
		b = append(b, 2)
		b = e.Int(b, int(d.Memory))
		b = e.Expr(b, d.Offset)
	default:
		b = append(b, 0)
		b = e.Expr(b, d.Offset)
	}

	b = e.Int(b, len(d.Init))
	b = append(b, d.Init...)

	return b
}

func (e *Encoder) code(b []byte, c Code) []byte {
	body := e.codeBody(nil, c)

	b = e.Int(b, len(body))
	b = append(b, body...)

	return b
}

func (e *Encoder) codeBody(b []byte, c Code) []byte {
	if c.Raw != nil {
		return append(b, c.Raw...)
	}

	// locals are run-length encoded
	var runs int
	for i := 0; i < len(c.Locals); {
		j := i
		for j < len(c.Locals) && c.Locals[j] == c.Locals[i] {
			j++
		}

		runs++
		i = j
	}

	b = e.Int(b, runs)

	for i := 0; i < len(c.Locals); {
		j := i
		for j < len(c.Locals) && c.Locals[j] == c.Locals[i] {
			j++
		}

		b = e.Int(b, j-i)
		b = append(b, byte(c.Locals[i]))

		i = j
	}

	for _, in := range c.Body {
		b = e.Instr(b, in)
	}

	return b
}

// Expr encodes a single-instruction constant expression.
func (e *Encoder) Expr(b []byte, in Instr) []byte {
	b = e.Instr(b, in)
	b = append(b, byte(End))

	return b
}

func (e *Encoder) Instr(b []byte, in Instr) []byte {
	b = append(b, byte(in.Op))

	switch in.Op {
	case Block, Loop, If:
		b = e.blockType(b, in.Block)
	case Br, BrIf, Call, LocalGet, LocalSet, LocalTee, GlobalGet, GlobalSet:
		b = e.Int(b, int(in.A))
	case BrTable:
		b = e.Int(b, len(in.Targets))
		for _, t := range in.Targets {
			b = e.Int(b, int(t))
		}
		b = e.Int(b, int(in.A))
	case CallIndir:
		b = e.Int(b, int(in.A))
		b = e.Int(b, int(in.B))
	case I32Load, I64Load, F32Load, F64Load,
		I32Load8S, I32Load8U, I32Load16S, I32Load16U,
		I64Load8S, I64Load8U, I64Load16S, I64Load16U, I64Load32S, I64Load32U,
		I32Store, I64Store, F32Store, F64Store,
		I32Store8, I32Store16, I64Store8, I64Store16, I64Store32:
		b = e.Int(b, int(in.A))
		b = e.Int(b, int(in.B))
	case MemorySize, MemoryGrow:
		b = append(b, 0)
	case I32Const:
		b = e.Int64(b, in.A)
	case I64Const:
		b = e.Int64(b, in.A)
	case F32Const:
		b = e.Float32(b, uint32(in.A))
	case F64Const:
		b = e.Float64(b, uint64(in.A))
	case RefNull:
		b = append(b, byte(in.Type))
	case RefFunc:
		b = e.Int(b, int(in.A))
	case FCExt:
		b = e.Int(b, int(in.Sub))

		switch in.Sub {
		case FCMemoryCopy:
			b = append(b, 0, 0)
		case FCMemoryFill:
			b = append(b, 0)
		}
	}

	return b
}

func (e *Encoder) blockType(b []byte, bt BlockType) []byte {
	switch bt.Kind {
	case BlockResult:
		return append(b, byte(bt.Result))
	case BlockFunc:
		return e.Int64(b, int64(bt.Func)) // s33
	}

	return append(b, BlockVoid)
}
