package wasmgen

import (
	"encoding/binary"
	stderrors "errors"
	"io"

	"tlog.app/go/errors"
)

type (
	Decoder struct {
		InstructionsDecoder
	}

	LowDecoder struct{}
)

var (
	Magic               = []byte("\000asm")
	MaxSupportedVersion = 1
)

var (
	ErrMagic              = stderrors.New("magic mismatch")
	ErrOverflow           = stderrors.New("integer overflow")
	ErrSizeMismatch       = stderrors.New("size mismatch")
	ErrUnexpectedEOF      = io.ErrUnexpectedEOF
	ErrUnsupportedVersion = stderrors.New("unsupported binary format version")
)

func (d *Decoder) Module(b []byte, m *Module) (err error) {
	i := 0

	defer func() {
		if err == nil {
			return
		}

		err = errors.Wrap(err, "at pos 0x%x", i)
	}()

	if common(b[i:], Magic) != len(Magic) {
		return ErrMagic
	}

	i += len(Magic)

	if i+4 > len(b) {
		return ErrUnexpectedEOF
	}

	m.Version = int(binary.LittleEndian.Uint32(b[i:]))
	i += 4

	if m.Version > MaxSupportedVersion {
		return ErrUnsupportedVersion
	}

	m.Start = -1
	m.DataCount = 0

	// sections may be absent, stale entries of a reused module
	// must not survive
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

	for i < len(b) {
		id := b[i]

		size, end, err := d.Int(b, i+1)
		if err != nil {
			return errors.Wrap(err, "section size")
		}

		end += size
		if end > len(b) {
			return ErrUnexpectedEOF
		}

		switch id {
		case CustomSection:
			i, err = d.CustomSection(b, i, m)
		case TypeSection:
			i, err = d.TypeSection(b, i, m)
		case ImportSection:
			i, err = d.ImportSection(b, i, m)
		case FunctionSection:
			i, err = d.FunctionSection(b, i, m)
		case TableSection:
			i, err = d.TableSection(b, i, m)
		case MemorySection:
			i, err = d.MemorySection(b, i, m)
		case GlobalSection:
			i, err = d.GlobalSection(b, i, m)
		case ExportSection:
			i, err = d.ExportSection(b, i, m)
		case ElementSection:
			i, err = d.ElementSection(b, i, m)
		case CodeSection:
			i, err = d.CodeSection(b, i, m)
		case DataSection:
			i, err = d.DataSection(b, i, m)
		case DataCountSection:
			i, err = d.DataCountSection(b, i, m)
		case StartSection:
			i, err = d.StartSection(b, i, m)
		default:
			return errors.New("unsupported section id: 0x%02x", id)
		}

		if err != nil {
			return errors.Wrap(err, "section id %x", id)
		}

		i = end
	}

	return nil
}

// CustomSection only checks the name is well formed, the payload is skipped.
func (d *Decoder) CustomSection(b []byte, st int, m *Module) (i int, err error) {
	end, i, err := d.sectionHeader(b, st, CustomSection)
	if err != nil {
		return i, err
	}

	_, i, err = d.Name(b, i)
	if err != nil {
		return st, errors.Wrap(err, "name")
	}

	return end, nil
}

func (d *Decoder) TypeSection(b []byte, st int, m *Module) (i int, err error) {
	l, end, i, err := d.sectionHeaderLen(b, st, TypeSection)
	if err != nil {
		return i, err
	}

	m.Type = m.Type[:0]

	var ft FuncType

	for n := 0; n < l; n++ {
		ft, i, err = d.FuncType(b, i, FuncType{})
		if err != nil {
			return i, errors.Wrap(err, "func %d", n)
		}

		m.Type = append(m.Type, ft)
	}

	if i != end {
		return st, ErrSizeMismatch
	}

	return i, nil
}

func (d *Decoder) ImportSection(b []byte, st int, m *Module) (i int, err error) {
	l, end, i, err := d.sectionHeaderLen(b, st, ImportSection)
	if err != nil {
		return i, err
	}

	m.Import = m.Import[:0]

	var im Import

	for n := 0; n < l; n++ {
		im, i, err = d.Import(b, i)
		if err != nil {
			return i, errors.Wrap(err, "import %d", n)
		}

		m.Import = append(m.Import, im)
	}

	if i != end {
		return st, ErrSizeMismatch
	}

	return i, nil
}

func (d *Decoder) Import(b []byte, st int) (im Import, i int, err error) {
	i = st

	im.Module, i, err = d.NameString(b, i)
	if err != nil {
		return im, i, errors.Wrap(err, "module")
	}

	im.Name, i, err = d.NameString(b, i)
	if err != nil {
		return im, i, errors.Wrap(err, "name")
	}

	if i+2 > len(b) {
		return im, i, ErrUnexpectedEOF
	}

	im.Kind = b[i]
	i++

	switch im.Kind {
	case ExtFunc:
		var ti int

		ti, i, err = d.Int(b, i)
		if err != nil {
			return im, i, errors.Wrap(err, "type index")
		}

		im.Func = Index(ti)
	case ExtTable:
		var tp byte

		tp, im.Table.Lo, im.Table.Hi, i, err = d.TableType(b, i)
		if err != nil {
			return im, i, errors.Wrap(err, "table type")
		}

		im.Table.Elem = Type(tp)
	case ExtMemory:
		im.Memory.Lo, im.Memory.Hi, i, err = d.Limits(b, i)
		if err != nil {
			return im, i, errors.Wrap(err, "memory limits")
		}
	case ExtGlobal:
		im.Global, i, err = d.GlobalType(b, i)
		if err != nil {
			return im, i, errors.Wrap(err, "global type")
		}
	default:
		return im, i - 1, errors.New("unsupported import description type: 0x%02x", im.Kind)
	}

	return im, i, nil
}

func (d *Decoder) ExportSection(b []byte, st int, m *Module) (i int, err error) {
	l, end, i, err := d.sectionHeaderLen(b, st, ExportSection)
	if err != nil {
		return i, err
	}

	m.Export = m.Export[:0]

	var ex Export

	for n := 0; n < l; n++ {
		ex, i, err = d.Export(b, i)
		if err != nil {
			return i, errors.Wrap(err, "export %d", n)
		}

		m.Export = append(m.Export, ex)
	}

	if i != end {
		return st, ErrSizeMismatch
	}

	return i, nil
}

func (d *Decoder) Export(b []byte, st int) (ex Export, i int, err error) {
	i = st

	ex.Name, i, err = d.NameString(b, i)
	if err != nil {
		return ex, i, errors.Wrap(err, "name")
	}

	if i+2 > len(b) {
		return ex, i, ErrUnexpectedEOF
	}

	ex.Kind = b[i]
	i++

	idx, i, err := d.Int(b, i)
	if err != nil {
		return ex, st, errors.Wrap(err, "index")
	}

	ex.Index = Index(idx)

	return ex, i, nil
}

func (d *Decoder) FunctionSection(b []byte, st int, m *Module) (i int, err error) {
	l, end, i, err := d.sectionHeaderLen(b, st, FunctionSection)
	if err != nil {
		return i, err
	}

	var f int
	m.Func = m.Func[:0]

	for n := 0; n < l; n++ {
		f, i, err = d.Int(b, i)
		if err != nil {
			return i, errors.Wrap(err, "func %d", n)
		}

		m.Func = append(m.Func, Index(f))
	}

	if i != end {
		return st, ErrSizeMismatch
	}

	return i, nil
}

func (d *Decoder) TableSection(b []byte, st int, m *Module) (i int, err error) {
	l, end, i, err := d.sectionHeaderLen(b, st, TableSection)
	if err != nil {
		return i, err
	}

	var x TableType
	var tp byte
	m.Table = m.Table[:0]

	for n := 0; n < l; n++ {
		tp, x.Lo, x.Hi, i, err = d.TableType(b, i)
		if err != nil {
			return i, errors.Wrap(err, "table %d", n)
		}

		x.Elem = Type(tp)

		m.Table = append(m.Table, x)
	}

	if i != end {
		return st, ErrSizeMismatch
	}

	return i, nil
}

func (d *Decoder) MemorySection(b []byte, st int, m *Module) (i int, err error) {
	l, end, i, err := d.sectionHeaderLen(b, st, MemorySection)
	if err != nil {
		return i, err
	}

	var x Limits
	m.Memory = m.Memory[:0]

	for n := 0; n < l; n++ {
		x.Lo, x.Hi, i, err = d.Limits(b, i)
		if err != nil {
			return i, errors.Wrap(err, "memory %d", n)
		}

		m.Memory = append(m.Memory, x)
	}

	if i != end {
		return st, ErrSizeMismatch
	}

	return i, nil
}

func (d *Decoder) GlobalSection(b []byte, st int, m *Module) (i int, err error) {
	l, end, i, err := d.sectionHeaderLen(b, st, GlobalSection)
	if err != nil {
		return i, err
	}

	var g Global
	m.Global = m.Global[:0]

	for n := 0; n < l; n++ {
		g.Type, i, err = d.GlobalType(b, i)
		if err != nil {
			return i, errors.Wrap(err, "global type %d", n)
		}

		g.Init, i, err = d.Expr(b, i)
		if err != nil {
			return i, errors.Wrap(err, "global init %d", n)
		}

		m.Global = append(m.Global, g)
	}

	if i != end {
		return st, ErrSizeMismatch
	}

	return i, nil
}

func (d *Decoder) ElementSection(b []byte, st int, m *Module) (i int, err error) {
	l, end, i, err := d.sectionHeaderLen(b, st, ElementSection)
	if err != nil {
		return i, err
	}

	m.Element = m.Element[:0]

	var el Element

	for n := 0; n < l; n++ {
		el, i, err = d.Element(b, i)
		if err != nil {
			return i, errors.Wrap(err, "element %d", n)
		}

		m.Element = append(m.Element, el)
	}

	if i != end {
		return st, ErrSizeMismatch
	}

	return i, nil
}

// Element parses any of the eight segment encodings.
func (d *Decoder) Element(b []byte, st int) (el Element, i int, err error) {
	flags, i, err := d.Byte(b, st)
	if err != nil {
		return el, i, err
	}

	if flags > 7 {
		return el, st, errors.New("unsupported elem flags: 0x%02x", flags)
	}

	el.Exprs = flags&4 != 0
	el.Table = -1
	el.Type = FuncRef

	switch flags & 3 {
	case 0:
		el.Kind = ElemActive
	case 1:
		el.Kind = ElemPassive
	case 2:
		el.Kind = ElemActive

		var ti int

		ti, i, err = d.Int(b, i)
		if err != nil {
			return el, i, errors.Wrap(err, "table index")
		}

		el.Table = Index(ti)
	case 3:
		el.Kind = ElemDeclared
	}

	if el.Kind == ElemActive {
		el.Offset, i, err = d.Expr(b, i)
		if err != nil {
			return el, i, errors.Wrap(err, "offset")
		}
	}

	// the implicit-table active forms have no elemkind or reftype byte
	if flags&3 != 0 {
		var tp byte

		tp, i, err = d.Byte(b, i)
		if err != nil {
			return el, i, err
		}

		if el.Exprs {
			el.Type = Type(tp)
		} else if tp != 0 {
			return el, i - 1, errors.New("unsupported elemkind: 0x%02x", tp)
		}
	}

	var l int

	l, i, err = d.Int(b, i)
	if err != nil {
		return el, i, errors.Wrap(err, "items")
	}

	for j := 0; j < l; j++ {
		var it Index

		if el.Exprs {
			it, i, err = d.refExpr(b, i)
		} else {
			var id int
			id, i, err = d.Int(b, i)
			it = Index(id)
		}
		if err != nil {
			return el, i, errors.Wrap(err, "item %d", j)
		}

		el.Items = append(el.Items, it)
	}

	return el, i, nil
}

// refExpr parses a ref.null or ref.func constant expression item.
func (d *Decoder) refExpr(b []byte, st int) (it Index, i int, err error) {
	in, i, err := d.Expr(b, st)
	if err != nil {
		return 0, i, err
	}

	switch in.Op {
	case RefNull:
		return NullIndex, i, nil
	case RefFunc:
		return Index(in.A), i, nil
	}

	return 0, st, errors.New("unsupported elem expr: %v", in.Op)
}

func (d *Decoder) DataCountSection(b []byte, st int, m *Module) (i int, err error) {
	l, end, i, err := d.sectionHeaderLen(b, st, DataCountSection)
	if err != nil {
		return
	}

	m.DataCount = l

	if i != end {
		return st, ErrSizeMismatch
	}

	return
}

func (d *Decoder) StartSection(b []byte, st int, m *Module) (i int, err error) {
	l, end, i, err := d.sectionHeaderLen(b, st, StartSection)
	if err != nil {
		return
	}

	m.Start = Index(l)

	if i != end {
		return st, ErrSizeMismatch
	}

	return
}

func (d *Decoder) CodeSection(b []byte, st int, m *Module) (i int, err error) {
	l, end, i, err := d.sectionHeaderLen(b, st, CodeSection)
	if err != nil {
		return
	}

	var size int
	var c Code
	m.Code = m.Code[:0]

	for n := 0; n < l; n++ {
		size, i, err = d.Int(b, i)
		if err != nil {
			return i, errors.Wrap(err, "code %d", n)
		}

		if i+size > len(b) {
			return i, errors.Wrap(ErrUnexpectedEOF, "code %d", n)
		}

		c, err = d.Func(b[i : i+size])
		if err != nil {
			return i, errors.Wrap(err, "code %d", n)
		}

		m.Code = append(m.Code, c)
		i += size
	}

	if i != end {
		return st, ErrSizeMismatch
	}

	return
}

func (d *Decoder) DataSection(b []byte, st int, m *Module) (i int, err error) {
	l, end, i, err := d.sectionHeaderLen(b, st, DataSection)
	if err != nil {
		return
	}

	var size int
	var tp byte
	m.Data = m.Data[:0]

	var x Data

	for n := 0; n < l; n++ {
		x = Data{}

		tp, i, err = d.Byte(b, i)
		if err != nil {
			return
		}

		switch tp {
		case 0:
			x.Offset, i, err = d.Expr(b, i)
		case 1:
			x.Passive = true
		case 2:
			var mi int

			mi, i, err = d.Int(b, i)
			if err != nil {
				return st, errors.Wrap(err, "data %d: memory index", n)
			}

			x.Memory = Index(mi)

			x.Offset, i, err = d.Expr(b, i)
		default:
			return st, errors.New("data %d: unsupported data type: 0x%02x", n, tp)
		}
		if err != nil {
			return i, errors.Wrap(err, "data %d: expr", n)
		}

		size, i, err = d.Int(b, i)
		if err != nil {
			return st, errors.Wrap(err, "data %d: init size", n)
		}

		if i+size > len(b) {
			return st, errors.Wrap(ErrUnexpectedEOF, "data %d: init", n)
		}

		x.Init = append([]byte{}, b[i:i+size]...)
		i += size

		m.Data = append(m.Data, x)
	}

	if i != end {
		return st, ErrSizeMismatch
	}

	return
}

func (d *Decoder) sectionHeader(b []byte, st int, section byte) (end, i int, err error) {
	tp, i, err := d.Byte(b, st)
	if err != nil {
		return
	}

	if tp != section {
		return 0, st, errors.New("unexpected section id: %d, wanted %d", tp, section)
	}

	size, i, err := d.Int(b, i)
	if err != nil {
		return 0, i, errors.Wrap(err, "section size")
	}

	return i + size, i, nil
}

func (d *Decoder) sectionHeaderLen(b []byte, st int, section byte) (l, end, i int, err error) {
	end, i, err = d.sectionHeader(b, st, section)
	if err != nil {
		return 0, 0, i, err
	}

	l, i, err = d.Int(b, i)
	if err != nil {
		return 0, 0, i, errors.Wrap(err, "vector length")
	}

	return l, end, i, nil
}

func (d *LowDecoder) Byte(b []byte, st int) (r byte, i int, err error) {
	i = st

	if i >= len(b) {
		return 0, i, ErrUnexpectedEOF
	}

	return b[i], i + 1, nil
}

func (d *LowDecoder) Int(b []byte, st int) (l, i int, err error) {
	x, i, err := d.Uint64(b, st)
	return int(x), i, err
}

func (d *LowDecoder) Uint64(b []byte, st int) (v uint64, i int, err error) {
	var s uint
	i = st

	for i < len(b) {
		v |= uint64(b[i]&0x7f) << s
		i++
		s += 7

		if b[i-1]&0x80 == 0 {
			return v, i, nil
		}

		if s+7 > 64 {
			return v, st, ErrOverflow
		}
	}

	return 0, st, ErrUnexpectedEOF
}

func (d *LowDecoder) Int64(b []byte, st int) (v int64, i int, err error) {
	var s uint
	i = st

	for i < len(b) {
		v |= int64(b[i]&0x7f) << s
		i++
		s += 7

		if b[i-1]&0x80 == 0 {
			v = v << (64 - s) >> (64 - s)

			return v, i, nil
		}

		if s+7 > 64 {
			return v, st, ErrOverflow
		}
	}

	return 0, st, ErrUnexpectedEOF
}

func (d *LowDecoder) Float32(b []byte, st int) (bits uint32, i int, err error) {
	if st+4 > len(b) {
		return 0, st, ErrUnexpectedEOF
	}

	bits = uint32(b[st]) | uint32(b[st+1])<<8 | uint32(b[st+2])<<16 | uint32(b[st+3])<<24

	return bits, st + 4, nil
}

func (d *LowDecoder) Float64(b []byte, st int) (bits uint64, i int, err error) {
	if st+8 > len(b) {
		return 0, st, ErrUnexpectedEOF
	}

	bits = uint64(b[st]) | uint64(b[st+1])<<8 | uint64(b[st+2])<<16 | uint64(b[st+3])<<24 |
		uint64(b[st+4])<<32 | uint64(b[st+5])<<40 | uint64(b[st+6])<<48 | uint64(b[st+7])<<56

	return bits, st + 8, nil
}

func (d *LowDecoder) NameString(b []byte, st int) (v string, i int, err error) {
	r, i, err := d.Name(b, st)

	return string(r), i, err
}

func (d *LowDecoder) Name(b []byte, st int) (v []byte, i int, err error) {
	l, i, err := d.Int(b, st)
	if err != nil {
		return nil, st, err
	}

	if i+l > len(b) {
		return nil, st, ErrUnexpectedEOF
	}

	v = b[i : i+l]
	i += l

	return v, i, nil
}

func (d *LowDecoder) BasicType(b []byte, st int) (tp byte, i int, err error) {
	if st == len(b) {
		return 0, st, ErrUnexpectedEOF
	}

	return b[st], st + 1, nil
}

func (d *LowDecoder) ResultType(b []byte, st int, buf ResultType) (tp ResultType, i int, err error) {
	tp = buf[:0]

	l, i, err := d.Int(b, st)
	if err != nil {
		return tp, st, err
	}

	if i+l > len(b) {
		return tp, st, ErrUnexpectedEOF
	}

	for _, t := range b[i : i+l] {
		tp = append(tp, Type(t))
	}

	i += l

	return tp, i, nil
}

func (d *LowDecoder) FuncType(b []byte, st int, buf FuncType) (fn FuncType, i int, err error) {
	i = st
	fn = buf

	if i+3 > len(b) {
		return buf, st, ErrUnexpectedEOF
	}

	if b[i] != FuncTypeHeader {
		return buf, st, errors.New("expected function type, got 0x%2x", b[i])
	}
	i++

	fn.Params, i, err = d.ResultType(b, i, fn.Params)
	if err != nil {
		return buf, i, errors.Wrap(err, "func params")
	}

	fn.Result, i, err = d.ResultType(b, i, fn.Result)
	if err != nil {
		return fn, i, errors.Wrap(err, "func result")
	}

	return fn, i, nil
}

func (d *LowDecoder) Limits(b []byte, st int) (lo, hi, i int, err error) {
	tp, i, err := d.Byte(b, st)
	if err != nil {
		return
	}

	if tp != LimitLo && tp != LimitLoHi {
		i = st
		err = errors.New("expected limit, got 0x%02x", tp)
		return
	}

	lo, i, err = d.Int(b, i)
	if err != nil {
		return
	}

	if tp == LimitLo {
		hi = -1
		return
	}

	hi, i, err = d.Int(b, i)
	if err != nil {
		return
	}

	return
}

func (d *LowDecoder) TableType(b []byte, st int) (tp byte, lo, hi, i int, err error) {
	i = st

	if i+3 > len(b) {
		err = ErrUnexpectedEOF
		return
	}

	tp, i, err = d.BasicType(b, i)
	if err != nil {
		return
	}

	lo, hi, i, err = d.Limits(b, i)
	if err != nil {
		return
	}

	return
}

func (d *LowDecoder) GlobalType(b []byte, st int) (g GlobalType, i int, err error) {
	i = st

	if i+2 > len(b) {
		err = ErrUnexpectedEOF
		return
	}

	g.Type = Type(b[i])
	g.Mut = b[i+1] != 0
	i += 2

	return
}

func (d *LowDecoder) Section(b []byte, st int) (id byte, data []byte, i int, err error) {
	i = st

	if i+2 > len(b) {
		err = ErrUnexpectedEOF
		return
	}

	id = b[i]
	i++

	l, i, err := d.Int(b, i)
	if err != nil {
		return id, nil, st, err
	}

	if i+l > len(b) {
		return id, nil, st, ErrUnexpectedEOF
	}

	data = b[i : i+l]
	i += l

	return
}

func common(a, b []byte) (c int) {
	for c < len(a) && c < len(b) && a[c] == b[c] {
		c++
	}

	return
}
