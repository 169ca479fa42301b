package wasmgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLowEncoderDecoder(tb *testing.T) {
	var (
		b []byte
		e LowEncoder
		d LowDecoder

		tp ResultType
	)

	tb.Run("Reference", func(tb *testing.T) {
		b = e.Uint64(b[:0], 624485)
		assert.Equal(tb, []byte{0xe5, 0x8e, 0x26}, b)

		b = e.Int64(b[:0], -123456)
		assert.Equal(tb, []byte{0xc0, 0xbb, 0x78}, b)
	})

	tb.Run("Unsigned", func(tb *testing.T) {
		for _, x := range []uint64{0, 1, 5, 100, 127, 128, 512, 624485, 123_456_789} {
			b = e.Uint64(b[:0], x)

			y, i, err := d.Uint64(b, 0)
			assert.NoError(tb, err)
			assert.Equal(tb, len(b), i)
			assert.Equal(tb, x, y)

			if tb.Failed() {
				tb.Logf("x: %v\nb: %x\ny: %v", x, b, y)
				break
			}
		}
	})

	tb.Run("Signed_pos", func(tb *testing.T) {
		for _, x := range []int64{0, 1, 5, 100, 127, 128, 512, 123456, 123_456_789} {
			b = e.Int64(b[:0], x)

			y, i, err := d.Int64(b, 0)
			assert.NoError(tb, err)
			assert.Equal(tb, len(b), i)
			assert.Equal(tb, x, y)

			if tb.Failed() {
				tb.Logf("x: %v\nb: %x\ny: %v", x, b, y)
				break
			}
		}
	})

	tb.Run("Signed_neg", func(tb *testing.T) {
		for _, x := range []int64{-1, -5, -100, -127, -128, -512, -123456, -123_456_789} {
			b = e.Int64(b[:0], x)

			y, i, err := d.Int64(b, 0)
			assert.NoError(tb, err)
			assert.Equal(tb, len(b), i)
			assert.Equal(tb, x, y)

			if tb.Failed() {
				tb.Logf("x: %v\nb: %x\ny: %v", x, b, y)
				break
			}
		}
	})

	tb.Run("Float32", func(tb *testing.T) {
		for _, x := range []uint32{0, 1, 0x3f80_0000, 0xbf80_0000, 0x7fc0_0000} {
			b = e.Float32(b[:0], x)

			y, i, err := d.Float32(b, 0)
			assert.NoError(tb, err)
			assert.Equal(tb, len(b), i)
			assert.Equal(tb, x, y)

			if tb.Failed() {
				tb.Logf("x: %v\nb: %x\ny: %v", x, b, y)
				break
			}
		}
	})

	tb.Run("Float64", func(tb *testing.T) {
		for _, x := range []uint64{0, 1, 0x3ff0_0000_0000_0000, 0xbff0_0000_0000_0000, 0x7ff8_0000_0000_0000} {
			b = e.Float64(b[:0], x)

			y, i, err := d.Float64(b, 0)
			assert.NoError(tb, err)
			assert.Equal(tb, len(b), i)
			assert.Equal(tb, x, y)

			if tb.Failed() {
				tb.Logf("x: %v\nb: %x\ny: %v", x, b, y)
				break
			}
		}
	})

	tb.Run("Name", func(tb *testing.T) {
		for _, x := range []string{"", "1", "a", "1qaz", "Hello, 世界"} {
			b = e.Name(b[:0], x)

			y, i, err := d.Name(b, 0)
			assert.NoError(tb, err)
			assert.Equal(tb, len(b), i)
			assert.Equal(tb, x, string(y))

			if tb.Failed() {
				tb.Logf("x: %v\nb: %x\ny: %v", x, b, y)
				break
			}
		}
	})

	tb.Run("ResultType", func(tb *testing.T) {
		for _, x := range []ResultType{{I32, I64}, {F32}, {FuncRef, ExternRef}} {
			b = e.ResultType(b[:0], x...)

			y, i, err := d.ResultType(b, 0, tp[:0])
			assert.NoError(tb, err)
			assert.Equal(tb, len(b), i)
			assert.Equal(tb, x, y)

			tp = y

			if tb.Failed() {
				tb.Logf("x: %v\nb: %x\ny: %v", x, b, y)
				break
			}
		}
	})

	tb.Run("FuncType", func(tb *testing.T) {
		for _, x := range []FuncType{
			{Params: ResultType{I32, I64}, Result: ResultType{F32}},
		} {
			b = e.FuncType(b[:0], x.Params, x.Result)

			y, i, err := d.FuncType(b, 0, FuncType{})
			assert.NoError(tb, err)
			assert.Equal(tb, len(b), i)
			assert.Equal(tb, x, y)

			if tb.Failed() {
				tb.Logf("x: %v\nb: %x\ny: %v", x, b, y)
				break
			}
		}
	})

	tb.Run("Limits", func(tb *testing.T) {
		for _, x := range [][2]int{
			{0, -1},
			{1, -1},
			{0, 0},
			{0, 4},
			{1, 4},
		} {
			b = e.Limits(b[:0], x[0], x[1])

			lo, hi, i, err := d.Limits(b, 0)
			assert.NoError(tb, err)
			assert.Equal(tb, len(b), i)
			assert.Equal(tb, x, [2]int{lo, hi})

			if tb.Failed() {
				tb.Logf("x: %v\nb: %x\ny: %v", x, b, [2]int{lo, hi})
				break
			}
		}
	})

	tb.Run("TableType", func(tb *testing.T) {
		for _, x := range []TableType{
			{Elem: FuncRef, Limits: Limits{Lo: 0, Hi: 5}},
			{Elem: ExternRef, Limits: Limits{Lo: 4, Hi: -1}},
		} {
			b = e.TableType(b[:0], x.Elem, x.Lo, x.Hi)

			tp, lo, hi, i, err := d.TableType(b, 0)
			assert.NoError(tb, err)
			assert.Equal(tb, len(b), i)
			assert.Equal(tb, x, TableType{Elem: Type(tp), Limits: Limits{Lo: lo, Hi: hi}})

			if tb.Failed() {
				tb.Logf("x: %v\nb: %x", x, b)
				break
			}
		}
	})

	tb.Run("GlobalType", func(tb *testing.T) {
		for _, x := range []GlobalType{
			{Type: I64, Mut: true},
			{Type: F32, Mut: false},
		} {
			b = e.GlobalType(b[:0], x.Type, x.Mut)

			var dd LowDecoder

			y, i, err := dd.GlobalType(b, 0)
			assert.NoError(tb, err)
			assert.Equal(tb, len(b), i)
			assert.Equal(tb, x, y)

			if tb.Failed() {
				tb.Logf("x: %v\nb: %x\ny: %v", x, b, y)
				break
			}
		}
	})
}

func TestInstrEncoderDecoder(tb *testing.T) {
	var (
		b []byte
		e Encoder
		d Decoder
	)

	for _, x := range []Instr{
		{Op: Unreachable},
		{Op: Nop},
		{Op: Block, Block: BlockType{Kind: BlockEmpty}},
		{Op: Loop, Block: BlockType{Kind: BlockResult, Result: I64}},
		{Op: If, Block: BlockType{Kind: BlockFunc, Func: 3}},
		{Op: Else},
		{Op: End},
		{Op: Br, A: 2},
		{Op: BrIf, A: 0},
		{Op: BrTable, Targets: []Index{0, 1, 0}, A: 1},
		{Op: Ret},
		{Op: Call, A: 7},
		{Op: CallIndir, A: 2, B: 1},
		{Op: Drop},
		{Op: Select},
		{Op: LocalGet, A: 4},
		{Op: GlobalSet, A: 1},
		{Op: I32Load, A: 2, B: 16},
		{Op: I64Store16, A: 1, B: 777},
		{Op: MemorySize},
		{Op: MemoryGrow},
		{Op: I32Const, A: -1},
		{Op: I64Const, A: 1 << 40},
		{Op: F32Const, A: 0x3f80_0000},
		{Op: F64Const, A: 0x3ff0_0000_0000_0000},
		{Op: I32Add},
		{Op: F64CopySign},
		{Op: I32WrapI64},
		{Op: I64Extend32S},
		{Op: RefNull, Type: ExternRef},
		{Op: RefIsNull},
		{Op: RefFunc, A: 5},
		{Op: FCExt, Sub: FCMemoryCopy},
		{Op: FCExt, Sub: FCMemoryFill},
	} {
		b = e.Instr(b[:0], x)

		y, i, err := d.Instr(b, 0)
		assert.NoError(tb, err)
		assert.Equal(tb, len(b), i)
		assert.Equal(tb, x, y)

		if tb.Failed() {
			tb.Logf("x: %v\nb: %x\ny: %v", x, b, y)
			break
		}
	}
}

func TestDecoderReuse(tb *testing.T) {
	full := &Module{
		Version: 1,
		Start:   -1,
		Table:   []TableType{{Elem: FuncRef, Limits: Limits{Lo: 1, Hi: -1}}},
		Global:  []Global{{Type: GlobalType{Type: I32}, Init: Instr{Op: I32Const, A: 7}}},
	}
	empty := &Module{Version: 1, Start: -1}

	var e Encoder
	var d Decoder
	var m Module

	err := d.Module(e.Module(nil, full), &m)
	require.NoError(tb, err)

	require.Len(tb, m.Table, 1)
	require.Len(tb, m.Global, 1)

	// sections absent from the next binary must not leak through
	err = d.Module(e.Module(nil, empty), &m)
	require.NoError(tb, err)

	assert.Empty(tb, m.Table)
	assert.Empty(tb, m.Global)
	assert.Equal(tb, e.Module(nil, empty), e.Module(nil, &m))
}

func TestModuleRoundTrip(tb *testing.T) {
	m := &Module{
		Version: 1,
		Start:   1,
		Type: []FuncType{
			{},
			{Params: ResultType{I32, I64}, Result: ResultType{F64}},
		},
		Import: []Import{
			{Module: "env", Name: "g", Kind: ExtGlobal, Global: GlobalType{Type: I32}},
			{Module: "env", Name: "f", Kind: ExtFunc, Func: 1},
			{Module: "env", Name: "t", Kind: ExtTable, Table: TableType{Elem: FuncRef, Limits: Limits{Lo: 1, Hi: 10}}},
			{Module: "env", Name: "m", Kind: ExtMemory, Memory: Limits{Lo: 1, Hi: -1}},
		},
		Func:   []Index{0, 1},
		Global: []Global{{Type: GlobalType{Type: I32, Mut: true}, Init: Instr{Op: GlobalGet, A: 0}}},
		Export: []Export{
			{Name: "run", Kind: ExtFunc, Index: 1},
			{Name: "mem", Kind: ExtMemory, Index: 0},
		},
		Element: []Element{
			{Kind: ElemActive, Table: -1, Offset: Instr{Op: I32Const, A: 0}, Type: FuncRef, Items: []Index{1, 2}},
			{Kind: ElemActive, Table: 0, Offset: Instr{Op: I32Const, A: 1}, Type: FuncRef, Exprs: true, Items: []Index{NullIndex, 1}},
			{Kind: ElemPassive, Table: -1, Type: ExternRef, Exprs: true, Items: []Index{NullIndex}},
			{Kind: ElemDeclared, Table: -1, Type: FuncRef, Items: []Index{2}},
		},
		Code: []Code{
			{Body: []Instr{{Op: End}}},
			{
				Locals: ResultType{I32, I32, F64},
				Body: []Instr{
					{Op: Block, Block: BlockType{Kind: BlockResult, Result: I32}},
					{Op: I32Const, A: 42},
					{Op: End},
					{Op: Drop},
					{Op: Unreachable},
					{Op: End},
				},
			},
		},
		Data: []Data{
			{Offset: Instr{Op: I32Const, A: 0}, Init: []byte("hello")},
			{Passive: true, Init: []byte{1, 2, 3}},
		},
	}

	var e Encoder
	var d Decoder

	bin := e.Module(nil, m)

	var back Module

	err := d.Module(bin, &back)
	require.NoError(tb, err)

	assert.Equal(tb, m.Start, back.Start)
	assert.Equal(tb, m.Type, back.Type)
	assert.Equal(tb, m.Import, back.Import)
	assert.Equal(tb, m.Func, back.Func)
	assert.Equal(tb, m.Global, back.Global)
	assert.Equal(tb, m.Export, back.Export)
	assert.Equal(tb, m.Element, back.Element)
	assert.Equal(tb, m.Code, back.Code)

	bin2 := e.Module(nil, &back)
	assert.Equal(tb, bin, bin2)
}
