package wasmgen

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratorEmptySeed(tb *testing.T) {
	var g Generator
	var m Module

	err := g.Module(NewSource(nil), &m)
	require.NoError(tb, err)

	assert.Equal(tb, 1, m.Version)
	assert.Equal(tb, Index(-1), m.Start)
	assert.Empty(tb, m.Type)
	assert.Empty(tb, m.Import)
	assert.Empty(tb, m.Func)
	assert.Empty(tb, m.Table)
	assert.Empty(tb, m.Memory)
	assert.Empty(tb, m.Global)
	assert.Empty(tb, m.Export)
	assert.Empty(tb, m.Element)
	assert.Empty(tb, m.Code)
	assert.Empty(tb, m.Data)

	var e Encoder

	bin := e.Module(nil, &m)
	assert.Equal(tb, []byte{0, 'a', 's', 'm', 1, 0, 0, 0}, bin)
}

// The seed below is consumed byte by byte in phase order:
// one type with no params and results, no imports, one function,
// no tables, memories, globals or exports, a start function,
// no elements or data, no locals, and an empty buffer leaves
// the body as a bare End.
func TestGeneratorCraftedSeed(tb *testing.T) {
	seed := []byte{
		1, // continue types
		0, // no params
		0, // no results
		0, // stop types
		0, // no imports
		1, // one function, the single type costs no bytes
		0, // stop functions
		0, // no tables
		0, // no memories
		0, // no globals
		0, // no exports
		1, // start function wanted, the only candidate costs no bytes
		0, // no elements
		0, // no data
	}

	var g Generator
	var m Module

	err := g.Module(NewSource(seed), &m)
	require.NoError(tb, err)

	assert.Equal(tb, []FuncType{{}}, m.Type)
	assert.Equal(tb, []Index{0}, m.Func)
	assert.Equal(tb, Index(0), m.Start)
	require.Len(tb, m.Code, 1)
	assert.Equal(tb, []Instr{{Op: End}}, m.Code[0].Body)
}

func TestGeneratorDeterminism(tb *testing.T) {
	rnd := rand.New(rand.NewSource(5))

	seed := make([]byte, 4096)
	_, _ = rnd.Read(seed)

	var g Generator
	var m1, m2 Module

	err := g.Module(NewSource(seed), &m1)
	require.NoError(tb, err)

	err = g.Module(NewSource(seed), &m2)
	require.NoError(tb, err)

	var e Encoder

	assert.Equal(tb, e.Module(nil, &m1), e.Module(nil, &m2))
}

func TestGeneratorProperties(tb *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	var g Generator
	var m Module

	for run := 0; run < 200; run++ {
		seed := make([]byte, rnd.Intn(8<<10))
		_, _ = rnd.Read(seed)

		src := NewSource(seed)

		cfg := Config(DefaultConfig{})
		if run%2 == 1 {
			cfg = NewSwarmConfig(src)
		}

		g.Config = cfg

		err := g.Module(src, &m)
		require.NoError(tb, err)

		checkModule(tb, cfg, &m)

		if tb.Failed() {
			tb.Logf("run: %v seed len: %v", run, len(seed))
			break
		}
	}
}

func checkModule(tb *testing.T, cfg Config, m *Module) {
	tb.Helper()

	assert.LessOrEqual(tb, len(m.Type), cfg.MaxTypes())
	assert.LessOrEqual(tb, len(m.Import), cfg.MaxImports())
	assert.LessOrEqual(tb, len(m.Func), cfg.MaxFuncs())
	assert.LessOrEqual(tb, len(m.Global), cfg.MaxGlobals())
	assert.LessOrEqual(tb, len(m.Export), cfg.MaxExports())
	assert.LessOrEqual(tb, len(m.Element), cfg.MaxElementSegments())
	assert.LessOrEqual(tb, len(m.Data), cfg.MaxDataSegments())

	assert.LessOrEqual(tb, m.NumMemories(), 1)

	if !cfg.ReferenceTypesEnabled() {
		assert.LessOrEqual(tb, m.NumTables(), 1)
	}

	for _, ti := range m.Func {
		assert.Less(tb, int(ti), len(m.Type))
	}

	for _, im := range m.Import {
		assert.NotEmpty(tb, im.Module)
		assert.NotEmpty(tb, im.Name)

		if im.Kind == ExtFunc {
			assert.Less(tb, int(im.Func), len(m.Type))
		}
	}

	names := map[string]struct{}{}

	for _, ex := range m.Export {
		_, dup := names[ex.Name]
		assert.False(tb, dup, "duplicate export name %q", ex.Name)
		names[ex.Name] = struct{}{}

		switch ex.Kind {
		case ExtFunc:
			assert.Less(tb, int(ex.Index), m.NumFuncs())
		case ExtTable:
			assert.Less(tb, int(ex.Index), m.NumTables())
		case ExtMemory:
			assert.Less(tb, int(ex.Index), m.NumMemories())
		case ExtGlobal:
			assert.Less(tb, int(ex.Index), m.NumGlobals())
		}
	}

	if m.Start >= 0 {
		assert.Less(tb, int(m.Start), m.NumFuncs())

		ft := m.TypeOfFunc(m.Start)
		assert.Empty(tb, ft.Params)
		assert.Empty(tb, ft.Result)
	}

	for _, el := range m.Element {
		if el.Kind == ElemActive && el.Table >= 0 {
			assert.Less(tb, int(el.Table), m.NumTables())
		}

		if el.Kind == ElemActive && el.Offset.Op == I32Const {
			ti := el.Table
			if ti < 0 {
				ti = 0
			}

			lo := m.TypeOfTable(ti).Lo
			assert.LessOrEqual(tb, int(el.Offset.A)+len(el.Items), lo)
		}

		for _, it := range el.Items {
			if it == NullIndex {
				assert.True(tb, el.Exprs)
				continue
			}

			assert.Less(tb, int(it), m.NumFuncs())
		}
	}

	for _, d := range m.Data {
		if d.Passive {
			assert.True(tb, cfg.BulkMemoryEnabled())
		} else {
			assert.Less(tb, int(d.Memory), m.NumMemories())
		}
	}

	assert.Len(tb, m.Code, len(m.Func))

	for fi, c := range m.Code {
		ft := m.Type[m.Func[fi]]
		locals := len(ft.Params) + len(c.Locals)

		if c.Raw != nil {
			continue
		}

		require.NotEmpty(tb, c.Body)
		assert.Equal(tb, Opcode(End), c.Body[len(c.Body)-1].Op)

		for _, in := range c.Body {
			switch in.Op {
			case Call:
				assert.Less(tb, int(in.A), m.NumFuncs())
			case LocalGet, LocalSet, LocalTee:
				assert.Less(tb, int(in.A), locals)
			case GlobalGet, GlobalSet:
				assert.Less(tb, int(in.A), m.NumGlobals())
			case RefFunc:
				assert.Fail(tb, "ref.func is reserved for constant expressions")
			}
		}
	}
}

func TestGeneratorPassiveData(tb *testing.T) {
	cfg := SwarmConfig{
		DataSegments: 10,
		BulkMemory:   true,
	}

	g := Generator{Config: cfg}

	rnd := rand.New(rand.NewSource(7))
	seed := make([]byte, 2048)
	_, _ = rnd.Read(seed)

	var m Module

	err := g.Module(NewSource(seed), &m)
	require.NoError(tb, err)

	for _, d := range m.Data {
		assert.True(tb, d.Passive, "no memory means every segment is passive")
	}
}

func TestGeneratorNoRefTypes(tb *testing.T) {
	cfg := SwarmConfig{
		Types:           20,
		Funcs:           20,
		Tables:          5,
		Memories:        1,
		ElementSegments: 20,
		Elements:        20,
	}

	g := Generator{Config: cfg}

	rnd := rand.New(rand.NewSource(9))

	var m Module

	for run := 0; run < 20; run++ {
		seed := make([]byte, 4096)
		_, _ = rnd.Read(seed)

		err := g.Module(NewSource(seed), &m)
		require.NoError(tb, err)

		assert.LessOrEqual(tb, m.NumTables(), 1)

		for _, t := range m.Table {
			assert.Equal(tb, Type(FuncRef), t.Elem)
		}

		for _, el := range m.Element {
			assert.Equal(tb, byte(ElemActive), el.Kind)
			assert.Equal(tb, Index(-1), el.Table)
			assert.False(tb, el.Exprs)
		}

		if tb.Failed() {
			tb.Logf("run: %v", run)
			break
		}
	}
}

// Several funcref tables make call_indirect scan table candidates in the
// middle of instruction selection, which must not disturb the selection.
func TestCodeBuilderManyTables(tb *testing.T) {
	cfg := SwarmConfig{
		Types:          10,
		Funcs:          10,
		Tables:         8,
		Memories:       1,
		Globals:        10,
		ReferenceTypes: true,
		BulkMemory:     true,
	}

	g := Generator{Config: cfg}

	rnd := rand.New(rand.NewSource(11))

	var m Module

	for run := 0; run < 50; run++ {
		seed := make([]byte, 4096)
		_, _ = rnd.Read(seed)

		err := g.Module(NewSource(seed), &m)
		require.NoError(tb, err)

		for fi, c := range m.Code {
			var ctl []Opcode

			for _, in := range c.Body {
				switch in.Op {
				case Block, Loop, If:
					ctl = append(ctl, in.Op)
				case Else:
					require.NotEmpty(tb, ctl, "func %v: else outside any frame", fi)
					require.Equal(tb, Opcode(If), ctl[len(ctl)-1], "func %v: else outside an if frame", fi)
					ctl[len(ctl)-1] = Else
				case End:
					if len(ctl) != 0 {
						ctl = ctl[:len(ctl)-1]
					}
				}
			}
		}

		if tb.Failed() {
			tb.Logf("run: %v", run)
			break
		}
	}
}

func TestUniqueName(tb *testing.T) {
	taken := map[string]struct{}{}

	assert.Equal(tb, "a", uniqueName(taken, "a"))
	assert.Equal(tb, "a1", uniqueName(taken, "a"))
	assert.Equal(tb, "b", uniqueName(taken, "b"))
	assert.Equal(tb, "a13", uniqueName(taken, "a1"))
}

func TestGeneratorInvalidMode(tb *testing.T) {
	g := Generator{AllowInvalid: true}

	rnd := rand.New(rand.NewSource(3))

	var m Module
	var e Encoder
	raw := false

	for run := 0; run < 50 && !raw; run++ {
		seed := make([]byte, 4096)
		_, _ = rnd.Read(seed)

		err := g.Module(NewSource(seed), &m)
		require.NoError(tb, err)

		// still encodable whatever the bodies hold
		_ = e.Module(nil, &m)

		for _, c := range m.Code {
			raw = raw || c.Raw != nil
		}
	}

	assert.True(tb, raw, "expected at least one raw body")
}
