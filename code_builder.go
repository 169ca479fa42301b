package wasmgen

type (
	// codeBuilder generates type-correct function bodies.
	// It tracks a value type stack and a control frame stack and at every
	// step picks uniformly among the instructions valid in the current
	// state. One builder serves all functions of a module.
	codeBuilder struct {
		m        *Module
		src      *Source
		valtypes []Type

		// flattened module views, index spaces with imports first
		funcTypes []Index
		globals   []GlobalType
		tables    []TableType
		memories  int
		bulk      bool
		reftypes  bool

		// per-function state
		locals []Type
		frames []frame
		stack  []Type
		body   []Instr

		// cand is gen-side scratch, tcand serves the valid predicates
		// running while step still scans cand.
		cand  []int
		tcand []int
	}

	frame struct {
		op      Opcode // Func is represented by Block at depth 0
		params  ResultType
		results ResultType

		// stack height at frame entry, below params
		height int

		// once set, the stack is polymorphic until the frame ends
		unreachable bool
	}

	instrEntry struct {
		valid func(*codeBuilder) bool
		gen   func(*codeBuilder)
	}
)

// instruction budget per function body before forced closure
const bodyBudget = 128

func newCodeBuilder(m *Module, cfg Config, valtypes []Type) *codeBuilder {
	b := &codeBuilder{
		m:        m,
		valtypes: valtypes,
		memories: m.NumMemories(),
		bulk:     cfg.BulkMemoryEnabled(),
		reftypes: cfg.ReferenceTypesEnabled(),
	}

	for _, im := range m.Import {
		switch im.Kind {
		case ExtFunc:
			b.funcTypes = append(b.funcTypes, im.Func)
		case ExtGlobal:
			b.globals = append(b.globals, im.Global)
		case ExtTable:
			b.tables = append(b.tables, im.Table)
		}
	}

	b.funcTypes = append(b.funcTypes, m.Func...)

	for _, g := range m.Global {
		b.globals = append(b.globals, g.Type)
	}

	b.tables = append(b.tables, m.Table...)

	return b
}

// Body generates a body for a function of the given type.
// The returned slice ends with the closing End and is owned by the caller.
func (b *codeBuilder) Body(src *Source, ft FuncType, locals ResultType) []Instr {
	b.src = src
	b.locals = append(b.locals[:0], ft.Params...)
	b.locals = append(b.locals, locals...)

	b.stack = b.stack[:0]
	b.body = nil

	b.frames = append(b.frames[:0], frame{
		op:      Block,
		results: ft.Result,
	})

	for budget := bodyBudget; len(b.frames) > 0; budget-- {
		if budget <= 0 || src.Empty() {
			b.finish()
			break
		}

		b.step(src)
	}

	return b.body
}

// step picks one valid instruction and emits it.
func (b *codeBuilder) step(src *Source) {
	b.cand = b.cand[:0]

	for i, e := range instrTable {
		if e.valid(b) {
			b.cand = append(b.cand, i)
		}
	}

	// End is always a candidate via finish semantics but may be
	// invalid here. The table always offers at least Unreachable.
	instrTable[b.cand[src.Pick(len(b.cand))]].gen(b)
}

// finish closes all open frames making every body well-typed:
// frames that cannot produce their results are cut off with Unreachable.
func (b *codeBuilder) finish() {
	for len(b.frames) > 0 {
		f := b.top()

		if !b.endable(f) {
			b.emit(Instr{Op: Unreachable})
			f.unreachable = true
			b.stack = b.stack[:f.height]
		}

		if f.op == If && !f.params.Equal(f.results) {
			// the arms disagree, cut the implicit else arm off too
			b.emit(Instr{Op: Else})
			b.emit(Instr{Op: Unreachable})
		}

		b.emit(Instr{Op: End})

		height, results := f.height, f.results
		b.frames = b.frames[:len(b.frames)-1]
		b.stack = append(b.stack[:height], results...)
	}
}

func (b *codeBuilder) emit(in Instr) {
	b.body = append(b.body, in)
}

func (b *codeBuilder) top() *frame {
	return &b.frames[len(b.frames)-1]
}

// stackIs reports whether the stack above height is exactly want.
func (b *codeBuilder) stackIs(height int, want ResultType) bool {
	if len(b.stack)-height != len(want) {
		return false
	}

	return ResultType(b.stack[height:]).Equal(want)
}

// endable reports whether the top frame can produce its results.
// Values pushed after an unreachable point are still concrete and
// must agree with the result suffix.
func (b *codeBuilder) endable(f *frame) bool {
	if !f.unreachable {
		return b.stackIs(f.height, f.results)
	}

	return len(b.stack)-f.height <= len(f.results) && b.have(f.results...)
}

// have reports whether the top of the stack can supply want.
// In unreachable code missing operands materialize from the
// polymorphic stack.
func (b *codeBuilder) have(want ...Type) bool {
	f := b.top()
	avail := len(b.stack) - f.height

	need := len(want)
	if need > avail {
		need = avail
	}

	for i := 0; i < need; i++ {
		if b.stack[len(b.stack)-need+i] != want[len(want)-need+i] {
			return false
		}
	}

	return len(want) <= avail || f.unreachable
}

// popPush replaces the want operands with the produced types.
func (b *codeBuilder) popPush(want []Type, prod ...Type) {
	f := b.top()
	n := len(want)
	if avail := len(b.stack) - f.height; n > avail {
		n = avail
	}

	b.stack = b.stack[:len(b.stack)-n]
	b.stack = append(b.stack, prod...)
}

// labelTypes returns the types a branch to depth d must supply.
func (b *codeBuilder) labelTypes(d int) ResultType {
	f := &b.frames[len(b.frames)-1-d]
	if f.op == Loop {
		return f.params
	}

	return f.results
}

func (b *codeBuilder) pushFrame(op Opcode, ft FuncType) {
	b.popPush(ft.Params)

	f := frame{
		op:      op,
		params:  ft.Params,
		results: ft.Result,
		height:  len(b.stack),
	}

	b.stack = append(b.stack, ft.Params...)
	b.frames = append(b.frames, f)
}

// blockType draws a random block signature: empty, a single result,
// or any function type of the module.
func (b *codeBuilder) blockType(src *Source) (FuncType, BlockType) {
	n := 2
	if len(b.m.Type) > 0 {
		n = 3
	}

	switch src.Pick(n) {
	case 0:
		return FuncType{}, BlockType{Kind: BlockEmpty}
	case 1:
		t := b.valtypes[src.Pick(len(b.valtypes))]

		return FuncType{Result: ResultType{t}}, BlockType{Kind: BlockResult, Result: t}
	default:
		ti := Index(src.Int(0, len(b.m.Type)-1))

		return b.m.Type[ti], BlockType{Kind: BlockFunc, Func: ti}
	}
}

// blockEnterable reports whether a child frame taking params can
// currently be entered.
func (b *codeBuilder) blockEnterable(params ResultType) bool {
	return b.have(params...)
}

func (b *codeBuilder) localsOf(t Type) bool {
	for _, l := range b.locals {
		if l == t {
			return true
		}
	}

	return false
}

func (b *codeBuilder) pickLocal(src *Source, t Type) int64 {
	b.cand = b.cand[:0]

	for i, l := range b.locals {
		if l == t {
			b.cand = append(b.cand, i)
		}
	}

	return int64(b.cand[src.Pick(len(b.cand))])
}

func (b *codeBuilder) globalsOf(t Type, mut bool) bool {
	for _, g := range b.globals {
		if g.Type == t && (!mut || g.Mut) {
			return true
		}
	}

	return false
}

func (b *codeBuilder) pickGlobal(src *Source, t Type, mut bool) int64 {
	b.cand = b.cand[:0]

	for i, g := range b.globals {
		if g.Type == t && (!mut || g.Mut) {
			b.cand = append(b.cand, i)
		}
	}

	return int64(b.cand[src.Pick(len(b.cand))])
}

// funcrefTables lists the tables usable by call_indirect.
// Only table zero is addressable without reference types.
func (b *codeBuilder) funcrefTables() []int {
	b.tcand = b.tcand[:0]

	for i, t := range b.tables {
		if i > 0 && !b.reftypes {
			break
		}
		if t.Elem != FuncRef {
			continue
		}

		b.tcand = append(b.tcand, i)
	}

	return b.tcand
}

func numeric(t Type) bool {
	return t == I32 || t == I64 || t == F32 || t == F64
}

// memarg draws an alignment not exceeding natural and a small offset.
func memarg(src *Source, natural int) (align, offset int64) {
	return int64(src.Int(0, natural)), int64(src.Int(0, 255))
}

//
// instruction table
//

var instrTable = buildInstrTable()

func simple(op Opcode, params []Type, results ...Type) instrEntry {
	return instrEntry{
		valid: func(b *codeBuilder) bool { return b.have(params...) },
		gen: func(b *codeBuilder) {
			b.popPush(params, results...)
			b.emit(Instr{Op: op})
		},
	}
}

func unop(op Opcode, t Type) instrEntry { return simple(op, []Type{t}, t) }

func binop(op Opcode, t Type) instrEntry { return simple(op, []Type{t, t}, t) }

func testop(op Opcode, t Type) instrEntry { return simple(op, []Type{t}, I32) }

func relop(op Opcode, t Type) instrEntry { return simple(op, []Type{t, t}, I32) }

func cvtop(op Opcode, from, to Type) instrEntry { return simple(op, []Type{from}, to) }

func loadOp(op Opcode, t Type, natural int) instrEntry {
	return instrEntry{
		valid: func(b *codeBuilder) bool { return b.memories > 0 && b.have(I32) },
		gen: func(b *codeBuilder) {
			a, o := memarg(b.src, natural)

			b.popPush([]Type{I32}, t)
			b.emit(Instr{Op: op, A: a, B: o})
		},
	}
}

func storeOp(op Opcode, t Type, natural int) instrEntry {
	return instrEntry{
		valid: func(b *codeBuilder) bool { return b.memories > 0 && b.have(I32, t) },
		gen: func(b *codeBuilder) {
			a, o := memarg(b.src, natural)

			b.popPush([]Type{I32, t})
			b.emit(Instr{Op: op, A: a, B: o})
		},
	}
}

func buildInstrTable() []instrEntry {
	var t []instrEntry

	add := func(e instrEntry) { t = append(t, e) }

	// control

	add(instrEntry{ // unreachable
		valid: func(b *codeBuilder) bool { return true },
		gen: func(b *codeBuilder) {
			f := b.top()
			f.unreachable = true
			b.stack = b.stack[:f.height]
			b.emit(Instr{Op: Unreachable})
		},
	})

	add(simple(Nop, nil))

	add(instrEntry{ // block
		valid: func(b *codeBuilder) bool { return true },
		gen: func(b *codeBuilder) {
			ft, bt := b.blockType(b.src)
			if !b.blockEnterable(ft.Params) {
				ft, bt = FuncType{}, BlockType{Kind: BlockEmpty}
			}

			b.pushFrame(Block, ft)
			b.emit(Instr{Op: Block, Block: bt})
		},
	})

	add(instrEntry{ // loop
		valid: func(b *codeBuilder) bool { return true },
		gen: func(b *codeBuilder) {
			ft, bt := b.blockType(b.src)
			if !b.blockEnterable(ft.Params) {
				ft, bt = FuncType{}, BlockType{Kind: BlockEmpty}
			}

			b.pushFrame(Loop, ft)
			b.emit(Instr{Op: Loop, Block: bt})
		},
	})

	add(instrEntry{ // if
		valid: func(b *codeBuilder) bool { return b.have(I32) },
		gen: func(b *codeBuilder) {
			b.popPush([]Type{I32})

			ft, bt := b.blockType(b.src)
			if !b.blockEnterable(ft.Params) {
				ft, bt = FuncType{}, BlockType{Kind: BlockEmpty}
			}

			b.pushFrame(If, ft)
			b.emit(Instr{Op: If, Block: bt})
		},
	})

	add(instrEntry{ // else
		valid: func(b *codeBuilder) bool {
			f := b.top()

			return f.op == If && b.endable(f)
		},
		gen: func(b *codeBuilder) {
			f := b.top()
			f.op = Else
			f.unreachable = false
			b.stack = append(b.stack[:f.height], f.params...)
			b.emit(Instr{Op: Else})
		},
	})

	add(instrEntry{ // end
		valid: func(b *codeBuilder) bool {
			f := b.top()
			if f.op == If && !f.params.Equal(f.results) {
				return false
			}

			return b.endable(f)
		},
		gen: func(b *codeBuilder) {
			f := *b.top()
			b.frames = b.frames[:len(b.frames)-1]
			b.stack = append(b.stack[:f.height], f.results...)
			b.emit(Instr{Op: End})
		},
	})

	add(instrEntry{ // br
		valid: func(b *codeBuilder) bool { return true },
		gen: func(b *codeBuilder) {
			d := b.src.Pick(len(b.frames))
			lt := b.labelTypes(d)

			f := b.top()
			if !b.have(lt...) {
				// cut off first, then branch from polymorphic stack
				b.emit(Instr{Op: Unreachable})
			}

			f.unreachable = true
			b.stack = b.stack[:f.height]
			b.emit(Instr{Op: Br, A: int64(d)})
		},
	})

	add(instrEntry{ // br_if
		valid: func(b *codeBuilder) bool {
			if !b.have(I32) {
				return false
			}

			for d := range b.frames {
				lt := append(append(ResultType{}, b.labelTypes(d)...), I32)
				if b.have(lt...) {
					return true
				}
			}

			return false
		},
		gen: func(b *codeBuilder) {
			b.cand = b.cand[:0]

			for d := range b.frames {
				lt := append(append(ResultType{}, b.labelTypes(d)...), I32)
				if b.have(lt...) {
					b.cand = append(b.cand, d)
				}
			}

			d := b.cand[b.src.Pick(len(b.cand))]
			lt := b.labelTypes(d)

			b.popPush([]Type{I32})

			// the label types end up on the stack as known types
			// even when they came from the polymorphic part
			f := b.top()
			n := len(lt)
			if avail := len(b.stack) - f.height; n > avail {
				n = avail
			}
			b.stack = append(b.stack[:len(b.stack)-n], lt...)

			b.emit(Instr{Op: BrIf, A: int64(d)})
		},
	})

	add(instrEntry{ // br_table
		valid: func(b *codeBuilder) bool { return b.have(I32) },
		gen: func(b *codeBuilder) {
			b.popPush([]Type{I32})

			def := b.src.Pick(len(b.frames))
			lt := b.labelTypes(def)

			// targets must agree on label types with the default
			b.cand = b.cand[:0]
			for d := range b.frames {
				if b.labelTypes(d).Equal(lt) {
					b.cand = append(b.cand, d)
				}
			}

			n := b.src.Int(0, 8)
			targets := make([]Index, n)
			for i := range targets {
				targets[i] = Index(b.cand[b.src.Pick(len(b.cand))])
			}

			f := b.top()
			if !b.have(lt...) {
				b.emit(Instr{Op: Unreachable})
			}

			f.unreachable = true
			b.stack = b.stack[:f.height]
			b.emit(Instr{Op: BrTable, Targets: targets, A: int64(def)})
		},
	})

	add(instrEntry{ // return
		valid: func(b *codeBuilder) bool { return true },
		gen: func(b *codeBuilder) {
			lt := b.frames[0].results

			f := b.top()
			if !b.have(lt...) {
				b.emit(Instr{Op: Unreachable})
			}

			f.unreachable = true
			b.stack = b.stack[:f.height]
			b.emit(Instr{Op: Ret})
		},
	})

	add(instrEntry{ // call
		valid: func(b *codeBuilder) bool {
			for _, ti := range b.funcTypes {
				if b.have(b.m.Type[ti].Params...) {
					return true
				}
			}

			return false
		},
		gen: func(b *codeBuilder) {
			b.cand = b.cand[:0]

			for i, ti := range b.funcTypes {
				if b.have(b.m.Type[ti].Params...) {
					b.cand = append(b.cand, i)
				}
			}

			fi := b.cand[b.src.Pick(len(b.cand))]
			ft := b.m.Type[b.funcTypes[fi]]

			b.popPush(ft.Params, ft.Result...)
			b.emit(Instr{Op: Call, A: int64(fi)})
		},
	})

	add(instrEntry{ // call_indirect
		valid: func(b *codeBuilder) bool {
			if len(b.funcrefTables()) == 0 {
				return false
			}
			if !b.have(I32) {
				return false
			}

			for _, ft := range b.m.Type {
				lt := append(append(ResultType{}, ft.Params...), I32)
				if b.have(lt...) {
					return true
				}
			}

			return false
		},
		gen: func(b *codeBuilder) {
			tbls := b.funcrefTables()
			tbl := int64(tbls[b.src.Pick(len(tbls))])

			b.cand = b.cand[:0]
			for i, ft := range b.m.Type {
				lt := append(append(ResultType{}, ft.Params...), I32)
				if b.have(lt...) {
					b.cand = append(b.cand, i)
				}
			}

			ti := b.cand[b.src.Pick(len(b.cand))]
			ft := b.m.Type[ti]

			b.popPush(append(append([]Type{}, ft.Params...), I32), ft.Result...)
			b.emit(Instr{Op: CallIndir, A: int64(ti), B: tbl})
		},
	})

	// parametric

	add(instrEntry{ // drop
		valid: func(b *codeBuilder) bool {
			f := b.top()

			return len(b.stack) > f.height || f.unreachable
		},
		gen: func(b *codeBuilder) {
			f := b.top()
			if len(b.stack) > f.height {
				b.stack = b.stack[:len(b.stack)-1]
			}
			b.emit(Instr{Op: Drop})
		},
	})

	add(instrEntry{ // select, untyped form requires numeric operands
		valid: func(b *codeBuilder) bool {
			f := b.top()
			avail := len(b.stack) - f.height

			if avail >= 3 {
				a, bb := b.stack[len(b.stack)-3], b.stack[len(b.stack)-2]

				return a == bb && numeric(a) && b.stack[len(b.stack)-1] == I32
			}
			if !f.unreachable || !b.have(I32) {
				return false
			}
			if avail == 2 {
				// the remaining operand decides the result type
				return numeric(b.stack[len(b.stack)-2])
			}

			return true
		},
		gen: func(b *codeBuilder) {
			f := b.top()
			if len(b.stack)-f.height >= 3 {
				t := b.stack[len(b.stack)-3]
				b.popPush([]Type{t, t, I32}, t)
			} else {
				b.popPush([]Type{I32})
			}
			b.emit(Instr{Op: Select})
		},
	})

	// variables

	for _, vt := range []Type{I32, I64, F32, F64, FuncRef, ExternRef} {
		vt := vt

		add(instrEntry{ // local.get
			valid: func(b *codeBuilder) bool { return b.localsOf(vt) },
			gen: func(b *codeBuilder) {
				b.stack = append(b.stack, vt)
				b.emit(Instr{Op: LocalGet, A: b.pickLocal(b.src, vt)})
			},
		})

		add(instrEntry{ // local.set
			valid: func(b *codeBuilder) bool { return b.localsOf(vt) && b.have(vt) },
			gen: func(b *codeBuilder) {
				b.popPush([]Type{vt})
				b.emit(Instr{Op: LocalSet, A: b.pickLocal(b.src, vt)})
			},
		})

		add(instrEntry{ // local.tee
			valid: func(b *codeBuilder) bool { return b.localsOf(vt) && b.have(vt) },
			gen: func(b *codeBuilder) {
				b.popPush([]Type{vt}, vt)
				b.emit(Instr{Op: LocalTee, A: b.pickLocal(b.src, vt)})
			},
		})

		add(instrEntry{ // global.get
			valid: func(b *codeBuilder) bool { return b.globalsOf(vt, false) },
			gen: func(b *codeBuilder) {
				b.stack = append(b.stack, vt)
				b.emit(Instr{Op: GlobalGet, A: b.pickGlobal(b.src, vt, false)})
			},
		})

		add(instrEntry{ // global.set
			valid: func(b *codeBuilder) bool { return b.globalsOf(vt, true) && b.have(vt) },
			gen: func(b *codeBuilder) {
				b.popPush([]Type{vt})
				b.emit(Instr{Op: GlobalSet, A: b.pickGlobal(b.src, vt, true)})
			},
		})
	}

	// memory

	add(loadOp(I32Load, I32, 2))
	add(loadOp(I64Load, I64, 3))
	add(loadOp(F32Load, F32, 2))
	add(loadOp(F64Load, F64, 3))
	add(loadOp(I32Load8S, I32, 0))
	add(loadOp(I32Load8U, I32, 0))
	add(loadOp(I32Load16S, I32, 1))
	add(loadOp(I32Load16U, I32, 1))
	add(loadOp(I64Load8S, I64, 0))
	add(loadOp(I64Load8U, I64, 0))
	add(loadOp(I64Load16S, I64, 1))
	add(loadOp(I64Load16U, I64, 1))
	add(loadOp(I64Load32S, I64, 2))
	add(loadOp(I64Load32U, I64, 2))

	add(storeOp(I32Store, I32, 2))
	add(storeOp(I64Store, I64, 3))
	add(storeOp(F32Store, F32, 2))
	add(storeOp(F64Store, F64, 3))
	add(storeOp(I32Store8, I32, 0))
	add(storeOp(I32Store16, I32, 1))
	add(storeOp(I64Store8, I64, 0))
	add(storeOp(I64Store16, I64, 1))
	add(storeOp(I64Store32, I64, 2))

	add(instrEntry{ // memory.size
		valid: func(b *codeBuilder) bool { return b.memories > 0 },
		gen: func(b *codeBuilder) {
			b.stack = append(b.stack, I32)
			b.emit(Instr{Op: MemorySize})
		},
	})

	add(instrEntry{ // memory.grow
		valid: func(b *codeBuilder) bool { return b.memories > 0 && b.have(I32) },
		gen: func(b *codeBuilder) {
			b.popPush([]Type{I32}, I32)
			b.emit(Instr{Op: MemoryGrow})
		},
	})

	add(instrEntry{ // memory.copy
		valid: func(b *codeBuilder) bool {
			return b.bulk && b.memories > 0 && b.have(I32, I32, I32)
		},
		gen: func(b *codeBuilder) {
			b.popPush([]Type{I32, I32, I32})
			b.emit(Instr{Op: FCExt, Sub: FCMemoryCopy})
		},
	})

	add(instrEntry{ // memory.fill
		valid: func(b *codeBuilder) bool {
			return b.bulk && b.memories > 0 && b.have(I32, I32, I32)
		},
		gen: func(b *codeBuilder) {
			b.popPush([]Type{I32, I32, I32})
			b.emit(Instr{Op: FCExt, Sub: FCMemoryFill})
		},
	})

	// constants

	add(instrEntry{
		valid: func(b *codeBuilder) bool { return true },
		gen: func(b *codeBuilder) {
			b.stack = append(b.stack, I32)
			b.emit(Instr{Op: I32Const, A: int64(int32(b.src.Uint32()))})
		},
	})

	add(instrEntry{
		valid: func(b *codeBuilder) bool { return true },
		gen: func(b *codeBuilder) {
			b.stack = append(b.stack, I64)
			b.emit(Instr{Op: I64Const, A: int64(b.src.Uint64())})
		},
	})

	add(instrEntry{
		valid: func(b *codeBuilder) bool { return true },
		gen: func(b *codeBuilder) {
			b.stack = append(b.stack, F32)
			b.emit(Instr{Op: F32Const, A: int64(b.src.Uint32())})
		},
	})

	add(instrEntry{
		valid: func(b *codeBuilder) bool { return true },
		gen: func(b *codeBuilder) {
			b.stack = append(b.stack, F64)
			b.emit(Instr{Op: F64Const, A: int64(b.src.Uint64())})
		},
	})

	// i32 numeric

	add(testop(I32EqZ, I32))
	for _, op := range []Opcode{I32Eq, I32Ne, I32LtS, I32LtU, I32GtS, I32GtU, I32LeS, I32LeU, I32GeS, I32GeU} {
		add(relop(op, I32))
	}
	for _, op := range []Opcode{I32Clz, I32Ctz, I32Popcnt} {
		add(unop(op, I32))
	}
	for _, op := range []Opcode{I32Add, I32Sub, I32Mul, I32DivS, I32DivU, I32RemS, I32RemU, I32And, I32Or, I32Xor, I32Shl, I32ShrS, I32ShrU, I32RotL, I32RotR} {
		add(binop(op, I32))
	}

	// i64 numeric

	add(testop(I64EqZ, I64))
	for _, op := range []Opcode{I64Eq, I64Ne, I64LtS, I64LtU, I64GtS, I64GtU, I64LeS, I64LeU, I64GeS, I64GeU} {
		add(relop(op, I64))
	}
	for _, op := range []Opcode{I64Clz, I64Ctz, I64Popcnt} {
		add(unop(op, I64))
	}
	for _, op := range []Opcode{I64Add, I64Sub, I64Mul, I64DivS, I64DivU, I64RemS, I64RemU, I64And, I64Or, I64Xor, I64Shl, I64ShrS, I64ShrU, I64RotL, I64RotR} {
		add(binop(op, I64))
	}

	// f32 numeric

	for _, op := range []Opcode{F32Eq, F32Ne, F32Lt, F32Gt, F32Le, F32Ge} {
		add(relop(op, F32))
	}
	for _, op := range []Opcode{F32Abs, F32Neg, F32Ceil, F32Floor, F32Trunc, F32Near, F32Sqrt} {
		add(unop(op, F32))
	}
	for _, op := range []Opcode{F32Add, F32Sub, F32Mul, F32Div, F32Min, F32Max, F32CopySign} {
		add(binop(op, F32))
	}

	// f64 numeric

	for _, op := range []Opcode{F64Eq, F64Ne, F64Lt, F64Gt, F64Le, F64Ge} {
		add(relop(op, F64))
	}
	for _, op := range []Opcode{F64Abs, F64Neg, F64Ceil, F64Floor, F64Trunc, F64Near, F64Sqrt} {
		add(unop(op, F64))
	}
	for _, op := range []Opcode{F64Add, F64Sub, F64Mul, F64Div, F64Min, F64Max, F64CopySign} {
		add(binop(op, F64))
	}

	// conversions, trapping float truncations included

	add(cvtop(I32WrapI64, I64, I32))
	add(cvtop(I32TruncF32S, F32, I32))
	add(cvtop(I32TruncF32U, F32, I32))
	add(cvtop(I32TruncF64S, F64, I32))
	add(cvtop(I32TruncF64U, F64, I32))
	add(cvtop(I64ExtendI32S, I32, I64))
	add(cvtop(I64ExtendI32U, I32, I64))
	add(cvtop(I64TruncF32S, F32, I64))
	add(cvtop(I64TruncF32U, F32, I64))
	add(cvtop(I64TruncF64S, F64, I64))
	add(cvtop(I64TruncF64U, F64, I64))
	add(cvtop(F32ConvertI32S, I32, F32))
	add(cvtop(F32ConvertI32U, I32, F32))
	add(cvtop(F32ConvertI64S, I64, F32))
	add(cvtop(F32ConvertI64U, I64, F32))
	add(cvtop(F32DemoteF64, F64, F32))
	add(cvtop(F64ConvertI32S, I32, F64))
	add(cvtop(F64ConvertI32U, I32, F64))
	add(cvtop(F64ConvertI64S, I64, F64))
	add(cvtop(F64ConvertI64U, I64, F64))
	add(cvtop(F64PromoteF32, F32, F64))
	add(cvtop(I32ReinterpretF32, F32, I32))
	add(cvtop(I64ReinterpretF64, F64, I64))
	add(cvtop(F32ReinterpretI32, I32, F32))
	add(cvtop(F64ReinterpretI64, I64, F64))

	// sign extension

	add(unop(I32Extend8S, I32))
	add(unop(I32Extend16S, I32))
	add(unop(I64Extend8S, I64))
	add(unop(I64Extend16S, I64))
	add(unop(I64Extend32S, I64))

	// reference types, function references only appear in constant
	// expressions so bodies stick to null and the null test

	add(instrEntry{ // ref.null
		valid: func(b *codeBuilder) bool { return b.reftypes },
		gen: func(b *codeBuilder) {
			t := Type(FuncRef)
			if b.src.Bool() {
				t = ExternRef
			}

			b.stack = append(b.stack, t)
			b.emit(Instr{Op: RefNull, Type: t})
		},
	})

	add(instrEntry{ // ref.is_null
		valid: func(b *codeBuilder) bool {
			return b.reftypes && (b.have(FuncRef) || b.have(ExternRef))
		},
		gen: func(b *codeBuilder) {
			t := Type(FuncRef)
			if f := b.top(); len(b.stack) > f.height {
				t = b.stack[len(b.stack)-1]
			}

			b.popPush([]Type{t}, I32)
			b.emit(Instr{Op: RefIsNull})
		},
	})

	return t
}
