package wasmgen

import (
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

type (
	InstructionsDecoder struct {
		LowDecoder
	}

	UnsupportedOpcodeError struct {
		Opcode Opcode
		Args   []byte
	}
)

// Expr parses a single-instruction constant expression with its End.
func (d *InstructionsDecoder) Expr(b []byte, st int) (in Instr, i int, err error) {
	in, i, err = d.Instr(b, st)
	if err != nil {
		return in, i, err
	}

	op, i, err := d.Byte(b, i)
	if err != nil {
		return in, i, err
	}

	if Opcode(op) != End {
		return in, i - 1, errors.New("expected end, got %v", Opcode(op))
	}

	return in, i, nil
}

// Body parses instructions up to and including the End closing the
// implicit function block.
func (d *InstructionsDecoder) Body(b []byte, st int) (code []Instr, i int, err error) {
	i = st
	depth := 0

	for i < len(b) {
		opst := i

		var in Instr

		in, i, err = d.Instr(b, i)

		tlog.V("opcode").Printw("opcode", "i", tlog.NextAsHex, opst, "op", in, "code", tlog.NextAsHex, b[opst:i])

		if err != nil {
			return nil, opst, err
		}

		code = append(code, in)

		switch in.Op {
		case Block, Loop, If:
			depth++
		case End:
			depth--
		}

		if depth < 0 {
			return code, i, nil
		}
	}

	return nil, st, ErrUnexpectedEOF
}

// Func parses a code section entry, b must be exactly the entry payload.
func (d *InstructionsDecoder) Func(b []byte) (c Code, err error) {
	l, i, err := d.Int(b, 0)
	if err != nil {
		return c, err
	}

	var cnt int
	var tp byte

	for n := 0; n < l; n++ {
		cnt, i, err = d.Int(b, i)
		if err != nil {
			return c, err
		}

		tp, i, err = d.Byte(b, i)
		if err != nil {
			return c, err
		}

		for j := 0; j < cnt; j++ {
			c.Locals = append(c.Locals, Type(tp))
		}
	}

	c.Body, i, err = d.Body(b, i)
	if err != nil {
		return c, errors.Wrap(err, "body")
	}

	if i != len(b) {
		return c, ErrSizeMismatch
	}

	return c, nil
}

// Instr parses one instruction with its immediates.
func (d *InstructionsDecoder) Instr(b []byte, st int) (in Instr, i int, err error) {
	opst := st

	op, i, err := d.Byte(b, st)
	if err != nil {
		return in, i, err
	}

	in.Op = Opcode(op)

	switch {
	case in.Op <= Nop || in.Op == Else || in.Op == End || in.Op == Ret:
	case in.Op == Block || in.Op == Loop || in.Op == If:
		in.Block, i, err = d.BlockType(b, i)
	case in.Op == Br || in.Op == BrIf:
		in.A, i, err = d.immInt(b, i)
	case in.Op == BrTable:
		var l, t int

		l, i, err = d.Int(b, i)
		if err != nil {
			break
		}

		in.Targets = make([]Index, l)

		for j := 0; j < l; j++ {
			t, i, err = d.Int(b, i)
			if err != nil {
				break
			}

			in.Targets[j] = Index(t)
		}
		if err != nil {
			break
		}

		in.A, i, err = d.immInt(b, i)
	case in.Op == Call:
		in.A, i, err = d.immInt(b, i)
	case in.Op == CallIndir:
		in.A, i, err = d.immInt(b, i)
		if err != nil {
			break
		}

		in.B, i, err = d.immInt(b, i)
	case in.Op == Drop || in.Op == Select:
	case in.Op >= LocalGet && in.Op <= GlobalSet:
		in.A, i, err = d.immInt(b, i)
	case in.Op >= I32Load && in.Op <= I64Store32:
		in.A, i, err = d.immInt(b, i)
		if err != nil {
			break
		}

		in.B, i, err = d.immInt(b, i)
	case in.Op == MemorySize || in.Op == MemoryGrow:
		_, i, err = d.Byte(b, i)
	case in.Op == I32Const || in.Op == I64Const:
		in.A, i, err = d.Int64(b, i)
	case in.Op == F32Const:
		var bits uint32

		bits, i, err = d.Float32(b, i)
		in.A = int64(bits)
	case in.Op == F64Const:
		var bits uint64

		bits, i, err = d.Float64(b, i)
		in.A = int64(bits)
	case in.Op >= I32EqZ && in.Op <= I64Extend32S:
	case in.Op == RefNull:
		var tp byte

		tp, i, err = d.Byte(b, i)
		in.Type = Type(tp)
	case in.Op == RefIsNull:
	case in.Op == RefFunc:
		in.A, i, err = d.immInt(b, i)
	case in.Op == FCExt:
		in.Sub, i, err = d.fcExt(b, i)
	default:
		err = UnsupportedOpcodeError{Opcode: in.Op}
	}

	if err != nil {
		return in, opst, errors.Wrap(err, "%v", in.Op)
	}

	return in, i, nil
}

func (d *InstructionsDecoder) BlockType(b []byte, st int) (bt BlockType, i int, err error) {
	c, i, err := d.Byte(b, st)
	if err != nil {
		return bt, i, err
	}

	switch c {
	case BlockVoid:
		return BlockType{Kind: BlockEmpty}, i, nil
	case I32, I64, F32, F64, FuncRef, ExternRef:
		return BlockType{Kind: BlockResult, Result: Type(c)}, i, nil
	}

	// s33 type index
	v, i, err := d.Int64(b, st)
	if err != nil {
		return bt, i, err
	}

	if v < 0 {
		return bt, st, errors.New("unsupported block type: %x", v)
	}

	return BlockType{Kind: BlockFunc, Func: Index(v)}, i, nil
}

func (d *InstructionsDecoder) immInt(b []byte, st int) (v int64, i int, err error) {
	x, i, err := d.Uint64(b, st)

	return int64(x), i, err
}

func (d *InstructionsDecoder) fcExt(b []byte, st int) (sub byte, i int, err error) {
	sub, i, err = d.Byte(b, st)
	if err != nil {
		return
	}

	switch sub {
	case FCMemoryCopy:
		if st+3 > len(b) {
			return sub, st, ErrUnexpectedEOF
		}

		return sub, i + 2, nil
	case FCMemoryFill:
		if st+2 > len(b) {
			return sub, st, ErrUnexpectedEOF
		}

		return sub, i + 1, nil
	}

	return sub, st, UnsupportedOpcodeError{Opcode: FCExt, Args: b[st:i]}
}

func (e UnsupportedOpcodeError) Error() string {
	return fmt.Sprintf("unsupported opcode: %v [% 02x]", e.Opcode, e.Args)
}
