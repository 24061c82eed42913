package compiler

import (
	"fmt"

	"github.com/flubbe/slang/pkg/bytecode"
)

// Label names a basic-block boundary during code generation. Jump
// instructions carry labels in their A operand until linearization
// resolves them to instruction indices.
type Label int32

type basicBlock struct {
	label Label
	code  []bytecode.Instr
	lines []bytecode.LineInfo
}

// terminated reports whether the block's last instruction transfers
// control unconditionally, so fallthrough no longer applies.
func (b *basicBlock) terminated() bool {
	if len(b.code) == 0 {
		return false
	}
	switch b.code[len(b.code)-1].Op {
	case bytecode.OpJmp, bytecode.OpRet, bytecode.OpRetVoid:
		return true
	}
	return false
}

// funcBuilder assembles one function as a graph of basic blocks in
// emission order. Blocks fall through to their successor unless they
// end in a jump or return; Finalize linearizes the blocks and patches
// label operands to instruction indices.
type funcBuilder struct {
	name      string
	numParams int
	numLocals int

	blocks []*basicBlock
	cur    *basicBlock
	next   Label
}

func newFuncBuilder(name string, numParams, numLocals int) *funcBuilder {
	b := &funcBuilder{name: name, numParams: numParams, numLocals: numLocals}
	b.cur = &basicBlock{label: b.newLabel()}
	b.blocks = append(b.blocks, b.cur)
	return b
}

func (b *funcBuilder) newLabel() Label {
	l := b.next
	b.next++
	return l
}

// bind starts a new block for l at the current position. The previous
// block falls through unless it already ended in a jump or return.
func (b *funcBuilder) bind(l Label) {
	b.cur = &basicBlock{label: l}
	b.blocks = append(b.blocks, b.cur)
}

func (b *funcBuilder) emit(loc Location, op bytecode.Opcode, operands ...int32) {
	ins := bytecode.Instr{Op: op}
	switch len(operands) {
	case 0:
	case 1:
		ins.A = operands[0]
	case 2:
		ins.A, ins.B = operands[0], operands[1]
	default:
		panic(fmt.Sprintf("emit %s: too many operands", op))
	}
	b.cur.code = append(b.cur.code, ins)
	b.cur.lines = append(b.cur.lines, bytecode.LineInfo{Line: int32(loc.Line), Col: int32(loc.Col)})
}

func (b *funcBuilder) jump(loc Location, l Label) {
	b.emit(loc, bytecode.OpJmp, int32(l))
}

func (b *funcBuilder) branchFalse(loc Location, l Label) {
	b.emit(loc, bytecode.OpJmpIfFalse, int32(l))
}

func (b *funcBuilder) branchTrue(loc Location, l Label) {
	b.emit(loc, bytecode.OpJmpIfTrue, int32(l))
}

// finalize linearizes the blocks in emission order and resolves jump
// labels to absolute instruction indices. A trailing unconditional jump
// to the immediately following block is elided.
func (b *funcBuilder) finalize() bytecode.Function {
	fn := bytecode.Function{
		Name:      b.name,
		NumParams: uint32(b.numParams),
		NumLocals: uint32(b.numLocals),
	}

	start := make(map[Label]int32, len(b.blocks))
	for i, blk := range b.blocks {
		code := blk.code
		lines := blk.lines
		if n := len(code); n > 0 && code[n-1].Op == bytecode.OpJmp &&
			i+1 < len(b.blocks) && Label(code[n-1].A) == b.blocks[i+1].label {
			code = code[:n-1]
			lines = lines[:n-1]
		}
		start[blk.label] = int32(len(fn.Code))
		fn.Code = append(fn.Code, code...)
		fn.Lines = append(fn.Lines, lines...)
	}

	for pc := range fn.Code {
		switch fn.Code[pc].Op {
		case bytecode.OpJmp, bytecode.OpJmpIfFalse, bytecode.OpJmpIfTrue:
			target, ok := start[Label(fn.Code[pc].A)]
			if !ok {
				panic(fmt.Sprintf("%s: unbound label %d", b.name, fn.Code[pc].A))
			}
			fn.Code[pc].A = target
		}
	}
	return fn
}
