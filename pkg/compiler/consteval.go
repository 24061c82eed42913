package compiler

import (
	"github.com/flubbe/slang/pkg/bytecode"
)

// evalConst folds a type-checked expression into its compile-time
// value. It returns false when the expression is not constant, or when
// folding it would trap at run time (division by zero). Arithmetic here
// must agree bit-for-bit with the interpreter: i32 wraps, shifts mask
// the count, and f32 narrowing saturates.
func evalConst(e Expr) (ConstValue, bool) {
	switch n := e.(type) {
	case *IntLit:
		return ConstValue{I: n.Value}, true
	case *FloatLit:
		return ConstValue{F: n.Value}, true
	case *BoolLit:
		return ConstValue{B: n.Value}, true
	case *StringLit:
		return ConstValue{S: n.Value}, true

	case *VarRef:
		if n.Sym != nil && n.Sym.Kind == SymConst {
			return n.Sym.Const, true
		}
		return ConstValue{}, false

	case *UnaryExpr:
		return evalConstUnary(n)
	case *BinaryExpr:
		return evalConstBinary(n)

	case *LogicalExpr:
		l, ok := evalConst(n.Left)
		if !ok {
			return ConstValue{}, false
		}
		// Short-circuit: the right side only matters when reached.
		if n.Op == AND_LOGICAL && !l.B {
			return ConstValue{B: false}, true
		}
		if n.Op == OR_LOGICAL && l.B {
			return ConstValue{B: true}, true
		}
		return evalConst(n.Right)

	case *CastExpr:
		v, ok := evalConst(n.Expr)
		if !ok {
			return ConstValue{}, false
		}
		from := n.Expr.ResultType()
		to := n.ResultType()
		if from.Kind == to.Kind {
			return v, true
		}
		switch {
		case from.Kind == TypeI32 && to.Kind == TypeF32:
			return ConstValue{F: float32(v.I)}, true
		case from.Kind == TypeF32 && to.Kind == TypeI32:
			return ConstValue{I: bytecode.F32ToI32(v.F)}, true
		case from.Kind == TypeBool && to.Kind == TypeI32:
			if v.B {
				return ConstValue{I: 1}, true
			}
			return ConstValue{I: 0}, true
		}
		return ConstValue{}, false

	default:
		return ConstValue{}, false
	}
}

func evalConstUnary(n *UnaryExpr) (ConstValue, bool) {
	v, ok := evalConst(n.Right)
	if !ok {
		return ConstValue{}, false
	}
	switch n.Op {
	case MINUS:
		if n.Right.ResultType().Kind == TypeF32 {
			return ConstValue{F: -v.F}, true
		}
		return ConstValue{I: -v.I}, true
	case NOT:
		return ConstValue{B: !v.B}, true
	case TILDE:
		return ConstValue{I: ^v.I}, true
	}
	return ConstValue{}, false
}

func evalConstBinary(n *BinaryExpr) (ConstValue, bool) {
	l, ok := evalConst(n.Left)
	if !ok {
		return ConstValue{}, false
	}
	r, ok := evalConst(n.Right)
	if !ok {
		return ConstValue{}, false
	}

	switch n.Left.ResultType().Kind {
	case TypeI32:
		return evalConstI32(n.Op, l.I, r.I)
	case TypeF32:
		return evalConstF32(n.Op, l.F, r.F)
	case TypeBool:
		switch n.Op {
		case EQUALS:
			return ConstValue{B: l.B == r.B}, true
		case NOT_EQ:
			return ConstValue{B: l.B != r.B}, true
		}
	case TypeStr:
		switch n.Op {
		case PLUS:
			return ConstValue{S: l.S + r.S}, true
		case EQUALS:
			return ConstValue{B: l.S == r.S}, true
		case NOT_EQ:
			return ConstValue{B: l.S != r.S}, true
		}
	}
	return ConstValue{}, false
}

func evalConstI32(op TokenType, a, b int32) (ConstValue, bool) {
	switch op {
	case PLUS:
		return ConstValue{I: a + b}, true
	case MINUS:
		return ConstValue{I: a - b}, true
	case STAR:
		return ConstValue{I: a * b}, true
	case SLASH:
		if b == 0 {
			return ConstValue{}, false
		}
		return ConstValue{I: a / b}, true
	case PERCENT:
		if b == 0 {
			return ConstValue{}, false
		}
		return ConstValue{I: a % b}, true
	case AND:
		return ConstValue{I: a & b}, true
	case PIPE:
		return ConstValue{I: a | b}, true
	case CARET:
		return ConstValue{I: a ^ b}, true
	case SHL_OP:
		return ConstValue{I: bytecode.I32Shl(a, b)}, true
	case SHR_OP:
		return ConstValue{I: bytecode.I32Shr(a, b)}, true
	case EQUALS:
		return ConstValue{B: a == b}, true
	case NOT_EQ:
		return ConstValue{B: a != b}, true
	case LESS:
		return ConstValue{B: a < b}, true
	case LESS_EQ:
		return ConstValue{B: a <= b}, true
	case GREATER:
		return ConstValue{B: a > b}, true
	case GREATER_EQ:
		return ConstValue{B: a >= b}, true
	}
	return ConstValue{}, false
}

func evalConstF32(op TokenType, a, b float32) (ConstValue, bool) {
	switch op {
	case PLUS:
		return ConstValue{F: a + b}, true
	case MINUS:
		return ConstValue{F: a - b}, true
	case STAR:
		return ConstValue{F: a * b}, true
	case SLASH:
		return ConstValue{F: a / b}, true
	case EQUALS:
		return ConstValue{B: a == b}, true
	case NOT_EQ:
		return ConstValue{B: a != b}, true
	case LESS:
		return ConstValue{B: a < b}, true
	case LESS_EQ:
		return ConstValue{B: a <= b}, true
	case GREATER:
		return ConstValue{B: a > b}, true
	case GREATER_EQ:
		return ConstValue{B: a >= b}, true
	}
	return ConstValue{}, false
}
