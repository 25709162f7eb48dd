package aot

import (
	"fmt"

	"github.com/chazu/luaot/pkg/bytecode"
)

// eventNames lists metamethod events in TMS order (ltm.h).
var eventNames = []string{
	"__index", "__newindex", "__gc", "__mode", "__len", "__eq",
	"__add", "__sub", "__mul", "__mod", "__pow", "__div", "__idiv",
	"__band", "__bor", "__bxor", "__shl", "__shr",
	"__unm", "__bnot", "__lt", "__le", "__concat", "__call", "__close",
}

func eventName(c int) string {
	if c >= 0 && c < len(eventNames) {
		return eventNames[c]
	}
	return fmt.Sprintf("?%d", c)
}

// annotation is the luac -l description of one instruction.
type annotation struct {
	PC       int // one-based
	Line     int // -1 when unknown
	Opcode   bytecode.Opcode
	Operands string
	Extra    string
	HasExtra bool
}

// LineText returns the bracketed source line column.
func (a annotation) LineText() string {
	if a.Line > 0 {
		return fmt.Sprintf("[%d]", a.Line)
	}
	return "[-]"
}

// String renders the annotation as a C line comment.
func (a annotation) String() string {
	s := fmt.Sprintf("  // %d\t%s\t%-9s\t%s", a.PC, a.LineText(), a.Opcode, a.Operands)
	if a.HasExtra {
		s += "\t; " + a.Extra
	}
	return s
}

// annotate describes the instruction at pc. closureName names the
// generated function of a child prototype.
func annotate(p *bytecode.Prototype, pc int, closureName func(int) string) annotation {
	ins := p.Code[pc]
	op := ins.Opcode()
	a, b, c := ins.A(), ins.B(), ins.C()
	bx, sb, sc, sbx := ins.Bx(), ins.SB(), ins.SC(), ins.SBx()
	isk := ins.K()

	ann := annotation{PC: pc + 1, Line: p.LineAt(pc), Opcode: op}
	operands := func(format string, args ...any) {
		ann.Operands = fmt.Sprintf(format, args...)
	}
	extra := func(format string, args ...any) {
		ann.Extra = fmt.Sprintf(format, args...)
		ann.HasExtra = true
	}
	kst := func(i int) string {
		if i < 0 || i >= len(p.Constants) {
			return fmt.Sprintf("?%d", i)
		}
		return RenderConstant(p.Constants[i])
	}
	ksuffix := ""
	if isk != 0 {
		ksuffix = "k"
	}

	switch op {
	case bytecode.OpMove:
		operands("%d %d", a, b)
	case bytecode.OpLoadI, bytecode.OpLoadF:
		operands("%d %d", a, sbx)
	case bytecode.OpLoadK:
		operands("%d %d", a, bx)
		extra("%s", kst(bx))
	case bytecode.OpLoadKX, bytecode.OpLoadFalse, bytecode.OpLFalseSkip, bytecode.OpLoadTrue:
		operands("%d", a)
	case bytecode.OpLoadNil:
		operands("%d %d", a, b)
		extra("%d out", b+1)
	case bytecode.OpGetUpval, bytecode.OpSetUpval:
		operands("%d %d", a, b)
		extra("%s", p.UpvalueName(b))
	case bytecode.OpGetTabUp:
		operands("%d %d %d", a, b, c)
		extra("%s %s", p.UpvalueName(b), kst(c))
	case bytecode.OpGetTable, bytecode.OpGetI, bytecode.OpNewTable:
		operands("%d %d %d", a, b, c)
	case bytecode.OpGetField:
		operands("%d %d %d", a, b, c)
		extra("%s", kst(c))
	case bytecode.OpSetTabUp:
		operands("%d %d %d%s", a, b, c, ksuffix)
		if isk != 0 {
			extra("%s %s %s", p.UpvalueName(a), kst(b), kst(c))
		} else {
			extra("%s %s", p.UpvalueName(a), kst(b))
		}
	case bytecode.OpSetTable, bytecode.OpSetI, bytecode.OpSelf:
		operands("%d %d %d%s", a, b, c, ksuffix)
		if isk != 0 {
			extra("%s", kst(c))
		}
	case bytecode.OpSetField:
		operands("%d %d %d%s", a, b, c, ksuffix)
		if isk != 0 {
			extra("%s %s", kst(b), kst(c))
		} else {
			extra("%s", kst(b))
		}
	case bytecode.OpAddI, bytecode.OpShrI, bytecode.OpShlI:
		operands("%d %d %d", a, b, sc)
	case bytecode.OpAddK, bytecode.OpSubK, bytecode.OpMulK, bytecode.OpModK,
		bytecode.OpPowK, bytecode.OpDivK, bytecode.OpIDivK,
		bytecode.OpBAndK, bytecode.OpBOrK, bytecode.OpBXorK:
		operands("%d %d %d", a, b, c)
		extra("%s", kst(c))
	case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpMod,
		bytecode.OpPow, bytecode.OpDiv, bytecode.OpIDiv,
		bytecode.OpBAnd, bytecode.OpBOr, bytecode.OpBXor,
		bytecode.OpShl, bytecode.OpShr:
		operands("%d %d %d", a, b, c)
	case bytecode.OpMMBin:
		operands("%d %d %d", a, b, c)
		extra("%s", eventName(c))
	case bytecode.OpMMBinI:
		operands("%d %d %d", a, sb, c)
		extra("%s", eventName(c))
	case bytecode.OpMMBinK:
		operands("%d %d %d", a, b, c)
		extra("%s %s", eventName(c), kst(b))
	case bytecode.OpUnm, bytecode.OpBNot, bytecode.OpNot, bytecode.OpLen, bytecode.OpConcat:
		operands("%d %d", a, b)
	case bytecode.OpClose, bytecode.OpTBC, bytecode.OpReturn1, bytecode.OpVarargPrep:
		operands("%d", a)
	case bytecode.OpJmp:
		operands("%d", ins.SJ())
		extra("to %d", JumpTarget(pc, ins.SJ())+1)
	case bytecode.OpEq, bytecode.OpLt, bytecode.OpLe, bytecode.OpTestSet:
		operands("%d %d %d", a, b, isk)
	case bytecode.OpEqK:
		operands("%d %d %d", a, b, isk)
		extra("%s", kst(b))
	case bytecode.OpEqI, bytecode.OpLtI, bytecode.OpLeI, bytecode.OpGtI, bytecode.OpGeI:
		operands("%d %d %d", a, sb, isk)
	case bytecode.OpTest:
		operands("%d %d", a, isk)
	case bytecode.OpCall:
		operands("%d %d %d", a, b, c)
		extra("%s %s", inText(b), outText(c))
	case bytecode.OpTailCall:
		operands("%d %d %d", a, b, c)
		extra("%d in", b-1)
	case bytecode.OpReturn:
		operands("%d %d %d", a, b, c)
		extra("%s", outText(b))
	case bytecode.OpReturn0:
	case bytecode.OpForLoop, bytecode.OpTForLoop:
		operands("%d %d", a, bx)
		extra("to %d", LoopBackTarget(pc, bx)+1)
	case bytecode.OpForPrep, bytecode.OpTForPrep:
		operands("%d %d", a, bx)
		extra("to %d", ForwardTarget(pc, bx)+1)
	case bytecode.OpTForCall:
		operands("%d %d", a, c)
	case bytecode.OpSetList:
		operands("%d %d %d", a, b, c)
	case bytecode.OpClosure:
		operands("%d %d", a, bx)
		extra("%s", closureName(bx))
	case bytecode.OpVararg:
		operands("%d %d", a, c)
		extra("%s", outText(c))
	case bytecode.OpExtraArg:
		operands("%d", ins.Ax())
	default:
		operands("%d %d %d", a, b, c)
		extra("not handled")
	}
	return ann
}

// outText renders a luac result count: n-1 results, or "all" when n is 0.
func outText(n int) string {
	if n == 0 {
		return "all out"
	}
	return fmt.Sprintf("%d out", n-1)
}

func inText(n int) string {
	if n == 0 {
		return "all in"
	}
	return fmt.Sprintf("%d in", n-1)
}
