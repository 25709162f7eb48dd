package aot

import (
	"fmt"

	"github.com/chazu/luaot/pkg/bytecode"
)

// Branch target rules. pc is the zero-based position of the branching
// instruction; every rule yields a zero-based position in the same function.

// JumpTarget is the destination of JMP, and of the JMP that follows a test.
func JumpTarget(pc, sJ int) int { return pc + 1 + sJ }

// LoopBackTarget is where FORLOOP and TFORLOOP jump to continue the loop.
func LoopBackTarget(pc, bx int) int { return pc + 1 - bx }

// LoopSkipTarget is where FORPREP jumps when the loop body must not run.
func LoopSkipTarget(pc, bx int) int { return pc + 1 + bx + 1 }

// ForwardTarget is where TFORPREP jumps to reach its TFORCALL.
func ForwardTarget(pc, bx int) int { return pc + 1 + bx }

// labelName returns the C label of the instruction at pc.
func labelName(pc int) string {
	return fmt.Sprintf("label_%02d", pc)
}

// labels holds the resolved control flow of one function. It is built
// fresh for every function and never shared.
type labels struct {
	size     int
	nextJump []int // target of the JMP at pc+1, or -1
}

// resolveLabels computes and validates every branch target of p.
func resolveLabels(fn string, p *bytecode.Prototype) (*labels, error) {
	l := &labels{size: len(p.Code), nextJump: make([]int, len(p.Code))}

	for pc := range l.nextJump {
		l.nextJump[pc] = -1
		if next := pc + 1; next < l.size && p.Code[next].Opcode() == bytecode.OpJmp {
			l.nextJump[pc] = JumpTarget(next, p.Code[next].SJ())
		}
	}

	for pc, ins := range p.Code {
		op := ins.Opcode()
		jumpErr := func(target int, reason string) error {
			return &JumpError{Function: fn, PC: pc, Opcode: op, Target: target, Reason: reason}
		}

		var target int
		switch op {
		case bytecode.OpJmp:
			target = JumpTarget(pc, ins.SJ())
		case bytecode.OpForLoop, bytecode.OpTForLoop:
			target = LoopBackTarget(pc, ins.Bx())
		case bytecode.OpForPrep:
			target = LoopSkipTarget(pc, ins.Bx())
		case bytecode.OpTForPrep:
			target = ForwardTarget(pc, ins.Bx())
		case bytecode.OpLFalseSkip, bytecode.OpLoadKX:
			target = pc + 2
		default:
			if !op.IsTest() {
				continue
			}
			if l.nextJump[pc] < 0 {
				return nil, jumpErr(pc+1, "test instruction not followed by JMP")
			}
			target = pc + 2
		}

		if !l.inRange(target) {
			return nil, jumpErr(target, "")
		}
	}
	return l, nil
}

func (l *labels) inRange(pc int) bool {
	return pc >= 0 && pc < l.size
}

// NextJump returns the label the test at pc branches to, if any.
func (l *labels) NextJump(pc int) (string, bool) {
	if t := l.nextJump[pc]; t >= 0 && l.inRange(t) {
		return labelName(t), true
	}
	return "", false
}

// Skip1 returns the label of the instruction after the next one, if any.
func (l *labels) Skip1(pc int) (string, bool) {
	if l.inRange(pc + 2) {
		return labelName(pc + 2), true
	}
	return "", false
}
