package bytecode

import (
	"errors"
	"fmt"
)

// Field sizes and positions of the Lua 5.4 instruction format.
//
//	        3 3 2 2 2 2 2 2 2 2 2 2 1 1 1 1 1 1 1 1 1 1 0 0 0 0 0 0 0 0 0 0
//	        1 0 9 8 7 6 5 4 3 2 1 0 9 8 7 6 5 4 3 2 1 0 9 8 7 6 5 4 3 2 1 0
//	iABC          C(8)     |      B(8)     |k|     A(8)      |   Op(7)     |
//	iABx                Bx(17)               |     A(8)      |   Op(7)     |
//	iAsBx              sBx (signed)(17)      |     A(8)      |   Op(7)     |
//	iAx                           Ax(25)                     |   Op(7)     |
//	isJ                           sJ (signed)(25)            |   Op(7)     |
const (
	SizeOp = 7
	SizeA  = 8
	SizeB  = 8
	SizeC  = 8
	SizeBx = SizeC + SizeB + 1
	SizeAx = SizeBx + SizeA
	SizeSJ = SizeBx + SizeA

	PosOp = 0
	PosA  = PosOp + SizeOp
	PosK  = PosA + SizeA
	PosB  = PosK + 1
	PosC  = PosB + SizeB
	PosBx = PosK
	PosAx = PosA
	PosSJ = PosA

	MaxArgA  = 1<<SizeA - 1
	MaxArgB  = 1<<SizeB - 1
	MaxArgC  = 1<<SizeC - 1
	MaxArgBx = 1<<SizeBx - 1
	MaxArgAx = 1<<SizeAx - 1
	MaxArgSJ = 1<<SizeSJ - 1

	// Signed fields are stored in excess-K notation.
	OffsetSBx = MaxArgBx >> 1
	OffsetSJ  = MaxArgSJ >> 1
	OffsetSC  = MaxArgC >> 1
)

// ErrUnknownOpcode is returned when an instruction carries an opcode
// outside the Lua 5.4 set.
var ErrUnknownOpcode = errors.New("unknown opcode")

// Instruction is one encoded 32-bit Lua 5.4 instruction.
// All accessors are pure functions of the word.
type Instruction uint32

func (i Instruction) field(pos, size uint) int {
	return int((uint32(i) >> pos) & (1<<size - 1))
}

// Opcode returns the operation tag.
func (i Instruction) Opcode() Opcode { return Opcode(i.field(PosOp, SizeOp)) }

// A returns the A register field.
func (i Instruction) A() int { return i.field(PosA, SizeA) }

// B returns the B field.
func (i Instruction) B() int { return i.field(PosB, SizeB) }

// C returns the C field.
func (i Instruction) C() int { return i.field(PosC, SizeC) }

// K returns the alternate-interpretation flag bit.
func (i Instruction) K() int { return i.field(PosK, 1) }

// Bx returns the wide unsigned field.
func (i Instruction) Bx() int { return i.field(PosBx, SizeBx) }

// Ax returns the widest unsigned field.
func (i Instruction) Ax() int { return i.field(PosAx, SizeAx) }

// SB returns B as a signed immediate.
func (i Instruction) SB() int { return i.B() - OffsetSC }

// SC returns C as a signed immediate.
func (i Instruction) SC() int { return i.C() - OffsetSC }

// SBx returns Bx as a signed value.
func (i Instruction) SBx() int { return i.Bx() - OffsetSBx }

// SJ returns the signed jump offset.
func (i Instruction) SJ() int { return i.field(PosSJ, SizeSJ) - OffsetSJ }

// String renders the instruction as mnemonic plus raw fields, for debugging.
func (i Instruction) String() string {
	op := i.Opcode()
	switch op.Info().Mode {
	case ModeABx:
		return fmt.Sprintf("%s %d %d", op, i.A(), i.Bx())
	case ModeAsBx:
		return fmt.Sprintf("%s %d %d", op, i.A(), i.SBx())
	case ModeAx:
		return fmt.Sprintf("%s %d", op, i.Ax())
	case ModeSJ:
		return fmt.Sprintf("%s %d", op, i.SJ())
	default:
		return fmt.Sprintf("%s %d %d %d %d", op, i.A(), i.B(), i.C(), i.K())
	}
}

// Decode validates a raw instruction word.
func Decode(word uint32) (Instruction, error) {
	i := Instruction(word)
	if !i.Opcode().Valid() {
		return i, fmt.Errorf("%w %d in instruction 0x%08x", ErrUnknownOpcode, uint8(i.Opcode()), word)
	}
	return i, nil
}

// CreateABCk encodes an iABC instruction.
func CreateABCk(op Opcode, a, b, c, k int) Instruction {
	return Instruction(uint32(op)<<PosOp |
		uint32(a)<<PosA |
		uint32(b)<<PosB |
		uint32(c)<<PosC |
		uint32(k)<<PosK)
}

// CreateABx encodes an iABx instruction.
func CreateABx(op Opcode, a, bx int) Instruction {
	return Instruction(uint32(op)<<PosOp | uint32(a)<<PosA | uint32(bx)<<PosBx)
}

// CreateAsBx encodes an iAsBx instruction.
func CreateAsBx(op Opcode, a, sbx int) Instruction {
	return CreateABx(op, a, sbx+OffsetSBx)
}

// CreateAx encodes an iAx instruction.
func CreateAx(op Opcode, ax int) Instruction {
	return Instruction(uint32(op)<<PosOp | uint32(ax)<<PosAx)
}

// CreateSJ encodes an isJ instruction.
func CreateSJ(op Opcode, sj int) Instruction {
	return Instruction(uint32(op)<<PosOp | uint32(sj+OffsetSJ)<<PosSJ)
}
