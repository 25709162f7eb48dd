package bytecode

import (
	"errors"
	"testing"
)

func TestOpcodeCount(t *testing.T) {
	if NumOpcodes != 83 {
		t.Errorf("NumOpcodes = %d, want 83", NumOpcodes)
	}
	if OpExtraArg != 82 {
		t.Errorf("OpExtraArg = %d, want 82", OpExtraArg)
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpMove, "MOVE"},
		{OpLoadI, "LOADI"},
		{OpLFalseSkip, "LFALSESKIP"},
		{OpGetTabUp, "GETTABUP"},
		{OpMMBinK, "MMBINK"},
		{OpJmp, "JMP"},
		{OpTestSet, "TESTSET"},
		{OpReturn1, "RETURN1"},
		{OpForPrep, "FORPREP"},
		{OpTForLoop, "TFORLOOP"},
		{OpVarargPrep, "VARARGPREP"},
		{OpExtraArg, "EXTRAARG"},
		{Opcode(100), "UNKNOWN_100"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Opcode(%d).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestAllOpcodesHaveMetadata(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < NumOpcodes; i++ {
		info := Opcode(i).Info()
		if info.Name == "" {
			t.Errorf("Opcode %d has no name", i)
		}
		if seen[info.Name] {
			t.Errorf("duplicate opcode name %s", info.Name)
		}
		seen[info.Name] = true

		op, ok := LookupOpcode(info.Name)
		if !ok || op != Opcode(i) {
			t.Errorf("LookupOpcode(%q) = %d, %v", info.Name, op, ok)
		}
	}
}

func TestIsTest(t *testing.T) {
	tests := map[Opcode]bool{
		OpEq: true, OpLt: true, OpLe: true, OpEqK: true, OpEqI: true,
		OpLtI: true, OpLeI: true, OpGtI: true, OpGeI: true,
		OpTest: true, OpTestSet: true,
		OpJmp: false, OpMove: false, OpForLoop: false, OpNot: false,
	}
	for op, want := range tests {
		if got := op.IsTest(); got != want {
			t.Errorf("%s.IsTest() = %v, want %v", op, got, want)
		}
	}
}

func TestInstructionABC(t *testing.T) {
	ins := CreateABCk(OpAdd, 1, 2, 3, 1)

	if ins.Opcode() != OpAdd {
		t.Errorf("Opcode = %s, want ADD", ins.Opcode())
	}
	if ins.A() != 1 || ins.B() != 2 || ins.C() != 3 || ins.K() != 1 {
		t.Errorf("fields = %d %d %d %d, want 1 2 3 1", ins.A(), ins.B(), ins.C(), ins.K())
	}

	max := CreateABCk(OpMove, MaxArgA, MaxArgB, MaxArgC, 0)
	if max.A() != 255 || max.B() != 255 || max.C() != 255 || max.K() != 0 {
		t.Errorf("max fields = %d %d %d %d", max.A(), max.B(), max.C(), max.K())
	}
	if max.Opcode() != OpMove {
		t.Errorf("max Opcode = %s", max.Opcode())
	}
}

func TestInstructionSignedFields(t *testing.T) {
	tests := []struct {
		name string
		ins  Instruction
		get  func(Instruction) int
		want int
	}{
		{"sBx positive", CreateAsBx(OpLoadI, 0, 42), Instruction.SBx, 42},
		{"sBx negative", CreateAsBx(OpLoadI, 0, -7), Instruction.SBx, -7},
		{"sBx min", CreateAsBx(OpLoadI, 0, -OffsetSBx), Instruction.SBx, -65535},
		{"sJ forward", CreateSJ(OpJmp, 3), Instruction.SJ, 3},
		{"sJ backward", CreateSJ(OpJmp, -12), Instruction.SJ, -12},
		{"sB", CreateABCk(OpEqI, 0, 5+OffsetSC, 0, 0), Instruction.SB, 5},
		{"sB negative", CreateABCk(OpEqI, 0, OffsetSC-1, 0, 0), Instruction.SB, -1},
		{"sC", CreateABCk(OpAddI, 0, 0, OffsetSC-3, 0), Instruction.SC, -3},
		{"Bx", CreateABx(OpForLoop, 2, 6), Instruction.Bx, 6},
		{"Bx max", CreateABx(OpLoadK, 0, MaxArgBx), Instruction.Bx, 131071},
		{"Ax", CreateAx(OpExtraArg, 1 << 20), Instruction.Ax, 1 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.get(tt.ins); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestInstructionKnownWord(t *testing.T) {
	// FORPREP 1 3 as emitted by luac 5.4 for "for i=1,5 do end".
	ins := Instruction(0x000180ca)
	if ins.Opcode() != OpForPrep {
		t.Fatalf("Opcode = %s, want FORPREP", ins.Opcode())
	}
	if ins.A() != 1 || ins.Bx() != 3 {
		t.Errorf("A=%d Bx=%d, want 1 3", ins.A(), ins.Bx())
	}
	if ins.String() != "FORPREP 1 3" {
		t.Errorf("String() = %q", ins.String())
	}
}

func TestDecode(t *testing.T) {
	ins, err := Decode(uint32(CreateABCk(OpReturn0, 0, 1, 1, 0)))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ins.Opcode() != OpReturn0 {
		t.Errorf("Opcode = %s, want RETURN0", ins.Opcode())
	}

	_, err = Decode(0x7f)
	if !errors.Is(err, ErrUnknownOpcode) {
		t.Errorf("Decode(0x7f) error = %v, want ErrUnknownOpcode", err)
	}
}
