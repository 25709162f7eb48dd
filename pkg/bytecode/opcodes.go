package bytecode

import "fmt"

// Opcode is the 7-bit operation tag of a Lua 5.4 instruction.
// Values follow the order of lopcodes.h; the numbering is part of the
// binary chunk format and must not change.
type Opcode uint8

const (
	// ========================================================================
	// Loads and moves
	// ========================================================================

	OpMove       Opcode = iota // R[A] := R[B]
	OpLoadI                    // R[A] := sBx
	OpLoadF                    // R[A] := (lua_Number)sBx
	OpLoadK                    // R[A] := K[Bx]
	OpLoadKX                   // R[A] := K[extra arg]
	OpLoadFalse                // R[A] := false
	OpLFalseSkip               // R[A] := false; pc++
	OpLoadTrue                 // R[A] := true
	OpLoadNil                  // R[A], R[A+1], ..., R[A+B] := nil
	OpGetUpval                 // R[A] := UpValue[B]
	OpSetUpval                 // UpValue[B] := R[A]

	// ========================================================================
	// Table access
	// ========================================================================

	OpGetTabUp // R[A] := UpValue[B][K[C]:string]
	OpGetTable // R[A] := R[B][R[C]]
	OpGetI     // R[A] := R[B][C]
	OpGetField // R[A] := R[B][K[C]:string]
	OpSetTabUp // UpValue[A][K[B]:string] := RK(C)
	OpSetTable // R[A][R[B]] := RK(C)
	OpSetI     // R[A][B] := RK(C)
	OpSetField // R[A][K[B]:string] := RK(C)
	OpNewTable // R[A] := {}
	OpSelf     // R[A+1] := R[B]; R[A] := R[B][RK(C):string]

	// ========================================================================
	// Arithmetic with immediate or constant operand
	// ========================================================================

	OpAddI  // R[A] := R[B] + sC
	OpAddK  // R[A] := R[B] + K[C]:number
	OpSubK  // R[A] := R[B] - K[C]:number
	OpMulK  // R[A] := R[B] * K[C]:number
	OpModK  // R[A] := R[B] % K[C]:number
	OpPowK  // R[A] := R[B] ^ K[C]:number
	OpDivK  // R[A] := R[B] / K[C]:number
	OpIDivK // R[A] := R[B] // K[C]:number
	OpBAndK // R[A] := R[B] & K[C]:integer
	OpBOrK  // R[A] := R[B] | K[C]:integer
	OpBXorK // R[A] := R[B] ~ K[C]:integer
	OpShrI  // R[A] := R[B] >> sC
	OpShlI  // R[A] := sC << R[B]

	// ========================================================================
	// Arithmetic on registers
	// ========================================================================

	OpAdd  // R[A] := R[B] + R[C]
	OpSub  // R[A] := R[B] - R[C]
	OpMul  // R[A] := R[B] * R[C]
	OpMod  // R[A] := R[B] % R[C]
	OpPow  // R[A] := R[B] ^ R[C]
	OpDiv  // R[A] := R[B] / R[C]
	OpIDiv // R[A] := R[B] // R[C]
	OpBAnd // R[A] := R[B] & R[C]
	OpBOr  // R[A] := R[B] | R[C]
	OpBXor // R[A] := R[B] ~ R[C]
	OpShl  // R[A] := R[B] << R[C]
	OpShr  // R[A] := R[B] >> R[C]

	// ========================================================================
	// Metamethod fallbacks
	// ========================================================================

	OpMMBin  // call C metamethod over R[A] and R[B]
	OpMMBinI // call C metamethod over R[A] and sB
	OpMMBinK // call C metamethod over R[A] and K[B]

	// ========================================================================
	// Unary operations
	// ========================================================================

	OpUnm    // R[A] := -R[B]
	OpBNot   // R[A] := ~R[B]
	OpNot    // R[A] := not R[B]
	OpLen    // R[A] := #R[B] (length operator)
	OpConcat // R[A] := R[A].. ... ..R[A + B - 1]

	// ========================================================================
	// Control flow
	// ========================================================================

	OpClose   // close all upvalues >= R[A]
	OpTBC     // mark variable A "to be closed"
	OpJmp     // pc += sJ
	OpEq      // if ((R[A] == R[B]) ~= k) then pc++
	OpLt      // if ((R[A] <  R[B]) ~= k) then pc++
	OpLe      // if ((R[A] <= R[B]) ~= k) then pc++
	OpEqK     // if ((R[A] == K[B]) ~= k) then pc++
	OpEqI     // if ((R[A] == sB) ~= k) then pc++
	OpLtI     // if ((R[A] < sB) ~= k) then pc++
	OpLeI     // if ((R[A] <= sB) ~= k) then pc++
	OpGtI     // if ((R[A] > sB) ~= k) then pc++
	OpGeI     // if ((R[A] >= sB) ~= k) then pc++
	OpTest    // if (not R[A] == k) then pc++
	OpTestSet // if (not R[B] == k) then pc++ else R[A] := R[B]

	// ========================================================================
	// Calls and returns
	// ========================================================================

	OpCall     // R[A], ... ,R[A+C-2] := R[A](R[A+1], ... ,R[A+B-1])
	OpTailCall // return R[A](R[A+1], ... ,R[A+B-1])
	OpReturn   // return R[A], ... ,R[A+B-2]
	OpReturn0  // return
	OpReturn1  // return R[A]

	// ========================================================================
	// Loops
	// ========================================================================

	OpForLoop  // update counters; if loop continues then pc-=Bx;
	OpForPrep  // <check values and prepare counters>; if not to run then pc+=Bx+1;
	OpTForPrep // create upvalue for R[A + 3]; pc+=Bx
	OpTForCall // R[A+4], ... ,R[A+3+C] := R[A](R[A+1], R[A+2]);
	OpTForLoop // if R[A+2] ~= nil then { R[A]=R[A+2]; pc -= Bx }

	// ========================================================================
	// Miscellaneous
	// ========================================================================

	OpSetList    // R[A][C+i] := R[A+i], 1 <= i <= B
	OpClosure    // R[A] := closure(KPROTO[Bx])
	OpVararg     // R[A], R[A+1], ..., R[A+C-2] = vararg
	OpVarargPrep // (adjust vararg parameters)
	OpExtraArg   // extra (larger) argument for previous opcode

	// NumOpcodes is the number of defined opcodes.
	NumOpcodes = int(OpExtraArg) + 1
)

// OpMode describes how an instruction word is split into operand fields.
type OpMode uint8

const (
	ModeABC  OpMode = iota // A B C k
	ModeABx                // A Bx
	ModeAsBx               // A sBx
	ModeAx                 // Ax
	ModeSJ                 // sJ
)

// String returns the lopcodes.h name of the mode.
func (m OpMode) String() string {
	switch m {
	case ModeABC:
		return "iABC"
	case ModeABx:
		return "iABx"
	case ModeAsBx:
		return "iAsBx"
	case ModeAx:
		return "iAx"
	case ModeSJ:
		return "isJ"
	default:
		return fmt.Sprintf("OpMode(%d)", m)
	}
}

// OpcodeInfo provides metadata about each opcode.
type OpcodeInfo struct {
	Name string // luac mnemonic
	Mode OpMode // operand layout
	Test bool   // the next instruction is always a jump
}

// opcodeInfoTable is indexed by Opcode.
var opcodeInfoTable = [NumOpcodes]OpcodeInfo{
	OpMove:       {"MOVE", ModeABC, false},
	OpLoadI:      {"LOADI", ModeAsBx, false},
	OpLoadF:      {"LOADF", ModeAsBx, false},
	OpLoadK:      {"LOADK", ModeABx, false},
	OpLoadKX:     {"LOADKX", ModeABx, false},
	OpLoadFalse:  {"LOADFALSE", ModeABC, false},
	OpLFalseSkip: {"LFALSESKIP", ModeABC, false},
	OpLoadTrue:   {"LOADTRUE", ModeABC, false},
	OpLoadNil:    {"LOADNIL", ModeABC, false},
	OpGetUpval:   {"GETUPVAL", ModeABC, false},
	OpSetUpval:   {"SETUPVAL", ModeABC, false},

	OpGetTabUp: {"GETTABUP", ModeABC, false},
	OpGetTable: {"GETTABLE", ModeABC, false},
	OpGetI:     {"GETI", ModeABC, false},
	OpGetField: {"GETFIELD", ModeABC, false},
	OpSetTabUp: {"SETTABUP", ModeABC, false},
	OpSetTable: {"SETTABLE", ModeABC, false},
	OpSetI:     {"SETI", ModeABC, false},
	OpSetField: {"SETFIELD", ModeABC, false},
	OpNewTable: {"NEWTABLE", ModeABC, false},
	OpSelf:     {"SELF", ModeABC, false},

	OpAddI:  {"ADDI", ModeABC, false},
	OpAddK:  {"ADDK", ModeABC, false},
	OpSubK:  {"SUBK", ModeABC, false},
	OpMulK:  {"MULK", ModeABC, false},
	OpModK:  {"MODK", ModeABC, false},
	OpPowK:  {"POWK", ModeABC, false},
	OpDivK:  {"DIVK", ModeABC, false},
	OpIDivK: {"IDIVK", ModeABC, false},
	OpBAndK: {"BANDK", ModeABC, false},
	OpBOrK:  {"BORK", ModeABC, false},
	OpBXorK: {"BXORK", ModeABC, false},
	OpShrI:  {"SHRI", ModeABC, false},
	OpShlI:  {"SHLI", ModeABC, false},

	OpAdd:  {"ADD", ModeABC, false},
	OpSub:  {"SUB", ModeABC, false},
	OpMul:  {"MUL", ModeABC, false},
	OpMod:  {"MOD", ModeABC, false},
	OpPow:  {"POW", ModeABC, false},
	OpDiv:  {"DIV", ModeABC, false},
	OpIDiv: {"IDIV", ModeABC, false},
	OpBAnd: {"BAND", ModeABC, false},
	OpBOr:  {"BOR", ModeABC, false},
	OpBXor: {"BXOR", ModeABC, false},
	OpShl:  {"SHL", ModeABC, false},
	OpShr:  {"SHR", ModeABC, false},

	OpMMBin:  {"MMBIN", ModeABC, false},
	OpMMBinI: {"MMBINI", ModeABC, false},
	OpMMBinK: {"MMBINK", ModeABC, false},

	OpUnm:    {"UNM", ModeABC, false},
	OpBNot:   {"BNOT", ModeABC, false},
	OpNot:    {"NOT", ModeABC, false},
	OpLen:    {"LEN", ModeABC, false},
	OpConcat: {"CONCAT", ModeABC, false},

	OpClose:   {"CLOSE", ModeABC, false},
	OpTBC:     {"TBC", ModeABC, false},
	OpJmp:     {"JMP", ModeSJ, false},
	OpEq:      {"EQ", ModeABC, true},
	OpLt:      {"LT", ModeABC, true},
	OpLe:      {"LE", ModeABC, true},
	OpEqK:     {"EQK", ModeABC, true},
	OpEqI:     {"EQI", ModeABC, true},
	OpLtI:     {"LTI", ModeABC, true},
	OpLeI:     {"LEI", ModeABC, true},
	OpGtI:     {"GTI", ModeABC, true},
	OpGeI:     {"GEI", ModeABC, true},
	OpTest:    {"TEST", ModeABC, true},
	OpTestSet: {"TESTSET", ModeABC, true},

	OpCall:     {"CALL", ModeABC, false},
	OpTailCall: {"TAILCALL", ModeABC, false},
	OpReturn:   {"RETURN", ModeABC, false},
	OpReturn0:  {"RETURN0", ModeABC, false},
	OpReturn1:  {"RETURN1", ModeABC, false},

	OpForLoop:  {"FORLOOP", ModeABx, false},
	OpForPrep:  {"FORPREP", ModeABx, false},
	OpTForPrep: {"TFORPREP", ModeABx, false},
	OpTForCall: {"TFORCALL", ModeABC, false},
	OpTForLoop: {"TFORLOOP", ModeABx, false},

	OpSetList:    {"SETLIST", ModeABC, false},
	OpClosure:    {"CLOSURE", ModeABx, false},
	OpVararg:     {"VARARG", ModeABC, false},
	OpVarargPrep: {"VARARGPREP", ModeABC, false},
	OpExtraArg:   {"EXTRAARG", ModeAx, false},
}

// Valid reports whether op is one of the defined opcodes.
func (op Opcode) Valid() bool {
	return int(op) < NumOpcodes
}

// Info returns the metadata for op. Unknown opcodes get a synthesized name.
func (op Opcode) Info() OpcodeInfo {
	if !op.Valid() {
		return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%d", uint8(op)), Mode: ModeABC}
	}
	return opcodeInfoTable[op]
}

// String returns the luac mnemonic for op.
func (op Opcode) String() string {
	return op.Info().Name
}

// IsTest reports whether op belongs to the test family, whose instructions
// never jump by themselves and are always followed by a JMP.
func (op Opcode) IsTest() bool {
	return op.Valid() && opcodeInfoTable[op].Test
}

// LookupOpcode finds an opcode by its mnemonic.
func LookupOpcode(name string) (Opcode, bool) {
	for i, info := range opcodeInfoTable {
		if info.Name == name {
			return Opcode(i), true
		}
	}
	return 0, false
}
