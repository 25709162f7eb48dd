// Package bytecode models compiled Lua 5.4 functions as the interpreter
// sees them.
//
// # Architecture Overview
//
//   - Opcodes: the 83 Lua 5.4 operations in lopcodes.h order, with their
//     operand layout and whether they belong to the conditional-test family.
//
//   - Instruction: a 32-bit word with pure accessors for the A, B, C, k, Bx,
//     Ax, sB, sC, sBx and sJ fields. Signed fields use the same excess-K bias
//     as the runtime.
//
//   - Prototype: one function's code, constant pool, upvalue descriptors,
//     nested prototypes and debug information. A prototype owns its children;
//     Walk visits the tree in pre-order, which is the order in which code
//     generators and the runtime glue number functions.
//
//   - Undump: a reader for precompiled chunks as written by luac 5.4
//     ("\x1bLua" signature, version 0x54).
//
// # Instruction Format
//
// Every instruction is 32 bits wide with the opcode in the low 7 bits:
//
//	iABC   C(8) B(8) k(1) A(8) Op(7)
//	iABx   Bx(17)         A(8) Op(7)
//	iAsBx  sBx(17)        A(8) Op(7)
//	iAx    Ax(25)              Op(7)
//	isJ    sJ(25)              Op(7)
//
// # Usage
//
//	proto, err := bytecode.Undump(data, "hello.luac")
//	if err != nil {
//	    return err
//	}
//	proto.Walk(func(p *bytecode.Prototype, path []int) error {
//	    for pc, ins := range p.Code {
//	        fmt.Println(pc, ins)
//	    }
//	    return nil
//	})
package bytecode
