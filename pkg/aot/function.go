package aot

import (
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/chazu/luaot/pkg/bytecode"
)

// compileFunction emits one C function for entry. Labels are resolved
// against entry's own code only.
func (c *Compiler) compileFunction(e FunctionEntry) error {
	p := e.Proto
	l, err := resolveLabels(e.Name, p)
	if err != nil {
		return err
	}
	log.Debugf("compiling %s: %d instructions, %d children", e.Name, len(p.Code), len(p.Protos))

	c.writeLine("// source = %s", commentSafe(p.Source))
	if p.IsMain() {
		c.writeLine("// main function")
	} else {
		c.writeLine("// lines: %d - %d", p.LineDefined, p.LastLineDefined)
	}

	c.writeLine("static")
	c.writeLine("void %s(lua_State *L, CallInfo *ci)", e.Name)
	c.writeLine("{")
	c.writePrologue()

	for pc := range p.Code {
		c.compileInstruction(e, pc, l)
	}

	c.writeLine("}")
	c.writeLine(" ")
	return nil
}

// writePrologue binds the frame state. Execution re-enters at tailcall,
// which re-reads the trap state.
func (c *Compiler) writePrologue() {
	c.writeLine("  LClosure *cl;")
	c.writeLine("  TValue *k;")
	c.writeLine("  StkId base;")
	c.writeLine("  const Instruction *saved_pc;")
	c.writeLine("  int trap;")
	c.writeLine("  ")
	c.writeLine(" tailcall:")
	c.writeLine("  trap = L->hookmask;")
	c.writeLine("  cl = clLvalue(s2v(ci->func));")
	c.writeLine("  k = cl->p->k;")
	c.writeLine("  saved_pc = ci->u.l.savedpc;  /*no explicit program counter*/ ")
	c.writeLine("  if (trap) {")
	c.writeLine("    if (cl->p->is_vararg)")
	c.writeLine("      trap = 0;  /* hooks will start after VARARGPREP instruction */")
	c.writeLine("    else if (saved_pc == cl->p->code) /*first instruction (not resuming)?*/")
	c.writeLine("      luaD_hookcall(L, ci);")
	c.writeLine("    ci->u.l.trap = 1;  /* there may be other hooks */")
	c.writeLine("  }")
	c.writeLine("  base = ci->func + 1;")
	c.writeLine("  /* main loop of interpreter */")
	c.writeLine("  Instruction *function_code = cl->p->code;")
	c.writeLine(" ")
}

// compileInstruction emits the labeled block of the instruction at pc.
func (c *Compiler) compileInstruction(e FunctionEntry, pc int, l *labels) {
	p := e.Proto
	ins := p.Code[pc]

	if c.opts.Comments {
		c.writeLine("%s", annotate(p, pc, c.childName(p)))
	}

	// While an instruction executes, the saved program counter points to
	// the next one.
	c.writeLine("  #undef  LUA_AOT_PC")
	c.writeLine("  #define LUA_AOT_PC (function_code + %d)", pc+1)

	c.writeLine("  #undef  LUA_AOT_NEXT_JUMP")
	if target, ok := l.NextJump(pc); ok {
		c.writeLine("  #define LUA_AOT_NEXT_JUMP %s", target)
	}

	c.writeLine("  #undef  LUA_AOT_SKIP1")
	if target, ok := l.Skip1(pc); ok {
		c.writeLine("  #define LUA_AOT_SKIP1 %s", target)
	}

	c.writeLine("  %s : {", labelName(pc))
	c.writeLine("    Instruction i = 0x%08x;", uint32(ins))
	c.writeLine("    StkId ra = RA(i);")
	c.writeLine("    (void) ra;")

	if !c.emitBody(p, pc) {
		finding := &UnsupportedOpcodeError{Function: e.Name, PC: pc, Opcode: ins.Opcode()}
		c.unsupported = append(c.unsupported, finding)
		if c.opts.Unsupported == PolicyError {
			c.findings = multierror.Append(c.findings, finding)
		} else {
			log.Warningf("%s", finding)
		}
		c.emitUnsupported(ins.Opcode())
	}

	c.writeLine("  }")
	c.writeLine("  ")
}

// childName returns a namer for the CLOSURE annotations of p.
func (c *Compiler) childName(p *bytecode.Prototype) func(int) string {
	return func(i int) string {
		if i < 0 || i >= len(p.Protos) {
			return "?"
		}
		return c.names[p.Protos[i]]
	}
}

// commentSafe keeps a source name on a single comment line.
func commentSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
