package aot

import (
	"bufio"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/chazu/luaot/pkg/bytecode"
)

var (
	listHeader   = color.New(color.FgGreen, color.Bold).SprintFunc()
	listDim      = color.New(color.Faint).SprintFunc()
	listOpcode   = color.New(color.FgCyan, color.Bold).SprintFunc()
	listOperands = color.New(color.FgWhite).SprintFunc()
	listComment  = color.New(color.FgYellow).SprintFunc()
	listWarning  = color.New(color.FgRed).SprintFunc()
)

// WriteListing writes a luac -l style listing of every function in root,
// named as CompileModule would name them. Instructions without a C
// translation are flagged.
func WriteListing(w io.Writer, root *bytecode.Prototype, prefix string) error {
	c := NewCompiler(Options{FunctionPrefix: prefix})
	c.reset()
	c.collectEntries(root)

	bw := bufio.NewWriter(w)
	for _, e := range c.entries {
		p := e.Proto
		kind := "function"
		if p.IsMain() {
			kind = "main"
		}
		vararg := ""
		if p.IsVararg {
			vararg = "+"
		}
		fmt.Fprintf(bw, "\n%s <%s:%d,%d> (%d instructions) %s\n",
			listHeader(kind), p.Source, p.LineDefined, p.LastLineDefined, len(p.Code), listHeader(e.Name))
		fmt.Fprintf(bw, "%s\n", listDim(fmt.Sprintf("%d%s params, %d slots, %d upvalues, %d locals, %d constants, %d functions",
			p.NumParams, vararg, p.MaxStackSize, len(p.Upvalues), len(p.LocVars), len(p.Constants), len(p.Protos))))

		for pc, ins := range p.Code {
			ann := annotate(p, pc, c.childName(p))
			fmt.Fprintf(bw, "\t%s\t%s\t%s\t%s",
				listDim(ann.PC), listDim(ann.LineText()), listOpcode(fmt.Sprintf("%-9s", ann.Opcode)), listOperands(ann.Operands))
			if ann.HasExtra {
				fmt.Fprintf(bw, "\t%s", listComment("; "+ann.Extra))
			}
			if !c.emitBody(p, pc) {
				fmt.Fprintf(bw, "\t%s", listWarning("[no translation for "+ins.Opcode().String()+"]"))
			}
			bw.WriteByte('\n')
		}
	}
	return bw.Flush()
}
