package bytecode

// AbsLineInfo is an absolute line checkpoint in a prototype's line table.
type AbsLineInfo struct {
	PC   int
	Line int
}

// LocVar describes a local variable's name and live range.
type LocVar struct {
	Name    string
	StartPC int
	EndPC   int
}

// Upvalue describes how a closure captures one variable.
type Upvalue struct {
	Name    string // empty when debug information was stripped
	InStack bool   // captured from the enclosing function's registers
	Index   int    // register or upvalue index in the enclosing function
	Kind    uint8  // variable kind (regular, constant, to-be-closed)
}

// maxInstWithoutAbs is the longest run of relative line deltas between
// absolute checkpoints.
const maxInstWithoutAbs = 128

// Prototype is the static description of one Lua function. A prototype
// exclusively owns its nested prototypes.
type Prototype struct {
	Source          string
	LineDefined     int
	LastLineDefined int
	NumParams       uint8
	IsVararg        bool
	MaxStackSize    uint8

	Code      []Instruction
	Constants []Constant
	Upvalues  []Upvalue
	Protos    []*Prototype

	// Debug information; LineInfo is nil when stripped.
	LineInfo    []int8
	AbsLineInfo []AbsLineInfo
	LocVars     []LocVar
}

// IsMain reports whether p is a chunk's main function.
func (p *Prototype) IsMain() bool {
	return p.LineDefined == 0
}

// UpvalueName returns the name of upvalue i, or "-" if unknown.
func (p *Prototype) UpvalueName(i int) string {
	if i < 0 || i >= len(p.Upvalues) || p.Upvalues[i].Name == "" {
		return "-"
	}
	return p.Upvalues[i].Name
}

// LineAt returns the source line of the instruction at pc, or -1 when the
// prototype carries no line information.
func (p *Prototype) LineAt(pc int) int {
	if p.LineInfo == nil {
		return -1
	}
	basePC, line := p.baseLine(pc)
	for basePC++; basePC <= pc; basePC++ {
		line += int(p.LineInfo[basePC])
	}
	return line
}

// baseLine finds the closest absolute checkpoint at or before pc.
func (p *Prototype) baseLine(pc int) (int, int) {
	if len(p.AbsLineInfo) == 0 || pc < p.AbsLineInfo[0].PC {
		return -1, p.LineDefined
	}
	i := pc/maxInstWithoutAbs - 1
	if i < 0 {
		i = 0
	}
	if i >= len(p.AbsLineInfo) {
		i = len(p.AbsLineInfo) - 1
	}
	for i > 0 && p.AbsLineInfo[i].PC > pc {
		i--
	}
	for i+1 < len(p.AbsLineInfo) && pc >= p.AbsLineInfo[i+1].PC {
		i++
	}
	return p.AbsLineInfo[i].PC, p.AbsLineInfo[i].Line
}

// Walk visits p and all nested prototypes in pre-order: a prototype before
// its children, children in index order. It stops at the first error.
func (p *Prototype) Walk(fn func(p *Prototype, path []int) error) error {
	return p.walk(fn, nil)
}

func (p *Prototype) walk(fn func(*Prototype, []int) error, path []int) error {
	if err := fn(p, path); err != nil {
		return err
	}
	for i, child := range p.Protos {
		childPath := make([]int, len(path)+1)
		copy(childPath, path)
		childPath[len(path)] = i
		if err := child.walk(fn, childPath); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of prototypes in the tree rooted at p.
func (p *Prototype) Count() int {
	n := 1
	for _, child := range p.Protos {
		n += child.Count()
	}
	return n
}
