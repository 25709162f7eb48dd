package aot

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/chazu/luaot/pkg/bytecode"
)

// ErrInvalidModuleName is returned when a module name cannot be part of a
// C identifier.
var ErrInvalidModuleName = errors.New("invalid module name")

// Options controls code generation.
type Options struct {
	Header         string // glue prelude, included first
	Footer         string // glue epilogue, included last
	FunctionPrefix string // generated functions are named prefix + %02d
	Comments       bool   // annotate every instruction
	EmbedSource    bool   // embed the input bytes in the unit
	Unsupported    Policy
}

// DefaultOptions returns the options matching the stock glue templates.
func DefaultOptions() Options {
	return Options{
		Header:         "luaot_header.c",
		Footer:         "luaot_footer.c",
		FunctionPrefix: "magic_implementation_",
		Comments:       true,
		EmbedSource:    true,
		Unsupported:    PolicyError,
	}
}

// Unit is the input of one module compilation.
type Unit struct {
	Name   string // module name, used for luaopen_<name>
	Proto  *bytecode.Prototype
	Source []byte // input bytes embedded in the unit
}

// FunctionEntry binds a prototype to its generated function.
type FunctionEntry struct {
	ID    int
	Name  string
	Path  []int
	Proto *bytecode.Prototype
}

// Result describes a successful compilation.
type Result struct {
	Entries     []FunctionEntry
	Unsupported []*UnsupportedOpcodeError // trapped or delegated instructions
	Contract    *Contract
}

// Compiler translates prototype trees to C. A Compiler may be reused but
// not shared between goroutines.
type Compiler struct {
	opts Options

	sb          strings.Builder
	entries     []FunctionEntry
	names       map[*bytecode.Prototype]string
	findings    *multierror.Error
	unsupported []*UnsupportedOpcodeError
}

// NewCompiler creates a compiler. Empty option strings fall back to
// DefaultOptions.
func NewCompiler(opts Options) *Compiler {
	def := DefaultOptions()
	if opts.Header == "" {
		opts.Header = def.Header
	}
	if opts.Footer == "" {
		opts.Footer = def.Footer
	}
	if opts.FunctionPrefix == "" {
		opts.FunctionPrefix = def.FunctionPrefix
	}
	return &Compiler{opts: opts}
}

func (c *Compiler) reset() {
	c.sb.Reset()
	c.entries = nil
	c.names = make(map[*bytecode.Prototype]string)
	c.findings = newFindings()
	c.unsupported = nil
}

// CompileModule writes the C unit for unit to w. Nothing is written when
// generation fails.
func (c *Compiler) CompileModule(w io.Writer, unit Unit) (*Result, error) {
	if unit.Proto == nil {
		return nil, errors.New("aot: unit has no main prototype")
	}
	if !isIdentifier(unit.Name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidModuleName, unit.Name)
	}

	c.reset()
	c.collectEntries(unit.Proto)
	log.Infof("compiling module %s: %d functions", unit.Name, len(c.entries))

	c.writeLine("#include \"%s\"", c.opts.Header)
	c.writeLine(" ")

	for _, e := range c.entries {
		if err := c.compileFunction(e); err != nil {
			return nil, err
		}
	}
	if err := c.findings.ErrorOrNil(); err != nil {
		return nil, err
	}

	c.writeFunctionTable()
	c.writeLine(" ")
	contract := newContract(unit.Name, unit.Source, c.opts.EmbedSource, c.entries)
	c.writeContract(contract)
	c.writeLine(" ")
	c.writeSource(unit.Source)
	c.writeLine(" ")
	c.writeLine("#define LUA_AOT_LUAOPEN_NAME luaopen_%s", unit.Name)
	c.writeLine(" ")
	c.writeLine("#include \"%s\"", c.opts.Footer)

	if _, err := io.WriteString(w, c.sb.String()); err != nil {
		return nil, err
	}
	return &Result{
		Entries:     c.entries,
		Unsupported: c.unsupported,
		Contract:    contract,
	}, nil
}

// collectEntries numbers every prototype in pre-order. The glue walks the
// loaded tree the same way to bind entry points.
func (c *Compiler) collectEntries(root *bytecode.Prototype) {
	_ = root.Walk(func(p *bytecode.Prototype, path []int) error {
		id := len(c.entries)
		name := fmt.Sprintf("%s%02d", c.opts.FunctionPrefix, id)
		c.entries = append(c.entries, FunctionEntry{ID: id, Name: name, Path: path, Proto: p})
		c.names[p] = name
		return nil
	})
}

func (c *Compiler) writeFunctionTable() {
	c.writeLine("static AotCompiledFunction LUA_AOT_FUNCTIONS[] = {")
	for _, e := range c.entries {
		c.writeLine("  %s,", e.Name)
	}
	c.writeLine("  NULL")
	c.writeLine("};")
}

func (c *Compiler) writeContract(ct *Contract) {
	c.writeLine("#define LUA_AOT_TRAVERSAL_VERSION %d", ct.Version)
	c.writeLine("#define LUA_AOT_BUILD_ID \"%s\"", ct.BuildID)
	c.writeLine("static const char *const LUA_AOT_FUNCTION_PATHS[] = {")
	for _, f := range ct.Functions {
		c.writeLine("  \"%s\",  /* %s */", PathString(f.Path), f.Name)
	}
	c.writeLine("  NULL")
	c.writeLine("};")
}

// writeSource embeds the input as a char array; C99 limits the length of
// string literals.
func (c *Compiler) writeSource(source []byte) {
	if !c.opts.EmbedSource {
		c.writeLine("#define LUA_AOT_HAS_SOURCE 0")
		return
	}

	c.writeLine("static const char LUA_AOT_MODULE_SOURCE_CODE[] = {")
	col := 0
	for i := 0; i <= len(source); i++ {
		if col == 0 {
			c.sb.WriteString("  ")
		}
		eof := i == len(source)
		if eof {
			fmt.Fprintf(&c.sb, "%3d", 0)
		} else {
			fmt.Fprintf(&c.sb, "%3d, ", source[i])
		}
		col++
		if col == 16 || eof {
			c.sb.WriteByte('\n')
			col = 0
		}
	}
	c.writeLine("};")
	c.writeLine("#define LUA_AOT_HAS_SOURCE 1")
}

// writeLine appends a formatted line to the output.
func (c *Compiler) writeLine(format string, args ...any) {
	fmt.Fprintf(&c.sb, format, args...)
	c.sb.WriteByte('\n')
}

// isIdentifier reports whether s is a valid C identifier.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '_', ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
