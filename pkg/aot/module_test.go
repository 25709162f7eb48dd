package aot

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"

	"github.com/chazu/luaot/pkg/bytecode"
)

// forLoopProto is the main function of "for i = 1, 5 do end".
func forLoopProto() *bytecode.Prototype {
	return &bytecode.Prototype{
		Source:       "@for.lua",
		IsVararg:     true,
		MaxStackSize: 4,
		Code: []bytecode.Instruction{
			bytecode.CreateABCk(bytecode.OpVarargPrep, 0, 0, 0, 0),
			bytecode.CreateAsBx(bytecode.OpLoadI, 0, 1),
			bytecode.CreateAsBx(bytecode.OpLoadI, 1, 5),
			bytecode.CreateAsBx(bytecode.OpLoadI, 2, 1),
			bytecode.CreateABx(bytecode.OpForPrep, 0, 0),
			bytecode.CreateABx(bytecode.OpForLoop, 0, 1),
			bytecode.CreateABCk(bytecode.OpReturn, 0, 1, 1, 0),
		},
		Upvalues: []bytecode.Upvalue{{Name: "_ENV", InStack: true}},
		LineInfo: []int8{1, 0, 0, 0, 0, 0, 0},
	}
}

func leafProto(line int) *bytecode.Prototype {
	return &bytecode.Prototype{
		Source:          "@tree.lua",
		LineDefined:     line,
		LastLineDefined: line + 1,
		MaxStackSize:    2,
		Code:            []bytecode.Instruction{bytecode.CreateABCk(bytecode.OpReturn0, 0, 1, 1, 0)},
	}
}

// treeProto has the shape main{a{c}, b}.
func treeProto() *bytecode.Prototype {
	a := leafProto(1)
	a.Code = []bytecode.Instruction{
		bytecode.CreateABx(bytecode.OpClosure, 0, 0),
		bytecode.CreateABCk(bytecode.OpReturn0, 0, 1, 1, 0),
	}
	a.Protos = []*bytecode.Prototype{leafProto(2)}

	return &bytecode.Prototype{
		Source:       "@tree.lua",
		IsVararg:     true,
		MaxStackSize: 2,
		Code: []bytecode.Instruction{
			bytecode.CreateABCk(bytecode.OpVarargPrep, 0, 0, 0, 0),
			bytecode.CreateABx(bytecode.OpClosure, 0, 0),
			bytecode.CreateABx(bytecode.OpClosure, 1, 1),
			bytecode.CreateABCk(bytecode.OpReturn, 0, 1, 1, 0),
		},
		Protos: []*bytecode.Prototype{a, leafProto(5)},
	}
}

// globalsProto uses table access and arithmetic, which have no
// translation.
func globalsProto() *bytecode.Prototype {
	return &bytecode.Prototype{
		Source:       "@globals.lua",
		IsVararg:     true,
		MaxStackSize: 2,
		Code: []bytecode.Instruction{
			bytecode.CreateABCk(bytecode.OpVarargPrep, 0, 0, 0, 0),
			bytecode.CreateABCk(bytecode.OpGetTabUp, 0, 0, 0, 0),
			bytecode.CreateABCk(bytecode.OpAdd, 0, 0, 0, 0),
			bytecode.CreateABCk(bytecode.OpReturn0, 0, 1, 1, 0),
		},
		Constants: []bytecode.Constant{bytecode.StringConstant("x")},
		Upvalues:  []bytecode.Upvalue{{Name: "_ENV", InStack: true}},
	}
}

func compile(t *testing.T, opts Options, unit Unit) (string, *Result) {
	t.Helper()
	var buf bytes.Buffer
	res, err := NewCompiler(opts).CompileModule(&buf, unit)
	if err != nil {
		t.Fatalf("CompileModule failed: %v", err)
	}
	return buf.String(), res
}

func TestCompileModuleForLoop(t *testing.T) {
	out, res := compile(t, DefaultOptions(), Unit{Name: "for", Proto: forLoopProto(), Source: []byte("for i = 1, 5 do end\n")})

	if len(res.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(res.Entries))
	}
	if strings.Count(out, "void magic_implementation_") != 1 {
		t.Error("expected exactly one generated function")
	}

	expected := []string{
		"#include \"luaot_header.c\"",
		"// source = @for.lua",
		"// main function",
		"void magic_implementation_00(lua_State *L, CallInfo *ci)",
		"  // 2\t[1]\tLOADI    \t0 1",
		"  // 5\t[1]\tFORPREP  \t0 0\t; to 6",
		"  // 6\t[1]\tFORLOOP  \t0 1\t; to 6",
		"  // 7\t[1]\tRETURN   \t0 1 1\t; 0 out",
		"  #define LUA_AOT_PC (function_code + 6)",
		"  label_05 : {",
		"goto label_05; /* jump back */",
		"goto label_06; /* skip the loop */",
		"static AotCompiledFunction LUA_AOT_FUNCTIONS[] = {\n  magic_implementation_00,\n  NULL\n};",
		"#define LUA_AOT_TRAVERSAL_VERSION 1",
		"  \"\",  /* magic_implementation_00 */",
		"#define LUA_AOT_HAS_SOURCE 1",
		"#define LUA_AOT_LUAOPEN_NAME luaopen_for",
		"#include \"luaot_footer.c\"",
	}
	for _, exp := range expected {
		if !strings.Contains(out, exp) {
			t.Errorf("output missing %q", exp)
		}
	}

	// The loop's jump back lands on the instruction after FORPREP.
	forloop := strings.Index(out, "label_05 : {")
	if forloop < 0 || !strings.Contains(out[forloop:], "goto label_05;") {
		t.Error("FORLOOP should jump back to label_05")
	}
}

func TestCompileModuleSectionOrder(t *testing.T) {
	out, _ := compile(t, DefaultOptions(), Unit{Name: "tree", Proto: treeProto(), Source: []byte("x")})

	markers := []string{
		"#include \"luaot_header.c\"",
		"void magic_implementation_00(",
		"void magic_implementation_03(",
		"static AotCompiledFunction LUA_AOT_FUNCTIONS[]",
		"#define LUA_AOT_TRAVERSAL_VERSION",
		"static const char LUA_AOT_MODULE_SOURCE_CODE[]",
		"#define LUA_AOT_LUAOPEN_NAME luaopen_tree",
		"#include \"luaot_footer.c\"",
	}
	last := -1
	for _, m := range markers {
		idx := strings.Index(out, m)
		if idx < 0 {
			t.Fatalf("output missing %q", m)
		}
		if idx <= last {
			t.Errorf("%q is out of order", m)
		}
		last = idx
	}
}

func TestCompileModuleTraversal(t *testing.T) {
	out, res := compile(t, DefaultOptions(), Unit{Name: "tree", Proto: treeProto()})

	wantPaths := []string{"", "0", "0.0", "1"}
	if len(res.Entries) != len(wantPaths) {
		t.Fatalf("expected %d entries, got %d", len(wantPaths), len(res.Entries))
	}
	for i, e := range res.Entries {
		if e.ID != i {
			t.Errorf("entry %d has ID %d", i, e.ID)
		}
		if got := PathString(e.Path); got != wantPaths[i] {
			t.Errorf("entry %d path = %q, want %q", i, got, wantPaths[i])
		}
	}

	table := "static AotCompiledFunction LUA_AOT_FUNCTIONS[] = {\n" +
		"  magic_implementation_00,\n" +
		"  magic_implementation_01,\n" +
		"  magic_implementation_02,\n" +
		"  magic_implementation_03,\n" +
		"  NULL\n};"
	if !strings.Contains(out, table) {
		t.Error("function table does not list functions in pre-order")
	}

	paths := "  \"\",  /* magic_implementation_00 */\n" +
		"  \"0\",  /* magic_implementation_01 */\n" +
		"  \"0.0\",  /* magic_implementation_02 */\n" +
		"  \"1\",  /* magic_implementation_03 */\n" +
		"  NULL\n};"
	if !strings.Contains(out, paths) {
		t.Error("function paths do not follow the traversal")
	}

	// CLOSURE annotations name the child's generated function.
	if !strings.Contains(out, "CLOSURE  \t1 1\t; magic_implementation_03") {
		t.Error("CLOSURE annotation should name magic_implementation_03")
	}
	if !strings.Contains(out, "CLOSURE  \t0 0\t; magic_implementation_02") {
		t.Error("nested CLOSURE annotation should name magic_implementation_02")
	}
	if !strings.Contains(out, "// lines: 2 - 3") {
		t.Error("child functions should carry their line range")
	}
}

func TestCompileModuleDeterministic(t *testing.T) {
	unit := Unit{Name: "tree", Proto: treeProto(), Source: []byte("local x = 1\n")}

	c := NewCompiler(DefaultOptions())
	var first, second bytes.Buffer
	if _, err := c.CompileModule(&first, unit); err != nil {
		t.Fatalf("first compile failed: %v", err)
	}
	if _, err := c.CompileModule(&second, unit); err != nil {
		t.Fatalf("second compile failed: %v", err)
	}
	fresh, _ := compile(t, DefaultOptions(), unit)

	if first.String() != second.String() {
		t.Error("reusing a compiler changed the output")
	}
	if first.String() != fresh {
		t.Error("a fresh compiler produced different output")
	}
}

func TestCompileModuleNoComments(t *testing.T) {
	opts := DefaultOptions()
	opts.Comments = false
	out, _ := compile(t, opts, Unit{Name: "for", Proto: forLoopProto()})

	if strings.Contains(out, "  // 1\t") {
		t.Error("annotations should be omitted")
	}
	if !strings.Contains(out, "label_00 : {") {
		t.Error("instruction blocks should still be emitted")
	}
}

func TestCompileModuleOptions(t *testing.T) {
	opts := Options{Header: "hdr.c", Footer: "ftr.c", FunctionPrefix: "fn_", EmbedSource: true}
	out, res := compile(t, opts, Unit{Name: "m", Proto: treeProto()})

	for _, exp := range []string{"#include \"hdr.c\"", "#include \"ftr.c\"", "void fn_02(", "  fn_03,"} {
		if !strings.Contains(out, exp) {
			t.Errorf("output missing %q", exp)
		}
	}
	if res.Entries[1].Name != "fn_01" {
		t.Errorf("entry name = %q, want fn_01", res.Entries[1].Name)
	}
}

func TestCompileModuleSource(t *testing.T) {
	out, res := compile(t, DefaultOptions(), Unit{Name: "src", Proto: forLoopProto(), Source: []byte("ab")})
	if !strings.Contains(out, "static const char LUA_AOT_MODULE_SOURCE_CODE[] = {\n   97,  98,   0\n};") {
		t.Errorf("unexpected source array:\n%s", out[strings.Index(out, "LUA_AOT_MODULE_SOURCE_CODE"):])
	}
	if !res.Contract.HasSource {
		t.Error("contract should record the embedded source")
	}

	// Sixteen bytes fill one row; the terminator starts the next.
	src := []byte("0123456789abcdef")
	out, _ = compile(t, DefaultOptions(), Unit{Name: "src", Proto: forLoopProto(), Source: src})
	row := "   48,  49,  50,  51,  52,  53,  54,  55,  56,  57,  97,  98,  99, 100, 101, 102, \n    0\n};"
	if !strings.Contains(out, row) {
		t.Error("source array should wrap after 16 values")
	}

	out, _ = compile(t, DefaultOptions(), Unit{Name: "src", Proto: forLoopProto()})
	if !strings.Contains(out, "{\n    0\n};") {
		t.Error("empty source should still be terminated")
	}
}

func TestCompileModuleWithoutSource(t *testing.T) {
	opts := DefaultOptions()
	opts.EmbedSource = false
	out, res := compile(t, opts, Unit{Name: "src", Proto: forLoopProto(), Source: []byte("secret")})

	if strings.Contains(out, "LUA_AOT_MODULE_SOURCE_CODE") {
		t.Error("source should not be embedded")
	}
	if !strings.Contains(out, "#define LUA_AOT_HAS_SOURCE 0") {
		t.Error("missing LUA_AOT_HAS_SOURCE 0")
	}
	if res.Contract.HasSource {
		t.Error("contract should record that no source is embedded")
	}
}

func TestCompileModuleInvalidName(t *testing.T) {
	for _, name := range []string{"", "1abc", "my-mod", "a.b", "ü"} {
		var buf bytes.Buffer
		_, err := NewCompiler(DefaultOptions()).CompileModule(&buf, Unit{Name: name, Proto: forLoopProto()})
		if !errors.Is(err, ErrInvalidModuleName) {
			t.Errorf("name %q: error = %v, want ErrInvalidModuleName", name, err)
		}
		if buf.Len() != 0 {
			t.Errorf("name %q: output written on error", name)
		}
	}

	if _, err := NewCompiler(DefaultOptions()).CompileModule(&bytes.Buffer{}, Unit{Name: "m"}); err == nil {
		t.Error("expected an error for a unit without a prototype")
	}
}

func TestUnsupportedPolicyError(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewCompiler(DefaultOptions()).CompileModule(&buf, Unit{Name: "g", Proto: globalsProto()})
	if err == nil {
		t.Fatal("expected an error for unsupported opcodes")
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written when generation fails")
	}

	merr, ok := err.(*multierror.Error)
	if !ok {
		t.Fatalf("error type = %T, want *multierror.Error", err)
	}
	if len(merr.Errors) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(merr.Errors))
	}

	var first *UnsupportedOpcodeError
	if !errors.As(merr.Errors[0], &first) {
		t.Fatalf("finding type = %T", merr.Errors[0])
	}
	if first.Opcode != bytecode.OpGetTabUp || first.PC != 1 {
		t.Errorf("first finding = %s at %d", first.Opcode, first.PC)
	}

	msg := err.Error()
	for _, exp := range []string{
		"2 unsupported instructions:",
		"magic_implementation_00: instruction 2: unsupported opcode GETTABUP",
		"magic_implementation_00: instruction 3: unsupported opcode ADD",
	} {
		if !strings.Contains(msg, exp) {
			t.Errorf("error %q missing %q", msg, exp)
		}
	}
}

func TestUnsupportedPolicyTrap(t *testing.T) {
	opts := DefaultOptions()
	opts.Unsupported = PolicyTrap
	out, res := compile(t, opts, Unit{Name: "g", Proto: globalsProto()})

	if !strings.Contains(out, "luaot_unsupported(L, \"GETTABUP\");") {
		t.Error("missing trap for GETTABUP")
	}
	if !strings.Contains(out, "luaot_unsupported(L, \"ADD\");") {
		t.Error("missing trap for ADD")
	}
	if len(res.Unsupported) != 2 {
		t.Errorf("expected 2 trapped instructions, got %d", len(res.Unsupported))
	}
	if !strings.Contains(out, "GETTABUP \t0 0 0\t; _ENV \"x\"") {
		t.Error("trapped instructions should keep their annotation")
	}
}

func TestUnsupportedPolicyFallback(t *testing.T) {
	opts := DefaultOptions()
	opts.Unsupported = PolicyFallback
	out, res := compile(t, opts, Unit{Name: "g", Proto: globalsProto()})

	if strings.Count(out, "luaot_fallback(L, ci, LUA_AOT_PC - 1);") != 2 {
		t.Error("expected a fallback call per unsupported instruction")
	}
	if strings.Contains(out, "luaot_unsupported") {
		t.Error("fallback policy should not emit traps")
	}
	if len(res.Unsupported) != 2 {
		t.Errorf("expected 2 delegated instructions, got %d", len(res.Unsupported))
	}
}

func TestCompileModuleJumpError(t *testing.T) {
	p := forLoopProto()
	p.Code[5] = bytecode.CreateABx(bytecode.OpForLoop, 0, 9)

	var buf bytes.Buffer
	_, err := NewCompiler(DefaultOptions()).CompileModule(&buf, Unit{Name: "bad", Proto: p})
	var jumpErr *JumpError
	if !errors.As(err, &jumpErr) {
		t.Fatalf("error = %v, want *JumpError", err)
	}
	if jumpErr.PC != 5 || jumpErr.Target != -3 {
		t.Errorf("JumpError at %d to %d", jumpErr.PC, jumpErr.Target)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written when generation fails")
	}
}

func TestParsePolicy(t *testing.T) {
	for _, p := range []Policy{PolicyError, PolicyTrap, PolicyFallback} {
		got, err := ParsePolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePolicy(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParsePolicy("ignore"); err == nil {
		t.Error("expected an error for an unknown policy")
	}
}
